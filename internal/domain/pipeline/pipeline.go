// Package pipeline implements kanban boards inside a sub-account: pipelines,
// their ordered lanes, the ordered tickets of each lane, and tags.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

// ErrInvalidInput is returned when a field or a referenced entity is not acceptable.
var ErrInvalidInput = errors.New("invalid input")

const (
	entityPipeline = "pipeline"
	entityLane     = "lane"
	entityTicket   = "ticket"
	entityTag      = "tag"
)

// Pipeline is a board of a sub-account.
type Pipeline struct {
	ID           string    `json:"id"`
	SubAccountID string    `json:"subAccountId"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Board is a pipeline with its lanes and their tickets, all in position order.
type Board struct {
	*Pipeline
	Lanes []*Lane `json:"lanes"`
}

// Service manages pipelines, lanes, tickets and tags. Every method expects
// scope.SubAccountID to be the sub-account the caller entered.
type Service struct {
	db       *sql.DB
	notifier notification.Notifier
}

// NewService returns a Service.
func NewService(db *sql.DB, notifier notification.Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

// CreatePipeline adds an empty pipeline.
func (s *Service) CreatePipeline(ctx context.Context, scope access.Scope, name string) (*Pipeline, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	id := uuid.NewV7().String()
	now := sqlite.Now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline (id, sub_account_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
	`, id, scope.SubAccountID, name, now, now); err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	s.notifier.Notify(ctx, notification.NewEvent(scope, "Created a pipeline", entityPipeline, name))
	return s.GetPipeline(ctx, scope, id)
}

// GetPipeline returns a pipeline of the sub-account, or sql.ErrNoRows.
func (s *Service) GetPipeline(ctx context.Context, scope access.Scope, id string) (*Pipeline, error) {
	var (
		p                    Pipeline
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sub_account_id, name, created_at, updated_at FROM pipeline WHERE id = ? AND sub_account_id = ?
	`, id, scope.SubAccountID).Scan(&p.ID, &p.SubAccountID, &p.Name, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = sqlite.ParseTime(createdAt)
	p.UpdatedAt = sqlite.ParseTime(updatedAt)
	return &p, nil
}

// ListPipelines returns the sub-account's pipelines, oldest first.
func (s *Service) ListPipelines(ctx context.Context, scope access.Scope) ([]*Pipeline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sub_account_id, name, created_at, updated_at FROM pipeline
		WHERE sub_account_id = ? ORDER BY created_at, id
	`, scope.SubAccountID)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	out := make([]*Pipeline, 0)
	for rows.Next() {
		var (
			p                    Pipeline
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.SubAccountID, &p.Name, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = sqlite.ParseTime(createdAt)
		p.UpdatedAt = sqlite.ParseTime(updatedAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// UpdatePipeline renames a pipeline.
func (s *Service) UpdatePipeline(ctx context.Context, scope access.Scope, id, name string) (*Pipeline, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline SET name = ?, updated_at = ? WHERE id = ? AND sub_account_id = ?
	`, name, sqlite.Now(), id, scope.SubAccountID)
	if err != nil {
		return nil, fmt.Errorf("update pipeline: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}
	s.notifier.Notify(ctx, notification.NewEvent(scope, "Updated a pipeline", entityPipeline, name))
	return s.GetPipeline(ctx, scope, id)
}

// DeletePipeline removes a pipeline with its lanes and tickets.
func (s *Service) DeletePipeline(ctx context.Context, scope access.Scope, id string) error {
	if !scope.Role.CanWrite() {
		return access.ErrForbidden
	}
	p, err := s.GetPipeline(ctx, scope, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pipeline WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	s.notifier.Notify(ctx, notification.NewEvent(scope, "Deleted a pipeline", entityPipeline, p.Name))
	return nil
}

// GetBoard returns the pipeline with ordered lanes, each holding its ordered
// tickets with their tags.
func (s *Service) GetBoard(ctx context.Context, scope access.Scope, pipelineID string) (*Board, error) {
	p, err := s.GetPipeline(ctx, scope, pipelineID)
	if err != nil {
		return nil, err
	}
	lanes, err := s.ListLanes(ctx, scope, pipelineID)
	if err != nil {
		return nil, err
	}
	byLane := make(map[string]*Lane, len(lanes))
	for _, l := range lanes {
		byLane[l.ID] = l
	}

	tickets, err := s.queryTickets(ctx, `l.pipeline_id = ?`, pipelineID)
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		if l, ok := byLane[t.LaneID]; ok {
			l.Tickets = append(l.Tickets, t)
		}
	}
	return &Board{Pipeline: p, Lanes: lanes}, nil
}
