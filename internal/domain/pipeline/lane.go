package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

// Lane is a column of a pipeline. Tickets is only filled by GetBoard.
type Lane struct {
	ID         string    `json:"id"`
	PipelineID string    `json:"pipelineId"`
	Name       string    `json:"name"`
	Position   int       `json:"order"`
	Tickets    []*Ticket `json:"tickets"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CreateLane appends a lane to the end of the pipeline.
func (s *Service) CreateLane(ctx context.Context, scope access.Scope, pipelineID, name string) (*Lane, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	if _, err := s.GetPipeline(ctx, scope, pipelineID); err != nil {
		return nil, err
	}

	id := uuid.NewV7().String()
	now := sqlite.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var position int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM lane WHERE pipeline_id = ?`, pipelineID).Scan(&position); err != nil {
		return nil, fmt.Errorf("count lanes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO lane (id, pipeline_id, name, position, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
	`, id, pipelineID, name, position, now, now); err != nil {
		return nil, fmt.Errorf("create lane: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Created a lane", entityLane, name))
	return s.GetLane(ctx, scope, id)
}

// GetLane returns a lane of the sub-account, or sql.ErrNoRows.
func (s *Service) GetLane(ctx context.Context, scope access.Scope, id string) (*Lane, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT l.id, l.pipeline_id, l.name, l.position, l.created_at, l.updated_at
		FROM lane l JOIN pipeline p ON p.id = l.pipeline_id
		WHERE l.id = ? AND p.sub_account_id = ?
	`, id, scope.SubAccountID)
	return scanLane(row)
}

// ListLanes returns the pipeline's lanes in position order.
func (s *Service) ListLanes(ctx context.Context, scope access.Scope, pipelineID string) ([]*Lane, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.pipeline_id, l.name, l.position, l.created_at, l.updated_at
		FROM lane l JOIN pipeline p ON p.id = l.pipeline_id
		WHERE l.pipeline_id = ? AND p.sub_account_id = ?
		ORDER BY l.position, l.id
	`, pipelineID, scope.SubAccountID)
	if err != nil {
		return nil, fmt.Errorf("list lanes: %w", err)
	}
	defer rows.Close()

	out := make([]*Lane, 0)
	for rows.Next() {
		l, err := scanLane(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateLane renames a lane.
func (s *Service) UpdateLane(ctx context.Context, scope access.Scope, id, name string) (*Lane, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	if _, err := s.GetLane(ctx, scope, id); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE lane SET name = ?, updated_at = ? WHERE id = ?`, name, sqlite.Now(), id); err != nil {
		return nil, fmt.Errorf("update lane: %w", err)
	}
	s.notifier.Notify(ctx, notification.NewEvent(scope, "Updated a lane", entityLane, name))
	return s.GetLane(ctx, scope, id)
}

// DeleteLane removes a lane with its tickets and renumbers the remaining lanes.
func (s *Service) DeleteLane(ctx context.Context, scope access.Scope, id string) error {
	if !scope.Role.CanWrite() {
		return access.ErrForbidden
	}
	lane, err := s.GetLane(ctx, scope, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM lane WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete lane: %w", err)
	}
	ids, err := laneOrder.OrderedIDs(ctx, tx, lane.PipelineID)
	if err != nil {
		return err
	}
	if err := laneOrder.WritePositions(ctx, tx, ids); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Deleted a lane", entityLane, lane.Name))
	return nil
}

func scanLane(row interface{ Scan(...any) error }) (*Lane, error) {
	var (
		l                    Lane
		createdAt, updatedAt string
	)
	if err := row.Scan(&l.ID, &l.PipelineID, &l.Name, &l.Position, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	l.CreatedAt = sqlite.ParseTime(createdAt)
	l.UpdatedAt = sqlite.ParseTime(updatedAt)
	l.Tickets = make([]*Ticket, 0)
	return &l, nil
}

// laneInSubAccount resolves a lane's pipeline inside a transaction.
func laneInSubAccount(ctx context.Context, tx *sql.Tx, laneID, subAccountID string) (pipelineID string, err error) {
	err = tx.QueryRowContext(ctx, `
		SELECT l.pipeline_id FROM lane l JOIN pipeline p ON p.id = l.pipeline_id
		WHERE l.id = ? AND p.sub_account_id = ?
	`, laneID, subAccountID).Scan(&pipelineID)
	return pipelineID, err
}
