package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/metrics"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/ordering"
)

var (
	laneOrder   = sqlite.Positioned{Table: "lane", ParentColumn: "pipeline_id"}
	ticketOrder = sqlite.Positioned{Table: "ticket", ParentColumn: "lane_id"}
)

// ReorderLanes stores laneIDs as the pipeline's lane order. laneIDs must be
// exactly the pipeline's current lanes, otherwise ordering.ErrOrderConflict.
func (s *Service) ReorderLanes(ctx context.Context, scope access.Scope, pipelineID string, laneIDs []string) (_ []*Lane, err error) {
	defer func() { metrics.RecordReorder(entityLane, err) }()

	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	p, err := s.GetPipeline(ctx, scope, pipelineID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := laneOrder.OrderedIDs(ctx, tx, pipelineID)
	if err != nil {
		return nil, err
	}
	if err := ordering.CheckPermutation(current, laneIDs); err != nil {
		return nil, err
	}
	if err := laneOrder.WritePositions(ctx, tx, laneIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Reordered lanes", entityPipeline, p.Name))
	return s.ListLanes(ctx, scope, pipelineID)
}

// MoveLane drops a lane on drop-zone slot to (0..len) of its pipeline.
func (s *Service) MoveLane(ctx context.Context, scope access.Scope, pipelineID, laneID string, to int) (_ []*Lane, err error) {
	defer func() { metrics.RecordReorder(entityLane, err) }()

	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	lane, err := s.GetLane(ctx, scope, laneID)
	if err != nil {
		return nil, err
	}
	if lane.PipelineID != pipelineID {
		return nil, sql.ErrNoRows
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := laneOrder.OrderedIDs(ctx, tx, lane.PipelineID)
	if err != nil {
		return nil, err
	}
	from := ordering.IndexOf(current, laneID)
	if from < 0 {
		return nil, sql.ErrNoRows
	}
	next, changed, err := ordering.Move(current, from, to)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := laneOrder.WritePositions(ctx, tx, next); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if changed {
		s.notifier.Notify(ctx, notification.NewEvent(scope, "Moved lane", entityLane, lane.Name))
	}
	return s.ListLanes(ctx, scope, lane.PipelineID)
}

// ReorderTickets stores ticketIDs as the lane's ticket order. ticketIDs must
// be exactly the lane's current tickets.
func (s *Service) ReorderTickets(ctx context.Context, scope access.Scope, laneID string, ticketIDs []string) (_ []*Ticket, err error) {
	defer func() { metrics.RecordReorder(entityTicket, err) }()

	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	lane, err := s.GetLane(ctx, scope, laneID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := ticketOrder.OrderedIDs(ctx, tx, laneID)
	if err != nil {
		return nil, err
	}
	if err := ordering.CheckPermutation(current, ticketIDs); err != nil {
		return nil, err
	}
	if err := ticketOrder.WritePositions(ctx, tx, ticketIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Reordered tickets", entityLane, lane.Name))
	return s.queryTickets(ctx, `t.lane_id = ?`, laneID)
}

// MoveTicket drops a ticket on drop-zone slot to of targetLaneID, which must
// belong to the same pipeline. Both lanes are renumbered in one transaction.
func (s *Service) MoveTicket(ctx context.Context, scope access.Scope, ticketID, targetLaneID string, to int) (_ *Ticket, err error) {
	defer func() { metrics.RecordReorder(entityTicket, err) }()

	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	t, err := s.GetTicket(ctx, scope, ticketID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	sourcePipeline, err := laneInSubAccount(ctx, tx, t.LaneID, scope.SubAccountID)
	if err != nil {
		return nil, err
	}
	targetPipeline, err := laneInSubAccount(ctx, tx, targetLaneID, scope.SubAccountID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && targetPipeline != sourcePipeline) {
		return nil, fmt.Errorf("%w: target lane %s is not in the ticket's pipeline", ordering.ErrInvalidMove, targetLaneID)
	}
	if err != nil {
		return nil, err
	}

	source, err := ticketOrder.OrderedIDs(ctx, tx, t.LaneID)
	if err != nil {
		return nil, err
	}
	from := ordering.IndexOf(source, ticketID)
	if from < 0 {
		return nil, sql.ErrNoRows
	}

	changed := true
	if targetLaneID == t.LaneID {
		next, moved, err := ordering.Move(source, from, to)
		if err != nil {
			return nil, err
		}
		changed = moved
		if moved {
			if err := ticketOrder.WritePositions(ctx, tx, next); err != nil {
				return nil, err
			}
		}
	} else {
		target, err := ticketOrder.OrderedIDs(ctx, tx, targetLaneID)
		if err != nil {
			return nil, err
		}
		if to < 0 || to > len(target) {
			return nil, fmt.Errorf("%w: target slot %d outside [0,%d]", ordering.ErrInvalidMove, to, len(target))
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE ticket SET lane_id = ?, updated_at = ? WHERE id = ?`, targetLaneID, sqlite.Now(), ticketID); err != nil {
			return nil, fmt.Errorf("move ticket: %w", err)
		}
		if err := ticketOrder.WritePositions(ctx, tx, ordering.Remove(source, from)); err != nil {
			return nil, err
		}
		if err := ticketOrder.WritePositions(ctx, tx, ordering.Insert(target, to, ticketID)); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if changed {
		s.notifier.Notify(ctx, notification.NewEvent(scope, "Moved ticket", entityTicket, t.Name))
	}
	return s.GetTicket(ctx, scope, ticketID)
}
