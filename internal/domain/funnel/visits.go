package funnel

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/matiasleandrokruk/agencyhub/internal/infra/metrics"
)

// VisitCounter batches page visits in memory. Flush adds the accumulated
// counts to funnel_page.visits in one transaction.
type VisitCounter struct {
	db *sql.DB

	mu      sync.Mutex
	pending map[string]int
}

// NewVisitCounter returns an empty VisitCounter.
func NewVisitCounter(db *sql.DB) *VisitCounter {
	return &VisitCounter{db: db, pending: make(map[string]int)}
}

// Record counts one visit of pageID.
func (c *VisitCounter) Record(pageID string) {
	c.mu.Lock()
	c.pending[pageID]++
	c.mu.Unlock()
}

// Pending returns the number of visits not yet flushed.
func (c *VisitCounter) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.pending {
		n += v
	}
	return n
}

// Flush persists pending visits. On failure the batch is merged back so the
// next flush retries it.
func (c *VisitCounter) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = make(map[string]int)
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := c.write(ctx, batch); err != nil {
		c.mu.Lock()
		for id, n := range batch {
			c.pending[id] += n
		}
		c.mu.Unlock()
		return err
	}

	total := 0
	for _, n := range batch {
		total += n
	}
	metrics.RecordVisitsFlushed(total)
	return nil
}

func (c *VisitCounter) write(ctx context.Context, batch map[string]int) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `UPDATE funnel_page SET visits = visits + ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare visits: %w", err)
	}
	defer stmt.Close()

	for id, n := range batch {
		// Pages deleted since the visit simply match no row.
		if _, err := stmt.ExecContext(ctx, n, id); err != nil {
			return fmt.Errorf("add visits: %w", err)
		}
	}
	return tx.Commit()
}
