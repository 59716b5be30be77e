package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Positioned names a table whose rows carry an integer position column
// ordered within a parent.
type Positioned struct {
	Table        string
	ParentColumn string
}

// OrderedIDs returns the IDs of parentID's rows in position order.
func (p Positioned) OrderedIDs(ctx context.Context, tx *sql.Tx, parentID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM `+p.Table+` WHERE `+p.ParentColumn+` = ? ORDER BY position, id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("load %s order: %w", p.Table, err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WritePositions sets position = index for every id. Callers run it in the
// transaction that read the order so a partial write never commits.
func (p Positioned) WritePositions(ctx context.Context, tx *sql.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `UPDATE `+p.Table+` SET position = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare %s positions: %w", p.Table, err)
	}
	defer stmt.Close()

	now := Now()
	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, i, now, id); err != nil {
			return fmt.Errorf("write %s position: %w", p.Table, err)
		}
	}
	return nil
}
