// Package sqlite serves records stored in a sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/vlist/internal/adapter/synthetic"
	"github.com/charmbracelet/vlist/internal/virtual/data"
)

const seedBatch = 1000

// Adapter reads pages of records with LIMIT and OFFSET.
type Adapter struct {
	db *sql.DB
}

func New(db *sql.DB) *Adapter {
	return &Adapter{db: db}
}

func (a *Adapter) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Read implements data.Adapter.
func (a *Adapter) Read(ctx context.Context, req data.ReadRequest) (data.ReadResult[data.Record], error) {
	var res data.ReadResult[data.Record]
	total, err := a.Count(ctx)
	if err != nil {
		return res, err
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT idx, id, name, status, body FROM records ORDER BY idx LIMIT ? OFFSET ?`,
		req.Limit, req.Offset,
	)
	if err != nil {
		return res, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx                    int
			id, name, status, body string
		)
		if err := rows.Scan(&idx, &id, &name, &status, &body); err != nil {
			return data.ReadResult[data.Record]{}, fmt.Errorf("failed to scan record: %w", err)
		}
		res.Items = append(res.Items, data.Record{
			Index: idx,
			Fields: map[string]string{
				synthetic.FieldID:     id,
				synthetic.FieldName:   name,
				synthetic.FieldStatus: status,
				synthetic.FieldBody:   body,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return data.ReadResult[data.Record]{}, fmt.Errorf("failed to read records: %w", err)
	}

	res.Total = total
	res.HasMore = req.Offset+len(res.Items) < total
	return res, nil
}

// Seed replaces the table contents with n records from gen, committing in
// batches. progress, when set, is called after every batch.
func (a *Adapter) Seed(ctx context.Context, gen *synthetic.Adapter, n int, progress func(done int)) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	for offset := 0; offset < n; offset += seedBatch {
		if err := a.insert(ctx, gen.Records(offset, min(seedBatch, n-offset))); err != nil {
			return err
		}
		if progress != nil {
			progress(min(offset+seedBatch, n))
		}
	}
	slog.Info("Seeded records", "count", n)
	return nil
}

func (a *Adapter) insert(ctx context.Context, records []data.Record) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO records (idx, id, name, status, body) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.Index,
			r.Get(synthetic.FieldID),
			r.Get(synthetic.FieldName),
			r.Get(synthetic.FieldStatus),
			r.Get(synthetic.FieldBody),
		); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", r.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}
