package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Upload is the audit record of one ingestion run.
type Upload struct {
	ID                string    `json:"id"`
	Filename          string    `json:"filename"`
	SourceAccount     string    `json:"source_account"`
	Inserted          int       `json:"inserted"`
	DuplicatesSkipped int       `json:"duplicates_skipped"`
	MalformedRows     int       `json:"malformed_rows"`
	TransfersFlagged  int       `json:"transfers_flagged"`
	CreatedAt         time.Time `json:"created_at"`
}

// Uploads is the repository for ingestion audit records.
type Uploads struct {
	db  *sql.DB
	log zerolog.Logger
}

// Record stores one upload audit row.
func (r *Uploads) Record(ctx context.Context, u Upload) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO uploads (
			id, filename, source_account, inserted, duplicates_skipped,
			malformed_rows, transfers_flagged, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Filename, u.SourceAccount, u.Inserted, u.DuplicatesSkipped,
		u.MalformedRows, u.TransfersFlagged, u.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("recording upload %s: %w", u.ID, err)
	}
	return nil
}

// List returns the most recent uploads, newest first.
func (r *Uploads) List(ctx context.Context, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, filename, source_account, inserted, duplicates_skipped,
		       malformed_rows, transfers_flagged, created_at
		FROM uploads ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var u Upload
		var created int64
		err := rows.Scan(&u.ID, &u.Filename, &u.SourceAccount, &u.Inserted,
			&u.DuplicatesSkipped, &u.MalformedRows, &u.TransfersFlagged, &created)
		if err != nil {
			return nil, fmt.Errorf("scanning upload: %w", err)
		}
		u.CreatedAt = time.Unix(created, 0).UTC()
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}
