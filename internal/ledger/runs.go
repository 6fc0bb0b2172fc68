package ledger

import (
	"context"
	"database/sql"
	"time"
)

// RunRecord mirrors one pipeline run's summary counts.
type RunRecord struct {
	ID         string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time

	Fetched     int
	Scored      int
	Skipped     int
	Filtered    int
	Created     int
	Updated     int
	StoreFailed int
	Generated   int
	Fallbacks   int
	Sent        int
	SendFailed  int
}

func RecordRun(ctx context.Context, db *sql.DB, r RunRecord) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO runs(id, mode, started_at, finished_at,
  fetched, scored, skipped, filtered, created, updated, store_failed,
  generated, fallbacks, sent, send_failed)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?);`,
		r.ID, r.Mode,
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
		r.Fetched, r.Scored, r.Skipped, r.Filtered, r.Created, r.Updated, r.StoreFailed,
		r.Generated, r.Fallbacks, r.Sent, r.SendFailed,
	)
	return err
}

// LastRun returns the most recent run or nil when the ledger is fresh.
func LastRun(ctx context.Context, db *sql.DB) (*RunRecord, error) {
	var r RunRecord
	var started, finished string
	err := db.QueryRowContext(ctx, `
SELECT id, mode, started_at, finished_at,
  fetched, scored, skipped, filtered, created, updated, store_failed,
  generated, fallbacks, sent, send_failed
FROM runs
ORDER BY started_at DESC
LIMIT 1;`).Scan(
		&r.ID, &r.Mode, &started, &finished,
		&r.Fetched, &r.Scored, &r.Skipped, &r.Filtered, &r.Created, &r.Updated, &r.StoreFailed,
		&r.Generated, &r.Fallbacks, &r.Sent, &r.SendFailed,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, started)
	r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	return &r, nil
}
