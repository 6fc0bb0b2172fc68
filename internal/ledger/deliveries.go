package ledger

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusBounced = "bounced"
	StatusReplied = "replied"
)

type Delivery struct {
	Email      string
	RecordID   string
	Subject    string
	DeliveryID string
	Status     string
	Error      string
	RunID      string
	SentAt     time.Time
}

// RecordDelivery appends one attempt, success or failure.
func RecordDelivery(ctx context.Context, db *sql.DB, d Delivery) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO deliveries(email, record_id, subject, delivery_id, status, error, run_id, sent_at)
VALUES(?,?,?,?,?,?,?,?);`,
		normalizeEmail(d.Email), d.RecordID, d.Subject, d.DeliveryID,
		d.Status, d.Error, d.RunID, d.SentAt.UTC().Format(time.RFC3339),
	)
	return err
}

// SeenRecently reports whether a send to this address succeeded inside the
// window. Failed attempts do not count; the pipeline should try again.
func SeenRecently(ctx context.Context, db *sql.DB, email string, window time.Duration) (bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return false, nil
	}
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339)

	var one int
	err := db.QueryRowContext(ctx, `
SELECT 1 FROM deliveries
WHERE email = ? AND status = ? AND sent_at >= ?
LIMIT 1;`, email, StatusSent, cutoff).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Contacted reports whether the address appears in the ledger at all. The
// inbox sweep uses it to skip store lookups for strangers; a false positive
// only costs one remote call.
func Contacted(ctx context.Context, db *sql.DB, email string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return false, nil
	}

	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM deliveries WHERE email = ? LIMIT 1;`, email,
	).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateDeliveryStatus rewrites the status of the newest delivery to the
// address (bounced or replied, from the inbox sweep). Returns false when no
// delivery exists.
func UpdateDeliveryStatus(ctx context.Context, db *sql.DB, email, status string) (bool, error) {
	res, err := db.ExecContext(ctx, `
UPDATE deliveries SET status = ?
WHERE id = (SELECT id FROM deliveries WHERE email = ? ORDER BY sent_at DESC, id DESC LIMIT 1);`,
		status, normalizeEmail(email),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
