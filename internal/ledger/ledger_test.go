package ledger

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "bdr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db.Pool))
	return db.Pool
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTest(t)
	require.NoError(t, Migrate(db))

	var v int
	require.NoError(t, db.QueryRow(`PRAGMA user_version;`).Scan(&v))
	assert.Equal(t, 1, v)
}

func TestSeenRecentlyHonorsWindow(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	require.NoError(t, RecordDelivery(ctx, db, Delivery{
		Email:      "jane@acme.com",
		RecordID:   "rec001",
		Subject:    "Quick question",
		DeliveryID: "d-1",
		Status:     StatusSent,
		RunID:      "run-1",
		SentAt:     time.Now().UTC().Add(-48 * time.Hour),
	}))

	seen, err := SeenRecently(ctx, db, "jane@acme.com", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, seen, "send is older than the window")

	seen, err = SeenRecently(ctx, db, "jane@acme.com", 72*time.Hour)
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = SeenRecently(ctx, db, "stranger@x.com", 72*time.Hour)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestFailedAttemptDoesNotSuppressResend(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	require.NoError(t, RecordDelivery(ctx, db, Delivery{
		Email:  "jane@acme.com",
		Status: StatusFailed,
		Error:  "mailbox full",
		SentAt: time.Now().UTC(),
	}))

	seen, err := SeenRecently(ctx, db, "jane@acme.com", 30*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, seen)

	contacted, err := Contacted(ctx, db, "jane@acme.com")
	require.NoError(t, err)
	assert.True(t, contacted, "failed attempts still mark the address as known")
}

func TestEmailMatchingIsCaseInsensitive(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	require.NoError(t, RecordDelivery(ctx, db, Delivery{
		Email:  "Jane@Acme.COM",
		Status: StatusSent,
		SentAt: time.Now().UTC(),
	}))

	seen, err := SeenRecently(ctx, db, "jane@acme.com", time.Hour)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestUpdateDeliveryStatusRewritesNewest(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	require.NoError(t, RecordDelivery(ctx, db, Delivery{
		Email: "jane@acme.com", DeliveryID: "d-old", Status: StatusSent,
		SentAt: time.Now().UTC().Add(-40 * 24 * time.Hour),
	}))
	require.NoError(t, RecordDelivery(ctx, db, Delivery{
		Email: "jane@acme.com", DeliveryID: "d-new", Status: StatusSent,
		SentAt: time.Now().UTC(),
	}))

	ok, err := UpdateDeliveryStatus(ctx, db, "jane@acme.com", StatusBounced)
	require.NoError(t, err)
	assert.True(t, ok)

	var status, deliveryID string
	require.NoError(t, db.QueryRowContext(ctx, `
SELECT status, delivery_id FROM deliveries
WHERE email = 'jane@acme.com'
ORDER BY sent_at DESC LIMIT 1;`).Scan(&status, &deliveryID))
	assert.Equal(t, StatusBounced, status)
	assert.Equal(t, "d-new", deliveryID)

	var oldStatus string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT status FROM deliveries WHERE delivery_id = 'd-old';`,
	).Scan(&oldStatus))
	assert.Equal(t, StatusSent, oldStatus, "older rows keep their status")

	ok, err = UpdateDeliveryStatus(ctx, db, "stranger@x.com", StatusReplied)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordRunAndLastRun(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	last, err := LastRun(ctx, db)
	require.NoError(t, err)
	assert.Nil(t, last, "fresh ledger has no runs")

	early := RunRecord{
		ID: "run-1", Mode: "pipeline",
		StartedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 3, 1, 9, 2, 0, 0, time.UTC),
		Fetched:    10, Scored: 9, Skipped: 1, Filtered: 4,
		Created: 3, Updated: 1, Generated: 4, Sent: 4,
	}
	late := early
	late.ID = "run-2"
	late.StartedAt = early.StartedAt.Add(time.Hour)
	late.FinishedAt = early.FinishedAt.Add(time.Hour)
	late.Sent = 2
	late.SendFailed = 2

	require.NoError(t, RecordRun(ctx, db, early))
	require.NoError(t, RecordRun(ctx, db, late))

	last, err = LastRun(ctx, db)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-2", last.ID)
	assert.Equal(t, 2, last.Sent)
	assert.Equal(t, 2, last.SendFailed)
	assert.Equal(t, 10, last.Fetched)
	assert.True(t, last.StartedAt.Equal(late.StartedAt))
}
