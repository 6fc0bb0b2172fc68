package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bdr-engine/internal/config"
	"bdr-engine/internal/domain"
	"bdr-engine/internal/ledger"
	"bdr-engine/internal/outreach"
	"bdr-engine/internal/rank"
	"bdr-engine/internal/store"
)

type fakeFetcher struct {
	prospects []domain.Prospect
	err       error
	gotMax    int
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(_ context.Context, max int) ([]domain.Prospect, error) {
	f.gotMax = max
	if f.err != nil {
		return nil, f.err
	}
	if max > 0 && len(f.prospects) > max {
		return f.prospects[:max], nil
	}
	return f.prospects, nil
}

type savedMessage struct {
	subject string
	body    string
}

type fakeSyncer struct {
	nextID      int
	upserts     []domain.Prospect
	upsertErrs  map[string]error
	saved       map[string]savedMessage
	sent        map[string]time.Time
	sendFailed  map[string]string
	queuedRows  []store.Row
	listErr     error
	upsertCalls int
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{
		saved:      map[string]savedMessage{},
		sent:       map[string]time.Time{},
		sendFailed: map[string]string{},
	}
}

func (f *fakeSyncer) UpsertBatch(_ context.Context, ps []domain.Prospect) []store.Outcome {
	f.upsertCalls++
	outs := make([]store.Outcome, 0, len(ps))
	for _, p := range ps {
		f.upserts = append(f.upserts, p)
		if err := f.upsertErrs[p.Email]; err != nil {
			outs = append(outs, store.Outcome{Email: p.Email, Err: err})
			continue
		}
		f.nextID++
		outs = append(outs, store.Outcome{
			Email:    p.Email,
			RecordID: fmt.Sprintf("rec%d", f.nextID),
			Created:  true,
		})
	}
	return outs
}

func (f *fakeSyncer) SaveOutreach(_ context.Context, recordID, subject, body string) error {
	f.saved[recordID] = savedMessage{subject: subject, body: body}
	return nil
}

func (f *fakeSyncer) MarkSent(_ context.Context, recordID string, sentAt time.Time) error {
	f.sent[recordID] = sentAt
	return nil
}

func (f *fakeSyncer) MarkSendFailed(_ context.Context, recordID, reason string) error {
	f.sendFailed[recordID] = reason
	return nil
}

func (f *fakeSyncer) ListQueued(_ context.Context) ([]store.Row, error) {
	return f.queuedRows, f.listErr
}

type fakeGenerator struct {
	err      error
	fallback bool
	calls    int
}

func (f *fakeGenerator) Generate(_ context.Context, p domain.Prospect) (outreach.Message, error) {
	f.calls++
	if f.err != nil {
		return outreach.Message{}, f.err
	}
	return outreach.Message{
		Subject:  "About " + p.Company,
		Body:     "Hi " + p.FirstName,
		Fallback: f.fallback,
	}, nil
}

type fakeSender struct {
	failFor map[string]error
	sends   []string
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) (string, error) {
	if err := f.failFor[to]; err != nil {
		return "", err
	}
	f.sends = append(f.sends, to)
	return fmt.Sprintf("d-%d", len(f.sends)), nil
}

func testLedger(t *testing.T) *sql.DB {
	t.Helper()
	db, err := ledger.Open(filepath.Join(t.TempDir(), "bdr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ledger.Migrate(db.Pool))
	return db.Pool
}

func fixtureProspects() []domain.Prospect {
	return []domain.Prospect{
		{FirstName: "Jane", LastName: "Doe", Email: "jane@acme.com", Title: "CTO",
			Company: "Acme", CompanySize: 150, Industry: "Software", Region: "North America"},
		{FirstName: "Bob", LastName: "Reed", Email: "bob@fintech.io", Title: "VP Eng",
			Company: "Fintech.io", CompanySize: 80, Industry: "Fintech", Region: "Europe"},
		{FirstName: "Lo", LastName: "Value", Email: "lo@shop.biz", Title: "CEO",
			Company: "ShopBiz", CompanySize: 20, Industry: "Retail", Region: "Asia"},
		{FirstName: "Missing", LastName: "Industry", Email: "na@blank.co", Title: "CTO",
			Company: "BlankCo", CompanySize: 90, Region: "Europe"},
	}
}

func testDeps(t *testing.T) (Deps, *fakeFetcher, *fakeSyncer, *fakeGenerator, *fakeSender) {
	t.Helper()
	engine, err := rank.New(config.Default().Scoring)
	require.NoError(t, err)

	fetcher := &fakeFetcher{prospects: fixtureProspects()}
	syncer := newFakeSyncer()
	gen := &fakeGenerator{}
	sender := &fakeSender{}

	deps := Deps{
		Engine:    engine,
		Fetcher:   fetcher,
		Syncer:    syncer,
		Generator: gen,
		Sender:    sender,
		DB:        testLedger(t),
	}
	return deps, fetcher, syncer, gen, sender
}

func defaultOpts() Options {
	return Options{MaxLeads: 10, MinScore: 0.6}
}

func TestRunHappyPath(t *testing.T) {
	cfg := config.Default()
	deps, fetcher, syncer, gen, sender := testDeps(t)

	sum, err := Run(context.Background(), cfg, deps, defaultOpts())
	require.NoError(t, err)

	assert.Equal(t, 10, fetcher.gotMax)
	assert.Equal(t, 4, sum.Fetched)
	assert.Equal(t, 3, sum.Scored)
	assert.Equal(t, 1, sum.Skipped, "prospect without industry is skipped")
	assert.Equal(t, 2, sum.Filtered, "retail/asia lead scores under 0.6")
	assert.Equal(t, 2, sum.Created)
	assert.Equal(t, 2, sum.Generated)
	assert.Equal(t, 2, sum.Sent)
	assert.Zero(t, sum.SendFailed)

	// ranked order: the 1.0 lead upserts before the 0.83 lead
	require.Len(t, syncer.upserts, 2)
	assert.Equal(t, "jane@acme.com", syncer.upserts[0].Email)
	assert.Equal(t, "bob@fintech.io", syncer.upserts[1].Email)

	assert.Equal(t, 2, gen.calls)
	require.Contains(t, syncer.saved, "rec1")
	assert.Equal(t, "About Acme", syncer.saved["rec1"].subject)
	assert.Len(t, syncer.sent, 2)
	assert.Equal(t, []string{"jane@acme.com", "bob@fintech.io"}, sender.sends)

	var deliveries int
	require.NoError(t, deps.DB.QueryRow(
		`SELECT COUNT(*) FROM deliveries WHERE status = 'sent';`,
	).Scan(&deliveries))
	assert.Equal(t, 2, deliveries)

	last, err := ledger.LastRun(context.Background(), deps.DB)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, sum.RunID, last.ID)
	assert.Equal(t, "pipeline", last.Mode)
	assert.Equal(t, 2, last.Sent)
}

func TestRunPreviewWritesNothing(t *testing.T) {
	cfg := config.Default()
	deps, _, syncer, gen, sender := testDeps(t)

	opts := defaultOpts()
	opts.Preview = true
	sum, err := Run(context.Background(), cfg, deps, opts)
	require.NoError(t, err)

	assert.Equal(t, "preview", sum.Mode)
	assert.Equal(t, 2, sum.Generated, "preview still composes messages")
	assert.Zero(t, syncer.upsertCalls, "no store writes in preview")
	assert.Empty(t, syncer.saved)
	assert.Empty(t, sender.sends)
	assert.Equal(t, 2, gen.calls)

	var deliveries int
	require.NoError(t, deps.DB.QueryRow(`SELECT COUNT(*) FROM deliveries;`).Scan(&deliveries))
	assert.Zero(t, deliveries)

	last, err := ledger.LastRun(context.Background(), deps.DB)
	require.NoError(t, err)
	require.NotNil(t, last, "preview runs still land in the run history")
	assert.Equal(t, "preview", last.Mode)
}

func TestRunNoEmailLeavesMessagesQueued(t *testing.T) {
	cfg := config.Default()
	deps, _, syncer, _, sender := testDeps(t)

	opts := defaultOpts()
	opts.NoEmail = true
	sum, err := Run(context.Background(), cfg, deps, opts)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Generated)
	assert.Len(t, syncer.saved, 2, "messages are queued on the store rows")
	assert.Empty(t, sender.sends)
	assert.Zero(t, sum.Sent)
	assert.Empty(t, syncer.sent)
}

func TestRunCooldownSuppressesResend(t *testing.T) {
	cfg := config.Default()
	deps, _, syncer, _, sender := testDeps(t)

	require.NoError(t, ledger.RecordDelivery(context.Background(), deps.DB, ledger.Delivery{
		Email: "jane@acme.com", Status: ledger.StatusSent,
		SentAt: time.Now().UTC().Add(-24 * time.Hour),
	}))

	sum, err := Run(context.Background(), cfg, deps, defaultOpts())
	require.NoError(t, err)

	assert.Equal(t, []string{"bob@fintech.io"}, sender.sends, "jane is inside the 30d cooldown")
	assert.Equal(t, 1, sum.Sent)
	assert.Zero(t, sum.SendFailed, "a cooldown skip is not a failure")
	assert.Len(t, syncer.sent, 1)
}

func TestRunSendFailureIsPerRecord(t *testing.T) {
	cfg := config.Default()
	deps, _, syncer, _, sender := testDeps(t)
	sender.failFor = map[string]error{"jane@acme.com": errors.New("mailbox full")}

	sum, err := Run(context.Background(), cfg, deps, defaultOpts())
	require.NoError(t, err, "per-record send failures do not fail the run")

	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, 1, sum.SendFailed)
	assert.Contains(t, syncer.sendFailed["rec1"], "mailbox full")
	assert.NotEmpty(t, sum.Errors)

	var failed int
	require.NoError(t, deps.DB.QueryRow(
		`SELECT COUNT(*) FROM deliveries WHERE status = 'failed';`,
	).Scan(&failed))
	assert.Equal(t, 1, failed)
}

func TestRunGeneratorAuthFailureAborts(t *testing.T) {
	cfg := config.Default()
	deps, _, syncer, gen, sender := testDeps(t)
	gen.err = &outreach.AuthError{Status: 401}

	sum, err := Run(context.Background(), cfg, deps, defaultOpts())
	require.Error(t, err)
	assert.Equal(t, 2, sum.Created, "upserts happened before the generate stage died")
	assert.Zero(t, sum.Generated)
	assert.Empty(t, syncer.saved)
	assert.Empty(t, sender.sends)
}

func TestRunFetchFailureAborts(t *testing.T) {
	cfg := config.Default()
	deps, fetcher, _, _, _ := testDeps(t)
	fetcher.err = errors.New("apollo is down")

	sum, err := Run(context.Background(), cfg, deps, defaultOpts())
	require.Error(t, err)
	assert.Zero(t, sum.Fetched)
	assert.NotEmpty(t, sum.Errors)
}

func TestRunStoreFailureDropsRecordFromSend(t *testing.T) {
	cfg := config.Default()
	deps, _, syncer, gen, sender := testDeps(t)
	syncer.upsertErrs = map[string]error{"jane@acme.com": errors.New("422 unknown field")}

	sum, err := Run(context.Background(), cfg, deps, defaultOpts())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.StoreFailed)
	assert.Equal(t, 1, sum.Created)
	assert.Equal(t, 1, gen.calls, "no message for the record that failed to upsert")
	assert.Equal(t, []string{"bob@fintech.io"}, sender.sends)
}

func TestRunSendOnlyDrainsQueue(t *testing.T) {
	cfg := config.Default()
	deps, _, syncer, _, sender := testDeps(t)
	syncer.queuedRows = []store.Row{
		{ID: "rec9", Fields: store.Fields{
			store.FieldEmail:           "queued@acme.com",
			store.FieldOutreachSubject: "Hello",
			store.FieldOutreachMessage: "Queued body",
		}},
		{ID: "rec10", Fields: store.Fields{
			store.FieldEmail: "empty@acme.com",
		}},
	}

	sum, err := RunSendOnly(context.Background(), cfg, deps, Options{})
	require.NoError(t, err)

	assert.Equal(t, "send-only", sum.Mode)
	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, []string{"queued@acme.com"}, sender.sends)
	assert.Contains(t, syncer.sent, "rec9")
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "no message body")
}

func TestRunSendOnlyPreviewSendsNothing(t *testing.T) {
	cfg := config.Default()
	deps, _, syncer, _, sender := testDeps(t)
	syncer.queuedRows = []store.Row{
		{ID: "rec9", Fields: store.Fields{
			store.FieldEmail:           "queued@acme.com",
			store.FieldOutreachSubject: "Hello",
			store.FieldOutreachMessage: "Queued body",
		}},
	}

	sum, err := RunSendOnly(context.Background(), cfg, deps, Options{Preview: true})
	require.NoError(t, err)
	assert.Zero(t, sum.Sent)
	assert.Empty(t, sender.sends)
	assert.Empty(t, syncer.sent)
}

func TestSummaryStringListsErrors(t *testing.T) {
	s := Summary{
		RunID: "run-1", Mode: "pipeline",
		StartedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 3, 1, 9, 0, 2, 0, time.UTC),
		Fetched:    4, Scored: 3, Skipped: 1, Filtered: 2,
		Sent: 1, SendFailed: 1,
		Errors: []string{"send bob@x.com: mailbox full"},
	}
	out := s.String()
	assert.Contains(t, out, "fetched=4")
	assert.Contains(t, out, "sent=1 failed=1")
	assert.Contains(t, out, "mailbox full")
}
