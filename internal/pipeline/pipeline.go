// Package pipeline wires the stages together: fetch -> score -> rank ->
// filter -> sync -> enrich -> generate -> send. Each stage gets the
// collaborators through narrow interfaces so tests can swap any of them.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"bdr-engine/internal/config"
	"bdr-engine/internal/domain"
	"bdr-engine/internal/inbox"
	"bdr-engine/internal/ledger"
	"bdr-engine/internal/mail"
	"bdr-engine/internal/outreach"
	"bdr-engine/internal/rank"
	"bdr-engine/internal/source"
	"bdr-engine/internal/store"
)

// Syncer is the slice of the store layer the pipeline drives.
type Syncer interface {
	UpsertBatch(ctx context.Context, ps []domain.Prospect) []store.Outcome
	SaveOutreach(ctx context.Context, recordID, subject, body string) error
	MarkSent(ctx context.Context, recordID string, sentAt time.Time) error
	MarkSendFailed(ctx context.Context, recordID, reason string) error
	ListQueued(ctx context.Context) ([]store.Row, error)
}

type Generator interface {
	Generate(ctx context.Context, p domain.Prospect) (outreach.Message, error)
}

type Enricher interface {
	EnrichAll(ctx context.Context, ps []domain.Prospect) []domain.Prospect
}

type Sweeper interface {
	Sweep(ctx context.Context) (inbox.Result, error)
}

// Deps carries the run's collaborators. A dep may be nil when the selected
// mode never touches it: preview runs skip the store and the sender,
// enrichment is optional, and the sweeper only exists for inbox modes.
type Deps struct {
	Engine    *rank.Engine
	Fetcher   source.Fetcher
	Syncer    Syncer
	Enricher  Enricher
	Generator Generator
	Sender    mail.Sender
	Sweeper   Sweeper
	DB        *sql.DB // delivery ledger
}

// Options are the per-run flags.
type Options struct {
	MaxLeads     int
	MinScore     float64
	Preview      bool
	NoEmail      bool
	ForceRefresh bool
	Demo         bool
}

// Summary is the run report: persisted to the ledger, logged, and printed.
type Summary struct {
	RunID      string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time

	Fetched     int
	Scored      int
	Skipped     int
	Ranked      int
	Filtered    int
	Created     int
	Updated     int
	StoreFailed int
	Generated   int
	Fallbacks   int
	Sent        int
	SendFailed  int

	Errors []string
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s) finished in %s\n", s.RunID, s.Mode, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "  leads:    fetched=%d scored=%d skipped=%d kept=%d\n", s.Fetched, s.Scored, s.Skipped, s.Filtered)
	fmt.Fprintf(&b, "  store:    created=%d updated=%d failed=%d\n", s.Created, s.Updated, s.StoreFailed)
	fmt.Fprintf(&b, "  outreach: generated=%d fallbacks=%d\n", s.Generated, s.Fallbacks)
	fmt.Fprintf(&b, "  send:     sent=%d failed=%d", s.Sent, s.SendFailed)
	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "\n  errors (%d):", len(s.Errors))
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "\n    - %s", e)
		}
	}
	return b.String()
}

type runner struct {
	cfg  config.Config
	deps Deps
	opts Options
	sum  *Summary
}

// Run executes the full pipeline once. Per-record failures land in the
// summary; the returned error is reserved for stage-level hard failures
// (fetch failed, credentials rejected, context cancelled).
func Run(ctx context.Context, cfg config.Config, deps Deps, opts Options) (Summary, error) {
	sum := Summary{
		RunID:     uuid.NewString(),
		Mode:      "pipeline",
		StartedAt: time.Now().UTC(),
	}
	if opts.Preview {
		sum.Mode = "preview"
	}
	r := &runner{cfg: cfg, deps: deps, opts: opts, sum: &sum}

	log.Printf("[pipeline] run=%s mode=%s source=%s max=%d min_score=%.2f no_email=%v force_refresh=%v",
		sum.RunID, sum.Mode, deps.Fetcher.Name(), opts.MaxLeads, opts.MinScore, opts.NoEmail, opts.ForceRefresh)

	prospects, err := deps.Fetcher.Fetch(ctx, opts.MaxLeads)
	if err != nil {
		return r.finish(fmt.Errorf("fetch: %w", err))
	}
	sum.Fetched = len(prospects)
	if len(prospects) == 0 {
		log.Printf("[pipeline] no leads fetched, nothing to do")
		return r.finish(nil)
	}
	if err := ctx.Err(); err != nil {
		return r.finish(err)
	}

	scored, skipped := deps.Engine.ScoreAll(ctx, prospects)
	sum.Scored = len(scored)
	sum.Skipped = len(skipped)
	for _, sk := range skipped {
		log.Printf("[pipeline] skipped email=%q: %s", sk.Prospect.Email, sk.Reason)
		r.fail("score %s: %s", sk.Prospect.Email, sk.Reason)
	}
	stats := deps.Engine.Summarize(scored)
	log.Printf("[pipeline] scored=%d avg=%.3f top=%.3f bottom=%.3f", stats.Count, stats.Average, stats.Top, stats.Bottom)

	ranked := rank.Rank(scored)
	sum.Ranked = len(ranked)
	kept := rank.Filter(ranked, opts.MinScore)
	sum.Filtered = len(kept)
	log.Printf("[pipeline] kept=%d of %d (min_score=%.2f)", len(kept), len(ranked), opts.MinScore)
	if len(kept) == 0 {
		return r.finish(nil)
	}
	if err := ctx.Err(); err != nil {
		return r.finish(err)
	}

	batch := make([]domain.Prospect, len(kept))
	for i, s := range kept {
		batch[i] = s.Prospect
	}

	// sync: preview skips every remote write, so records have no store row
	recordIDs := make([]string, len(batch))
	if !opts.Preview {
		outs := r.deps.Syncer.UpsertBatch(ctx, batch)
		for i, out := range outs {
			switch {
			case out.Err != nil:
				sum.StoreFailed++
				r.fail("store %s: %v", out.Email, out.Err)
			case out.Created:
				sum.Created++
				recordIDs[i] = out.RecordID
			default:
				sum.Updated++
				recordIDs[i] = out.RecordID
			}
		}
		log.Printf("[pipeline] store created=%d updated=%d failed=%d", sum.Created, sum.Updated, sum.StoreFailed)
	}
	if err := ctx.Err(); err != nil {
		return r.finish(err)
	}

	if r.deps.Enricher != nil && r.cfg.Enrich.Enabled {
		batch = r.deps.Enricher.EnrichAll(ctx, batch)
	}
	if err := ctx.Err(); err != nil {
		return r.finish(err)
	}

	items, err := r.generate(ctx, batch, recordIDs)
	if err != nil {
		return r.finish(err)
	}
	if err := ctx.Err(); err != nil {
		return r.finish(err)
	}

	if opts.Preview {
		log.Printf("[pipeline] preview: %d message(s) composed, nothing written or sent", len(items))
		return r.finish(nil)
	}
	if opts.NoEmail {
		log.Printf("[pipeline] no-email: %d message(s) left queued in the store", len(items))
		return r.finish(nil)
	}

	r.send(ctx, items)
	return r.finish(nil)
}

type sendItem struct {
	recordID string
	email    string
	subject  string
	body     string
}

// generate builds a message per prospect and queues it on the store row.
// recordIDs align with batch; an empty ID means the upsert failed (or the
// run is a preview) and the record is display-only.
func (r *runner) generate(ctx context.Context, batch []domain.Prospect, recordIDs []string) ([]sendItem, error) {
	var items []sendItem
	for i, p := range batch {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		if !r.opts.Preview && recordIDs[i] == "" {
			continue // no store row to attach the message to
		}

		msg, err := r.deps.Generator.Generate(ctx, p)
		if err != nil {
			if isAuthErr(err) {
				return items, fmt.Errorf("generate: %w", err)
			}
			r.fail("generate %s: %v", p.Email, err)
			continue
		}
		r.sum.Generated++
		if msg.Fallback {
			r.sum.Fallbacks++
		}

		if r.opts.Preview {
			printPreview(p, msg)
			continue
		}
		if err := r.deps.Syncer.SaveOutreach(ctx, recordIDs[i], msg.Subject, msg.Body); err != nil {
			r.sum.StoreFailed++
			r.fail("queue %s: %v", p.Email, err)
			continue
		}
		items = append(items, sendItem{recordID: recordIDs[i], email: p.Email, subject: msg.Subject, body: msg.Body})
	}
	return items, nil
}

// send drains this run's queued items through the sender, gated by the
// ledger cooldown so re-runs never double-send.
func (r *runner) send(ctx context.Context, items []sendItem) {
	window := time.Duration(r.cfg.Mail.ResendCooldownDays) * 24 * time.Hour
	for _, it := range items {
		if ctx.Err() != nil {
			r.fail("send %s: %v", it.email, ctx.Err())
			continue
		}

		if window > 0 {
			seen, err := ledger.SeenRecently(ctx, r.deps.DB, it.email, window)
			if err != nil {
				// can't prove the cooldown, so leave the row queued
				r.fail("send %s: cooldown check: %v", it.email, err)
				continue
			}
			if seen {
				log.Printf("[send] cooldown, skipping email=%q (last send < %dd ago)", it.email, r.cfg.Mail.ResendCooldownDays)
				continue
			}
		}

		deliveryID, err := r.deps.Sender.Send(ctx, it.email, it.subject, it.body)
		if err != nil {
			r.sum.SendFailed++
			r.fail("send %s: %v", it.email, err)
			if merr := r.deps.Syncer.MarkSendFailed(ctx, it.recordID, err.Error()); merr != nil {
				r.fail("mark send-failed %s: %v", it.email, merr)
			}
			r.recordDelivery(ctx, it, "", ledger.StatusFailed, err.Error())
			continue
		}

		r.sum.Sent++
		log.Printf("[send] sent email=%q delivery=%s", it.email, deliveryID)
		if merr := r.deps.Syncer.MarkSent(ctx, it.recordID, time.Now().UTC()); merr != nil {
			r.fail("mark sent %s: %v", it.email, merr)
		}
		r.recordDelivery(ctx, it, deliveryID, ledger.StatusSent, "")
	}
}

func (r *runner) recordDelivery(ctx context.Context, it sendItem, deliveryID, status, errMsg string) {
	err := ledger.RecordDelivery(ctx, r.deps.DB, ledger.Delivery{
		Email:      it.email,
		RecordID:   it.recordID,
		Subject:    it.subject,
		DeliveryID: deliveryID,
		Status:     status,
		Error:      errMsg,
		RunID:      r.sum.RunID,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[send] ledger write failed email=%q: %v", it.email, err)
	}
}

func (r *runner) fail(format string, args ...any) {
	r.sum.Errors = append(r.sum.Errors, fmt.Sprintf(format, args...))
}

// finish stamps the summary, persists it, and logs the outcome. The run row
// is written even for cancelled runs so the history shows them.
func (r *runner) finish(err error) (Summary, error) {
	r.sum.FinishedAt = time.Now().UTC()
	if err != nil {
		r.fail("run: %v", err)
	}

	rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rerr := ledger.RecordRun(rctx, r.deps.DB, toRunRecord(*r.sum)); rerr != nil {
		log.Printf("[pipeline] run history write failed: %v", rerr)
	}

	log.Printf("[pipeline] done run=%s sent=%d failed=%d errors=%d", r.sum.RunID, r.sum.Sent, r.sum.SendFailed, len(r.sum.Errors))
	return *r.sum, err
}

func toRunRecord(s Summary) ledger.RunRecord {
	return ledger.RunRecord{
		ID:          s.RunID,
		Mode:        s.Mode,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
		Fetched:     s.Fetched,
		Scored:      s.Scored,
		Skipped:     s.Skipped,
		Filtered:    s.Filtered,
		Created:     s.Created,
		Updated:     s.Updated,
		StoreFailed: s.StoreFailed,
		Generated:   s.Generated,
		Fallbacks:   s.Fallbacks,
		Sent:        s.Sent,
		SendFailed:  s.SendFailed,
	}
}

func printPreview(p domain.Prospect, msg outreach.Message) {
	body := msg.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	fmt.Printf("\nEMAIL PREVIEW for %s (%s)\n", p.FullName(), p.Email)
	fmt.Printf("  Company: %s (%d employees)\n", p.Company, p.CompanySize)
	fmt.Printf("  Score: %.3f  Reasons: %s\n", p.Score, strings.Join(p.ScoreReasons, ", "))
	fmt.Printf("  Subject: %s\n", msg.Subject)
	fmt.Printf("  Body: %s\n", body)
	fmt.Println(strings.Repeat("-", 70))
}

func isAuthErr(err error) bool {
	var auth *outreach.AuthError
	return errors.As(err, &auth)
}
