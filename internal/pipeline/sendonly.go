package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"bdr-engine/internal/config"
	"bdr-engine/internal/inbox"
	"bdr-engine/internal/store"
)

// RunSendOnly drains every row queued in the store through the sender. It
// picks up what a -no-email run (or an aborted send stage) left behind.
func RunSendOnly(ctx context.Context, cfg config.Config, deps Deps, opts Options) (Summary, error) {
	sum := Summary{RunID: uuid.NewString(), Mode: "send-only", StartedAt: time.Now().UTC()}
	r := &runner{cfg: cfg, deps: deps, opts: opts, sum: &sum}

	rows, err := deps.Syncer.ListQueued(ctx)
	if err != nil {
		return r.finish(fmt.Errorf("list queued: %w", err))
	}
	log.Printf("[send] queued=%d", len(rows))

	var items []sendItem
	for _, row := range rows {
		email := row.Str(store.FieldEmail)
		body := row.Str(store.FieldOutreachMessage)
		subject := row.Str(store.FieldOutreachSubject)
		if subject == "" {
			subject = cfg.Outreach.DefaultSubject
		}
		if email == "" {
			r.fail("send %s: record has no email", row.ID)
			continue
		}
		if body == "" {
			r.fail("send %s: record has no message body", email)
			continue
		}
		items = append(items, sendItem{recordID: row.ID, email: email, subject: subject, body: body})
	}

	if opts.Preview {
		for _, it := range items {
			log.Printf("[send] preview to=%q subject=%q", it.email, it.subject)
		}
		log.Printf("[send] preview: %d queued message(s) would be sent", len(items))
		return r.finish(nil)
	}

	r.send(ctx, items)
	return r.finish(nil)
}

// RunSweep checks the inbox for replies and bounces and reflects them in
// the store and ledger.
func RunSweep(ctx context.Context, deps Deps) (inbox.Result, error) {
	if deps.Sweeper == nil {
		return inbox.Result{}, errors.New("inbox sweep is not configured")
	}
	res, err := deps.Sweeper.Sweep(ctx)
	if err != nil {
		return res, fmt.Errorf("sweep: %w", err)
	}
	log.Printf("[inbox] swept scanned=%d replies=%d bounces=%d", res.Scanned, res.Replies, res.Bounces)
	return res, nil
}
