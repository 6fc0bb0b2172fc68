package store

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bdr-engine/internal/config"
	"bdr-engine/internal/domain"
	"bdr-engine/internal/retry"
)

// Syncer serializes all remote calls through one rate limiter (the store
// enforces a per-second quota) and retries only transient failures.
type Syncer struct {
	client   Client
	table    string
	keyField string
	calls    *rate.Limiter
	policy   retry.Policy
}

func NewSyncer(client Client, cfg config.Store) *Syncer {
	interval := time.Duration(cfg.WriteIntervalMS) * time.Millisecond
	return &Syncer{
		client:   client,
		table:    cfg.Airtable.Table,
		keyField: cfg.KeyField,
		calls:    rate.NewLimiter(rate.Every(interval), 1),
		policy: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
			Jitter:      0.2,
		},
	}
}

// Outcome is the per-record result of an upsert.
type Outcome struct {
	Email    string
	RecordID string
	Created  bool
	Err      error
}

// Upsert looks the prospect up by email and updates the existing row or
// inserts a new one. The lookup always happens first; two concurrent runs
// can still race find-then-insert into a duplicate, which is a known
// limitation of a store without unique constraints.
func (s *Syncer) Upsert(ctx context.Context, p domain.Prospect) Outcome {
	out := Outcome{Email: p.Email}
	if strings.TrimSpace(p.Email) == "" {
		out.Err = domain.Invalid("email", "is empty")
		return out
	}

	var existing *Row
	err := s.call(ctx, "find", func() error {
		var ferr error
		existing, ferr = s.client.FindByField(ctx, s.table, s.keyField, p.Email)
		return ferr
	})
	if err != nil {
		out.Err = fmt.Errorf("lookup %s: %w", p.Email, err)
		return out
	}

	fields := prospectFields(p)
	if existing != nil {
		out.RecordID = existing.ID
		if err := s.call(ctx, "update", func() error {
			return s.client.Update(ctx, s.table, existing.ID, fields)
		}); err != nil {
			out.Err = fmt.Errorf("update %s: %w", p.Email, err)
		}
		return out
	}

	fields[FieldStatus] = StatusNew
	var id string
	err = s.call(ctx, "insert", func() error {
		var ierr error
		id, ierr = s.client.Insert(ctx, s.table, fields)
		return ierr
	})
	if err != nil {
		out.Err = fmt.Errorf("insert %s: %w", p.Email, err)
		return out
	}
	out.RecordID = id
	out.Created = true
	return out
}

// UpsertBatch applies Upsert to each record in order. One record's failure
// never aborts the rest; every record gets an outcome.
func (s *Syncer) UpsertBatch(ctx context.Context, ps []domain.Prospect) []Outcome {
	outs := make([]Outcome, 0, len(ps))
	for _, p := range ps {
		if ctx.Err() != nil {
			outs = append(outs, Outcome{Email: p.Email, Err: ctx.Err()})
			continue
		}
		out := s.Upsert(ctx, p)
		if out.Err != nil {
			log.Printf("[store] upsert failed email=%q: %v", p.Email, out.Err)
		}
		outs = append(outs, out)
	}
	return outs
}

// SaveOutreach attaches the generated message and queues the row for
// sending.
func (s *Syncer) SaveOutreach(ctx context.Context, recordID, subject, body string) error {
	return s.call(ctx, "save outreach", func() error {
		return s.client.Update(ctx, s.table, recordID, Fields{
			FieldOutreachSubject: subject,
			FieldOutreachMessage: body,
			FieldStatus:          StatusQueued,
		})
	})
}

func (s *Syncer) MarkSent(ctx context.Context, recordID string, sentAt time.Time) error {
	return s.call(ctx, "mark sent", func() error {
		return s.client.Update(ctx, s.table, recordID, Fields{
			FieldStatus: StatusSent,
			FieldSentAt: sentAt.UTC().Format(time.RFC3339),
		})
	})
}

func (s *Syncer) MarkSendFailed(ctx context.Context, recordID, reason string) error {
	return s.call(ctx, "mark send failed", func() error {
		return s.client.Update(ctx, s.table, recordID, Fields{
			FieldStatus:    StatusSendFailed,
			FieldSendError: reason,
		})
	})
}

// MarkStatus sets just the status column; the inbox sweep uses it for
// Replied and Bounced.
func (s *Syncer) MarkStatus(ctx context.Context, recordID, status string) error {
	return s.call(ctx, "mark status", func() error {
		return s.client.Update(ctx, s.table, recordID, Fields{FieldStatus: status})
	})
}

// ListQueued returns rows carrying an outreach message that was never sent.
func (s *Syncer) ListQueued(ctx context.Context) ([]Row, error) {
	var rows []Row
	err := s.call(ctx, "list queued", func() error {
		var lerr error
		rows, lerr = s.client.ListByField(ctx, s.table, FieldStatus, StatusQueued)
		return lerr
	})
	return rows, err
}

func (s *Syncer) FindByEmail(ctx context.Context, email string) (*Row, error) {
	var row *Row
	err := s.call(ctx, "find", func() error {
		var ferr error
		row, ferr = s.client.FindByField(ctx, s.table, s.keyField, email)
		return ferr
	})
	return row, err
}

// call runs one remote operation under the shared throttle and retry
// policy. The limiter wait sits inside the retried closure so retries
// honor the write quota too.
func (s *Syncer) call(ctx context.Context, op string, fn func() error) error {
	return s.policy.Do(ctx, "store "+op, func() error {
		if err := s.calls.Wait(ctx); err != nil {
			return err
		}
		return fn()
	})
}
