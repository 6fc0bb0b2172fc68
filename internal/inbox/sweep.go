package inbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/mail"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"bdr-engine/internal/config"
	"bdr-engine/internal/ledger"
	"bdr-engine/internal/retry"
	"bdr-engine/internal/store"
)

const maxBodyBytes = 64 << 10

// StatusStore is the slice of the sync layer the sweep needs.
type StatusStore interface {
	FindByEmail(ctx context.Context, email string) (*store.Row, error)
	MarkStatus(ctx context.Context, recordID, status string) error
}

type Sweeper struct {
	cfg      config.Inbox
	password string
	store    StatusStore
	db       *sql.DB
}

func NewSweeper(cfg config.Inbox, password string, st StatusStore, db *sql.DB) *Sweeper {
	return &Sweeper{cfg: cfg, password: password, store: st, db: db}
}

type Result struct {
	Scanned int
	Replies int
	Bounces int
}

// Sweep fetches unseen mail from the lookback window and applies every
// classified hit to the store and the ledger. The mailbox is opened
// read-only; nothing gets marked seen or deleted.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	msgs, err := s.fetchUnseen(ctx)
	if err != nil {
		return Result{}, err
	}
	log.Printf("[inbox] unseen=%d window=%dd", len(msgs), s.cfg.LookbackDays)
	return s.apply(ctx, msgs)
}

func (s *Sweeper) fetchUnseen(ctx context.Context) ([]Message, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.IMAPHost, s.cfg.IMAPPort)
	c, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: s.cfg.IMAPHost},
	})
	if err != nil {
		return nil, retry.MarkTransient(fmt.Errorf("imap dial %s: %w", addr, err))
	}
	defer func() {
		if err := c.Logout().Wait(); err != nil {
			log.Printf("[inbox] logout: %v", err)
		}
		_ = c.Close()
	}()

	// best-effort close on cancel so a hung server cannot stall the run
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	if err := c.Login(s.cfg.Username, s.password).Wait(); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(s.cfg.Mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", s.cfg.Mailbox, err)
	}

	lookback := s.cfg.LookbackDays
	if lookback <= 0 {
		lookback = 7
	}
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
		Since:   time.Now().AddDate(0, 0, -lookback),
	}
	searchData, err := c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, retry.MarkTransient(fmt.Errorf("imap search: %w", err))
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	bodyAll := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierNone,
		Peek:      true,
	}
	fetchCmd := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	var out []Message
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			return nil, retry.MarkTransient(fmt.Errorf("imap fetch: %w", err))
		}

		var m Message
		if buf.Envelope != nil {
			m.Subject = buf.Envelope.Subject
			m.Date = buf.Envelope.Date
			if len(buf.Envelope.From) > 0 {
				m.From = buf.Envelope.From[0].Addr()
			}
		}
		if raw := buf.FindBodySection(bodyAll); raw != nil {
			m.Body = bodyText(raw)
		}
		out = append(out, m)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, retry.MarkTransient(fmt.Errorf("imap fetch close: %w", err))
	}
	return out, nil
}

// bodyText strips the headers off a raw RFC822 message. The classifier only
// pattern-matches, so multipart decoding is not worth the trouble.
func bodyText(raw []byte) string {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		if len(raw) > maxBodyBytes {
			raw = raw[:maxBodyBytes]
		}
		return string(raw)
	}
	body, _ := io.ReadAll(io.LimitReader(msg.Body, maxBodyBytes))
	return string(body)
}

// apply walks the classified hits and flips store + ledger status for the
// addresses this pipeline actually contacted. Everything else is ignored.
func (s *Sweeper) apply(ctx context.Context, msgs []Message) (Result, error) {
	res := Result{Scanned: len(msgs)}
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		hit, ok := Classify(m, s.cfg.Username)
		if !ok {
			continue
		}

		contacted, err := ledger.Contacted(ctx, s.db, hit.Email)
		if err != nil {
			return res, fmt.Errorf("ledger lookup %s: %w", hit.Email, err)
		}
		if !contacted {
			continue
		}

		row, err := s.store.FindByEmail(ctx, hit.Email)
		if err != nil {
			log.Printf("[inbox] store lookup failed email=%q: %v", hit.Email, err)
			continue
		}
		if row == nil {
			continue
		}

		switch hit.Kind {
		case KindReply:
			err = s.store.MarkStatus(ctx, row.ID, store.StatusReplied)
			if err == nil {
				_, err = ledger.UpdateDeliveryStatus(ctx, s.db, hit.Email, ledger.StatusReplied)
				res.Replies++
			}
		case KindBounce:
			err = s.store.MarkStatus(ctx, row.ID, store.StatusBounced)
			if err == nil {
				_, err = ledger.UpdateDeliveryStatus(ctx, s.db, hit.Email, ledger.StatusBounced)
				res.Bounces++
			}
		}
		if err != nil {
			log.Printf("[inbox] update failed email=%q kind=%s: %v", hit.Email, hit.Kind, err)
			continue
		}
		log.Printf("[inbox] %s email=%q subject=%q", hit.Kind, hit.Email, hit.Subject)
	}
	return res, nil
}
