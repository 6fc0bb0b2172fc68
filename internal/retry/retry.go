package retry

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"
)

// Transient wraps errors worth retrying: timeouts, connection resets,
// 429s and 5xx-class responses. Everything else is permanent.
type Transient struct {
	Err error
}

func (e *Transient) Error() string { return e.Err.Error() }
func (e *Transient) Unwrap() error { return e.Err }

func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Err: err}
}

func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// RetryableStatus reports whether an HTTP status code counts as transient.
func RetryableStatus(code int) bool {
	return code == 429 || code >= 500
}

// Policy is a bounded exponential backoff shared by every external-call site.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // extra random fraction of the delay, 0..1
}

// Do runs fn, retrying transient failures up to MaxAttempts. Permanent
// errors return immediately. The last transient error is returned still
// marked, so callers can tell an exhausted retry from a rejection.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if i == attempts {
			break
		}
		d := p.delay(i)
		log.Printf("[retry] %s attempt %d/%d: %v (next try in %s)", op, i, attempts, err, d.Round(time.Millisecond))
		if serr := sleep(ctx, d); serr != nil {
			return serr
		}
	}
	return err
}

func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
