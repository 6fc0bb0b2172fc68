// Package store reconciles scored prospects with the external tabular
// store. Idempotency is the hard constraint: rows are keyed on email and
// looked up before every insert, so repeated runs update instead of
// duplicating.
package store

import (
	"context"
	"fmt"
)

type Fields map[string]any

type Row struct {
	ID     string
	Fields Fields
}

func (r Row) Str(field string) string {
	if v, ok := r.Fields[field].(string); ok {
		return v
	}
	return ""
}

// Client is the narrow surface the sync layer needs from the store's API.
type Client interface {
	FindByField(ctx context.Context, table, field, value string) (*Row, error)
	ListByField(ctx context.Context, table, field, value string) ([]Row, error)
	Insert(ctx context.Context, table string, fields Fields) (string, error)
	Update(ctx context.Context, table, recordID string, fields Fields) error
}

// RejectedError is a permanent store-side refusal (bad schema, bad auth).
// Never retried.
type RejectedError struct {
	Status int
	Msg    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("store rejected request (%d): %s", e.Status, e.Msg)
}
