package source

import (
	"context"

	"bdr-engine/internal/domain"
)

// Fetcher produces raw prospect records. Implementations paginate
// internally and stop once max records have been collected.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, max int) ([]domain.Prospect, error)
}
