package cache

import (
	"context"
	"time"

	"salesync/backend/internal/domain"
)

// SummaryCache stores dashboard summaries per date filter. Entries belong to a
// generation; Invalidate starts a new one and nothing written under an older
// generation is served again. Callers read Generation before loading the data they
// cache and pass it to Get and Set, so a summary computed across an invalidation is
// never stored as current.
type SummaryCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64, filter domain.DateFilter) (*domain.Summary, bool, error)
	Set(ctx context.Context, gen int64, filter domain.DateFilter, value *domain.Summary, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopSummaryCache) Get(_ context.Context, _ int64, _ domain.DateFilter) (*domain.Summary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ int64, _ domain.DateFilter, _ *domain.Summary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Invalidate(_ context.Context) error {
	return nil
}
