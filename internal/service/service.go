package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"salesync/backend/internal/cache"
	"salesync/backend/internal/domain"
	"salesync/backend/internal/report"
	"salesync/backend/internal/source"
	"salesync/backend/internal/store"
)

var (
	ErrConfirmationRequired = errors.New("confirmation token required to clear sales")
	ErrClearDisabled        = errors.New("bulk clear is disabled: CLEAR_CONFIRMATION_TOKEN is not set")
	ErrNoSource             = errors.New("no row source configured")
)

type Options struct {
	CacheTTL               time.Duration
	ClearConfirmationToken string
}

type Service struct {
	repo       store.Repository
	rows       source.RowSource
	summaries  cache.SummaryCache
	cacheTTL   time.Duration
	clearToken string
	logger     *zap.Logger
}

func New(repo store.Repository, rows source.RowSource, summaries cache.SummaryCache, logger *zap.Logger, opts Options) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	return &Service{
		repo:       repo,
		rows:       rows,
		summaries:  summaries,
		cacheTTL:   opts.CacheTTL,
		clearToken: strings.TrimSpace(opts.ClearConfirmationToken),
		logger:     logger,
	}
}

// Dashboard aggregates the sales inside filter, serving repeated filters from the cache.
// The cache generation is read before the sales so a summary that straddles a sync
// is never stored as current.
func (s *Service) Dashboard(ctx context.Context, filter domain.DateFilter) (domain.Summary, error) {
	gen, err := s.summaries.Generation(ctx)
	if err != nil {
		s.logger.Warn("summary cache generation read failed", zap.Error(err))
		return s.aggregate(ctx, filter)
	}

	cached, ok, err := s.summaries.Get(ctx, gen, filter)
	if err != nil {
		s.logger.Warn("summary cache read failed", zap.String("filter", filter.CacheKey()), zap.Error(err))
	}
	if ok && cached != nil {
		return *cached, nil
	}

	summary, err := s.aggregate(ctx, filter)
	if err != nil {
		return domain.Summary{}, err
	}
	if err := s.summaries.Set(ctx, gen, filter, &summary, s.cacheTTL); err != nil {
		s.logger.Warn("summary cache write failed", zap.String("filter", filter.CacheKey()), zap.Error(err))
	}
	return summary, nil
}

func (s *Service) aggregate(ctx context.Context, filter domain.DateFilter) (domain.Summary, error) {
	sales, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.Summary{}, err
	}
	return report.Aggregate(sales, filter), nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.DateFilter) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

// RecordSale creates a single sale by hand. It fails with store.ErrDuplicateSale when the
// product already has a sale on that date; syncing is the way to overwrite.
func (s *Service) RecordSale(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	if err := store.ValidateSale(sale); err != nil {
		return domain.Sale{}, err
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}
	s.invalidate(ctx)
	s.logger.Info("sale recorded", zap.String("product", created.Product), zap.String("date", created.Date.Format(domain.DateLayout)))
	return *created, nil
}

// ClearSales deletes every sale. token must match the configured confirmation token;
// without one configured the operation is refused outright.
func (s *Service) ClearSales(ctx context.Context, token string) (int64, error) {
	if s.clearToken == "" {
		return 0, ErrClearDisabled
	}
	token = strings.TrimSpace(token)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.clearToken)) != 1 {
		return 0, ErrConfirmationRequired
	}

	deleted, err := s.repo.DeleteAllSales(ctx)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	s.logger.Warn("all sales cleared", zap.Int64("deleted", deleted))
	return deleted, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.summaries.Invalidate(ctx); err != nil {
		s.logger.Warn("summary cache invalidation failed", zap.Error(err))
	}
}
