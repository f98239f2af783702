package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"salesync/backend/internal/domain"
	"salesync/backend/internal/store"
)

type Store struct {
	mu    sync.RWMutex
	now   func() time.Time
	sales map[domain.SaleKey]domain.Sale
}

func New() *Store {
	return &Store{
		now:   func() time.Time { return time.Now().UTC() },
		sales: make(map[domain.SaleKey]domain.Sale),
	}
}

// WithClock replaces the timestamp source. Used by tests that need distinct write times.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	sale = store.Normalize(sale)
	if err := store.ValidateSale(sale); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sale.Key()
	if _, exists := s.sales[key]; exists {
		return nil, store.ErrDuplicateSale
	}

	now := s.now()
	sale.ID = uuid.NewString()
	sale.CreatedAt = now
	sale.UpdatedAt = now
	s.sales[key] = sale

	created := sale
	return &created, nil
}

func (s *Store) UpsertSale(_ context.Context, sale domain.Sale) (domain.UpsertResult, error) {
	sale = store.Normalize(sale)
	if err := store.ValidateSale(sale); err != nil {
		return domain.UpsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sale.Key()
	now := s.now()
	existing, exists := s.sales[key]
	if !exists {
		sale.ID = uuid.NewString()
		sale.CreatedAt = now
		sale.UpdatedAt = now
		s.sales[key] = sale
		return domain.UpsertResult{Sale: sale, Inserted: true}, nil
	}

	existing.Revenue = sale.Revenue
	existing.Cost = sale.Cost
	existing.Profit = sale.Profit
	existing.Condition = sale.Condition
	existing.UpdatedAt = now
	s.sales[key] = existing
	return domain.UpsertResult{Sale: existing, Inserted: false}, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.DateFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if !filter.Contains(sale.Date) {
			continue
		}
		sales = append(sales, sale)
	}

	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Product, b.Product)
	})
	return sales, nil
}

func (s *Store) DeleteAllSales(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.sales))
	s.sales = make(map[domain.SaleKey]domain.Sale)
	return n, nil
}
