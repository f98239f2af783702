package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"salesync/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidSale   = errors.New("invalid sale")
	ErrDuplicateSale = errors.New("sale already exists for product and date")
)

// Repository is the record store for sales. Sales are unique on (product, date).
type Repository interface {
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	// UpsertSale creates the sale or overwrites revenue, cost, profit and condition of the
	// sale with the same key, in a single atomic store operation.
	UpsertSale(ctx context.Context, sale domain.Sale) (domain.UpsertResult, error)
	// ListSales returns sales ordered by date, bounds inclusive.
	ListSales(ctx context.Context, filter domain.DateFilter) ([]domain.Sale, error)
	DeleteAllSales(ctx context.Context) (int64, error)
}

// ValidateSale checks the invariants every adapter enforces before writing.
func ValidateSale(sale domain.Sale) error {
	if strings.TrimSpace(sale.Product) == "" || sale.Date.IsZero() {
		return ErrInvalidSale
	}
	if y := sale.Date.Year(); y < 1 || y > domain.MaxYear {
		return ErrInvalidSale
	}
	return nil
}

// Normalize trims text fields, truncates the date to a UTC calendar day and rounds
// amounts to cents, matching what the SQL adapters persist.
func Normalize(sale domain.Sale) domain.Sale {
	sale.Product = strings.TrimSpace(sale.Product)
	sale.Condition = strings.TrimSpace(sale.Condition)
	if !sale.Date.IsZero() {
		y, m, d := sale.Date.Date()
		sale.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	sale.Revenue = sale.Revenue.Round(2)
	sale.Cost = sale.Cost.Round(2)
	sale.Profit = sale.Profit.Round(2)
	return sale
}
