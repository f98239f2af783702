package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"salesync/backend/internal/domain"
	"salesync/backend/internal/store"
	"salesync/backend/internal/store/migrations"
)

// Store keeps sales in a single SQLite file. Amounts are stored as fixed
// two-place decimal text and days as YYYY-MM-DD so range filters compare lexically.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the database at path and applies migrations.
// Use ":memory:" for a throwaway database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrations.Up(db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Fixed width keeps created_at ordering correct under lexical comparison.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const saleColumns = `id, product, sale_date, revenue, cost, profit, payment_condition, revision, created_at, updated_at`

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	sale = store.Normalize(sale)
	if err := store.ValidateSale(sale); err != nil {
		return nil, err
	}

	now := s.now().Format(timestampLayout)
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sales (id, product, sale_date, revenue, cost, profit, payment_condition, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (product, sale_date) DO NOTHING
		RETURNING `+saleColumns,
		uuid.NewString(), sale.Product, sale.Date.Format(domain.DateLayout),
		sale.Revenue.StringFixed(2), sale.Cost.StringFixed(2), sale.Profit.StringFixed(2),
		sale.Condition, now, now,
	)
	created, _, err := scanSale(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrDuplicateSale
		}
		return nil, err
	}
	return &created, nil
}

// UpsertSale bumps revision on the update branch, so revision 1 identifies a fresh insert.
func (s *Store) UpsertSale(ctx context.Context, sale domain.Sale) (domain.UpsertResult, error) {
	sale = store.Normalize(sale)
	if err := store.ValidateSale(sale); err != nil {
		return domain.UpsertResult{}, err
	}

	now := s.now().Format(timestampLayout)
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sales (id, product, sale_date, revenue, cost, profit, payment_condition, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (product, sale_date) DO UPDATE SET
			revenue = excluded.revenue,
			cost = excluded.cost,
			profit = excluded.profit,
			payment_condition = excluded.payment_condition,
			revision = sales.revision + 1,
			updated_at = excluded.updated_at
		RETURNING `+saleColumns,
		uuid.NewString(), sale.Product, sale.Date.Format(domain.DateLayout),
		sale.Revenue.StringFixed(2), sale.Cost.StringFixed(2), sale.Profit.StringFixed(2),
		sale.Condition, now, now,
	)
	upserted, revision, err := scanSale(row)
	if err != nil {
		return domain.UpsertResult{}, err
	}
	return domain.UpsertResult{Sale: upserted, Inserted: revision == 1}, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.DateFilter) ([]domain.Sale, error) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.From != nil {
		clauses = append(clauses, "sale_date >= ?")
		args = append(args, filter.From.Format(domain.DateLayout))
	}
	if filter.To != nil {
		clauses = append(clauses, "sale_date <= ?")
		args = append(args, filter.To.Format(domain.DateLayout))
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY sale_date, created_at, product`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 128)
	for rows.Next() {
		sale, _, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) DeleteAllSales(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (domain.Sale, int, error) {
	var (
		sale                        domain.Sale
		date, revenue, cost, profit string
		createdAt, updatedAt        string
		revision                    int
	)
	if err := row.Scan(
		&sale.ID, &sale.Product, &date, &revenue, &cost, &profit,
		&sale.Condition, &revision, &createdAt, &updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, 0, store.ErrNotFound
		}
		return domain.Sale{}, 0, err
	}

	var err error
	if sale.Date, err = time.Parse(domain.DateLayout, date); err != nil {
		return domain.Sale{}, 0, fmt.Errorf("scan sale_date: %w", err)
	}
	if sale.Revenue, err = decimal.NewFromString(revenue); err != nil {
		return domain.Sale{}, 0, fmt.Errorf("scan revenue: %w", err)
	}
	if sale.Cost, err = decimal.NewFromString(cost); err != nil {
		return domain.Sale{}, 0, fmt.Errorf("scan cost: %w", err)
	}
	if sale.Profit, err = decimal.NewFromString(profit); err != nil {
		return domain.Sale{}, 0, fmt.Errorf("scan profit: %w", err)
	}
	if sale.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return domain.Sale{}, 0, fmt.Errorf("scan created_at: %w", err)
	}
	if sale.UpdatedAt, err = time.Parse(timestampLayout, updatedAt); err != nil {
		return domain.Sale{}, 0, fmt.Errorf("scan updated_at: %w", err)
	}
	return sale, revision, nil
}
