package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"salesync/backend/internal/domain"
	"salesync/backend/internal/store"
	"salesync/backend/internal/store/migrations"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrations.Up(db, migrations.Postgres); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const saleColumns = `id, product, sale_date, revenue::text, cost::text, profit::text, payment_condition, created_at, updated_at`

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	sale = store.Normalize(sale)
	if err := store.ValidateSale(sale); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sales (id, product, sale_date, revenue, cost, profit, payment_condition, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4::numeric, $5::numeric, $6::numeric, $7, now(), now())
		RETURNING `+saleColumns,
		uuid.NewString(), sale.Product, sale.Date.Format(domain.DateLayout),
		sale.Revenue.StringFixed(2), sale.Cost.StringFixed(2), sale.Profit.StringFixed(2), sale.Condition,
	)
	created, err := scanSale(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateSale
		}
		return nil, err
	}
	return &created, nil
}

// UpsertSale relies on ON CONFLICT for atomicity; xmax is zero only on the row version
// produced by the insert branch.
func (s *Store) UpsertSale(ctx context.Context, sale domain.Sale) (domain.UpsertResult, error) {
	sale = store.Normalize(sale)
	if err := store.ValidateSale(sale); err != nil {
		return domain.UpsertResult{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sales (id, product, sale_date, revenue, cost, profit, payment_condition, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4::numeric, $5::numeric, $6::numeric, $7, now(), now())
		ON CONFLICT (product, sale_date)
		DO UPDATE SET
			revenue = EXCLUDED.revenue,
			cost = EXCLUDED.cost,
			profit = EXCLUDED.profit,
			payment_condition = EXCLUDED.payment_condition,
			updated_at = now()
		RETURNING `+saleColumns+`, (xmax = 0) AS inserted`,
		uuid.NewString(), sale.Product, sale.Date.Format(domain.DateLayout),
		sale.Revenue.StringFixed(2), sale.Cost.StringFixed(2), sale.Profit.StringFixed(2), sale.Condition,
	)

	var (
		result                domain.UpsertResult
		revenue, cost, profit string
	)
	err := row.Scan(
		&result.Sale.ID, &result.Sale.Product, &result.Sale.Date,
		&revenue, &cost, &profit,
		&result.Sale.Condition, &result.Sale.CreatedAt, &result.Sale.UpdatedAt,
		&result.Inserted,
	)
	if err != nil {
		return domain.UpsertResult{}, err
	}
	if err := setAmounts(&result.Sale, revenue, cost, profit); err != nil {
		return domain.UpsertResult{}, err
	}
	result.Sale.Date = result.Sale.Date.UTC()
	return result, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.DateFilter) ([]domain.Sale, error) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.From != nil {
		args = append(args, filter.From.Format(domain.DateLayout))
		clauses = append(clauses, fmt.Sprintf("sale_date >= $%d::date", len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.Format(domain.DateLayout))
		clauses = append(clauses, fmt.Sprintf("sale_date <= $%d::date", len(args)))
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
		sale, err := scanSale(rows)
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

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		sale                  domain.Sale
		revenue, cost, profit string
	)
	if err := row.Scan(
		&sale.ID, &sale.Product, &sale.Date,
		&revenue, &cost, &profit,
		&sale.Condition, &sale.CreatedAt, &sale.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, store.ErrNotFound
		}
		return domain.Sale{}, err
	}
	if err := setAmounts(&sale, revenue, cost, profit); err != nil {
		return domain.Sale{}, err
	}
	sale.Date = sale.Date.UTC()
	return sale, nil
}

func setAmounts(sale *domain.Sale, revenue, cost, profit string) error {
	var err error
	if sale.Revenue, err = decimal.NewFromString(revenue); err != nil {
		return fmt.Errorf("scan revenue: %w", err)
	}
	if sale.Cost, err = decimal.NewFromString(cost); err != nil {
		return fmt.Errorf("scan cost: %w", err)
	}
	if sale.Profit, err = decimal.NewFromString(profit); err != nil {
		return fmt.Errorf("scan profit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
