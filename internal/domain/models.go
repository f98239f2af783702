package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO calendar-date layout used for storage keys and query parameters.
const DateLayout = "2006-01-02"

// MaxYear keeps formatted dates at four year digits so stored YYYY-MM-DD keys
// sort and compare lexically.
const MaxYear = 9999

// UnknownCondition labels sales whose payment condition was left blank.
const UnknownCondition = "not informed"

type Sale struct {
	ID        string          `json:"id"`
	Product   string          `json:"product"`
	Revenue   decimal.Decimal `json:"revenue"`
	Cost      decimal.Decimal `json:"cost"`
	Profit    decimal.Decimal `json:"profit"`
	Date      time.Time       `json:"date"`
	Condition string          `json:"condition"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Key returns the natural identity of a sale: product plus calendar day.
func (s Sale) Key() SaleKey {
	return SaleKey{Product: s.Product, Date: s.Date.Format(DateLayout)}
}

type SaleKey struct {
	Product string
	Date    string
}

type UpsertResult struct {
	Sale     Sale
	Inserted bool
}

// DateFilter bounds are inclusive calendar days; a nil bound is open.
type DateFilter struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

func (f DateFilter) Contains(day time.Time) bool {
	if f.From != nil && day.Before(*f.From) {
		return false
	}
	if f.To != nil && day.After(*f.To) {
		return false
	}
	return true
}

func (f DateFilter) IsZero() bool {
	return f.From == nil && f.To == nil
}

// CacheKey renders the filter as a stable string, e.g. "2024-01-01..*".
func (f DateFilter) CacheKey() string {
	from, to := "*", "*"
	if f.From != nil {
		from = f.From.Format(DateLayout)
	}
	if f.To != nil {
		to = f.To.Format(DateLayout)
	}
	return from + ".." + to
}

type RowStatus string

const (
	RowInserted    RowStatus = "inserted"
	RowUpdated     RowStatus = "updated"
	RowParseFailed RowStatus = "parse_failed"
	RowStoreFailed RowStatus = "store_failed"
)

func (s RowStatus) Skipped() bool {
	return s == RowParseFailed || s == RowStoreFailed
}

type RowOutcome struct {
	Row     int       `json:"row"`
	Product string    `json:"product,omitempty"`
	Date    string    `json:"date,omitempty"`
	Status  RowStatus `json:"status"`
	Reason  string    `json:"reason,omitempty"`
}

type SyncResult struct {
	RunID     string       `json:"run_id"`
	Inserted  int          `json:"inserted"`
	Updated   int          `json:"updated"`
	Skipped   int          `json:"skipped"`
	TotalRows int          `json:"total_rows"`
	Message   string       `json:"message"`
	Outcomes  []RowOutcome `json:"-"`
}

// Failures returns the outcomes of rows that were skipped.
func (r SyncResult) Failures() []RowOutcome {
	failures := make([]RowOutcome, 0, r.Skipped)
	for _, outcome := range r.Outcomes {
		if outcome.Status.Skipped() {
			failures = append(failures, outcome)
		}
	}
	return failures
}

func (r SyncResult) CountStatus(status RowStatus) int {
	n := 0
	for _, outcome := range r.Outcomes {
		if outcome.Status == status {
			n++
		}
	}
	return n
}

type SummaryTotals struct {
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	AverageMargin decimal.Decimal `json:"average_margin"`
	TotalCount    int             `json:"total_count"`
}

type ProductSummary struct {
	Product string          `json:"product"`
	Revenue decimal.Decimal `json:"revenue"`
	Cost    decimal.Decimal `json:"cost"`
	Profit  decimal.Decimal `json:"profit"`
	Count   int             `json:"count"`
}

type MonthSummary struct {
	Month   string          `json:"month"`
	Year    int             `json:"year"`
	Number  int             `json:"number"`
	Revenue decimal.Decimal `json:"revenue"`
	Cost    decimal.Decimal `json:"cost"`
	Profit  decimal.Decimal `json:"profit"`
}

type ConditionSummary struct {
	Condition string          `json:"condition"`
	Revenue   decimal.Decimal `json:"revenue"`
	Profit    decimal.Decimal `json:"profit"`
	Count     int             `json:"count"`
}

type Summary struct {
	Totals      SummaryTotals      `json:"totals"`
	ByProduct   []ProductSummary   `json:"by_product"`
	ByMonth     []MonthSummary     `json:"by_month"`
	ByCondition []ConditionSummary `json:"by_condition"`
}
