package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salesync/backend/internal/domain"
)

// Column order of the sales sheet (A:F).
const (
	colProduct = iota
	colRevenue
	colCost
	colProfit
	colDate
	colCondition

	minFields = colDate + 1
)

var ErrInvalidRow = errors.New("invalid sales row")

type Reason string

const (
	ReasonTooFewFields  Reason = "too_few_fields"
	ReasonEmptyProduct  Reason = "empty_product"
	ReasonEmptyDate     Reason = "empty_date"
	ReasonInvalidDate   Reason = "invalid_date"
	ReasonInvalidAmount Reason = "invalid_amount"
)

// ParseError classifies why a row was rejected. It never carries a partial sale.
type ParseError struct {
	Reason Reason
	Field  string
	Value  string
}

func (e *ParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidRow, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s=%q", ErrInvalidRow, e.Reason, e.Field, e.Value)
}

func (e *ParseError) Unwrap() error {
	return ErrInvalidRow
}

// ParseRow converts one sheet row (Product, Revenue, Cost, Profit, DD/MM/YYYY, Condition)
// into a Sale. Amounts accept "," or "." as decimal separator and default to zero when blank.
func ParseRow(row []string) (domain.Sale, error) {
	if len(row) < minFields {
		return domain.Sale{}, &ParseError{Reason: ReasonTooFewFields}
	}

	product := strings.TrimSpace(row[colProduct])
	if product == "" {
		return domain.Sale{}, &ParseError{Reason: ReasonEmptyProduct, Field: "product"}
	}

	revenue, err := parseAmount("revenue", row[colRevenue])
	if err != nil {
		return domain.Sale{}, err
	}
	cost, err := parseAmount("cost", row[colCost])
	if err != nil {
		return domain.Sale{}, err
	}
	profit, err := parseAmount("profit", row[colProfit])
	if err != nil {
		return domain.Sale{}, err
	}

	rawDate := strings.TrimSpace(row[colDate])
	if rawDate == "" {
		return domain.Sale{}, &ParseError{Reason: ReasonEmptyDate, Field: "date"}
	}
	date, err := ParseSheetDate(rawDate)
	if err != nil {
		return domain.Sale{}, &ParseError{Reason: ReasonInvalidDate, Field: "date", Value: rawDate}
	}

	condition := ""
	if len(row) > colCondition {
		condition = strings.TrimSpace(row[colCondition])
	}

	return domain.Sale{
		Product:   product,
		Revenue:   revenue,
		Cost:      cost,
		Profit:    profit,
		Date:      date,
		Condition: condition,
	}, nil
}

func parseAmount(field string, raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Zero, nil
	}
	normalized := strings.Replace(value, ",", ".", 1)
	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, &ParseError{Reason: ReasonInvalidAmount, Field: field, Value: value}
	}
	return amount.Round(2), nil
}

// ParseSheetDate parses a DD/MM/YYYY date and rejects days that do not exist
// on the calendar instead of rolling them over (32/01 is not 01/02).
func ParseSheetDate(raw string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("date %q: expected DD/MM/YYYY", raw)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q: %w", raw, err)
		}
		nums[i] = n
	}
	day, month, year := nums[0], nums[1], nums[2]
	if year < 1 || year > domain.MaxYear || month < 1 || month > 12 || day < 1 {
		return time.Time{}, fmt.Errorf("date %q: out of range", raw)
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day || int(date.Month()) != month || date.Year() != year {
		return time.Time{}, fmt.Errorf("date %q: not a calendar day", raw)
	}
	return date, nil
}
