package report

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salesync/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Aggregate summarizes the sales that fall inside filter. It never mutates sales.
//
// ByProduct is ordered by descending revenue, ties keeping first-seen order.
// ByMonth and ByCondition keep the order in which buckets first appear in sales.
func Aggregate(sales []domain.Sale, filter domain.DateFilter) domain.Summary {
	summary := domain.Summary{
		Totals: domain.SummaryTotals{
			TotalRevenue:  decimal.Zero,
			TotalCost:     decimal.Zero,
			TotalProfit:   decimal.Zero,
			AverageMargin: decimal.Zero,
		},
		ByProduct:   make([]domain.ProductSummary, 0),
		ByMonth:     make([]domain.MonthSummary, 0),
		ByCondition: make([]domain.ConditionSummary, 0),
	}

	productIdx := map[string]int{}
	monthIdx := map[string]int{}
	conditionIdx := map[string]int{}

	for _, sale := range sales {
		if !filter.Contains(sale.Date) {
			continue
		}

		summary.Totals.TotalCount++
		summary.Totals.TotalRevenue = summary.Totals.TotalRevenue.Add(sale.Revenue)
		summary.Totals.TotalCost = summary.Totals.TotalCost.Add(sale.Cost)
		summary.Totals.TotalProfit = summary.Totals.TotalProfit.Add(sale.Profit)

		i, ok := productIdx[sale.Product]
		if !ok {
			i = len(summary.ByProduct)
			productIdx[sale.Product] = i
			summary.ByProduct = append(summary.ByProduct, domain.ProductSummary{
				Product: sale.Product,
				Revenue: decimal.Zero,
				Cost:    decimal.Zero,
				Profit:  decimal.Zero,
			})
		}
		product := &summary.ByProduct[i]
		product.Revenue = product.Revenue.Add(sale.Revenue)
		product.Cost = product.Cost.Add(sale.Cost)
		product.Profit = product.Profit.Add(sale.Profit)
		product.Count++

		label := MonthLabel(sale.Date)
		i, ok = monthIdx[label]
		if !ok {
			i = len(summary.ByMonth)
			monthIdx[label] = i
			summary.ByMonth = append(summary.ByMonth, domain.MonthSummary{
				Month:   label,
				Year:    sale.Date.Year(),
				Number:  int(sale.Date.Month()),
				Revenue: decimal.Zero,
				Cost:    decimal.Zero,
				Profit:  decimal.Zero,
			})
		}
		month := &summary.ByMonth[i]
		month.Revenue = month.Revenue.Add(sale.Revenue)
		month.Cost = month.Cost.Add(sale.Cost)
		month.Profit = month.Profit.Add(sale.Profit)

		condition := ConditionLabel(sale.Condition)
		i, ok = conditionIdx[condition]
		if !ok {
			i = len(summary.ByCondition)
			conditionIdx[condition] = i
			summary.ByCondition = append(summary.ByCondition, domain.ConditionSummary{
				Condition: condition,
				Revenue:   decimal.Zero,
				Profit:    decimal.Zero,
			})
		}
		cond := &summary.ByCondition[i]
		cond.Revenue = cond.Revenue.Add(sale.Revenue)
		cond.Profit = cond.Profit.Add(sale.Profit)
		cond.Count++
	}

	summary.Totals.AverageMargin = Margin(summary.Totals.TotalProfit, summary.Totals.TotalRevenue)

	slices.SortStableFunc(summary.ByProduct, func(a, b domain.ProductSummary) int {
		return b.Revenue.Cmp(a.Revenue)
	})

	return summary
}

// Margin returns profit as a percentage of revenue, or zero when revenue is not positive.
func Margin(profit, revenue decimal.Decimal) decimal.Decimal {
	if !revenue.IsPositive() {
		return decimal.Zero
	}
	return profit.Mul(hundred).Div(revenue)
}

// MonthLabel buckets a date by calendar month, e.g. "2024-01".
func MonthLabel(date time.Time) string {
	return fmt.Sprintf("%04d-%02d", date.Year(), int(date.Month()))
}

func ConditionLabel(condition string) string {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return domain.UnknownCondition
	}
	return condition
}
