package report

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"salesync/backend/internal/domain"
)

// WriteCSV flattens a summary into section,key,metric,value records.
func WriteCSV(summary domain.Summary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	records := [][]string{
		{"section", "key", "metric", "value"},
		{"totals", "", "revenue", summary.Totals.TotalRevenue.StringFixed(2)},
		{"totals", "", "cost", summary.Totals.TotalCost.StringFixed(2)},
		{"totals", "", "profit", summary.Totals.TotalProfit.StringFixed(2)},
		{"totals", "", "average_margin", summary.Totals.AverageMargin.StringFixed(2)},
		{"totals", "", "count", strconv.Itoa(summary.Totals.TotalCount)},
	}
	for _, p := range summary.ByProduct {
		records = append(records,
			[]string{"product", p.Product, "revenue", p.Revenue.StringFixed(2)},
			[]string{"product", p.Product, "cost", p.Cost.StringFixed(2)},
			[]string{"product", p.Product, "profit", p.Profit.StringFixed(2)},
			[]string{"product", p.Product, "count", strconv.Itoa(p.Count)},
		)
	}
	for _, m := range summary.ByMonth {
		records = append(records,
			[]string{"month", m.Month, "revenue", m.Revenue.StringFixed(2)},
			[]string{"month", m.Month, "cost", m.Cost.StringFixed(2)},
			[]string{"month", m.Month, "profit", m.Profit.StringFixed(2)},
		)
	}
	for _, c := range summary.ByCondition {
		records = append(records,
			[]string{"condition", c.Condition, "revenue", c.Revenue.StringFixed(2)},
			[]string{"condition", c.Condition, "profit", c.Profit.StringFixed(2)},
			[]string{"condition", c.Condition, "count", strconv.Itoa(c.Count)},
		)
	}

	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
