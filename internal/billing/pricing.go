package billing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var secondsPerHour = decimal.NewFromInt(3600)

// SplitFixedRate spreads a fixed work order rate evenly across n invoice lines.
// The per-line rate is rounded to cents, so lines may not sum back to total.
func SplitFixedRate(total decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(n))).Round(2)
}

// Hours converts a charged interval to hours rounded to two places.
func Hours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d / time.Second)).Div(secondsPerHour).Round(2)
}

// FormatHours prints a quantity of hours with at least one decimal, e.g. "2.0 hrs".
func FormatHours(h decimal.Decimal) string {
	s := h.Round(2).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s + " hrs"
}

// FormatDuration prints "H:00 hrs" for whole hours and "H:M hrs" otherwise.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	hours := secs / 3600
	minutes := (secs / 60) % 60
	if minutes == 0 {
		return fmt.Sprintf("%d:00 hrs", hours)
	}
	return fmt.Sprintf("%d:%d hrs", hours, minutes)
}

// DeriveItems groups timesheets by description, ordered by description, and
// prices each group according to the work order type.
func DeriveItems(wo WorkOrder, sheets []Timesheet) []InvoiceItem {
	hours := map[string]decimal.Decimal{}
	var descriptions []string
	for _, ts := range sheets {
		h, seen := hours[ts.Description]
		if !seen {
			descriptions = append(descriptions, ts.Description)
		}
		hours[ts.Description] = h.Add(Hours(ts.Duration()))
	}
	sort.Strings(descriptions)

	items := make([]InvoiceItem, 0, len(descriptions))
	if wo.Type == Fixed {
		rate := SplitFixedRate(wo.Rate, len(descriptions))
		for _, desc := range descriptions {
			items = append(items, InvoiceItem{Description: desc, Quantity: "1", Rate: rate, Amount: rate})
		}
		return items
	}
	for _, desc := range descriptions {
		qty := hours[desc].Round(2)
		items = append(items, InvoiceItem{
			Description: desc,
			Quantity:    FormatHours(qty),
			Rate:        wo.Rate,
			Amount:      wo.Rate.Mul(qty).Round(2),
		})
	}
	return items
}

// SumItems totals line amounts rounded to cents.
func SumItems(items []InvoiceItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total.Round(2)
}

// TaxFor returns the tax charged on amount for the client at percent.
func TaxFor(c Client, percent, amount decimal.Decimal) decimal.Decimal {
	if !c.Domestic {
		return decimal.Zero
	}
	return percent.Mul(amount).Div(decimal.NewFromInt(100)).Round(2)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
