package document

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestInvoiceStatus(t *testing.T) {
	now := time.Now()
	if InvoiceStatus(nil, nil) != StatusCancelled {
		t.Fatalf("no due date must be cancelled")
	}
	if InvoiceStatus(nil, &now) != StatusCancelled {
		t.Fatalf("cancellation wins over payment date")
	}
	if InvoiceStatus(&now, &now) != StatusPaid {
		t.Fatalf("expected paid")
	}
	if InvoiceStatus(&now, nil) != StatusGenerated {
		t.Fatalf("expected generated")
	}
}

func TestRenderInvoice(t *testing.T) {
	r := NewPDFRenderer(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }, Uncompressed())
	due := time.Date(2024, 1, 9, 23, 59, 59, 0, time.UTC)
	pdf, err := r.RenderInvoice(Invoice{
		Number:         "ACME/C1/240102/1",
		Issuer:         Party{Name: "Acme (India)"},
		Client:         Party{Name: "Client One", Address: []string{"1 Main St"}},
		DueBy:          &due,
		CurrencySymbol: "$",
		Items:          []InvoiceLine{{Description: "dev", Quantity: "2.0 hrs", Rate: decimal.NewFromInt(50), Amount: decimal.NewFromInt(100)}},
		Amount:         decimal.NewFromInt(100),
		Tax:            decimal.NewFromInt(18),
	})
	if err != nil {
		t.Fatalf("RenderInvoice: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) || !bytes.Contains(pdf, []byte("%%EOF")) {
		t.Fatalf("not a PDF envelope")
	}
	body := string(pdf)
	for _, want := range []string{"ACME/C1/240102/1", "Status: GENERATED", `Acme \(India\)`, "$118.00", "2.0 hrs"} {
		if !strings.Contains(body, want) {
			t.Fatalf("rendered invoice missing %q", want)
		}
	}

	if _, err := r.RenderInvoice(Invoice{}); err == nil {
		t.Fatalf("expected error without invoice number")
	}
}

func TestRenderTimesheetPaginates(t *testing.T) {
	r := NewPDFRenderer(nil, Uncompressed())
	ts := Timesheet{
		WorkOrder:   "Support",
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Total:       "10:30 hrs",
	}
	for w := 1; w <= 13; w++ {
		week := TimesheetWeek{Week: w, Total: "1:00 hrs"}
		for d := 0; d < 7; d++ {
			week.Days = append(week.Days, TimesheetDay{Date: ts.PeriodStart.AddDate(0, 0, (w-1)*7+d), Duration: "0:00 hrs"})
		}
		ts.Weeks = append(ts.Weeks, week)
	}
	pdf, err := r.RenderTimesheet(ts)
	if err != nil {
		t.Fatalf("RenderTimesheet: %v", err)
	}
	if n := pageCount(t, pdf); n < 2 {
		t.Fatalf("expected the report to span several pages, got %d", n)
	}
	if got := ts.Period(); got != "01/01/2024 - 31/03/2024 | 91 day(s)" {
		t.Fatalf("unexpected period %q", got)
	}
}

func TestRenderInvoiceEncodesCurrencySymbols(t *testing.T) {
	r := NewPDFRenderer(nil, Uncompressed())
	due := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	inv := Invoice{
		Number:         "ACME/C1/240102/2",
		DueBy:          &due,
		CurrencySymbol: "₹",
		Items:          []InvoiceLine{{Description: "Café support", Quantity: "1", Rate: decimal.NewFromInt(100), Amount: decimal.NewFromInt(100)}},
		Amount:         decimal.NewFromInt(100),
		Tax:            decimal.NewFromInt(18),
	}
	pdf, err := r.RenderInvoice(inv)
	if err != nil {
		t.Fatalf("RenderInvoice: %v", err)
	}
	if bytes.Contains(pdf, []byte("₹")) || bytes.Contains(pdf, []byte("é")) {
		t.Fatalf("raw UTF-8 leaked into the content stream")
	}
	if !bytes.Contains(pdf, []byte("Rs.118.00")) {
		t.Fatalf("rupee sign not spelled out")
	}
	if !bytes.Contains(pdf, []byte("Caf\xe9 support")) {
		t.Fatalf("latin text not encoded as cp1252")
	}

	inv.CurrencySymbol = "€"
	pdf, err = r.RenderInvoice(inv)
	if err != nil {
		t.Fatalf("RenderInvoice: %v", err)
	}
	if !bytes.Contains(pdf, []byte("\x80118.00")) {
		t.Fatalf("euro sign not encoded as cp1252")
	}
}

var countRe = regexp.MustCompile(`/Type /Pages\s*/Kids \[[^\]]*\]\s*/Count (\d+)`)

func pageCount(t *testing.T, pdf []byte) int {
	t.Helper()
	m := countRe.FindSubmatch(pdf)
	if m == nil {
		t.Fatalf("no page tree in output")
	}
	n, _ := strconv.Atoi(string(m[1]))
	return n
}

func TestRenderCompressedByDefault(t *testing.T) {
	pdf, err := NewPDFRenderer(nil).RenderTimesheet(Timesheet{WorkOrder: "Support", Total: "0:00 hrs"})
	if err != nil {
		t.Fatalf("RenderTimesheet: %v", err)
	}
	if !bytes.Contains(pdf, []byte("/FlateDecode")) || bytes.Contains(pdf, []byte("Total time charged")) {
		t.Fatalf("expected compressed content streams")
	}
}
