package document

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	margin     = 15.0 // mm
	rowHeight  = 6.0
	fontFamily = "Helvetica"
)

// Currency signs the core fonts cannot encode are spelled out.
var symbolFallback = strings.NewReplacer(
	"₹", "Rs.",
	"₩", "KRW ",
	"₦", "NGN ",
	"₱", "PHP ",
	"₺", "TRY ",
	"₫", "VND ",
	"₴", "UAH ",
	"₽", "RUB ",
)

// PDFRenderer lays documents out on A4 pages with the Helvetica core font.
type PDFRenderer struct {
	now      func() time.Time
	compress bool
}

type PDFOption func(*PDFRenderer)

// Uncompressed leaves content streams readable as plain text.
func Uncompressed() PDFOption {
	return func(r *PDFRenderer) { r.compress = false }
}

func NewPDFRenderer(now func() time.Time, opts ...PDFOption) *PDFRenderer {
	if now == nil {
		now = time.Now
	}
	r := &PDFRenderer{now: now, compress: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// page wraps an fpdf document with cp1252 text translation.
type page struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (r *PDFRenderer) newPage(title string) *page {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetTitle(title, true)
	pdf.SetProducer("tallybook", false)
	pdf.SetCreationDate(r.now().UTC())
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin+rowHeight)
	p := &page{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	generated := "Generated on: " + r.now().UTC().Format("02/01/2006 15:04:05 +00:00/UTC")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin - 2)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.CellFormat(0, 4, p.text(fmt.Sprintf("%s  |  page %d", generated, pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	return p
}

func (p *page) text(s string) string { return p.tr(symbolFallback.Replace(s)) }

func (p *page) cell(w float64, s, border, align string) {
	p.pdf.CellFormat(w, rowHeight, p.text(s), border, 0, align, false, 0, "")
}

func (p *page) line(s string) {
	p.pdf.CellFormat(0, rowHeight, p.text(s), "", 1, "L", false, 0, "")
}

// fit shortens s until it fits in w, marking the cut with "~".
func (p *page) fit(s string, w float64) string {
	s = p.text(s)
	if p.pdf.GetStringWidth(s) <= w-2 {
		return s
	}
	for len(s) > 1 && p.pdf.GetStringWidth(s+"~") > w-2 {
		s = s[:len(s)-1]
	}
	return s + "~"
}

func (p *page) bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("document: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) RenderInvoice(inv Invoice) ([]byte, error) {
	if strings.TrimSpace(inv.Number) == "" {
		return nil, fmt.Errorf("document: invoice number is required")
	}
	p := r.newPage("Invoice " + inv.Number)
	pdf := p.pdf
	sym := inv.CurrencySymbol

	pdf.SetFont(fontFamily, "B", 16)
	p.line("INVOICE " + inv.Number)
	pdf.SetFont(fontFamily, "B", 10)
	p.line("Status: " + InvoiceStatus(inv.DueBy, inv.PaidOn))
	pdf.Ln(2)

	pdf.SetFont(fontFamily, "", 10)
	p.party("From", inv.Issuer)
	p.party("Bill to", inv.Client)

	p.line("Work order: " + inv.WorkOrder)
	p.line(fmt.Sprintf("Period: %s - %s", inv.PeriodStart.Format("02/01/2006"), inv.PeriodEnd.Format("02/01/2006")))
	p.line("Generated on: " + inv.GeneratedOn.Format("02/01/2006"))
	if inv.DueBy != nil {
		p.line("Due by: " + inv.DueBy.Format("02/01/2006"))
	}
	if inv.PaidOn != nil {
		p.line("Paid on: " + inv.PaidOn.Format("02/01/2006"))
	}
	pdf.Ln(4)

	widths := []float64{90, 30, 30, 30}
	pdf.SetFont(fontFamily, "B", 10)
	for i, h := range []string{"Description", "Quantity", "Rate", "Amount"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		p.cell(widths[i], h, "1", align)
	}
	pdf.Ln(-1)
	pdf.SetFont(fontFamily, "", 10)
	for _, it := range inv.Items {
		pdf.CellFormat(widths[0], rowHeight, p.fit(it.Description, widths[0]), "1", 0, "L", false, 0, "")
		p.cell(widths[1], it.Quantity, "1", "R")
		p.cell(widths[2], sym+it.Rate.StringFixed(2), "1", "R")
		p.cell(widths[3], sym+it.Amount.StringFixed(2), "1", "R")
		pdf.Ln(-1)
	}
	pdf.Ln(2)

	label := widths[0] + widths[1] + widths[2]
	for _, row := range []struct {
		name  string
		value string
		style string
	}{
		{"Subtotal", sym + inv.Amount.StringFixed(2), ""},
		{"Tax", sym + inv.Tax.StringFixed(2), ""},
		{"Total", sym + inv.Total().StringFixed(2), "B"},
	} {
		pdf.SetFont(fontFamily, row.style, 10)
		p.cell(label, row.name, "", "R")
		p.cell(widths[3], row.value, "", "R")
		pdf.Ln(-1)
	}
	return p.bytes()
}

func (p *page) party(label string, party Party) {
	p.line(label + ": " + party.Name)
	if party.Registration != "" {
		p.line("    Reg. " + party.Registration)
	}
	for _, a := range party.Address {
		if strings.TrimSpace(a) != "" {
			p.line("    " + a)
		}
	}
	p.pdf.Ln(2)
}

func (r *PDFRenderer) RenderTimesheet(ts Timesheet) ([]byte, error) {
	p := r.newPage("Timesheet " + ts.WorkOrder)
	pdf := p.pdf

	pdf.SetFont(fontFamily, "B", 16)
	p.line("TIMESHEET")
	pdf.SetFont(fontFamily, "", 10)
	p.line("Work order: " + ts.WorkOrder)
	p.line("Client: " + ts.Client)
	p.line("Period: " + ts.Period())
	pdf.Ln(4)

	const dateW, durW = 30.0, 25.0
	descW := 210 - 2*margin - dateW - durW
	for _, w := range ts.Weeks {
		pdf.SetFont(fontFamily, "B", 10)
		p.line(fmt.Sprintf("Week %d  (total %s)", w.Week, w.Total))
		pdf.SetFont(fontFamily, "", 10)
		for _, d := range w.Days {
			p.cell(dateW, d.Date.Format("Mon 02/01"), "B", "L")
			p.cell(durW, d.Duration, "B", "L")
			pdf.CellFormat(descW, rowHeight, p.fit(strings.Join(d.Descriptions, "; "), descW), "B", 1, "L", false, 0, "")
		}
		pdf.Ln(3)
	}
	pdf.SetFont(fontFamily, "B", 10)
	p.line("Total time charged: " + ts.Total)
	return p.bytes()
}
