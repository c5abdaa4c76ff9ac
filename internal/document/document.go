package document

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice status labels printed on the document.
const (
	StatusGenerated = "GENERATED"
	StatusPaid      = "PAID"
	StatusCancelled = "CANCELLED"
)

// InvoiceStatus derives the printed status: no due date means cancelled,
// a payment date means paid.
func InvoiceStatus(dueBy, paidOn *time.Time) string {
	switch {
	case dueBy == nil:
		return StatusCancelled
	case paidOn != nil:
		return StatusPaid
	default:
		return StatusGenerated
	}
}

type Party struct {
	Name         string
	Registration string
	Address      []string
}

type InvoiceLine struct {
	Description string
	Quantity    string
	Rate        decimal.Decimal
	Amount      decimal.Decimal
}

// Invoice is everything printed on an invoice PDF.
type Invoice struct {
	Number         string
	Issuer         Party
	Client         Party
	WorkOrder      string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	GeneratedOn    time.Time
	DueBy          *time.Time
	PaidOn         *time.Time
	CurrencySymbol string
	Items          []InvoiceLine
	Amount         decimal.Decimal
	Tax            decimal.Decimal
}

func (i Invoice) Total() decimal.Decimal { return i.Amount.Add(i.Tax) }

type TimesheetDay struct {
	Date         time.Time
	Duration     string
	Descriptions []string
}

type TimesheetWeek struct {
	Week  int
	Days  []TimesheetDay
	Total string
}

// Timesheet is a calendar style report of charged time for a period.
type Timesheet struct {
	WorkOrder   string
	Client      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Weeks       []TimesheetWeek
	Total       string
}

// Period renders "dd/mm/yyyy - dd/mm/yyyy | N day(s)".
func (t Timesheet) Period() string {
	days := int(t.PeriodEnd.Sub(t.PeriodStart).Hours()/24) + 1
	return fmt.Sprintf("%s - %s | %d day(s)", t.PeriodStart.Format("02/01/2006"), t.PeriodEnd.Format("02/01/2006"), days)
}

// Renderer produces binary documents.
type Renderer interface {
	RenderInvoice(inv Invoice) ([]byte, error)
	RenderTimesheet(ts Timesheet) ([]byte, error)
}

