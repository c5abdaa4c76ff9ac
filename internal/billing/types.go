package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

type Organization struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Abr               string    `json:"abr"`
	Registration      string    `json:"registration"`
	DefaultCurrencyID string    `json:"default_currency_id"`
	AddressLine1      string    `json:"address_line1"`
	AddressLine2      string    `json:"address_line2"`
	AddressLine3      string    `json:"address_line3"`
	City              string    `json:"city"`
	Country           string    `json:"country"`
	Zip               string    `json:"zip"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Address returns the non-empty address lines in print order.
func (o Organization) Address() []string {
	return compact(o.AddressLine1, o.AddressLine2, o.AddressLine3, joinNonEmpty(o.City, o.Zip), o.Country)
}

// Member is a user as listed inside an organization view.
type Member struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Active    bool   `json:"active"`
	SuperUser bool   `json:"super_user"`
	StaffUser bool   `json:"staff_user"`
}

// OrganizationView is an organization with what it owns.
type OrganizationView struct {
	Organization
	DefaultCurrency *Currency `json:"default_currency,omitempty"`
	Accounts        []Account `json:"accounts"`
	Clients         []Client  `json:"clients"`
	Users           []Member  `json:"users"`
}

type Client struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	Name         string    `json:"name"`
	Abr          string    `json:"abr"`
	Registration string    `json:"registration"`
	Domestic     bool      `json:"domestic"`
	Internal     bool      `json:"internal"`
	ContactName  string    `json:"contact_name"`
	ContactEmail string    `json:"contact_email"`
	ContactPhone string    `json:"contact_phone"`
	AddressLine1 string    `json:"address_line1"`
	AddressLine2 string    `json:"address_line2"`
	AddressLine3 string    `json:"address_line3"`
	City         string    `json:"city"`
	Country      string    `json:"country"`
	Zip          string    `json:"zip"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c Client) Address() []string {
	return compact(c.AddressLine1, c.AddressLine2, c.AddressLine3, joinNonEmpty(c.City, c.Zip), c.Country)
}

type Account struct {
	ID            string    `json:"id"`
	OrgID         string    `json:"org_id"`
	AccountName   string    `json:"account_name"`
	AccountNumber string    `json:"account_number"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Currency struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Abr       string    `json:"abr"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkOrderType selects how invoice lines are priced.
type WorkOrderType string

const (
	Hourly WorkOrderType = "hourly"
	Fixed  WorkOrderType = "fixed"
)

func (t WorkOrderType) Valid() bool { return t == Hourly || t == Fixed }

type WorkOrder struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"client_id"`
	Description string          `json:"description"`
	Type        WorkOrderType   `json:"type"`
	Rate        decimal.Decimal `json:"rate"`
	CurrencyID  string          `json:"currency_id"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     time.Time       `json:"end_date"`
	DocURL      string          `json:"doc_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Timesheet is one interval of time charged against a work order.
// Invoiced rows always carry the invoice that consumed them.
type Timesheet struct {
	ID          string    `json:"id"`
	WorkOrderID string    `json:"work_order_id"`
	ChargedByID string    `json:"charged_by_id"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Invoiced    bool      `json:"invoiced"`
	InvoiceID   string    `json:"invoice_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (t Timesheet) Duration() time.Duration { return t.EndTime.Sub(t.StartTime) }

// TimesheetFilter selects timesheets of one work order. Zero fields do not filter.
// From bounds start_time from below and To bounds end_time from above.
type TimesheetFilter struct {
	WorkOrderID string
	ChargedByID string
	From        time.Time
	To          time.Time
	Invoiced    *bool
}

type Invoice struct {
	ID          string          `json:"id"`
	Number      string          `json:"invoice_number"`
	Sequence    int64           `json:"sequence"`
	WorkOrderID string          `json:"work_order_id"`
	CurrencyID  string          `json:"currency_id"`
	PeriodStart time.Time       `json:"invoice_period_start"`
	PeriodEnd   time.Time       `json:"invoice_period_end"`
	GeneratedOn time.Time       `json:"generated_on"`
	DueBy       *time.Time      `json:"due_by"`
	PaidOn      *time.Time      `json:"paid_on"`
	DocURL      string          `json:"doc_url,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Tax         decimal.Decimal `json:"tax"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (i Invoice) Paid() bool      { return i.PaidOn != nil }
func (i Invoice) Cancelled() bool { return i.DueBy == nil }

func (i Invoice) Total() decimal.Decimal { return i.Amount.Add(i.Tax) }

type InvoiceItem struct {
	ID          string          `json:"id"`
	InvoiceID   string          `json:"invoice_id,omitempty"`
	Description string          `json:"description"`
	Quantity    string          `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoiceView is an invoice joined with everything needed to render or share it.
type InvoiceView struct {
	Invoice
	Items        []InvoiceItem `json:"items"`
	WorkOrder    WorkOrder     `json:"work_order"`
	Client       Client        `json:"client"`
	Organization Organization  `json:"organization"`
	Currency     Currency      `json:"currency"`
}

// Draft is a proposed invoice computed from charged time; nothing is stored.
type Draft struct {
	WorkOrderID string          `json:"work_order_id"`
	PeriodStart time.Time       `json:"invoice_period_start"`
	PeriodEnd   time.Time       `json:"invoice_period_end"`
	GeneratedOn time.Time       `json:"generated_on"`
	DueBy       time.Time       `json:"due_by"`
	Items       []InvoiceItem   `json:"items"`
	Tax         decimal.Decimal `json:"tax"`
	Amount      decimal.Decimal `json:"amount"`
}

func compact(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
