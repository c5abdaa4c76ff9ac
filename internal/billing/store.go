package billing

import (
	"context"
	"time"

	"tallybook.io/internal/ledger"
)

// DirectoryStore persists organizations and the reference data they own.
type DirectoryStore interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	GetOrganization(ctx context.Context, id string) (Organization, error)
	OrganizationView(ctx context.Context, id string) (OrganizationView, error)
	CreateOrganization(ctx context.Context, o Organization) (Organization, error)
	UpdateOrganization(ctx context.Context, o Organization) (Organization, error)
	DeleteOrganization(ctx context.Context, id string) error

	ListClients(ctx context.Context, orgID string) ([]Client, error)
	GetClient(ctx context.Context, id string) (Client, error)
	CreateClient(ctx context.Context, c Client) (Client, error)
	UpdateClient(ctx context.Context, c Client) (Client, error)
	DeleteClient(ctx context.Context, id string) error

	ListAccounts(ctx context.Context, orgID string) ([]Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	CreateAccount(ctx context.Context, a Account) (Account, error)
	UpdateAccount(ctx context.Context, a Account) (Account, error)
	DeleteAccount(ctx context.Context, id string) error

	ListCurrencies(ctx context.Context) ([]Currency, error)
	GetCurrency(ctx context.Context, id string) (Currency, error)
	CreateCurrency(ctx context.Context, c Currency) (Currency, error)
	UpdateCurrency(ctx context.Context, c Currency) (Currency, error)
	DeleteCurrency(ctx context.Context, id string) error
}

// WorkStore persists work orders and the time charged against them.
type WorkStore interface {
	GetClient(ctx context.Context, id string) (Client, error)
	GetOrganization(ctx context.Context, id string) (Organization, error)
	GetCurrency(ctx context.Context, id string) (Currency, error)

	ListWorkOrders(ctx context.Context, orgID string) ([]WorkOrder, error)
	GetWorkOrder(ctx context.Context, id string) (WorkOrder, error)
	CreateWorkOrder(ctx context.Context, w WorkOrder) (WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, w WorkOrder) (WorkOrder, error)
	DeleteWorkOrder(ctx context.Context, id string) error

	ListTimesheets(ctx context.Context, f TimesheetFilter) ([]Timesheet, error)
	GetTimesheet(ctx context.Context, id string) (Timesheet, error)
	CreateTimesheet(ctx context.Context, t Timesheet) (Timesheet, error)
	UpdateTimesheet(ctx context.Context, t Timesheet) (Timesheet, error)
	DeleteTimesheet(ctx context.Context, id string) error
}

// Tx is the write surface of one invoicing database transaction. It embeds the
// ledger surface so payments are booked in the same transaction.
type Tx interface {
	ledger.Tx
	// NextInvoiceSequence atomically increments and returns the organization's counter.
	NextInvoiceSequence(ctx context.Context, orgID string) (int64, error)
	InsertInvoice(ctx context.Context, inv Invoice, items []InvoiceItem) error
	// MarkTimesheetsInvoiced flags un-invoiced timesheets of the work order inside
	// [from, to] and returns how many rows changed.
	MarkTimesheetsInvoiced(ctx context.Context, workOrderID string, from, to time.Time, invoiceID string) (int64, error)
	LockInvoice(ctx context.Context, id string) (Invoice, error)
	SetInvoiceDocument(ctx context.Context, id, docURL string) error
	MarkInvoicePaid(ctx context.Context, id string, paidOn time.Time) error
	CancelInvoice(ctx context.Context, id string) error
}

// InvoiceStore persists invoices.
type InvoiceStore interface {
	GetWorkOrder(ctx context.Context, id string) (WorkOrder, error)
	GetClient(ctx context.Context, id string) (Client, error)
	GetOrganization(ctx context.Context, id string) (Organization, error)
	GetCurrency(ctx context.Context, id string) (Currency, error)
	ListTimesheets(ctx context.Context, f TimesheetFilter) ([]Timesheet, error)

	InvoiceView(ctx context.Context, id string) (InvoiceView, error)
	ListInvoices(ctx context.Context, orgID string) ([]Invoice, error)
	SearchInvoices(ctx context.Context, orgID, text string) ([]Invoice, error)
	// DeleteInvoice removes the invoice and its items and releases its timesheets.
	DeleteInvoice(ctx context.Context, id string) error
	RunBillingTx(ctx context.Context, fn func(Tx) error) error
}
