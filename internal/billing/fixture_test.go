package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tallybook.io/internal/blob"
	"tallybook.io/internal/document"
	"tallybook.io/internal/ledger"
)

var fixedNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memStore
	blobs    *blob.Bucket
	mailer   *recordingMailer
	ledger   *ledger.Service
	invoices *Invoices
	work     *WorkOrders

	org       Organization
	client    Client
	workOrder WorkOrder
	usd       Currency
}

type failingRenderer struct{ document.Renderer }

func (failingRenderer) RenderInvoice(document.Invoice) ([]byte, error) { return nil, errBoom }

// newFixture seeds ACME with a domestic client C1 and an hourly work order
// at 50 USD per hour running through 2024.
func newFixture(dir string, renderer document.Renderer) (*fixture, error) {
	store := newMemStore()
	fs, err := blob.NewFS(dir)
	if err != nil {
		return nil, err
	}
	if renderer == nil {
		renderer = document.NewPDFRenderer(func() time.Time { return fixedNow }, document.Uncompressed())
	}
	led, err := ledger.NewService(store.ledger, fs)
	if err != nil {
		return nil, err
	}
	mailer := &recordingMailer{}
	clock := func() time.Time { return fixedNow }

	invoices, err := NewInvoices(InvoicesConfig{
		Store:      store,
		Ledger:     led,
		Blobs:      fs,
		Renderer:   renderer,
		Mailer:     mailer,
		GSTPercent: decimal.NewFromInt(18),
		Now:        clock,
	})
	if err != nil {
		return nil, err
	}
	work, err := NewWorkOrders(WorkOrdersConfig{
		Store:    store,
		Blobs:    fs,
		Renderer: renderer,
		Mailer:   mailer,
		CutOff:   time.Date(2023, 5, 31, 0, 0, 0, 0, time.UTC),
		Now:      clock,
	})
	if err != nil {
		return nil, err
	}

	f := &fixture{store: store, blobs: fs, mailer: mailer, ledger: led, invoices: invoices, work: work}
	f.usd = store.addCurrency(Currency{ID: "cur-usd", Name: "US Dollar", Abr: "USD", Symbol: "$"})
	f.org = store.addOrganization(Organization{ID: "org-acme", Name: "Acme", Abr: "ACME", DefaultCurrencyID: f.usd.ID, Active: true})
	f.client = store.addClient(Client{
		ID: "client-c1", OrgID: f.org.ID, Name: "Client One", Abr: "C1",
		Domestic: true, ContactEmail: "billing@client.example", Active: true,
	})
	store.addAccount("acc-1", f.org.ID)
	f.workOrder, err = work.Create(context.Background(), WorkOrder{
		ClientID:    f.client.ID,
		Description: "Support retainer",
		Type:        Hourly,
		Rate:        decimal.NewFromInt(50),
		CurrencyID:  f.usd.ID,
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}, nil)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (f *fixture) charge(userID, desc string, start time.Time, d time.Duration) (Timesheet, error) {
	return f.work.Charge(context.Background(), f.workOrder.ID, userID, Timesheet{
		Description: desc,
		StartTime:   start,
		EndTime:     start.Add(d),
	})
}

// issue creates an invoice for January 2024 with one 100.00 line.
func (f *fixture) issue(includeTime bool) (InvoiceView, error) {
	view, _, err := f.invoices.Create(context.Background(), CreateInvoice{
		WorkOrderID:        f.workOrder.ID,
		PeriodStart:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:          time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Items:              []InvoiceItem{{Description: "dev", Quantity: "2.0 hrs", Rate: decimal.NewFromInt(50), Amount: decimal.NewFromInt(100)}},
		IncludeTimeCharges: includeTime,
	})
	return view, err
}
