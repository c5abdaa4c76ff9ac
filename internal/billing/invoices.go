package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"tallybook.io/internal/blob"
	"tallybook.io/internal/document"
	"tallybook.io/internal/ids"
	"tallybook.io/internal/ledger"
	"tallybook.io/internal/mail"
	"tallybook.io/internal/obs"
)

// Invoices runs the invoice lifecycle: generate, cancel, pay and share.
//
// An invoice is GENERATED while due_by is set and paid_on is empty, PAID once
// paid_on is set and CANCELLED once due_by is cleared. PAID and CANCELLED are
// terminal. Every transition renders a fresh PDF under a new key and points
// doc_url at it in the same database transaction that changes the row. The
// previous document is removed only after commit.
type Invoices struct {
	store    InvoiceStore
	ledger   *ledger.Service
	blobs    blob.Storage
	renderer document.Renderer
	mailer   mail.Sender
	gst      decimal.Decimal
	now      func() time.Time
}

type InvoicesConfig struct {
	Store    InvoiceStore
	Ledger   *ledger.Service
	Blobs    blob.Storage
	Renderer document.Renderer
	Mailer   mail.Sender
	// GSTPercent is charged on invoices of domestic clients.
	GSTPercent decimal.Decimal
	Now        func() time.Time
}

func NewInvoices(cfg InvoicesConfig) (*Invoices, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("billing: invoice store is required")
	case cfg.Ledger == nil:
		return nil, errors.New("billing: ledger service is required")
	case cfg.Blobs == nil || cfg.Renderer == nil || cfg.Mailer == nil:
		return nil, errors.New("billing: blob storage, renderer and mailer are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Invoices{
		store:    cfg.Store,
		ledger:   cfg.Ledger,
		blobs:    cfg.Blobs,
		renderer: cfg.Renderer,
		mailer:   cfg.Mailer,
		gst:      cfg.GSTPercent,
		now:      cfg.Now,
	}, nil
}

// CreateInvoice describes an invoice to issue. Nil dates default to today and
// a week from today.
type CreateInvoice struct {
	WorkOrderID        string
	PeriodStart        time.Time
	PeriodEnd          time.Time
	GeneratedOn        *time.Time
	DueBy              *time.Time
	Items              []InvoiceItem
	IncludeTimeCharges bool
}

type PayInvoice struct {
	InvoiceID    string
	AccountID    string
	ExchangeRate decimal.Decimal
	Document     *blob.Upload
}

type ShareInvoice struct {
	InvoiceID      string
	To             []string
	CC             []string
	RequesterEmail string
}

func (s *Invoices) List(ctx context.Context, orgID string) ([]Invoice, error) {
	return s.store.ListInvoices(ctx, orgID)
}

func (s *Invoices) Get(ctx context.Context, id string) (InvoiceView, error) {
	v, err := s.store.InvoiceView(ctx, id)
	return v, describe(err, "Invalid Invoice id")
}

// Search matches text case-insensitively against invoice numbers.
func (s *Invoices) Search(ctx context.Context, orgID, text string) ([]Invoice, error) {
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < 3 || n > 50 {
		return nil, fmt.Errorf("%w: Search text must be between 3 and 50 characters", ErrInvalidInput)
	}
	return s.store.SearchInvoices(ctx, orgID, text)
}

// GenerateItems proposes invoice lines from the work order's un-invoiced time
// charged within the period.
func (s *Invoices) GenerateItems(ctx context.Context, workOrderID string, start, end time.Time) (Draft, error) {
	if start.After(end) {
		return Draft{}, fmt.Errorf("%w: The start date cannot be greater than end date", ErrInvalidInput)
	}
	wo, err := s.store.GetWorkOrder(ctx, workOrderID)
	if err != nil {
		return Draft{}, reference(err, "Invalid Work-Order id")
	}
	if end.Before(wo.StartDate) || start.After(wo.EndDate) {
		return Draft{}, fmt.Errorf("%w: Invalid Invoice period. Falls outside the WorkOrder Duration", ErrInvalidInput)
	}
	client, err := s.store.GetClient(ctx, wo.ClientID)
	if err != nil {
		return Draft{}, err
	}
	from, to := startOfDay(start), endOfDay(end)
	sheets, err := s.unbilled(ctx, wo.ID, from, to)
	if err != nil {
		return Draft{}, err
	}
	if len(sheets) == 0 {
		return Draft{}, fmt.Errorf("%w: No time charged for the given period", ErrInvalidInput)
	}

	items := DeriveItems(wo, sheets)
	tax := decimal.Zero
	if client.Domestic {
		tax = s.gst
	}
	now := s.now()
	return Draft{
		WorkOrderID: wo.ID,
		PeriodStart: from,
		PeriodEnd:   to,
		GeneratedOn: startOfDay(now),
		DueBy:       endOfDay(now.AddDate(0, 0, 7)),
		Items:       items,
		Tax:         tax,
		Amount:      SumItems(items),
	}, nil
}

func (s *Invoices) unbilled(ctx context.Context, workOrderID string, from, to time.Time) ([]Timesheet, error) {
	no := false
	sheets, err := s.store.ListTimesheets(ctx, TimesheetFilter{WorkOrderID: workOrderID, From: from, Invoiced: &no})
	if err != nil {
		return nil, err
	}
	out := sheets[:0]
	for _, ts := range sheets {
		if !ts.StartTime.After(to) {
			out = append(out, ts)
		}
	}
	return out, nil
}

// Create issues an invoice and stores its PDF. The sequence number, rows,
// timesheet flags and document commit together or not at all.
func (s *Invoices) Create(ctx context.Context, in CreateInvoice) (InvoiceView, []byte, error) {
	if len(in.Items) == 0 {
		return InvoiceView{}, nil, fmt.Errorf("%w: at least one invoice item is required", ErrInvalidInput)
	}
	if in.PeriodStart.After(in.PeriodEnd) {
		return InvoiceView{}, nil, fmt.Errorf("%w: The start date cannot be greater than end date", ErrInvalidInput)
	}
	wo, err := s.store.GetWorkOrder(ctx, in.WorkOrderID)
	if err != nil {
		return InvoiceView{}, nil, reference(err, "Invalid Work-Order id")
	}
	client, err := s.store.GetClient(ctx, wo.ClientID)
	if err != nil {
		return InvoiceView{}, nil, err
	}
	org, err := s.store.GetOrganization(ctx, client.OrgID)
	if err != nil {
		return InvoiceView{}, nil, err
	}
	cur, err := s.store.GetCurrency(ctx, wo.CurrencyID)
	if err != nil {
		return InvoiceView{}, nil, err
	}

	now := s.now()
	inv := Invoice{
		ID:          ids.New(),
		WorkOrderID: wo.ID,
		CurrencyID:  wo.CurrencyID,
		PeriodStart: startOfDay(in.PeriodStart),
		PeriodEnd:   endOfDay(in.PeriodEnd),
		GeneratedOn: startOfDay(now),
	}
	if in.GeneratedOn != nil {
		inv.GeneratedOn = *in.GeneratedOn
	}
	due := endOfDay(now.AddDate(0, 0, 7))
	if in.DueBy != nil {
		due = *in.DueBy
	}
	if due.Before(inv.GeneratedOn) {
		return InvoiceView{}, nil, fmt.Errorf("%w: Due date cannot be before the generation date", ErrInvalidInput)
	}
	inv.DueBy = &due

	items := make([]InvoiceItem, len(in.Items))
	for i, it := range in.Items {
		it.Description = strings.TrimSpace(it.Description)
		if it.Description == "" || it.Amount.IsNegative() || it.Rate.IsNegative() {
			return InvoiceView{}, nil, fmt.Errorf("%w: invoice items need a description and non-negative amounts", ErrInvalidInput)
		}
		it.ID = ids.New()
		it.InvoiceID = inv.ID
		it.Rate = it.Rate.Round(2)
		it.Amount = it.Amount.Round(2)
		items[i] = it
	}
	inv.Amount = SumItems(items)
	inv.Tax = TaxFor(client, s.gst, inv.Amount)

	view := InvoiceView{Invoice: inv, Items: items, WorkOrder: wo, Client: client, Organization: org, Currency: cur}
	var pdf []byte
	var stored string
	err = s.store.RunBillingTx(ctx, func(tx Tx) error {
		seq, err := tx.NextInvoiceSequence(ctx, org.ID)
		if err != nil {
			return err
		}
		view.Sequence = seq
		view.Number = fmt.Sprintf("%s/%s/%s/%d", org.Abr, client.Abr, now.Format("060102"), seq)
		view.DocURL = invoiceKey(view.Number)
		if err := tx.InsertInvoice(ctx, view.Invoice, items); err != nil {
			return err
		}
		if in.IncludeTimeCharges {
			n, err := tx.MarkTimesheetsInvoiced(ctx, wo.ID, view.PeriodStart, view.PeriodEnd, view.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: No time charged for the given period", ErrInvalidInput)
			}
		}
		pdf, err = s.render(view)
		if err != nil {
			return err
		}
		stored, err = s.storeDocument(ctx, view.DocURL, pdf)
		return err
	})
	if err != nil {
		if stored != "" {
			s.discard(ctx, stored)
		}
		return InvoiceView{}, nil, err
	}
	obs.InvoiceEvent("created")
	obs.FromContext(ctx).WithField("invoice_number", view.Number).Info("invoice created")
	return view, pdf, nil
}

// Cancel clears due_by and re-renders the document. Paid and already
// cancelled invoices are rejected.
func (s *Invoices) Cancel(ctx context.Context, id string) (InvoiceView, error) {
	view, err := s.Get(ctx, id)
	if err != nil {
		return InvoiceView{}, err
	}
	if err := cancellable(view.Invoice); err != nil {
		return InvoiceView{}, err
	}
	prev, fresh := view.DocURL, ""
	err = s.store.RunBillingTx(ctx, func(tx Tx) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if err := cancellable(inv); err != nil {
			return err
		}
		if err := tx.CancelInvoice(ctx, id); err != nil {
			return err
		}
		view.Invoice = inv
		view.DueBy = nil
		fresh, err = s.rerender(ctx, tx, &view)
		return err
	})
	if err != nil {
		s.discard(ctx, fresh)
		return InvoiceView{}, err
	}
	s.replaced(ctx, prev, view.DocURL)
	obs.InvoiceEvent("cancelled")
	return view, nil
}

// Pay books the invoice total as a payment with its credit transaction, stamps
// paid_on and re-renders the document, all in one database transaction.
func (s *Invoices) Pay(ctx context.Context, in PayInvoice) (InvoiceView, ledger.Transaction, error) {
	view, err := s.Get(ctx, in.InvoiceID)
	if err != nil {
		return InvoiceView{}, ledger.Transaction{}, err
	}
	if err := payable(view.Invoice); err != nil {
		return InvoiceView{}, ledger.Transaction{}, err
	}

	src := ledger.Source{
		ID:           ids.New(),
		Kind:         ledger.KindPayment,
		InvoiceID:    view.ID,
		CurrencyID:   view.CurrencyID,
		ExchangeRate: in.ExchangeRate,
		Description:  "payment for invoice " + view.Number,
		Amount:       view.Total(),
	}
	var docKey string
	if in.Document != nil {
		docKey = fmt.Sprintf("invoices/payment/%s%s", src.ID, in.Document.Ext())
		url, err := s.blobs.Put(ctx, docKey, in.Document.ContentType, in.Document.Body)
		if err != nil {
			return InvoiceView{}, ledger.Transaction{}, fmt.Errorf("store payment document: %w", err)
		}
		src.DocURL = url
	}

	var booked ledger.Transaction
	prev, fresh := view.DocURL, ""
	err = s.store.RunBillingTx(ctx, func(tx Tx) error {
		inv, err := tx.LockInvoice(ctx, view.ID)
		if err != nil {
			return err
		}
		if err := payable(inv); err != nil {
			return err
		}
		booked, err = s.ledger.RecordTx(ctx, tx, ledger.Entry{
			Source:    src,
			AccountID: in.AccountID,
			OrgID:     view.Organization.ID,
		})
		if err != nil {
			return err
		}
		paidOn := s.now().UTC()
		if err := tx.MarkInvoicePaid(ctx, view.ID, paidOn); err != nil {
			return err
		}
		view.Invoice = inv
		view.PaidOn = &paidOn
		fresh, err = s.rerender(ctx, tx, &view)
		return err
	})
	if err != nil {
		s.discard(ctx, docKey)
		s.discard(ctx, fresh)
		return InvoiceView{}, ledger.Transaction{}, err
	}
	s.replaced(ctx, prev, view.DocURL)
	obs.InvoiceEvent("paid")
	return view, booked, nil
}

// Share mails the stored invoice PDF. The client's contact is always a
// recipient and the requester is always copied. Delivery failures leave the
// invoice untouched.
func (s *Invoices) Share(ctx context.Context, in ShareInvoice) error {
	view, err := s.Get(ctx, in.InvoiceID)
	if err != nil {
		return err
	}
	pdf, err := s.readDocument(ctx, view)
	if err != nil {
		return err
	}
	sym := view.Currency.Symbol
	body := fmt.Sprintf("Dear %s,\n\nPlease find attached invoice %s.\nStatus: %s\nAmount due: %s%s\n",
		firstNonEmpty(view.Client.ContactName, view.Client.Name), view.Number, shareStatus(view.Invoice),
		sym, view.Total().StringFixed(2))
	if view.DueBy != nil && !view.Paid() {
		body += "Due by: " + view.DueBy.Format("January 02, 2006") + "\n"
	}
	body += "\nRegards,\n" + view.Organization.Name + "\n"

	msg := mail.Message{
		To: withRecipient(in.To, view.Client.ContactEmail),
		CC: withRecipient(in.CC, in.RequesterEmail),
		Subject: fmt.Sprintf("%s | Invoice (%s - %s)", view.Organization.Name,
			view.PeriodStart.Format("January 02, 2006"), view.PeriodEnd.Format("January 02, 2006")),
		Body: body,
		Attachments: []mail.Attachment{{
			Filename:    strings.ReplaceAll(view.Number, "/", "-") + ".pdf",
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		obs.FromContext(ctx).WithError(err).WithField("invoice_id", view.ID).Error("invoice delivery failed")
		return fmt.Errorf("%w: Failed to share invoice", ErrShareFailed)
	}
	obs.InvoiceEvent("shared")
	return nil
}

// Document opens the stored PDF of an invoice.
func (s *Invoices) Document(ctx context.Context, id string) (io.ReadCloser, InvoiceView, error) {
	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, InvoiceView{}, err
	}
	if view.DocURL == "" {
		return nil, InvoiceView{}, fmt.Errorf("%w: Invoice document not found", ErrNoDocument)
	}
	rc, err := s.blobs.Get(ctx, view.DocURL)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, InvoiceView{}, fmt.Errorf("%w: Invoice document not found", ErrNoDocument)
	}
	if err != nil {
		return nil, InvoiceView{}, err
	}
	return rc, view, nil
}

// Delete removes an unpaid invoice, releasing its timesheets for billing again.
func (s *Invoices) Delete(ctx context.Context, id string) error {
	view, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if view.Paid() {
		return fmt.Errorf("%w: Paid invoice cannot be deleted", ErrAlreadyPaid)
	}
	if err := s.store.DeleteInvoice(ctx, id); err != nil {
		return err
	}
	s.discard(ctx, view.DocURL)
	obs.InvoiceEvent("deleted")
	return nil
}

// rerender stores the document for the invoice's new state under a fresh
// key. The key is returned even on failure so the caller can discard it.
func (s *Invoices) rerender(ctx context.Context, tx Tx, view *InvoiceView) (string, error) {
	pdf, err := s.render(*view)
	if err != nil {
		return "", err
	}
	url, err := s.storeDocument(ctx, revisionKey(view.Number), pdf)
	if err != nil {
		return "", err
	}
	if err := tx.SetInvoiceDocument(ctx, view.ID, url); err != nil {
		return url, err
	}
	view.DocURL = url
	return url, nil
}

// replaced drops the superseded document once the new one is committed.
func (s *Invoices) replaced(ctx context.Context, prev, current string) {
	if prev != "" && prev != current {
		s.discard(ctx, prev)
	}
}

func (s *Invoices) render(view InvoiceView) ([]byte, error) {
	doc := document.Invoice{
		Number: view.Number,
		Issuer: document.Party{
			Name:         view.Organization.Name,
			Registration: view.Organization.Registration,
			Address:      view.Organization.Address(),
		},
		Client: document.Party{
			Name:         view.Client.Name,
			Registration: view.Client.Registration,
			Address:      view.Client.Address(),
		},
		WorkOrder:      view.WorkOrder.Description,
		PeriodStart:    view.PeriodStart,
		PeriodEnd:      view.PeriodEnd,
		GeneratedOn:    view.GeneratedOn,
		DueBy:          view.DueBy,
		PaidOn:         view.PaidOn,
		CurrencySymbol: view.Currency.Symbol,
		Amount:         view.Amount,
		Tax:            view.Tax,
	}
	for _, it := range view.Items {
		doc.Items = append(doc.Items, document.InvoiceLine{
			Description: it.Description,
			Quantity:    it.Quantity,
			Rate:        it.Rate,
			Amount:      it.Amount,
		})
	}
	pdf, err := s.renderer.RenderInvoice(doc)
	if err != nil {
		return nil, generationFailed(err)
	}
	return pdf, nil
}

func (s *Invoices) storeDocument(ctx context.Context, key string, pdf []byte) (string, error) {
	url, err := s.blobs.Put(ctx, key, "application/pdf", bytes.NewReader(pdf))
	if err != nil {
		return "", generationFailed(err)
	}
	return url, nil
}

func (s *Invoices) readDocument(ctx context.Context, view InvoiceView) ([]byte, error) {
	if view.DocURL == "" {
		return nil, fmt.Errorf("%w: Invoice document not found", ErrNoDocument)
	}
	pdf, err := blob.ReadAll(ctx, s.blobs, view.DocURL)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, fmt.Errorf("%w: Invoice document not found", ErrNoDocument)
	}
	return pdf, err
}

func (s *Invoices) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		obs.FromContext(ctx).WithError(err).WithField("key", key).Warn("orphaned invoice document")
	}
}

func generationFailed(err error) error {
	obs.Log().WithError(err).Error("invoice rendering failed")
	return fmt.Errorf("%w: Error generating invoice", ErrGeneration)
}

func invoiceKey(number string) string { return "invoices/" + number + ".pdf" }

func revisionKey(number string) string { return "invoices/" + number + "-" + ids.New() + ".pdf" }

func payable(inv Invoice) error {
	if inv.Paid() {
		return fmt.Errorf("%w: Invoice already paid", ErrAlreadyPaid)
	}
	if inv.Cancelled() {
		return fmt.Errorf("%w: Invoice is cancelled and cannot be paid", ErrCancelled)
	}
	return nil
}

func cancellable(inv Invoice) error {
	if inv.Paid() {
		return fmt.Errorf("%w: Invoice already paid", ErrAlreadyPaid)
	}
	if inv.Cancelled() {
		return fmt.Errorf("%w: Invoice already cancelled", ErrCancelled)
	}
	return nil
}

func shareStatus(inv Invoice) string {
	switch {
	case inv.Cancelled():
		return "CANCELLED"
	case inv.Paid():
		return "PAID"
	default:
		return "DUE"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
