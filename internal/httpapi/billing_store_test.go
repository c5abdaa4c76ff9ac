package httpapi

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tallybook.io/internal/billing"
	"tallybook.io/internal/ledger"
)

// memBilling backs work orders and invoices for handler tests. It knows the
// ACME organization (org-1), its domestic client C1 and the USD currency.
type memBilling struct {
	mu         sync.Mutex
	ledger     *ledger.InMemory
	orgs       map[string]billing.Organization
	clients    map[string]billing.Client
	currencies map[string]billing.Currency
	workOrders map[string]billing.WorkOrder
	sheets     map[string]billing.Timesheet
	invoices   map[string]billing.Invoice
	items      map[string][]billing.InvoiceItem
	seq        map[string]int64
	next       int

	searched string
}

func newMemBilling(led *ledger.InMemory) *memBilling {
	return &memBilling{
		ledger:     led,
		orgs:       map[string]billing.Organization{"org-1": {ID: "org-1", Name: "Acme", Abr: "ACME", Active: true}},
		clients:    map[string]billing.Client{"client-c1": {ID: "client-c1", OrgID: "org-1", Name: "Client One", Abr: "C1", Domestic: true, ContactEmail: "billing@client.test", Active: true}},
		currencies: map[string]billing.Currency{"cur-USD": {ID: "cur-USD", Name: "US Dollar", Abr: "USD", Symbol: "$"}},
		workOrders: map[string]billing.WorkOrder{},
		sheets:     map[string]billing.Timesheet{},
		invoices:   map[string]billing.Invoice{},
		items:      map[string][]billing.InvoiceItem{},
		seq:        map[string]int64{},
	}
}

func (s *memBilling) id(prefix string) string {
	s.next++
	return fmt.Sprintf("%s-%d", prefix, s.next)
}

func (s *memBilling) invoice(id string) billing.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoices[id]
}

func (s *memBilling) GetOrganization(_ context.Context, id string) (billing.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return billing.Organization{}, billing.ErrNotFound
	}
	return o, nil
}

func (s *memBilling) GetClient(_ context.Context, id string) (billing.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return billing.Client{}, billing.ErrNotFound
	}
	return c, nil
}

func (s *memBilling) GetCurrency(_ context.Context, id string) (billing.Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.currencies[id]
	if !ok {
		return billing.Currency{}, billing.ErrNotFound
	}
	return c, nil
}

func (s *memBilling) ListWorkOrders(_ context.Context, orgID string) ([]billing.WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []billing.WorkOrder{}
	for _, w := range s.workOrders {
		if s.clients[w.ClientID].OrgID == orgID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *memBilling) GetWorkOrder(_ context.Context, id string) (billing.WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workOrders[id]
	if !ok {
		return billing.WorkOrder{}, billing.ErrNotFound
	}
	return w, nil
}

func (s *memBilling) CreateWorkOrder(_ context.Context, w billing.WorkOrder) (billing.WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = s.id("wo")
	}
	s.workOrders[w.ID] = w
	return w, nil
}

func (s *memBilling) UpdateWorkOrder(_ context.Context, w billing.WorkOrder) (billing.WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workOrders[w.ID]; !ok {
		return billing.WorkOrder{}, billing.ErrNotFound
	}
	s.workOrders[w.ID] = w
	return w, nil
}

func (s *memBilling) DeleteWorkOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.WorkOrderID == id {
			return billing.ErrConflict
		}
	}
	delete(s.workOrders, id)
	return nil
}

func (s *memBilling) ListTimesheets(_ context.Context, f billing.TimesheetFilter) ([]billing.Timesheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.Timesheet
	for _, ts := range s.sheets {
		switch {
		case f.WorkOrderID != "" && ts.WorkOrderID != f.WorkOrderID,
			f.ChargedByID != "" && ts.ChargedByID != f.ChargedByID,
			!f.From.IsZero() && ts.StartTime.Before(f.From),
			!f.To.IsZero() && ts.EndTime.After(f.To),
			f.Invoiced != nil && ts.Invoiced != *f.Invoiced:
			continue
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *memBilling) GetTimesheet(_ context.Context, id string) (billing.Timesheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.sheets[id]
	if !ok {
		return billing.Timesheet{}, billing.ErrNotFound
	}
	return ts, nil
}

func (s *memBilling) CreateTimesheet(_ context.Context, ts billing.Timesheet) (billing.Timesheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts.ID = s.id("ts")
	s.sheets[ts.ID] = ts
	return ts, nil
}

func (s *memBilling) UpdateTimesheet(_ context.Context, ts billing.Timesheet) (billing.Timesheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[ts.ID] = ts
	return ts, nil
}

func (s *memBilling) DeleteTimesheet(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sheets, id)
	return nil
}

func (s *memBilling) InvoiceView(_ context.Context, id string) (billing.InvoiceView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return billing.InvoiceView{}, billing.ErrNotFound
	}
	wo := s.workOrders[inv.WorkOrderID]
	client := s.clients[wo.ClientID]
	return billing.InvoiceView{
		Invoice:      inv,
		Items:        append([]billing.InvoiceItem(nil), s.items[id]...),
		WorkOrder:    wo,
		Client:       client,
		Organization: s.orgs[client.OrgID],
		Currency:     s.currencies[inv.CurrencyID],
	}, nil
}

func (s *memBilling) ListInvoices(_ context.Context, orgID string) ([]billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []billing.Invoice{}
	for _, inv := range s.invoices {
		if s.clients[s.workOrders[inv.WorkOrderID].ClientID].OrgID == orgID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	return out, nil
}

func (s *memBilling) SearchInvoices(ctx context.Context, orgID, text string) ([]billing.Invoice, error) {
	s.mu.Lock()
	s.searched = orgID + "|" + text
	s.mu.Unlock()
	all, err := s.ListInvoices(ctx, orgID)
	if err != nil {
		return nil, err
	}
	out := []billing.Invoice{}
	for _, inv := range all {
		if strings.Contains(strings.ToLower(inv.Number), strings.ToLower(text)) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *memBilling) DeleteInvoice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[id]; !ok {
		return billing.ErrNotFound
	}
	for k, ts := range s.sheets {
		if ts.InvoiceID == id {
			ts.Invoiced, ts.InvoiceID = false, ""
			s.sheets[k] = ts
		}
	}
	delete(s.invoices, id)
	delete(s.items, id)
	return nil
}

func (s *memBilling) RunBillingTx(ctx context.Context, fn func(billing.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memBillingTx{
		invoices: clone(s.invoices),
		items:    clone(s.items),
		sheets:   clone(s.sheets),
		seq:      clone(s.seq),
	}
	return s.ledger.RunLedgerTx(ctx, func(lt ledger.Tx) error {
		tx.Tx = lt
		if err := fn(tx); err != nil {
			return err
		}
		s.invoices, s.items, s.sheets, s.seq = tx.invoices, tx.items, tx.sheets, tx.seq
		return nil
	})
}

type memBillingTx struct {
	ledger.Tx
	invoices map[string]billing.Invoice
	items    map[string][]billing.InvoiceItem
	sheets   map[string]billing.Timesheet
	seq      map[string]int64
}

func (t *memBillingTx) NextInvoiceSequence(_ context.Context, orgID string) (int64, error) {
	t.seq[orgID]++
	return t.seq[orgID], nil
}

func (t *memBillingTx) InsertInvoice(_ context.Context, inv billing.Invoice, items []billing.InvoiceItem) error {
	for _, other := range t.invoices {
		if other.Number == inv.Number {
			return billing.ErrConflict
		}
	}
	t.invoices[inv.ID] = inv
	t.items[inv.ID] = append([]billing.InvoiceItem(nil), items...)
	return nil
}

func (t *memBillingTx) MarkTimesheetsInvoiced(_ context.Context, workOrderID string, from, to time.Time, invoiceID string) (int64, error) {
	var n int64
	for k, ts := range t.sheets {
		if ts.WorkOrderID != workOrderID || ts.Invoiced || ts.StartTime.Before(from) || ts.StartTime.After(to) {
			continue
		}
		ts.Invoiced, ts.InvoiceID = true, invoiceID
		t.sheets[k] = ts
		n++
	}
	return n, nil
}

func (t *memBillingTx) LockInvoice(_ context.Context, id string) (billing.Invoice, error) {
	inv, ok := t.invoices[id]
	if !ok {
		return billing.Invoice{}, billing.ErrNotFound
	}
	return inv, nil
}

func (t *memBillingTx) SetInvoiceDocument(_ context.Context, id, docURL string) error {
	inv := t.invoices[id]
	inv.DocURL = docURL
	t.invoices[id] = inv
	return nil
}

func (t *memBillingTx) MarkInvoicePaid(_ context.Context, id string, paidOn time.Time) error {
	inv := t.invoices[id]
	inv.PaidOn = &paidOn
	t.invoices[id] = inv
	return nil
}

func (t *memBillingTx) CancelInvoice(_ context.Context, id string) error {
	inv := t.invoices[id]
	inv.DueBy = nil
	t.invoices[id] = inv
	return nil
}

func clone[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
