package billing

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"tallybook.io/internal/ids"
	"tallybook.io/internal/ledger"
	"tallybook.io/internal/mail"
)

// memStore keeps invoicing state in maps. Billing transactions work on copies
// that replace the committed maps only when the callback succeeds.
type memStore struct {
	mu         sync.Mutex
	ledger     *ledger.InMemory
	orgs       map[string]Organization
	clients    map[string]Client
	currencies map[string]Currency
	workOrders map[string]WorkOrder
	sheets     map[string]Timesheet
	invoices   map[string]Invoice
	items      map[string][]InvoiceItem
	seq        map[string]int64

	failInsertInvoice error
	// failCommit fails RunBillingTx after every statement succeeded.
	failCommit error
}

func newMemStore() *memStore {
	return &memStore{
		ledger:     ledger.NewInMemory(),
		orgs:       map[string]Organization{},
		clients:    map[string]Client{},
		currencies: map[string]Currency{},
		workOrders: map[string]WorkOrder{},
		sheets:     map[string]Timesheet{},
		invoices:   map[string]Invoice{},
		items:      map[string][]InvoiceItem{},
		seq:        map[string]int64{},
	}
}

func (s *memStore) addCurrency(c Currency) Currency {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currencies[c.ID] = c
	s.ledger.AddCurrency(c.ID, c.Abr)
	return c
}

func (s *memStore) addOrganization(o Organization) Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[o.ID] = o
	return o
}

func (s *memStore) addClient(c Client) Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
	return c
}

func (s *memStore) addAccount(id, orgID string) {
	s.ledger.AddAccount(ledger.MemAccount{ID: id, OrgID: orgID, Name: "Operating", Number: "001"})
}

func (s *memStore) invoice(id string) Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoices[id]
}

func (s *memStore) timesheet(id string) Timesheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheets[id]
}

func (s *memStore) invoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invoices)
}

func (s *memStore) GetOrganization(_ context.Context, id string) (Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return o, nil
}

func (s *memStore) GetClient(_ context.Context, id string) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return Client{}, ErrNotFound
	}
	return c, nil
}

func (s *memStore) GetCurrency(_ context.Context, id string) (Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.currencies[id]
	if !ok {
		return Currency{}, ErrNotFound
	}
	return c, nil
}

func (s *memStore) ListWorkOrders(_ context.Context, orgID string) ([]WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []WorkOrder
	for _, w := range s.workOrders {
		if s.clients[w.ClientID].OrgID == orgID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *memStore) GetWorkOrder(_ context.Context, id string) (WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workOrders[id]
	if !ok {
		return WorkOrder{}, ErrNotFound
	}
	return w, nil
}

func (s *memStore) CreateWorkOrder(_ context.Context, w WorkOrder) (WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = ids.New()
	}
	s.workOrders[w.ID] = w
	return w, nil
}

func (s *memStore) UpdateWorkOrder(_ context.Context, w WorkOrder) (WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workOrders[w.ID]; !ok {
		return WorkOrder{}, ErrNotFound
	}
	s.workOrders[w.ID] = w
	return w, nil
}

func (s *memStore) DeleteWorkOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.WorkOrderID == id {
			return ErrConflict
		}
	}
	delete(s.workOrders, id)
	return nil
}

func (s *memStore) ListTimesheets(_ context.Context, f TimesheetFilter) ([]Timesheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Timesheet
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

func (s *memStore) GetTimesheet(_ context.Context, id string) (Timesheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.sheets[id]
	if !ok {
		return Timesheet{}, ErrNotFound
	}
	return ts, nil
}

func (s *memStore) CreateTimesheet(_ context.Context, ts Timesheet) (Timesheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts.ID = ids.New()
	s.sheets[ts.ID] = ts
	return ts, nil
}

func (s *memStore) UpdateTimesheet(_ context.Context, ts Timesheet) (Timesheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[ts.ID] = ts
	return ts, nil
}

func (s *memStore) DeleteTimesheet(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sheets, id)
	return nil
}

func (s *memStore) InvoiceView(_ context.Context, id string) (InvoiceView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return InvoiceView{}, ErrNotFound
	}
	wo := s.workOrders[inv.WorkOrderID]
	client := s.clients[wo.ClientID]
	return InvoiceView{
		Invoice:      inv,
		Items:        append([]InvoiceItem(nil), s.items[id]...),
		WorkOrder:    wo,
		Client:       client,
		Organization: s.orgs[client.OrgID],
		Currency:     s.currencies[inv.CurrencyID],
	}, nil
}

func (s *memStore) ListInvoices(_ context.Context, orgID string) ([]Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Invoice
	for _, inv := range s.invoices {
		if s.clients[s.workOrders[inv.WorkOrderID].ClientID].OrgID == orgID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	return out, nil
}

func (s *memStore) SearchInvoices(ctx context.Context, orgID, text string) ([]Invoice, error) {
	all, err := s.ListInvoices(ctx, orgID)
	if err != nil {
		return nil, err
	}
	var out []Invoice
	for _, inv := range all {
		if strings.Contains(strings.ToLower(inv.Number), strings.ToLower(text)) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *memStore) DeleteInvoice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[id]; !ok {
		return ErrNotFound
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

func (s *memStore) RunBillingTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{
		store:    s,
		invoices: cloneMap(s.invoices),
		items:    cloneMap(s.items),
		sheets:   cloneMap(s.sheets),
		seq:      cloneMap(s.seq),
	}
	return s.ledger.RunLedgerTx(ctx, func(lt ledger.Tx) error {
		tx.Tx = lt
		if err := fn(tx); err != nil {
			return err
		}
		if s.failCommit != nil {
			return s.failCommit
		}
		s.invoices, s.items, s.sheets, s.seq = tx.invoices, tx.items, tx.sheets, tx.seq
		return nil
	})
}

type memTx struct {
	ledger.Tx
	store    *memStore
	invoices map[string]Invoice
	items    map[string][]InvoiceItem
	sheets   map[string]Timesheet
	seq      map[string]int64
}

func (t *memTx) NextInvoiceSequence(_ context.Context, orgID string) (int64, error) {
	t.seq[orgID]++
	return t.seq[orgID], nil
}

func (t *memTx) InsertInvoice(_ context.Context, inv Invoice, items []InvoiceItem) error {
	if err := t.store.failInsertInvoice; err != nil {
		return err
	}
	for _, other := range t.invoices {
		if other.Number == inv.Number {
			return ErrConflict
		}
	}
	t.invoices[inv.ID] = inv
	t.items[inv.ID] = append([]InvoiceItem(nil), items...)
	return nil
}

func (t *memTx) MarkTimesheetsInvoiced(_ context.Context, workOrderID string, from, to time.Time, invoiceID string) (int64, error) {
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

func (t *memTx) LockInvoice(_ context.Context, id string) (Invoice, error) {
	inv, ok := t.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (t *memTx) SetInvoiceDocument(_ context.Context, id, docURL string) error {
	inv := t.invoices[id]
	inv.DocURL = docURL
	t.invoices[id] = inv
	return nil
}

func (t *memTx) MarkInvoicePaid(_ context.Context, id string, paidOn time.Time) error {
	inv := t.invoices[id]
	inv.PaidOn = &paidOn
	t.invoices[id] = inv
	return nil
}

func (t *memTx) CancelInvoice(_ context.Context, id string) error {
	inv := t.invoices[id]
	inv.DueBy = nil
	t.invoices[id] = inv
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// recordingMailer keeps sent messages and fails when err is set.
type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

var errBoom = errors.New("boom")
