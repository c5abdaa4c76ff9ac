package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemAccount is an account known to the in-memory store.
type MemAccount struct {
	ID     string
	OrgID  string
	Name   string
	Number string
}

// InMemory is a process-local Store. Writes made inside RunLedgerTx become
// visible only when the callback returns nil.
type InMemory struct {
	mu         sync.RWMutex
	accounts   map[string]MemAccount
	currencies map[string]string
	sources    map[string]Source
	txs        []Transaction

	// FailInsertTransaction makes the next transaction insert fail, for exercising rollback.
	FailInsertTransaction error
}

func NewInMemory() *InMemory {
	return &InMemory{
		accounts:   make(map[string]MemAccount),
		currencies: make(map[string]string),
		sources:    make(map[string]Source),
	}
}

func (s *InMemory) AddAccount(a MemAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

func (s *InMemory) AddCurrency(id, abr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currencies[id] = abr
}

// Transactions returns a copy of all committed rows.
func (s *InMemory) Transactions() []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Transaction(nil), s.txs...)
}

// Sources returns the number of committed payment and expense rows.
func (s *InMemory) Sources() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}

func (s *InMemory) RunLedgerTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	for _, src := range tx.sources {
		s.sources[src.ID] = src
	}
	s.txs = append(s.txs, tx.txs...)
	return nil
}

func (s *InMemory) ListTransactions(ctx context.Context, orgID string) ([]TransactionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TransactionView
	for _, t := range s.txs {
		acc := s.accounts[t.AccountID]
		if acc.OrgID != orgID {
			continue
		}
		srcID := t.PaymentID
		if srcID == "" {
			srcID = t.ExpenseID
		}
		src := s.sources[srcID]
		out = append(out, TransactionView{
			ID:               t.ID,
			Description:      src.Description,
			AccountName:      acc.Name,
			AccountNumber:    acc.Number,
			Debit:            t.Debit,
			Credit:           t.Credit,
			OriginalCurrency: s.currencies[src.CurrencyID],
			TransactionDate:  t.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TransactionDate.After(out[j].TransactionDate) })
	return out, nil
}

func (s *InMemory) TransactionSource(ctx context.Context, transactionID string) (Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.txs {
		if t.ID != transactionID {
			continue
		}
		id := t.PaymentID
		if id == "" {
			id = t.ExpenseID
		}
		if src, ok := s.sources[id]; ok {
			return src, nil
		}
	}
	return Source{}, ErrNotFound
}

type memTx struct {
	store   *InMemory
	sources []Source
	txs     []Transaction
}

func (t *memTx) AccountInOrg(_ context.Context, accountID, orgID string) (bool, error) {
	a, ok := t.store.accounts[accountID]
	return ok && (orgID == "" || a.OrgID == orgID), nil
}

func (t *memTx) CurrencyExists(_ context.Context, id string) (bool, error) {
	_, ok := t.store.currencies[id]
	return ok, nil
}

func (t *memTx) InsertSource(_ context.Context, src Source) error {
	t.sources = append(t.sources, src)
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, tx Transaction) error {
	if err := t.store.FailInsertTransaction; err != nil {
		t.store.FailInsertTransaction = nil
		return err
	}
	t.txs = append(t.txs, tx)
	return nil
}
