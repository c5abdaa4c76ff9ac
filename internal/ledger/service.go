package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tallybook.io/internal/blob"
	"tallybook.io/internal/ids"
	"tallybook.io/internal/obs"
)

// Tx is the write surface available inside one database transaction.
type Tx interface {
	AccountInOrg(ctx context.Context, accountID, orgID string) (bool, error)
	CurrencyExists(ctx context.Context, currencyID string) (bool, error)
	InsertSource(ctx context.Context, s Source) error
	InsertTransaction(ctx context.Context, t Transaction) error
}

// Store persists ledger rows.
type Store interface {
	RunLedgerTx(ctx context.Context, fn func(Tx) error) error
	ListTransactions(ctx context.Context, orgID string) ([]TransactionView, error)
	TransactionSource(ctx context.Context, transactionID string) (Source, error)
}

// Service records payments and expenses with their ledger rows.
type Service struct {
	store Store
	blobs blob.Storage
	now   func() time.Time
}

func NewService(store Store, blobs blob.Storage) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger: store is required")
	}
	return &Service{store: store, blobs: blobs, now: time.Now}, nil
}

// Record writes the source row and its transaction atomically. A supporting
// document, when given, is stored first and removed again if the write fails.
func (s *Service) Record(ctx context.Context, e Entry, doc *blob.Upload) (Source, Transaction, error) {
	if err := normalize(&e.Source); err != nil {
		return Source{}, Transaction{}, err
	}
	e.Source.ID = ids.New()

	var key string
	if doc != nil {
		if s.blobs == nil {
			return Source{}, Transaction{}, errors.New("ledger: document storage is not configured")
		}
		key = fmt.Sprintf("invoices/%s/%s%s", e.Source.Kind, e.Source.ID, doc.Ext())
		url, err := s.blobs.Put(ctx, key, doc.ContentType, doc.Body)
		if err != nil {
			return Source{}, Transaction{}, fmt.Errorf("store %s document: %w", e.Source.Kind, err)
		}
		e.Source.DocURL = url
	}

	var tx Transaction
	err := s.store.RunLedgerTx(ctx, func(t Tx) error {
		var err error
		tx, err = s.RecordTx(ctx, t, e)
		return err
	})
	if err != nil {
		if key != "" {
			if derr := s.blobs.Delete(ctx, key); derr != nil && !errors.Is(derr, blob.ErrNotFound) {
				obs.FromContext(ctx).WithError(derr).WithField("key", key).Warn("orphaned ledger document")
			}
		}
		return Source{}, Transaction{}, err
	}
	return e.Source, tx, nil
}

// RecordTx books an entry inside a caller-owned transaction. The source must
// already carry its id.
func (s *Service) RecordTx(ctx context.Context, t Tx, e Entry) (Transaction, error) {
	if e.Source.ID == "" {
		return Transaction{}, ErrMissingSource
	}
	if err := normalize(&e.Source); err != nil {
		return Transaction{}, err
	}
	ok, err := t.AccountInOrg(ctx, e.AccountID, e.OrgID)
	if err != nil {
		return Transaction{}, err
	}
	if !ok {
		return Transaction{}, ErrInvalidAccount
	}
	ok, err = t.CurrencyExists(ctx, e.Source.CurrencyID)
	if err != nil {
		return Transaction{}, err
	}
	if !ok {
		return Transaction{}, ErrInvalidCurrency
	}

	tx, err := Build(Event{
		Kind:         e.Source.Kind,
		Amount:       e.Source.Amount,
		ExchangeRate: e.Source.ExchangeRate,
		AccountID:    e.AccountID,
		SourceID:     e.Source.ID,
	})
	if err != nil {
		return Transaction{}, err
	}

	now := s.now().UTC()
	if e.Source.CreatedAt.IsZero() {
		e.Source.CreatedAt = now
	}
	if err := t.InsertSource(ctx, e.Source); err != nil {
		return Transaction{}, fmt.Errorf("insert %s: %w", e.Source.Kind, err)
	}
	tx.ID = ids.New()
	tx.CreatedAt = now
	if err := t.InsertTransaction(ctx, tx); err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	obs.LedgerTransaction(string(e.Source.Kind))
	return tx, nil
}

// List returns the organization's ledger, newest first.
func (s *Service) List(ctx context.Context, orgID string) ([]TransactionView, error) {
	return s.store.ListTransactions(ctx, orgID)
}

// Document opens the supporting document of a transaction's source row.
func (s *Service) Document(ctx context.Context, transactionID string) (io.ReadCloser, Source, error) {
	src, err := s.store.TransactionSource(ctx, transactionID)
	if err != nil {
		return nil, Source{}, err
	}
	if src.DocURL == "" || s.blobs == nil {
		return nil, Source{}, ErrNotFound
	}
	rc, err := s.blobs.Get(ctx, src.DocURL)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, Source{}, ErrNotFound
	}
	if err != nil {
		return nil, Source{}, err
	}
	return rc, src, nil
}

func normalize(src *Source) error {
	if !src.Kind.Valid() {
		return ErrInvalidKind
	}
	if src.Kind == KindExpense && src.InvoiceID != "" {
		return fmt.Errorf("%w: expenses cannot reference an invoice", ErrInvalidKind)
	}
	src.Description = strings.TrimSpace(src.Description)
	if src.ExchangeRate.IsZero() {
		src.ExchangeRate = decimal.NewFromInt(1)
	}
	if !src.ExchangeRate.IsPositive() {
		return ErrInvalidRate
	}
	if !src.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	src.Amount = src.Amount.Round(2)
	return nil
}
