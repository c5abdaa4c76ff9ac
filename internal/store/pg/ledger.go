package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/volatiletech/null"

	"tallybook.io/internal/ledger"
)

func (s *Store) RunLedgerTx(ctx context.Context, fn func(ledger.Tx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// ListTransactions returns the organization's ledger, newest first. Amounts are
// reported in the organization's default currency next to the original one.
func (s *Store) ListTransactions(ctx context.Context, orgID string) ([]ledger.TransactionView, error) {
	return queryAll(ctx, s.db, scanTransactionView, `
		select t.id, coalesce(p.description, e.description, ''), a.account_name, a.account_number,
		       dc.abr, dc.symbol, t.debit, t.credit,
		       coalesce(sc.abr, ''), coalesce(sc.symbol, ''), t.created_at
		from transactions t
		join accounts a on a.id = t.account_id
		join organizations o on o.id = a.org_id
		join currencies dc on dc.id = o.default_currency_id
		left join payments p on p.id = t.payment_id
		left join expenses e on e.id = t.expense_id
		left join currencies sc on sc.id = coalesce(p.currency_id, e.currency_id)
		where a.org_id = $1
		order by t.created_at desc, t.id desc
	`, orgID)
}

func scanTransactionView(row scanner) (ledger.TransactionView, error) {
	var v ledger.TransactionView
	err := row.Scan(&v.ID, &v.Description, &v.AccountName, &v.AccountNumber,
		&v.Currency, &v.CurrencySymbol, &v.Debit, &v.Credit,
		&v.OriginalCurrency, &v.OriginalCurrencySymbol, &v.TransactionDate)
	return v, err
}

// TransactionSource loads the payment or expense a transaction was booked from.
func (s *Store) TransactionSource(ctx context.Context, transactionID string) (ledger.Source, error) {
	var paymentID, expenseID null.String
	err := s.db.QueryRowContext(ctx, `select payment_id, expense_id from transactions where id = $1`, transactionID).
		Scan(&paymentID, &expenseID)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Source{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Source{}, err
	}

	var (
		src ledger.Source
		inv null.String
		doc null.String
	)
	switch {
	case paymentID.Valid:
		src.Kind = ledger.KindPayment
		err = s.db.QueryRowContext(ctx, `
			select id, invoice_id, currency_id, exchange_rate, description, doc_url, amount, created_at
			from payments where id = $1
		`, paymentID.String).Scan(&src.ID, &inv, &src.CurrencyID, &src.ExchangeRate, &src.Description, &doc, &src.Amount, &src.CreatedAt)
	case expenseID.Valid:
		src.Kind = ledger.KindExpense
		err = s.db.QueryRowContext(ctx, `
			select id, currency_id, exchange_rate, description, doc_url, amount, created_at
			from expenses where id = $1
		`, expenseID.String).Scan(&src.ID, &src.CurrencyID, &src.ExchangeRate, &src.Description, &doc, &src.Amount, &src.CreatedAt)
	default:
		return ledger.Source{}, ledger.ErrNotFound
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Source{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Source{}, err
	}
	src.InvoiceID, src.DocURL = inv.String, doc.String
	return src, nil
}

// AccountInOrg reports whether the account exists and, when orgID is set, belongs to it.
func (t *pgTx) AccountInOrg(ctx context.Context, accountID, orgID string) (bool, error) {
	var ok bool
	err := t.tx.QueryRowContext(ctx, `
		select exists(select 1 from accounts where id = $1 and ($2 = '' or org_id = $2))
	`, accountID, orgID).Scan(&ok)
	return ok, err
}

func (t *pgTx) CurrencyExists(ctx context.Context, currencyID string) (bool, error) {
	var ok bool
	err := t.tx.QueryRowContext(ctx, `select exists(select 1 from currencies where id = $1)`, currencyID).Scan(&ok)
	return ok, err
}

func (t *pgTx) InsertSource(ctx context.Context, src ledger.Source) error {
	var err error
	switch src.Kind {
	case ledger.KindPayment:
		_, err = t.tx.ExecContext(ctx, `
			insert into payments (id, invoice_id, currency_id, exchange_rate, description, doc_url, amount, created_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
		`, src.ID, nullIfEmpty(src.InvoiceID), src.CurrencyID, src.ExchangeRate, src.Description,
			nullIfEmpty(src.DocURL), src.Amount, src.CreatedAt)
	case ledger.KindExpense:
		_, err = t.tx.ExecContext(ctx, `
			insert into expenses (id, currency_id, exchange_rate, description, doc_url, amount, created_at)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, src.ID, src.CurrencyID, src.ExchangeRate, src.Description, nullIfEmpty(src.DocURL), src.Amount, src.CreatedAt)
	default:
		return fmt.Errorf("%w: %q", ledger.ErrInvalidKind, src.Kind)
	}
	return err
}

func (t *pgTx) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
		insert into transactions (id, account_id, debit, credit, payment_id, expense_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, tx.ID, tx.AccountID, tx.Debit, tx.Credit, nullIfEmpty(tx.PaymentID), nullIfEmpty(tx.ExpenseID), tx.CreatedAt)
	return err
}
