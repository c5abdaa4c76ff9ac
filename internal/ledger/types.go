package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind names the monetary event a ledger row originates from.
type Kind string

const (
	KindPayment Kind = "payment"
	KindExpense Kind = "expense"
)

func (k Kind) Valid() bool { return k == KindPayment || k == KindExpense }

// Event is a settled monetary event to be booked against an account.
type Event struct {
	Kind         Kind
	Amount       decimal.Decimal
	ExchangeRate decimal.Decimal
	AccountID    string
	SourceID     string
}

// Transaction is one ledger row. Exactly one of Debit and Credit is non-zero
// and exactly one of PaymentID and ExpenseID is set.
type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	PaymentID string          `json:"payment_id,omitempty"`
	ExpenseID string          `json:"expense_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Source is the payment or expense row a transaction is linked to.
// InvoiceID is only meaningful for payments.
type Source struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"type"`
	InvoiceID    string          `json:"invoice_id,omitempty"`
	CurrencyID   string          `json:"currency_id"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Description  string          `json:"description"`
	DocURL       string          `json:"doc_url,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Entry is a request to record a source row together with its transaction.
type Entry struct {
	Source    Source
	AccountID string
	// OrgID, when set, requires the account to belong to that organization.
	OrgID string
}

// TransactionView is a ledger row joined with its account and currencies.
// Currency is the organization's default currency; OriginalCurrency is the
// currency of the payment or expense.
type TransactionView struct {
	ID                     string          `json:"id"`
	Description            string          `json:"description"`
	AccountName            string          `json:"account_name"`
	AccountNumber          string          `json:"account_number"`
	Currency               string          `json:"currency"`
	CurrencySymbol         string          `json:"currency_symbol"`
	Debit                  decimal.Decimal `json:"debit"`
	Credit                 decimal.Decimal `json:"credit"`
	OriginalCurrency       string          `json:"original_currency"`
	OriginalCurrencySymbol string          `json:"original_currency_symbol"`
	TransactionDate        time.Time       `json:"transaction_date"`
}

var (
	ErrNotFound        = errors.New("ledger: not found")
	ErrInvalidAmount   = errors.New("ledger: amount must be greater than zero")
	ErrInvalidRate     = errors.New("ledger: exchange rate must be greater than zero")
	ErrInvalidKind     = errors.New("ledger: type must be payment or expense")
	ErrInvalidAccount  = errors.New("ledger: invalid account id")
	ErrInvalidCurrency = errors.New("ledger: invalid currency id")
	ErrMissingSource   = errors.New("ledger: source id is required")
	ErrUnbalanced      = errors.New("ledger: exactly one of debit and credit must be non-zero")
)
