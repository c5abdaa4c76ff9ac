package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Build turns a settled event into a ledger row. Payments credit the account,
// expenses debit it, both converted at the event's exchange rate and rounded to cents.
func Build(e Event) (Transaction, error) {
	if !e.Kind.Valid() {
		return Transaction{}, ErrInvalidKind
	}
	if !e.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if !e.ExchangeRate.IsPositive() {
		return Transaction{}, ErrInvalidRate
	}
	if strings.TrimSpace(e.AccountID) == "" {
		return Transaction{}, ErrInvalidAccount
	}
	if strings.TrimSpace(e.SourceID) == "" {
		return Transaction{}, ErrMissingSource
	}

	value := Convert(e.Amount, e.ExchangeRate)
	tx := Transaction{AccountID: e.AccountID, Debit: decimal.Zero, Credit: decimal.Zero}
	switch e.Kind {
	case KindPayment:
		tx.Credit = value
		tx.PaymentID = e.SourceID
	case KindExpense:
		tx.Debit = value
		tx.ExpenseID = e.SourceID
	}
	return tx, tx.Validate()
}

// Convert applies an exchange rate and rounds to two decimal places.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}

// Validate checks the debit/credit and source exclusivity of a row.
func (t Transaction) Validate() error {
	debit, credit := !t.Debit.IsZero(), !t.Credit.IsZero()
	if debit == credit || t.Debit.IsNegative() || t.Credit.IsNegative() {
		return ErrUnbalanced
	}
	if (t.PaymentID == "") == (t.ExpenseID == "") {
		return ErrMissingSource
	}
	if credit && t.PaymentID == "" || debit && t.ExpenseID == "" {
		return ErrUnbalanced
	}
	return nil
}
