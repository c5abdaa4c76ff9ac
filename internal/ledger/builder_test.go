package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuildPaymentCredits(t *testing.T) {
	cases := []struct{ amount, rate, want string }{
		{"118", "1", "118"},
		{"118", "83.125", "9808.75"},
		{"10.005", "1", "10.01"},
		{"33.33", "0.333333", "11.11"},
	}
	for _, tc := range cases {
		tx, err := Build(Event{Kind: KindPayment, Amount: dec(tc.amount), ExchangeRate: dec(tc.rate), AccountID: "acc", SourceID: "pay"})
		if err != nil {
			t.Fatalf("Build(%s x %s): %v", tc.amount, tc.rate, err)
		}
		if !tx.Credit.Equal(dec(tc.want)) || !tx.Debit.IsZero() {
			t.Fatalf("Build(%s x %s) = credit %s debit %s, want credit %s", tc.amount, tc.rate, tx.Credit, tx.Debit, tc.want)
		}
		if tx.PaymentID != "pay" || tx.ExpenseID != "" {
			t.Fatalf("unexpected source links %+v", tx)
		}
	}
}

func TestBuildExpenseDebits(t *testing.T) {
	tx, err := Build(Event{Kind: KindExpense, Amount: dec("250.50"), ExchangeRate: dec("2"), AccountID: "acc", SourceID: "exp"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !tx.Debit.Equal(dec("501")) || !tx.Credit.IsZero() || tx.ExpenseID != "exp" || tx.PaymentID != "" {
		t.Fatalf("unexpected expense row %+v", tx)
	}
}

func TestBuildRejectsInvalidEvents(t *testing.T) {
	base := Event{Kind: KindPayment, Amount: dec("1"), ExchangeRate: dec("1"), AccountID: "a", SourceID: "s"}
	cases := []struct {
		mutate func(*Event)
		want   error
	}{
		{func(e *Event) { e.Kind = "refund" }, ErrInvalidKind},
		{func(e *Event) { e.Amount = decimal.Zero }, ErrInvalidAmount},
		{func(e *Event) { e.Amount = dec("-5") }, ErrInvalidAmount},
		{func(e *Event) { e.ExchangeRate = decimal.Zero }, ErrInvalidRate},
		{func(e *Event) { e.AccountID = " " }, ErrInvalidAccount},
		{func(e *Event) { e.SourceID = "" }, ErrMissingSource},
	}
	for i, tc := range cases {
		e := base
		tc.mutate(&e)
		if _, err := Build(e); !errors.Is(err, tc.want) {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestTransactionValidateExclusivity(t *testing.T) {
	cases := []Transaction{
		{Debit: dec("1"), Credit: dec("1"), PaymentID: "p"},
		{Debit: decimal.Zero, Credit: decimal.Zero, PaymentID: "p"},
		{Credit: dec("1"), PaymentID: "p", ExpenseID: "e"},
		{Credit: dec("1"), ExpenseID: "e"},
		{Debit: dec("-1"), PaymentID: "p"},
	}
	for i, tx := range cases {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, tx)
		}
	}
	if err := (Transaction{Credit: dec("1"), PaymentID: "p"}).Validate(); err != nil {
		t.Fatalf("valid payment row rejected: %v", err)
	}
}
