package billing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"tallybook.io/internal/blob"
	"tallybook.io/internal/document"
	"tallybook.io/internal/ledger"
)

var _ = Describe("Invoices", func() {
	var (
		ctx context.Context
		dir string
		f   *fixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		dir, err = os.MkdirTemp("", "billing-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
		f, err = newFixture(dir, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("generating items", func() {
		It("prices two hours of hourly work at the work order rate", func() {
			_, err := f.charge("user-1", "Development", time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC), 2*time.Hour)
			Expect(err).NotTo(HaveOccurred())

			draft, err := f.invoices.GenerateItems(ctx, f.workOrder.ID,
				time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.Items).To(HaveLen(1))
			Expect(draft.Items[0].Quantity).To(Equal("2.0 hrs"))
			Expect(draft.Items[0].Amount.Equal(decimal.NewFromInt(100))).To(BeTrue())
			Expect(draft.Tax.Equal(decimal.NewFromInt(18))).To(BeTrue())
			Expect(draft.PeriodEnd).To(Equal(time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)))
			Expect(draft.DueBy).To(Equal(time.Date(2024, 1, 17, 23, 59, 59, 0, time.UTC)))
		})

		It("rejects periods outside the work order", func() {
			_, err := f.invoices.GenerateItems(ctx, f.workOrder.ID,
				time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC))
			Expect(err).To(MatchError(ContainSubstring("Falls outside the WorkOrder Duration")))
			Expect(err).To(MatchError(ErrInvalidInput))
		})

		It("rejects a period without charged time", func() {
			_, err := f.invoices.GenerateItems(ctx, f.workOrder.ID,
				time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
			Expect(err).To(MatchError(ContainSubstring("No time charged for the given period")))
		})
	})

	Describe("creating", func() {
		It("numbers invoices per organization in strictly increasing order", func() {
			first, err := f.issue(false)
			Expect(err).NotTo(HaveOccurred())
			second, err := f.issue(false)
			Expect(err).NotTo(HaveOccurred())

			Expect(first.Number).To(Equal("ACME/C1/240110/1"))
			Expect(second.Number).To(Equal("ACME/C1/240110/2"))
			Expect(second.Sequence).To(BeNumerically(">", first.Sequence))
			Expect(first.Tax.Equal(decimal.NewFromInt(18))).To(BeTrue())
			Expect(filepath.Join(dir, "invoices", "ACME", "C1", "240110", "1.pdf")).To(BeAnExistingFile())
		})

		It("hands out distinct numbers to concurrent requests", func() {
			var wg sync.WaitGroup
			numbers := make(chan string, 8)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					v, err := f.issue(false)
					Expect(err).NotTo(HaveOccurred())
					numbers <- v.Number
				}()
			}
			wg.Wait()
			close(numbers)
			seen := map[string]bool{}
			for n := range numbers {
				Expect(seen).NotTo(HaveKey(n))
				seen[n] = true
			}
			Expect(seen).To(HaveLen(8))
		})

		It("marks the period's time charges as invoiced", func() {
			ts, err := f.charge("user-1", "Development", time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC), 2*time.Hour)
			Expect(err).NotTo(HaveOccurred())

			view, err := f.issue(true)
			Expect(err).NotTo(HaveOccurred())
			got := f.store.timesheet(ts.ID)
			Expect(got.Invoiced).To(BeTrue())
			Expect(got.InvoiceID).To(Equal(view.ID))
		})

		It("fails without charged time when time charges are included", func() {
			_, err := f.issue(true)
			Expect(err).To(MatchError(ContainSubstring("No time charged for the given period")))
			Expect(f.store.invoiceCount()).To(BeZero())
		})

		It("rolls the invoice back when rendering fails", func() {
			broken, err := newFixture(dir, failingRenderer{document.NewPDFRenderer(nil)})
			Expect(err).NotTo(HaveOccurred())
			_, err = broken.issue(false)
			Expect(err).To(MatchError(ErrGeneration))
			Expect(err.Error()).To(HaveSuffix("Error generating invoice"))
			Expect(broken.store.invoiceCount()).To(BeZero())
		})
	})

	Describe("paying", func() {
		var view InvoiceView

		BeforeEach(func() {
			var err error
			view, err = f.issue(false)
			Expect(err).NotTo(HaveOccurred())
		})

		It("books amount plus tax as a credit and stamps paid_on", func() {
			paid, tx, err := f.invoices.Pay(ctx, PayInvoice{
				InvoiceID:    view.ID,
				AccountID:    "acc-1",
				ExchangeRate: decimal.RequireFromString("1.5"),
				Document:     &blob.Upload{Filename: "receipt.PDF", Body: strings.NewReader("receipt")},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(paid.PaidOn).NotTo(BeNil())
			Expect(tx.Credit.Equal(decimal.NewFromInt(177))).To(BeTrue())
			Expect(tx.Debit.IsZero()).To(BeTrue())
			Expect(f.store.ledger.Transactions()).To(HaveLen(1))
			Expect(f.store.invoice(view.ID).PaidOn).NotTo(BeNil())

			src, err := f.store.ledger.TransactionSource(ctx, tx.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(src.Amount.Equal(decimal.NewFromInt(118))).To(BeTrue())
			Expect(src.CurrencyID).To(Equal(f.workOrder.CurrencyID))
			Expect(src.InvoiceID).To(Equal(view.ID))
			Expect(src.DocURL).To(Equal("invoices/payment/" + src.ID + ".pdf"))
		})

		It("rejects a second payment without writing anything", func() {
			_, _, err := f.invoices.Pay(ctx, PayInvoice{InvoiceID: view.ID, AccountID: "acc-1"})
			Expect(err).NotTo(HaveOccurred())

			_, _, err = f.invoices.Pay(ctx, PayInvoice{InvoiceID: view.ID, AccountID: "acc-1"})
			Expect(err).To(MatchError(ErrAlreadyPaid))
			Expect(f.store.ledger.Transactions()).To(HaveLen(1))
		})

		It("rejects paying a cancelled invoice", func() {
			_, err := f.invoices.Cancel(ctx, view.ID)
			Expect(err).NotTo(HaveOccurred())

			_, _, err = f.invoices.Pay(ctx, PayInvoice{InvoiceID: view.ID, AccountID: "acc-1"})
			Expect(err).To(MatchError(ErrCancelled))
			Expect(err.Error()).To(HaveSuffix("Invoice is cancelled and cannot be paid"))
			Expect(f.store.ledger.Transactions()).To(BeEmpty())
		})

		It("keeps the committed document when the payment does not commit", func() {
			f.store.failCommit = errBoom
			_, _, err := f.invoices.Pay(ctx, PayInvoice{
				InvoiceID: view.ID,
				AccountID: "acc-1",
				Document:  &blob.Upload{Filename: "receipt.pdf", Body: strings.NewReader("receipt")},
			})
			Expect(err).To(MatchError(errBoom))

			stored := f.store.invoice(view.ID)
			Expect(stored.PaidOn).To(BeNil())
			Expect(stored.DocURL).To(Equal(view.DocURL))
			pdf, err := blob.ReadAll(ctx, f.blobs, stored.DocURL)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(pdf)).To(ContainSubstring("Status: GENERATED"))
			Expect(string(pdf)).NotTo(ContainSubstring("Status: PAID"))
			Expect(invoicePDFs(dir)).To(HaveLen(1))
			receipts, err := filepath.Glob(filepath.Join(dir, "invoices", "payment", "*.pdf"))
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(BeEmpty())
		})

		It("replaces the previous document after a committed payment", func() {
			paid, _, err := f.invoices.Pay(ctx, PayInvoice{InvoiceID: view.ID, AccountID: "acc-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(paid.DocURL).NotTo(Equal(view.DocURL))
			Expect(f.store.invoice(view.ID).DocURL).To(Equal(paid.DocURL))

			_, err = f.blobs.Get(ctx, view.DocURL)
			Expect(err).To(MatchError(blob.ErrNotFound))
			pdf, err := blob.ReadAll(ctx, f.blobs, paid.DocURL)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(pdf)).To(ContainSubstring("Status: PAID"))
			Expect(invoicePDFs(dir)).To(HaveLen(1))
		})

		It("leaves the invoice unpaid when the account is unknown", func() {
			_, _, err := f.invoices.Pay(ctx, PayInvoice{InvoiceID: view.ID, AccountID: "missing"})
			Expect(err).To(MatchError(ledger.ErrInvalidAccount))
			Expect(f.store.invoice(view.ID).PaidOn).To(BeNil())
			Expect(f.store.ledger.Sources()).To(BeZero())
		})
	})

	Describe("cancelling", func() {
		It("clears due_by and cannot be repeated", func() {
			view, err := f.issue(false)
			Expect(err).NotTo(HaveOccurred())

			cancelled, err := f.invoices.Cancel(ctx, view.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(cancelled.DueBy).To(BeNil())
			Expect(f.store.invoice(view.ID).Cancelled()).To(BeTrue())

			pdf, err := blob.ReadAll(ctx, f.blobs, cancelled.DocURL)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(pdf)).To(ContainSubstring("Status: CANCELLED"))

			_, err = f.invoices.Cancel(ctx, view.ID)
			Expect(err).To(MatchError(ErrCancelled))
		})

		It("leaves the invoice open when the cancellation does not commit", func() {
			view, err := f.issue(false)
			Expect(err).NotTo(HaveOccurred())
			f.store.failCommit = errBoom

			_, err = f.invoices.Cancel(ctx, view.ID)
			Expect(err).To(MatchError(errBoom))
			Expect(f.store.invoice(view.ID).Cancelled()).To(BeFalse())
			pdf, err := blob.ReadAll(ctx, f.blobs, f.store.invoice(view.ID).DocURL)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(pdf)).NotTo(ContainSubstring("Status: CANCELLED"))
			Expect(invoicePDFs(dir)).To(HaveLen(1))
		})

		It("refuses to cancel a paid invoice", func() {
			view, err := f.issue(false)
			Expect(err).NotTo(HaveOccurred())
			_, _, err = f.invoices.Pay(ctx, PayInvoice{InvoiceID: view.ID, AccountID: "acc-1"})
			Expect(err).NotTo(HaveOccurred())

			_, err = f.invoices.Cancel(ctx, view.ID)
			Expect(err).To(MatchError(ErrAlreadyPaid))
		})
	})

	Describe("sharing", func() {
		It("adds the client contact and the requester", func() {
			view, err := f.issue(false)
			Expect(err).NotTo(HaveOccurred())

			err = f.invoices.Share(ctx, ShareInvoice{
				InvoiceID:      view.ID,
				To:             []string{"ap@client.example"},
				RequesterEmail: "owner@acme.example",
			})
			Expect(err).NotTo(HaveOccurred())
			sent := f.mailer.messages()
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].To).To(ConsistOf("ap@client.example", "billing@client.example"))
			Expect(sent[0].CC).To(ConsistOf("owner@acme.example"))
			Expect(sent[0].Body).To(ContainSubstring("Status: DUE"))
			Expect(sent[0].Attachments[0].Filename).To(Equal("ACME-C1-240110-1.pdf"))
		})

		It("reports delivery failures without touching the invoice", func() {
			view, err := f.issue(false)
			Expect(err).NotTo(HaveOccurred())
			f.mailer.err = errBoom

			err = f.invoices.Share(ctx, ShareInvoice{InvoiceID: view.ID})
			Expect(err).To(MatchError(ErrShareFailed))
			Expect(f.store.invoice(view.ID)).To(Equal(view.Invoice))
		})
	})

	Describe("deleting", func() {
		It("releases timesheets of an unpaid invoice", func() {
			ts, err := f.charge("user-1", "Development", time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC), time.Hour)
			Expect(err).NotTo(HaveOccurred())
			view, err := f.issue(true)
			Expect(err).NotTo(HaveOccurred())

			Expect(f.invoices.Delete(ctx, view.ID)).To(Succeed())
			Expect(f.store.timesheet(ts.ID).Invoiced).To(BeFalse())
			_, _, err = f.invoices.Document(ctx, view.ID)
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("keeps paid invoices", func() {
			view, err := f.issue(false)
			Expect(err).NotTo(HaveOccurred())
			_, _, err = f.invoices.Pay(ctx, PayInvoice{InvoiceID: view.ID, AccountID: "acc-1"})
			Expect(err).NotTo(HaveOccurred())

			Expect(f.invoices.Delete(ctx, view.ID)).To(MatchError(ErrAlreadyPaid))
		})
	})

	It("validates search text length", func() {
		_, err := f.invoices.Search(ctx, f.org.ID, "AC")
		Expect(err).To(MatchError(ErrInvalidInput))
		_, err = f.invoices.Search(ctx, f.org.ID, strings.Repeat("x", 51))
		Expect(err).To(MatchError(ErrInvalidInput))

		_, err = f.issue(false)
		Expect(err).NotTo(HaveOccurred())
		found, err := f.invoices.Search(ctx, f.org.ID, "acme/c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(HaveLen(1))
	})
})

// invoicePDFs lists the invoice documents stored for ACME/C1 on the fixture date.
func invoicePDFs(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "invoices", "ACME", "C1", "240110", "*.pdf"))
	Expect(err).NotTo(HaveOccurred())
	return matches
}
