package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/volatiletech/null"

	"tallybook.io/internal/billing"
)

const invoiceColumns = `i.id, i.invoice_number, i.sequence, i.work_order_id, i.currency_id, i.period_start, i.period_end, i.generated_on, i.due_by, i.paid_on, i.doc_url, i.amount, i.tax, i.created_at, i.updated_at`

func scanInvoice(row scanner) (billing.Invoice, error) {
	var (
		inv         billing.Invoice
		dueBy, paid null.Time
		doc         null.String
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.Sequence, &inv.WorkOrderID, &inv.CurrencyID,
		&inv.PeriodStart, &inv.PeriodEnd, &inv.GeneratedOn, &dueBy, &paid, &doc,
		&inv.Amount, &inv.Tax, &inv.CreatedAt, &inv.UpdatedAt)
	inv.DueBy, inv.PaidOn, inv.DocURL = dueBy.Ptr(), paid.Ptr(), doc.String
	return inv, err
}

func scanInvoiceItem(row scanner) (billing.InvoiceItem, error) {
	var it billing.InvoiceItem
	err := row.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Quantity, &it.Rate, &it.Amount)
	return it, err
}

// InvoiceView loads the invoice with its items and the parties it was issued between.
func (s *Store) InvoiceView(ctx context.Context, id string) (billing.InvoiceView, error) {
	var v billing.InvoiceView
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		inv, err := scanInvoice(tx.QueryRowContext(ctx, `select `+invoiceColumns+` from invoices i where i.id = $1`, id))
		if err != nil {
			return billingErr(err)
		}
		v.Invoice = inv
		if v.Items, err = queryAll(ctx, tx, scanInvoiceItem, `
			select id, invoice_id, description, quantity, rate, amount
			from invoice_items where invoice_id = $1 order by position
		`, id); err != nil {
			return err
		}
		if v.WorkOrder, err = getWorkOrder(ctx, tx, inv.WorkOrderID); err != nil {
			return err
		}
		if v.Client, err = getClient(ctx, tx, v.WorkOrder.ClientID); err != nil {
			return err
		}
		if v.Organization, err = getOrganization(ctx, tx, v.Client.OrgID); err != nil {
			return err
		}
		v.Currency, err = getCurrency(ctx, tx, inv.CurrencyID)
		return err
	})
	if err != nil {
		return billing.InvoiceView{}, err
	}
	return v, nil
}

func (s *Store) ListInvoices(ctx context.Context, orgID string) ([]billing.Invoice, error) {
	return queryAll(ctx, s.db, scanInvoice, `
		select `+invoiceColumns+`
		from invoices i
		join work_orders w on w.id = i.work_order_id
		join clients c on c.id = w.client_id
		where c.org_id = $1
		order by i.sequence desc
	`, orgID)
}

func (s *Store) SearchInvoices(ctx context.Context, orgID, text string) ([]billing.Invoice, error) {
	return queryAll(ctx, s.db, scanInvoice, `
		select `+invoiceColumns+`
		from invoices i
		join work_orders w on w.id = i.work_order_id
		join clients c on c.id = w.client_id
		where c.org_id = $1 and i.invoice_number ilike $2 escape '\'
		order by i.sequence desc
	`, orgID, likePattern(text))
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			update timesheets set invoiced = false, invoice_id = null, updated_at = now()
			where invoice_id = $1
		`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `delete from invoice_items where invoice_id = $1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `delete from invoices where id = $1`, id)
		return billingErr(affected(res, err, billing.ErrNotFound))
	})
}

func (s *Store) RunBillingTx(ctx context.Context, fn func(billing.Tx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// pgTx is the write surface of one invoicing or ledger transaction.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) NextInvoiceSequence(ctx context.Context, orgID string) (int64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx, `
		insert into invoice_sequences (org_id, last_value) values ($1, 1)
		on conflict (org_id) do update set last_value = invoice_sequences.last_value + 1
		returning last_value
	`, orgID).Scan(&n)
	return n, billingErr(err)
}

func (t *pgTx) InsertInvoice(ctx context.Context, inv billing.Invoice, items []billing.InvoiceItem) error {
	_, err := t.tx.ExecContext(ctx, `
		insert into invoices (id, invoice_number, sequence, work_order_id, currency_id,
		    period_start, period_end, generated_on, due_by, paid_on, doc_url, amount, tax)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, inv.ID, inv.Number, inv.Sequence, inv.WorkOrderID, inv.CurrencyID,
		inv.PeriodStart, inv.PeriodEnd, inv.GeneratedOn, null.TimeFromPtr(inv.DueBy), null.TimeFromPtr(inv.PaidOn),
		nullIfEmpty(inv.DocURL), inv.Amount, inv.Tax)
	if err != nil {
		return billingErr(err)
	}
	for i, it := range items {
		if _, err := t.tx.ExecContext(ctx, `
			insert into invoice_items (id, invoice_id, position, description, quantity, rate, amount)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, it.ID, inv.ID, i, it.Description, it.Quantity, it.Rate, it.Amount); err != nil {
			return billingErr(err)
		}
	}
	return nil
}

func (t *pgTx) MarkTimesheetsInvoiced(ctx context.Context, workOrderID string, from, to time.Time, invoiceID string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		update timesheets set invoiced = true, invoice_id = $4, updated_at = now()
		where work_order_id = $1 and not invoiced and start_time between $2 and $3
	`, workOrderID, from, to, invoiceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *pgTx) LockInvoice(ctx context.Context, id string) (billing.Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRowContext(ctx, `select `+invoiceColumns+` from invoices i where i.id = $1 for update`, id))
	return inv, billingErr(err)
}

func (t *pgTx) SetInvoiceDocument(ctx context.Context, id, docURL string) error {
	res, err := t.tx.ExecContext(ctx, `update invoices set doc_url = $2, updated_at = now() where id = $1`, id, nullIfEmpty(docURL))
	return affected(res, err, billing.ErrNotFound)
}

func (t *pgTx) MarkInvoicePaid(ctx context.Context, id string, paidOn time.Time) error {
	res, err := t.tx.ExecContext(ctx, `update invoices set paid_on = $2, updated_at = now() where id = $1`, id, paidOn)
	return affected(res, err, billing.ErrNotFound)
}

func (t *pgTx) CancelInvoice(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `update invoices set due_by = null, updated_at = now() where id = $1`, id)
	return affected(res, err, billing.ErrNotFound)
}
