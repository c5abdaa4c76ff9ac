package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/volatiletech/null"

	"tallybook.io/internal/billing"
	"tallybook.io/internal/ids"
)

const workOrderColumns = `w.id, w.client_id, w.description, w.type, w.rate, w.currency_id, w.start_date, w.end_date, w.doc_url, w.created_at, w.updated_at`

func scanWorkOrder(row scanner) (billing.WorkOrder, error) {
	var (
		w   billing.WorkOrder
		doc null.String
	)
	err := row.Scan(&w.ID, &w.ClientID, &w.Description, &w.Type, &w.Rate, &w.CurrencyID,
		&w.StartDate, &w.EndDate, &doc, &w.CreatedAt, &w.UpdatedAt)
	w.DocURL = doc.String
	return w, err
}

func (s *Store) ListWorkOrders(ctx context.Context, orgID string) ([]billing.WorkOrder, error) {
	return queryAll(ctx, s.db, scanWorkOrder, `
		select `+workOrderColumns+`
		from work_orders w
		join clients c on c.id = w.client_id
		where c.org_id = $1
		order by w.start_date desc, w.id
	`, orgID)
}

func (s *Store) GetWorkOrder(ctx context.Context, id string) (billing.WorkOrder, error) {
	return getWorkOrder(ctx, s.db, id)
}

func getWorkOrder(ctx context.Context, q querier, id string) (billing.WorkOrder, error) {
	w, err := scanWorkOrder(q.QueryRowContext(ctx, `select `+workOrderColumns+` from work_orders w where w.id = $1`, id))
	return w, billingErr(err)
}

func (s *Store) CreateWorkOrder(ctx context.Context, w billing.WorkOrder) (billing.WorkOrder, error) {
	if w.ID == "" {
		w.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into work_orders (id, client_id, description, type, rate, currency_id, start_date, end_date, doc_url)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at
	`, w.ID, w.ClientID, w.Description, string(w.Type), w.Rate, w.CurrencyID,
		w.StartDate, w.EndDate, nullIfEmpty(w.DocURL)).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return billing.WorkOrder{}, billingErr(err)
	}
	return w, nil
}

func (s *Store) UpdateWorkOrder(ctx context.Context, w billing.WorkOrder) (billing.WorkOrder, error) {
	err := s.db.QueryRowContext(ctx, `
		update work_orders
		set client_id = $2, description = $3, type = $4, rate = $5, currency_id = $6,
		    start_date = $7, end_date = $8, doc_url = $9, updated_at = now()
		where id = $1
		returning created_at, updated_at
	`, w.ID, w.ClientID, w.Description, string(w.Type), w.Rate, w.CurrencyID,
		w.StartDate, w.EndDate, nullIfEmpty(w.DocURL)).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return billing.WorkOrder{}, billingErr(err)
	}
	return w, nil
}

func (s *Store) DeleteWorkOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from work_orders where id = $1`, id)
	return billingErr(affected(res, err, billing.ErrNotFound))
}

const timesheetColumns = `id, work_order_id, charged_by_id, description, start_time, end_time, invoiced, invoice_id, created_at, updated_at`

func scanTimesheet(row scanner) (billing.Timesheet, error) {
	var (
		t   billing.Timesheet
		inv null.String
	)
	err := row.Scan(&t.ID, &t.WorkOrderID, &t.ChargedByID, &t.Description, &t.StartTime, &t.EndTime,
		&t.Invoiced, &inv, &t.CreatedAt, &t.UpdatedAt)
	t.InvoiceID = inv.String
	return t, err
}

func (s *Store) ListTimesheets(ctx context.Context, f billing.TimesheetFilter) ([]billing.Timesheet, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.WorkOrderID != "" {
		add("work_order_id = $%d", f.WorkOrderID)
	}
	if f.ChargedByID != "" {
		add("charged_by_id = $%d", f.ChargedByID)
	}
	if !f.From.IsZero() {
		add("start_time >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("end_time <= $%d", f.To)
	}
	if f.Invoiced != nil {
		add("invoiced = $%d", *f.Invoiced)
	}

	query := `select ` + timesheetColumns + ` from timesheets`
	if len(conds) > 0 {
		query += ` where ` + strings.Join(conds, " and ")
	}
	query += ` order by start_time, id`
	return queryAll(ctx, s.db, scanTimesheet, query, args...)
}

func (s *Store) GetTimesheet(ctx context.Context, id string) (billing.Timesheet, error) {
	t, err := scanTimesheet(s.db.QueryRowContext(ctx, `select `+timesheetColumns+` from timesheets where id = $1`, id))
	return t, billingErr(err)
}

func (s *Store) CreateTimesheet(ctx context.Context, t billing.Timesheet) (billing.Timesheet, error) {
	if t.ID == "" {
		t.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into timesheets (id, work_order_id, charged_by_id, description, start_time, end_time, invoiced, invoice_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning created_at, updated_at
	`, t.ID, t.WorkOrderID, t.ChargedByID, t.Description, t.StartTime, t.EndTime,
		t.Invoiced, nullIfEmpty(t.InvoiceID)).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return billing.Timesheet{}, billingErr(err)
	}
	return t, nil
}

func (s *Store) UpdateTimesheet(ctx context.Context, t billing.Timesheet) (billing.Timesheet, error) {
	err := s.db.QueryRowContext(ctx, `
		update timesheets
		set description = $2, start_time = $3, end_time = $4, invoiced = $5, invoice_id = $6, updated_at = now()
		where id = $1
		returning created_at, updated_at
	`, t.ID, t.Description, t.StartTime, t.EndTime, t.Invoiced, nullIfEmpty(t.InvoiceID)).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return billing.Timesheet{}, billingErr(err)
	}
	return t, nil
}

func (s *Store) DeleteTimesheet(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from timesheets where id = $1`, id)
	return billingErr(affected(res, err, billing.ErrNotFound))
}
