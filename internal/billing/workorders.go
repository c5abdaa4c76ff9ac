package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"tallybook.io/internal/blob"
	"tallybook.io/internal/document"
	"tallybook.io/internal/ids"
	"tallybook.io/internal/mail"
	"tallybook.io/internal/obs"
)

// WorkOrders manages work orders, their contract documents and charged time.
type WorkOrders struct {
	store    WorkStore
	blobs    blob.Storage
	renderer document.Renderer
	mailer   mail.Sender
	cutOff   time.Time
	now      func() time.Time
}

// WorkOrdersConfig carries the collaborators of WorkOrders.
type WorkOrdersConfig struct {
	Store    WorkStore
	Blobs    blob.Storage
	Renderer document.Renderer
	Mailer   mail.Sender
	// CutOff marks days before it as already invoiced in charge summaries.
	CutOff time.Time
	Now    func() time.Time
}

func NewWorkOrders(cfg WorkOrdersConfig) (*WorkOrders, error) {
	if cfg.Store == nil {
		return nil, errors.New("billing: work order store is required")
	}
	if cfg.Blobs == nil || cfg.Renderer == nil || cfg.Mailer == nil {
		return nil, errors.New("billing: blob storage, renderer and mailer are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &WorkOrders{
		store:    cfg.Store,
		blobs:    cfg.Blobs,
		renderer: cfg.Renderer,
		mailer:   cfg.Mailer,
		cutOff:   cfg.CutOff,
		now:      cfg.Now,
	}, nil
}

func (s *WorkOrders) List(ctx context.Context, orgID string) ([]WorkOrder, error) {
	return s.store.ListWorkOrders(ctx, orgID)
}

func (s *WorkOrders) Get(ctx context.Context, id string) (WorkOrder, error) {
	wo, err := s.store.GetWorkOrder(ctx, id)
	return wo, describe(err, "Invalid Work-Order id")
}

// Create stores a work order and its optional contract document. The document
// is uploaded first and removed again if the row cannot be written.
func (s *WorkOrders) Create(ctx context.Context, wo WorkOrder, doc *blob.Upload) (WorkOrder, error) {
	if err := s.check(ctx, &wo); err != nil {
		return WorkOrder{}, err
	}
	wo.ID = ids.New()
	key, err := s.putContract(ctx, &wo, doc)
	if err != nil {
		return WorkOrder{}, err
	}
	created, err := s.store.CreateWorkOrder(ctx, wo)
	if err != nil {
		s.discard(ctx, key)
		return WorkOrder{}, err
	}
	return created, nil
}

// Update replaces the work order's fields. A new document replaces the old one.
func (s *WorkOrders) Update(ctx context.Context, wo WorkOrder, doc *blob.Upload) (WorkOrder, error) {
	current, err := s.Get(ctx, wo.ID)
	if err != nil {
		return WorkOrder{}, err
	}
	if err := s.check(ctx, &wo); err != nil {
		return WorkOrder{}, err
	}
	wo.DocURL = current.DocURL
	if _, err := s.putContract(ctx, &wo, doc); err != nil {
		return WorkOrder{}, err
	}
	if doc != nil && current.DocURL != "" && current.DocURL != wo.DocURL {
		s.discard(ctx, current.DocURL)
	}
	return s.store.UpdateWorkOrder(ctx, wo)
}

func (s *WorkOrders) Delete(ctx context.Context, id string) error {
	wo, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteWorkOrder(ctx, id); err != nil {
		return inUse(err, "Work order")
	}
	s.discard(ctx, wo.DocURL)
	return nil
}

// Document opens the contract document of a work order.
func (s *WorkOrders) Document(ctx context.Context, id string) (io.ReadCloser, string, error) {
	wo, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if wo.DocURL == "" {
		return nil, "", fmt.Errorf("%w: No Document Uploaded", ErrNoDocument)
	}
	rc, err := s.blobs.Get(ctx, wo.DocURL)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, "", fmt.Errorf("%w: No Document Uploaded", ErrNoDocument)
	}
	if err != nil {
		return nil, "", err
	}
	name := wo.DocURL[strings.LastIndex(wo.DocURL, "/")+1:]
	return rc, name, nil
}

func (s *WorkOrders) check(ctx context.Context, wo *WorkOrder) error {
	wo.Description = strings.TrimSpace(wo.Description)
	if !wo.Type.Valid() {
		return fmt.Errorf("%w: type must be hourly or fixed", ErrInvalidInput)
	}
	if wo.Rate.IsNegative() {
		return fmt.Errorf("%w: rate must not be negative", ErrInvalidInput)
	}
	if wo.StartDate.IsZero() || wo.EndDate.IsZero() || wo.StartDate.After(wo.EndDate) {
		return fmt.Errorf("%w: Start date cannot be greater than the end date", ErrInvalidInput)
	}
	if _, err := s.store.GetClient(ctx, wo.ClientID); err != nil {
		return reference(err, "Invalid Client id")
	}
	if _, err := s.store.GetCurrency(ctx, wo.CurrencyID); err != nil {
		return reference(err, "Invalid Currency id")
	}
	return nil
}

func (s *WorkOrders) putContract(ctx context.Context, wo *WorkOrder, doc *blob.Upload) (string, error) {
	if doc == nil {
		return "", nil
	}
	key := fmt.Sprintf("work-orders/%s%s", wo.ID, doc.Ext())
	url, err := s.blobs.Put(ctx, key, doc.ContentType, doc.Body)
	if err != nil {
		return "", fmt.Errorf("store work order document: %w", err)
	}
	wo.DocURL = url
	return key, nil
}

func (s *WorkOrders) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		obs.FromContext(ctx).WithError(err).WithField("key", key).Warn("orphaned work order document")
	}
}

// Charge records time against a work order on behalf of userID.
func (s *WorkOrders) Charge(ctx context.Context, workOrderID, userID string, ts Timesheet) (Timesheet, error) {
	if _, err := s.store.GetWorkOrder(ctx, workOrderID); err != nil {
		return Timesheet{}, reference(err, "Invalid Work-Order id")
	}
	if ts.StartTime.After(ts.EndTime) {
		return Timesheet{}, fmt.Errorf("%w: Start Time Cannot be greater than the endTime", ErrInvalidInput)
	}
	ts.Description = strings.TrimSpace(ts.Description)
	if ts.Description == "" {
		return Timesheet{}, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	ts.ID = ""
	ts.WorkOrderID = workOrderID
	ts.ChargedByID = userID
	ts.Invoiced = false
	ts.InvoiceID = ""
	return s.store.CreateTimesheet(ctx, ts)
}

// EditCharge changes a timesheet's description. The interval is never touched
// so invoiced amounts stay valid.
func (s *WorkOrders) EditCharge(ctx context.Context, id, description string) (Timesheet, error) {
	ts, err := s.store.GetTimesheet(ctx, id)
	if err != nil {
		return Timesheet{}, reference(err, "Invalid Timesheet id")
	}
	description = strings.TrimSpace(description)
	if description == "" || description == ts.Description {
		return ts, nil
	}
	ts.Description = description
	return s.store.UpdateTimesheet(ctx, ts)
}

func (s *WorkOrders) DeleteCharge(ctx context.Context, id string) error {
	ts, err := s.store.GetTimesheet(ctx, id)
	if err != nil {
		return reference(err, "Invalid Timesheet id")
	}
	if ts.Invoiced {
		return fmt.Errorf("%w: Invoiced time charges cannot be deleted", ErrInvalidInput)
	}
	return s.store.DeleteTimesheet(ctx, id)
}
