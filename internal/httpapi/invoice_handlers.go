package httpapi

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"tallybook.io/internal/audit"
	"tallybook.io/internal/auth"
	"tallybook.io/internal/billing"
	"tallybook.io/internal/ledger"
)

type generateItemsRequest struct {
	WorkOrderID string   `json:"work_order_id" validate:"required"`
	PeriodStart flexTime `json:"invoice_period_start"`
	PeriodEnd   flexTime `json:"invoice_period_end"`
}

func (generateItemsRequest) Messages() map[string]string {
	return map[string]string{"required": "{field} is required"}
}

type invoiceItemRequest struct {
	Description string          `json:"description"`
	Quantity    string          `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

type createInvoiceRequest struct {
	WorkOrderID        string               `json:"work_order_id" validate:"required"`
	PeriodStart        flexTime             `json:"invoice_period_start"`
	PeriodEnd          flexTime             `json:"invoice_period_end"`
	GeneratedOn        *flexTime            `json:"generated_on"`
	DueBy              *flexTime            `json:"due_by"`
	Items              []invoiceItemRequest `json:"items"`
	IncludeTimeCharges bool                 `json:"include_time_charges"`
}

func (createInvoiceRequest) Messages() map[string]string {
	return map[string]string{"required": "{field} is required"}
}

type payInvoiceRequest struct {
	AccountID    string          `json:"account_id" validate:"required"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

func (payInvoiceRequest) Messages() map[string]string {
	return map[string]string{"required": "{field} is required"}
}

type shareInvoiceRequest struct {
	To []string `json:"to_list"`
	CC []string `json:"cc_list"`
}

type payInvoiceResponse struct {
	Invoice     billing.InvoiceView `json:"invoice"`
	Transaction ledger.Transaction  `json:"transaction"`
}

func (a *API) invoiceRoutes() {
	a.handle("GET /invoice", auth.RolesOrgStaff, a.handleListInvoices)
	a.handle("GET /invoice/search", auth.RolesOrgStaff, a.handleSearchInvoices)
	a.handle("GET /invoice/{id}", auth.RolesOrgStaff, a.handleGetInvoice)
	a.handle("DELETE /invoice/{id}", auth.RolesOrgAdmin, a.handleDeleteInvoice)
	a.handle("POST /invoice/generate/items", auth.RolesOrgAdmin, a.handleGenerateItems)
	a.handle("POST /invoice", auth.RolesOrgAdmin, a.handleCreateInvoice)
	a.handle("GET /invoice/document/{id}", auth.RolesOrgStaff, a.handleInvoiceDocument)
	a.handle("GET /invoice/cancel/{id}", auth.RolesOrgAdmin, a.handleCancelInvoice)
	a.handle("POST /invoice/pay/{id}", auth.RolesOrgAdmin, a.handlePayInvoice)
	a.handle("POST /invoice/share/{id}", auth.RolesOrgStaff, a.handleShareInvoice)
}

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	invoices, err := a.Invoices.List(r.Context(), u.OrgID)
	respond(w, r, http.StatusOK, invoices, err)
}

func (a *API) handleSearchInvoices(w http.ResponseWriter, r *http.Request) {
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	invoices, err := a.Invoices.Search(r.Context(), u.OrgID, r.URL.Query().Get("text_to_search"))
	respond(w, r, http.StatusOK, invoices, err)
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	view, err := a.Invoices.Get(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, view, err)
}

func (a *API) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted(w, r, "invoice.deleted", id, "Invoice deleted", func() error {
		return a.Invoices.Delete(r.Context(), id)
	})
}

func (a *API) handleGenerateItems(w http.ResponseWriter, r *http.Request) {
	var req generateItemsRequest
	if !bind(w, r, &req) {
		return
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() {
		writeError(w, r, http.StatusBadRequest, "invoice_period_start and invoice_period_end are required")
		return
	}
	draft, err := a.Invoices.GenerateItems(r.Context(), req.WorkOrderID, req.PeriodStart.Time, req.PeriodEnd.Time)
	respond(w, r, http.StatusOK, draft, err)
}

// handleCreateInvoice issues the invoice and answers with its PDF.
func (a *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if !bind(w, r, &req) {
		return
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() {
		writeError(w, r, http.StatusBadRequest, "invoice_period_start and invoice_period_end are required")
		return
	}
	items := make([]billing.InvoiceItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, billing.InvoiceItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			Rate:        it.Rate,
			Amount:      it.Amount,
		})
	}
	view, pdf, err := a.Invoices.Create(r.Context(), billing.CreateInvoice{
		WorkOrderID:        req.WorkOrderID,
		PeriodStart:        req.PeriodStart.Time,
		PeriodEnd:          req.PeriodEnd.Time,
		GeneratedOn:        req.GeneratedOn.ptr(),
		DueBy:              req.DueBy.ptr(),
		Items:              items,
		IncludeTimeCharges: req.IncludeTimeCharges,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "invoice.created", map[string]any{
		"target":         view.ID,
		"invoice_number": view.Number,
		"amount":         view.Amount.StringFixed(2),
	})
	w.Header().Set("X-Invoice-Id", view.ID)
	attachment(w, "application/pdf", invoiceFilename(view.Number), pdf)
}

func invoiceFilename(number string) string {
	return strings.ReplaceAll(number, "/", "-") + ".pdf"
}

func (a *API) handleInvoiceDocument(w http.ResponseWriter, r *http.Request) {
	rc, view, err := a.Invoices.Document(r.Context(), r.PathValue("id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	defer rc.Close()
	streamAttachment(w, r, "application/pdf", invoiceFilename(view.Number), rc)
}

func (a *API) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	view, err := a.Invoices.Cancel(r.Context(), r.PathValue("id"))
	if err == nil {
		_ = audit.LogEvent(r.Context(), "invoice.cancelled", map[string]any{"target": view.ID, "invoice_number": view.Number})
	}
	respond(w, r, http.StatusOK, view, err)
}

// handlePayInvoice takes a multipart form with account_id, exchange_rate and
// an optional document. A JSON body without a document is also accepted.
func (a *API) handlePayInvoice(w http.ResponseWriter, r *http.Request) {
	var (
		req payInvoiceRequest
		doc = &upload{}
	)
	if isMultipart(r) {
		if !a.parseForm(w, r) {
			return
		}
		req.AccountID = strings.TrimSpace(r.FormValue("account_id"))
		rate, ok := formDecimal(w, r, "exchange_rate")
		if !ok {
			return
		}
		req.ExchangeRate = rate
		if !check(w, r, &req) {
			return
		}
		if doc, ok = a.optionalUpload(w, r, "document"); !ok {
			return
		}
	} else if !bind(w, r, &req) {
		return
	}
	defer doc.Close()

	view, tx, err := a.Invoices.Pay(r.Context(), billing.PayInvoice{
		InvoiceID:    r.PathValue("id"),
		AccountID:    req.AccountID,
		ExchangeRate: req.ExchangeRate,
		Document:     doc.document(),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "invoice.paid", map[string]any{
		"target":         view.ID,
		"transaction_id": tx.ID,
		"credit":         tx.Credit.StringFixed(2),
	})
	writeJSON(w, http.StatusOK, payInvoiceResponse{Invoice: view, Transaction: tx})
}

func (a *API) handleShareInvoice(w http.ResponseWriter, r *http.Request) {
	var req shareInvoiceRequest
	if !bind(w, r, &req) {
		return
	}
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	err := a.Invoices.Share(r.Context(), billing.ShareInvoice{
		InvoiceID:      id,
		To:             req.To,
		CC:             req.CC,
		RequesterEmail: u.Email,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "invoice.shared", map[string]any{"target": id, "to": req.To})
	writeMessage(w, http.StatusOK, "Invoice shared")
}
