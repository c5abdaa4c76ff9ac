package httpapi

import (
	"net/http"
	"path"
	"strings"

	"github.com/shopspring/decimal"

	"tallybook.io/internal/audit"
	"tallybook.io/internal/auth"
	"tallybook.io/internal/ledger"
)

type recordRequest struct {
	Type         string          `json:"type"`
	Description  string          `json:"description" validate:"required"`
	CurrencyID   string          `json:"currency_id" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	AccountID    string          `json:"account_id" validate:"required"`
}

func (recordRequest) Messages() map[string]string {
	return map[string]string{"required": "{field} is required"}
}

type recordResponse struct {
	Source      ledger.Source      `json:"source"`
	Transaction ledger.Transaction `json:"transaction"`
}

func (a *API) transactionRoutes() {
	a.handle("GET /transactions", auth.RolesOrgStaff, a.handleListTransactions)
	a.handle("POST /transactions/record", auth.RolesOrgAdmin, a.handleRecordTransaction)
	a.handle("POST /transactions/payment", auth.RolesOrgAdmin, a.recordKind(ledger.KindPayment))
	a.handle("POST /transactions/expense", auth.RolesOrgAdmin, a.recordKind(ledger.KindExpense))
	a.handle("GET /transactions/document/{id}", auth.RolesOrgStaff, a.handleTransactionDocument)
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	txs, err := a.Ledger.List(r.Context(), u.OrgID)
	respond(w, r, http.StatusOK, txs, err)
}

// handleRecordTransaction reads a multipart form naming the source type and
// an optional supporting document.
func (a *API) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		var req recordRequest
		if !bind(w, r, &req) {
			return
		}
		a.record(w, r, req, nil)
		return
	}
	if !a.parseForm(w, r) {
		return
	}
	amount, ok := formDecimal(w, r, "amount")
	if !ok {
		return
	}
	rate, ok := formDecimal(w, r, "exchange_rate")
	if !ok {
		return
	}
	req := recordRequest{
		Type:         strings.TrimSpace(r.FormValue("type")),
		Description:  strings.TrimSpace(r.FormValue("description")),
		CurrencyID:   strings.TrimSpace(r.FormValue("currency_id")),
		Amount:       amount,
		ExchangeRate: rate,
		AccountID:    strings.TrimSpace(r.FormValue("account_id")),
	}
	if !check(w, r, &req) {
		return
	}
	doc, ok := a.optionalUpload(w, r, "document")
	if !ok {
		return
	}
	defer doc.Close()
	a.record(w, r, req, doc)
}

// recordKind books a JSON request as the given kind; a type in the body is ignored.
func (a *API) recordKind(kind ledger.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordRequest
		if !bind(w, r, &req) {
			return
		}
		req.Type = string(kind)
		a.record(w, r, req, nil)
	}
}

func (a *API) record(w http.ResponseWriter, r *http.Request, req recordRequest, doc *upload) {
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	entry := ledger.Entry{
		Source: ledger.Source{
			Kind:         ledger.Kind(strings.ToLower(req.Type)),
			CurrencyID:   req.CurrencyID,
			ExchangeRate: req.ExchangeRate,
			Description:  req.Description,
			Amount:       req.Amount,
		},
		AccountID: req.AccountID,
	}
	if !u.SuperUser {
		entry.OrgID = u.OrgID
	}
	src, tx, err := a.Ledger.Record(r.Context(), entry, doc.document())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "transaction.recorded", map[string]any{
		"target": tx.ID,
		"kind":   src.Kind,
		"debit":  tx.Debit.StringFixed(2),
		"credit": tx.Credit.StringFixed(2),
	})
	writeJSON(w, http.StatusCreated, recordResponse{Source: src, Transaction: tx})
}

func (a *API) handleTransactionDocument(w http.ResponseWriter, r *http.Request) {
	rc, src, err := a.Ledger.Document(r.Context(), r.PathValue("id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	defer rc.Close()
	name := path.Base(src.DocURL)
	streamAttachment(w, r, contentTypeOf(name), name, rc)
}
