package httpapi

import (
	"mime"
	"net/http"
	"path"

	"github.com/shopspring/decimal"

	"tallybook.io/internal/audit"
	"tallybook.io/internal/auth"
	"tallybook.io/internal/billing"
)

type workOrderPatch struct {
	ClientID    *string          `json:"client_id"`
	Description *string          `json:"description"`
	Type        *string          `json:"type"`
	Rate        *decimal.Decimal `json:"rate"`
	CurrencyID  *string          `json:"currency_id"`
	StartDate   *flexTime        `json:"start_date"`
	EndDate     *flexTime        `json:"end_date"`
}

func (p workOrderPatch) apply(wo *billing.WorkOrder) {
	setString(&wo.ClientID, p.ClientID)
	setString(&wo.Description, p.Description)
	setString(&wo.CurrencyID, p.CurrencyID)
	if p.Type != nil {
		wo.Type = billing.WorkOrderType(*p.Type)
	}
	if p.Rate != nil {
		wo.Rate = *p.Rate
	}
	if p.StartDate != nil {
		wo.StartDate = p.StartDate.Time
	}
	if p.EndDate != nil {
		wo.EndDate = p.EndDate.Time
	}
}

type chargeRequest struct {
	Description string   `json:"description" validate:"required"`
	StartTime   flexTime `json:"start_time"`
	EndTime     flexTime `json:"end_time"`
}

func (chargeRequest) Messages() map[string]string {
	return map[string]string{"required": "{field} is required"}
}

type editChargeRequest struct {
	Description string `json:"description" validate:"required"`
}

func (editChargeRequest) Messages() map[string]string {
	return map[string]string{"required": "{field} is required"}
}

type reportRequest struct {
	WorkOrderID string   `json:"work_order_id" validate:"required"`
	Start       flexTime `json:"start"`
	End         flexTime `json:"end"`
}

func (reportRequest) Messages() map[string]string {
	return map[string]string{"required": "{field} is required"}
}

func (p reportRequest) request() billing.ReportRequest {
	return billing.ReportRequest{WorkOrderID: p.WorkOrderID, Start: p.Start.Time, End: p.End.Time}
}

type sendReportRequest struct {
	WorkOrderID string   `json:"work_order_id" validate:"required"`
	Start       flexTime `json:"start"`
	End         flexTime `json:"end"`
	To          []string `json:"to_list"`
	CC          []string `json:"cc_list"`
}

func (sendReportRequest) Messages() map[string]string {
	return map[string]string{"required": "{field} is required"}
}

func (a *API) workOrderRoutes() {
	a.handle("GET /workOrder", auth.RolesOrgStaff, a.handleListWorkOrders)
	a.handle("GET /workOrder/{id}", auth.RolesOrgStaff, a.handleGetWorkOrder)
	a.handle("POST /workOrder", auth.RolesOrgAdmin, a.handleCreateWorkOrder)
	a.handle("POST /workOrder/{id}", auth.RolesOrgAdmin, a.handleUpdateWorkOrder)
	a.handle("DELETE /workOrder/{id}", auth.RolesOrgAdmin, a.handleDeleteWorkOrder)
	a.handle("GET /workOrder/document/{id}", auth.RolesOrgStaff, a.handleWorkOrderDocument)

	a.handle("GET /workOrder/charge/{id}", auth.RolesOrgStaff, a.handleChargeSummary)
	a.handle("GET /workOrder/statistics/{id}", auth.RolesOrgStaff, a.handleChargeStatistics)
	a.handle("POST /workOrder/charge/{id}", auth.RolesOrgStaff, a.handleCharge)
	a.handle("POST /workOrder/charge/edit/{id}", auth.RolesOrgStaff, a.handleEditCharge)
	a.handle("DELETE /workOrder/charge/delete/{id}", auth.RolesOrgStaff, a.handleDeleteCharge)

	a.handle("POST /workOrder/timesheet/report", auth.RolesOrgStaff, a.handleTimesheetReport)
	a.handle("POST /workOrder/timesheet/send", auth.RolesOrgStaff, a.handleTimesheetSend)
}

func (a *API) handleListWorkOrders(w http.ResponseWriter, r *http.Request) {
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	orders, err := a.WorkOrders.List(r.Context(), u.OrgID)
	respond(w, r, http.StatusOK, orders, err)
}

func (a *API) handleGetWorkOrder(w http.ResponseWriter, r *http.Request) {
	wo, err := a.WorkOrders.Get(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, wo, err)
}

// readWorkOrder accepts either a multipart body with a JSON "data" part and an
// optional "document" file, or a plain JSON body.
func (a *API) readWorkOrder(w http.ResponseWriter, r *http.Request, req *workOrderPatch) (*upload, bool) {
	if !isMultipart(r) {
		return &upload{}, bind(w, r, req)
	}
	if !a.parseForm(w, r) || !bindForm(w, r, "data", req) {
		return nil, false
	}
	return a.optionalUpload(w, r, "document")
}

func (a *API) handleCreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req workOrderPatch
	doc, ok := a.readWorkOrder(w, r, &req)
	if !ok {
		return
	}
	defer doc.Close()

	var wo billing.WorkOrder
	req.apply(&wo)
	created, err := a.WorkOrders.Create(r.Context(), wo, doc.document())
	if err == nil {
		_ = audit.LogEvent(r.Context(), "work_order.created", map[string]any{"target": created.ID, "client_id": created.ClientID})
	}
	respond(w, r, http.StatusCreated, created, err)
}

func (a *API) handleUpdateWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req workOrderPatch
	doc, ok := a.readWorkOrder(w, r, &req)
	if !ok {
		return
	}
	defer doc.Close()

	wo, err := a.WorkOrders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	req.apply(&wo)
	updated, err := a.WorkOrders.Update(r.Context(), wo, doc.document())
	if err == nil {
		_ = audit.LogEvent(r.Context(), "work_order.updated", map[string]any{"target": wo.ID})
	}
	respond(w, r, http.StatusOK, updated, err)
}

func (a *API) handleDeleteWorkOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted(w, r, "work_order.deleted", id, "Work order deleted", func() error {
		return a.WorkOrders.Delete(r.Context(), id)
	})
}

func (a *API) handleWorkOrderDocument(w http.ResponseWriter, r *http.Request) {
	rc, name, err := a.WorkOrders.Document(r.Context(), r.PathValue("id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	defer rc.Close()
	streamAttachment(w, r, contentTypeOf(name), name, rc)
}

func contentTypeOf(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (a *API) handleChargeSummary(w http.ResponseWriter, r *http.Request) {
	start, ok := queryTime(w, r, "start_date")
	if !ok {
		return
	}
	end, ok := queryTime(w, r, "end_date")
	if !ok {
		return
	}
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	summary, err := a.WorkOrders.Summary(r.Context(), r.PathValue("id"), u.ID, start, end)
	respond(w, r, http.StatusOK, summary, err)
}

func (a *API) handleChargeStatistics(w http.ResponseWriter, r *http.Request) {
	date, ok := queryTime(w, r, "date")
	if !ok {
		return
	}
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	stats, err := a.WorkOrders.Statistics(r.Context(), r.PathValue("id"), u.ID, date)
	respond(w, r, http.StatusOK, stats, err)
}

func (a *API) handleCharge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if !bind(w, r, &req) {
		return
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		writeError(w, r, http.StatusBadRequest, "start_time and end_time are required")
		return
	}
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	ts, err := a.WorkOrders.Charge(r.Context(), r.PathValue("id"), u.ID, billing.Timesheet{
		Description: req.Description,
		StartTime:   req.StartTime.Time,
		EndTime:     req.EndTime.Time,
	})
	if err == nil {
		_ = audit.LogEvent(r.Context(), "timesheet.created", map[string]any{"target": ts.ID, "work_order_id": ts.WorkOrderID})
	}
	respond(w, r, http.StatusCreated, ts, err)
}

func (a *API) handleEditCharge(w http.ResponseWriter, r *http.Request) {
	var req editChargeRequest
	if !bind(w, r, &req) {
		return
	}
	ts, err := a.WorkOrders.EditCharge(r.Context(), r.PathValue("id"), req.Description)
	respond(w, r, http.StatusOK, ts, err)
}

func (a *API) handleDeleteCharge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted(w, r, "timesheet.deleted", id, "Time charge deleted", func() error {
		return a.WorkOrders.DeleteCharge(r.Context(), id)
	})
}

func (a *API) handleTimesheetReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !bind(w, r, &req) {
		return
	}
	pdf, err := a.WorkOrders.Report(r.Context(), req.request())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	attachment(w, "application/pdf", "timesheet.pdf", pdf)
}

func (a *API) handleTimesheetSend(w http.ResponseWriter, r *http.Request) {
	var req sendReportRequest
	if !bind(w, r, &req) {
		return
	}
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	err := a.WorkOrders.SendReport(r.Context(), billing.SendReportRequest{
		ReportRequest: billing.ReportRequest{WorkOrderID: req.WorkOrderID, Start: req.Start.Time, End: req.End.Time},
		To:            req.To,
		CC:            req.CC,
	}, u.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "timesheet.sent", map[string]any{"work_order_id": req.WorkOrderID, "to": req.To})
	writeMessage(w, http.StatusOK, "Timesheet sent")
}
