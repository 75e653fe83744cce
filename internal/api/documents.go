package api

import (
	"encoding/json"
	"net/http"

	"apec/internal/blocks"
	"apec/internal/models"
	"apec/internal/store"
	"apec/internal/workflow"

	"github.com/go-chi/chi/v5"
)

// Report handlers

func (a *API) listReports(w http.ResponseWriter, r *http.Request) {
	reports, err := a.store.ListReports(r.URL.Query().Get("status"))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}
	respondJSON(w, http.StatusOK, reports)
}

func (a *API) createReport(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	if !auth.Role.IsStaff() {
		respondError(w, http.StatusForbidden, "Staff access required")
		return
	}

	var rep models.Report
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	rep.CreatedBy = auth.User.ID
	rep.Status = models.ReportStatusDraft
	rep.SubmittedForApproval = false
	rep.ApprovedBy = nil
	rep.ApprovedAt = nil

	if err := a.store.CreateReport(&rep); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rep)
}

func (a *API) getReport(w http.ResponseWriter, r *http.Request) {
	rep, err := a.store.GetReport(chi.URLParam(r, "id"))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (a *API) updateReport(w http.ResponseWriter, r *http.Request) {
	rep, err := a.editableReport(r)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	var req models.Report
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Metadata only: workflow fields change through the workflow
	// endpoints, never through a plain update.
	rep.Title = req.Title
	rep.ClientName = req.ClientName
	rep.ClientEmail = req.ClientEmail
	rep.InspectionDate = req.InspectionDate
	rep.JobNumber = req.JobNumber
	rep.Location = req.Location
	rep.Subject = req.Subject
	rep.OrderNumber = req.OrderNumber
	rep.Technician = req.Technician
	rep.ReportNumber = req.ReportNumber

	if err := a.store.UpdateReport(rep); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (a *API) deleteReport(w http.ResponseWriter, r *http.Request) {
	if _, err := a.editableReport(r); err != nil {
		a.respondAppErr(w, err)
		return
	}
	if err := a.store.DeleteReport(chi.URLParam(r, "id")); err != nil {
		a.respondAppErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// saveReport flushes an editor session in one request: the metadata
// plus the content of every dirty block. Block writes are independent:
// one failing does not roll back the rest, and each failure comes back
// keyed by block id so the editor can retry just those.
func (a *API) saveReport(w http.ResponseWriter, r *http.Request) {
	rep, err := a.editableReport(r)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	var req struct {
		Report models.Report `json:"report"`
		Blocks []struct {
			ID      string          `json:"id"`
			Content json.RawMessage `json:"content"`
		} `json:"blocks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	rep.Title = req.Report.Title
	rep.ClientName = req.Report.ClientName
	rep.ClientEmail = req.Report.ClientEmail
	rep.InspectionDate = req.Report.InspectionDate
	rep.JobNumber = req.Report.JobNumber
	rep.Location = req.Report.Location
	rep.Subject = req.Report.Subject
	rep.OrderNumber = req.Report.OrderNumber
	rep.Technician = req.Report.Technician
	rep.ReportNumber = req.Report.ReportNumber

	if err := a.store.UpdateReport(rep); err != nil {
		a.respondAppErr(w, err)
		return
	}

	// The stored type wins: a block's type is immutable, so content is
	// always decoded against what the row says, never what the request
	// claims.
	blockErrors := map[string]string{}
	for _, b := range req.Blocks {
		existing, err := a.store.GetBlock(store.ReportBlocks, b.ID)
		if err != nil {
			blockErrors[b.ID] = err.Error()
			continue
		}
		content := blocks.DecodeContent(existing.Type, b.Content)
		if err := a.store.UpdateBlockContent(store.ReportBlocks, b.ID, content); err != nil {
			blockErrors[b.ID] = err.Error()
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"report":      rep,
		"blockErrors": blockErrors,
	})
}

func (a *API) cloneReport(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	if !auth.Role.IsStaff() {
		respondError(w, http.StatusForbidden, "Staff access required")
		return
	}

	clone, err := a.store.CloneReport(chi.URLParam(r, "id"), auth.User.ID)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, clone)
}

func (a *API) createReportFromTemplate(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	if !auth.Role.IsStaff() {
		respondError(w, http.StatusForbidden, "Staff access required")
		return
	}

	rep, err := a.store.CreateReportFromTemplate(chi.URLParam(r, "templateId"), auth.User.ID)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rep)
}

// Workflow handlers

func (a *API) submitReport(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	rep, err := a.store.GetReport(chi.URLParam(r, "id"))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	blockCount, err := a.store.CountReportBlocks(rep.ID)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	if err := workflow.Submit(rep, auth.Role, blockCount); err != nil {
		a.respondAppErr(w, err)
		return
	}
	if err := a.store.UpdateReport(rep); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (a *API) approveReport(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	rep, err := a.store.GetReport(chi.URLParam(r, "id"))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	if err := workflow.Approve(rep, auth.Role, auth.User.ID, timeNow()); err != nil {
		a.respondAppErr(w, err)
		return
	}
	if err := a.store.UpdateReport(rep); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (a *API) rejectReport(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	rep, err := a.store.GetReport(chi.URLParam(r, "id"))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	if err := workflow.Reject(rep, auth.Role); err != nil {
		a.respondAppErr(w, err)
		return
	}
	if err := a.store.UpdateReport(rep); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

// listApprovedReports returns completed reports grouped by client,
// groups ordered by their most recent approval.
func (a *API) listApprovedReports(w http.ResponseWriter, r *http.Request) {
	reports, err := a.store.ListApprovedReports()
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	type clientGroup struct {
		ClientName string          `json:"client_name"`
		Reports    []models.Report `json:"reports"`
	}

	var groups []clientGroup
	index := map[string]int{}
	for _, rep := range reports {
		i, ok := index[rep.ClientName]
		if !ok {
			i = len(groups)
			index[rep.ClientName] = i
			groups = append(groups, clientGroup{ClientName: rep.ClientName})
		}
		groups[i].Reports = append(groups[i].Reports, rep)
	}
	if groups == nil {
		groups = []clientGroup{}
	}
	respondJSON(w, http.StatusOK, groups)
}

// Invoice handlers

func (a *API) listInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := a.store.ListInvoices()
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	respondJSON(w, http.StatusOK, invoices)
}

func (a *API) createInvoice(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	if !auth.Role.IsStaff() {
		respondError(w, http.StatusForbidden, "Staff access required")
		return
	}

	var inv models.Invoice
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	inv.CreatedBy = auth.User.ID
	inv.Status = models.InvoiceStatusDraft

	if err := a.store.CreateInvoice(&inv); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

func (a *API) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := a.store.GetInvoice(chi.URLParam(r, "id"))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (a *API) updateInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := a.editableInvoice(r)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	var req models.Invoice
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	inv.CustomerName = req.CustomerName
	inv.CustomerCompany = req.CustomerCompany
	inv.CustomerEmail = req.CustomerEmail
	inv.CustomerPhone = req.CustomerPhone
	inv.PurchaseOrder = req.PurchaseOrder
	inv.InvoiceNumber = req.InvoiceNumber
	inv.Date = req.Date

	if err := a.store.UpdateInvoice(inv); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (a *API) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	if _, err := a.editableInvoice(r); err != nil {
		a.respondAppErr(w, err)
		return
	}
	if err := a.store.DeleteInvoice(chi.URLParam(r, "id")); err != nil {
		a.respondAppErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) cloneInvoice(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	if !auth.Role.IsStaff() {
		respondError(w, http.StatusForbidden, "Staff access required")
		return
	}

	clone, err := a.store.CloneInvoice(chi.URLParam(r, "id"), auth.User.ID)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, clone)
}

func (a *API) submitInvoice(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	inv, err := a.store.GetInvoice(chi.URLParam(r, "id"))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	if err := workflow.SubmitInvoice(inv, auth.Role); err != nil {
		a.respondAppErr(w, err)
		return
	}
	if err := a.store.UpdateInvoice(inv); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

// Template handlers

func (a *API) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := a.store.ListTemplates()
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	if templates == nil {
		templates = []models.Template{}
	}
	respondJSON(w, http.StatusOK, templates)
}

func (a *API) createTemplate(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	if !auth.Role.IsStaff() {
		respondError(w, http.StatusForbidden, "Staff access required")
		return
	}

	var t models.Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	t.CreatedBy = auth.User.ID
	if err := a.store.CreateTemplate(&t); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

func (a *API) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := a.store.GetTemplate(chi.URLParam(r, "id"))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (a *API) updateTemplate(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	if !auth.Role.IsStaff() {
		respondError(w, http.StatusForbidden, "Staff access required")
		return
	}

	t, err := a.store.GetTemplate(chi.URLParam(r, "id"))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	var req models.Template
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	t.Title = req.Title
	t.Description = req.Description
	t.Category = req.Category
	if req.Status != "" {
		t.Status = req.Status
	}

	if err := a.store.UpdateTemplate(t); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (a *API) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	if !auth.Role.IsStaff() {
		respondError(w, http.StatusForbidden, "Staff access required")
		return
	}

	if err := a.store.DeleteTemplate(chi.URLParam(r, "id")); err != nil {
		a.respondAppErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Edit gates. Reloaded on every call so an approval that lands while an
// editor is open locks the next write, not just the next page load.

func (a *API) editableReport(r *http.Request) (*models.Report, error) {
	auth := getAuth(r)
	rep, err := a.store.GetReport(chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if !workflow.CanEdit(rep.SubmittedForApproval, auth.Role) {
		return nil, errReportLocked(rep.SubmittedForApproval)
	}
	return rep, nil
}

func (a *API) editableInvoice(r *http.Request) (*models.Invoice, error) {
	auth := getAuth(r)
	inv, err := a.store.GetInvoice(chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if !workflow.CanEditInvoice(inv.Status, auth.Role) {
		return nil, errInvoiceLocked(inv.Status)
	}
	return inv, nil
}
