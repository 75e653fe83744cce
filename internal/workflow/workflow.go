// Package workflow holds the role model and the approval state machine
// for reports and invoices. Every mutating block operation consults
// CanEdit with a freshly loaded role; the result is never cached because
// an admin can approve a report while staff still has it open.
package workflow

import (
	"fmt"
	"time"

	"apec/internal/apperr"
	"apec/internal/models"
)

// Role is a user's single role. Absence of a user_roles row is an
// explicit variant here, not a nil: inactive users can sign in but fail
// every role gate.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleStaff      Role = "staff"
	RoleInactive   Role = "inactive"
)

// ParseRole maps a stored role value to a Role. Empty and unrecognized
// values are inactive.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleSuperAdmin, RoleAdmin, RoleStaff:
		return Role(s)
	}
	return RoleInactive
}

// IsAdmin reports whether r has admin-level rights.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// IsStaff reports whether r can author documents.
func (r Role) IsStaff() bool {
	return r == RoleStaff || r.IsAdmin()
}

// CanEdit is the single edit-permission choke point: once a report is
// submitted for approval, only admins may touch it.
func CanEdit(submittedForApproval bool, actor Role) bool {
	if !actor.IsStaff() {
		return false
	}
	return !submittedForApproval || actor.IsAdmin()
}

// CanEditInvoice applies the two-state variant: submitted invoices are
// read-only to staff.
func CanEditInvoice(status string, actor Role) bool {
	if !actor.IsStaff() {
		return false
	}
	return status != models.InvoiceStatusSubmitted || actor.IsAdmin()
}

// Submit moves a draft report to in_progress and flags it for approval.
// The report must have some content: a title or at least one block.
func Submit(r *models.Report, actor Role, blockCount int) error {
	if !actor.IsStaff() {
		return apperr.Permission("only staff can submit reports")
	}
	if r.Status != models.ReportStatusDraft {
		return apperr.Validation(fmt.Sprintf("cannot submit report with status %q", r.Status))
	}
	if r.Title == "" && blockCount == 0 {
		return apperr.Validation("report has no content to submit")
	}
	r.Status = models.ReportStatusInProgress
	r.SubmittedForApproval = true
	return nil
}

// Approve completes a submitted report, recording who approved it and
// when. Completed is only reachable from in_progress: never from draft.
func Approve(r *models.Report, actor Role, actorID string, now time.Time) error {
	if !actor.IsAdmin() {
		return apperr.Permission("only admins can approve reports")
	}
	if r.Status != models.ReportStatusInProgress || !r.SubmittedForApproval {
		return apperr.Validation("report has not been submitted for approval")
	}
	r.Status = models.ReportStatusCompleted
	r.ApprovedBy = &actorID
	r.ApprovedAt = &now
	return nil
}

// Reject sends a submitted report back to draft for revision. Content is
// preserved; only the flag and status change.
func Reject(r *models.Report, actor Role) error {
	if !actor.IsAdmin() {
		return apperr.Permission("only admins can reject reports")
	}
	if r.Status != models.ReportStatusInProgress || !r.SubmittedForApproval {
		return apperr.Validation("report has not been submitted for approval")
	}
	r.Status = models.ReportStatusDraft
	r.SubmittedForApproval = false
	return nil
}

// SubmitInvoice moves a draft invoice to submitted.
func SubmitInvoice(inv *models.Invoice, actor Role) error {
	if !actor.IsStaff() {
		return apperr.Permission("only staff can submit invoices")
	}
	if inv.Status != models.InvoiceStatusDraft {
		return apperr.Validation(fmt.Sprintf("cannot submit invoice with status %q", inv.Status))
	}
	inv.Status = models.InvoiceStatusSubmitted
	return nil
}
