package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"apec/internal/ai"
	"apec/internal/blocks"
	"apec/internal/models"
	"apec/internal/store"

	"github.com/rs/zerolog"
)

type testEnv struct {
	t       *testing.T
	handler http.Handler
	store   *store.Store
}

func setupTestAPI(t *testing.T) (*testEnv, func()) {
	t.Helper()

	s, err := store.New(store.Config{
		Backend:    store.BackendSQLite,
		SQLitePath: ":memory:",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	a := New(s, nil, ai.New(""), zerolog.Nop())
	env := &testEnv{t: t, handler: a.Routes(), store: s}
	return env, func() { s.Close() }
}

// do issues a request and decodes the JSON response into out (when out
// is non-nil).
func (e *testEnv) do(method, path, token string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	if out != nil && w.Code < 300 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			e.t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
		}
	}
	return w
}

func (e *testEnv) mustStatus(w *httptest.ResponseRecorder, want int) {
	e.t.Helper()
	if w.Code != want {
		e.t.Fatalf("Status = %d, want %d (body: %s)", w.Code, want, w.Body.String())
	}
}

type authResponse struct {
	User  models.User `json:"user"`
	Role  string      `json:"role"`
	Token string      `json:"token"`
}

// registerUsers creates the super admin (first account) plus a staff
// account, returning both tokens.
func (e *testEnv) registerUsers() (admin, staff authResponse) {
	e.t.Helper()

	w := e.do("POST", "/auth/register", "", map[string]string{
		"email": "admin@apec.test", "password": "password123", "displayName": "Admin",
	}, &admin)
	e.mustStatus(w, http.StatusCreated)
	if admin.Role != "super_admin" {
		e.t.Fatalf("First user role = %s, want super_admin", admin.Role)
	}

	w = e.do("POST", "/auth/register", "", map[string]string{
		"email": "staff@apec.test", "password": "password123", "displayName": "Staff",
	}, &staff)
	e.mustStatus(w, http.StatusCreated)
	if staff.Role != "inactive" {
		e.t.Fatalf("Second user role = %s, want inactive", staff.Role)
	}

	w = e.do("PUT", "/admin/users/"+staff.User.ID+"/role", admin.Token,
		map[string]string{"role": "staff"}, nil)
	e.mustStatus(w, http.StatusOK)
	return admin, staff
}

func TestAuthRequired(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()

	w := env.do("GET", "/reports", "", nil, nil)
	env.mustStatus(w, http.StatusUnauthorized)
}

func TestInactiveUserLockedOut(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()

	env.do("POST", "/auth/register", "", map[string]string{
		"email": "admin@apec.test", "password": "password123",
	}, nil)

	var inactive authResponse
	env.do("POST", "/auth/register", "", map[string]string{
		"email": "new@apec.test", "password": "password123",
	}, &inactive)

	// The identity endpoint stays open so the client can show the
	// inactive-account screen.
	var me struct {
		Role string `json:"role"`
	}
	w := env.do("GET", "/auth/me", inactive.Token, nil, &me)
	env.mustStatus(w, http.StatusOK)
	if me.Role != "inactive" {
		t.Fatalf("Role = %s, want inactive", me.Role)
	}

	// Everything else bounces: reads, writes, and the AI surface.
	for _, tc := range []struct {
		method, path string
		body         interface{}
	}{
		{"GET", "/reports", nil},
		{"GET", "/invoices", nil},
		{"GET", "/templates", nil},
		{"POST", "/reports", map[string]string{"title": "x"}},
		{"POST", "/ai/generate-report", map[string]string{"reportTypeId": "x"}},
		{"GET", "/ai/models", nil},
	} {
		w := env.do(tc.method, tc.path, inactive.Token, tc.body, nil)
		env.mustStatus(w, http.StatusForbidden)
	}
}

// TestReportLifecycle walks a report through the whole editing and
// approval flow: build content, reorder it, delete from it, submit,
// verify the staff lockout, approve, and verify the completed lockout.
func TestReportLifecycle(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	admin, staff := env.registerUsers()

	var rep models.Report
	w := env.do("POST", "/reports", staff.Token, map[string]string{
		"title":       "Crane hook inspection",
		"client_name": "Acme Lifting",
	}, &rep)
	env.mustStatus(w, http.StatusCreated)
	if rep.Status != models.ReportStatusDraft {
		t.Fatalf("New report status = %s, want draft", rep.Status)
	}

	blocksPath := "/reports/" + rep.ID + "/blocks"

	// Add heading, text, checklist: they land at 0, 1, 2.
	var added []blocks.Block
	for _, typ := range []string{"heading", "text", "checklist"} {
		var b blocks.Block
		w = env.do("POST", blocksPath, staff.Token, map[string]string{"type": typ}, &b)
		env.mustStatus(w, http.StatusCreated)
		added = append(added, b)
	}
	for i, b := range added {
		if b.OrderIndex != i {
			t.Fatalf("Block %d landed at index %d", i, b.OrderIndex)
		}
	}

	// Drag the checklist to the top: the server applies the gesture.
	var seq []blocks.Block
	w = env.do("PUT", blocksPath+"/reorder", staff.Token, map[string]interface{}{
		"blockId":     added[2].ID,
		"destination": 0,
	}, &seq)
	env.mustStatus(w, http.StatusOK)
	if seq[0].ID != added[2].ID || seq[0].OrderIndex != 0 {
		t.Fatalf("Checklist not at position 0 after reorder: %+v", seq[0])
	}

	// Delete the heading: checklist and text remain at 0 and 1.
	w = env.do("DELETE", blocksPath+"/"+added[0].ID, staff.Token, nil, nil)
	env.mustStatus(w, http.StatusNoContent)

	seq = nil
	w = env.do("GET", blocksPath, staff.Token, nil, &seq)
	env.mustStatus(w, http.StatusOK)
	if len(seq) != 2 {
		t.Fatalf("Expected 2 blocks after delete, got %d", len(seq))
	}
	if seq[0].ID != added[2].ID || seq[1].ID != added[1].ID {
		t.Fatal("Wrong block order after delete")
	}
	for i, b := range seq {
		if b.OrderIndex != i {
			t.Fatalf("Sparse order_index %d at position %d after delete", b.OrderIndex, i)
		}
	}

	// Staff submits for approval.
	w = env.do("POST", "/reports/"+rep.ID+"/submit", staff.Token, nil, &rep)
	env.mustStatus(w, http.StatusOK)
	if rep.Status != models.ReportStatusInProgress || !rep.SubmittedForApproval {
		t.Fatalf("After submit: status=%s submitted=%v", rep.Status, rep.SubmittedForApproval)
	}

	// Submitted: staff edits bounce, admin edits pass.
	w = env.do("POST", blocksPath, staff.Token, map[string]string{"type": "text"}, nil)
	env.mustStatus(w, http.StatusForbidden)

	w = env.do("PUT", "/reports/"+rep.ID, staff.Token, map[string]string{"title": "sneaky"}, nil)
	env.mustStatus(w, http.StatusForbidden)

	w = env.do("PUT", blocksPath+"/"+added[1].ID, admin.Token, map[string]interface{}{
		"content": map[string]string{"text": "Reviewed wording"},
	}, nil)
	env.mustStatus(w, http.StatusOK)

	// Staff cannot approve.
	w = env.do("POST", "/reports/"+rep.ID+"/approve", staff.Token, nil, nil)
	env.mustStatus(w, http.StatusForbidden)

	// Admin approves: completed, stamped.
	w = env.do("POST", "/reports/"+rep.ID+"/approve", admin.Token, nil, &rep)
	env.mustStatus(w, http.StatusOK)
	if rep.Status != models.ReportStatusCompleted {
		t.Fatalf("After approve: status=%s", rep.Status)
	}
	if rep.ApprovedBy == nil || *rep.ApprovedBy != admin.User.ID || rep.ApprovedAt == nil {
		t.Fatal("Approval stamp missing")
	}

	// Completed reports stay locked for staff.
	w = env.do("POST", blocksPath, staff.Token, map[string]string{"type": "text"}, nil)
	env.mustStatus(w, http.StatusForbidden)

	// And show up in the approved listing, grouped by client.
	var groups []struct {
		ClientName string          `json:"client_name"`
		Reports    []models.Report `json:"reports"`
	}
	w = env.do("GET", "/reports/approved", staff.Token, nil, &groups)
	env.mustStatus(w, http.StatusOK)
	if len(groups) != 1 || groups[0].ClientName != "Acme Lifting" || len(groups[0].Reports) != 1 {
		t.Fatalf("Unexpected approved grouping: %+v", groups)
	}
}

func TestRejectReturnsReportToDraft(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	admin, staff := env.registerUsers()

	var rep models.Report
	env.do("POST", "/reports", staff.Token, map[string]string{"title": "Pipe weld survey"}, &rep)
	env.do("POST", "/reports/"+rep.ID+"/submit", staff.Token, nil, &rep)

	w := env.do("POST", "/reports/"+rep.ID+"/reject", admin.Token, nil, &rep)
	env.mustStatus(w, http.StatusOK)
	if rep.Status != models.ReportStatusDraft || rep.SubmittedForApproval {
		t.Fatalf("After reject: status=%s submitted=%v", rep.Status, rep.SubmittedForApproval)
	}

	// Staff can edit again and resubmit.
	w = env.do("PUT", "/reports/"+rep.ID, staff.Token, map[string]string{"title": "Pipe weld survey v2"}, &rep)
	env.mustStatus(w, http.StatusOK)

	w = env.do("POST", "/reports/"+rep.ID+"/submit", staff.Token, nil, &rep)
	env.mustStatus(w, http.StatusOK)
}

func TestSubmitEmptyReportRejected(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	_, staff := env.registerUsers()

	var rep models.Report
	env.do("POST", "/reports", staff.Token, map[string]string{}, &rep)

	w := env.do("POST", "/reports/"+rep.ID+"/submit", staff.Token, nil, nil)
	env.mustStatus(w, http.StatusBadRequest)
}

func TestCloneReportEndpoint(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	_, staff := env.registerUsers()

	var rep models.Report
	env.do("POST", "/reports", staff.Token, map[string]string{
		"title":         "Boiler inspection",
		"report_number": "RPT-7",
	}, &rep)
	env.do("POST", "/reports/"+rep.ID+"/blocks", staff.Token, map[string]string{"type": "text"}, nil)

	var clone models.Report
	w := env.do("POST", "/reports/"+rep.ID+"/clone", staff.Token, nil, &clone)
	env.mustStatus(w, http.StatusCreated)
	if clone.ID == rep.ID || clone.ReportNumber != "" || clone.Status != models.ReportStatusDraft {
		t.Fatalf("Bad clone: %+v", clone)
	}

	var seq []blocks.Block
	env.do("GET", "/reports/"+clone.ID+"/blocks", staff.Token, nil, &seq)
	if len(seq) != 1 {
		t.Fatalf("Clone has %d blocks, want 1", len(seq))
	}
}

func TestTemplateInstantiation(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	_, staff := env.registerUsers()

	var tpl models.Template
	w := env.do("POST", "/templates", staff.Token, map[string]string{
		"title": "MT Survey", "category": "NDT",
	}, &tpl)
	env.mustStatus(w, http.StatusCreated)

	env.do("POST", "/templates/"+tpl.ID+"/blocks", staff.Token, map[string]string{"type": "heading"}, nil)
	env.do("POST", "/templates/"+tpl.ID+"/blocks", staff.Token, map[string]string{"type": "notes"}, nil)

	var rep models.Report
	w = env.do("POST", "/reports/from-template/"+tpl.ID, staff.Token, nil, &rep)
	env.mustStatus(w, http.StatusCreated)
	if rep.Title != "MT Survey" {
		t.Fatalf("Report title = %s, want template title", rep.Title)
	}

	var seq []blocks.Block
	env.do("GET", "/reports/"+rep.ID+"/blocks", staff.Token, nil, &seq)
	if len(seq) != 2 {
		t.Fatalf("Instantiated report has %d blocks, want 2", len(seq))
	}
}

func TestSaveReportCollectsBlockErrors(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	_, staff := env.registerUsers()

	var rep models.Report
	env.do("POST", "/reports", staff.Token, map[string]string{"title": "Valve survey"}, &rep)

	var b blocks.Block
	env.do("POST", "/reports/"+rep.ID+"/blocks", staff.Token, map[string]string{"type": "text"}, &b)

	var resp struct {
		Report      models.Report     `json:"report"`
		BlockErrors map[string]string `json:"blockErrors"`
	}
	w := env.do("PUT", "/reports/"+rep.ID+"/save", staff.Token, map[string]interface{}{
		"report": map[string]string{"title": "Valve survey (final)"},
		"blocks": []map[string]interface{}{
			{"id": b.ID, "type": "text", "content": map[string]string{"text": "All valves pass"}},
			{"id": "gone", "type": "text", "content": map[string]string{"text": "orphan"}},
		},
	}, &resp)
	env.mustStatus(w, http.StatusOK)

	if resp.Report.Title != "Valve survey (final)" {
		t.Fatalf("Metadata not saved: %s", resp.Report.Title)
	}
	if len(resp.BlockErrors) != 1 {
		t.Fatalf("Expected 1 block error, got %v", resp.BlockErrors)
	}
	if _, ok := resp.BlockErrors["gone"]; !ok {
		t.Fatal("Missing error for the orphan block")
	}

	// The good block's write stuck despite its sibling failing.
	var seq []blocks.Block
	env.do("GET", "/reports/"+rep.ID+"/blocks", staff.Token, nil, &seq)
	txt, ok := seq[0].Content.(blocks.TextContent)
	if !ok || txt.Text != "All valves pass" {
		t.Fatalf("Block content not saved: %+v", seq[0].Content)
	}
}

func TestReorderFullOrdering(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	_, staff := env.registerUsers()

	var rep models.Report
	env.do("POST", "/reports", staff.Token, map[string]string{"title": "Ladder inspection"}, &rep)
	blocksPath := "/reports/" + rep.ID + "/blocks"

	var added []blocks.Block
	for i := 0; i < 3; i++ {
		var b blocks.Block
		env.do("POST", blocksPath, staff.Token, map[string]string{"type": "text"}, &b)
		added = append(added, b)
	}

	var seq []blocks.Block
	w := env.do("PUT", blocksPath+"/reorder", staff.Token, map[string][]string{
		"blockIds": {added[1].ID, added[2].ID, added[0].ID},
	}, &seq)
	env.mustStatus(w, http.StatusOK)
	if seq[0].ID != added[1].ID || seq[2].ID != added[0].ID {
		t.Fatalf("Full ordering not applied: %+v", seq)
	}

	// A gesture with an unknown block is a 404, an out-of-range
	// destination a 400, and neither body form a 400.
	w = env.do("PUT", blocksPath+"/reorder", staff.Token, map[string]interface{}{
		"blockId": "gone", "destination": 0,
	}, nil)
	env.mustStatus(w, http.StatusNotFound)

	w = env.do("PUT", blocksPath+"/reorder", staff.Token, map[string]interface{}{
		"blockId": added[0].ID, "destination": 9,
	}, nil)
	env.mustStatus(w, http.StatusBadRequest)

	w = env.do("PUT", blocksPath+"/reorder", staff.Token, map[string]string{}, nil)
	env.mustStatus(w, http.StatusBadRequest)
}

func TestSaveReportUsesStoredBlockType(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	_, staff := env.registerUsers()

	var rep models.Report
	env.do("POST", "/reports", staff.Token, map[string]string{"title": "Gantry survey"}, &rep)

	var b blocks.Block
	env.do("POST", "/reports/"+rep.ID+"/blocks", staff.Token, map[string]string{"type": "heading"}, &b)

	// The request lies about the type; the stored row wins and the
	// payload decodes as heading content.
	w := env.do("PUT", "/reports/"+rep.ID+"/save", staff.Token, map[string]interface{}{
		"report": map[string]string{"title": "Gantry survey"},
		"blocks": []map[string]interface{}{
			{"id": b.ID, "type": "text", "content": map[string]interface{}{"text": "Scope", "level": 1}},
		},
	}, nil)
	env.mustStatus(w, http.StatusOK)

	var seq []blocks.Block
	env.do("GET", "/reports/"+rep.ID+"/blocks", staff.Token, nil, &seq)
	h, ok := seq[0].Content.(blocks.HeadingContent)
	if !ok {
		t.Fatalf("Content stored as %T, want HeadingContent", seq[0].Content)
	}
	if h.Text != "Scope" || h.Level != 1 {
		t.Fatalf("Heading content mismatch: %+v", h)
	}
	if seq[0].Type != blocks.TypeHeading {
		t.Fatalf("Block type changed to %s", seq[0].Type)
	}
}

func TestInvoiceLifecycle(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	admin, staff := env.registerUsers()

	// Admin seeds the invoice template with the invoice form block.
	w := env.do("POST", "/invoice-template/blocks", admin.Token,
		map[string]string{"type": "invoice_data"}, nil)
	env.mustStatus(w, http.StatusCreated)

	// Staff cannot touch the invoice template.
	w = env.do("POST", "/invoice-template/blocks", staff.Token,
		map[string]string{"type": "invoice_data"}, nil)
	env.mustStatus(w, http.StatusForbidden)

	var inv models.Invoice
	w = env.do("POST", "/invoices", staff.Token, map[string]string{
		"customer_name": "Acme Lifting",
	}, &inv)
	env.mustStatus(w, http.StatusCreated)

	// The new invoice starts with the template's block.
	var seq []blocks.Block
	env.do("GET", "/invoices/"+inv.ID+"/blocks", staff.Token, nil, &seq)
	if len(seq) != 1 || seq[0].Type != blocks.TypeInvoiceData {
		t.Fatalf("Invoice not seeded from template: %+v", seq)
	}

	w = env.do("POST", "/invoices/"+inv.ID+"/submit", staff.Token, nil, &inv)
	env.mustStatus(w, http.StatusOK)
	if inv.Status != models.InvoiceStatusSubmitted {
		t.Fatalf("Invoice status = %s, want submitted", inv.Status)
	}

	// Submitted invoices are read-only to staff, editable by admins.
	w = env.do("PUT", "/invoices/"+inv.ID, staff.Token, map[string]string{
		"customer_name": "changed",
	}, nil)
	env.mustStatus(w, http.StatusForbidden)

	w = env.do("PUT", "/invoices/"+inv.ID, admin.Token, map[string]string{
		"customer_name": "Acme Lifting Ltd",
	}, nil)
	env.mustStatus(w, http.StatusOK)
}

func TestSettingsRequireSuperAdmin(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	admin, staff := env.registerUsers()

	w := env.do("PUT", "/settings/openai_model", staff.Token,
		map[string]string{"model": "gpt-4o", "apiKey": "sk-test"}, nil)
	env.mustStatus(w, http.StatusForbidden)

	w = env.do("PUT", "/settings/openai_model", admin.Token,
		map[string]string{"model": "gpt-4o", "apiKey": "sk-test"}, nil)
	env.mustStatus(w, http.StatusOK)

	var got struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	w = env.do("GET", "/settings/openai_model", admin.Token, nil, &got)
	env.mustStatus(w, http.StatusOK)
	if got.Key != "openai_model" {
		t.Fatalf("Unexpected setting: %+v", got)
	}
}

func TestRoleChangeTakesEffectImmediately(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	admin, staff := env.registerUsers()

	var rep models.Report
	w := env.do("POST", "/reports", staff.Token, map[string]string{"title": "x"}, &rep)
	env.mustStatus(w, http.StatusCreated)

	// Deactivate the staff user: the same token immediately loses
	// authoring rights because deactivation also drops sessions.
	w = env.do("PUT", "/admin/users/"+staff.User.ID+"/role", admin.Token,
		map[string]string{"role": "inactive"}, nil)
	env.mustStatus(w, http.StatusOK)

	w = env.do("POST", "/reports", staff.Token, map[string]string{"title": "y"}, nil)
	env.mustStatus(w, http.StatusUnauthorized)
}

func TestCannotChangeOwnRole(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	admin, _ := env.registerUsers()

	w := env.do("PUT", fmt.Sprintf("/admin/users/%s/role", admin.User.ID), admin.Token,
		map[string]string{"role": "staff"}, nil)
	env.mustStatus(w, http.StatusBadRequest)
}
