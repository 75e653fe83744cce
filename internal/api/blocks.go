package api

import (
	"encoding/json"
	"net/http"
	"time"

	"apec/internal/apperr"
	"apec/internal/blocks"
	"apec/internal/store"

	"github.com/go-chi/chi/v5"
)

func timeNow() time.Time { return time.Now().UTC() }

func errReportLocked(submitted bool) error {
	if submitted {
		return apperr.Permission("report is locked pending approval")
	}
	return apperr.Permission("staff access required")
}

func errInvoiceLocked(status string) error {
	if status != "" && status != "draft" {
		return apperr.Permission("invoice has been submitted and is read-only")
	}
	return apperr.Permission("staff access required")
}

// blockScope binds one block collection to the routes below: where the
// owner id comes from and whether the caller may mutate the collection
// right now. The gate runs on every mutating call.
type blockScope struct {
	coll    store.Collection
	ownerID func(*http.Request) string
	canEdit func(*API, *http.Request) error
}

func (a *API) reportBlockRoutes(r chi.Router) {
	a.mountBlockRoutes(r, blockScope{
		coll:    store.ReportBlocks,
		ownerID: urlParam("id"),
		canEdit: func(a *API, r *http.Request) error {
			_, err := a.editableReport(r)
			return err
		},
	})
}

func (a *API) invoiceBlockRoutes(r chi.Router) {
	a.mountBlockRoutes(r, blockScope{
		coll:    store.InvoiceBlocks,
		ownerID: urlParam("id"),
		canEdit: func(a *API, r *http.Request) error {
			_, err := a.editableInvoice(r)
			return err
		},
	})
}

func (a *API) templateBlockRoutes(r chi.Router) {
	a.mountBlockRoutes(r, blockScope{
		coll:    store.TemplateBlocks,
		ownerID: urlParam("id"),
		canEdit: requireStaff,
	})
}

// invoiceTemplateBlockRoutes serves the singleton collection: no owner
// in the path, admin-only edits.
func (a *API) invoiceTemplateBlockRoutes(r chi.Router) {
	a.mountBlockRoutes(r, blockScope{
		coll:    store.InvoiceTemplateBlocks,
		ownerID: func(*http.Request) string { return "" },
		canEdit: requireAdmin,
	})
}

func urlParam(name string) func(*http.Request) string {
	return func(r *http.Request) string { return chi.URLParam(r, name) }
}

func requireStaff(a *API, r *http.Request) error {
	if auth := getAuth(r); auth == nil || !auth.Role.IsStaff() {
		return apperr.Permission("staff access required")
	}
	return nil
}

func requireAdmin(a *API, r *http.Request) error {
	if auth := getAuth(r); auth == nil || !auth.Role.IsAdmin() {
		return apperr.Permission("admin access required")
	}
	return nil
}

func (a *API) mountBlockRoutes(r chi.Router, scope blockScope) {
	r.Get("/", a.listScopedBlocks(scope))
	r.Post("/", a.createScopedBlock(scope))
	r.Put("/reorder", a.reorderScopedBlocks(scope))
	r.Put("/{blockId}", a.updateScopedBlock(scope))
	r.Delete("/{blockId}", a.deleteScopedBlock(scope))
}

func (a *API) listScopedBlocks(scope blockScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seq, err := a.store.ListBlocks(scope.coll, scope.ownerID(r))
		if err != nil {
			a.respondAppErr(w, err)
			return
		}
		if seq == nil {
			seq = []blocks.Block{}
		}
		respondJSON(w, http.StatusOK, seq)
	}
}

// createScopedBlock adds a block. Without an explicit orderIndex the
// block appends to the end of the sequence; without content it starts
// with the type's default.
func (a *API) createScopedBlock(scope blockScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := scope.canEdit(a, r); err != nil {
			a.respondAppErr(w, err)
			return
		}

		var req struct {
			Type       blocks.Type     `json:"type"`
			Content    json.RawMessage `json:"content"`
			OrderIndex *int            `json:"order_index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if !blocks.Known(req.Type) {
			respondError(w, http.StatusBadRequest, "Unknown block type")
			return
		}

		var b *blocks.Block
		var err error
		if req.OrderIndex == nil {
			b, err = a.store.AppendBlock(scope.coll, scope.ownerID(r), req.Type)
		} else {
			var content blocks.Content
			if len(req.Content) > 0 {
				content = blocks.DecodeContent(req.Type, req.Content)
			}
			b, err = a.store.CreateBlock(scope.coll, scope.ownerID(r), req.Type, content, *req.OrderIndex)
		}
		if err != nil {
			a.respondAppErr(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, b)
	}
}

func (a *API) updateScopedBlock(scope blockScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := scope.canEdit(a, r); err != nil {
			a.respondAppErr(w, err)
			return
		}

		blockID := chi.URLParam(r, "blockId")
		existing, err := a.store.GetBlock(scope.coll, blockID)
		if err != nil {
			a.respondAppErr(w, err)
			return
		}

		var req struct {
			Content json.RawMessage `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}

		content := blocks.DecodeContent(existing.Type, req.Content)
		if err := a.store.UpdateBlockContent(scope.coll, blockID, content); err != nil {
			a.respondAppErr(w, err)
			return
		}

		existing.Content = content
		respondJSON(w, http.StatusOK, existing)
	}
}

// reorderScopedBlocks persists a drag-and-drop. Two request forms: a
// single gesture ({blockId, destination}) applied server-side, or the
// full id ordering ({blockIds}) for clients that batch several moves.
// Either way the renumbering commits in one transaction.
func (a *API) reorderScopedBlocks(scope blockScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := scope.canEdit(a, r); err != nil {
			a.respondAppErr(w, err)
			return
		}

		var req struct {
			BlockID     string   `json:"blockId"`
			Destination *int     `json:"destination"`
			BlockIDs    []string `json:"blockIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}

		ownerID := scope.ownerID(r)

		if req.BlockID != "" && req.Destination != nil {
			seq, err := a.store.MoveBlock(scope.coll, ownerID, req.BlockID, *req.Destination)
			if err != nil {
				a.respondAppErr(w, err)
				return
			}
			respondJSON(w, http.StatusOK, seq)
			return
		}
		if len(req.BlockIDs) == 0 {
			respondError(w, http.StatusBadRequest, "Either blockId+destination or blockIds is required")
			return
		}

		if err := a.store.ReorderBlocks(scope.coll, ownerID, req.BlockIDs); err != nil {
			a.respondAppErr(w, err)
			return
		}

		seq, err := a.store.ListBlocks(scope.coll, ownerID)
		if err != nil {
			a.respondAppErr(w, err)
			return
		}
		if seq == nil {
			seq = []blocks.Block{}
		}
		respondJSON(w, http.StatusOK, seq)
	}
}

func (a *API) deleteScopedBlock(scope blockScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := scope.canEdit(a, r); err != nil {
			a.respondAppErr(w, err)
			return
		}

		if err := a.store.DeleteBlock(scope.coll, chi.URLParam(r, "blockId")); err != nil {
			a.respondAppErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
