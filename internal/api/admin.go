package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"apec/internal/blocks"
	"apec/internal/models"
	"apec/internal/storage"
	"apec/internal/store"
	"apec/internal/workflow"

	"github.com/go-chi/chi/v5"
)

// User management

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	profiles, err := a.store.ListProfiles()
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	if profiles == nil {
		profiles = []models.Profile{}
	}
	respondJSON(w, http.StatusOK, profiles)
}

func (a *API) setUserRole(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	id := chi.URLParam(r, "id")

	if id == auth.User.ID {
		respondError(w, http.StatusBadRequest, "Cannot change your own role")
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	role := workflow.ParseRole(req.Role)
	if role == workflow.RoleSuperAdmin && auth.Role != workflow.RoleSuperAdmin {
		respondError(w, http.StatusForbidden, "Only a super admin can grant super admin")
		return
	}

	if _, err := a.store.GetUser(id); err != nil {
		a.respondAppErr(w, err)
		return
	}
	if err := a.store.SetRole(id, role); err != nil {
		a.respondAppErr(w, err)
		return
	}

	// Deactivation kills live sessions too.
	if role == workflow.RoleInactive {
		a.store.DeleteUserSessions(id)
	}

	respondJSON(w, http.StatusOK, map[string]string{"user_id": id, "role": string(role)})
}

// Report types

func (a *API) listReportTypes(w http.ResponseWriter, r *http.Request) {
	types, err := a.store.ListReportTypes()
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	if types == nil {
		types = []models.ReportType{}
	}
	respondJSON(w, http.StatusOK, types)
}

func (a *API) createReportType(w http.ResponseWriter, r *http.Request) {
	var rt models.ReportType
	if err := json.NewDecoder(r.Body).Decode(&rt); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if rt.Name == "" {
		respondError(w, http.StatusBadRequest, "Name is required")
		return
	}

	if err := a.store.CreateReportType(&rt); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rt)
}

func (a *API) deleteReportType(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteReportType(chi.URLParam(r, "id")); err != nil {
		a.respondAppErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Knowledge base

func (a *API) listKBDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := a.store.ListKBDocuments(r.URL.Query().Get("report_type_id"))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	if docs == nil {
		docs = []models.KnowledgeBaseDocument{}
	}
	respondJSON(w, http.StatusOK, docs)
}

// uploadKBDocument stores a reference document and extracts its text
// for AI grounding. Extraction failure is not fatal: the document is
// kept with placeholder content so it can be re-parsed later.
func (a *API) uploadKBDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	reportTypeID := r.FormValue("report_type_id")
	if _, err := a.store.GetReportType(reportTypeID); err != nil {
		a.respondAppErr(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	ext := filepath.Ext(header.Filename)

	var filePath string
	if a.storage != nil {
		key, _, err := a.storage.Upload(r.Context(), storage.PrefixKnowledgeBase,
			bytes.NewReader(data), contentType, ext)
		if err != nil {
			respondError(w, http.StatusBadGateway, "Failed to store file")
			return
		}
		filePath = key
	}

	doc := &models.KnowledgeBaseDocument{
		ReportTypeID: reportTypeID,
		FileName:     header.Filename,
		FilePath:     filePath,
		FileType:     contentType,
		Content:      a.extractText(r, header.Filename, contentType, data),
	}
	if err := a.store.CreateKBDocument(doc); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

func (a *API) extractText(r *http.Request, fileName, contentType string, data []byte) string {
	if strings.HasPrefix(contentType, "text/") ||
		strings.HasSuffix(fileName, ".txt") || strings.HasSuffix(fileName, ".md") {
		return string(data)
	}

	cfg, err := a.store.OpenAISettings()
	if err == nil {
		text, err := a.ai.ParseDocument(r.Context(), cfg, fileName, contentType, data)
		if err == nil {
			return text
		}
		a.log.Warn().Err(err).Str("file", fileName).Msg("document extraction failed")
	}
	return fmt.Sprintf("[content could not be extracted from %s]", fileName)
}

func (a *API) deleteKBDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := a.store.GetKBDocument(chi.URLParam(r, "id"))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	if a.storage != nil && doc.FilePath != "" {
		if err := a.storage.Delete(r.Context(), doc.FilePath); err != nil {
			a.log.Warn().Err(err).Str("key", doc.FilePath).Msg("failed to delete stored file")
		}
	}

	if err := a.store.DeleteKBDocument(doc.ID); err != nil {
		a.respondAppErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Platform settings

func (a *API) getSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := a.store.GetSetting(chi.URLParam(r, "key"))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"key":   setting.Key,
		"value": json.RawMessage(setting.Value),
	})
}

func (a *API) setSetting(w http.ResponseWriter, r *http.Request) {
	value, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	if err := a.store.SetSetting(chi.URLParam(r, "key"), value); err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Photo uploads

func (a *API) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	if a.storage == nil {
		respondError(w, http.StatusServiceUnavailable, "File storage is not configured")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		respondError(w, http.StatusBadRequest, "Only images are allowed")
		return
	}

	key, url, err := a.storage.Upload(r.Context(), storage.PrefixInspectionPhotos,
		file, contentType, filepath.Ext(header.Filename))
	if err != nil {
		respondError(w, http.StatusBadGateway, "Failed to store file")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"key":      key,
		"url":      url,
		"filename": header.Filename,
	})
}

// AI endpoints

func (a *API) aiGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReportTypeID string            `json:"reportTypeId"`
		UserInputs   map[string]string `json:"userInputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	cfg, err := a.store.OpenAISettings()
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	rt, err := a.store.GetReportType(req.ReportTypeID)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	docs, err := a.store.ListKBDocuments(rt.ID)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	excerpts := make([]string, 0, len(docs))
	for _, d := range docs {
		excerpts = append(excerpts, d.Content)
	}

	content, err := a.ai.GenerateReport(r.Context(), cfg, rt, excerpts, req.UserInputs)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"content": content})
}

func (a *API) aiReviewReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReportID string `json:"reportId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	cfg, err := a.store.OpenAISettings()
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	rep, err := a.store.GetReport(req.ReportID)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	seq, err := a.store.ListBlocks(store.ReportBlocks, rep.ID)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	review, err := a.ai.ReviewReport(r.Context(), cfg, renderReportText(rep, seq))
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, review)
}

func (a *API) aiListModels(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.store.OpenAISettings()
	if err != nil {
		a.respondAppErr(w, err)
		return
	}

	modelList, err := a.ai.ListModels(r.Context(), cfg.APIKey)
	if err != nil {
		a.respondAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, modelList)
}

// renderReportText flattens a report into plain text for review.
func renderReportText(rep *models.Report, seq []blocks.Block) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\nClient: %s\nSubject: %s\n\n", rep.Title, rep.ClientName, rep.Subject)

	for _, b := range seq {
		switch c := b.Content.(type) {
		case blocks.HeadingContent:
			fmt.Fprintf(&sb, "# %s\n", c.Text)
		case blocks.TextContent:
			sb.WriteString(c.Text + "\n")
		case blocks.NotesContent:
			if c.Title != "" {
				fmt.Fprintf(&sb, "%s:\n", c.Title)
			}
			sb.WriteString(c.Text + "\n")
		case blocks.ChecklistContent:
			for _, item := range c.Items {
				mark := " "
				if item.Checked {
					mark = "x"
				}
				fmt.Fprintf(&sb, "[%s] %s\n", mark, item.Text)
			}
		case blocks.DataTableContent:
			if c.Title != "" {
				fmt.Fprintf(&sb, "%s:\n", c.Title)
			}
			for _, row := range c.Rows {
				fmt.Fprintf(&sb, "%s: %s\n", row.Label, row.Value)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
