package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"apec/internal/ai"
	"apec/internal/apperr"
	"apec/internal/auth"
	"apec/internal/models"
	"apec/internal/storage"
	"apec/internal/store"
	"apec/internal/workflow"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const CookieMaxAge = 30 * 24 * 60 * 60 // 30 days in seconds

const cookieName = "apec_auth"

type contextKey string

const authContextKey contextKey = "auth"

// authState is what AuthMiddleware hangs on the request context: the
// user plus the role loaded on this request. The role is read fresh on
// every request so a deactivation or promotion takes effect immediately.
type authState struct {
	User *models.User
	Role workflow.Role
}

type API struct {
	store   *store.Store
	storage *storage.Storage // nil when S3 is not configured
	ai      *ai.Client
	log     zerolog.Logger
}

func New(s *store.Store, st *storage.Storage, aiClient *ai.Client, log zerolog.Logger) *API {
	return &API{store: s, storage: st, ai: aiClient, log: log}
}

func getAuth(r *http.Request) *authState {
	a, ok := r.Context().Value(authContextKey).(*authState)
	if !ok {
		return nil
	}
	return a
}

func requestToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// AuthMiddleware checks for a valid session token in the Authorization
// header or cookie, then loads the user and its current role into the
// request context.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		session, err := a.store.GetSessionByToken(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid session")
			return
		}
		if session.ExpiresAt.Before(time.Now()) {
			a.store.DeleteSession(token)
			respondError(w, http.StatusUnauthorized, "Session expired")
			return
		}

		user, err := a.store.GetUser(session.UserID)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "User not found")
			return
		}

		role, err := a.store.GetRole(user.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to load role")
			return
		}

		ctx := context.WithValue(r.Context(), authContextKey, &authState{User: user, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActiveMiddleware rejects users with no active role. Only /auth/me
// stays outside it so the client can show the inactive-account screen.
func (a *API) ActiveMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := getAuth(r)
		if auth == nil || auth.Role == workflow.RoleInactive {
			respondError(w, http.StatusForbidden, "Account is inactive")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminMiddleware requires an admin or super_admin role.
func (a *API) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := getAuth(r)
		if auth == nil || !auth.Role.IsAdmin() {
			respondError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SuperAdminMiddleware gates platform settings.
func (a *API) SuperAdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := getAuth(r)
		if auth == nil || auth.Role != workflow.RoleSuperAdmin {
			respondError(w, http.StatusForbidden, "Super admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) Routes() chi.Router {
	r := chi.NewRouter()

	// Public auth endpoints
	r.Post("/auth/register", a.register)
	r.Post("/auth/login", a.login)
	r.Post("/auth/logout", a.logout)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(a.AuthMiddleware)

		// Reachable while inactive so the client can show the
		// inactive-account screen.
		r.Get("/auth/me", a.getMe)

		r.Group(a.activeRoutes)
	})

	return r
}

// activeRoutes holds everything behind an active role: inactive users
// authenticate but see nothing.
func (a *API) activeRoutes(r chi.Router) {
	r.Use(a.ActiveMiddleware)

	// Reports
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", a.listReports)
		r.Post("/", a.createReport)
		r.Get("/approved", a.listApprovedReports)
		r.Post("/from-template/{templateId}", a.createReportFromTemplate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getReport)
			r.Put("/", a.updateReport)
			r.Delete("/", a.deleteReport)
			r.Put("/save", a.saveReport)
			r.Post("/clone", a.cloneReport)
			r.Post("/submit", a.submitReport)
			r.Post("/approve", a.approveReport)
			r.Post("/reject", a.rejectReport)
			r.Route("/blocks", a.reportBlockRoutes)
		})
	})

	// Invoices
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", a.listInvoices)
		r.Post("/", a.createInvoice)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getInvoice)
			r.Put("/", a.updateInvoice)
			r.Delete("/", a.deleteInvoice)
			r.Post("/clone", a.cloneInvoice)
			r.Post("/submit", a.submitInvoice)
			r.Route("/blocks", a.invoiceBlockRoutes)
		})
	})

	// Report templates
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", a.listTemplates)
		r.Post("/", a.createTemplate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getTemplate)
			r.Put("/", a.updateTemplate)
			r.Delete("/", a.deleteTemplate)
			r.Route("/blocks", a.templateBlockRoutes)
		})
	})

	// Invoice template (singleton block collection)
	r.Route("/invoice-template/blocks", a.invoiceTemplateBlockRoutes)

	// Photo uploads
	r.Post("/upload/photo", a.uploadPhoto)

	// AI
	r.Post("/ai/generate-report", a.aiGenerateReport)
	r.Post("/ai/review-report", a.aiReviewReport)
	r.Get("/ai/models", a.aiListModels)

	// Report types are readable by all staff; mutation is admin-only.
	r.Get("/report-types", a.listReportTypes)

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(a.AdminMiddleware)
		r.Get("/admin/users", a.listUsers)
		r.Put("/admin/users/{id}/role", a.setUserRole)
		r.Post("/report-types", a.createReportType)
		r.Delete("/report-types/{id}", a.deleteReportType)
		r.Get("/knowledge-base", a.listKBDocuments)
		r.Post("/knowledge-base", a.uploadKBDocument)
		r.Delete("/knowledge-base/{id}", a.deleteKBDocument)
	})

	// Platform settings
	r.Group(func(r chi.Router) {
		r.Use(a.SuperAdminMiddleware)
		r.Get("/settings/{key}", a.getSetting)
		r.Put("/settings/{key}", a.setSetting)
	})
}

// Auth handlers

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if len(req.Password) < 8 {
		respondError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	if _, err := a.store.GetUserByEmail(req.Email); err == nil {
		respondError(w, http.StatusConflict, "Email already registered")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	userCount, err := a.store.CountUsers()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Database error")
		return
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
	}
	if err := a.store.CreateUser(user); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	// The first account becomes super_admin; everyone else starts
	// inactive until an admin assigns a role.
	if userCount == 0 {
		if err := a.store.SetRole(user.ID, workflow.RoleSuperAdmin); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to assign role")
			return
		}
	}

	a.startSession(w, r, user, http.StatusCreated)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	user, err := a.store.GetUserByEmail(req.Email)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	a.startSession(w, r, user, http.StatusOK)
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request, user *models.User, status int) {
	token, err := auth.NewToken()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	session := &models.Session{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(auth.SessionDuration),
	}
	if err := a.store.CreateSession(session); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	role, err := a.store.GetRole(user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load role")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	})

	respondJSON(w, status, map[string]interface{}{
		"user":      user,
		"role":      role,
		"token":     session.Token,
		"expiresAt": session.ExpiresAt.Format(time.RFC3339),
	})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if token := requestToken(r); token != "" {
		a.store.DeleteSession(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) getMe(w http.ResponseWriter, r *http.Request) {
	auth := getAuth(r)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user": auth.User,
		"role": auth.Role,
	})
}

// JSON helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondAppErr maps a classified error to its status and user message.
func (a *API) respondAppErr(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		a.log.Error().Err(err).Msg("request failed")
	}
	respondError(w, status, apperr.UserMessage(err))
}
