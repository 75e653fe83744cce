package main

import (
	"net/http"
	"os"

	"apec/internal/ai"
	"apec/internal/api"
	"apec/internal/auth"
	"apec/internal/models"
	"apec/internal/storage"
	"apec/internal/store"
	"apec/internal/workflow"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Database config from environment
	// DB_BACKEND: "sqlite" or "turso" (auto-detects if not set)
	// For SQLite: SQLITE_PATH (defaults to "apec.db")
	// For Turso: TURSO_DATABASE_URL, TURSO_AUTH_TOKEN
	dbConfig := store.ConfigFromEnv()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	s, err := store.New(dbConfig, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer s.Close()

	ownerID := bootstrapOwner(s, log)

	if err := s.SeedDefaultTemplate(ownerID); err != nil {
		log.Fatal().Err(err).Msg("failed to seed default template")
	}
	if err := s.SeedInvoiceTemplate(); err != nil {
		log.Fatal().Err(err).Msg("failed to seed invoice template")
	}

	// S3 is optional: without it photo and document uploads return 503
	// but everything else works.
	st, err := storage.New()
	if err != nil {
		log.Warn().Err(err).Msg("file storage not configured, uploads disabled")
		st = nil
	}

	aiClient := ai.New(os.Getenv("OPENAI_BASE_URL"))

	a := api.New(s, st, aiClient, log)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*", "https://*.fly.dev"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Mount("/api", a.Routes())

	log.Info().Str("port", port).Msg("apec starting")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// bootstrapOwner creates the first account from OWNER_EMAIL and
// OWNER_PASSWORD when the user table is empty, as super_admin. Returns
// the id of some existing user for seeding, or "" when none exist yet.
func bootstrapOwner(s *store.Store, log zerolog.Logger) string {
	ownerEmail := os.Getenv("OWNER_EMAIL")
	ownerPassword := os.Getenv("OWNER_PASSWORD")

	if ownerEmail != "" && ownerPassword != "" {
		userCount, err := s.CountUsers()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to count users")
		}
		if userCount == 0 {
			hash, err := auth.HashPassword(ownerPassword)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to hash owner password")
			}
			owner := &models.User{
				Email:        ownerEmail,
				PasswordHash: hash,
				DisplayName:  "Owner",
			}
			if err := s.CreateUser(owner); err != nil {
				log.Fatal().Err(err).Msg("failed to create owner user")
			}
			if err := s.SetRole(owner.ID, workflow.RoleSuperAdmin); err != nil {
				log.Fatal().Err(err).Msg("failed to assign owner role")
			}
			log.Info().Str("email", ownerEmail).Msg("owner user created")
			return owner.ID
		}
	}

	if owner, err := s.GetUserByEmail(ownerEmail); err == nil {
		return owner.ID
	}
	return ""
}
