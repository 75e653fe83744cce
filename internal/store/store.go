package store

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog"
)

type Store struct {
	db      *sql.DB
	backend DataBackend
	log     zerolog.Logger
}

// New creates a new Store from a Config.
// Use ConfigFromEnv() to create config from environment variables.
func New(cfg Config, log zerolog.Logger) (*Store, error) {
	backend, err := NewDataBackend(cfg)
	if err != nil {
		return nil, err
	}

	db, err := backend.Connect()
	if err != nil {
		return nil, err
	}

	log.Info().Str("database", backend.Description()).Msg("connected")

	store := &Store{db: db, backend: backend, log: log}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

// Backend returns the data backend
func (s *Store) Backend() DataBackend {
	return s.backend
}

func (s *Store) Close() error {
	return s.db.Close()
}

func now() time.Time {
	return time.Now().UTC()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS user_roles (
		user_id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		created_by TEXT NOT NULL,
		template_id TEXT,
		title TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		client_name TEXT DEFAULT '',
		client_email TEXT DEFAULT '',
		inspection_date TEXT DEFAULT '',
		job_number TEXT DEFAULT '',
		location TEXT DEFAULT '',
		subject TEXT DEFAULT '',
		order_number TEXT DEFAULT '',
		technician TEXT DEFAULT '',
		report_number TEXT DEFAULT '',
		submitted_for_approval INTEGER NOT NULL DEFAULT 0,
		approved_by TEXT,
		approved_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS report_blocks (
		id TEXT PRIMARY KEY,
		report_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '{}',
		order_index INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (report_id) REFERENCES reports(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		created_by TEXT NOT NULL,
		customer_name TEXT DEFAULT '',
		customer_company TEXT DEFAULT '',
		customer_email TEXT DEFAULT '',
		customer_phone TEXT DEFAULT '',
		purchase_order TEXT DEFAULT '',
		invoice_number TEXT DEFAULT '',
		date TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS invoice_blocks (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '{}',
		order_index INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (invoice_id) REFERENCES invoices(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS report_templates (
		id TEXT PRIMARY KEY,
		created_by TEXT NOT NULL,
		title TEXT DEFAULT '',
		description TEXT DEFAULT '',
		category TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS template_blocks (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '{}',
		order_index INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (template_id) REFERENCES report_templates(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS invoice_template_blocks (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '{}',
		order_index INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS report_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS knowledge_base_documents (
		id TEXT PRIMARY KEY,
		report_type_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_type TEXT DEFAULT '',
		content TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (report_type_id) REFERENCES report_types(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS platform_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT '{}',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
	CREATE INDEX IF NOT EXISTS idx_reports_client ON reports(client_name);
	CREATE INDEX IF NOT EXISTS idx_report_blocks_report ON report_blocks(report_id, order_index);
	CREATE INDEX IF NOT EXISTS idx_invoice_blocks_invoice ON invoice_blocks(invoice_id, order_index);
	CREATE INDEX IF NOT EXISTS idx_template_blocks_template ON template_blocks(template_id, order_index);
	CREATE INDEX IF NOT EXISTS idx_kb_docs_report_type ON knowledge_base_documents(report_type_id);
	`

	_, err := s.db.Exec(schema)
	return err
}
