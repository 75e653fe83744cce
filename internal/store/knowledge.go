package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"apec/internal/apperr"
	"apec/internal/models"

	"github.com/google/uuid"
)

// Report types

func (s *Store) CreateReportType(rt *models.ReportType) error {
	rt.ID = uuid.New().String()
	rt.CreatedAt = now()
	_, err := s.db.Exec(
		`INSERT INTO report_types (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		rt.ID, rt.Name, rt.Description, rt.CreatedAt,
	)
	return err
}

func (s *Store) GetReportType(id string) (*models.ReportType, error) {
	var rt models.ReportType
	err := s.db.QueryRow(
		`SELECT id, name, description, created_at FROM report_types WHERE id = ?`, id,
	).Scan(&rt.ID, &rt.Name, &rt.Description, &rt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("report type not found")
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (s *Store) ListReportTypes() ([]models.ReportType, error) {
	rows, err := s.db.Query(`SELECT id, name, description, created_at FROM report_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ReportType
	for rows.Next() {
		var rt models.ReportType
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.Description, &rt.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (s *Store) DeleteReportType(id string) error {
	res, err := s.db.Exec(`DELETE FROM report_types WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "report type not found")
}

// Knowledge base documents

func (s *Store) CreateKBDocument(d *models.KnowledgeBaseDocument) error {
	d.ID = uuid.New().String()
	d.CreatedAt = now()
	_, err := s.db.Exec(
		`INSERT INTO knowledge_base_documents (id, report_type_id, file_name, file_path, file_type, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ReportTypeID, d.FileName, d.FilePath, d.FileType, d.Content, d.CreatedAt,
	)
	return err
}

func (s *Store) GetKBDocument(id string) (*models.KnowledgeBaseDocument, error) {
	var d models.KnowledgeBaseDocument
	err := s.db.QueryRow(
		`SELECT id, report_type_id, file_name, file_path, file_type, content, created_at
		FROM knowledge_base_documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.ReportTypeID, &d.FileName, &d.FilePath, &d.FileType, &d.Content, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("document not found")
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListKBDocuments returns documents, optionally filtered to one report
// type.
func (s *Store) ListKBDocuments(reportTypeID string) ([]models.KnowledgeBaseDocument, error) {
	query := `SELECT id, report_type_id, file_name, file_path, file_type, content, created_at
		FROM knowledge_base_documents ORDER BY created_at DESC`
	args := []any{}
	if reportTypeID != "" {
		query = `SELECT id, report_type_id, file_name, file_path, file_type, content, created_at
			FROM knowledge_base_documents WHERE report_type_id = ? ORDER BY created_at DESC`
		args = append(args, reportTypeID)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.KnowledgeBaseDocument
	for rows.Next() {
		var d models.KnowledgeBaseDocument
		if err := rows.Scan(&d.ID, &d.ReportTypeID, &d.FileName, &d.FilePath, &d.FileType, &d.Content, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) DeleteKBDocument(id string) error {
	res, err := s.db.Exec(`DELETE FROM knowledge_base_documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "document not found")
}

// Platform settings

func (s *Store) GetSetting(key string) (*models.PlatformSetting, error) {
	var p models.PlatformSetting
	var value string
	err := s.db.QueryRow(
		`SELECT key, value, updated_at FROM platform_settings WHERE key = ?`, key,
	).Scan(&p.Key, &value, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("setting not found")
	}
	if err != nil {
		return nil, err
	}
	p.Value = []byte(value)
	return &p, nil
}

func (s *Store) SetSetting(key string, value []byte) error {
	if !json.Valid(value) {
		return apperr.Validation("setting value must be valid JSON")
	}
	_, err := s.db.Exec(
		`INSERT INTO platform_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), now(),
	)
	return err
}

// OpenAISettings decodes the stored gateway configuration.
func (s *Store) OpenAISettings() (*models.OpenAISettings, error) {
	row, err := s.GetSetting("openai_model")
	if err != nil {
		return nil, err
	}
	var cfg models.OpenAISettings
	if err := json.Unmarshal(row.Value, &cfg); err != nil {
		return nil, apperr.Internal("invalid openai settings", err)
	}
	if cfg.APIKey == "" {
		return nil, apperr.Validation("OpenAI API key not configured")
	}
	return &cfg, nil
}
