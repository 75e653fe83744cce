package store

import (
	"database/sql"
	"errors"

	"apec/internal/apperr"
	"apec/internal/models"

	"github.com/google/uuid"
)

const templateColumns = `id, created_by, title, description, category, status, created_at, updated_at`

func (s *Store) CreateTemplate(t *models.Template) error {
	t.ID = uuid.New().String()
	if t.Status == "" {
		t.Status = models.TemplateStatusDraft
	}
	t.CreatedAt = now()
	t.UpdatedAt = now()

	_, err := s.db.Exec(
		`INSERT INTO report_templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CreatedBy, t.Title, t.Description, t.Category, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *Store) GetTemplate(id string) (*models.Template, error) {
	row := s.db.QueryRow(`SELECT `+templateColumns+` FROM report_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("template not found")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTemplates() ([]models.Template, error) {
	rows, err := s.db.Query(`SELECT ` + templateColumns + ` FROM report_templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTemplate(t *models.Template) error {
	t.UpdatedAt = now()
	res, err := s.db.Exec(
		`UPDATE report_templates SET title = ?, description = ?, category = ?, status = ?, updated_at = ? WHERE id = ?`,
		t.Title, t.Description, t.Category, t.Status, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "template not found")
}

func (s *Store) DeleteTemplate(id string) error {
	res, err := s.db.Exec(`DELETE FROM report_templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, "template not found"); err != nil {
		return err
	}
	_, err = s.db.Exec(`DELETE FROM template_blocks WHERE template_id = ?`, id)
	return err
}

// CountTemplates reports how many templates exist, used to decide
// whether to seed the default one at startup.
func (s *Store) CountTemplates() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM report_templates`).Scan(&n)
	return n, err
}

func scanTemplate(r rowScanner) (*models.Template, error) {
	var t models.Template
	err := r.Scan(&t.ID, &t.CreatedBy, &t.Title, &t.Description, &t.Category, &t.Status,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
