package store

import (
	"database/sql"
	"errors"

	"apec/internal/apperr"
	"apec/internal/models"

	"github.com/google/uuid"
)

const reportColumns = `id, created_by, template_id, title, status, client_name, client_email,
	inspection_date, job_number, location, subject, order_number, technician, report_number,
	submitted_for_approval, approved_by, approved_at, created_at, updated_at`

// CreateReport inserts a new draft report.
func (s *Store) CreateReport(r *models.Report) error {
	r.ID = uuid.New().String()
	if r.Status == "" {
		r.Status = models.ReportStatusDraft
	}
	r.CreatedAt = now()
	r.UpdatedAt = now()

	_, err := s.db.Exec(
		`INSERT INTO reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedBy, r.TemplateID, r.Title, r.Status, r.ClientName, r.ClientEmail,
		r.InspectionDate, r.JobNumber, r.Location, r.Subject, r.OrderNumber, r.Technician,
		r.ReportNumber, r.SubmittedForApproval, r.ApprovedBy, r.ApprovedAt, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *Store) GetReport(id string) (*models.Report, error) {
	row := s.db.QueryRow(`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("report not found")
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListReports returns reports newest-first, optionally filtered by
// status.
func (s *Store) ListReports(status string) ([]models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + reportColumns + ` FROM reports WHERE status = ? ORDER BY created_at DESC`
		args = append(args, status)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListApprovedReports returns completed reports ordered by approval time
// descending, for the company-reports view (grouping by client happens
// in the handler).
func (s *Store) ListApprovedReports() ([]models.Report, error) {
	rows, err := s.db.Query(`SELECT ` + reportColumns + ` FROM reports
		WHERE status = 'completed' ORDER BY approved_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateReport persists metadata and workflow fields.
func (s *Store) UpdateReport(r *models.Report) error {
	r.UpdatedAt = now()
	res, err := s.db.Exec(
		`UPDATE reports SET title = ?, status = ?, client_name = ?, client_email = ?,
		inspection_date = ?, job_number = ?, location = ?, subject = ?, order_number = ?,
		technician = ?, report_number = ?, submitted_for_approval = ?, approved_by = ?,
		approved_at = ?, updated_at = ? WHERE id = ?`,
		r.Title, r.Status, r.ClientName, r.ClientEmail, r.InspectionDate, r.JobNumber,
		r.Location, r.Subject, r.OrderNumber, r.Technician, r.ReportNumber,
		r.SubmittedForApproval, r.ApprovedBy, r.ApprovedAt, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "report not found")
}

func (s *Store) DeleteReport(id string) error {
	res, err := s.db.Exec(`DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, "report not found"); err != nil {
		return err
	}
	_, err = s.db.Exec(`DELETE FROM report_blocks WHERE report_id = ?`, id)
	return err
}

// CloneReport deep-copies a report: same metadata minus identity fields
// (report number and dates cleared, status back to draft, approval state
// reset), fresh block ids with identical type/content/order. The block
// copy runs in one transaction after the new row is created.
func (s *Store) CloneReport(sourceID, actorID string) (*models.Report, error) {
	src, err := s.GetReport(sourceID)
	if err != nil {
		return nil, err
	}

	clone := &models.Report{
		CreatedBy:    actorID,
		TemplateID:   src.TemplateID,
		Title:        src.Title,
		Status:       models.ReportStatusDraft,
		ClientName:   src.ClientName,
		ClientEmail:  src.ClientEmail,
		JobNumber:    src.JobNumber,
		Location:     src.Location,
		Subject:      src.Subject,
		OrderNumber:  src.OrderNumber,
		Technician:   src.Technician,
		// report_number and inspection_date are identity-like: cleared.
	}
	if err := s.CreateReport(clone); err != nil {
		return nil, err
	}

	srcBlocks, err := s.ListBlocks(ReportBlocks, sourceID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := copyBlocksTx(tx, srcBlocks, ReportBlocks, clone.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return clone, nil
}

// CreateReportFromTemplate seeds a new draft report from a template.
// The template is read-only; its blocks are deep-copied. Metadata the
// template doesn't carry defaults to empty.
func (s *Store) CreateReportFromTemplate(templateID, actorID string) (*models.Report, error) {
	tpl, err := s.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}

	r := &models.Report{
		CreatedBy:  actorID,
		TemplateID: &tpl.ID,
		Title:      tpl.Title,
		Status:     models.ReportStatusDraft,
	}
	if err := s.CreateReport(r); err != nil {
		return nil, err
	}

	tplBlocks, err := s.ListBlocks(TemplateBlocks, templateID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := copyBlocksTx(tx, tplBlocks, ReportBlocks, r.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r, nil
}

// CountReportBlocks returns the number of blocks owned by a report.
func (s *Store) CountReportBlocks(reportID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM report_blocks WHERE report_id = ?`, reportID).Scan(&n)
	return n, err
}

func scanReport(r rowScanner) (*models.Report, error) {
	var rep models.Report
	var templateID, approvedBy sql.NullString
	var approvedAt sql.NullTime
	err := r.Scan(&rep.ID, &rep.CreatedBy, &templateID, &rep.Title, &rep.Status,
		&rep.ClientName, &rep.ClientEmail, &rep.InspectionDate, &rep.JobNumber,
		&rep.Location, &rep.Subject, &rep.OrderNumber, &rep.Technician, &rep.ReportNumber,
		&rep.SubmittedForApproval, &approvedBy, &approvedAt, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if templateID.Valid {
		rep.TemplateID = &templateID.String
	}
	if approvedBy.Valid {
		rep.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		rep.ApprovedAt = &approvedAt.Time
	}
	return &rep, nil
}
