package store

import (
	"database/sql"
	"errors"

	"apec/internal/apperr"
	"apec/internal/models"

	"github.com/google/uuid"
)

const invoiceColumns = `id, created_by, customer_name, customer_company, customer_email,
	customer_phone, purchase_order, invoice_number, date, status, created_at, updated_at`

// CreateInvoice inserts a new draft invoice seeded with a deep copy of
// the invoice template blocks.
func (s *Store) CreateInvoice(inv *models.Invoice) error {
	inv.ID = uuid.New().String()
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusDraft
	}
	inv.CreatedAt = now()
	inv.UpdatedAt = now()

	_, err := s.db.Exec(
		`INSERT INTO invoices (`+invoiceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.CreatedBy, inv.CustomerName, inv.CustomerCompany, inv.CustomerEmail,
		inv.CustomerPhone, inv.PurchaseOrder, inv.InvoiceNumber, inv.Date, inv.Status,
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return err
	}

	tplBlocks, err := s.ListBlocks(InvoiceTemplateBlocks, "")
	if err != nil {
		return err
	}
	if len(tplBlocks) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := copyBlocksTx(tx, tplBlocks, InvoiceBlocks, inv.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetInvoice(id string) (*models.Invoice, error) {
	row := s.db.QueryRow(`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("invoice not found")
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Store) ListInvoices() ([]models.Invoice, error) {
	rows, err := s.db.Query(`SELECT ` + invoiceColumns + ` FROM invoices ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *Store) UpdateInvoice(inv *models.Invoice) error {
	inv.UpdatedAt = now()
	res, err := s.db.Exec(
		`UPDATE invoices SET customer_name = ?, customer_company = ?, customer_email = ?,
		customer_phone = ?, purchase_order = ?, invoice_number = ?, date = ?, status = ?,
		updated_at = ? WHERE id = ?`,
		inv.CustomerName, inv.CustomerCompany, inv.CustomerEmail, inv.CustomerPhone,
		inv.PurchaseOrder, inv.InvoiceNumber, inv.Date, inv.Status, inv.UpdatedAt, inv.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "invoice not found")
}

func (s *Store) DeleteInvoice(id string) error {
	res, err := s.db.Exec(`DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, "invoice not found"); err != nil {
		return err
	}
	_, err = s.db.Exec(`DELETE FROM invoice_blocks WHERE invoice_id = ?`, id)
	return err
}

// CloneInvoice copies an invoice's customer metadata and blocks into a
// fresh draft. Invoice number and date are identity fields and cleared.
func (s *Store) CloneInvoice(sourceID, actorID string) (*models.Invoice, error) {
	src, err := s.GetInvoice(sourceID)
	if err != nil {
		return nil, err
	}

	clone := &models.Invoice{
		ID:              uuid.New().String(),
		CreatedBy:       actorID,
		CustomerName:    src.CustomerName,
		CustomerCompany: src.CustomerCompany,
		CustomerEmail:   src.CustomerEmail,
		CustomerPhone:   src.CustomerPhone,
		PurchaseOrder:   src.PurchaseOrder,
		Status:          models.InvoiceStatusDraft,
		CreatedAt:       now(),
		UpdatedAt:       now(),
	}

	// Direct insert rather than CreateInvoice: a clone copies its
	// source's blocks, not the invoice template's.
	_, err = s.db.Exec(
		`INSERT INTO invoices (`+invoiceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		clone.ID, clone.CreatedBy, clone.CustomerName, clone.CustomerCompany, clone.CustomerEmail,
		clone.CustomerPhone, clone.PurchaseOrder, clone.InvoiceNumber, clone.Date, clone.Status,
		clone.CreatedAt, clone.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	srcBlocks, err := s.ListBlocks(InvoiceBlocks, sourceID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := copyBlocksTx(tx, srcBlocks, InvoiceBlocks, clone.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return clone, nil
}

func scanInvoice(r rowScanner) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.Scan(&inv.ID, &inv.CreatedBy, &inv.CustomerName, &inv.CustomerCompany,
		&inv.CustomerEmail, &inv.CustomerPhone, &inv.PurchaseOrder, &inv.InvoiceNumber,
		&inv.Date, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
