package store

import (
	"database/sql"
	"errors"
	"fmt"

	"apec/internal/apperr"
	"apec/internal/blocks"

	"github.com/google/uuid"
)

// Collection names one block table. Reports, invoices and templates each
// own an independent collection with identical operation semantics; the
// invoice template is a singleton collection with no owner column.
type Collection struct {
	Table       string
	OwnerColumn string
	OwnerTable  string
}

var (
	ReportBlocks          = Collection{Table: "report_blocks", OwnerColumn: "report_id", OwnerTable: "reports"}
	InvoiceBlocks         = Collection{Table: "invoice_blocks", OwnerColumn: "invoice_id", OwnerTable: "invoices"}
	TemplateBlocks        = Collection{Table: "template_blocks", OwnerColumn: "template_id", OwnerTable: "report_templates"}
	InvoiceTemplateBlocks = Collection{Table: "invoice_template_blocks"}
)

func (c Collection) singleton() bool { return c.OwnerColumn == "" }

// ListBlocks returns the owner's blocks in display order. Ties on
// order_index break on id so the order is total and deterministic.
func (s *Store) ListBlocks(c Collection, ownerID string) ([]blocks.Block, error) {
	var rows *sql.Rows
	var err error
	if c.singleton() {
		rows, err = s.db.Query(fmt.Sprintf(
			`SELECT id, '', type, content, order_index, created_at, updated_at
			FROM %s ORDER BY order_index, id`, c.Table))
	} else {
		rows, err = s.db.Query(fmt.Sprintf(
			`SELECT id, %s, type, content, order_index, created_at, updated_at
			FROM %s WHERE %s = ? ORDER BY order_index, id`, c.OwnerColumn, c.Table, c.OwnerColumn), ownerID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []blocks.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBlock returns a single block by id.
func (s *Store) GetBlock(c Collection, blockID string) (*blocks.Block, error) {
	query := fmt.Sprintf(
		`SELECT id, '', type, content, order_index, created_at, updated_at FROM %s WHERE id = ?`, c.Table)
	if !c.singleton() {
		query = fmt.Sprintf(
			`SELECT id, %s, type, content, order_index, created_at, updated_at FROM %s WHERE id = ?`,
			c.OwnerColumn, c.Table)
	}

	row := s.db.QueryRow(query, blockID)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("block not found")
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBlock inserts a new block at orderIndex. The owner must exist
// and the index must not be negative.
func (s *Store) CreateBlock(c Collection, ownerID string, t blocks.Type, content blocks.Content, orderIndex int) (*blocks.Block, error) {
	if orderIndex < 0 {
		return nil, apperr.Validation("order index cannot be negative")
	}
	if !c.singleton() {
		if err := s.ownerExists(c, ownerID); err != nil {
			return nil, err
		}
	}
	if content == nil {
		content = blocks.DefaultContent(t)
	}

	raw, err := blocks.EncodeContent(content)
	if err != nil {
		return nil, err
	}

	b := blocks.Block{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Type:       t,
		Content:    content,
		OrderIndex: orderIndex,
		CreatedAt:  now(),
		UpdatedAt:  now(),
	}

	if c.singleton() {
		_, err = s.db.Exec(fmt.Sprintf(
			`INSERT INTO %s (id, type, content, order_index, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`, c.Table),
			b.ID, string(b.Type), string(raw), b.OrderIndex, b.CreatedAt, b.UpdatedAt)
	} else {
		_, err = s.db.Exec(fmt.Sprintf(
			`INSERT INTO %s (id, %s, type, content, order_index, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`, c.Table, c.OwnerColumn),
			b.ID, b.OwnerID, string(b.Type), string(raw), b.OrderIndex, b.CreatedAt, b.UpdatedAt)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// AppendBlock creates a block of type t at the end of the owner's
// sequence (max order_index + 1, or 0 when empty) with default content.
func (s *Store) AppendBlock(c Collection, ownerID string, t blocks.Type) (*blocks.Block, error) {
	var next int
	var err error
	if c.singleton() {
		err = s.db.QueryRow(fmt.Sprintf(
			`SELECT COALESCE(MAX(order_index) + 1, 0) FROM %s`, c.Table)).Scan(&next)
	} else {
		err = s.db.QueryRow(fmt.Sprintf(
			`SELECT COALESCE(MAX(order_index) + 1, 0) FROM %s WHERE %s = ?`, c.Table, c.OwnerColumn), ownerID).Scan(&next)
	}
	if err != nil {
		return nil, err
	}
	return s.CreateBlock(c, ownerID, t, blocks.DefaultContent(t), next)
}

// UpdateBlockContent replaces a block's content only. Type and owner are
// immutable after creation.
func (s *Store) UpdateBlockContent(c Collection, blockID string, content blocks.Content) error {
	raw, err := blocks.EncodeContent(content)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(fmt.Sprintf(
		`UPDATE %s SET content = ?, updated_at = ? WHERE id = ?`, c.Table),
		string(raw), now(), blockID)
	if err != nil {
		return err
	}
	return requireAffected(res, "block not found")
}

// UpdateBlockOrder sets order_index only.
func (s *Store) UpdateBlockOrder(c Collection, blockID string, orderIndex int) error {
	if orderIndex < 0 {
		return apperr.Validation("order index cannot be negative")
	}
	res, err := s.db.Exec(fmt.Sprintf(
		`UPDATE %s SET order_index = ?, updated_at = ? WHERE id = ?`, c.Table),
		orderIndex, now(), blockID)
	if err != nil {
		return err
	}
	return requireAffected(res, "block not found")
}

// DeleteBlock removes a block and compacts the remaining siblings to a
// contiguous 0..n-2 numbering so a later append cannot collide.
func (s *Store) DeleteBlock(c Collection, blockID string) error {
	b, err := s.GetBlock(c, blockID)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, c.Table), blockID)
	if err != nil {
		return err
	}
	if err := requireAffected(res, "block not found"); err != nil {
		return err
	}
	return s.CompactBlocks(c, b.OwnerID)
}

// CompactBlocks renumbers an owner's blocks to 0..n-1 preserving their
// relative order. All updates happen in one transaction.
func (s *Store) CompactBlocks(c Collection, ownerID string) error {
	seq, err := s.ListBlocks(c, ownerID)
	if err != nil {
		return err
	}

	changed := blocks.Renumber(seq)
	if len(changed) == 0 {
		return nil
	}

	return s.applyOrder(c, seq, changed)
}

// ReorderBlocks persists a full new ordering given the owner's block ids
// in their desired sequence. The renumbering is written atomically: a
// partial reorder would break the contiguous-index invariant, so all
// rows commit together or not at all.
func (s *Store) ReorderBlocks(c Collection, ownerID string, orderedIDs []string) error {
	seq, err := s.ListBlocks(c, ownerID)
	if err != nil {
		return err
	}
	if len(orderedIDs) != len(seq) {
		return apperr.Validation("reorder must include every block exactly once")
	}

	byID := make(map[string]blocks.Block, len(seq))
	for _, b := range seq {
		byID[b.ID] = b
	}

	next := make([]blocks.Block, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		b, ok := byID[id]
		if !ok {
			return apperr.Validation(fmt.Sprintf("unknown block id %q in reorder", id))
		}
		delete(byID, id)
		next = append(next, b)
	}

	changed := blocks.Renumber(next)
	if len(changed) == 0 {
		return nil
	}
	return s.applyOrder(c, next, changed)
}

// MoveBlock applies a single drag gesture: the block leaves its slot
// and re-enters at position dst, displacing everything between. The
// resulting renumbering commits in one transaction and the new sequence
// is returned.
func (s *Store) MoveBlock(c Collection, ownerID, blockID string, dst int) ([]blocks.Block, error) {
	seq, err := s.ListBlocks(c, ownerID)
	if err != nil {
		return nil, err
	}

	src := blocks.IndexOf(seq, blockID)
	if src == -1 {
		return nil, apperr.NotFound("block not found")
	}
	if dst < 0 || dst >= len(seq) {
		return nil, apperr.Validation("destination out of range")
	}

	next := blocks.Move(seq, src, dst)
	changed := blocks.Renumber(next)
	if len(changed) == 0 {
		return next, nil
	}
	if err := s.applyOrder(c, next, changed); err != nil {
		return nil, err
	}
	return next, nil
}

// applyOrder writes the order_index values of seq for the given ids in
// a single transaction.
func (s *Store) applyOrder(c Collection, seq []blocks.Block, ids []string) error {
	changed := make(map[string]bool, len(ids))
	for _, id := range ids {
		changed[id] = true
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(
		`UPDATE %s SET order_index = ?, updated_at = ? WHERE id = ?`, c.Table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := now()
	for _, b := range seq {
		if !changed[b.ID] {
			continue
		}
		if _, err := stmt.Exec(b.OrderIndex, ts, b.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// copyBlocksTx deep-copies src's blocks into dst under newOwnerID using
// the supplied transaction: fresh ids, identical type, content and
// order_index.
func copyBlocksTx(tx *sql.Tx, src []blocks.Block, dst Collection, newOwnerID string) error {
	if len(src) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT INTO %s (id, %s, type, content, order_index, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dst.Table, dst.OwnerColumn))
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := now()
	for _, b := range src {
		raw, err := blocks.EncodeContent(b.Content)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(uuid.New().String(), newOwnerID, string(b.Type), string(raw), b.OrderIndex, ts, ts); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ownerExists(c Collection, ownerID string) error {
	var one int
	err := s.db.QueryRow(fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, c.OwnerTable), ownerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Validation(fmt.Sprintf("no such document %q", ownerID))
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(r rowScanner) (blocks.Block, error) {
	var b blocks.Block
	var typ, content string
	if err := r.Scan(&b.ID, &b.OwnerID, &typ, &content, &b.OrderIndex, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return b, err
	}
	b.Type = blocks.Type(typ)
	b.Content = blocks.DecodeContent(b.Type, []byte(content))
	return b, nil
}

func requireAffected(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(msg)
	}
	return nil
}
