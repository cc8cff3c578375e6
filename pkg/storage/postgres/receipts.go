package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/kidega/apartments/pkg/model"
	"github.com/kidega/apartments/pkg/storage"
)

const receiptColumns = `id, payment_id, receipt_number, issued_to, unit_id, amount,
	type, method, reference, notes, created_by, issued_at`

// CreateReceipt assigns the next sequential receipt number and inserts
// the row in one transaction. A second receipt for the same payment maps
// to storage.ErrDuplicateReceipt, in which case the drawn sequence value
// is discarded (numbers stay monotonic, gaps are acceptable).
func (s *Store) CreateReceipt(ctx context.Context, r *model.Receipt) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var seq int64
		if err := tx.QueryRowContext(ctx,
			"SELECT nextval('receipt_number_seq')").Scan(&seq); err != nil {
			return fmt.Errorf("failed to draw receipt number: %w", err)
		}
		r.ReceiptNumber = fmt.Sprintf("RCT-%06d", seq)

		err := tx.QueryRowContext(ctx, `
			INSERT INTO receipts (id, payment_id, receipt_number, issued_to, unit_id,
				amount, type, method, reference, notes, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING issued_at`,
			r.ID, r.PaymentID, r.ReceiptNumber, r.IssuedTo, nullString(r.UnitID),
			r.Amount, r.Type, nullString(r.Method), nullString(r.Reference),
			nullString(r.Notes), nullString(r.CreatedBy)).Scan(&r.IssuedAt)
		if err != nil {
			if mapped := mapUniqueViolation(err); mapped != err {
				return mapped
			}
			return fmt.Errorf("failed to create receipt: %w", err)
		}
		return nil
	})
}

// GetReceipt fetches a receipt by id.
func (s *Store) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+receiptColumns+" FROM receipts WHERE id = $1", id)
	return scanReceipt(row)
}

// ListReceipts returns all receipts, newest first.
func (s *Store) ListReceipts(ctx context.Context) ([]*model.Receipt, error) {
	return s.queryReceipts(ctx,
		"SELECT "+receiptColumns+" FROM receipts ORDER BY issued_at DESC")
}

// ListReceiptsByTenant returns receipts issued to one tenant.
func (s *Store) ListReceiptsByTenant(ctx context.Context, tenantID string) ([]*model.Receipt, error) {
	return s.queryReceipts(ctx,
		"SELECT "+receiptColumns+" FROM receipts WHERE issued_to = $1 ORDER BY issued_at DESC",
		tenantID)
}

// ListReceiptsByUnits returns receipts for payments on any of the units.
func (s *Store) ListReceiptsByUnits(ctx context.Context, unitIDs []string) ([]*model.Receipt, error) {
	if len(unitIDs) == 0 {
		return []*model.Receipt{}, nil
	}
	return s.queryReceipts(ctx,
		"SELECT "+receiptColumns+" FROM receipts WHERE unit_id = ANY($1) ORDER BY issued_at DESC",
		pq.Array(unitIDs))
}

func (s *Store) queryReceipts(ctx context.Context, query string, args ...interface{}) ([]*model.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	receipts := []*model.Receipt{}
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}
	return receipts, nil
}

func scanReceipt(row rowScanner) (*model.Receipt, error) {
	var r model.Receipt
	var unitID, method, reference, notes, createdBy sql.NullString
	err := row.Scan(&r.ID, &r.PaymentID, &r.ReceiptNumber, &r.IssuedTo,
		&unitID, &r.Amount, &r.Type, &method, &reference, &notes,
		&createdBy, &r.IssuedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan receipt: %w", err)
	}
	r.UnitID = unitID.String
	r.Method = method.String
	r.Reference = reference.String
	r.Notes = notes.String
	r.CreatedBy = createdBy.String
	return &r, nil
}
