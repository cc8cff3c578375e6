package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/kidega/apartments/pkg/model"
	"github.com/kidega/apartments/pkg/storage"
)

const paymentColumns = `id, tenant_id, unit_id, type, status, amount, method,
	reference, recorded_by, created_at, updated_at`

// CreatePayment inserts a payment row.
func (s *Store) CreatePayment(ctx context.Context, p *model.Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, tenant_id, unit_id, type, status, amount, method, reference, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.TenantID, p.UnitID, p.Type, p.Status, p.Amount,
		nullString(p.Method), nullString(p.Reference), nullString(p.RecordedBy))
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment fetches a payment by id.
func (s *Store) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = $1", id)
	return scanPayment(row)
}

// ListPayments returns all payments, newest first.
func (s *Store) ListPayments(ctx context.Context) ([]*model.Payment, error) {
	return s.queryPayments(ctx,
		"SELECT "+paymentColumns+" FROM payments ORDER BY created_at DESC")
}

// ListPaymentsByTenant returns the payments of one tenant.
func (s *Store) ListPaymentsByTenant(ctx context.Context, tenantID string) ([]*model.Payment, error) {
	return s.queryPayments(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE tenant_id = $1 ORDER BY created_at DESC",
		tenantID)
}

// ListPaymentsByUnits returns payments recorded against any of the units.
func (s *Store) ListPaymentsByUnits(ctx context.Context, unitIDs []string) ([]*model.Payment, error) {
	if len(unitIDs) == 0 {
		return []*model.Payment{}, nil
	}
	return s.queryPayments(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE unit_id = ANY($1) ORDER BY created_at DESC",
		pq.Array(unitIDs))
}

// UpdatePayment rewrites the mutable columns of a payment row.
func (s *Store) UpdatePayment(ctx context.Context, p *model.Payment) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payments SET type = $2, status = $3, amount = $4, method = $5,
			reference = $6, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Type, p.Status, p.Amount, nullString(p.Method), nullString(p.Reference))
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return requireRowAffected(result)
}

func (s *Store) queryPayments(ctx context.Context, query string, args ...interface{}) ([]*model.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	payments := []*model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	var p model.Payment
	var method, reference, recordedBy sql.NullString
	err := row.Scan(&p.ID, &p.TenantID, &p.UnitID, &p.Type, &p.Status,
		&p.Amount, &method, &reference, &recordedBy, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	p.Method = method.String
	p.Reference = reference.String
	p.RecordedBy = recordedBy.String
	return &p, nil
}
