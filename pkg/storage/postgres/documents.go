package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kidega/apartments/pkg/model"
	"github.com/kidega/apartments/pkg/storage"
)

const documentColumns = `id, name, description, category, file_path, file_type, size,
	tenant_id, building_id, unit_id, status, version, is_active, expiry_date,
	uploaded_by, created_at, updated_at`

// CreateDocument inserts a document metadata row.
func (s *Store) CreateDocument(ctx context.Context, d *model.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, description, category, file_path, file_type,
			size, tenant_id, building_id, unit_id, status, version, is_active,
			expiry_date, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, d.Name, nullString(d.Description), nullString(d.Category),
		d.FilePath, nullString(d.FileType), d.Size, nullString(d.TenantID),
		nullString(d.BuildingID), nullString(d.UnitID), d.Status, d.Version,
		d.IsActive, nullTime(d.ExpiryDate), nullString(d.UploadedBy))
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = $1", id)
	return scanDocument(row)
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	return s.queryDocuments(ctx,
		"SELECT "+documentColumns+" FROM documents ORDER BY created_at DESC")
}

// ListDocumentsByBuildings returns documents scoped to any of the given
// buildings, plus documents the given user uploaded regardless of scope.
func (s *Store) ListDocumentsByBuildings(ctx context.Context, buildingIDs []string, uploadedBy string) ([]*model.Document, error) {
	return s.queryDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE building_id = ANY($1) OR uploaded_by = $2
		ORDER BY created_at DESC`,
		pq.Array(buildingIDs), uploadedBy)
}

// ListDocumentsByTenant returns documents tagged with the tenant.
func (s *Store) ListDocumentsByTenant(ctx context.Context, tenantID string) ([]*model.Document, error) {
	return s.queryDocuments(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE tenant_id = $1 ORDER BY created_at DESC",
		tenantID)
}

// ListExpiringDocuments returns active documents expiring on or before
// the deadline.
func (s *Store) ListExpiringDocuments(ctx context.Context, deadline time.Time) ([]*model.Document, error) {
	return s.queryDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE is_active AND status = 'active'
			AND expiry_date IS NOT NULL AND expiry_date <= $1
		ORDER BY expiry_date`,
		deadline)
}

// UpdateDocument rewrites the mutable columns of a document row.
func (s *Store) UpdateDocument(ctx context.Context, d *model.Document) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET name = $2, description = $3, category = $4,
			file_path = $5, file_type = $6, size = $7, tenant_id = $8,
			building_id = $9, unit_id = $10, status = $11, version = $12,
			is_active = $13, expiry_date = $14, updated_at = NOW()
		WHERE id = $1`,
		d.ID, d.Name, nullString(d.Description), nullString(d.Category),
		d.FilePath, nullString(d.FileType), d.Size, nullString(d.TenantID),
		nullString(d.BuildingID), nullString(d.UnitID), d.Status, d.Version,
		d.IsActive, nullTime(d.ExpiryDate))
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return requireRowAffected(result)
}

// DeleteDocument removes a document metadata row. The caller is
// responsible for removing the backing file.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return requireRowAffected(result)
}

// ExpireDocuments flips active documents past their expiry date to
// expired, returning the number of rows changed.
func (s *Store) ExpireDocuments(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = 'expired', updated_at = NOW()
		WHERE is_active AND status = 'active'
			AND expiry_date IS NOT NULL AND expiry_date < $1`,
		now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire documents: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...interface{}) ([]*model.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []*model.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var d model.Document
	var description, category, fileType, tenantID, buildingID, unitID, uploadedBy sql.NullString
	var expiryDate sql.NullTime

	err := row.Scan(&d.ID, &d.Name, &description, &category, &d.FilePath,
		&fileType, &d.Size, &tenantID, &buildingID, &unitID, &d.Status,
		&d.Version, &d.IsActive, &expiryDate, &uploadedBy,
		&d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	d.Description = description.String
	d.Category = category.String
	d.FileType = fileType.String
	d.TenantID = tenantID.String
	d.BuildingID = buildingID.String
	d.UnitID = unitID.String
	d.UploadedBy = uploadedBy.String
	d.ExpiryDate = timePtr(expiryDate)
	return &d, nil
}
