package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/kidega/apartments/pkg/model"
	"github.com/kidega/apartments/pkg/storage"
)

const buildingColumns = `id, name, address, amenities, manager_id, total_units,
	images, notes, created_at, updated_at`

// CreateBuilding inserts a building. Assigning a manager that already
// runs another building maps to storage.ErrDuplicateManager.
func (s *Store) CreateBuilding(ctx context.Context, b *model.Building) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buildings (id, name, address, amenities, manager_id, total_units, images, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.Name, b.Address, pq.Array(b.Amenities), nullString(b.ManagerID),
		b.TotalUnits, pq.Array(b.Images), nullString(b.Notes))
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create building: %w", err)
	}
	return nil
}

// GetBuilding fetches a building by id.
func (s *Store) GetBuilding(ctx context.Context, id string) (*model.Building, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+buildingColumns+" FROM buildings WHERE id = $1", id)
	return scanBuilding(row)
}

// GetBuildingByManager returns the building assigned to the manager.
func (s *Store) GetBuildingByManager(ctx context.Context, managerID string) (*model.Building, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+buildingColumns+" FROM buildings WHERE manager_id = $1", managerID)
	return scanBuilding(row)
}

// ListBuildings returns all buildings, newest first.
func (s *Store) ListBuildings(ctx context.Context) ([]*model.Building, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+buildingColumns+" FROM buildings ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list buildings: %w", err)
	}
	defer rows.Close()

	buildings := []*model.Building{}
	for rows.Next() {
		b, err := scanBuilding(rows)
		if err != nil {
			return nil, err
		}
		buildings = append(buildings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate buildings: %w", err)
	}
	return buildings, nil
}

// UpdateBuilding rewrites a building row. TotalUnits is intentionally
// excluded: only unit create/delete may move the counter.
func (s *Store) UpdateBuilding(ctx context.Context, b *model.Building) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE buildings SET name = $2, address = $3, amenities = $4,
			manager_id = $5, images = $6, notes = $7, updated_at = NOW()
		WHERE id = $1`,
		b.ID, b.Name, b.Address, pq.Array(b.Amenities), nullString(b.ManagerID),
		pq.Array(b.Images), nullString(b.Notes))
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to update building: %w", err)
	}
	return requireRowAffected(result)
}

// DeleteBuilding removes a building; its units cascade.
func (s *Store) DeleteBuilding(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM buildings WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete building: %w", err)
	}
	return requireRowAffected(result)
}

func scanBuilding(row rowScanner) (*model.Building, error) {
	var b model.Building
	var managerID, notes sql.NullString
	err := row.Scan(&b.ID, &b.Name, &b.Address, pq.Array(&b.Amenities),
		&managerID, &b.TotalUnits, pq.Array(&b.Images), &notes,
		&b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan building: %w", err)
	}
	b.ManagerID = managerID.String
	b.Notes = notes.String
	return &b, nil
}
