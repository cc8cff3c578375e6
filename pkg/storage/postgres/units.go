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

const unitColumns = `id, building_id, unit_number, floor, rooms, bathrooms, size,
	rent, deposit, amenities, status, is_occupied, tenant_ids, notes,
	available_from, created_by, created_at, updated_at`

// CreateUnit inserts a unit and increments the owning building's
// total_units counter in the same transaction.
func (s *Store) CreateUnit(ctx context.Context, u *model.Unit) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO units (id, building_id, unit_number, floor, rooms, bathrooms,
				size, rent, deposit, amenities, status, is_occupied, tenant_ids,
				notes, available_from, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			u.ID, u.BuildingID, u.UnitNumber, u.Floor, u.Rooms, u.Bathrooms,
			u.Size, u.Rent, u.Deposit, pq.Array(u.Amenities), u.Status,
			u.IsOccupied, pq.Array(u.TenantIDs), nullString(u.Notes),
			nullTime(u.AvailableFrom), nullString(u.CreatedBy))
		if err != nil {
			if mapped := mapUniqueViolation(err); mapped != err {
				return mapped
			}
			return fmt.Errorf("failed to create unit: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			"UPDATE buildings SET total_units = total_units + 1, updated_at = NOW() WHERE id = $1",
			u.BuildingID)
		if err != nil {
			return fmt.Errorf("failed to increment building unit count: %w", err)
		}
		return requireRowAffected(result)
	})
}

// GetUnit fetches a unit by id.
func (s *Store) GetUnit(ctx context.Context, id string) (*model.Unit, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+unitColumns+" FROM units WHERE id = $1", id)
	return scanUnit(row)
}

// ListUnits returns all units, newest first.
func (s *Store) ListUnits(ctx context.Context) ([]*model.Unit, error) {
	return s.queryUnits(ctx,
		"SELECT "+unitColumns+" FROM units ORDER BY created_at DESC")
}

// ListUnitsByBuilding returns the units of one building.
func (s *Store) ListUnitsByBuilding(ctx context.Context, buildingID string) ([]*model.Unit, error) {
	return s.queryUnits(ctx,
		"SELECT "+unitColumns+" FROM units WHERE building_id = $1 ORDER BY unit_number",
		buildingID)
}

// GetUnitByTenant returns the unit the tenant is assigned to.
func (s *Store) GetUnitByTenant(ctx context.Context, tenantID string) (*model.Unit, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+unitColumns+" FROM units WHERE $1 = ANY(tenant_ids)", tenantID)
	return scanUnit(row)
}

// UpdateUnit rewrites the mutable columns of a unit row.
func (s *Store) UpdateUnit(ctx context.Context, u *model.Unit) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE units SET building_id = $2, unit_number = $3, floor = $4, rooms = $5,
			bathrooms = $6, size = $7, rent = $8, deposit = $9, amenities = $10,
			status = $11, is_occupied = $12, tenant_ids = $13, notes = $14,
			available_from = $15, updated_at = NOW()
		WHERE id = $1`,
		u.ID, u.BuildingID, u.UnitNumber, u.Floor, u.Rooms, u.Bathrooms,
		u.Size, u.Rent, u.Deposit, pq.Array(u.Amenities), u.Status,
		u.IsOccupied, pq.Array(u.TenantIDs), nullString(u.Notes),
		nullTime(u.AvailableFrom))
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to update unit: %w", err)
	}
	return requireRowAffected(result)
}

// DeleteUnit removes a unit and decrements the owning building's
// total_units counter in the same transaction.
func (s *Store) DeleteUnit(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var buildingID string
		err := tx.QueryRowContext(ctx,
			"DELETE FROM units WHERE id = $1 RETURNING building_id", id).Scan(&buildingID)
		if err == sql.ErrNoRows {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to delete unit: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE buildings SET total_units = total_units - 1, updated_at = NOW() WHERE id = $1",
			buildingID); err != nil {
			return fmt.Errorf("failed to decrement building unit count: %w", err)
		}
		return nil
	})
}

// AssignTenant adds the tenant to the unit, marks it occupied and writes
// the tenant's lease details in one transaction. The unit row is locked
// so concurrent assignments cannot both observe it vacant. Re-assigning
// a tenant already on the unit only refreshes the lease dates.
func (s *Store) AssignTenant(ctx context.Context, unitID, tenantID string, leaseStart, leaseEnd *time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var tenantIDs []string
		var isOccupied bool
		var buildingID string
		err := tx.QueryRowContext(ctx,
			"SELECT tenant_ids, is_occupied, building_id FROM units WHERE id = $1 FOR UPDATE",
			unitID).Scan(pq.Array(&tenantIDs), &isOccupied, &buildingID)
		if err == sql.ErrNoRows {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock unit: %w", err)
		}

		already := false
		for _, id := range tenantIDs {
			if id == tenantID {
				already = true
				break
			}
		}
		if isOccupied && !already {
			return storage.ErrUnitOccupied
		}
		if !already {
			tenantIDs = append(tenantIDs, tenantID)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE units SET tenant_ids = $2, status = 'occupied', is_occupied = TRUE,
				updated_at = NOW()
			WHERE id = $1`,
			unitID, pq.Array(tenantIDs)); err != nil {
			return fmt.Errorf("failed to update unit occupancy: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE users SET unit_id = $2, lease_building_id = $3, lease_unit_id = $2,
				lease_start = $4, lease_end = $5, updated_at = NOW()
			WHERE id = $1 AND role = 'tenant'`,
			tenantID, unitID, buildingID, nullTime(leaseStart), nullTime(leaseEnd))
		if err != nil {
			return fmt.Errorf("failed to update tenant lease: %w", err)
		}
		return requireRowAffected(result)
	})
}

func (s *Store) queryUnits(ctx context.Context, query string, args ...interface{}) ([]*model.Unit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	units := []*model.Unit{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate units: %w", err)
	}
	return units, nil
}

func scanUnit(row rowScanner) (*model.Unit, error) {
	var u model.Unit
	var floor, rooms, bathrooms sql.NullInt64
	var size, rent, deposit sql.NullFloat64
	var notes, createdBy sql.NullString
	var availableFrom sql.NullTime

	err := row.Scan(&u.ID, &u.BuildingID, &u.UnitNumber, &floor, &rooms,
		&bathrooms, &size, &rent, &deposit, pq.Array(&u.Amenities), &u.Status,
		&u.IsOccupied, pq.Array(&u.TenantIDs), &notes, &availableFrom,
		&createdBy, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan unit: %w", err)
	}

	u.Floor = int(floor.Int64)
	u.Rooms = int(rooms.Int64)
	u.Bathrooms = int(bathrooms.Int64)
	u.Size = size.Float64
	u.Rent = rent.Float64
	u.Deposit = deposit.Float64
	u.Notes = notes.String
	u.CreatedBy = createdBy.String
	u.AvailableFrom = timePtr(availableFrom)
	return &u, nil
}
