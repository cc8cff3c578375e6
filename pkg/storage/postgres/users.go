package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/kidega/apartments/pkg/model"
	"github.com/kidega/apartments/pkg/storage"
)

const userColumns = `id, username, password_hash, role, email, first_name, last_name,
	phone, is_active, created_by, unit_id, lease_building_id, lease_unit_id,
	lease_start, lease_end, created_at, updated_at`

// CreateUser inserts a new user row. A duplicate username maps to
// storage.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	var leaseBuilding, leaseUnit sql.NullString
	var leaseStart, leaseEnd sql.NullTime
	if td := user.TenantDetails; td != nil {
		leaseBuilding = nullString(td.BuildingID)
		leaseUnit = nullString(td.UnitID)
		leaseStart = nullTime(td.LeaseStart)
		leaseEnd = nullTime(td.LeaseEnd)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, email, first_name,
			last_name, phone, is_active, created_by, unit_id,
			lease_building_id, lease_unit_id, lease_start, lease_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		user.ID, user.Username, user.PasswordHash, user.Role,
		nullString(user.Email), nullString(user.FirstName), nullString(user.LastName),
		nullString(user.Phone), user.IsActive, nullString(user.CreatedBy),
		nullString(user.UnitID), leaseBuilding, leaseUnit, leaseStart, leaseEnd)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

// GetUserByUsername fetches a user by its unique username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username)
	return scanUser(row)
}

// ListUsers returns all users, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListTenantsByUnits returns tenant accounts assigned to any of the
// given units.
func (s *Store) ListTenantsByUnits(ctx context.Context, unitIDs []string) ([]*model.User, error) {
	if len(unitIDs) == 0 {
		return []*model.User{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE role = 'tenant' AND unit_id = ANY($1) ORDER BY created_at DESC",
		pq.Array(unitIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// UpdateUser rewrites the mutable columns of a user row.
func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	var leaseBuilding, leaseUnit sql.NullString
	var leaseStart, leaseEnd sql.NullTime
	if td := user.TenantDetails; td != nil {
		leaseBuilding = nullString(td.BuildingID)
		leaseUnit = nullString(td.UnitID)
		leaseStart = nullTime(td.LeaseStart)
		leaseEnd = nullTime(td.LeaseEnd)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET username = $2, password_hash = $3, role = $4, email = $5,
			first_name = $6, last_name = $7, phone = $8, is_active = $9,
			unit_id = $10, lease_building_id = $11, lease_unit_id = $12,
			lease_start = $13, lease_end = $14, updated_at = NOW()
		WHERE id = $1`,
		user.ID, user.Username, user.PasswordHash, user.Role,
		nullString(user.Email), nullString(user.FirstName), nullString(user.LastName),
		nullString(user.Phone), user.IsActive, nullString(user.UnitID),
		leaseBuilding, leaseUnit, leaseStart, leaseEnd)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRowAffected(result)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var email, firstName, lastName, phone, createdBy, unitID sql.NullString
	var leaseBuilding, leaseUnit sql.NullString
	var leaseStart, leaseEnd sql.NullTime

	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &email,
		&firstName, &lastName, &phone, &u.IsActive, &createdBy, &unitID,
		&leaseBuilding, &leaseUnit, &leaseStart, &leaseEnd,
		&u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.Email = email.String
	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.Phone = phone.String
	u.CreatedBy = createdBy.String
	u.UnitID = unitID.String
	if leaseBuilding.Valid || leaseUnit.Valid || leaseStart.Valid || leaseEnd.Valid {
		u.TenantDetails = &model.TenantDetails{
			BuildingID: leaseBuilding.String,
			UnitID:     leaseUnit.String,
			LeaseStart: timePtr(leaseStart),
			LeaseEnd:   timePtr(leaseEnd),
		}
	}
	return &u, nil
}

func scanUsers(rows *sql.Rows) ([]*model.User, error) {
	users := []*model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// requireRowAffected converts a zero-row update into ErrNotFound.
func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
