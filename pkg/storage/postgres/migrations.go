package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a single schema migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the full migration list in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY,
					username VARCHAR(64) NOT NULL,
					password_hash TEXT NOT NULL,
					role VARCHAR(16) NOT NULL,
					email VARCHAR(255),
					first_name VARCHAR(255),
					last_name VARCHAR(255),
					phone VARCHAR(64),
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_by UUID,
					unit_id UUID,
					lease_building_id UUID,
					lease_unit_id UUID,
					lease_start TIMESTAMPTZ,
					lease_end TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CONSTRAINT users_username_key UNIQUE (username)
				);

				CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
				CREATE INDEX IF NOT EXISTS idx_users_unit_id ON users(unit_id);
			`,
		},
		{
			Version:     2,
			Description: "Create buildings table",
			SQL: `
				CREATE TABLE IF NOT EXISTS buildings (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					address TEXT NOT NULL,
					amenities TEXT[] NOT NULL DEFAULT '{}',
					manager_id UUID,
					total_units INT NOT NULL DEFAULT 0,
					images TEXT[] NOT NULL DEFAULT '{}',
					notes TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CONSTRAINT buildings_manager_id_key UNIQUE (manager_id)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create units table",
			SQL: `
				CREATE TABLE IF NOT EXISTS units (
					id UUID PRIMARY KEY,
					building_id UUID NOT NULL REFERENCES buildings(id) ON DELETE CASCADE,
					unit_number VARCHAR(32) NOT NULL,
					floor INT,
					rooms INT,
					bathrooms INT,
					size DOUBLE PRECISION,
					rent DOUBLE PRECISION,
					deposit DOUBLE PRECISION,
					amenities TEXT[] NOT NULL DEFAULT '{}',
					status VARCHAR(16) NOT NULL DEFAULT 'available',
					is_occupied BOOLEAN NOT NULL DEFAULT FALSE,
					tenant_ids UUID[] NOT NULL DEFAULT '{}',
					notes TEXT,
					available_from TIMESTAMPTZ,
					created_by UUID,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CONSTRAINT units_building_id_unit_number_key UNIQUE (building_id, unit_number)
				);

				CREATE INDEX IF NOT EXISTS idx_units_building_id ON units(building_id);
			`,
		},
		{
			Version:     4,
			Description: "Create payments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS payments (
					id UUID PRIMARY KEY,
					tenant_id UUID NOT NULL,
					unit_id UUID NOT NULL,
					type VARCHAR(16) NOT NULL,
					status VARCHAR(16) NOT NULL DEFAULT 'pending',
					amount DOUBLE PRECISION NOT NULL,
					method VARCHAR(64),
					reference VARCHAR(255),
					recorded_by UUID,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_payments_tenant_id ON payments(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_payments_unit_id ON payments(unit_id);
			`,
		},
		{
			Version:     5,
			Description: "Create receipts table and number sequence",
			SQL: `
				CREATE SEQUENCE IF NOT EXISTS receipt_number_seq START 1;

				CREATE TABLE IF NOT EXISTS receipts (
					id UUID PRIMARY KEY,
					payment_id UUID NOT NULL,
					receipt_number VARCHAR(32) NOT NULL,
					issued_to UUID NOT NULL,
					unit_id UUID,
					amount DOUBLE PRECISION NOT NULL,
					type VARCHAR(16) NOT NULL,
					method VARCHAR(64),
					reference VARCHAR(255),
					notes TEXT,
					created_by UUID,
					issued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CONSTRAINT receipts_payment_id_key UNIQUE (payment_id),
					CONSTRAINT receipts_receipt_number_key UNIQUE (receipt_number)
				);

				CREATE INDEX IF NOT EXISTS idx_receipts_issued_to ON receipts(issued_to);
			`,
		},
		{
			Version:     6,
			Description: "Create documents table",
			SQL: `
				CREATE TABLE IF NOT EXISTS documents (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					category VARCHAR(64),
					file_path TEXT NOT NULL,
					file_type VARCHAR(128),
					size BIGINT NOT NULL DEFAULT 0,
					tenant_id UUID,
					building_id UUID,
					unit_id UUID,
					status VARCHAR(16) NOT NULL DEFAULT 'active',
					version INT NOT NULL DEFAULT 1,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					expiry_date TIMESTAMPTZ,
					uploaded_by UUID,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_documents_tenant_id ON documents(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_documents_building_id ON documents(building_id);
				CREATE INDEX IF NOT EXISTS idx_documents_expiry ON documents(expiry_date) WHERE is_active;
			`,
		},
	}
}

// RunMigrations applies pending migrations in version order, tracking
// applied versions in schema_migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}
	return nil
}
