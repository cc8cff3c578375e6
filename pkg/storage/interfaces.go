package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kidega/apartments/pkg/model"
)

// Sentinel errors returned by repository implementations. Handlers map
// these onto HTTP statuses; everything else is a 500.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness constraint was violated.
	ErrConflict = errors.New("conflict")
	// ErrDuplicateManager indicates the manager is already assigned to
	// another building.
	ErrDuplicateManager = errors.New("manager already assigned to another building")
	// ErrDuplicateReceipt indicates the payment already has a receipt.
	ErrDuplicateReceipt = errors.New("receipt already exists for payment")
	// ErrUnitOccupied indicates a tenant assignment targeted an occupied unit.
	ErrUnitOccupied = errors.New("unit already occupied")
)

// UserRepository provides access to user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	// ListTenantsByUnits returns tenant accounts assigned to any of the
	// given units.
	ListTenantsByUnits(ctx context.Context, unitIDs []string) ([]*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
}

// BuildingRepository provides access to apartment buildings.
type BuildingRepository interface {
	CreateBuilding(ctx context.Context, b *model.Building) error
	GetBuilding(ctx context.Context, id string) (*model.Building, error)
	// GetBuildingByManager returns the building the manager is assigned
	// to, or ErrNotFound.
	GetBuildingByManager(ctx context.Context, managerID string) (*model.Building, error)
	ListBuildings(ctx context.Context) ([]*model.Building, error)
	UpdateBuilding(ctx context.Context, b *model.Building) error
	DeleteBuilding(ctx context.Context, id string) error
}

// UnitRepository provides access to apartment units. Create and Delete
// maintain the owning building's totalUnits counter in the same
// transaction as the row write.
type UnitRepository interface {
	CreateUnit(ctx context.Context, u *model.Unit) error
	GetUnit(ctx context.Context, id string) (*model.Unit, error)
	ListUnits(ctx context.Context) ([]*model.Unit, error)
	ListUnitsByBuilding(ctx context.Context, buildingID string) ([]*model.Unit, error)
	GetUnitByTenant(ctx context.Context, tenantID string) (*model.Unit, error)
	UpdateUnit(ctx context.Context, u *model.Unit) error
	DeleteUnit(ctx context.Context, id string) error
	// AssignTenant adds the tenant to the unit's tenant set, marks the
	// unit occupied and writes the tenant's lease details atomically.
	// Adding a tenant that is already on the unit is a no-op.
	AssignTenant(ctx context.Context, unitID, tenantID string, leaseStart, leaseEnd *time.Time) error
}

// PaymentRepository provides access to payments.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	ListPayments(ctx context.Context) ([]*model.Payment, error)
	ListPaymentsByTenant(ctx context.Context, tenantID string) ([]*model.Payment, error)
	ListPaymentsByUnits(ctx context.Context, unitIDs []string) ([]*model.Payment, error)
	UpdatePayment(ctx context.Context, p *model.Payment) error
}

// ReceiptRepository provides access to receipts. CreateReceipt assigns
// the next sequential receipt number and fails with ErrDuplicateReceipt
// when the payment already has one.
type ReceiptRepository interface {
	CreateReceipt(ctx context.Context, r *model.Receipt) error
	GetReceipt(ctx context.Context, id string) (*model.Receipt, error)
	ListReceipts(ctx context.Context) ([]*model.Receipt, error)
	ListReceiptsByTenant(ctx context.Context, tenantID string) ([]*model.Receipt, error)
	ListReceiptsByUnits(ctx context.Context, unitIDs []string) ([]*model.Receipt, error)
}

// DocumentRepository provides access to document metadata. File bytes
// live on disk, managed by pkg/documents.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, d *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context) ([]*model.Document, error)
	ListDocumentsByBuildings(ctx context.Context, buildingIDs []string, uploadedBy string) ([]*model.Document, error)
	ListDocumentsByTenant(ctx context.Context, tenantID string) ([]*model.Document, error)
	// ListExpiringDocuments returns active documents whose expiry date
	// falls within the window ending at deadline.
	ListExpiringDocuments(ctx context.Context, deadline time.Time) ([]*model.Document, error)
	UpdateDocument(ctx context.Context, d *model.Document) error
	DeleteDocument(ctx context.Context, id string) error
	// ExpireDocuments flips active documents past their expiry date to
	// expired and returns how many rows changed.
	ExpireDocuments(ctx context.Context, now time.Time) (int64, error)
}

// Store aggregates every repository backed by one database.
type Store interface {
	UserRepository
	BuildingRepository
	UnitRepository
	PaymentRepository
	ReceiptRepository
	DocumentRepository

	// HealthCheck verifies the backing database is reachable.
	HealthCheck(ctx context.Context) error
	Close() error
}

// Config holds storage backend settings.
type Config struct {
	PostgresURL      string
	PostgresMaxConns int
	PostgresTimeout  time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 20,
		PostgresTimeout:  10 * time.Second,
	}
}
