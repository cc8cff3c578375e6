// Package storage defines the repository interfaces for the apartments
// backend and the sentinel errors handlers translate into HTTP statuses.
//
// The interfaces are segregated per entity (UserRepository,
// BuildingRepository, UnitRepository, PaymentRepository,
// ReceiptRepository, DocumentRepository) and composed into Store, which
// the API layer consumes. The PostgreSQL implementation lives in
// pkg/storage/postgres.
//
// Multi-entity invariants are the repository's responsibility, not the
// handler's:
//
//   - Creating or deleting a unit adjusts the owning building's
//     totalUnits counter inside the same transaction.
//   - AssignTenant updates the unit's tenant set, occupancy flags and
//     the tenant's lease details in one transaction.
//   - One manager per building, one receipt per payment and one unit
//     number per building are enforced with unique indexes; violations
//     surface as ErrDuplicateManager, ErrDuplicateReceipt and
//     ErrConflict respectively.
package storage
