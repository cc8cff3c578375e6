package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/kidega/apartments/pkg/auth"
	"github.com/kidega/apartments/pkg/model"
	"github.com/kidega/apartments/pkg/storage"
)

// Directory is the subset of storage the checker needs to resolve
// ownership chains.
type Directory interface {
	GetBuilding(ctx context.Context, id string) (*model.Building, error)
	GetBuildingByManager(ctx context.Context, managerID string) (*model.Building, error)
	ListUnitsByBuilding(ctx context.Context, buildingID string) ([]*model.Unit, error)
	GetUnit(ctx context.Context, id string) (*model.Unit, error)
}

// Checker evaluates the rule table plus the ownership predicates that
// scope managers to their building and tenants to themselves.
type Checker struct {
	dir Directory
}

// NewChecker creates a checker backed by the given directory.
func NewChecker(dir Directory) *Checker {
	return &Checker{dir: dir}
}

// Allows reports whether the caller's role passes the gate for an
// action on a resource.
func (c *Checker) Allows(identity auth.Identity, resource Resource, action Action) bool {
	return Allows(identity.Role, resource, action)
}

// ManagedBuilding returns the caller's building, or nil when the
// manager has none assigned.
func (c *Checker) ManagedBuilding(ctx context.Context, identity auth.Identity) (*model.Building, error) {
	building, err := c.dir.GetBuildingByManager(ctx, identity.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve managed building: %w", err)
	}
	return building, nil
}

// ManagesBuilding reports whether the caller manages the given building.
func (c *Checker) ManagesBuilding(ctx context.Context, identity auth.Identity, buildingID string) (bool, error) {
	if buildingID == "" {
		return false, nil
	}
	building, err := c.ManagedBuilding(ctx, identity)
	if err != nil {
		return false, err
	}
	return building != nil && building.ID == buildingID, nil
}

// ManagedUnitIDs returns the ids of every unit in the caller's building.
func (c *Checker) ManagedUnitIDs(ctx context.Context, identity auth.Identity) ([]string, error) {
	building, err := c.ManagedBuilding(ctx, identity)
	if err != nil {
		return nil, err
	}
	if building == nil {
		return nil, nil
	}
	units, err := c.dir.ListUnitsByBuilding(ctx, building.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list managed units: %w", err)
	}
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// ManagesUnit reports whether the caller manages the building the unit
// belongs to.
func (c *Checker) ManagesUnit(ctx context.Context, identity auth.Identity, unitID string) (bool, error) {
	unit, err := c.dir.GetUnit(ctx, unitID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to resolve unit: %w", err)
	}
	return c.ManagesBuilding(ctx, identity, unit.BuildingID)
}

// CanViewUser applies the user read predicate: admin sees everyone,
// anyone sees themselves, a manager may view tenant records.
func (c *Checker) CanViewUser(identity auth.Identity, target *model.User) bool {
	if identity.IsAdmin() || identity.UserID == target.ID {
		return true
	}
	return identity.IsManager() && target.Role == model.RoleTenant
}

// CanViewPayment applies the payment read predicate. The manager case
// requires the payment's unit to be in the caller's building.
func (c *Checker) CanViewPayment(ctx context.Context, identity auth.Identity, payment *model.Payment) (bool, error) {
	switch {
	case identity.IsAdmin():
		return true, nil
	case identity.IsTenant():
		return payment.TenantID == identity.UserID, nil
	case identity.IsManager():
		return c.ManagesUnit(ctx, identity, payment.UnitID)
	}
	return false, nil
}

// CanViewReceipt applies the receipt read predicate: admin all, tenant
// when issued to them, manager when the receipt's unit is in their
// building.
func (c *Checker) CanViewReceipt(ctx context.Context, identity auth.Identity, receipt *model.Receipt) (bool, error) {
	switch {
	case identity.IsAdmin():
		return true, nil
	case identity.IsTenant():
		return receipt.IssuedTo == identity.UserID, nil
	case identity.IsManager():
		if receipt.UnitID == "" {
			return false, nil
		}
		return c.ManagesUnit(ctx, identity, receipt.UnitID)
	}
	return false, nil
}

// CanViewDocument applies the document read predicate: admin all,
// manager for own-building documents or their own uploads, tenant for
// documents tagged with them.
func (c *Checker) CanViewDocument(ctx context.Context, identity auth.Identity, doc *model.Document) (bool, error) {
	switch {
	case identity.IsAdmin():
		return true, nil
	case identity.IsTenant():
		return doc.TenantID == identity.UserID, nil
	case identity.IsManager():
		if doc.UploadedBy == identity.UserID {
			return true, nil
		}
		if doc.BuildingID == "" {
			return false, nil
		}
		return c.ManagesBuilding(ctx, identity, doc.BuildingID)
	}
	return false, nil
}

// CanEditDocument applies the document write predicate. The uploader
// keeps edit rights even when the document carries no building
// reference.
func (c *Checker) CanEditDocument(ctx context.Context, identity auth.Identity, doc *model.Document) (bool, error) {
	if identity.IsTenant() {
		return false, nil
	}
	return c.CanViewDocument(ctx, identity, doc)
}
