package api

import "github.com/kidega/apartments/pkg/model"

// The domain entities live in pkg/model so that auth, authz and storage
// can share them without importing this package. Handlers read better in
// the domain vocabulary, so the names are aliased here.
type (
	Role           = model.Role
	UnitStatus     = model.UnitStatus
	PaymentType    = model.PaymentType
	PaymentStatus  = model.PaymentStatus
	DocumentStatus = model.DocumentStatus
	TenantDetails  = model.TenantDetails
	User           = model.User
	Building       = model.Building
	Unit           = model.Unit
	Payment        = model.Payment
	Receipt        = model.Receipt
	Document       = model.Document
)

const (
	RoleAdmin   = model.RoleAdmin
	RoleManager = model.RoleManager
	RoleTenant  = model.RoleTenant

	UnitAvailable   = model.UnitAvailable
	UnitOccupied    = model.UnitOccupied
	UnitMaintenance = model.UnitMaintenance
	UnitReserved    = model.UnitReserved

	PaymentRent    = model.PaymentRent
	PaymentUtility = model.PaymentUtility
	PaymentDeposit = model.PaymentDeposit
	PaymentOther   = model.PaymentOther

	PaymentPending   = model.PaymentPending
	PaymentCompleted = model.PaymentCompleted
	PaymentFailed    = model.PaymentFailed

	DocumentDraft    = model.DocumentDraft
	DocumentActive   = model.DocumentActive
	DocumentExpired  = model.DocumentExpired
	DocumentArchived = model.DocumentArchived
)

// BuildingAmenities is the fixed amenity vocabulary offered to clients.
var BuildingAmenities = model.BuildingAmenities
