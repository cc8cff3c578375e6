// Package model holds the domain entities shared by the API, auth,
// authorization and storage layers. It has no project imports so any
// package can depend on it.
package model

import "time"

// Role identifies the access level of a user account.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleTenant  Role = "tenant"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleTenant:
		return true
	}
	return false
}

// UnitStatus is the occupancy state of an apartment unit.
type UnitStatus string

const (
	UnitAvailable   UnitStatus = "available"
	UnitOccupied    UnitStatus = "occupied"
	UnitMaintenance UnitStatus = "maintenance"
	UnitReserved    UnitStatus = "reserved"
)

// PaymentType categorizes what a payment is for.
type PaymentType string

const (
	PaymentRent    PaymentType = "rent"
	PaymentUtility PaymentType = "utility"
	PaymentDeposit PaymentType = "deposit"
	PaymentOther   PaymentType = "other"
)

// PaymentStatus is the settlement state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// DocumentStatus is the lifecycle state of a stored document.
type DocumentStatus string

const (
	DocumentDraft    DocumentStatus = "draft"
	DocumentActive   DocumentStatus = "active"
	DocumentExpired  DocumentStatus = "expired"
	DocumentArchived DocumentStatus = "archived"
)

// TenantDetails holds the lease information attached to a tenant account.
type TenantDetails struct {
	BuildingID string     `json:"apartment,omitempty"`
	UnitID     string     `json:"unit,omitempty"`
	LeaseStart *time.Time `json:"lease_start,omitempty"`
	LeaseEnd   *time.Time `json:"lease_end,omitempty"`
}

// User represents an account in any of the three roles. PasswordHash is
// never serialized.
type User struct {
	ID            string         `json:"id"`
	Username      string         `json:"username"`
	PasswordHash  string         `json:"-"`
	Role          Role           `json:"role"`
	Email         string         `json:"email,omitempty"`
	FirstName     string         `json:"first_name,omitempty"`
	LastName      string         `json:"last_name,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	IsActive      bool           `json:"is_active"`
	CreatedBy     string         `json:"created_by,omitempty"`
	UnitID        string         `json:"unit,omitempty"`
	TenantDetails *TenantDetails `json:"tenant_details,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Building represents an apartment building. ManagerID is unique across
// buildings: a manager runs at most one building at a time.
type Building struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Amenities  []string  `json:"amenities,omitempty"`
	ManagerID  string    `json:"manager,omitempty"`
	TotalUnits int       `json:"totalUnits"`
	Images     []string  `json:"images,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Unit represents a rentable unit inside a building. (BuildingID,
// UnitNumber) is unique.
type Unit struct {
	ID            string     `json:"id"`
	BuildingID    string     `json:"building"`
	UnitNumber    string     `json:"unitNumber"`
	Floor         int        `json:"floor,omitempty"`
	Rooms         int        `json:"rooms,omitempty"`
	Bathrooms     int        `json:"bathrooms,omitempty"`
	Size          float64    `json:"size,omitempty"`
	Rent          float64    `json:"rent,omitempty"`
	Deposit       float64    `json:"deposit,omitempty"`
	Amenities     []string   `json:"amenities,omitempty"`
	Status        UnitStatus `json:"status"`
	IsOccupied    bool       `json:"isOccupied"`
	TenantIDs     []string   `json:"tenants,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	AvailableFrom *time.Time `json:"availableFrom,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Payment represents money received from a tenant for a unit.
type Payment struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenant"`
	UnitID     string        `json:"unit"`
	Type       PaymentType   `json:"type"`
	Status     PaymentStatus `json:"status"`
	Amount     float64       `json:"amount"`
	Method     string        `json:"method,omitempty"`
	Reference  string        `json:"reference,omitempty"`
	RecordedBy string        `json:"recorded_by,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// Receipt is issued exactly once for a completed payment. The amount,
// type, method and reference are copied from the payment at issuance so
// the receipt stays stable if the payment row is later edited.
type Receipt struct {
	ID            string      `json:"id"`
	PaymentID     string      `json:"payment"`
	ReceiptNumber string      `json:"receiptNumber"`
	IssuedTo      string      `json:"issuedTo"`
	UnitID        string      `json:"unit,omitempty"`
	Amount        float64     `json:"amount"`
	Type          PaymentType `json:"type"`
	Method        string      `json:"method,omitempty"`
	Reference     string      `json:"reference,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	CreatedBy     string      `json:"created_by,omitempty"`
	IssuedAt      time.Time   `json:"issuedAt"`
}

// Document is an uploaded file with optional tenant/building/unit scoping.
type Document struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category,omitempty"`
	FilePath    string         `json:"-"`
	FileType    string         `json:"fileType,omitempty"`
	Size        int64          `json:"size"`
	TenantID    string         `json:"tenant,omitempty"`
	BuildingID  string         `json:"building,omitempty"`
	UnitID      string         `json:"unit,omitempty"`
	Status      DocumentStatus `json:"status"`
	Version     int            `json:"version"`
	IsActive    bool           `json:"isActive"`
	ExpiryDate  *time.Time     `json:"expiryDate,omitempty"`
	UploadedBy  string         `json:"uploadedBy,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// BuildingAmenities is the fixed amenity vocabulary offered to clients.
var BuildingAmenities = []string{"Parking", "Pool", "Gym", "Laundry", "Security"}
