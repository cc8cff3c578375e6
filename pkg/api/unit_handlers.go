package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/kidega/apartments/pkg/authz"
	"github.com/kidega/apartments/pkg/httputil"
	"github.com/kidega/apartments/pkg/middleware"
)

// UnitHandlers serves the /api/apartment-units endpoints.
type UnitHandlers struct {
	server *Server
}

// RegisterRoutes mounts the unit endpoints. The manager listing is
// deliberately uncached: its content depends on the caller, and the
// cache key scheme only namespaces tenants.
func (h *UnitHandlers) RegisterRoutes(router *mux.Router, authed mux.MiddlewareFunc) {
	s := h.server
	sub := router.PathPrefix("/api/apartment-units").Subrouter()
	sub.Use(authed)

	sub.Handle("", s.gate(authz.ResourceUnit, authz.ActionCreate)(
		http.HandlerFunc(h.create))).Methods("POST")
	sub.Handle("", middleware.RequireRole("admin")(
		s.cached(cacheApartments, 60*time.Second, h.list))).Methods("GET")
	sub.Handle("/manager", middleware.RequireRole("manager")(
		http.HandlerFunc(h.listForManager))).Methods("GET")
	sub.Handle("/tenant", middleware.RequireRole("tenant")(
		s.cached(cacheTenants, 0, h.getForTenant))).Methods("GET")
	sub.Handle("/amenities", s.cached(cacheStatic, 0,
		h.amenities)).Methods("GET")
	sub.Handle("/add-tenant", middleware.RequireRole("manager")(
		http.HandlerFunc(h.addTenant))).Methods("POST")
	sub.Handle("/{id}", s.gate(authz.ResourceUnit, authz.ActionRead)(
		h.guardUnit(s.cached(cacheApartments, 0, h.get)))).Methods("GET")
	sub.Handle("/{id}", s.gate(authz.ResourceUnit, authz.ActionUpdate)(
		http.HandlerFunc(h.update))).Methods("PUT")
	sub.Handle("/{id}", s.gate(authz.ResourceUnit, authz.ActionDelete)(
		http.HandlerFunc(h.delete))).Methods("DELETE")
}

// guardUnit restricts {id} reads: admins pass, managers only for units
// in their building, tenants only for their own unit.
func (h *UnitHandlers) guardUnit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := identity(w, r)
		if !ok {
			return
		}
		if caller.IsAdmin() {
			next.ServeHTTP(w, r)
			return
		}
		unitID := httputil.PathParam(r, "id")
		if caller.IsManager() {
			manages, err := h.server.checker.ManagesUnit(r.Context(), caller, unitID)
			if err != nil {
				writeStorageError(w, r, err, "")
				return
			}
			if !manages {
				httputil.WriteForbidden(w, "You can only view units in your building")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		unit, err := h.server.store.GetUnit(r.Context(), unitID)
		if err != nil {
			writeStorageError(w, r, err, "Unit not found")
			return
		}
		for _, tid := range unit.TenantIDs {
			if tid == caller.UserID {
				next.ServeHTTP(w, r)
				return
			}
		}
		httputil.WriteForbidden(w, "You can only view your own unit")
	})
}

type unitRequest struct {
	BuildingID    string     `json:"building"`
	UnitNumber    string     `json:"unitNumber"`
	Floor         int        `json:"floor"`
	Rooms         int        `json:"rooms"`
	Bathrooms     int        `json:"bathrooms"`
	Size          float64    `json:"size"`
	Rent          float64    `json:"rent"`
	Deposit       float64    `json:"deposit"`
	Amenities     []string   `json:"amenities"`
	Status        UnitStatus `json:"status"`
	Notes         string     `json:"notes"`
	AvailableFrom *time.Time `json:"availableFrom"`
}

func (h *UnitHandlers) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req unitRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.BuildingID == "" {
		httputil.WriteBadRequest(w, "Building is required")
		return
	}
	if req.UnitNumber == "" {
		httputil.WriteBadRequest(w, "Unit number is required")
		return
	}

	if _, err := h.server.store.GetBuilding(r.Context(), req.BuildingID); err != nil {
		writeStorageError(w, r, err, "Apartment not found")
		return
	}

	status := req.Status
	if status == "" {
		status = UnitAvailable
	}
	unit := &Unit{
		ID:            uuid.NewString(),
		BuildingID:    req.BuildingID,
		UnitNumber:    req.UnitNumber,
		Floor:         req.Floor,
		Rooms:         req.Rooms,
		Bathrooms:     req.Bathrooms,
		Size:          req.Size,
		Rent:          req.Rent,
		Deposit:       req.Deposit,
		Amenities:     req.Amenities,
		Status:        status,
		Notes:         req.Notes,
		AvailableFrom: req.AvailableFrom,
		CreatedBy:     caller.UserID,
	}
	if err := h.server.store.CreateUnit(r.Context(), unit); err != nil {
		writeStorageError(w, r, err, "Apartment not found")
		return
	}

	// totalUnits changed, so the building caches are stale too.
	h.server.invalidateUnitKeys(r.Context())
	h.server.invalidate(r.Context(), cacheApartments, "/api/apartment-buildings")
	httputil.WriteCreated(w, unit)
}

func (h *UnitHandlers) list(w http.ResponseWriter, r *http.Request) {
	units, err := h.server.store.ListUnits(r.Context())
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, units)
}

func (h *UnitHandlers) listForManager(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	building, err := h.server.checker.ManagedBuilding(r.Context(), caller)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	if building == nil {
		httputil.WriteNotFound(w, "No apartment assigned to this manager")
		return
	}
	units, err := h.server.store.ListUnitsByBuilding(r.Context(), building.ID)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, units)
}

func (h *UnitHandlers) getForTenant(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	unit, err := h.server.store.GetUnitByTenant(r.Context(), caller.UserID)
	if err != nil {
		writeStorageError(w, r, err, "No unit assigned to this tenant")
		return
	}
	httputil.WriteSuccess(w, unit)
}

func (h *UnitHandlers) amenities(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, BuildingAmenities)
}

type addTenantRequest struct {
	UnitID     string     `json:"unitId"`
	TenantID   string     `json:"tenantId"`
	LeaseStart *time.Time `json:"lease_start"`
	LeaseEnd   *time.Time `json:"lease_end"`
}

func (h *UnitHandlers) addTenant(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req addTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UnitID == "" || req.TenantID == "" {
		httputil.WriteBadRequest(w, "unitId and tenantId are required")
		return
	}

	manages, err := h.server.checker.ManagesUnit(r.Context(), caller, req.UnitID)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	if !manages {
		httputil.WriteForbidden(w, "You can only assign tenants to units you manage")
		return
	}

	tenant, err := h.server.store.GetUser(r.Context(), req.TenantID)
	if err != nil {
		writeStorageError(w, r, err, "Tenant not found")
		return
	}
	if tenant.Role != RoleTenant {
		httputil.WriteBadRequest(w, "User is not a tenant")
		return
	}

	if err := h.server.store.AssignTenant(r.Context(), req.UnitID, req.TenantID, req.LeaseStart, req.LeaseEnd); err != nil {
		writeStorageError(w, r, err, "Unit not found")
		return
	}

	h.server.invalidateUnitKeys(r.Context(), req.TenantID)
	httputil.WriteMessage(w, http.StatusOK, "Tenant added to unit successfully")
}

func (h *UnitHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParamOrError(w, r, "id")
	if !ok {
		return
	}
	unit, err := h.server.store.GetUnit(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err, "Unit not found")
		return
	}
	httputil.WriteSuccess(w, unit)
}

func (h *UnitHandlers) update(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathParamOrError(w, r, "id")
	if !ok {
		return
	}

	unit, err := h.server.store.GetUnit(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err, "Unit not found")
		return
	}
	if caller.IsManager() {
		manages, err := h.server.checker.ManagesBuilding(r.Context(), caller, unit.BuildingID)
		if err != nil {
			writeStorageError(w, r, err, "")
			return
		}
		if !manages {
			httputil.WriteForbidden(w, "You can only update units in your building")
			return
		}
	}

	var req unitRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.BuildingID != "" && req.BuildingID != unit.BuildingID {
		httputil.WriteBadRequest(w, "Units cannot move between apartments")
		return
	}
	if req.UnitNumber != "" {
		unit.UnitNumber = req.UnitNumber
	}
	if req.Floor != 0 {
		unit.Floor = req.Floor
	}
	if req.Rooms != 0 {
		unit.Rooms = req.Rooms
	}
	if req.Bathrooms != 0 {
		unit.Bathrooms = req.Bathrooms
	}
	if req.Size != 0 {
		unit.Size = req.Size
	}
	if req.Rent != 0 {
		unit.Rent = req.Rent
	}
	if req.Deposit != 0 {
		unit.Deposit = req.Deposit
	}
	if req.Amenities != nil {
		unit.Amenities = req.Amenities
	}
	if req.Status != "" {
		unit.Status = req.Status
	}
	if req.Notes != "" {
		unit.Notes = req.Notes
	}
	if req.AvailableFrom != nil {
		unit.AvailableFrom = req.AvailableFrom
	}

	if err := h.server.store.UpdateUnit(r.Context(), unit); err != nil {
		writeStorageError(w, r, err, "Unit not found")
		return
	}

	h.server.invalidateUnitKeys(r.Context(), unit.TenantIDs...)
	httputil.WriteSuccess(w, unit)
}

func (h *UnitHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParamOrError(w, r, "id")
	if !ok {
		return
	}
	unit, err := h.server.store.GetUnit(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err, "Unit not found")
		return
	}
	if err := h.server.store.DeleteUnit(r.Context(), id); err != nil {
		writeStorageError(w, r, err, "Unit not found")
		return
	}

	h.server.invalidateUnitKeys(r.Context(), unit.TenantIDs...)
	h.server.invalidate(r.Context(), cacheApartments, "/api/apartment-buildings")
	httputil.WriteMessage(w, http.StatusOK, "Unit deleted successfully")
}
