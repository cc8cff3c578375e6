package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/kidega/apartments/pkg/auth"
	"github.com/kidega/apartments/pkg/authz"
	"github.com/kidega/apartments/pkg/httputil"
	"github.com/kidega/apartments/pkg/middleware"
	"github.com/kidega/apartments/pkg/storage"
)

// UserHandlers serves the /api/users endpoints.
type UserHandlers struct {
	server *Server
}

// RegisterRoutes mounts the user endpoints.
func (h *UserHandlers) RegisterRoutes(router *mux.Router, authed mux.MiddlewareFunc) {
	s := h.server
	sub := router.PathPrefix("/api/users").Subrouter()
	sub.Use(authed)

	sub.Handle("", middleware.RequireRole("admin")(
		s.cached(cacheUsers, 0, h.list))).Methods("GET")
	sub.Handle("/manager-tenants", middleware.RequireRole("manager")(
		http.HandlerFunc(h.listManagerTenants))).Methods("GET")
	sub.Handle("/admin-create", s.gate(authz.ResourceUser, authz.ActionCreate)(
		http.HandlerFunc(h.adminCreate))).Methods("POST")
	sub.Handle("/{id}/tenant-details", s.gate(authz.ResourceUser, authz.ActionRead)(
		http.HandlerFunc(h.tenantDetails))).Methods("GET")
	sub.Handle("/{id}", s.gate(authz.ResourceUser, authz.ActionRead)(
		h.guardUser(s.cached(cacheUsers, 0, h.get)))).Methods("GET")
	sub.Handle("/{id}", s.gate(authz.ResourceUser, authz.ActionUpdate)(
		http.HandlerFunc(h.update))).Methods("PUT")
}

// guardUser applies CanViewUser before the cache sees the request.
func (h *UserHandlers) guardUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := identity(w, r)
		if !ok {
			return
		}
		target, err := h.server.store.GetUser(r.Context(), httputil.PathParam(r, "id"))
		if err != nil {
			writeStorageError(w, r, err, "User not found")
			return
		}
		if !h.server.checker.CanViewUser(caller, target) {
			httputil.WriteForbidden(w, "Insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *UserHandlers) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.server.store.ListUsers(r.Context())
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, users)
}

func (h *UserHandlers) listManagerTenants(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	unitIDs, err := h.server.checker.ManagedUnitIDs(r.Context(), caller)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	tenants, err := h.server.store.ListTenantsByUnits(r.Context(), unitIDs)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, tenants)
}

type adminCreateRequest struct {
	Username   string     `json:"username"`
	Password   string     `json:"password"`
	Role       Role       `json:"role"`
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Phone      string     `json:"phone_number"`
	UnitID     string     `json:"unitId"`
	LeaseStart *time.Time `json:"lease_start"`
	LeaseEnd   *time.Time `json:"lease_end"`
}

func (h *UserHandlers) adminCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req adminCreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "Username and password are required")
		return
	}
	if req.Role == "" {
		req.Role = RoleTenant
	}
	if !req.Role.Valid() {
		httputil.WriteBadRequest(w, "Invalid role")
		return
	}
	// A manager can only provision tenant accounts, and only into
	// vacant units of their own building.
	if caller.IsManager() {
		if req.Role != RoleTenant {
			httputil.WriteForbidden(w, "Managers can only create tenant accounts")
			return
		}
		if req.UnitID == "" {
			httputil.WriteBadRequest(w, "unitId is required")
			return
		}
	}

	var unit *Unit
	if req.UnitID != "" {
		if req.Role != RoleTenant {
			httputil.WriteBadRequest(w, "Only tenants can be assigned to a unit")
			return
		}
		var err error
		unit, err = h.server.store.GetUnit(r.Context(), req.UnitID)
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
				httputil.WriteForbidden(w, "You can only assign tenants to units you manage")
				return
			}
		}
		if unit.IsOccupied {
			httputil.WriteBadRequest(w, "Unit already occupied")
			return
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	user := &User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		IsActive:     true,
		CreatedBy:    caller.UserID,
	}
	if err := h.server.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			httputil.WriteConflict(w, "Username already exists")
			return
		}
		writeStorageError(w, r, err, "")
		return
	}

	if unit != nil {
		if err := h.server.store.AssignTenant(r.Context(), unit.ID, user.ID, req.LeaseStart, req.LeaseEnd); err != nil {
			writeStorageError(w, r, err, "Unit not found")
			return
		}
		h.server.invalidateUnitKeys(r.Context(), user.ID)
	}

	h.server.invalidate(r.Context(), cacheUsers, "/api/users")
	httputil.WriteCreated(w, user)
}

func (h *UserHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParamOrError(w, r, "id")
	if !ok {
		return
	}
	user, err := h.server.store.GetUser(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err, "User not found")
		return
	}
	httputil.WriteSuccess(w, user)
}

type updateUserRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone_number"`
	Role      *Role   `json:"role"`
	IsActive  *bool   `json:"is_active"`
}

func (h *UserHandlers) update(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathParamOrError(w, r, "id")
	if !ok {
		return
	}
	if !caller.IsAdmin() && caller.UserID != id {
		httputil.WriteForbidden(w, "You can only update your own profile")
		return
	}

	user, err := h.server.store.GetUser(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err, "User not found")
		return
	}

	var req updateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	// Role and activation changes are admin-only; others silently keep
	// their current values.
	if caller.IsAdmin() {
		if req.Role != nil {
			if !req.Role.Valid() {
				httputil.WriteBadRequest(w, "Invalid role")
				return
			}
			user.Role = *req.Role
		}
		if req.IsActive != nil {
			user.IsActive = *req.IsActive
		}
	}

	if err := h.server.store.UpdateUser(r.Context(), user); err != nil {
		writeStorageError(w, r, err, "User not found")
		return
	}

	h.server.invalidate(r.Context(), cacheUsers, "/api/users")
	if user.Role == RoleTenant {
		h.server.invalidateTenants(r.Context(), user.ID)
	}
	httputil.WriteSuccess(w, user)
}

func (h *UserHandlers) tenantDetails(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathParamOrError(w, r, "id")
	if !ok {
		return
	}
	user, err := h.server.store.GetUser(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err, "User not found")
		return
	}
	if !h.server.checker.CanViewUser(caller, user) {
		httputil.WriteForbidden(w, "Insufficient permissions")
		return
	}
	if user.Role != RoleTenant {
		httputil.WriteBadRequest(w, "User is not a tenant")
		return
	}
	details := user.TenantDetails
	if details == nil {
		details = &TenantDetails{}
	}
	httputil.WriteSuccess(w, details)
}
