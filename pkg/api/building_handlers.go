package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/kidega/apartments/pkg/authz"
	"github.com/kidega/apartments/pkg/httputil"
	"github.com/kidega/apartments/pkg/middleware"
)

// BuildingHandlers serves the /api/apartment-buildings endpoints.
type BuildingHandlers struct {
	server *Server
}

// RegisterRoutes mounts the building endpoints. Ownership checks run
// before the cache so a manager can never be served another manager's
// cached building.
func (h *BuildingHandlers) RegisterRoutes(router *mux.Router, authed mux.MiddlewareFunc) {
	s := h.server
	sub := router.PathPrefix("/api/apartment-buildings").Subrouter()
	sub.Use(authed)

	sub.Handle("", s.gate(authz.ResourceBuilding, authz.ActionCreate)(
		http.HandlerFunc(h.create))).Methods("POST")
	sub.Handle("", middleware.RequireRole("admin")(
		s.cached(cacheApartments, 0, h.list))).Methods("GET")
	sub.Handle("/manager/{managerId}", s.gate(authz.ResourceBuilding, authz.ActionRead)(
		h.guardManagerParam(s.cached(cacheApartments, 0, h.getByManager)))).Methods("GET")
	sub.Handle("/{id}", s.gate(authz.ResourceBuilding, authz.ActionRead)(
		h.guardBuilding(s.cached(cacheApartments, 0, h.get)))).Methods("GET")
	sub.Handle("/{id}", s.gate(authz.ResourceBuilding, authz.ActionUpdate)(
		http.HandlerFunc(h.update))).Methods("PUT")
	sub.Handle("/{id}", s.gate(authz.ResourceBuilding, authz.ActionDelete)(
		http.HandlerFunc(h.delete))).Methods("DELETE")
}

// guardBuilding restricts {id} reads: admins pass, managers only for
// their own building.
func (h *BuildingHandlers) guardBuilding(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := identity(w, r)
		if !ok {
			return
		}
		if caller.IsAdmin() {
			next.ServeHTTP(w, r)
			return
		}
		manages, err := h.server.checker.ManagesBuilding(r.Context(), caller, httputil.PathParam(r, "id"))
		if err != nil {
			writeStorageError(w, r, err, "")
			return
		}
		if !manages {
			httputil.WriteForbidden(w, "You can only view your own building")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// guardManagerParam restricts /manager/{managerId}: admins pass,
// managers only for themselves.
func (h *BuildingHandlers) guardManagerParam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := identity(w, r)
		if !ok {
			return
		}
		if !caller.IsAdmin() && httputil.PathParam(r, "managerId") != caller.UserID {
			httputil.WriteForbidden(w, "You can only view your own building")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type buildingRequest struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Amenities []string `json:"amenities"`
	ManagerID string   `json:"manager"`
	Images    []string `json:"images"`
	Notes     string   `json:"notes"`
}

func (h *BuildingHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req buildingRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" || req.Address == "" {
		httputil.WriteBadRequest(w, "Name and address are required")
		return
	}

	building := &Building{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Address:   req.Address,
		Amenities: req.Amenities,
		ManagerID: req.ManagerID,
		Images:    req.Images,
		Notes:     req.Notes,
	}
	if err := h.server.store.CreateBuilding(r.Context(), building); err != nil {
		writeStorageError(w, r, err, "")
		return
	}

	h.server.invalidate(r.Context(), cacheApartments, "/api/apartment-buildings")
	httputil.WriteCreated(w, building)
}

func (h *BuildingHandlers) list(w http.ResponseWriter, r *http.Request) {
	buildings, err := h.server.store.ListBuildings(r.Context())
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, buildings)
}

func (h *BuildingHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParamOrError(w, r, "id")
	if !ok {
		return
	}
	building, err := h.server.store.GetBuilding(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err, "Apartment not found")
		return
	}
	httputil.WriteSuccess(w, building)
}

func (h *BuildingHandlers) getByManager(w http.ResponseWriter, r *http.Request) {
	managerID, ok := httputil.PathParamOrError(w, r, "managerId")
	if !ok {
		return
	}
	building, err := h.server.store.GetBuildingByManager(r.Context(), managerID)
	if err != nil {
		writeStorageError(w, r, err, "No apartment assigned to this manager")
		return
	}
	httputil.WriteSuccess(w, building)
}

func (h *BuildingHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParamOrError(w, r, "id")
	if !ok {
		return
	}
	building, err := h.server.store.GetBuilding(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err, "Apartment not found")
		return
	}

	var req buildingRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name != "" {
		building.Name = req.Name
	}
	if req.Address != "" {
		building.Address = req.Address
	}
	if req.Amenities != nil {
		building.Amenities = req.Amenities
	}
	if req.Images != nil {
		building.Images = req.Images
	}
	if req.Notes != "" {
		building.Notes = req.Notes
	}
	building.ManagerID = req.ManagerID

	// totalUnits is owned by the unit repository; UpdateBuilding never
	// touches it.
	if err := h.server.store.UpdateBuilding(r.Context(), building); err != nil {
		writeStorageError(w, r, err, "Apartment not found")
		return
	}

	h.server.invalidate(r.Context(), cacheApartments, "/api/apartment-buildings")
	httputil.WriteSuccess(w, building)
}

func (h *BuildingHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParamOrError(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.server.store.GetBuilding(r.Context(), id); err != nil {
		writeStorageError(w, r, err, "Apartment not found")
		return
	}
	if err := h.server.store.DeleteBuilding(r.Context(), id); err != nil {
		writeStorageError(w, r, err, "Apartment not found")
		return
	}

	h.server.invalidate(r.Context(), cacheApartments, "/api/apartment-buildings")
	httputil.WriteMessage(w, http.StatusOK, "Apartment deleted successfully")
}
