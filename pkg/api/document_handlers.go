package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/kidega/apartments/pkg/authz"
	"github.com/kidega/apartments/pkg/documents"
	"github.com/kidega/apartments/pkg/httputil"
	"github.com/kidega/apartments/pkg/middleware"
	"github.com/kidega/apartments/pkg/observability"
)

// maxUploadBytes bounds multipart uploads at 20 MiB.
const maxUploadBytes = 20 << 20

// expiringWindow is how far ahead the expiring listing looks.
const expiringWindow = 30 * 24 * time.Hour

// DocumentHandlers serves the /api/documents endpoints.
type DocumentHandlers struct {
	server *Server
	files  *documents.FileStore
}

// RegisterRoutes mounts the document endpoints.
func (h *DocumentHandlers) RegisterRoutes(router *mux.Router, authed mux.MiddlewareFunc) {
	s := h.server
	sub := router.PathPrefix("/api/documents").Subrouter()
	sub.Use(authed)

	sub.Handle("", s.gate(authz.ResourceDocument, authz.ActionCreate)(
		http.HandlerFunc(h.upload))).Methods("POST")
	sub.Handle("", s.gate(authz.ResourceDocument, authz.ActionRead)(
		http.HandlerFunc(h.list))).Methods("GET")
	sub.Handle("/expiring", middleware.RequireRole("admin", "manager")(
		http.HandlerFunc(h.listExpiring))).Methods("GET")
	sub.Handle("/download/{id}", s.gate(authz.ResourceDocument, authz.ActionRead)(
		http.HandlerFunc(h.download))).Methods("GET")
	sub.Handle("/{id}/versions", s.gate(authz.ResourceDocument, authz.ActionUpdate)(
		http.HandlerFunc(h.uploadVersion))).Methods("POST")
	sub.Handle("/{id}", s.gate(authz.ResourceDocument, authz.ActionRead)(
		http.HandlerFunc(h.get))).Methods("GET")
	sub.Handle("/{id}", s.gate(authz.ResourceDocument, authz.ActionUpdate)(
		http.HandlerFunc(h.update))).Methods("PUT")
	sub.Handle("/{id}", s.gate(authz.ResourceDocument, authz.ActionDelete)(
		http.HandlerFunc(h.delete))).Methods("DELETE")
}

// loadDocument fetches the document and applies the given predicate,
// writing the error response itself on failure.
func (h *DocumentHandlers) loadDocument(w http.ResponseWriter, r *http.Request,
	allow func(*Document) (bool, error)) (*Document, bool) {
	doc, err := h.server.store.GetDocument(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		writeStorageError(w, r, err, "Document not found")
		return nil, false
	}
	allowed, err := allow(doc)
	if err != nil {
		writeStorageError(w, r, err, "")
		return nil, false
	}
	if !allowed {
		httputil.WriteForbidden(w, "Insufficient permissions")
		return nil, false
	}
	return doc, true
}

// parseUpload reads the multipart form shared by upload and
// uploadVersion. The file part is required.
func (h *DocumentHandlers) parseUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteBadRequest(w, "Invalid multipart form")
		return nil, nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "File is required")
		return nil, nil, false
	}
	return file, header, true
}

func (h *DocumentHandlers) upload(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	file, header, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	buildingID := r.FormValue("building")
	tenantID := r.FormValue("tenant")
	unitID := r.FormValue("unit")

	if caller.IsManager() && buildingID != "" {
		manages, err := h.server.checker.ManagesBuilding(r.Context(), caller, buildingID)
		if err != nil {
			writeStorageError(w, r, err, "")
			return
		}
		if !manages {
			httputil.WriteForbidden(w, "You can only upload documents for your own building")
			return
		}
	}

	var expiry *time.Time
	if v := r.FormValue("expiryDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteBadRequest(w, "Invalid expiryDate, expected RFC 3339")
			return
		}
		expiry = &t
	}

	path, size, err := h.files.Save(file, header.Filename)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}

	doc := &Document{
		ID:          uuid.NewString(),
		Name:        name,
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		FilePath:    path,
		FileType:    header.Header.Get("Content-Type"),
		Size:        size,
		TenantID:    tenantID,
		BuildingID:  buildingID,
		UnitID:      unitID,
		Status:      DocumentActive,
		Version:     1,
		IsActive:    true,
		ExpiryDate:  expiry,
		UploadedBy:  caller.UserID,
	}
	if err := h.server.store.CreateDocument(r.Context(), doc); err != nil {
		// Keep disk and database consistent when the insert fails.
		if rerr := h.files.Remove(path); rerr != nil {
			observability.FromContext(r.Context()).WithError(rerr).Error("failed to remove orphaned document file")
		}
		writeStorageError(w, r, err, "")
		return
	}

	h.server.invalidateTenants(r.Context(), doc.TenantID)
	httputil.WriteCreated(w, doc)
}

func (h *DocumentHandlers) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var (
		docs []*Document
		err  error
	)
	switch {
	case caller.IsAdmin():
		docs, err = h.server.store.ListDocuments(r.Context())
	case caller.IsTenant():
		docs, err = h.server.store.ListDocumentsByTenant(r.Context(), caller.UserID)
	default:
		var building *Building
		building, err = h.server.checker.ManagedBuilding(r.Context(), caller)
		if err == nil {
			var buildingIDs []string
			if building != nil {
				buildingIDs = []string{building.ID}
			}
			docs, err = h.server.store.ListDocumentsByBuildings(r.Context(), buildingIDs, caller.UserID)
		}
	}
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, docs)
}

func (h *DocumentHandlers) listExpiring(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	deadline := time.Now().Add(expiringWindow)
	docs, err := h.server.store.ListExpiringDocuments(r.Context(), deadline)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	if caller.IsAdmin() {
		httputil.WriteSuccess(w, docs)
		return
	}

	// Managers only see their own slice of the expiring set.
	visible := make([]*Document, 0, len(docs))
	for _, doc := range docs {
		allowed, err := h.server.checker.CanViewDocument(r.Context(), caller, doc)
		if err != nil {
			writeStorageError(w, r, err, "")
			return
		}
		if allowed {
			visible = append(visible, doc)
		}
	}
	httputil.WriteSuccess(w, visible)
}

func (h *DocumentHandlers) get(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	doc, ok := h.loadDocument(w, r, func(d *Document) (bool, error) {
		return h.server.checker.CanViewDocument(r.Context(), caller, d)
	})
	if !ok {
		return
	}
	httputil.WriteSuccess(w, doc)
}

func (h *DocumentHandlers) download(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	doc, ok := h.loadDocument(w, r, func(d *Document) (bool, error) {
		return h.server.checker.CanViewDocument(r.Context(), caller, d)
	})
	if !ok {
		return
	}

	f, err := h.files.Open(doc.FilePath)
	if err != nil {
		writeStorageError(w, r, err, "Document file not found")
		return
	}
	defer f.Close()

	if doc.FileType != "" {
		w.Header().Set("Content-Type", doc.FileType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	if _, err := io.Copy(w, f); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to stream document file")
	}
}

type updateDocumentRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Category    *string         `json:"category"`
	Status      *DocumentStatus `json:"status"`
	ExpiryDate  *time.Time      `json:"expiryDate"`
	TenantID    *string         `json:"tenant"`
	BuildingID  *string         `json:"building"`
	UnitID      *string         `json:"unit"`
}

func (h *DocumentHandlers) update(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	doc, ok := h.loadDocument(w, r, func(d *Document) (bool, error) {
		return h.server.checker.CanEditDocument(r.Context(), caller, d)
	})
	if !ok {
		return
	}

	var req updateDocumentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name != nil {
		doc.Name = *req.Name
	}
	if req.Description != nil {
		doc.Description = *req.Description
	}
	if req.Category != nil {
		doc.Category = *req.Category
	}
	if req.Status != nil {
		doc.Status = *req.Status
	}
	if req.ExpiryDate != nil {
		doc.ExpiryDate = req.ExpiryDate
	}

	// Reassigning a document to another tenant, building or unit is an
	// admin action; a manager could otherwise move it out of their scope.
	if req.TenantID != nil || req.BuildingID != nil || req.UnitID != nil {
		if !caller.IsAdmin() {
			httputil.WriteForbidden(w, "Only admins can reassign documents")
			return
		}
		if req.TenantID != nil {
			doc.TenantID = *req.TenantID
		}
		if req.BuildingID != nil {
			doc.BuildingID = *req.BuildingID
		}
		if req.UnitID != nil {
			doc.UnitID = *req.UnitID
		}
	}

	if err := h.server.store.UpdateDocument(r.Context(), doc); err != nil {
		writeStorageError(w, r, err, "Document not found")
		return
	}

	h.server.invalidateTenants(r.Context(), doc.TenantID)
	httputil.WriteSuccess(w, doc)
}

func (h *DocumentHandlers) delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	doc, ok := h.loadDocument(w, r, func(d *Document) (bool, error) {
		return h.server.checker.CanEditDocument(r.Context(), caller, d)
	})
	if !ok {
		return
	}

	if err := h.server.store.DeleteDocument(r.Context(), doc.ID); err != nil {
		writeStorageError(w, r, err, "Document not found")
		return
	}
	if err := h.files.Remove(doc.FilePath); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to remove document file")
	}

	h.server.invalidateTenants(r.Context(), doc.TenantID)
	httputil.WriteMessage(w, http.StatusOK, "Document deleted successfully")
}

func (h *DocumentHandlers) uploadVersion(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	current, ok := h.loadDocument(w, r, func(d *Document) (bool, error) {
		return h.server.checker.CanEditDocument(r.Context(), caller, d)
	})
	if !ok {
		return
	}

	file, header, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	path, size, err := h.files.Save(file, header.Filename)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}

	next := &Document{
		ID:          uuid.NewString(),
		Name:        current.Name,
		Description: current.Description,
		Category:    current.Category,
		FilePath:    path,
		FileType:    header.Header.Get("Content-Type"),
		Size:        size,
		TenantID:    current.TenantID,
		BuildingID:  current.BuildingID,
		UnitID:      current.UnitID,
		Status:      DocumentActive,
		Version:     current.Version + 1,
		IsActive:    true,
		ExpiryDate:  current.ExpiryDate,
		UploadedBy:  caller.UserID,
	}
	if err := h.server.store.CreateDocument(r.Context(), next); err != nil {
		if rerr := h.files.Remove(path); rerr != nil {
			observability.FromContext(r.Context()).WithError(rerr).Error("failed to remove orphaned document file")
		}
		writeStorageError(w, r, err, "")
		return
	}

	// The superseded version stays on disk for download but stops being
	// the active document.
	current.IsActive = false
	current.Status = DocumentArchived
	if err := h.server.store.UpdateDocument(r.Context(), current); err != nil {
		writeStorageError(w, r, err, "Document not found")
		return
	}

	h.server.invalidateTenants(r.Context(), next.TenantID)
	httputil.WriteCreated(w, next)
}
