package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/kidega/apartments/pkg/authz"
	"github.com/kidega/apartments/pkg/httputil"
	"github.com/kidega/apartments/pkg/observability"
	"github.com/kidega/apartments/pkg/receipts"
	"github.com/kidega/apartments/pkg/storage"
)

// ReceiptHandlers serves the /api/receipts endpoints.
type ReceiptHandlers struct {
	server *Server
}

// RegisterRoutes mounts the receipt endpoints.
func (h *ReceiptHandlers) RegisterRoutes(router *mux.Router, authed mux.MiddlewareFunc) {
	s := h.server
	sub := router.PathPrefix("/api/receipts").Subrouter()
	sub.Use(authed)

	sub.Handle("", s.gate(authz.ResourceReceipt, authz.ActionCreate)(
		http.HandlerFunc(h.create))).Methods("POST")
	sub.Handle("", s.gate(authz.ResourceReceipt, authz.ActionRead)(
		http.HandlerFunc(h.list))).Methods("GET")
	sub.Handle("/{id}/download", s.gate(authz.ResourceReceipt, authz.ActionRead)(
		http.HandlerFunc(h.download))).Methods("GET")
	sub.Handle("/{id}", s.gate(authz.ResourceReceipt, authz.ActionRead)(
		h.guardReceipt(s.cached(cacheReceipts, 0, h.get)))).Methods("GET")
}

// loadReceipt fetches the receipt and applies CanViewReceipt, writing
// the error response itself on failure.
func (h *ReceiptHandlers) loadReceipt(w http.ResponseWriter, r *http.Request) (*Receipt, bool) {
	caller, ok := identity(w, r)
	if !ok {
		return nil, false
	}
	receipt, err := h.server.store.GetReceipt(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		writeStorageError(w, r, err, "Receipt not found")
		return nil, false
	}
	allowed, err := h.server.checker.CanViewReceipt(r.Context(), caller, receipt)
	if err != nil {
		writeStorageError(w, r, err, "")
		return nil, false
	}
	if !allowed {
		httputil.WriteForbidden(w, "Insufficient permissions")
		return nil, false
	}
	return receipt, true
}

func (h *ReceiptHandlers) guardReceipt(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.loadReceipt(w, r); !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

type receiptRequest struct {
	PaymentID string `json:"paymentId"`
	Notes     string `json:"notes"`
}

func (h *ReceiptHandlers) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req receiptRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.PaymentID == "" {
		httputil.WriteBadRequest(w, "paymentId is required")
		return
	}

	payment, err := h.server.store.GetPayment(r.Context(), req.PaymentID)
	if err != nil {
		writeStorageError(w, r, err, "Payment not found")
		return
	}
	if payment.Status != PaymentCompleted {
		httputil.WriteBadRequest(w, "Receipts can only be issued for completed payments")
		return
	}
	if caller.IsManager() {
		manages, err := h.server.checker.ManagesUnit(r.Context(), caller, payment.UnitID)
		if err != nil {
			writeStorageError(w, r, err, "")
			return
		}
		if !manages {
			httputil.WriteForbidden(w, "You can only issue receipts for units you manage")
			return
		}
	}
	if caller.IsTenant() && payment.TenantID != caller.UserID {
		httputil.WriteForbidden(w, "You can only request receipts for your own payments")
		return
	}

	// Payment fields are copied at issuance so later edits to the
	// payment row never change an issued receipt.
	receipt := &Receipt{
		ID:        uuid.NewString(),
		PaymentID: payment.ID,
		IssuedTo:  payment.TenantID,
		UnitID:    payment.UnitID,
		Amount:    payment.Amount,
		Type:      payment.Type,
		Method:    payment.Method,
		Reference: payment.Reference,
		Notes:     req.Notes,
		CreatedBy: caller.UserID,
	}
	if err := h.server.store.CreateReceipt(r.Context(), receipt); err != nil {
		if errors.Is(err, storage.ErrDuplicateReceipt) {
			httputil.WriteConflict(w, "A receipt already exists for this payment")
			return
		}
		writeStorageError(w, r, err, "")
		return
	}

	h.server.metrics.ReceiptsIssuedTotal.Inc()
	h.server.invalidateTenants(r.Context(), receipt.IssuedTo)
	httputil.WriteCreated(w, receipt)
}

func (h *ReceiptHandlers) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var (
		list []*Receipt
		err  error
	)
	switch {
	case caller.IsAdmin():
		list, err = h.server.store.ListReceipts(r.Context())
	case caller.IsTenant():
		list, err = h.server.store.ListReceiptsByTenant(r.Context(), caller.UserID)
	default:
		var unitIDs []string
		unitIDs, err = h.server.checker.ManagedUnitIDs(r.Context(), caller)
		if err == nil {
			list, err = h.server.store.ListReceiptsByUnits(r.Context(), unitIDs)
		}
	}
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, list)
}

func (h *ReceiptHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParamOrError(w, r, "id")
	if !ok {
		return
	}
	receipt, err := h.server.store.GetReceipt(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err, "Receipt not found")
		return
	}
	httputil.WriteSuccess(w, receipt)
}

func (h *ReceiptHandlers) download(w http.ResponseWriter, r *http.Request) {
	receipt, ok := h.loadReceipt(w, r)
	if !ok {
		return
	}

	// Missing tenant or unit rows degrade to blank PDF fields.
	tenant, err := h.server.store.GetUser(r.Context(), receipt.IssuedTo)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeStorageError(w, r, err, "")
		return
	}
	var unit *Unit
	if receipt.UnitID != "" {
		unit, err = h.server.store.GetUnit(r.Context(), receipt.UnitID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			writeStorageError(w, r, err, "")
			return
		}
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s.pdf", receipt.ReceiptNumber))
	if err := receipts.RenderPDF(w, receipt, tenant, unit); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to render receipt PDF")
	}
}
