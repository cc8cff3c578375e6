package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/kidega/apartments/pkg/authz"
	"github.com/kidega/apartments/pkg/httputil"
)

// PaymentHandlers serves the /api/payments endpoints.
type PaymentHandlers struct {
	server *Server
}

// RegisterRoutes mounts the payment endpoints. The listing stays
// uncached because each role sees a different slice of the data.
func (h *PaymentHandlers) RegisterRoutes(router *mux.Router, authed mux.MiddlewareFunc) {
	s := h.server
	sub := router.PathPrefix("/api/payments").Subrouter()
	sub.Use(authed)

	sub.Handle("", s.gate(authz.ResourcePayment, authz.ActionCreate)(
		http.HandlerFunc(h.create))).Methods("POST")
	sub.Handle("", s.gate(authz.ResourcePayment, authz.ActionRead)(
		http.HandlerFunc(h.list))).Methods("GET")
	sub.Handle("/{id}", s.gate(authz.ResourcePayment, authz.ActionRead)(
		h.guardPayment(s.cached(cachePayments, 0, h.get)))).Methods("GET")
	sub.Handle("/{id}", s.gate(authz.ResourcePayment, authz.ActionUpdate)(
		http.HandlerFunc(h.update))).Methods("PUT")
}

// guardPayment applies CanViewPayment before the cache sees the request.
func (h *PaymentHandlers) guardPayment(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := identity(w, r)
		if !ok {
			return
		}
		payment, err := h.server.store.GetPayment(r.Context(), httputil.PathParam(r, "id"))
		if err != nil {
			writeStorageError(w, r, err, "Payment not found")
			return
		}
		allowed, err := h.server.checker.CanViewPayment(r.Context(), caller, payment)
		if err != nil {
			writeStorageError(w, r, err, "")
			return
		}
		if !allowed {
			httputil.WriteForbidden(w, "Insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type paymentRequest struct {
	TenantID  string        `json:"tenant"`
	UnitID    string        `json:"unit"`
	Type      PaymentType   `json:"type"`
	Status    PaymentStatus `json:"status"`
	Amount    float64       `json:"amount"`
	Method    string        `json:"method"`
	Reference string        `json:"reference"`
}

func validPaymentType(t PaymentType) bool {
	switch t {
	case PaymentRent, PaymentUtility, PaymentDeposit, PaymentOther:
		return true
	}
	return false
}

func validPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

func (h *PaymentHandlers) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.TenantID == "" || req.UnitID == "" {
		httputil.WriteBadRequest(w, "Tenant and unit are required")
		return
	}
	if req.Amount <= 0 {
		httputil.WriteBadRequest(w, "Amount must be greater than zero")
		return
	}
	if !validPaymentType(req.Type) {
		httputil.WriteBadRequest(w, "Invalid payment type")
		return
	}
	if req.Status == "" {
		req.Status = PaymentPending
	}
	if !validPaymentStatus(req.Status) {
		httputil.WriteBadRequest(w, "Invalid payment status")
		return
	}

	manages, err := h.server.checker.ManagesUnit(r.Context(), caller, req.UnitID)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	if !manages {
		httputil.WriteForbidden(w, "You can only record payments for units you manage")
		return
	}

	unit, err := h.server.store.GetUnit(r.Context(), req.UnitID)
	if err != nil {
		writeStorageError(w, r, err, "Unit not found")
		return
	}
	onUnit := false
	for _, tid := range unit.TenantIDs {
		if tid == req.TenantID {
			onUnit = true
			break
		}
	}
	if !onUnit {
		httputil.WriteBadRequest(w, "Tenant is not assigned to this unit")
		return
	}

	payment := &Payment{
		ID:         uuid.NewString(),
		TenantID:   req.TenantID,
		UnitID:     req.UnitID,
		Type:       req.Type,
		Status:     req.Status,
		Amount:     req.Amount,
		Method:     req.Method,
		Reference:  req.Reference,
		RecordedBy: caller.UserID,
	}
	if err := h.server.store.CreatePayment(r.Context(), payment); err != nil {
		writeStorageError(w, r, err, "")
		return
	}

	h.server.invalidateTenants(r.Context(), payment.TenantID)
	httputil.WriteCreated(w, payment)
}

func (h *PaymentHandlers) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var (
		payments []*Payment
		err      error
	)
	switch {
	case caller.IsAdmin():
		payments, err = h.server.store.ListPayments(r.Context())
	case caller.IsTenant():
		payments, err = h.server.store.ListPaymentsByTenant(r.Context(), caller.UserID)
	default:
		var unitIDs []string
		unitIDs, err = h.server.checker.ManagedUnitIDs(r.Context(), caller)
		if err == nil {
			payments, err = h.server.store.ListPaymentsByUnits(r.Context(), unitIDs)
		}
	}
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, payments)
}

func (h *PaymentHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParamOrError(w, r, "id")
	if !ok {
		return
	}
	payment, err := h.server.store.GetPayment(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err, "Payment not found")
		return
	}
	httputil.WriteSuccess(w, payment)
}

func (h *PaymentHandlers) update(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathParamOrError(w, r, "id")
	if !ok {
		return
	}

	payment, err := h.server.store.GetPayment(r.Context(), id)
	if err != nil {
		writeStorageError(w, r, err, "Payment not found")
		return
	}
	manages, err := h.server.checker.ManagesUnit(r.Context(), caller, payment.UnitID)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	if !manages {
		httputil.WriteForbidden(w, "You can only update payments for units you manage")
		return
	}

	var req paymentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Amount != 0 {
		if req.Amount < 0 {
			httputil.WriteBadRequest(w, "Amount must be greater than zero")
			return
		}
		payment.Amount = req.Amount
	}
	if req.Type != "" {
		if !validPaymentType(req.Type) {
			httputil.WriteBadRequest(w, "Invalid payment type")
			return
		}
		payment.Type = req.Type
	}
	if req.Status != "" {
		if !validPaymentStatus(req.Status) {
			httputil.WriteBadRequest(w, "Invalid payment status")
			return
		}
		payment.Status = req.Status
	}
	if req.Method != "" {
		payment.Method = req.Method
	}
	if req.Reference != "" {
		payment.Reference = req.Reference
	}

	if err := h.server.store.UpdatePayment(r.Context(), payment); err != nil {
		writeStorageError(w, r, err, "Payment not found")
		return
	}

	h.server.invalidate(r.Context(), cachePayments, "/api/payments/"+payment.ID)
	h.server.invalidateTenants(r.Context(), payment.TenantID)
	httputil.WriteSuccess(w, payment)
}
