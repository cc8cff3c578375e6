package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/kidega/apartments/pkg/auth"
	"github.com/kidega/apartments/pkg/httputil"
	"github.com/kidega/apartments/pkg/middleware"
	"github.com/kidega/apartments/pkg/observability"
	"github.com/kidega/apartments/pkg/storage"
)

const refreshCookieName = "refreshToken"

// AuthHandlers serves login, registration, token refresh and account
// provisioning.
type AuthHandlers struct {
	server  *Server
	limiter *middleware.RateLimiter
}

// RegisterRoutes mounts the auth endpoints. Login and register share
// the rate limiter budget; everything else under /api/auth requires a
// valid access token.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, authed mux.MiddlewareFunc) {
	router.Handle("/api/auth/login",
		h.limiter.Middleware("login")(http.HandlerFunc(h.login))).Methods("POST")
	router.Handle("/api/auth/register",
		h.limiter.Middleware("register")(http.HandlerFunc(h.register))).Methods("POST")
	router.HandleFunc("/api/auth/refresh-token", h.refreshToken).Methods("POST")
	router.HandleFunc("/api/auth/logout", h.logout).Methods("POST")

	sub := router.PathPrefix("/api/auth").Subrouter()
	sub.Use(authed)
	sub.Handle("/create-manager",
		middleware.RequireRole("admin")(http.HandlerFunc(h.createManager))).Methods("POST")
	sub.Handle("/create-tenant",
		middleware.RequireRole("manager")(http.HandlerFunc(h.createTenant))).Methods("POST")
	sub.HandleFunc("/profile", h.profile).Methods("GET")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  loginUser `json:"user"`
}

type loginUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	logger := observability.FromContext(r.Context()).WithField("username", req.Username)
	fail := func(reason string) {
		// The client always sees the same message; only the log says why.
		logger.WithField("reason", reason).Warn("failed login")
		h.server.metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		httputil.WriteUnauthorized(w, "Invalid credentials")
	}

	user, err := h.server.store.GetUserByUsername(r.Context(), req.Username)
	if errors.Is(err, storage.ErrNotFound) {
		fail("user not found")
		return
	}
	if err != nil {
		writeStorageError(w, r, err, "User not found")
		return
	}
	if !user.IsActive {
		fail("account inactive")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		fail("wrong password")
		return
	}

	accessToken, err := h.server.tokens.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	refreshToken, err := h.server.tokens.GenerateRefreshToken(user.ID, user.Role)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     "/api/auth",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.server.tokens.RefreshTTL().Seconds()),
	})

	logger.WithField("role", user.Role).Info("successful login")
	h.server.metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	httputil.WriteSuccess(w, loginResponse{
		Token: accessToken,
		User:  loginUser{ID: user.ID, Username: user.Username, Role: user.Role},
	})
}

func (h *AuthHandlers) refreshToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		httputil.WriteUnauthorized(w, "No refresh token provided")
		return
	}

	claims, err := h.server.tokens.ValidateToken(cookie.Value, auth.TokenTypeRefresh)
	if err != nil {
		httputil.WriteForbidden(w, "Invalid or expired refresh token")
		return
	}

	accessToken, err := h.server.tokens.GenerateAccessToken(claims.UserID, claims.Role)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, map[string]string{"token": accessToken})
}

func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/api/auth",
		HttpOnly: true,
		MaxAge:   -1,
	})
	httputil.WriteMessage(w, http.StatusOK, "Logged out successfully")
}

type registerRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone_number"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "Username and password are required")
		return
	}
	if err := auth.ValidateUsername(req.Username); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		httputil.WriteBadRequest(w, "Password must be at least 8 characters, include a number and an uppercase letter.")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}

	// Open registration only ever creates tenant accounts; privileged
	// roles are provisioned through create-manager and admin-create.
	user := &User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         RoleTenant,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		IsActive:     true,
	}
	if err := h.server.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			httputil.WriteConflict(w, "Username already exists")
			return
		}
		writeStorageError(w, r, err, "")
		return
	}

	httputil.WriteMessage(w, http.StatusCreated, "User registered successfully")
}

type createAccountRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone_number"`
}

func (h *AuthHandlers) createManager(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req createAccountRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "Username and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}

	manager := &User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         RoleManager,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		IsActive:     true,
		CreatedBy:    caller.UserID,
	}
	if err := h.server.store.CreateUser(r.Context(), manager); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			httputil.WriteConflict(w, "Username already exists")
			return
		}
		writeStorageError(w, r, err, "")
		return
	}

	h.server.invalidate(r.Context(), cacheUsers, "/api/users")
	httputil.WriteCreated(w, map[string]interface{}{
		"message": "Manager created successfully",
		"manager": loginUser{ID: manager.ID, Username: manager.Username, Role: manager.Role},
	})
}

type createTenantRequest struct {
	createAccountRequest
	UnitID     string     `json:"unitId"`
	LeaseStart *time.Time `json:"lease_start"`
	LeaseEnd   *time.Time `json:"lease_end"`
}

func (h *AuthHandlers) createTenant(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req createTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" || req.UnitID == "" {
		httputil.WriteBadRequest(w, "Username, password and unitId are required")
		return
	}

	unit, err := h.server.store.GetUnit(r.Context(), req.UnitID)
	if err != nil {
		writeStorageError(w, r, err, "Unit not found")
		return
	}
	manages, err := h.server.checker.ManagesBuilding(r.Context(), caller, unit.BuildingID)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}
	if !manages {
		httputil.WriteForbidden(w, "You can only assign tenants to units you manage")
		return
	}
	if unit.IsOccupied {
		httputil.WriteBadRequest(w, "Unit already occupied")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeStorageError(w, r, err, "")
		return
	}

	tenant := &User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         RoleTenant,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		IsActive:     true,
		CreatedBy:    caller.UserID,
	}
	if err := h.server.store.CreateUser(r.Context(), tenant); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			httputil.WriteConflict(w, "Username already exists")
			return
		}
		writeStorageError(w, r, err, "")
		return
	}

	if err := h.server.store.AssignTenant(r.Context(), unit.ID, tenant.ID, req.LeaseStart, req.LeaseEnd); err != nil {
		writeStorageError(w, r, err, "Unit not found")
		return
	}

	h.server.invalidateUnitKeys(r.Context(), tenant.ID)
	h.server.invalidate(r.Context(), cacheUsers, "/api/users")
	httputil.WriteCreated(w, map[string]interface{}{
		"message": "Tenant created and assigned to unit successfully",
		"tenant":  loginUser{ID: tenant.ID, Username: tenant.Username, Role: tenant.Role},
	})
}

func (h *AuthHandlers) profile(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	user, err := h.server.store.GetUser(r.Context(), caller.UserID)
	if err != nil {
		writeStorageError(w, r, err, "User not found")
		return
	}
	httputil.WriteSuccess(w, user)
}
