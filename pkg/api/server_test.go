package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidega/apartments/pkg/auth"
	"github.com/kidega/apartments/pkg/cache"
	"github.com/kidega/apartments/pkg/documents"
	"github.com/kidega/apartments/pkg/observability"
	"github.com/kidega/apartments/pkg/storage"
)

// fakeStore is an in-memory storage.Store for handler tests.
type fakeStore struct {
	users     map[string]*User
	buildings map[string]*Building
	units     map[string]*Unit
	payments  map[string]*Payment
	receipts  map[string]*Receipt
	documents map[string]*Document
	seq       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]*User),
		buildings: make(map[string]*Building),
		units:     make(map[string]*Unit),
		payments:  make(map[string]*Payment),
		receipts:  make(map[string]*Receipt),
		documents: make(map[string]*Document),
	}
}

func (f *fakeStore) CreateUser(_ context.Context, u *User) error {
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return storage.ErrConflict
		}
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListUsers(_ context.Context) ([]*User, error) {
	out := make([]*User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeStore) ListTenantsByUnits(_ context.Context, unitIDs []string) ([]*User, error) {
	in := make(map[string]bool, len(unitIDs))
	for _, id := range unitIDs {
		in[id] = true
	}
	var out []*User
	for _, u := range f.users {
		if u.Role == RoleTenant && in[u.UnitID] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, u *User) error {
	if _, ok := f.users[u.ID]; !ok {
		return storage.ErrNotFound
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) CreateBuilding(_ context.Context, b *Building) error {
	for _, existing := range f.buildings {
		if b.ManagerID != "" && existing.ManagerID == b.ManagerID {
			return storage.ErrDuplicateManager
		}
	}
	f.buildings[b.ID] = b
	return nil
}

func (f *fakeStore) GetBuilding(_ context.Context, id string) (*Building, error) {
	b, ok := f.buildings[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) GetBuildingByManager(_ context.Context, managerID string) (*Building, error) {
	for _, b := range f.buildings {
		if b.ManagerID == managerID {
			return b, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListBuildings(_ context.Context) ([]*Building, error) {
	out := make([]*Building, 0, len(f.buildings))
	for _, b := range f.buildings {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) UpdateBuilding(_ context.Context, b *Building) error {
	current, ok := f.buildings[b.ID]
	if !ok {
		return storage.ErrNotFound
	}
	for _, other := range f.buildings {
		if other.ID != b.ID && b.ManagerID != "" && other.ManagerID == b.ManagerID {
			return storage.ErrDuplicateManager
		}
	}
	b.TotalUnits = current.TotalUnits
	f.buildings[b.ID] = b
	return nil
}

func (f *fakeStore) DeleteBuilding(_ context.Context, id string) error {
	if _, ok := f.buildings[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.buildings, id)
	return nil
}

func (f *fakeStore) CreateUnit(_ context.Context, u *Unit) error {
	b, ok := f.buildings[u.BuildingID]
	if !ok {
		return storage.ErrNotFound
	}
	for _, existing := range f.units {
		if existing.BuildingID == u.BuildingID && existing.UnitNumber == u.UnitNumber {
			return storage.ErrConflict
		}
	}
	f.units[u.ID] = u
	b.TotalUnits++
	return nil
}

func (f *fakeStore) GetUnit(_ context.Context, id string) (*Unit, error) {
	u, ok := f.units[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) ListUnits(_ context.Context) ([]*Unit, error) {
	out := make([]*Unit, 0, len(f.units))
	for _, u := range f.units {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeStore) ListUnitsByBuilding(_ context.Context, buildingID string) ([]*Unit, error) {
	var out []*Unit
	for _, u := range f.units {
		if u.BuildingID == buildingID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) GetUnitByTenant(_ context.Context, tenantID string) (*Unit, error) {
	for _, u := range f.units {
		for _, tid := range u.TenantIDs {
			if tid == tenantID {
				return u, nil
			}
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) UpdateUnit(_ context.Context, u *Unit) error {
	if _, ok := f.units[u.ID]; !ok {
		return storage.ErrNotFound
	}
	f.units[u.ID] = u
	return nil
}

func (f *fakeStore) DeleteUnit(_ context.Context, id string) error {
	u, ok := f.units[id]
	if !ok {
		return storage.ErrNotFound
	}
	if b, ok := f.buildings[u.BuildingID]; ok {
		b.TotalUnits--
	}
	delete(f.units, id)
	return nil
}

func (f *fakeStore) AssignTenant(_ context.Context, unitID, tenantID string, leaseStart, leaseEnd *time.Time) error {
	u, ok := f.units[unitID]
	if !ok {
		return storage.ErrNotFound
	}
	for _, tid := range u.TenantIDs {
		if tid == tenantID {
			return nil
		}
	}
	if u.IsOccupied {
		return storage.ErrUnitOccupied
	}
	u.TenantIDs = append(u.TenantIDs, tenantID)
	u.IsOccupied = true
	u.Status = UnitOccupied
	if tenant, ok := f.users[tenantID]; ok {
		tenant.UnitID = unitID
		tenant.TenantDetails = &TenantDetails{
			BuildingID: u.BuildingID,
			UnitID:     unitID,
			LeaseStart: leaseStart,
			LeaseEnd:   leaseEnd,
		}
	}
	return nil
}

func (f *fakeStore) CreatePayment(_ context.Context, p *Payment) error {
	f.payments[p.ID] = p
	return nil
}

func (f *fakeStore) GetPayment(_ context.Context, id string) (*Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListPayments(_ context.Context) ([]*Payment, error) {
	out := make([]*Payment, 0, len(f.payments))
	for _, p := range f.payments {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) ListPaymentsByTenant(_ context.Context, tenantID string) ([]*Payment, error) {
	var out []*Payment
	for _, p := range f.payments {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPaymentsByUnits(_ context.Context, unitIDs []string) ([]*Payment, error) {
	in := make(map[string]bool, len(unitIDs))
	for _, id := range unitIDs {
		in[id] = true
	}
	var out []*Payment
	for _, p := range f.payments {
		if in[p.UnitID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdatePayment(_ context.Context, p *Payment) error {
	if _, ok := f.payments[p.ID]; !ok {
		return storage.ErrNotFound
	}
	f.payments[p.ID] = p
	return nil
}

func (f *fakeStore) CreateReceipt(_ context.Context, r *Receipt) error {
	for _, existing := range f.receipts {
		if existing.PaymentID == r.PaymentID {
			return storage.ErrDuplicateReceipt
		}
	}
	f.seq++
	r.ReceiptNumber = fmt.Sprintf("RCT-%06d", f.seq)
	r.IssuedAt = time.Now()
	f.receipts[r.ID] = r
	return nil
}

func (f *fakeStore) GetReceipt(_ context.Context, id string) (*Receipt, error) {
	r, ok := f.receipts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ListReceipts(_ context.Context) ([]*Receipt, error) {
	out := make([]*Receipt, 0, len(f.receipts))
	for _, r := range f.receipts {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) ListReceiptsByTenant(_ context.Context, tenantID string) ([]*Receipt, error) {
	var out []*Receipt
	for _, r := range f.receipts {
		if r.IssuedTo == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListReceiptsByUnits(_ context.Context, unitIDs []string) ([]*Receipt, error) {
	in := make(map[string]bool, len(unitIDs))
	for _, id := range unitIDs {
		in[id] = true
	}
	var out []*Receipt
	for _, r := range f.receipts {
		if in[r.UnitID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateDocument(_ context.Context, d *Document) error {
	f.documents[d.ID] = d
	return nil
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (*Document, error) {
	d, ok := f.documents[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) ListDocuments(_ context.Context) ([]*Document, error) {
	out := make([]*Document, 0, len(f.documents))
	for _, d := range f.documents {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) ListDocumentsByBuildings(_ context.Context, buildingIDs []string, uploadedBy string) ([]*Document, error) {
	in := make(map[string]bool, len(buildingIDs))
	for _, id := range buildingIDs {
		in[id] = true
	}
	var out []*Document
	for _, d := range f.documents {
		if in[d.BuildingID] || d.UploadedBy == uploadedBy {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) ListDocumentsByTenant(_ context.Context, tenantID string) ([]*Document, error) {
	var out []*Document
	for _, d := range f.documents {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) ListExpiringDocuments(_ context.Context, deadline time.Time) ([]*Document, error) {
	var out []*Document
	for _, d := range f.documents {
		if d.IsActive && d.ExpiryDate != nil && d.ExpiryDate.Before(deadline) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateDocument(_ context.Context, d *Document) error {
	if _, ok := f.documents[d.ID]; !ok {
		return storage.ErrNotFound
	}
	f.documents[d.ID] = d
	return nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, id string) error {
	if _, ok := f.documents[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.documents, id)
	return nil
}

func (f *fakeStore) ExpireDocuments(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, d := range f.documents {
		if d.IsActive && d.ExpiryDate != nil && d.ExpiryDate.Before(now) {
			d.Status = DocumentExpired
			d.IsActive = false
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) HealthCheck(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                        { return nil }

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	server *Server
	store  *fakeStore
	tokens *auth.TokenManager
	redis  *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cacheClient := cache.NewClientWithRedis(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}), logger, metrics)

	files, err := documents.NewFileStore(t.TempDir())
	require.NoError(t, err)

	store := newFakeStore()
	tokens := auth.NewTokenManager(testSecret, 0, 0)

	server := NewServer(Options{
		Store:   store,
		Cache:   cacheClient,
		Tokens:  tokens,
		Files:   files,
		Logger:  logger,
		Metrics: metrics,
	})
	return &testEnv{server: server, store: store, tokens: tokens, redis: mr}
}

// seedUser inserts a user with a hashed password and returns it.
func (e *testEnv) seedUser(t *testing.T, username string, role Role, password string) *User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u := &User{
		ID:           "user-" + username,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) tokenFor(t *testing.T, u *User) string {
	t.Helper()
	token, err := e.tokens.GenerateAccessToken(u.ID, u.Role)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice", RoleAdmin, "Password1")

	t.Run("success sets refresh cookie", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/login", "",
			map[string]string{"username": "alice", "password": "Password1"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Token string `json:"token"`
			User  struct {
				ID   string `json:"id"`
				Role Role   `json:"role"`
			} `json:"user"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, user.ID, resp.User.ID)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "refreshToken", cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("wrong password is indistinguishable from unknown user", func(t *testing.T) {
		for _, body := range []map[string]string{
			{"username": "alice", "password": "nope"},
			{"username": "nobody", "password": "Password1"},
		} {
			rec := env.do(t, http.MethodPost, "/api/auth/login", "", body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "Invalid credentials")
		}
	})

	t.Run("inactive account rejected", func(t *testing.T) {
		u := env.seedUser(t, "gone", RoleTenant, "Password1")
		u.IsActive = false
		rec := env.do(t, http.MethodPost, "/api/auth/login", "",
			map[string]string{"username": "gone", "password": "Password1"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid credentials")
	})
}

func TestRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "bob", RoleManager, "Password1")

	t.Run("missing cookie", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/refresh-token", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "No refresh token provided")
	})

	t.Run("access token is not accepted as refresh token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh-token", nil)
		req.AddCookie(&http.Cookie{Name: "refreshToken", Value: env.tokenFor(t, user)})
		rec := httptest.NewRecorder()
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("valid refresh token yields new access token", func(t *testing.T) {
		refresh, err := env.tokens.GenerateRefreshToken(user.ID, user.Role)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh-token", nil)
		req.AddCookie(&http.Cookie{Name: "refreshToken", Value: refresh})
		rec := httptest.NewRecorder()
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "token")
	})
}

func TestRegisterForcesTenantRole(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": "carol", "password": "Password1", "role": "admin"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "User registered successfully")

	u, err := env.store.GetUserByUsername(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, RoleTenant, u.Role)

	t.Run("duplicate username", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/register", "",
			map[string]string{"username": "carol", "password": "Password1"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "Username already exists")
	})

	t.Run("weak password", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/register", "",
			map[string]string{"username": "dave", "password": "short"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthenticationRequired(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/apartment-buildings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBuildingAuthorization(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", RoleAdmin, "Password1")
	manager := env.seedUser(t, "mgr", RoleManager, "Password1")
	other := env.seedUser(t, "mgr2", RoleManager, "Password1")
	tenant := env.seedUser(t, "ten", RoleTenant, "Password1")

	rec := env.do(t, http.MethodPost, "/api/apartment-buildings", env.tokenFor(t, admin),
		map[string]interface{}{"name": "Westside", "address": "1 Main St", "manager": manager.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var building Building
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &building))

	t.Run("manager cannot create buildings", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/apartment-buildings", env.tokenFor(t, manager),
			map[string]interface{}{"name": "Eastside", "address": "2 Main St"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("tenant cannot read buildings", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/apartment-buildings/"+building.ID, env.tokenFor(t, tenant), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("manager reads own building only", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/apartment-buildings/"+building.ID, env.tokenFor(t, manager), nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodGet, "/api/apartment-buildings/"+building.ID, env.tokenFor(t, other), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("duplicate manager assignment conflicts and keeps first", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/apartment-buildings", env.tokenFor(t, admin),
			map[string]interface{}{"name": "Copy", "address": "3 Main St", "manager": manager.ID})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "already assigned to another building")

		got, err := env.store.GetBuildingByManager(context.Background(), manager.ID)
		require.NoError(t, err)
		assert.Equal(t, building.ID, got.ID)
	})
}

func TestCachedListHitAndInvalidation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", RoleAdmin, "Password1")
	token := env.tokenFor(t, admin)

	rec := env.do(t, http.MethodPost, "/api/apartment-buildings", token,
		map[string]interface{}{"name": "Westside", "address": "1 Main St"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var building Building
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &building))

	rec = env.do(t, http.MethodGet, "/api/apartment-units", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = env.do(t, http.MethodGet, "/api/apartment-units", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	// A query-string variant gets its own key.
	rec = env.do(t, http.MethodGet, "/api/apartment-units?status=available", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = env.do(t, http.MethodGet, "/api/apartment-units?status=available", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	// A unit mutation drops every list key, query variants included, so
	// the next reads miss and see the new row.
	rec = env.do(t, http.MethodPost, "/api/apartment-units", token,
		map[string]interface{}{"building": building.ID, "unitNumber": "101"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/apartment-units", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), "101")

	rec = env.do(t, http.MethodGet, "/api/apartment-units?status=available", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), "101")
}

func TestUnitCreateMaintainsTotalUnits(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", RoleAdmin, "Password1")
	token := env.tokenFor(t, admin)

	rec := env.do(t, http.MethodPost, "/api/apartment-buildings", token,
		map[string]interface{}{"name": "Westside", "address": "1 Main St"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var building Building
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &building))

	rec = env.do(t, http.MethodPost, "/api/apartment-units", token,
		map[string]interface{}{"building": building.ID, "unitNumber": "101"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var unit Unit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unit))

	b, err := env.store.GetBuilding(context.Background(), building.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.TotalUnits)

	t.Run("duplicate unit number conflicts", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/apartment-units", token,
			map[string]interface{}{"building": building.ID, "unitNumber": "101"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, 1, b.TotalUnits)
	})

	t.Run("delete decrements", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/apartment-units/"+unit.ID, token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, b.TotalUnits)
	})
}

func TestTenantScopedReads(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", RoleAdmin, "Password1")
	manager := env.seedUser(t, "mgr", RoleManager, "Password1")
	tenant := env.seedUser(t, "ten", RoleTenant, "Password1")
	stranger := env.seedUser(t, "other", RoleTenant, "Password1")
	adminToken := env.tokenFor(t, admin)

	rec := env.do(t, http.MethodPost, "/api/apartment-buildings", adminToken,
		map[string]interface{}{"name": "Westside", "address": "1 Main St", "manager": manager.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var building Building
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &building))

	rec = env.do(t, http.MethodPost, "/api/apartment-units", adminToken,
		map[string]interface{}{"building": building.ID, "unitNumber": "101"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var unit Unit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unit))

	rec = env.do(t, http.MethodPost, "/api/apartment-units/add-tenant", env.tokenFor(t, manager),
		map[string]interface{}{"unitId": unit.ID, "tenantId": tenant.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("tenant sees own unit", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/apartment-units/tenant", env.tokenFor(t, tenant), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), unit.ID)
	})

	t.Run("other tenant cannot read the unit", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/apartment-units/"+unit.ID, env.tokenFor(t, stranger), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("tenant cannot read another user", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/users/"+admin.ID, env.tokenFor(t, tenant), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("manager lists own tenants", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/users/manager-tenants", env.tokenFor(t, manager), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), tenant.ID)
		assert.NotContains(t, rec.Body.String(), stranger.ID)
	})
}

func TestPaymentsRoleFiltered(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", RoleAdmin, "Password1")
	manager := env.seedUser(t, "mgr", RoleManager, "Password1")
	tenant := env.seedUser(t, "ten", RoleTenant, "Password1")
	outsider := env.seedUser(t, "out", RoleTenant, "Password1")
	adminToken := env.tokenFor(t, admin)

	rec := env.do(t, http.MethodPost, "/api/apartment-buildings", adminToken,
		map[string]interface{}{"name": "Westside", "address": "1 Main St", "manager": manager.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var building Building
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &building))

	rec = env.do(t, http.MethodPost, "/api/apartment-units", adminToken,
		map[string]interface{}{"building": building.ID, "unitNumber": "101"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var unit Unit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unit))

	rec = env.do(t, http.MethodPost, "/api/apartment-units/add-tenant", env.tokenFor(t, manager),
		map[string]interface{}{"unitId": unit.ID, "tenantId": tenant.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("admin cannot record payments", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/payments", adminToken,
			map[string]interface{}{"tenant": tenant.ID, "unit": unit.ID, "type": "rent", "amount": 100})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/payments", env.tokenFor(t, manager),
			map[string]interface{}{"tenant": tenant.ID, "unit": unit.ID, "type": "rent", "amount": 0})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	rec = env.do(t, http.MethodPost, "/api/payments", env.tokenFor(t, manager),
		map[string]interface{}{"tenant": tenant.ID, "unit": unit.ID, "type": "rent", "amount": 750, "status": "completed"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var payment Payment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payment))

	t.Run("tenant sees only own payments", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/payments", env.tokenFor(t, tenant), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), payment.ID)

		rec = env.do(t, http.MethodGet, "/api/payments", env.tokenFor(t, outsider), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), payment.ID)
	})

	t.Run("manager sees building payments", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/payments", env.tokenFor(t, manager), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), payment.ID)
	})

	t.Run("receipt lifecycle", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/receipts", env.tokenFor(t, manager),
			map[string]interface{}{"paymentId": payment.ID})
		require.Equal(t, http.StatusCreated, rec.Code)
		var receipt Receipt
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
		assert.Equal(t, "RCT-000001", receipt.ReceiptNumber)
		assert.Equal(t, payment.Amount, receipt.Amount)

		// Second issuance for the same payment conflicts.
		rec = env.do(t, http.MethodPost, "/api/receipts", env.tokenFor(t, manager),
			map[string]interface{}{"paymentId": payment.ID})
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = env.do(t, http.MethodGet, "/api/receipts/"+receipt.ID+"/download", env.tokenFor(t, tenant), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), receipt.ReceiptNumber)
	})

	t.Run("receipt for pending payment rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/payments", env.tokenFor(t, manager),
			map[string]interface{}{"tenant": tenant.ID, "unit": unit.ID, "type": "utility", "amount": 50})
		require.Equal(t, http.StatusCreated, rec.Code)
		var pending Payment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))

		rec = env.do(t, http.MethodPost, "/api/receipts", env.tokenFor(t, manager),
			map[string]interface{}{"paymentId": pending.ID})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("tenant requests receipt for own payment", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/payments", env.tokenFor(t, manager),
			map[string]interface{}{"tenant": tenant.ID, "unit": unit.ID, "type": "deposit", "amount": 500, "status": "completed"})
		require.Equal(t, http.StatusCreated, rec.Code)
		var deposit Payment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deposit))

		rec = env.do(t, http.MethodPost, "/api/receipts", env.tokenFor(t, outsider),
			map[string]interface{}{"paymentId": deposit.ID})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(t, http.MethodPost, "/api/receipts", env.tokenFor(t, tenant),
			map[string]interface{}{"paymentId": deposit.ID})
		require.Equal(t, http.StatusCreated, rec.Code)
		var receipt Receipt
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
		assert.Equal(t, tenant.ID, receipt.IssuedTo)
		assert.Equal(t, deposit.Amount, receipt.Amount)
	})
}

func TestAmenitiesStaticEndpoint(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedUser(t, "ten", RoleTenant, "Password1")

	rec := env.do(t, http.MethodGet, "/api/apartment-units/amenities", env.tokenFor(t, tenant), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Parking")
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t)

	mr := miniredis.RunT(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cacheClient := cache.NewClientWithRedis(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}), logger, metrics)
	files, err := documents.NewFileStore(t.TempDir())
	require.NoError(t, err)

	server := NewServer(Options{
		Store:     env.store,
		Cache:     cacheClient,
		Tokens:    env.tokens,
		Files:     files,
		Logger:    logger,
		Metrics:   metrics,
		RateLimit: 2,
	})

	body := map[string]string{"username": "nobody", "password": "nope"}
	for i := 0; i < 2; i++ {
		data, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(data))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCreateTenantFlow(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", RoleAdmin, "Password1")
	adminToken := env.tokenFor(t, admin)

	// admin -> manager -> building -> unit -> tenant, the full
	// provisioning chain.
	rec := env.do(t, http.MethodPost, "/api/auth/create-manager", adminToken,
		map[string]string{"username": "mgr", "password": "Password1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	manager, err := env.store.GetUserByUsername(context.Background(), "mgr")
	require.NoError(t, err)

	rec = env.do(t, http.MethodPost, "/api/apartment-buildings", adminToken,
		map[string]interface{}{"name": "Westside", "address": "1 Main St", "manager": manager.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var building Building
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &building))

	rec = env.do(t, http.MethodPost, "/api/apartment-units", adminToken,
		map[string]interface{}{"building": building.ID, "unitNumber": "101"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var unit Unit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unit))

	managerToken := env.tokenFor(t, manager)
	rec = env.do(t, http.MethodPost, "/api/auth/create-tenant", managerToken,
		map[string]interface{}{"username": "ten", "password": "Password1", "unitId": unit.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	tenant, err := env.store.GetUserByUsername(context.Background(), "ten")
	require.NoError(t, err)
	assert.Equal(t, RoleTenant, tenant.Role)
	assert.Equal(t, unit.ID, tenant.UnitID)

	got, err := env.store.GetUnit(context.Background(), unit.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOccupied)

	t.Run("occupied unit rejects another tenant", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/create-tenant", managerToken,
			map[string]interface{}{"username": "ten2", "password": "Password1", "unitId": unit.ID})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Unit already occupied")
	})

	t.Run("manager cannot assign into another building", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/create-manager", adminToken,
			map[string]string{"username": "mgr2", "password": "Password1"})
		require.Equal(t, http.StatusCreated, rec.Code)
		other, err := env.store.GetUserByUsername(context.Background(), "mgr2")
		require.NoError(t, err)

		rec = env.do(t, http.MethodPost, "/api/apartment-units", adminToken,
			map[string]interface{}{"building": building.ID, "unitNumber": "102"})
		require.Equal(t, http.StatusCreated, rec.Code)
		var unit2 Unit
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unit2))

		rec = env.do(t, http.MethodPost, "/api/auth/create-tenant", env.tokenFor(t, other),
			map[string]interface{}{"username": "ten3", "password": "Password1", "unitId": unit2.ID})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

// newMultipart writes a form with a fixed file part plus the given
// fields and returns the content type.
func newMultipart(t *testing.T, buf *bytes.Buffer, fields map[string]string) string {
	t.Helper()
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile("file", "lease.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("file content"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType()
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", RoleAdmin, "Password1")
	tenant := env.seedUser(t, "ten", RoleTenant, "Password1")
	adminToken := env.tokenFor(t, admin)

	upload := func(t *testing.T, path, token string, fields map[string]string) *httptest.ResponseRecorder {
		t.Helper()
		var buf bytes.Buffer
		mw := newMultipart(t, &buf, fields)
		req := httptest.NewRequest(http.MethodPost, path, &buf)
		req.Header.Set("Content-Type", mw)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		env.server.ServeHTTP(rec, req)
		return rec
	}

	rec := upload(t, "/api/documents", adminToken,
		map[string]string{"name": "Lease", "tenant": tenant.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var doc Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, DocumentActive, doc.Status)

	t.Run("tenant sees own document", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/documents", env.tokenFor(t, tenant), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), doc.ID)
	})

	t.Run("tenant cannot upload", func(t *testing.T) {
		rec := upload(t, "/api/documents", env.tokenFor(t, tenant),
			map[string]string{"name": "Nope"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("download streams the file", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/documents/download/"+doc.ID, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "file content", rec.Body.String())
	})

	t.Run("new version deactivates the old one", func(t *testing.T) {
		rec := upload(t, "/api/documents/"+doc.ID+"/versions", adminToken, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		var next Document
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
		assert.Equal(t, 2, next.Version)

		old, err := env.store.GetDocument(context.Background(), doc.ID)
		require.NoError(t, err)
		assert.False(t, old.IsActive)
		assert.Equal(t, DocumentArchived, old.Status)
	})

	t.Run("delete removes row and file", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/documents/"+doc.ID, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodGet, "/api/documents/download/"+doc.ID, adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
