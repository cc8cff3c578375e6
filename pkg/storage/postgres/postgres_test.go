package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidega/apartments/pkg/model"
	"github.com/kidega/apartments/pkg/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStoreWithDB(db), mock
}

func uniqueViolation(constraint string) *pq.Error {
	return &pq.Error{Code: "23505", Constraint: constraint}
}

func TestCreateUnitIncrementsBuildingCounter(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO units").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE buildings SET total_units = total_units \\+ 1").
		WithArgs("b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	unit := &model.Unit{
		ID:         "u1",
		BuildingID: "b1",
		UnitNumber: "101",
		Status:     model.UnitAvailable,
	}
	require.NoError(t, store.CreateUnit(context.Background(), unit))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUnitDuplicateNumberRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO units").
		WillReturnError(uniqueViolation(constraintUnitNumber))
	mock.ExpectRollback()

	err := store.CreateUnit(context.Background(), &model.Unit{
		ID: "u1", BuildingID: "b1", UnitNumber: "101", Status: model.UnitAvailable,
	})
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUnitDecrementsBuildingCounter(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM units WHERE id = \\$1 RETURNING building_id").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"building_id"}).AddRow("b1"))
	mock.ExpectExec("UPDATE buildings SET total_units = total_units - 1").
		WithArgs("b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.DeleteUnit(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUnitNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM units").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"building_id"}))
	mock.ExpectRollback()

	err := store.DeleteUnit(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAssignTenantOccupiedUnit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT tenant_ids, is_occupied, building_id FROM units").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_ids", "is_occupied", "building_id"}).
			AddRow(pq.Array([]string{"other-tenant"}), true, "b1"))
	mock.ExpectRollback()

	err := store.AssignTenant(context.Background(), "u1", "t1", nil, nil)
	assert.ErrorIs(t, err, storage.ErrUnitOccupied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignTenantWritesLeaseAndOccupancy(t *testing.T) {
	store, mock := newMockStore(t)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT tenant_ids, is_occupied, building_id FROM units").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_ids", "is_occupied", "building_id"}).
			AddRow(pq.Array([]string{}), false, "b1"))
	mock.ExpectExec("UPDATE units SET tenant_ids").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET unit_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.AssignTenant(context.Background(), "u1", "t1", &start, &end))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignTenantIdempotentForSameTenant(t *testing.T) {
	store, mock := newMockStore(t)

	// Tenant already on the unit: no occupancy conflict, lease refreshed.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT tenant_ids, is_occupied, building_id FROM units").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_ids", "is_occupied", "building_id"}).
			AddRow(pq.Array([]string{"t1"}), true, "b1"))
	mock.ExpectExec("UPDATE units SET tenant_ids").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET unit_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.AssignTenant(context.Background(), "u1", "t1", nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBuildingDuplicateManager(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO buildings").
		WillReturnError(uniqueViolation(constraintBuildingManager))

	err := store.CreateBuilding(context.Background(), &model.Building{
		ID: "b2", Name: "North Tower", Address: "1 Main St", ManagerID: "m1",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateManager)
}

func TestCreateReceiptAssignsSequentialNumber(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT nextval\\('receipt_number_seq'\\)").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(42))
	mock.ExpectQuery("INSERT INTO receipts").
		WillReturnRows(sqlmock.NewRows([]string{"issued_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	receipt := &model.Receipt{
		ID:        "r1",
		PaymentID: "p1",
		IssuedTo:  "t1",
		Amount:    1200,
		Type:      model.PaymentRent,
	}
	require.NoError(t, store.CreateReceipt(context.Background(), receipt))
	assert.Equal(t, "RCT-000042", receipt.ReceiptNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReceiptDuplicatePayment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT nextval\\('receipt_number_seq'\\)").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(43))
	mock.ExpectQuery("INSERT INTO receipts").
		WillReturnError(uniqueViolation(constraintReceiptPayment))
	mock.ExpectRollback()

	err := store.CreateReceipt(context.Background(), &model.Receipt{
		ID: "r2", PaymentID: "p1", IssuedTo: "t1", Amount: 1200, Type: model.PaymentRent,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateReceipt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("(?s)SELECT .+ FROM users WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(uniqueViolation(constraintUsername))

	err := store.CreateUser(context.Background(), &model.User{
		ID: "u1", Username: "taken", PasswordHash: "x", Role: model.RoleTenant,
	})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestExpireDocuments(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectExec("UPDATE documents SET status = 'expired'").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.ExpireDocuments(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestListTenantsByUnitsEmptyInput(t *testing.T) {
	store, _ := newMockStore(t)

	tenants, err := store.ListTenantsByUnits(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}
