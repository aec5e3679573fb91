package migration

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func columns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestMigrator_UpAndDown(t *testing.T) {
	db := openSQLite(t)

	m, err := New(db, DriverSQLite, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, m.Up())

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	for _, table := range []string{"payments", "orders", "invoices"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	// A second run has nothing to do
	require.NoError(t, m.Up())

	require.NoError(t, m.Down())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, tableExists(t, db, "payments"))
}

func TestMigrator_StepsAndGoTo(t *testing.T) {
	db := openSQLite(t)

	m, err := New(db, DriverSQLite, nil)
	require.NoError(t, err)

	require.NoError(t, m.Steps(2))
	assert.True(t, tableExists(t, db, "orders"))
	assert.False(t, tableExists(t, db, "invoices"))

	require.NoError(t, m.GoTo(3))
	assert.True(t, tableExists(t, db, "invoices"))

	require.NoError(t, m.Steps(-1))
	version, _, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, tableExists(t, db, "invoices"))

	require.NoError(t, m.GoTo(2), "already at target")
}

func TestMigrator_SchemaCarriesProjectionColumns(t *testing.T) {
	db := openSQLite(t)

	m, err := New(db, DriverSQLite, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	invoiceCols := columns(t, db, "invoices")
	for _, col := range []string{
		"items", "discount_amount", "paid_amount", "remaining_amount",
		"payment_method", "bank_name", "check_number", "check_date", "credit_due_date",
	} {
		assert.Contains(t, invoiceCols, col)
	}

	orderCols := columns(t, db, "orders")
	assert.Contains(t, orderCols, "payment_status")
	assert.Contains(t, orderCols, "payment_method")

	paymentCols := columns(t, db, "payments")
	assert.Contains(t, paymentCols, "original_payment_id")
	assert.Contains(t, paymentCols, "transaction_id")
}

func TestMigrator_ForceClearsVersion(t *testing.T) {
	db := openSQLite(t)

	m, err := New(db, DriverSQLite, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	require.NoError(t, m.Force(1))
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	db := openSQLite(t)

	_, err := New(db, "mysql", zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported migration driver")
}
