package database

import (
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNormalizeMySQLDSN(t *testing.T) {
	dsn, err := normalizeMySQLDSN("loyalty:secret@tcp(db:3306)/loyalty?charset=utf8mb4")
	require.NoError(t, err)

	cfg, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "loyalty", cfg.DBName)
	assert.Equal(t, "db:3306", cfg.Addr)
}

func TestNormalizeMySQLDSNRejectsGarbage(t *testing.T) {
	_, err := normalizeMySQLDSN("not a dsn/")
	assert.Error(t, err)
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, IsDuplicateKey(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.True(t, IsDuplicateKey(fmt.Errorf("create: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsDuplicateKey(errors.New("constraint failed: UNIQUE constraint failed: businesses.email (2067)")))
	assert.False(t, IsDuplicateKey(&mysqldriver.MySQLError{Number: 1045}))
	assert.False(t, IsDuplicateKey(nil))
}

func TestOpenSQLite(t *testing.T) {
	db, err := Open(Config{Driver: DriverSQLite, DSN: "file::memory:"})
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	assert.Error(t, err)
}
