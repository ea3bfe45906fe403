package infrastructure

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stampcard/internal/service/loyalty/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库的写事务需要串行
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newMigratedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, AutoMigrate(db))
	return db
}

type fixture struct {
	business *domain.Business
	client   *domain.Client
	member   *domain.Membership
}

func seed(t *testing.T, db *gorm.DB, ledger *GormLedger, threshold *int) fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	b, err := domain.NewBusiness(uuid.NewString(), "Café "+uuid.NewString()[:6], uuid.NewString()[:8]+"@cafe.es", "hash", now)
	require.NoError(t, err)
	b.Program.RewardThreshold = threshold
	b.Program.RewardName = "café"
	require.NoError(t, NewGormBusinessRepository(db).Create(ctx, b))

	c := &domain.Client{ID: uuid.NewString(), Name: "Ana", Email: "ana@mail.es", CreatedAt: now}
	require.NoError(t, NewGormClientRepository(db).Create(ctx, c))

	m, err := ledger.EnsureMembership(ctx, b.ID, c.ID)
	require.NoError(t, err)
	return fixture{business: b, client: c, member: m}
}

func intPtr(v int) *int { return &v }
