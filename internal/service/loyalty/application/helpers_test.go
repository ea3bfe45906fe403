package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stampcard/internal/service/loyalty/domain"
	"stampcard/internal/service/loyalty/infrastructure"
)

// testEnv 是基于内存 SQLite 的完整应用层装配
type testEnv struct {
	db         *gorm.DB
	ledger     *infrastructure.GormLedger
	businesses *infrastructure.GormBusinessRepository
	clients    *infrastructure.GormClientRepository
	landings   *infrastructure.GormLandingRepository
	publisher  *recordingPublisher

	now   time.Time
	clock domain.Clock

	scan     *ScanService
	business *BusinessService
	register *RegistrationService
	landing  *LandingService
	client   *ClientService
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, infrastructure.AutoMigrate(db))

	e := &testEnv{
		db:         db,
		businesses: infrastructure.NewGormBusinessRepository(db),
		clients:    infrastructure.NewGormClientRepository(db),
		landings:   infrastructure.NewGormLandingRepository(db),
		publisher:  &recordingPublisher{},
		now:        time.Now().UTC(),
	}
	e.ledger = infrastructure.NewGormLedger(db, 5)
	e.clock = domain.ClockFunc(func() time.Time { return e.now })
	e.wire(e.ledger)
	return e
}

// wire 用给定账本重新装配服务，测试可以替换为包装过的账本
func (e *testEnv) wire(ledger domain.Ledger) {
	tracer := otel.Tracer("test")
	e.scan = NewScanService(ledger, e.businesses, tracer, WithClock(e.clock), WithPublisher(e.publisher))
	e.business = NewBusinessService(e.businesses, infrastructure.NewJWTIssuer("test-secret", time.Hour),
		infrastructure.NewBcryptHasher(bcrypt.MinCost), e.clock, tracer)
	e.register = NewRegistrationService(e.businesses, e.clients, ledger, e.clock, tracer)
	e.landing = NewLandingService(e.landings, e.businesses, tracer)
	e.client = NewClientService(ledger, e.businesses, infrastructure.PNGQREncoder{}, tracer)
}

// seedBusiness 直接写入一个商户
func (e *testEnv) seedBusiness(t *testing.T, threshold *int, rewardName string) *domain.Business {
	t.Helper()
	b, err := domain.NewBusiness(uuid.NewString(), "Bar "+uuid.NewString()[:6], uuid.NewString()[:8]+"@bar.es", "hash", e.now)
	require.NoError(t, err)
	b.Program.RewardThreshold = threshold
	b.Program.RewardName = rewardName
	require.NoError(t, e.businesses.Create(context.Background(), b))
	return b
}

// seedMember 通过公开注册创建顾客和会员，再把状态设置为给定值
func (e *testEnv) seedMember(t *testing.T, b *domain.Business, name string, stamps, rewards int) *PublicRegisterResponse {
	t.Helper()
	ctx := context.Background()
	resp, err := e.register.Register(ctx, PublicRegisterRequest{
		Slug:  b.Slug,
		Name:  name,
		Email: uuid.NewString()[:8] + "@mail.es",
	})
	require.NoError(t, err)
	_, err = e.ledger.UpdateMembership(ctx, resp.MembershipID, func(m *domain.Membership) error {
		m.Stamps = stamps
		m.Rewards = &rewards
		return nil
	})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) membership(t *testing.T, businessID, clientID string) *domain.Membership {
	t.Helper()
	d, err := e.ledger.FindByClient(context.Background(), businessID, clientID)
	require.NoError(t, err)
	return &d.Membership
}

// recordingPublisher 记录发布的事件，可配置为失败
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ScanRecorded
	err    error
}

func (p *recordingPublisher) PublishScan(_ context.Context, ev domain.ScanRecorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) published() []domain.ScanRecorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ScanRecorded(nil), p.events...)
}

// failingAuditLedger 让扫码日志写入总是失败
type failingAuditLedger struct {
	domain.Ledger
}

func (failingAuditLedger) AppendScanEvent(context.Context, *domain.ScanEvent) error {
	return fmt.Errorf("scans: disk full")
}

// noRewardsLedger 模拟没有奖励计数列的账本
type noRewardsLedger struct {
	domain.Ledger
}

func (noRewardsLedger) SupportsRewards() bool { return false }

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

// newLedgerFor 重新探测表结构，模拟服务在表结构变化后重启
func newLedgerFor(e *testEnv) *infrastructure.GormLedger {
	e.ledger = infrastructure.NewGormLedger(e.db, 5)
	return e.ledger
}
