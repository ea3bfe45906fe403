package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"stampcard/internal/pkg/database"
	"stampcard/internal/pkg/logger"
	"stampcard/internal/pkg/metrics"
	"stampcard/internal/service/loyalty/domain"
)

var errVersionConflict = errors.New("membership version conflict")

// GormLedger 是 Ledger 的 GORM 实现。
// 构造时探测表结构：memberships 缺少 rewards 列时不维护奖励计数，缺少 scans 表时不写扫码日志。
type GormLedger struct {
	db         *gorm.DB
	rewards    bool
	auditLog   bool
	maxRetries int

	// beforeWrite 在条件更新之前调用，仅测试使用
	beforeWrite func(db *gorm.DB) error
}

// NewGormLedger 创建账本并探测存储能力
func NewGormLedger(db *gorm.DB, maxRetries int) *GormLedger {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	m := db.Migrator()
	l := &GormLedger{
		db:         db,
		rewards:    m.HasColumn(&MembershipModel{}, "rewards"),
		auditLog:   m.HasTable(&ScanModel{}),
		maxRetries: maxRetries,
	}
	logger.L().Info().
		Bool("rewards", l.rewards).
		Bool("audit_log", l.auditLog).
		Msg("ledger capabilities probed")
	return l
}

func (l *GormLedger) SupportsRewards() bool  { return l.rewards }
func (l *GormLedger) SupportsAuditLog() bool { return l.auditLog }

func (l *GormLedger) FindByClient(ctx context.Context, businessID, clientID string) (*domain.MembershipDetail, error) {
	db := l.db.WithContext(ctx)

	var model MembershipModel
	err := db.Where("business_id = ? AND client_id = ?", businessID, clientID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, errors.Wrap(err, "ledger: find membership")
	}

	var client ClientModel
	if err := db.Where("id = ?", clientID).Take(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, errors.Wrap(err, "ledger: find client")
	}

	return &domain.MembershipDetail{
		Membership: *ToDomainMembership(&model, l.rewards),
		Client:     *ToDomainClient(&client),
	}, nil
}

func (l *GormLedger) FindFirstByClient(ctx context.Context, clientID string) (*domain.Membership, error) {
	var model MembershipModel
	err := l.db.WithContext(ctx).Where("client_id = ?", clientID).Order("created_at ASC").Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, errors.Wrap(err, "ledger: find membership by client")
	}
	return ToDomainMembership(&model, l.rewards), nil
}

// UpdateMembership 读取快照、执行 mutate，再以 version 做条件更新（compare-and-set）。
// 版本不匹配说明有并发写入，重新读取最新快照再试，最多 maxRetries 次。
// mutate 返回错误时不写入任何数据。
func (l *GormLedger) UpdateMembership(ctx context.Context, membershipID string, mutate domain.MembershipMutation) (*domain.Membership, error) {
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		updated, err := l.updateOnce(ctx, membershipID, mutate)
		if errors.Is(err, errVersionConflict) {
			metrics.ConflictRetries.Inc()
			logger.Ctx(ctx).Debug().
				Str("membership_id", membershipID).
				Int("attempt", attempt+1).
				Msg("membership version conflict, retrying")
			continue
		}
		return updated, err
	}
	return nil, domain.ErrConcurrentUpdate
}

func (l *GormLedger) updateOnce(ctx context.Context, membershipID string, mutate domain.MembershipMutation) (*domain.Membership, error) {
	db := l.db.WithContext(ctx)

	var model MembershipModel
	if err := db.Where("id = ?", membershipID).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, errors.Wrap(err, "ledger: load membership")
	}

	m := ToDomainMembership(&model, l.rewards)
	if err := mutate(m); err != nil {
		return nil, err
	}

	if l.beforeWrite != nil {
		if err := l.beforeWrite(db); err != nil {
			return nil, err
		}
	}

	updates := map[string]any{
		"stamps":       m.Stamps,
		"last_scan_at": m.LastScanAt,
		"version":      model.Version + 1,
	}
	if l.rewards && m.Rewards != nil {
		updates["rewards"] = *m.Rewards
	}
	// 单条 UPDATE 是原子的：要么整体写入，要么因版本不符而不影响任何行
	res := db.Model(&MembershipModel{}).
		Where("id = ? AND version = ?", membershipID, model.Version).
		Updates(updates)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "ledger: write membership")
	}
	if res.RowsAffected == 0 {
		return nil, errVersionConflict
	}

	m.Version = model.Version + 1
	return m, nil
}

// EnsureMembership 幂等地创建会员关系；并发创建时依赖唯一索引去重
func (l *GormLedger) EnsureMembership(ctx context.Context, businessID, clientID string) (*domain.Membership, error) {
	db := l.db.WithContext(ctx)

	existing, err := l.findPair(db, businessID, clientID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "ledger: find membership")
	}

	model := MembershipModel{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		ClientID:   clientID,
		CreatedAt:  time.Now().UTC(),
	}
	q := db
	if !l.rewards {
		q = q.Omit("Rewards")
	}
	if err := q.Create(&model).Error; err != nil {
		if database.IsDuplicateKey(err) {
			existing, err := l.findPair(db, businessID, clientID)
			return existing, errors.Wrap(err, "ledger: reload membership")
		}
		return nil, errors.Wrap(err, "ledger: create membership")
	}
	return ToDomainMembership(&model, l.rewards), nil
}

func (l *GormLedger) findPair(db *gorm.DB, businessID, clientID string) (*domain.Membership, error) {
	var model MembershipModel
	if err := db.Where("business_id = ? AND client_id = ?", businessID, clientID).Take(&model).Error; err != nil {
		return nil, err
	}
	return ToDomainMembership(&model, l.rewards), nil
}

type membershipRow struct {
	MembershipModel
	ClientName     string
	ClientLastname string
	ClientEmail    string
	ClientPhone    string
	ClientBirthday string
}

func (l *GormLedger) ListByBusiness(ctx context.Context, businessID string) ([]domain.MembershipDetail, error) {
	var rows []membershipRow
	err := l.db.WithContext(ctx).
		Table("memberships AS m").
		Select("m.*, c.name AS client_name, c.lastname AS client_lastname, c.email AS client_email, " +
			"c.phone AS client_phone, c.birthday AS client_birthday").
		Joins("JOIN clients c ON c.id = m.client_id").
		Where("m.business_id = ?", businessID).
		Order("c.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "ledger: list memberships")
	}

	out := make([]domain.MembershipDetail, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		out = append(out, domain.MembershipDetail{
			Membership: *ToDomainMembership(&r.MembershipModel, l.rewards),
			Client: domain.Client{
				ID:       r.ClientID,
				Name:     r.ClientName,
				Lastname: r.ClientLastname,
				Email:    r.ClientEmail,
				Phone:    r.ClientPhone,
				Birthday: r.ClientBirthday,
			},
		})
	}
	return out, nil
}

func (l *GormLedger) AppendScanEvent(ctx context.Context, ev *domain.ScanEvent) error {
	model, err := FromDomainScanEvent(ev)
	if err != nil {
		return errors.Wrap(err, "ledger: encode scan payload")
	}
	return errors.Wrap(l.db.WithContext(ctx).Create(model).Error, "ledger: append scan")
}

type scanRow struct {
	ScanModel
	ClientName string
}

func (l *GormLedger) ListScanEvents(ctx context.Context, businessID string, limit, offset int) ([]domain.ScanEntry, int64, error) {
	if !l.auditLog {
		return []domain.ScanEntry{}, 0, nil
	}
	db := l.db.WithContext(ctx)

	var total int64
	if err := db.Model(&ScanModel{}).Where("business_id = ?", businessID).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "ledger: count scans")
	}

	var rows []scanRow
	err := db.Table("scans AS s").
		Select("s.*, c.name AS client_name").
		Joins("LEFT JOIN clients c ON c.id = s.client_id").
		Where("s.business_id = ?", businessID).
		Order("s.created_at DESC").Order("s.id DESC").
		Limit(limit).Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "ledger: list scans")
	}

	out := make([]domain.ScanEntry, 0, len(rows))
	for _, r := range rows {
		var payload domain.ScanPayload
		if r.Payload != "" {
			// 历史数据的 payload 可能不是合法 JSON，忽略即可
			_ = json.Unmarshal([]byte(r.Payload), &payload)
		}
		out = append(out, domain.ScanEntry{
			ScanEvent: domain.ScanEvent{
				ID:           r.ID,
				MembershipID: r.MembershipID,
				ClientID:     r.ClientID,
				BusinessID:   r.BusinessID,
				StampsAdded:  r.StampsAdded,
				RewardsUsed:  r.RewardsUsed,
				Payload:      payload,
				CreatedAt:    r.CreatedAt,
			},
			ClientName: r.ClientName,
		})
	}
	return out, total, nil
}

func (l *GormLedger) Ping(ctx context.Context) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return errors.Wrap(err, "ledger: get sql.DB")
	}
	return sqlDB.PingContext(ctx)
}
