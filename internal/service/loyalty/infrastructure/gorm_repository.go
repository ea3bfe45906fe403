package infrastructure

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stampcard/internal/pkg/database"
	"stampcard/internal/service/loyalty/domain"
)

// GormBusinessRepository 是 BusinessRepository 的 GORM 实现
type GormBusinessRepository struct {
	db *gorm.DB
}

// NewGormBusinessRepository 创建一个新的 GORM 仓储实例
func NewGormBusinessRepository(db *gorm.DB) *GormBusinessRepository {
	return &GormBusinessRepository{db: db}
}

func (r *GormBusinessRepository) Create(ctx context.Context, b *domain.Business) error {
	err := r.db.WithContext(ctx).Create(FromDomainBusiness(b)).Error
	if database.IsDuplicateKey(err) {
		return domain.ErrDuplicate
	}
	return errors.Wrap(err, "business: create")
}

func (r *GormBusinessRepository) FindByID(ctx context.Context, id string) (*domain.Business, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *GormBusinessRepository) FindByEmail(ctx context.Context, email string) (*domain.Business, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *GormBusinessRepository) FindBySlug(ctx context.Context, slug string) (*domain.Business, error) {
	return r.findOne(ctx, "slug = ?", slug)
}

func (r *GormBusinessRepository) findOne(ctx context.Context, cond string, arg any) (*domain.Business, error) {
	var model BusinessModel
	err := r.db.WithContext(ctx).Where(cond, arg).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrBusinessNotFound
		}
		return nil, errors.Wrap(err, "business: find")
	}
	// 使用 Mapper 将数据库模型转换为领域模型
	return ToDomainBusiness(&model), nil
}

// UpdateProgram 整体写回计划配置，部分更新的合并在领域层完成
func (r *GormBusinessRepository) UpdateProgram(ctx context.Context, id string, p domain.Program) error {
	var m BusinessModel
	applyProgram(&m, p)
	updateData := map[string]any{
		"reward_threshold":       m.RewardThreshold,
		"reward_name":            m.RewardName,
		"reward_product_code":    m.RewardProductCode,
		"reward_description":     m.RewardDescription,
		"msg_stamp_one":          m.MsgStampOne,
		"msg_stamp_many":         m.MsgStampMany,
		"msg_reward_earned_one":  m.MsgRewardEarnedOne,
		"msg_reward_earned_many": m.MsgRewardEarnedMany,
		"msg_reward_redeem_one":  m.MsgRewardRedeemOne,
		"msg_reward_redeem_many": m.MsgRewardRedeemMany,
	}
	return r.update(ctx, id, updateData)
}

func (r *GormBusinessRepository) UpdateExpiration(ctx context.Context, id string, p domain.ExpirationPolicy) error {
	var m BusinessModel
	applyExpiration(&m, p)
	return r.update(ctx, id, map[string]any{
		"card_expiration_mode": m.CardExpirationMode,
		"card_expiration_date": m.CardExpirationDate,
		"card_expiration_days": m.CardExpirationDays,
	})
}

func (r *GormBusinessRepository) update(ctx context.Context, id string, updateData map[string]any) error {
	// MySQL 在值未变化时 RowsAffected 为 0，所以存在性由调用方先行校验
	err := r.db.WithContext(ctx).Model(&BusinessModel{}).Where("id = ?", id).Updates(updateData).Error
	return errors.Wrap(err, "business: update")
}

// GormClientRepository 是 ClientRepository 的 GORM 实现
type GormClientRepository struct {
	db *gorm.DB
}

func NewGormClientRepository(db *gorm.DB) *GormClientRepository {
	return &GormClientRepository{db: db}
}

// FindForBusiness 只在该商户的会员中查找，邮箱或电话任一匹配即可
func (r *GormClientRepository) FindForBusiness(ctx context.Context, businessID, email, phone string) (*domain.Client, error) {
	if email == "" && phone == "" {
		return nil, domain.ErrClientNotFound
	}
	var conds []string
	var args []any
	if email != "" {
		conds = append(conds, "c.email = ?")
		args = append(args, email)
	}
	if phone != "" {
		conds = append(conds, "c.phone = ?")
		args = append(args, phone)
	}

	var model ClientModel
	err := r.db.WithContext(ctx).
		Table("clients AS c").
		Select("c.*").
		Joins("JOIN memberships m ON m.client_id = c.id").
		Where("m.business_id = ?", businessID).
		Where("("+strings.Join(conds, " OR ")+")", args...).
		Limit(1).
		Scan(&model).Error
	if err != nil {
		return nil, errors.Wrap(err, "client: find for business")
	}
	if model.ID == "" {
		return nil, domain.ErrClientNotFound
	}
	return ToDomainClient(&model), nil
}

func (r *GormClientRepository) FindByID(ctx context.Context, id string) (*domain.Client, error) {
	var model ClientModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrClientNotFound
		}
		return nil, errors.Wrap(err, "client: find")
	}
	return ToDomainClient(&model), nil
}

func (r *GormClientRepository) Create(ctx context.Context, c *domain.Client) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(FromDomainClient(c)).Error, "client: create")
}

func (r *GormClientRepository) Update(ctx context.Context, c *domain.Client) error {
	err := r.db.WithContext(ctx).Model(&ClientModel{}).Where("id = ?", c.ID).Updates(map[string]any{
		"name":     c.Name,
		"lastname": c.Lastname,
		"email":    c.Email,
		"phone":    c.Phone,
		"birthday": c.Birthday,
	}).Error
	return errors.Wrap(err, "client: update")
}

// GormLandingRepository 以 JSON 文本保存注册页配置
type GormLandingRepository struct {
	db *gorm.DB
}

func NewGormLandingRepository(db *gorm.DB) *GormLandingRepository {
	return &GormLandingRepository{db: db}
}

func (r *GormLandingRepository) Get(ctx context.Context, businessID string) (domain.LandingConfig, bool, error) {
	var model LandingModel
	err := r.db.WithContext(ctx).Where("business_id = ?", businessID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "landing: get")
	}
	cfg := domain.LandingConfig{}
	if model.Config != "" {
		if err := json.Unmarshal([]byte(model.Config), &cfg); err != nil {
			return nil, false, errors.Wrap(err, "landing: decode config")
		}
	}
	return cfg, true, nil
}

func (r *GormLandingRepository) Save(ctx context.Context, businessID string, cfg domain.LandingConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "landing: encode config")
	}
	model := LandingModel{BusinessID: businessID, Config: string(raw), UpdatedAt: time.Now().UTC()}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "business_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"config", "updated_at"}),
	}).Create(&model).Error
	return errors.Wrap(err, "landing: save")
}
