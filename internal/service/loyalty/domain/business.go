// internal/service/loyalty/domain/business.go
package domain

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLength = 50

// Business 是商户聚合的根实体，同时持有会员卡计划的配置
type Business struct {
	ID           string
	Name         string
	Email        string
	Slug         string
	PasswordHash string
	ThemeColor   string
	Program      Program
	Expiration   ExpirationPolicy
	CreatedAt    time.Time
}

// Program 是商户的集章计划
type Program struct {
	// RewardThreshold 为 nil 时只累计印章，不兑换奖励
	RewardThreshold   *int
	RewardName        string
	RewardProductCode string
	RewardDescription string
	Messages          Messages
}

// ProgramUpdate 是计划的部分更新，nil 字段保持原值
type ProgramUpdate struct {
	RewardThreshold   *int
	RewardName        *string
	RewardProductCode *string
	RewardDescription *string

	StampOne         *string
	StampMany        *string
	RewardEarnedOne  *string
	RewardEarnedMany *string
	RewardRedeemOne  *string
	RewardRedeemMany *string
}

// NewBusiness 校验注册信息并生成 slug
func NewBusiness(id, name, email, passwordHash string, now time.Time) (*Business, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if len([]rune(name)) < 2 || !ValidEmail(email) || passwordHash == "" {
		return nil, ErrInvalidInput
	}
	slug := Slugify(name)
	if slug == "" {
		return nil, ErrInvalidInput
	}
	return &Business{
		ID:           id,
		Name:         name,
		Email:        email,
		Slug:         slug,
		PasswordHash: passwordHash,
		Expiration:   ExpirationPolicy{Mode: ExpirationNone},
		CreatedAt:    now,
	}, nil
}

// Apply 合并部分更新。奖励阈值必须为正数。
func (p *Program) Apply(u ProgramUpdate) error {
	if u.RewardThreshold != nil && *u.RewardThreshold <= 0 {
		return ErrInvalidInput
	}
	if u.RewardThreshold != nil {
		v := *u.RewardThreshold
		p.RewardThreshold = &v
	}
	setIf(&p.RewardName, u.RewardName)
	setIf(&p.RewardProductCode, u.RewardProductCode)
	setIf(&p.RewardDescription, u.RewardDescription)
	setIf(&p.Messages.StampOne, u.StampOne)
	setIf(&p.Messages.StampMany, u.StampMany)
	setIf(&p.Messages.RewardEarnedOne, u.RewardEarnedOne)
	setIf(&p.Messages.RewardEarnedMany, u.RewardEarnedMany)
	setIf(&p.Messages.RewardRedeemOne, u.RewardRedeemOne)
	setIf(&p.Messages.RewardRedeemMany, u.RewardRedeemMany)
	return nil
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify 生成 URL 安全的短名：小写、去掉重音、非字母数字折叠为 '-'，最长 50 个字符
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, strings.ToLower(name))
	if err != nil {
		plain = strings.ToLower(name)
	}
	slug := strings.Trim(nonSlugChars.ReplaceAllString(plain, "-"), "-")
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	return slug
}

// ValidEmail 只做基本的地址格式检查
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
