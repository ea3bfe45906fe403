package application

import (
	"time"

	"stampcard/internal/service/loyalty/domain"
)

// ── 扫码 ──

type ClientRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type BusinessRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MembershipSnapshot struct {
	ID      string `json:"id"`
	Stamps  int    `json:"stamps"`
	Rewards *int   `json:"rewards"` // 账本不支持奖励时为 null
}

// MessagesDTO 是商户配置的模板，未配置的为 null
type MessagesDTO struct {
	StampOne         *string `json:"stamp_one"`
	StampMany        *string `json:"stamp_many"`
	RewardEarnedOne  *string `json:"reward_earned_one"`
	RewardEarnedMany *string `json:"reward_earned_many"`
	RewardRedeemOne  *string `json:"reward_redeem_one"`
	RewardRedeemMany *string `json:"reward_redeem_many"`
}

type ProgramSnapshot struct {
	RewardThreshold *int        `json:"reward_threshold"`
	RewardName      string      `json:"reward_name"`
	Messages        MessagesDTO `json:"messages"`
}

// PreviewResponse 是扫码预览的响应体
type PreviewResponse struct {
	OK         bool               `json:"ok"`
	Client     ClientRef          `json:"client"`
	Business   BusinessRef        `json:"business"`
	Membership MembershipSnapshot `json:"membership"`
	Program    ProgramSnapshot    `json:"program"`
	CanRedeem  bool               `json:"canRedeem"`
	Expired    bool               `json:"expired"`
}

// ScanRequest 是集章和兑换的输入，Count 已经解析为整数
type ScanRequest struct {
	BusinessID string
	ClientID   string
	Count      int
}

type AddStampMembership struct {
	ID               string `json:"id"`
	StampsBefore     int    `json:"stamps_before"`
	StampsAfter      int    `json:"stamps_after"`
	RewardsEarnedNow int    `json:"rewards_earned_now"`
	RewardsAfter     *int   `json:"rewards_after"`
	RewardThreshold  *int   `json:"reward_threshold"`
	RewardName       string `json:"reward_name"`
}

type AddStampMessages struct {
	Stamp         string  `json:"stamp"`
	RewardEarned  bool    `json:"rewardEarned"`
	RewardMessage *string `json:"rewardMessage"`
}

// AddStampResponse 是集章的响应体
type AddStampResponse struct {
	OK         bool               `json:"ok"`
	Membership AddStampMembership `json:"membership"`
	Messages   AddStampMessages   `json:"messages"`
}

type RedeemMembership struct {
	ID            string `json:"id"`
	RewardsBefore int    `json:"rewards_before"`
	RewardsAfter  int    `json:"rewards_after"`
}

type RedeemMessages struct {
	Redeem string `json:"redeem"`
}

// RedeemResponse 是兑换的响应体
type RedeemResponse struct {
	OK         bool             `json:"ok"`
	Membership RedeemMembership `json:"membership"`
	Messages   RedeemMessages   `json:"messages"`
}

// ── 商户 ──

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type BusinessDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Slug            string `json:"slug"`
	RewardName      string `json:"reward_name"`
	RewardThreshold *int   `json:"reward_threshold"`
	ThemeColor      string `json:"theme_color"`
}

type AuthResponse struct {
	Token    string      `json:"token"`
	Business BusinessDTO `json:"business"`
}

type ProgramDTO struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	RewardThreshold     *int    `json:"reward_threshold"`
	RewardName          string  `json:"reward_name"`
	RewardProductCode   string  `json:"reward_product_code"`
	RewardDescription   string  `json:"reward_description"`
	MsgStampOne         *string `json:"msg_stamp_one"`
	MsgStampMany        *string `json:"msg_stamp_many"`
	MsgRewardEarnedOne  *string `json:"msg_reward_earned_one"`
	MsgRewardEarnedMany *string `json:"msg_reward_earned_many"`
	MsgRewardRedeemOne  *string `json:"msg_reward_redeem_one"`
	MsgRewardRedeemMany *string `json:"msg_reward_redeem_many"`
}

// ProgramUpdateRequest 是计划的部分更新，缺省字段保持原值
type ProgramUpdateRequest struct {
	RewardThreshold     *int    `json:"reward_threshold"`
	RewardName          *string `json:"reward_name"`
	RewardProductCode   *string `json:"reward_product_code"`
	RewardDescription   *string `json:"reward_description"`
	MsgStampOne         *string `json:"msg_stamp_one"`
	MsgStampMany        *string `json:"msg_stamp_many"`
	MsgRewardEarnedOne  *string `json:"msg_reward_earned_one"`
	MsgRewardEarnedMany *string `json:"msg_reward_earned_many"`
	MsgRewardRedeemOne  *string `json:"msg_reward_redeem_one"`
	MsgRewardRedeemMany *string `json:"msg_reward_redeem_many"`
}

// ProgramResponse 包装计划配置，写入成功时带 ok
type ProgramResponse struct {
	OK      bool       `json:"ok,omitempty"`
	Program ProgramDTO `json:"program"`
}

type SettingsDTO struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Slug               string     `json:"slug"`
	RewardName         string     `json:"reward_name"`
	RewardThreshold    *int       `json:"reward_threshold"`
	CardExpirationMode string     `json:"card_expiration_mode"`
	CardExpirationDate *time.Time `json:"card_expiration_date"`
	CardExpirationDays *int       `json:"card_expiration_days"`
}

type SettingsResponse struct {
	OK       bool        `json:"ok,omitempty"`
	Business SettingsDTO `json:"business"`
}

type MeResponse struct {
	Business BusinessDTO `json:"business"`
}

type ExpirationRequest struct {
	Mode string `json:"mode"`
	Date string `json:"date"`
	Days *int   `json:"days"`
}

// ── 公开注册 ──

type PublicBusinessDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	RewardName      string `json:"reward_name"`
	RewardThreshold *int   `json:"reward_threshold"`
	ThemeColor      string `json:"theme_color"`
}

type PublicRegisterRequest struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Birthday  string `json:"birthday"`
	Birthdate string `json:"birthdate"`
}

type PublicRegisterResponse struct {
	OK           bool   `json:"ok"`
	ClientID     string `json:"clientId"`
	MembershipID string `json:"membershipId"`
}

type LandingResponse struct {
	OK     bool                 `json:"ok"`
	Config domain.LandingConfig `json:"config"`
	Source string               `json:"source"`
}

type LandingBusiness struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type PublicLandingResponse struct {
	OK       bool                 `json:"ok"`
	Business LandingBusiness      `json:"business"`
	Config   domain.LandingConfig `json:"config"`
}

// ── 历史与顾客 ──

type HistoryItem struct {
	ID          string             `json:"id"`
	CreatedAt   time.Time          `json:"created_at"`
	ClientID    string             `json:"client_id"`
	ClientName  string             `json:"client_name"`
	StampsAdded int                `json:"stamps_added"`
	RewardsUsed int                `json:"rewards_used"`
	Payload     domain.ScanPayload `json:"payload"`
}

type HistoryResponse struct {
	OK    bool          `json:"ok"`
	Items []HistoryItem `json:"items"`
	Total int64         `json:"total"`
}

type ClientRow struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone"`
	Stamps     int        `json:"stamps"`
	Rewards    *int       `json:"rewards"`
	LastScanAt *time.Time `json:"last_scan_at"`
}

type ClientsResponse struct {
	Clients []ClientRow `json:"clients"`
}

type ClientResponse struct {
	Client ClientRow `json:"client"`
}

type PublicBusinessResponse struct {
	Business PublicBusinessDTO `json:"business"`
}

type QRResponse struct {
	OK       bool   `json:"ok"`
	QR       string `json:"qr"`
	Payload  string `json:"payload"`
	Business struct {
		Name string `json:"name"`
	} `json:"business"`
}

func toBusinessDTO(b *domain.Business) BusinessDTO {
	return BusinessDTO{
		ID:              b.ID,
		Name:            b.Name,
		Email:           b.Email,
		Slug:            b.Slug,
		RewardName:      b.Program.RewardName,
		RewardThreshold: b.Program.RewardThreshold,
		ThemeColor:      b.ThemeColor,
	}
}

func toMessagesDTO(m domain.Messages) MessagesDTO {
	return MessagesDTO{
		StampOne:         nullable(m.StampOne),
		StampMany:        nullable(m.StampMany),
		RewardEarnedOne:  nullable(m.RewardEarnedOne),
		RewardEarnedMany: nullable(m.RewardEarnedMany),
		RewardRedeemOne:  nullable(m.RewardRedeemOne),
		RewardRedeemMany: nullable(m.RewardRedeemMany),
	}
}

func toProgramDTO(b *domain.Business) ProgramDTO {
	msgs := toMessagesDTO(b.Program.Messages)
	return ProgramDTO{
		ID:                  b.ID,
		Name:                b.Name,
		RewardThreshold:     b.Program.RewardThreshold,
		RewardName:          b.Program.RewardName,
		RewardProductCode:   b.Program.RewardProductCode,
		RewardDescription:   b.Program.RewardDescription,
		MsgStampOne:         msgs.StampOne,
		MsgStampMany:        msgs.StampMany,
		MsgRewardEarnedOne:  msgs.RewardEarnedOne,
		MsgRewardEarnedMany: msgs.RewardEarnedMany,
		MsgRewardRedeemOne:  msgs.RewardRedeemOne,
		MsgRewardRedeemMany: msgs.RewardRedeemMany,
	}
}

func toSettingsDTO(b *domain.Business) SettingsDTO {
	return SettingsDTO{
		ID:                 b.ID,
		Name:               b.Name,
		Slug:               b.Slug,
		RewardName:         b.Program.RewardName,
		RewardThreshold:    b.Program.RewardThreshold,
		CardExpirationMode: string(b.Expiration.Mode),
		CardExpirationDate: b.Expiration.Date,
		CardExpirationDays: b.Expiration.Days,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
