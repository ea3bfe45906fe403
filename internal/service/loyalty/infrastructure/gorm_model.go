package infrastructure

import (
	"time"

	"gorm.io/gorm"
)

// BusinessModel 对应数据库中的 businesses 表
type BusinessModel struct {
	ID                  string `gorm:"primaryKey;size:36"`
	Name                string `gorm:"size:191;not null"`
	Email               string `gorm:"size:191;uniqueIndex;not null"`
	Slug                string `gorm:"size:191;uniqueIndex;not null"`
	PasswordHash        string `gorm:"size:255;not null"`
	ThemeColor          string `gorm:"size:32"`
	RewardThreshold     *int
	RewardName          string `gorm:"size:191"`
	RewardProductCode   string `gorm:"size:191"`
	RewardDescription   string `gorm:"type:text"`
	MsgStampOne         string `gorm:"type:text"`
	MsgStampMany        string `gorm:"type:text"`
	MsgRewardEarnedOne  string `gorm:"type:text"`
	MsgRewardEarnedMany string `gorm:"type:text"`
	MsgRewardRedeemOne  string `gorm:"type:text"`
	MsgRewardRedeemMany string `gorm:"type:text"`
	CardExpirationMode  string `gorm:"size:32;not null;default:'none'"`
	CardExpirationDate  *time.Time
	CardExpirationDays  *int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName 指定 GORM 应该使用的表名
func (BusinessModel) TableName() string {
	return "businesses"
}

// ClientModel 对应数据库中的 clients 表
type ClientModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:191"`
	Lastname  string `gorm:"size:191"`
	Email     string `gorm:"size:191;index"`
	Phone     string `gorm:"size:64;index"`
	Birthday  string `gorm:"size:32"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ClientModel) TableName() string {
	return "clients"
}

// MembershipModel 对应数据库中的 memberships 表。
// Version 用于乐观锁，每次写入加一。
type MembershipModel struct {
	ID         string `gorm:"primaryKey;size:36"`
	BusinessID string `gorm:"size:36;not null;uniqueIndex:idx_membership_pair"`
	ClientID   string `gorm:"size:36;not null;uniqueIndex:idx_membership_pair;index"`
	Stamps     int    `gorm:"not null;default:0"`
	Rewards    int    `gorm:"not null;default:0"`
	LastScanAt *time.Time
	Version    int64 `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (MembershipModel) TableName() string {
	return "memberships"
}

// ScanModel 对应数据库中的 scans 表，只追加
type ScanModel struct {
	ID           string    `gorm:"primaryKey;size:36"`
	MembershipID string    `gorm:"size:36;index"`
	ClientID     string    `gorm:"size:36"`
	BusinessID   string    `gorm:"size:36;index:idx_scans_business_time"`
	StampsAdded  int       `gorm:"not null;default:0"`
	RewardsUsed  int       `gorm:"not null;default:0"`
	Payload      string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"index:idx_scans_business_time"`
}

func (ScanModel) TableName() string {
	return "scans"
}

// LandingModel 对应数据库中的 restaurant_landing 表
type LandingModel struct {
	BusinessID string `gorm:"primaryKey;size:36"`
	Config     string `gorm:"type:text"`
	UpdatedAt  time.Time
}

func (LandingModel) TableName() string {
	return "restaurant_landing"
}

// AutoMigrate 创建或更新全部表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&BusinessModel{},
		&ClientModel{},
		&MembershipModel{},
		&ScanModel{},
		&LandingModel{},
	)
}
