// internal/service/loyalty/domain/membership.go
package domain

import "time"

// Client 是终端顾客，可以同时是多个商户的会员
type Client struct {
	ID        string
	Name      string
	Lastname  string
	Email     string
	Phone     string
	Birthday  string // 原样保存前端提交的日期字符串
	CreatedAt time.Time
}

// Membership 是 (商户, 顾客) 之间的集章状态
type Membership struct {
	ID         string
	BusinessID string
	ClientID   string
	Stamps     int
	// Rewards 为 nil 表示账本没有奖励计数列
	Rewards    *int
	LastScanAt *time.Time
	CreatedAt  time.Time
	Version    int64
}

// MembershipDetail 是会员状态连同顾客资料的只读视图
type MembershipDetail struct {
	Membership Membership
	Client     Client
}

// RewardsOrZero 返回可用奖励数，不支持奖励时为 0
func (m *Membership) RewardsOrZero() int {
	if m.Rewards == nil {
		return 0
	}
	return *m.Rewards
}

// AddStamps 在当前快照上执行集章，并把结果写回会员状态。
// 不支持奖励计数时仍按阈值折算印章，但不累计奖励。
func (m *Membership) AddStamps(threshold *int, count int, now time.Time) Accrual {
	acc := AddStamps(m.Stamps, threshold, count)
	m.Stamps = acc.StampsAfter
	if m.Rewards != nil {
		r := *m.Rewards + acc.RewardsEarned
		m.Rewards = &r
	}
	m.LastScanAt = &now
	return acc
}

// Redeem 兑换奖励，失败时不修改任何状态
func (m *Membership) Redeem(count int, now time.Time) (Redemption, error) {
	if m.Rewards == nil {
		return Redemption{}, ErrRewardsNotSupported
	}
	red, err := Redeem(*m.Rewards, count)
	if err != nil {
		return Redemption{}, err
	}
	r := red.RewardsAfter
	m.Rewards = &r
	m.LastScanAt = &now
	return red, nil
}
