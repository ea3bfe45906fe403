package infrastructure

import (
	"encoding/json"

	"stampcard/internal/service/loyalty/domain"
)

// ToDomainBusiness 将数据库模型转换为领域模型
func ToDomainBusiness(model *BusinessModel) *domain.Business {
	if model == nil {
		return nil
	}
	mode := domain.ExpirationMode(model.CardExpirationMode)
	if mode == "" {
		mode = domain.ExpirationNone
	}
	return &domain.Business{
		ID:           model.ID,
		Name:         model.Name,
		Email:        model.Email,
		Slug:         model.Slug,
		PasswordHash: model.PasswordHash,
		ThemeColor:   model.ThemeColor,
		Program: domain.Program{
			RewardThreshold:   model.RewardThreshold,
			RewardName:        model.RewardName,
			RewardProductCode: model.RewardProductCode,
			RewardDescription: model.RewardDescription,
			Messages: domain.Messages{
				StampOne:         model.MsgStampOne,
				StampMany:        model.MsgStampMany,
				RewardEarnedOne:  model.MsgRewardEarnedOne,
				RewardEarnedMany: model.MsgRewardEarnedMany,
				RewardRedeemOne:  model.MsgRewardRedeemOne,
				RewardRedeemMany: model.MsgRewardRedeemMany,
			},
		},
		Expiration: domain.ExpirationPolicy{
			Mode: mode,
			Date: model.CardExpirationDate,
			Days: model.CardExpirationDays,
		},
		CreatedAt: model.CreatedAt,
	}
}

// FromDomainBusiness 将领域模型转换为数据库模型 (用于插入)
func FromDomainBusiness(b *domain.Business) *BusinessModel {
	m := &BusinessModel{
		ID:           b.ID,
		Name:         b.Name,
		Email:        b.Email,
		Slug:         b.Slug,
		PasswordHash: b.PasswordHash,
		ThemeColor:   b.ThemeColor,
		CreatedAt:    b.CreatedAt,
	}
	applyProgram(m, b.Program)
	applyExpiration(m, b.Expiration)
	return m
}

func applyProgram(m *BusinessModel, p domain.Program) {
	m.RewardThreshold = p.RewardThreshold
	m.RewardName = p.RewardName
	m.RewardProductCode = p.RewardProductCode
	m.RewardDescription = p.RewardDescription
	m.MsgStampOne = p.Messages.StampOne
	m.MsgStampMany = p.Messages.StampMany
	m.MsgRewardEarnedOne = p.Messages.RewardEarnedOne
	m.MsgRewardEarnedMany = p.Messages.RewardEarnedMany
	m.MsgRewardRedeemOne = p.Messages.RewardRedeemOne
	m.MsgRewardRedeemMany = p.Messages.RewardRedeemMany
}

func applyExpiration(m *BusinessModel, p domain.ExpirationPolicy) {
	m.CardExpirationMode = string(p.Mode)
	if m.CardExpirationMode == "" {
		m.CardExpirationMode = string(domain.ExpirationNone)
	}
	m.CardExpirationDate = p.Date
	m.CardExpirationDays = p.Days
}

func ToDomainClient(model *ClientModel) *domain.Client {
	if model == nil {
		return nil
	}
	return &domain.Client{
		ID:        model.ID,
		Name:      model.Name,
		Lastname:  model.Lastname,
		Email:     model.Email,
		Phone:     model.Phone,
		Birthday:  model.Birthday,
		CreatedAt: model.CreatedAt,
	}
}

func FromDomainClient(c *domain.Client) *ClientModel {
	return &ClientModel{
		ID:        c.ID,
		Name:      c.Name,
		Lastname:  c.Lastname,
		Email:     c.Email,
		Phone:     c.Phone,
		Birthday:  c.Birthday,
		CreatedAt: c.CreatedAt,
	}
}

// ToDomainMembership 转换会员模型；withRewards 为 false 时奖励计数为 nil
func ToDomainMembership(model *MembershipModel, withRewards bool) *domain.Membership {
	m := &domain.Membership{
		ID:         model.ID,
		BusinessID: model.BusinessID,
		ClientID:   model.ClientID,
		Stamps:     model.Stamps,
		LastScanAt: model.LastScanAt,
		CreatedAt:  model.CreatedAt,
		Version:    model.Version,
	}
	if withRewards {
		r := model.Rewards
		m.Rewards = &r
	}
	return m
}

func FromDomainScanEvent(ev *domain.ScanEvent) (*ScanModel, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, err
	}
	return &ScanModel{
		ID:           ev.ID,
		MembershipID: ev.MembershipID,
		ClientID:     ev.ClientID,
		BusinessID:   ev.BusinessID,
		StampsAdded:  ev.StampsAdded,
		RewardsUsed:  ev.RewardsUsed,
		Payload:      string(payload),
		CreatedAt:    ev.CreatedAt,
	}, nil
}
