// internal/service/loyalty/domain/event.go
package domain

import "time"

const (
	ScanTypeAddStamp = "add-stamp"
	ScanTypeRedeem   = "redeem"
)

// ScanPayload 是扫码日志中记录的动作详情
type ScanPayload struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// ScanEvent 是一次集章或兑换的审计记录，只追加不修改
type ScanEvent struct {
	ID           string
	MembershipID string
	ClientID     string
	BusinessID   string
	StampsAdded  int
	RewardsUsed  int
	Payload      ScanPayload
	CreatedAt    time.Time
}

// ScanEntry 是历史列表中的一行
type ScanEntry struct {
	ScanEvent
	ClientName string
}

func NewStampEvent(id string, m *Membership, count int, now time.Time) *ScanEvent {
	return &ScanEvent{
		ID:           id,
		MembershipID: m.ID,
		ClientID:     m.ClientID,
		BusinessID:   m.BusinessID,
		StampsAdded:  count,
		Payload:      ScanPayload{Type: ScanTypeAddStamp, Count: count},
		CreatedAt:    now,
	}
}

func NewRedeemEvent(id string, m *Membership, count int, now time.Time) *ScanEvent {
	return &ScanEvent{
		ID:           id,
		MembershipID: m.ID,
		ClientID:     m.ClientID,
		BusinessID:   m.BusinessID,
		RewardsUsed:  count,
		Payload:      ScanPayload{Type: ScanTypeRedeem, Count: count},
		CreatedAt:    now,
	}
}

// ScanRecorded 是发布到 Kafka 的扫码事件，scan-feed 服务消费后推送给商户后台
type ScanRecorded struct {
	EventID      string    `json:"event_id"`
	BusinessID   string    `json:"business_id"`
	MembershipID string    `json:"membership_id"`
	ClientID     string    `json:"client_id"`
	ClientName   string    `json:"client_name"`
	Type         string    `json:"type"`
	Count        int       `json:"count"`
	StampsAfter  int       `json:"stamps_after"`
	RewardsAfter *int      `json:"rewards_after"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewScanRecorded 由审计记录和更新后的会员状态构建对外事件
func NewScanRecorded(ev *ScanEvent, m *Membership, clientName string) ScanRecorded {
	return ScanRecorded{
		EventID:      ev.ID,
		BusinessID:   ev.BusinessID,
		MembershipID: ev.MembershipID,
		ClientID:     ev.ClientID,
		ClientName:   clientName,
		Type:         ev.Payload.Type,
		Count:        ev.Payload.Count,
		StampsAfter:  m.Stamps,
		RewardsAfter: m.Rewards,
		OccurredAt:   ev.CreatedAt,
	}
}
