package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stampcard/internal/pkg/logger"
	"stampcard/internal/pkg/metrics"
	"stampcard/internal/service/loyalty/domain"
	"stampcard/internal/service/loyalty/domain/port"
)

const publishTimeout = 2 * time.Second

// ScanService 定义了扫码端的三个用例：预览、集章、兑换
type ScanService struct {
	ledger     domain.Ledger
	businesses domain.BusinessRepository
	locker     port.MembershipLocker
	publisher  port.ScanEventPublisher
	clock      domain.Clock
	tracer     trace.Tracer
	newID      func() string
}

type ScanOption func(*ScanService)

// WithLocker 设置跨实例的会员锁
func WithLocker(l port.MembershipLocker) ScanOption {
	return func(s *ScanService) { s.locker = l }
}

// WithPublisher 设置扫码事件的发布者
func WithPublisher(p port.ScanEventPublisher) ScanOption {
	return func(s *ScanService) { s.publisher = p }
}

func WithClock(c domain.Clock) ScanOption {
	return func(s *ScanService) { s.clock = c }
}

// NewScanService 创建一个新的扫码服务实例
func NewScanService(ledger domain.Ledger, businesses domain.BusinessRepository, tracer trace.Tracer, opts ...ScanOption) *ScanService {
	s := &ScanService{
		ledger:     ledger,
		businesses: businesses,
		locker:     port.NoopLocker{},
		publisher:  port.NoopPublisher{},
		clock:      domain.SystemClock,
		tracer:     tracer,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preview 只读地返回会员卡状态，过期的卡同样可以预览
func (s *ScanService) Preview(ctx context.Context, businessID, clientID string) (*PreviewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.Preview")
	defer span.End()
	span.SetAttributes(attribute.String("business.id", businessID), attribute.String("client.id", clientID))

	detail, biz, err := s.load(ctx, businessID, clientID)
	if err != nil {
		return nil, s.reject(ctx, span, "preview", err)
	}

	m := detail.Membership
	expired := domain.IsExpired(biz.Expiration, m.CreatedAt, s.clock.Now())
	span.SetAttributes(attribute.Bool("card.expired", expired))

	return &PreviewResponse{
		OK:         true,
		Client:     ClientRef{ID: detail.Client.ID, Name: detail.Client.Name},
		Business:   BusinessRef{ID: biz.ID, Name: biz.Name},
		Membership: MembershipSnapshot{ID: m.ID, Stamps: m.Stamps, Rewards: m.Rewards},
		Program: ProgramSnapshot{
			RewardThreshold: biz.Program.RewardThreshold,
			RewardName:      biz.Program.RewardName,
			Messages:        toMessagesDTO(biz.Program.Messages),
		},
		CanRedeem: s.ledger.SupportsRewards() && m.RewardsOrZero() > 0,
		Expired:   expired,
	}, nil
}

// AddStamp 是集章的核心业务逻辑
func (s *ScanService) AddStamp(ctx context.Context, req ScanRequest) (*AddStampResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.AddStamp")
	defer span.End()

	count := domain.NormalizeCount(req.Count)
	span.SetAttributes(
		attribute.String("business.id", req.BusinessID),
		attribute.String("client.id", req.ClientID),
		attribute.Int("scan.count", count),
	)

	// 1. 加载会员和计划配置
	detail, biz, err := s.load(ctx, req.BusinessID, req.ClientID)
	if err != nil {
		return nil, s.reject(ctx, span, "add-stamp", err)
	}

	// 2. 过期的卡拒绝集章
	now := s.clock.Now()
	if domain.IsExpired(biz.Expiration, detail.Membership.CreatedAt, now) {
		return nil, s.reject(ctx, span, "add-stamp", domain.ErrCardExpired)
	}

	// 3. 在最新快照上计算并原子写回
	unlock, err := s.locker.Lock(ctx, detail.Membership.ID)
	if err != nil {
		return nil, s.reject(ctx, span, "add-stamp", err)
	}
	var acc domain.Accrual
	updated, err := s.ledger.UpdateMembership(ctx, detail.Membership.ID, func(m *domain.Membership) error {
		acc = m.AddStamps(biz.Program.RewardThreshold, count, now)
		return nil
	})
	unlock()
	if err != nil {
		return nil, s.reject(ctx, span, "add-stamp", err)
	}

	// 4. 尽力记录扫码日志，失败不影响结果
	s.record(ctx, domain.NewStampEvent(s.newID(), updated, count, now), updated, detail.Client.Name)

	metrics.StampsAdded.WithLabelValues(biz.ID).Add(float64(count))
	if acc.RewardsEarned > 0 {
		metrics.RewardsEarned.WithLabelValues(biz.ID).Add(float64(acc.RewardsEarned))
	}
	span.SetAttributes(attribute.Int("stamps.after", acc.StampsAfter), attribute.Int("rewards.earned", acc.RewardsEarned))

	// 5. 生成提示语
	msgCtx := domain.MessageContext{ClientName: detail.Client.Name, Count: count, RewardName: biz.Program.RewardName}
	resp := &AddStampResponse{
		OK: true,
		Membership: AddStampMembership{
			ID:               updated.ID,
			StampsBefore:     acc.StampsBefore,
			StampsAfter:      acc.StampsAfter,
			RewardsEarnedNow: acc.RewardsEarned,
			RewardsAfter:     updated.Rewards,
			RewardThreshold:  biz.Program.RewardThreshold,
			RewardName:       biz.Program.RewardName,
		},
		Messages: AddStampMessages{
			Stamp:        biz.Program.Messages.Render(domain.MessageStamp, msgCtx),
			RewardEarned: acc.RewardsEarned > 0,
		},
	}
	if acc.RewardsEarned > 0 {
		msgCtx.Count = acc.RewardsEarned
		msg := biz.Program.Messages.Render(domain.MessageRewardEarned, msgCtx)
		resp.Messages.RewardMessage = &msg
	}

	logger.Ctx(ctx).Info().
		Str("membership_id", updated.ID).
		Int("count", count).
		Int("stamps_after", acc.StampsAfter).
		Int("rewards_earned", acc.RewardsEarned).
		Msg("stamps added")
	return resp, nil
}

// Redeem 是兑换奖励的核心业务逻辑
func (s *ScanService) Redeem(ctx context.Context, req ScanRequest) (*RedeemResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.Redeem")
	defer span.End()

	count := domain.NormalizeCount(req.Count)
	span.SetAttributes(
		attribute.String("business.id", req.BusinessID),
		attribute.String("client.id", req.ClientID),
		attribute.Int("scan.count", count),
	)

	detail, biz, err := s.load(ctx, req.BusinessID, req.ClientID)
	if err != nil {
		return nil, s.reject(ctx, span, "redeem", err)
	}
	if !s.ledger.SupportsRewards() {
		return nil, s.reject(ctx, span, "redeem", domain.ErrRewardsNotSupported)
	}
	now := s.clock.Now()
	if domain.IsExpired(biz.Expiration, detail.Membership.CreatedAt, now) {
		return nil, s.reject(ctx, span, "redeem", domain.ErrCardExpired)
	}

	unlock, err := s.locker.Lock(ctx, detail.Membership.ID)
	if err != nil {
		return nil, s.reject(ctx, span, "redeem", err)
	}
	var red domain.Redemption
	updated, err := s.ledger.UpdateMembership(ctx, detail.Membership.ID, func(m *domain.Membership) error {
		var err error
		red, err = m.Redeem(count, now)
		return err
	})
	unlock()
	if err != nil {
		return nil, s.reject(ctx, span, "redeem", err)
	}

	s.record(ctx, domain.NewRedeemEvent(s.newID(), updated, count, now), updated, detail.Client.Name)
	metrics.RewardsRedeemed.WithLabelValues(biz.ID).Add(float64(count))

	rewardName := biz.Program.RewardName
	if rewardName == "" {
		rewardName = domain.DefaultRewardName
	}
	msg := biz.Program.Messages.Render(domain.MessageRewardRedeem, domain.MessageContext{
		ClientName: detail.Client.Name,
		Count:      count,
		RewardName: rewardName,
	})

	logger.Ctx(ctx).Info().
		Str("membership_id", updated.ID).
		Int("count", count).
		Int("rewards_after", red.RewardsAfter).
		Msg("rewards redeemed")
	return &RedeemResponse{
		OK:         true,
		Membership: RedeemMembership{ID: updated.ID, RewardsBefore: red.RewardsBefore, RewardsAfter: red.RewardsAfter},
		Messages:   RedeemMessages{Redeem: msg},
	}, nil
}

func (s *ScanService) load(ctx context.Context, businessID, clientID string) (*domain.MembershipDetail, *domain.Business, error) {
	if clientID == "" {
		return nil, nil, domain.ErrMissingClientID
	}
	detail, err := s.ledger.FindByClient(ctx, businessID, clientID)
	if err != nil {
		return nil, nil, err
	}
	biz, err := s.businesses.FindByID(ctx, detail.Membership.BusinessID)
	if err != nil {
		return nil, nil, err
	}
	return detail, biz, nil
}

// record 写扫码日志并发布事件，两者都是尽力而为：失败只记录日志和指标
func (s *ScanService) record(ctx context.Context, ev *domain.ScanEvent, m *domain.Membership, clientName string) {
	log := logger.Ctx(ctx)
	if s.ledger.SupportsAuditLog() {
		if err := s.ledger.AppendScanEvent(ctx, ev); err != nil {
			metrics.AuditFailures.WithLabelValues("ledger").Inc()
			log.Warn().Err(err).Str("membership_id", ev.MembershipID).Str("type", ev.Payload.Type).Msg("scan log skipped")
		}
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.publisher.PublishScan(pubCtx, domain.NewScanRecorded(ev, m, clientName)); err != nil {
		metrics.AuditFailures.WithLabelValues("kafka").Inc()
		log.Warn().Err(err).Str("membership_id", ev.MembershipID).Str("type", ev.Payload.Type).Msg("scan event not published")
	}
}

// reject 记录被拒绝的请求；业务规则错误按错误码计数，其余记为 span 错误
func (s *ScanService) reject(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	if isBusinessRule(err) {
		metrics.ScanRejections.WithLabelValues(op, ErrorCode(err)).Inc()
		logger.Ctx(ctx).Info().Str("operation", op).Str("code", ErrorCode(err)).Msg("scan rejected")
		return err
	}
	span.SetStatus(codes.Error, err.Error())
	logger.Ctx(ctx).Error().Err(err).Str("operation", op).Msg("scan failed")
	return err
}
