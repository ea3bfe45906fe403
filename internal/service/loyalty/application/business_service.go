package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stampcard/internal/pkg/logger"
	"stampcard/internal/service/loyalty/domain"
	"stampcard/internal/service/loyalty/domain/port"
)

const minPasswordLength = 6

// BusinessService 处理商户注册、登录以及计划配置
type BusinessService struct {
	businesses domain.BusinessRepository
	tokens     port.TokenIssuer
	hasher     port.PasswordHasher
	clock      domain.Clock
	tracer     trace.Tracer
}

func NewBusinessService(businesses domain.BusinessRepository, tokens port.TokenIssuer, hasher port.PasswordHasher, clock domain.Clock, tracer trace.Tracer) *BusinessService {
	return &BusinessService{businesses: businesses, tokens: tokens, hasher: hasher, clock: clock, tracer: tracer}
}

// Register 创建商户并直接签发令牌
func (s *BusinessService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.Register")
	defer span.End()

	if len(req.Password) < minPasswordLength {
		return nil, domain.ErrInvalidInput
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	biz, err := domain.NewBusiness(uuid.NewString(), req.Name, req.Email, hash, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.businesses.Create(ctx, biz); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("business.id", biz.ID), attribute.String("business.slug", biz.Slug))

	token, err := s.tokens.Issue(biz.ID)
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("business_id", biz.ID).Str("slug", biz.Slug).Msg("business registered")
	return &AuthResponse{Token: token, Business: toBusinessDTO(biz)}, nil
}

// Login 校验邮箱和密码，邮箱不存在与密码错误返回同一个错误
func (s *BusinessService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.Login")
	defer span.End()

	if !domain.ValidEmail(strings.TrimSpace(req.Email)) || len(req.Password) < minPasswordLength {
		return nil, domain.ErrInvalidInput
	}
	biz, err := s.businesses.FindByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, domain.ErrBusinessNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !s.hasher.Compare(biz.PasswordHash, req.Password) {
		return nil, domain.ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(biz.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, Business: toBusinessDTO(biz)}, nil
}

// Authenticate 把令牌解析为商户 ID
func (s *BusinessService) Authenticate(token string) (string, error) {
	return s.tokens.Parse(token)
}

func (s *BusinessService) Me(ctx context.Context, businessID string) (*MeResponse, error) {
	biz, err := s.businesses.FindByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return &MeResponse{Business: toBusinessDTO(biz)}, nil
}

func (s *BusinessService) GetProgram(ctx context.Context, businessID string) (*ProgramResponse, error) {
	biz, err := s.businesses.FindByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return &ProgramResponse{Program: toProgramDTO(biz)}, nil
}

// UpdateProgram 部分更新计划，已有会员不会被追溯调整
func (s *BusinessService) UpdateProgram(ctx context.Context, businessID string, req ProgramUpdateRequest) (*ProgramResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.UpdateProgram")
	defer span.End()
	span.SetAttributes(attribute.String("business.id", businessID))

	biz, err := s.businesses.FindByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	err = biz.Program.Apply(domain.ProgramUpdate{
		RewardThreshold:   req.RewardThreshold,
		RewardName:        req.RewardName,
		RewardProductCode: req.RewardProductCode,
		RewardDescription: req.RewardDescription,
		StampOne:          req.MsgStampOne,
		StampMany:         req.MsgStampMany,
		RewardEarnedOne:   req.MsgRewardEarnedOne,
		RewardEarnedMany:  req.MsgRewardEarnedMany,
		RewardRedeemOne:   req.MsgRewardRedeemOne,
		RewardRedeemMany:  req.MsgRewardRedeemMany,
	})
	if err != nil {
		return nil, err
	}
	if err := s.businesses.UpdateProgram(ctx, businessID, biz.Program); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("business_id", businessID).Msg("program updated")
	return &ProgramResponse{OK: true, Program: toProgramDTO(biz)}, nil
}

func (s *BusinessService) GetSettings(ctx context.Context, businessID string) (*SettingsResponse, error) {
	biz, err := s.businesses.FindByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return &SettingsResponse{Business: toSettingsDTO(biz)}, nil
}

// UpdateExpiration 设置会员卡过期策略
func (s *BusinessService) UpdateExpiration(ctx context.Context, businessID string, req ExpirationRequest) (*SettingsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.UpdateExpiration")
	defer span.End()
	span.SetAttributes(attribute.String("business.id", businessID), attribute.String("expiration.mode", req.Mode))

	var date *time.Time
	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			return nil, err
		}
		date = &d
	}
	policy, err := domain.NewExpirationPolicy(domain.ExpirationMode(req.Mode), date, req.Days)
	if err != nil {
		return nil, err
	}

	biz, err := s.businesses.FindByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if err := s.businesses.UpdateExpiration(ctx, businessID, policy); err != nil {
		span.RecordError(err)
		return nil, err
	}
	biz.Expiration = policy
	logger.Ctx(ctx).Info().Str("business_id", businessID).Str("mode", req.Mode).Msg("expiration updated")
	return &SettingsResponse{OK: true, Business: toSettingsDTO(biz)}, nil
}

// parseDate 接受 YYYY-MM-DD 或 RFC3339
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, domain.ErrInvalidInput
	}
	return t.UTC(), nil
}
