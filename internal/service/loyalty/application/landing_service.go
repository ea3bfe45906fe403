package application

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"stampcard/internal/pkg/logger"
	"stampcard/internal/service/loyalty/domain"
)

const (
	landingSourceDefault = "default"
	landingSourceDB      = "db"
)

// LandingService 管理商户注册页的展示配置
type LandingService struct {
	landings   domain.LandingRepository
	businesses domain.BusinessRepository
	tracer     trace.Tracer
}

func NewLandingService(landings domain.LandingRepository, businesses domain.BusinessRepository, tracer trace.Tracer) *LandingService {
	return &LandingService{landings: landings, businesses: businesses, tracer: tracer}
}

// GetLanding 返回合并了默认值的配置，并标明配置来源
func (s *LandingService) GetLanding(ctx context.Context, businessID string) (*LandingResponse, error) {
	stored, ok, err := s.landings.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &LandingResponse{OK: true, Config: domain.DefaultLandingConfig(), Source: landingSourceDefault}, nil
	}
	return &LandingResponse{OK: true, Config: domain.MergeLandingConfig(stored), Source: landingSourceDB}, nil
}

// SaveLanding 原样保存配置，读取时再与默认值合并
func (s *LandingService) SaveLanding(ctx context.Context, businessID string, cfg domain.LandingConfig) error {
	ctx, span := s.tracer.Start(ctx, "service.SaveLanding")
	defer span.End()

	if cfg == nil {
		return domain.ErrInvalidLanding
	}
	if err := s.landings.Save(ctx, businessID, cfg); err != nil {
		span.RecordError(err)
		return err
	}
	logger.Ctx(ctx).Info().Str("business_id", businessID).Msg("landing saved")
	return nil
}

// PublicLanding 按 slug 返回公开注册页的配置
func (s *LandingService) PublicLanding(ctx context.Context, slug string) (*PublicLandingResponse, error) {
	if slug == "" {
		return nil, domain.ErrSlugRequired
	}
	biz, err := s.businesses.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	stored, _, err := s.landings.Get(ctx, biz.ID)
	if err != nil {
		return nil, err
	}
	return &PublicLandingResponse{
		OK:       true,
		Business: LandingBusiness{ID: biz.ID, Name: biz.Name, Slug: biz.Slug},
		Config:   domain.MergeLandingConfig(stored),
	}, nil
}
