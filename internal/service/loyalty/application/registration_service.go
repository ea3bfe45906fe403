package application

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"stampcard/internal/pkg/logger"
	"stampcard/internal/service/loyalty/domain"
)

// RegistrationService 处理顾客在商户公开页的自助注册
type RegistrationService struct {
	businesses domain.BusinessRepository
	clients    domain.ClientRepository
	ledger     domain.Ledger
	clock      domain.Clock
	tracer     trace.Tracer
	// 同一商户下相同邮箱/电话的并发注册合并为一次查找或创建
	group singleflight.Group
}

type enrollment struct {
	client     *domain.Client
	membership *domain.Membership
}

func NewRegistrationService(businesses domain.BusinessRepository, clients domain.ClientRepository, ledger domain.Ledger, clock domain.Clock, tracer trace.Tracer) *RegistrationService {
	return &RegistrationService{businesses: businesses, clients: clients, ledger: ledger, clock: clock, tracer: tracer}
}

// PublicBusiness 返回公开页展示的商户信息
func (s *RegistrationService) PublicBusiness(ctx context.Context, slug string) (*PublicBusinessResponse, error) {
	if slug == "" {
		return nil, domain.ErrSlugRequired
	}
	biz, err := s.businesses.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return &PublicBusinessResponse{Business: PublicBusinessDTO{
		ID:              biz.ID,
		Name:            biz.Name,
		Slug:            biz.Slug,
		RewardName:      biz.Program.RewardName,
		RewardThreshold: biz.Program.RewardThreshold,
		ThemeColor:      biz.ThemeColor,
	}}, nil
}

// Register 注册顾客并确保会员关系存在。
// 同一商户下按邮箱或电话识别老顾客，重复提交返回相同的 ID。
func (s *RegistrationService) Register(ctx context.Context, req PublicRegisterRequest) (*PublicRegisterResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.PublicRegister")
	defer span.End()

	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		return nil, domain.ErrSlugRequired
	}
	biz, err := s.businesses.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("business.id", biz.ID))

	birthday := req.Birthday
	if birthday == "" {
		birthday = req.Birthdate
	}
	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)

	fresh := &domain.Client{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Lastname:  strings.TrimSpace(req.Lastname),
		Email:     email,
		Phone:     phone,
		Birthday:  birthday,
		CreatedAt: s.clock.Now(),
	}
	var en *enrollment
	if email == "" && phone == "" {
		// 无法识别老顾客，每次都是新顾客
		en, err = s.enroll(ctx, biz.ID, fresh)
	} else {
		key := biz.ID + "\x00" + email + "\x00" + phone
		var v any
		v, err, _ = s.group.Do(key, func() (any, error) {
			// 发起者取消不应让合并进来的其他请求失败
			return s.enroll(context.WithoutCancel(ctx), biz.ID, fresh)
		})
		if err == nil {
			en = v.(*enrollment)
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	client, m := en.client, en.membership
	if client != fresh {
		// 老顾客只覆盖提交了的字段；合并的请求共享结果，先复制
		c := *en.client
		client = &c
		if mergeClient(client, req.Name, req.Lastname, email, phone, birthday) {
			if err := s.clients.Update(ctx, client); err != nil {
				span.RecordError(err)
				return nil, err
			}
		}
	}

	logger.Ctx(ctx).Info().
		Str("business_id", biz.ID).
		Str("client_id", client.ID).
		Str("membership_id", m.ID).
		Msg("client registered")
	return &PublicRegisterResponse{OK: true, ClientID: client.ID, MembershipID: m.ID}, nil
}

// enroll 在该商户的会员中查找老顾客，找不到则创建 fresh，并确保会员关系存在
func (s *RegistrationService) enroll(ctx context.Context, businessID string, fresh *domain.Client) (*enrollment, error) {
	email, phone := fresh.Email, fresh.Phone
	en := &enrollment{}
	client, err := s.clients.FindForBusiness(ctx, businessID, email, phone)
	switch {
	case errors.Is(err, domain.ErrClientNotFound):
		if err := s.clients.Create(ctx, fresh); err != nil {
			return nil, err
		}
		client = fresh
	case err != nil:
		return nil, err
	}
	en.client = client

	m, err := s.ledger.EnsureMembership(ctx, businessID, client.ID)
	if err != nil {
		return nil, err
	}
	en.membership = m
	return en, nil
}

// mergeClient 用非空值覆盖顾客资料，返回是否有变化
func mergeClient(c *domain.Client, name, lastname, email, phone, birthday string) bool {
	changed := false
	set := func(dst *string, v string) {
		v = strings.TrimSpace(v)
		if v != "" && v != *dst {
			*dst = v
			changed = true
		}
	}
	set(&c.Name, name)
	set(&c.Lastname, lastname)
	set(&c.Email, email)
	set(&c.Phone, phone)
	set(&c.Birthday, birthday)
	return changed
}
