package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"stampcard/internal/pkg/logger"
	"stampcard/internal/service/loyalty/domain"
)

const (
	businessCachePrefix = "loyalty:business:"
	// 写库后再删一次缓存的延迟，覆盖写库前已开始的回源
	defaultEvictDelay = 500 * time.Millisecond
)

// CachedBusinessRepository 为按 ID 读取商户（即计划配置）加一层 Redis 读穿缓存。
// 同一商户的并发回源通过 singleflight 合并；修改计划或过期策略时删除缓存。
// Redis 不可用时直接回源，不影响业务。缓存中不保存密码哈希。
type CachedBusinessRepository struct {
	domain.BusinessRepository
	rdb        goredis.UniversalClient
	ttl        time.Duration
	evictDelay time.Duration
	group      singleflight.Group
}

func NewCachedBusinessRepository(next domain.BusinessRepository, rdb goredis.UniversalClient, ttl time.Duration) *CachedBusinessRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedBusinessRepository{BusinessRepository: next, rdb: rdb, ttl: ttl, evictDelay: defaultEvictDelay}
}

func (r *CachedBusinessRepository) FindByID(ctx context.Context, id string) (*domain.Business, error) {
	key := businessCachePrefix + id
	if raw, err := r.rdb.Get(ctx, key).Bytes(); err == nil {
		var model BusinessModel
		if err := json.Unmarshal(raw, &model); err == nil {
			return ToDomainBusiness(&model), nil
		}
	} else if err != goredis.Nil {
		logger.Ctx(ctx).Warn().Err(err).Str("business_id", id).Msg("business cache read failed")
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		b, err := r.BusinessRepository.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		model := FromDomainBusiness(b)
		model.PasswordHash = ""
		if raw, err := json.Marshal(model); err == nil {
			if err := r.rdb.Set(ctx, key, raw, r.ttl).Err(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("business_id", id).Msg("business cache write failed")
			}
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	// 复制一份，避免共享 singleflight 结果的调用方互相影响
	b := *v.(*domain.Business)
	return &b, nil
}

func (r *CachedBusinessRepository) UpdateProgram(ctx context.Context, id string, p domain.Program) error {
	if err := r.BusinessRepository.UpdateProgram(ctx, id, p); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *CachedBusinessRepository) UpdateExpiration(ctx context.Context, id string, p domain.ExpirationPolicy) error {
	if err := r.BusinessRepository.UpdateExpiration(ctx, id, p); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

// invalidate 立即删除缓存，并在 evictDelay 后再删一次：
// 写库之前读到旧数据的回源可能在第一次删除之后才写入缓存。
func (r *CachedBusinessRepository) invalidate(ctx context.Context, id string) {
	key := businessCachePrefix + id
	log := logger.Ctx(ctx)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		log.Warn().Err(err).Str("business_id", id).Msg("business cache invalidate failed")
	}
	time.AfterFunc(r.evictDelay, func() {
		delCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := r.rdb.Del(delCtx, key).Err(); err != nil {
			log.Warn().Err(err).Str("business_id", id).Msg("delayed business cache invalidate failed")
		}
	})
}
