package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"stampcard/internal/pkg/logger"
	"stampcard/internal/zookeeper"
)

// ZKMembershipLocker 用 ZooKeeper 临时顺序节点串行化同一会员的扫码。
// 数据库的乐观锁仍然生效，这把锁只减少多实例下的冲突重试。
type ZKMembershipLocker struct {
	conn    *zookeeper.Conn
	timeout time.Duration
}

func NewZKMembershipLocker(conn *zookeeper.Conn, timeout time.Duration) *ZKMembershipLocker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ZKMembershipLocker{conn: conn, timeout: timeout}
}

func (z *ZKMembershipLocker) Lock(ctx context.Context, membershipID string) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(z.conn, "membership-"+membershipID)
	if err != nil {
		return nil, errors.Wrap(err, "zk: prepare membership lock")
	}
	lockCtx, cancel := context.WithTimeout(ctx, z.timeout)
	defer cancel()
	if err := lock.Lock(lockCtx); err != nil {
		return nil, errors.Wrap(err, "zk: acquire membership lock")
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("membership_id", membershipID).Msg("zk unlock failed")
		}
	}, nil
}
