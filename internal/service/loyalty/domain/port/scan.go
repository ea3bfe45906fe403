// internal/service/loyalty/domain/port/scan.go
package port

import (
	"context"

	"stampcard/internal/service/loyalty/domain"
)

// ScanEventPublisher 把扫码事件发布给下游（scan-feed）
type ScanEventPublisher interface {
	PublishScan(ctx context.Context, ev domain.ScanRecorded) error
}

// MembershipLocker 在多个实例之间串行化同一会员的扫码
type MembershipLocker interface {
	// Lock 获取锁并返回释放函数
	Lock(ctx context.Context, membershipID string) (unlock func(), err error)
}
