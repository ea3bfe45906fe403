// internal/service/loyalty/domain/repository.go
package domain

import "context"

// MembershipMutation 在最新快照上执行业务计算；返回错误时不写回
type MembershipMutation func(m *Membership) error

// Ledger 定义了会员账本的持久化接口。
// 它位于领域层，但由基础设施层实现。
type Ledger interface {
	// SupportsRewards 报告底层存储是否有奖励计数
	SupportsRewards() bool
	// SupportsAuditLog 报告底层存储是否有扫码日志
	SupportsAuditLog() bool

	// FindByClient 查找顾客在商户下的会员状态
	FindByClient(ctx context.Context, businessID, clientID string) (*MembershipDetail, error)

	// FindFirstByClient 返回顾客的任意一个会员关系（用于不区分商户的场景）
	FindFirstByClient(ctx context.Context, clientID string) (*Membership, error)

	// UpdateMembership 读取最新快照、执行 mutate 并原子地写回。
	// 并发写入同一会员时不会丢失更新。
	UpdateMembership(ctx context.Context, membershipID string, mutate MembershipMutation) (*Membership, error)

	// EnsureMembership 幂等地创建 (商户, 顾客) 会员关系
	EnsureMembership(ctx context.Context, businessID, clientID string) (*Membership, error)

	// ListByBusiness 按顾客姓名排序列出商户的会员
	ListByBusiness(ctx context.Context, businessID string) ([]MembershipDetail, error)

	// AppendScanEvent 追加一条扫码日志
	AppendScanEvent(ctx context.Context, ev *ScanEvent) error

	// ListScanEvents 按时间倒序分页查询扫码日志
	ListScanEvents(ctx context.Context, businessID string, limit, offset int) ([]ScanEntry, int64, error)

	// Ping 检查底层存储是否可用
	Ping(ctx context.Context) error
}

// BusinessRepository 定义了商户聚合的持久化接口
type BusinessRepository interface {
	// Create 保存新商户；email 或 slug 冲突时返回 ErrDuplicate
	Create(ctx context.Context, b *Business) error
	FindByID(ctx context.Context, id string) (*Business, error)
	FindByEmail(ctx context.Context, email string) (*Business, error)
	FindBySlug(ctx context.Context, slug string) (*Business, error)
	UpdateProgram(ctx context.Context, id string, p Program) error
	UpdateExpiration(ctx context.Context, id string, p ExpirationPolicy) error
}

// ClientRepository 定义了顾客的持久化接口
type ClientRepository interface {
	// FindForBusiness 在商户的会员中按邮箱或电话查找顾客
	FindForBusiness(ctx context.Context, businessID, email, phone string) (*Client, error)
	FindByID(ctx context.Context, id string) (*Client, error)
	Create(ctx context.Context, c *Client) error
	Update(ctx context.Context, c *Client) error
}

// LandingRepository 保存商户的注册页配置
type LandingRepository interface {
	// Get 返回已保存的配置，未保存过时 ok 为 false
	Get(ctx context.Context, businessID string) (cfg LandingConfig, ok bool, err error)
	Save(ctx context.Context, businessID string, cfg LandingConfig) error
}
