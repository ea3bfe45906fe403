// internal/service/loyalty/domain/expiration.go
package domain

import "time"

type ExpirationMode string

const (
	ExpirationNone           ExpirationMode = "none"
	ExpirationFixedDate      ExpirationMode = "fixed_date"
	ExpirationDaysFromSignup ExpirationMode = "days_from_signup"
)

// ExpirationPolicy 决定会员卡何时停止接受集章和兑换
type ExpirationPolicy struct {
	Mode ExpirationMode
	Date *time.Time // fixed_date 的截止日期
	Days *int       // days_from_signup 的天数
}

// NewExpirationPolicy 校验并规范化过期策略，与模式无关的字段会被清空
func NewExpirationPolicy(mode ExpirationMode, date *time.Time, days *int) (ExpirationPolicy, error) {
	switch mode {
	case ExpirationNone:
		return ExpirationPolicy{Mode: mode}, nil
	case ExpirationFixedDate:
		if date == nil || date.IsZero() {
			return ExpirationPolicy{}, ErrInvalidInput
		}
		d := *date
		return ExpirationPolicy{Mode: mode, Date: &d}, nil
	case ExpirationDaysFromSignup:
		if days == nil || *days <= 0 {
			return ExpirationPolicy{}, ErrInvalidInput
		}
		n := *days
		return ExpirationPolicy{Mode: mode, Days: &n}, nil
	default:
		return ExpirationPolicy{}, ErrInvalidInput
	}
}

// IsExpired 按策略判断会员卡是否已过期。
// fixed_date 按天比较（时间部分清零），到达截止日当天即过期。
func IsExpired(p ExpirationPolicy, createdAt, now time.Time) bool {
	switch p.Mode {
	case ExpirationFixedDate:
		if p.Date == nil {
			return false
		}
		return !startOfDay(now).Before(startOfDay(*p.Date))
	case ExpirationDaysFromSignup:
		if p.Days == nil || *p.Days <= 0 {
			return false
		}
		return !now.Before(createdAt.AddDate(0, 0, *p.Days))
	default:
		return false
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Clock 提供当前时间，测试中注入固定时钟
type Clock interface {
	Now() time.Time
}

// ClockFunc 把普通函数适配为 Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock 返回 UTC 的系统时间
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
