// internal/service/loyalty/domain/errors.go
package domain

import "errors"

// 业务规则错误，接口层通过 errors.Is 映射为稳定的错误码
var (
	ErrMembershipNotFound  = errors.New("membership not found")
	ErrCardExpired         = errors.New("card expired")
	ErrInsufficientRewards = errors.New("not enough rewards")
	ErrRewardsNotSupported = errors.New("rewards not supported")
	ErrInvalidInput        = errors.New("invalid input")
	ErrMissingClientID     = errors.New("missing client id")

	ErrBusinessNotFound   = errors.New("business not found")
	ErrClientNotFound     = errors.New("client not found")
	ErrSlugRequired       = errors.New("slug required")
	ErrDuplicate          = errors.New("email or slug already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidLanding     = errors.New("invalid landing config")

	// ErrConcurrentUpdate 表示乐观锁重试次数耗尽
	ErrConcurrentUpdate = errors.New("membership updated concurrently")
)
