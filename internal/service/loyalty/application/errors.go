package application

import (
	"github.com/pkg/errors"

	"stampcard/internal/service/loyalty/domain"
)

// ErrorCode 把错误映射为对外稳定的错误码，未知错误一律视为 SERVER_ERROR
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrMembershipNotFound):
		return "MEMBERSHIP_NOT_FOUND"
	case errors.Is(err, domain.ErrCardExpired):
		return "CARD_EXPIRED"
	case errors.Is(err, domain.ErrInsufficientRewards):
		return "NOT_ENOUGH_REWARDS"
	case errors.Is(err, domain.ErrRewardsNotSupported):
		return "REWARDS_NOT_SUPPORTED"
	case errors.Is(err, domain.ErrMissingClientID):
		return "MISSING_CLIENT_ID"
	case errors.Is(err, domain.ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, domain.ErrBusinessNotFound):
		return "BUSINESS_NOT_FOUND"
	case errors.Is(err, domain.ErrClientNotFound):
		return "CLIENT_NOT_FOUND"
	case errors.Is(err, domain.ErrSlugRequired):
		return "SLUG_REQUIRED"
	case errors.Is(err, domain.ErrDuplicate):
		return "DUPLICATE"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, domain.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, domain.ErrInvalidLanding):
		return "INVALID_CONFIG"
	default:
		return "SERVER_ERROR"
	}
}

// isBusinessRule 判断错误是否为调用方可处理的业务规则错误
func isBusinessRule(err error) bool {
	return ErrorCode(err) != "SERVER_ERROR"
}
