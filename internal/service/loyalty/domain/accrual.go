// internal/service/loyalty/domain/accrual.go
package domain

// Accrual 是一次集章的计算结果
type Accrual struct {
	StampsBefore  int
	StampsAfter   int
	RewardsEarned int
}

// Redemption 是一次兑换的计算结果
type Redemption struct {
	RewardsBefore int
	RewardsAfter  int
}

// NormalizeCount 把小于 1 的数量视为 1
func NormalizeCount(count int) int {
	if count < 1 {
		return 1
	}
	return count
}

// AddStamps 计算集章结果。
// 阈值为正时超出部分按整除折算为奖励，余数保留为新的印章数，
// 因此结果总满足 0 <= StampsAfter < threshold。
func AddStamps(stampsBefore int, threshold *int, count int) Accrual {
	count = NormalizeCount(count)
	if threshold == nil || *threshold <= 0 {
		return Accrual{StampsBefore: stampsBefore, StampsAfter: stampsBefore + count}
	}
	total := stampsBefore + count
	return Accrual{
		StampsBefore:  stampsBefore,
		StampsAfter:   total % *threshold,
		RewardsEarned: total / *threshold,
	}
}

// Redeem 计算兑换结果，奖励不足时返回 ErrInsufficientRewards
func Redeem(rewards, count int) (Redemption, error) {
	count = NormalizeCount(count)
	if rewards < count {
		return Redemption{}, ErrInsufficientRewards
	}
	return Redemption{RewardsBefore: rewards, RewardsAfter: rewards - count}, nil
}
