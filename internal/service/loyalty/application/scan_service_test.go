package application

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stampcard/internal/pkg/metrics"
	"stampcard/internal/service/loyalty/domain"
)

func TestAddStampConvertsOverflowIntoRewards(t *testing.T) {
	e := newEnv(t)
	b := e.seedBusiness(t, intPtr(5), "café")
	reg := e.seedMember(t, b, "Ana", 3, 0)

	resp, err := e.scan.AddStamp(context.Background(), ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 4})
	require.NoError(t, err)

	assert.True(t, resp.OK)
	assert.Equal(t, 3, resp.Membership.StampsBefore)
	assert.Equal(t, 2, resp.Membership.StampsAfter)
	assert.Equal(t, 1, resp.Membership.RewardsEarnedNow)
	require.NotNil(t, resp.Membership.RewardsAfter)
	assert.Equal(t, 1, *resp.Membership.RewardsAfter)
	assert.Equal(t, "Has ganado 4 sellos.", resp.Messages.Stamp)
	assert.True(t, resp.Messages.RewardEarned)
	require.NotNil(t, resp.Messages.RewardMessage)
	assert.Equal(t, "¡Has obtenido 1 café!", *resp.Messages.RewardMessage)

	m := e.membership(t, b.ID, reg.ClientID)
	assert.Equal(t, 2, m.Stamps)
	assert.Equal(t, 1, m.RewardsOrZero())
	require.NotNil(t, m.LastScanAt)
}

func TestAddStampWithoutThresholdOnlyAccumulates(t *testing.T) {
	e := newEnv(t)
	b := e.seedBusiness(t, nil, "")
	reg := e.seedMember(t, b, "Ana", 7, 0)

	resp, err := e.scan.AddStamp(context.Background(), ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 12})
	require.NoError(t, err)

	assert.Equal(t, 19, resp.Membership.StampsAfter)
	assert.Zero(t, resp.Membership.RewardsEarnedNow)
	assert.False(t, resp.Messages.RewardEarned)
	assert.Nil(t, resp.Messages.RewardMessage)
	assert.Equal(t, 19, e.membership(t, b.ID, reg.ClientID).Stamps)
}

func TestAddStampCoercesNonPositiveCount(t *testing.T) {
	e := newEnv(t)
	b := e.seedBusiness(t, intPtr(10), "café")
	reg := e.seedMember(t, b, "Ana", 0, 0)

	resp, err := e.scan.AddStamp(context.Background(), ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Membership.StampsAfter)
	assert.Equal(t, "Has ganado 1 sello.", resp.Messages.Stamp)
}

func TestAddStampUsesBusinessTemplates(t *testing.T) {
	e := newEnv(t)
	b := e.seedBusiness(t, intPtr(2), "tarta")
	_, err := e.business.UpdateProgram(context.Background(), b.ID, ProgramUpdateRequest{
		MsgStampMany:        strPtr("{nombre}, llevas {#} sellos más"),
		MsgRewardEarnedMany: strPtr("{nombre}: {#} x {premio}"),
	})
	require.NoError(t, err)
	reg := e.seedMember(t, b, "Luis", 1, 0)

	resp, err := e.scan.AddStamp(context.Background(), ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 3})
	require.NoError(t, err)
	assert.Equal(t, "Luis, llevas 3 sellos más", resp.Messages.Stamp)
	require.NotNil(t, resp.Messages.RewardMessage)
	assert.Equal(t, "Luis: 2 x tarta", *resp.Messages.RewardMessage)
}

func TestRedeemConservesRewards(t *testing.T) {
	e := newEnv(t)
	b := e.seedBusiness(t, intPtr(5), "")
	reg := e.seedMember(t, b, "Ana", 1, 2)
	ctx := context.Background()

	_, err := e.scan.Redeem(ctx, ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 3})
	require.ErrorIs(t, err, domain.ErrInsufficientRewards)
	assert.Equal(t, "NOT_ENOUGH_REWARDS", ErrorCode(err))
	m := e.membership(t, b.ID, reg.ClientID)
	assert.Equal(t, 2, m.RewardsOrZero())
	assert.Equal(t, 1, m.Stamps)

	resp, err := e.scan.Redeem(ctx, ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Membership.RewardsBefore)
	assert.Equal(t, 0, resp.Membership.RewardsAfter)
	// 奖励名为空时使用默认占位
	assert.Equal(t, "Has canjeado 2 premio.", resp.Messages.Redeem)
	assert.Equal(t, 0, e.membership(t, b.ID, reg.ClientID).RewardsOrZero())
}

func TestRedeemWithoutRewardsCounter(t *testing.T) {
	e := newEnv(t)
	b := e.seedBusiness(t, intPtr(5), "café")
	reg := e.seedMember(t, b, "Ana", 0, 3)
	e.wire(noRewardsLedger{e.ledger})

	_, err := e.scan.Redeem(context.Background(), ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 1})
	require.ErrorIs(t, err, domain.ErrRewardsNotSupported)
	assert.Equal(t, "REWARDS_NOT_SUPPORTED", ErrorCode(err))
	assert.Equal(t, 3, e.membership(t, b.ID, reg.ClientID).RewardsOrZero())

	preview, err := e.scan.Preview(context.Background(), b.ID, reg.ClientID)
	require.NoError(t, err)
	assert.False(t, preview.CanRedeem)
}

func TestFixedDateExpirationGatesMutations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.seedBusiness(t, intPtr(5), "café")
	reg := e.seedMember(t, b, "Ana", 4, 1)

	yesterday := e.now.AddDate(0, 0, -1).Format("2006-01-02")
	_, err := e.business.UpdateExpiration(ctx, b.ID, ExpirationRequest{Mode: "fixed_date", Date: yesterday})
	require.NoError(t, err)

	_, err = e.scan.AddStamp(ctx, ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 1})
	require.ErrorIs(t, err, domain.ErrCardExpired)
	assert.Equal(t, "CARD_EXPIRED", ErrorCode(err))

	_, err = e.scan.Redeem(ctx, ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 1})
	require.ErrorIs(t, err, domain.ErrCardExpired)

	preview, err := e.scan.Preview(ctx, b.ID, reg.ClientID)
	require.NoError(t, err)
	assert.True(t, preview.Expired)
	assert.True(t, preview.CanRedeem)

	m := e.membership(t, b.ID, reg.ClientID)
	assert.Equal(t, 4, m.Stamps)
	assert.Equal(t, 1, m.RewardsOrZero())
	assert.Empty(t, e.publisher.published())
}

func TestDaysFromSignupExpiration(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.seedBusiness(t, intPtr(5), "café")
	reg := e.seedMember(t, b, "Ana", 0, 0)

	_, err := e.business.UpdateExpiration(ctx, b.ID, ExpirationRequest{Mode: "days_from_signup", Days: intPtr(30)})
	require.NoError(t, err)

	_, err = e.scan.AddStamp(ctx, ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 1})
	require.NoError(t, err)

	e.now = e.now.AddDate(0, 0, 31)
	_, err = e.scan.AddStamp(ctx, ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 1})
	require.ErrorIs(t, err, domain.ErrCardExpired)
}

func TestPreview(t *testing.T) {
	e := newEnv(t)
	b := e.seedBusiness(t, intPtr(8), "menú")
	_, err := e.business.UpdateProgram(context.Background(), b.ID, ProgramUpdateRequest{MsgStampOne: strPtr("¡Un sello más!")})
	require.NoError(t, err)
	reg := e.seedMember(t, b, "Marta", 5, 0)

	resp, err := e.scan.Preview(context.Background(), b.ID, reg.ClientID)
	require.NoError(t, err)

	assert.True(t, resp.OK)
	assert.Equal(t, "Marta", resp.Client.Name)
	assert.Equal(t, b.Name, resp.Business.Name)
	assert.Equal(t, reg.MembershipID, resp.Membership.ID)
	assert.Equal(t, 5, resp.Membership.Stamps)
	require.NotNil(t, resp.Membership.Rewards)
	assert.Zero(t, *resp.Membership.Rewards)
	assert.Equal(t, 8, *resp.Program.RewardThreshold)
	assert.Equal(t, "menú", resp.Program.RewardName)
	require.NotNil(t, resp.Program.Messages.StampOne)
	assert.Equal(t, "¡Un sello más!", *resp.Program.Messages.StampOne)
	assert.Nil(t, resp.Program.Messages.StampMany)
	assert.False(t, resp.CanRedeem)
	assert.False(t, resp.Expired)
}

func TestScanRejectsUnknownMembership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.seedBusiness(t, intPtr(5), "")
	other := e.seedBusiness(t, intPtr(5), "")
	reg := e.seedMember(t, other, "Ana", 0, 0)

	_, err := e.scan.Preview(ctx, b.ID, "")
	require.ErrorIs(t, err, domain.ErrMissingClientID)
	assert.Equal(t, "MISSING_CLIENT_ID", ErrorCode(err))

	// 顾客属于另一个商户
	_, err = e.scan.AddStamp(ctx, ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 1})
	require.ErrorIs(t, err, domain.ErrMembershipNotFound)
	assert.Equal(t, "MEMBERSHIP_NOT_FOUND", ErrorCode(err))
	assert.Zero(t, e.membership(t, other.ID, reg.ClientID).Stamps)
}

func TestScanEndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.seedBusiness(t, intPtr(5), "café")
	reg := e.seedMember(t, b, "Ana", 3, 0)
	req := ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 4}

	added, err := e.scan.AddStamp(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, added.Membership.StampsAfter)
	assert.Equal(t, 1, added.Membership.RewardsEarnedNow)

	e.now = e.now.Add(time.Minute)
	req.Count = 1
	redeemed, err := e.scan.Redeem(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, redeemed.Membership.RewardsBefore)
	assert.Equal(t, 0, redeemed.Membership.RewardsAfter)
	assert.Equal(t, "Has canjeado 1 café.", redeemed.Messages.Redeem)

	_, err = e.scan.Redeem(ctx, req)
	require.ErrorIs(t, err, domain.ErrInsufficientRewards)
	assert.Equal(t, 0, e.membership(t, b.ID, reg.ClientID).RewardsOrZero())

	history, err := e.client.History(ctx, b.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, history.Items, 2)
	assert.Equal(t, int64(2), history.Total)
	assert.Equal(t, domain.ScanTypeRedeem, history.Items[0].Payload.Type)
	assert.Equal(t, 1, history.Items[0].RewardsUsed)
	assert.Equal(t, domain.ScanTypeAddStamp, history.Items[1].Payload.Type)
	assert.Equal(t, 4, history.Items[1].StampsAdded)
	assert.Equal(t, "Ana", history.Items[1].ClientName)

	events := e.publisher.published()
	require.Len(t, events, 2)
	assert.Equal(t, domain.ScanTypeAddStamp, events[0].Type)
	assert.Equal(t, 2, events[0].StampsAfter)
	assert.Equal(t, b.ID, events[0].BusinessID)
	assert.Equal(t, "Ana", events[0].ClientName)
	require.NotNil(t, events[1].RewardsAfter)
	assert.Equal(t, 0, *events[1].RewardsAfter)
}

func TestAuditFailureDoesNotUndoScan(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.seedBusiness(t, intPtr(5), "café")
	reg := e.seedMember(t, b, "Ana", 4, 0)
	e.wire(failingAuditLedger{e.ledger})
	e.publisher.err = errors.New("kafka: broker unavailable")

	ledgerBefore := testutil.ToFloat64(metrics.AuditFailures.WithLabelValues("ledger"))
	kafkaBefore := testutil.ToFloat64(metrics.AuditFailures.WithLabelValues("kafka"))

	resp, err := e.scan.AddStamp(ctx, ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 1})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, 1, resp.Membership.RewardsEarnedNow)

	m := e.membership(t, b.ID, reg.ClientID)
	assert.Equal(t, 0, m.Stamps)
	assert.Equal(t, 1, m.RewardsOrZero())

	assert.Equal(t, ledgerBefore+1, testutil.ToFloat64(metrics.AuditFailures.WithLabelValues("ledger")))
	assert.Equal(t, kafkaBefore+1, testutil.ToFloat64(metrics.AuditFailures.WithLabelValues("kafka")))

	history, err := e.client.History(ctx, b.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, history.Items)
}

func TestAuditSkippedWithoutScansTable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.seedBusiness(t, intPtr(5), "café")
	reg := e.seedMember(t, b, "Ana", 0, 0)

	require.NoError(t, e.db.Exec("DROP TABLE scans").Error)
	e.wire(newLedgerFor(e))

	_, err := e.scan.AddStamp(ctx, ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, e.membership(t, b.ID, reg.ClientID).Stamps)

	history, err := e.client.History(ctx, b.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, history.Items)
	assert.Zero(t, history.Total)
}

func TestConcurrentAddStampsAreNotLost(t *testing.T) {
	e := newEnv(t)
	b := e.seedBusiness(t, intPtr(4), "café")
	reg := e.seedMember(t, b, "Ana", 0, 0)

	const workers = 12
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := e.scan.AddStamp(context.Background(), ScanRequest{BusinessID: b.ID, ClientID: reg.ClientID, Count: 1})
			errs <- err
		}()
	}
	deadline := time.After(10 * time.Second)
	var failed int
	for i := 0; i < workers; i++ {
		select {
		case err := <-errs:
			if err != nil {
				require.ErrorIs(t, err, domain.ErrConcurrentUpdate)
				failed++
			}
		case <-deadline:
			t.Fatal("timed out waiting for scans")
		}
	}

	// 每次成功的集章都被完整记入：印章加奖励折算的总数等于成功次数
	m := e.membership(t, b.ID, reg.ClientID)
	assert.Equal(t, workers-failed, m.Stamps+4*m.RewardsOrZero())
}
