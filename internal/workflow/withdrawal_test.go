package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/ledger"
	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/stretchr/testify/require"
)

func TestWithdrawCommittedDonation(t *testing.T) {
	env := newTestEnv(t)
	campaign := env.createEntity(t, model.EntityKindCampaign, 101)
	require.NoError(t, env.db.Model(campaign).Update("total_donated", 500).Error)

	wwf := NewWithdrawalWorkflow(env.idx, env.reg, env.ledger)

	d := &model.DonationModel{
		LedgerPledgeId: 7, Amount: 500, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: campaign.Id, Status: model.DonationStatusCommitted,
	}
	require.NoError(t, env.db.Create(d).Error)

	w, err := wwf.Withdraw(context.Background(), d.Id, "0xout", 0, "0xactor")
	require.NoError(t, err)
	require.Equal(t, model.WithdrawalStatusPending, w.Status)
	require.Equal(t, "1000000000", w.GasPrice)
	require.Equal(t, []string{"withdraw(7,500,0xout,0)"}, env.ledger.calls)

	// 打包后资金从可见余额移除
	got := env.resolveMined(t, d.Id)
	require.Equal(t, model.DonationStatusCancelled, got.Status)

	var gotW model.WithdrawalModel
	require.NoError(t, env.db.First(&gotW, w.Id).Error)
	require.Equal(t, model.WithdrawalStatusConfirmed, gotW.Status)

	var e model.EntityModel
	require.NoError(t, env.db.First(&e, campaign.Id).Error)
	require.Equal(t, int64(0), e.TotalDonated)
}

func TestWithdrawRejectsNonCommitted(t *testing.T) {
	env := newTestEnv(t)
	community := env.createEntity(t, model.EntityKindCommunity, 100)

	wwf := NewWithdrawalWorkflow(env.idx, env.reg, env.ledger)

	d := &model.DonationModel{
		LedgerPledgeId: 7, Amount: 500, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: community.Id, Status: model.DonationStatusWaiting,
	}
	require.NoError(t, env.db.Create(d).Error)

	_, err := wwf.Withdraw(context.Background(), d.Id, "0xout", 0, "0xactor")
	require.ErrorIs(t, err, ErrInvalidState)
	require.Zero(t, env.ledger.callCount())
}

func TestBridgeWithdrawRoutesToDestChain(t *testing.T) {
	env := newTestEnv(t)
	campaign := env.createEntity(t, model.EntityKindCampaign, 101)

	wwf := NewWithdrawalWorkflow(env.idx, env.reg, env.ledger)

	d := &model.DonationModel{
		LedgerPledgeId: 7, Amount: 500, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: campaign.Id, Status: model.DonationStatusCommitted,
	}
	require.NoError(t, env.db.Create(d).Error)

	w, err := wwf.Withdraw(context.Background(), d.Id, "0xout", 137, "0xactor")
	require.NoError(t, err)
	require.True(t, w.IsBridge(env.ledger.ChainId()))
	require.Equal(t, []string{"withdraw(7,500,0xout,137)"}, env.ledger.calls)

	env.resolveMined(t, d.Id)
}

func TestWithdrawFailureRestoresBalance(t *testing.T) {
	env := newTestEnv(t)
	campaign := env.createEntity(t, model.EntityKindCampaign, 101)
	require.NoError(t, env.db.Model(campaign).Update("total_donated", 500).Error)

	wwf := NewWithdrawalWorkflow(env.idx, env.reg, env.ledger)

	d := &model.DonationModel{
		LedgerPledgeId: 7, Amount: 500, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: campaign.Id, Status: model.DonationStatusCommitted,
	}
	require.NoError(t, env.db.Create(d).Error)

	w, err := wwf.Withdraw(context.Background(), d.Id, "0xout", 0, "0xactor")
	require.NoError(t, err)

	env.ledger.lastSub().Resolve(ledger.Outcome{Mined: false, Reason: ledger.FailureReverted})

	// 失败后捐赠回到 committed，余额不变
	require.Eventually(t, func() bool {
		var got model.DonationModel
		require.NoError(t, env.db.First(&got, d.Id).Error)
		return got.SubmissionHash == nil && got.Status == model.DonationStatusCommitted
	}, 3*time.Second, 10*time.Millisecond)

	var gotW model.WithdrawalModel
	require.NoError(t, env.db.First(&gotW, w.Id).Error)
	require.Equal(t, model.WithdrawalStatusFailed, gotW.Status)

	var e model.EntityModel
	require.NoError(t, env.db.First(&e, campaign.Id).Error)
	require.Equal(t, int64(500), e.TotalDonated)
}
