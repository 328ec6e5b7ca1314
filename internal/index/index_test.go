package index

import (
	"fmt"
	"testing"
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/database"
	"github.com/Giveth/giveth-dapp-sub001/internal/ledger"
	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/Giveth/giveth-dapp-sub001/internal/notify"
	"github.com/Giveth/giveth-dapp-sub001/internal/registry"
	"github.com/Giveth/giveth-dapp-sub001/internal/subscription"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestIndex(t *testing.T) (*Index, *gorm.DB, *registry.Registry) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	reg := registry.NewRegistry(db)
	broker := subscription.NewBroker(db, 64)
	return NewIndex(db, reg, broker, notify.NewLogNotifier()), db, reg
}

func createEntity(t *testing.T, db *gorm.DB, kind model.EntityKind, adminId int64) *model.EntityModel {
	t.Helper()

	e := &model.EntityModel{
		Kind:          kind,
		Title:         string(kind),
		TokenSymbol:   "ETH",
		OwnerAddress:  "0xowner",
		Status:        model.EntityStatusActive,
		LedgerAdminId: &adminId,
	}
	require.NoError(t, db.Create(e).Error)
	return e
}

func reload(t *testing.T, db *gorm.DB, id int64) *model.DonationModel {
	t.Helper()

	var d model.DonationModel
	require.NoError(t, db.First(&d, id).Error)
	return &d
}

// waitReconciled 等待某行的乐观标记被异步对账清除
func waitReconciled(t *testing.T, db *gorm.DB, id int64) *model.DonationModel {
	t.Helper()

	require.Eventually(t, func() bool {
		return reload(t, db, id).SubmissionHash == nil
	}, 3*time.Second, 10*time.Millisecond)
	return reload(t, db, id)
}

func TestStageCreationReconciledToWaiting(t *testing.T) {
	idx, db, _ := newTestIndex(t)
	community := createEntity(t, db, model.EntityKindCommunity, 100)

	d := &model.DonationModel{Amount: 500, TokenSymbol: "ETH", DonorAddress: "0xdonor", OwnerId: community.Id}
	sub := ledger.NewSubmission("0xtx1")
	require.NoError(t, idx.StageCreation(d, sub, "0xdonor"))

	// 落库即可见，乐观标记未清除
	got := reload(t, db, d.Id)
	require.Equal(t, model.DonationStatusPending, got.Status)
	require.True(t, got.IsOptimistic())
	require.True(t, idx.Tracked("0xtx1"))

	sub.Resolve(ledger.Outcome{
		Mined:    true,
		BlockNum: 10,
		Transfers: []ledger.Transfer{
			{PledgeId: 7, ToAdminId: 100, Amount: 500, TxHash: "0xtx1"},
		},
	})

	got = waitReconciled(t, db, d.Id)
	require.Equal(t, model.DonationStatusWaiting, got.Status)
	require.Equal(t, int64(7), got.LedgerPledgeId)
	require.NotNil(t, got.DelegateId)
	require.Equal(t, community.Id, *got.DelegateId)
	require.False(t, idx.Tracked("0xtx1"))
}

func TestStageCreationDirectToMilestoneCommits(t *testing.T) {
	idx, db, _ := newTestIndex(t)
	milestone := createEntity(t, db, model.EntityKindMilestone, 200)

	d := &model.DonationModel{Amount: 300, TokenSymbol: "ETH", DonorAddress: "0xdonor", OwnerId: milestone.Id}
	sub := ledger.NewSubmission("0xtx2")
	require.NoError(t, idx.StageCreation(d, sub, "0xdonor"))

	sub.Resolve(ledger.Outcome{
		Mined:     true,
		BlockNum:  11,
		Transfers: []ledger.Transfer{{PledgeId: 8, ToAdminId: 200, Amount: 300, TxHash: "0xtx2"}},
	})

	got := waitReconciled(t, db, d.Id)
	require.Equal(t, model.DonationStatusCommitted, got.Status)

	var e model.EntityModel
	require.NoError(t, db.First(&e, milestone.Id).Error)
	require.Equal(t, int64(300), e.TotalDonated)
}

func TestStageCreationFailureRemovesRow(t *testing.T) {
	idx, db, _ := newTestIndex(t)
	community := createEntity(t, db, model.EntityKindCommunity, 100)

	d := &model.DonationModel{Amount: 500, TokenSymbol: "ETH", DonorAddress: "0xdonor", OwnerId: community.Id}
	sub := ledger.NewSubmission("0xtx3")
	require.NoError(t, idx.StageCreation(d, sub, "0xdonor"))

	sub.Resolve(ledger.Outcome{Mined: false, Reason: ledger.FailureRejected})

	// 交易从未上链，乐观行整行删除
	require.Eventually(t, func() bool {
		var count int64
		db.Model(&model.DonationModel{}).Where("id = ?", d.Id).Count(&count)
		return count == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStageMutationRollbackRestoresSnapshot(t *testing.T) {
	idx, db, _ := newTestIndex(t)
	community := createEntity(t, db, model.EntityKindCommunity, 100)
	campaign := createEntity(t, db, model.EntityKindCampaign, 101)

	d := &model.DonationModel{
		LedgerPledgeId: 7, Amount: 500, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: community.Id, DelegateId: &community.Id, Status: model.DonationStatusWaiting,
	}
	require.NoError(t, db.Create(d).Error)

	require.NoError(t, idx.Begin(7))

	prev := *d
	deadline := time.Now().Add(72 * time.Hour)
	d.Status = model.DonationStatusToApprove
	d.ProposedId = &campaign.Id
	d.CommitDeadline = &deadline

	sub := ledger.NewSubmission("0xtx4")
	require.NoError(t, idx.StageMutation(d, prev, sub, "0xactor"))

	// 乐观行已是目标状态
	got := reload(t, db, d.Id)
	require.Equal(t, model.DonationStatusToApprove, got.Status)
	require.True(t, got.IsOptimistic())

	sub.Resolve(ledger.Outcome{Mined: false, Reason: ledger.FailureTimeout})

	// 回滚到提交前快照，乐观标记清除
	got = waitReconciled(t, db, d.Id)
	require.Equal(t, model.DonationStatusWaiting, got.Status)
	require.Nil(t, got.ProposedId)
	require.Nil(t, got.CommitDeadline)
	require.Empty(t, got.PendingRollback)
}

func TestStageRejectsInvalidTransition(t *testing.T) {
	idx, db, _ := newTestIndex(t)
	community := createEntity(t, db, model.EntityKindCommunity, 100)

	d := &model.DonationModel{
		LedgerPledgeId: 7, Amount: 500, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: community.Id, Status: model.DonationStatusCommitted,
	}
	require.NoError(t, db.Create(d).Error)

	prev := *d
	d.Status = model.DonationStatusWaiting

	sub := ledger.NewSubmission("0xtx5")
	require.Error(t, idx.StageMutation(d, prev, sub, "0xactor"))
	sub.Resolve(ledger.Outcome{Mined: false})
}

func TestBeginBlocksConcurrentSubmission(t *testing.T) {
	idx, _, _ := newTestIndex(t)

	require.NoError(t, idx.Begin(5))
	require.ErrorIs(t, idx.Begin(5), ErrPledgeBusy)

	idx.End(5)
	require.NoError(t, idx.Begin(5))

	// 新建捐赠没有质押ID，不参与占用
	require.NoError(t, idx.Begin(0))
	require.NoError(t, idx.Begin(0))
}

func TestApplyTransferSupersedesLocalWrite(t *testing.T) {
	idx, db, _ := newTestIndex(t)
	community := createEntity(t, db, model.EntityKindCommunity, 100)
	campaign := createEntity(t, db, model.EntityKindCampaign, 101)

	d := &model.DonationModel{
		LedgerPledgeId: 9, Amount: 400, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: community.Id, DelegateId: &community.Id, Status: model.DonationStatusWaiting,
	}
	require.NoError(t, db.Create(d).Error)

	// 本地在途写入
	require.NoError(t, idx.Begin(9))
	prev := *d
	d.Status = model.DonationStatusToApprove
	d.ProposedId = &campaign.Id
	sub := ledger.NewSubmission("0xlocal")
	require.NoError(t, idx.StageMutation(d, prev, sub, "0xactor"))

	// 监控观测到同一质押上另一笔已打包的转移：本地写入被取代
	require.NoError(t, idx.ApplyTransfer(ledger.Transfer{
		PledgeId: 9, FromAdminId: 100, ToAdminId: 101, Amount: 400,
		TxHash: "0xremote", BlockNum: 20,
	}))

	require.False(t, idx.Tracked("0xlocal"))

	got := reload(t, db, d.Id)
	require.Equal(t, model.DonationStatusCommitted, got.Status)
	require.Equal(t, campaign.Id, got.OwnerId)
	require.Nil(t, got.SubmissionHash)

	var e model.EntityModel
	require.NoError(t, db.First(&e, campaign.Id).Error)
	require.Equal(t, int64(400), e.TotalDonated)

	// 迟到的本地结果不再生效
	sub.Resolve(ledger.Outcome{Mined: false, Reason: ledger.FailureTimeout})
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, model.DonationStatusCommitted, reload(t, db, d.Id).Status)
}

func TestApplyTransferMovesCommittedTotals(t *testing.T) {
	idx, db, _ := newTestIndex(t)
	from := createEntity(t, db, model.EntityKindCampaign, 101)
	to := createEntity(t, db, model.EntityKindMilestone, 102)
	require.NoError(t, db.Model(&model.EntityModel{}).Where("id = ?", from.Id).
		Update("total_donated", 400).Error)

	d := &model.DonationModel{
		LedgerPledgeId: 21, Amount: 400, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: from.Id, Status: model.DonationStatusCommitted,
	}
	require.NoError(t, db.Create(d).Error)

	// 外部转移把已提交的质押移到新持有方：旧方扣减，新方计入
	require.NoError(t, idx.ApplyTransfer(ledger.Transfer{
		PledgeId: 21, FromAdminId: 101, ToAdminId: 102, Amount: 400,
		TxHash: "0xmove", BlockNum: 50,
	}))

	got := reload(t, db, d.Id)
	require.Equal(t, model.DonationStatusCommitted, got.Status)
	require.Equal(t, to.Id, got.OwnerId)

	var fromE, toE model.EntityModel
	require.NoError(t, db.First(&fromE, from.Id).Error)
	require.NoError(t, db.First(&toE, to.Id).Error)
	require.Equal(t, int64(0), fromE.TotalDonated)
	require.Equal(t, int64(400), toE.TotalDonated)

	// 同一持有方内的重复事件不重复计入
	require.NoError(t, idx.ApplyTransfer(ledger.Transfer{
		PledgeId: 21, FromAdminId: 102, ToAdminId: 102, Amount: 400,
		TxHash: "0xsame", BlockNum: 51,
	}))
	require.NoError(t, db.First(&toE, to.Id).Error)
	require.Equal(t, int64(400), toE.TotalDonated)
}

func TestApplyTransferAdoptsUnknownPledge(t *testing.T) {
	idx, db, _ := newTestIndex(t)
	campaign := createEntity(t, db, model.EntityKindCampaign, 101)

	// 索引从未见过该质押，按事件语义直接建行
	require.NoError(t, idx.ApplyTransfer(ledger.Transfer{
		PledgeId: 33, ToAdminId: 101, Amount: 250, TxHash: "0xext", BlockNum: 30,
	}))

	var d model.DonationModel
	require.NoError(t, db.Where("ledger_pledge_id = ?", 33).First(&d).Error)
	require.Equal(t, model.DonationStatusCommitted, d.Status)
	require.Equal(t, campaign.Id, d.OwnerId)
}

func TestApplyWithdrawnCancelsDonation(t *testing.T) {
	idx, db, _ := newTestIndex(t)
	campaign := createEntity(t, db, model.EntityKindCampaign, 101)

	d := &model.DonationModel{
		LedgerPledgeId: 12, Amount: 600, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: campaign.Id, Status: model.DonationStatusCommitted,
	}
	require.NoError(t, db.Create(d).Error)
	require.NoError(t, db.Model(&model.EntityModel{}).Where("id = ?", campaign.Id).
		Update("total_donated", 600).Error)

	w := &model.WithdrawalModel{
		DonationId: d.Id, LedgerPledgeId: 12, Amount: 600, TokenSymbol: "ETH",
		ToAddress: "0xout", Status: model.WithdrawalStatusPending, TxHash: "0xwd",
	}
	require.NoError(t, db.Create(w).Error)

	require.NoError(t, idx.ApplyWithdrawn(ledger.Withdrawn{
		PledgeId: 12, Recipient: "0xout", Amount: 600, TxHash: "0xwd", BlockNum: 40,
	}))

	got := reload(t, db, d.Id)
	require.Equal(t, model.DonationStatusCancelled, got.Status)

	var e model.EntityModel
	require.NoError(t, db.First(&e, campaign.Id).Error)
	require.Equal(t, int64(0), e.TotalDonated)

	var gotW model.WithdrawalModel
	require.NoError(t, db.First(&gotW, w.Id).Error)
	require.Equal(t, model.WithdrawalStatusConfirmed, gotW.Status)
	require.Equal(t, int64(40), gotW.BlockNum)

	// 幂等：重复事件不再扣减
	require.NoError(t, idx.ApplyWithdrawn(ledger.Withdrawn{
		PledgeId: 12, Recipient: "0xout", Amount: 600, TxHash: "0xwd", BlockNum: 40,
	}))
	require.NoError(t, db.First(&e, campaign.Id).Error)
	require.Equal(t, int64(0), e.TotalDonated)
}

func TestRecoverDangling(t *testing.T) {
	idx, db, _ := newTestIndex(t)
	community := createEntity(t, db, model.EntityKindCommunity, 100)

	t.Run("creation row is removed", func(t *testing.T) {
		hash := "0xlost1"
		d := &model.DonationModel{
			Amount: 100, TokenSymbol: "ETH", DonorAddress: "0xdonor",
			OwnerId: community.Id, Status: model.DonationStatusPending, SubmissionHash: &hash,
		}
		require.NoError(t, db.Create(d).Error)

		require.NoError(t, idx.RecoverDangling(d))

		var count int64
		db.Model(&model.DonationModel{}).Where("id = ?", d.Id).Count(&count)
		require.Zero(t, count)
	})

	t.Run("mutation row restored from snapshot", func(t *testing.T) {
		d := &model.DonationModel{
			LedgerPledgeId: 15, Amount: 100, TokenSymbol: "ETH", DonorAddress: "0xdonor",
			OwnerId: community.Id, Status: model.DonationStatusWaiting,
		}
		require.NoError(t, db.Create(d).Error)

		// 模拟进程崩溃前的乐观写入
		require.NoError(t, idx.Begin(15))
		prev := *d
		campaign := createEntity(t, db, model.EntityKindCampaign, 102)
		d.Status = model.DonationStatusToApprove
		d.ProposedId = &campaign.Id
		sub := ledger.NewSubmission("0xlost2")
		require.NoError(t, idx.StageMutation(d, prev, sub, "0xactor"))

		// 重启后监视协程不存在，清道夫直接回滚
		dangling := reload(t, db, d.Id)
		require.NoError(t, idx.RecoverDangling(dangling))

		got := reload(t, db, d.Id)
		require.Equal(t, model.DonationStatusWaiting, got.Status)
		require.Nil(t, got.ProposedId)
		require.Nil(t, got.SubmissionHash)

		sub.Resolve(ledger.Outcome{Mined: false})
	})
}
