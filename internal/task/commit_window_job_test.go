package task

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/config"
	"github.com/Giveth/giveth-dapp-sub001/internal/database"
	"github.com/Giveth/giveth-dapp-sub001/internal/index"
	"github.com/Giveth/giveth-dapp-sub001/internal/ledger"
	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/Giveth/giveth-dapp-sub001/internal/notify"
	"github.com/Giveth/giveth-dapp-sub001/internal/registry"
	"github.com/Giveth/giveth-dapp-sub001/internal/subscription"
	"github.com/Giveth/giveth-dapp-sub001/internal/workflow"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeLedger 可手动决议的账本客户端
type fakeLedger struct {
	mu    sync.Mutex
	calls int
	subs  []*ledger.Submission
}

func (f *fakeLedger) submit() (*ledger.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	sub := ledger.NewSubmission(fmt.Sprintf("0xtx%d", f.calls))
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeLedger) SubmitDonation(ctx context.Context, toAdminId int64, amount int64) (*ledger.Submission, error) {
	return f.submit()
}

func (f *fakeLedger) SubmitTransfer(ctx context.Context, fromAdminId, pledgeId, amount, toAdminId int64) (*ledger.Submission, error) {
	return f.submit()
}

func (f *fakeLedger) SubmitWithdraw(ctx context.Context, pledgeId, amount int64, toAddr string, destChainId int64) (*ledger.Submission, error) {
	return f.submit()
}

func (f *fakeLedger) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeLedger) ChainId() int64 { return 1 }

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sweepEnv struct {
	db     *gorm.DB
	idx    *index.Index
	ledger *fakeLedger
	job    *CommitWindowJob
}

func newSweepEnv(t *testing.T) *sweepEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	reg := registry.NewRegistry(db)
	idx := index.NewIndex(db, reg, subscription.NewBroker(db, 64), notify.NewLogNotifier())
	fl := &fakeLedger{}
	wf := workflow.NewDelegationWorkflow(idx, reg, fl, 72*time.Hour)
	cfg := &config.Config{Engine: config.EngineConfig{SweepInterval: 60}}

	return &sweepEnv{db: db, idx: idx, ledger: fl, job: NewCommitWindowJob(idx, wf, cfg)}
}

func (env *sweepEnv) createEntity(t *testing.T, kind model.EntityKind, adminId int64) *model.EntityModel {
	t.Helper()

	e := &model.EntityModel{
		Kind: kind, Title: string(kind), TokenSymbol: "ETH", OwnerAddress: "0xowner",
		Status: model.EntityStatusActive, LedgerAdminId: &adminId,
	}
	require.NoError(t, env.db.Create(e).Error)
	return e
}

// reloadDonation 每次查询用全新结构体，避免旧主键混入查询条件
func reloadDonation(t *testing.T, db *gorm.DB, id int64) *model.DonationModel {
	t.Helper()

	var d model.DonationModel
	require.NoError(t, db.First(&d, id).Error)
	return &d
}

func (env *sweepEnv) createProposal(t *testing.T, pledgeId int64, ownerId, proposedId int64, deadline time.Time) *model.DonationModel {
	t.Helper()

	d := &model.DonationModel{
		LedgerPledgeId: pledgeId, Amount: 500, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: ownerId, Status: model.DonationStatusToApprove,
		ProposedId: &proposedId, CommitDeadline: &deadline,
	}
	require.NoError(t, env.db.Create(d).Error)
	return d
}

func TestSweepAutoCommitsExpiredProposals(t *testing.T) {
	env := newSweepEnv(t)
	community := env.createEntity(t, model.EntityKindCommunity, 100)
	campaign := env.createEntity(t, model.EntityKindCampaign, 101)

	expired := env.createProposal(t, 7, community.Id, campaign.Id, time.Now().Add(-time.Minute))
	fresh := env.createProposal(t, 8, community.Id, campaign.Id, time.Now().Add(time.Hour))

	env.job.Execute()
	require.Equal(t, 1, env.ledger.callCount())

	// 过期提议进入 committed 乐观态，未到期的不动
	swept := reloadDonation(t, env.db, expired.Id)
	require.Equal(t, model.DonationStatusCommitted, swept.Status)
	require.True(t, swept.IsOptimistic())

	untouched := reloadDonation(t, env.db, fresh.Id)
	require.Equal(t, model.DonationStatusToApprove, untouched.Status)

	// 乐观态的行不会被重复扫中
	env.job.Execute()
	require.Equal(t, 1, env.ledger.callCount())

	env.ledger.subs[0].Resolve(ledger.Outcome{Mined: true, BlockNum: 10})
	require.Eventually(t, func() bool {
		return reloadDonation(t, env.db, expired.Id).SubmissionHash == nil
	}, 3*time.Second, 10*time.Millisecond)

	reconciled := reloadDonation(t, env.db, expired.Id)
	require.Equal(t, model.DonationStatusCommitted, reconciled.Status)
	require.Equal(t, campaign.Id, reconciled.OwnerId)

	// 对账完成后再扫，终态不会被扫中
	env.job.Execute()
	require.Equal(t, 1, env.ledger.callCount())
}

func TestSweepSkipsBusyPledge(t *testing.T) {
	env := newSweepEnv(t)
	community := env.createEntity(t, model.EntityKindCommunity, 100)
	campaign := env.createEntity(t, model.EntityKindCampaign, 101)

	d := env.createProposal(t, 9, community.Id, campaign.Id, time.Now().Add(-time.Minute))

	// 该质押已有在途操作，本轮跳过
	require.NoError(t, env.idx.Begin(9))
	env.job.Execute()
	require.Zero(t, env.ledger.callCount())

	require.Equal(t, model.DonationStatusToApprove, reloadDonation(t, env.db, d.Id).Status)

	// 释放后下一轮正常提交
	env.idx.End(9)
	env.job.Execute()
	require.Equal(t, 1, env.ledger.callCount())

	env.ledger.subs[0].Resolve(ledger.Outcome{Mined: true, BlockNum: 10})
}
