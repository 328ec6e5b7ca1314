package task

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/config"
	"github.com/Giveth/giveth-dapp-sub001/internal/database"
	"github.com/Giveth/giveth-dapp-sub001/internal/index"
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

// fakeChecker 按哈希返回预置的链上状态
type fakeChecker struct {
	mined map[string]bool
}

func (f *fakeChecker) CheckTransaction(ctx context.Context, txHash string) (bool, bool, error) {
	return f.mined[txHash], f.mined[txHash], nil
}

func TestReaperRollsBackUnminedRows(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	reg := registry.NewRegistry(db)
	idx := index.NewIndex(db, reg, subscription.NewBroker(db, 64), notify.NewLogNotifier())
	cfg := &config.Config{Engine: config.EngineConfig{SweepInterval: 60, SubmitTimeout: 300}}

	adminId := int64(100)
	community := &model.EntityModel{
		Kind: model.EntityKindCommunity, Title: "社区", TokenSymbol: "ETH",
		OwnerAddress: "0xowner", Status: model.EntityStatusActive, LedgerAdminId: &adminId,
	}
	require.NoError(t, db.Create(community).Error)

	backdate := func(id int64) {
		require.NoError(t, db.Model(&model.DonationModel{}).Where("id = ?", id).
			UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)
	}

	// 从未上链的孤儿创建行：应被删除
	lostHash := "0xlost"
	lost := &model.DonationModel{
		Amount: 100, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: community.Id, Status: model.DonationStatusPending, SubmissionHash: &lostHash,
	}
	require.NoError(t, db.Create(lost).Error)
	backdate(lost.Id)

	// 已上链的孤儿行：留给事件监控对账，不动
	minedHash := "0xmined"
	mined := &model.DonationModel{
		Amount: 200, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: community.Id, Status: model.DonationStatusPending, SubmissionHash: &minedHash,
	}
	require.NoError(t, db.Create(mined).Error)
	backdate(mined.Id)

	// 新鲜的乐观行：还在正常监视周期内，不算孤儿
	freshHash := "0xfresh"
	fresh := &model.DonationModel{
		Amount: 300, TokenSymbol: "ETH", DonorAddress: "0xdonor",
		OwnerId: community.Id, Status: model.DonationStatusPending, SubmissionHash: &freshHash,
	}
	require.NoError(t, db.Create(fresh).Error)

	checker := &fakeChecker{mined: map[string]bool{minedHash: true}}
	job := NewSubmissionReaperJob(idx, checker, cfg)
	job.Execute()

	var count int64
	db.Model(&model.DonationModel{}).Where("id = ?", lost.Id).Count(&count)
	require.Zero(t, count)

	require.NotNil(t, reloadDonation(t, db, mined.Id).SubmissionHash)
	require.NotNil(t, reloadDonation(t, db, fresh.Id).SubmissionHash)
}
