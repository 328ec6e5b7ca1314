package subscription

import (
	"fmt"
	"testing"
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/database"
	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func donation(id, ownerId int64, status model.DonationStatus) model.DonationModel {
	return model.DonationModel{Id: id, OwnerId: ownerId, Status: status, Amount: 100, TokenSymbol: "ETH", DonorAddress: "0xd"}
}

func TestFilterMatches(t *testing.T) {
	ownerId := int64(1)
	delegateId := int64(2)

	d := donation(10, 1, model.DonationStatusWaiting)
	d.DelegateId = &delegateId

	require.True(t, Filter{}.Matches(&d))
	require.True(t, Filter{OwnerId: &ownerId}.Matches(&d))
	require.True(t, Filter{DelegateId: &delegateId}.Matches(&d))
	require.True(t, Filter{Statuses: []model.DonationStatus{model.DonationStatusWaiting}}.Matches(&d))

	otherOwner := int64(99)
	require.False(t, Filter{OwnerId: &otherOwner}.Matches(&d))
	require.False(t, Filter{Statuses: []model.DonationStatus{model.DonationStatusCommitted}}.Matches(&d))

	noDelegate := donation(11, 1, model.DonationStatusWaiting)
	require.False(t, Filter{DelegateId: &delegateId}.Matches(&noDelegate))
}

func TestPublishFiltersSubscribers(t *testing.T) {
	b := NewBroker(newTestDB(t), 8)

	ownerOne := int64(1)
	subOne := b.Subscribe(Filter{OwnerId: &ownerOne})
	subAll := b.Subscribe(Filter{})
	defer b.Unsubscribe(subOne.Id)
	defer b.Unsubscribe(subAll.Id)

	b.Publish(Delta{Kind: DeltaCreated, Donation: donation(10, 1, model.DonationStatusPending)})
	b.Publish(Delta{Kind: DeltaCreated, Donation: donation(11, 2, model.DonationStatusPending)})

	require.Len(t, subOne.C, 1)
	require.Len(t, subAll.C, 2)

	got := <-subOne.C
	require.Equal(t, int64(10), got.Donation.Id)
}

func TestPerRecordDeltaOrder(t *testing.T) {
	b := NewBroker(newTestDB(t), 8)

	sub := b.Subscribe(Filter{})
	defer b.Unsubscribe(sub.Id)

	// 同一条记录的状态转换按发布顺序送达
	statuses := []model.DonationStatus{
		model.DonationStatusPending,
		model.DonationStatusWaiting,
		model.DonationStatusToApprove,
		model.DonationStatusCommitted,
	}
	for _, s := range statuses {
		b.Publish(Delta{Kind: DeltaUpdated, Donation: donation(10, 1, s)})
	}

	for _, want := range statuses {
		select {
		case got := <-sub.C:
			require.Equal(t, want, got.Donation.Status)
		case <-time.After(time.Second):
			t.Fatal("delta not delivered")
		}
	}
}

func TestLaggedSubscriber(t *testing.T) {
	b := NewBroker(newTestDB(t), 1)

	sub := b.Subscribe(Filter{})
	defer b.Unsubscribe(sub.Id)

	b.Publish(Delta{Kind: DeltaCreated, Donation: donation(10, 1, model.DonationStatusPending)})
	require.False(t, sub.Lagged())

	// 缓冲已满，这条被丢弃并标记滞后
	b.Publish(Delta{Kind: DeltaUpdated, Donation: donation(10, 1, model.DonationStatusWaiting)})
	require.True(t, sub.Lagged())
	require.Len(t, sub.C, 1)
}

func TestSnapshotReplay(t *testing.T) {
	db := newTestDB(t)
	b := NewBroker(db, 8)

	for i := int64(1); i <= 3; i++ {
		d := donation(0, i%2+1, model.DonationStatusWaiting)
		require.NoError(t, db.Create(&d).Error)
	}

	all, err := b.Snapshot(Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	ownerTwo := int64(2)
	filtered, err := b.Snapshot(Filter{OwnerId: &ownerTwo})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	for _, d := range filtered {
		require.Equal(t, ownerTwo, d.OwnerId)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker(newTestDB(t), 8)

	sub := b.Subscribe(Filter{})
	require.Equal(t, 1, b.Count())

	b.Unsubscribe(sub.Id)
	require.Equal(t, 0, b.Count())

	_, open := <-sub.C
	require.False(t, open)

	// 重复取消不炸
	b.Unsubscribe(sub.Id)
}
