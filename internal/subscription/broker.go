package subscription

import (
	"sync"
	"sync/atomic"

	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Filter 订阅过滤条件，按持有实体、委派实体或状态集合筛选
type Filter struct {
	OwnerId    *int64
	DelegateId *int64
	Statuses   []model.DonationStatus
}

// Matches 记录是否命中过滤条件
func (f Filter) Matches(d *model.DonationModel) bool {
	if f.OwnerId != nil && d.OwnerId != *f.OwnerId {
		return false
	}
	if f.DelegateId != nil && (d.DelegateId == nil || *d.DelegateId != *f.DelegateId) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if d.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// DeltaKind 变更类型
type DeltaKind string

const (
	DeltaCreated DeltaKind = "created"
	DeltaUpdated DeltaKind = "updated"
)

// Delta 捐赠记录变更
type Delta struct {
	Kind     DeltaKind           `json:"kind"`
	Donation model.DonationModel `json:"donation"`
}

// Publisher 变更发布接口，索引通过它推送增量
type Publisher interface {
	Publish(delta Delta)
}

// Subscriber 单个订阅。通道缓冲写满时标记为滞后，
// 滞后的订阅方需要重新订阅并重放快照。
type Subscriber struct {
	Id     string
	C      chan Delta
	filter Filter
	lagged atomic.Bool
}

// Lagged 订阅是否已滞后（丢过增量）
func (s *Subscriber) Lagged() bool {
	return s.lagged.Load()
}

// Broker 进程内订阅代理。
// 保证：同一条记录的增量按其状态转换顺序送达（发布方在索引锁内
// 顺序调用 Publish，通道保序）；跨记录不保证顺序。
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]*Subscriber
	db      *gorm.DB
	bufSize int
}

// NewBroker 创建订阅代理
func NewBroker(db *gorm.DB, bufSize int) *Broker {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Broker{
		subs:    make(map[string]*Subscriber),
		db:      db,
		bufSize: bufSize,
	}
}

// Subscribe 创建订阅
func (b *Broker) Subscribe(filter Filter) *Subscriber {
	sub := &Subscriber{
		Id:     uuid.NewString(),
		C:      make(chan Delta, b.bufSize),
		filter: filter,
	}

	b.mu.Lock()
	b.subs[sub.Id] = sub
	b.mu.Unlock()

	logger.Debug("Subscriber %s registered", sub.Id)
	return sub
}

// Unsubscribe 取消订阅
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(sub.C)
	}
	b.mu.Unlock()
}

// Publish 向所有命中过滤条件的订阅推送增量。
// 不阻塞发布方：通道已满的订阅标记为滞后并丢弃本条，
// 订阅方通过重放快照补齐（至少一次语义）。
func (b *Broker) Publish(delta Delta) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.filter.Matches(&delta.Donation) {
			continue
		}
		select {
		case sub.C <- delta:
		default:
			sub.lagged.Store(true)
			logger.Warn("Subscriber %s lagged, delta dropped", sub.Id)
		}
	}
}

// Snapshot 当前命中过滤条件的记录快照。
// 订阅方先重放快照再消费增量，重连后同样处理。
func (b *Broker) Snapshot(filter Filter) ([]model.DonationModel, error) {
	var donations []model.DonationModel

	query := b.db.Model(&model.DonationModel{})
	if filter.OwnerId != nil {
		query = query.Where("owner_id = ?", *filter.OwnerId)
	}
	if filter.DelegateId != nil {
		query = query.Where("delegate_id = ?", *filter.DelegateId)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}

	if err := query.Order("created_at ASC").Find(&donations).Error; err != nil {
		return nil, err
	}
	return donations, nil
}

// Count 当前订阅数
func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
