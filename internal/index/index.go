package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/ledger"
	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
	"github.com/Giveth/giveth-dapp-sub001/internal/metrics"
	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/Giveth/giveth-dapp-sub001/internal/notify"
	"github.com/Giveth/giveth-dapp-sub001/internal/registry"
	"github.com/Giveth/giveth-dapp-sub001/internal/subscription"
	"gorm.io/gorm"
)

// ErrPledgeBusy 同一质押已有链上操作在途。
// 每个 ledgerPledgeId 同时最多一笔链上变更（防止双花）。
var ErrPledgeBusy = errors.New("该质押已有链上操作在途")

// Index 捐赠索引：链上账本的链下可查询镜像。
// 账本是 pledgeId -> 持有方 的唯一事实来源；链下字段（捐赠者展示信息等）
// 归索引自有，不参与所有权对账。
//
// 写入协议：
//   - 乐观写：工作流提交链上操作后立即落库目标状态，带提交哈希；
//   - 对账：提交打包后清除哈希，应用终态副作用；
//   - 回滚：提交失败后恢复提交前快照；
//   - 冲突：在途提交期间观测到同一质押的其它已打包事件时，
//     本地未决写入被放弃，采纳链上状态为准。
type Index struct {
	db       *gorm.DB
	registry *registry.Registry
	pub      subscription.Publisher
	notifier notify.Notifier

	mu       sync.Mutex
	reserved map[int64]bool           // Begin 与 Stage 之间的质押占位
	byPledge map[int64]*pendingWrite  // 在途写入，按质押ID
	byHash   map[string]*pendingWrite // 在途写入，按提交哈希
}

// pendingWrite 一次在途的乐观写入
type pendingWrite struct {
	donationId   int64
	pledgeId     int64 // 新建捐赠时为0（质押ID尚未分配）
	hash         string
	prev         model.DonationModel // 提交前快照
	created      bool                // 新建捐赠的乐观行
	actor        string              // 操作发起方地址，用于失败/冲突通知
	withdrawalId int64               // 关联的提现记录，无则为0
}

// NewIndex 创建捐赠索引
func NewIndex(db *gorm.DB, reg *registry.Registry, pub subscription.Publisher, notifier notify.Notifier) *Index {
	return &Index{
		db:       db,
		registry: reg,
		pub:      pub,
		notifier: notifier,
		reserved: make(map[int64]bool),
		byPledge: make(map[int64]*pendingWrite),
		byHash:   make(map[string]*pendingWrite),
	}
}

// Begin 占用质押。提交链上操作之前必须先占用；
// 占用失败说明已有操作在途，调用方不得重复提交。
func (x *Index) Begin(pledgeId int64) error {
	if pledgeId == 0 {
		return nil // 新建捐赠尚无质押ID，行本身唯一，无竞争
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.reserved[pledgeId] || x.byPledge[pledgeId] != nil {
		return ErrPledgeBusy
	}
	x.reserved[pledgeId] = true
	return nil
}

// End 释放占用（提交在同步阶段即失败时调用）
func (x *Index) End(pledgeId int64) {
	if pledgeId == 0 {
		return
	}
	x.mu.Lock()
	delete(x.reserved, pledgeId)
	x.mu.Unlock()
}

// StageCreation 新建捐赠的乐观写入：行以 pending 状态落库，
// 等待打包事件分配质押ID。
func (x *Index) StageCreation(d *model.DonationModel, sub *ledger.Submission, actor string) error {
	d.Status = model.DonationStatusPending
	d.SubmissionHash = &sub.Hash

	if err := x.db.Create(d).Error; err != nil {
		return err
	}

	pw := &pendingWrite{
		donationId: d.Id,
		hash:       sub.Hash,
		created:    true,
		actor:      actor,
	}
	x.track(pw)
	x.publish(subscription.DeltaCreated, d)

	go x.await(pw, sub)
	return nil
}

// StageMutation 已有捐赠的乐观写入。调用方已把目标状态写入 d，
// prev 为提交前快照，用于失败回滚。
func (x *Index) StageMutation(d *model.DonationModel, prev model.DonationModel, sub *ledger.Submission, actor string) error {
	return x.stage(d, prev, sub, actor, 0)
}

// StageWithdrawal 提现的乐观写入，额外关联提现记录
func (x *Index) StageWithdrawal(d *model.DonationModel, prev model.DonationModel, w *model.WithdrawalModel, sub *ledger.Submission, actor string) error {
	return x.stage(d, prev, sub, actor, w.Id)
}

func (x *Index) stage(d *model.DonationModel, prev model.DonationModel, sub *ledger.Submission, actor string, withdrawalId int64) error {
	if !prev.Status.CanTransitionTo(d.Status) && prev.Status != d.Status {
		return fmt.Errorf("不允许的状态转换: %s -> %s", prev.Status, d.Status)
	}

	d.SubmissionHash = &sub.Hash

	// 持久化快照，进程重启后清道夫任务据此回滚
	snapshot, err := json.Marshal(prev)
	if err != nil {
		return err
	}
	d.PendingRollback = string(snapshot)

	if err := x.saveFull(d); err != nil {
		return err
	}

	pw := &pendingWrite{
		donationId:   d.Id,
		pledgeId:     d.LedgerPledgeId,
		hash:         sub.Hash,
		prev:         prev,
		actor:        actor,
		withdrawalId: withdrawalId,
	}
	x.track(pw)
	x.publish(subscription.DeltaUpdated, d)

	go x.await(pw, sub)
	return nil
}

// track 登记在途写入并解除 Begin 占位
func (x *Index) track(pw *pendingWrite) {
	x.mu.Lock()
	x.byHash[pw.hash] = pw
	if pw.pledgeId != 0 {
		x.byPledge[pw.pledgeId] = pw
		delete(x.reserved, pw.pledgeId)
	}
	x.mu.Unlock()
}

// untrack 摘除在途写入；返回 false 表示已被其它路径处理（对账或冲突）
func (x *Index) untrack(pw *pendingWrite) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	cur, ok := x.byHash[pw.hash]
	if !ok || cur != pw {
		return false
	}
	delete(x.byHash, pw.hash)
	if pw.pledgeId != 0 && x.byPledge[pw.pledgeId] == pw {
		delete(x.byPledge, pw.pledgeId)
	}
	return true
}

// Tracked 某提交哈希是否仍有在途写入登记（清道夫任务用）
func (x *Index) Tracked(hash string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.byHash[hash]
	return ok
}

// await 等待提交结果并对账
func (x *Index) await(pw *pendingWrite, sub *ledger.Submission) {
	outcome := <-sub.Done()

	if !x.untrack(pw) {
		// 已被监控的事件路径处理（确认或冲突取代），此处不再动
		return
	}

	if outcome.Mined {
		if err := x.finalize(pw, outcome); err != nil {
			logger.Error("Failed to finalize donation %d: %v", pw.donationId, err)
		}
	} else {
		if err := x.rollback(pw, outcome); err != nil {
			logger.Error("Failed to roll back donation %d: %v", pw.donationId, err)
		}
	}
}

// finalize 提交已打包：清除乐观标记，应用终态副作用
func (x *Index) finalize(pw *pendingWrite, outcome ledger.Outcome) error {
	var result *model.DonationModel

	err := x.db.Transaction(func(tx *gorm.DB) error {
		var d model.DonationModel
		if err := tx.First(&d, pw.donationId).Error; err != nil {
			return err
		}

		// 幂等：该行已被其它路径对账过
		if d.SubmissionHash == nil || *d.SubmissionHash != pw.hash {
			return nil
		}

		d.SubmissionHash = nil
		d.PendingRollback = ""

		if pw.created {
			// 新建捐赠：从回执日志取得质押ID，按目标实体类型定状态
			if len(outcome.Transfers) > 0 {
				d.LedgerPledgeId = outcome.Transfers[0].PledgeId
			}
			owner, err := x.entityInTx(tx, d.OwnerId)
			if err != nil {
				return err
			}
			if owner.Kind == model.EntityKindCommunity {
				d.Status = model.DonationStatusWaiting
				d.DelegateId = &owner.Id
			} else {
				d.Status = model.DonationStatusCommitted
				if err := x.registry.AddCommitted(tx, owner.Id, d.Amount); err != nil {
					return err
				}
			}
		} else {
			switch d.Status {
			case model.DonationStatusCommitted:
				// 委派落定，新持有方计入捐赠总额
				if err := x.registry.AddCommitted(tx, d.OwnerId, d.Amount); err != nil {
					return err
				}
			case model.DonationStatusCancelled:
				// 退款或提现；提现前是 committed，需扣减原持有方总额
				if pw.prev.Status == model.DonationStatusCommitted {
					if err := x.registry.RemoveCommitted(tx, pw.prev.OwnerId, d.Amount); err != nil {
						return err
					}
				}
				if pw.withdrawalId != 0 {
					if err := tx.Model(&model.WithdrawalModel{}).
						Where("id = ?", pw.withdrawalId).
						Updates(map[string]interface{}{
							"status":    model.WithdrawalStatusConfirmed,
							"block_num": int64(outcome.BlockNum),
						}).Error; err != nil {
						return err
					}
				}
			}
		}

		if err := x.saveFullTx(tx, &d); err != nil {
			return err
		}
		result = &d
		return nil
	})
	if err != nil {
		return err
	}

	if result != nil {
		metrics.Reconciliations.Inc()
		x.publish(subscription.DeltaUpdated, result)
		logger.Info("Reconciled donation %d at block %d (status %s)", pw.donationId, outcome.BlockNum, result.Status)
	}
	return nil
}

// rollback 提交失败：恢复提交前快照。新建捐赠的乐观行从未上链，直接删除。
func (x *Index) rollback(pw *pendingWrite, outcome ledger.Outcome) error {
	metrics.Rollbacks.Inc()

	if pw.created {
		if err := x.db.Delete(&model.DonationModel{}, pw.donationId).Error; err != nil {
			return err
		}
		x.notifyFailure(pw.actor, outcome)
		logger.Warn("Donation %d submission failed (%s), optimistic row removed", pw.donationId, outcome.Reason)
		return nil
	}

	err := x.db.Transaction(func(tx *gorm.DB) error {
		if pw.withdrawalId != 0 {
			if err := tx.Model(&model.WithdrawalModel{}).
				Where("id = ?", pw.withdrawalId).
				Update("status", model.WithdrawalStatusFailed).Error; err != nil {
				return err
			}
		}

		prev := pw.prev
		return x.saveFullTx(tx, &prev)
	})
	if err != nil {
		return err
	}

	restored := pw.prev
	x.publish(subscription.DeltaUpdated, &restored)
	x.notifyFailure(pw.actor, outcome)
	logger.Warn("Donation %d submission failed (%s), rolled back to %s", pw.donationId, outcome.Reason, pw.prev.Status)
	return nil
}

// notifyFailure 向操作发起方上报失败原因
func (x *Index) notifyFailure(actor string, outcome ledger.Outcome) {
	if actor == "" {
		return
	}
	switch outcome.Reason {
	case ledger.FailureTimeout:
		x.notifier.Notify(actor, "链上提交超时，操作已回滚，可重新发起")
	case ledger.FailureInsufficientFunds:
		x.notifier.Notify(actor, "余额不足，操作已回滚")
	default:
		x.notifier.Notify(actor, "链上提交失败，操作已回滚")
	}
}

// publish 推送记录增量
func (x *Index) publish(kind subscription.DeltaKind, d *model.DonationModel) {
	if x.pub == nil {
		return
	}
	x.pub.Publish(subscription.Delta{Kind: kind, Donation: *d})
}

// saveFull 全字段更新（快照回滚需要覆盖零值字段）
func (x *Index) saveFull(d *model.DonationModel) error {
	return x.saveFullTx(x.db, d)
}

func (x *Index) saveFullTx(tx *gorm.DB, d *model.DonationModel) error {
	d.UpdatedAt = time.Now()
	return tx.Model(&model.DonationModel{}).
		Where("id = ?", d.Id).
		Select("*").Omit("id", "created_at").
		Updates(d).Error
}

// entityInTx 事务内读取实体
func (x *Index) entityInTx(tx *gorm.DB, id int64) (*model.EntityModel, error) {
	var entity model.EntityModel
	if err := tx.First(&entity, id).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}
