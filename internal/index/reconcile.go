package index

import (
	"encoding/json"
	"errors"

	"github.com/Giveth/giveth-dapp-sub001/internal/ledger"
	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
	"github.com/Giveth/giveth-dapp-sub001/internal/metrics"
	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/Giveth/giveth-dapp-sub001/internal/subscription"
	"gorm.io/gorm"
)

// ApplyTransfer 处理监控观测到的质押转移事件。
// 三种情况：自己的在途提交被观测到（确认）；同一质押上出现
// 竞争交易（冲突，放弃本地写入）；外部转移（直接采纳）。
func (x *Index) ApplyTransfer(t ledger.Transfer) error {
	// 自己的提交先于监视协程被日志流观测到
	x.mu.Lock()
	own := x.byHash[t.TxHash]
	x.mu.Unlock()

	if own != nil {
		if x.untrack(own) {
			return x.finalize(own, ledger.Outcome{
				Mined:     true,
				BlockNum:  uint64(t.BlockNum),
				Transfers: []ledger.Transfer{t},
			})
		}
		return nil
	}

	// 在途提交期间，同一质押被另一笔交易变更：本地写入被取代
	x.mu.Lock()
	conflict := x.byPledge[t.PledgeId]
	x.mu.Unlock()

	if conflict != nil && conflict.hash != t.TxHash {
		if x.untrack(conflict) {
			metrics.Conflicts.Inc()
			logger.Warn("Pledge %d: local pending write %s superseded by tx %s",
				t.PledgeId, conflict.hash, t.TxHash)
			if conflict.actor != "" {
				x.notifier.Notify(conflict.actor, "您的操作已被并发更新覆盖")
			}
		}
	}

	return x.adoptRemote(t)
}

// adoptRemote 以链上事件为准更新索引。
// 账本是质押所有权的唯一事实来源。
func (x *Index) adoptRemote(t ledger.Transfer) error {
	var created, updated *model.DonationModel

	err := x.db.Transaction(func(tx *gorm.DB) error {
		var d model.DonationModel
		// 先按提交哈希找（覆盖进程重启后失去登记的自有提交），再按质押ID找
		err := tx.Where("submission_hash = ?", t.TxHash).First(&d).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = tx.Where("ledger_pledge_id = ?", t.PledgeId).First(&d).Error
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created, err = x.createFromEvent(tx, t)
			return err
		}
		if err != nil {
			return err
		}

		target, err := x.entityByAdminInTx(tx, t.ToAdminId)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logger.Warn("Transfer to unknown admin %d (tx %s), skipped", t.ToAdminId, t.TxHash)
				return nil
			}
			return err
		}

		// 变更前捕获持有方与状态，随后 d 会被整体覆盖
		prevOwnerId := d.OwnerId
		wasCommitted := d.Status == model.DonationStatusCommitted

		// 原持有方若已计入捐赠总额，先扣减
		if wasCommitted && prevOwnerId != target.Id {
			if err := x.registry.RemoveCommitted(tx, prevOwnerId, d.Amount); err != nil {
				return err
			}
		}

		d.LedgerPledgeId = t.PledgeId
		d.OwnerId = target.Id
		d.ProposedId = nil
		d.CommitDeadline = nil
		d.SubmissionHash = nil
		d.PendingRollback = ""

		if target.Kind == model.EntityKindCommunity {
			d.Status = model.DonationStatusWaiting
			d.DelegateId = &target.Id
		} else {
			d.Status = model.DonationStatusCommitted
			if !wasCommitted || prevOwnerId != target.Id {
				if err := x.registry.AddCommitted(tx, target.Id, d.Amount); err != nil {
					return err
				}
			}
		}

		if err := x.saveFullTx(tx, &d); err != nil {
			return err
		}
		updated = &d
		return nil
	})
	if err != nil {
		return err
	}

	if created != nil {
		metrics.Reconciliations.Inc()
		x.publish(subscription.DeltaCreated, created)
	}
	if updated != nil {
		metrics.Reconciliations.Inc()
		x.publish(subscription.DeltaUpdated, updated)
	}
	return nil
}

// createFromEvent 对账进程首次观测到的质押，直接按事件语义建行。
// 捐赠者展示信息属于索引自有字段，事件中没有就留空。
func (x *Index) createFromEvent(tx *gorm.DB, t ledger.Transfer) (*model.DonationModel, error) {
	target, err := x.entityByAdminInTx(tx, t.ToAdminId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Transfer to unknown admin %d (tx %s), skipped", t.ToAdminId, t.TxHash)
			return nil, nil
		}
		return nil, err
	}

	d := model.DonationModel{
		LedgerPledgeId: t.PledgeId,
		Amount:         t.Amount,
		TokenSymbol:    target.TokenSymbol,
		OwnerId:        target.Id,
	}

	if target.Kind == model.EntityKindCommunity {
		d.Status = model.DonationStatusWaiting
		d.DelegateId = &target.Id
	} else {
		d.Status = model.DonationStatusCommitted
		if err := x.registry.AddCommitted(tx, target.Id, d.Amount); err != nil {
			return nil, err
		}
	}

	if err := tx.Create(&d).Error; err != nil {
		return nil, err
	}
	logger.Info("Adopted externally observed pledge %d as donation %d (%s)", t.PledgeId, d.Id, d.Status)
	return &d, nil
}

// ApplyWithdrawn 处理监控观测到的提现事件
func (x *Index) ApplyWithdrawn(w ledger.Withdrawn) error {
	x.mu.Lock()
	own := x.byHash[w.TxHash]
	x.mu.Unlock()

	if own != nil {
		if x.untrack(own) {
			return x.finalize(own, ledger.Outcome{Mined: true, BlockNum: uint64(w.BlockNum)})
		}
		return nil
	}

	var updated *model.DonationModel
	err := x.db.Transaction(func(tx *gorm.DB) error {
		var d model.DonationModel
		err := tx.Where("ledger_pledge_id = ?", w.PledgeId).First(&d).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // 未知质押的提现，与索引无关
		}
		if err != nil {
			return err
		}
		if d.Status == model.DonationStatusCancelled && d.SubmissionHash == nil {
			return nil // 幂等
		}

		if d.Status == model.DonationStatusCommitted {
			if err := x.registry.RemoveCommitted(tx, d.OwnerId, d.Amount); err != nil {
				return err
			}
		}

		d.Status = model.DonationStatusCancelled
		d.ProposedId = nil
		d.CommitDeadline = nil
		d.SubmissionHash = nil
		d.PendingRollback = ""

		if err := tx.Model(&model.WithdrawalModel{}).
			Where("tx_hash = ?", w.TxHash).
			Updates(map[string]interface{}{
				"status":    model.WithdrawalStatusConfirmed,
				"block_num": w.BlockNum,
			}).Error; err != nil {
			return err
		}

		if err := x.saveFullTx(tx, &d); err != nil {
			return err
		}
		updated = &d
		return nil
	})
	if err != nil {
		return err
	}

	if updated != nil {
		metrics.Reconciliations.Inc()
		x.publish(subscription.DeltaUpdated, updated)
	}
	return nil
}

// RecoverDangling 回滚一条失去监视协程的乐观行（进程重启场景）。
// 仅在确认交易未上链时调用；已上链的交给监控的事件路径对账。
// 任何 pending 行要么有在途句柄，要么被回滚，不允许悬挂。
func (x *Index) RecoverDangling(d *model.DonationModel) error {
	if d.SubmissionHash == nil {
		return nil
	}

	if d.PendingRollback == "" {
		// 新建捐赠的乐观行，从未上链
		if err := x.db.Delete(&model.DonationModel{}, d.Id).Error; err != nil {
			return err
		}
		metrics.Rollbacks.Inc()
		logger.Warn("Dangling optimistic donation %d removed", d.Id)
		return nil
	}

	var prev model.DonationModel
	if err := json.Unmarshal([]byte(d.PendingRollback), &prev); err != nil {
		return err
	}

	if err := x.saveFull(&prev); err != nil {
		return err
	}
	metrics.Rollbacks.Inc()
	x.publish(subscription.DeltaUpdated, &prev)
	logger.Warn("Dangling donation %d rolled back to %s", d.Id, prev.Status)
	return nil
}

// entityByAdminInTx 事务内按链上管理员ID读取实体
func (x *Index) entityByAdminInTx(tx *gorm.DB, adminId int64) (*model.EntityModel, error) {
	var entity model.EntityModel
	if err := tx.Where("ledger_admin_id = ?", adminId).First(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}
