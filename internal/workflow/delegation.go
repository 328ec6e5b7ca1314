package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/index"
	"github.com/Giveth/giveth-dapp-sub001/internal/ledger"
	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
	"github.com/Giveth/giveth-dapp-sub001/internal/metrics"
	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/Giveth/giveth-dapp-sub001/internal/registry"
)

// LedgerClient 工作流消费的账本操作
type LedgerClient interface {
	SubmitDonation(ctx context.Context, toAdminId int64, amount int64) (*ledger.Submission, error)
	SubmitTransfer(ctx context.Context, fromAdminId, pledgeId, amount, toAdminId int64) (*ledger.Submission, error)
	SubmitWithdraw(ctx context.Context, pledgeId, amount int64, toAddr string, destChainId int64) (*ledger.Submission, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainId() int64
}

// DelegationWorkflow 编排单次委派动作：实体校验、链上提交、
// 乐观索引写入；失败回滚由索引的对账协议完成。
type DelegationWorkflow struct {
	idx          *index.Index
	reg          *registry.Registry
	ledger       LedgerClient
	commitWindow time.Duration
	now          func() time.Time
}

// NewDelegationWorkflow 创建委派工作流
func NewDelegationWorkflow(idx *index.Index, reg *registry.Registry, lc LedgerClient, commitWindow time.Duration) *DelegationWorkflow {
	return &DelegationWorkflow{
		idx:          idx,
		reg:          reg,
		ledger:       lc,
		commitWindow: commitWindow,
		now:          time.Now,
	}
}

// Donate 捐赠人发起新捐赠。行以 pending 状态乐观落库，
// 打包后按目标实体类型转入 waiting 或 committed。
func (w *DelegationWorkflow) Donate(ctx context.Context, entityId int64, donor string, amount int64) (*model.DonationModel, error) {
	if amount <= 0 {
		return nil, errors.New("捐赠金额必须大于0")
	}
	if donor == "" {
		return nil, errors.New("捐赠者地址不能为空")
	}

	entity, err := w.reg.GetEntity(entityId)
	if err != nil {
		return nil, err
	}
	if err := w.reg.CheckDelegationTarget(entity, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDelegationTarget, err)
	}

	sub, err := w.ledger.SubmitDonation(ctx, *entity.LedgerAdminId, amount)
	if err != nil {
		return nil, err
	}
	metrics.Submissions.WithLabelValues("donate").Inc()

	d := &model.DonationModel{
		Amount:       amount,
		TokenSymbol:  entity.TokenSymbol,
		DonorAddress: donor,
		OwnerId:      entity.Id,
	}
	if err := w.idx.StageCreation(d, sub, donor); err != nil {
		return nil, err
	}

	logger.Info("Donation %d staged: %d %s from %s to entity %d (tx %s)",
		d.Id, amount, d.TokenSymbol, donor, entityId, sub.Hash)
	return d, nil
}

// Propose 中间方向具体活动/里程碑提出委派。
// 目标校验是本地同步的：未通过时直接拒绝，不浪费链上往返。
// 通过后提交转移并乐观写入 to_approve，确认窗口开始计时。
func (w *DelegationWorkflow) Propose(ctx context.Context, donationId, targetId int64, actor string) (*model.DonationModel, error) {
	d, err := w.idx.GetDonation(donationId)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DonationStatusWaiting {
		return nil, fmt.Errorf("%w: 只能对等待中的捐赠发起委派", ErrInvalidState)
	}

	target, err := w.reg.GetEntity(targetId)
	if err != nil {
		return nil, err
	}
	if err := w.reg.CheckDelegationTarget(target, d.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDelegationTarget, err)
	}

	owner, err := w.reg.GetEntity(d.OwnerId)
	if err != nil {
		return nil, err
	}
	if !owner.IsLedgerConfirmed() {
		return nil, fmt.Errorf("%w: 持有方实体尚未上链确认", ErrInvalidState)
	}

	if err := w.idx.Begin(d.LedgerPledgeId); err != nil {
		return nil, err
	}

	sub, err := w.ledger.SubmitTransfer(ctx, *owner.LedgerAdminId, d.LedgerPledgeId, d.Amount, *target.LedgerAdminId)
	if err != nil {
		w.idx.End(d.LedgerPledgeId)
		return nil, err
	}
	metrics.Submissions.WithLabelValues("delegate").Inc()

	prev := *d
	deadline := w.now().Add(w.commitWindow)
	d.Status = model.DonationStatusToApprove
	d.ProposedId = &targetId
	d.CommitDeadline = &deadline

	if err := w.idx.StageMutation(d, prev, sub, actor); err != nil {
		return nil, err
	}

	logger.Info("Donation %d delegation proposed to entity %d, commit deadline %s (tx %s)",
		d.Id, targetId, deadline.Format(time.RFC3339), sub.Hash)
	return d, nil
}

// Approve 原持有方批准委派，资金落定到提议目标。
// 确认窗口过期后的自动提交走同一路径。
func (w *DelegationWorkflow) Approve(ctx context.Context, donationId int64, actor string) (*model.DonationModel, error) {
	d, err := w.idx.GetDonation(donationId)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DonationStatusToApprove || d.ProposedId == nil {
		return nil, fmt.Errorf("%w: 没有待批准的委派", ErrInvalidState)
	}

	target, err := w.reg.GetEntity(*d.ProposedId)
	if err != nil {
		return nil, err
	}
	owner, err := w.reg.GetEntity(d.OwnerId)
	if err != nil {
		return nil, err
	}

	if err := w.idx.Begin(d.LedgerPledgeId); err != nil {
		return nil, err
	}

	sub, err := w.ledger.SubmitTransfer(ctx, *owner.LedgerAdminId, d.LedgerPledgeId, d.Amount, *target.LedgerAdminId)
	if err != nil {
		w.idx.End(d.LedgerPledgeId)
		return nil, err
	}
	metrics.Submissions.WithLabelValues("approve").Inc()

	prev := *d
	d.Status = model.DonationStatusCommitted
	d.OwnerId = *d.ProposedId
	d.ProposedId = nil
	d.CommitDeadline = nil

	if err := w.idx.StageMutation(d, prev, sub, actor); err != nil {
		return nil, err
	}

	logger.Info("Donation %d delegation approved, owner now entity %d (tx %s)", d.Id, d.OwnerId, sub.Hash)
	return d, nil
}

// Reject 原持有方在确认窗口内拒绝委派，资金回到 waiting。
// 窗口过后沉默即同意，拒绝无效。
func (w *DelegationWorkflow) Reject(ctx context.Context, donationId int64, actor string) (*model.DonationModel, error) {
	d, err := w.idx.GetDonation(donationId)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DonationStatusToApprove || d.ProposedId == nil {
		return nil, fmt.Errorf("%w: 没有待拒绝的委派", ErrInvalidState)
	}
	if d.CommitDeadline != nil && !w.now().Before(*d.CommitDeadline) {
		return nil, ErrCommitWindowElapsed
	}

	target, err := w.reg.GetEntity(*d.ProposedId)
	if err != nil {
		return nil, err
	}
	owner, err := w.reg.GetEntity(d.OwnerId)
	if err != nil {
		return nil, err
	}

	if err := w.idx.Begin(d.LedgerPledgeId); err != nil {
		return nil, err
	}

	// 链上把质押从提议目标转回持有方
	sub, err := w.ledger.SubmitTransfer(ctx, *target.LedgerAdminId, d.LedgerPledgeId, d.Amount, *owner.LedgerAdminId)
	if err != nil {
		w.idx.End(d.LedgerPledgeId)
		return nil, err
	}
	metrics.Submissions.WithLabelValues("reject").Inc()

	prev := *d
	d.Status = model.DonationStatusWaiting
	d.ProposedId = nil
	d.CommitDeadline = nil

	if err := w.idx.StageMutation(d, prev, sub, actor); err != nil {
		return nil, err
	}

	logger.Info("Donation %d delegation rejected, back to waiting (tx %s)", d.Id, sub.Hash)
	return d, nil
}

// Refund 持有方把等待中的捐赠退回捐赠人，终态 cancelled
func (w *DelegationWorkflow) Refund(ctx context.Context, donationId int64, actor string) (*model.DonationModel, error) {
	d, err := w.idx.GetDonation(donationId)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DonationStatusWaiting {
		return nil, fmt.Errorf("%w: 只能退回等待中的捐赠", ErrInvalidState)
	}
	if d.DonorAddress == "" {
		return nil, errors.New("捐赠者地址未知，无法退款")
	}

	if err := w.idx.Begin(d.LedgerPledgeId); err != nil {
		return nil, err
	}

	sub, err := w.ledger.SubmitWithdraw(ctx, d.LedgerPledgeId, d.Amount, d.DonorAddress, 0)
	if err != nil {
		w.idx.End(d.LedgerPledgeId)
		return nil, err
	}
	metrics.Submissions.WithLabelValues("refund").Inc()

	prev := *d
	d.Status = model.DonationStatusCancelled
	d.ProposedId = nil
	d.CommitDeadline = nil

	if err := w.idx.StageMutation(d, prev, sub, actor); err != nil {
		return nil, err
	}

	logger.Info("Donation %d refund submitted to %s (tx %s)", d.Id, d.DonorAddress, sub.Hash)
	return d, nil
}
