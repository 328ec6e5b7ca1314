package workflow

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Giveth/giveth-dapp-sub001/internal/index"
	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
	"github.com/Giveth/giveth-dapp-sub001/internal/metrics"
	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/Giveth/giveth-dapp-sub001/internal/registry"
)

// WithdrawalWorkflow 提现/跨链工作流。
// 结构上复用委派的 pending -> confirmed 对账模式，
// 目标是外部地址或跨链桥而不是层级内实体。
type WithdrawalWorkflow struct {
	idx    *index.Index
	reg    *registry.Registry
	ledger LedgerClient
}

// NewWithdrawalWorkflow 创建提现工作流
func NewWithdrawalWorkflow(idx *index.Index, reg *registry.Registry, lc LedgerClient) *WithdrawalWorkflow {
	return &WithdrawalWorkflow{
		idx:    idx,
		reg:    reg,
		ledger: lc,
	}
}

// QuoteGas 提交前获取当前网络gas价格，供调用方确认
func (w *WithdrawalWorkflow) QuoteGas(ctx context.Context) (*big.Int, error) {
	return w.ledger.SuggestGasPrice(ctx)
}

// Withdraw 把已提交捐赠的资金移出系统。
// destChainId 与本链不同时走跨链桥。
// 打包后资金从可见余额移除；失败则余额不变并上报。
func (w *WithdrawalWorkflow) Withdraw(ctx context.Context, donationId int64, toAddress string, destChainId int64, actor string) (*model.WithdrawalModel, error) {
	if toAddress == "" {
		return nil, fmt.Errorf("提现地址不能为空")
	}

	d, err := w.idx.GetDonation(donationId)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DonationStatusCommitted {
		return nil, fmt.Errorf("%w: 只能提现已提交的捐赠", ErrInvalidState)
	}

	gasPrice, err := w.ledger.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取gas价格失败: %w", err)
	}

	if err := w.idx.Begin(d.LedgerPledgeId); err != nil {
		return nil, err
	}

	sub, err := w.ledger.SubmitWithdraw(ctx, d.LedgerPledgeId, d.Amount, toAddress, destChainId)
	if err != nil {
		w.idx.End(d.LedgerPledgeId)
		return nil, err
	}
	metrics.Submissions.WithLabelValues("withdraw").Inc()

	withdrawal := &model.WithdrawalModel{
		DonationId:     d.Id,
		LedgerPledgeId: d.LedgerPledgeId,
		Amount:         d.Amount,
		TokenSymbol:    d.TokenSymbol,
		ToAddress:      toAddress,
		DestChainId:    destChainId,
		GasPrice:       gasPrice.String(),
		Status:         model.WithdrawalStatusPending,
		TxHash:         sub.Hash,
	}
	if err := w.idx.CreateWithdrawal(withdrawal); err != nil {
		return nil, err
	}

	prev := *d
	d.Status = model.DonationStatusCancelled
	d.ProposedId = nil
	d.CommitDeadline = nil

	if err := w.idx.StageWithdrawal(d, prev, withdrawal, sub, actor); err != nil {
		return nil, err
	}

	if withdrawal.IsBridge(w.ledger.ChainId()) {
		logger.Info("Bridge withdrawal %d submitted: donation %d to %s on chain %d (tx %s)",
			withdrawal.Id, d.Id, toAddress, destChainId, sub.Hash)
	} else {
		logger.Info("Withdrawal %d submitted: donation %d to %s (tx %s)",
			withdrawal.Id, d.Id, toAddress, sub.Hash)
	}
	return withdrawal, nil
}
