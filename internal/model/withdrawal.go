package model

import (
	"time"
)

// WithdrawalModel 提现/跨链记录，与委派记录分开存储。
// 复用 pending -> confirmed 的对账模式，目标是外部地址或跨链桥。
type WithdrawalModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DonationId     int64  `json:"donation_id" gorm:"not null;index"`
	LedgerPledgeId int64  `json:"ledger_pledge_id" gorm:"index"`
	Amount         int64  `json:"amount" gorm:"not null"`
	TokenSymbol    string `json:"token_symbol" gorm:"not null"`
	ToAddress      string `json:"to_address" gorm:"not null"`

	// 目标链ID，与本链不同时走跨链桥
	DestChainId int64 `json:"dest_chain_id"`
	// 提交前展示给调用方确认的gas价格（wei，十进制字符串）
	GasPrice string `json:"gas_price"`

	Status   WithdrawalStatus `json:"status" gorm:"default:'pending'"`
	TxHash   string           `json:"tx_hash" gorm:"index"`
	BlockNum int64            `json:"block_num"`
}

// TableName 自定义表名
func (WithdrawalModel) TableName() string {
	return "withdrawal"
}

// IsBridge 是否为跨链提现
func (w *WithdrawalModel) IsBridge(homeChainId int64) bool {
	return w.DestChainId != 0 && w.DestChainId != homeChainId
}

// WithdrawalStatus 提现状态
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"   // 提现在途
	WithdrawalStatusConfirmed WithdrawalStatus = "confirmed" // 已上链确认
	WithdrawalStatusFailed    WithdrawalStatus = "failed"    // 提交失败，余额不变
)
