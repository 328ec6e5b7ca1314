package model

import (
	"time"
)

// DonationModel 捐赠记录，引擎管理的基本单元。
// 记录永远不会被物理删除，终态（committed/cancelled）保留用于审计和展示。
type DonationModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 链上质押标识，随委派可能变化；0 表示尚未从链上事件获得
	LedgerPledgeId int64 `json:"ledger_pledge_id" gorm:"index"`

	Amount       int64  `json:"amount" gorm:"not null"`
	TokenSymbol  string `json:"token_symbol" gorm:"not null"`
	DonorAddress string `json:"donor_address" gorm:"not null;index"`

	// 当前持有资金的实体（下一步行动方）
	OwnerId int64 `json:"owner_id" gorm:"not null;index"`
	// 社区作为中间方时设置
	DelegateId *int64 `json:"delegate_id" gorm:"index"`
	// 已提出但未提交的委派目标，仅在 to_approve 状态下非空
	ProposedId *int64 `json:"proposed_id"`

	Status DonationStatus `json:"status" gorm:"not null;index"`

	// 超过该时间后 to_approve 记录自动提交，仅在 to_approve 状态下非空
	CommitDeadline *time.Time `json:"commit_deadline"`

	// 未决的链上提交引用；非空表示该行是乐观写入，尚未对账确认
	SubmissionHash *string `json:"submission_hash" gorm:"index"`

	// 提交前快照（JSON），用于进程重启后的回滚，对账完成时清空
	PendingRollback string `json:"-" gorm:"type:text"`
}

// TableName 自定义表名
func (DonationModel) TableName() string {
	return "donation"
}

// IsOptimistic 该行是否为未确认的乐观写入
func (d *DonationModel) IsOptimistic() bool {
	return d.SubmissionHash != nil
}

// IsTerminal 是否处于委派意义上的终态（committed 仍可被提现取消）
func (d *DonationModel) IsTerminal() bool {
	return d.Status == DonationStatusCommitted || d.Status == DonationStatusCancelled
}

// DonationStatus 捐赠状态
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"    // 已提交链上，等待打包
	DonationStatusWaiting   DonationStatus = "waiting"    // 等待委派
	DonationStatusToApprove DonationStatus = "to_approve" // 委派已提出，等待原持有方批准
	DonationStatusCommitted DonationStatus = "committed"  // 已提交（终态）
	DonationStatusRejected  DonationStatus = "rejected"   // 已拒绝
	DonationStatusCancelled DonationStatus = "cancelled"  // 已取消（终态）
)

// CanTransitionTo 检查状态转换是否在状态图内。
// 并发重试下也不允许图外转换。
func (s DonationStatus) CanTransitionTo(next DonationStatus) bool {
	switch s {
	case DonationStatusPending:
		return next == DonationStatusWaiting || next == DonationStatusCommitted
	case DonationStatusWaiting:
		return next == DonationStatusToApprove || next == DonationStatusCancelled
	case DonationStatusToApprove:
		return next == DonationStatusCommitted || next == DonationStatusWaiting
	case DonationStatusCommitted:
		// 提现/跨链把已提交的资金移出系统
		return next == DonationStatusCancelled
	case DonationStatusRejected:
		return next == DonationStatusWaiting
	}
	// cancelled 为终态
	return false
}
