package model

import (
	"time"
)

// EntityModel 募捐实体（社区/活动/里程碑）
type EntityModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	Kind        EntityKind `json:"kind" gorm:"not null;index" binding:"required"`
	Title       string     `json:"title" gorm:"not null" binding:"required"`
	Description string     `json:"description" gorm:"type:text"`
	ImageURL    string     `json:"image_url"`
	ParentId    *int64     `json:"parent_id" gorm:"index"`

	// 募捐信息
	MaxAmount    int64  `json:"max_amount" gorm:"default:0"` // 0 表示不封顶
	TotalDonated int64  `json:"total_donated" gorm:"default:0"`
	TokenSymbol  string `json:"token_symbol" gorm:"not null"`

	// 状态
	Status EntityStatus `json:"status" gorm:"default:'pending'"`

	// 创建者信息
	OwnerAddress string `json:"owner_address" gorm:"not null"`

	// 链上信息：LedgerAdminId 为空表示尚未上链确认，不能作为委派目标
	LedgerAdminId *int64 `json:"ledger_admin_id" gorm:"uniqueIndex"`
	TxHash        string `json:"tx_hash" gorm:"index"`
}

// TableName 自定义表名
func (EntityModel) TableName() string {
	return "entity"
}

// IsLedgerConfirmed 是否已在链上确认
func (e *EntityModel) IsLedgerConfirmed() bool {
	return e.LedgerAdminId != nil
}

// EntityKind 实体类型
type EntityKind string

const (
	EntityKindCommunity EntityKind = "community" // 社区（中间委派方）
	EntityKindCampaign  EntityKind = "campaign"  // 活动
	EntityKindMilestone EntityKind = "milestone" // 里程碑
)

// Valid 检查实体类型是否合法
func (k EntityKind) Valid() bool {
	switch k {
	case EntityKindCommunity, EntityKindCampaign, EntityKindMilestone:
		return true
	}
	return false
}

// EntityStatus 实体状态
type EntityStatus string

const (
	EntityStatusPending   EntityStatus = "pending"   // 待上链
	EntityStatusActive    EntityStatus = "active"    // 进行中
	EntityStatusCancelled EntityStatus = "cancelled" // 已取消
)
