package registry

import (
	"errors"
	"fmt"

	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"gorm.io/gorm"
)

// Registry 募捐实体层级（社区→活动→里程碑）的读写逻辑
type Registry struct {
	db *gorm.DB
}

// NewRegistry 创建实体注册表
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// CreateEntity 创建实体。实体先以 pending 状态落库，
// 待监控观测到链上注册事件后才获得 LedgerAdminId。
func (r *Registry) CreateEntity(entity *model.EntityModel) error {
	if err := r.validateEntity(entity); err != nil {
		return err
	}

	entity.Status = model.EntityStatusPending
	entity.LedgerAdminId = nil
	entity.TotalDonated = 0

	return r.db.Create(entity).Error
}

// validateEntity 验证实体数据
func (r *Registry) validateEntity(entity *model.EntityModel) error {
	if !entity.Kind.Valid() {
		return errors.New("实体类型不合法")
	}
	if entity.Title == "" {
		return errors.New("标题不能为空")
	}
	if entity.OwnerAddress == "" {
		return errors.New("创建者地址不能为空")
	}
	if entity.TokenSymbol == "" {
		return errors.New("代币符号不能为空")
	}
	if entity.MaxAmount < 0 {
		return errors.New("金额上限不能为负")
	}

	// 层级检查：活动挂在社区下，里程碑挂在活动下
	switch entity.Kind {
	case model.EntityKindCommunity:
		if entity.ParentId != nil {
			return errors.New("社区不能有上级实体")
		}
	case model.EntityKindCampaign:
		return r.checkParentKind(entity.ParentId, model.EntityKindCommunity)
	case model.EntityKindMilestone:
		return r.checkParentKind(entity.ParentId, model.EntityKindCampaign)
	}

	return nil
}

// checkParentKind 检查上级实体存在且类型正确
func (r *Registry) checkParentKind(parentId *int64, want model.EntityKind) error {
	if parentId == nil {
		return nil // 允许独立创建，层级仅在指定上级时检查
	}

	var parent model.EntityModel
	if err := r.db.First(&parent, *parentId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("上级实体不存在")
		}
		return err
	}
	if parent.Kind != want {
		return fmt.Errorf("上级实体类型必须是 %s", want)
	}
	return nil
}

// GetEntity 获取实体
func (r *Registry) GetEntity(id int64) (*model.EntityModel, error) {
	var entity model.EntityModel
	if err := r.db.First(&entity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("实体不存在")
		}
		return nil, err
	}
	return &entity, nil
}

// GetEntityByAdminId 按链上管理员ID获取实体
func (r *Registry) GetEntityByAdminId(adminId int64) (*model.EntityModel, error) {
	var entity model.EntityModel
	if err := r.db.Where("ledger_admin_id = ?", adminId).First(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

// ListEntities 分页获取实体列表
func (r *Registry) ListEntities(kind model.EntityKind, status model.EntityStatus, page, pageSize int) ([]model.EntityModel, int64, error) {
	var entities []model.EntityModel
	var total int64

	query := r.db.Model(&model.EntityModel{})
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).
		Limit(pageSize).
		Order("created_at DESC").
		Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return entities, total, nil
}

// ConfirmOnLedger 监控观测到实体注册事件后写入链上管理员ID并激活
func (r *Registry) ConfirmOnLedger(txHash string, adminId int64) error {
	result := r.db.Model(&model.EntityModel{}).
		Where("tx_hash = ? AND ledger_admin_id IS NULL", txHash).
		Updates(map[string]interface{}{
			"ledger_admin_id": adminId,
			"status":          model.EntityStatusActive,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CheckDelegationTarget 委派目标检查：必须已上链确认，
// 封顶里程碑的当前捐赠总额加本次金额不得超过上限。
// 本检查是本地同步的，不产生任何链上往返。
func (r *Registry) CheckDelegationTarget(target *model.EntityModel, amount int64) error {
	if !target.IsLedgerConfirmed() {
		return errors.New("目标实体尚未上链确认")
	}
	if target.Status != model.EntityStatusActive {
		return errors.New("目标实体不在进行中")
	}
	if target.Kind == model.EntityKindMilestone && target.MaxAmount > 0 &&
		target.TotalDonated+amount > target.MaxAmount {
		return errors.New("目标里程碑金额已达上限")
	}
	return nil
}

// AddCommitted 捐赠提交后累加实体的捐赠总额
func (r *Registry) AddCommitted(tx *gorm.DB, entityId int64, amount int64) error {
	return tx.Model(&model.EntityModel{}).
		Where("id = ?", entityId).
		Update("total_donated", gorm.Expr("total_donated + ?", amount)).Error
}

// RemoveCommitted 捐赠提现后扣减实体的捐赠总额
func (r *Registry) RemoveCommitted(tx *gorm.DB, entityId int64, amount int64) error {
	return tx.Model(&model.EntityModel{}).
		Where("id = ?", entityId).
		Update("total_donated", gorm.Expr("total_donated - ?", amount)).Error
}
