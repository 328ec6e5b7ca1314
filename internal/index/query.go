package index

import (
	"errors"
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"gorm.io/gorm"
)

// Filter 捐赠查询过滤条件
type Filter struct {
	OwnerId      *int64
	DelegateId   *int64
	DonorAddress string
	Statuses     []model.DonationStatus
	Limit        int
	Skip         int
}

// GetDonation 获取捐赠记录
func (x *Index) GetDonation(id int64) (*model.DonationModel, error) {
	var d model.DonationModel
	if err := x.db.First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("捐赠记录不存在")
		}
		return nil, err
	}
	return &d, nil
}

// ListDonations 分页查询捐赠记录，按创建时间倒序。
// 乐观行通过 SubmissionHash 非空区分，消费方可据此渲染加载状态。
func (x *Index) ListDonations(f Filter) ([]model.DonationModel, int64, error) {
	var donations []model.DonationModel
	var total int64

	query := x.db.Model(&model.DonationModel{})
	if f.OwnerId != nil {
		query = query.Where("owner_id = ?", *f.OwnerId)
	}
	if f.DelegateId != nil {
		query = query.Where("delegate_id = ?", *f.DelegateId)
	}
	if f.DonorAddress != "" {
		query = query.Where("donor_address = ?", f.DonorAddress)
	}
	if len(f.Statuses) > 0 {
		query = query.Where("status IN ?", f.Statuses)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 10
	}
	if err := query.Offset(f.Skip).
		Limit(f.Limit).
		Order("created_at DESC").
		Find(&donations).Error; err != nil {
		return nil, 0, err
	}

	return donations, total, nil
}

// ListExpiredProposals 确认窗口已过、且无在途提交的 to_approve 记录。
// committed 记录不会命中本查询，重复扫描天然幂等。
func (x *Index) ListExpiredProposals(now time.Time) ([]model.DonationModel, error) {
	var donations []model.DonationModel
	err := x.db.Where("status = ? AND commit_deadline <= ? AND submission_hash IS NULL",
		model.DonationStatusToApprove, now).
		Order("commit_deadline ASC").
		Find(&donations).Error
	return donations, err
}

// ListDangling 乐观标记超龄的记录（候选回滚对象，进程重启场景）
func (x *Index) ListDangling(cutoff time.Time) ([]model.DonationModel, error) {
	var donations []model.DonationModel
	err := x.db.Where("submission_hash IS NOT NULL AND updated_at < ?", cutoff).
		Find(&donations).Error
	return donations, err
}

// CreateWithdrawal 新建提现记录
func (x *Index) CreateWithdrawal(w *model.WithdrawalModel) error {
	return x.db.Create(w).Error
}

// GetWithdrawal 获取提现记录
func (x *Index) GetWithdrawal(id int64) (*model.WithdrawalModel, error) {
	var w model.WithdrawalModel
	if err := x.db.First(&w, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("提现记录不存在")
		}
		return nil, err
	}
	return &w, nil
}

// ListWithdrawals 按捐赠记录查询提现
func (x *Index) ListWithdrawals(donationId int64) ([]model.WithdrawalModel, error) {
	var withdrawals []model.WithdrawalModel
	err := x.db.Where("donation_id = ?", donationId).
		Order("created_at DESC").
		Find(&withdrawals).Error
	return withdrawals, err
}
