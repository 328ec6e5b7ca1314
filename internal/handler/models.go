package handler

import (
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/model"
)

// 实体相关请求/响应模型

// CreateEntityRequest 创建实体请求
type CreateEntityRequest struct {
	Kind        string `json:"kind" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	ParentId    *int64 `json:"parent_id"`
	MaxAmount   int64  `json:"max_amount"`
	TokenSymbol string `json:"token_symbol" binding:"required"`
	Owner       string `json:"owner_address" binding:"required"`
	TxHash      string `json:"tx_hash"`
}

// EntityResponse 实体响应模型
type EntityResponse struct {
	ID            int64     `json:"id"`
	Kind          string    `json:"kind"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	ImageURL      string    `json:"imageUrl"`
	ParentId      *int64    `json:"parentId"`
	MaxAmount     int64     `json:"maxAmount"`
	TotalDonated  int64     `json:"totalDonated"`
	TokenSymbol   string    `json:"tokenSymbol"`
	Status        string    `json:"status"`
	OwnerAddress  string    `json:"ownerAddress"`
	LedgerAdminId *int64    `json:"ledgerAdminId"`
	TxHash        string    `json:"txHash"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ToEntityResponse 转换实体响应
func ToEntityResponse(e *model.EntityModel) EntityResponse {
	return EntityResponse{
		ID:            e.Id,
		Kind:          string(e.Kind),
		Title:         e.Title,
		Description:   e.Description,
		ImageURL:      e.ImageURL,
		ParentId:      e.ParentId,
		MaxAmount:     e.MaxAmount,
		TotalDonated:  e.TotalDonated,
		TokenSymbol:   e.TokenSymbol,
		Status:        string(e.Status),
		OwnerAddress:  e.OwnerAddress,
		LedgerAdminId: e.LedgerAdminId,
		TxHash:        e.TxHash,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// GetEntitiesResponse 获取实体列表响应
type GetEntitiesResponse struct {
	Entities   []EntityResponse `json:"entities"`
	Pagination Pagination       `json:"pagination"`
}

// 捐赠相关请求/响应模型

// DonateRequest 发起捐赠请求
type DonateRequest struct {
	EntityId     int64  `json:"entity_id" binding:"required"`
	DonorAddress string `json:"donor_address" binding:"required"`
	Amount       int64  `json:"amount" binding:"required"`
}

// ProposeRequest 提出委派请求
type ProposeRequest struct {
	TargetId int64  `json:"target_id" binding:"required"`
	Actor    string `json:"actor"`
}

// ActorRequest 仅携带操作人的请求体
type ActorRequest struct {
	Actor string `json:"actor"`
}

// DonationResponse 捐赠记录响应模型。
// Optimistic 为 true 表示该行尚未对账确认，消费方可渲染加载状态。
type DonationResponse struct {
	ID             int64      `json:"id"`
	LedgerPledgeId int64      `json:"ledgerPledgeId"`
	Amount         int64      `json:"amount"`
	TokenSymbol    string     `json:"tokenSymbol"`
	DonorAddress   string     `json:"donorAddress"`
	OwnerId        int64      `json:"ownerId"`
	DelegateId     *int64     `json:"delegateId"`
	ProposedId     *int64     `json:"proposedId"`
	Status         string     `json:"status"`
	CommitDeadline *time.Time `json:"commitDeadline"`
	Optimistic     bool       `json:"optimistic"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ToDonationResponse 转换捐赠响应
func ToDonationResponse(d *model.DonationModel) DonationResponse {
	return DonationResponse{
		ID:             d.Id,
		LedgerPledgeId: d.LedgerPledgeId,
		Amount:         d.Amount,
		TokenSymbol:    d.TokenSymbol,
		DonorAddress:   d.DonorAddress,
		OwnerId:        d.OwnerId,
		DelegateId:     d.DelegateId,
		ProposedId:     d.ProposedId,
		Status:         string(d.Status),
		CommitDeadline: d.CommitDeadline,
		Optimistic:     d.IsOptimistic(),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// GetDonationsResponse 获取捐赠列表响应
type GetDonationsResponse struct {
	Donations  []DonationResponse `json:"donations"`
	Pagination Pagination         `json:"pagination"`
}

// 提现相关请求/响应模型

// WithdrawRequest 发起提现请求
type WithdrawRequest struct {
	ToAddress   string `json:"to_address" binding:"required"`
	DestChainId int64  `json:"dest_chain_id"`
	Actor       string `json:"actor"`
}

// WithdrawalResponse 提现记录响应模型
type WithdrawalResponse struct {
	ID             int64     `json:"id"`
	DonationId     int64     `json:"donationId"`
	LedgerPledgeId int64     `json:"ledgerPledgeId"`
	Amount         int64     `json:"amount"`
	TokenSymbol    string    `json:"tokenSymbol"`
	ToAddress      string    `json:"toAddress"`
	DestChainId    int64     `json:"destChainId"`
	GasPrice       string    `json:"gasPrice"`
	Status         string    `json:"status"`
	TxHash         string    `json:"txHash"`
	BlockNum       int64     `json:"blockNum"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ToWithdrawalResponse 转换提现响应
func ToWithdrawalResponse(w *model.WithdrawalModel) WithdrawalResponse {
	return WithdrawalResponse{
		ID:             w.Id,
		DonationId:     w.DonationId,
		LedgerPledgeId: w.LedgerPledgeId,
		Amount:         w.Amount,
		TokenSymbol:    w.TokenSymbol,
		ToAddress:      w.ToAddress,
		DestChainId:    w.DestChainId,
		GasPrice:       w.GasPrice,
		Status:         string(w.Status),
		TxHash:         w.TxHash,
		BlockNum:       w.BlockNum,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

// GasQuoteResponse gas价格报价响应
type GasQuoteResponse struct {
	GasPrice string `json:"gasPrice"`
}
