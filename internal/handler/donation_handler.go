package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Giveth/giveth-dapp-sub001/internal/index"
	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/Giveth/giveth-dapp-sub001/internal/workflow"
	"github.com/gin-gonic/gin"
)

type DonationHandler struct {
	idx *index.Index
	wf  *workflow.DelegationWorkflow
}

func NewDonationHandler(idx *index.Index, wf *workflow.DelegationWorkflow) *DonationHandler {
	return &DonationHandler{idx: idx, wf: wf}
}

// errorStatus 工作流错误到HTTP状态码的映射。
// 校验类错误是本地同步拒绝；busy 表示同一质押有在途操作。
func errorStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrInvalidDelegationTarget):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrCommitWindowElapsed):
		return http.StatusConflict
	case errors.Is(err, index.ErrPledgeBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Donate 发起新捐赠。响应立即返回乐观行，
// 链上打包结果由订阅流或列表轮询获知。
func (h *DonationHandler) Donate(c *gin.Context) {
	var req DonateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	d, err := h.wf.Donate(c.Request.Context(), req.EntityId, req.DonorAddress, req.Amount)
	if err != nil {
		ErrorResponse(c, errorStatus(err), err.Error())
		return
	}

	SuccessResponse(c, http.StatusCreated, "捐赠已提交", ToDonationResponse(d))
}

// GetDonations 获取捐赠列表
func (h *DonationHandler) GetDonations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	f := index.Filter{
		DonorAddress: c.Query("donor"),
		Limit:        pageSize,
		Skip:         (page - 1) * pageSize,
	}
	if v := c.Query("owner_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.OwnerId = &id
		}
	}
	if v := c.Query("delegate_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.DelegateId = &id
		}
	}
	if v := c.Query("status"); v != "" {
		f.Statuses = []model.DonationStatus{model.DonationStatus(v)}
	}

	donations, total, err := h.idx.ListDonations(f)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	resp := GetDonationsResponse{
		Donations:  make([]DonationResponse, 0, len(donations)),
		Pagination: NewPagination(page, pageSize, total),
	}
	for i := range donations {
		resp.Donations = append(resp.Donations, ToDonationResponse(&donations[i]))
	}

	SuccessResponse(c, http.StatusOK, "", resp)
}

// GetDonation 获取单条捐赠详情
func (h *DonationHandler) GetDonation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的捐赠ID")
		return
	}

	d, err := h.idx.GetDonation(id)
	if err != nil {
		ErrorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "", ToDonationResponse(d))
}
