package handler

import (
	"net/http"
	"strconv"

	"github.com/Giveth/giveth-dapp-sub001/internal/workflow"
	"github.com/gin-gonic/gin"
)

type DelegationHandler struct {
	wf *workflow.DelegationWorkflow
}

func NewDelegationHandler(wf *workflow.DelegationWorkflow) *DelegationHandler {
	return &DelegationHandler{wf: wf}
}

func donationId(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的捐赠ID")
		return 0, false
	}
	return id, true
}

// Propose 提出委派
func (h *DelegationHandler) Propose(c *gin.Context) {
	id, ok := donationId(c)
	if !ok {
		return
	}

	var req ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	d, err := h.wf.Propose(c.Request.Context(), id, req.TargetId, req.Actor)
	if err != nil {
		ErrorResponse(c, errorStatus(err), err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "委派已提出", ToDonationResponse(d))
}

// Approve 批准委派
func (h *DelegationHandler) Approve(c *gin.Context) {
	id, ok := donationId(c)
	if !ok {
		return
	}

	var req ActorRequest
	_ = c.ShouldBindJSON(&req)

	d, err := h.wf.Approve(c.Request.Context(), id, req.Actor)
	if err != nil {
		ErrorResponse(c, errorStatus(err), err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "委派已批准", ToDonationResponse(d))
}

// Reject 拒绝委派（确认窗口内有效）
func (h *DelegationHandler) Reject(c *gin.Context) {
	id, ok := donationId(c)
	if !ok {
		return
	}

	var req ActorRequest
	_ = c.ShouldBindJSON(&req)

	d, err := h.wf.Reject(c.Request.Context(), id, req.Actor)
	if err != nil {
		ErrorResponse(c, errorStatus(err), err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "委派已拒绝", ToDonationResponse(d))
}

// Refund 退回捐赠人
func (h *DelegationHandler) Refund(c *gin.Context) {
	id, ok := donationId(c)
	if !ok {
		return
	}

	var req ActorRequest
	_ = c.ShouldBindJSON(&req)

	d, err := h.wf.Refund(c.Request.Context(), id, req.Actor)
	if err != nil {
		ErrorResponse(c, errorStatus(err), err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "退款已提交", ToDonationResponse(d))
}
