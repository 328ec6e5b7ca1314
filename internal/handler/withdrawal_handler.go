package handler

import (
	"net/http"
	"strconv"

	"github.com/Giveth/giveth-dapp-sub001/internal/index"
	"github.com/Giveth/giveth-dapp-sub001/internal/workflow"
	"github.com/gin-gonic/gin"
)

type WithdrawalHandler struct {
	idx *index.Index
	wf  *workflow.WithdrawalWorkflow
}

func NewWithdrawalHandler(idx *index.Index, wf *workflow.WithdrawalWorkflow) *WithdrawalHandler {
	return &WithdrawalHandler{idx: idx, wf: wf}
}

// QuoteGas 提现前的gas价格报价，调用方确认后再发起提现
func (h *WithdrawalHandler) QuoteGas(c *gin.Context) {
	gasPrice, err := h.wf.QuoteGas(c.Request.Context())
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "", GasQuoteResponse{GasPrice: gasPrice.String()})
}

// Withdraw 发起提现，dest_chain_id 与本链不同时走跨链桥
func (h *WithdrawalHandler) Withdraw(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的捐赠ID")
		return
	}

	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	w, err := h.wf.Withdraw(c.Request.Context(), id, req.ToAddress, req.DestChainId, req.Actor)
	if err != nil {
		ErrorResponse(c, errorStatus(err), err.Error())
		return
	}

	SuccessResponse(c, http.StatusCreated, "提现已提交", ToWithdrawalResponse(w))
}

// GetWithdrawal 获取提现详情
func (h *WithdrawalHandler) GetWithdrawal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的提现ID")
		return
	}

	w, err := h.idx.GetWithdrawal(id)
	if err != nil {
		ErrorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "", ToWithdrawalResponse(w))
}

// GetDonationWithdrawals 某条捐赠的提现记录
func (h *WithdrawalHandler) GetDonationWithdrawals(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的捐赠ID")
		return
	}

	withdrawals, err := h.idx.ListWithdrawals(id)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]WithdrawalResponse, 0, len(withdrawals))
	for i := range withdrawals {
		resp = append(resp, ToWithdrawalResponse(&withdrawals[i]))
	}

	SuccessResponse(c, http.StatusOK, "", resp)
}
