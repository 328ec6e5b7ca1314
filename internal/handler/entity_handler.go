package handler

import (
	"net/http"
	"strconv"

	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/Giveth/giveth-dapp-sub001/internal/registry"
	"github.com/gin-gonic/gin"
)

type EntityHandler struct {
	registry *registry.Registry
}

func NewEntityHandler(reg *registry.Registry) *EntityHandler {
	return &EntityHandler{registry: reg}
}

// CreateEntity 创建募捐实体。实体以 pending 状态落库，
// 监控观测到链上注册事件后才激活为委派目标。
func (h *EntityHandler) CreateEntity(c *gin.Context) {
	var req CreateEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entity := &model.EntityModel{
		Kind:         model.EntityKind(req.Kind),
		Title:        req.Title,
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		ParentId:     req.ParentId,
		MaxAmount:    req.MaxAmount,
		TokenSymbol:  req.TokenSymbol,
		OwnerAddress: req.Owner,
		TxHash:       req.TxHash,
	}

	if err := h.registry.CreateEntity(entity); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	SuccessResponse(c, http.StatusCreated, "实体创建成功", ToEntityResponse(entity))
}

// GetEntities 获取实体列表
func (h *EntityHandler) GetEntities(c *gin.Context) {
	kind := c.Query("kind")
	status := c.Query("status")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	entities, total, err := h.registry.ListEntities(
		model.EntityKind(kind), model.EntityStatus(status), page, pageSize)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	resp := GetEntitiesResponse{
		Entities:   make([]EntityResponse, 0, len(entities)),
		Pagination: NewPagination(page, pageSize, total),
	}
	for i := range entities {
		resp.Entities = append(resp.Entities, ToEntityResponse(&entities[i]))
	}

	SuccessResponse(c, http.StatusOK, "", resp)
}

// GetEntity 获取单个实体详情
func (h *EntityHandler) GetEntity(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的实体ID")
		return
	}

	entity, err := h.registry.GetEntity(id)
	if err != nil {
		ErrorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "", ToEntityResponse(entity))
}
