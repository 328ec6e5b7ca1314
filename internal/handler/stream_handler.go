package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/Giveth/giveth-dapp-sub001/internal/subscription"
	"github.com/gin-gonic/gin"
)

type StreamHandler struct {
	broker *subscription.Broker
}

func NewStreamHandler(broker *subscription.Broker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// StreamDonations 捐赠记录实时订阅（SSE）。
// 先推送 snapshot 事件重放当前命中记录，再持续推送 delta 事件。
// 同一条记录的 delta 按状态转换顺序送达；订阅滞后丢过增量时
// 推送 lagged 事件，客户端应重连以重放快照。
func (h *StreamHandler) StreamDonations(c *gin.Context) {
	filter := parseStreamFilter(c)

	snapshot, err := h.broker.Snapshot(filter)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	sub := h.broker.Subscribe(filter)
	defer h.broker.Unsubscribe(sub.Id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	for i := range snapshot {
		c.SSEvent("snapshot", ToDonationResponse(&snapshot[i]))
	}
	c.Writer.Flush()

	logger.Debug("Stream %s opened with %d snapshot rows", sub.Id, len(snapshot))

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case delta, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(string(delta.Kind), ToDonationResponse(&delta.Donation))
			if sub.Lagged() {
				c.SSEvent("lagged", nil)
				return false
			}
			return true
		}
	})

	logger.Debug("Stream %s closed", sub.Id)
}

// parseStreamFilter 从查询参数解析订阅过滤条件
func parseStreamFilter(c *gin.Context) subscription.Filter {
	var filter subscription.Filter

	if v := c.Query("owner_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.OwnerId = &id
		}
	}
	if v := c.Query("delegate_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.DelegateId = &id
		}
	}
	if v := c.Query("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			filter.Statuses = append(filter.Statuses, model.DonationStatus(strings.TrimSpace(s)))
		}
	}

	return filter
}
