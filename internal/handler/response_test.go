package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	cases := []struct {
		total     int64
		totalPage int64
	}{
		{0, 0},
		{1, 1},
		{10, 1},
		{11, 2},
		{30, 3},
	}
	for _, c := range cases {
		p := NewPagination(1, 10, c.total)
		require.Equal(t, c.totalPage, p.TotalPage, "total=%d", c.total)
	}
}

func TestResponseEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	SuccessResponse(c, http.StatusCreated, "捐赠已提交", gin.H{"id": 1})

	require.Equal(t, http.StatusCreated, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "捐赠已提交", resp.Message)
	require.NotNil(t, resp.Data)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	ErrorResponse(c, http.StatusConflict, "同一质押已有在途操作")

	require.Equal(t, http.StatusConflict, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Nil(t, resp.Data)
}
