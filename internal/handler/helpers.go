package handler

import (
	"net/http"
	"strconv"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/gin-gonic/gin"
)

// parseIDParam reads a positive numeric path parameter; it answers 400 itself on failure
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		common.V2ErrorResponse(c, http.StatusBadRequest, "잘못된 ID 형식입니다", nil)
		return 0, false
	}
	return id, true
}
