package handler

import (
	"net/http"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/gin-gonic/gin"
)

// ActivityHandler handles typing indicators and read receipts
type ActivityHandler struct {
	typing  service.TypingService
	receipt service.ReadReceiptService
}

// NewActivityHandler creates a new ActivityHandler
func NewActivityHandler(typing service.TypingService, receipt service.ReadReceiptService) *ActivityHandler {
	return &ActivityHandler{typing: typing, receipt: receipt}
}

// SetTyping handles PUT /conversations/:id/typing
// @Summary 입력 중 표시 설정/해제
// @Tags activity
// @Accept json
// @Security BearerAuth
// @Param id path int true "대화 ID"
// @Param request body domain.TypingRequest true "입력 중 여부"
// @Success 204
// @Failure 403 {object} common.V2Response
// @Router /conversations/{id}/typing [put]
func (h *ActivityHandler) SetTyping(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req domain.TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.V2ErrorResponse(c, http.StatusBadRequest, "요청 형식이 올바르지 않습니다", err)
		return
	}

	if err := h.typing.SetTyping(c.Request.Context(), middleware.GetUserID(c), conversationID, req.IsTyping); err != nil {
		common.V2FromError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTyping handles GET /conversations/:id/typing
// @Summary 입력 중인 사용자 이름 (본인 제외)
// @Tags activity
// @Produce json
// @Security BearerAuth
// @Param id path int true "대화 ID"
// @Success 200 {object} common.V2Response{data=[]string}
// @Router /conversations/{id}/typing [get]
func (h *ActivityHandler) GetTyping(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	names, err := h.typing.GetActiveTypists(c.Request.Context(), middleware.GetUserID(c), conversationID)
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	common.V2Success(c, names)
}

// MarkRead handles POST /conversations/:id/read
// @Summary 읽음 처리 (실패해도 항상 204)
// @Tags activity
// @Param id path int true "대화 ID"
// @Success 204
// @Router /conversations/{id}/read [post]
func (h *ActivityHandler) MarkRead(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	h.receipt.MarkRead(c.Request.Context(), middleware.GetUserID(c), conversationID)
	c.Status(http.StatusNoContent)
}
