package handler

import (
	"net/http"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/gin-gonic/gin"
)

// MessageHandler handles message store HTTP requests
type MessageHandler struct {
	service service.MessageService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(service service.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// Send handles POST /conversations/:id/messages
// @Summary 메시지 전송
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "대화 ID"
// @Param request body domain.SendMessageRequest true "메시지 내용 (공백 제외 1~1000자)"
// @Success 201 {object} common.V2Response{data=domain.MessageResponse}
// @Failure 400 {object} common.V2Response
// @Failure 403 {object} common.V2Response
// @Failure 429 {object} common.V2Response
// @Router /conversations/{id}/messages [post]
func (h *MessageHandler) Send(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.V2ErrorResponse(c, http.StatusBadRequest, "요청 형식이 올바르지 않습니다", err)
		return
	}

	msg, err := h.service.Send(c.Request.Context(), middleware.GetUserID(c), conversationID, req.Content)
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	common.V2Created(c, msg)
}

// List handles GET /conversations/:id/messages
// @Summary 대화의 메시지 목록 (오래된 순)
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path int true "대화 ID"
// @Success 200 {object} common.V2Response{data=[]domain.MessageResponse}
// @Failure 403 {object} common.V2Response
// @Router /conversations/{id}/messages [get]
func (h *MessageHandler) List(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	msgs, err := h.service.List(c.Request.Context(), middleware.GetUserID(c), conversationID)
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	common.V2Success(c, msgs)
}

// Delete handles DELETE /messages/:id
// @Summary 메시지 삭제 (보낸 사람만, 흔적은 남음)
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path int true "메시지 ID"
// @Success 200 {object} common.V2Response{data=domain.MessageResponse}
// @Failure 403 {object} common.V2Response
// @Failure 404 {object} common.V2Response
// @Router /messages/{id} [delete]
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	msg, err := h.service.SoftDelete(c.Request.Context(), middleware.GetUserID(c), messageID)
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	common.V2Success(c, msg)
}

// ToggleReaction handles POST /messages/:id/reactions
// @Summary 리액션 토글
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "메시지 ID"
// @Param request body domain.ReactionRequest true "이모지"
// @Success 200 {object} common.V2Response{data=domain.MessageResponse}
// @Failure 403 {object} common.V2Response
// @Router /messages/{id}/reactions [post]
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	messageID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req domain.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.V2ErrorResponse(c, http.StatusBadRequest, "요청 형식이 올바르지 않습니다", err)
		return
	}

	msg, err := h.service.ToggleReaction(c.Request.Context(), middleware.GetUserID(c), messageID, req.Emoji)
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	common.V2Success(c, msg)
}
