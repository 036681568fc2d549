package handler

import (
	"net/http"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var conversationValidator = validator.New()

// ConversationHandler handles conversation registry HTTP requests
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// CreateDirect handles POST /conversations/direct
// @Summary 1:1 대화 생성 또는 기존 대화 반환
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body domain.CreateDirectRequest true "상대 사용자"
// @Success 200 {object} common.V2Response{data=domain.ConversationResponse} "기존 대화"
// @Success 201 {object} common.V2Response{data=domain.ConversationResponse} "새 대화"
// @Failure 400 {object} common.V2Response
// @Failure 404 {object} common.V2Response
// @Router /conversations/direct [post]
func (h *ConversationHandler) CreateDirect(c *gin.Context) {
	var req domain.CreateDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.V2ErrorResponse(c, http.StatusBadRequest, "요청 형식이 올바르지 않습니다", err)
		return
	}

	conv, created, err := h.service.CreateOrGetDirect(c.Request.Context(), middleware.GetUserID(c), req.UserID)
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	if created {
		common.V2Created(c, conv)
		return
	}
	common.V2Success(c, conv)
}

// CreateGroup handles POST /conversations/group
// @Summary 그룹 대화 생성 (본인 포함 3명 이상)
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body domain.CreateGroupRequest true "참여자와 이름"
// @Success 201 {object} common.V2Response{data=domain.ConversationResponse}
// @Failure 400 {object} common.V2Response
// @Router /conversations/group [post]
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req domain.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.V2ErrorResponse(c, http.StatusBadRequest, "요청 형식이 올바르지 않습니다", err)
		return
	}
	if err := conversationValidator.Struct(&req); err != nil {
		common.V2ErrorResponse(c, http.StatusBadRequest, "Validation failed", err)
		return
	}

	conv, err := h.service.CreateGroup(c.Request.Context(), middleware.GetUserID(c), req.ParticipantIDs, req.Name)
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	common.V2Created(c, conv)
}

// List handles GET /conversations
// @Summary 내 대화 목록 (최근 활동순)
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} common.V2Response{data=[]domain.ConversationSummary}
// @Router /conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	list, err := h.service.ListActiveForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	common.V2Success(c, list)
}

// Get handles GET /conversations/:id
// @Summary 대화 조회
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param id path int true "대화 ID"
// @Success 200 {object} common.V2Response{data=domain.ConversationResponse}
// @Failure 404 {object} common.V2Response
// @Router /conversations/{id} [get]
func (h *ConversationHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	conv, err := h.service.GetConversation(c.Request.Context(), id)
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	if conv == nil {
		common.V2FromError(c, common.ErrConversationNotFound)
		return
	}
	common.V2Success(c, conv)
}
