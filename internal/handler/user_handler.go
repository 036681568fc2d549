package handler

import (
	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/gin-gonic/gin"
)

// UserHandler handles user directory HTTP requests
type UserHandler struct {
	service service.UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// Sync handles POST /users/sync
// @Summary 로그인 사용자 동기화 (최초 생성 / 프로필 갱신)
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} common.V2Response{data=domain.UserResponse}
// @Failure 401 {object} common.V2Response
// @Router /users/sync [post]
func (h *UserHandler) Sync(c *gin.Context) {
	user, err := h.service.Ensure(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	common.V2Success(c, user)
}

// Me handles GET /users/me
// @Summary 내 정보
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} common.V2Response{data=domain.UserResponse}
// @Failure 404 {object} common.V2Response
// @Router /users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.service.GetMe(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	common.V2Success(c, user)
}

// Get handles GET /users/:id
// @Summary 사용자 조회
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path int true "사용자 ID"
// @Success 200 {object} common.V2Response{data=domain.UserResponse}
// @Failure 404 {object} common.V2Response
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	user, err := h.service.GetUser(c.Request.Context(), id)
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	common.V2Success(c, user)
}

// Search handles GET /users?q=
// @Summary 사용자 검색 (본인, AI 제외)
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param q query string false "이름 또는 이메일"
// @Success 200 {object} common.V2Response{data=[]domain.UserResponse}
// @Router /users [get]
func (h *UserHandler) Search(c *gin.Context) {
	users, err := h.service.Search(c.Request.Context(), middleware.GetUserID(c), c.Query("q"))
	if err != nil {
		common.V2FromError(c, err)
		return
	}
	common.V2Success(c, users)
}

// Heartbeat handles POST /users/me/heartbeat
// @Summary 접속 상태 갱신
// @Tags users
// @Security BearerAuth
// @Success 204
// @Router /users/me/heartbeat [post]
func (h *UserHandler) Heartbeat(c *gin.Context) {
	if err := h.service.Heartbeat(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		common.V2FromError(c, err)
		return
	}
	c.Status(204)
}

// Offline handles POST /users/me/offline
// @Summary 오프라인 전환
// @Tags users
// @Security BearerAuth
// @Success 204
// @Router /users/me/offline [post]
func (h *UserHandler) Offline(c *gin.Context) {
	if err := h.service.SetOffline(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		common.V2FromError(c, err)
		return
	}
	c.Status(204)
}
