package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/config"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/damoang/angple-chat/internal/ws"
	"github.com/damoang/angple-chat/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler upgrades the chat push channel; the connection drives presence
type WSHandler struct {
	hub            *ws.Hub
	users          service.UserService
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(hub *ws.Hub, users service.UserService, allowedOrigins string) *WSHandler {
	h := &WSHandler{
		hub:            hub,
		users:          users,
		allowedOrigins: config.SplitAndTrim(allowedOrigins, ","),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin validates the request origin against allowed origins
func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // Same-origin requests don't have Origin header
	}

	// If no allowed origins configured, allow all (development mode)
	if len(h.allowedOrigins) == 0 {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if origin == allowed || allowed == "*" {
			return true
		}
	}
	return false
}

// Connect handles GET /ws (WebSocket upgrade)
// @Summary 실시간 이벤트 WebSocket (접속 = 온라인)
// @Tags realtime
// @Param access_token query string false "JWT (브라우저용)"
// @Router /ws [get]
func (h *WSHandler) Connect(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		common.V2ErrorResponse(c, http.StatusUnauthorized, "로그인이 필요합니다", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	h.touch(userID)
	client := ws.NewClient(h.hub, conn, userID, func() { h.touch(userID) })
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// Disconnected is the hub hook for a user's last closed connection.
// 그 사이 다시 접속했으면 오프라인 처리하지 않는다.
func (h *WSHandler) Disconnected(userID uint64) {
	if h.hub.Connected(userID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.users.SetOffline(ctx, userID); err != nil {
		log := logger.WithUserID(userID)
		log.Warn().Err(err).Msg("set offline failed")
	}
}

func (h *WSHandler) touch(userID uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.users.Heartbeat(ctx, userID); err != nil {
		log := logger.WithUserID(userID)
		log.Warn().Err(err).Msg("heartbeat failed")
	}
}
