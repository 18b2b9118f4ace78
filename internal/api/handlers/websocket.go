package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"interview_room/internal/middleware"
	"interview_room/internal/models"
	"interview_room/internal/service"
)

// WebSocketHandler 處理 WebSocket 連接
type WebSocketHandler struct {
	hub          *service.WebSocketService
	rooms        *service.RoomService
	participants *service.ParticipantService
	upgrader     websocket.Upgrader
}

// NewWebSocketHandler allowedOrigins 為空時只接受同源連線
func NewWebSocketHandler(hub *service.WebSocketService, rooms *service.RoomService, participants *service.ParticipantService, allowedOrigins []string) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(origins) > 0 {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origins["*"] || origins[origin]
		}
	}
	return &WebSocketHandler{hub: hub, rooms: rooms, participants: participants, upgrader: upgrader}
}

// HandleWebSocket 驗證身份後升級連線，連線期間阻塞
//
// 參與者必須是等候中或已連線的狀態；主持人可以不加入房間直接以使用者 token 觀看事件
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	room, err := h.rooms.Get(ctx, roomID)
	if err != nil {
		respondError(c, err)
		return
	}

	actor := middleware.ActorFrom(c)
	client := &service.Client{RoomID: room.ID, UserID: actor.UserID, Moderator: actor.IsHost(room)}
	if actor.ParticipantID != nil {
		p, err := h.participants.Get(ctx, *actor.ParticipantID)
		if err != nil {
			respondError(c, err)
			return
		}
		if p.RoomID != room.ID {
			respondError(c, service.ErrUnauthorized)
			return
		}
		if p.Status != models.ParticipantStatusWaiting && p.Status != models.ParticipantStatusConnected {
			respondError(c, service.ErrInvalidTransition)
			return
		}
		client.ParticipantID = &p.ID
		client.Moderator = client.Moderator || p.Role.Moderator()
	} else if !client.Moderator {
		respondError(c, service.ErrUnauthorized)
		return
	}

	// 升級 HTTP 連接為 WebSocket 連接，失敗時 upgrader 已經寫好回應
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		_ = c.Error(err)
		return
	}
	client.Conn = conn

	h.hub.HandleConnection(client)
}
