package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"interview_room/internal/middleware"
	"interview_room/internal/models"
	"interview_room/internal/service"
	"interview_room/internal/utils"
)

// RoomHandler 處理房間生命週期與主持人加入
type RoomHandler struct {
	roomService *service.RoomService
	admission   *service.AdmissionService
	tokens      *utils.TokenIssuer
}

// NewRoomHandler 創建一個新的 RoomHandler 實例
func NewRoomHandler(roomService *service.RoomService, admission *service.AdmissionService, tokens *utils.TokenIssuer) *RoomHandler {
	return &RoomHandler{roomService: roomService, admission: admission, tokens: tokens}
}

// CreateRoom 處理創建新房間的請求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var input struct {
		Title          string          `json:"title" binding:"required"`
		Description    string          `json:"description"`
		ScheduledStart *time.Time      `json:"scheduled_start"`
		ScheduledEnd   *time.Time      `json:"scheduled_end"`
		MaxGuests      int             `json:"max_guests"`
		Password       string          `json:"password"`
		Settings       json.RawMessage `json:"settings"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	settings, err := models.DecodeRoomSettingsPatch(input.Settings)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	room, err := h.roomService.Create(c.Request.Context(), middleware.ActorFrom(c), service.CreateRoomInput{
		Title:          input.Title,
		Description:    input.Description,
		ScheduledStart: input.ScheduledStart,
		ScheduledEnd:   input.ScheduledEnd,
		MaxGuests:      input.MaxGuests,
		Password:       input.Password,
		Settings:       settings,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

// ListRooms 列出呼叫者主持的房間
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.roomService.ListByHost(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// GetRoom 處理獲取房間訊息的請求
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	room, err := h.roomService.Get(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) GetRoomByCode(c *gin.Context) {
	room, err := h.roomService.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

type roomAction func(ctx context.Context, roomID uuid.UUID, actor service.Actor) (*models.Room, error)

func (h *RoomHandler) runAction(c *gin.Context, action roomAction) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	room, err := action(c.Request.Context(), roomID, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// OpenRoom 主持人開啟房間，來賓可以開始加入
func (h *RoomHandler) OpenRoom(c *gin.Context) { h.runAction(c, h.roomService.Open) }

// GoLive 開始直播，房間設定允許時同時開始錄影
func (h *RoomHandler) GoLive(c *gin.Context) { h.runAction(c, h.roomService.GoLive) }

func (h *RoomHandler) EndRoom(c *gin.Context) { h.runAction(c, h.roomService.End) }

func (h *RoomHandler) CancelRoom(c *gin.Context) { h.runAction(c, h.roomService.Cancel) }

// JoinRoom 主持人加入自己的房間，回傳連線 token
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input struct {
		DisplayName string `json:"display_name"`
	}
	if !bindOptionalJSON(c, &input) {
		return
	}

	actor := middleware.ActorFrom(c)
	p, err := h.admission.JoinAsHost(c.Request.Context(), roomID, actor, service.JoinInput{
		DisplayName: input.DisplayName,
		UserID:      actor.UserID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondSession(c, h.tokens, p)
}
