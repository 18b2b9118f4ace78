package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"interview_room/internal/middleware"
	"interview_room/internal/models"
	"interview_room/internal/service"
	"interview_room/internal/utils"
)

// InvitationHandler 處理邀請的建立與來賓端的加入流程
type InvitationHandler struct {
	invitations *service.InvitationService
	admission   *service.AdmissionService
	rooms       *service.RoomService
	tokens      *utils.TokenIssuer
}

func NewInvitationHandler(invitations *service.InvitationService, admission *service.AdmissionService, rooms *service.RoomService, tokens *utils.TokenIssuer) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, admission: admission, rooms: rooms, tokens: tokens}
}

type joinRequest struct {
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// bindOptionalJSON 允許空的 body
func bindOptionalJSON(c *gin.Context, out interface{}) bool {
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return false
	}
	return true
}

func parseTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// CreateInvitation 主持人邀請來賓，邀請信在背景寄出
func (h *InvitationHandler) CreateInvitation(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input struct {
		Email         string `json:"email" binding:"required"`
		DisplayName   string `json:"display_name"`
		Role          string `json:"role"`
		CustomMessage string `json:"custom_message"`
		TTL           string `json:"ttl"` // 例如 "48h"，空白使用預設值
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	ttl, err := parseTTL(input.TTL)
	if err != nil {
		badRequest(c, "ttl 格式錯誤")
		return
	}

	inv, err := h.invitations.Create(c.Request.Context(), middleware.ActorFrom(c), roomID, service.CreateInvitationInput{
		Email:         input.Email,
		DisplayName:   input.DisplayName,
		Role:          models.Role(input.Role),
		CustomMessage: input.CustomMessage,
		TTL:           ttl,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *InvitationHandler) ListInvitations(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	invitations, err := h.invitations.ListByRoom(c.Request.Context(), middleware.ActorFrom(c), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invitations)
}

func (h *InvitationHandler) CancelInvitation(c *gin.Context) {
	invitationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	inv, err := h.invitations.Cancel(c.Request.Context(), middleware.ActorFrom(c), invitationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// RegenerateInvitation 換發新的 join code 與 token，舊的立即失效
func (h *InvitationHandler) RegenerateInvitation(c *gin.Context) {
	invitationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input struct {
		TTL string `json:"ttl"`
	}
	if !bindOptionalJSON(c, &input) {
		return
	}
	ttl, err := parseTTL(input.TTL)
	if err != nil {
		badRequest(c, "ttl 格式錯誤")
		return
	}

	inv, err := h.invitations.Regenerate(c.Request.Context(), middleware.ActorFrom(c), invitationID, ttl)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// AcceptInvitation 已登入的使用者以邀請 ID 接受邀請
func (h *InvitationHandler) AcceptInvitation(c *gin.Context) {
	invitationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input joinRequest
	if !bindOptionalJSON(c, &input) {
		return
	}

	actor := middleware.ActorFrom(c)
	p, err := h.admission.Accept(c.Request.Context(), invitationID, service.JoinInput{
		DisplayName: input.DisplayName,
		Password:    input.Password,
		UserID:      actor.UserID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondSession(c, h.tokens, p)
}

// invitationPreview 來賓開啟邀請連結時看到的內容，不含 token 與 join code
type invitationPreview struct {
	RoomTitle        string                  `json:"room_title"`
	RoomStatus       models.RoomStatus       `json:"room_status"`
	RequiresPassword bool                    `json:"requires_password"`
	DisplayName      string                  `json:"display_name"`
	Role             models.Role             `json:"role"`
	Status           models.InvitationStatus `json:"status"`
	CustomMessage    string                  `json:"custom_message,omitempty"`
	ExpiresAt        time.Time               `json:"expires_at"`
}

// ResolveInvitation 公開端點，以 join code 或 token 查詢邀請
func (h *InvitationHandler) ResolveInvitation(c *gin.Context) {
	inv, err := h.invitations.Resolve(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	room, err := h.rooms.Get(c.Request.Context(), inv.RoomID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, invitationPreview{
		RoomTitle:        room.Title,
		RoomStatus:       room.Status,
		RequiresPassword: room.HasPassword(),
		DisplayName:      inv.DisplayName,
		Role:             inv.Role,
		Status:           inv.Status,
		CustomMessage:    inv.CustomMessage,
		ExpiresAt:        inv.ExpiresAt,
	})
}

// JoinWithInvitation 公開端點，路徑上的 :id 是 join code 或 token
func (h *InvitationHandler) JoinWithInvitation(c *gin.Context) {
	var input joinRequest
	if !bindOptionalJSON(c, &input) {
		return
	}
	p, err := h.admission.JoinWithInvitation(c.Request.Context(), c.Param("id"), service.JoinInput{
		DisplayName: input.DisplayName,
		Password:    input.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondSession(c, h.tokens, p)
}

func (h *InvitationHandler) DeclineInvitation(c *gin.Context) {
	inv, err := h.invitations.Decline(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": inv.Status})
}
