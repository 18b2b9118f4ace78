package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"interview_room/internal/middleware"
	"interview_room/internal/models"
	"interview_room/internal/service"
)

// ParticipantHandler 處理等候室審核與房間內的參與者操作
type ParticipantHandler struct {
	participants *service.ParticipantService
	admission    *service.AdmissionService
}

func NewParticipantHandler(participants *service.ParticipantService, admission *service.AdmissionService) *ParticipantHandler {
	return &ParticipantHandler{participants: participants, admission: admission}
}

// ListParticipants 可以用 ?status=connected 篩選
func (h *ParticipantHandler) ListParticipants(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var statuses []models.ParticipantStatus
	for _, s := range c.QueryArray("status") {
		statuses = append(statuses, models.ParticipantStatus(s))
	}
	participants, err := h.participants.ListByRoom(c.Request.Context(), roomID, statuses...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, participants)
}

func (h *ParticipantHandler) ListWaiting(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	waiting, err := h.admission.ListWaiting(c.Request.Context(), middleware.ActorFrom(c), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, waiting)
}

type participantAction func(ctx context.Context, actor service.Actor, participantID uuid.UUID) (*models.Participant, error)

func (h *ParticipantHandler) runAction(c *gin.Context, action participantAction) {
	participantID, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := action(c.Request.Context(), middleware.ActorFrom(c), participantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ParticipantHandler) Approve(c *gin.Context) { h.runAction(c, h.admission.HostApprove) }

func (h *ParticipantHandler) Deny(c *gin.Context) { h.runAction(c, h.admission.HostDeny) }

// Leave 參與者自行離開，只能離開自己
func (h *ParticipantHandler) Leave(c *gin.Context) { h.runAction(c, h.participants.Leave) }

func (h *ParticipantHandler) Kick(c *gin.Context) {
	var input struct {
		Reason string `json:"reason"`
	}
	if !bindOptionalJSON(c, &input) {
		return
	}
	h.runAction(c, func(ctx context.Context, actor service.Actor, participantID uuid.UUID) (*models.Participant, error) {
		return h.participants.Kick(ctx, actor, participantID, input.Reason)
	})
}

// ToggleAV 參與者切換自己的麥克風與鏡頭，被主持人關閉時無法打開
func (h *ParticipantHandler) ToggleAV(c *gin.Context) {
	var input struct {
		Audio *bool `json:"audio"`
		Video *bool `json:"video"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.runAction(c, func(ctx context.Context, actor service.Actor, participantID uuid.UUID) (*models.Participant, error) {
		return h.participants.ToggleAV(ctx, actor, participantID, input.Audio, input.Video)
	})
}

// SetModeration 主持人強制靜音或關閉鏡頭
func (h *ParticipantHandler) SetModeration(c *gin.Context) {
	var input struct {
		Muted          *bool `json:"muted"`
		CameraDisabled *bool `json:"camera_disabled"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.runAction(c, func(ctx context.Context, actor service.Actor, participantID uuid.UUID) (*models.Participant, error) {
		return h.participants.SetModeration(ctx, actor, participantID, input.Muted, input.CameraDisabled)
	})
}
