package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"interview_room/internal/models"
	"interview_room/internal/service"
)

// HookHandler 給媒體服務與錄影管線的 HTTP 回呼，與 NATS 訊息走同一段服務邏輯
type HookHandler struct {
	participants *service.ParticipantService
	recordings   *service.RecordingService
}

func NewHookHandler(participants *service.ParticipantService, recordings *service.RecordingService) *HookHandler {
	return &HookHandler{participants: participants, recordings: recordings}
}

// ParticipantDisconnected 媒體服務偵測到斷線
func (h *HookHandler) ParticipantDisconnected(c *gin.Context) {
	participantID, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.participants.Disconnect(c.Request.Context(), participantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *HookHandler) RecordingProgress(c *gin.Context) {
	recordingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input struct {
		Percent *int `json:"percent" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := h.recordings.ReportProgress(c.Request.Context(), recordingID, *input.Percent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *HookHandler) RecordingOutcome(c *gin.Context) {
	recordingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input struct {
		Status     string                 `json:"status" binding:"required"`
		StorageKey string                 `json:"storage_key"`
		Format     string                 `json:"format"`
		Quality    string                 `json:"quality"`
		Details    map[string]interface{} `json:"details"`
		Reason     string                 `json:"reason"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := h.recordings.ReportOutcome(c.Request.Context(), recordingID, service.Outcome{
		Status:     models.RecordingStatus(input.Status),
		StorageKey: input.StorageKey,
		Format:     input.Format,
		Quality:    input.Quality,
		Details:    input.Details,
		Reason:     input.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
