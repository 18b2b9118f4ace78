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

type RecordingHandler struct {
	recordings *service.RecordingService
}

func NewRecordingHandler(recordings *service.RecordingService) *RecordingHandler {
	return &RecordingHandler{recordings: recordings}
}

type recordingAction func(ctx context.Context, actor service.Actor, id uuid.UUID) (*models.Recording, error)

func (h *RecordingHandler) runAction(c *gin.Context, status int, action recordingAction) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rec, err := action(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, rec)
}

// StartRecording 手動開始錄影，房間必須在直播中
func (h *RecordingHandler) StartRecording(c *gin.Context) {
	h.runAction(c, http.StatusCreated, h.recordings.StartForHost)
}

// StopRecording 停止錄影並交給後製管線
func (h *RecordingHandler) StopRecording(c *gin.Context) {
	h.runAction(c, http.StatusOK, h.recordings.StopForHost)
}

func (h *RecordingHandler) DeleteRecording(c *gin.Context) {
	h.runAction(c, http.StatusOK, h.recordings.Delete)
}

func (h *RecordingHandler) ListRecordings(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	recordings, err := h.recordings.ListByRoom(c.Request.Context(), middleware.ActorFrom(c), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recordings)
}

// PlaybackURL 回傳有時效的下載連結
func (h *RecordingHandler) PlaybackURL(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	url, err := h.recordings.PlaybackURL(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
