package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"interview_room/internal/middleware"
	"interview_room/internal/service"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// 順序有意義：權限錯誤一律先判斷，不透露資源是否存在
var errorMappings = []errorMapping{
	{service.ErrUnauthorized, http.StatusForbidden, "forbidden", "沒有權限執行此操作"},
	{service.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument", ""},
	{service.ErrNotFound, http.StatusNotFound, "not_found", "找不到指定的資源"},
	{service.ErrExpired, http.StatusGone, "expired", "邀請已過期"},
	{service.ErrAlreadyResolved, http.StatusConflict, "already_resolved", "邀請已經處理過"},
	{service.ErrRoomFull, http.StatusConflict, "room_full", "房間人數已滿"},
	{service.ErrAlreadyRecording, http.StatusConflict, "already_recording", "房間已在錄影中"},
	{service.ErrInvalidTransition, http.StatusConflict, "invalid_transition", "目前的狀態不允許此操作"},
	{service.ErrExhaustedRetries, http.StatusServiceUnavailable, "exhausted_retries", "暫時無法產生識別碼，請稍後再試"},
}

// respondError 把服務層錯誤轉成 HTTP 回應，未知錯誤不回傳內容細節
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			message := m.message
			if message == "" {
				message = err.Error()
			}
			c.AbortWithStatusJSON(m.status, gin.H{"error": message, "code": m.code})
			return
		}
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "伺服器內部錯誤", "code": "internal"})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message, "code": "invalid_argument"})
}

// paramID 解析路徑上的 UUID，失敗時已經寫好回應
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "不合法的 ID")
		return uuid.Nil, false
	}
	return id, true
}

// participantActor 房間內的操作需要參與者 token
func participantActor(c *gin.Context) (service.Actor, bool) {
	actor := middleware.ActorFrom(c)
	if actor.ParticipantID == nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "請先加入房間",
			"code":  "forbidden",
		})
		return actor, false
	}
	return actor, true
}
