package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"interview_room/internal/middleware"
	"interview_room/internal/service"
)

// ChatHandler 聊天訊息，發送與讀取都需要參與者 token
type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

func (h *ChatHandler) PostMessage(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	actor, ok := participantActor(c)
	if !ok {
		return
	}
	var input service.PostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.chat.Post(c.Request.Context(), roomID, *actor.ParticipantID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListMessages 只回傳呼叫者看得到的訊息，私訊只有雙方看得到
func (h *ChatHandler) ListMessages(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	actor, ok := participantActor(c)
	if !ok {
		return
	}
	messages, err := h.chat.List(c.Request.Context(), roomID, *actor.ParticipantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

type moderationRequest struct {
	Reason string `json:"reason"`
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input moderationRequest
	if !bindOptionalJSON(c, &input) {
		return
	}
	msg, err := h.chat.Delete(c.Request.Context(), middleware.ActorFrom(c), messageID, input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *ChatHandler) FlagMessage(c *gin.Context) {
	messageID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input moderationRequest
	if !bindOptionalJSON(c, &input) {
		return
	}
	msg, err := h.chat.Flag(c.Request.Context(), middleware.ActorFrom(c), messageID, input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
