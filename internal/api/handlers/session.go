package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"interview_room/internal/models"
	"interview_room/internal/utils"
)

// sessionResponse 加入成功後回傳參與者與連線 token
type sessionResponse struct {
	Participant  *models.Participant `json:"participant"`
	SessionToken string              `json:"session_token"`
}

func respondSession(c *gin.Context, tokens *utils.TokenIssuer, p *models.Participant) {
	token, err := tokens.GenerateParticipantToken(p.UserID, string(p.Role), p.RoomID, p.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if p.Status == models.ParticipantStatusWaiting {
		status = http.StatusAccepted
	}
	c.JSON(status, sessionResponse{Participant: p, SessionToken: token})
}
