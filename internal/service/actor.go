package service

import (
	"github.com/google/uuid"

	"interview_room/internal/models"
)

// Actor 是驗證中介層提供的呼叫者身份，服務層只信任不簽發
type Actor struct {
	UserID        string
	Role          string
	ParticipantID *uuid.UUID // 來賓以參與者 token 連線時才有
}

// SystemActor 供排程與外部回呼使用
var SystemActor = Actor{UserID: "system", Role: "system"}

func (a Actor) IsHost(room *models.Room) bool {
	return a.UserID != "" && a.UserID == room.HostID
}
