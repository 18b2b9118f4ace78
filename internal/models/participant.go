package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantStatus 參與者連線狀態
type ParticipantStatus string

const (
	ParticipantStatusWaiting      ParticipantStatus = "waiting"
	ParticipantStatusConnected    ParticipantStatus = "connected"
	ParticipantStatusDisconnected ParticipantStatus = "disconnected"
	ParticipantStatusLeft         ParticipantStatus = "left"
	ParticipantStatusKicked       ParticipantStatus = "kicked"
)

// Terminal left 與 kicked 為吸收態
func (s ParticipantStatus) Terminal() bool {
	return s == ParticipantStatusLeft || s == ParticipantStatusKicked
}

// ActiveParticipantStatuses 同一個 (room, invitation) 只能有一筆處於這些狀態
var ActiveParticipantStatuses = []ParticipantStatus{
	ParticipantStatusWaiting,
	ParticipantStatusConnected,
	ParticipantStatusDisconnected,
}

// 離開原因
const (
	LeaveReasonVoluntary     = "left"
	LeaveReasonDenied        = "denied"
	LeaveReasonTimeout       = "timeout"
	LeaveReasonRoomEnded     = "room_ended"
	LeaveReasonRoomCancelled = "room_cancelled"
)

// Participant 記錄一個身份在房間內的一次佔用
type Participant struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID       uuid.UUID         `gorm:"type:uuid;not null;index" json:"room_id"`
	InvitationID *uuid.UUID        `gorm:"type:uuid;index" json:"invitation_id,omitempty"`
	UserID       string            `gorm:"type:text;index" json:"user_id,omitempty"`
	DisplayName  string            `gorm:"type:text;not null" json:"display_name"`
	Role         Role              `gorm:"type:text;not null" json:"role"`
	ConnectionID string            `gorm:"type:text" json:"connection_id,omitempty"`
	Status       ParticipantStatus `gorm:"type:text;not null;index" json:"status"`

	AudioEnabled         bool `gorm:"not null" json:"audio_enabled"`
	VideoEnabled         bool `gorm:"not null" json:"video_enabled"`
	MutedByHost          bool `gorm:"not null" json:"muted_by_host"`
	CameraDisabledByHost bool `gorm:"not null" json:"camera_disabled_by_host"`

	JoinedAt       time.Time  `gorm:"type:timestamptz;not null" json:"joined_at"`
	ConnectedAt    *time.Time `gorm:"type:timestamptz" json:"connected_at,omitempty"`
	DisconnectedAt *time.Time `gorm:"type:timestamptz" json:"disconnected_at,omitempty"`
	LeftAt         *time.Time `gorm:"type:timestamptz" json:"left_at,omitempty"`
	LeaveReason    string     `gorm:"type:text" json:"leave_reason,omitempty"`
	TotalDuration  int64      `gorm:"not null" json:"total_duration_ms"`

	Room       *Room       `gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Invitation *Invitation `gorm:"foreignKey:InvitationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;autoUpdateTime" json:"updated_at"`
}

func (Participant) TableName() string { return "interview_participants" }

// Duration 累積的連線時間
func (p *Participant) Duration() time.Duration {
	return time.Duration(p.TotalDuration) * time.Millisecond
}

// CloseInterval 結束目前的連線區間並累加時間，只會增加不會重算
func (p *Participant) CloseInterval(now time.Time) {
	if p.Status != ParticipantStatusConnected || p.ConnectedAt == nil {
		return
	}
	if elapsed := now.Sub(*p.ConnectedAt); elapsed > 0 {
		p.TotalDuration += elapsed.Milliseconds()
	}
	p.ConnectedAt = nil
}

// Resolve 進入終態，left_at 只設定一次
func (p *Participant) Resolve(status ParticipantStatus, reason string, now time.Time) {
	p.CloseInterval(now)
	p.Status = status
	p.LeaveReason = reason
	if p.LeftAt == nil {
		left := now
		if left.Before(p.JoinedAt) {
			left = p.JoinedAt
		}
		p.LeftAt = &left
	}
}

// Connect 開始新的連線區間
func (p *Participant) Connect(now time.Time) {
	p.Status = ParticipantStatusConnected
	p.ConnectedAt = &now
	p.DisconnectedAt = nil
}
