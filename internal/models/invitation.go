package models

import (
	"time"

	"github.com/google/uuid"
)

// InvitationStatus 邀請的狀態
type InvitationStatus string

const (
	InvitationStatusPending   InvitationStatus = "pending"
	InvitationStatusAccepted  InvitationStatus = "accepted"
	InvitationStatusDeclined  InvitationStatus = "declined"
	InvitationStatusExpired   InvitationStatus = "expired"
	InvitationStatusCancelled InvitationStatus = "cancelled"
)

// Role 參與者在房間中的角色
type Role string

const (
	RoleHost   Role = "host"
	RoleCoHost Role = "co_host"
	RoleGuest  Role = "guest"
	RoleViewer Role = "viewer"
)

// Valid 邀請可以指定的角色，host 不能透過邀請取得
func (r Role) Valid() bool {
	switch r {
	case RoleCoHost, RoleGuest, RoleViewer:
		return true
	}
	return false
}

// Moderator 是否具有主持權限
func (r Role) Moderator() bool {
	return r == RoleHost || r == RoleCoHost
}

// Invitation 是給某位來賓加入某個房間的邀請
type Invitation struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID          uuid.UUID        `gorm:"type:uuid;not null;index" json:"room_id"`
	Email           string           `gorm:"type:text;not null" json:"email"`
	DisplayName     string           `gorm:"type:text" json:"display_name"`
	CustomMessage   string           `gorm:"type:text" json:"custom_message,omitempty"`
	JoinCode        string           `gorm:"type:text;not null;uniqueIndex" json:"join_code"`
	Token           string           `gorm:"type:text;not null;uniqueIndex" json:"-"`
	Role            Role             `gorm:"type:text;not null" json:"role"`
	Status          InvitationStatus `gorm:"type:text;not null;index" json:"status"`
	IssuedAt        time.Time        `gorm:"type:timestamptz;not null" json:"issued_at"`
	RespondedAt     *time.Time       `gorm:"type:timestamptz" json:"responded_at,omitempty"`
	ExpiresAt       time.Time        `gorm:"type:timestamptz;not null;index" json:"expires_at"`
	JoinAttempts    int              `gorm:"not null" json:"join_attempts"`
	MaxJoinAttempts int              `gorm:"not null" json:"max_join_attempts"`
	NeedsReview     bool             `gorm:"not null" json:"needs_review"`
	SentAt          *time.Time       `gorm:"type:timestamptz" json:"sent_at,omitempty"`
	Regenerations   int              `gorm:"not null" json:"regenerations"`

	Room *Room `gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;autoUpdateTime" json:"updated_at"`
}

func (Invitation) TableName() string { return "interview_invitations" }

// ExpiredAt 在 now 時是否已超過有效期限
func (i *Invitation) ExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
