package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus 定義房間狀態的類型
type RoomStatus string

const (
	RoomStatusScheduled RoomStatus = "scheduled"
	RoomStatusWaiting   RoomStatus = "waiting" // 主持人已開啟房間，媒體尚未開始
	RoomStatusLive      RoomStatus = "live"
	RoomStatusEnded     RoomStatus = "ended"
	RoomStatusCancelled RoomStatus = "cancelled"
)

// Terminal 回報狀態是否為終態
func (s RoomStatus) Terminal() bool {
	return s == RoomStatusEnded || s == RoomStatusCancelled
}

// Open 回報來賓是否可以在此狀態加入
func (s RoomStatus) Open() bool {
	return s == RoomStatusWaiting || s == RoomStatusLive
}

// Room 表示一場排定或進行中的訪談
type Room struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	HostID         string     `gorm:"type:text;not null;index" json:"host_id"`
	Title          string     `gorm:"type:text;not null" json:"title"`
	Description    string     `gorm:"type:text" json:"description,omitempty"`
	ScheduledStart *time.Time `gorm:"type:timestamptz" json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `gorm:"type:timestamptz" json:"scheduled_end,omitempty"`
	ActualStart    *time.Time `gorm:"type:timestamptz" json:"actual_start,omitempty"`
	ActualEnd      *time.Time `gorm:"type:timestamptz" json:"actual_end,omitempty"`
	Status         RoomStatus `gorm:"type:text;not null;index" json:"status"`
	RoomCode       string     `gorm:"type:text;not null;uniqueIndex" json:"room_code"`
	StreamKey      string     `gorm:"type:text;not null;uniqueIndex" json:"-"`
	MaxGuests      int        `gorm:"not null" json:"max_guests"`
	PasswordHash   string     `gorm:"type:text" json:"-"`

	Settings RoomSettings   `gorm:"embedded;embeddedPrefix:setting_" json:"settings"`
	Media    MediaEndpoints `gorm:"embedded;embeddedPrefix:media_" json:"media"`

	ArchivedAt *time.Time `gorm:"type:timestamptz" json:"archived_at,omitempty"`
	CreatedAt  time.Time  `gorm:"type:timestamptz;not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"type:timestamptz;not null;autoUpdateTime" json:"updated_at"`
}

func (Room) TableName() string { return "interview_rooms" }

// HasPassword 房間是否設定了加入密碼
func (r *Room) HasPassword() bool {
	return r.PasswordHash != ""
}

// MediaEndpoints 由外部媒體服務配發，這裡只保存不產生
type MediaEndpoints struct {
	SessionID   string `gorm:"type:text" json:"session_id,omitempty"`
	IngestURL   string `gorm:"type:text" json:"ingest_url,omitempty"`
	WebRTCURL   string `gorm:"type:text" json:"webrtc_url,omitempty"`
	PlaybackURL string `gorm:"type:text" json:"playback_url,omitempty"`
}
