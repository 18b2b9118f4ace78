package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RecordingStatus 錄影狀態，只能單向前進
type RecordingStatus string

const (
	RecordingStatusRecording  RecordingStatus = "recording"
	RecordingStatusProcessing RecordingStatus = "processing"
	RecordingStatusCompleted  RecordingStatus = "completed"
	RecordingStatusFailed     RecordingStatus = "failed"
	RecordingStatusDeleted    RecordingStatus = "deleted"
)

// Active recording 與 processing 同一房間只能有一筆
func (s RecordingStatus) Active() bool {
	return s == RecordingStatusRecording || s == RecordingStatusProcessing
}

// Outcome 管線回報的結果狀態
func (s RecordingStatus) Outcome() bool {
	return s == RecordingStatusCompleted || s == RecordingStatusFailed
}

var ActiveRecordingStatuses = []RecordingStatus{
	RecordingStatusRecording,
	RecordingStatusProcessing,
}

// Recording 房間的一次錄影
type Recording struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID          uuid.UUID         `gorm:"type:uuid;not null;index" json:"room_id"`
	Status          RecordingStatus   `gorm:"type:text;not null;index" json:"status"`
	StorageKey      string            `gorm:"type:text" json:"storage_key,omitempty"`
	DurationSeconds int64             `gorm:"not null" json:"duration_seconds"`
	Format          string            `gorm:"type:text" json:"format"`
	Quality         string            `gorm:"type:text" json:"quality"`
	Progress        int               `gorm:"not null" json:"progress"`
	FailureReason   string            `gorm:"type:text" json:"failure_reason,omitempty"`
	Details         datatypes.JSONMap `gorm:"type:jsonb" json:"details,omitempty"`

	StartedAt   time.Time  `gorm:"type:timestamptz;not null" json:"started_at"`
	StoppedAt   *time.Time `gorm:"type:timestamptz" json:"stopped_at,omitempty"`
	CompletedAt *time.Time `gorm:"type:timestamptz" json:"completed_at,omitempty"`
	DeletedAt   *time.Time `gorm:"type:timestamptz" json:"deleted_at,omitempty"`

	Room *Room `gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;autoUpdateTime" json:"updated_at"`
}

func (Recording) TableName() string { return "interview_recordings" }
