package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType 聊天訊息的類型
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeEmoji  MessageType = "emoji"
	MessageTypeSystem MessageType = "system" // 只由服務本身產生
	MessageTypeFile   MessageType = "file"
)

// Postable 參與者可以自行發送的類型
func (t MessageType) Postable() bool {
	switch t {
	case MessageTypeText, MessageTypeEmoji, MessageTypeFile:
		return true
	}
	return false
}

// ChatMessage 房間內的一則聊天訊息
type ChatMessage struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID      uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_chat_room_seq,priority:1" json:"room_id"`
	Seq         int64       `gorm:"not null;uniqueIndex:idx_chat_room_seq,priority:2" json:"seq"`
	AuthorID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"author_id"`
	Type        MessageType `gorm:"type:text;not null" json:"type"`
	Content     string      `gorm:"type:text;not null" json:"content"`
	ReplyToID   *uuid.UUID  `gorm:"type:uuid" json:"reply_to_id,omitempty"`
	RecipientID *uuid.UUID  `gorm:"type:uuid" json:"recipient_id,omitempty"`

	// 審核欄位，刪除只做軟刪除
	Flagged          bool       `gorm:"not null" json:"flagged"`
	FlagReason       string     `gorm:"type:text" json:"flag_reason,omitempty"`
	FlaggedBy        string     `gorm:"type:text" json:"flagged_by,omitempty"`
	DeletedAt        *time.Time `gorm:"type:timestamptz" json:"deleted_at,omitempty"`
	DeletedBy        string     `gorm:"type:text" json:"deleted_by,omitempty"`
	ModerationReason string     `gorm:"type:text" json:"moderation_reason,omitempty"`

	Room   *Room        `gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Author *Participant `gorm:"foreignKey:AuthorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null" json:"created_at"`
}

func (ChatMessage) TableName() string { return "interview_chat_messages" }

// Deleted 是否已被審核刪除
func (m *ChatMessage) Deleted() bool {
	return m.DeletedAt != nil
}

// Private 私訊只有作者與收件人看得到
func (m *ChatMessage) Private() bool {
	return m.RecipientID != nil
}

// VisibleTo 回報 viewer 是否能在預設讀取路徑看到這則訊息
func (m *ChatMessage) VisibleTo(viewerID uuid.UUID) bool {
	if m.Deleted() {
		return false
	}
	if !m.Private() {
		return true
	}
	return m.AuthorID == viewerID || *m.RecipientID == viewerID
}
