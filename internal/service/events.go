package service

import (
	"time"

	"github.com/google/uuid"
)

// 事件類型
const (
	EventRoomOpened            = "room.opened"
	EventRoomLive              = "room.live"
	EventRoomEnded             = "room.ended"
	EventRoomCancelled         = "room.cancelled"
	EventInvitationCreated     = "invitation.created"
	EventInvitationReview      = "invitation.review_required"
	EventAdmissionRequested    = "admission.requested"
	EventParticipantJoined     = "participant.joined"
	EventParticipantDenied     = "participant.denied"
	EventParticipantDisconnect = "participant.disconnected"
	EventParticipantLeft       = "participant.left"
	EventParticipantKicked     = "participant.kicked"
	EventParticipantUpdated    = "participant.updated"
	EventRecordingStarted      = "recording.started"
	EventRecordingStopped      = "recording.stopped"
	EventRecordingCompleted    = "recording.completed"
	EventRecordingFailed       = "recording.failed"
	EventChatMessage           = "chat.message"
	EventChatDeleted           = "chat.deleted"
	EventChatFlagged           = "chat.flagged"
)

// Audience 決定 websocket hub 把事件送給誰
type Audience string

const (
	AudienceRoom       Audience = "room"
	AudienceModerators Audience = "moderators"
	// AudienceTargets 只送給 Targets 中的參與者
	AudienceTargets Audience = "targets"
)

type Event struct {
	Type     string      `json:"type"`
	RoomID   uuid.UUID   `json:"room_id"`
	Audience Audience    `json:"audience"`
	Targets  []uuid.UUID `json:"targets,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	At       time.Time   `json:"at"`
}
