package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"interview_room/internal/models"
	"interview_room/internal/service"
)

type allocateRequest struct {
	RoomID        uuid.UUID  `json:"room_id"`
	ParticipantID *uuid.UUID `json:"participant_id,omitempty"`
}

type allocateRoomReply struct {
	Endpoints models.MediaEndpoints `json:"endpoints"`
	Error     string                `json:"error,omitempty"`
}

type allocatePeerReply struct {
	ConnectionID string `json:"connection_id"`
	Error        string `json:"error,omitempty"`
}

// Media 透過 request/reply 向媒體服務要資源
type Media struct {
	transport Transport
	subjects  Subjects
}

func NewMedia(t Transport, s Subjects) *Media {
	return &Media{transport: t, subjects: s}
}

func (m *Media) AllocateRoom(ctx context.Context, roomID uuid.UUID) (models.MediaEndpoints, error) {
	var reply allocateRoomReply
	if err := m.transport.Request(ctx, m.subjects.AllocateRoom(), allocateRequest{RoomID: roomID}, &reply); err != nil {
		return models.MediaEndpoints{}, fmt.Errorf("allocate room %s: %w", roomID, err)
	}
	if reply.Error != "" {
		return models.MediaEndpoints{}, fmt.Errorf("allocate room %s: %s", roomID, reply.Error)
	}
	return reply.Endpoints, nil
}

func (m *Media) AllocatePeer(ctx context.Context, roomID, participantID uuid.UUID) (string, error) {
	var reply allocatePeerReply
	req := allocateRequest{RoomID: roomID, ParticipantID: &participantID}
	if err := m.transport.Request(ctx, m.subjects.AllocatePeer(), req, &reply); err != nil {
		return "", fmt.Errorf("allocate peer %s: %w", participantID, err)
	}
	if reply.Error != "" {
		return "", errors.New(reply.Error)
	}
	return reply.ConnectionID, nil
}

type invitationMail struct {
	InvitationID uuid.UUID         `json:"invitation_id"`
	Template     string            `json:"template"`
	Vars         map[string]string `json:"vars"`
}

// Mailer 把邀請信交給寄信服務，JetStream 確認收下就算成功
type Mailer struct {
	transport Transport
	subjects  Subjects
}

func NewMailer(t Transport, s Subjects) *Mailer {
	return &Mailer{transport: t, subjects: s}
}

func (m *Mailer) SendInvitation(ctx context.Context, invitationID uuid.UUID, template string, vars map[string]string) error {
	return m.transport.Publish(ctx, m.subjects.InvitationMail(), invitationMail{
		InvitationID: invitationID,
		Template:     template,
		Vars:         vars,
	})
}

type handOff struct {
	RoomID      uuid.UUID `json:"room_id"`
	RecordingID uuid.UUID `json:"recording_id"`
}

type Pipeline struct {
	transport Transport
	subjects  Subjects
}

func NewPipeline(t Transport, s Subjects) *Pipeline {
	return &Pipeline{transport: t, subjects: s}
}

func (p *Pipeline) HandOff(ctx context.Context, roomID, recordingID uuid.UUID) error {
	return p.transport.Publish(ctx, p.subjects.PipelineHandOff(), handOff{RoomID: roomID, RecordingID: recordingID})
}

// Events 把房間事件轉發到 NATS，給其他服務訂閱
type Events struct {
	transport Transport
	subjects  Subjects
}

func NewEvents(t Transport, s Subjects) *Events {
	return &Events{transport: t, subjects: s}
}

func (e *Events) Publish(ctx context.Context, event service.Event) error {
	return e.transport.Publish(ctx, e.subjects.Event(event.Type), event)
}
