package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interview_room/internal/models"
)

// ChatService 房間聊天與主持人審核
type ChatService struct {
	*core
}

type PostInput struct {
	Type        models.MessageType `json:"type"`
	Content     string             `json:"content"`
	ReplyTo     *uuid.UUID         `json:"reply_to,omitempty"`
	RecipientID *uuid.UUID         `json:"recipient_id,omitempty"`
}

// Post 在房間鎖內配發序號，同一房間的訊息順序等於送達順序
func (s *ChatService) Post(ctx context.Context, roomID, authorID uuid.UUID, in PostInput) (*models.ChatMessage, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Settings.ChatEnabled {
		return nil, fmt.Errorf("chat disabled in room %s: %w", room.ID, ErrInvalidTransition)
	}

	author, err := s.loadParticipant(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if author.RoomID != roomID {
		return nil, fmt.Errorf("participant %s not in room %s: %w", author.ID, roomID, ErrNotFound)
	}
	if author.Status != models.ParticipantStatusConnected {
		return nil, fmt.Errorf("participant %s is %s: %w", author.ID, author.Status, ErrInvalidTransition)
	}

	if in.Type == "" {
		in.Type = models.MessageTypeText
	}
	if !in.Type.Postable() {
		return nil, invalidArgument("message type %q cannot be posted", in.Type)
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, invalidArgument("message content is empty")
	}
	if utf8.RuneCountInString(content) > s.cfg.Chat.MaxLength {
		return nil, invalidArgument("message longer than %d characters", s.cfg.Chat.MaxLength)
	}

	if in.ReplyTo != nil {
		parent, err := s.repos.ChatMessage.FindByID(ctx, *in.ReplyTo)
		if err != nil || parent.RoomID != roomID || parent.Deleted() {
			return nil, invalidArgument("reply target %s is not available", *in.ReplyTo)
		}
	}
	if in.RecipientID != nil {
		if *in.RecipientID == authorID {
			return nil, invalidArgument("cannot send a private message to yourself")
		}
		recipient, err := s.repos.Participant.FindByID(ctx, *in.RecipientID)
		if err != nil || recipient.RoomID != roomID {
			return nil, invalidArgument("recipient %s is not in this room", *in.RecipientID)
		}
	}

	seq, err := s.repos.ChatMessage.NextSeq(ctx, roomID)
	if err != nil {
		return nil, err
	}
	msg := &models.ChatMessage{
		ID:          uuid.New(),
		RoomID:      roomID,
		Seq:         seq,
		AuthorID:    authorID,
		Type:        in.Type,
		Content:     content,
		ReplyToID:   in.ReplyTo,
		RecipientID: in.RecipientID,
		CreatedAt:   s.now(),
	}
	if err := s.repos.ChatMessage.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.metrics.ChatMessage()
	event := Event{Type: EventChatMessage, RoomID: roomID, Data: msg}
	if msg.Private() {
		event.Audience = AudienceTargets
		event.Targets = []uuid.UUID{authorID, *msg.RecipientID}
	}
	s.publish(ctx, event)
	return msg, nil
}

// List viewer 必須是房間的參與者
func (s *ChatService) List(ctx context.Context, roomID, viewerID uuid.UUID) ([]models.ChatMessage, error) {
	viewer, err := s.repos.Participant.FindByID(ctx, viewerID)
	if err != nil || viewer.RoomID != roomID {
		return nil, ErrUnauthorized
	}
	return s.repos.ChatMessage.ListVisible(ctx, roomID, viewerID)
}

// Delete 軟刪除，已刪除的訊息再刪一次不做事
func (s *ChatService) Delete(ctx context.Context, actor Actor, messageID uuid.UUID, reason string) (*models.ChatMessage, error) {
	return s.moderate(ctx, actor, messageID, func(msg *models.ChatMessage) (bool, string) {
		if msg.Deleted() {
			return false, ""
		}
		now := s.now()
		msg.DeletedAt = &now
		msg.DeletedBy = actor.UserID
		msg.ModerationReason = reason
		return true, EventChatDeleted
	})
}

func (s *ChatService) Flag(ctx context.Context, actor Actor, messageID uuid.UUID, reason string) (*models.ChatMessage, error) {
	return s.moderate(ctx, actor, messageID, func(msg *models.ChatMessage) (bool, string) {
		if msg.Flagged {
			return false, ""
		}
		msg.Flagged = true
		msg.FlagReason = reason
		msg.FlaggedBy = actor.UserID
		return true, EventChatFlagged
	})
}

func (s *ChatService) moderate(ctx context.Context, actor Actor, messageID uuid.UUID, mutate func(*models.ChatMessage) (bool, string)) (*models.ChatMessage, error) {
	msg, err := s.repos.ChatMessage.FindByID(ctx, messageID)
	if err != nil {
		return nil, notFound(err, "message")
	}

	unlock := s.locks.Lock(msg.RoomID)
	defer unlock()

	room, err := s.loadRoom(ctx, msg.RoomID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeModerator(ctx, actor, room); err != nil {
		return nil, err
	}
	if msg, err = s.repos.ChatMessage.FindByID(ctx, messageID); err != nil {
		return nil, notFound(err, "message")
	}

	changed, eventType := mutate(msg)
	if !changed {
		return msg, nil
	}
	if err := s.repos.ChatMessage.Update(ctx, msg); err != nil {
		return nil, err
	}

	s.log.Info("chat message moderated",
		zap.String("message_id", msg.ID.String()),
		zap.String("action", eventType),
		zap.String("by", actor.UserID))
	s.publish(ctx, Event{
		Type:   eventType,
		RoomID: msg.RoomID,
		Data:   map[string]interface{}{"message_id": msg.ID, "reason": msg.ModerationReason, "flag_reason": msg.FlagReason},
	})
	return msg, nil
}
