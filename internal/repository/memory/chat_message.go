package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"interview_room/internal/models"
	"interview_room/internal/repository"
)

type chatMessageRepository struct {
	s *store
}

func (r *chatMessageRepository) Create(_ context.Context, message *models.ChatMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.messages[message.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range r.s.messages {
		if existing.RoomID == message.RoomID && existing.Seq == message.Seq {
			return repository.ErrDuplicate
		}
	}
	put(r.s, r.s.messages, message.ID, *message)
	return nil
}

func (r *chatMessageRepository) FindByID(_ context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	message, ok := r.s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &message, nil
}

func (r *chatMessageRepository) NextSeq(_ context.Context, roomID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var last int64
	for _, message := range r.s.messages {
		if message.RoomID == roomID && message.Seq > last {
			last = message.Seq
		}
	}
	return last + 1, nil
}

func (r *chatMessageRepository) ListVisible(_ context.Context, roomID, viewerID uuid.UUID) ([]models.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.ChatMessage
	for _, message := range r.s.messages {
		if message.RoomID == roomID && message.VisibleTo(viewerID) {
			out = append(out, message)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *chatMessageRepository) Update(_ context.Context, message *models.ChatMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.messages[message.ID]; !ok {
		return repository.ErrNotFound
	}
	put(r.s, r.s.messages, message.ID, *message)
	return nil
}
