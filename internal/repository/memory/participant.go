package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"interview_room/internal/models"
	"interview_room/internal/repository"
)

type participantRepository struct {
	s *store
}

func active(p models.Participant) bool {
	return !p.Status.Terminal()
}

// conflicts 對應 postgres 上的兩個部分唯一索引
func (r *participantRepository) conflicts(p *models.Participant) bool {
	if !active(*p) {
		return false
	}
	for id, existing := range r.s.participants {
		if id == p.ID || existing.RoomID != p.RoomID || !active(existing) {
			continue
		}
		if p.InvitationID != nil {
			if existing.InvitationID != nil && *existing.InvitationID == *p.InvitationID {
				return true
			}
			continue
		}
		if p.UserID != "" && existing.InvitationID == nil && existing.UserID == p.UserID {
			return true
		}
	}
	return false
}

func (r *participantRepository) Create(_ context.Context, p *models.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.participants[p.ID]; ok || r.conflicts(p) {
		return repository.ErrDuplicate
	}
	if _, ok := r.s.rooms[p.RoomID]; !ok {
		return repository.ErrNotFound
	}
	stamp(&p.CreatedAt, &p.UpdatedAt)
	put(r.s, r.s.participants, p.ID, *p)
	return nil
}

func (r *participantRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.participants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *participantRepository) FindByInvitation(_ context.Context, roomID, invitationID uuid.UUID) ([]models.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Participant
	for _, p := range r.s.participants {
		if p.RoomID == roomID && p.InvitationID != nil && *p.InvitationID == invitationID {
			out = append(out, p)
		}
	}
	sortByJoined(out)
	return out, nil
}

func (r *participantRepository) FindActiveByUser(_ context.Context, roomID uuid.UUID, userID string) (*models.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.participants {
		if p.RoomID == roomID && p.InvitationID == nil && p.UserID == userID && active(p) {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *participantRepository) ListByRoom(_ context.Context, roomID uuid.UUID, statuses ...models.ParticipantStatus) ([]models.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Participant
	for _, p := range r.s.participants {
		if p.RoomID == roomID && statusIn(p.Status, statuses) {
			out = append(out, p)
		}
	}
	sortByJoined(out)
	return out, nil
}

func (r *participantRepository) CountConnectedGuests(_ context.Context, roomID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, p := range r.s.participants {
		if p.RoomID == roomID && p.Status == models.ParticipantStatusConnected && p.Role != models.RoleHost {
			n++
		}
	}
	return n, nil
}

func (r *participantRepository) Update(_ context.Context, p *models.Participant, from ...models.ParticipantStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.participants[p.ID]
	if !ok || !statusIn(current.Status, from) {
		return false, nil
	}
	if r.conflicts(p) {
		return false, repository.ErrDuplicate
	}
	p.CreatedAt = current.CreatedAt
	stamp(&p.CreatedAt, &p.UpdatedAt)
	put(r.s, r.s.participants, p.ID, *p)
	return true, nil
}

func (r *participantRepository) ListDisconnectedBefore(_ context.Context, cutoff time.Time) ([]models.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Participant
	for _, p := range r.s.participants {
		if p.Status == models.ParticipantStatusDisconnected && p.DisconnectedAt != nil && p.DisconnectedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	sortByJoined(out)
	return out, nil
}

func (r *participantRepository) TimeoutDisconnected(_ context.Context, p *models.Participant, cutoff time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.participants[p.ID]
	if !ok || current.Status != models.ParticipantStatusDisconnected ||
		current.DisconnectedAt == nil || !current.DisconnectedAt.Before(cutoff) {
		return false, nil
	}
	p.CreatedAt = current.CreatedAt
	stamp(&p.CreatedAt, &p.UpdatedAt)
	put(r.s, r.s.participants, p.ID, *p)
	return true, nil
}

func sortByJoined(ps []models.Participant) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].JoinedAt.Before(ps[j].JoinedAt) })
}
