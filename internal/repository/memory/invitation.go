package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"interview_room/internal/models"
	"interview_room/internal/repository"
)

type invitationRepository struct {
	s *store
}

func (r *invitationRepository) Create(_ context.Context, inv *models.Invitation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.invitations[inv.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range r.s.invitations {
		if existing.JoinCode == inv.JoinCode || existing.Token == inv.Token {
			return repository.ErrDuplicate
		}
	}
	if _, ok := r.s.rooms[inv.RoomID]; !ok {
		return repository.ErrNotFound
	}
	stamp(&inv.CreatedAt, &inv.UpdatedAt)
	put(r.s, r.s.invitations, inv.ID, *inv)
	return nil
}

func (r *invitationRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inv, ok := r.s.invitations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inv, nil
}

func (r *invitationRepository) FindByCode(_ context.Context, codeOrToken string) (*models.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, inv := range r.s.invitations {
		if inv.JoinCode == codeOrToken || inv.Token == codeOrToken {
			return &inv, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *invitationRepository) ListByRoom(_ context.Context, roomID uuid.UUID) ([]models.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var invitations []models.Invitation
	for _, inv := range r.s.invitations {
		if inv.RoomID == roomID {
			invitations = append(invitations, inv)
		}
	}
	sort.Slice(invitations, func(i, j int) bool { return invitations[i].IssuedAt.Before(invitations[j].IssuedAt) })
	return invitations, nil
}

func (r *invitationRepository) Update(_ context.Context, inv *models.Invitation, from ...models.InvitationStatus) (bool, error) {
	return r.save(inv, from, false)
}

func (r *invitationRepository) Reissue(_ context.Context, inv *models.Invitation, from ...models.InvitationStatus) (bool, error) {
	return r.save(inv, from, true)
}

func (r *invitationRepository) save(inv *models.Invitation, from []models.InvitationStatus, reissue bool) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.invitations[inv.ID]
	if !ok || !statusIn(current.Status, from) {
		return false, nil
	}
	for id, existing := range r.s.invitations {
		if id != inv.ID && (existing.JoinCode == inv.JoinCode || existing.Token == inv.Token) {
			return false, repository.ErrDuplicate
		}
	}
	if !reissue {
		inv.JoinAttempts = current.JoinAttempts
		inv.NeedsReview = current.NeedsReview
	}
	inv.CreatedAt = current.CreatedAt
	stamp(&inv.CreatedAt, &inv.UpdatedAt)
	put(r.s, r.s.invitations, inv.ID, *inv)
	return true, nil
}

func (r *invitationRepository) IncrementAttempts(_ context.Context, id uuid.UUID) (*models.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inv, ok := r.s.invitations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	inv.JoinAttempts++
	put(r.s, r.s.invitations, id, inv)
	return &inv, nil
}

func (r *invitationRepository) FlagReview(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inv, ok := r.s.invitations[id]
	if !ok || inv.NeedsReview {
		return false, nil
	}
	inv.NeedsReview = true
	put(r.s, r.s.invitations, id, inv)
	return true, nil
}

func (r *invitationRepository) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inv, ok := r.s.invitations[id]
	if !ok {
		return repository.ErrNotFound
	}
	inv.SentAt = &at
	put(r.s, r.s.invitations, id, inv)
	return nil
}

func (r *invitationRepository) CancelPending(_ context.Context, roomID uuid.UUID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, inv := range r.s.invitations {
		if inv.RoomID != roomID || inv.Status != models.InvitationStatusPending {
			continue
		}
		inv.Status = models.InvitationStatusCancelled
		inv.RespondedAt = &at
		put(r.s, r.s.invitations, id, inv)
		n++
	}
	return n, nil
}

func (r *invitationRepository) ExpirePending(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, inv := range r.s.invitations {
		if inv.Status != models.InvitationStatusPending || !inv.ExpiresAt.Before(now) {
			continue
		}
		inv.Status = models.InvitationStatusExpired
		put(r.s, r.s.invitations, id, inv)
		n++
	}
	return n, nil
}
