package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"interview_room/internal/models"
	"interview_room/internal/repository"
)

type recordingRepository struct {
	s *store
}

func clone(rec models.Recording) models.Recording {
	if rec.Details != nil {
		details := make(map[string]interface{}, len(rec.Details))
		for k, v := range rec.Details {
			details[k] = v
		}
		rec.Details = details
	}
	return rec
}

func (r *recordingRepository) hasActive(roomID, except uuid.UUID) bool {
	for id, rec := range r.s.recordings {
		if id != except && rec.RoomID == roomID && rec.Status.Active() {
			return true
		}
	}
	return false
}

func (r *recordingRepository) Create(_ context.Context, rec *models.Recording) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.recordings[rec.ID]; ok {
		return repository.ErrDuplicate
	}
	if rec.Status.Active() && r.hasActive(rec.RoomID, rec.ID) {
		return repository.ErrDuplicate
	}
	stamp(&rec.CreatedAt, &rec.UpdatedAt)
	put(r.s, r.s.recordings, rec.ID, clone(*rec))
	return nil
}

func (r *recordingRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.recordings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rec = clone(rec)
	return &rec, nil
}

func (r *recordingRepository) FindActiveByRoom(_ context.Context, roomID uuid.UUID) (*models.Recording, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rec := range r.s.recordings {
		if rec.RoomID == roomID && rec.Status.Active() {
			rec = clone(rec)
			return &rec, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *recordingRepository) ListByRoom(_ context.Context, roomID uuid.UUID) ([]models.Recording, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Recording
	for _, rec := range r.s.recordings {
		if rec.RoomID == roomID {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (r *recordingRepository) Update(_ context.Context, rec *models.Recording, from ...models.RecordingStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.recordings[rec.ID]
	if !ok || !statusIn(current.Status, from) {
		return false, nil
	}
	if rec.Status.Active() && r.hasActive(rec.RoomID, rec.ID) {
		return false, repository.ErrDuplicate
	}
	rec.CreatedAt = current.CreatedAt
	stamp(&rec.CreatedAt, &rec.UpdatedAt)
	put(r.s, r.s.recordings, rec.ID, clone(*rec))
	return true, nil
}

func (r *recordingRepository) UpdateProgress(_ context.Context, id uuid.UUID, percent int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.recordings[id]
	if !ok || rec.Status != models.RecordingStatusProcessing || rec.Progress >= percent {
		return false, nil
	}
	rec.Progress = percent
	put(r.s, r.s.recordings, id, rec)
	return true, nil
}
