package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"interview_room/internal/models"
	"interview_room/internal/repository"
)

type roomRepository struct {
	s *store
}

func (r *roomRepository) Create(_ context.Context, room *models.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rooms[room.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range r.s.rooms {
		if existing.RoomCode == room.RoomCode || existing.StreamKey == room.StreamKey {
			return repository.ErrDuplicate
		}
	}
	stamp(&room.CreatedAt, &room.UpdatedAt)
	put(r.s, r.s.rooms, room.ID, *room)
	return nil
}

func (r *roomRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	room, ok := r.s.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &room, nil
}

func (r *roomRepository) FindByCode(_ context.Context, code string) (*models.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, room := range r.s.rooms {
		if room.RoomCode == code {
			return &room, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *roomRepository) Update(_ context.Context, room *models.Room, from ...models.RoomStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.rooms[room.ID]
	if !ok || !statusIn(current.Status, from) {
		return false, nil
	}
	room.CreatedAt = current.CreatedAt
	stamp(&room.CreatedAt, &room.UpdatedAt)
	put(r.s, r.s.rooms, room.ID, *room)
	return true, nil
}

func (r *roomRepository) ListByHost(_ context.Context, hostID string) ([]models.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rooms []models.Room
	for _, room := range r.s.rooms {
		if room.HostID == hostID {
			rooms = append(rooms, room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.After(rooms[j].CreatedAt) })
	return rooms, nil
}
