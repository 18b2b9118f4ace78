package repository

import (
	"context"

	"github.com/google/uuid"

	"interview_room/internal/models"
	"interview_room/internal/storage"
)

type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	FindByCode(ctx context.Context, code string) (*models.Room, error)
	// Update 只在房間目前狀態屬於 from 時寫入，回傳是否寫入成功
	Update(ctx context.Context, room *models.Room, from ...models.RoomStatus) (bool, error)
	ListByHost(ctx context.Context, hostID string) ([]models.Room, error)
}

type roomRepository struct {
	baseRepository
}

func NewRoomRepository(db *storage.PostgresDB) RoomRepository {
	return &roomRepository{baseRepository{db: db}}
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	return r.create(ctx, room)
}

func (r *roomRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := r.first(ctx, &room, "id = ?", id); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) FindByCode(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	if err := r.first(ctx, &room, "room_code = ?", code); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) Update(ctx context.Context, room *models.Room, from ...models.RoomStatus) (bool, error) {
	return r.saveIf(ctx, room, room.ID, statusStrings(from))
}

// ListByHost 查詢主持人的所有房間
func (r *roomRepository) ListByHost(ctx context.Context, hostID string) ([]models.Room, error) {
	var rooms []models.Room
	err := r.conn(ctx).Where("host_id = ?", hostID).Order("created_at DESC").Find(&rooms).Error
	return rooms, translate(err)
}
