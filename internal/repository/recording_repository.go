package repository

import (
	"context"

	"github.com/google/uuid"

	"interview_room/internal/models"
	"interview_room/internal/storage"
)

type RecordingRepository interface {
	// Create 在同一房間已有進行中的錄影時回傳 ErrDuplicate
	Create(ctx context.Context, rec *models.Recording) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	FindActiveByRoom(ctx context.Context, roomID uuid.UUID) (*models.Recording, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Recording, error)
	Update(ctx context.Context, rec *models.Recording, from ...models.RecordingStatus) (bool, error)
	// UpdateProgress 只接受處理中且比目前大的進度
	UpdateProgress(ctx context.Context, id uuid.UUID, percent int) (bool, error)
}

type recordingRepository struct {
	baseRepository
}

func NewRecordingRepository(db *storage.PostgresDB) RecordingRepository {
	return &recordingRepository{baseRepository{db: db}}
}

func (r *recordingRepository) Create(ctx context.Context, rec *models.Recording) error {
	return r.create(ctx, rec)
}

func (r *recordingRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	var rec models.Recording
	if err := r.first(ctx, &rec, "id = ?", id); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordingRepository) FindActiveByRoom(ctx context.Context, roomID uuid.UUID) (*models.Recording, error) {
	var rec models.Recording
	err := r.first(ctx, &rec, "room_id = ? AND status IN ?", roomID, statusStrings(models.ActiveRecordingStatuses))
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordingRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Recording, error) {
	var recordings []models.Recording
	err := r.conn(ctx).Where("room_id = ?", roomID).Order("started_at DESC").Find(&recordings).Error
	return recordings, translate(err)
}

func (r *recordingRepository) Update(ctx context.Context, rec *models.Recording, from ...models.RecordingStatus) (bool, error) {
	return r.saveIf(ctx, rec, rec.ID, statusStrings(from))
}

func (r *recordingRepository) UpdateProgress(ctx context.Context, id uuid.UUID, percent int) (bool, error) {
	res := r.conn(ctx).Model(&models.Recording{}).
		Where("id = ? AND status = ? AND progress < ?", id, models.RecordingStatusProcessing, percent).
		Update("progress", percent)
	return res.RowsAffected == 1, translate(res.Error)
}
