package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"interview_room/internal/models"
	"interview_room/internal/storage"
)

type ParticipantRepository interface {
	Create(ctx context.Context, p *models.Participant) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	// FindByInvitation 依加入時間排序回傳同一邀請的所有列
	FindByInvitation(ctx context.Context, roomID, invitationID uuid.UUID) ([]models.Participant, error)
	// FindActiveByUser 找出直接加入者（沒有邀請）尚未結束的列
	FindActiveByUser(ctx context.Context, roomID uuid.UUID, userID string) (*models.Participant, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID, statuses ...models.ParticipantStatus) ([]models.Participant, error)
	CountConnectedGuests(ctx context.Context, roomID uuid.UUID) (int64, error)
	Update(ctx context.Context, p *models.Participant, from ...models.ParticipantStatus) (bool, error)
	ListDisconnectedBefore(ctx context.Context, cutoff time.Time) ([]models.Participant, error)
	// TimeoutDisconnected 只在列仍為 disconnected 且斷線時間早於 cutoff 時寫入
	TimeoutDisconnected(ctx context.Context, p *models.Participant, cutoff time.Time) (bool, error)
}

type participantRepository struct {
	baseRepository
}

func NewParticipantRepository(db *storage.PostgresDB) ParticipantRepository {
	return &participantRepository{baseRepository{db: db}}
}

func (r *participantRepository) Create(ctx context.Context, p *models.Participant) error {
	return r.create(ctx, p)
}

func (r *participantRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	var p models.Participant
	if err := r.first(ctx, &p, "id = ?", id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *participantRepository) FindByInvitation(ctx context.Context, roomID, invitationID uuid.UUID) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.conn(ctx).
		Where("room_id = ? AND invitation_id = ?", roomID, invitationID).
		Order("joined_at ASC").
		Find(&participants).Error
	return participants, translate(err)
}

func (r *participantRepository) FindActiveByUser(ctx context.Context, roomID uuid.UUID, userID string) (*models.Participant, error) {
	var p models.Participant
	err := r.first(ctx, &p, "room_id = ? AND user_id = ? AND invitation_id IS NULL AND status IN ?",
		roomID, userID, statusStrings(models.ActiveParticipantStatuses))
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *participantRepository) ListByRoom(ctx context.Context, roomID uuid.UUID, statuses ...models.ParticipantStatus) ([]models.Participant, error) {
	tx := r.conn(ctx).Where("room_id = ?", roomID)
	if len(statuses) > 0 {
		tx = tx.Where("status IN ?", statusStrings(statuses))
	}
	var participants []models.Participant
	err := tx.Order("joined_at ASC").Find(&participants).Error
	return participants, translate(err)
}

// CountConnectedGuests 主持人不佔名額
func (r *participantRepository) CountConnectedGuests(ctx context.Context, roomID uuid.UUID) (int64, error) {
	var count int64
	err := r.conn(ctx).Model(&models.Participant{}).
		Where("room_id = ? AND status = ? AND role <> ?", roomID, models.ParticipantStatusConnected, models.RoleHost).
		Count(&count).Error
	return count, translate(err)
}

func (r *participantRepository) Update(ctx context.Context, p *models.Participant, from ...models.ParticipantStatus) (bool, error) {
	return r.saveIf(ctx, p, p.ID, statusStrings(from))
}

func (r *participantRepository) ListDisconnectedBefore(ctx context.Context, cutoff time.Time) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.conn(ctx).
		Where("status = ? AND disconnected_at < ?", models.ParticipantStatusDisconnected, cutoff).
		Find(&participants).Error
	return participants, translate(err)
}

func (r *participantRepository) TimeoutDisconnected(ctx context.Context, p *models.Participant, cutoff time.Time) (bool, error) {
	res := r.conn(ctx).Model(p).
		Where("id = ? AND status = ? AND disconnected_at < ?", p.ID, models.ParticipantStatusDisconnected, cutoff).
		Select("*").Omit("id", "created_at").
		Updates(p)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}
