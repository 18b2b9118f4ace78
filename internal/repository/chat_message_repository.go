package repository

import (
	"context"

	"github.com/google/uuid"

	"interview_room/internal/models"
	"interview_room/internal/storage"
)

type ChatMessageRepository interface {
	Create(ctx context.Context, message *models.ChatMessage) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error)
	// NextSeq 呼叫端必須持有房間鎖
	NextSeq(ctx context.Context, roomID uuid.UUID) (int64, error)
	// ListVisible 排除已刪除的訊息與 viewer 看不到的私訊
	ListVisible(ctx context.Context, roomID, viewerID uuid.UUID) ([]models.ChatMessage, error)
	Update(ctx context.Context, message *models.ChatMessage) error
}

type chatMessageRepository struct {
	baseRepository
}

func NewChatMessageRepository(db *storage.PostgresDB) ChatMessageRepository {
	return &chatMessageRepository{baseRepository{db: db}}
}

func (r *chatMessageRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	return r.create(ctx, message)
}

func (r *chatMessageRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	var message models.ChatMessage
	if err := r.first(ctx, &message, "id = ?", id); err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *chatMessageRepository) NextSeq(ctx context.Context, roomID uuid.UUID) (int64, error) {
	var last int64
	err := r.conn(ctx).Model(&models.ChatMessage{}).
		Where("room_id = ?", roomID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, translate(err)
	}
	return last + 1, nil
}

func (r *chatMessageRepository) ListVisible(ctx context.Context, roomID, viewerID uuid.UUID) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.conn(ctx).
		Where("room_id = ? AND deleted_at IS NULL", roomID).
		Where("(recipient_id IS NULL OR author_id = ? OR recipient_id = ?)", viewerID, viewerID).
		Order("seq ASC").
		Find(&messages).Error
	return messages, translate(err)
}

func (r *chatMessageRepository) Update(ctx context.Context, message *models.ChatMessage) error {
	return translate(r.conn(ctx).Save(message).Error)
}
