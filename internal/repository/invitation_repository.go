package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"interview_room/internal/models"
	"interview_room/internal/storage"
)

type InvitationRepository interface {
	Create(ctx context.Context, inv *models.Invitation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	// FindByCode 以 join code 或 token 查詢
	FindByCode(ctx context.Context, codeOrToken string) (*models.Invitation, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Invitation, error)
	// Update 不會覆蓋 join_attempts 與 needs_review
	Update(ctx context.Context, inv *models.Invitation, from ...models.InvitationStatus) (bool, error)
	// Reissue 重新發行時整筆寫回，包含重設的嘗試次數
	Reissue(ctx context.Context, inv *models.Invitation, from ...models.InvitationStatus) (bool, error)
	// IncrementAttempts 原子地加一並回傳更新後的邀請
	IncrementAttempts(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	// FlagReview 只有第一次標記會回傳 true
	FlagReview(ctx context.Context, id uuid.UUID) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	CancelPending(ctx context.Context, roomID uuid.UUID, at time.Time) (int64, error)
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type invitationRepository struct {
	baseRepository
}

func NewInvitationRepository(db *storage.PostgresDB) InvitationRepository {
	return &invitationRepository{baseRepository{db: db}}
}

func (r *invitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	return r.create(ctx, inv)
}

func (r *invitationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	var inv models.Invitation
	if err := r.first(ctx, &inv, "id = ?", id); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invitationRepository) FindByCode(ctx context.Context, codeOrToken string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := r.first(ctx, &inv, "join_code = ? OR token = ?", codeOrToken, codeOrToken); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invitationRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Invitation, error) {
	var invitations []models.Invitation
	err := r.conn(ctx).Where("room_id = ?", roomID).Order("issued_at ASC").Find(&invitations).Error
	return invitations, translate(err)
}

func (r *invitationRepository) Update(ctx context.Context, inv *models.Invitation, from ...models.InvitationStatus) (bool, error) {
	return r.saveIf(ctx, inv, inv.ID, statusStrings(from), "join_attempts", "needs_review")
}

func (r *invitationRepository) Reissue(ctx context.Context, inv *models.Invitation, from ...models.InvitationStatus) (bool, error) {
	return r.saveIf(ctx, inv, inv.ID, statusStrings(from))
}

func (r *invitationRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	inv := models.Invitation{ID: id}
	res := r.conn(ctx).Model(&inv).Clauses(clause.Returning{}).
		UpdateColumn("join_attempts", gorm.Expr("join_attempts + 1"))
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (r *invitationRepository) FlagReview(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.conn(ctx).Model(&models.Invitation{}).
		Where("id = ? AND needs_review = ?", id, false).
		UpdateColumn("needs_review", true)
	return res.RowsAffected == 1, translate(res.Error)
}

func (r *invitationRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.conn(ctx).Model(&models.Invitation{}).Where("id = ?", id).UpdateColumn("sent_at", at)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *invitationRepository) CancelPending(ctx context.Context, roomID uuid.UUID, at time.Time) (int64, error) {
	res := r.conn(ctx).Model(&models.Invitation{}).
		Where("room_id = ? AND status = ?", roomID, models.InvitationStatusPending).
		Updates(map[string]interface{}{
			"status":       models.InvitationStatusCancelled,
			"responded_at": at,
		})
	return res.RowsAffected, translate(res.Error)
}

// ExpirePending 只翻轉仍為 pending 的列，與 accept 競爭時由狀態條件決定勝負
func (r *invitationRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res := r.conn(ctx).Model(&models.Invitation{}).
		Where("status = ? AND expires_at < ?", models.InvitationStatusPending, now).
		UpdateColumn("status", models.InvitationStatusExpired)
	return res.RowsAffected, translate(res.Error)
}
