package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interview_room/internal/models"
	"interview_room/internal/repository"
)

type InvitationService struct {
	*core
}

type CreateInvitationInput struct {
	Email         string
	DisplayName   string
	Role          models.Role
	CustomMessage string
	TTL           time.Duration
}

func (s *InvitationService) ttl(requested time.Duration) (time.Duration, error) {
	switch {
	case requested < 0:
		return 0, invalidArgument("ttl must not be negative")
	case requested == 0:
		return s.cfg.Invitations.DefaultTTL, nil
	case requested > s.cfg.Invitations.MaxTTL:
		return s.cfg.Invitations.MaxTTL, nil
	}
	return requested, nil
}

// Create 由主持人或共同主持人發出邀請，寄信在背景進行
func (s *InvitationService) Create(ctx context.Context, actor Actor, roomID uuid.UUID, in CreateInvitationInput) (*models.Invitation, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeModerator(ctx, actor, room); err != nil {
		return nil, err
	}
	if room.Status.Terminal() {
		return nil, fmt.Errorf("room %s is %s: %w", room.ID, room.Status, ErrInvalidTransition)
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return nil, invalidArgument("invalid email %q", in.Email)
	}
	role := in.Role
	if role == "" {
		role = models.RoleGuest
	}
	if !role.Valid() {
		return nil, invalidArgument("invalid role %q", in.Role)
	}
	ttl, err := s.ttl(in.TTL)
	if err != nil {
		return nil, err
	}

	now := s.now()
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = addr.Name
	}
	inv := &models.Invitation{
		RoomID:          room.ID,
		Email:           addr.Address,
		DisplayName:     displayName,
		CustomMessage:   strings.TrimSpace(in.CustomMessage),
		Role:            role,
		Status:          models.InvitationStatusPending,
		IssuedAt:        now,
		ExpiresAt:       now.Add(ttl),
		MaxJoinAttempts: s.cfg.Invitations.MaxJoinAttempts,
	}
	err = s.ids.Retry(func(int) (bool, error) {
		if err := s.assignCodes(inv); err != nil {
			return false, err
		}
		inv.ID = uuid.New()
		err := s.repos.Invitation.Create(ctx, inv)
		return errors.Is(err, repository.ErrDuplicate), err
	})
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	s.metrics.Transition("invitation", string(inv.Status))
	s.log.Info("invitation created",
		zap.String("invitation_id", inv.ID.String()),
		zap.String("room_id", room.ID.String()),
		zap.String("role", string(inv.Role)))
	s.publish(ctx, Event{Type: EventInvitationCreated, RoomID: room.ID, Audience: AudienceModerators, Data: inv})
	s.send(room, inv)
	return inv, nil
}

func (s *InvitationService) assignCodes(inv *models.Invitation) error {
	code, err := s.ids.JoinCode()
	if err != nil {
		return err
	}
	token, err := s.ids.InvitationToken()
	if err != nil {
		return err
	}
	inv.JoinCode = code
	inv.Token = token
	return nil
}

// send 寄信失敗只留下未寄送標記，交給外部排程重送
func (s *InvitationService) send(room *models.Room, inv *models.Invitation) {
	vars := map[string]string{
		"room_title":     room.Title,
		"room_code":      room.RoomCode,
		"display_name":   inv.DisplayName,
		"email":          inv.Email,
		"role":           string(inv.Role),
		"join_code":      inv.JoinCode,
		"token":          inv.Token,
		"custom_message": inv.CustomMessage,
		"expires_at":     inv.ExpiresAt.UTC().Format(time.RFC3339),
	}
	id := inv.ID
	template := s.cfg.Invitations.EmailTemplate
	s.dispatch("mail", func(ctx context.Context) error {
		if err := s.mailer.SendInvitation(ctx, id, template, vars); err != nil {
			return fmt.Errorf("send invitation %s: %w", id, err)
		}
		return s.repos.Invitation.MarkSent(ctx, id, s.now())
	})
}

// Resolve 查詢邀請；過期的 pending 邀請在這裡被標成 expired
func (s *InvitationService) Resolve(ctx context.Context, codeOrToken string) (*models.Invitation, error) {
	inv, err := s.find(ctx, codeOrToken)
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		switch inv.Status {
		case models.InvitationStatusPending:
			if !inv.ExpiredAt(s.now()) {
				return inv, nil
			}
			expired, err := s.expire(ctx, inv)
			if err != nil {
				return nil, err
			}
			if expired {
				return nil, ErrExpired
			}
			// 同時被接受或取消，重新判斷
			if inv, err = s.load(ctx, inv.ID); err != nil {
				return nil, err
			}
		case models.InvitationStatusExpired:
			return nil, ErrExpired
		default:
			return nil, fmt.Errorf("invitation is %s: %w", inv.Status, ErrAlreadyResolved)
		}
	}
	return nil, ErrAlreadyResolved
}

// joinable 接受 pending 與 accepted 的邀請。expires_at 只限制 pending，
// 已接受的邀請交給參與者配置決定能否沿用既有列
func (s *InvitationService) joinable(ctx context.Context, inv *models.Invitation) (*models.Invitation, error) {
	if inv.Status == models.InvitationStatusAccepted {
		return inv, nil
	}
	if _, err := s.Resolve(ctx, inv.JoinCode); err != nil {
		return nil, err
	}
	return s.load(ctx, inv.ID)
}

// RecordAttempt 累加嘗試次數；超過上限只標記給主持人審查，不會讓邀請失效
func (s *InvitationService) RecordAttempt(ctx context.Context, invitationID uuid.UUID) (*models.Invitation, error) {
	inv, err := s.repos.Invitation.IncrementAttempts(ctx, invitationID)
	if err != nil {
		return nil, notFound(err, "invitation")
	}
	if inv.JoinAttempts <= inv.MaxJoinAttempts {
		return inv, nil
	}

	flagged, err := s.repos.Invitation.FlagReview(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.NeedsReview = true
	if flagged {
		s.log.Warn("invitation exceeded join attempts",
			zap.String("invitation_id", inv.ID.String()),
			zap.Int("attempts", inv.JoinAttempts),
			zap.Int("max", inv.MaxJoinAttempts))
		s.publish(ctx, Event{Type: EventInvitationReview, RoomID: inv.RoomID, Audience: AudienceModerators, Data: inv})
	}
	return inv, nil
}

// accept pending -> accepted；已接受時直接回傳。寫入走呼叫端的交易
func (s *InvitationService) accept(ctx context.Context, tx *repository.Repositories, inv *models.Invitation, displayName string) (*models.Invitation, error) {
	if inv.Status == models.InvitationStatusAccepted {
		return inv, nil
	}
	if inv.Status != models.InvitationStatusPending {
		return nil, fmt.Errorf("invitation is %s: %w", inv.Status, ErrAlreadyResolved)
	}
	if inv.ExpiredAt(s.now()) {
		if _, err := s.expire(ctx, inv); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	next := *inv
	now := s.now()
	next.Status = models.InvitationStatusAccepted
	next.RespondedAt = &now
	if name := strings.TrimSpace(displayName); name != "" {
		next.DisplayName = name
	}
	ok, err := tx.Invitation.Update(ctx, &next, models.InvitationStatusPending)
	if err != nil {
		return nil, err
	}
	if !ok {
		fresh, err := tx.Invitation.FindByID(ctx, inv.ID)
		if err != nil {
			return nil, notFound(err, "invitation")
		}
		if fresh.Status == models.InvitationStatusAccepted {
			return fresh, nil
		}
		if fresh.Status == models.InvitationStatusExpired {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("invitation is %s: %w", fresh.Status, ErrAlreadyResolved)
	}
	s.metrics.Transition("invitation", string(next.Status))
	return &next, nil
}

// Decline 來賓拒絕邀請
func (s *InvitationService) Decline(ctx context.Context, codeOrToken string) (*models.Invitation, error) {
	inv, err := s.Resolve(ctx, codeOrToken)
	if err != nil {
		return nil, err
	}
	return s.terminate(ctx, inv, models.InvitationStatusDeclined)
}

// Cancel 主持人撤回 pending 的邀請
func (s *InvitationService) Cancel(ctx context.Context, actor Actor, invitationID uuid.UUID) (*models.Invitation, error) {
	inv, err := s.load(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	room, err := s.loadRoom(ctx, inv.RoomID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeModerator(ctx, actor, room); err != nil {
		return nil, err
	}
	if inv.Status != models.InvitationStatusPending {
		return nil, fmt.Errorf("invitation is %s: %w", inv.Status, ErrAlreadyResolved)
	}
	return s.terminate(ctx, inv, models.InvitationStatusCancelled)
}

func (s *InvitationService) terminate(ctx context.Context, inv *models.Invitation, status models.InvitationStatus) (*models.Invitation, error) {
	next := *inv
	now := s.now()
	next.Status = status
	next.RespondedAt = &now
	ok, err := s.repos.Invitation.Update(ctx, &next, models.InvitationStatusPending)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}
	s.metrics.Transition("invitation", string(status))
	s.log.Info("invitation resolved", zap.String("invitation_id", inv.ID.String()), zap.String("status", string(status)))
	return &next, nil
}

// Regenerate 重新產生代碼與 token，嘗試次數與審查標記一併重設
func (s *InvitationService) Regenerate(ctx context.Context, actor Actor, invitationID uuid.UUID, ttl time.Duration) (*models.Invitation, error) {
	inv, err := s.load(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	room, err := s.loadRoom(ctx, inv.RoomID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeModerator(ctx, actor, room); err != nil {
		return nil, err
	}
	if room.Status.Terminal() {
		return nil, fmt.Errorf("room %s is %s: %w", room.ID, room.Status, ErrInvalidTransition)
	}
	if inv.Status != models.InvitationStatusPending && inv.Status != models.InvitationStatusExpired {
		return nil, fmt.Errorf("invitation is %s: %w", inv.Status, ErrAlreadyResolved)
	}
	ttl, err = s.ttl(ttl)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next := *inv
	next.Status = models.InvitationStatusPending
	next.IssuedAt = now
	next.ExpiresAt = now.Add(ttl)
	next.RespondedAt = nil
	next.SentAt = nil
	next.JoinAttempts = 0
	next.NeedsReview = false
	next.Regenerations++

	var lost bool
	err = s.ids.Retry(func(int) (bool, error) {
		if err := s.assignCodes(&next); err != nil {
			return false, err
		}
		ok, err := s.repos.Invitation.Reissue(ctx, &next, models.InvitationStatusPending, models.InvitationStatusExpired)
		lost = err == nil && !ok
		return errors.Is(err, repository.ErrDuplicate), err
	})
	if err != nil {
		return nil, fmt.Errorf("regenerate invitation: %w", err)
	}
	if lost {
		return nil, ErrAlreadyResolved
	}

	s.log.Info("invitation regenerated", zap.String("invitation_id", inv.ID.String()), zap.Int("regenerations", next.Regenerations))
	s.send(room, &next)
	return &next, nil
}

// MarkSent 外部重送排程回報寄送成功
func (s *InvitationService) MarkSent(ctx context.Context, invitationID uuid.UUID) error {
	return notFound(s.repos.Invitation.MarkSent(ctx, invitationID, s.now()), "invitation")
}

func (s *InvitationService) ListByRoom(ctx context.Context, actor Actor, roomID uuid.UUID) ([]models.Invitation, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeModerator(ctx, actor, room); err != nil {
		return nil, err
	}
	return s.repos.Invitation.ListByRoom(ctx, roomID)
}

// SweepExpired 冪等的背景清理，只翻轉仍為 pending 的列
func (s *InvitationService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repos.Invitation.ExpirePending(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired invitations: %w", err)
	}
	s.metrics.Swept("invitation", n)
	if n > 0 {
		s.log.Info("expired invitations swept", zap.Int64("count", n))
	}
	return n, nil
}

func (s *InvitationService) find(ctx context.Context, codeOrToken string) (*models.Invitation, error) {
	code := strings.TrimSpace(codeOrToken)
	if code == "" {
		return nil, fmt.Errorf("invitation: %w", ErrNotFound)
	}
	inv, err := s.repos.Invitation.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) && len(code) == joinCodeLength {
		// join code 不分大小寫
		inv, err = s.repos.Invitation.FindByCode(ctx, strings.ToUpper(code))
	}
	if err != nil {
		return nil, notFound(err, "invitation")
	}
	return inv, nil
}

func (s *InvitationService) load(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	inv, err := s.repos.Invitation.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "invitation")
	}
	return inv, nil
}

func (s *InvitationService) expire(ctx context.Context, inv *models.Invitation) (bool, error) {
	next := *inv
	next.Status = models.InvitationStatusExpired
	ok, err := s.repos.Invitation.Update(ctx, &next, models.InvitationStatusPending)
	if err != nil {
		return false, err
	}
	if ok {
		s.metrics.Transition("invitation", string(next.Status))
		*inv = next
	}
	return ok, nil
}
