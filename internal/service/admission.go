package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"interview_room/internal/models"
	"interview_room/internal/repository"
)

// AdmissionService 決定加入者直接進房或進入等候室；名額判斷與寫入都在同一個房間交易內完成
type AdmissionService struct {
	*core
	invitations *InvitationService
}

type JoinInput struct {
	DisplayName string
	Password    string
	UserID      string
}

// placementAttempts 跨行程競爭時（唯一索引或 CAS 失敗）重新判斷的次數
const placementAttempts = 3

// JoinWithInvitation 以 join code 或 token 加入
func (s *AdmissionService) JoinWithInvitation(ctx context.Context, codeOrToken string, in JoinInput) (*models.Participant, error) {
	inv, err := s.invitations.find(ctx, codeOrToken)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, inv, in)
}

// Accept 接受邀請並交給參與者配置
func (s *AdmissionService) Accept(ctx context.Context, invitationID uuid.UUID, in JoinInput) (*models.Participant, error) {
	inv, err := s.invitations.load(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, inv, in)
}

func (s *AdmissionService) join(ctx context.Context, inv *models.Invitation, in JoinInput) (*models.Participant, error) {
	unlock := s.locks.Lock(inv.RoomID)
	defer unlock()

	inv, err := s.invitations.joinable(ctx, inv)
	if err != nil {
		s.metrics.Admission("rejected")
		return nil, err
	}
	if inv, err = s.invitations.RecordAttempt(ctx, inv.ID); err != nil {
		return nil, err
	}

	room, err := s.loadRoom(ctx, inv.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.Status.Open() {
		return nil, fmt.Errorf("room %s is %s: %w", room.ID, room.Status, ErrInvalidTransition)
	}
	if room.HasPassword() {
		if bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(in.Password)) != nil {
			s.metrics.Admission("bad_password")
			return nil, ErrUnauthorized
		}
	}

	placed, err := s.inRoom(ctx, room.ID, func(tx *repository.Repositories, locked *models.Room) (placement, error) {
		return s.placeInvited(ctx, tx, locked, inv, in)
	})
	if err != nil {
		s.metrics.Admission(admissionOutcome(err))
		return nil, err
	}
	s.announce(ctx, room, placed)
	return placed.participant, nil
}

// errPlacementRace 交易內的 CAS 失敗，回滾後重新判斷
var errPlacementRace = errors.New("participant placement raced")

// placement 是交易內的結果，事件與日誌在提交後才送出
type placement struct {
	participant *models.Participant
	// outcome 為空表示沿用既有列
	outcome string
}

const (
	outcomePlaced      = "placed"
	outcomeReconnected = "reconnected"
)

// inRoom 在鎖住房間列的交易中執行 place；唯一索引或 CAS 失敗時整筆回滾再試
func (s *AdmissionService) inRoom(ctx context.Context, roomID uuid.UUID, place func(tx *repository.Repositories, room *models.Room) (placement, error)) (placement, error) {
	for attempt := 0; attempt < placementAttempts; attempt++ {
		var placed placement
		err := s.repos.Tx.InRoom(ctx, roomID, func(tx *repository.Repositories, room *models.Room) error {
			if !room.Status.Open() {
				return fmt.Errorf("room %s is %s: %w", room.ID, room.Status, ErrInvalidTransition)
			}
			var err error
			placed, err = place(tx, room)
			return err
		})
		if errors.Is(err, errPlacementRace) || errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			return placement{}, notFound(err, "room")
		}
		return placed, nil
	}
	return placement{}, fmt.Errorf("participant placement kept racing: %w", ErrInvalidTransition)
}

func (s *AdmissionService) announce(ctx context.Context, room *models.Room, placed placement) {
	switch placed.outcome {
	case outcomePlaced:
		s.admitted(ctx, room, placed.participant)
	case outcomeReconnected:
		s.reconnected(ctx, room, placed.participant)
	}
}

// placeInvited 找出或建立 (room, invitation) 的參與者列再轉移狀態
func (s *AdmissionService) placeInvited(ctx context.Context, tx *repository.Repositories, room *models.Room, inv *models.Invitation, in JoinInput) (placement, error) {
	rows, err := tx.Participant.FindByInvitation(ctx, room.ID, inv.ID)
	if err != nil {
		return placement{}, err
	}

	var current *models.Participant
	for i := range rows {
		row := &rows[i]
		if row.Status == models.ParticipantStatusKicked || row.LeaveReason == models.LeaveReasonDenied {
			return placement{}, fmt.Errorf("participant %s was %s: %w", row.ID, row.Status, ErrAlreadyResolved)
		}
		if !row.Status.Terminal() {
			current = row
		}
	}

	if current != nil {
		switch current.Status {
		case models.ParticipantStatusConnected, models.ParticipantStatusWaiting:
			return placement{participant: current}, nil
		case models.ParticipantStatusDisconnected:
			if s.withinGrace(current) {
				return s.reconnect(ctx, tx, room, current)
			}
			if _, err := s.resolveParticipantIn(ctx, tx, current, models.ParticipantStatusLeft, models.LeaveReasonTimeout); err != nil {
				return placement{}, err
			}
		}
	}

	// 已接受的邀請過了 expires_at 只能沿用既有列，不會再開新的一列
	if inv.Status == models.InvitationStatusAccepted && inv.ExpiredAt(s.now()) {
		return placement{}, ErrExpired
	}

	role := inv.Role
	direct := !room.Settings.RequiresApproval() || role.Moderator()
	if direct {
		if err := s.checkCapacity(ctx, tx, room, role); err != nil {
			return placement{}, err
		}
	}

	// 接受邀請與建立參與者在同一個交易內，任何一步失敗都不留下部分狀態
	inv, err = s.invitations.accept(ctx, tx, inv, in.DisplayName)
	if err != nil {
		return placement{}, err
	}

	now := s.now()
	invitationID := inv.ID
	p := &models.Participant{
		ID:           uuid.New(),
		RoomID:       room.ID,
		InvitationID: &invitationID,
		UserID:       strings.TrimSpace(in.UserID),
		DisplayName:  inv.DisplayName,
		Role:         role,
		Status:       models.ParticipantStatusWaiting,
		JoinedAt:     now,
		AudioEnabled: true,
		VideoEnabled: true,
	}
	if p.DisplayName == "" {
		p.DisplayName = inv.Email
	}
	if direct {
		p.Connect(now)
		s.allocatePeer(ctx, p)
	}

	if err := tx.Participant.Create(ctx, p); err != nil {
		return placement{}, err
	}
	return placement{participant: p, outcome: outcomePlaced}, nil
}

func (s *AdmissionService) reconnect(ctx context.Context, tx *repository.Repositories, room *models.Room, p *models.Participant) (placement, error) {
	if err := s.checkCapacity(ctx, tx, room, p.Role); err != nil {
		return placement{}, err
	}
	next := *p
	next.Connect(s.now())
	s.allocatePeer(ctx, &next)
	ok, err := tx.Participant.Update(ctx, &next, models.ParticipantStatusDisconnected)
	if err != nil {
		return placement{}, err
	}
	if !ok {
		return placement{}, errPlacementRace
	}
	return placement{participant: &next, outcome: outcomeReconnected}, nil
}

func (s *AdmissionService) reconnected(ctx context.Context, room *models.Room, p *models.Participant) {
	s.metrics.Transition("participant", string(p.Status))
	s.metrics.Admission("reconnected")
	s.log.Info("participant reconnected", zap.String("participant_id", p.ID.String()), zap.String("room_id", room.ID.String()))
	s.publish(ctx, Event{Type: EventParticipantJoined, RoomID: room.ID, Data: p})
}

func (s *AdmissionService) withinGrace(p *models.Participant) bool {
	if p.DisconnectedAt == nil {
		return true
	}
	return s.now().Sub(*p.DisconnectedAt) <= s.cfg.Sessions.DisconnectGrace
}

// checkCapacity 必須在房間交易內呼叫，計數與之後的寫入才不會被其他行程插隊；主持人不佔名額
func (s *AdmissionService) checkCapacity(ctx context.Context, tx *repository.Repositories, room *models.Room, role models.Role) error {
	if role == models.RoleHost {
		return nil
	}
	connected, err := tx.Participant.CountConnectedGuests(ctx, room.ID)
	if err != nil {
		return err
	}
	if connected >= int64(room.MaxGuests) {
		return fmt.Errorf("room %s has %d/%d guests: %w", room.ID, connected, room.MaxGuests, ErrRoomFull)
	}
	return nil
}

func (s *AdmissionService) admitted(ctx context.Context, room *models.Room, p *models.Participant) {
	s.metrics.Transition("participant", string(p.Status))
	s.metrics.Admission(string(p.Status))
	s.log.Info("participant placed",
		zap.String("participant_id", p.ID.String()),
		zap.String("room_id", room.ID.String()),
		zap.String("status", string(p.Status)))

	if p.Status == models.ParticipantStatusWaiting {
		s.publish(ctx, Event{Type: EventAdmissionRequested, RoomID: room.ID, Audience: AudienceModerators, Data: p})
		return
	}
	s.publish(ctx, Event{Type: EventParticipantJoined, RoomID: room.ID, Data: p})
}

// JoinAsHost 主持人直接加入，不進等候室也不佔名額
func (s *AdmissionService) JoinAsHost(ctx context.Context, roomID uuid.UUID, actor Actor, in JoinInput) (*models.Participant, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !actor.IsHost(room) {
		return nil, ErrUnauthorized
	}

	placed, err := s.inRoom(ctx, room.ID, func(tx *repository.Repositories, locked *models.Room) (placement, error) {
		return s.placeHost(ctx, tx, locked, actor, in)
	})
	if err != nil {
		return nil, err
	}
	s.announce(ctx, room, placed)
	return placed.participant, nil
}

// placeHost 與來賓相同，斷線超過寬限時間的列先結束再開新的一列
func (s *AdmissionService) placeHost(ctx context.Context, tx *repository.Repositories, room *models.Room, actor Actor, in JoinInput) (placement, error) {
	existing, err := tx.Participant.FindActiveByUser(ctx, room.ID, actor.UserID)
	switch {
	case err == nil:
		if existing.Status != models.ParticipantStatusDisconnected {
			return placement{participant: existing}, nil
		}
		if s.withinGrace(existing) {
			return s.reconnect(ctx, tx, room, existing)
		}
		if _, err := s.resolveParticipantIn(ctx, tx, existing, models.ParticipantStatusLeft, models.LeaveReasonTimeout); err != nil {
			return placement{}, err
		}
	case !errors.Is(err, repository.ErrNotFound):
		return placement{}, err
	}

	now := s.now()
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name = actor.UserID
	}
	p := &models.Participant{
		ID:           uuid.New(),
		RoomID:       room.ID,
		UserID:       actor.UserID,
		DisplayName:  name,
		Role:         models.RoleHost,
		JoinedAt:     now,
		AudioEnabled: true,
		VideoEnabled: true,
	}
	p.Connect(now)
	s.allocatePeer(ctx, p)
	if err := tx.Participant.Create(ctx, p); err != nil {
		return placement{}, err
	}
	return placement{participant: p, outcome: outcomePlaced}, nil
}

// HostApprove waiting -> connected，名額在房間交易內重新檢查
func (s *AdmissionService) HostApprove(ctx context.Context, actor Actor, participantID uuid.UUID) (*models.Participant, error) {
	p, room, unlock, err := s.lockWaiting(ctx, actor, participantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var next models.Participant
	err = s.repos.Tx.InRoom(ctx, room.ID, func(tx *repository.Repositories, locked *models.Room) error {
		if !locked.Status.Open() {
			return fmt.Errorf("room %s is %s: %w", locked.ID, locked.Status, ErrInvalidTransition)
		}
		if err := s.checkCapacity(ctx, tx, locked, p.Role); err != nil {
			return err
		}
		next = *p
		next.Connect(s.now())
		s.allocatePeer(ctx, &next)
		ok, err := tx.Participant.Update(ctx, &next, models.ParticipantStatusWaiting)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("participant %s changed concurrently: %w", p.ID, ErrInvalidTransition)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRoomFull) {
			s.metrics.Admission(admissionOutcome(err))
		}
		return nil, notFound(err, "room")
	}
	s.admitted(ctx, room, &next)
	return &next, nil
}

// HostDeny waiting -> left，原因為 denied；之後同一邀請無法再加入
func (s *AdmissionService) HostDeny(ctx context.Context, actor Actor, participantID uuid.UUID) (*models.Participant, error) {
	p, room, unlock, err := s.lockWaiting(ctx, actor, participantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	next := *p
	next.Resolve(models.ParticipantStatusLeft, models.LeaveReasonDenied, s.now())
	ok, err := s.repos.Participant.Update(ctx, &next, models.ParticipantStatusWaiting)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("participant %s changed concurrently: %w", p.ID, ErrInvalidTransition)
	}
	s.metrics.Transition("participant", string(next.Status))
	s.metrics.Admission("denied")
	s.log.Info("participant denied", zap.String("participant_id", p.ID.String()), zap.String("room_id", room.ID.String()))
	s.publish(ctx, Event{Type: EventParticipantDenied, RoomID: room.ID, Audience: AudienceTargets, Targets: []uuid.UUID{p.ID}, Data: &next})
	return &next, nil
}

// lockWaiting 取得房間鎖後重新讀取參與者，確認仍在等候中
func (s *AdmissionService) lockWaiting(ctx context.Context, actor Actor, participantID uuid.UUID) (*models.Participant, *models.Room, func(), error) {
	p, err := s.loadParticipant(ctx, participantID)
	if err != nil {
		return nil, nil, nil, err
	}
	unlock := s.locks.Lock(p.RoomID)

	fail := func(err error) (*models.Participant, *models.Room, func(), error) {
		unlock()
		return nil, nil, nil, err
	}
	room, err := s.loadRoom(ctx, p.RoomID)
	if err != nil {
		return fail(err)
	}
	if err := s.authorizeModerator(ctx, actor, room); err != nil {
		return fail(err)
	}
	if p, err = s.loadParticipant(ctx, participantID); err != nil {
		return fail(err)
	}
	if p.Status != models.ParticipantStatusWaiting {
		return fail(fmt.Errorf("participant %s is %s: %w", p.ID, p.Status, ErrInvalidTransition))
	}
	return p, room, unlock, nil
}

// ListWaiting 主持人的等候佇列
func (s *AdmissionService) ListWaiting(ctx context.Context, actor Actor, roomID uuid.UUID) ([]models.Participant, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeModerator(ctx, actor, room); err != nil {
		return nil, err
	}
	return s.repos.Participant.ListByRoom(ctx, roomID, models.ParticipantStatusWaiting)
}

func admissionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrExpired):
		return "expired"
	default:
		return "error"
	}
}
