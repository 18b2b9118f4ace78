package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interview_room/internal/models"
)

// ParticipantService 參與者的連線狀態機與主持人的審核操作
type ParticipantService struct {
	*core
	recordings *RecordingService
}

func (s *ParticipantService) Get(ctx context.Context, participantID uuid.UUID) (*models.Participant, error) {
	return s.loadParticipant(ctx, participantID)
}

func (s *ParticipantService) ListByRoom(ctx context.Context, roomID uuid.UUID, statuses ...models.ParticipantStatus) ([]models.Participant, error) {
	if _, err := s.loadRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.repos.Participant.ListByRoom(ctx, roomID, statuses...)
}

// lockParticipant 取得房間鎖後重新讀取參與者與房間
func (s *ParticipantService) lockParticipant(ctx context.Context, participantID uuid.UUID) (*models.Participant, *models.Room, func(), error) {
	p, err := s.loadParticipant(ctx, participantID)
	if err != nil {
		return nil, nil, nil, err
	}
	unlock := s.locks.Lock(p.RoomID)
	if p, err = s.loadParticipant(ctx, participantID); err != nil {
		unlock()
		return nil, nil, nil, err
	}
	room, err := s.loadRoom(ctx, p.RoomID)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	return p, room, unlock, nil
}

// Disconnect 傳輸層回報斷線，connected -> disconnected；已斷線時不做事
func (s *ParticipantService) Disconnect(ctx context.Context, participantID uuid.UUID) (*models.Participant, error) {
	p, room, unlock, err := s.lockParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	switch p.Status {
	case models.ParticipantStatusDisconnected:
		return p, nil
	case models.ParticipantStatusConnected:
	default:
		return nil, fmt.Errorf("participant %s is %s: %w", p.ID, p.Status, ErrInvalidTransition)
	}

	now := s.now()
	next := *p
	next.CloseInterval(now)
	next.Status = models.ParticipantStatusDisconnected
	next.DisconnectedAt = &now
	ok, err := s.repos.Participant.Update(ctx, &next, models.ParticipantStatusConnected)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("participant %s changed concurrently: %w", p.ID, ErrInvalidTransition)
	}

	s.metrics.Transition("participant", string(next.Status))
	s.log.Info("participant disconnected",
		zap.String("participant_id", p.ID.String()),
		zap.String("room_id", room.ID.String()),
		zap.Duration("total", next.Duration()))
	s.publish(ctx, Event{Type: EventParticipantDisconnect, RoomID: room.ID, Data: &next})
	return &next, nil
}

// Leave 參與者自行離開
func (s *ParticipantService) Leave(ctx context.Context, actor Actor, participantID uuid.UUID) (*models.Participant, error) {
	p, room, unlock, err := s.lockParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !s.isSelf(actor, p) {
		return nil, ErrUnauthorized
	}
	if p.Status.Terminal() {
		return nil, fmt.Errorf("participant %s is %s: %w", p.ID, p.Status, ErrInvalidTransition)
	}
	ok, err := s.resolveParticipant(ctx, p, models.ParticipantStatusLeft, models.LeaveReasonVoluntary)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("participant %s is %s: %w", p.ID, p.Status, ErrInvalidTransition)
	}

	s.log.Info("participant left", zap.String("participant_id", p.ID.String()), zap.String("room_id", room.ID.String()))
	s.publish(ctx, Event{Type: EventParticipantLeft, RoomID: room.ID, Data: p})
	s.stopRecordingIfEmpty(ctx, room)
	return p, nil
}

// Kick 主持人或共同主持人踢出參與者，之後同一邀請不能再加入
func (s *ParticipantService) Kick(ctx context.Context, actor Actor, participantID uuid.UUID, reason string) (*models.Participant, error) {
	p, room, unlock, err := s.lockParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.authorizeModerator(ctx, actor, room); err != nil {
		return nil, err
	}
	if p.Role == models.RoleHost {
		return nil, ErrUnauthorized
	}
	if p.Status.Terminal() {
		return nil, fmt.Errorf("participant %s is %s: %w", p.ID, p.Status, ErrInvalidTransition)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "kicked"
	}
	ok, err := s.resolveParticipant(ctx, p, models.ParticipantStatusKicked, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("participant %s is %s: %w", p.ID, p.Status, ErrInvalidTransition)
	}

	s.log.Info("participant kicked",
		zap.String("participant_id", p.ID.String()),
		zap.String("room_id", room.ID.String()),
		zap.String("by", actor.UserID),
		zap.String("reason", reason))
	s.publish(ctx, Event{Type: EventParticipantKicked, RoomID: room.ID, Data: p})
	s.stopRecordingIfEmpty(ctx, room)
	return p, nil
}

// ToggleAV 參與者自己切換麥克風與鏡頭；房間結束後的控制訊息直接忽略
func (s *ParticipantService) ToggleAV(ctx context.Context, actor Actor, participantID uuid.UUID, audio, video *bool) (*models.Participant, error) {
	p, room, unlock, err := s.lockParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if room.Status.Terminal() {
		return p, nil
	}
	if !s.isSelf(actor, p) {
		return nil, ErrUnauthorized
	}
	if p.Status != models.ParticipantStatusConnected {
		return nil, fmt.Errorf("participant %s is %s: %w", p.ID, p.Status, ErrInvalidTransition)
	}

	next := *p
	if audio != nil {
		if *audio && next.MutedByHost {
			return nil, fmt.Errorf("participant %s is muted by host: %w", p.ID, ErrInvalidTransition)
		}
		next.AudioEnabled = *audio
	}
	if video != nil {
		if *video && next.CameraDisabledByHost {
			return nil, fmt.Errorf("participant %s camera is disabled by host: %w", p.ID, ErrInvalidTransition)
		}
		next.VideoEnabled = *video
	}
	return s.saveAttributes(ctx, room, p, &next)
}

// SetModeration 主持人靜音或關閉參與者鏡頭，設定後參與者無法自行開啟
func (s *ParticipantService) SetModeration(ctx context.Context, actor Actor, participantID uuid.UUID, muted, cameraDisabled *bool) (*models.Participant, error) {
	p, room, unlock, err := s.lockParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if room.Status.Terminal() {
		return p, nil
	}
	if err := s.authorizeModerator(ctx, actor, room); err != nil {
		return nil, err
	}
	if p.Role == models.RoleHost {
		return nil, ErrUnauthorized
	}
	if p.Status != models.ParticipantStatusConnected {
		return nil, fmt.Errorf("participant %s is %s: %w", p.ID, p.Status, ErrInvalidTransition)
	}

	next := *p
	if muted != nil {
		next.MutedByHost = *muted
		if *muted {
			next.AudioEnabled = false
		}
	}
	if cameraDisabled != nil {
		next.CameraDisabledByHost = *cameraDisabled
		if *cameraDisabled {
			next.VideoEnabled = false
		}
	}
	return s.saveAttributes(ctx, room, p, &next)
}

func (s *ParticipantService) saveAttributes(ctx context.Context, room *models.Room, p, next *models.Participant) (*models.Participant, error) {
	ok, err := s.repos.Participant.Update(ctx, next, models.ParticipantStatusConnected)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("participant %s changed concurrently: %w", p.ID, ErrInvalidTransition)
	}
	s.publish(ctx, Event{Type: EventParticipantUpdated, RoomID: room.ID, Data: next})
	return next, nil
}

// SweepDisconnected 把超過寬限時間仍未重連的參與者標為 left；重連先寫入的一方勝出
func (s *ParticipantService) SweepDisconnected(ctx context.Context) (int64, error) {
	now := s.now()
	cutoff := now.Add(-s.cfg.Sessions.DisconnectGrace)
	stale, err := s.repos.Participant.ListDisconnectedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep disconnected participants: %w", err)
	}

	var resolved int64
	rooms := make(map[uuid.UUID]struct{})
	for i := range stale {
		p := &stale[i]
		next := *p
		next.Resolve(models.ParticipantStatusLeft, models.LeaveReasonTimeout, now)
		// 列出之後又重連再斷線的列，disconnected_at 會晚於 cutoff，不會被舊快照覆蓋
		ok, err := s.repos.Participant.TimeoutDisconnected(ctx, &next, cutoff)
		if err != nil {
			return resolved, fmt.Errorf("sweep participant %s: %w", p.ID, err)
		}
		if !ok {
			s.log.Debug("sweep lost race", zap.String("participant_id", p.ID.String()))
			continue
		}
		resolved++
		rooms[p.RoomID] = struct{}{}
		s.metrics.Transition("participant", string(next.Status))
		s.publish(ctx, Event{Type: EventParticipantLeft, RoomID: p.RoomID, Data: &next})
	}

	s.metrics.Swept("participant", resolved)
	for roomID := range rooms {
		if room, err := s.loadRoom(ctx, roomID); err == nil {
			s.stopRecordingIfEmpty(ctx, room)
		}
	}
	if resolved > 0 {
		s.log.Info("disconnected participants swept", zap.Int64("count", resolved))
	}
	return resolved, nil
}

// stopRecordingIfEmpty 直播中最後一位參與者離開時停止錄影
func (s *ParticipantService) stopRecordingIfEmpty(ctx context.Context, room *models.Room) {
	if room.Status != models.RoomStatusLive {
		return
	}
	remaining, err := s.repos.Participant.ListByRoom(ctx, room.ID, models.ActiveParticipantStatuses...)
	if err != nil || len(remaining) > 0 {
		return
	}
	if _, err := s.recordings.Stop(ctx, room.ID); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Warn("stop recording after last participant left failed", zap.String("room_id", room.ID.String()), zap.Error(err))
	}
}

func (s *ParticipantService) isSelf(actor Actor, p *models.Participant) bool {
	if actor.ParticipantID != nil && *actor.ParticipantID == p.ID {
		return true
	}
	return actor.UserID != "" && actor.UserID == p.UserID
}
