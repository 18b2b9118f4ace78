package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"interview_room/internal/models"
	"interview_room/internal/repository"
)

// RoomService 管理房間本身的狀態機，是其他元件查詢的權威來源
type RoomService struct {
	*core
	recordings *RecordingService
}

type CreateRoomInput struct {
	Title          string
	Description    string
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	MaxGuests      int
	Password       string
	Settings       models.RoomSettingsPatch
}

func (s *RoomService) defaultSettings() models.RoomSettings {
	d := s.cfg.Rooms.Defaults
	return models.RoomSettings{
		RecordingEnabled:      d.RecordingEnabled,
		ChatEnabled:           d.ChatEnabled,
		WaitingRoomEnabled:    d.WaitingRoomEnabled,
		GuestApprovalRequired: d.GuestApprovalRequired,
	}
}

// Create 建立排定中的房間，房間代碼與串流金鑰撞號時重試
func (s *RoomService) Create(ctx context.Context, actor Actor, in CreateRoomInput) (*models.Room, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalidArgument("title is required")
	}
	if in.ScheduledStart != nil && in.ScheduledEnd != nil && !in.ScheduledEnd.After(*in.ScheduledStart) {
		return nil, invalidArgument("scheduled_end must be after scheduled_start")
	}
	maxGuests := in.MaxGuests
	if maxGuests == 0 {
		maxGuests = s.cfg.Rooms.Defaults.MaxGuests
	}
	if maxGuests < 1 {
		return nil, invalidArgument("max_guests must be at least 1")
	}

	room := &models.Room{
		HostID:         actor.UserID,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		ScheduledStart: in.ScheduledStart,
		ScheduledEnd:   in.ScheduledEnd,
		Status:         models.RoomStatusScheduled,
		MaxGuests:      maxGuests,
		Settings:       in.Settings.Apply(s.defaultSettings()),
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash room password: %w", err)
		}
		room.PasswordHash = string(hash)
	}

	err := s.ids.Retry(func(int) (bool, error) {
		code, err := s.ids.RoomCode()
		if err != nil {
			return false, err
		}
		key, err := s.ids.StreamKey()
		if err != nil {
			return false, err
		}
		room.ID = uuid.New()
		room.RoomCode = code
		room.StreamKey = key
		err = s.repos.Room.Create(ctx, room)
		return errors.Is(err, repository.ErrDuplicate), err
	})
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	s.log.Info("room created", zap.String("room_id", room.ID.String()), zap.String("host_id", room.HostID))
	return room, nil
}

func (s *RoomService) Get(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	return s.loadRoom(ctx, roomID)
}

func (s *RoomService) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	room, err := s.repos.Room.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, notFound(err, "room")
	}
	return room, nil
}

func (s *RoomService) ListByHost(ctx context.Context, actor Actor) ([]models.Room, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthorized
	}
	return s.repos.Room.ListByHost(ctx, actor.UserID)
}

// transition 以目前狀態為條件寫入；失敗時 room 保持原樣
func (s *RoomService) transition(ctx context.Context, room *models.Room, mutate func(*models.Room), from ...models.RoomStatus) error {
	if !statusAllowed(room.Status, from) {
		return fmt.Errorf("room %s is %s: %w", room.ID, room.Status, ErrInvalidTransition)
	}
	next := *room
	mutate(&next)
	ok, err := s.repos.Room.Update(ctx, &next, from...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("room %s changed concurrently: %w", room.ID, ErrInvalidTransition)
	}
	*room = next
	s.metrics.Transition("room", string(room.Status))
	s.log.Info("room transition", zap.String("room_id", room.ID.String()), zap.String("status", string(room.Status)))
	return nil
}

// Open 主持人開啟房間，scheduled -> waiting
func (s *RoomService) Open(ctx context.Context, roomID uuid.UUID, actor Actor) (*models.Room, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !actor.IsHost(room) {
		return nil, fmt.Errorf("open room: %w: %w", ErrInvalidTransition, ErrUnauthorized)
	}
	err = s.transition(ctx, room, func(r *models.Room) {
		r.Status = models.RoomStatusWaiting
	}, models.RoomStatusScheduled)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Event{Type: EventRoomOpened, RoomID: room.ID, Data: room})
	return room, nil
}

// GoLive waiting -> live，並依設定啟動錄影
func (s *RoomService) GoLive(ctx context.Context, roomID uuid.UUID, actor Actor) (*models.Room, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !actor.IsHost(room) {
		return nil, ErrUnauthorized
	}
	now := s.now()
	err = s.transition(ctx, room, func(r *models.Room) {
		r.Status = models.RoomStatusLive
		r.ActualStart = &now
	}, models.RoomStatusWaiting)
	if err != nil {
		return nil, err
	}

	endpoints, err := s.media.AllocateRoom(ctx, room.ID)
	s.metrics.Notification("media_room", err)
	if err != nil {
		s.log.Warn("allocate media session failed", zap.String("room_id", room.ID.String()), zap.Error(err))
	} else if endpoints != (models.MediaEndpoints{}) {
		room.Media = endpoints
		if _, err := s.repos.Room.Update(ctx, room, models.RoomStatusLive); err != nil {
			s.log.Warn("store media endpoints failed", zap.String("room_id", room.ID.String()), zap.Error(err))
		}
	}

	if room.Settings.RecordingEnabled {
		if _, err := s.recordings.Start(ctx, room.ID); err != nil && !errors.Is(err, ErrAlreadyRecording) {
			s.log.Warn("start recording on go live failed", zap.String("room_id", room.ID.String()), zap.Error(err))
		}
	}

	s.publish(ctx, Event{Type: EventRoomLive, RoomID: room.ID, Data: room})
	return room, nil
}

// End 可重複呼叫；結束所有未結束的參與者並停止錄影
func (s *RoomService) End(ctx context.Context, roomID uuid.UUID, actor Actor) (*models.Room, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !actor.IsHost(room) {
		return nil, ErrUnauthorized
	}
	if room.Status == models.RoomStatusEnded {
		return room, nil
	}
	now := s.now()
	err = s.transition(ctx, room, func(r *models.Room) {
		r.Status = models.RoomStatusEnded
		r.ActualEnd = &now
		r.ArchivedAt = &now
	}, models.RoomStatusWaiting, models.RoomStatusLive)
	if err != nil {
		return nil, err
	}

	s.resolveAll(ctx, room.ID, models.LeaveReasonRoomEnded)

	if _, err := s.recordings.Stop(ctx, room.ID); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Warn("stop recording on end failed", zap.String("room_id", room.ID.String()), zap.Error(err))
	}

	s.publish(ctx, Event{Type: EventRoomEnded, RoomID: room.ID, Data: room})
	return room, nil
}

// Cancel scheduled|waiting -> cancelled，作廢所有 pending 邀請
func (s *RoomService) Cancel(ctx context.Context, roomID uuid.UUID, actor Actor) (*models.Room, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !actor.IsHost(room) {
		return nil, ErrUnauthorized
	}
	now := s.now()
	err = s.transition(ctx, room, func(r *models.Room) {
		r.Status = models.RoomStatusCancelled
		r.ArchivedAt = &now
	}, models.RoomStatusScheduled, models.RoomStatusWaiting)
	if err != nil {
		return nil, err
	}

	n, err := s.repos.Invitation.CancelPending(ctx, room.ID, now)
	if err != nil {
		s.log.Error("cancel pending invitations failed", zap.String("room_id", room.ID.String()), zap.Error(err))
	} else {
		s.log.Info("pending invitations cancelled", zap.String("room_id", room.ID.String()), zap.Int64("count", n))
	}

	s.resolveAll(ctx, room.ID, models.LeaveReasonRoomCancelled)

	s.publish(ctx, Event{Type: EventRoomCancelled, RoomID: room.ID, Data: room})
	return room, nil
}

// resolveAll 呼叫端必須持有房間鎖
func (s *RoomService) resolveAll(ctx context.Context, roomID uuid.UUID, reason string) {
	active, err := s.repos.Participant.ListByRoom(ctx, roomID, models.ActiveParticipantStatuses...)
	if err != nil {
		s.log.Error("list participants failed", zap.String("room_id", roomID.String()), zap.Error(err))
		return
	}
	for i := range active {
		p := &active[i]
		if _, err := s.resolveParticipant(ctx, p, models.ParticipantStatusLeft, reason); err != nil {
			s.log.Error("resolve participant failed", zap.String("participant_id", p.ID.String()), zap.Error(err))
		}
	}
}

func statusAllowed[S comparable](status S, from []S) bool {
	for _, s := range from {
		if s == status {
			return true
		}
	}
	return false
}
