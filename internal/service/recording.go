package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"interview_room/internal/models"
	"interview_room/internal/repository"
)

// RecordingService 跟隨房間生命週期啟停錄影，轉檔由外部管線負責
type RecordingService struct {
	*core
}

// Outcome 是管線回報的處理結果
type Outcome struct {
	Status     models.RecordingStatus
	StorageKey string
	Format     string
	Quality    string
	Details    map[string]interface{}
	Reason     string
}

// Start 房間必須在直播中，同一房間只能有一筆進行中的錄影
func (s *RecordingService) Start(ctx context.Context, roomID uuid.UUID) (*models.Recording, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusLive {
		return nil, fmt.Errorf("room %s is %s: %w", room.ID, room.Status, ErrInvalidTransition)
	}
	if _, err := s.repos.Recording.FindActiveByRoom(ctx, roomID); err == nil {
		return nil, ErrAlreadyRecording
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	rec := &models.Recording{
		ID:        uuid.New(),
		RoomID:    roomID,
		Status:    models.RecordingStatusRecording,
		Format:    s.cfg.Recordings.Format,
		Quality:   s.cfg.Recordings.Quality,
		StartedAt: s.now(),
	}
	if err := s.repos.Recording.Create(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyRecording
		}
		return nil, err
	}

	s.metrics.Transition("recording", string(rec.Status))
	s.log.Info("recording started", zap.String("room_id", roomID.String()), zap.String("recording_id", rec.ID.String()))
	s.publish(ctx, Event{Type: EventRecordingStarted, RoomID: roomID, Data: rec})
	return rec, nil
}

// Stop recording -> processing 並交給管線；已在處理中時直接回傳
func (s *RecordingService) Stop(ctx context.Context, roomID uuid.UUID) (*models.Recording, error) {
	rec, err := s.repos.Recording.FindActiveByRoom(ctx, roomID)
	if err != nil {
		return nil, notFound(err, "active recording")
	}
	if rec.Status == models.RecordingStatusProcessing {
		return rec, nil
	}

	now := s.now()
	next := *rec
	next.Status = models.RecordingStatusProcessing
	next.StoppedAt = &now
	if elapsed := now.Sub(rec.StartedAt); elapsed > 0 {
		next.DurationSeconds = int64(elapsed / time.Second)
	}
	ok, err := s.repos.Recording.Update(ctx, &next, models.RecordingStatusRecording)
	if err != nil {
		return nil, err
	}
	if !ok {
		fresh, err := s.load(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		return fresh, nil
	}

	s.metrics.Transition("recording", string(next.Status))
	s.log.Info("recording stopped",
		zap.String("room_id", roomID.String()),
		zap.String("recording_id", next.ID.String()),
		zap.Int64("duration_seconds", next.DurationSeconds))
	s.publish(ctx, Event{Type: EventRecordingStopped, RoomID: roomID, Data: &next})

	recordingID := next.ID
	s.dispatch("pipeline", func(ctx context.Context) error {
		return s.pipeline.HandOff(ctx, roomID, recordingID)
	})
	return &next, nil
}

// StartForHost 與 StopForHost 供 API 使用，先檢查權限
func (s *RecordingService) StartForHost(ctx context.Context, actor Actor, roomID uuid.UUID) (*models.Recording, error) {
	if err := s.authorize(ctx, actor, roomID); err != nil {
		return nil, err
	}
	return s.Start(ctx, roomID)
}

func (s *RecordingService) StopForHost(ctx context.Context, actor Actor, roomID uuid.UUID) (*models.Recording, error) {
	if err := s.authorize(ctx, actor, roomID); err != nil {
		return nil, err
	}
	return s.Stop(ctx, roomID)
}

// ReportProgress 管線的進度回報，只會往上增加；終態後的回報忽略
func (s *RecordingService) ReportProgress(ctx context.Context, recordingID uuid.UUID, percent int) (*models.Recording, error) {
	if percent < 0 || percent > 100 {
		return nil, invalidArgument("progress must be between 0 and 100")
	}
	rec, err := s.load(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case models.RecordingStatusRecording:
		return nil, fmt.Errorf("recording %s is still recording: %w", rec.ID, ErrInvalidTransition)
	case models.RecordingStatusProcessing:
	default:
		return rec, nil
	}

	if _, err := s.repos.Recording.UpdateProgress(ctx, recordingID, percent); err != nil {
		return nil, err
	}
	return s.load(ctx, recordingID)
}

// ReportOutcome processing -> completed|failed；相同結果重送時不做事
func (s *RecordingService) ReportOutcome(ctx context.Context, recordingID uuid.UUID, outcome Outcome) (*models.Recording, error) {
	if !outcome.Status.Outcome() {
		return nil, invalidArgument("outcome status must be completed or failed, got %q", outcome.Status)
	}

	for attempt := 0; attempt < 2; attempt++ {
		rec, err := s.load(ctx, recordingID)
		if err != nil {
			return nil, err
		}
		switch rec.Status {
		case models.RecordingStatusProcessing:
		case models.RecordingStatusRecording:
			return nil, fmt.Errorf("recording %s has not been stopped: %w", rec.ID, ErrInvalidTransition)
		default:
			if rec.Status == outcome.Status ||
				(rec.Status == models.RecordingStatusDeleted && outcome.Status == models.RecordingStatusCompleted) {
				return rec, nil
			}
			return nil, fmt.Errorf("recording %s already %s: %w", rec.ID, rec.Status, ErrInvalidTransition)
		}

		now := s.now()
		next := *rec
		next.Status = outcome.Status
		next.CompletedAt = &now
		if outcome.StorageKey != "" {
			next.StorageKey = outcome.StorageKey
		}
		if outcome.Format != "" {
			next.Format = outcome.Format
		}
		if outcome.Quality != "" {
			next.Quality = outcome.Quality
		}
		if outcome.Details != nil {
			next.Details = datatypes.JSONMap(outcome.Details)
		}
		if outcome.Status == models.RecordingStatusCompleted {
			next.Progress = 100
		} else {
			next.FailureReason = outcome.Reason
		}

		ok, err := s.repos.Recording.Update(ctx, &next, models.RecordingStatusProcessing)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		s.metrics.Transition("recording", string(next.Status))
		s.log.Info("recording outcome",
			zap.String("recording_id", next.ID.String()),
			zap.String("status", string(next.Status)),
			zap.String("storage_key", next.StorageKey))
		eventType := EventRecordingCompleted
		if next.Status == models.RecordingStatusFailed {
			eventType = EventRecordingFailed
		}
		s.publish(ctx, Event{Type: eventType, RoomID: next.RoomID, Audience: AudienceModerators, Data: &next})
		return &next, nil
	}
	return nil, fmt.Errorf("recording %s changed concurrently: %w", recordingID, ErrInvalidTransition)
}

// Delete completed -> deleted，只有主持人可以刪除
func (s *RecordingService) Delete(ctx context.Context, actor Actor, recordingID uuid.UUID) (*models.Recording, error) {
	rec, err := s.load(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	room, err := s.loadRoom(ctx, rec.RoomID)
	if err != nil {
		return nil, err
	}
	if !actor.IsHost(room) {
		return nil, ErrUnauthorized
	}
	switch rec.Status {
	case models.RecordingStatusDeleted:
		return rec, nil
	case models.RecordingStatusCompleted:
	default:
		return nil, fmt.Errorf("recording %s is %s: %w", rec.ID, rec.Status, ErrInvalidTransition)
	}

	now := s.now()
	next := *rec
	next.Status = models.RecordingStatusDeleted
	next.DeletedAt = &now
	ok, err := s.repos.Recording.Update(ctx, &next, models.RecordingStatusCompleted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("recording %s changed concurrently: %w", rec.ID, ErrInvalidTransition)
	}
	s.metrics.Transition("recording", string(next.Status))
	return &next, nil
}

// PlaybackURL 產生已完成錄影的限時下載網址
func (s *RecordingService) PlaybackURL(ctx context.Context, actor Actor, recordingID uuid.UUID) (string, error) {
	rec, err := s.load(ctx, recordingID)
	if err != nil {
		return "", err
	}
	if err := s.authorize(ctx, actor, rec.RoomID); err != nil {
		return "", err
	}
	if rec.Status != models.RecordingStatusCompleted || rec.StorageKey == "" {
		return "", fmt.Errorf("recording %s is %s: %w", rec.ID, rec.Status, ErrInvalidTransition)
	}
	url, err := s.presigner.PresignGet(ctx, s.cfg.S3.Bucket, rec.StorageKey, s.cfg.S3.PresignTTL)
	if err != nil {
		return "", fmt.Errorf("presign recording %s: %w", rec.ID, err)
	}
	return url, nil
}

func (s *RecordingService) ListByRoom(ctx context.Context, actor Actor, roomID uuid.UUID) ([]models.Recording, error) {
	if err := s.authorize(ctx, actor, roomID); err != nil {
		return nil, err
	}
	return s.repos.Recording.ListByRoom(ctx, roomID)
}

func (s *RecordingService) authorize(ctx context.Context, actor Actor, roomID uuid.UUID) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	return s.authorizeModerator(ctx, actor, room)
}

func (s *RecordingService) load(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := s.repos.Recording.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "recording")
	}
	return rec, nil
}
