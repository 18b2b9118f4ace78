package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"interview_room/internal/models"
)

// MediaAllocator 外部媒體服務，只回傳不透明的識別碼與端點
type MediaAllocator interface {
	AllocateRoom(ctx context.Context, roomID uuid.UUID) (models.MediaEndpoints, error)
	AllocatePeer(ctx context.Context, roomID, participantID uuid.UUID) (string, error)
}

// Mailer 寄送邀請信，呼叫端不等待投遞結果
type Mailer interface {
	SendInvitation(ctx context.Context, invitationID uuid.UUID, template string, vars map[string]string) error
}

// Pipeline 錄影停止後交給外部轉檔與儲存管線
type Pipeline interface {
	HandOff(ctx context.Context, roomID, recordingID uuid.UUID) error
}

type Presigner interface {
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

var ErrNotConfigured = errors.New("collaborator not configured")

// NoopMedia 本機開發時不配發任何媒體資源
type NoopMedia struct{}

func (NoopMedia) AllocateRoom(context.Context, uuid.UUID) (models.MediaEndpoints, error) {
	return models.MediaEndpoints{}, nil
}

func (NoopMedia) AllocatePeer(context.Context, uuid.UUID, uuid.UUID) (string, error) {
	return "", nil
}

// NoopMailer 不寄信，邀請會維持未寄送狀態
type NoopMailer struct{}

func (NoopMailer) SendInvitation(context.Context, uuid.UUID, string, map[string]string) error {
	return ErrNotConfigured
}

type NoopPipeline struct{}

func (NoopPipeline) HandOff(context.Context, uuid.UUID, uuid.UUID) error { return nil }

type NoopPresigner struct{}

func (NoopPresigner) PresignGet(context.Context, string, string, time.Duration) (string, error) {
	return "", ErrNotConfigured
}

// Publishers 把事件送給多個 publisher，回傳第一個錯誤
type Publishers []EventPublisher

func (p Publishers) Publish(ctx context.Context, event Event) error {
	var first error
	for _, pub := range p {
		if pub == nil {
			continue
		}
		if err := pub.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
