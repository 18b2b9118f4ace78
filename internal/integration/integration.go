// Package integration 以 NATS 實作服務層對外的協作介面。
//
// 媒體配發是同步的 request/reply；寄信、管線交接與房間事件發到 JetStream，
// 由外部服務各自消費。錄影管線的進度與結果也從 JetStream 回來。
package integration

import (
	"context"
	"io"
	"strings"
)

// Transport 是 bus.Bus 提供的能力，測試時可以替換
type Transport interface {
	Publish(ctx context.Context, subj string, v any) error
	Request(ctx context.Context, subj string, v, out any) error
	Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error)
}

// Subjects 所有 subject 都掛在同一個 prefix 下
type Subjects struct {
	prefix string
}

func NewSubjects(prefix string) Subjects {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "interview"
	}
	return Subjects{prefix: prefix}
}

func (s Subjects) join(parts ...string) string {
	return s.prefix + "." + strings.Join(parts, ".")
}

func (s Subjects) AllocateRoom() string     { return s.join("media", "allocate_room") }
func (s Subjects) AllocatePeer() string     { return s.join("media", "allocate_peer") }
func (s Subjects) InvitationMail() string   { return s.join("mail", "invitation") }
func (s Subjects) PipelineHandOff() string  { return s.join("pipeline", "handoff") }
func (s Subjects) PipelineProgress() string { return s.join("pipeline", "progress") }
func (s Subjects) PipelineOutcome() string  { return s.join("pipeline", "outcome") }

// StreamName JetStream stream 名稱，由 prefix 推得，例如 INTERVIEW
func (s Subjects) StreamName() string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(s.prefix))
}

// Streamed 落在 stream 裡的 subject；media.* 走 request/reply，不能被 stream 攔截
func (s Subjects) Streamed() []string {
	return []string{s.join("mail", ">"), s.join("pipeline", ">"), s.join("events", ">")}
}

// Event 房間事件依類型分 subject，例如 interview.events.room.live
func (s Subjects) Event(eventType string) string { return s.join("events", eventType) }
