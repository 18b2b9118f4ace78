package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"interview_room/internal/models"
	"interview_room/internal/service"
)

type published struct {
	subject string
	payload []byte
}

type fakeTransport struct {
	mu        sync.Mutex
	published []published
	replies   map[string]any
	handlers  map[string]func(context.Context, []byte) error
	err       error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		replies:  make(map[string]any),
		handlers: make(map[string]func(context.Context, []byte) error),
	}
}

func (f *fakeTransport) Publish(_ context.Context, subj string, v any) error {
	if f.err != nil {
		return f.err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.published = append(f.published, published{subject: subj, payload: data})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Request(_ context.Context, subj string, _, out any) error {
	if f.err != nil {
		return f.err
	}
	data, err := json.Marshal(f.replies[subj])
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (f *fakeTransport) Subscribe(_ context.Context, subj, _ string, fn func(context.Context, []byte) error) (io.Closer, error) {
	f.handlers[subj] = fn
	return nopCloser{}, nil
}

func (f *fakeTransport) deliver(t *testing.T, subj string, v any) error {
	t.Helper()
	fn, ok := f.handlers[subj]
	if !ok {
		t.Fatalf("no subscription for %s", subj)
	}
	data, _ := json.Marshal(v)
	return fn(context.Background(), data)
}

func TestSubjects(t *testing.T) {
	s := NewSubjects(" acme.interview. ")
	if got := s.AllocateRoom(); got != "acme.interview.media.allocate_room" {
		t.Fatalf("AllocateRoom = %q", got)
	}
	if got := s.Event(service.EventRoomLive); got != "acme.interview.events.room.live" {
		t.Fatalf("Event = %q", got)
	}
	if got := NewSubjects("").PipelineOutcome(); got != "interview.pipeline.outcome" {
		t.Fatalf("default prefix = %q", got)
	}
}

func TestStreamSubjectsExcludeMedia(t *testing.T) {
	s := NewSubjects("acme.interview")
	if got := s.StreamName(); got != "ACME_INTERVIEW" {
		t.Fatalf("StreamName = %q", got)
	}
	want := []string{"acme.interview.mail.>", "acme.interview.pipeline.>", "acme.interview.events.>"}
	got := s.Streamed()
	if len(got) != len(want) {
		t.Fatalf("Streamed = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Streamed = %v, want %v", got, want)
		}
	}
	for _, subj := range got {
		if strings.HasPrefix(s.AllocatePeer(), strings.TrimSuffix(subj, ">")) {
			t.Fatalf("media request subject %q is captured by stream subject %q", s.AllocatePeer(), subj)
		}
	}
}

func TestMediaAllocation(t *testing.T) {
	tr := newFakeTransport()
	subjects := NewSubjects("interview")
	media := NewMedia(tr, subjects)
	roomID, participantID := uuid.New(), uuid.New()

	tr.replies[subjects.AllocateRoom()] = allocateRoomReply{Endpoints: models.MediaEndpoints{SessionID: "s1", WebRTCURL: "wss://rtc"}}
	tr.replies[subjects.AllocatePeer()] = allocatePeerReply{ConnectionID: "peer-1"}

	endpoints, err := media.AllocateRoom(context.Background(), roomID)
	if err != nil || endpoints.SessionID != "s1" || endpoints.WebRTCURL != "wss://rtc" {
		t.Fatalf("AllocateRoom = %+v, %v", endpoints, err)
	}
	conn, err := media.AllocatePeer(context.Background(), roomID, participantID)
	if err != nil || conn != "peer-1" {
		t.Fatalf("AllocatePeer = %q, %v", conn, err)
	}

	tr.replies[subjects.AllocatePeer()] = allocatePeerReply{Error: "no capacity"}
	if _, err := media.AllocatePeer(context.Background(), roomID, participantID); err == nil {
		t.Fatal("expected error from media reply")
	}
}

func TestOutboundPublishers(t *testing.T) {
	tr := newFakeTransport()
	subjects := NewSubjects("interview")
	ctx := context.Background()
	roomID, recordingID, invitationID := uuid.New(), uuid.New(), uuid.New()

	if err := NewMailer(tr, subjects).SendInvitation(ctx, invitationID, "tpl", map[string]string{"join_code": "ABCDEFGH"}); err != nil {
		t.Fatalf("SendInvitation: %v", err)
	}
	if err := NewPipeline(tr, subjects).HandOff(ctx, roomID, recordingID); err != nil {
		t.Fatalf("HandOff: %v", err)
	}
	if err := NewEvents(tr, subjects).Publish(ctx, service.Event{Type: service.EventRoomEnded, RoomID: roomID}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	wantSubjects := []string{subjects.InvitationMail(), subjects.PipelineHandOff(), "interview.events.room.ended"}
	if len(tr.published) != len(wantSubjects) {
		t.Fatalf("published %d messages", len(tr.published))
	}
	for i, want := range wantSubjects {
		if tr.published[i].subject != want {
			t.Fatalf("message %d subject = %q, want %q", i, tr.published[i].subject, want)
		}
	}

	var mail invitationMail
	if err := json.Unmarshal(tr.published[0].payload, &mail); err != nil || mail.InvitationID != invitationID || mail.Vars["join_code"] != "ABCDEFGH" {
		t.Fatalf("mail payload = %+v, %v", mail, err)
	}

	tr.err = errors.New("nats down")
	if err := NewMailer(tr, subjects).SendInvitation(ctx, invitationID, "tpl", nil); err == nil {
		t.Fatal("expected transport error")
	}
}

type fakeReporter struct {
	progress []int
	outcomes []service.Outcome
	err      error
}

func (f *fakeReporter) ReportProgress(_ context.Context, _ uuid.UUID, percent int) (*models.Recording, error) {
	f.progress = append(f.progress, percent)
	return &models.Recording{}, f.err
}

func (f *fakeReporter) ReportOutcome(_ context.Context, _ uuid.UUID, outcome service.Outcome) (*models.Recording, error) {
	f.outcomes = append(f.outcomes, outcome)
	return &models.Recording{}, f.err
}

func TestPipelineConsumer(t *testing.T) {
	tr := newFakeTransport()
	subjects := NewSubjects("interview")
	reporter := &fakeReporter{}
	core, logs := observer.New(zap.WarnLevel)
	consumer := NewPipelineConsumer(tr, subjects, reporter, zap.New(core))

	closers, err := consumer.Start(context.Background())
	if err != nil || len(closers) != 2 {
		t.Fatalf("Start = %v, %v", closers, err)
	}

	id := uuid.New()
	if err := tr.deliver(t, subjects.PipelineProgress(), progressMessage{RecordingID: id, Percent: 55}); err != nil {
		t.Fatalf("progress: %v", err)
	}
	err = tr.deliver(t, subjects.PipelineOutcome(), outcomeMessage{
		RecordingID: id,
		Status:      models.RecordingStatusCompleted,
		StorageKey:  "rooms/x/final.mp4",
		Details:     map[string]interface{}{"codec": "h264"},
	})
	if err != nil {
		t.Fatalf("outcome: %v", err)
	}
	if len(reporter.progress) != 1 || reporter.progress[0] != 55 {
		t.Fatalf("progress calls = %v", reporter.progress)
	}
	if len(reporter.outcomes) != 1 || reporter.outcomes[0].StorageKey != "rooms/x/final.mp4" || reporter.outcomes[0].Details["codec"] != "h264" {
		t.Fatalf("outcome calls = %+v", reporter.outcomes)
	}

	// 永久性錯誤 ack 掉，暫時性錯誤回傳讓 JetStream 重送
	reporter.err = service.ErrInvalidTransition
	if err := tr.deliver(t, subjects.PipelineProgress(), progressMessage{RecordingID: id, Percent: 60}); err != nil {
		t.Fatalf("permanent error should be acked, got %v", err)
	}
	reporter.err = errors.New("db unavailable")
	if err := tr.deliver(t, subjects.PipelineOutcome(), outcomeMessage{RecordingID: id, Status: models.RecordingStatusFailed}); err == nil {
		t.Fatal("transient error should be returned for redelivery")
	}

	if err := tr.handlers[subjects.PipelineProgress()](context.Background(), []byte("{not json")); err != nil {
		t.Fatalf("malformed message should be dropped, got %v", err)
	}
	if logs.FilterMessage("drop malformed progress message").Len() != 1 {
		t.Fatal("malformed message not logged")
	}
	if logs.FilterMessage("drop pipeline message").Len() != 1 {
		t.Fatal("permanent error not logged")
	}
}
