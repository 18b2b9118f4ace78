package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interview_room/internal/models"
	"interview_room/internal/repository"
	"interview_room/internal/repository/memory"
	"interview_room/pkg/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(_ context.Context, event Event) error {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) ofType(eventType string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type stubMailer struct {
	mu   sync.Mutex
	sent []map[string]string
	err  error
}

func (m *stubMailer) SendInvitation(_ context.Context, _ uuid.UUID, _ string, vars map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, vars)
	return nil
}

func (m *stubMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type stubPipeline struct {
	mu     sync.Mutex
	handed []uuid.UUID
}

func (p *stubPipeline) HandOff(_ context.Context, _, recordingID uuid.UUID) error {
	p.mu.Lock()
	p.handed = append(p.handed, recordingID)
	p.mu.Unlock()
	return nil
}

type stubMedia struct{}

func (stubMedia) AllocateRoom(_ context.Context, roomID uuid.UUID) (models.MediaEndpoints, error) {
	return models.MediaEndpoints{SessionID: "sess-" + roomID.String()[:8], WebRTCURL: "wss://media.test/rtc"}, nil
}

func (stubMedia) AllocatePeer(_ context.Context, _, participantID uuid.UUID) (string, error) {
	return "peer-" + participantID.String()[:8], nil
}

type stubPresigner struct{}

func (stubPresigner) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://storage.test/" + bucket + "/" + key + "?ttl=" + ttl.String(), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Store: "memory",
		Auth:  config.AuthConfig{JWTSecret: "test-secret", SessionTTL: time.Hour},
		S3:    config.S3Config{Bucket: "recordings", PresignTTL: 15 * time.Minute},
		IDs:   config.IDConfig{MaxAttempts: 5},
		Invitations: config.InvitationConfig{
			DefaultTTL:      72 * time.Hour,
			MaxTTL:          7 * 24 * time.Hour,
			MaxJoinAttempts: 3,
			EmailTemplate:   "interview_invitation",
		},
		Sessions: config.SessionConfig{DisconnectGrace: 2 * time.Minute},
		Rooms: config.RoomConfig{Defaults: config.RoomDefaults{
			MaxGuests:          4,
			ChatEnabled:        true,
			WaitingRoomEnabled: true,
		}},
		Chat:       config.ChatConfig{MaxLength: 50},
		Sweeper:    config.SweeperConfig{Interval: 30 * time.Second},
		Recordings: config.RecordingConfig{Format: "mp4", Quality: "1080p"},
	}
}

type testEnv struct {
	t        *testing.T
	ctx      context.Context
	cfg      *config.Config
	repos    *repository.Repositories
	svcs     *Services
	clock    *fakeClock
	events   *eventLog
	mailer   *stubMailer
	pipeline *stubPipeline
	host     Actor
}

func newTestEnv(t *testing.T, configure ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, fn := range configure {
		fn(cfg)
	}
	env := &testEnv{
		t:        t,
		ctx:      context.Background(),
		cfg:      cfg,
		repos:    memory.NewRepositories(),
		clock:    newFakeClock(),
		events:   &eventLog{},
		mailer:   &stubMailer{},
		pipeline: &stubPipeline{},
		host:     Actor{UserID: "host-1", Role: "host"},
	}
	env.svcs = NewServices(Deps{
		Repos:     env.repos,
		Config:    cfg,
		Logger:    zap.NewNop(),
		Media:     stubMedia{},
		Mailer:    env.mailer,
		Pipeline:  env.pipeline,
		Presigner: stubPresigner{},
		Publisher: env.events,
		Now:       env.clock.Now,
	})
	t.Cleanup(env.svcs.Wait)
	return env
}

func boolPtr(b bool) *bool { return &b }

func (e *testEnv) createRoom(patch models.RoomSettingsPatch, maxGuests int) *models.Room {
	e.t.Helper()
	room, err := e.svcs.Room.Create(e.ctx, e.host, CreateRoomInput{
		Title:     "Staff engineer loop",
		MaxGuests: maxGuests,
		Settings:  patch,
	})
	if err != nil {
		e.t.Fatalf("create room: %v", err)
	}
	return room
}

// openRoom 建立並開啟房間，回傳 waiting 狀態的房間
func (e *testEnv) openRoom(patch models.RoomSettingsPatch, maxGuests int) *models.Room {
	e.t.Helper()
	room := e.createRoom(patch, maxGuests)
	room, err := e.svcs.Room.Open(e.ctx, room.ID, e.host)
	if err != nil {
		e.t.Fatalf("open room: %v", err)
	}
	return room
}

func (e *testEnv) invite(room *models.Room, email string, role models.Role) *models.Invitation {
	e.t.Helper()
	inv, err := e.svcs.Invitation.Create(e.ctx, e.host, room.ID, CreateInvitationInput{Email: email, Role: role})
	if err != nil {
		e.t.Fatalf("create invitation: %v", err)
	}
	return inv
}

func (e *testEnv) join(inv *models.Invitation) *models.Participant {
	e.t.Helper()
	p, err := e.svcs.Admission.JoinWithInvitation(e.ctx, inv.JoinCode, JoinInput{})
	if err != nil {
		e.t.Fatalf("join with invitation: %v", err)
	}
	return p
}

func (e *testEnv) joinAsHost(room *models.Room) *models.Participant {
	e.t.Helper()
	p, err := e.svcs.Admission.JoinAsHost(e.ctx, room.ID, e.host, JoinInput{DisplayName: "Host"})
	if err != nil {
		e.t.Fatalf("join as host: %v", err)
	}
	return p
}

func (e *testEnv) participant(id uuid.UUID) *models.Participant {
	e.t.Helper()
	p, err := e.repos.Participant.FindByID(e.ctx, id)
	if err != nil {
		e.t.Fatalf("find participant: %v", err)
	}
	return p
}

func (e *testEnv) invitation(id uuid.UUID) *models.Invitation {
	e.t.Helper()
	inv, err := e.repos.Invitation.FindByID(e.ctx, id)
	if err != nil {
		e.t.Fatalf("find invitation: %v", err)
	}
	return inv
}

func guestActor(p *models.Participant) Actor {
	id := p.ID
	return Actor{Role: string(p.Role), ParticipantID: &id}
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("err = %v, want %v", err, target)
	}
}
