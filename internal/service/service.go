package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interview_room/internal/metrics"
	"interview_room/internal/models"
	"interview_room/internal/repository"
	"interview_room/pkg/config"
)

// Deps 建立服務所需的依賴，nil 的外部協作者會換成 no-op 實作
type Deps struct {
	Repos     *repository.Repositories
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Media     MediaAllocator
	Mailer    Mailer
	Pipeline  Pipeline
	Presigner Presigner
	Publisher EventPublisher
	Now       func() time.Time
}

type Services struct {
	Room        *RoomService
	Invitation  *InvitationService
	Admission   *AdmissionService
	Participant *ParticipantService
	Recording   *RecordingService
	Chat        *ChatService
	Sweeper     *Sweeper
	WebSocket   *WebSocketService

	core *core
}

// core 是各服務共用的狀態，房間鎖必須是同一份
type core struct {
	repos     *repository.Repositories
	cfg       *config.Config
	log       *zap.Logger
	metrics   *metrics.Metrics
	locks     *roomLocks
	ids       *Generator
	media     MediaAllocator
	mailer    Mailer
	pipeline  Pipeline
	presigner Presigner
	events    EventPublisher
	now       func() time.Time
	inflight  sync.WaitGroup
}

func NewServices(d Deps) *Services {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Media == nil {
		d.Media = NoopMedia{}
	}
	if d.Mailer == nil {
		d.Mailer = NoopMailer{}
	}
	if d.Pipeline == nil {
		d.Pipeline = NoopPipeline{}
	}
	if d.Presigner == nil {
		d.Presigner = NoopPresigner{}
	}

	hub := NewWebSocketService(d.Logger)
	c := &core{
		repos:     d.Repos,
		cfg:       d.Config,
		log:       d.Logger,
		metrics:   d.Metrics,
		locks:     newRoomLocks(),
		ids:       NewGenerator(d.Config.IDs.MaxAttempts),
		media:     d.Media,
		mailer:    d.Mailer,
		pipeline:  d.Pipeline,
		presigner: d.Presigner,
		events:    Publishers{hub, d.Publisher},
		now:       d.Now,
	}

	recordings := &RecordingService{core: c}
	invitations := &InvitationService{core: c}
	participants := &ParticipantService{core: c, recordings: recordings}
	rooms := &RoomService{core: c, recordings: recordings}
	admission := &AdmissionService{core: c, invitations: invitations}
	chat := &ChatService{core: c}

	hub.OnDisconnect = func(participantID uuid.UUID) {
		if _, err := participants.Disconnect(context.Background(), participantID); err != nil {
			c.log.Debug("disconnect on websocket close ignored",
				zap.String("participant_id", participantID.String()), zap.Error(err))
		}
	}

	return &Services{
		Room:        rooms,
		Invitation:  invitations,
		Admission:   admission,
		Participant: participants,
		Recording:   recordings,
		Chat:        chat,
		Sweeper:     NewSweeper(invitations, participants, d.Config.Sweeper.Interval, d.Logger),
		WebSocket:   hub,
		core:        c,
	}
}

// Wait 等待背景送出的通知（邀請信、管線交接）全部結束
func (s *Services) Wait() {
	s.core.inflight.Wait()
}

// dispatch 在背景執行外部呼叫，不阻塞呼叫端
func (c *core) dispatch(kind string, fn func(ctx context.Context) error) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := fn(ctx)
		c.metrics.Notification(kind, err)
		if err != nil {
			c.log.Warn("background dispatch failed", zap.String("kind", kind), zap.Error(err))
		}
	}()
}

func (c *core) publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = c.now()
	}
	if event.Audience == "" {
		event.Audience = AudienceRoom
	}
	if err := c.events.Publish(ctx, event); err != nil {
		c.log.Debug("publish event failed", zap.String("type", event.Type), zap.Error(err))
	}
}

func (c *core) loadRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	room, err := c.repos.Room.FindByID(ctx, roomID)
	if err != nil {
		return nil, notFound(err, "room")
	}
	return room, nil
}

func (c *core) loadParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	p, err := c.repos.Participant.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "participant")
	}
	return p, nil
}

// authorizeModerator 主持人本人，或在房間中已連線的共同主持人
func (c *core) authorizeModerator(ctx context.Context, actor Actor, room *models.Room) error {
	if actor.IsHost(room) {
		return nil
	}
	if actor.ParticipantID != nil {
		p, err := c.repos.Participant.FindByID(ctx, *actor.ParticipantID)
		if err == nil && p.RoomID == room.ID && p.Role == models.RoleCoHost && p.Status == models.ParticipantStatusConnected {
			return nil
		}
	}
	if actor.UserID != "" {
		connected, err := c.repos.Participant.ListByRoom(ctx, room.ID, models.ParticipantStatusConnected)
		if err != nil {
			return err
		}
		for _, p := range connected {
			if p.Role == models.RoleCoHost && p.UserID == actor.UserID {
				return nil
			}
		}
	}
	return ErrUnauthorized
}

// allocatePeer 向媒體服務要連線識別碼，失敗只記錄
func (c *core) allocatePeer(ctx context.Context, p *models.Participant) {
	connID, err := c.media.AllocatePeer(ctx, p.RoomID, p.ID)
	c.metrics.Notification("media_peer", err)
	if err != nil {
		c.log.Warn("allocate peer failed", zap.String("participant_id", p.ID.String()), zap.Error(err))
		return
	}
	if connID != "" {
		p.ConnectionID = connID
	}
}

// resolveParticipant 把參與者移到終態；CAS 失敗時重新讀取再試一次
func (c *core) resolveParticipant(ctx context.Context, p *models.Participant, status models.ParticipantStatus, reason string) (bool, error) {
	return c.resolveParticipantIn(ctx, c.repos, p, status, reason)
}

func (c *core) resolveParticipantIn(ctx context.Context, repos *repository.Repositories, p *models.Participant, status models.ParticipantStatus, reason string) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if p.Status.Terminal() {
			return false, nil
		}
		from := p.Status
		p.Resolve(status, reason, c.now())
		ok, err := repos.Participant.Update(ctx, p, from)
		if err != nil {
			return false, err
		}
		if ok {
			c.metrics.Transition("participant", string(status))
			return true, nil
		}
		fresh, err := repos.Participant.FindByID(ctx, p.ID)
		if err != nil {
			return false, notFound(err, "participant")
		}
		*p = *fresh
	}
	return false, nil
}
