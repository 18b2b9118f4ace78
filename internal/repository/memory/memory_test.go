package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"interview_room/internal/models"
	"interview_room/internal/repository"
)

func seedRoom(t *testing.T, repos *repository.Repositories, code string) *models.Room {
	t.Helper()
	room := &models.Room{
		ID:        uuid.New(),
		HostID:    "host-1",
		Title:     "weekly",
		Status:    models.RoomStatusScheduled,
		RoomCode:  code,
		StreamKey: "sk_" + code,
		MaxGuests: 2,
	}
	if err := repos.Room.Create(context.Background(), room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

func TestRoomUniqueCodes(t *testing.T) {
	repos := NewRepositories()
	seedRoom(t, repos, "ABC")

	dup := &models.Room{ID: uuid.New(), RoomCode: "ABC", StreamKey: "other"}
	if err := repos.Room.Create(context.Background(), dup); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("Create duplicate code err = %v, want ErrDuplicate", err)
	}
}

func TestRoomUpdateIsConditional(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	room := seedRoom(t, repos, "ABC")

	room.Status = models.RoomStatusLive
	ok, err := repos.Room.Update(ctx, room, models.RoomStatusWaiting)
	if err != nil || ok {
		t.Fatalf("Update from wrong status = %v, %v; want false, nil", ok, err)
	}

	got, _ := repos.Room.FindByID(ctx, room.ID)
	if got.Status != models.RoomStatusScheduled {
		t.Fatalf("status = %s, want scheduled", got.Status)
	}

	room.Status = models.RoomStatusWaiting
	if ok, err := repos.Room.Update(ctx, room, models.RoomStatusScheduled); err != nil || !ok {
		t.Fatalf("Update = %v, %v; want true", ok, err)
	}
}

func TestParticipantActiveInvitationIsUnique(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	room := seedRoom(t, repos, "ABC")
	invID := uuid.New()

	first := &models.Participant{ID: uuid.New(), RoomID: room.ID, InvitationID: &invID, Status: models.ParticipantStatusWaiting}
	if err := repos.Participant.Create(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}

	second := &models.Participant{ID: uuid.New(), RoomID: room.ID, InvitationID: &invID, Status: models.ParticipantStatusConnected}
	if err := repos.Participant.Create(ctx, second); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("second create err = %v, want ErrDuplicate", err)
	}

	first.Status = models.ParticipantStatusLeft
	if ok, err := repos.Participant.Update(ctx, first, models.ParticipantStatusWaiting); err != nil || !ok {
		t.Fatalf("resolve first: %v, %v", ok, err)
	}
	if err := repos.Participant.Create(ctx, second); err != nil {
		t.Fatalf("create after first left: %v", err)
	}
}

func TestRecordingOneActivePerRoom(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	room := seedRoom(t, repos, "ABC")

	rec := &models.Recording{ID: uuid.New(), RoomID: room.ID, Status: models.RecordingStatusRecording}
	if err := repos.Recording.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	again := &models.Recording{ID: uuid.New(), RoomID: room.ID, Status: models.RecordingStatusRecording}
	if err := repos.Recording.Create(ctx, again); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("second active err = %v, want ErrDuplicate", err)
	}
}

func TestRecordingProgressMonotonic(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	room := seedRoom(t, repos, "ABC")
	rec := &models.Recording{ID: uuid.New(), RoomID: room.ID, Status: models.RecordingStatusProcessing}
	if err := repos.Recording.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	steps := []struct {
		percent int
		want    bool
	}{
		{40, true},
		{20, false},
		{40, false},
		{90, true},
	}
	for _, step := range steps {
		ok, err := repos.Recording.UpdateProgress(ctx, rec.ID, step.percent)
		if err != nil || ok != step.want {
			t.Fatalf("UpdateProgress(%d) = %v, %v; want %v", step.percent, ok, err, step.want)
		}
	}
	got, _ := repos.Recording.FindByID(ctx, rec.ID)
	if got.Progress != 90 {
		t.Fatalf("progress = %d, want 90", got.Progress)
	}
}

func TestInvitationExpirePendingOnlyTouchesPending(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	room := seedRoom(t, repos, "ABC")
	past := time.Now().Add(-time.Hour)

	pending := &models.Invitation{ID: uuid.New(), RoomID: room.ID, JoinCode: "J1", Token: "T1", Status: models.InvitationStatusPending, ExpiresAt: past}
	accepted := &models.Invitation{ID: uuid.New(), RoomID: room.ID, JoinCode: "J2", Token: "T2", Status: models.InvitationStatusAccepted, ExpiresAt: past}
	for _, inv := range []*models.Invitation{pending, accepted} {
		if err := repos.Invitation.Create(ctx, inv); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	n, err := repos.Invitation.ExpirePending(ctx, time.Now())
	if err != nil || n != 1 {
		t.Fatalf("ExpirePending = %d, %v; want 1", n, err)
	}
	if n, _ := repos.Invitation.ExpirePending(ctx, time.Now()); n != 0 {
		t.Fatalf("second sweep expired %d rows, want 0", n)
	}
	got, _ := repos.Invitation.FindByID(ctx, accepted.ID)
	if got.Status != models.InvitationStatusAccepted {
		t.Fatalf("accepted invitation flipped to %s", got.Status)
	}
}

func TestChatListVisibleHidesPrivateAndDeleted(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	room := seedRoom(t, repos, "ABC")
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	deletedAt := time.Now()

	messages := []models.ChatMessage{
		{ID: uuid.New(), RoomID: room.ID, Seq: 1, AuthorID: alice, Content: "hi"},
		{ID: uuid.New(), RoomID: room.ID, Seq: 2, AuthorID: alice, Content: "psst", RecipientID: &bob},
		{ID: uuid.New(), RoomID: room.ID, Seq: 3, AuthorID: bob, Content: "gone", DeletedAt: &deletedAt},
	}
	for i := range messages {
		if err := repos.ChatMessage.Create(ctx, &messages[i]); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	forBob, _ := repos.ChatMessage.ListVisible(ctx, room.ID, bob)
	if len(forBob) != 2 {
		t.Fatalf("bob sees %d messages, want 2", len(forBob))
	}
	forCarol, _ := repos.ChatMessage.ListVisible(ctx, room.ID, carol)
	if len(forCarol) != 1 || forCarol[0].Seq != 1 {
		t.Fatalf("carol sees %+v, want only seq 1", forCarol)
	}
	if next, _ := repos.ChatMessage.NextSeq(ctx, room.ID); next != 4 {
		t.Fatalf("NextSeq = %d, want 4", next)
	}
}

func TestInRoomRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	room := seedRoom(t, repos, "ABC")
	inv := &models.Invitation{ID: uuid.New(), RoomID: room.ID, Email: "g@example.com", JoinCode: "J1", Token: "t1", Status: models.InvitationStatusPending}
	if err := repos.Invitation.Create(ctx, inv); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	boom := errors.New("boom")
	var created uuid.UUID
	err := repos.Tx.InRoom(ctx, room.ID, func(tx *repository.Repositories, locked *models.Room) error {
		if locked.ID != room.ID {
			t.Fatalf("locked room = %s, want %s", locked.ID, room.ID)
		}
		next := *inv
		next.Status = models.InvitationStatusAccepted
		if ok, err := tx.Invitation.Update(ctx, &next, models.InvitationStatusPending); err != nil || !ok {
			t.Fatalf("accept in tx: %v, %v", ok, err)
		}
		p := &models.Participant{ID: uuid.New(), RoomID: room.ID, Status: models.ParticipantStatusConnected}
		if err := tx.Participant.Create(ctx, p); err != nil {
			t.Fatalf("create in tx: %v", err)
		}
		created = p.ID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InRoom err = %v, want boom", err)
	}

	got, _ := repos.Invitation.FindByID(ctx, inv.ID)
	if got.Status != models.InvitationStatusPending {
		t.Fatalf("invitation = %s after rollback, want pending", got.Status)
	}
	if _, err := repos.Participant.FindByID(ctx, created); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("participant after rollback err = %v, want ErrNotFound", err)
	}

	if err := repos.Tx.InRoom(ctx, uuid.New(), func(*repository.Repositories, *models.Room) error { return nil }); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("InRoom unknown room err = %v, want ErrNotFound", err)
	}
}

func TestParticipantTimeoutDisconnectedChecksCutoff(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	room := seedRoom(t, repos, "ABC")
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	disconnected := base.Add(5 * time.Minute)
	p := &models.Participant{ID: uuid.New(), RoomID: room.ID, Status: models.ParticipantStatusDisconnected, DisconnectedAt: &disconnected}
	if err := repos.Participant.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	next := *p
	next.Resolve(models.ParticipantStatusLeft, models.LeaveReasonTimeout, base.Add(10*time.Minute))
	if ok, err := repos.Participant.TimeoutDisconnected(ctx, &next, disconnected); err != nil || ok {
		t.Fatalf("TimeoutDisconnected before grace = %v, %v; want false", ok, err)
	}
	if ok, err := repos.Participant.TimeoutDisconnected(ctx, &next, disconnected.Add(time.Second)); err != nil || !ok {
		t.Fatalf("TimeoutDisconnected after grace = %v, %v; want true", ok, err)
	}
	got, _ := repos.Participant.FindByID(ctx, p.ID)
	if got.Status != models.ParticipantStatusLeft {
		t.Fatalf("status = %s, want left", got.Status)
	}
}
