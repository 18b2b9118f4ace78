package service

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"interview_room/internal/models"
)

func liveRoom(t *testing.T, env *testEnv, recording bool) *models.Room {
	t.Helper()
	room := env.openRoom(models.RoomSettingsPatch{RecordingEnabled: boolPtr(recording)}, 2)
	room, err := env.svcs.Room.GoLive(env.ctx, room.ID, env.host)
	if err != nil {
		t.Fatalf("GoLive: %v", err)
	}
	return room
}

func TestRecordingStartRequiresLiveRoom(t *testing.T) {
	env := newTestEnv(t)
	room := env.openRoom(models.RoomSettingsPatch{}, 2)

	_, err := env.svcs.Recording.Start(env.ctx, room.ID)
	wantErr(t, err, ErrInvalidTransition)
	_, err = env.svcs.Recording.Stop(env.ctx, room.ID)
	wantErr(t, err, ErrNotFound)
}

func TestRecordingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	room := liveRoom(t, env, false)

	rec, err := env.svcs.Recording.StartForHost(env.ctx, env.host, room.ID)
	if err != nil {
		t.Fatalf("StartForHost: %v", err)
	}
	_, err = env.svcs.Recording.Start(env.ctx, room.ID)
	wantErr(t, err, ErrAlreadyRecording)

	_, err = env.svcs.Recording.ReportProgress(env.ctx, rec.ID, 10)
	wantErr(t, err, ErrInvalidTransition)

	env.clock.Advance(90 * time.Second)
	stopped, err := env.svcs.Recording.StopForHost(env.ctx, env.host, room.ID)
	if err != nil {
		t.Fatalf("StopForHost: %v", err)
	}
	if stopped.Status != models.RecordingStatusProcessing || stopped.DurationSeconds != 90 || stopped.StoppedAt == nil {
		t.Fatalf("stopped = %s duration %d", stopped.Status, stopped.DurationSeconds)
	}
	again, err := env.svcs.Recording.Stop(env.ctx, room.ID)
	if err != nil || again.ID != rec.ID || again.Status != models.RecordingStatusProcessing {
		t.Fatalf("second Stop = %v, %v", again, err)
	}

	if _, err := env.svcs.Recording.ReportProgress(env.ctx, rec.ID, 40); err != nil {
		t.Fatalf("ReportProgress: %v", err)
	}
	got, err := env.svcs.Recording.ReportProgress(env.ctx, rec.ID, 20)
	if err != nil || got.Progress != 40 {
		t.Fatalf("progress went backwards: %v, %v", got, err)
	}
	_, err = env.svcs.Recording.ReportProgress(env.ctx, rec.ID, 101)
	wantErr(t, err, ErrInvalidArgument)

	_, err = env.svcs.Recording.PlaybackURL(env.ctx, env.host, rec.ID)
	wantErr(t, err, ErrInvalidTransition)

	done, err := env.svcs.Recording.ReportOutcome(env.ctx, rec.ID, Outcome{
		Status:     models.RecordingStatusCompleted,
		StorageKey: "rooms/" + room.ID.String() + "/final.mp4",
		Quality:    "720p",
		Details:    map[string]interface{}{"size_bytes": 1024},
	})
	if err != nil {
		t.Fatalf("ReportOutcome: %v", err)
	}
	if done.Status != models.RecordingStatusCompleted || done.Progress != 100 || done.Quality != "720p" || done.Format != "mp4" {
		t.Fatalf("completed = %+v", done)
	}

	url, err := env.svcs.Recording.PlaybackURL(env.ctx, env.host, rec.ID)
	if err != nil || !strings.Contains(url, "/recordings/rooms/") {
		t.Fatalf("PlaybackURL = %q, %v", url, err)
	}

	env.svcs.Wait()
	if len(env.pipeline.handed) != 1 {
		t.Fatalf("pipeline hand-offs = %d, want 1", len(env.pipeline.handed))
	}
	if len(env.events.ofType(EventRecordingCompleted)) != 1 {
		t.Fatal("recording.completed not published")
	}
}

func TestRecordingOutcomeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	room := liveRoom(t, env, true)
	rec, err := env.svcs.Recording.Stop(env.ctx, room.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	completed := Outcome{Status: models.RecordingStatusCompleted, StorageKey: "k1"}

	first, err := env.svcs.Recording.ReportOutcome(env.ctx, rec.ID, completed)
	if err != nil {
		t.Fatalf("ReportOutcome: %v", err)
	}
	env.clock.Advance(time.Minute)
	dup, err := env.svcs.Recording.ReportOutcome(env.ctx, rec.ID, Outcome{Status: models.RecordingStatusCompleted, StorageKey: "k2"})
	if err != nil {
		t.Fatalf("duplicate ReportOutcome: %v", err)
	}
	if dup.StorageKey != "k1" || !dup.CompletedAt.Equal(*first.CompletedAt) {
		t.Fatalf("duplicate outcome changed the row: %+v", dup)
	}
	if n := len(env.events.ofType(EventRecordingCompleted)); n != 1 {
		t.Fatalf("recording.completed published %d times", n)
	}

	_, err = env.svcs.Recording.ReportOutcome(env.ctx, rec.ID, Outcome{Status: models.RecordingStatusFailed, Reason: "late"})
	wantErr(t, err, ErrInvalidTransition)
	_, err = env.svcs.Recording.ReportOutcome(env.ctx, rec.ID, Outcome{Status: models.RecordingStatusProcessing})
	wantErr(t, err, ErrInvalidArgument)
}

func TestRecordingFailedOutcome(t *testing.T) {
	env := newTestEnv(t)
	room := liveRoom(t, env, true)
	rec, err := env.svcs.Recording.Stop(env.ctx, room.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	failed, err := env.svcs.Recording.ReportOutcome(env.ctx, rec.ID, Outcome{Status: models.RecordingStatusFailed, Reason: "encoder crashed"})
	if err != nil {
		t.Fatalf("ReportOutcome: %v", err)
	}
	if failed.FailureReason != "encoder crashed" || failed.Progress == 100 {
		t.Fatalf("failed = %+v", failed)
	}
	if _, err := env.svcs.Recording.Start(env.ctx, room.ID); err != nil {
		t.Fatalf("new recording after failure: %v", err)
	}
}

func TestRecordingDeleteAndPlaybackPermissions(t *testing.T) {
	env := newTestEnv(t)
	room := liveRoom(t, env, true)
	guest := env.join(env.invite(room, "guest@example.com", models.RoleGuest))
	rec, err := env.svcs.Recording.Stop(env.ctx, room.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	_, err = env.svcs.Recording.Delete(env.ctx, env.host, rec.ID)
	wantErr(t, err, ErrInvalidTransition)

	if _, err := env.svcs.Recording.ReportOutcome(env.ctx, rec.ID, Outcome{Status: models.RecordingStatusCompleted, StorageKey: "k"}); err != nil {
		t.Fatalf("ReportOutcome: %v", err)
	}

	_, err = env.svcs.Recording.PlaybackURL(env.ctx, guestActor(guest), rec.ID)
	wantErr(t, err, ErrUnauthorized)
	_, err = env.svcs.Recording.ListByRoom(env.ctx, guestActor(guest), room.ID)
	wantErr(t, err, ErrUnauthorized)
	_, err = env.svcs.Recording.Delete(env.ctx, guestActor(guest), rec.ID)
	wantErr(t, err, ErrUnauthorized)

	deleted, err := env.svcs.Recording.Delete(env.ctx, env.host, rec.ID)
	if err != nil || deleted.Status != models.RecordingStatusDeleted || deleted.DeletedAt == nil {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	if _, err := env.svcs.Recording.Delete(env.ctx, env.host, rec.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	// 管線晚到的完成通知不會讓刪除的錄影復活
	late, err := env.svcs.Recording.ReportOutcome(env.ctx, rec.ID, Outcome{Status: models.RecordingStatusCompleted, StorageKey: "k"})
	if err != nil || late.Status != models.RecordingStatusDeleted {
		t.Fatalf("late outcome = %v, %v", late, err)
	}
	_, err = env.svcs.Recording.PlaybackURL(env.ctx, env.host, rec.ID)
	wantErr(t, err, ErrInvalidTransition)

	_, err = env.svcs.Recording.ReportProgress(env.ctx, uuid.New(), 5)
	wantErr(t, err, ErrNotFound)
}

func TestRoomEndStopsRecording(t *testing.T) {
	env := newTestEnv(t)
	room := liveRoom(t, env, true)

	if _, err := env.svcs.Room.End(env.ctx, room.ID, env.host); err != nil {
		t.Fatalf("End: %v", err)
	}
	env.svcs.Wait()

	recs, _ := env.repos.Recording.ListByRoom(env.ctx, room.ID)
	if len(recs) != 1 || recs[0].Status != models.RecordingStatusProcessing {
		t.Fatalf("recordings after end = %+v", recs)
	}
	if len(env.pipeline.handed) != 1 {
		t.Fatalf("pipeline hand-offs = %d", len(env.pipeline.handed))
	}
}
