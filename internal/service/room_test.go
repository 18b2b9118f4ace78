package service

import (
	"errors"
	"testing"
	"time"

	"interview_room/internal/models"
)

func TestRoomCreateDefaults(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(models.RoomSettingsPatch{GuestApprovalRequired: boolPtr(true)}, 0)

	if room.Status != models.RoomStatusScheduled {
		t.Fatalf("status = %s, want scheduled", room.Status)
	}
	if room.MaxGuests != env.cfg.Rooms.Defaults.MaxGuests {
		t.Fatalf("max_guests = %d, want default %d", room.MaxGuests, env.cfg.Rooms.Defaults.MaxGuests)
	}
	if !room.Settings.GuestApprovalRequired || !room.Settings.ChatEnabled || room.Settings.RecordingEnabled {
		t.Fatalf("settings = %+v", room.Settings)
	}
	if len(room.RoomCode) != 11 || room.StreamKey == "" {
		t.Fatalf("room code %q / stream key %q not generated", room.RoomCode, room.StreamKey)
	}

	got, err := env.svcs.Room.GetByCode(env.ctx, " "+room.RoomCode+" ")
	if err != nil || got.ID != room.ID {
		t.Fatalf("GetByCode = %v, %v", got, err)
	}
}

func TestRoomCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svcs.Room.Create(env.ctx, env.host, CreateRoomInput{Title: "  "})
	wantErr(t, err, ErrInvalidArgument)

	_, err = env.svcs.Room.Create(env.ctx, env.host, CreateRoomInput{Title: "t", MaxGuests: -1})
	wantErr(t, err, ErrInvalidArgument)

	_, err = env.svcs.Room.Create(env.ctx, Actor{}, CreateRoomInput{Title: "t"})
	wantErr(t, err, ErrUnauthorized)
}

func TestRoomTransitionsFollowLifecycle(t *testing.T) {
	env := newTestEnv(t)

	room := env.createRoom(models.RoomSettingsPatch{}, 2)
	_, err := env.svcs.Room.GoLive(env.ctx, room.ID, env.host)
	wantErr(t, err, ErrInvalidTransition)
	_, err = env.svcs.Room.End(env.ctx, room.ID, env.host)
	wantErr(t, err, ErrInvalidTransition)

	if _, err := env.svcs.Room.Open(env.ctx, room.ID, env.host); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = env.svcs.Room.Open(env.ctx, room.ID, env.host)
	wantErr(t, err, ErrInvalidTransition)

	live, err := env.svcs.Room.GoLive(env.ctx, room.ID, env.host)
	if err != nil {
		t.Fatalf("GoLive: %v", err)
	}
	if live.Status != models.RoomStatusLive || live.ActualStart == nil {
		t.Fatalf("room after GoLive = %s, actual_start %v", live.Status, live.ActualStart)
	}
	if live.Media.SessionID == "" {
		t.Fatal("media endpoints not stored on go live")
	}
	_, err = env.svcs.Room.Cancel(env.ctx, room.ID, env.host)
	wantErr(t, err, ErrInvalidTransition)

	ended, err := env.svcs.Room.End(env.ctx, room.ID, env.host)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.ActualEnd == nil || ended.ArchivedAt == nil {
		t.Fatalf("ended room missing timestamps: %+v", ended)
	}
	_, err = env.svcs.Room.Open(env.ctx, room.ID, env.host)
	wantErr(t, err, ErrInvalidTransition)
}

func TestRoomOpenByNonHost(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(models.RoomSettingsPatch{}, 2)

	_, err := env.svcs.Room.Open(env.ctx, room.ID, Actor{UserID: "someone-else"})
	if !errors.Is(err, ErrInvalidTransition) || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want InvalidTransition and Unauthorized", err)
	}
	_, err = env.svcs.Room.Cancel(env.ctx, room.ID, Actor{UserID: "someone-else"})
	wantErr(t, err, ErrUnauthorized)
}

func TestRoomEndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	room := env.openRoom(models.RoomSettingsPatch{}, 2)
	guest := env.join(env.invite(room, "guest@example.com", models.RoleGuest))

	first, err := env.svcs.Room.End(env.ctx, room.ID, env.host)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	env.clock.Advance(5 * time.Minute)
	second, err := env.svcs.Room.End(env.ctx, room.ID, env.host)
	if err != nil {
		t.Fatalf("second End: %v", err)
	}
	if !second.ActualEnd.Equal(*first.ActualEnd) {
		t.Fatalf("second End moved actual_end: %v -> %v", first.ActualEnd, second.ActualEnd)
	}
	if n := len(env.events.ofType(EventRoomEnded)); n != 1 {
		t.Fatalf("room.ended published %d times, want 1", n)
	}

	p := env.participant(guest.ID)
	if p.Status != models.ParticipantStatusLeft || p.LeaveReason != models.LeaveReasonRoomEnded {
		t.Fatalf("guest after End = %s/%s", p.Status, p.LeaveReason)
	}
}

func TestRoomEndAfterCancel(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(models.RoomSettingsPatch{}, 2)
	if _, err := env.svcs.Room.Cancel(env.ctx, room.ID, env.host); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	_, err := env.svcs.Room.End(env.ctx, room.ID, env.host)
	wantErr(t, err, ErrInvalidTransition)
}

func TestRoomCancelResolvesInvitationsAndParticipants(t *testing.T) {
	env := newTestEnv(t)
	room := env.openRoom(models.RoomSettingsPatch{}, 2)
	pending := env.invite(room, "pending@example.com", models.RoleGuest)
	guest := env.join(env.invite(room, "joined@example.com", models.RoleGuest))

	cancelled, err := env.svcs.Room.Cancel(env.ctx, room.ID, env.host)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != models.RoomStatusCancelled || cancelled.ArchivedAt == nil {
		t.Fatalf("room = %s archived %v", cancelled.Status, cancelled.ArchivedAt)
	}
	if inv := env.invitation(pending.ID); inv.Status != models.InvitationStatusCancelled {
		t.Fatalf("pending invitation = %s, want cancelled", inv.Status)
	}
	p := env.participant(guest.ID)
	if p.Status != models.ParticipantStatusLeft || p.LeaveReason != models.LeaveReasonRoomCancelled {
		t.Fatalf("participant = %s/%s", p.Status, p.LeaveReason)
	}
	_, err = env.svcs.Invitation.Resolve(env.ctx, pending.JoinCode)
	wantErr(t, err, ErrAlreadyResolved)
}

func TestRoomGoLiveStartsRecording(t *testing.T) {
	env := newTestEnv(t)
	room := env.openRoom(models.RoomSettingsPatch{RecordingEnabled: boolPtr(true)}, 2)

	if _, err := env.svcs.Room.GoLive(env.ctx, room.ID, env.host); err != nil {
		t.Fatalf("GoLive: %v", err)
	}
	rec, err := env.repos.Recording.FindActiveByRoom(env.ctx, room.ID)
	if err != nil {
		t.Fatalf("no active recording after go live: %v", err)
	}
	if rec.Status != models.RecordingStatusRecording || rec.Format != "mp4" || rec.Quality != "1080p" {
		t.Fatalf("recording = %+v", rec)
	}
}
