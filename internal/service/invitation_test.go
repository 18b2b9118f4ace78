package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"interview_room/internal/models"
)

func TestInvitationCreateSendsMail(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(models.RoomSettingsPatch{}, 2)

	inv, err := env.svcs.Invitation.Create(env.ctx, env.host, room.ID, CreateInvitationInput{
		Email:         "Ada Lovelace <ada@example.com>",
		CustomMessage: " see you soon ",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inv.Status != models.InvitationStatusPending || inv.Role != models.RoleGuest {
		t.Fatalf("invitation = %s/%s", inv.Status, inv.Role)
	}
	if inv.Email != "ada@example.com" || inv.DisplayName != "Ada Lovelace" || inv.CustomMessage != "see you soon" {
		t.Fatalf("invitation fields = %q %q %q", inv.Email, inv.DisplayName, inv.CustomMessage)
	}
	if !inv.ExpiresAt.Equal(env.clock.Now().Add(72 * time.Hour)) {
		t.Fatalf("expires_at = %v", inv.ExpiresAt)
	}
	if inv.MaxJoinAttempts != 3 {
		t.Fatalf("max_join_attempts = %d", inv.MaxJoinAttempts)
	}

	env.svcs.Wait()
	if env.mailer.count() != 1 {
		t.Fatalf("mails sent = %d, want 1", env.mailer.count())
	}
	if vars := env.mailer.sent[0]; vars["join_code"] != inv.JoinCode || vars["room_title"] != room.Title {
		t.Fatalf("mail vars = %v", vars)
	}
	if got := env.invitation(inv.ID); got.SentAt == nil {
		t.Fatal("sent_at not recorded after delivery")
	}
	if len(env.events.ofType(EventInvitationCreated)) != 1 {
		t.Fatal("invitation.created not published")
	}
}

func TestInvitationMailFailureLeavesUnsent(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = errors.New("smtp down")
	room := env.createRoom(models.RoomSettingsPatch{}, 2)

	inv := env.invite(room, "guest@example.com", models.RoleGuest)
	env.svcs.Wait()

	if got := env.invitation(inv.ID); got.SentAt != nil || got.Status != models.InvitationStatusPending {
		t.Fatalf("invitation after failed mail = %s sent_at %v", got.Status, got.SentAt)
	}
	if err := env.svcs.Invitation.MarkSent(env.ctx, inv.ID); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if got := env.invitation(inv.ID); got.SentAt == nil {
		t.Fatal("MarkSent did not record sent_at")
	}
}

func TestInvitationCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(models.RoomSettingsPatch{}, 2)

	tests := []struct {
		name  string
		actor Actor
		in    CreateInvitationInput
		want  error
	}{
		{"bad email", env.host, CreateInvitationInput{Email: "not-an-email"}, ErrInvalidArgument},
		{"host role", env.host, CreateInvitationInput{Email: "a@example.com", Role: models.RoleHost}, ErrInvalidArgument},
		{"unknown role", env.host, CreateInvitationInput{Email: "a@example.com", Role: "judge"}, ErrInvalidArgument},
		{"negative ttl", env.host, CreateInvitationInput{Email: "a@example.com", TTL: -time.Hour}, ErrInvalidArgument},
		{"not a moderator", Actor{UserID: "stranger"}, CreateInvitationInput{Email: "a@example.com"}, ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svcs.Invitation.Create(env.ctx, tt.actor, room.ID, tt.in)
			wantErr(t, err, tt.want)
		})
	}
}

func TestInvitationTTLIsCapped(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(models.RoomSettingsPatch{}, 2)

	inv, err := env.svcs.Invitation.Create(env.ctx, env.host, room.ID, CreateInvitationInput{
		Email: "a@example.com",
		TTL:   90 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if want := env.clock.Now().Add(env.cfg.Invitations.MaxTTL); !inv.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", inv.ExpiresAt, want)
	}
}

func TestInvitationResolveIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(models.RoomSettingsPatch{}, 2)
	inv := env.invite(room, "a@example.com", models.RoleGuest)

	for _, code := range []string{inv.JoinCode, strings.ToLower(inv.JoinCode), inv.Token} {
		got, err := env.svcs.Invitation.Resolve(env.ctx, code)
		if err != nil || got.ID != inv.ID {
			t.Fatalf("Resolve(%q) = %v, %v", code, got, err)
		}
	}
	_, err := env.svcs.Invitation.Resolve(env.ctx, "ZZZZZZZZ")
	wantErr(t, err, ErrNotFound)
}

func TestInvitationExpiresAfterTTL(t *testing.T) {
	env := newTestEnv(t)
	room := env.openRoom(models.RoomSettingsPatch{}, 2)
	inv := env.invite(room, "late@example.com", models.RoleGuest)

	env.clock.Advance(72*time.Hour + time.Second)

	_, err := env.svcs.Invitation.Resolve(env.ctx, inv.JoinCode)
	wantErr(t, err, ErrExpired)
	_, err = env.svcs.Admission.Accept(env.ctx, inv.ID, JoinInput{})
	wantErr(t, err, ErrExpired)

	if got := env.invitation(inv.ID); got.Status != models.InvitationStatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
	if ps, _ := env.repos.Participant.ListByRoom(env.ctx, room.ID); len(ps) != 0 {
		t.Fatalf("expired invitation created %d participants", len(ps))
	}
}

func TestInvitationAttemptsFlagReviewWithoutExpiring(t *testing.T) {
	env := newTestEnv(t)
	// 房間尚未開啟，每次加入都會失敗但仍計入嘗試次數
	room := env.createRoom(models.RoomSettingsPatch{}, 2)
	inv := env.invite(room, "eager@example.com", models.RoleGuest)

	for i := 1; i <= 5; i++ {
		_, err := env.svcs.Admission.JoinWithInvitation(env.ctx, inv.JoinCode, JoinInput{})
		wantErr(t, err, ErrInvalidTransition)

		got := env.invitation(inv.ID)
		if got.JoinAttempts != i {
			t.Fatalf("attempt %d: join_attempts = %d", i, got.JoinAttempts)
		}
		if got.Status != models.InvitationStatusPending {
			t.Fatalf("attempt %d: status = %s, want pending", i, got.Status)
		}
		if wantReview := i > inv.MaxJoinAttempts; got.NeedsReview != wantReview {
			t.Fatalf("attempt %d: needs_review = %v, want %v", i, got.NeedsReview, wantReview)
		}
	}
	if n := len(env.events.ofType(EventInvitationReview)); n != 1 {
		t.Fatalf("review events = %d, want 1", n)
	}

	if _, err := env.svcs.Room.Open(env.ctx, room.ID, env.host); err != nil {
		t.Fatalf("Open: %v", err)
	}
	p := env.join(inv)
	if p.Status != models.ParticipantStatusConnected {
		t.Fatalf("flagged invitation could not join: %s", p.Status)
	}
}

func TestInvitationDeclineIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	room := env.openRoom(models.RoomSettingsPatch{}, 2)
	inv := env.invite(room, "no@example.com", models.RoleGuest)

	declined, err := env.svcs.Invitation.Decline(env.ctx, inv.Token)
	if err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if declined.Status != models.InvitationStatusDeclined || declined.RespondedAt == nil {
		t.Fatalf("declined = %s responded %v", declined.Status, declined.RespondedAt)
	}

	_, err = env.svcs.Invitation.Decline(env.ctx, inv.Token)
	wantErr(t, err, ErrAlreadyResolved)
	_, err = env.svcs.Admission.JoinWithInvitation(env.ctx, inv.JoinCode, JoinInput{})
	wantErr(t, err, ErrAlreadyResolved)
	_, err = env.svcs.Invitation.Cancel(env.ctx, env.host, inv.ID)
	wantErr(t, err, ErrAlreadyResolved)
}

func TestInvitationRegenerate(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(models.RoomSettingsPatch{}, 2)
	inv := env.invite(room, "again@example.com", models.RoleGuest)
	for i := 0; i < 2; i++ {
		env.svcs.Admission.JoinWithInvitation(env.ctx, inv.JoinCode, JoinInput{})
	}
	env.clock.Advance(73 * time.Hour)
	_, err := env.svcs.Invitation.Resolve(env.ctx, inv.JoinCode)
	wantErr(t, err, ErrExpired)

	fresh, err := env.svcs.Invitation.Regenerate(env.ctx, env.host, inv.ID, 0)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if fresh.Status != models.InvitationStatusPending || fresh.JoinAttempts != 0 || fresh.Regenerations != 1 {
		t.Fatalf("regenerated = %s attempts %d regenerations %d", fresh.Status, fresh.JoinAttempts, fresh.Regenerations)
	}
	if fresh.JoinCode == inv.JoinCode || fresh.Token == inv.Token {
		t.Fatal("codes were not rotated")
	}
	_, err = env.svcs.Invitation.Resolve(env.ctx, inv.JoinCode)
	wantErr(t, err, ErrNotFound)
	if got, err := env.svcs.Invitation.Resolve(env.ctx, fresh.JoinCode); err != nil || got.ID != inv.ID {
		t.Fatalf("Resolve new code = %v, %v", got, err)
	}

	env.svcs.Wait()
	if env.mailer.count() != 2 {
		t.Fatalf("mails sent = %d, want 2", env.mailer.count())
	}
}

func TestInvitationSweepExpired(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(models.RoomSettingsPatch{}, 2)
	short, err := env.svcs.Invitation.Create(env.ctx, env.host, room.ID, CreateInvitationInput{Email: "a@example.com", TTL: time.Hour})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	long := env.invite(room, "b@example.com", models.RoleGuest)

	env.clock.Advance(2 * time.Hour)
	n, err := env.svcs.Invitation.SweepExpired(env.ctx)
	if err != nil || n != 1 {
		t.Fatalf("SweepExpired = %d, %v; want 1", n, err)
	}
	if got := env.invitation(short.ID); got.Status != models.InvitationStatusExpired {
		t.Fatalf("short invitation = %s", got.Status)
	}
	if got := env.invitation(long.ID); got.Status != models.InvitationStatusPending {
		t.Fatalf("long invitation = %s", got.Status)
	}

	if n, _ := env.svcs.Invitation.SweepExpired(env.ctx); n != 0 {
		t.Fatalf("second sweep expired %d, want 0", n)
	}
}
