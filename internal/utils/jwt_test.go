package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	token, err := issuer.GenerateToken("host-1", "host", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := issuer.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != "host-1" || claims.Role != "host" || claims.ParticipantID != "" {
		t.Fatalf("claims = %+v", claims)
	}

	roomID, participantID := uuid.New(), uuid.New()
	token, err = issuer.GenerateParticipantToken("", "guest", roomID, participantID)
	if err != nil {
		t.Fatalf("GenerateParticipantToken: %v", err)
	}
	claims, err = issuer.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.ParticipantID != participantID.String() || claims.RoomID != roomID.String() {
		t.Fatalf("participant claims = %+v", claims)
	}
}

func TestParseTokenRejects(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	other := NewTokenIssuer("other-secret", time.Hour)

	forged, _ := other.GenerateToken("host-1", "host", time.Hour)
	if _, err := issuer.ParseToken(forged); err != ErrInvalidToken {
		t.Fatalf("forged token err = %v", err)
	}

	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := issuer.GenerateToken("host-1", "host", time.Hour)
	issuer.now = time.Now
	if _, err := issuer.ParseToken(expired); err != ErrInvalidToken {
		t.Fatalf("expired token err = %v", err)
	}

	if _, err := issuer.ParseToken("not-a-jwt"); err != ErrInvalidToken {
		t.Fatalf("garbage token err = %v", err)
	}
	anonymous, _ := issuer.GenerateToken("", "guest", time.Hour)
	if _, err := issuer.ParseToken(anonymous); err != ErrInvalidToken {
		t.Fatalf("token without subject err = %v", err)
	}
}
