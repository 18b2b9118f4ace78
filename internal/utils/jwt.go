package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims 主持人的 token 只有 UserID；參與者 token 另外帶 RoomID 與 ParticipantID
type Claims struct {
	UserID        string `json:"user_id,omitempty"`
	Role          string `json:"role"`
	RoomID        string `json:"room_id,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
	jwt.StandardClaims
}

// TokenIssuer 以共用的 HS256 secret 簽發與驗證 token
type TokenIssuer struct {
	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, sessionTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), sessionTTL: sessionTTL, now: time.Now}
}

// GenerateToken 簽發使用者 token，給主持人與本機開發使用
func (t *TokenIssuer) GenerateToken(userID, role string, ttl time.Duration) (string, error) {
	return t.sign(Claims{UserID: userID, Role: role}, ttl)
}

// GenerateParticipantToken 來賓透過邀請加入後拿到的連線 token
func (t *TokenIssuer) GenerateParticipantToken(userID, role string, roomID, participantID uuid.UUID) (string, error) {
	return t.sign(Claims{
		UserID:        userID,
		Role:          role,
		RoomID:        roomID.String(),
		ParticipantID: participantID.String(),
	}, t.sessionTTL)
}

func (t *TokenIssuer) sign(claims Claims, ttl time.Duration) (string, error) {
	nowTime := t.now()
	claims.StandardClaims = jwt.StandardClaims{
		ExpiresAt: nowTime.Add(ttl).Unix(),
		IssuedAt:  nowTime.Unix(),
		Subject:   claims.UserID,
	}

	tokenClaims := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tokenClaims.SignedString(t.secret)
}

// ParseToken 解析和驗證 JWT token
func (t *TokenIssuer) ParseToken(token string) (*Claims, error) {
	tokenClaims, err := jwt.ParseWithClaims(token, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := tokenClaims.Claims.(*Claims)
	if !ok || !tokenClaims.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" && claims.ParticipantID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
