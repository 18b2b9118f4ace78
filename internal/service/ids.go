package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// 去掉 0/O/1/I/L 這類容易看錯的字元
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	roomCodeLength = 9
	joinCodeLength = 8
	secretBytes    = 32
)

// Generator 產生房間代碼、串流金鑰、邀請代碼與邀請 token
type Generator struct {
	maxAttempts int
}

func NewGenerator(maxAttempts int) *Generator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Generator{maxAttempts: maxAttempts}
}

// RoomCode 格式為 XXX-XXX-XXX
func (g *Generator) RoomCode() (string, error) {
	raw, err := randomCode(roomCodeLength)
	if err != nil {
		return "", err
	}
	return raw[0:3] + "-" + raw[3:6] + "-" + raw[6:9], nil
}

func (g *Generator) JoinCode() (string, error) {
	return randomCode(joinCodeLength)
}

func (g *Generator) StreamKey() (string, error) {
	secret, err := randomSecret()
	if err != nil {
		return "", err
	}
	return "sk_" + secret, nil
}

func (g *Generator) InvitationToken() (string, error) {
	return randomSecret()
}

// Retry 重複執行 fn 直到成功；fn 回傳 retry=true 代表撞到唯一性衝突
func (g *Generator) Retry(fn func(attempt int) (retry bool, err error)) error {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		retry, err := fn(attempt)
		if !retry {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", g.maxAttempts, ErrExhaustedRetries)
}

func randomCode(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

func randomSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
