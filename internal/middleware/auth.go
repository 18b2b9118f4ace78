package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"interview_room/internal/service"
	"interview_room/internal/utils"
)

const actorKey = "actor"

// AuthMiddleware 驗證 Bearer token，並把呼叫者身份放進上下文
//
// 瀏覽器的 WebSocket 無法帶 header，所以也接受 ?token= 查詢參數
func AuthMiddleware(tokens *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if !(len(parts) == 2 && parts[0] == "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Authorization header format must be Bearer {token}",
					"code":  "unauthenticated",
				})
				return
			}
			token = parts[1]
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header is required",
				"code":  "unauthenticated",
			})
			return
		}

		claims, err := tokens.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
				"code":  "unauthenticated",
			})
			return
		}

		actor := service.Actor{UserID: claims.UserID, Role: claims.Role}
		if claims.ParticipantID != "" {
			participantID, err := uuid.Parse(claims.ParticipantID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid or expired token",
					"code":  "unauthenticated",
				})
				return
			}
			actor.ParticipantID = &participantID
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom 取出 AuthMiddleware 放入的身份，沒有時回傳零值
func ActorFrom(c *gin.Context) service.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(service.Actor); ok {
			return actor
		}
	}
	return service.Actor{}
}

// ServiceToken 保護媒體服務與錄影管線的回呼，未設定 token 時一律拒絕
func ServiceToken(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Service-Token")
		if expected == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid service token",
				"code":  "unauthenticated",
			})
			return
		}
		c.Set(actorKey, service.SystemActor)
		c.Next()
	}
}
