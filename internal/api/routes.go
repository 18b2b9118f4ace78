package api

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"interview_room/internal/api/handlers"
	"interview_room/internal/middleware"
	"interview_room/internal/service"
	"interview_room/internal/utils"
	"interview_room/pkg/config"
)

// Options 路由需要的服務以外的依賴
type Options struct {
	Config   *config.Config
	Tokens   *utils.TokenIssuer
	Logger   *zap.Logger
	Gatherer prometheus.Gatherer // nil 時不掛 /metrics
}

// NewRouter 建立 gin engine 並掛上所有路由，ctx 結束時停止限流器的清理
func NewRouter(ctx context.Context, services *service.Services, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(opts.Logger))
	if origins := opts.Config.CORS.AllowedOrigins; len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
		}))
	}
	SetupRoutes(ctx, r, services, opts)
	return r
}

func SetupRoutes(ctx context.Context, r *gin.Engine, services *service.Services, opts Options) {
	cfg := opts.Config

	// 初始化 handlers
	roomHandler := handlers.NewRoomHandler(services.Room, services.Admission, opts.Tokens)
	invitationHandler := handlers.NewInvitationHandler(services.Invitation, services.Admission, services.Room, opts.Tokens)
	participantHandler := handlers.NewParticipantHandler(services.Participant, services.Admission)
	recordingHandler := handlers.NewRecordingHandler(services.Recording)
	chatHandler := handlers.NewChatHandler(services.Chat)
	wsHandler := handlers.NewWebSocketHandler(services.WebSocket, services.Room, services.Participant, cfg.CORS.AllowedOrigins)
	hookHandler := handlers.NewHookHandler(services.Participant, services.Recording)

	// API 路由群組
	api := r.Group("/api")

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "找不到該路徑",
			"code":  "not_found",
		})
	})

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	// 公開路由
	{
		// 基本的健康檢查
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})

		// 來賓以邀請碼加入，需要限流
		limiter := middleware.NewIPRateLimiter(ctx, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, cfg.RateLimit.TTL)
		public := api.Group("/invitations", middleware.RateLimitByIP(limiter))
		{
			public.GET("/resolve/:code", invitationHandler.ResolveInvitation)
			// :id 在這兩個端點是 join code 或 token
			public.POST("/:id/join", invitationHandler.JoinWithInvitation)
			public.POST("/:id/decline", invitationHandler.DeclineInvitation)
		}
	}

	// 需要驗證的路由
	authorized := api.Group("/")
	authorized.Use(middleware.AuthMiddleware(opts.Tokens))
	{
		rooms := authorized.Group("/rooms")
		{
			rooms.GET("", roomHandler.ListRooms)
			rooms.POST("", roomHandler.CreateRoom)
			rooms.GET("/by-code/:code", roomHandler.GetRoomByCode)
			rooms.GET("/:id", roomHandler.GetRoom)

			// 生命週期
			rooms.POST("/:id/open", roomHandler.OpenRoom)
			rooms.POST("/:id/live", roomHandler.GoLive)
			rooms.POST("/:id/end", roomHandler.EndRoom)
			rooms.POST("/:id/cancel", roomHandler.CancelRoom)
			rooms.POST("/:id/join", roomHandler.JoinRoom)

			rooms.POST("/:id/invitations", invitationHandler.CreateInvitation)
			rooms.GET("/:id/invitations", invitationHandler.ListInvitations)

			rooms.GET("/:id/participants", participantHandler.ListParticipants)
			rooms.GET("/:id/waiting", participantHandler.ListWaiting)

			rooms.POST("/:id/recordings/start", recordingHandler.StartRecording)
			rooms.POST("/:id/recordings/stop", recordingHandler.StopRecording)
			rooms.GET("/:id/recordings", recordingHandler.ListRecordings)

			rooms.POST("/:id/messages", chatHandler.PostMessage)
			rooms.GET("/:id/messages", chatHandler.ListMessages)

			// WebSocket 連接點
			rooms.GET("/:id/ws", wsHandler.HandleWebSocket)
		}

		invitations := authorized.Group("/invitations")
		{
			invitations.POST("/:id/cancel", invitationHandler.CancelInvitation)
			invitations.POST("/:id/regenerate", invitationHandler.RegenerateInvitation)
			invitations.POST("/:id/accept", invitationHandler.AcceptInvitation)
		}

		participants := authorized.Group("/participants")
		{
			participants.POST("/:id/approve", participantHandler.Approve)
			participants.POST("/:id/deny", participantHandler.Deny)
			participants.POST("/:id/kick", participantHandler.Kick)
			participants.POST("/:id/moderation", participantHandler.SetModeration)
			participants.POST("/:id/av", participantHandler.ToggleAV)
			participants.POST("/:id/leave", participantHandler.Leave)
		}

		recordings := authorized.Group("/recordings")
		{
			recordings.GET("/:id/playback", recordingHandler.PlaybackURL)
			recordings.DELETE("/:id", recordingHandler.DeleteRecording)
		}

		messages := authorized.Group("/messages")
		{
			messages.DELETE("/:id", chatHandler.DeleteMessage)
			messages.POST("/:id/flag", chatHandler.FlagMessage)
		}
	}

	// 媒體服務與錄影管線的回呼
	hooks := api.Group("/hooks", middleware.ServiceToken(cfg.Auth.ServiceToken))
	{
		hooks.POST("/participants/:id/disconnect", hookHandler.ParticipantDisconnected)
		hooks.POST("/recordings/:id/progress", hookHandler.RecordingProgress)
		hooks.POST("/recordings/:id/outcome", hookHandler.RecordingOutcome)
	}
}
