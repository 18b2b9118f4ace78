package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 是服務的完整設定，對應 config.yaml 的結構
type Config struct {
	Server      ServerConfig     `mapstructure:"server"`
	DB          DBConfig         `mapstructure:"db"`
	Store       string           `mapstructure:"store"` // "postgres" 或 "memory"
	Log         LogConfig        `mapstructure:"log"`
	Auth        AuthConfig       `mapstructure:"auth"`
	NATS        NATSConfig       `mapstructure:"nats"`
	S3          S3Config         `mapstructure:"s3"`
	IDs         IDConfig         `mapstructure:"ids"`
	Invitations InvitationConfig `mapstructure:"invitations"`
	Sessions    SessionConfig    `mapstructure:"sessions"`
	Rooms       RoomConfig       `mapstructure:"rooms"`
	Chat        ChatConfig       `mapstructure:"chat"`
	Sweeper     SweeperConfig    `mapstructure:"sweeper"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	CORS        CORSConfig       `mapstructure:"cors"`
	Recordings  RecordingConfig  `mapstructure:"recordings"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

// DSN 組出 gorm postgres driver 使用的連線字串
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode, c.TimeZone)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" 或 "console"
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	ServiceToken string        `mapstructure:"service_token"` // 媒體服務、錄影管線回呼使用
	SessionTTL   time.Duration `mapstructure:"session_ttl"`   // 來賓連線 token 有效期
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type S3Config struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Region         string        `mapstructure:"region"`
	AccessKey      string        `mapstructure:"access_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	Bucket         string        `mapstructure:"bucket"`
	ForcePathStyle bool          `mapstructure:"force_path_style"`
	PresignTTL     time.Duration `mapstructure:"presign_ttl"`
}

type IDConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

type InvitationConfig struct {
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	MaxTTL          time.Duration `mapstructure:"max_ttl"`
	MaxJoinAttempts int           `mapstructure:"max_join_attempts"`
	EmailTemplate   string        `mapstructure:"email_template"`
}

type SessionConfig struct {
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace"`
}

type RoomConfig struct {
	Defaults RoomDefaults `mapstructure:"defaults"`
}

// RoomDefaults 建立房間時未指定的設定值
type RoomDefaults struct {
	MaxGuests             int  `mapstructure:"max_guests"`
	RecordingEnabled      bool `mapstructure:"recording_enabled"`
	ChatEnabled           bool `mapstructure:"chat_enabled"`
	WaitingRoomEnabled    bool `mapstructure:"waiting_room_enabled"`
	GuestApprovalRequired bool `mapstructure:"guest_approval_required"`
}

type ChatConfig struct {
	MaxLength int `mapstructure:"max_length"`
}

type SweeperConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type RateLimitConfig struct {
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
	TTL               time.Duration `mapstructure:"ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RecordingConfig struct {
	Format  string `mapstructure:"format"`
	Quality string `mapstructure:"quality"`
}

// SetDefaults 註冊所有設定的預設值，config.yaml 或環境變數可以覆蓋
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("store", "postgres")

	// 沒有預設值的 key 也要註冊，AutomaticEnv 才會在 Unmarshal 時套用環境變數
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.name", "interview_room")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("db.password", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.service_token", "")
	v.SetDefault("auth.session_ttl", 12*time.Hour)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "interview")
	v.SetDefault("nats.request_timeout", 3*time.Second)

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.force_path_style", true)
	v.SetDefault("s3.presign_ttl", 15*time.Minute)

	v.SetDefault("ids.max_attempts", 5)

	v.SetDefault("invitations.default_ttl", 72*time.Hour)
	v.SetDefault("invitations.max_ttl", 30*24*time.Hour)
	v.SetDefault("invitations.max_join_attempts", 10)
	v.SetDefault("invitations.email_template", "interview_invitation")

	v.SetDefault("sessions.disconnect_grace", 2*time.Minute)

	v.SetDefault("rooms.defaults.max_guests", 4)
	v.SetDefault("rooms.defaults.recording_enabled", true)
	v.SetDefault("rooms.defaults.chat_enabled", true)
	v.SetDefault("rooms.defaults.waiting_room_enabled", true)
	v.SetDefault("rooms.defaults.guest_approval_required", false)

	v.SetDefault("chat.max_length", 2000)

	v.SetDefault("sweeper.interval", 30*time.Second)

	v.SetDefault("rate_limit.requests_per_minute", 30)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.ttl", 5*time.Minute)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})

	v.SetDefault("recordings.format", "mp4")
	v.SetDefault("recordings.quality", "1080p")
}

// Load 讀取設定檔，path 為空時從 ./pkg/config 尋找 config.yaml
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./pkg/config")
		v.AddConfigPath(".")
	}

	// INTERVIEW_DB_HOST 會覆蓋 db.host
	v.SetEnvPrefix("interview")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 檢查設定值之間的約束
func (c *Config) Validate() error {
	switch c.Store {
	case "postgres", "memory":
	default:
		return fmt.Errorf("store must be postgres or memory, got %q", c.Store)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.IDs.MaxAttempts < 1 {
		return errors.New("ids.max_attempts must be at least 1")
	}
	if c.Invitations.DefaultTTL <= 0 {
		return errors.New("invitations.default_ttl must be positive")
	}
	if c.Invitations.MaxTTL < c.Invitations.DefaultTTL {
		return errors.New("invitations.max_ttl must not be shorter than invitations.default_ttl")
	}
	if c.Invitations.MaxJoinAttempts < 1 {
		return errors.New("invitations.max_join_attempts must be at least 1")
	}
	if c.Sessions.DisconnectGrace < 0 {
		return errors.New("sessions.disconnect_grace must not be negative")
	}
	if c.Rooms.Defaults.MaxGuests < 1 {
		return errors.New("rooms.defaults.max_guests must be at least 1")
	}
	if c.Chat.MaxLength < 1 {
		return errors.New("chat.max_length must be at least 1")
	}
	if c.Sweeper.Interval <= 0 {
		return errors.New("sweeper.interval must be positive")
	}
	return nil
}
