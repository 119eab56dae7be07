package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	CORSAllowOrigins       string
	BodyLimitKB            int
	DatabaseURL            string
	AutoMigrate            bool
	RedisURL               string
	NATSURL                string
	RealtimeChannel        string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	ChatEditWindow         time.Duration
	ChatVoiceMaxKB         int
	ChatTypingRPS          float64
	ChatSendRateLimit      int
	ChatSendRateWindow     time.Duration
	ChatWebsocketKeepAlive time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryEnabled reports whether voice notes should be pushed to Cloudinary.
func (c Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STOREFRONT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Storefront API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("http.cors_origins", "*")
	v.SetDefault("http.body_limit_kb", 4096)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("realtime.channel", "storefront")
	v.SetDefault("cloudinary.folder", "storefront/chat-voice")
	v.SetDefault("chat.edit_window", "1m")
	v.SetDefault("chat.voice_max_kb", 2048)
	v.SetDefault("chat.typing_rps", 1.0)
	v.SetDefault("chat.send_rate_limit", 30)
	v.SetDefault("chat.send_rate_window", "1m")
	v.SetDefault("chat.ws_keepalive", "30s")

	editWindow, err := parseDuration(v, "chat.edit_window", time.Minute)
	if err != nil {
		return Config{}, err
	}

	sendWindow, err := parseDuration(v, "chat.send_rate_window", time.Minute)
	if err != nil {
		return Config{}, err
	}

	keepAlive, err := parseDuration(v, "chat.ws_keepalive", 30*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		CORSAllowOrigins:       v.GetString("http.cors_origins"),
		BodyLimitKB:            v.GetInt("http.body_limit_kb"),
		DatabaseURL:            v.GetString("database.url"),
		AutoMigrate:            v.GetBool("database.auto_migrate"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		RealtimeChannel:        v.GetString("realtime.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		ChatEditWindow:         editWindow,
		ChatVoiceMaxKB:         v.GetInt("chat.voice_max_kb"),
		ChatTypingRPS:          v.GetFloat64("chat.typing_rps"),
		ChatSendRateLimit:      v.GetInt("chat.send_rate_limit"),
		ChatSendRateWindow:     sendWindow,
		ChatWebsocketKeepAlive: keepAlive,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.ChatVoiceMaxKB <= 0 {
		cfg.ChatVoiceMaxKB = 2048
	}

	if cfg.BodyLimitKB < cfg.ChatVoiceMaxKB*2 {
		// base64 voice payloads inflate by a third; leave room for the JSON envelope.
		cfg.BodyLimitKB = cfg.ChatVoiceMaxKB * 2
	}

	if cfg.ChatTypingRPS <= 0 {
		cfg.ChatTypingRPS = 1
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return fallback, nil
	}

	return parsed, nil
}
