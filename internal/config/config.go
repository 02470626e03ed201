package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// PlaceholderClientIDs are Twitch client ids that ship in examples and must
// never enable polling.
var PlaceholderClientIDs = []string{
	"esxex3tcfso8mnbauccx47o5calegp",
	"your_client_id",
	"your-twitch-client-id",
	"changeme",
}

type Config struct {
	DiscordToken   string        `yaml:"discord_token"`
	CommandPrefix  string        `yaml:"command_prefix"`
	Presence       string        `yaml:"presence"`
	DatabaseDriver string        `yaml:"database_driver"`
	DatabasePath   string        `yaml:"database_path"`
	LogLevel       string        `yaml:"log_level"`
	RetentionDays  int           `yaml:"retention_days"`
	Channels       ChannelConfig `yaml:"channels"`
	Twitch         TwitchConfig  `yaml:"twitch"`
	Music          MusicConfig   `yaml:"music"`
	Wiki           WikiConfig    `yaml:"wiki"`
	RateLimit      RateLimit     `yaml:"rate_limit"`
	Health         HealthConfig  `yaml:"health"`
	EmbedColors    EmbedColors   `yaml:"embed_colors"`
}

type ChannelConfig struct {
	Announcement string `yaml:"announcement"`
	Welcome      string `yaml:"welcome"`
	Roles        string `yaml:"roles"`
	ModLog       string `yaml:"mod_log"`
}

type TwitchConfig struct {
	Channel      string `yaml:"channel"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	PollSeconds  int    `yaml:"poll_seconds"`
	TokenURL     string `yaml:"token_url"`
	APIBaseURL   string `yaml:"api_base_url"`
}

type MusicConfig struct {
	YouTubeAPIKey string `yaml:"youtube_api_key"`
	YTDLPPath     string `yaml:"ytdlp_path"`
	Bitrate       int    `yaml:"bitrate"`
	MaxQueue      int    `yaml:"max_queue"`
}

type WikiConfig struct {
	BaseURL string `yaml:"base_url"`
}

type RateLimit struct {
	Commands      int `yaml:"commands"`
	WindowSeconds int `yaml:"window_seconds"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type EmbedColors struct {
	Brand   int `yaml:"brand"`
	Twitch  int `yaml:"twitch"`
	Action  int `yaml:"action"`
	Warning int `yaml:"warning"`
	Error   int `yaml:"error"`
}

func DefaultConfig() Config {
	return Config{
		CommandPrefix:  "!",
		Presence:       "Warframe | !help",
		DatabaseDriver: "sqlite",
		DatabasePath:   "data/kymera.db",
		LogLevel:       "info",
		RetentionDays:  90,
		Twitch: TwitchConfig{
			Channel:     "Kymera_Gaming",
			PollSeconds: 120,
			TokenURL:    "https://id.twitch.tv/oauth2/token",
			APIBaseURL:  "https://api.twitch.tv/helix",
		},
		Music: MusicConfig{
			YTDLPPath: "yt-dlp",
			Bitrate:   96,
			MaxQueue:  50,
		},
		Wiki:      WikiConfig{BaseURL: "https://warframe.fandom.com"},
		RateLimit: RateLimit{Commands: 5, WindowSeconds: 10},
		Health:    HealthConfig{Enabled: false, Addr: ":8080"},
		EmbedColors: EmbedColors{
			Brand:   0xDC143C,
			Twitch:  0x9146FF,
			Action:  0xF59E0B,
			Warning: 0xEF4444,
			Error:   0xF97316,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	// Hosted deployments inject the environment directly; .env is a local fallback.
	if os.Getenv("DISCORD_TOKEN") == "" {
		_ = godotenv.Load()
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	normalize(&cfg)

	return cfg, nil
}

// TwitchEnabled reports whether stream polling may start.
func (c Config) TwitchEnabled() bool {
	return IsUsableClientID(c.Twitch.ClientID)
}

func IsUsableClientID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, placeholder := range PlaceholderClientIDs {
		if strings.EqualFold(id, placeholder) {
			return false
		}
	}
	return true
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.CommandPrefix = envString("COMMAND_PREFIX", cfg.CommandPrefix)
	cfg.Presence = envString("PRESENCE", cfg.Presence)
	cfg.DatabaseDriver = envString("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Channels.Announcement = envString("ANNOUNCEMENT_CHANNEL_ID", cfg.Channels.Announcement)
	cfg.Channels.Welcome = envString("WELCOME_CHANNEL_ID", cfg.Channels.Welcome)
	cfg.Channels.Roles = envString("ROLE_CHANNEL_ID", cfg.Channels.Roles)
	cfg.Channels.ModLog = envString("MOD_LOG_CHANNEL_ID", cfg.Channels.ModLog)
	cfg.Twitch.Channel = envString("TWITCH_CHANNEL", cfg.Twitch.Channel)
	cfg.Twitch.ClientID = envString("TWITCH_CLIENT_ID", cfg.Twitch.ClientID)
	cfg.Twitch.ClientSecret = envString("TWITCH_CLIENT_SECRET", cfg.Twitch.ClientSecret)
	cfg.Twitch.PollSeconds = envInt("STREAM_POLL_SECONDS", cfg.Twitch.PollSeconds)
	cfg.Music.YouTubeAPIKey = envString("YOUTUBE_API_KEY", cfg.Music.YouTubeAPIKey)
	cfg.Music.YTDLPPath = envString("YTDLP_PATH", cfg.Music.YTDLPPath)
	cfg.Music.Bitrate = envInt("MUSIC_BITRATE", cfg.Music.Bitrate)
	cfg.Music.MaxQueue = envInt("MUSIC_MAX_QUEUE", cfg.Music.MaxQueue)
	cfg.Wiki.BaseURL = envString("WIKI_BASE_URL", cfg.Wiki.BaseURL)
	cfg.RateLimit.Commands = envInt("COMMAND_RATE_LIMIT", cfg.RateLimit.Commands)
	cfg.RateLimit.WindowSeconds = envInt("COMMAND_RATE_WINDOW_SECONDS", cfg.RateLimit.WindowSeconds)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.EmbedColors.Brand = envInt("EMBED_COLOR_BRAND", cfg.EmbedColors.Brand)
	cfg.EmbedColors.Twitch = envInt("EMBED_COLOR_TWITCH", cfg.EmbedColors.Twitch)
	cfg.EmbedColors.Action = envInt("EMBED_COLOR_ACTION", cfg.EmbedColors.Action)
	cfg.EmbedColors.Warning = envInt("EMBED_COLOR_WARNING", cfg.EmbedColors.Warning)
	cfg.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.EmbedColors.Error)
}

func normalize(cfg *Config) {
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	cfg.DatabaseDriver = normalizeDriver(cfg.DatabaseDriver)
	if cfg.Channels.ModLog == "" {
		cfg.Channels.ModLog = cfg.Channels.Welcome
	}
	if cfg.Channels.Roles == "" {
		cfg.Channels.Roles = cfg.Channels.Welcome
	}
	if cfg.Twitch.Channel == "" {
		cfg.Twitch.Channel = "Kymera_Gaming"
	}
	if cfg.Twitch.PollSeconds <= 0 {
		cfg.Twitch.PollSeconds = 120
	}
}

func normalizeDriver(value string) string {
	switch strings.ToLower(value) {
	case "pgx", "postgres", "postgresql":
		return "pgx"
	default:
		return "sqlite"
	}
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
