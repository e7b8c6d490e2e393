package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Version はボットのバージョン。
const Version = "2.0.0"

// UserAgent は上流サービスへのリクエストに付与するUser-Agent。
const UserAgent = "MyAnimeBot Discord Bot v" + Version

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Discord
	DiscordToken  string
	CommandPrefix string

	// Services
	MALEnabled     bool
	AniListEnabled bool

	// Reconciliation
	FreshnessWindow      time.Duration
	MALRequestInterval   time.Duration
	MALCycleInterval     time.Duration
	AniListPageInterval  time.Duration
	AniListCycleInterval time.Duration
	AniListPageSize      int
	FetchTimeout         time.Duration

	// Thumbnail refresh
	ThumbnailRefreshInterval time.Duration
	ThumbnailCheckInterval   time.Duration
	ThumbnailMaxPerCycle     int

	// Presence
	PresenceInterval time.Duration

	// Cleanup
	FeedRetentionDays int

	// Rate Limit
	CommandRateLimit int

	// Server
	ServerPort string

	// Icons（空文字の場合は既定のアイコンを使う）
	IconBot     string
	IconMAL     string
	IconAniList string

	// Logging
	LogLevel string
}

// LoadDotEnv は .env ファイルが存在すれば環境変数に読み込む。
// 既に設定されている環境変数は上書きしない。
func LoadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf(".envファイルの読み込みに失敗しました: %w", err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	if cfg.DiscordToken == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.CommandPrefix = getEnvString("COMMAND_PREFIX", "!mab")
	cfg.MALEnabled = getEnvBool("MAL_ENABLED", true)
	cfg.AniListEnabled = getEnvBool("ANILIST_ENABLED", true)
	cfg.FreshnessWindow = getEnvDuration("FRESHNESS_WINDOW", 2*time.Hour)
	cfg.MALRequestInterval = getEnvDuration("MAL_REQUEST_INTERVAL", 2*time.Second)
	cfg.MALCycleInterval = getEnvDuration("MAL_CYCLE_INTERVAL", time.Minute)
	cfg.AniListPageInterval = getEnvDuration("ANILIST_PAGE_INTERVAL", time.Second)
	cfg.AniListCycleInterval = getEnvDuration("ANILIST_CYCLE_INTERVAL", time.Minute)
	cfg.AniListPageSize = getEnvInt("ANILIST_PAGE_SIZE", 5)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 5*time.Second)
	cfg.ThumbnailRefreshInterval = getEnvDuration("THUMBNAIL_REFRESH_INTERVAL", 12*time.Hour)
	cfg.ThumbnailCheckInterval = getEnvDuration("THUMBNAIL_CHECK_INTERVAL", 3*time.Second)
	cfg.ThumbnailMaxPerCycle = getEnvInt("THUMBNAIL_MAX_PER_CYCLE", 500)
	cfg.PresenceInterval = getEnvDuration("PRESENCE_INTERVAL", time.Minute)
	cfg.FeedRetentionDays = getEnvInt("FEED_RETENTION_DAYS", 365)
	cfg.CommandRateLimit = getEnvInt("COMMAND_RATE_LIMIT", 5)
	cfg.ServerPort = getEnvString("PORT", "15200")
	cfg.IconBot = getEnvString("ICON_BOT", "")
	cfg.IconMAL = getEnvString("ICON_MAL", "")
	cfg.IconAniList = getEnvString("ICON_ANILIST", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
