package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 結果ストアのバックエンド種別。
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

var (
	allowedWebSearchCounts    = []int{3, 5, 7, 10}
	allowedSearchContextSizes = []string{"low", "medium", "high"}
	allowedThemeModes         = []string{"light", "dark"}
	allowedStores             = []string{StorePostgres, StoreRedis, StoreMemory}

	hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// Colors はウィジェットのテーマカラーを保持する。
type Colors struct {
	Primary    string
	Success    string
	Warning    string
	Background string
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Fact checker
	Enabled           bool
	APIKey            string
	Model             string
	WebSearchCount    int
	SearchContextSize string
	UpstreamTimeout   time.Duration

	// Widget
	ThemeMode string
	Colors    Colors
	SiteName  string

	// Result store
	ResultStore        string
	DatabaseURL        string
	RedisURL           string
	CachePruneInterval time.Duration

	// Security
	AuthTokenSecret string
	AdminToken      string

	// Rate Limit (req/min per client IP)
	RateLimitGeneral int
	RateLimitVerify  int

	// Import
	FeedURLs           []string
	FetchTimeout       time.Duration
	FetchMaxSize       int64
	FetchMaxConcurrent int
	FetchInterval      time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv はカレントディレクトリの.envファイルを環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または列挙値・カラー値が不正な場合はエラーを返す。
// APIキーは必須としない（未設定時は検証リクエストがConfigErrorになる）。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.AuthTokenSecret = os.Getenv("AUTH_TOKEN_SECRET")
	if cfg.AuthTokenSecret == "" {
		missing = append(missing, "AUTH_TOKEN_SECRET")
	}

	cfg.ResultStore = strings.ToLower(getEnvString("RESULT_STORE", StorePostgres))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.ResultStore == StorePostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.ResultStore == StoreRedis && cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.Enabled = getEnvBool("FACTCHECK_ENABLED", true)
	cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.Model = getEnvString("OPENROUTER_MODEL", "openai/gpt-4")
	cfg.WebSearchCount = getEnvInt("WEB_SEARCH_COUNT", 5)
	cfg.SearchContextSize = strings.ToLower(getEnvString("SEARCH_CONTEXT_SIZE", "medium"))
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 180*time.Second)
	cfg.ThemeMode = strings.ToLower(getEnvString("THEME_MODE", "light"))
	cfg.Colors = Colors{
		Primary:    getEnvString("PRIMARY_COLOR", "#3b82f6"),
		Success:    getEnvString("SUCCESS_COLOR", "#059669"),
		Warning:    getEnvString("WARNING_COLOR", "#f59e0b"),
		Background: getEnvString("BACKGROUND_COLOR", "#f8fafc"),
	}
	cfg.SiteName = getEnvString("SITE_NAME", "Fact Checker")
	cfg.CachePruneInterval = getEnvDuration("CACHE_PRUNE_INTERVAL", 0)
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitVerify = getEnvInt("RATE_LIMIT_VERIFY", 10)
	cfg.FeedURLs = getEnvList("FEED_URLS")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 10)
	cfg.FetchInterval = getEnvDuration("FETCH_INTERVAL", 5*time.Minute)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.BaseURL)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は列挙値とカラー値を検証する。
func (c *Config) validate() error {
	var invalid []string

	if !slices.Contains(allowedWebSearchCounts, c.WebSearchCount) {
		invalid = append(invalid, fmt.Sprintf("WEB_SEARCH_COUNT=%d (allowed: %v)", c.WebSearchCount, allowedWebSearchCounts))
	}
	if !slices.Contains(allowedSearchContextSizes, c.SearchContextSize) {
		invalid = append(invalid, fmt.Sprintf("SEARCH_CONTEXT_SIZE=%s (allowed: %v)", c.SearchContextSize, allowedSearchContextSizes))
	}
	if !slices.Contains(allowedThemeModes, c.ThemeMode) {
		invalid = append(invalid, fmt.Sprintf("THEME_MODE=%s (allowed: %v)", c.ThemeMode, allowedThemeModes))
	}
	if !slices.Contains(allowedStores, c.ResultStore) {
		invalid = append(invalid, fmt.Sprintf("RESULT_STORE=%s (allowed: %v)", c.ResultStore, allowedStores))
	}

	colors := map[string]string{
		"PRIMARY_COLOR":    c.Colors.Primary,
		"SUCCESS_COLOR":    c.Colors.Success,
		"WARNING_COLOR":    c.Colors.Warning,
		"BACKGROUND_COLOR": c.Colors.Background,
	}
	for _, key := range []string{"PRIMARY_COLOR", "SUCCESS_COLOR", "WARNING_COLOR", "BACKGROUND_COLOR"} {
		if !hexColorPattern.MatchString(colors[key]) {
			invalid = append(invalid, fmt.Sprintf("%s=%s (expected #rrggbb)", key, colors[key]))
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration values: %v", invalid)
	}
	return nil
}

// Configured はAPIキーが設定され、機能が有効かどうかを返す。
func (c *Config) Configured() bool {
	return c.Enabled && c.APIKey != ""
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
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

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
