package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Credential store backends.
const (
	CredentialStoreMemory   = "memory"
	CredentialStoreRedis    = "redis"
	CredentialStorePostgres = "postgres"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Academic    AcademicConfig
	Google      GoogleConfig
	Calendar    CalendarConfig
	Slots       SlotsConfig
	Session     SessionConfig
	Credentials CredentialsConfig
	Cache       CacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig validates the tokens issued by the student portal.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AcademicConfig points to the academic-records service.
type AcademicConfig struct {
	BaseURL string
	Timeout time.Duration
}

// GoogleConfig holds the OAuth client used for the calendar session.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Endpoint overrides the Calendar API base URL; empty means the public API.
	Endpoint string
}

// CalendarConfig describes how bookings are written to the external calendar.
type CalendarConfig struct {
	CalendarID      string
	TimeZone        string
	ColorID         string
	Marker          string
	ConflictWindow  time.Duration
	DefaultDuration time.Duration
	ListHorizon     time.Duration
}

// SlotsConfig defines the daily bookable window.
type SlotsConfig struct {
	OpenHour  int
	CloseHour int
	Step      time.Duration
}

// SessionConfig governs calendar token renewal and transient UI messages.
type SessionConfig struct {
	RenewInterval  time.Duration
	RenewThreshold time.Duration
	MessageTTL     time.Duration
	FormDuration   int
}

// CredentialsConfig selects where calendar credentials are kept.
type CredentialsConfig struct {
	Store  string
	Secret string
}

// CacheConfig governs the academic-records cache.
type CacheConfig struct {
	Enabled       bool
	DisciplineTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Academic = AcademicConfig{
		BaseURL: strings.TrimRight(v.GetString("ACADEMIC_API_URL"), "/"),
		Timeout: parseDuration(v.GetString("ACADEMIC_API_TIMEOUT"), 10*time.Second),
	}

	cfg.Google = GoogleConfig{
		ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
		ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		Scopes:       splitAndTrim(v.GetString("GOOGLE_SCOPES")),
		Endpoint:     v.GetString("GOOGLE_CALENDAR_ENDPOINT"),
	}

	cfg.Calendar = CalendarConfig{
		CalendarID:      v.GetString("CALENDAR_ID"),
		TimeZone:        v.GetString("CALENDAR_TIMEZONE"),
		ColorID:         v.GetString("CALENDAR_COLOR_ID"),
		Marker:          v.GetString("BOOKING_MARKER"),
		ConflictWindow:  parseDuration(v.GetString("CONFLICT_WINDOW"), time.Minute),
		DefaultDuration: parseDuration(v.GetString("BOOKING_DEFAULT_DURATION"), time.Hour),
		ListHorizon:     parseDuration(v.GetString("CALENDAR_LIST_HORIZON"), 30*24*time.Hour),
	}

	cfg.Slots = SlotsConfig{
		OpenHour:  v.GetInt("SLOT_OPEN_HOUR"),
		CloseHour: v.GetInt("SLOT_CLOSE_HOUR"),
		Step:      parseDuration(v.GetString("SLOT_STEP"), 30*time.Minute),
	}

	cfg.Session = SessionConfig{
		RenewInterval:  parseDuration(v.GetString("TOKEN_RENEW_INTERVAL"), 2*time.Minute),
		RenewThreshold: parseDuration(v.GetString("TOKEN_RENEW_THRESHOLD"), 5*time.Minute),
		MessageTTL:     parseDuration(v.GetString("MESSAGE_TTL"), 3*time.Second),
		FormDuration:   v.GetInt("BOOKING_FORM_DURATION_MINUTES"),
	}

	cfg.Credentials = CredentialsConfig{
		Store:  strings.ToLower(v.GetString("CREDENTIAL_STORE")),
		Secret: v.GetString("CREDENTIAL_SECRET"),
	}

	cfg.Cache = CacheConfig{
		Enabled:       v.GetBool("ENABLE_CACHE"),
		DisciplineTTL: parseDuration(v.GetString("DISCIPLINE_CACHE_TTL"), 30*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "arena")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ACADEMIC_API_URL", "http://localhost:8000")
	v.SetDefault("ACADEMIC_API_TIMEOUT", "10s")

	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_REDIRECT_URL", "http://localhost:5173/agendamentos")
	v.SetDefault("GOOGLE_SCOPES", "https://www.googleapis.com/auth/calendar.events,openid,email,profile")
	v.SetDefault("GOOGLE_CALENDAR_ENDPOINT", "")

	v.SetDefault("CALENDAR_ID", "primary")
	v.SetDefault("CALENDAR_TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("CALENDAR_COLOR_ID", "9")
	v.SetDefault("BOOKING_MARKER", "ARENA")
	v.SetDefault("CONFLICT_WINDOW", "60s")
	v.SetDefault("BOOKING_DEFAULT_DURATION", "60m")
	v.SetDefault("CALENDAR_LIST_HORIZON", "720h")

	v.SetDefault("SLOT_OPEN_HOUR", 7)
	v.SetDefault("SLOT_CLOSE_HOUR", 19)
	v.SetDefault("SLOT_STEP", "30m")

	v.SetDefault("TOKEN_RENEW_INTERVAL", "2m")
	v.SetDefault("TOKEN_RENEW_THRESHOLD", "5m")
	v.SetDefault("MESSAGE_TTL", "3s")
	v.SetDefault("BOOKING_FORM_DURATION_MINUTES", 30)

	v.SetDefault("CREDENTIAL_STORE", CredentialStoreMemory)
	v.SetDefault("CREDENTIAL_SECRET", "dev_credential_secret")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("DISCIPLINE_CACHE_TTL", "30m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
