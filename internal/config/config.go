// Package config loads application configuration from environment variables.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the full application configuration shared across the
// synchronizer, downloader, and notifier processes. Each process only reads
// the sections it needs.
type Config struct {
	Data   DataConfig
	DB     DBConfig
	Sync   SyncConfig
	Down   DownloadConfig
	LLM    LLMConfig
	Notify NotifyConfig
	S3     S3Config
	Health HealthConfig
}

// DataConfig holds the local filesystem layout root and the source's
// canonical timezone.
type DataConfig struct {
	DataDir string
	// SourceTimezone is an IANA zone name (e.g. "America/Costa_Rica"). All
	// day-switch, trigger, and window arithmetic is performed in this zone.
	SourceTimezone string
	// SourceBaseURL is the source site's API root, e.g.
	// "https://www.crhoy.com".
	SourceBaseURL string
}

// Location parses SourceTimezone, falling back to UTC if it cannot be loaded.
func (c DataConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.SourceTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DBConfig holds PostgreSQL connection parameters.
type DBConfig struct {
	URL     string
	Host    string
	Port    int
	User    string
	Pass    string
	DBName  string
	SSLMode string
	// MigrationsDir is where the SQL migration files live. All three
	// services run migrations at startup, so the path must resolve from
	// each service's working directory.
	MigrationsDir string
}

// DSN returns a PostgreSQL connection string. If URL is set directly
// (DATABASE_URL), it takes precedence over the discrete fields.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return "postgres://" + c.User + ":" + c.Pass +
		"@" + c.Host + ":" + strconv.Itoa(c.Port) +
		"/" + c.DBName + "?sslmode=" + c.SSLMode
}

// SyncConfig holds synchronizer-specific parameters.
type SyncConfig struct {
	FirstDay             time.Time
	CheckUpdatesInterval time.Duration
	DaysChunkSize        int
}

// DownloadConfig holds downloader-specific parameters.
type DownloadConfig struct {
	DownloadInterval   time.Duration
	DownloadsChunkSize int
	IgnoreCategories   []string
	RequestTimeout     time.Duration
	MaxRetries         int
	// AnalysisAgeHorizon is the maximum article age eligible for LLM
	// analysis unless a force flag is set.
	AnalysisAgeHorizon time.Duration
	// SmartCategorySeedPath points at the YAML fixture used to seed
	// SmartCategory on first startup.
	SmartCategorySeedPath string
}

// ModelConfig configures one LLM role (basic/light/supplementary, etc.).
type ModelConfig struct {
	Model                     string
	RequestLimit              int
	RequestLimitPeriodSeconds int
	RequiresSupplementary     bool
}

// LLMConfig holds LLM engine and per-agent-role model parameters.
type LLMConfig struct {
	// EngineBaseURL is the LLM engine's HTTP root (e.g. an Ollama host or a
	// gateway serving Ollama's /api/chat shape), the transport HTTPEngine is
	// built against.
	EngineBaseURL          string
	Engine                 string
	APIKey                 string
	ClassifierModel        ModelConfig
	LabelerModel           ModelConfig
	NamerModel             ModelConfig
	FinalizerModel         ModelConfig
	SummarizerModel        ModelConfig
	TranslatorModel        ModelConfig
	SupplementaryModel     ModelConfig
	TranslationLanguages   []string
	KeepRawEngineResponses bool
	RawEngineResponsesDir  string
}

// NotifyConfig holds notifier-specific parameters.
type NotifyConfig struct {
	TriggerTimes          []string
	WindowShift           time.Duration
	MaxInactivityInterval time.Duration
	BotToken              string
	ChannelID             string
	MaxRetries            int
	MessageDelay          time.Duration
	SentLogRetention      time.Duration
	SummaryLanguage       string
}

// S3Config holds S3-compatible archive-mirror parameters. Optional: if
// Endpoint is empty the archive mirror is disabled.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// HealthConfig configures the ambient /healthz HTTP surface each service
// mounts.
type HealthConfig struct {
	Addr string
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() Config {
	firstDay, err := time.Parse("2006-01-02", envOr("FIRST_DAY", "2020-01-01"))
	if err != nil {
		firstDay = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	return Config{
		Data: DataConfig{
			DataDir:        envOr("DATA_DIR", "./data"),
			SourceTimezone: envOr("SOURCE_TIMEZONE", "America/Costa_Rica"),
			SourceBaseURL:  envOr("SOURCE_BASE_URL", "https://www.crhoy.com"),
		},
		DB: DBConfig{
			URL:           os.Getenv("DATABASE_URL"),
			Host:          envOr("DB_HOST", "localhost"),
			Port:          envOrInt("DB_PORT", 5432),
			User:          envOr("DB_USER", "crhoy"),
			Pass:          envOr("DB_PASS", "crhoy"),
			DBName:        envOr("DB_NAME", "crhoy"),
			SSLMode:       envOr("DB_SSLMODE", "disable"),
			MigrationsDir: envOr("MIGRATIONS_DIR", "migrations"),
		},
		Sync: SyncConfig{
			FirstDay:             firstDay,
			CheckUpdatesInterval: envOrDuration("CHECK_UPDATES_INTERVAL", 5*time.Minute),
			DaysChunkSize:        envOrInt("DAYS_CHUNK_SIZE", 3),
		},
		Down: DownloadConfig{
			DownloadInterval:      envOrDuration("DOWNLOAD_INTERVAL", 30*time.Second),
			DownloadsChunkSize:    envOrInt("DOWNLOADS_CHUNK_SIZE", 10),
			IgnoreCategories:      envOrCSV("IGNORE_CATEGORIES", nil),
			RequestTimeout:        envOrDuration("REQUEST_TIMEOUT", 20*time.Second),
			MaxRetries:            envOrInt("MAX_RETRIES", 3),
			AnalysisAgeHorizon:    envOrDuration("ANALYSIS_AGE_HORIZON", 72*time.Hour),
			SmartCategorySeedPath: envOr("SMART_CATEGORY_SEED_PATH", "configs/smart_categories.seed.yaml"),
		},
		LLM: LLMConfig{
			EngineBaseURL: envOr("ENGINE_BASE_URL", "http://localhost:11434"),
			Engine:        envOr("ENGINE", "openai"),
			APIKey:        os.Getenv("API_KEY"),
			ClassifierModel: ModelConfig{
				Model:                     envOr("CLASSIFIER_MODEL", "basic"),
				RequestLimit:              envOrInt("CLASSIFIER_REQUEST_LIMIT", 60),
				RequestLimitPeriodSeconds: envOrInt("CLASSIFIER_REQUEST_LIMIT_PERIOD_SECONDS", 60),
				RequiresSupplementary:     envOrBool("CLASSIFIER_REQUIRES_SUPPLEMENTARY", false),
			},
			LabelerModel: ModelConfig{
				Model:                     envOr("LABELER_MODEL", "basic"),
				RequestLimit:              envOrInt("LABELER_REQUEST_LIMIT", 60),
				RequestLimitPeriodSeconds: envOrInt("LABELER_REQUEST_LIMIT_PERIOD_SECONDS", 60),
				RequiresSupplementary:     envOrBool("LABELER_REQUIRES_SUPPLEMENTARY", false),
			},
			NamerModel: ModelConfig{
				Model:                     envOr("NAMER_MODEL", "light"),
				RequestLimit:              envOrInt("NAMER_REQUEST_LIMIT", 60),
				RequestLimitPeriodSeconds: envOrInt("NAMER_REQUEST_LIMIT_PERIOD_SECONDS", 60),
				RequiresSupplementary:     envOrBool("NAMER_REQUIRES_SUPPLEMENTARY", false),
			},
			FinalizerModel: ModelConfig{
				Model:                     envOr("FINALIZER_MODEL", "basic"),
				RequestLimit:              envOrInt("FINALIZER_REQUEST_LIMIT", 60),
				RequestLimitPeriodSeconds: envOrInt("FINALIZER_REQUEST_LIMIT_PERIOD_SECONDS", 60),
				RequiresSupplementary:     envOrBool("FINALIZER_REQUIRES_SUPPLEMENTARY", false),
			},
			SummarizerModel: ModelConfig{
				Model:                     envOr("SUMMARIZER_MODEL", "light"),
				RequestLimit:              envOrInt("SUMMARIZER_REQUEST_LIMIT", 30),
				RequestLimitPeriodSeconds: envOrInt("SUMMARIZER_REQUEST_LIMIT_PERIOD_SECONDS", 60),
				RequiresSupplementary:     envOrBool("SUMMARIZER_REQUIRES_SUPPLEMENTARY", false),
			},
			TranslatorModel: ModelConfig{
				Model:                     envOr("TRANSLATOR_MODEL", "light"),
				RequestLimit:              envOrInt("TRANSLATOR_REQUEST_LIMIT", 30),
				RequestLimitPeriodSeconds: envOrInt("TRANSLATOR_REQUEST_LIMIT_PERIOD_SECONDS", 60),
				RequiresSupplementary:     envOrBool("TRANSLATOR_REQUIRES_SUPPLEMENTARY", false),
			},
			SupplementaryModel: ModelConfig{
				Model:                     envOr("SUPPLEMENTARY_MODEL", "supplementary"),
				RequestLimit:              envOrInt("SUPPLEMENTARY_REQUEST_LIMIT", 60),
				RequestLimitPeriodSeconds: envOrInt("SUPPLEMENTARY_REQUEST_LIMIT_PERIOD_SECONDS", 60),
			},
			TranslationLanguages:   envOrCSV("TRANSLATION_LANGUAGES", []string{"ru"}),
			KeepRawEngineResponses: envOrBool("KEEP_RAW_ENGINE_RESPONSES", false),
			RawEngineResponsesDir:  envOr("RAW_ENGINE_RESPONSES_DIR", "./data/raw"),
		},
		Notify: NotifyConfig{
			TriggerTimes:          envOrJSONStringSlice("TRIGGER_TIMES", []string{"06:00", "12:00", "16:30"}),
			WindowShift:           envOrDuration("WINDOW_SHIFT", 30*time.Minute),
			MaxInactivityInterval: envOrDuration("MAX_INACTIVITY_INTERVAL", 300*time.Second),
			BotToken:              os.Getenv("BOT_TOKEN"),
			ChannelID:             os.Getenv("CHANNEL_ID"),
			MaxRetries:            envOrInt("NOTIFY_MAX_RETRIES", 3),
			MessageDelay:          envOrDuration("MESSAGE_DELAY", 2*time.Second),
			SentLogRetention:      envOrDuration("SENT_LOG_RETENTION", 30*24*time.Hour),
			SummaryLanguage:       envOr("SUMMARY_LANGUAGE", "en"),
		},
		S3: S3Config{
			Endpoint:  envOr("S3_ENDPOINT", ""),
			Bucket:    envOr("S3_BUCKET", "crhoy-archive"),
			AccessKey: envOr("S3_ACCESS_KEY", ""),
			SecretKey: envOr("S3_SECRET_KEY", ""),
			Region:    envOr("S3_REGION", "us-east-1"),
		},
		Health: HealthConfig{
			Addr: envOr("HEALTH_ADDR", ":8090"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envOrBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Accept bare integers as seconds as well as Go duration strings
	// ("30s", "5m").
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envOrCSV(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrJSONStringSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return fallback
	}
	return out
}
