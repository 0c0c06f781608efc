package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration object, loaded once at process start.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Blob      BlobConfig      `json:"blob"`
	AI        AIConfig        `json:"ai"`
	Search    SearchConfig    `json:"search"`
	Session   SessionConfig   `json:"session"`
	Ingestion IngestionConfig `json:"ingestion"`
	Taxonomy  TaxonomyConfig  `json:"taxonomy"`
	Logging   LoggingConfig   `json:"logging"`
}

type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
	Debug        bool   `json:"debug"`
}

type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	SSLMode      string `json:"ssl_mode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxLifetime  int    `json:"max_lifetime"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// BlobConfig configures the local-filesystem blob store (spec §4.3).
type BlobConfig struct {
	BaseDir string `json:"base_dir"`
}

// AIConfig configures the AI Gateway (spec §4.5).
type AIConfig struct {
	Providers               []string `json:"providers"` // loaded but not consulted: cmd/server's buildProviders always registers anthropic, openai, gemini, local-extract in that order
	RetryBaseS              int      `json:"retry_base_s"` // base=1s per spec
	RetryCapS               int      `json:"retry_cap_s"`  // cap=15s per spec
	RetryMaxAttempts        int      `json:"retry_max_attempts"` // R=3 per spec
	CallTimeoutS            int      `json:"call_timeout_s"`     // D=120s per spec
	CircuitFailureThreshold uint32   `json:"circuit_failure_threshold"` // K=5 per spec
	CircuitCooldownS        int      `json:"circuit_cooldown_s"`        // C=60s per spec
	VectorDim               int      `json:"vector_dim"`                // 1536 default
	RequireEmbedding        bool     `json:"require_embedding"`         // default true per §4.6 step D
	OCRMinCharsPerPage      int      `json:"ocr_min_chars_per_page"`    // N=50 per spec §4.5
}

// SearchConfig configures Search & Relevance (spec §4.7).
type SearchConfig struct {
	SearchCacheTTLS      int  `json:"search_cache_ttl_s"`
	FacetCacheTTLS       int  `json:"facet_cache_ttl_s"`
	UseEnhancedRelevance bool `json:"use_enhanced_relevance"`
	DefaultPerPage       int  `json:"default_per_page"`
	MaxPerPage           int  `json:"max_per_page"`
	CandidateSetSize     int  `json:"candidate_set_size"`
}

// SessionConfig configures Session Core (spec §4.8).
type SessionConfig struct {
	TTLSeconds                           int    `json:"session_ttl_s"`
	CookieSecure                         bool   `json:"session_cookie_secure"`
	RequireAuth                          bool   `json:"require_auth"`
	AppPassword                          string `json:"app_password"`
	EncryptionSecret                     string `json:"encryption_secret"`
	LazyRewriteWindowS                   int    `json:"lazy_rewrite_window_s"` // R=60s per spec
	// AllowUnauthenticatedOnSessionFailure is insecure and off by default.
	// When true, requireAuth admits requests without an authenticated
	// session on protected routes, whatever the session backend's state.
	AllowUnauthenticatedOnSessionFailure bool  `json:"allow_unauthenticated_on_session_failure"`
	LoginRateLimitPerMinute              int    `json:"login_rate_limit_per_minute"` // 10/minute per spec
}

// IngestionConfig configures the Ingestion Pipeline (spec §4.6).
type IngestionConfig struct {
	WorkerConcurrency     int   `json:"worker_concurrency"`     // W
	UploadBatchStaggerS   int   `json:"upload_batch_stagger_s"` // default 30
	MaxFileSizeBytes      int64 `json:"max_file_size_bytes"`    // default 104857600
	StuckSweepIntervalS   int   `json:"stuck_sweep_interval_s"` // S=10min
	SchedulerIntervalS    int   `json:"scheduler_interval_s"`   // T=2min
	JobVisibilityTimeoutS int   `json:"job_visibility_timeout_s"` // 300
	ShutdownGraceS        int   `json:"shutdown_grace_s"`         // G=30s
	QueueDepthWatermark   int   `json:"queue_depth_watermark"`    // H=1000
	NackBackoffBaseS      int   `json:"nack_backoff_base_s"`      // spec §4.2 base=5s
	NackBackoffCapS       int   `json:"nack_backoff_cap_s"`       // spec §4.2 cap=300s
}

// TaxonomyConfig configures the Taxonomy Engine (spec §4.4).
type TaxonomyConfig struct {
	SnapshotRefreshIntervalS int `json:"snapshot_refresh_interval_s"` // 5min per spec §5
}

type LoggingConfig struct {
	Level string `json:"level"`
	Debug bool   `json:"debug"`
}

// Load reads the process environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			Debug:        getEnvAsBool("SERVER_DEBUG", false),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "doccat"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "doccat"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 3600),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Blob: BlobConfig{
			BaseDir: getEnv("BLOB_BASE_DIR", "./data/blobs"),
		},
		AI: AIConfig{
			Providers:               getEnvAsSlice("AI_PROVIDERS", []string{"anthropic", "openai", "gemini"}),
			RetryBaseS:              getEnvAsInt("AI_RETRY_BASE_S", 1),
			RetryCapS:               getEnvAsInt("AI_RETRY_CAP_S", 15),
			RetryMaxAttempts:        getEnvAsInt("AI_RETRY_MAX_ATTEMPTS", 3),
			CallTimeoutS:            getEnvAsInt("AI_CALL_TIMEOUT_S", 120),
			CircuitFailureThreshold: uint32(getEnvAsInt("AI_CIRCUIT_FAILURE_THRESHOLD", 5)),
			CircuitCooldownS:        getEnvAsInt("AI_CIRCUIT_COOLDOWN_S", 60),
			VectorDim:               getEnvAsInt("AI_VECTOR_DIM", 1536),
			RequireEmbedding:        getEnvAsBool("AI_REQUIRE_EMBEDDING", true),
			OCRMinCharsPerPage:      getEnvAsInt("AI_OCR_MIN_CHARS_PER_PAGE", 50),
		},
		Search: SearchConfig{
			SearchCacheTTLS:      getEnvAsInt("SEARCH_CACHE_TTL_S", 1800),
			FacetCacheTTLS:       getEnvAsInt("FACET_CACHE_TTL_S", 86400),
			UseEnhancedRelevance: getEnvAsBool("USE_ENHANCED_RELEVANCE", true),
			DefaultPerPage:       getEnvAsInt("SEARCH_DEFAULT_PER_PAGE", 12),
			MaxPerPage:           getEnvAsInt("SEARCH_MAX_PER_PAGE", 50),
			CandidateSetSize:     getEnvAsInt("SEARCH_CANDIDATE_SET_SIZE", 100),
		},
		Session: SessionConfig{
			TTLSeconds:                           getEnvAsInt("SESSION_TTL_S", 86400),
			CookieSecure:                         getEnvAsBool("SESSION_COOKIE_SECURE", true),
			RequireAuth:                          getEnvAsBool("REQUIRE_AUTH", true),
			AppPassword:                          getEnv("APP_PASSWORD", ""),
			EncryptionSecret:                     getEnv("SESSION_ENCRYPTION_SECRET", ""),
			LazyRewriteWindowS:                   getEnvAsInt("SESSION_LAZY_REWRITE_WINDOW_S", 60),
			AllowUnauthenticatedOnSessionFailure: getEnvAsBool("ALLOW_UNAUTHENTICATED_ON_SESSION_FAILURE", false),
			LoginRateLimitPerMinute:              getEnvAsInt("LOGIN_RATE_LIMIT_PER_MINUTE", 10),
		},
		Ingestion: IngestionConfig{
			WorkerConcurrency:     getEnvAsInt("WORKER_CONCURRENCY", 4),
			UploadBatchStaggerS:   getEnvAsInt("UPLOAD_BATCH_STAGGER_S", 30),
			MaxFileSizeBytes:      int64(getEnvAsInt("MAX_FILE_SIZE_BYTES", 104857600)),
			StuckSweepIntervalS:   getEnvAsInt("STUCK_SWEEP_INTERVAL_S", 600),
			SchedulerIntervalS:    getEnvAsInt("SCHEDULER_INTERVAL_S", 120),
			JobVisibilityTimeoutS: getEnvAsInt("JOB_VISIBILITY_TIMEOUT_S", 300),
			ShutdownGraceS:        getEnvAsInt("SHUTDOWN_GRACE_S", 30),
			QueueDepthWatermark:   getEnvAsInt("QUEUE_DEPTH_WATERMARK", 1000),
			NackBackoffBaseS:      getEnvAsInt("NACK_BACKOFF_BASE_S", 5),
			NackBackoffCapS:       getEnvAsInt("NACK_BACKOFF_CAP_S", 300),
		},
		Taxonomy: TaxonomyConfig{
			SnapshotRefreshIntervalS: getEnvAsInt("TAXONOMY_SNAPSHOT_REFRESH_INTERVAL_S", 300),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			Debug: getEnvAsBool("LOG_DEBUG", false),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) SearchCacheTTL() time.Duration {
	return time.Duration(c.Search.SearchCacheTTLS) * time.Second
}

func (c *Config) FacetCacheTTL() time.Duration {
	return time.Duration(c.Search.FacetCacheTTLS) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

func validateConfig(c *Config) error {
	if c.Database.Password == "" {
		return fmt.Errorf("database password is required (DB_PASSWORD)")
	}
	if c.AI.VectorDim <= 0 {
		return fmt.Errorf("vector dimension must be positive (AI_VECTOR_DIM)")
	}
	if c.Ingestion.WorkerConcurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1 (WORKER_CONCURRENCY)")
	}
	if c.Session.EncryptionSecret == "" && !c.Server.Debug {
		return fmt.Errorf("session encryption secret is required outside debug mode (SESSION_ENCRYPTION_SECRET)")
	}
	if c.Session.RequireAuth && c.Session.AppPassword == "" && !c.Server.Debug {
		return fmt.Errorf("app password is required when auth is enforced (APP_PASSWORD)")
	}
	if c.Session.AppPassword == "changeme" {
		return fmt.Errorf("app password must be changed from the default value (APP_PASSWORD)")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
