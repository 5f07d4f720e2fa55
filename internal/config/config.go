package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	JobStoreMemory = "memory"
	JobStoreRedis  = "redis"

	IngestPostgres = "postgres"
	IngestFile     = "file"
)

type Config struct {
	Server   ServerConfig
	Browser  BrowserConfig
	Scraper  ScraperConfig
	Pacing   PacingConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Jobs     JobsConfig
	Ingest   IngestConfig
	Relay    RelayConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type ScraperConfig struct {
	UserAgents        []string
	MaxAttempts       int
	RetryStep         time.Duration
	DetourChance      float64
	DetourDwellMin    time.Duration
	DetourDwellMax    time.Duration
	NavigationTimeout time.Duration
	DetourTimeout     time.Duration
	HeadingWait       time.Duration
	AccordWait        time.Duration
	NotesWait         time.Duration
	ListingWait       time.Duration
	BlockMarkers      []string
}

type PacingConfig struct {
	ItemDelayMin  time.Duration
	ItemDelayMax  time.Duration
	BatchDelayMin time.Duration
	BatchDelayMax time.Duration
	BatchSizeMin  int
	BatchSizeMax  int
	Cooldown      time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type JobsConfig struct {
	Store string
	TTL   time.Duration
}

type IngestConfig struct {
	Backend  string
	FilePath string
}

type RelayConfig struct {
	Enabled      bool
	PollInterval time.Duration
	BatchSize    int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:  getDurationOrDefault("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 60*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Scraper: ScraperConfig{
			UserAgents:        getStringSliceOrDefault("SCRAPER_USER_AGENTS", nil),
			MaxAttempts:       getIntOrDefault("SCRAPER_MAX_ATTEMPTS", 3),
			RetryStep:         getDurationOrDefault("SCRAPER_RETRY_STEP", time.Second),
			DetourChance:      getFloatOrDefault("SCRAPER_DETOUR_CHANCE", 0.05),
			DetourDwellMin:    getDurationOrDefault("SCRAPER_DETOUR_DWELL_MIN", 2*time.Second),
			DetourDwellMax:    getDurationOrDefault("SCRAPER_DETOUR_DWELL_MAX", 5*time.Second),
			NavigationTimeout: getDurationOrDefault("SCRAPER_NAVIGATION_TIMEOUT", 60*time.Second),
			DetourTimeout:     getDurationOrDefault("SCRAPER_DETOUR_TIMEOUT", 30*time.Second),
			HeadingWait:       getDurationOrDefault("SCRAPER_HEADING_WAIT", 15*time.Second),
			AccordWait:        getDurationOrDefault("SCRAPER_ACCORD_WAIT", 20*time.Second),
			NotesWait:         getDurationOrDefault("SCRAPER_NOTES_WAIT", 5*time.Second),
			ListingWait:       getDurationOrDefault("SCRAPER_LISTING_WAIT", 15*time.Second),
			BlockMarkers:      getStringSliceOrDefault("SCRAPER_BLOCK_MARKERS", nil),
		},
		Pacing: PacingConfig{
			ItemDelayMin:  getDurationOrDefault("PACING_ITEM_DELAY_MIN", 3*time.Second),
			ItemDelayMax:  getDurationOrDefault("PACING_ITEM_DELAY_MAX", 8*time.Second),
			BatchDelayMin: getDurationOrDefault("PACING_BATCH_DELAY_MIN", 8*time.Minute),
			BatchDelayMax: getDurationOrDefault("PACING_BATCH_DELAY_MAX", 12*time.Minute),
			BatchSizeMin:  getIntOrDefault("PACING_BATCH_SIZE_MIN", 15),
			BatchSizeMax:  getIntOrDefault("PACING_BATCH_SIZE_MAX", 18),
			Cooldown:      getDurationOrDefault("PACING_COOLDOWN", 10*time.Minute),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "fragrances"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: getIntOrDefault("DB_MAX_CONNS", 10),
			MinConns: getIntOrDefault("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:perfume_ingest"),
		},
		Jobs: JobsConfig{
			Store: getEnvOrDefault("JOBS_STORE", JobStoreMemory),
			TTL:   getDurationOrDefault("JOBS_TTL", 72*time.Hour),
		},
		Ingest: IngestConfig{
			Backend:  getEnvOrDefault("INGEST_BACKEND", IngestPostgres),
			FilePath: getEnvOrDefault("INGEST_FILE_PATH", "data/perfumes.json"),
		},
		Relay: RelayConfig{
			Enabled:      getBoolOrDefault("RELAY_ENABLED", true),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxAttempts < 1 {
		return fmt.Errorf("SCRAPER_MAX_ATTEMPTS must be at least 1")
	}

	if c.Scraper.DetourChance < 0 || c.Scraper.DetourChance > 1 {
		return fmt.Errorf("SCRAPER_DETOUR_CHANCE must be between 0 and 1")
	}

	if c.Scraper.DetourDwellMin > c.Scraper.DetourDwellMax {
		return fmt.Errorf("SCRAPER_DETOUR_DWELL_MIN cannot be greater than SCRAPER_DETOUR_DWELL_MAX")
	}

	if c.Pacing.ItemDelayMin > c.Pacing.ItemDelayMax {
		return fmt.Errorf("PACING_ITEM_DELAY_MIN cannot be greater than PACING_ITEM_DELAY_MAX")
	}

	if c.Pacing.BatchDelayMin > c.Pacing.BatchDelayMax {
		return fmt.Errorf("PACING_BATCH_DELAY_MIN cannot be greater than PACING_BATCH_DELAY_MAX")
	}

	if c.Pacing.BatchSizeMin < 1 {
		return fmt.Errorf("PACING_BATCH_SIZE_MIN must be at least 1")
	}

	if c.Pacing.BatchSizeMin > c.Pacing.BatchSizeMax {
		return fmt.Errorf("PACING_BATCH_SIZE_MIN cannot be greater than PACING_BATCH_SIZE_MAX")
	}

	switch c.Jobs.Store {
	case JobStoreMemory, JobStoreRedis:
	default:
		return fmt.Errorf("unknown JOBS_STORE %q", c.Jobs.Store)
	}

	switch c.Ingest.Backend {
	case IngestPostgres:
	case IngestFile:
		if c.Ingest.FilePath == "" {
			return fmt.Errorf("INGEST_FILE_PATH is required for the file backend")
		}
	default:
		return fmt.Errorf("unknown INGEST_BACKEND %q", c.Ingest.Backend)
	}

	if c.Relay.BatchSize < 1 {
		return fmt.Errorf("RELAY_BATCH_SIZE must be at least 1")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
