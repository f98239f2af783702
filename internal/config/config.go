package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Cache    CacheConfig    `yaml:"cache"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Sync     SyncConfig     `yaml:"sync"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port            string   `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"-"`
	Path   string `yaml:"path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

type CacheConfig struct {
	TTL Duration `yaml:"ttl"`
}

type SheetsConfig struct {
	SpreadsheetID string   `yaml:"spreadsheet_id"`
	APIKey        string   `yaml:"-"` // env-only
	Range         string   `yaml:"range"`
	FetchTimeout  Duration `yaml:"fetch_timeout"`
	RevokedKeys   []string `yaml:"revoked_keys"`
	Endpoint      string   `yaml:"endpoint"`
}

type SyncConfig struct {
	MinInterval Duration `yaml:"min_interval"`
	Burst       int      `yaml:"burst"`
}

// AdminConfig guards destructive operations. Bulk clear stays disabled until
// CLEAR_CONFIRMATION_TOKEN is set.
type AdminConfig struct {
	ClearConfirmationToken string `yaml:"-"`
}

const minClearTokenLength = 12

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Duration accepts Go duration strings such as "30s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load resolves configuration from defaults, then the YAML file, then a .env file,
// then the process environment. Later sources win.
func Load() (Config, error) {
	cfg := defaults()

	if err := loadYAMLFile(&cfg, getEnv("SALESYNC_CONFIG_PATH", "config/salesync.yaml")); err != nil {
		return Config{}, err
	}

	// .env never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("reading .env: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			AllowedOrigins:  []string{"http://127.0.0.1:3000"},
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Database: DatabaseConfig{
			Driver: DriverMemory,
			Path:   "data/salesync.db",
		},
		Cache: CacheConfig{TTL: Duration(5 * time.Minute)},
		Sheets: SheetsConfig{
			Range:        "A:F",
			FetchTimeout: Duration(15 * time.Second),
		},
		Sync: SyncConfig{
			MinInterval: Duration(10 * time.Second),
			Burst:       1,
		},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	if v := os.Getenv("ALLOWED_ORIGIN"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.Path = getEnv("SQLITE_PATH", cfg.Database.Path)
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = strings.ToLower(strings.TrimSpace(v))
	} else if cfg.Database.URL != "" && cfg.Database.Driver == DriverMemory {
		// a bare DATABASE_URL selects postgres, as it always has
		cfg.Database.Driver = DriverPostgres
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if v, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil && v >= 0 {
		cfg.Redis.DB = v
	}
	if v, err := time.ParseDuration(os.Getenv("CACHE_TTL")); err == nil && v > 0 {
		cfg.Cache.TTL = Duration(v)
	}

	cfg.Sheets.APIKey = strings.TrimSpace(getEnv("GOOGLE_SHEETS_API_KEY", cfg.Sheets.APIKey))
	cfg.Sheets.SpreadsheetID = strings.TrimSpace(getEnv("GOOGLE_SHEETS_SPREADSHEET_ID", cfg.Sheets.SpreadsheetID))
	cfg.Sheets.Range = getEnv("GOOGLE_SHEETS_RANGE", cfg.Sheets.Range)
	if v := os.Getenv("GOOGLE_SHEETS_REVOKED_KEYS"); v != "" {
		cfg.Sheets.RevokedKeys = splitList(v)
	}

	cfg.Admin.ClearConfirmationToken = getEnv("CLEAR_CONFIRMATION_TOKEN", cfg.Admin.ClearConfirmationToken)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		return errors.New("config: SQLITE_PATH is required for the sqlite driver")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: invalid log format %q", c.Log.Format)
	}

	if c.Sync.Burst < 1 {
		return errors.New("config: sync burst must be at least 1")
	}
	// an empty token leaves bulk clear disabled
	if token := strings.TrimSpace(c.Admin.ClearConfirmationToken); token != "" && len(token) < minClearTokenLength {
		return fmt.Errorf("config: CLEAR_CONFIRMATION_TOKEN must be at least %d characters", minClearTokenLength)
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Server.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
