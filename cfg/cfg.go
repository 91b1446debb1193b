package cfg

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Port             string
	BindIP           string
	Environment      string
	LogLevel         string
	ConfigFile       string
	DatabaseURL      string
	DB               DBCfg
	DBPasswordSecret string
	DBMaxOpenConns   int
	DBMaxIdleConns   int
	DBQueryTimeout   time.Duration
	RedisURL         string
	RedisTLS         bool
	RedisUsername    string
	RedisPassword    Secret
	RedisTimeout     time.Duration
	RedisCacheTTL    time.Duration
	LRUCacheSize     int
	RateLimit        RateLimitCfg
	MaxPasteSize     int64
	TrustedProxies   []string
	MetricsUser      string
	MetricsPass      Secret
	ContextTimeout   time.Duration
	AllowedOrigins   []string
	HighlightStyle   string
}

// DBCfg holds the database connection components used when DATABASE_URL is
// not set.
type DBCfg struct {
	Dialect  string
	Driver   string
	Host     string
	Port     int
	Username string
	Password Secret
	Name     string
}

type RateLimitCfg struct {
	RPM               int
	Burst             int
	ConservativeLimit int
}

const maxPasteSizeLimit = 512 * 1024 * 1024

// Load reads the configuration from the environment, falling back to the
// first config file found and then to built-in defaults.
func Load() (*Cfg, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Cfg, error) {
	env := &loader{lookup: lookup}
	path := env.getEnv("CONFIG_FILE", "")
	explicit := path != ""
	if !explicit {
		path = findConfigFile(env.getEnv("HOME", ""))
	}
	if path != "" {
		values, err := readFile(path)
		if err != nil {
			if explicit || !os.IsNotExist(errors.Cause(err)) {
				return nil, err
			}
		} else {
			env.file = values
		}
	}
	c := &Cfg{ConfigFile: path}
	if env.file == nil {
		c.ConfigFile = ""
	}
	c.Port = env.getEnv("PORT", "8080")
	c.BindIP = env.getEnv("BIND_IP", "0.0.0.0")
	c.Environment = env.getEnv("ENVIRONMENT", "development")
	c.LogLevel = env.getEnv("LOG_LEVEL", "info")
	c.DatabaseURL = env.getEnv("DATABASE_URL", "")
	c.DB.Dialect = env.getEnv("DB_DIALECT", "sqlite")
	c.DB.Driver = env.getEnv("DB_DRIVER", "")
	c.DB.Host = env.getEnv("DB_HOST", "")
	c.DB.Username = env.getEnv("DB_USERNAME", "")
	c.DB.Password = NewSecret(env.getEnv("DB_PASSWORD", ""))
	c.DB.Name = env.getEnv("DB_NAME", "hashbin.db")
	c.DBPasswordSecret = env.getEnv("DB_PASSWORD_SECRET", "")
	c.RedisURL = env.getEnv("REDIS_URL", "")
	c.RedisTLS = env.getEnv("REDIS_TLS", "false") == "true"
	c.RedisUsername = env.getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(env.getEnv("REDIS_PASSWORD", ""))
	c.TrustedProxies = env.getSlice("TRUSTED_PROXIES", []string{})
	c.MetricsUser = env.getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(env.getEnv("METRICS_PASS", ""))
	c.AllowedOrigins = env.getSlice("ALLOWED_ORIGINS", []string{})
	c.HighlightStyle = env.getEnv("HIGHLIGHT_STYLE", "github")

	var err error
	if c.DB.Port, err = env.getInt("DB_PORT", 0); err != nil {
		return nil, err
	}
	if c.DBMaxOpenConns, err = env.getInt("DB_MAX_OPEN_CONNS", 100); err != nil {
		return nil, err
	}
	if c.DBMaxIdleConns, err = env.getInt("DB_MAX_IDLE_CONNS", 10); err != nil {
		return nil, err
	}
	if c.DBQueryTimeout, err = env.getDuration("DB_QUERY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if c.RedisTimeout, err = env.getDuration("REDIS_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if c.RedisCacheTTL, err = env.getDuration("REDIS_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if c.LRUCacheSize, err = env.getInt("LRU_CACHE_SIZE", 1000); err != nil {
		return nil, err
	}
	if c.RateLimit.RPM, err = env.getInt("RATE_LIMIT_RPM", 60); err != nil {
		return nil, err
	}
	if c.RateLimit.Burst, err = env.getInt("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}
	if c.RateLimit.ConservativeLimit, err = env.getInt("RATE_LIMIT_CONSERVATIVE", 5); err != nil {
		return nil, err
	}
	if c.MaxPasteSize, err = env.getInt64("MAX_PASTE_SIZE", 16*1024*1024); err != nil {
		return nil, err
	}
	if c.ContextTimeout, err = env.getDuration("CONTEXT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	return c, nil
}

func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	if c.BindIP != "" && net.ParseIP(c.BindIP) == nil {
		return fmt.Errorf("invalid BIND_IP: %s", c.BindIP)
	}
	if c.DatabaseURL == "" {
		switch c.DB.Dialect {
		case "sqlite", "postgresql", "postgres", "bolt":
		default:
			return fmt.Errorf("unsupported DB_DIALECT: %s", c.DB.Dialect)
		}
		if c.DB.Name == "" {
			return errors.New("DB_NAME is required")
		}
	} else if !strings.Contains(c.DatabaseURL, "://") {
		return errors.New("DATABASE_URL must be a URL such as sqlite:///path/to.db")
	}
	if c.DB.Port < 0 || c.DB.Port > 65535 {
		return errors.New("DB_PORT out of range")
	}
	if c.DBMaxOpenConns <= 0 {
		return errors.New("DB_MAX_OPEN_CONNS must be positive")
	}
	if c.DBQueryTimeout <= 0 {
		return errors.New("DB_QUERY_TIMEOUT must be positive")
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	}
	if c.LRUCacheSize <= 0 {
		return errors.New("LRU_CACHE_SIZE must be positive")
	}
	if c.RateLimit.RPM <= 0 {
		return errors.New("RATE_LIMIT_RPM must be positive")
	}
	if c.MaxPasteSize <= 0 {
		return errors.New("MAX_PASTE_SIZE must be positive")
	}
	if c.MaxPasteSize > maxPasteSizeLimit {
		return errors.New("MAX_PASTE_SIZE cannot exceed 512MB")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else if net.ParseIP(proxy) == nil {
			return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
		}
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
	}
	return nil
}

func (c *Cfg) Wipe() {
	c.DB.Password.Wipe()
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
}

type loader struct {
	lookup func(string) (string, bool)
	file   map[string]string
}

func (l *loader) getEnv(key, fallback string) string {
	if v, ok := l.lookup(key); ok {
		return v
	}
	if v, ok := l.file[key]; ok {
		return v
	}
	return fallback
}
func (l *loader) getInt(key string, fallback int) (int, error) {
	s := l.getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func (l *loader) getInt64(key string, fallback int64) (int64, error) {
	s := l.getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func (l *loader) getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := l.getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func (l *loader) getSlice(key string, fallback []string) []string {
	s := l.getEnv(key, "")
	if s == "" {
		return fallback
	}
	var result []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
