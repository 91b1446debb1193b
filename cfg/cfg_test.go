package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
)

func envFrom(t *testing.T, dotenv string) func(string) (string, bool) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(dotenv), 0o600); err != nil {
		t.Fatal(err)
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		t.Fatalf("godotenv.Read: %v", err)
	}
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	c, err := load(envFrom(t, ""))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if c.Port != "8080" {
		t.Errorf("Port = %q, want 8080", c.Port)
	}
	if c.DB.Dialect != "sqlite" || c.DB.Name != "hashbin.db" {
		t.Errorf("DB = %+v, want sqlite hashbin.db", c.DB)
	}
	if c.RedisCacheTTL != 24*time.Hour {
		t.Errorf("RedisCacheTTL = %v", c.RedisCacheTTL)
	}
	if err := Validate(c); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "hashbin.yml")
	yml := `
server:
  port: 9090
  log_level: debug
database:
  dialect: postgresql
  host: db.internal
  port: 5432
  username: paste
  password: hunter2
  dbname: pastes
redis:
  cache_ttl: 1h
`
	if err := os.WriteFile(file, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := load(envFrom(t, "CONFIG_FILE="+file+"\nLOG_LEVEL=warn\n"))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if c.ConfigFile != file {
		t.Errorf("ConfigFile = %q, want %q", c.ConfigFile, file)
	}
	if c.Port != "9090" {
		t.Errorf("Port = %q, want 9090 from file", c.Port)
	}
	if c.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want env value warn", c.LogLevel)
	}
	if c.DB.Dialect != "postgresql" || c.DB.Host != "db.internal" || c.DB.Port != 5432 || c.DB.Name != "pastes" {
		t.Errorf("DB = %+v", c.DB)
	}
	if c.DB.Password.Value() != "hunter2" {
		t.Error("DB password not read from file")
	}
	if c.RedisCacheTTL != time.Hour {
		t.Errorf("RedisCacheTTL = %v, want 1h", c.RedisCacheTTL)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := load(envFrom(t, "CONFIG_FILE=/nonexistent/hashbin.yml\n"))
	if err == nil {
		t.Fatal("expected error for missing CONFIG_FILE")
	}
}

func TestLoadInvalidValues(t *testing.T) {
	for _, env := range []string{
		"LRU_CACHE_SIZE=many\n",
		"DB_QUERY_TIMEOUT=soon\n",
		"MAX_PASTE_SIZE=1e9\n",
	} {
		if _, err := load(envFrom(t, env)); err == nil {
			t.Errorf("load(%q) expected error", env)
		}
	}
}

func TestValidate(t *testing.T) {
	base := func() *Cfg {
		c, err := load(envFrom(t, ""))
		if err != nil {
			t.Fatal(err)
		}
		return c
	}
	tests := []struct {
		name   string
		mutate func(*Cfg)
	}{
		{"port", func(c *Cfg) { c.Port = "http" }},
		{"dialect", func(c *Cfg) { c.DB.Dialect = "oracle" }},
		{"db name", func(c *Cfg) { c.DB.Name = "" }},
		{"database url", func(c *Cfg) { c.DatabaseURL = "hashbin.db" }},
		{"redis scheme", func(c *Cfg) { c.RedisURL = "http://localhost" }},
		{"rediss without tls", func(c *Cfg) { c.RedisURL = "rediss://localhost" }},
		{"lru", func(c *Cfg) { c.LRUCacheSize = 0 }},
		{"paste size", func(c *Cfg) { c.MaxPasteSize = maxPasteSizeLimit + 1 }},
		{"proxy", func(c *Cfg) { c.TrustedProxies = []string{"10.0.0.0/99"} }},
		{"production metrics", func(c *Cfg) { c.Environment = "production" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := Validate(c); err == nil {
				t.Errorf("Validate() expected error")
			}
		})
	}
}

func TestSecretRedacted(t *testing.T) {
	s := NewSecret("hunter2")
	if s.String() != "***REDACTED***" {
		t.Errorf("String() = %q", s.String())
	}
	s.Wipe()
	if s.Value() != "\x00\x00\x00\x00\x00\x00\x00" {
		t.Errorf("Wipe() left %q", s.Value())
	}
}
