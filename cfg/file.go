package cfg

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// fileCfg mirrors the YAML config file. Every field maps onto the
// environment key of the same setting; environment variables win.
type fileCfg struct {
	Server struct {
		Port        int    `yaml:"port"`
		BindIP      string `yaml:"bind_ip"`
		Environment string `yaml:"environment"`
		LogLevel    string `yaml:"log_level"`
	} `yaml:"server"`
	Database struct {
		URL            string `yaml:"url"`
		Dialect        string `yaml:"dialect"`
		Driver         string `yaml:"driver"`
		Host           string `yaml:"host"`
		Port           int    `yaml:"port"`
		Username       string `yaml:"username"`
		Password       string `yaml:"password"`
		PasswordSecret string `yaml:"password_secret"`
		Name           string `yaml:"dbname"`
	} `yaml:"database"`
	Redis struct {
		URL      string `yaml:"url"`
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"redis"`
}

func configCandidates(home string) []string {
	paths := []string{"/etc/hashbin.yaml"}
	if home != "" {
		paths = append(paths, filepath.Join(home, ".config", "hashbin.yml"))
	}
	return append(paths, "hashbin.yml")
}

func findConfigFile(home string) string {
	for _, p := range configCandidates(home) {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	var f fileCfg
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}
	values := map[string]string{}
	set := func(key, val string) {
		if val != "" {
			values[key] = val
		}
	}
	setInt := func(key string, val int) {
		if val != 0 {
			values[key] = strconv.Itoa(val)
		}
	}
	setInt("PORT", f.Server.Port)
	set("BIND_IP", f.Server.BindIP)
	set("ENVIRONMENT", f.Server.Environment)
	set("LOG_LEVEL", f.Server.LogLevel)
	set("DATABASE_URL", f.Database.URL)
	set("DB_DIALECT", f.Database.Dialect)
	set("DB_DRIVER", f.Database.Driver)
	set("DB_HOST", f.Database.Host)
	setInt("DB_PORT", f.Database.Port)
	set("DB_USERNAME", f.Database.Username)
	set("DB_PASSWORD", f.Database.Password)
	set("DB_PASSWORD_SECRET", f.Database.PasswordSecret)
	set("DB_NAME", f.Database.Name)
	set("REDIS_URL", f.Redis.URL)
	set("REDIS_CACHE_TTL", f.Redis.CacheTTL)
	return values, nil
}
