package db

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"hashbin/cfg"

	"github.com/pkg/errors"
)

const (
	DialectSQLite     = "sqlite"
	DialectPostgreSQL = "postgresql"
	DialectBolt       = "bolt"
)

var dialectAliases = map[string]string{
	"sqlite":     DialectSQLite,
	"sqlite3":    DialectSQLite,
	"postgresql": DialectPostgreSQL,
	"postgres":   DialectPostgreSQL,
	"bolt":       DialectBolt,
	"bbolt":      DialectBolt,
}

// Descriptor names a database connection. File based dialects keep their path
// in DBName.
type Descriptor struct {
	Dialect  string
	Driver   string
	Host     string
	Port     int
	Username string
	Password string
	DBName   string
	Params   url.Values
}

// ParseURL parses dialect[+driver]://[user[:password]@]host[:port]/dbname.
// For sqlite and bolt everything after "://" is the file path, so
// sqlite:///var/lib/hashbin.db is absolute and sqlite://:memory: is in memory.
func ParseURL(raw string) (Descriptor, error) {
	var d Descriptor
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return d, errors.Errorf("database url %q has no scheme", raw)
	}
	d.Dialect, d.Driver, _ = strings.Cut(strings.ToLower(scheme), "+")
	if canon, ok := dialectAliases[d.Dialect]; ok {
		d.Dialect = canon
	}
	switch d.Dialect {
	case DialectSQLite, DialectBolt:
		path, query, _ := strings.Cut(rest, "?")
		d.DBName = path
		if query != "" {
			params, err := url.ParseQuery(query)
			if err != nil {
				return d, errors.Wrap(err, "database url params")
			}
			d.Params = params
		}
		return d, nil
	}
	u, err := url.Parse("db://" + rest)
	if err != nil {
		return d, errors.Wrap(err, "parse database url")
	}
	d.Host = u.Hostname()
	if p := u.Port(); p != "" {
		if d.Port, err = strconv.Atoi(p); err != nil {
			return d, errors.Wrap(err, "database port")
		}
	}
	if u.User != nil {
		d.Username = u.User.Username()
		d.Password, _ = u.User.Password()
	}
	d.DBName = strings.TrimPrefix(u.Path, "/")
	if q := u.Query(); len(q) > 0 {
		d.Params = q
	}
	return d, nil
}

// FromConfig builds the descriptor from DATABASE_URL, or from the individual
// DB_* settings when no URL is configured.
func FromConfig(c *cfg.Cfg) (Descriptor, error) {
	if c.DatabaseURL != "" {
		return ParseURL(c.DatabaseURL)
	}
	d := Descriptor{
		Dialect:  strings.ToLower(c.DB.Dialect),
		Driver:   c.DB.Driver,
		Host:     c.DB.Host,
		Port:     c.DB.Port,
		Username: c.DB.Username,
		Password: c.DB.Password.Value(),
		DBName:   c.DB.Name,
	}
	if canon, ok := dialectAliases[d.Dialect]; ok {
		d.Dialect = canon
	}
	return d, nil
}

func (d Descriptor) Validate() error {
	if _, ok := dialectAliases[d.Dialect]; !ok {
		return errors.Errorf("unsupported database dialect %q", d.Dialect)
	}
	if d.DBName == "" {
		return errors.New("database name is empty")
	}
	if d.Dialect == DialectPostgreSQL && d.Host == "" {
		return errors.New("database host is empty")
	}
	return nil
}

// String renders the descriptor as a URL with the password redacted.
func (d Descriptor) String() string {
	scheme := d.Dialect
	if d.Driver != "" {
		scheme += "+" + d.Driver
	}
	if d.Dialect == DialectSQLite || d.Dialect == DialectBolt {
		return scheme + "://" + d.DBName
	}
	return d.url(scheme).Redacted()
}

func (d Descriptor) url(scheme string) *url.URL {
	u := &url.URL{Scheme: scheme, Host: d.Host, Path: "/" + d.DBName}
	if d.Port != 0 {
		u.Host = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	}
	if d.Username != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.Username, d.Password)
		} else {
			u.User = url.User(d.Username)
		}
	}
	if len(d.Params) > 0 {
		u.RawQuery = d.Params.Encode()
	}
	return u
}

// dsn is the driver-specific data source name.
func (d Descriptor) dsn() string {
	switch d.Dialect {
	case DialectSQLite:
		params := url.Values{}
		for k, v := range d.Params {
			params[k] = v
		}
		for k, v := range map[string]string{
			"_busy_timeout": "5000",
			"_journal_mode": "WAL",
			"_synchronous":  "FULL",
		} {
			if params.Get(k) == "" {
				params.Set(k, v)
			}
		}
		if d.inMemory() {
			params.Del("_journal_mode")
		}
		return fmt.Sprintf("%s?%s", d.DBName, params.Encode())
	case DialectPostgreSQL:
		return d.url("postgres").String()
	}
	return d.DBName
}

func (d Descriptor) inMemory() bool {
	return d.DBName == ":memory:"
}
