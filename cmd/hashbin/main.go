// Command hashbin runs the paste server and its maintenance commands.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"hashbin/cfg"
	"hashbin/pkg/secret"
	"hashbin/svc/db"
	"hashbin/svc/util"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func main() {
	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			os.Exit(ec.ExitCode())
		}
		os.Exit(1)
	}
}

// env is what every command needs: the validated configuration and a lazily
// connected store.
type env struct {
	cfg   *cfg.Cfg
	store *db.Lazy
}

type envKey struct{}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "hashbin",
		Usage:     "content addressed paste bin",
		Writer:    stdout,
		ErrWriter: stderr,
		// exit codes are applied in main so the app can run inside tests
		ExitErrHandler: func(*cli.Context, error) {},
		Before:         setup,
		After:          teardown,
		Action:         serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server",
				Action: serve,
			},
			{
				Name:   "health",
				Usage:  "exit 0 when the store answers",
				Action: health,
			},
			{
				Name:  "db",
				Usage: "database maintenance",
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "create the schema",
						Action: dbInit,
					},
				},
			},
			{
				Name:  "paste",
				Usage: "inspect and remove pastes",
				Subcommands: []*cli.Command{
					{
						Name:      "info",
						Usage:     "show what is stored under each identifier",
						ArgsUsage: "<hashid>...",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "data", Usage: "print the paste contents"},
						},
						Action: pasteInfo,
					},
					{
						Name:      "remove",
						Usage:     "delete pastes",
						ArgsUsage: "<hashid>...",
						Action:    pasteRemove,
					},
				},
			},
		},
	}
}

func setup(c *cli.Context) error {
	conf, err := cfg.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	util.InitLog(conf.LogLevel, conf.Environment == "development")
	if conf.DBPasswordSecret != "" {
		pw, err := secret.NewResolver(c.Context).GetSecret(c.Context, conf.DBPasswordSecret)
		if err != nil {
			return errors.Wrap(err, "failed to resolve database password")
		}
		conf.DB.Password = cfg.NewSecret(pw)
	}
	if err := cfg.Validate(conf); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	desc, err := db.FromConfig(conf)
	if err != nil {
		return errors.Wrap(err, "invalid database configuration")
	}
	store := db.Open(desc, db.Options{
		MaxOpenConns: conf.DBMaxOpenConns,
		MaxIdleConns: conf.DBMaxIdleConns,
		QueryTimeout: conf.DBQueryTimeout,
		// checkpoints only run once a sqlite file database is connected
		WALMaintenance: true,
	})
	c.Context = context.WithValue(c.Context, envKey{}, &env{cfg: conf, store: store})
	return nil
}

func teardown(c *cli.Context) error {
	e, ok := c.Context.Value(envKey{}).(*env)
	if !ok {
		return nil
	}
	e.cfg.Wipe()
	return e.store.Close()
}

func envFrom(c *cli.Context) *env {
	return c.Context.Value(envKey{}).(*env)
}

func health(c *cli.Context) error {
	e := envFrom(c)
	ctx, cancel := context.WithTimeout(c.Context, e.cfg.DBQueryTimeout)
	defer cancel()
	if err := e.store.Ping(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("store unreachable: %v", err), 1)
	}
	fmt.Fprintln(c.App.Writer, "ok")
	return nil
}

func dbInit(c *cli.Context) error {
	e := envFrom(c)
	if err := e.store.Init(c.Context); err != nil {
		return errors.Wrap(err, "failed to initialize the database")
	}
	util.Info().Str("database", e.store.Descriptor().String()).Msg("schema created")
	fmt.Fprintln(c.App.Writer, "initialized the database successfully")
	return nil
}

func openRedis(e *env) (*db.Redis, error) {
	if e.cfg.RedisURL == "" {
		return nil, nil
	}
	rdb, err := db.NewRedis(e.cfg.RedisURL, e.cfg)
	if err != nil {
		util.Warn().Err(err).Msg("redis unavailable, cached copies may linger until they expire")
		return nil, err
	}
	return rdb, nil
}
