package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"hashbin/svc/api"
	"hashbin/svc/cache"
	"hashbin/svc/db"
	"hashbin/svc/lim"
	"hashbin/svc/svc"
	"hashbin/svc/util"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func serve(c *cli.Context) error {
	e := envFrom(c)
	conf := e.cfg
	util.Info().
		Str("database", e.store.Descriptor().String()).
		Str("environment", conf.Environment).
		Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := e.store
	// an unreachable database is not fatal: requests answer 503 until it is back
	if err := store.Init(ctx); err != nil {
		util.Warn().Err(err).Msg("database not ready, will retry on demand")
	}

	var (
		rdb     *db.Redis
		l2      svc.PasteCache
		counter lim.Counter
		pinger  api.Pinger
	)
	if conf.RedisURL != "" {
		var err error
		rdb, err = db.NewRedis(conf.RedisURL, conf)
		if err != nil {
			if conf.Environment == "production" {
				return errors.Wrap(err, "redis required in production")
			}
			util.Warn().Err(err).Msg("redis unavailable, running without shared cache")
		} else {
			defer rdb.Close()
			l2, counter, pinger = rdb, rdb, rdb
			util.Info().Msg("redis connected")
		}
	}

	lruCache, err := cache.NewLRU(conf.LRUCacheSize)
	if err != nil {
		return errors.Wrap(err, "failed to create LRU cache")
	}
	util.Info().Int("size", conf.LRUCacheSize).Msg("LRU cache initialized")

	pasteSvc := svc.NewPaste(store, lruCache, l2, conf)
	limiter := lim.New(conf.RateLimit.RPM, conf.RateLimit.Burst, conf.RateLimit.ConservativeLimit, counter, conf.TrustedProxies)
	defer limiter.Stop()
	util.Info().
		Int("rpm", conf.RateLimit.RPM).
		Int("burst", conf.RateLimit.Burst).
		Strs("trusted_proxies", conf.TrustedProxies).
		Msg("rate limiter initialized")

	server := api.NewServer(conf, pasteSvc, limiter, pinger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	util.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown failed")
	}
	pasteSvc.Shutdown()
	util.Info().Msg("server stopped")
	return nil
}
