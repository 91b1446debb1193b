package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"hashbin/cfg"
	"hashbin/metrics"
	"hashbin/pkg/render"
	"hashbin/svc/lim"
	"hashbin/svc/svc"
	"hashbin/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
)

// Pinger is anything the readiness probe can check. *db.Redis implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router     *chi.Mux
	paste      *svc.Paste
	lim        *lim.Limiter
	cfg        *cfg.Cfg
	rdb        Pinger
	httpServer *http.Server
}

// NewServer wires the routes. rdb may be nil when Redis is not configured.
func NewServer(c *cfg.Cfg, p *svc.Paste, l *lim.Limiter, rdb Pinger) *Server {
	r := chi.NewRouter()
	mw := NewMw(l, c)
	s := &Server{
		router: r,
		paste:  p,
		lim:    l,
		cfg:    c,
		rdb:    rdb,
	}
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Get("/health", s.Health)
		r.Get("/ready", s.Ready)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Handle("/metrics", mw.BasicAuthMetrics(promhttp.Handler()))
	})
	if c.Environment != "production" {
		r.Mount("/debug", middleware.Profiler())
	}

	hdl := NewHdl(p, c, render.NewDispatcher(render.WithStyle(c.HighlightStyle)))
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Use(mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			route := "view"
			if rctx := chi.RouteContext(req.Context()); rctx != nil && rctx.RoutePattern() != "/*" {
				route = rctx.RoutePattern()
			}
			metrics.RequestDuration.WithLabelValues(req.Method, route, strconv.Itoa(status)).Observe(dur.Seconds())
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Str("url", req.URL.String()).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		r.Use(mw.ContextTimeout)
		r.Use(mw.SecurityHeaders)
		r.Use(mw.CORS)
		r.Use(mw.AnomalyDetection)

		r.Get("/", hdl.Index)
		r.With(
			middleware.RequestSize(c.MaxPasteSize+maxFormOverhead),
			mw.RateLimit("create"),
		).Post("/", hdl.CreatePaste)
		r.Get("/about", hdl.About)
		r.Get("/about.md", hdl.AboutMarkdown)
		r.Handle("/static/*", hdl.Static())
		r.Get("/*", hdl.View)
	})
	r.NotFound(hdl.NotFound)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(c.BindIP, c.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    256 * 1024,
	}
	return s
}
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
func (s *Server) Start() error {
	util.Info().Str("addr", s.httpServer.Addr).Msg("starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Str("addr", s.httpServer.Addr).Msg("server failed to start")
		return err
	}
	return nil
}
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
