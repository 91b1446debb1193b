package db

import (
	"context"
	"sync"
	"time"

	"hashbin/pkg/domain"
	"hashbin/svc/util"

	"github.com/pkg/errors"
)

type Options struct {
	MaxOpenConns   int
	MaxIdleConns   int
	QueryTimeout   time.Duration
	WALMaintenance bool
}

func (o Options) withDefaults() Options {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = defaultMaxOpenConns
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = defaultMaxIdleConns
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = defaultQueryTimeout
	}
	return o
}

// Lazy is a Store that connects on first use. A failed connect surfaces as
// domain.ErrStoreUnavailable from the operation that triggered it, and the
// next operation tries again.
type Lazy struct {
	desc  Descriptor
	opts  Options
	mu    sync.Mutex
	store Store
}

// Open never fails; connection problems are reported by the first operation.
func Open(desc Descriptor, opts Options) *Lazy {
	return &Lazy{desc: desc, opts: opts}
}

func connect(ctx context.Context, desc Descriptor, opts Options) (Store, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	switch desc.Dialect {
	case DialectBolt:
		return openBolt(desc.DBName, opts)
	default:
		return openSQL(ctx, desc, opts)
	}
}

// Engine returns the connected engine, connecting if needed.
func (l *Lazy) Engine(ctx context.Context) (Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store != nil {
		return l.store, nil
	}
	s, err := connect(ctx, l.desc, l.opts)
	if err != nil {
		util.Warn().Err(err).Str("database", l.desc.String()).Msg("database connect failed")
		return nil, domain.Unavailable(errors.Wrap(err, "connect"))
	}
	util.Info().Str("database", l.desc.String()).Msg("database connected")
	l.store = s
	return s, nil
}

func (l *Lazy) Descriptor() Descriptor {
	return l.desc
}

func (l *Lazy) Init(ctx context.Context) error {
	s, err := l.Engine(ctx)
	if err != nil {
		return err
	}
	return s.Init(ctx)
}

func (l *Lazy) Create(ctx context.Context, p *domain.Paste) (string, error) {
	s, err := l.Engine(ctx)
	if err != nil {
		return "", err
	}
	return s.Create(ctx, p)
}

func (l *Lazy) Query(ctx context.Context, id string) (*domain.Paste, error) {
	s, err := l.Engine(ctx)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, id)
}

func (l *Lazy) Delete(ctx context.Context, id string) (bool, error) {
	s, err := l.Engine(ctx)
	if err != nil {
		return false, err
	}
	return s.Delete(ctx, id)
}

func (l *Lazy) Ping(ctx context.Context) error {
	s, err := l.Engine(ctx)
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil {
		return nil
	}
	err := l.store.Close()
	l.store = nil
	return err
}
