package svc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"hashbin/cfg"
	"hashbin/metrics"
	"hashbin/pkg/domain"
	"hashbin/svc/cache"
	"hashbin/svc/db"
	"hashbin/svc/util"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

var ErrShuttingDown = errors.New("service shutting down")

// PasteCache is the shared second-level cache. *db.Redis implements it.
type PasteCache interface {
	CachePaste(ctx context.Context, p *domain.Paste, ttl time.Duration) error
	GetPaste(ctx context.Context, id string) (*domain.Paste, error)
	Delete(ctx context.Context, id string) error
}

// Paste is the blob store used by the HTTP layer and the CLI. It derives
// identifiers, applies defaults and reads through the cache tiers.
type Paste struct {
	store    db.Store
	lru      *cache.LRU
	rdb      PasteCache
	cfg      *cfg.Cfg
	now      func() time.Time
	group    singleflight.Group
	shutdown atomic.Bool
	opWg     sync.WaitGroup
}

// NewPaste wires the service. lru and rdb are optional.
func NewPaste(store db.Store, lru *cache.LRU, rdb PasteCache, c *cfg.Cfg) *Paste {
	if store == nil || c == nil {
		panic("paste service: nil dependency (store or cfg)")
	}
	return &Paste{store: store, lru: lru, rdb: rdb, cfg: c, now: time.Now}
}

func (p *Paste) Store() db.Store {
	return p.store
}

func (p *Paste) begin() error {
	if p.shutdown.Load() {
		return ErrShuttingDown
	}
	p.opWg.Add(1)
	return nil
}

// Create stores data and returns its identifier. Storing bytes that are
// already present returns the existing identifier.
func (p *Paste) Create(ctx context.Context, data []byte, params domain.CreateParams) (string, error) {
	if err := p.begin(); err != nil {
		return "", err
	}
	defer p.opWg.Done()
	if int64(len(data)) > p.cfg.MaxPasteSize {
		return "", domain.ErrPasteTooLarge
	}
	paste := domain.NewPaste(data, params, p.now())
	id, err := p.store.Create(ctx, paste)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrHashCollision):
			metrics.PasteCollision.Inc()
			util.Warn().Str("id", paste.ID).Msg("hash collision rejected")
		case errors.Is(err, domain.ErrStoreUnavailable):
			metrics.StoreUnavailable.Inc()
		}
		return "", errors.Wrap(err, "create paste")
	}
	metrics.PasteCreated.Inc()
	util.Debug().Str("id", id).Str("mime", paste.Mime).Int("size", len(data)).Msg("paste stored")
	return id, nil
}

// Query returns the paste or nil, nil when no paste has the identifier.
// Concurrent misses for one identifier share a single store lookup.
func (p *Paste) Query(ctx context.Context, id string) (*domain.Paste, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.opWg.Done()
	if p.lru != nil {
		if hit := p.lru.Get(ctx, id); hit != nil {
			metrics.CacheHits.WithLabelValues("lru").Inc()
			metrics.PasteRetrieved.Inc()
			return hit, nil
		}
	}
	// the shared lookup outlives any single caller; each waiter gives up on
	// its own context
	ch := p.group.DoChan(id, func() (interface{}, error) {
		lctx, cancel := p.loadContext(ctx)
		defer cancel()
		return p.load(lctx, id)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	paste, _ := res.Val.(*domain.Paste)
	if paste != nil {
		metrics.PasteRetrieved.Inc()
	}
	return paste, nil
}

func (p *Paste) loadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if p.cfg.DBQueryTimeout > 0 {
		return context.WithTimeout(ctx, p.cfg.DBQueryTimeout)
	}
	return context.WithCancel(ctx)
}

func (p *Paste) load(ctx context.Context, id string) (*domain.Paste, error) {
	if p.rdb != nil {
		paste, err := p.rdb.GetPaste(ctx, id)
		if err != nil {
			util.Warn().Err(err).Str("id", id).Msg("redis lookup failed")
		} else if paste != nil {
			metrics.CacheHits.WithLabelValues("redis").Inc()
			p.fillLRU(paste)
			return paste, nil
		}
	}
	metrics.CacheMisses.Inc()
	paste, err := p.store.Query(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			metrics.StoreUnavailable.Inc()
		}
		return nil, errors.Wrap(err, "query paste")
	}
	if paste == nil {
		return nil, nil
	}
	p.fillLRU(paste)
	if p.rdb != nil {
		if err := p.rdb.CachePaste(ctx, paste, p.cfg.RedisCacheTTL); err != nil {
			util.Warn().Err(err).Str("id", id).Msg("failed to cache in Redis")
		}
	}
	return paste, nil
}

func (p *Paste) fillLRU(paste *domain.Paste) {
	if p.lru != nil {
		p.lru.Set(paste)
	}
}

// Delete removes the paste and reports whether it existed. Cache entries are
// dropped either way.
func (p *Paste) Delete(ctx context.Context, id string) (bool, error) {
	if err := p.begin(); err != nil {
		return false, err
	}
	defer p.opWg.Done()
	found, err := p.store.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			metrics.StoreUnavailable.Inc()
		}
		return false, errors.Wrap(err, "delete paste")
	}
	if p.lru != nil {
		p.lru.Delete(id)
	}
	if p.rdb != nil {
		if err := p.rdb.Delete(ctx, id); err != nil {
			util.Warn().Err(err).Str("id", id).Msg("failed to delete from redis")
		}
	}
	if found {
		metrics.PasteDeleted.Inc()
		util.Info().Str("id", id).Msg("paste deleted")
	}
	return found, nil
}

// Shutdown stops accepting operations and waits for running ones.
func (p *Paste) Shutdown() {
	p.shutdown.Store(true)
	p.opWg.Wait()
	util.Debug().Msg("paste service shutdown complete")
}
