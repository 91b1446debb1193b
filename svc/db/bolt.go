package db

import (
	"context"
	"encoding/json"

	"hashbin/pkg/domain"
	"hashbin/pkg/hashid"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var pasteBucket = []byte("paste")

// Bolt stores one JSON record per identifier in a single bucket. bbolt
// serializes writers, so the uniqueness check and the put in Create happen
// atomically inside one update transaction.
type Bolt struct {
	db *bolt.DB
}

func openBolt(path string, opts Options) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: opts.withDefaults().QueryTimeout})
	if err != nil {
		return nil, errors.Wrap(err, "open bolt")
	}
	b := &Bolt{db: db}
	if err := b.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bolt) Init(ctx context.Context) error {
	return errors.Wrap(b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pasteBucket)
		return err
	}), "create bucket")
}

func (b *Bolt) Create(ctx context.Context, p *domain.Paste) (string, error) {
	if hashid.Digest(p.Data) != p.ID {
		return "", errors.Wrap(domain.ErrInvalidRequest, "identifier does not match data")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rec, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, "marshal paste")
	}
	var id string
	err = b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(pasteBucket)
		if err != nil {
			return err
		}
		if raw := bkt.Get([]byte(p.ID)); raw != nil {
			existing, err := decodePaste(raw)
			if err != nil {
				return err
			}
			id, err = reconcile(p, existing)
			return err
		}
		id = p.ID
		return bkt.Put([]byte(p.ID), rec)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (b *Bolt) Query(ctx context.Context, id string) (*domain.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p *domain.Paste
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(pasteBucket)
		if bkt == nil {
			return nil
		}
		raw := bkt.Get([]byte(id))
		if raw == nil {
			return nil
		}
		var err error
		p, err = decodePaste(raw)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "bolt query")
	}
	return p, nil
}

func (b *Bolt) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(pasteBucket)
		if bkt == nil || bkt.Get([]byte(id)) == nil {
			return nil
		}
		found = true
		return bkt.Delete([]byte(id))
	})
	if err != nil {
		return false, errors.Wrap(err, "bolt delete")
	}
	return found, nil
}

func (b *Bolt) Ping(ctx context.Context) error {
	return b.db.View(func(tx *bolt.Tx) error { return nil })
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

// decodePaste copies out of the mmap'd value; raw is only valid inside the
// transaction.
func decodePaste(raw []byte) (*domain.Paste, error) {
	var p domain.Paste
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, "decode paste")
	}
	if p.Data == nil {
		p.Data = []byte{}
	}
	return &p, nil
}
