package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"hashbin/pkg/domain"
	"hashbin/pkg/hashid"
	"hashbin/pkg/media"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaste(data string, mime string) *domain.Paste {
	return domain.NewPaste([]byte(data), domain.CreateParams{Mime: mime, IP: "127.0.0.1"}, time.Now())
}

// runStoreSuite exercises the engine contract. plant stores a record
// verbatim, bypassing Create, so collisions can be fabricated.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store, plant func(t *testing.T, s Store, p *domain.Paste)) {
	ctx := context.Background()

	t.Run("create and query", func(t *testing.T) {
		s := open(t)
		p := newPaste("abc", "")
		id, err := s.Create(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", id)

		got, err := s.Query(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, []byte("abc"), got.Data)
		assert.Equal(t, media.TextPlain, got.Mime)
		assert.Equal(t, "127.0.0.1", got.IP)
		assert.Nil(t, got.Sunset)
		assert.WithinDuration(t, p.Timestamp, got.Timestamp, time.Second)
	})

	t.Run("create is idempotent", func(t *testing.T) {
		s := open(t)
		p := newPaste("contents", "")
		first, err := s.Create(ctx, p)
		require.NoError(t, err)
		second, err := s.Create(ctx, newPaste("contents", "text/markdown"))
		require.NoError(t, err)
		assert.Equal(t, first, second)

		got, err := s.Query(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, media.TextPlain, got.Mime, "first write wins")
	})

	t.Run("sunset and redirect round trip", func(t *testing.T) {
		s := open(t)
		sunset := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		p := domain.NewPaste([]byte("http://www.google.com"), domain.CreateParams{Mime: media.Redirect, Sunset: &sunset}, time.Now())
		id, err := s.Create(ctx, p)
		require.NoError(t, err)
		got, err := s.Query(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got.Sunset)
		assert.True(t, sunset.Equal(*got.Sunset))
		assert.True(t, got.IsRedirect())
		assert.Equal(t, "", got.IP)
	})

	t.Run("empty paste", func(t *testing.T) {
		s := open(t)
		id, err := s.Create(ctx, newPaste("", ""))
		require.NoError(t, err)
		assert.Equal(t, hashid.Digest(nil), id)
		got, err := s.Query(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Empty(t, got.Data)
	})

	t.Run("query missing", func(t *testing.T) {
		s := open(t)
		got, err := s.Query(ctx, "nonexistent")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		id, err := s.Create(ctx, newPaste("to delete", ""))
		require.NoError(t, err)
		found, err := s.Delete(ctx, id)
		require.NoError(t, err)
		assert.True(t, found)
		got, err := s.Query(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)
		found, err = s.Delete(ctx, id)
		require.NoError(t, err)
		assert.False(t, found)
		found, err = s.Delete(ctx, "nonexistent")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("rejects mismatched identifier", func(t *testing.T) {
		s := open(t)
		p := newPaste("abc", "")
		p.Data = []byte("abd")
		_, err := s.Create(ctx, p)
		assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
	})

	t.Run("collision", func(t *testing.T) {
		s := open(t)
		p := newPaste("the real bytes", "")
		forged := *p
		forged.Data = []byte("other bytes claiming the same id")
		plant(t, s, &forged)

		_, err := s.Create(ctx, p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrHashCollision))
		var ce *domain.CollisionErr
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, p.ID, ce.ID)

		got, err := s.Query(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, forged.Data, got.Data, "existing row is never overwritten")
	})

	t.Run("concurrent identical creates converge", func(t *testing.T) {
		s := open(t)
		var wg sync.WaitGroup
		errs := make([]error, 8)
		ids := make([]string, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ids[i], errs[i] = s.Create(ctx, newPaste("same bytes", ""))
			}(i)
		}
		wg.Wait()
		for i := range errs {
			require.NoError(t, errs[i])
			assert.Equal(t, hashid.Digest([]byte("same bytes")), ids[i])
		}
		found, err := s.Delete(ctx, ids[0])
		require.NoError(t, err)
		assert.True(t, found)
		got, err := s.Query(ctx, ids[0])
		require.NoError(t, err)
		assert.Nil(t, got, "only one row was stored")
	})

	t.Run("ping", func(t *testing.T) {
		s := open(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
