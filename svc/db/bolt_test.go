package db

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"hashbin/pkg/domain"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openBoltStore(t *testing.T) Store {
	t.Helper()
	s, err := openBolt(filepath.Join(t.TempDir(), "hashbin.bolt"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func plantBolt(t *testing.T, s Store, p *domain.Paste) {
	t.Helper()
	rec, err := json.Marshal(p)
	require.NoError(t, err)
	err = s.(*Bolt).db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pasteBucket).Put([]byte(p.ID), rec)
	})
	require.NoError(t, err)
}

func TestBoltStore(t *testing.T) {
	runStoreSuite(t, openBoltStore, plantBolt)
}
