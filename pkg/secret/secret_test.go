package secret

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

type staticProvider struct {
	val string
	err error
}

func (s staticProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return s.val, s.err
}

func mapEnv(m map[string]string) envProvider {
	return envProvider{lookup: func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}}
}

func TestResolverPrefersPrimary(t *testing.T) {
	r := NewResolverWith(staticProvider{val: "from-vault"}, mapEnv(map[string]string{"DB_PASS": "from-env"}), false)
	got, err := r.GetSecret(context.Background(), "DB_PASS")
	if err != nil {
		t.Fatalf("GetSecret() error = %v", err)
	}
	if got != "from-vault" {
		t.Errorf("GetSecret() = %q, want from-vault", got)
	}
}

func TestResolverFallsBack(t *testing.T) {
	r := NewResolverWith(staticProvider{err: errors.New("down")}, mapEnv(map[string]string{"DB_PASS": "from-env"}), false)
	got, err := r.GetSecret(context.Background(), "DB_PASS")
	if err != nil {
		t.Fatalf("GetSecret() error = %v", err)
	}
	if got != "from-env" {
		t.Errorf("GetSecret() = %q, want from-env", got)
	}
}

func TestResolverRequirePrimary(t *testing.T) {
	r := NewResolverWith(staticProvider{err: errors.New("down")}, mapEnv(map[string]string{"DB_PASS": "x"}), true)
	if _, err := r.GetSecret(context.Background(), "DB_PASS"); err == nil {
		t.Fatal("expected error when primary fails and is required")
	}
	r = NewResolverWith(nil, mapEnv(map[string]string{"DB_PASS": "x"}), true)
	if _, err := r.GetSecret(context.Background(), "DB_PASS"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("GetSecret() error = %v, want ErrProviderUnavailable", err)
	}
}

func TestEnvProviderMissing(t *testing.T) {
	r := NewResolverWith(nil, mapEnv(nil), false)
	_, err := r.GetSecret(context.Background(), "NOPE")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSecret() error = %v, want ErrNotFound", err)
	}
}
