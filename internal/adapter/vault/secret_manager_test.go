package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/pkg/config"
)

func fakeVault(t *testing.T, path string, data map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s.test", r.Header.Get("X-Vault-Token"))
		if r.URL.Path != "/v1/"+path {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"data": data, "metadata": map[string]interface{}{"version": 3}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOverlay(t *testing.T) {
	srv := fakeVault(t, "secret/data/evrental", map[string]interface{}{
		KeyDatabaseURL: "postgres://vault@db/evrental",
		KeyJWTSecret:   "from-vault",
		"unrelated":    42,
	})
	sm, err := NewSecretManager(srv.URL, "s.test", zap.NewNop())
	require.NoError(t, err)

	cfg := &config.Config{
		Database: config.DatabaseConfig{URL: "postgres://file@db/evrental"},
		Redis:    config.RedisConfig{URL: "redis://cache:6379"},
		Vault:    config.VaultConfig{Path: "secret/data/evrental"},
	}
	require.NoError(t, sm.Overlay(context.Background(), cfg))

	assert.Equal(t, "postgres://vault@db/evrental", cfg.Database.URL)
	assert.Equal(t, "from-vault", cfg.JWT.Secret)
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL, "keys missing in vault are kept")
}

func TestRead_MissingEntry(t *testing.T) {
	srv := fakeVault(t, "secret/data/evrental", nil)
	sm, err := NewSecretManager(srv.URL, "s.test", zap.NewNop())
	require.NoError(t, err)

	secrets, err := sm.Read(context.Background(), "secret/data/other")
	require.NoError(t, err)
	assert.Empty(t, secrets)
}
