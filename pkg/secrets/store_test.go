package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		wantErr     bool
		errContains string
	}{
		{name: "memory", provider: "memory", wantErr: false},
		{name: "env", provider: "env", wantErr: false},
		{name: "unknown provider", provider: "unknown", wantErr: true, errContains: "unsupported secret provider"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(Config{Provider: tc.provider})
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
				assert.Nil(t, store)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, store)
		})
	}
}

func TestMemoryStoreContract(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "outbox/key-slot")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, s.Set(ctx, "outbox/key-slot", "value"))
	got, err := s.Get(ctx, "outbox/key-slot")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	require.NoError(t, s.Delete(ctx, "outbox/key-slot"))
	_, err = s.Get(ctx, "outbox/key-slot")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestEnvStoreIsReadOnly(t *testing.T) {
	ctx := context.Background()
	s := NewEnvStore()

	_, err := s.Get(ctx, "memq-test/key-slot")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	t.Setenv("MEMQ_TEST_KEY_SLOT", "c2VjcmV0")
	got, err := s.Get(ctx, "memq-test/key-slot")
	require.NoError(t, err)
	assert.Equal(t, "c2VjcmV0", got)

	assert.ErrorIs(t, s.Set(ctx, "memq-test/key-slot", "x"), ErrReadOnly)
	assert.ErrorIs(t, s.Delete(ctx, "memq-test/key-slot"), ErrReadOnly)
}

// fakeVault 仅实现 KV v1 的 GET/PUT/DELETE
type fakeVault struct {
	mu   sync.Mutex
	data map[string]string
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	switch r.Method {
	case http.MethodGet:
		v, ok := f.data[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"errors":[]}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"value": v}})
	case http.MethodPut, http.MethodPost:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.data[path] = body["value"]
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		delete(f.data, path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestVault(t *testing.T) (*vaultStore, *fakeVault) {
	t.Helper()
	fv := &fakeVault{data: map[string]string{}}
	srv := httptest.NewServer(fv)
	t.Cleanup(srv.Close)

	cfg := vault.DefaultConfig()
	cfg.Address = srv.URL
	client, err := vault.NewClient(cfg)
	require.NoError(t, err)
	client.SetToken("test-token")
	return newVaultStoreWithClient(client, "secret"), fv
}

func TestVaultStoreContract(t *testing.T) {
	ctx := context.Background()
	s, fv := newTestVault(t)

	_, err := s.Get(ctx, "outbox/key-slot")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, s.Set(ctx, "outbox/key-slot", "a2V5"))
	assert.Equal(t, "a2V5", fv.data["secret/outbox/key-slot"])

	// 绕过写缓存，确认从服务端读取
	s.transient = map[string]string{}
	got, err := s.Get(ctx, "outbox/key-slot")
	require.NoError(t, err)
	assert.Equal(t, "a2V5", got)

	require.NoError(t, s.Delete(ctx, "outbox/key-slot"))
	_, err = s.Get(ctx, "outbox/key-slot")
	assert.True(t, errors.Is(err, ErrSecretNotFound))
}
