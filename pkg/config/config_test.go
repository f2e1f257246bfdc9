// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
outbox:
  base_url: "http://core.local:8000"
  cipher: "xchacha20"
storage:
  slot:
    type: "memory"
api:
  port: 9000
  host: "127.0.0.1"
log:
  level: "debug"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://core.local:8000", cfg.Outbox.BaseURL)
	assert.Equal(t, "xchacha20", cfg.Outbox.Cipher)
	assert.Equal(t, "memory", cfg.Storage.Slot.Type)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
outbox:
  base_url: "http://localhost:8000"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "outbox/", cfg.Outbox.SlotPrefix)
	assert.Equal(t, "aes-gcm", cfg.Outbox.Cipher)
	assert.Equal(t, "10s", cfg.Outbox.RequestTimeout)
	assert.Equal(t, "file", cfg.Storage.Slot.Type)
	assert.Equal(t, "slot", cfg.Secrets.Provider)
	assert.Equal(t, 7070, cfg.API.Port)
	assert.Equal(t, uint32(5), cfg.Outbox.Breaker.MinRequests)
}

func TestLoadConfig_MissingBaseURL(t *testing.T) {
	path := writeConfig(t, `
log:
  level: "info"
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_RejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
outbox:
  base_url: "http://localhost:8000"
storage:
  slot:
    type: "floppy"
`)
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "storage.slot.type")
}

func TestLoadConfig_RejectsMemoryKeyWithDurableQueue(t *testing.T) {
	for _, slotType := range []string{"file", "redis", "postgres"} {
		t.Run(slotType, func(t *testing.T) {
			path := writeConfig(t, `
outbox:
  base_url: "http://localhost:8000"
storage:
  slot:
    type: "`+slotType+`"
secrets:
  provider: "memory"
`)
			_, err := LoadConfig(path)
			assert.ErrorContains(t, err, "secrets.provider=memory")
		})
	}

	path := writeConfig(t, `
outbox:
  base_url: "http://localhost:8000"
storage:
  slot:
    type: "memory"
secrets:
  provider: "memory"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Secrets.Provider)
}

func TestLoadConfig_ExpandsSecretEnv(t *testing.T) {
	t.Setenv("MEMQ_TEST_VAULT_TOKEN", "s.abc")
	path := writeConfig(t, `
outbox:
  base_url: "http://localhost:8000"
secrets:
  provider: "vault"
  vault:
    token: "${MEMQ_TEST_VAULT_TOKEN}"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "s.abc", cfg.Secrets.Vault.Token)
}
