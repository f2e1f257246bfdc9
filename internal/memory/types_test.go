package memory

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "memory-outbox/pkg/errors"
)

func TestItem_Validate(t *testing.T) {
	tests := []struct {
		name    string
		item    Item
		wantErr string
	}{
		{name: "ok", item: Item{Content: "x", Type: "short-term"}},
		{name: "missing content", item: Item{Type: "short-term"}, wantErr: "content is required"},
		{name: "content only", item: Item{Content: "x"}},
		{name: "empty keyword", item: Item{Content: "x", Type: "knowledge", Keywords: []string{"go", ""}}, wantErr: "is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidArg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestItem_JSONFieldNames(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	it := Item{
		Content:   "Task A",
		Type:      "short-term",
		UserID:    "u1",
		SessionID: "s1",
		Metadata:  map[string]interface{}{"source": "editor"},
		Keywords:  []string{"task"},
		MissionID: "m1",
		ExpiresAt: &exp,
		Version:   7,
	}
	raw, err := json.Marshal(it)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"content":"Task A","type":"short-term","userId":"u1","sessionId":"s1",
		"metadata":{"source":"editor"},"keywords":["task"],"missionId":"m1",
		"expiresAt":"2026-01-02T03:04:05Z","version":7
	}`, string(raw))
}
