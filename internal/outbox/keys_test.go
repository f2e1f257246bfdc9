package outbox

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-outbox/internal/storage/slot"
	"memory-outbox/pkg/aead"
	pkgerrors "memory-outbox/pkg/errors"
)

func TestKeyManager_GeneratesAndPersists(t *testing.T) {
	ctx := context.Background()
	slots := slot.NewMemoryStore()

	key, err := NewKeyManager(slots, testKeySlot).GetOrCreateKey(ctx)
	require.NoError(t, err)
	assert.Len(t, key, aead.KeySize)

	raw, ok, err := slots.Get(ctx, testKeySlot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, base64.StdEncoding.EncodeToString(key), string(raw))

	// 新实例读取同一个槽
	again, err := NewKeyManager(slots, testKeySlot).GetOrCreateKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestKeyManager_ConcurrentFirstUseGeneratesOneKey(t *testing.T) {
	ctx := context.Background()
	slots := &countingSlots{Store: slot.NewMemoryStore()}
	km := NewKeyManager(slots, testKeySlot)

	const n = 32
	keys := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := km.GetOrCreateKey(ctx)
			assert.NoError(t, err)
			keys[i] = k
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, keys[0], keys[i])
	}
	assert.EqualValues(t, 1, slots.sets.Load())
}

func TestKeyManager_CorruptedSlotIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		raw  string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"short key", base64.StdEncoding.EncodeToString([]byte("too-short"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := &countingSlots{Store: slot.NewMemoryStore()}
			require.NoError(t, slots.Store.Set(ctx, testKeySlot, []byte(tt.raw)))

			_, err := NewKeyManager(slots, testKeySlot).GetOrCreateKey(ctx)
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.ErrKeyUnavailable))
			assert.EqualValues(t, 0, slots.sets.Load())

			raw, _, _ := slots.Get(ctx, testKeySlot)
			assert.Equal(t, tt.raw, string(raw))
		})
	}
}

func TestKeyManager_SlotFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("slot offline")

	readFail := &countingSlots{Store: slot.NewMemoryStore(), getErr: boom}
	_, err := NewKeyManager(readFail, testKeySlot).GetOrCreateKey(ctx)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrKeyUnavailable))
	assert.ErrorIs(t, err, boom)

	writeFail := &countingSlots{Store: slot.NewMemoryStore(), setErr: boom}
	km := NewKeyManager(writeFail, testKeySlot)
	_, err = km.GetOrCreateKey(ctx)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrKeyUnavailable))

	// 写入恢复后才生成并缓存密钥
	writeFail.setErr = nil
	key, err := km.GetOrCreateKey(ctx)
	require.NoError(t, err)
	raw, ok, err := writeFail.Get(ctx, testKeySlot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, base64.StdEncoding.EncodeToString(key), string(raw))
}

// gatedSlots 让 Get 停在 release 之前，并在返回前观察调用方 ctx
type gatedSlots struct {
	slot.Store
	entered chan struct{}
	release chan struct{}
	gets    atomic.Int32
}

func (s *gatedSlots) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.gets.Add(1)
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return s.Store.Get(ctx, key)
}

func TestKeyManager_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	slots := &gatedSlots{
		Store:   slot.NewMemoryStore(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	km := NewKeyManager(slots, testKeySlot)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := km.GetOrCreateKey(firstCtx)
		firstErr <- err
	}()
	<-slots.entered

	type result struct {
		key []byte
		err error
	}
	second := make(chan result, 1)
	go func() {
		k, err := km.GetOrCreateKey(context.Background())
		second <- result{k, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(slots.release)

	got := <-second
	require.NoError(t, got.err)
	assert.Len(t, got.key, aead.KeySize)
	assert.EqualValues(t, 1, slots.gets.Load())

	raw, ok, err := slots.Store.Get(context.Background(), testKeySlot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, base64.StdEncoding.EncodeToString(got.key), string(raw))
}
