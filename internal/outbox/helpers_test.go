package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"memory-outbox/internal/memory"
	"memory-outbox/internal/queue"
	"memory-outbox/internal/storage/slot"
	"memory-outbox/pkg/aead"
	pkgerrors "memory-outbox/pkg/errors"
)

const (
	testKeySlot     = "outbox/key-slot"
	testQueueSlot   = "outbox/queue-slot"
	testVersionSlot = "outbox/version-slot"
)

// countingSlots 统计写入次数，并可注入读写错误；failKey 非空时只对该槽生效
type countingSlots struct {
	slot.Store
	getErr  error
	setErr  error
	failKey string
	sets    atomic.Int32
}

func (s *countingSlots) hits(key string) bool {
	return s.failKey == "" || s.failKey == key
}

func (s *countingSlots) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.getErr != nil && s.hits(key) {
		return nil, false, s.getErr
	}
	return s.Store.Get(ctx, key)
}

func (s *countingSlots) Set(ctx context.Context, key string, value []byte) error {
	s.sets.Add(1)
	if s.setErr != nil && s.hits(key) {
		return s.setErr
	}
	return s.Store.Set(ctx, key, value)
}

// fakeTransport 按 fail 判定投递结果，并记录成功投递的 memory
type fakeTransport struct {
	mu        sync.Mutex
	fail      func(item memory.Item) bool
	block     func(item memory.Item) <-chan struct{}
	delivered []memory.Item
	calls     int
}

func (f *fakeTransport) Deliver(ctx context.Context, item memory.Item) (*memory.Stored, error) {
	f.mu.Lock()
	f.calls++
	fail, block := f.fail, f.block
	f.mu.Unlock()

	if block != nil {
		if ch := block(item); ch != nil {
			<-ch
		}
	}
	if fail != nil && fail(item) {
		return nil, pkgerrors.Mark(pkgerrors.ErrTransportFailure, errors.New("network unreachable"))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, item)
	return &memory.Stored{ID: item.Content}, nil
}

func (f *fakeTransport) setFail(fn func(item memory.Item) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

func (f *fakeTransport) contents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.delivered))
	for _, it := range f.delivered {
		out = append(out, it.Content)
	}
	return out
}

func offline(memory.Item) bool { return true }

type testEnv struct {
	slots     *countingSlots
	queue     *queue.Store
	codec     *Codec
	transport *fakeTransport
	agent     *Agent
}

func newTestEnv(t *testing.T, slots slot.Store) *testEnv {
	t.Helper()
	if slots == nil {
		slots = slot.NewMemoryStore()
	}
	cs := &countingSlots{Store: slots}
	env := &testEnv{
		slots:     cs,
		queue:     queue.New(cs, testQueueSlot),
		codec:     NewCodec(NewKeyManager(cs, testKeySlot), aead.AESGCM{}),
		transport: &fakeTransport{},
	}
	env.agent = NewAgent(AgentOptions{
		Transport: env.transport,
		Codec:     env.codec,
		Queue:     env.queue,
		Versions:  NewVersionCounter(cs, testVersionSlot),
	})
	return env
}

// queueContents 解密队列中的全部记录并返回 content
func (e *testEnv) queueContents(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()
	recs, err := e.queue.ReadAll(ctx)
	require.NoError(t, err)
	out := make([]string, 0, len(recs))
	for _, rec := range recs {
		item := decodeItem(t, e.codec, rec)
		out = append(out, item.Content)
	}
	return out
}

func decodeItem(t *testing.T, c *Codec, rec queue.Record) memory.Item {
	t.Helper()
	pt, err := c.Decode(context.Background(), rec)
	require.NoError(t, err)
	var item memory.Item
	require.NoError(t, jsonUnmarshal(pt, &item))
	return item
}

func item(content string) memory.Item {
	return memory.Item{Content: content, Type: "short-term", SessionID: "s-1"}
}
