package feed

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"stampcard/internal/service/loyalty/domain"
)

// fakeReader 依次返回预置消息，之后阻塞到 ctx 结束
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type pushed struct {
	businessID string
	payload    []byte
}

type fakeBroadcaster struct {
	ch chan pushed
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, businessID string, payload []byte) error {
	b.ch <- pushed{businessID: businessID, payload: payload}
	return nil
}

func TestScanConsumerPushesAndCommits(t *testing.T) {
	ev := domain.ScanRecorded{
		EventID:     "ev-1",
		BusinessID:  "biz-1",
		ClientName:  "Ana",
		Type:        domain.ScanTypeAddStamp,
		Count:       2,
		StampsAfter: 4,
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte("not json")},
		{Offset: 2, Key: []byte("biz-1"), Value: raw},
	}}
	out := &fakeBroadcaster{ch: make(chan pushed, 2)}
	consumer := NewScanConsumer(reader, out, otel.Tracer("test"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	select {
	case p := <-out.ch:
		assert.Equal(t, "biz-1", p.businessID)
		var msg feedMessage
		require.NoError(t, json.Unmarshal(p.payload, &msg))
		assert.Equal(t, "scan", msg.Kind)
		assert.Equal(t, ev.EventID, msg.Scan.EventID)
		assert.Equal(t, 4, msg.Scan.StampsAfter)
	case <-time.After(2 * time.Second):
		t.Fatal("scan event was not pushed")
	}

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{1, 2}, reader.commits())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Empty(t, out.ch)
}
