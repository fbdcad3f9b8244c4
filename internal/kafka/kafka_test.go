package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "order.created", 16, nil)
	p.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Publish(context.Background(), []byte("o-1"), []byte("v")))
	}
	p.Close()

	assert.Len(t, w.written(), 5)
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), nil, nil), ErrProducerClosed)
}

func TestProducerStopsWithContext(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "order.created", 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	require.NoError(t, p.Publish(context.Background(), []byte("k"), []byte("v")))
	cancel()
	p.Close()

	assert.Len(t, w.written(), 1)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			m := r.queue[0]
			r.queue = r.queue[1:]
			r.mu.Unlock()
			return m, nil
		}
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumerRetriesFailedMessageBeforeCommitting(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 1}, {Offset: 2}, {Partition: 1, Offset: 7}}}
	c := newConsumer(r, 2, nil)
	c.backoff = time.Millisecond
	c.maxBackoff = 2 * time.Millisecond

	var (
		mu      sync.Mutex
		handled []int64
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, m.Offset)
			if m.Offset == 1 && len(handled) < 4 {
				return errors.New("database unavailable")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(r.commits()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	commits := r.commits()
	assert.ElementsMatch(t, []int64{1, 2, 7}, commits)
	// partition 0 commits stay in offset order
	var p0 []int64
	for _, o := range commits {
		if o != 7 {
			p0 = append(p0, o)
		}
	}
	assert.Equal(t, []int64{1, 2}, p0)

	mu.Lock()
	defer mu.Unlock()
	var ones int
	for _, o := range handled {
		if o == 1 {
			ones++
		}
	}
	assert.Greater(t, ones, 1)
	assert.True(t, r.closed)
}

func TestConsumerLeavesFailingMessageUncommittedOnShutdown(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 1}, {Offset: 2}}}
	c := newConsumer(r, 1, nil)
	c.backoff = time.Millisecond
	c.maxBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	attempts := make(chan struct{}, 64)
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			if m.Offset == 1 {
				select {
				case attempts <- struct{}{}:
				default:
				}
				return errors.New("poison")
			}
			return nil
		})
	}()

	for i := 0; i < 3; i++ {
		<-attempts
	}
	cancel()
	require.NoError(t, <-done)

	assert.Empty(t, r.commits())
}

type brokenReader struct{ fakeReader }

func (b *brokenReader) FetchMessage(context.Context) (kafka.Message, error) {
	return kafka.Message{}, io.ErrUnexpectedEOF
}

func TestConsumerReturnsReaderError(t *testing.T) {
	c := newConsumer(&brokenReader{}, 1, nil)
	err := c.Start(context.Background(), func(context.Context, kafka.Message) error { return nil })
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
