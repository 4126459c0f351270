package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingAppender records the order of writes and the peak number of
// concurrent writes.
type recordingAppender struct {
	delay  time.Duration
	failOn map[string]bool

	inflight atomic.Int32
	peak     atomic.Int32

	mu      sync.Mutex
	written []string
	calls   []string
}

func (a *recordingAppender) AppendTranscriptEntry(ctx context.Context, e Entry) error {
	n := a.inflight.Add(1)
	defer a.inflight.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if a.delay > 0 {
		time.Sleep(a.delay)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, e.Message)
	if a.failOn[e.Message] {
		return errors.New("store unavailable")
	}
	a.written = append(a.written, e.Message)
	return nil
}

func (a *recordingAppender) snapshot() (calls, written []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...), append([]string(nil), a.written...)
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	entries  []Entry
}

func (p *recordingPublisher) Publish(subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.entries = append(p.entries, data.(Entry))
	return nil
}

func flush(t *testing.T, w *Writer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Flush(ctx))
}

func TestWriter_PreservesEnqueueOrder(t *testing.T) {
	app := &recordingAppender{delay: time.Millisecond}
	w := NewWriter(app, discardLogger())

	var want []string
	for i := 0; i < 25; i++ {
		msg := fmt.Sprintf("msg-%02d", i)
		want = append(want, msg)
		w.Enqueue(Entry{ConversationID: "conv-1", Message: msg})
	}
	flush(t, w)

	_, written := app.snapshot()
	assert.Equal(t, want, written)
	assert.Equal(t, int32(1), app.peak.Load(), "writes must never overlap")
	assert.Equal(t, 0, w.Pending())
}

func TestWriter_ConcurrentEnqueueSingleWriter(t *testing.T) {
	app := &recordingAppender{delay: 200 * time.Microsecond}
	w := NewWriter(app, discardLogger())

	const producers, perProducer = 8, 20
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				w.Enqueue(Entry{ConversationID: fmt.Sprintf("conv-%d", p), Message: fmt.Sprintf("%d-%03d", p, i)})
			}
		}(p)
	}
	wg.Wait()
	flush(t, w)

	_, written := app.snapshot()
	require.Len(t, written, producers*perProducer)
	assert.Equal(t, int32(1), app.peak.Load(), "writes must never overlap")

	// Each producer's entries were enqueued sequentially, so they must land in order.
	last := make(map[string]string)
	for _, msg := range written {
		var p, i int
		_, err := fmt.Sscanf(msg, "%d-%d", &p, &i)
		require.NoError(t, err)
		key := fmt.Sprint(p)
		assert.Less(t, last[key], msg, "entries for producer %d out of order", p)
		last[key] = msg
	}
}

func TestWriter_FailureDoesNotStopDrain(t *testing.T) {
	app := &recordingAppender{failOn: map[string]bool{"b": true}}
	pub := &recordingPublisher{}
	w := NewWriter(app, discardLogger(), WithPublisher(pub))

	for _, msg := range []string{"a", "b", "c"} {
		w.Enqueue(Entry{ConversationID: "conv-1", Message: msg})
	}
	flush(t, w)

	calls, written := app.snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, calls, "failed entry is attempted once and not retried")
	assert.Equal(t, []string{"a", "c"}, written)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.entries, 2)
	assert.Equal(t, "a", pub.entries[0].Message)
	assert.Equal(t, "c", pub.entries[1].Message)
	assert.Equal(t, SubjectDialogLogged, pub.subjects[0])
}

func TestWriter_RestartsAfterIdle(t *testing.T) {
	app := &recordingAppender{}
	w := NewWriter(app, discardLogger())

	w.Enqueue(Entry{Message: "first"})
	flush(t, w)
	w.Enqueue(Entry{Message: "second"})
	flush(t, w)

	_, written := app.snapshot()
	assert.Equal(t, []string{"first", "second"}, written)
}

func TestWriter_FlushHonoursContext(t *testing.T) {
	block := make(chan struct{})
	w := NewWriter(appenderFunc(func(ctx context.Context, e Entry) error {
		<-block
		return nil
	}), discardLogger())

	w.Enqueue(Entry{Message: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Flush(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	flush(t, w)
}

func TestWriter_FlushWhenIdle(t *testing.T) {
	w := NewWriter(&recordingAppender{}, discardLogger())
	assert.NoError(t, w.Flush(context.Background()))
}

func TestWriter_WriteTimeoutApplied(t *testing.T) {
	var deadline atomic.Bool
	w := NewWriter(appenderFunc(func(ctx context.Context, e Entry) error {
		_, ok := ctx.Deadline()
		deadline.Store(ok)
		return nil
	}), discardLogger(), WithWriteTimeout(time.Second))

	w.Enqueue(Entry{Message: "x"})
	flush(t, w)
	assert.True(t, deadline.Load())
}

type appenderFunc func(ctx context.Context, e Entry) error

func (f appenderFunc) AppendTranscriptEntry(ctx context.Context, e Entry) error {
	return f(ctx, e)
}
