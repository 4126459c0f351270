package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SubjectDialogLogged is published after an entry has been persisted.
const SubjectDialogLogged = "swarm.concierge.dialog.logged"

// Appender persists a single transcript entry.
type Appender interface {
	AppendTranscriptEntry(ctx context.Context, e Entry) error
}

// Publisher announces persisted entries. hermes.Client satisfies it.
type Publisher interface {
	Publish(subject string, data any) error
}

// Writer drains queued entries into an Appender one at a time, in the order
// they were enqueued. At most one write is in flight at any moment.
type Writer struct {
	appender     Appender
	publisher    Publisher
	logger       *slog.Logger
	writeTimeout time.Duration

	mu       sync.Mutex
	queue    []Entry
	draining bool
	idle     chan struct{} // closed when the current drain stops
}

type Option func(*Writer)

// WithPublisher publishes every persisted entry on SubjectDialogLogged.
func WithPublisher(p Publisher) Option {
	return func(w *Writer) { w.publisher = p }
}

// WithWriteTimeout bounds each individual append.
func WithWriteTimeout(d time.Duration) Option {
	return func(w *Writer) { w.writeTimeout = d }
}

func NewWriter(a Appender, logger *slog.Logger, opts ...Option) *Writer {
	w := &Writer{
		appender:     a,
		logger:       logger,
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue appends e to the queue and returns immediately. If no drain is
// running, one is started.
func (w *Writer) Enqueue(e Entry) {
	w.mu.Lock()
	w.queue = append(w.queue, e)
	if w.draining {
		w.mu.Unlock()
		return
	}
	w.draining = true
	w.idle = make(chan struct{})
	idle := w.idle
	w.mu.Unlock()

	go w.drain(idle)
}

// Pending returns the number of entries not yet handed to the appender.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Flush blocks until the queue is empty and no write is in flight, or ctx is done.
func (w *Writer) Flush(ctx context.Context) error {
	for {
		w.mu.Lock()
		if !w.draining {
			w.mu.Unlock()
			return nil
		}
		idle := w.idle
		w.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Writer) drain(idle chan struct{}) {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.draining = false
			w.mu.Unlock()
			close(idle)
			return
		}
		e := w.queue[0]
		w.queue[0] = Entry{}
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.write(e)
	}
}

// write persists one entry. Failures are logged and dropped; they never stop
// the drain.
func (w *Writer) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	if err := w.appender.AppendTranscriptEntry(ctx, e); err != nil {
		w.logger.Error("failed to save dialog",
			"conversation_id", e.ConversationID,
			"action", e.Action,
			"error", err,
		)
		return
	}

	if w.publisher != nil {
		if err := w.publisher.Publish(SubjectDialogLogged, e); err != nil {
			w.logger.Warn("failed to publish dialog logged", "conversation_id", e.ConversationID, "error", err)
		}
	}
}
