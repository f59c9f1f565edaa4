package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool

	// OnDrop, when set, is called for every event that never reached the
	// sink: buffer overflow or a panicking sink. It runs on the caller's
	// goroutine for overflow and on the worker for panics.
	OnDrop func(event Event, cause error)
}

// ErrBufferFull and ErrSinkPanic are the causes passed to Config.OnDrop.
var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrSinkPanic  = errors.New("audit sink panicked")
)

// Dispatcher relays events to a sink on one worker goroutine. Delivery is
// best effort. With DropIfFull a slow sink never blocks the caller; without
// it Emit waits for buffer space until ctx is done.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	onDrop     func(Event, error)

	mu      sync.RWMutex // guards closed and sends on queue
	closed  bool
	queue   chan Event
	stopped chan struct{}
	dropped atomic.Uint64
}

// NewDispatcher starts the worker. It returns nil when cfg is disabled; a
// nil *Dispatcher accepts every call and does nothing.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		onDrop:     cfg.OnDrop,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stopped:    make(chan struct{}),
	}
	go d.work()
	return d
}

func (d *Dispatcher) work() {
	defer close(d.stopped)
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.drop(event, fmt.Errorf("%w: %v", ErrSinkPanic, r))
		}
	}()
	d.sink.Emit(context.Background(), event)
}

func (d *Dispatcher) drop(event Event, cause error) {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop(event, cause)
	}
}

// Emit queues event. Events emitted after Close are discarded silently.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.drop(event, ErrBufferFull)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event, ctx.Err())
	}
}

// Close stops intake, delivers what is queued and waits for the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.stopped
}

// Dropped reports how many events never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
