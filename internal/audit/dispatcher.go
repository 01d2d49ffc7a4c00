package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Exclude names event types that are never queued, such as the
	// high-volume login_success on busy deployments.
	Exclude []string
}

// Dispatcher forwards audit events to a sink from a single goroutine, in the
// order they were accepted. A nil *Dispatcher is valid and discards
// everything.
type Dispatcher struct {
	sink    Sink
	queue   chan Event
	block   bool
	exclude map[string]struct{}

	stop    chan struct{}
	closing atomic.Bool
	once    sync.Once
	worker  sync.WaitGroup

	dropped atomic.Uint64
	dropMu  sync.Mutex
	drops   map[string]uint64
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan Event, cfg.BufferSize),
		block:   !cfg.DropIfFull,
		exclude: make(map[string]struct{}, len(cfg.Exclude)),
		stop:    make(chan struct{}),
		drops:   make(map[string]uint64),
	}
	for _, name := range cfg.Exclude {
		d.exclude[name] = struct{}{}
	}

	d.worker.Add(1)
	go d.deliver()
	return d
}

// deliver runs until Close, then flushes whatever is still queued.
func (d *Dispatcher) deliver() {
	defer d.worker.Done()
	ctx := context.Background()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(ctx, event)
		case <-d.stop:
			for n := len(d.queue); n > 0; n-- {
				d.sink.Emit(ctx, <-d.queue)
			}
			return
		}
	}
}

// Emit queues event. With DropIfFull it never blocks; otherwise it waits for
// buffer space, ctx cancellation or Close. An event that is neither queued
// nor excluded counts as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if _, skip := d.exclude[event.EventType]; skip {
		return
	}

	if !d.block {
		select {
		case d.queue <- event:
		default:
			d.lost(event.EventType)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.lost(event.EventType)
	case <-d.stop:
	}
}

func (d *Dispatcher) lost(eventType string) {
	d.dropped.Add(1)
	d.dropMu.Lock()
	d.drops[eventType]++
	d.dropMu.Unlock()
}

// Close stops accepting events, delivers what is queued and waits.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

// Dropped returns how many events were lost to a full buffer or a canceled
// context.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByEvent returns the drop count per event type. Types with no drops
// are absent.
func (d *Dispatcher) DroppedByEvent() map[string]uint64 {
	out := map[string]uint64{}
	if d == nil {
		return out
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	for k, v := range d.drops {
		out[k] = v
	}
	return out
}
