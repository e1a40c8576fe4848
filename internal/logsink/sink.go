// Package logsink forwards gateway events to an external log collector.
//
// Delivery is best effort. Send never blocks the caller: events are queued
// on a bounded buffer and dropped when it is full, and transport failures
// are counted and otherwise ignored.
package logsink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Service string         `json:"service,omitempty"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

type Sink interface {
	Send(ev Event)
	Close(ctx context.Context) error
}

// Transport delivers a single event to the collector.
type Transport interface {
	Deliver(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Send(Event) {}

func (Nop) Close(context.Context) error { return nil }

type Forwarder struct {
	transport Transport
	service   string
	timeout   time.Duration
	log       *zap.Logger

	events chan Event
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	dropped atomic.Int64
	failed  atomic.Int64
}

// NewForwarder starts a worker that delivers queued events through t.
func NewForwarder(t Transport, service string, buffer int, timeout time.Duration, log *zap.Logger) *Forwarder {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	f := &Forwarder{
		transport: t,
		service:   service,
		timeout:   timeout,
		log:       log,
		events:    make(chan Event, buffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *Forwarder) Send(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if ev.Service == "" {
		ev.Service = f.service
	}
	select {
	case <-f.quit:
		f.dropped.Add(1)
	case f.events <- ev:
	default:
		f.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full
// or the forwarder was closed.
func (f *Forwarder) Dropped() int64 { return f.dropped.Load() }

// Failed returns how many deliveries the transport rejected.
func (f *Forwarder) Failed() int64 { return f.failed.Load() }

func (f *Forwarder) run() {
	defer close(f.done)
	for {
		select {
		case ev := <-f.events:
			f.deliver(ev)
		case <-f.quit:
			for {
				select {
				case ev := <-f.events:
					f.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (f *Forwarder) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.transport.Deliver(ctx, ev); err != nil {
		f.failed.Add(1)
		f.log.Debug("log sink delivery failed", zap.Error(err))
	}
}

// Close stops accepting events, drains what is queued and closes the
// transport. It gives up waiting when ctx is done.
func (f *Forwarder) Close(ctx context.Context) error {
	f.once.Do(func() { close(f.quit) })
	select {
	case <-f.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return f.transport.Close()
}
