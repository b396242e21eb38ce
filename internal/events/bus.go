package events

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
)

// ErrHandlerPanic wraps a panic recovered from a subscriber.
var ErrHandlerPanic = errors.New("events: handler panicked")

// Handler receives published events. A returned error is reported as a
// transient render failure and never reaches the publisher.
type Handler func(Event) error

type subscription struct {
	id      uint64
	handler Handler
	types   map[EventType]struct{} // nil means every type
}

// Bus is a synchronous publish/subscribe register.
// Delivery happens on the publisher's goroutine in subscription order.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscription
	nextID  uint64
	logger  *logger.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewBus creates an empty bus. metrics may be nil.
func NewBus(log *logger.Logger, m *metrics.Collector) *Bus {
	if log == nil {
		log = logger.NewNop()
	}
	return &Bus{
		logger:  log.Named("bus"),
		metrics: m,
		now:     time.Now,
	}
}

// SetClock replaces the clock used for log line timestamps.
func (b *Bus) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// Subscribe registers a handler for every event and returns its unsubscribe func.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	return b.SubscribeTypes(h)
}

// SubscribeTypes registers a handler for the listed event types only.
// With no types it behaves like Subscribe.
func (b *Bus) SubscribeTypes(h Handler, types ...EventType) (unsubscribe func()) {
	var filter map[EventType]struct{}
	if len(types) > 0 {
		filter = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			filter[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, handler: h, types: filter})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to every matching subscriber.
// Subscribers added or removed during delivery take effect on the next publish.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.RecordPublish()
	}

	for _, s := range subs {
		if s.types != nil {
			if _, ok := s.types[e.Type]; !ok {
				continue
			}
		}
		if err := deliver(s.handler, e); err != nil {
			b.reportFailure(e, err)
		}
	}
}

// Emit wraps a payload into a new event, publishes it and returns it.
func (b *Bus) Emit(p Payload) Event {
	e := New(p)
	b.Publish(e)
	return e
}

// LogLine publishes an operator log line prefixed with the wall clock time.
func (b *Bus) LogLine(msg string) {
	b.mu.RLock()
	now := b.now
	b.mu.RUnlock()
	b.Emit(LogAppendPayload{Line: "[" + now().Format("15:04:05") + "] " + msg})
}

// Logf formats and publishes an operator log line.
func (b *Bus) Logf(format string, args ...any) {
	b.LogLine(fmt.Sprintf(format, args...))
}

// deliver calls a handler, converting a panic into ErrHandlerPanic.
func deliver(h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(e)
}

func (b *Bus) reportFailure(e Event, err error) {
	if b.metrics != nil {
		b.metrics.RecordHandlerFailure()
	}
	b.logger.Warn("transient render failure", "event", string(e.Type), "error", err)
}
