package events

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/EchoPBX/gbstats/internal/metrics"
	"github.com/EchoPBX/gbstats/pkg/sdk"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type subscriber struct {
	id sdk.SubscriptionID
	cb sdk.Callback
}

// Bus is a synchronous publish/subscribe registry. Callbacks run on the
// publisher's goroutine, in registration order.
type Bus struct {
	mu      sync.Mutex
	subs    map[string][]subscriber
	nextID  sdk.SubscriptionID
	history []sdk.Event
	taps    map[chan sdk.Event]struct{}

	log     *zap.Logger
	now     func() time.Time
	limit   int
	metrics *metrics.Metrics
}

type Option func(*Bus)

func WithLogger(l *zap.Logger) Option { return func(b *Bus) { b.log = l } }

// WithClock replaces time.Now as the source of event timestamps.
func WithClock(now func() time.Time) Option { return func(b *Bus) { b.now = now } }

// WithHistoryLimit keeps only the last n events. 0 keeps everything.
func WithHistoryLimit(n int) Option { return func(b *Bus) { b.limit = n } }

func WithMetrics(m *metrics.Metrics) Option { return func(b *Bus) { b.metrics = m } }

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs: make(map[string][]subscriber),
		taps: make(map[chan sdk.Event]struct{}),
		log:  zap.NewNop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log.Debug("event bus initialized", zap.Int("history_limit", b.limit))
	return b
}

func (b *Bus) Subscribe(eventType string, cb sdk.Callback) sdk.SubscriptionID {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscriber{id: id, cb: cb})
	b.mu.Unlock()

	b.log.Debug("subscriber registered", zap.String("type", eventType), zap.Uint64("id", uint64(id)))
	return id
}

// Unsubscribe removes the registration. It reports false if id was not
// registered for eventType.
func (b *Bus) Unsubscribe(eventType string, id sdk.SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[eventType]
	for i, s := range list {
		if s.id != id {
			continue
		}
		// copy so that a publish iterating the old slice is unaffected
		next := make([]subscriber, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, eventType)
		} else {
			b.subs[eventType] = next
		}
		b.log.Debug("subscriber removed", zap.String("type", eventType))
		return true
	}
	b.log.Warn("subscriber not found", zap.String("type", eventType), zap.Uint64("id", uint64(id)))
	return false
}

// Publish records the event in the history and delivers it to every callback
// registered for eventType. It never fails: callback errors and panics are
// logged and delivery continues.
func (b *Bus) Publish(eventType string, payload map[string]any) sdk.Event {
	// the caller keeps its map; history and taps hold a copy
	if payload == nil {
		payload = map[string]any{}
	} else {
		payload = maps.Clone(payload)
	}
	ev := sdk.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: b.now(),
	}

	b.mu.Lock()
	b.history = append(b.history, ev)
	if b.limit > 0 && len(b.history) > b.limit {
		b.history = append(b.history[:0:0], b.history[len(b.history)-b.limit:]...)
	}
	subs := b.subs[eventType]
	for ch := range b.taps {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(eventType).Inc()
	}

	if len(subs) == 0 {
		b.log.Debug("no subscribers", zap.String("type", eventType))
		return ev
	}
	b.log.Debug("publishing", zap.String("type", eventType), zap.Int("subscribers", len(subs)))

	for _, s := range subs {
		res := dispatch(s.cb, ev)
		if res.Err == nil {
			continue
		}
		reason := "error"
		if res.Panicked {
			reason = "panic"
		}
		b.log.Error("subscriber callback failed",
			zap.String("type", eventType),
			zap.Uint64("id", uint64(s.id)),
			zap.String("reason", reason),
			zap.Error(res.Err))
		if b.metrics != nil {
			b.metrics.SubscriberFailures.WithLabelValues(eventType, reason).Inc()
		}
	}
	return ev
}

// History returns a copy of the published events, oldest first.
func (b *Bus) History() []sdk.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]sdk.Event, len(b.history))
	copy(out, b.history)
	return out
}

// SubscribersCount returns the callbacks registered for eventType, or across
// all types when eventType is empty.
func (b *Bus) SubscribersCount(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if eventType != "" {
		return len(b.subs[eventType])
	}
	n := 0
	for _, list := range b.subs {
		n += len(list)
	}
	return n
}

// Tap returns a channel receiving every published event. Events are dropped
// when the channel is full.
func (b *Bus) Tap() chan sdk.Event {
	ch := make(chan sdk.Event, 64)
	b.mu.Lock()
	b.taps[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Untap(ch chan sdk.Event) {
	b.mu.Lock()
	if _, ok := b.taps[ch]; ok {
		delete(b.taps, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Result is the outcome of running one callback.
type Result struct {
	Err      error
	Panicked bool
	Duration time.Duration
}

func dispatch(cb sdk.Callback, ev sdk.Event) (res Result) {
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if r := recover(); r != nil {
			res.Panicked = true
			res.Err = fmt.Errorf("panic: %v", r)
		}
	}()
	res.Err = cb(ev)
	return res
}

var _ sdk.Bus = (*Bus)(nil)
