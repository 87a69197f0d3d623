// Package events implements the refresh broadcasts between the catalog,
// recommendation and banner lanes.
package events

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"storefront/internal/metrics"

	"go.uber.org/zap"
)

const subscriberBuffer = 32

// Event is one broadcast of a signal. Detail is free-form.
type Event struct {
	Seq       uint64         `json:"seq"`
	Signal    Signal         `json:"signal"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Subscription receives events for the signals it was created with.
type Subscription struct {
	C       <-chan Event
	ch      chan Event
	signals map[Signal]bool
	bus     *Bus
	once    sync.Once
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

func (s *Subscription) wants(sig Signal) bool {
	return len(s.signals) == 0 || s.signals[sig]
}

// Bus dispatches signals to subscribers. A new subscriber first receives
// the last event of every signal it asked for, so a view mounted after a
// broadcast still learns about it.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
	last        map[Signal]Event
	sequence    atomic.Uint64
	logger      *zap.Logger
}

// NewBus creates an empty bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[*Subscription]struct{}),
		last:        make(map[Signal]Event),
		logger:      logger,
	}
}

// Publish records the event as the latest for its signal and fans it out.
// Slow subscribers drop the event instead of blocking the publisher.
func (b *Bus) Publish(signal Signal, detail map[string]any) Event {
	event := Event{
		Seq:       b.sequence.Add(1),
		Signal:    signal,
		Detail:    detail,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	b.last[signal] = event
	for sub := range b.subscribers {
		if !sub.wants(signal) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("Dropping event for slow subscriber",
				zap.String("signal", string(signal)),
				zap.Uint64("seq", event.Seq),
			)
		}
	}
	b.mu.Unlock()

	metrics.SignalsPublished.WithLabelValues(string(signal)).Inc()
	b.logger.Debug("Signal published", zap.String("signal", string(signal)), zap.Uint64("seq", event.Seq))
	return event
}

// Subscribe registers for the given signals, or all signals when none are given.
func (b *Bus) Subscribe(signals ...Signal) *Subscription {
	ch := make(chan Event, subscriberBuffer+len(AllSignals))
	sub := &Subscription{
		C:       ch,
		ch:      ch,
		signals: make(map[Signal]bool, len(signals)),
		bus:     b,
	}
	for _, s := range signals {
		sub.signals[s] = true
	}

	b.mu.Lock()
	replay := make([]Event, 0, len(b.last))
	for sig, ev := range b.last {
		if sub.wants(sig) {
			replay = append(replay, ev)
		}
	}
	sort.Slice(replay, func(i, j int) bool { return replay[i].Seq < replay[j].Seq })
	for _, ev := range replay {
		select {
		case ch <- ev:
		default:
		}
	}
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Last returns the latest event published for a signal.
func (b *Bus) Last(signal Signal) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev, ok := b.last[signal]
	return ev, ok
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.ch)
	}
}
