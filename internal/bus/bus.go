package bus

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"
)

var (
	ErrClosed  = errors.New("bus: closed")
	ErrExpired = errors.New("bus: subscription deadline elapsed")
)

// Bus is an in-memory broadcast log. Every subscription observes every value published
// after it was created, in publish order. Publish never waits for readers; a slow reader
// keeps its unread backlog alive in the shared log until it catches up or closes.
type Bus[T any] struct {
	mu     sync.Mutex
	log    []T
	base   uint64 // absolute index of log[0]
	subs   map[*Subscription[T]]struct{}
	wake   chan struct{}
	closed bool

	published uint64
}

// Subscription is one reader cursor over a Bus.
type Subscription[T any] struct {
	bus      *Bus[T]
	next     uint64
	deadline time.Time
	closed   bool
	done     chan struct{}
}

func New[T any]() *Bus[T] {
	return &Bus[T]{
		subs: make(map[*Subscription[T]]struct{}),
		wake: make(chan struct{}),
	}
}

// Publish appends v to the log. Safe for concurrent use.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.published++
	if len(b.subs) == 0 {
		return
	}
	b.log = append(b.log, v)
	close(b.wake)
	b.wake = make(chan struct{})
}

// Subscribe returns a cursor positioned at the current end of the log.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	return b.subscribe(time.Time{})
}

// SubscribeFor returns a cursor whose sequence ends once d has elapsed, with or
// without traffic.
func (b *Bus[T]) SubscribeFor(d time.Duration) *Subscription[T] {
	return b.subscribe(time.Now().Add(d))
}

func (b *Bus[T]) subscribe(deadline time.Time) *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Subscription[T]{
		bus:      b,
		next:     b.base + uint64(len(b.log)),
		deadline: deadline,
		done:     make(chan struct{}),
	}
	if b.closed {
		s.closed = true
		close(s.done)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Close ends every subscription with ErrClosed. Later publishes are ignored.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.log = nil
	b.subs = map[*Subscription[T]]struct{}{}
	close(b.wake)
}

// Stats reports lifetime publishes, live subscriptions and retained backlog.
func (b *Bus[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Published:     b.published,
		Subscriptions: len(b.subs),
		Retained:      len(b.log),
	}
}

type Stats struct {
	Published     uint64 `json:"published"`
	Subscriptions int    `json:"subscriptions"`
	Retained      int    `json:"retained"`
}

// compactLocked drops the log prefix no live cursor can still read.
func (b *Bus[T]) compactLocked() {
	end := b.base + uint64(len(b.log))
	low := end
	for s := range b.subs {
		if s.next < low {
			low = s.next
		}
	}
	drop := int(low - b.base)
	if drop == 0 {
		return
	}
	if drop == len(b.log) {
		clear(b.log)
		b.log = b.log[:0]
	} else if drop >= len(b.log)/2 {
		n := copy(b.log, b.log[drop:])
		clear(b.log[n:])
		b.log = b.log[:n]
	} else {
		return
	}
	b.base = low
}

// Next blocks until a value is available, the deadline passes, ctx is done or the bus
// closes.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	var timeout <-chan time.Time
	if !s.deadline.IsZero() {
		remaining := time.Until(s.deadline)
		if remaining <= 0 {
			return zero, ErrExpired
		}
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		timeout = timer.C
	}

	b := s.bus
	for {
		b.mu.Lock()
		if s.closed || b.closed {
			b.mu.Unlock()
			return zero, ErrClosed
		}
		if s.next < b.base+uint64(len(b.log)) {
			v := b.log[s.next-b.base]
			s.next++
			b.compactLocked()
			b.mu.Unlock()
			return v, nil
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-wake:
		case <-s.done:
			return zero, ErrClosed
		case <-timeout:
			return zero, ErrExpired
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// All yields values until the subscription ends. The subscription is closed when
// iteration stops.
func (s *Subscription[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		defer s.Close()
		for {
			v, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Find returns the first value matching pred, or false when the subscription ends first.
// The subscription is closed on return.
func (s *Subscription[T]) Find(ctx context.Context, pred func(T) bool) (T, bool) {
	for v := range s.All(ctx) {
		if pred(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Close releases the cursor so the log can drop what it was holding.
func (s *Subscription[T]) Close() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	delete(b.subs, s)
	if !b.closed {
		b.compactLocked()
	}
}
