package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/rp1210test/internal/testutil/testlog"
)

func collect(t *testing.T, s *Subscription[string], n int) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out := make([]string, 0, n)
	for len(out) < n {
		v, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("next after %v: %v", out, err)
		}
		out = append(out, v)
	}
	return out
}

func TestBroadcastFanOut(t *testing.T) {
	testlog.Start(t)
	b := New[string]()
	first := b.Subscribe()
	second := b.Subscribe()
	defer first.Close()
	defer second.Close()

	go func() {
		for _, v := range []string{"A", "B", "C"} {
			b.Publish(v)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	for name, s := range map[string]*Subscription[string]{"first": first, "second": second} {
		got := collect(t, s, 3)
		if got[0] != "A" || got[1] != "B" || got[2] != "C" {
			t.Fatalf("%s subscription observed %v", name, got)
		}
	}
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	b := New[string]()
	early := b.Subscribe()
	defer early.Close()
	b.Publish("old")

	late := b.Subscribe()
	defer late.Close()
	b.Publish("new")

	if got := collect(t, late, 1); got[0] != "new" {
		t.Fatalf("late subscriber got %v", got)
	}
	if got := collect(t, early, 2); got[0] != "old" || got[1] != "new" {
		t.Fatalf("early subscriber got %v", got)
	}
}

func TestSubscribeForEndsWithoutTraffic(t *testing.T) {
	testlog.Start(t)
	b := New[string]()
	start := time.Now()
	count := 0
	for range b.SubscribeFor(200 * time.Millisecond).All(context.Background()) {
		count++
	}
	elapsed := time.Since(start)
	if count != 0 {
		t.Fatalf("expected no values, got %d", count)
	}
	if elapsed < 180*time.Millisecond || elapsed > time.Second {
		t.Fatalf("bounded subscription ended after %v", elapsed)
	}
}

func TestSubscribeForFind(t *testing.T) {
	b := New[string]()
	s := b.SubscribeFor(time.Second)
	go func() {
		b.Publish("noise")
		b.Publish("pong")
	}()
	v, ok := s.Find(context.Background(), func(v string) bool { return v == "pong" })
	if !ok || v != "pong" {
		t.Fatalf("find got %q ok=%v", v, ok)
	}
	if st := b.Stats(); st.Subscriptions != 0 {
		t.Fatalf("find should release its subscription, stats=%+v", st)
	}

	miss := b.SubscribeFor(50 * time.Millisecond)
	b.Publish("noise")
	if _, ok := miss.Find(context.Background(), func(v string) bool { return v == "pong" }); ok {
		t.Fatalf("expected no match before deadline")
	}
}

func TestConcurrentPublishersShareOneOrder(t *testing.T) {
	testlog.Start(t)
	b := New[int]()
	subs := []*Subscription[int]{b.Subscribe(), b.Subscribe(), b.Subscribe()}

	const perWriter = 200
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				b.Publish(w*perWriter + i)
			}
		}(w)
	}
	wg.Wait()

	ctx := context.Background()
	var reference []int
	for i, s := range subs {
		seen := make([]int, 0, 4*perWriter)
		for len(seen) < 4*perWriter {
			v, err := s.Next(ctx)
			if err != nil {
				t.Fatalf("sub %d: %v", i, err)
			}
			seen = append(seen, v)
		}
		s.Close()
		if reference == nil {
			reference = seen
			continue
		}
		for j := range seen {
			if seen[j] != reference[j] {
				t.Fatalf("sub %d diverges at %d: %d vs %d", i, j, seen[j], reference[j])
			}
		}
	}

	last := make(map[int]int)
	for _, v := range reference {
		w := v / perWriter
		if prev, ok := last[w]; ok && v <= prev {
			t.Fatalf("writer %d order broken: %d after %d", w, v, prev)
		}
		last[w] = v
	}
}

func TestCloseEndsBlockedReaders(t *testing.T) {
	b := New[string]()
	s := b.Subscribe()
	errc := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background())
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	b.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("reader not released by Close")
	}
	if _, err := b.Subscribe().Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("subscribe after close should fail with ErrClosed, got %v", err)
	}
}

func TestNextHonorsContext(t *testing.T) {
	b := New[string]()
	s := b.Subscribe()
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestRetentionFollowsSlowestCursor(t *testing.T) {
	b := New[int]()
	b.Publish(0)
	if st := b.Stats(); st.Retained != 0 || st.Published != 1 {
		t.Fatalf("publish without subscribers should not retain, stats=%+v", st)
	}

	fast := b.Subscribe()
	slow := b.Subscribe()
	for i := 1; i <= 10; i++ {
		b.Publish(i)
	}
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := fast.Next(ctx); err != nil {
			t.Fatalf("fast next: %v", err)
		}
	}
	if st := b.Stats(); st.Retained != 10 {
		t.Fatalf("slow cursor backlog must be retained, stats=%+v", st)
	}
	slow.Close()
	if st := b.Stats(); st.Retained != 0 || st.Subscriptions != 1 {
		t.Fatalf("backlog should drop with the slow cursor, stats=%+v", st)
	}
	b.Publish(11)
	if v, err := fast.Next(ctx); err != nil || v != 11 {
		t.Fatalf("fast next after compaction got %d err=%v", v, err)
	}
	fast.Close()
}
