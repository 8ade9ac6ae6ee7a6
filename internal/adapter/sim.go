package adapter

import (
	"context"
	"sync"

	"github.com/danmuck/rp1210test/internal/protocol/j1939"
)

func init() {
	Register("sim", openSim)
}

// simNetwork is an in-process J1939 segment shared by every sim endpoint opened with
// the same network name.
type simNetwork struct {
	name      string
	clock     clock
	mu        sync.RWMutex
	endpoints map[*simEndpoint]struct{}
}

var (
	simMu       sync.Mutex
	simNetworks = map[string]*simNetwork{}
)

func simNetworkFor(name string) *simNetwork {
	simMu.Lock()
	defer simMu.Unlock()
	n, ok := simNetworks[name]
	if !ok {
		n = &simNetwork{name: name, clock: newClock(), endpoints: map[*simEndpoint]struct{}{}}
		simNetworks[name] = n
	}
	return n
}

type simEndpoint struct {
	net  *simNetwork
	feed *feed
}

func openSim(_ context.Context, dev Device) (Driver, error) {
	n := simNetworkFor(option(dev.Options, "network", "default"))
	ep := &simEndpoint{net: n, feed: newFeed(4096)}
	n.mu.Lock()
	n.endpoints[ep] = struct{}{}
	n.mu.Unlock()
	return ep, nil
}

func (e *simEndpoint) Read(ctx context.Context) ([]byte, error) {
	return e.feed.pop(ctx)
}

// Write echoes to the writer first, then delivers to every other endpoint with the
// same timestamp.
func (e *simEndpoint) Write(ctx context.Context, wire []byte) error {
	if len(wire) < j1939.HeaderLen {
		return j1939.ErrMalformedFrame
	}
	select {
	case <-e.feed.done:
		return ErrDriverClosed
	default:
	}
	e.net.mu.RLock()
	targets := make([]*simEndpoint, 0, len(e.net.endpoints))
	for ep := range e.net.endpoints {
		if ep != e {
			targets = append(targets, ep)
		}
	}
	ts := e.net.clock.micros()
	e.net.mu.RUnlock()

	if err := e.feed.push(ctx, j1939.EncodeCapture(ts, true, wire)); err != nil {
		return err
	}
	// a full receive queue loses the frame, like an overrun controller
	for _, t := range targets {
		t.feed.offer(j1939.EncodeCapture(ts, false, wire))
	}
	return nil
}

func (e *simEndpoint) Close() error {
	e.net.mu.Lock()
	delete(e.net.endpoints, e)
	e.net.mu.Unlock()
	e.feed.close()
	return nil
}
