package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/rp1210test/internal/config"
)

var ErrDriverClosed = errors.New("adapter: driver closed")

// Driver is the device side of a Link. Read returns one capture laid out as
// timestamp(4) echo(1) header(6) payload. Write takes a header plus payload.
// Close must unblock a pending Read.
type Driver interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, wire []byte) error
	Close() error
}

// Device is everything a driver factory needs to open a connection.
type Device struct {
	Adapter    config.AdapterConfig
	Device     config.DeviceConfig
	Options    map[string]string
	Address    uint8
	Connection string
}

type Factory func(ctx context.Context, dev Device) (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = f
}

func lookupDriver(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

// Drivers lists registered driver names.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// parseConnection splits "k=v;k=v" strings. Later sources override earlier ones.
func parseConnection(sources ...string) map[string]string {
	out := map[string]string{}
	for _, src := range sources {
		for _, part := range strings.Split(src, ";") {
			k, v, ok := strings.Cut(part, "=")
			if !ok {
				continue
			}
			k = strings.ToLower(strings.TrimSpace(k))
			if k == "" {
				continue
			}
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

func option(opts map[string]string, key, fallback string) string {
	if v, ok := opts[key]; ok && v != "" {
		return v
	}
	return fallback
}

type ConnectError struct {
	Adapter string
	Device  int
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("adapter: connect %s/%d: %v", e.Adapter, e.Device, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Send failure codes.
const (
	SendStopped = 1 + iota
	SendDriver
	SendOversize
)

type SendError struct {
	Code    int
	Message string
	Err     error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("adapter: send failed (%d): %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("adapter: send failed (%d): %s", e.Code, e.Message)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// feed is the capture queue shared by the bundled drivers.
type feed struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func newFeed(size int) *feed {
	return &feed{ch: make(chan []byte, size), done: make(chan struct{})}
}

func (f *feed) push(ctx context.Context, raw []byte) error {
	select {
	case f.ch <- raw:
		return nil
	case <-f.done:
		return ErrDriverClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *feed) offer(raw []byte) bool {
	select {
	case f.ch <- raw:
		return true
	default:
		return false
	}
}

func (f *feed) pop(ctx context.Context) ([]byte, error) {
	select {
	case raw := <-f.ch:
		return raw, nil
	case <-f.done:
		return nil, ErrDriverClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *feed) close() {
	f.once.Do(func() { close(f.done) })
}

// clock yields microsecond capture timestamps relative to driver start.
type clock struct {
	start time.Time
}

func newClock() clock {
	return clock{start: time.Now()}
}

func (c clock) micros() uint32 {
	return uint32(time.Since(c.start).Microseconds())
}
