package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/rp1210test/internal/bus"
	"github.com/danmuck/rp1210test/internal/config"
	"github.com/danmuck/rp1210test/internal/observability"
	"github.com/danmuck/rp1210test/internal/protocol/j1939"
)

const (
	DefaultEchoTimeout = 250 * time.Millisecond
	// MaxPayload is the largest J1939 transport protocol message.
	MaxPayload = 1785
)

type Params struct {
	Adapter          string
	Device           int
	ConnectionString string
	Address          uint8

	// EchoTimeout bounds how long Send waits for the adapter echo.
	EchoTimeout time.Duration
	Backoff     BackoffConfig
	Logger      zerolog.Logger
}

// Link owns one open adapter. Captures are decoded and published on the bus by the
// goroutine started with Run; Send and Stop are the only mutators of the driver.
type Link struct {
	adapter     config.AdapterConfig
	device      config.DeviceConfig
	address     uint8
	echoTimeout time.Duration
	backoff     BackoffConfig

	driver Driver
	bus    *bus.Bus[j1939.Frame]
	logger zerolog.Logger

	sendMu  sync.Mutex
	running atomic.Bool
	stopped atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Connect resolves the adapter in the catalog and opens its driver, retrying driver
// failures with backoff.
func Connect(ctx context.Context, p Params, cat config.Catalog, b *bus.Bus[j1939.Frame]) (*Link, error) {
	fail := func(err error) (*Link, error) {
		return nil, &ConnectError{Adapter: p.Adapter, Device: p.Device, Err: err}
	}
	a, d, err := cat.Lookup(p.Adapter, p.Device)
	if err != nil {
		return fail(err)
	}
	factory, ok := lookupDriver(a.Driver)
	if !ok {
		return fail(fmt.Errorf("unknown driver %q", a.Driver))
	}
	if p.EchoTimeout <= 0 {
		p.EchoTimeout = DefaultEchoTimeout
	}
	if p.Backoff == (BackoffConfig{}) {
		p.Backoff = DefaultBackoff()
	}
	weight := a.TimeStampWeight
	if weight == 0 {
		weight = 1
	}
	a.TimeStampWeight = weight

	logger := p.Logger.With().Str("adapter", a.ID).Int("device", d.ID).Logger()
	dev := Device{
		Adapter:    a,
		Device:     d,
		Options:    parseConnection(d.Connection, p.ConnectionString),
		Address:    p.Address,
		Connection: p.ConnectionString,
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var drv Driver
	for attempt := 1; ; attempt++ {
		drv, err = factory(ctx, dev)
		if err == nil {
			break
		}
		if attempt >= MaxConnectAttempts {
			return fail(err)
		}
		delay := NextBackoffDelay(p.Backoff, attempt, rng)
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("driver open failed")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fail(ctx.Err())
		}
	}
	logger.Info().Str("driver", a.Driver).Str("connection", d.Connection).Msg("adapter connected")

	linkCtx, cancel := context.WithCancel(context.Background())
	return &Link{
		adapter:     a,
		device:      d,
		address:     p.Address,
		echoTimeout: p.EchoTimeout,
		backoff:     p.Backoff,
		driver:      drv,
		bus:         b,
		logger:      logger,
		ctx:         linkCtx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}, nil
}

func (l *Link) Bus() *bus.Bus[j1939.Frame] {
	return l.bus
}

// Address is the source address this client transmits with.
func (l *Link) Address() uint8 {
	return l.address
}

func (l *Link) Adapter() config.AdapterConfig {
	return l.adapter
}

func (l *Link) Running() bool {
	return l.running.Load()
}

// Run starts the capture goroutine. Calling it again is a no-op.
func (l *Link) Run() {
	if l.stopped.Load() || !l.running.CompareAndSwap(false, true) {
		return
	}
	go l.capture(l.ctx)
}

func (l *Link) capture(ctx context.Context) {
	defer close(l.done)
	failures := 0
	for l.running.Load() {
		raw, err := l.driver.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrDriverClosed) {
				return
			}
			failures++
			delay := NextBackoffDelay(l.backoff, failures, nil)
			l.logger.Error().Err(err).Int("failures", failures).Msg("adapter read failed")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		failures = 0
		frame, err := j1939.DecodeCaptured(raw, l.adapter.TimeStampWeight)
		if err != nil {
			observability.RecordDecodeError(l.adapter.ID)
			l.logger.Warn().Err(err).Int("len", len(raw)).Msg("capture dropped")
			continue
		}
		observability.RecordCapture(l.adapter.ID, frame.Echo())
		l.bus.Publish(frame)
	}
}

// Send writes f and waits up to the echo timeout for the adapter to report it back.
// The echo carries the device timestamp; without one f itself is returned. Cancelling
// ctx while waiting returns ctx.Err().
func (l *Link) Send(ctx context.Context, f j1939.Frame) (j1939.Frame, error) {
	if l.stopped.Load() {
		return j1939.Frame{}, &SendError{Code: SendStopped, Message: "link stopped"}
	}
	if f.Len() > MaxPayload {
		return j1939.Frame{}, &SendError{Code: SendOversize, Message: fmt.Sprintf("payload of %d bytes", f.Len())}
	}
	sub := l.bus.SubscribeFor(l.echoTimeout)

	l.sendMu.Lock()
	err := l.driver.Write(ctx, f.Wire())
	l.sendMu.Unlock()
	if err != nil {
		sub.Close()
		observability.RecordSend(l.adapter.ID, false)
		return j1939.Frame{}, &SendError{Code: SendDriver, Message: "driver write", Err: err}
	}
	observability.RecordSend(l.adapter.ID, true)

	echo, ok := sub.Find(ctx, func(c j1939.Frame) bool {
		return c.Echo() &&
			c.Source() == f.Source() &&
			c.PGN() == f.PGN() &&
			bytes.Equal(c.Payload(), f.Payload())
	})
	if !ok {
		if err := ctx.Err(); err != nil {
			return j1939.Frame{}, err
		}
		l.logger.Debug().Str("header", f.Header()).Msg("no echo before deadline")
		return f, nil
	}
	return echo, nil
}

// Stop ends the capture goroutine and closes the driver.
func (l *Link) Stop() error {
	var err error
	l.once.Do(func() {
		l.stopped.Store(true)
		wasRunning := l.running.Swap(false)
		l.cancel()
		err = l.driver.Close()
		if wasRunning {
			<-l.done
		}
		l.logger.Info().Msg("adapter stopped")
	})
	return err
}
