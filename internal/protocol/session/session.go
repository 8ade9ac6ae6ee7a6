package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danmuck/rp1210test/internal/bus"
	"github.com/danmuck/rp1210test/internal/observability"
	"github.com/danmuck/rp1210test/internal/protocol"
	"github.com/danmuck/rp1210test/internal/protocol/j1939"
)

// Sender transmits frames and exposes the bus its captures are published on.
// *adapter.Link satisfies it.
type Sender interface {
	Send(ctx context.Context, f j1939.Frame) (j1939.Frame, error)
	Bus() *bus.Bus[j1939.Frame]
}

type Session struct {
	cfg    Config
	link   Sender
	bus    *bus.Bus[j1939.Frame]
	out    io.Writer
	logger zerolog.Logger
	runID  string

	sent       atomic.Uint64
	received   atomic.Uint64
	pongs      atomic.Uint64
	timeouts   atomic.Uint64
	mismatches atomic.Uint64
	mode       atomic.Value
}

// Stats is a point in time view of session counters.
type Stats struct {
	Run        string `json:"run"`
	Mode       string `json:"mode"`
	Sent       uint64 `json:"sent"`
	Received   uint64 `json:"received"`
	Pongs      uint64 `json:"pongs"`
	Timeouts   uint64 `json:"timeouts"`
	Mismatches uint64 `json:"mismatches"`
}

// New builds a session. out receives the human readable frame trace; nil discards it.
func New(link Sender, cfg Config, logger zerolog.Logger, out io.Writer) *Session {
	if out == nil {
		out = io.Discard
	}
	cfg = cfg.withDefaults()
	runID := uuid.NewString()
	s := &Session{
		cfg:  cfg,
		link: link,
		bus:  link.Bus(),
		out:  out,
		logger: logger.With().
			Str("run", runID).
			Str("pgn", fmt.Sprintf("%04X", cfg.PGN)).
			Str("sa", fmt.Sprintf("%02X", cfg.Address)).
			Str("da", fmt.Sprintf("%02X", cfg.Dest)).
			Logger(),
		runID: runID,
	}
	s.mode.Store("idle")
	return s
}

func (s *Session) Config() Config {
	return s.cfg
}

func (s *Session) RunID() string {
	return s.runID
}

func (s *Session) Stats() Stats {
	mode, _ := s.mode.Load().(string)
	return Stats{
		Run:        s.runID,
		Mode:       mode,
		Sent:       s.sent.Load(),
		Received:   s.received.Load(),
		Pongs:      s.pongs.Load(),
		Timeouts:   s.timeouts.Load(),
		Mismatches: s.mismatches.Load(),
	}
}

func (s *Session) enter(mode string) func() {
	s.mode.Store(mode)
	s.logger.Debug().Str("mode", mode).Msg("session start")
	return func() { s.mode.Store("idle") }
}

// send transmits payload on the configured PGN and returns the echo.
func (s *Session) send(ctx context.Context, dest uint8, payload []byte) (j1939.Frame, error) {
	f := j1939.Encode(s.cfg.Priority, s.cfg.PGN, dest, s.cfg.Address, payload)
	echo, err := s.link.Send(ctx, f)
	if err != nil {
		return j1939.Frame{}, err
	}
	s.sent.Add(1)
	return echo, nil
}

func (s *Session) tracef(format string, args ...any) {
	fmt.Fprintf(s.out, format+"\n", args...)
}

// Ping sends count pings with counters 1..count, each waiting up to PingTimeout for a
// ping reply from the peer. Unanswered pings are logged and skipped, as are replies to
// pings the adapter never echoed, since those have no send time to measure from.
func (s *Session) Ping(ctx context.Context, count uint32) (PingStats, error) {
	defer s.enter("ping")()
	var stats PingStats
	for i := uint32(1); i <= count; i++ {
		sub := s.bus.SubscribeFor(s.cfg.PingTimeout)
		echo, err := s.send(ctx, s.cfg.Dest, protocol.PingPayload(i))
		if err != nil {
			sub.Close()
			return stats, err
		}
		stats.Sent++
		pong, ok := sub.Find(ctx, func(f j1939.Frame) bool {
			return f.Source() == s.cfg.Dest &&
				f.PGN() == s.cfg.PGN &&
				protocol.CommandOf(f.Payload()) == protocol.CmdPing
		})
		if !ok {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			s.timeouts.Add(1)
			observability.RecordPingTimeout(s.cfg.PGN)
			s.logger.Warn().Err(ErrNoResponse).Uint32("counter", i).Msg("ping unanswered")
			if s.cfg.Verbose {
				s.tracef("%s no response", echo)
			}
			continue
		}
		s.received.Add(1)
		latency, timed := s.elapsed(echo, pong, "ping")
		if !timed {
			stats.Untimed++
			continue
		}
		stats.add(latency)
		observability.RecordPing(s.cfg.PGN, latency)
		if s.cfg.Verbose {
			s.tracef("%8.4f\t%s -> %s", latency, echo, pong)
		}
	}
	s.logger.Info().Int("sent", stats.Sent).Int("received", stats.Received).Int("untimed", stats.Untimed).Float64("avg_ms", stats.Mean()).Msg("ping done")
	return stats, nil
}

// elapsed is the device time between two frames in milliseconds. A frame the adapter
// never echoed has no device time, so the measurement is skipped with a warning.
func (s *Session) elapsed(from, to j1939.Frame, what string) (float64, bool) {
	if from.Direction() != j1939.Captured || to.Direction() != j1939.Captured {
		s.logger.Warn().Str("measure", what).Msg("no adapter echo, timing skipped")
		return 0, false
	}
	return to.Time() - from.Time(), true
}

// Tx asks the peer to receive count data frames and sends them.
func (s *Session) Tx(ctx context.Context, count uint32) (Throughput, error) {
	defer s.enter("tx")()
	req, err := s.send(ctx, s.cfg.Dest, protocol.ControlPayload(protocol.CmdRxRequest, count))
	if err != nil {
		return Throughput{}, err
	}
	last, err := s.transmit(ctx, s.cfg.Dest, count)
	if err != nil {
		return Throughput{}, err
	}
	if count == 0 {
		last = req
	}
	res := Throughput{Direction: "tx", Count: count, Last: last}
	s.measure(&res, req)
	s.logger.Info().Uint32("count", count).Float64("elapsed_ms", res.Elapsed).Float64("rate", res.Rate()).Msg("tx done")
	return res, nil
}

// Rx asks the peer to transmit count data frames and receives them.
func (s *Session) Rx(ctx context.Context, count uint32) (RxResult, error) {
	defer s.enter("rx")()
	sub := s.bus.Subscribe()
	defer sub.Close()
	req, err := s.send(ctx, s.cfg.Dest, protocol.ControlPayload(protocol.CmdTxRequest, count))
	if err != nil {
		return RxResult{}, err
	}
	res, err := s.receive(ctx, sub, s.cfg.Dest, count)
	if count == 0 {
		res.Last = req
	}
	if err != nil {
		return res, err
	}
	s.measure(&res.Throughput, req)
	s.logger.Info().Uint32("count", count).Float64("elapsed_ms", res.Elapsed).Int("mismatches", len(res.Mismatches)).Msg("rx done")
	return res, nil
}

func (s *Session) measure(t *Throughput, req j1939.Frame) {
	elapsed, timed := s.elapsed(req, t.Last, t.Direction)
	t.Elapsed = elapsed
	t.Untimed = !timed
	if timed {
		observability.RecordThroughput(t.Direction, t.Rate())
	}
}

// Composite runs ping, tx and rx back to back with the same count.
func (s *Session) Composite(ctx context.Context, count uint32) (CompositeResult, error) {
	var res CompositeResult
	var err error
	if res.Ping, err = s.Ping(ctx, count); err != nil {
		return res, err
	}
	if res.Tx, err = s.Tx(ctx, count); err != nil {
		return res, err
	}
	res.Rx, err = s.Rx(ctx, count)
	return res, err
}

// transmit sends data frames with sequence 0..count-1 and returns the last echo.
func (s *Session) transmit(ctx context.Context, dest uint8, count uint32) (j1939.Frame, error) {
	var last j1939.Frame
	for seq := uint32(0); seq < count; seq++ {
		echo, err := s.send(ctx, dest, protocol.DataPayload(seq))
		if err != nil {
			return last, err
		}
		last = echo
		if s.cfg.Verbose {
			s.tracef("tx: %s", echo)
		}
	}
	return last, nil
}

// receive consumes data frames from source on sub until count have arrived. A sequence
// gap is recorded and the expected sequence resyncs to the frame actually received.
func (s *Session) receive(ctx context.Context, sub *bus.Subscription[j1939.Frame], source uint8, count uint32) (RxResult, error) {
	res := RxResult{Throughput: Throughput{Direction: "rx", Count: count}}
	var expected uint32
	for res.Received < count {
		f, err := s.nextWithin(ctx, sub)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				err = fmt.Errorf("%w: %d of %d data frames", ErrIncomplete, res.Received, count)
			}
			return res, err
		}
		if f.Source() != source || f.PGN() != s.cfg.PGN || protocol.CommandOf(f.Payload()) != protocol.CmdData {
			continue
		}
		ctl, err := protocol.ParseControl(f.Payload())
		if err != nil {
			s.logger.Warn().Err(err).Str("frame", f.String()).Msg("bad data frame")
			continue
		}
		if ctl.Param != expected {
			m := SequenceMismatch{Expected: expected, Actual: ctl.Param}
			res.Mismatches = append(res.Mismatches, m)
			s.mismatches.Add(1)
			observability.RecordSequenceMismatch(s.cfg.PGN)
			s.logger.Warn().Uint32("expected", m.Expected).Uint32("actual", m.Actual).Msg("sequence mismatch")
			s.tracef("Invalid seq. expected %d received %d", m.Expected, m.Actual)
		}
		expected = ctl.Param + 1
		res.Received++
		res.Last = f
		s.received.Add(1)
		if s.cfg.Verbose {
			s.tracef("rx: %s", f)
		}
	}
	return res, nil
}

func (s *Session) nextWithin(ctx context.Context, sub *bus.Subscription[j1939.Frame]) (j1939.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.IdleTimeout)
	defer cancel()
	return sub.Next(ctx)
}

// RequestExit asks the peer's server loop to terminate.
func (s *Session) RequestExit(ctx context.Context) (j1939.Frame, error) {
	defer s.enter("exit")()
	return s.send(ctx, s.cfg.Dest, protocol.ControlPayload(protocol.CmdExit, 0))
}

// Log prints every frame on the bus until ctx ends, reporting the frame rate once per
// LogInterval.
func (s *Session) Log(ctx context.Context) error {
	defer s.enter("log")()
	var count uint64
	start := time.Now()
	for f := range s.bus.Subscribe().All(ctx) {
		s.tracef("%s", f)
		s.received.Add(1)
		count++
		if elapsed := time.Since(start); elapsed > s.cfg.LogInterval {
			rate := float64(count) / elapsed.Seconds()
			observability.RecordTrafficRate(rate)
			s.logger.Info().Float64("packets_per_second", rate).Msg("traffic")
			start = time.Now()
			count = 0
		}
	}
	return ctx.Err()
}
