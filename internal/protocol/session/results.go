package session

import (
	"fmt"
	"math"

	"github.com/danmuck/rp1210test/internal/protocol/j1939"
)

// PingStats summarizes a ping run. Latencies are in adapter milliseconds and cover
// timed replies only. Untimed counts replies to pings the adapter never echoed.
type PingStats struct {
	Sent     int
	Received int
	Untimed  int
	Min      float64
	Max      float64
	Sum      float64
}

func (p *PingStats) add(latency float64) {
	if p.Received == 0 || latency < p.Min {
		p.Min = latency
	}
	p.Max = math.Max(p.Max, latency)
	p.Sum += latency
	p.Received++
}

func (p PingStats) Mean() float64 {
	if p.Received == 0 {
		return 0
	}
	return p.Sum / float64(p.Received)
}

func (p PingStats) Lost() int {
	return p.Sent - p.Received - p.Untimed
}

func (p PingStats) String() string {
	return fmt.Sprintf("ping avg: %8.4f max: %8.4f min: %8.4f", p.Mean(), p.Max, p.Min)
}

// Throughput is one bulk transfer measured from the request echo to the last frame.
type Throughput struct {
	Direction string
	Count     uint32
	Elapsed   float64 // milliseconds
	Last      j1939.Frame
	// Untimed is set when the request or last frame had no adapter echo.
	Untimed bool
}

func (t Throughput) Rate() float64 {
	if t.Untimed || t.Elapsed <= 0 {
		return 0
	}
	return 1000 * float64(t.Count) / t.Elapsed
}

func (t Throughput) String() string {
	return fmt.Sprintf("%s time: %8.4f packet/s: %8.4f", t.Direction, t.Elapsed, t.Rate())
}

type RxResult struct {
	Throughput
	Received   uint32
	Mismatches []SequenceMismatch
}

type CompositeResult struct {
	Ping PingStats
	Tx   Throughput
	Rx   RxResult
}
