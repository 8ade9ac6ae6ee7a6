package session

import (
	"time"

	"github.com/danmuck/rp1210test/internal/protocol/j1939"
)

type Config struct {
	PGN      uint32
	Address  uint8 // our source address
	Dest     uint8 // peer address
	Priority uint8

	PingTimeout time.Duration
	// IdleTimeout ends a bulk receive when the peer goes quiet.
	IdleTimeout time.Duration
	LogInterval time.Duration
	Verbose     bool
}

func DefaultConfig() Config {
	return Config{
		PGN:         0xFFF1,
		Address:     0xF9,
		Dest:        0x00,
		Priority:    j1939.DefaultPriority,
		PingTimeout: 2 * time.Second,
		IdleTimeout: 5 * time.Second,
		LogInterval: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Priority == 0 {
		c.Priority = d.Priority
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.LogInterval <= 0 {
		c.LogInterval = d.LogInterval
	}
	return c
}
