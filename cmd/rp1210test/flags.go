package main

import (
	"flag"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/danmuck/rp1210test/internal/config"
)

// hexValue is a flag holding an unprefixed hex number, e.g. --pgn FFF1.
type hexValue struct {
	bits int
	v    uint64
}

func (h *hexValue) String() string {
	if h == nil {
		return ""
	}
	return fmt.Sprintf("%X", h.v)
}

func (h *hexValue) Set(s string) error {
	v, err := config.ParseHex(s, h.bits)
	if err != nil {
		return err
	}
	h.v = v
	return nil
}

type options struct {
	adapter    string
	device     int
	connection string
	address    hexValue
	dest       hexValue
	pgn        hexValue
	count      uint
	verbose    bool
	configPath string
	catalog    string
	adminAddr  string
	adminToken string
	pingWait   time.Duration
	echoWait   time.Duration

	deviceSet bool
	set       map[string]bool
}

func newFlagSet(name string, o *options) *flag.FlagSet {
	d := config.DefaultProfile()
	o.address = hexValue{bits: 8, v: uint64(d.Address)}
	o.dest = hexValue{bits: 8, v: uint64(d.Dest)}
	o.pgn = hexValue{bits: 18, v: uint64(d.PGN)}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&o.connection, "connection-string", d.ConnectionString, "adapter connection string")
	fs.Var(&o.address, "address", "source address (hex)")
	fs.Var(&o.dest, "dest", "peer address (hex)")
	fs.Var(&o.pgn, "pgn", "test PGN (hex)")
	fs.UintVar(&o.count, "count", uint(d.Count), "number of pings or data frames")
	fs.UintVar(&o.count, "c", uint(d.Count), "shorthand for --count")
	fs.BoolVar(&o.verbose, "verbose", false, "print every frame")
	fs.BoolVar(&o.verbose, "v", false, "shorthand for --verbose")
	fs.StringVar(&o.configPath, "config", "", "run profile (toml)")
	fs.StringVar(&o.catalog, "catalog", "", "adapter catalog (toml), built-in when empty")
	fs.StringVar(&o.adminAddr, "admin", "", "serve health and metrics on this address")
	fs.StringVar(&o.adminToken, "admin-token", "", "bearer token required for admin stats")
	fs.DurationVar(&o.pingWait, "ping-timeout", d.PingTimeout, "wait for each ping reply")
	fs.DurationVar(&o.echoWait, "echo-timeout", d.EchoTimeout, "wait for the adapter echo")
	return fs
}

// parseArgs accepts flags before, between and after the positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// parseOptions reads flags, positionals and the optional profile. Explicit flags win
// over the profile.
func parseOptions(name string, args []string) (options, error) {
	var o options
	fs := newFlagSet(name, &o)
	positional, err := parseArgs(fs, args)
	if err != nil {
		return options{}, err
	}
	o.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	if len(positional) > 0 {
		o.adapter = positional[0]
	}
	if len(positional) > 1 {
		if o.device, err = strconv.Atoi(positional[1]); err != nil {
			return options{}, fmt.Errorf("device must be a number: %q", positional[1])
		}
		o.deviceSet = true
	}
	if len(positional) > 2 {
		return options{}, fmt.Errorf("unexpected argument %q", positional[2])
	}

	if o.configPath != "" {
		p, err := config.LoadProfile(o.configPath)
		if err != nil {
			return options{}, err
		}
		o.applyProfile(p)
	}
	if o.adapter == "" || !o.deviceSet {
		return options{}, fmt.Errorf("usage: %s [flags] <adapter> <device>", name)
	}
	if o.count > math.MaxUint32 {
		return options{}, fmt.Errorf("count %d exceeds %d", o.count, uint32(math.MaxUint32))
	}
	return o, nil
}

func (o *options) applyProfile(p config.Profile) {
	if o.adapter == "" && p.IsDefined("adapter") {
		o.adapter = p.Adapter
	}
	if !o.deviceSet && p.IsDefined("device") {
		o.device = p.Device
		o.deviceSet = true
	}
	take := func(flagNames []string, key string) bool {
		for _, n := range flagNames {
			if o.set[n] {
				return false
			}
		}
		return p.IsDefined(key)
	}
	if take([]string{"connection-string"}, "connection_string") {
		o.connection = p.ConnectionString
	}
	if take([]string{"address"}, "address") {
		o.address.v = uint64(p.Address)
	}
	if take([]string{"dest"}, "dest") {
		o.dest.v = uint64(p.Dest)
	}
	if take([]string{"pgn"}, "pgn") {
		o.pgn.v = uint64(p.PGN)
	}
	if take([]string{"count", "c"}, "count") {
		o.count = uint(p.Count)
	}
	if take([]string{"verbose", "v"}, "verbose") {
		o.verbose = p.Verbose
	}
	if take([]string{"catalog"}, "catalog") {
		o.catalog = p.Catalog
	}
	if take([]string{"admin"}, "admin_addr") {
		o.adminAddr = p.AdminAddr
	}
	if take([]string{"admin-token"}, "admin_token") {
		o.adminToken = p.AdminToken
	}
	if take([]string{"ping-timeout"}, "ping_timeout") {
		o.pingWait = p.PingTimeout
	}
	if take([]string{"echo-timeout"}, "echo_timeout") {
		o.echoWait = p.EchoTimeout
	}
}
