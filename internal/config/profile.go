package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Profile holds defaults for a CLI run. Flags given on the command line win over
// values defined here.
type Profile struct {
	Adapter          string
	Device           int
	ConnectionString string
	Address          uint8
	Dest             uint8
	PGN              uint32
	Count            uint32
	Verbose          bool
	Catalog          string
	AdminAddr        string
	AdminToken       string
	PingTimeout      time.Duration
	EchoTimeout      time.Duration

	defined map[string]bool
}

type profileFile struct {
	Adapter          string `toml:"adapter"`
	Device           int    `toml:"device"`
	ConnectionString string `toml:"connection_string"`
	Address          string `toml:"address"`
	Dest             string `toml:"dest"`
	PGN              string `toml:"pgn"`
	Count            int64  `toml:"count"`
	Verbose          bool   `toml:"verbose"`
	Catalog          string `toml:"catalog"`
	AdminAddr        string `toml:"admin_addr"`
	AdminToken       string `toml:"admin_token"`
	PingTimeout      string `toml:"ping_timeout"`
	EchoTimeout      string `toml:"echo_timeout"`
}

func DefaultProfile() Profile {
	return Profile{
		ConnectionString: "J1939:Baud=Auto",
		Address:          0xF9,
		PGN:              0xFFF1,
		Count:            10,
		PingTimeout:      2 * time.Second,
		EchoTimeout:      250 * time.Millisecond,
		defined:          map[string]bool{},
	}
}

// IsDefined reports whether the profile file set key.
func (p Profile) IsDefined(key string) bool {
	return p.defined[key]
}

func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()

	var raw profileFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Profile{}, fmt.Errorf("load profile: unknown key %q", undecoded[0].String())
	}
	for _, key := range meta.Keys() {
		p.defined[key.String()] = true
	}

	if meta.IsDefined("adapter") {
		p.Adapter = strings.TrimSpace(raw.Adapter)
	}
	if meta.IsDefined("device") {
		p.Device = raw.Device
	}
	if meta.IsDefined("connection_string") {
		p.ConnectionString = strings.TrimSpace(raw.ConnectionString)
	}
	if meta.IsDefined("address") {
		v, err := ParseHex(raw.Address, 8)
		if err != nil {
			return Profile{}, fmt.Errorf("parse address: %w", err)
		}
		p.Address = uint8(v)
	}
	if meta.IsDefined("dest") {
		v, err := ParseHex(raw.Dest, 8)
		if err != nil {
			return Profile{}, fmt.Errorf("parse dest: %w", err)
		}
		p.Dest = uint8(v)
	}
	if meta.IsDefined("pgn") {
		v, err := ParseHex(raw.PGN, 18)
		if err != nil {
			return Profile{}, fmt.Errorf("parse pgn: %w", err)
		}
		p.PGN = uint32(v)
	}
	if meta.IsDefined("count") {
		if raw.Count < 0 || raw.Count > int64(^uint32(0)) {
			return Profile{}, fmt.Errorf("count out of range: %d", raw.Count)
		}
		p.Count = uint32(raw.Count)
	}
	if meta.IsDefined("verbose") {
		p.Verbose = raw.Verbose
	}
	if meta.IsDefined("catalog") {
		p.Catalog = strings.TrimSpace(raw.Catalog)
	}
	if meta.IsDefined("admin_addr") {
		p.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		p.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("ping_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PingTimeout))
		if err != nil {
			return Profile{}, fmt.Errorf("parse ping_timeout: %w", err)
		}
		p.PingTimeout = d
	}
	if meta.IsDefined("echo_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.EchoTimeout))
		if err != nil {
			return Profile{}, fmt.Errorf("parse echo_timeout: %w", err)
		}
		p.EchoTimeout = d
	}
	return p, nil
}

// ParseHex parses an unprefixed (or 0x prefixed) hex number of at most bits bits.
func ParseHex(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	if bits < 64 && v >= 1<<bits {
		return 0, fmt.Errorf("%s exceeds %d bits", s, bits)
	}
	return v, nil
}
