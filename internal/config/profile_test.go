package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadProfileTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.toml")
	if err := WriteTemplate(path, "profile", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Adapter != "SIM" || p.Device != 1 || p.Address != 0xF9 || p.PGN != 0xFFF1 || p.Count != 10 {
		t.Fatalf("unexpected profile %+v", p)
	}
	if p.EchoTimeout != 250*time.Millisecond || p.PingTimeout != 2*time.Second {
		t.Fatalf("unexpected timeouts %+v", p)
	}
	if !p.IsDefined("pgn") || !p.IsDefined("admin_addr") {
		t.Fatalf("template keys should be defined")
	}
}

func TestLoadProfilePartialKeepsDefaults(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, "dest = \"0x25\"\nverbose = true\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Dest != 0x25 || !p.Verbose {
		t.Fatalf("overrides not applied %+v", p)
	}
	if p.Address != 0xF9 || p.ConnectionString != "J1939:Baud=Auto" {
		t.Fatalf("defaults lost %+v", p)
	}
	if p.IsDefined("address") || !p.IsDefined("dest") {
		t.Fatalf("unexpected defined keys")
	}
}

func TestLoadProfileRejectsBadValues(t *testing.T) {
	for _, body := range []string{
		"address = \"1FF\"\n",
		"pgn = \"zz\"\n",
		"count = -1\n",
		"ping_timeout = \"soon\"\n",
		"bogus = 1\n",
	} {
		if _, err := LoadProfile(writeProfile(t, body)); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
}

func TestParseHex(t *testing.T) {
	cases := []struct {
		in   string
		bits int
		want uint64
		ok   bool
	}{
		{"F9", 8, 0xF9, true},
		{"0xFFF1", 18, 0xFFF1, true},
		{"3FFFF", 18, 0x3FFFF, true},
		{"40000", 18, 0, false},
		{"100", 8, 0, false},
		{"", 8, 0, false},
	}
	for _, tc := range cases {
		got, err := ParseHex(tc.in, tc.bits)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("ParseHex(%q,%d)=%X err=%v", tc.in, tc.bits, got, err)
		}
	}
}
