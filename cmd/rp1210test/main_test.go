package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/rp1210test/internal/testutil/testlog"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseOptionsDefaultsAndInterspersedFlags(t *testing.T) {
	testlog.Start(t)
	o, err := parseOptions("ping", []string{"-v", "SIM", "--pgn", "FEF1", "2", "-c", "3", "--dest", "25"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if o.adapter != "SIM" || o.device != 2 || o.pgn.v != 0xFEF1 || o.count != 3 || o.dest.v != 0x25 || !o.verbose {
		t.Fatalf("unexpected options %+v", o)
	}
	if o.address.v != 0xF9 || o.connection != "J1939:Baud=Auto" {
		t.Fatalf("defaults not applied %+v", o)
	}
}

func TestParseOptionsErrors(t *testing.T) {
	testlog.Start(t)
	for _, args := range [][]string{
		{},
		{"SIM"},
		{"SIM", "one"},
		{"SIM", "1", "extra"},
		{"--address", "1FF", "SIM", "1"},
		{"-c", "4294967296", "SIM", "1"},
	} {
		if _, err := parseOptions("ping", args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestProfileFillsUnsetFlags(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "run.toml")
	body := "adapter = \"SIM\"\ndevice = 1\npgn = \"FF00\"\ncount = 42\naddress = \"10\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	o, err := parseOptions("tx", []string{"--config", path, "-c", "5"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if o.adapter != "SIM" || o.device != 1 || o.pgn.v != 0xFF00 || o.address.v != 0x10 {
		t.Fatalf("profile not applied %+v", o)
	}
	if o.count != 5 {
		t.Fatalf("explicit flag must win over profile, count=%d", o.count)
	}
}

func TestListPrintsCatalog(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"list"}, &out, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"SIM - In-process simulator", "1: can0", "drivers: ["} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("list output missing %q:\n%s", want, out.String())
		}
	}
}

func TestServerPingExitOverSim(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := "--connection-string=network=" + t.Name()

	serverOut := &lockedBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"server", conn, "--address", "10", "SIM", "1"}, serverOut, serverOut)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(serverOut.String(), "SERVER: address: 10 pgn: FFF1") {
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %q", serverOut.String())
		}
		time.Sleep(5 * time.Millisecond)
	}

	var out, errOut bytes.Buffer
	if err := run(ctx, []string{"ping", conn, "--dest", "10", "-c", "2", "SIM", "1"}, &out, &errOut); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !strings.HasPrefix(out.String(), "ping avg:") {
		t.Fatalf("unexpected ping output %q", out.String())
	}

	out.Reset()
	errOut.Reset()
	if err := run(ctx, []string{"tx", conn, "--dest", "10", "-c", "5", "SIM", "1"}, &out, &errOut); err != nil {
		t.Fatalf("tx: %v", err)
	}
	if !strings.HasPrefix(errOut.String(), "tx time:") {
		t.Fatalf("unexpected tx output %q", errOut.String())
	}

	out.Reset()
	if err := run(ctx, []string{"exit", conn, "--dest", "10", "SIM", "1"}, &out, &errOut); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if !strings.HasPrefix(out.String(), "EXIT requested ") {
		t.Fatalf("unexpected exit output %q", out.String())
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server returned %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("server did not exit")
	}
	if !strings.Contains(serverOut.String(), "EXIT: F9") {
		t.Fatalf("server trace missing exit line:\n%s", serverOut.String())
	}
}
