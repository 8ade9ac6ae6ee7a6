package adapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/rp1210test/internal/tools"
)

// bitrateFor reads the requested bus speed from connection options: bitrate=250000 or
// the RP1210 form J1939:Baud=250 (kbit/s). Auto, or no setting, means leave the
// interface as configured.
func bitrateFor(opts map[string]string) (int, bool, error) {
	if v := opts["bitrate"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, false, fmt.Errorf("invalid bitrate %q", v)
		}
		return n, true, nil
	}
	v := opts["j1939:baud"]
	if v == "" || strings.EqualFold(v, "auto") {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false, fmt.Errorf("invalid baud %q", v)
	}
	return n * 1000, true, nil
}

// setupInterface restarts iface at the given bitrate with iproute2.
func setupInterface(ctx context.Context, runner tools.CommandRunner, iface string, bitrate int) error {
	steps := [][]string{
		{"link", "set", iface, "down"},
		{"link", "set", iface, "up", "type", "can", "bitrate", strconv.Itoa(bitrate)},
	}
	for _, args := range steps {
		if _, stderr, code, err := runner.Run(ctx, "ip", args...); err != nil {
			return fmt.Errorf("ip %s: exit %d: %s: %w", strings.Join(args, " "), code, strings.TrimSpace(string(stderr)), err)
		}
	}
	return nil
}
