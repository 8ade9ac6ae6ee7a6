package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/danmuck/rp1210test/internal/adapter"
	"github.com/danmuck/rp1210test/internal/admin"
	"github.com/danmuck/rp1210test/internal/auth"
	"github.com/danmuck/rp1210test/internal/bus"
	"github.com/danmuck/rp1210test/internal/config"
	"github.com/danmuck/rp1210test/internal/observability"
	"github.com/danmuck/rp1210test/internal/protocol/j1939"
	"github.com/danmuck/rp1210test/internal/protocol/session"
)

const usage = `usage: rp1210test <command> [flags] <adapter> <device>

commands:
  list       list adapters in the catalog
  exit       ask a peer server to exit
  log        print all bus traffic
  server     answer ping, rx and tx requests
  ping       measure round trip latency
  composite  ping, tx and rx in sequence
  tx         send a block of data frames to the peer
  rx         request a block of data frames from the peer
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "rp1210test: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "list":
		return list(rest, stdout)
	case "exit", "log", "server", "ping", "composite", "tx", "rx":
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}

	o, err := parseOptions(cmd, rest)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger := observability.InitLogger("rp1210test").With().Str("cmd", cmd).Logger()
	if o.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	cat, err := config.LoadCatalog(o.catalog)
	if err != nil {
		return err
	}

	frames := bus.New[j1939.Frame]()
	defer frames.Close()
	link, err := adapter.Connect(ctx, adapter.Params{
		Adapter:          o.adapter,
		Device:           o.device,
		ConnectionString: o.connection,
		Address:          uint8(o.address.v),
		EchoTimeout:      o.echoWait,
		Logger:           logger,
	}, cat, frames)
	if err != nil {
		return err
	}
	link.Run()
	defer link.Stop()

	sess := session.New(link, session.Config{
		PGN:         uint32(o.pgn.v),
		Address:     uint8(o.address.v),
		Dest:        uint8(o.dest.v),
		PingTimeout: o.pingWait,
		Verbose:     o.verbose,
	}, logger, stdout)

	if o.adminAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		srv := admin.New("rp1210test-"+sess.RunID()[:8], o.adminAddr, frames, sess, cat, logger, nil)
		if o.adminToken != "" {
			srv.RequireToken(auth.StaticToken{Token: o.adminToken})
		}
		go func() {
			if err := srv.Serve(ctx); err != nil {
				logger.Error().Err(err).Msg("admin server failed")
			}
		}()
	}

	count := uint32(o.count)
	switch cmd {
	case "exit":
		echo, err := sess.RequestExit(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "EXIT requested %s\n", echo)
	case "log":
		return ignoreCanceled(sess.Log(ctx))
	case "server":
		err := sess.Serve(ctx)
		if errors.Is(err, session.ErrExitRequested) {
			return nil
		}
		return ignoreCanceled(err)
	case "ping":
		stats, err := sess.Ping(ctx, count)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, stats)
	case "tx":
		res, err := sess.Tx(ctx, count)
		if err != nil {
			return err
		}
		fmt.Fprintln(stderr, res)
	case "rx":
		res, err := sess.Rx(ctx, count)
		if err != nil {
			return err
		}
		fmt.Fprintln(stderr, res)
	case "composite":
		res, err := sess.Composite(ctx, count)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, res.Ping)
		fmt.Fprintln(stderr, res.Tx)
		fmt.Fprintln(stderr, res.Rx)
	}
	return nil
}

func list(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	catalog := fs.String("catalog", "", "adapter catalog (toml), built-in when empty")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	cat, err := config.LoadCatalog(*catalog)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	for _, a := range cat.Adapters {
		fmt.Fprintln(stdout, a)
	}
	fmt.Fprintf(stdout, "\ndrivers: %v\n", adapter.Drivers())
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
