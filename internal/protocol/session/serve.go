package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/rp1210test/internal/bus"
	"github.com/danmuck/rp1210test/internal/protocol"
	"github.com/danmuck/rp1210test/internal/protocol/j1939"
)

// Serve answers peers on the configured PGN until ctx ends or a peer sends EXIT, in
// which case it returns ErrExitRequested. Bulk transfers are handled inline, so one
// peer is served at a time.
func (s *Session) Serve(ctx context.Context) error {
	sub := s.bus.Subscribe()
	defer sub.Close()
	defer s.enter("server")()
	s.tracef("SERVER: address: %02X pgn: %04X", s.cfg.Address, s.cfg.PGN)
	s.logger.Info().Msg("server listening")
	for {
		f, err := sub.Next(ctx)
		if err != nil {
			s.logger.Info().Err(err).Msg("server exited")
			return err
		}
		if f.PGN() != s.cfg.PGN || f.Source() == s.cfg.Address {
			continue
		}
		if err := s.dispatch(ctx, sub, f); err != nil {
			return err
		}
	}
}

func (s *Session) dispatch(ctx context.Context, sub *bus.Subscription[j1939.Frame], f j1939.Frame) error {
	peer := f.Source()
	switch cmd := protocol.CommandOf(f.Payload()); cmd {
	case protocol.CmdPing:
		s.tracef("PING: %02X %s", peer, f)
		if _, err := s.send(ctx, peer, f.Payload()); err != nil {
			return err
		}
		s.pongs.Add(1)
	case protocol.CmdRxRequest:
		ctl, err := protocol.ParseControl(f.Payload())
		if err != nil {
			s.logger.Warn().Err(err).Str("frame", f.String()).Msg("bad request")
			return nil
		}
		s.tracef("RX %d %s", ctl.Param, f)
		// the requester transmits next; keep reading the same subscription so
		// nothing sent after the request is missed
		if _, err := s.receive(ctx, sub, peer, ctl.Param); err != nil {
			if !errors.Is(err, ErrIncomplete) {
				return err
			}
			s.logger.Warn().Err(err).Str("peer", fmt.Sprintf("%02X", peer)).Msg("receive abandoned")
		}
	case protocol.CmdTxRequest:
		ctl, err := protocol.ParseControl(f.Payload())
		if err != nil {
			s.logger.Warn().Err(err).Str("frame", f.String()).Msg("bad request")
			return nil
		}
		s.tracef("TX %d %s", ctl.Param, f)
		if _, err := s.transmit(ctx, peer, ctl.Param); err != nil {
			return err
		}
	case protocol.CmdData:
	case protocol.CmdExit:
		s.tracef("EXIT: %02X %s", peer, f)
		s.logger.Info().Str("peer", fmt.Sprintf("%02X", peer)).Msg("exit requested")
		return ErrExitRequested
	default:
		s.tracef("Unknown command: %s", f)
		s.logger.Debug().Str("frame", f.String()).Msg("unknown command")
	}
	return nil
}
