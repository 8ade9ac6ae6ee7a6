package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/danmuck/rp1210test/internal/protocol/j1939"
)

func init() {
	Register("udp", openUDP)
}

// udpEnvelope is one frame on the UDP virtual bus. Receivers stamp captures with
// their own clock.
type udpEnvelope struct {
	Origin string `cbor:"1,keyasint"`
	Raw    []byte `cbor:"2,keyasint"`
}

// udpBus joins a virtual J1939 segment made of UDP peers. Each datagram carries the
// sender's id so looped back datagrams can be ignored; writes are echoed locally.
type udpBus struct {
	id    string
	conn  net.PacketConn
	peers []net.Addr
	clock clock
	feed  *feed
	once  sync.Once
}

func openUDP(_ context.Context, dev Device) (Driver, error) {
	listen := option(dev.Options, "listen", "127.0.0.1:0")
	conn, err := net.ListenPacket("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("udp listen %s: %w", listen, err)
	}
	var peers []net.Addr
	for _, p := range strings.Split(option(dev.Options, "peers", ""), ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", p)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("udp peer %s: %w", p, err)
		}
		peers = append(peers, addr)
	}
	d := &udpBus{
		id:    uuid.NewString(),
		conn:  conn,
		peers: peers,
		clock: newClock(),
		feed:  newFeed(1024),
	}
	go d.receive()
	return d, nil
}

// LocalAddr is the bound listen address.
func (d *udpBus) LocalAddr() net.Addr {
	return d.conn.LocalAddr()
}

func (d *udpBus) receive() {
	defer d.feed.close()
	buf := make([]byte, 64*1024)
	for {
		n, _, err := d.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		var env udpEnvelope
		if err := cbor.Unmarshal(buf[:n], &env); err != nil {
			continue
		}
		if env.Origin == d.id || len(env.Raw) < j1939.HeaderLen {
			continue
		}
		d.feed.offer(j1939.EncodeCapture(d.clock.micros(), false, env.Raw))
	}
}

func (d *udpBus) Read(ctx context.Context) ([]byte, error) {
	return d.feed.pop(ctx)
}

func (d *udpBus) Write(ctx context.Context, wire []byte) error {
	if len(wire) < j1939.HeaderLen {
		return j1939.ErrMalformedFrame
	}
	data, err := cbor.Marshal(udpEnvelope{Origin: d.id, Raw: wire})
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range d.peers {
		if _, err := d.conn.WriteTo(data, p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return d.feed.push(ctx, j1939.EncodeCapture(d.clock.micros(), true, wire))
}

func (d *udpBus) Close() error {
	var err error
	d.once.Do(func() {
		d.feed.close()
		err = d.conn.Close()
	})
	return err
}
