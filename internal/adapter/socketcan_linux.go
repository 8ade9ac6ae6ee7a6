//go:build linux

package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/danmuck/rp1210test/internal/protocol/j1939"
	"github.com/danmuck/rp1210test/internal/tools"
)

func init() {
	Register("socketcan", openSocketCAN)
}

// socketCAN talks to a Linux CAN interface. The kernel does not loop our own frames
// back on a raw socket by default, so echoes are synthesized on write.
type socketCAN struct {
	conn  net.Conn
	rx    *socketcan.Receiver
	tx    *socketcan.Transmitter
	clock clock
	feed  *feed
	once  sync.Once
}

func openSocketCAN(ctx context.Context, dev Device) (Driver, error) {
	iface := option(dev.Options, "iface", "can0")
	if bitrate, ok, err := bitrateFor(dev.Options); err != nil {
		return nil, err
	} else if ok {
		if err := setupInterface(ctx, tools.ExecRunner{}, iface, bitrate); err != nil {
			return nil, err
		}
	}
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	d := &socketCAN{
		conn:  conn,
		rx:    socketcan.NewReceiver(conn),
		tx:    socketcan.NewTransmitter(conn),
		clock: newClock(),
		feed:  newFeed(1024),
	}
	go d.receive()
	return d, nil
}

func (d *socketCAN) receive() {
	defer d.feed.close()
	for d.rx.Receive() {
		if d.rx.HasErrorFrame() {
			continue
		}
		f := d.rx.Frame()
		if !f.IsExtended || f.IsRemote {
			continue
		}
		raw := append(j1939.HeaderFromCANID(f.ID), f.Data[:f.Length]...)
		if err := d.feed.push(context.Background(), j1939.EncodeCapture(d.clock.micros(), false, raw)); err != nil {
			return
		}
	}
}

func (d *socketCAN) Read(ctx context.Context) ([]byte, error) {
	return d.feed.pop(ctx)
}

func (d *socketCAN) Write(ctx context.Context, wire []byte) error {
	id, err := j1939.CANID(wire)
	if err != nil {
		return err
	}
	payload := wire[j1939.HeaderLen:]
	if len(payload) > 8 {
		return errors.New("socketcan: payload exceeds a single CAN frame")
	}
	f := can.Frame{ID: id, Length: uint8(len(payload)), IsExtended: true}
	copy(f.Data[:], payload)
	if err := d.tx.TransmitFrame(ctx, f); err != nil {
		return err
	}
	return d.feed.push(ctx, j1939.EncodeCapture(d.clock.micros(), true, wire))
}

func (d *socketCAN) Close() error {
	var err error
	d.once.Do(func() {
		d.feed.close()
		err = d.conn.Close()
	})
	return err
}
