package socketcan

import (
	"context"
	"errors"
	"time"

	j1939 "github.com/paoloteti/libj1939"
)

// rawConn is the subset of *Connection a Device drives; extracted as an
// interface so tests can inject a fake socket instead of a real AF_CAN one.
type rawConn interface {
	SetReadTimeout(time.Duration) error
	SendFrame(j1939.Frame) error
	ReadFrame() (j1939.Frame, error)
	Close() error
}

// Device wraps a Connection with a reconnect-friendly read loop: bounded
// per-iteration read timeouts so a context cancellation is noticed
// promptly, and a longer no-traffic timeout that surfaces as an error
// instead of blocking forever. It implements j1939.FrameSender and
// j1939.FrameReceiver so it can be handed directly to j1939.NewEngine.
type Device struct {
	conn rawConn

	// ifName is the SocketCAN interface name, e.g. "can0".
	ifName string

	// receiveDataTimeout bounds how long ReadFrameContext may go with no
	// frames at all before giving up; it is not the per-syscall timeout.
	receiveDataTimeout time.Duration

	timeNow func() time.Time
}

// NewDevice returns a Device bound to ifName, not yet connected.
func NewDevice(ifName string) *Device {
	return &Device{
		ifName:             ifName,
		timeNow:            time.Now,
		receiveDataTimeout: 5 * time.Second,
	}
}

// Initialize opens the underlying socket. Must be called before
// SendFrame/ReadFrame/ReadFrameContext.
func (d *Device) Initialize() error {
	conn, err := NewConnection(d.ifName)
	if err != nil {
		return err
	}
	d.conn = conn
	return nil
}

// Close releases the underlying socket.
func (d *Device) Close() error {
	return d.conn.Close()
}

// SendFrame implements j1939.FrameSender.
func (d *Device) SendFrame(frame j1939.Frame) error {
	return d.conn.SendFrame(frame)
}

// ReadFrame implements j1939.FrameReceiver with the device's configured
// no-traffic timeout and no cancellation; use ReadFrameContext to observe
// ctx.Done() between read attempts.
func (d *Device) ReadFrame() (j1939.Frame, error) {
	return d.ReadFrameContext(context.Background())
}

// ReadFrameContext reads one frame, retrying past short per-syscall read
// timeouts so ctx.Done() is checked every 50ms, and giving up with
// ErrReadTimeout once receiveDataTimeout has elapsed with no frame at all.
func (d *Device) ReadFrameContext(ctx context.Context) (j1939.Frame, error) {
	start := d.timeNow()
	for {
		select {
		case <-ctx.Done():
			return j1939.Frame{}, ctx.Err()
		default:
		}

		if err := d.conn.SetReadTimeout(50 * time.Millisecond); err != nil {
			return j1939.Frame{}, err
		}
		frame, err := d.conn.ReadFrame()
		now := d.timeNow()
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				if now.Sub(start) > d.receiveDataTimeout {
					return j1939.Frame{}, err
				}
				continue
			}
			return j1939.Frame{}, err
		}
		return frame, nil
	}
}
