// Package socketcan is the concrete CAN collaborator over Linux SocketCAN:
// it implements j1939.FrameSender/j1939.FrameReceiver on top of a raw
// AF_CAN socket.
package socketcan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	j1939 "github.com/paoloteti/libj1939"
	"golang.org/x/sys/unix"
)

const (
	canRaw = 1

	// canIDMask covers the flag bits 29-31 of the socketCAN ID; clearing it leaves the 29-bit CAN ID
	canIDMask = uint32(0b111) << 29
	// canIDERRFlag is bit 29 in CAN ID and means ERR error message flag (0 = data frame, 1 = error message)
	canIDERRFlag = uint32(1 << 29)
	// canIDRTRFlag is bit 30 in CAN ID and means RTR remote transmission request (1 = rtr frame)
	canIDRTRFlag = uint32(1 << 30)
	// canIDEFFFlag is bit 31 in CAN ID and means EFF extended frame format / IDE identifier extension flag (0 = standard 11 bit, 1 = extended 29 bit)
	canIDEFFFlag = uint32(1 << 31)
)

// Connection is a raw AF_CAN socket bound to one interface. It implements
// j1939.FrameSender and j1939.FrameReceiver.
type Connection struct {
	socketFD int
}

// NewConnection opens and binds a raw CAN socket on ifName (e.g. "can0").
func NewConnection(ifName string) (*Connection, error) {
	ifi, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("bad ifName: %w", err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, canRaw)
	if err != nil {
		return nil, fmt.Errorf("could not create CAN socket: %w", err)
	}

	addr := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err = unix.Bind(fd, addr); err != nil {
		return nil, fmt.Errorf("could not bind CAN socket: %w", err)
	}

	return &Connection{socketFD: fd}, nil
}

func isContinuableSocketErr(err error) bool {
	// EWOULDBLOCK - If you set a timeout on the socket with SO_RCVTIMEO or SO_SNDTIMEO - in this case, a receive or
	// send will return with EWOULDBLOCK if the timeout elapses while no input data becomes available or the output
	// buffer remains full

	// EINTR - If a signal occurs during a blocking operation, then the operation will either (a) return partial
	// completion, or (b) return failure, do nothing, and set errno to EINTR.

	return err == syscall.EWOULDBLOCK || err == syscall.EINTR
}

// ErrReadTimeout is returned by ReadFrame when SetReadTimeout's deadline
// elapses with no frame available.
var ErrReadTimeout = errors.New("socketcan: read timeout")

// ErrWriteTimeout is returned by SendFrame when SetSendTimeout's deadline
// elapses before the frame could be written.
var ErrWriteTimeout = errors.New("socketcan: write timeout")

// SetReadTimeout bounds how long ReadFrame blocks with no data available.
func (c *Connection) SetReadTimeout(timeout time.Duration) error {
	return c.setSocketTimeout(unix.SO_RCVTIMEO, timeout)
}

// SetSendTimeout bounds how long SendFrame blocks on a full send buffer.
func (c *Connection) SetSendTimeout(timeout time.Duration) error {
	return c.setSocketTimeout(unix.SO_SNDTIMEO, timeout)
}

func (c *Connection) setSocketTimeout(opt int, timeout time.Duration) error {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	return unix.SetsockoptTimeval(c.socketFD, unix.SOL_SOCKET, opt, &tv)
}

// Close releases the underlying socket.
func (c *Connection) Close() error {
	return unix.Close(c.socketFD)
}

// SendFrame implements j1939.FrameSender.
func (c *Connection) SendFrame(frame j1939.Frame) error {
	// Can frame structure: https://github.com/linux-can/can-utils/blob/affdc1b79973c7497bb8607603c24734e11a91aa/include/linux/can.h#L107
	canFrame := make([]byte, 16)

	// bits 0-28 is CAN ID
	// bit 29 is ERR error message flag (0 = data frame, 1 = error message)
	// bit 30 is RTR remote transmission request (1 = rtr frame)
	// bit 31 is EFF extended frame format / IDE identifier extension flag (0 = standard 11 bit, 1 = extended 29 bit)
	canID := frame.ID | canIDEFFFlag
	binary.LittleEndian.PutUint32(canFrame[0:4], canID) // FIXME: for big-endian arch (mips64, ppc64) we should use big-endian

	// bits 32-39 data length
	canFrame[4] = frame.Length
	copy(canFrame[8:], frame.Data[:frame.Length])

	_, err := unix.Write(c.socketFD, canFrame)
	if isContinuableSocketErr(err) {
		return ErrWriteTimeout
	}
	return err
}

// ReadFrame implements j1939.FrameReceiver. It blocks until a data frame
// arrives or the current read timeout (if any) elapses.
func (c *Connection) ReadFrame() (j1939.Frame, error) {
	canFrame := make([]byte, 16)
	_, err := unix.Read(c.socketFD, canFrame)
	if err != nil {
		if isContinuableSocketErr(err) {
			return j1939.Frame{}, ErrReadTimeout
		}
		return j1939.Frame{}, err
	}
	canID := binary.LittleEndian.Uint32(canFrame[0:4])
	if canID&canIDRTRFlag != 0 {
		return j1939.Frame{}, errors.New("socketcan: read CAN remote transmission request frame")
	} else if canID&canIDERRFlag != 0 {
		return j1939.Frame{}, errors.New("socketcan: read CAN error message frame")
	}

	f := j1939.Frame{
		ID:     canID &^ canIDMask,
		Length: canFrame[4],
	}
	copy(f.Data[:], canFrame[8:8+f.Length])

	return f, nil
}
