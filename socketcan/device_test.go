package socketcan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	j1939 "github.com/paoloteti/libj1939"
	test_test "github.com/paoloteti/libj1939/test"
)

// fakeConn is a scripted stand-in for a real AF_CAN socket, so Device's
// retry/timeout control flow can be tested without a CAN interface.
type fakeConn struct {
	frames []j1939.Frame
	i      int
	closed bool
	sent   []j1939.Frame
}

func (f *fakeConn) SetReadTimeout(time.Duration) error { return nil }

func (f *fakeConn) SendFrame(frame j1939.Frame) error {
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeConn) ReadFrame() (j1939.Frame, error) {
	if f.i >= len(f.frames) {
		return j1939.Frame{}, ErrReadTimeout
	}
	fr := f.frames[f.i]
	f.i++
	return fr, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func newTestDevice(conn rawConn, now time.Time) *Device {
	return &Device{
		conn:               conn,
		receiveDataTimeout: 200 * time.Millisecond,
		timeNow:            func() time.Time { return now },
	}
}

func TestDevice_ReadFrameContext_ReturnsFirstAvailableFrame(t *testing.T) {
	want := j1939.Frame{ID: 0x18FEF680, Length: 3, Data: [8]byte{1, 2, 3}}
	conn := &fakeConn{frames: []j1939.Frame{want}}
	d := newTestDevice(conn, test_test.UTCTime(1665488842))

	got, err := d.ReadFrameContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDevice_ReadFrameContext_GivesUpAfterNoTrafficTimeout(t *testing.T) {
	conn := &fakeConn{} // every ReadFrame call returns ErrReadTimeout
	fixed := test_test.UTCTime(1665488842)

	callCount := 0
	d := &Device{
		conn:               conn,
		receiveDataTimeout: 1 * time.Millisecond,
		timeNow: func() time.Time {
			callCount++
			if callCount == 1 {
				return fixed
			}
			return fixed.Add(10 * time.Millisecond) // comfortably past the 1ms budget
		},
	}

	_, err := d.ReadFrameContext(context.Background())
	assert.ErrorIs(t, err, ErrReadTimeout)
}

func TestDevice_ReadFrameContext_HonoursCancellation(t *testing.T) {
	conn := &fakeConn{}
	d := newTestDevice(conn, test_test.UTCTime(1665488842))
	d.receiveDataTimeout = time.Hour // would otherwise spin forever

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.ReadFrameContext(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDevice_SendFrame_DelegatesToConn(t *testing.T) {
	conn := &fakeConn{}
	d := newTestDevice(conn, test_test.UTCTime(1665488842))

	frame := j1939.Frame{ID: 0x18EEFF17, Length: 8}
	require.NoError(t, d.SendFrame(frame))
	require.Len(t, conn.sent, 1)
	assert.Equal(t, frame, conn.sent[0])
}

func TestDevice_Close_DelegatesToConn(t *testing.T) {
	conn := &fakeConn{}
	d := newTestDevice(conn, test_test.UTCTime(1665488842))

	require.NoError(t, d.Close())
	assert.True(t, conn.closed)
}
