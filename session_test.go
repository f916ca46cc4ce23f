package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTable_OpenFindClose(t *testing.T) {
	table := NewSessionTable(2)

	sess := table.Open(0x10, 0x20)
	require.NotNil(t, sess)
	assert.Equal(t, uint8(0x10), sess.Src)
	assert.Equal(t, uint8(0x20), sess.Dst)
	assert.Equal(t, StateIdle, sess.State)

	found := table.Find(0x10, 0x20)
	assert.Same(t, sess, found)

	table.Close(0x10, 0x20)
	assert.Nil(t, table.Find(0x10, 0x20))
}

// TestSessionTable_OneSessionPerPeerPair guards the session invariant:
// at most one live session exists per (src,dst) at any moment.
func TestSessionTable_OneSessionPerPeerPair(t *testing.T) {
	table := NewSessionTable(4)

	first := table.Open(0x10, 0x20)
	require.NotNil(t, first)

	second := table.Open(0x10, 0x20)
	assert.Nil(t, second, "opening a duplicate (src,dst) key must fail")

	// A session with the reversed peer pair is a distinct key.
	reverse := table.Open(0x20, 0x10)
	assert.NotNil(t, reverse)
}

func TestSessionTable_OpenFailsWhenFull(t *testing.T) {
	table := NewSessionTable(1)

	first := table.Open(0x10, 0x20)
	require.NotNil(t, first)

	second := table.Open(0x30, 0x40)
	assert.Nil(t, second, "no free slot should be available")
}

func TestSessionTable_CloseFreesSlotForReuse(t *testing.T) {
	table := NewSessionTable(1)

	sess := table.Open(0x10, 0x20)
	require.NotNil(t, sess)
	table.Close(0x10, 0x20)

	reused := table.Open(0x30, 0x40)
	assert.NotNil(t, reused, "closing a session must free its slot")
}

func TestSessionTable_CloseUnknownIsNoop(t *testing.T) {
	table := NewSessionTable(1)
	assert.NotPanics(t, func() {
		table.Close(0xAA, 0xBB)
	})
}

func TestSessionTable_InitFreesAllSlots(t *testing.T) {
	table := NewSessionTable(2)
	require.NotNil(t, table.Open(0x10, 0x20))
	require.NotNil(t, table.Open(0x30, 0x40))

	table.Init()

	assert.Nil(t, table.Find(0x10, 0x20))
	assert.Nil(t, table.Find(0x30, 0x40))
	require.NotNil(t, table.Open(0x10, 0x20))
	require.NotNil(t, table.Open(0x30, 0x40))
}

func TestSessionTable_SweepExpiredClosesOnlyStaleRecvSessions(t *testing.T) {
	table := NewSessionTable(4)

	stale := table.Open(0x10, 0x20)
	require.NotNil(t, stale)
	stale.State = StateRecvDT
	stale.TimeoutAnchor = 0
	stale.TimeoutLimit = T2

	fresh := table.Open(0x11, 0x20)
	require.NotNil(t, fresh)
	fresh.State = StateRecvDT
	fresh.TimeoutAnchor = 1000
	fresh.TimeoutLimit = T2

	// a sender-side session is the waiter's to time out, never the sweep's
	waiting := table.Open(0x20, 0x30)
	require.NotNil(t, waiting)
	waiting.State = StateAwaitCTS
	waiting.TimeoutAnchor = 0
	waiting.TimeoutLimit = T2

	closed := table.SweepExpired(T2 + 1)
	require.Len(t, closed, 1)
	assert.Equal(t, [2]uint8{0x10, 0x20}, closed[0])

	assert.Nil(t, table.Find(0x10, 0x20))
	assert.NotNil(t, table.Find(0x11, 0x20))
	assert.NotNil(t, table.Find(0x20, 0x30))

	// the reclaimed slot is immediately reusable
	assert.NotNil(t, table.Open(0x40, 0x50))
}

func TestSession_SignalsAreOneShotAndNonBlocking(t *testing.T) {
	table := NewSessionTable(1)
	sess := table.Open(0x10, 0x20)
	require.NotNil(t, sess)

	// Signalling twice before a consumer drains must not block.
	assert.NotPanics(t, func() {
		sess.signalCTS()
		sess.signalCTS()
	})

	select {
	case <-sess.ctsReady:
	default:
		t.Fatal("expected a pending CTS signal")
	}
	select {
	case <-sess.ctsReady:
		t.Fatal("signal should have been one-shot")
	default:
	}
}

func TestSessionTable_ReuseDoesNotLeakPriorTransferState(t *testing.T) {
	table := NewSessionTable(1)
	sess := table.Open(0x10, 0x20)
	sess.TotalSize = 100
	sess.TotalPackets = 15
	sess.sawFirstCTS = true
	sess.signalCTS()
	table.Close(0x10, 0x20)

	reused := table.Open(0x30, 0x40)
	require.NotNil(t, reused)
	assert.Equal(t, uint16(0), reused.TotalSize)
	assert.Equal(t, uint8(0), reused.TotalPackets)
	assert.False(t, reused.sawFirstCTS)
	select {
	case <-reused.ctsReady:
		t.Fatal("a reused session must not carry over a stale signal")
	default:
	}
}
