package j1939

import "sync"

// SessionState enumerates the states a transport protocol session moves
// through.
type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitCTS
	StateSendingDT
	StateAwaitEOM
	StateRecvDT
	StateDone
	StateAborted
)

// Session is the per-(src,dst) transport protocol context. Every field a
// send or receive transfer needs lives here — never in package-level state
// — so that multiple sessions between distinct peer pairs can run
// concurrently.
type Session struct {
	id  int
	Src uint8
	Dst uint8

	State SessionState

	OriginPGN    uint32 // the PGN this transfer carries (from RTS, receive side)
	TotalSize    uint16
	TotalPackets uint8

	CTSNumPackets uint8
	CTSNextPacket uint8

	EOMAckSize       uint16
	EOMAckNumPackets uint8

	// Armed DT gap timer on the receive side: anchor is refreshed on RTS
	// and every DT frame, limit is T2 while waiting for the first DT and
	// T1 between subsequent ones.
	TimeoutAnchor uint32
	TimeoutLimit  uint32

	// sawFirstCTS distinguishes "remote never engaged" (EBUSY) from
	// "remote went silent mid-transfer" (ETIMEOUT + ABORT).
	sawFirstCTS bool

	// Reassembly state, receive side.
	ReassemblyBuffer  []byte
	SeqnoNextExpected uint8
	PacketsRemaining  uint8

	ctsReady chan struct{}
	eomReady chan struct{}
}

func newSession(id int, src, dst uint8) *Session {
	return &Session{
		id:       id,
		Src:      src,
		Dst:      dst,
		State:    StateIdle,
		ctsReady: make(chan struct{}, 1),
		eomReady: make(chan struct{}, 1),
	}
}

func (s *Session) reset(src, dst uint8) {
	id := s.id
	*s = Session{
		id:       id,
		Src:      src,
		Dst:      dst,
		State:    StateIdle,
		ctsReady: s.ctsReady,
		eomReady: s.eomReady,
	}
	// drain any stale signal from a previous transfer
	select {
	case <-s.ctsReady:
	default:
	}
	select {
	case <-s.eomReady:
	default:
	}
}

// signalCTS wakes a waiter blocked in awaitCTS. Non-blocking: if the waiter
// hasn't consumed a previous signal yet, this is a no-op — a one-shot flag,
// not a queue.
func (s *Session) signalCTS() {
	select {
	case s.ctsReady <- struct{}{}:
	default:
	}
}

func (s *Session) signalEOM() {
	select {
	case s.eomReady <- struct{}{}:
	default:
	}
}

// sessionKey packs (src,dst) into the session table's index key.
func sessionKey(src, dst uint8) uint32 {
	return (uint32(src) << 8) | uint32(dst)
}

// SessionTable is the sole source of truth for live TP transfers: a fixed
// pool of Session slots plus a Table index keyed by (src,dst). No transfer
// state may live outside it.
type SessionTable struct {
	mu    sync.Mutex
	slots []*Session
	free  []int // indices of slots with id == -1 (free), LIFO
	index *Table[*Session]
}

// freeID marks a Session as not in use.
const freeID = -1

// NewSessionTable returns a SessionTable that can hold up to capacity
// concurrent transfers.
func NewSessionTable(capacity int) *SessionTable {
	t := &SessionTable{
		slots: make([]*Session, capacity),
		index: NewTable[*Session](capacity),
	}
	t.Init()
	return t
}

// Init frees all slots.
func (t *SessionTable) Init() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.index.Init()
	t.free = t.free[:0]
	for i := range t.slots {
		if t.slots[i] == nil {
			t.slots[i] = newSession(freeID, 0, 0)
		} else {
			t.slots[i].id = freeID
		}
		t.free = append(t.free, i)
	}
}

// Open returns a fresh Session for (src,dst), or nil if a session already
// exists for that key or no free slot remains.
func (t *SessionTable) Open(src, dst uint8) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey(src, dst)
	if _, ok := t.index.Search(key); ok {
		return nil
	}
	if len(t.free) == 0 {
		return nil
	}
	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	sess := t.slots[idx]
	sess.reset(src, dst)
	sess.id = idx
	if err := t.index.Insert(key, sess); err != nil {
		// Cannot happen: we just proved the key absent under the same lock.
		t.free = append(t.free, idx)
		sess.id = freeID
		return nil
	}
	return sess
}

// Find looks up the live session for (src,dst), if any.
func (t *SessionTable) Find(src, dst uint8) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.index.Search(sessionKey(src, dst))
	if !ok {
		return nil
	}
	return sess
}

// SweepExpired closes every receive-side session whose remote has gone
// silent past its armed DT gap timer, returning the (src,dst) peer pairs
// closed so the engine can notify the remotes. Sessions with a local
// waiter (AWAIT_CTS/AWAIT_EOM) are untouched: the waiter owns those
// timeouts and closes its own session.
func (t *SessionTable) SweepExpired(nowMS uint32) [][2]uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var closed [][2]uint8
	for _, sess := range t.slots {
		if sess.id == freeID || sess.State != StateRecvDT {
			continue
		}
		if !Elapsed(nowMS, sess.TimeoutAnchor, sess.TimeoutLimit) {
			continue
		}
		closed = append(closed, [2]uint8{sess.Src, sess.Dst})
		_ = t.index.Delete(sessionKey(sess.Src, sess.Dst))
		t.free = append(t.free, sess.id)
		sess.id = freeID
	}
	return closed
}

// Close destroys the session for (src,dst), freeing its slot. Closing a
// session that does not exist is a no-op.
func (t *SessionTable) Close(src, dst uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey(src, dst)
	sess, ok := t.index.Search(key)
	if !ok {
		return
	}
	_ = t.index.Delete(key)
	idx := sess.id
	sess.id = freeID
	t.free = append(t.free, idx)
}
