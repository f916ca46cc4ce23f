package j1939

import "sync"

// HandlerFunc processes one dispatched CAN frame already decoded into its
// J1939 fields. It returns 0 (or any non-negative value) on success, or a
// negative error code that poll propagates to its caller.
type HandlerFunc func(h FrameHeader, data []byte, length uint8) int

// dispatchKey packs (pgn,subcode) into the dispatch table's key: subcode is
// only meaningful for TP_CM and is carried in the high byte.
func dispatchKey(pgn uint32, subcode byte) uint32 {
	return (pgn & pgnMask) | (uint32(subcode) << 24)
}

// Dispatcher maps (pgn,subcode) to a HandlerFunc and drives the receive
// side of the engine by polling a FrameReceiver collaborator.
type Dispatcher struct {
	mu    sync.RWMutex
	table *Table[HandlerFunc]
	rx    FrameReceiver
}

// NewDispatcher returns a Dispatcher with room for capacity registered
// handlers, reading frames from rx.
func NewDispatcher(rx FrameReceiver, capacity int) *Dispatcher {
	return &Dispatcher{
		table: NewTable[HandlerFunc](capacity),
		rx:    rx,
	}
}

// Register installs handler for (pgn,subcode). subcode is only observable
// for pgn == PGNTPConnectionManagement; callers for any other PGN should
// pass 0.
func (d *Dispatcher) Register(pgn uint32, subcode byte, handler HandlerFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table.Insert(dispatchKey(pgn, subcode), handler)
}

// Deregister removes the handler for (pgn,subcode), if any.
func (d *Dispatcher) Deregister(pgn uint32, subcode byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table.Delete(dispatchKey(pgn, subcode))
}

// ClearAll removes every registered handler.
func (d *Dispatcher) ClearAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.table.Clear()
}

// PollOnce reads one frame from the CAN collaborator, decodes it, looks up
// the matching handler by (pgn,subcode), and invokes it. When no handler
// matches, the raw frame length is returned and the frame is dropped. The
// handler's return value is propagated unchanged.
func (d *Dispatcher) PollOnce() int {
	frame, err := d.rx.ReadFrame()
	if err != nil {
		return -ErrIO.Code()
	}

	h := DecodeID(frame.ID)
	data := frame.Data[:frame.Length]

	var subcode byte
	if h.PGN == PGNTPConnectionManagement && len(data) > 0 {
		subcode = data[0]
	}

	d.mu.RLock()
	handler, ok := d.table.Search(dispatchKey(h.PGN, subcode))
	d.mu.RUnlock()
	if !ok {
		return int(frame.Length)
	}
	return handler(h, data, frame.Length)
}
