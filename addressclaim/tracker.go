// Package addressclaim is an optional supplement to the core transport
// protocol engine: it tracks which NAME currently owns each source
// address on the bus and resolves conflicting claims by the J1939 rule
// that the lower NAME wins (arbitration beyond emission is intentionally
// kept out of the core engine).
//
// This mirrors the "currentNode.NAME < slot.node.NAME" comparison used to
// resolve competing claims in NMEA2000 address mapping, trimmed down to
// just that rule — this package does not track product info,
// configuration info, or PGN lists.
package addressclaim

import (
	"sync"

	j1939 "github.com/paoloteti/libj1939"
)

// Owner is the NAME currently believed to hold a given source address,
// together with the address itself for convenience.
type Owner struct {
	Source uint8
	Name   j1939.Name
}

// Tracker watches AC (address claimed) frames and keeps the current
// owner of every address seen on the bus. Safe for concurrent use: a
// host typically registers Handle with the dispatcher on one thread and
// queries Owner from others.
type Tracker struct {
	mu       sync.Mutex
	bySource [256]*uint64 // source -> NAME, nil if unclaimed
	names    map[uint64]uint8
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{names: make(map[uint64]uint8)}
}

// Observe records a claim of src by name, applying the lower-NAME-wins
// rule, and reports whether name now owns src (true for a fresh claim or
// a win over a higher NAME; false if a lower NAME already holds src).
func (t *Tracker) Observe(src uint8, name j1939.Name) bool {
	if src >= j1939.AddressNotClaimed {
		// 0xFE/0xFF never represent a claimed address.
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	claim := name.Uint64()
	current := t.bySource[src]
	if current == nil {
		t.bySource[src] = &claim
		t.names[claim] = src
		return true
	}
	if claim < *current {
		delete(t.names, *current)
		t.bySource[src] = &claim
		t.names[claim] = src
		return true
	}
	return claim == *current
}

// Owner returns the NAME currently believed to hold src, if any.
func (t *Tracker) Owner(src uint8) (j1939.Name, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.bySource[src]
	if current == nil {
		return j1939.Name{}, false
	}
	return j1939.DecodeName(nameToBytes(*current)), true
}

// SourceOf returns the address currently claimed by name, if any.
func (t *Tracker) SourceOf(name j1939.Name) (uint8, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	src, ok := t.names[name.Uint64()]
	return src, ok
}

func nameToBytes(v uint64) [8]byte {
	var b [8]byte
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// Handle is a j1939.HandlerFunc suitable for registration against
// (j1939.PGNAddressClaimed, 0) on a Dispatcher, so a host can observe
// claims without writing its own decode loop.
func (t *Tracker) Handle(h j1939.FrameHeader, data []byte, length uint8) int {
	if len(data) < 8 {
		return int(length)
	}
	var b [8]byte
	copy(b[:], data[:8])
	t.Observe(h.Source, j1939.DecodeName(b))
	return 0
}
