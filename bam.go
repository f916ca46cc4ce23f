package j1939

import (
	"sync"
	"time"
)

// bamSession is one in-progress broadcast reassembly, keyed by the
// transmitting node's source address. Unlike NMEA2000 fast-packet framing's
// 5-bit frame-index/3-bit-sequence byte-0 scheme, J1939 TP uses a plain
// seqno plus an RTS-style total-size/total-packets announce.
type bamSession struct {
	src              uint8
	originPGN        uint32
	buffer           []byte
	totalPackets     uint8
	packetsRemaining uint8
	lastFrameMS      uint32
}

// bamReassembler tracks one live broadcast reassembly per source address.
// Stale entries — a BAM announce never followed by its full run of DT
// frames — are aged out rather than left to leak.
type bamReassembler struct {
	mu       sync.Mutex
	clock    Clock
	sessions map[uint8]*bamSession
}

func newBAMReassembler(clock Clock) *bamReassembler {
	return &bamReassembler{clock: clock, sessions: make(map[uint8]*bamSession)}
}

func (b *bamReassembler) evictStale(nowMS uint32) {
	for src, sess := range b.sessions {
		if Elapsed(nowMS, sess.lastFrameMS, T1) {
			delete(b.sessions, src)
		}
	}
}

func (e *Engine) onBAMAnnounce(h FrameHeader, data []byte, length uint8) int {
	size := readU16LE(data[1], data[2])
	totalPackets := data[3]
	pgn := pgnFromRTSBytes(data[5], data[6], data[7])

	now := e.clock.NowMS()
	e.bam.mu.Lock()
	e.bam.evictStale(now)
	e.bam.sessions[h.Source] = &bamSession{
		src:              h.Source,
		originPGN:        pgn,
		buffer:           make([]byte, size),
		totalPackets:     totalPackets,
		packetsRemaining: totalPackets,
		lastFrameMS:      now,
	}
	e.bam.mu.Unlock()
	return 0
}

// onDT is shared between broadcast (BAM) and peer-to-peer TP_DT frames;
// Engine.onDT routes here once it sees Destination == AddressGlobal.
func (b *bamReassembler) onDT(e *Engine, h FrameHeader, data []byte) int {
	seqno := data[0]
	payload := data[1:]

	b.mu.Lock()
	sess := b.sessions[h.Source]
	if sess == nil {
		b.mu.Unlock()
		return 0
	}

	offset := int(seqno-1) * dataFrameMaxLen
	n := len(payload)
	if offset+n > len(sess.buffer) {
		n = len(sess.buffer) - offset
	}
	if n > 0 {
		copy(sess.buffer[offset:offset+n], payload[:n])
	}
	if sess.packetsRemaining > 0 {
		sess.packetsRemaining--
	}
	sess.lastFrameMS = e.clock.NowMS()
	done := sess.packetsRemaining == 0
	originPGN := sess.originPGN
	if done {
		delete(b.sessions, h.Source)
	}
	b.mu.Unlock()

	if e.rx != nil && n > 0 {
		e.rx(FrameHeader{PGN: originPGN, Priority: h.Priority, Source: h.Source, Destination: AddressGlobal}, payload[:n])
	}
	return 0
}

func (e *Engine) buildBAMAnnounce(pgn uint32, size uint16, numPackets uint8) []byte {
	specific, format, dp := pgnToRTSBytes(pgn)
	data := make([]byte, canDLCMax)
	data[0] = tpCMBroadcastAnnounce
	writeU16LE(data[1:3], size)
	data[3] = numPackets
	data[4] = 0xFF
	data[5], data[6], data[7] = specific, format, dp
	return data
}

// SendBAM broadcasts data to every node on the bus under the well-known
// broadcast announce PGN. For a broadcast of an application PGN of the
// caller's choosing, use Send with Destination AddressGlobal instead.
func (e *Engine) SendBAM(priority, src uint8, data []byte) error {
	if len(data) > MaxDataLen {
		return ErrWrongLen
	}
	return e.sendBAM(PGNBAM, priority, src, data)
}

// sendBAM implements the broadcast send path: one announce frame followed
// by a DT burst paced at Tb, with no CTS or EOM_ACK exchange and no session
// table entry on the sending side.
func (e *Engine) sendBAM(pgn uint32, priority, src uint8, data []byte) error {
	totalPackets := numPacketsFor(len(data))

	// The announce frame travels on TP_CM itself (same as RTS/CTS/EOM_ACK);
	// BAM's own PGN is carried only inside the payload, in the bytes that
	// name the broadcast message's real PGN.
	announce := e.buildBAMAnnounce(pgn, uint16(len(data)), totalPackets)
	if err := e.sendFrame(PGNTPConnectionManagement, priority, src, AddressGlobal, announce); err != nil {
		return err
	}

	ticker := time.NewTicker(Tb * time.Millisecond)
	defer ticker.Stop()

	offset := 0
	for i := 1; i <= int(totalPackets); i++ {
		seqno := uint8(i)
		end := offset + dataFrameMaxLen
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		offset = end

		if err := e.sendFrame(PGNTPDataTransfer, priority, src, AddressGlobal, e.buildDT(seqno, chunk)); err != nil {
			return err
		}
		if seqno < totalPackets {
			<-ticker.C
		}
	}
	return nil
}
