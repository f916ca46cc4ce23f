package j1939

import (
	"sync"
	"time"
)

// ReceiveFunc delivers one payload chunk of a (possibly multi-packet)
// message to the application, tagged with the PGN the transfer actually
// carries — not TP_CM/TP_DT's own PGN.
type ReceiveFunc func(h FrameHeader, data []byte)

// ErrorFunc reports a remote ABORT to the application.
type ErrorFunc func(h FrameHeader, reason AbortReason)

// EngineConfig sizes an Engine's session and dispatch tables.
type EngineConfig struct {
	MaxSessions        int
	MaxDispatchEntries int
}

// DefaultEngineConfig mirrors a small embedded deployment: a handful of
// concurrent transfers and the fixed set of handlers Setup installs.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{MaxSessions: 8, MaxDispatchEntries: 16}
}

// Engine is the J1939 transport protocol engine: frame encoding, the
// RTS/CTS/EOM/ABORT initiator and responder state machines, BAM, and
// address claim emission. All per-transfer state lives in a *Session
// rather than package-level statics, so multiple transfers to distinct
// peers can run concurrently.
type Engine struct {
	clock Clock
	tx    FrameSender

	sessions   *SessionTable
	dispatcher *Dispatcher
	bam        *bamReassembler

	sendMu sync.Mutex

	rx  ReceiveFunc
	err ErrorFunc
}

// NewEngine wires an Engine against a CAN collaborator and clock. rxrx is
// the FrameReceiver the Dispatcher reads from; tx is used for all outbound
// sends.
func NewEngine(rxrx FrameReceiver, tx FrameSender, clock Clock, cfg EngineConfig) *Engine {
	e := &Engine{
		clock:      clock,
		tx:         tx,
		sessions:   NewSessionTable(cfg.MaxSessions),
		dispatcher: NewDispatcher(rxrx, cfg.MaxDispatchEntries),
		bam:        newBAMReassembler(clock),
	}
	return e
}

// Setup installs the engine's handlers for TP_CM{RTS,CTS,EOM_ACK,ABORT,BAM}
// and TP_DT, and records the user callbacks.
func (e *Engine) Setup(rx ReceiveFunc, errFn ErrorFunc) error {
	e.rx = rx
	e.err = errFn

	regs := []struct {
		pgn     uint32
		subcode byte
		handler HandlerFunc
	}{
		{PGNTPConnectionManagement, tpCMRequestToSend, e.onRTS},
		{PGNTPConnectionManagement, tpCMClearToSend, e.onCTS},
		{PGNTPConnectionManagement, tpCMEndOfMessageAck, e.onEOMAck},
		{PGNTPConnectionManagement, tpCMConnectionAbort, e.onAbort},
		{PGNTPConnectionManagement, tpCMBroadcastAnnounce, e.onBAMAnnounce},
		{PGNTPDataTransfer, 0, e.onDT},
	}
	for _, r := range regs {
		if err := e.dispatcher.Register(r.pgn, r.subcode, r.handler); err != nil {
			return err
		}
	}
	e.sessions.Init()
	return nil
}

// Dispose removes every registered handler (Setup's and any a host added
// through Dispatcher) and frees all sessions.
func (e *Engine) Dispose() {
	e.dispatcher.ClearAll()
	e.sessions.Init()
}

// PollOnce drives one step of the receive side: it first aborts any
// receive session whose remote went silent past its armed DT gap timer
// (T2 after RTS, T1 between DT frames), then dispatches one frame.
func (e *Engine) PollOnce() int {
	for _, peer := range e.sessions.SweepExpired(e.clock.NowMS()) {
		_ = e.sendAbort(peer[1], peer[0], ReasonTimeout)
	}
	return e.dispatcher.PollOnce()
}

// Dispatcher returns the engine's PGN dispatch table, so a host can
// register additional handlers (e.g. address-claim tracking) alongside
// the engine's own TP_CM/TP_DT registrations.
func (e *Engine) Dispatcher() *Dispatcher {
	return e.dispatcher
}

func (e *Engine) sendFrame(pgn uint32, priority, src, dst uint8, data []byte) error {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	var frame Frame
	frame.ID = EncodeID(FrameHeader{PGN: pgn, Priority: priority, Source: src, Destination: dst})
	frame.Length = uint8(len(data))
	copy(frame.Data[:], data)
	return wrapIO(e.tx.SendFrame(frame))
}

func writeU16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func readU16LE(lo, hi byte) uint16 {
	return uint16(lo) | uint16(hi)<<8
}

func pgnToRTSBytes(pgn uint32) (specific, format, dataPage byte) {
	return byte(pgn), byte(pgn >> 8), byte((pgn >> 16) & 0x1)
}

func pgnFromRTSBytes(specific, format, dataPage byte) uint32 {
	return (uint32(dataPage&0x1) << 16) | (uint32(format) << 8) | uint32(specific)
}

func (e *Engine) buildRTS(pgn uint32, size uint16, numPackets uint8) []byte {
	specific, format, dp := pgnToRTSBytes(pgn)
	data := make([]byte, canDLCMax)
	data[0] = tpCMRequestToSend
	writeU16LE(data[1:3], size)
	data[3] = numPackets
	data[4] = 0xFF
	data[5], data[6], data[7] = specific, format, dp
	return data
}

func (e *Engine) buildCTS(numPackets, nextPacket uint8) []byte {
	return []byte{tpCMClearToSend, numPackets, nextPacket, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
}

func (e *Engine) buildEOMAck(size uint16, numPackets uint8) []byte {
	data := make([]byte, canDLCMax)
	data[0] = tpCMEndOfMessageAck
	writeU16LE(data[1:3], size)
	data[3] = numPackets
	data[4] = 0xFF
	data[5], data[6], data[7] = 0xFF, 0xFF, 0xFF
	return data
}

func (e *Engine) buildAbort(reason uint8) []byte {
	return []byte{tpCMConnectionAbort, reason, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
}

func (e *Engine) buildDT(seqno uint8, chunk []byte) []byte {
	data := make([]byte, canDLCMax)
	data[0] = seqno
	copy(data[1:], chunk)
	for i := 1 + len(chunk); i < canDLCMax; i++ {
		data[i] = 0xFF
	}
	return data
}

func (e *Engine) sendAbort(src, dst uint8, reason uint8) error {
	return e.sendFrame(PGNTPConnectionManagement, PriorityLow, src, dst, e.buildAbort(reason))
}

func min8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

// Send implements the transport protocol initiator state machine
// (RTS/CTS/EOM per J1939-21). Messages of 8 bytes or fewer bypass the
// session machinery entirely and go out as a single frame.
func (e *Engine) Send(pgn uint32, priority, src, dst uint8, data []byte) error {
	if len(data) > MaxDataLen {
		return ErrWrongLen
	}
	if len(data) <= canDLCMax {
		return e.sendFrame(pgn, priority, src, dst, data)
	}
	if dst == AddressGlobal {
		return e.sendBAM(pgn, priority, src, data)
	}

	totalPackets := numPacketsFor(len(data))
	sess := e.sessions.Open(src, dst)
	if sess == nil {
		return ErrNoResource
	}
	sess.TotalSize = uint16(len(data))
	sess.TotalPackets = totalPackets
	sess.OriginPGN = pgn
	sess.State = StateAwaitCTS

	if err := e.sendFrame(PGNTPConnectionManagement, priority, src, dst, e.buildRTS(pgn, uint16(len(data)), totalPackets)); err != nil {
		e.sessions.Close(src, dst)
		return err
	}

	offset := 0
	seqno := uint8(0)
	packetsRemaining := totalPackets

	for packetsRemaining > 0 {
		select {
		case <-sess.ctsReady:
		case <-time.After(T3 * time.Millisecond):
			busy := !sess.sawFirstCTS
			e.sessions.Close(src, dst)
			if busy {
				return ErrBusy
			}
			_ = e.sendAbort(src, dst, ReasonTimeout)
			return ErrTimeout
		}
		sess.sawFirstCTS = true

		window := min8(sess.CTSNumPackets, packetsRemaining)
		if window == 0 {
			e.sessions.Close(src, dst)
			return ErrIncomplete
		}

		sess.State = StateSendingDT
		ticker := time.NewTicker(SendPeriod * time.Millisecond)
		for i := uint8(0); i < window; i++ {
			seqno++
			end := offset + dataFrameMaxLen
			if end > len(data) {
				end = len(data)
			}
			chunk := data[offset:end]
			offset = end

			if err := e.sendFrame(PGNTPDataTransfer, PriorityLow, src, dst, e.buildDT(seqno, chunk)); err != nil {
				ticker.Stop()
				e.sessions.Close(src, dst)
				return err
			}
			if i < window-1 {
				<-ticker.C
			}
		}
		ticker.Stop()

		packetsRemaining -= window
		if packetsRemaining > 0 {
			sess.State = StateAwaitCTS
		} else {
			sess.State = StateAwaitEOM
		}
	}

	select {
	case <-sess.eomReady:
	case <-time.After(T3 * time.Millisecond):
		e.sessions.Close(src, dst)
		return ErrTimeout
	}

	ok := sess.EOMAckSize == uint16(len(data)) && sess.EOMAckNumPackets == totalPackets
	e.sessions.Close(src, dst)
	if !ok {
		return ErrIncomplete
	}
	return nil
}

func numPacketsFor(size int) uint8 {
	n := size / dataFrameMaxLen
	if size%dataFrameMaxLen != 0 {
		n++
	}
	return uint8(n)
}

// --- responder / dispatch-thread handlers ---

func (e *Engine) onRTS(h FrameHeader, data []byte, length uint8) int {
	sess := e.sessions.Open(h.Source, h.Destination)
	if sess == nil {
		_ = e.sendAbort(h.Destination, h.Source, ReasonNoResource)
		return -ErrNoResource.Code()
	}

	sess.TotalSize = readU16LE(data[1], data[2])
	sess.TotalPackets = data[3]
	sess.OriginPGN = pgnFromRTSBytes(data[5], data[6], data[7])
	sess.State = StateRecvDT
	sess.PacketsRemaining = sess.TotalPackets
	sess.SeqnoNextExpected = 1
	sess.ReassemblyBuffer = make([]byte, sess.TotalSize)
	sess.TimeoutAnchor = e.clock.NowMS()
	sess.TimeoutLimit = T2

	if err := e.sendFrame(PGNTPConnectionManagement, PriorityLow, h.Destination, h.Source, e.buildCTS(sess.TotalPackets, 1)); err != nil {
		e.sessions.Close(h.Source, h.Destination)
		return -ErrIO.Code()
	}
	return 0
}

func (e *Engine) onCTS(h FrameHeader, data []byte, length uint8) int {
	sess := e.sessions.Find(h.Destination, h.Source)
	if sess == nil {
		return 0
	}
	sess.CTSNumPackets = data[1]
	sess.CTSNextPacket = data[2]
	sess.signalCTS()
	return 0
}

func (e *Engine) onEOMAck(h FrameHeader, data []byte, length uint8) int {
	sess := e.sessions.Find(h.Destination, h.Source)
	if sess == nil {
		return 0
	}
	sess.EOMAckSize = readU16LE(data[1], data[2])
	sess.EOMAckNumPackets = data[3]
	sess.signalEOM()
	return 0
}

func (e *Engine) onAbort(h FrameHeader, data []byte, length uint8) int {
	reason := AbortReason(data[1])

	if sess := e.sessions.Find(h.Destination, h.Source); sess != nil {
		e.sessions.Close(sess.Src, sess.Dst)
	} else if sess := e.sessions.Find(h.Source, h.Destination); sess != nil {
		e.sessions.Close(sess.Src, sess.Dst)
	}

	if e.err != nil {
		e.err(h, reason)
	}
	return 0
}

func (e *Engine) onDT(h FrameHeader, data []byte, length uint8) int {
	if h.Destination == AddressGlobal {
		return e.bam.onDT(e, h, data)
	}

	sess := e.sessions.Find(h.Source, h.Destination)
	if sess == nil || sess.State != StateRecvDT {
		return 0
	}

	seqno := data[0]
	if seqno != sess.SeqnoNextExpected {
		// seqnos are 1-origin and strictly increasing within a session
		return 0
	}
	sess.SeqnoNextExpected = seqno + 1

	payload := data[1:]
	offset := int(seqno-1) * dataFrameMaxLen
	n := len(payload)
	if offset+n > len(sess.ReassemblyBuffer) {
		n = len(sess.ReassemblyBuffer) - offset
	}
	if n > 0 {
		copy(sess.ReassemblyBuffer[offset:offset+n], payload[:n])
	}
	if sess.PacketsRemaining > 0 {
		sess.PacketsRemaining--
	}
	sess.TimeoutAnchor = e.clock.NowMS()
	sess.TimeoutLimit = T1

	if e.rx != nil && n > 0 {
		e.rx(FrameHeader{PGN: sess.OriginPGN, Priority: h.Priority, Source: h.Source, Destination: h.Destination}, payload[:n])
	}

	if sess.PacketsRemaining == 0 {
		_ = e.sendFrame(PGNTPConnectionManagement, PriorityLow, h.Destination, h.Source, e.buildEOMAck(sess.TotalSize, sess.TotalPackets))
		e.sessions.Close(h.Source, h.Destination)
	}
	return 0
}
