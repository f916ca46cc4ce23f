package j1939

// Frame is a single CAN 2.0B extended frame as seen by the transport
// protocol engine: a 29-bit identifier (carried in the low 29 bits of ID),
// up to 8 data bytes, and the number of bytes actually in use.
type Frame struct {
	ID     uint32
	Data   [canDLCMax]byte
	Length uint8
}

// FrameSender is the CAN collaborator's send half.
type FrameSender interface {
	SendFrame(Frame) error
}

// FrameReceiver is the CAN collaborator's receive half.
type FrameReceiver interface {
	ReadFrame() (Frame, error)
}

// FrameSenderReceiver is the combined CAN collaborator the engine is built
// against.
type FrameSenderReceiver interface {
	FrameSender
	FrameReceiver
}

// PGNFilter is one hardware/driver filter entry. Filtering is optional: a
// collaborator that does not support it can simply not implement
// FrameFilterer, and the engine treats that as "accept everything".
type PGNFilter struct {
	PGN      uint32
	PGNMask  uint32
	Addr     uint8
	AddrMask uint8
}

// FrameFilterer is implemented by collaborators that can push PGN filters
// down into hardware or the kernel driver.
type FrameFilterer interface {
	SetFilters([]PGNFilter) error
}
