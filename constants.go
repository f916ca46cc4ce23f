package j1939

// Well-known PGNs used by the transport protocol and address claim engine.
// PGN values are masked to 18 bits; destination/group byte is not part of
// the identity for PDU1 (peer-to-peer) PGNs.
const (
	PGNTPConnectionManagement uint32 = 0x00EC00 // TP_CM
	PGNTPDataTransfer         uint32 = 0x00EB00 // TP_DT
	PGNBAM                    uint32 = 0x00FEEC // broadcast announce identity (PDU2); carried inside a TP_CM frame's payload, never as a frame's own wire PGN
	PGNAddressClaimed         uint32 = 0x00EE00 // AC
	PGNRequestForAddressClaim uint32 = 0x00EA00 // RAC (request for AC)
)

// Connection-management subcodes, carried in byte 0 of a TP_CM payload.
const (
	tpCMRequestToSend     byte = 0x10 // RTS
	tpCMClearToSend       byte = 0x11 // CTS
	tpCMEndOfMessageAck   byte = 0x13 // EOM_ACK
	tpCMBroadcastAnnounce byte = 0x20 // BAM
	tpCMConnectionAbort   byte = 0xFF // ABORT
)

// Reserved addresses.
const (
	AddressGlobal     uint8 = 0xFF // broadcast to all nodes
	AddressNotClaimed uint8 = 0xFE // "not claimed" source placeholder
	AddressNull       uint8 = 0xEF // "no destination" marker on broadcast reception
)

// Priority range. 0 is highest, 7 lowest; 6 is the J1939 default.
const (
	PriorityHigh    uint8 = 0
	PriorityDefault uint8 = 6
	PriorityLow     uint8 = 7
)

// Abort reason codes carried in byte 1 of an ABORT connection-management
// frame, and surfaced to the error callback.
const (
	ReasonBusy       uint8 = 0x01
	ReasonNoResource uint8 = 0x02
	ReasonTimeout    uint8 = 0x03
	ReasonCTSWhileDT uint8 = 0x04
	ReasonIncomplete uint8 = 0x05
)

// Timing constants in milliseconds, from SAE J1939-21.
const (
	Tr         = 200  // Response Time
	Th         = 500  // Holding Time
	T1         = 750  // max gap between DT frames on the receiving side
	T2         = 1250 // wait for the first DT frame after sending CTS, receiving side
	T3         = 1250 // CTS/EOM_ACK wait on the sending side
	T4         = 1050
	Tb         = 50 // min gap between BAM DT frames
	SendPeriod = 50 // pacing between consecutive DT frames
)

// MaxDataLen is the largest payload a single TP session may carry.
const MaxDataLen = 1785

// dataFrameMaxLen is the usable payload of one CAN data frame (8 bytes minus
// the control byte shared by TP_CM and DLC_MAX minus 1 for TP_DT's seqno byte).
const (
	canDLCMax       = 8
	dataFrameMaxLen = canDLCMax - 1 // 7 bytes of payload per DT frame
)
