package j1939

// FrameHeader is the decoded form of a CAN 29-bit identifier under J1939:
// priority, PGN, source and destination address. For a PDU2 (broadcast)
// PGN, Destination carries no meaning on decode and is set to AddressNull.
type FrameHeader struct {
	PGN         uint32
	Priority    uint8
	Source      uint8
	Destination uint8
}

// pgnMask keeps only the 18 bits that make up a PGN.
const pgnMask uint32 = 0x3FFFF

// IsPDU1 reports whether pgn is peer-to-peer (PDU format < 240) as opposed
// to broadcast (PDU2, PDU format >= 240). The PDU format byte is bits 15..8
// of the PGN.
func IsPDU1(pgn uint32) bool {
	return pduFormat(pgn) < 240
}

func pduFormat(pgn uint32) uint8 {
	return uint8((pgn >> 8) & 0xFF)
}

// EncodeID assembles a 29-bit CAN identifier from a J1939 header: if the
// PGN is PDU1 (peer-to-peer), the destination address overwrites the PGN's
// PDU-specific byte; for PDU2 (broadcast) the PGN is used exactly as given
// and the destination plays no part in the identifier.
func EncodeID(h FrameHeader) uint32 {
	id := (uint32(h.Priority&0x7) << 26) | ((h.PGN & pgnMask) << 8) | uint32(h.Source)
	if IsPDU1(h.PGN) {
		id = (id &^ (0xFF << 8)) | (uint32(h.Destination) << 8)
	}
	return id
}

// DecodeID inverts EncodeID. The PDU1/PDU2 branch is decided from the
// identifier's PDU-format byte directly, rather than from a PGN value that
// has already had its PDU-specific byte overwritten for PDU1.
func DecodeID(id uint32) FrameHeader {
	priority := uint8((id >> 26) & 0x7)
	source := uint8(id)
	pduF := uint8((id >> 16) & 0xFF)
	pduS := uint8((id >> 8) & 0xFF)
	dataPageAndEDP := (id >> 24) & 0x3 // bit24 = DP, bit25 = EDP (always 0 in J1939)

	pgn := (dataPageAndEDP << 16) | (uint32(pduF) << 8)
	if pduF < 240 {
		return FrameHeader{
			PGN:         pgn & pgnMask,
			Priority:    priority,
			Source:      source,
			Destination: pduS,
		}
	}
	return FrameHeader{
		PGN:         (pgn | uint32(pduS)) & pgnMask,
		Priority:    priority,
		Source:      source,
		Destination: AddressNull,
	}
}
