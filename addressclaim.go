package j1939

import "encoding/binary"

// Name is the 64-bit packed ECU identity transmitted during address claim.
// The bit layout matches the NAME field of SAE J1939-81, packed
// shift-and-mask into an 8-byte array, most-significant-byte first.
type Name struct {
	IdentityNumber          uint32 // 21 bits
	ManufacturerCode        uint16 // 11 bits
	ECUInstance             uint8  // 3 bits
	FunctionInstance        uint8  // 5 bits
	Function                uint8  // 8 bits
	VehicleSystem           uint8  // 7 bits
	VehicleSystemInstance   uint8  // 4 bits
	IndustryGroup           uint8  // 3 bits
	ArbitraryAddressCapable bool   // 1 bit
}

// Bytes packs n into its 8-byte big-endian wire representation: the
// arbitrary-address-capable bit lands in the top bit of byte 0 and the
// identity number's low byte in byte 7, so byte-wise comparison of two
// packed NAMEs orders them the same way Uint64 does.
func (n Name) Bytes() [8]byte {
	var b [8]byte
	b[0] = (n.IndustryGroup&0x7)<<4 | n.VehicleSystemInstance&0xF
	if n.ArbitraryAddressCapable {
		b[0] |= 0x80
	}
	b[1] = n.VehicleSystem << 1
	b[2] = n.Function
	b[3] = (n.FunctionInstance&0x1F)<<3 | n.ECUInstance&0x7
	b[4] = byte(n.ManufacturerCode >> 3)
	b[5] = byte(n.ManufacturerCode&0x7)<<5 | byte(n.IdentityNumber>>16)&0x1F
	b[6] = byte(n.IdentityNumber >> 8)
	b[7] = byte(n.IdentityNumber)
	return b
}

// Uint64 returns n's big-endian wire representation as a single integer.
// Lower values win address-claim arbitration.
func (n Name) Uint64() uint64 {
	b := n.Bytes()
	return binary.BigEndian.Uint64(b[:])
}

// DecodeName inverts Bytes/Uint64, recovering a Name from an 8-byte AC
// payload (big-endian).
func DecodeName(b [8]byte) Name {
	return Name{
		IdentityNumber:          uint32(b[5]&0x1F)<<16 | uint32(b[6])<<8 | uint32(b[7]),
		ManufacturerCode:        uint16(b[4])<<3 | uint16(b[5]>>5),
		ECUInstance:             b[3] & 0x7,
		FunctionInstance:        b[3] >> 3 & 0x1F,
		Function:                b[2],
		VehicleSystem:           b[1] >> 1,
		VehicleSystemInstance:   b[0] & 0xF,
		IndustryGroup:           (b[0] >> 4) & 0x7,
		ArbitraryAddressCapable: b[0]&0x80 != 0,
	}
}

// addressClaimPayload builds the AC frame body: NAME, big-endian.
func addressClaimPayload(name Name) []byte {
	b := name.Bytes()
	return b[:]
}

// requestForAddressClaimPayload builds the RAC body: the AC PGN as three
// explicit little-endian bytes, PGN-low-byte-first as J1939 requires.
func requestForAddressClaimPayload() []byte {
	pgn := PGNAddressClaimed
	return []byte{
		byte(pgn),
		byte(pgn >> 8),
		byte(pgn >> 16),
	}
}

// AddressClaim requests address claim information from the bus and then
// immediately claims src for name, emitting a RAC followed by an AC. Both
// frames go to the global address.
func (e *Engine) AddressClaim(src uint8, name Name) error {
	if err := e.sendFrame(PGNRequestForAddressClaim, PriorityDefault, src, AddressGlobal, requestForAddressClaimPayload()); err != nil {
		return err
	}
	return e.sendFrame(PGNAddressClaimed, PriorityDefault, src, AddressGlobal, addressClaimPayload(name))
}

// AddressClaimed emits an unsolicited AC for (src,name) — used when a node
// re-announces its claim without having been asked.
func (e *Engine) AddressClaimed(src uint8, name Name) error {
	return e.sendFrame(PGNAddressClaimed, PriorityDefault, src, AddressGlobal, addressClaimPayload(name))
}

// CannotClaimAddress emits an AC from AddressNotClaimed, signalling that
// name could not obtain any address on the bus.
func (e *Engine) CannotClaimAddress(name Name) error {
	return e.sendFrame(PGNAddressClaimed, PriorityDefault, AddressNotClaimed, AddressGlobal, addressClaimPayload(name))
}
