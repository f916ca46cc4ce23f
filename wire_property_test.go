package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// TestEncodeDecodeID_Property feeds random (pgn, priority, src, dst) tuples
// through EncodeID/DecodeID ("feed random (pgn, pri, src, dst)
// tuples through encode/decode"), grounded on the rapid.Check/rapid.Draw
// idiom from doismellburning-samoyed's fx25_send_test.go (the one example
// in the retrieval pack already doing frame round-trip property testing).
func TestEncodeDecodeID_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pgn := uint32(rapid.IntRange(0, 0x3FFFF).Draw(t, "pgn"))
		priority := uint8(rapid.IntRange(0, 7).Draw(t, "priority"))
		src := uint8(rapid.IntRange(0, 255).Draw(t, "src"))
		dst := uint8(rapid.IntRange(0, 255).Draw(t, "dst"))

		if IsPDU1(pgn) {
			// the PDU-specific byte is not part of a PDU1 PGN's identity;
			// canonicalise so round-trip equality is well defined
			pgn &^= 0xFF
		}

		h := FrameHeader{PGN: pgn, Priority: priority, Source: src, Destination: dst}
		id := EncodeID(h)
		got := DecodeID(id)

		assert.Equal(t, priority, got.Priority, "priority bits must round-trip")
		assert.Equal(t, src, got.Source, "source byte must round-trip")

		if IsPDU1(pgn) {
			assert.Equal(t, dst, got.Destination, "PDU1 destination must round-trip")
			assert.Equal(t, pgn, got.PGN, "PDU1 PGN identity excludes the PDU-specific byte")
		} else {
			assert.Equal(t, AddressNull, got.Destination, "PDU2 decode carries no destination")
			assert.Equal(t, pgn, got.PGN, "PDU2 PGN identity includes the PDU-specific byte")
		}

		assert.Equal(t, priority, uint8((id>>26)&0x7))
		assert.Equal(t, src, uint8(id))
	})
}
