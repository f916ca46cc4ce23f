package addressclaim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	j1939 "github.com/paoloteti/libj1939"
)

func TestTracker_FirstClaimAlwaysWins(t *testing.T) {
	tr := New()
	name := j1939.Name{IdentityNumber: 100}

	won := tr.Observe(0x10, name)
	assert.True(t, won)

	owner, ok := tr.Owner(0x10)
	require.True(t, ok)
	assert.Equal(t, name, owner)
}

func TestTracker_LowerNameWins(t *testing.T) {
	tr := New()
	high := j1939.Name{IdentityNumber: 200}
	low := j1939.Name{IdentityNumber: 50}

	assert.True(t, tr.Observe(0x10, high))
	assert.True(t, tr.Observe(0x10, low), "a lower NAME must win the address")

	owner, ok := tr.Owner(0x10)
	require.True(t, ok)
	assert.Equal(t, low, owner)
}

func TestTracker_HigherNameDoesNotDisplace(t *testing.T) {
	tr := New()
	low := j1939.Name{IdentityNumber: 50}
	high := j1939.Name{IdentityNumber: 200}

	assert.True(t, tr.Observe(0x10, low))
	assert.False(t, tr.Observe(0x10, high), "a higher NAME must not displace the current owner")

	owner, ok := tr.Owner(0x10)
	require.True(t, ok)
	assert.Equal(t, low, owner)
}

func TestTracker_ReservedAddressesNeverClaimed(t *testing.T) {
	tr := New()
	assert.False(t, tr.Observe(j1939.AddressNotClaimed, j1939.Name{IdentityNumber: 1}))
	assert.False(t, tr.Observe(j1939.AddressGlobal, j1939.Name{IdentityNumber: 1}))

	_, ok := tr.Owner(j1939.AddressNotClaimed)
	assert.False(t, ok)
}

func TestTracker_SourceOf(t *testing.T) {
	tr := New()
	name := j1939.Name{IdentityNumber: 55}
	tr.Observe(0x10, name)

	src, ok := tr.SourceOf(name)
	require.True(t, ok)
	assert.Equal(t, uint8(0x10), src)

	_, ok = tr.SourceOf(j1939.Name{IdentityNumber: 999})
	assert.False(t, ok)
}

func TestTracker_Handle_DecodesWireFrameAndObserves(t *testing.T) {
	tr := New()
	name := j1939.Name{IdentityNumber: 321, ManufacturerCode: 5}
	b := name.Bytes()

	rc := tr.Handle(j1939.FrameHeader{PGN: j1939.PGNAddressClaimed, Source: 0x22}, b[:], 8)
	assert.Equal(t, 0, rc)

	owner, ok := tr.Owner(0x22)
	require.True(t, ok)
	assert.Equal(t, name, owner)
}
