package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually-advanced Clock for deterministic tests, the same
// injection pattern addressmapper.go/fastpacket.go use for `now func() time.Time`.
type fakeClock struct {
	ms uint32
}

func (c *fakeClock) NowMS() uint32 { return c.ms }
func (c *fakeClock) Yield()        {}
func (c *fakeClock) advance(ms uint32) {
	c.ms += ms
}

func TestElapsed(t *testing.T) {
	var testCases = []struct {
		name   string
		now    uint32
		anchor uint32
		limit  uint32
		expect bool
	}{
		{name: "ok, not yet elapsed", now: 100, anchor: 0, limit: 200, expect: false},
		{name: "ok, exactly at limit is not elapsed", now: 200, anchor: 0, limit: 200, expect: false},
		{name: "ok, elapsed", now: 201, anchor: 0, limit: 200, expect: true},
		{name: "ok, wraps around 2^32 correctly", now: 30, anchor: 0xFFFFFFFF - 50, limit: 100, expect: false},
		{name: "ok, wraps around 2^32 and elapses", now: 200, anchor: 0xFFFFFFFF - 50, limit: 100, expect: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := Elapsed(tc.now, tc.anchor, tc.limit)
			assert.Equal(t, tc.expect, result)
		})
	}
}
