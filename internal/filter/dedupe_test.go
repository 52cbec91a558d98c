package filter

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestDedupeConsecutive(t *testing.T) {
	f := NewDedupeFilter(0, clock.NewMock())

	assert.True(t, f.Check("Motor idle").ShouldEmit)

	r := f.Check("Motor idle")
	assert.False(t, r.ShouldEmit)
	assert.Equal(t, 2, r.Count)

	assert.True(t, f.Check("Lane 2 jammed").ShouldEmit)
	// Not consecutive any more, so it is emitted again
	assert.True(t, f.Check("Motor idle").ShouldEmit)
}

func TestDedupeWindow(t *testing.T) {
	clk := clock.NewMock()
	f := NewDedupeFilter(time.Minute, clk)

	assert.True(t, f.Check("Motor idle").ShouldEmit)
	assert.True(t, f.Check("Lane 2 jammed").ShouldEmit)

	clk.Add(30 * time.Second)
	r := f.Check("Motor idle")
	assert.False(t, r.ShouldEmit)
	assert.Equal(t, 2, r.Count)
	assert.Equal(t, 30*time.Second, r.LastSeen.Sub(r.FirstSeen))

	clk.Add(2 * time.Minute)
	assert.True(t, f.Check("Motor idle").ShouldEmit)
}

func TestDedupeReset(t *testing.T) {
	f := NewDedupeFilter(time.Minute, clock.NewMock())
	f.Check("Motor idle")
	f.Reset()
	assert.True(t, f.Check("Motor idle").ShouldEmit)
}
