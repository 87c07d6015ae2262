package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	assert.Equal(t, start, c.Now())

	c.Advance(59 * time.Second)
	assert.Equal(t, start.Add(59*time.Second), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestOrReal(t *testing.T) {
	assert.IsType(t, Real{}, OrReal(nil))

	f := NewFake(time.Unix(0, 0))
	assert.Same(t, f, OrReal(f))
}
