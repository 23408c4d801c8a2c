package simlink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := newBackoff(time.Second, 10*time.Second, 2, 0)

	assert.Equal(t, time.Second, b.next())
	assert.Equal(t, 2*time.Second, b.next())
	assert.Equal(t, 4*time.Second, b.next())
	assert.Equal(t, 8*time.Second, b.next())
	assert.Equal(t, 10*time.Second, b.next())
	assert.Equal(t, 10*time.Second, b.next())
}

func TestBackoffReset(t *testing.T) {
	b := newBackoff(time.Second, 10*time.Second, 2, 0)

	b.next()
	b.next()
	b.reset()
	assert.Equal(t, time.Second, b.next())
}

func TestBackoffJitterBounds(t *testing.T) {
	b := newBackoff(time.Second, 10*time.Second, 2, 0.25)

	for i := 0; i < 20; i++ {
		d := b.next()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 12500*time.Millisecond)
		b.reset()
	}
}

func TestBackoffSanitizesInputs(t *testing.T) {
	b := newBackoff(0, 0, 0, 0)

	assert.Equal(t, time.Second, b.next())
	assert.Equal(t, time.Second, b.next())
}

func TestCommandPaths(t *testing.T) {
	assert.Equal(t, "sim/ap/disco", commandPath("sim/ap/disco", CommandOnce))
	assert.Equal(t, "sim/ap/disco/begin", commandPath("sim/ap/disco", CommandBegin))
	assert.Equal(t, "sim/ap/disco/end", commandPath("sim/ap/disco", CommandEnd))
}

func TestHasCommand(t *testing.T) {
	assert.True(t, HasCommand("sim/ap/disco"))
	assert.False(t, HasCommand(""))
	assert.False(t, HasCommand("none"))
	assert.False(t, HasCommand("noop"))
	assert.False(t, HasCommand("no-operation"))
	assert.False(t, HasCommand("do-nothing"))
}
