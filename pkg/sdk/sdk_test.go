package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventInt(t *testing.T) {
	ev := Event{Payload: map[string]any{
		"a": 3,
		"b": float64(7),
		"c": uint8(9),
		"d": "x",
	}}

	n, ok := ev.Int("a")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	n, ok = ev.Int("b")
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	n, ok = ev.Int("c")
	assert.True(t, ok)
	assert.Equal(t, 9, n)

	_, ok = ev.Int("d")
	assert.False(t, ok)
	_, ok = ev.Int("missing")
	assert.False(t, ok)
}

func TestEventString(t *testing.T) {
	ev := Event{Payload: map[string]any{"direction": "up", "n": 1}}

	s, ok := ev.String("direction")
	assert.True(t, ok)
	assert.Equal(t, "up", s)

	_, ok = ev.String("n")
	assert.False(t, ok)
}
