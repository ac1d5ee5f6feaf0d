package poll

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenWindow_FIFOTrim(t *testing.T) {
	w := NewSeenWindow(3, []string{"a", "b"})

	w.Add("c")
	w.Add("d")

	assert.Equal(t, []string{"b", "c", "d"}, w.IDs())
	assert.False(t, w.Contains("a"))
	assert.True(t, w.Contains("d"))
	assert.Equal(t, 3, w.Len())
}

func TestSeenWindow_ReAddKeepsPosition(t *testing.T) {
	w := NewSeenWindow(2, nil)

	w.Add("a")
	w.Add("b")
	w.Add("a")
	w.Add("c")

	assert.Equal(t, []string{"b", "c"}, w.IDs())
}

func TestSeenWindow_SeedBeyondBoundDropsOldest(t *testing.T) {
	w := NewSeenWindow(2, []string{"a", "b", "c"})

	assert.Equal(t, []string{"b", "c"}, w.IDs())
}

func TestSeenWindow_ZeroBoundUsesDefault(t *testing.T) {
	assert.Equal(t, DefaultSeenBound, NewSeenWindow(0, nil).Bound())
}
