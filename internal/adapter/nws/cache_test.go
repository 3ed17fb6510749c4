package nws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextCache_Eviction(t *testing.T) {
	c := newTextCache(2)
	c.put("a", "A")
	c.put("b", "B")
	c.get("a") // a is now most recent
	c.put("c", "C")

	_, ok := c.get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", v)
	assert.Equal(t, 2, c.len())
}

func TestTextCache_Update(t *testing.T) {
	c := newTextCache(2)
	c.put("a", "old")
	c.put("a", "new")

	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.len())
}
