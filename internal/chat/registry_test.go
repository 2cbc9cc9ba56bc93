package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry_PutGetRemove(t *testing.T) {
	r := NewSessionRegistry()
	p := testParticipant(1)

	assert.Nil(t, r.Get("c1"))

	r.Put("c1", p)
	assert.Equal(t, p, r.Get("c1"))
	assert.Equal(t, 1, r.Len())

	removed := r.Remove("c1")
	assert.Equal(t, p, removed)
	assert.Nil(t, r.Get("c1"))
	assert.Equal(t, 0, r.Len())
}

func TestSessionRegistry_RemoveUnknown(t *testing.T) {
	r := NewSessionRegistry()
	assert.Nil(t, r.Remove("nosuch"))
}

func TestSessionRegistry_PutReplaces(t *testing.T) {
	r := NewSessionRegistry()
	r.Put("c1", testParticipant(1))
	r.Put("c1", testParticipant(2))
	assert.Equal(t, "p2", r.Get("c1").ID)
	assert.Equal(t, 1, r.Len())
}
