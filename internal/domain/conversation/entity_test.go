package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIDIsCommutative(t *testing.T) {
	pairs := [][2]string{
		{"u1", "u2"},
		{"alice", "bob"},
		{"Zed", "abe"},
		{"same", "same"},
		{"", "x"},
	}
	for _, p := range pairs {
		assert.Equal(t, ID(p[0], p[1]), ID(p[1], p[0]), "pair %v", p)
	}
}

func TestIDDistinguishesPeers(t *testing.T) {
	assert.NotEqual(t, ID("a", "b"), ID("a", "c"))
	assert.Equal(t, "u1_u2", ID("u2", "u1"))
}

func TestPeer(t *testing.T) {
	id := ID("alice", "bob")

	peer, ok := Peer(id, "alice")
	assert.True(t, ok)
	assert.Equal(t, "bob", peer)

	peer, ok = Peer(id, "bob")
	assert.True(t, ok)
	assert.Equal(t, "alice", peer)

	_, ok = Peer(id, "carol")
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	c := New("u2", "u1", now)
	assert.Equal(t, "u1_u2", c.ID)
	assert.True(t, c.Has("u1"))
	assert.True(t, c.Has("u2"))
	assert.False(t, c.Has("u3"))
	assert.Equal(t, now, *c.CreatedAt)
}
