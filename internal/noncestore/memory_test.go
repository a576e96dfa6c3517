package noncestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore_ClaimIsFreshThenDuplicate(t *testing.T) {
	s := NewMemoryStore(50 * time.Millisecond)
	defer s.Stop()

	assert.True(t, s.Claim("e1", "n1"))
	assert.False(t, s.Claim("e1", "n1"))
}

func TestMemoryStore_ScopedPerEvent(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Stop()

	assert.True(t, s.Claim("e1", "n1"))
	assert.True(t, s.Claim("e2", "n1"))
}

func TestMemoryStore_ExpiresAfterTTL(t *testing.T) {
	s := NewMemoryStore(20 * time.Millisecond)
	defer s.Stop()

	assert.True(t, s.Claim("e1", "n1"))
	time.Sleep(40 * time.Millisecond)
	assert.True(t, s.Claim("e1", "n1"))
}
