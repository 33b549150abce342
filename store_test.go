package rudp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SonicFreak94/rudp/wire"
)

func TestOrderedStoresSortedAscendingBySequence(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	o := newOrderedStores()
	o.insert(newStore(3, wire.NewPacket(), now))
	o.insert(newStore(1, wire.NewPacket(), now))
	o.insert(newStore(2, wire.NewPacket(), now))

	assert.Equal(wire.Sequence(1), o.head().Sequence)

	o.remove(1)
	assert.Equal(wire.Sequence(2), o.head().Sequence)

	o.remove(2)
	o.remove(3)
	assert.True(o.empty())
}

func TestOrderedStoresHasAndRemoveMissing(t *testing.T) {
	assert := assert.New(t)

	o := newOrderedStores()
	assert.False(o.has(1))
	assert.Nil(o.remove(1))

	o.insert(newStore(1, wire.NewPacket(), time.Now()))
	assert.True(o.has(1))
}

func TestStoreShouldSendComparesAgainstLastActive(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	s := newStore(1, wire.NewPacket(), now)

	assert.False(s.shouldSend(now, time.Second))
	assert.True(s.shouldSend(now.Add(2*time.Second), time.Second))

	s.resetActivity(now.Add(2 * time.Second))
	assert.False(s.shouldSend(now.Add(2*time.Second), time.Second))
}
