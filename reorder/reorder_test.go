package reorder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SonicFreak94/rudp/wire"
)

func packetTagged(n byte) *wire.Packet {
	p := wire.NewPacket()
	p.WritePayload([]byte{n})
	return p
}

func TestBufferReleasesContiguousRun(t *testing.T) {
	assert := assert.New(t)

	b := NewBuffer()
	b.Push(1, packetTagged(1))
	b.Push(3, packetTagged(3))

	out := b.Drain()
	assert.Len(out, 1)
	assert.Equal(byte(1), out[0].Bytes()[0])
	assert.Equal(1, b.Pending())

	b.Push(2, packetTagged(2))
	out = b.Drain()

	assert.Len(out, 2)
	assert.Equal(byte(2), out[0].Bytes()[0])
	assert.Equal(byte(3), out[1].Bytes()[0])
	assert.Equal(0, b.Pending())
}

func TestBufferDropsSequenceBelowNext(t *testing.T) {
	assert := assert.New(t)

	b := NewBuffer()
	b.Push(1, packetTagged(1))
	b.Drain()

	b.Push(1, packetTagged(1)) // already released, stale
	assert.Equal(0, b.Pending())
}
