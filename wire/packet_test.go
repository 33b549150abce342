package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPacketWriteReadRoundTrip(t *testing.T) {
	assert := assert.New(t)

	p := NewPacket()
	p.WriteManageID(Type)
	p.WriteReliableType(Ack)
	p.WriteManageID(SequenceChunk)
	p.WriteSequence(42)
	p.WriteManageID(EOP)
	p.WritePayload([]byte("hello"))

	id, err := p.ReadManageID()
	assert.Nil(err)
	assert.Equal(Type, id)

	rt, err := p.ReadReliableType()
	assert.Nil(err)
	assert.Equal(Ack, rt)

	id, err = p.ReadManageID()
	assert.Nil(err)
	assert.Equal(SequenceChunk, id)

	seq, err := p.ReadSequence()
	assert.Nil(err)
	assert.Equal(Sequence(42), seq)

	id, err = p.ReadManageID()
	assert.Nil(err)
	assert.Equal(EOP, id)

	assert.Equal([]byte("hello"), p.ReadPayload())
}

func TestPacketSeekAndOverwrite(t *testing.T) {
	assert := assert.New(t)

	p := NewPacket()
	p.WriteManageID(Type)
	p.WriteReliableType(Ordered)
	p.WriteManageID(SequenceChunk)

	reserved := p.Tell(WriteCursor)
	p.WriteSequence(0) // placeholder

	p.WriteManageID(EOP)

	// overwrite the reserved sequence in place, as Connection.Send does
	p.Seek(WriteCursor, reserved)
	p.WriteSequence(7)

	p.Seek(BothCursors, 0)
	_, err := p.ReadManageID()
	assert.Nil(err)
	_, err = p.ReadReliableType()
	assert.Nil(err)
	_, err = p.ReadManageID()
	assert.Nil(err)

	seq, err := p.ReadSequence()
	assert.Nil(err)
	assert.Equal(Sequence(7), seq)
}

func TestPacketShortReadError(t *testing.T) {
	assert := assert.New(t)

	p := NewPacket()
	p.WriteByte(1)

	_, err := p.ReadSequence()
	assert.True(errors.Is(err, ErrShortPacket))
}

func TestPacketClone(t *testing.T) {
	assert := assert.New(t)

	p := NewPacket()
	p.WriteManageID(Type)
	p.WriteReliableType(Newest)
	p.WriteManageID(EOP)

	clone := p.Clone()
	assert.Equal(p.Bytes(), clone.Bytes())

	clone.Seek(BothCursors, 0)
	id, err := clone.ReadManageID()
	assert.Nil(err)
	assert.Equal(Type, id)
}

func TestManageIDAndReliableTypeString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("eop", EOP.String())
	assert.Equal("type", Type.String())
	assert.Equal("sequence", SequenceChunk.String())
	assert.Equal("ack", AckChunk.String())
	assert.Equal("connect", Connect.String())

	assert.Equal("none", None.String())
	assert.Equal("ack_newest", AckNewest.String())
	assert.Equal("ordered", Ordered.String())
}
