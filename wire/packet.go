package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// SeekCursor selects which of a Packet's two independent cursors an
// operation applies to.
type SeekCursor int

const (
	ReadCursor SeekCursor = iota
	WriteCursor
	BothCursors
)

// ErrShortPacket is returned when a read runs past the end of the
// buffer.
var ErrShortPacket = errors.New("wire: short packet")

// Packet is a byte buffer with independent read and write cursors, used
// to frame the control-chunk stream described by the wire format. Writes
// past the current length grow the buffer; writes within the current
// length overwrite in place — this is what lets the send path reserve a
// sequence field and come back to fill it in later.
type Packet struct {
	buf      []byte
	readPos  int
	writePos int
}

// NewPacket returns an empty packet ready for writing.
func NewPacket() *Packet {
	return &Packet{}
}

// PacketFromBytes wraps an existing byte slice for reading; the write
// cursor starts at the end of the slice.
func PacketFromBytes(b []byte) *Packet {
	return &Packet{buf: b, writePos: len(b)}
}

// Bytes returns the packet's full backing slice, regardless of cursor
// position.
func (p *Packet) Bytes() []byte {
	return p.buf
}

// Len returns the number of bytes written so far.
func (p *Packet) Len() int {
	return len(p.buf)
}

// Tell returns the current offset of the given cursor.
func (p *Packet) Tell(cursor SeekCursor) int {
	switch cursor {
	case ReadCursor:
		return p.readPos
	case WriteCursor:
		return p.writePos
	default:
		return p.writePos
	}
}

// Seek moves the given cursor (or both) to an absolute offset from the
// start of the buffer.
func (p *Packet) Seek(cursor SeekCursor, pos int) {
	if cursor == ReadCursor || cursor == BothCursors {
		p.readPos = pos
	}
	if cursor == WriteCursor || cursor == BothCursors {
		p.writePos = pos
	}
}

// Reset clears the packet to an empty state.
func (p *Packet) Reset() {
	p.buf = p.buf[:0]
	p.readPos = 0
	p.writePos = 0
}

func (p *Packet) ensure(n int) {
	need := p.writePos + n
	if need <= len(p.buf) {
		return
	}
	grown := make([]byte, need)
	copy(grown, p.buf)
	p.buf = grown
}

func (p *Packet) writeBytes(b []byte) {
	p.ensure(len(b))
	copy(p.buf[p.writePos:], b)
	p.writePos += len(b)
}

func (p *Packet) readBytes(n int) ([]byte, error) {
	if p.readPos+n > len(p.buf) {
		return nil, ErrShortPacket
	}
	b := p.buf[p.readPos : p.readPos+n]
	p.readPos += n
	return b, nil
}

// WriteByte writes a single raw byte.
func (p *Packet) WriteByte(b byte) {
	p.writeBytes([]byte{b})
}

// ReadByte reads a single raw byte.
func (p *Packet) ReadByte() (byte, error) {
	b, err := p.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteManageID writes a control-chunk tag.
func (p *Packet) WriteManageID(id ManageID) {
	p.WriteByte(byte(id))
}

// ReadManageID reads a control-chunk tag.
func (p *Packet) ReadManageID() (ManageID, error) {
	b, err := p.ReadByte()
	return ManageID(b), err
}

// WriteReliableType writes a delivery-discipline tag.
func (p *Packet) WriteReliableType(t ReliableType) {
	p.WriteByte(byte(t))
}

// ReadReliableType reads a delivery-discipline tag.
func (p *Packet) ReadReliableType() (ReliableType, error) {
	b, err := p.ReadByte()
	return ReliableType(b), err
}

// WriteSequence writes a 32-bit little-endian sequence number.
func (p *Packet) WriteSequence(seq Sequence) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(seq))
	p.writeBytes(buf[:])
}

// ReadSequence reads a 32-bit little-endian sequence number.
func (p *Packet) ReadSequence() (Sequence, error) {
	b, err := p.readBytes(4)
	if err != nil {
		return 0, err
	}
	return Sequence(binary.LittleEndian.Uint32(b)), nil
}

// WritePayload appends raw application payload bytes.
func (p *Packet) WritePayload(data []byte) {
	p.writeBytes(data)
}

// ReadPayload reads the remainder of the packet from the read cursor.
func (p *Packet) ReadPayload() []byte {
	b := p.buf[p.readPos:]
	p.readPos = len(p.buf)
	return b
}

// Clone returns a deep copy of the packet's current bytes, with the
// read cursor at the start and the write cursor at the end. Used by the core to retain a Store's bytes
// independent of the caller's packet.
func (p *Packet) Clone() *Packet {
	cp := make([]byte, len(p.buf))
	copy(cp, p.buf)
	return &Packet{buf: cp, writePos: len(cp)}
}
