package packet

import (
	"fmt"
	"unicode/utf8"
)

// Reader provides methods for reading Hazel packet data.
// Multi-byte integers are Little-Endian except nonces (Big-Endian).
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a new packet reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{
		data: data,
		pos:  0,
	}
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("ReadByte: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadUint16 reads a uint16 (2 bytes, LE). Used for Hazel message lengths.
func (r *Reader) ReadUint16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("ReadUint16: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	val := uint16(r.data[r.pos]) | uint16(r.data[r.pos+1])<<8
	r.pos += 2
	return val, nil
}

// ReadUint16BE reads a uint16 (2 bytes, BE). Used for packet nonces.
func (r *Reader) ReadUint16BE() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("ReadUint16BE: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	val := uint16(r.data[r.pos])<<8 | uint16(r.data[r.pos+1])
	r.pos += 2
	return val, nil
}

// ReadInt32 reads an int32 (4 bytes, LE).
func (r *Reader) ReadInt32() (int32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("ReadInt32: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	val := int32(uint32(r.data[r.pos]) |
		uint32(r.data[r.pos+1])<<8 |
		uint32(r.data[r.pos+2])<<16 |
		uint32(r.data[r.pos+3])<<24)
	r.pos += 4
	return val, nil
}

// ReadUint32 reads a uint32 (4 bytes, LE).
func (r *Reader) ReadUint32() (uint32, error) {
	v, err := r.ReadInt32()
	if err != nil {
		return 0, fmt.Errorf("ReadUint32: %w", err)
	}
	return uint32(v), nil
}

// ReadPackedUint32 reads a 7-bit packed uint32 (1-5 bytes, LSB groups first).
func (r *Reader) ReadPackedUint32() (uint32, error) {
	var val uint32
	var shift uint
	for {
		if shift > 28 {
			return 0, fmt.Errorf("ReadPackedUint32: value overflows 32 bits (pos=%d)", r.pos)
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("ReadPackedUint32: %w", err)
		}
		val |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return val, nil
		}
		shift += 7
	}
}

// ReadPackedInt32 reads a 7-bit packed int32 (same encoding, reinterpreted).
func (r *Reader) ReadPackedInt32() (int32, error) {
	v, err := r.ReadPackedUint32()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// ReadString reads a packed-length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadPackedUint32()
	if err != nil {
		return "", fmt.Errorf("ReadString: %w", err)
	}
	if int(n) > r.Remaining() {
		return "", fmt.Errorf("ReadString: declared length %d exceeds remaining %d", n, r.Remaining())
	}
	raw := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("ReadString: invalid UTF-8 (pos=%d, len=%d)", r.pos-int(n), n)
	}
	return string(raw), nil
}

// ReadBytes reads n bytes (ZERO-COPY — returns subslice of internal data).
// Caller MUST NOT modify returned bytes. Use ReadBytesCopy() if mutation needed.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("ReadBytes: negative count %d", n)
	}
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("ReadBytes: not enough data (pos=%d, need=%d, len=%d)", r.pos, n, len(r.data))
	}
	bytes := r.data[r.pos : r.pos+n]
	r.pos += n
	return bytes, nil
}

// ReadBytesCopy reads n bytes and returns a mutable copy.
func (r *Reader) ReadBytesCopy(n int) ([]byte, error) {
	raw, err := r.ReadBytes(n)
	if err != nil {
		return nil, fmt.Errorf("ReadBytesCopy: %w", err)
	}
	out := make([]byte, n)
	copy(out, raw)
	return out, nil
}

// ReadMessage reads one Hazel-framed inner message: u16 LE length, byte tag,
// payload. The returned Reader is a zero-copy view over the payload.
func (r *Reader) ReadMessage() (tag byte, body *Reader, err error) {
	length, err := r.ReadUint16()
	if err != nil {
		return 0, nil, fmt.Errorf("ReadMessage: %w", err)
	}
	tag, err = r.ReadByte()
	if err != nil {
		return 0, nil, fmt.Errorf("ReadMessage: %w", err)
	}
	payload, err := r.ReadBytes(int(length))
	if err != nil {
		return 0, nil, fmt.Errorf("ReadMessage: tag=0x%02X: %w", tag, err)
	}
	return tag, NewReader(payload), nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}
