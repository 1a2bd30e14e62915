package packet

import (
	"fmt"
	"sync"
)

// Writer builds Hazel packet data. Multi-byte integers are Little-Endian
// except nonces (Big-Endian). Nested messages are opened with BeginMessage
// and closed with EndMessage, which backpatches the u16 length header.
type Writer struct {
	buf   []byte
	stack []int // offsets of open message length headers
}

// writerPool reduces allocations by reusing Writers.
var writerPool = sync.Pool{
	New: func() any {
		return &Writer{
			buf:   make([]byte, 0, 512),
			stack: make([]int, 0, 4),
		}
	},
}

// Get returns a Writer from the pool (already Reset).
func Get() *Writer {
	w := writerPool.Get().(*Writer)
	w.Reset()
	return w
}

// Put returns a Writer to the pool for reuse.
// IMPORTANT: Do not use the Writer or its Bytes() after calling Put.
func (w *Writer) Put() {
	writerPool.Put(w)
}

// NewWriter creates a new packet writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{
		buf:   make([]byte, 0, capacity),
		stack: make([]int, 0, 4),
	}
}

// Reset clears the writer for reuse.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.stack = w.stack[:0]
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

// WriteUint16 writes a uint16 (2 bytes, LE).
func (w *Writer) WriteUint16(val uint16) {
	w.buf = append(w.buf, byte(val), byte(val>>8))
}

// WriteUint16BE writes a uint16 (2 bytes, BE). Used for packet nonces.
func (w *Writer) WriteUint16BE(val uint16) {
	w.buf = append(w.buf, byte(val>>8), byte(val))
}

// WriteInt32 writes an int32 (4 bytes, LE).
func (w *Writer) WriteInt32(val int32) {
	w.buf = append(w.buf, byte(val), byte(val>>8), byte(val>>16), byte(val>>24))
}

// WriteUint32 writes a uint32 (4 bytes, LE).
func (w *Writer) WriteUint32(val uint32) {
	w.WriteInt32(int32(val))
}

// WritePackedUint32 writes a 7-bit packed uint32 (1-5 bytes).
func (w *Writer) WritePackedUint32(val uint32) {
	for val >= 0x80 {
		w.buf = append(w.buf, byte(val)|0x80)
		val >>= 7
	}
	w.buf = append(w.buf, byte(val))
}

// WritePackedInt32 writes a 7-bit packed int32.
func (w *Writer) WritePackedInt32(val int32) {
	w.WritePackedUint32(uint32(val))
}

// WriteString writes a packed-length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WritePackedUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// BeginMessage opens a Hazel-framed inner message with the given tag.
// Reserves the u16 length header; EndMessage fills it in.
func (w *Writer) BeginMessage(tag byte) {
	w.stack = append(w.stack, len(w.buf))
	w.buf = append(w.buf, 0, 0, tag)
}

// EndMessage closes the innermost open message, backpatching its length.
func (w *Writer) EndMessage() error {
	if len(w.stack) == 0 {
		return fmt.Errorf("EndMessage: no open message")
	}
	start := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]

	length := len(w.buf) - start - 3
	if length > 0xFFFF {
		return fmt.Errorf("EndMessage: payload %d exceeds u16 length field", length)
	}
	w.buf[start] = byte(length)
	w.buf[start+1] = byte(length >> 8)
	return nil
}

// Bytes returns the accumulated packet bytes.
// The slice is owned by the Writer; copy before Put/Reset.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// BytesCopy returns a copy of the accumulated packet bytes.
func (w *Writer) BytesCopy() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}
