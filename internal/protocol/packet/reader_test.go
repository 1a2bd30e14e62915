package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_Scalars(t *testing.T) {
	data := []byte{
		0x2a,       // byte
		0x34, 0x12, // u16 LE
		0x12, 0x34, // u16 BE
		0x78, 0x56, 0x34, 0x12, // int32 LE
	}
	r := NewReader(data)

	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x2a), b)

	le, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), le)

	be, err := r.ReadUint16BE()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), be)

	i, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(0x12345678), i)

	assert.Equal(t, 0, r.Remaining())
}

func TestReader_NotEnoughData(t *testing.T) {
	tests := []struct {
		name string
		read func(r *Reader) error
	}{
		{"byte", func(r *Reader) error { _, err := r.ReadByte(); return err }},
		{"uint16", func(r *Reader) error { _, err := r.ReadUint16(); return err }},
		{"uint16be", func(r *Reader) error { _, err := r.ReadUint16BE(); return err }},
		{"int32", func(r *Reader) error { _, err := r.ReadInt32(); return err }},
		{"string", func(r *Reader) error { _, err := r.ReadString(); return err }},
		{"bytes", func(r *Reader) error { _, err := r.ReadBytes(1); return err }},
		{"message", func(r *Reader) error { _, _, err := r.ReadMessage(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.read(NewReader(nil)))
		})
	}
}

func TestPackedUint32_RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 300, 0xffffffff}
	for _, v := range values {
		w := NewWriter(8)
		w.WritePackedUint32(v)

		got, err := NewReader(w.Bytes()).ReadPackedUint32()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestPackedUint32_KnownEncodings(t *testing.T) {
	w := NewWriter(8)
	w.WritePackedUint32(300)
	assert.Equal(t, []byte{0xac, 0x02}, w.Bytes())

	w.Reset()
	w.WritePackedUint32(0x7f)
	assert.Equal(t, []byte{0x7f}, w.Bytes())
}

func TestPackedUint32_Overflow(t *testing.T) {
	// Six continuation bytes can never encode a valid uint32.
	_, err := NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}).ReadPackedUint32()
	assert.Error(t, err)
}

func TestReadString(t *testing.T) {
	w := NewWriter(32)
	w.WriteString("big bob")

	got, err := NewReader(w.Bytes()).ReadString()
	require.NoError(t, err)
	assert.Equal(t, "big bob", got)
}

func TestReadString_DeclaredLengthTooLong(t *testing.T) {
	_, err := NewReader([]byte{0x05, 'a', 'b'}).ReadString()
	assert.Error(t, err)
}

func TestReadBytes_ZeroCopySharesBuffer(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	r := NewReader(data)

	view, err := r.ReadBytes(4)
	require.NoError(t, err)
	data[0] = 9
	assert.Equal(t, byte(9), view[0], "ReadBytes must alias the source")

	cp, err := NewReader(data).ReadBytesCopy(4)
	require.NoError(t, err)
	data[1] = 9
	assert.Equal(t, byte(2), cp[1], "ReadBytesCopy must not alias the source")
}

func TestReadMessage(t *testing.T) {
	w := NewWriter(16)
	w.BeginMessage(0x05)
	w.WriteByte(0xaa)
	w.WriteByte(0xbb)
	require.NoError(t, w.EndMessage())

	tag, body, err := NewReader(w.Bytes()).ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, byte(0x05), tag)
	assert.Equal(t, 2, body.Remaining())
}
