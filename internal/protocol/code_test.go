package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeV1_RoundTrip(t *testing.T) {
	code, err := CodeFromString("ABCD")
	require.NoError(t, err)
	assert.Equal(t, GameCode(0x44434241), code)
	assert.Equal(t, "ABCD", code.String())
	assert.Equal(t, CodeV1, code.Scheme())
}

func TestCodeV2_RoundTrip(t *testing.T) {
	for _, s := range []string{"QQQQQQ", "ABCDEF", "ZZZZZZ", "SKELDQ"} {
		code, err := CodeFromString(s)
		require.NoError(t, err)
		assert.Negative(t, int32(code), "v2 codes carry the sign bit")
		assert.Equal(t, s, code.String())
		assert.Equal(t, CodeV2, code.Scheme())
	}
}

func TestCodeFromString_Invalid(t *testing.T) {
	tests := []string{"", "AB", "ABC1", "ABCDE", "ABCDEFG", "AB CD"}
	for _, s := range tests {
		_, err := CodeFromString(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestCodeFromString_Local(t *testing.T) {
	code, err := CodeFromString("local")
	require.NoError(t, err)
	assert.Equal(t, CodeLocal, code)
	assert.Equal(t, "LOCAL", code.String())
}

func TestRandomCode_NeverLocal(t *testing.T) {
	for range 1000 {
		v1 := RandomCode(CodeV1)
		assert.NotEqual(t, CodeLocal, v1)
		assert.Equal(t, CodeV1, v1.Scheme())

		v2 := RandomCode(CodeV2)
		assert.NotEqual(t, CodeLocal, v2)
		assert.Equal(t, CodeV2, v2.Scheme())

		// Generated codes must survive the string round-trip.
		back, err := CodeFromString(v2.String())
		require.NoError(t, err)
		assert.Equal(t, v2, back)
	}
}
