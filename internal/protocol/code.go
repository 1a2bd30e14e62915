package protocol

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// GameCode is a room identifier encoded as an int32. V1 codes pack four
// ASCII letters little-endian (positive values); V2 codes use the shuffled
// 26-letter alphabet with the sign bit set (negative values).
type GameCode int32

// CodeLocal is the reserved local-game code. It is never allocated by the
// generator and never appears in public game listings.
const CodeLocal GameCode = 0x20

// CodeScheme selects the game-code flavor.
type CodeScheme int

const (
	// CodeV1 is the legacy 4-letter scheme (26^4 space).
	CodeV1 CodeScheme = 1
	// CodeV2 is the 6-letter scheme.
	CodeV2 CodeScheme = 2
)

// v2Charset is the shuffled alphabet used by the 6-letter scheme.
const v2Charset = "QWXRTYLPESDFGHUJKZOCVBINMA"

// v2CharMap maps 'A'..'Z' to its index in v2Charset.
var v2CharMap = [26]int32{
	25, 21, 19, 10, 8, 11, 12, 13, 22, 15, 16, 6, 24,
	23, 18, 7, 0, 3, 9, 4, 14, 20, 1, 2, 5, 17,
}

// CodeFromString parses a 4-letter (V1) or 6-letter (V2) code.
// The literal "LOCAL" parses to CodeLocal.
func CodeFromString(s string) (GameCode, error) {
	s = strings.ToUpper(s)
	if s == "LOCAL" {
		return CodeLocal, nil
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("game code %q: invalid character %q", s, c)
		}
	}
	switch len(s) {
	case 4:
		return GameCode(int32(s[0]) | int32(s[1])<<8 | int32(s[2])<<16 | int32(s[3])<<24), nil
	case 6:
		one := (v2CharMap[s[0]-'A'] + 26*v2CharMap[s[1]-'A']) & 0x3FF
		two := v2CharMap[s[2]-'A'] +
			26*(v2CharMap[s[3]-'A']+
				26*(v2CharMap[s[4]-'A']+
					26*v2CharMap[s[5]-'A']))
		return GameCode(one | ((two << 10) & 0x3FFFFC00) | int32(-0x80000000)), nil
	default:
		return 0, fmt.Errorf("game code %q: must be 4 or 6 letters", s)
	}
}

// String renders the code in its letter form.
func (c GameCode) String() string {
	if c == CodeLocal {
		return "LOCAL"
	}
	if c >= 0 {
		// V1: four ASCII letters packed LE.
		return string([]byte{byte(c), byte(c >> 8), byte(c >> 16), byte(c >> 24)})
	}
	one := int32(c) & 0x3FF
	two := (int32(c) >> 10) & 0xFFFFF
	return string([]byte{
		v2Charset[one%26],
		v2Charset[one/26],
		v2Charset[two%26],
		v2Charset[(two/26)%26],
		v2Charset[(two/(26*26))%26],
		v2Charset[(two/(26*26*26))%26],
	})
}

// Scheme reports which scheme the code belongs to.
func (c GameCode) Scheme() CodeScheme {
	if c < 0 {
		return CodeV2
	}
	return CodeV1
}

// RandomCode draws a fresh code for the given scheme. The reserved CodeLocal
// value is never returned.
func RandomCode(scheme CodeScheme) GameCode {
	for {
		var code GameCode
		switch scheme {
		case CodeV2:
			letters := make([]byte, 6)
			for i := range letters {
				letters[i] = v2Charset[rand.IntN(26)]
			}
			code, _ = CodeFromString(string(letters))
		default:
			letters := make([]byte, 4)
			for i := range letters {
				letters[i] = byte('A' + rand.IntN(26))
			}
			code, _ = CodeFromString(string(letters))
		}
		if code != CodeLocal {
			return code
		}
	}
}
