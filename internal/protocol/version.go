package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ClientVersion is the packed client build version carried by Hello.
// Encoding: year*25000 + month*1800 + day*50 + revision.
type ClientVersion int32

// EncodeVersion packs a client version.
func EncodeVersion(year, month, day, revision int) ClientVersion {
	return ClientVersion(year*25000 + month*1800 + day*50 + revision)
}

// Parts unpacks the version fields.
func (v ClientVersion) Parts() (year, month, day, revision int) {
	n := int(v)
	year = n / 25000
	n %= 25000
	month = n / 1800
	n %= 1800
	day = n / 50
	revision = n % 50
	return
}

// String renders "year.month.day" (revision omitted, matching the form
// used in configuration).
func (v ClientVersion) String() string {
	year, month, day, _ := v.Parts()
	return fmt.Sprintf("%d.%d.%d", year, month, day)
}

// ParseVersionString parses "2021.6.30" into a ClientVersion with zero
// revision.
func ParseVersionString(s string) (ClientVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("version %q: want year.month.day", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("version %q: %w", s, err)
		}
		nums[i] = n
	}
	return EncodeVersion(nums[0], nums[1], nums[2], 0), nil
}

// MatchesBuild reports whether v names the same build date as other,
// ignoring the revision.
func (v ClientVersion) MatchesBuild(other ClientVersion) bool {
	y1, m1, d1, _ := v.Parts()
	y2, m2, d2, _ := other.Parts()
	return y1 == y2 && m1 == m2 && d1 == d2
}
