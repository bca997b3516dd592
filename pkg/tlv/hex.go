package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex builds a byte slice from hex fragments such as "80 B0 00 04", "02", "00 0D".
// It panics on malformed input and is meant for fixtures and constant tables.
func Hex(parts ...string) []byte {
	clean := strings.ReplaceAll(strings.Join(parts, ""), " ", "")

	data, err := hex.DecodeString(clean)
	if err != nil {
		panic(fmt.Sprintf("invalid input '%s': %v", clean, err))
	}
	return data
}

// MakeSafeASCII replaces every non-printable byte with '.'.
func MakeSafeASCII(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			out[i] = b
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}
