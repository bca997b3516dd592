package iso7816

import (
	"errors"
	"fmt"

	"github.com/gregLibert/thai-id-card/pkg/bits"
)

// ANSWER TO RESET (ISO 7816-3):
//
//	TS T0 [TA1 TB1 TC1 TD1] [TA2 ...] historical bytes [TCK]
//
// The high nibble of T0 (and of every TDi) flags which of TA/TB/TC/TD follow.
// The low nibble of T0 is the number of historical bytes. The low nibble of
// each TDi names a transmission protocol (0 = T=0, 1 = T=1).

// ErrATRTooShort is returned when fewer than TS and T0 are present.
var ErrATRTooShort = errors.New("ATR too short")

// ATR is a decoded Answer To Reset.
type ATR struct {
	Raw        []byte
	TS         byte
	T0         byte
	Protocols  []int
	Historical []byte
}

// ParseATR decodes raw ATR bytes. Truncated interface or historical bytes are
// tolerated: whatever is present is returned.
func ParseATR(raw []byte) (*ATR, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrATRTooShort, len(raw))
	}

	atr := &ATR{
		Raw: append([]byte(nil), raw...),
		TS:  raw[0],
		T0:  raw[1],
	}

	i := 2
	y := bits.HighNibble(raw[1])
	for {
		// TA, TB, TC are bits 1-3 of Y
		for n := uint(1); n <= 3; n++ {
			if bits.IsSet(y, n) {
				i++
			}
		}
		if !bits.IsSet(y, 4) || i >= len(raw) {
			break
		}
		td := raw[i]
		i++
		atr.Protocols = append(atr.Protocols, int(bits.LowNibble(td)))
		y = bits.HighNibble(td)
	}

	if i < len(raw) {
		end := i + int(bits.LowNibble(raw[1]))
		if end > len(raw) {
			end = len(raw)
		}
		atr.Historical = raw[i:end]
	}

	return atr, nil
}

// Prefix reports whether the ATR starts with the given bytes.
func (a *ATR) Prefix(p ...byte) bool {
	if len(a.Raw) < len(p) {
		return false
	}
	for i, b := range p {
		if a.Raw[i] != b {
			return false
		}
	}
	return true
}

func (a *ATR) String() string {
	return fmt.Sprintf("% X", a.Raw)
}
