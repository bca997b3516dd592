package iso7816

import (
	"fmt"

	"github.com/gregLibert/thai-id-card/pkg/bits"
)

// Class Byte (CLA) Structure according to ISO/IEC 7816-4.
//
// Bit 8: Proprietary (1) or Interindustry (0).
// Bit 7: Type of Interindustry (0=First, 1=Further).
// Bit 5: Command Chaining (0=Last/Only, 1=More follow).
//
// First Interindustry (00xx xxxx): SM on bits 4-3, logical channel on bits 2-1.
// Further Interindustry (01xx xxxx): SM on bit 6, channel-4 on bits 4-1.
//
// The Thai ID applet uses the proprietary class 0x80 for its reads, while SELECT
// and GET RESPONSE stay in the interindustry class 0x00.

// SecureMessaging defines the security level applied to the APDU.
type SecureMessaging int

const (
	SMNone         SecureMessaging = 0
	SMProprietary  SecureMessaging = 1
	SMHeaderNoProc SecureMessaging = 2
	SMHeaderAuth   SecureMessaging = 3
)

// Class represents the parsed CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8 // 0-19
}

// NewClass decodes a raw CLA byte.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}

	c := Class{Raw: cla}

	if bits.IsSet(cla, 8) {
		c.IsProprietary = true
		return c, nil
	}

	c.IsChained = bits.IsSet(cla, 5)

	if !bits.IsSet(cla, 7) {
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	} else {
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = bits.LowNibble(cla) + 4
	}

	return c, nil
}

// MustClass is NewClass for constant inputs; it panics on 0xFF.
func MustClass(cla byte) Class {
	c, err := NewClass(cla)
	if err != nil {
		panic(err)
	}
	return c
}

// Encode converts the Class back to its byte representation. A Class that
// still matches its Raw byte encodes to Raw, so bits NewClass does not model
// survive.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if decoded, err := NewClass(c.Raw); err == nil && decoded == *c {
		return c.Raw, nil
	}
	if c.Channel > 19 {
		return 0, fmt.Errorf("channel %d out of range (max 19)", c.Channel)
	}

	var res byte

	if c.Channel <= 3 {
		if c.IsChained {
			res = bits.Set(res, 5)
		}
		res |= byte(c.SecureMessaging) << 2
		res |= c.Channel
		return res, nil
	}

	res = bits.Set(res, 7)
	if c.IsChained {
		res = bits.Set(res, 5)
	}
	if c.SecureMessaging != SMNone {
		res = bits.Set(res, 6)
	}
	res |= c.Channel - 4

	return res, nil
}
