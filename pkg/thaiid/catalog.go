package thaiid

import (
	"fmt"

	"github.com/gregLibert/thai-id-card/pkg/iso7816"
)

// The Ministry of Interior applet exposes its data as one flat binary file read
// with the proprietary command
//
//	80 B0 <offset hi> <offset lo> 02 <length hi> <length lo>
//
// The card answers 61 <length> and the data comes back through GET RESPONSE.

// Variant identifies one of the two known card command sets.
type Variant int

const (
	Type02 Variant = iota // default
	Type01                // ATR starts with 3B 67
)

func (v Variant) String() string {
	switch v {
	case Type01:
		return "type01"
	case Type02:
		return "type02"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// PhotoBlocks is the number of READ BINARY commands holding the JPEG.
const PhotoBlocks = 20

const (
	photoOffset    = 0x017B
	photoBlockSize = 0xFF
)

// CommandSet provides the byte-exact commands for one card variant. Returned
// slices are copies; templates are never mutated.
type CommandSet interface {
	Variant() Variant
	MinistryOfInteriorAID() []byte
	CitizenID() []byte
	PersonalInfo() []byte
	Address() []byte
	CardIssueExpire() []byte
	CardIssuer() []byte
	LaserID() []byte
	Photo() [][]byte
	// GetResponse builds the follow-up used on 61XX.
	GetResponse(ne int) *iso7816.CommandAPDU
}

var (
	moiAID = []byte{0xA0, 0x00, 0x00, 0x00, 0x54, 0x48, 0x00, 0x01}

	citizenIDCmd       = iso7816.ReadBinary(0x0004, 0x0D)
	personalInfoCmd    = iso7816.ReadBinary(0x0011, 0xD1)
	addressCmd         = iso7816.ReadBinary(0x1579, 0x64)
	cardIssueExpireCmd = iso7816.ReadBinary(0x0167, 0x12)
	cardIssuerCmd      = iso7816.ReadBinary(0x00F6, 0x64)
	laserIDCmd         = iso7816.ReadBinary(0x001D, 0x0D)
	photoCmds          = photoCommands()
)

func photoCommands() [][]byte {
	cmds := make([][]byte, PhotoBlocks)
	for i := range cmds {
		cmds[i] = iso7816.ReadBinary(uint16(photoOffset+i*photoBlockSize), photoBlockSize)
	}
	return cmds
}

type commandSet struct {
	variant       Variant
	getResponseP2 byte
}

var commandSets = map[Variant]commandSet{
	Type01: {variant: Type01, getResponseP2: 0x01},
	Type02: {variant: Type02, getResponseP2: 0x00},
}

// CommandSetFor returns the command set of v. Unknown variants get Type02.
func CommandSetFor(v Variant) CommandSet {
	if cs, ok := commandSets[v]; ok {
		return cs
	}
	return commandSets[Type02]
}

// VariantForATR picks the command set from the first two ATR bytes.
func VariantForATR(atr *iso7816.ATR) Variant {
	if atr != nil && atr.Prefix(0x3B, 0x67) {
		return Type01
	}
	return Type02
}

func (c commandSet) Variant() Variant { return c.variant }

func (c commandSet) MinistryOfInteriorAID() []byte { return clone(moiAID) }
func (c commandSet) CitizenID() []byte { return clone(citizenIDCmd) }
func (c commandSet) PersonalInfo() []byte { return clone(personalInfoCmd) }
func (c commandSet) Address() []byte { return clone(addressCmd) }
func (c commandSet) CardIssueExpire() []byte { return clone(cardIssueExpireCmd) }
func (c commandSet) CardIssuer() []byte { return clone(cardIssuerCmd) }
func (c commandSet) LaserID() []byte { return clone(laserIDCmd) }

func (c commandSet) Photo() [][]byte {
	out := make([][]byte, len(photoCmds))
	for i, cmd := range photoCmds {
		out[i] = clone(cmd)
	}
	return out
}

func (c commandSet) GetResponse(ne int) *iso7816.CommandAPDU {
	return iso7816.NewGetResponseCommand(iso7816.MustClass(0x00), c.getResponseP2, ne)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
