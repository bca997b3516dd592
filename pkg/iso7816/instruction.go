package iso7816

import (
	"fmt"

	"github.com/gregLibert/thai-id-card/pkg/bits"
)

// Instruction Byte (INS) according to ISO/IEC 7816-4.
//
// Bit 1 of an interindustry INS selects BER-TLV formatted data (e.g. B0 vs B1).
// INS values with a '6' or '9' upper nibble are reserved for SW1 and the T=0
// procedure bytes and can never be sent.

// InsCode is a typed representation of the instruction byte.
type InsCode byte

// Instruction codes used by this package and the Thai ID applet.
const (
	INS_SELECT          InsCode = 0xA4
	INS_READ_BINARY     InsCode = 0xB0
	INS_READ_BINARY_BER InsCode = 0xB1
	INS_GET_RESPONSE    InsCode = 0xC0
)

var insNames = map[InsCode]string{
	INS_SELECT:          "SELECT",
	INS_READ_BINARY:     "READ BINARY",
	INS_READ_BINARY_BER: "READ BINARY (BER-TLV)",
	INS_GET_RESPONSE:    "GET RESPONSE",
}

func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(0x%02X)", byte(i))
}

// Instruction represents the parsed INS byte.
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction validates ins and rejects the reserved '6X' and '9X' values.
func NewInstruction(ins InsCode) (Instruction, error) {
	high := bits.HighNibble(byte(ins))
	if high == 0x6 || high == 0x9 {
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(ins))
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1),
	}, nil
}

// MustInstruction is NewInstruction for constant inputs.
func MustInstruction(ins InsCode) Instruction {
	i, err := NewInstruction(ins)
	if err != nil {
		panic(err)
	}
	return i
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw, format)
}
