package iso7816

import (
	"bytes"
	"fmt"
)

// APDU structures and encodings according to ISO/IEC 7816-3 and 7816-4.
//
// COMMAND APDU: Header CLA INS P1 P2, then an optional body [Lc Data] [Le].
//
//   - Case 1: Header only.
//   - Case 2: Header + Le.
//   - Case 3: Header + Lc + Data.
//   - Case 4: Header + Lc + Data + Le.
//
// Short length encodes Lc/Le on one byte (Le 00 = 256). Extended length is used
// when Lc > 255 or Le > 256.
//
// RESPONSE APDU: optional Data followed by SW1 SW2.

// APDU limits according to ISO 7816-3.
const (
	HeaderSize = 4

	MaxShortLc    = 255
	MaxShortLe    = 256
	MaxExtendedLc = 65535
	MaxExtendedLe = 65536
)

// CommandAPDU represents a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length (0 means none)
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// BuildCommand assembles raw command bytes from header bytes, an optional payload
// and an optional expected length (ne == 0 omits Le, ne == 256 encodes as 00).
func BuildCommand(cla, ins, p1, p2 byte, data []byte, ne int) ([]byte, error) {
	class, err := NewClass(cla)
	if err != nil {
		return nil, err
	}
	instruction, err := NewInstruction(InsCode(ins))
	if err != nil {
		return nil, err
	}
	return NewCommandAPDU(class, instruction, p1, p2, data, ne).Bytes()
}

// Bytes encodes the command, choosing Short or Extended length from Data and Ne.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc := len(c.Data)
	ne := c.Ne

	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("data too long: %d bytes", nc)
	}
	if ne < 0 || ne > MaxExtendedLe {
		return nil, fmt.Errorf("invalid Ne: %d", ne)
	}

	buf := new(bytes.Buffer)

	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}
	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	isExtended := nc > MaxShortLc || ne > MaxShortLe

	if nc > 0 {
		if !isExtended {
			buf.WriteByte(byte(nc))
		} else {
			buf.WriteByte(0x00)
			buf.WriteByte(byte(nc >> 8))
			buf.WriteByte(byte(nc))
		}
		buf.Write(c.Data)
	}

	if ne > 0 {
		if !isExtended {
			// 256 wraps to 00
			buf.WriteByte(byte(ne))
		} else {
			if nc == 0 {
				buf.WriteByte(0x00)
			}
			// 65536 wraps to 00 00
			buf.WriteByte(byte(ne >> 8))
			buf.WriteByte(byte(ne))
		}
	}

	return buf.Bytes(), nil
}

// ParseCommandAPDU decodes raw command bytes (cases 1 to 4, short or extended).
func ParseCommandAPDU(raw []byte) (*CommandAPDU, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("command too short: length %d", len(raw))
	}

	cla, err := NewClass(raw[0])
	if err != nil {
		return nil, err
	}
	ins, err := NewInstruction(InsCode(raw[1]))
	if err != nil {
		return nil, err
	}

	cmd := NewCommandAPDU(cla, ins, raw[2], raw[3], nil, 0)
	body := raw[HeaderSize:]

	switch {
	case len(body) == 0:
		return cmd, nil

	case len(body) == 1:
		cmd.Ne = decodeLe(body, MaxShortLe)
		return cmd, nil

	case body[0] != 0x00:
		lc := int(body[0])
		switch len(body) {
		case 1 + lc:
		case 2 + lc:
			cmd.Ne = decodeLe(body[1+lc:], MaxShortLe)
		default:
			return nil, fmt.Errorf("body length %d inconsistent with Lc %d", len(body), lc)
		}
		cmd.Data = append([]byte(nil), body[1:1+lc]...)
		return cmd, nil

	case len(body) == 3:
		cmd.Ne = decodeLe(body[1:], MaxExtendedLe)
		return cmd, nil

	case len(body) > 3:
		lc := int(body[1])<<8 | int(body[2])
		switch len(body) {
		case 3 + lc:
		case 5 + lc:
			cmd.Ne = decodeLe(body[3+lc:], MaxExtendedLe)
		default:
			return nil, fmt.Errorf("body length %d inconsistent with extended Lc %d", len(body), lc)
		}
		cmd.Data = append([]byte(nil), body[3:3+lc]...)
		return cmd, nil
	}

	return nil, fmt.Errorf("malformed command body: % X", body)
}

// decodeLe reads a 1 or 2 byte Le where all-zero means max.
func decodeLe(b []byte, max int) int {
	v := 0
	for _, x := range b {
		v = v<<8 | int(x)
	}
	if v == 0 {
		return max
	}
	return v
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU represents the reply from the card.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw bytes into data and the trailing status word.
// The data portion is never nil.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	indexSW1 := len(raw) - 2

	return &ResponseAPDU{
		Data:   append([]byte{}, raw[:indexSW1]...),
		Status: NewStatusWord(raw[indexSW1], raw[indexSW1+1]),
	}, nil
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
