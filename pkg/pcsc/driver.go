// Package pcsc is the hardware boundary: a narrow Driver interface over a PC/SC
// stack, and its implementation on top of github.com/ebfe/scard.
package pcsc

import "fmt"

// Protocol is the transmission protocol negotiated with the card.
type Protocol int

const (
	ProtocolUnset Protocol = iota
	ProtocolT0
	ProtocolT1
	ProtocolRaw
)

// ProtocolContact asks for either common contact protocol.
var ProtocolContact = []Protocol{ProtocolT0, ProtocolT1}

func (p Protocol) String() string {
	switch p {
	case ProtocolUnset:
		return "unset"
	case ProtocolT0:
		return "T=0"
	case ProtocolT1:
		return "T=1"
	case ProtocolRaw:
		return "raw"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// Driver is what the session needs from a PC/SC stack. One Driver owns one
// resource-manager context and at most one connected card.
type Driver interface {
	// ListReaders returns the reader names. No reader is an empty list, not an error.
	ListReaders() ([]string, error)
	// Connect opens the reader in shared mode with the requested protocols and
	// returns the one the card negotiated.
	Connect(reader string, protocols ...Protocol) (Protocol, error)
	// Transmit sends one raw command APDU and returns the raw response.
	Transmit(cmd []byte) ([]byte, error)
	// ATR queries the card status and returns its Answer To Reset.
	ATR() ([]byte, error)
	// Disconnect leaves the card powered.
	Disconnect() error
	// Release frees the context.
	Release() error
}
