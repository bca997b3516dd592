package iso7816

import (
	"errors"
	"fmt"
)

// ErrChainTooLong is returned when a card keeps answering 61XX/6CXX past
// MaxChainDepth follow-up commands.
var ErrChainTooLong = errors.New("response chaining too long")

// StatusError reports a terminal status word other than 9000.
type StatusError struct {
	Command *CommandAPDU
	Status  StatusWord
}

func (e *StatusError) Error() string {
	if e.Command == nil {
		return fmt.Sprintf("card returned %s", e.Status.Verbose())
	}
	return fmt.Sprintf("%s (P1 %02X P2 %02X): card returned %s",
		e.Command.Instruction.Raw, e.Command.P1, e.Command.P2, e.Status.Verbose())
}

// IsStatus reports whether err carries the given status word.
func IsStatus(err error, sw StatusWord) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == sw
	}
	return false
}
