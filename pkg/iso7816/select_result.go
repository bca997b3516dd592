package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/thai-id-card/pkg/tlv"
)

// SELECT RESULT ANALYSIS:
// A wrapper over the trace of a SELECT that gives the selection outcome and a
// human-readable report, including a BER-TLV dump of the FCI when the applet
// returns one.

// SelectResult represents the outcome of a SELECT command execution.
type SelectResult struct {
	Trace
}

// NewSelectResult validates that the trace starts with a SELECT (INS A4).
func NewSelectResult(t Trace) (*SelectResult, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("cannot create result from empty trace")
	}

	if t[0].Command.Instruction.Raw != INS_SELECT {
		return nil, fmt.Errorf("trace must start with SELECT command (got %02X)", byte(t[0].Command.Instruction.Raw))
	}

	return &SelectResult{Trace: t}, nil
}

// Selected reports whether the card accepted the selection. The first status
// decides: 9000 or 61XX.
func (r *SelectResult) Selected() bool {
	tx := r.Trace[0]
	return tx.IsSuccess()
}

// FCI returns the File Control Information bytes collected over the exchange.
func (r *SelectResult) FCI() []byte {
	return r.Data()
}

// Describe generates an ASCII report of the selection.
func (r *SelectResult) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== SELECT COMMAND REPORT ===\n")

	tx0 := r.Trace[0]
	cmd := tx0.Command

	sb.WriteString("[1] Command: SELECT FILE (Initial Request)\n")
	sb.WriteString(fmt.Sprintf("    + Method:  %02X -> %s\n", cmd.P1, SelectionMethod(cmd.P1)))
	if len(cmd.Data) > 0 {
		sb.WriteString(fmt.Sprintf("    + Data:    %X (%q)\n", cmd.Data, tlv.MakeSafeASCII(cmd.Data)))
	}
	sb.WriteString(fmt.Sprintf("    + Result:  %s\n", describeStatus(tx0.Response.Status)))

	if len(r.Trace) > 1 {
		sb.WriteString(fmt.Sprintf("[2] Protocol: Auto-handling (%d steps)\n", len(r.Trace)))
		for _, tx := range r.Trace[1:] {
			sb.WriteString(fmt.Sprintf("    + %s -> %s\n", tx.Command.Instruction.Raw, describeStatus(tx.Response.Status)))
		}
	}

	sb.WriteString("[=] FINAL OUTCOME:\n")

	if !r.Selected() {
		sb.WriteString("    - Selection refused.")
		return sb.String()
	}

	fci := r.FCI()
	if len(fci) == 0 {
		sb.WriteString("    - Selected, no FCI returned.")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("    - FCI:     %X\n", fci))
	lines, err := tlv.Dump(fci)
	if err != nil {
		sb.WriteString(fmt.Sprintf("    - FCI is not BER-TLV: %v", err))
		return sb.String()
	}
	sb.WriteString(strings.Join(lines, "\n"))

	return sb.String()
}

func describeStatus(sw StatusWord) string {
	var mark string
	switch {
	case sw.IsSuccess():
		mark = "[OK]"
	case sw.IsWarning():
		mark = "[~~]"
	case sw.IsError():
		mark = "[!!]"
	default:
		mark = "[??]"
	}
	return fmt.Sprintf("[%02X %02X] %s %s", sw.SW1(), sw.SW2(), mark, sw.Verbose())
}
