package iso7816

import (
	"fmt"
)

// SELECT COMMAND LOGIC (ISO 7816-4):
// The SELECT command (INS 'A4') opens a file or an application.
//
// P1 (Selection Method): how the target is addressed (file ID or DF name/AID).
// P2 (Selection Control): bits 4-3 response type, bits 2-1 occurrence.

// SelectionMethod defines how the file is targeted (P1).
type SelectionMethod byte

const (
	SelectByFileID   SelectionMethod = 0x00
	SelectByDFName   SelectionMethod = 0x04 // Select by AID
)

func (s SelectionMethod) String() string {
	switch s {
	case SelectByFileID:
		return "Select by File ID"
	case SelectByDFName:
		return "Select by DF Name (AID)"
	default:
		return fmt.Sprintf("Unknown Method (0x%02X)", byte(s))
	}
}

// NewSelectCommand creates a SELECT command with first-occurrence / return-FCI
// control (P2 = 00).
//
// T=0 cannot carry Lc and Le together, so a SELECT with data never sets Le;
// the card answers '61 XX' and the Client fetches the FCI with GET RESPONSE.
func NewSelectCommand(cla Class, method SelectionMethod, data []byte) *CommandAPDU {
	ne := 0
	if len(data) == 0 {
		ne = MaxShortLe
	}
	return NewCommandAPDU(cla, MustInstruction(INS_SELECT), byte(method), 0x00, data, ne)
}

// SelectByAID builds 00 A4 04 00 Lc AID.
func SelectByAID(aid []byte) *CommandAPDU {
	return NewSelectCommand(MustClass(0x00), SelectByDFName, aid)
}

// NewGetResponseCommand builds GET RESPONSE with an explicit class and P2.
// Some card families expect a non-zero P2 here.
func NewGetResponseCommand(cla Class, p2 byte, ne int) *CommandAPDU {
	return NewCommandAPDU(cla, MustInstruction(INS_GET_RESPONSE), 0x00, p2, nil, ne)
}

// GetResponse builds the standard 00 C0 00 00 Le.
func GetResponse(ne int) *CommandAPDU {
	return NewGetResponseCommand(MustClass(0x00), 0x00, ne)
}
