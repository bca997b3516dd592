package iso7816

import (
	"fmt"

	"github.com/gregLibert/thai-id-card/pkg/bits"
)

// Dynamic Status Word Logic:
//
// Most Status Words are static 2-byte values (e.g. 0x9000) but some ranges carry
// information in SW2:
//
// 1. '61XX': Process completed, XX bytes available through GET RESPONSE (00 = 256).
// 2. '6CXX': Wrong Le, XX is the exact length to ask for (00 = 256).
// 3. '62XX'/'64XX' with XX in [0x02, 0x80]: triggering by the card.
// 4. '63CX': counter X (e.g. remaining PIN retries).

// StatusWord represents the two-byte status (SW1-SW2) trailing every response.
type StatusWord uint16

// NewStatusWord creates a StatusWord from its two bytes.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

// SW1 returns the high byte.
func (sw StatusWord) SW1() byte {
	return byte(sw >> 8)
}

// SW2 returns the low byte.
func (sw StatusWord) SW2() byte {
	return byte(sw)
}

// StatusKind is the classification the Client uses to drive chaining.
type StatusKind int

const (
	StatusNormal StatusKind = iota
	StatusMoreData
	StatusWrongLength
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusNormal:
		return "Normal"
	case StatusMoreData:
		return "MoreDataAvailable"
	case StatusWrongLength:
		return "WrongLength"
	default:
		return "Error"
	}
}

// Kind classifies the status word. Only 9000 is Normal.
func (sw StatusWord) Kind() StatusKind {
	switch {
	case sw == SW_NO_ERROR:
		return StatusNormal
	case sw.SW1() == 0x61:
		return StatusMoreData
	case sw.SW1() == 0x6C:
		return StatusWrongLength
	default:
		return StatusError
	}
}

// Length returns the byte count carried by a 61XX or 6CXX status, mapping 00 to 256.
// It returns 0 for any other status.
func (sw StatusWord) Length() int {
	switch sw.Kind() {
	case StatusMoreData, StatusWrongLength:
		if sw.SW2() == 0 {
			return MaxShortLe
		}
		return int(sw.SW2())
	default:
		return 0
	}
}

// IsTriggeringByCard checks for a '62XX'/'64XX' triggering status.
func (sw StatusWord) IsTriggeringByCard() bool {
	sw2 := sw.SW2()
	if sw2 < 0x02 || sw2 > 0x80 {
		return false
	}
	return sw.SW1() == 0x62 || sw.SW1() == 0x64
}

// IsCounter checks for a '63CX' counter status.
func (sw StatusWord) IsCounter() bool {
	return sw.SW1() == 0x63 && bits.HighNibble(sw.SW2()) == 0x0C
}

// IsSuccess returns true for 9000 and for 61XX (data waiting).
func (sw StatusWord) IsSuccess() bool {
	return sw == SW_NO_ERROR || sw.SW1() == 0x61
}

// IsWarning returns true for 62XX and 63XX.
func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

// IsError returns true for execution and checking errors (64XX to 6FXX).
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F
}

func (sw StatusWord) String() string {
	if name, ok := statusNames[sw]; ok {
		return name
	}
	return fmt.Sprintf("StatusWord(0x%04X)", uint16(sw))
}

// Verbose returns a human-readable description of the status word.
func (sw StatusWord) Verbose() string {
	sw1 := sw.SW1()
	sw2 := sw.SW2()

	switch {
	case sw.IsTriggeringByCard():
		action := "Warning (Triggering)"
		if sw1 == 0x64 {
			action = "Error/Abort (Triggering)"
		}
		return fmt.Sprintf("%s: Card expects query of %d bytes", action, sw2)
	case sw.IsCounter():
		return fmt.Sprintf("Warning: State changed, counter = %d", bits.LowNibble(sw2))
	case sw1 == 0x61:
		return fmt.Sprintf("Process completed, %d bytes available", sw.Length())
	case sw1 == 0x6C:
		return fmt.Sprintf("Wrong length, correct Le is %d", sw.Length())
	}

	if name, ok := statusNames[sw]; ok {
		return fmt.Sprintf("[%04X] %s", uint16(sw), name)
	}
	return fmt.Sprintf("[%04X] %s", uint16(sw), sw.genericCategoryDescription())
}

func (sw StatusWord) genericCategoryDescription() string {
	switch sw.SW1() {
	case 0x62:
		return "Warning: NV memory unchanged"
	case 0x63:
		return "Warning: NV memory changed"
	case 0x64:
		return "Execution Error: NV memory unchanged"
	case 0x65:
		return "Execution Error: NV memory changed"
	case 0x66:
		return "Execution Error: Security issue"
	case 0x68:
		return "Checking Error: Function not supported"
	case 0x69:
		return "Checking Error: Command not allowed"
	case 0x6A:
		return "Checking Error: Wrong parameters"
	default:
		return "Unknown Status"
	}
}

// Status Word codes from ISO/IEC 7816-4 that the Thai ID applet is known to return.
const (
	SW_NO_ERROR StatusWord = 0x9000

	SW_WARN_NO_INFO     StatusWord = 0x6200
	SW_WARN_EOF_REACHED StatusWord = 0x6282

	SW_ERR_WRONG_LENGTH            StatusWord = 0x6700
	SW_ERR_SECURITY_STATUS_NOT_SAT StatusWord = 0x6982
	SW_ERR_COND_OF_USE_NOT_SAT     StatusWord = 0x6985
	SW_ERR_CMD_NOT_ALLOWED_NO_EF   StatusWord = 0x6986
	SW_ERR_FUNC_NOT_SUPPORTED      StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND          StatusWord = 0x6A82
	SW_ERR_INCORRECT_PARAMS_P1P2   StatusWord = 0x6A86
	SW_ERR_WRONG_P1P2              StatusWord = 0x6B00
	SW_ERR_INS_INVALID             StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED       StatusWord = 0x6E00
	SW_ERR_UNKNOWN                 StatusWord = 0x6F00
)

var statusNames = map[StatusWord]string{
	SW_NO_ERROR:                    "SW_NO_ERROR",
	SW_WARN_NO_INFO:                "SW_WARN_NO_INFO",
	SW_WARN_EOF_REACHED:            "SW_WARN_EOF_REACHED",
	SW_ERR_WRONG_LENGTH:            "SW_ERR_WRONG_LENGTH",
	SW_ERR_SECURITY_STATUS_NOT_SAT: "SW_ERR_SECURITY_STATUS_NOT_SAT",
	SW_ERR_COND_OF_USE_NOT_SAT:     "SW_ERR_COND_OF_USE_NOT_SAT",
	SW_ERR_CMD_NOT_ALLOWED_NO_EF:   "SW_ERR_CMD_NOT_ALLOWED_NO_EF",
	SW_ERR_FUNC_NOT_SUPPORTED:      "SW_ERR_FUNC_NOT_SUPPORTED",
	SW_ERR_FILE_NOT_FOUND:          "SW_ERR_FILE_NOT_FOUND",
	SW_ERR_INCORRECT_PARAMS_P1P2:   "SW_ERR_INCORRECT_PARAMS_P1P2",
	SW_ERR_WRONG_P1P2:              "SW_ERR_WRONG_P1P2",
	SW_ERR_INS_INVALID:             "SW_ERR_INS_INVALID",
	SW_ERR_CLA_NOT_SUPPORTED:       "SW_ERR_CLA_NOT_SUPPORTED",
	SW_ERR_UNKNOWN:                 "SW_ERR_UNKNOWN",
}
