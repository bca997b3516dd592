package iso7816

import (
	"fmt"

	"github.com/gregLibert/thai-id-card/pkg/bits"
)

// CLIENT & PROTOCOL LOGIC:
// The Client drives one logical request to completion over a raw transport and
// handles the two ISO 7816-3 behaviors that T=0 leaks to the application layer:
//
// 1. "61 XX" (Response Available):
//    XX bytes are waiting (00 = 256). The client sends GET RESPONSE with Le = XX
//    and keeps following the chain the GET RESPONSE itself may start.
//
// 2. "6C XX" (Wrong Length):
//    The card wants Le = XX. The client re-sends the same CLA/INS/P1/P2 without
//    payload and with Le = XX.
//
// Any other status ends the exchange. Send() returns the Trace of every atomic
// exchange; Transmit() turns it into application data or an error.

// MaxChainDepth bounds the number of follow-up commands for one request.
const MaxChainDepth = 8

// Transmitter abstracts the physical card connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client manages the high-level communication with the card.
type Client struct {
	Card Transmitter

	// GetResponse builds the command sent on 61XX. Nil means GetResponse (00 C0 00 00).
	GetResponse func(ne int) *CommandAPDU

	// Observe, when set, is called after every physical exchange.
	Observe func(Transaction)
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// Send transmits a command and resolves 61XX / 6CXX chaining.
// On error the returned Trace holds the exchanges completed so far.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	return c.send(cmd, nil, 0)
}

// send transmits rawCmd when set, cmd encoded otherwise. cmd always describes
// the exchange and is the template of the 6CXX retry.
func (c *Client) send(cmd *CommandAPDU, rawCmd []byte, depth int) (Trace, error) {
	if depth > MaxChainDepth {
		return nil, fmt.Errorf("%w: more than %d follow-up commands", ErrChainTooLong, MaxChainDepth)
	}

	if rawCmd == nil {
		var err error
		if rawCmd, err = cmd.Bytes(); err != nil {
			return nil, fmt.Errorf("encoding error: %w", err)
		}
	}

	rawResp, err := c.Card.Transmit(rawCmd)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return nil, err
	}

	tx := Transaction{Command: cmd, Response: resp}
	if c.Observe != nil {
		c.Observe(tx)
	}
	trace := Trace{tx}

	var next *CommandAPDU
	switch resp.Status.Kind() {
	case StatusMoreData:
		next = c.getResponse(resp.Status.Length())
	case StatusWrongLength:
		// Clone so the caller's command keeps its original Le.
		retry := *cmd
		retry.Data = nil
		retry.Ne = resp.Status.Length()
		next = &retry
	default:
		return trace, nil
	}

	subTrace, err := c.send(next, nil, depth+1)
	trace = append(trace, subTrace...)
	return trace, err
}

func (c *Client) getResponse(ne int) *CommandAPDU {
	if c.GetResponse != nil {
		return c.GetResponse(ne)
	}
	return GetResponse(ne)
}

// Transmit sends raw command bytes unchanged and returns the application data,
// without status bytes, once the card answers 9000. Any other final status is
// returned as a *StatusError.
//
// Only the header must be well formed. A body outside ISO cases 1 to 4 is left
// for the card to judge.
func (c *Client) Transmit(raw []byte) ([]byte, error) {
	cmd, err := ParseCommandAPDU(raw)
	if err != nil {
		if cmd, err = parseHeader(raw); err != nil {
			return nil, fmt.Errorf("invalid command: %w", err)
		}
	}

	trace, err := c.send(cmd, append([]byte(nil), raw...), 0)
	if err != nil {
		return nil, err
	}
	if err := trace.Err(); err != nil {
		return nil, err
	}
	return trace.Data(), nil
}

// parseHeader keeps CLA INS P1 P2 of a command whose body does not parse or
// whose INS is outside the interindustry rules.
func parseHeader(raw []byte) (*CommandAPDU, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("command too short: length %d", len(raw))
	}
	cla, err := NewClass(raw[0])
	if err != nil {
		return nil, err
	}
	ins := Instruction{Raw: InsCode(raw[1]), IsBERTLV: bits.IsSet(raw[1], 1)}
	return NewCommandAPDU(cla, ins, raw[2], raw[3], nil, 0), nil
}
