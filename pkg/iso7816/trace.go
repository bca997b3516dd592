package iso7816

import (
	"bytes"
	"fmt"
)

// TRANSACTION:
// One Command APDU sent by the terminal followed by one Response APDU.
//
// TRACE:
// The chronological sequence of Transactions behind one logical request. A single
// "read field" may cost several physical exchanges:
// 1. "61 XX": the card holds XX more bytes, fetched with GET RESPONSE.
// 2. "6C XX": the command is re-sent with Le = XX.

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is a sequence of transactions, in the order they were exchanged.
type Trace []Transaction

// Last returns the final transaction of the trace, or nil if empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess checks the final transaction only; intermediate 61XX/6CXX steps
// do not count.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Err returns nil when the final status is 9000 and a *StatusError otherwise.
func (t Trace) Err() error {
	last := t.Last()
	if last == nil || last.Response == nil {
		return fmt.Errorf("empty trace")
	}
	if last.Response.Status.Kind() != StatusNormal {
		return &StatusError{Command: last.Command, Status: last.Response.Status}
	}
	return nil
}

// Data returns the application data of the whole exchange: the payloads of the
// 61XX responses and of the final response, concatenated in order. Payloads of
// 6CXX responses are dropped. The result is never nil.
func (t Trace) Data() []byte {
	var buf bytes.Buffer
	for _, tx := range t {
		if tx.Response == nil {
			continue
		}
		switch tx.Response.Status.Kind() {
		case StatusNormal, StatusMoreData:
			buf.Write(tx.Response.Data)
		}
	}
	return append([]byte{}, buf.Bytes()...)
}
