package pcsc

import (
	"github.com/ebfe/scard"
	"github.com/pkg/errors"
)

// SCardDriver implements Driver with the system PC/SC resource manager
// (pcsc-lite, winscard.dll or the macOS CryptoTokenKit bridge).
type SCardDriver struct {
	ctx  *scard.Context
	card *scard.Card
}

var _ Driver = &SCardDriver{}

// NewSCardDriver establishes a PC/SC context.
func NewSCardDriver() (Driver, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, errors.Wrap(err, "establishing context")
	}
	return &SCardDriver{ctx: ctx}, nil
}

func (d *SCardDriver) ListReaders() ([]string, error) {
	readers, err := d.ctx.ListReaders()
	if err == scard.ErrNoReadersAvailable {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "listing readers")
	}
	return readers, nil
}

func (d *SCardDriver) Connect(reader string, protocols ...Protocol) (Protocol, error) {
	if d.card != nil {
		_ = d.card.Disconnect(scard.LeaveCard)
		d.card = nil
	}

	var want scard.Protocol
	for _, p := range protocols {
		want |= toSCard(p)
	}
	if want == 0 {
		want = scard.ProtocolT0 | scard.ProtocolT1
	}

	card, err := d.ctx.Connect(reader, scard.ShareShared, want)
	if err != nil {
		return ProtocolUnset, errors.Wrapf(err, "connecting to %q", reader)
	}
	d.card = card

	status, err := card.Status()
	if err != nil {
		return ProtocolUnset, errors.Wrap(err, "resolving active protocol")
	}
	return fromSCard(status.ActiveProtocol), nil
}

func (d *SCardDriver) Transmit(cmd []byte) ([]byte, error) {
	if d.card == nil {
		return nil, errors.New("transmit: no card connected")
	}
	resp, err := d.card.Transmit(cmd)
	if err != nil {
		return nil, errors.Wrap(err, "transmit")
	}
	return resp, nil
}

func (d *SCardDriver) ATR() ([]byte, error) {
	if d.card == nil {
		return nil, errors.New("status: no card connected")
	}
	status, err := d.card.Status()
	if err != nil {
		return nil, errors.Wrap(err, "reading card status")
	}
	return status.Atr, nil
}

func (d *SCardDriver) Disconnect() error {
	if d.card == nil {
		return nil
	}
	err := d.card.Disconnect(scard.LeaveCard)
	d.card = nil
	return errors.Wrap(err, "disconnecting card")
}

func (d *SCardDriver) Release() error {
	return errors.Wrap(d.ctx.Release(), "releasing context")
}

func toSCard(p Protocol) scard.Protocol {
	switch p {
	case ProtocolT0:
		return scard.ProtocolT0
	case ProtocolT1:
		return scard.ProtocolT1
	case ProtocolRaw:
		return scard.ProtocolRaw
	default:
		return scard.ProtocolUndefined
	}
}

func fromSCard(p scard.Protocol) Protocol {
	switch p {
	case scard.ProtocolT0:
		return ProtocolT0
	case scard.ProtocolT1:
		return ProtocolT1
	case scard.ProtocolRaw:
		return ProtocolRaw
	default:
		return ProtocolUnset
	}
}
