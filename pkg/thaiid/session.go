package thaiid

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gregLibert/thai-id-card/pkg/iso7816"
	"github.com/gregLibert/thai-id-card/pkg/pcsc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// SESSION LIFECYCLE:
//
//	Unopened -> Connected -> AppletSelected -> Closed
//
// A Session owns one PC/SC context and the card connection of the first
// reader. It is not safe for concurrent use; two reads against the same
// reader must be serialized by the caller.

// State is the lifecycle position of a Session.
type State int

const (
	StateUnopened State = iota
	StateConnected
	StateAppletSelected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateConnected:
		return "connected"
	case StateAppletSelected:
		return "applet selected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is one open connection to a Thai ID card.
type Session struct {
	driver pcsc.Driver
	client *iso7816.Client
	log    logrus.FieldLogger

	settle  time.Duration
	sleep   func(time.Duration)
	laserID bool

	state    State
	reader   string
	protocol pcsc.Protocol
	atr      *iso7816.ATR
	selected *iso7816.SelectResult

	commands      CommandSet
	fixedCommands bool // injected sets win over ATR detection
}

func newSession(driver pcsc.Driver, o options) *Session {
	s := &Session{
		driver:   driver,
		client:   iso7816.NewClient(driver),
		log:      o.log,
		settle:   o.settle,
		sleep:    o.sleep,
		laserID:  o.laserID,
		commands: CommandSetFor(Type02),
	}
	if o.commands != nil {
		s.commands = o.commands
		s.fixedCommands = true
	}
	s.client.GetResponse = func(ne int) *iso7816.CommandAPDU {
		return s.commands.GetResponse(ne)
	}
	s.client.Observe = s.observe
	return s
}

func (s *Session) observe(tx iso7816.Transaction) {
	s.log.WithFields(logrus.Fields{
		"cmd": tx.Command.String(),
		"sw":  fmt.Sprintf("%02X %02X", tx.Response.Status.SW1(), tx.Response.Status.SW2()),
		"len": len(tx.Response.Data),
	}).Debug("apdu")
}

// open waits for the reader to settle and connects to the first reader.
func (s *Session) open() error {
	if s.settle > 0 {
		s.sleep(s.settle)
	}
	return s.connect()
}

func (s *Session) connect() error {
	readers, err := s.driver.ListReaders()
	if err != nil {
		return errors.Wrap(err, "listing readers")
	}
	if len(readers) == 0 {
		return ErrNoReaders
	}
	s.reader = readers[0]

	protocol, err := s.driver.Connect(s.reader, pcsc.ProtocolContact...)
	if err != nil {
		return errors.Wrapf(err, "connecting to %q", s.reader)
	}
	switch protocol {
	case pcsc.ProtocolT0, pcsc.ProtocolT1, pcsc.ProtocolRaw:
	default:
		return errors.Wrapf(ErrProtocolMismatch, "reader %q negotiated %s", s.reader, protocol)
	}
	s.protocol = protocol

	raw, err := s.driver.ATR()
	if err != nil {
		return errors.Wrap(err, "reading ATR")
	}
	atr, err := iso7816.ParseATR(raw)
	if err != nil {
		return errors.Wrapf(ErrInvalidATR, "% X", raw)
	}
	s.atr = atr
	if !s.fixedCommands {
		s.commands = CommandSetFor(VariantForATR(atr))
	}

	if s.state == StateUnopened {
		s.state = StateConnected
	}
	s.log.WithFields(logrus.Fields{
		"reader":   s.reader,
		"protocol": s.protocol,
		"atr":      atr.String(),
		"variant":  s.commands.Variant(),
	}).Info("card connected")
	return nil
}

// EnsureConnected reconnects when the protocol handle is unset. The applet
// selection is not repeated.
func (s *Session) EnsureConnected() error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if s.protocol != pcsc.ProtocolUnset {
		return nil
	}
	return s.connect()
}

// Invalidate forgets the negotiated protocol so the next transmit reconnects.
// Callers use it after a reader reset.
func (s *Session) Invalidate() {
	s.protocol = pcsc.ProtocolUnset
}

// Transmit sends a raw command and returns its data once the card answers 9000,
// following 61XX and 6CXX chaining.
func (s *Session) Transmit(cmd []byte) ([]byte, error) {
	if err := s.EnsureConnected(); err != nil {
		return nil, err
	}
	return s.client.Transmit(cmd)
}

// SelectAID selects an application and returns the full SELECT exchange.
// A refused selection is not an error here; check Selected.
func (s *Session) SelectAID(aid []byte) (*iso7816.SelectResult, error) {
	if err := s.EnsureConnected(); err != nil {
		return nil, err
	}
	trace, err := s.client.Send(iso7816.SelectByAID(aid))
	if err != nil {
		return nil, errors.Wrapf(err, "selecting % X", aid)
	}
	return iso7816.NewSelectResult(trace)
}

// SelectApplet selects the Ministry of Interior applet of the active command set.
func (s *Session) SelectApplet() (*iso7816.SelectResult, error) {
	aid := s.commands.MinistryOfInteriorAID()
	res, err := s.SelectAID(aid)
	if err != nil {
		return nil, err
	}
	if !res.Selected() {
		sw := res.Trace[0].Response.Status
		return res, errors.Wrapf(ErrCardNotSupported, "SELECT % X returned %s", aid, sw.Verbose())
	}
	s.selected = res
	s.state = StateAppletSelected
	return res, nil
}

func (s *Session) ensureSelected() error {
	if s.state == StateAppletSelected {
		return nil
	}
	_, err := s.SelectApplet()
	return err
}

func (s *Session) read(field string, cmd []byte) ([]byte, error) {
	data, err := s.Transmit(cmd)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", field)
	}
	return data, nil
}

// ReadPersonal reads and decodes the identity fields in card order: citizen
// ID, personal info, address, issue/expire, issuer, then the laser ID when
// enabled.
func (s *Session) ReadPersonal() (*Personal, error) {
	if err := s.ensureSelected(); err != nil {
		return nil, err
	}

	raw, err := s.read("citizen id", s.commands.CitizenID())
	if err != nil {
		return nil, err
	}
	citizenID, err := decodeCitizenID(raw)
	if err != nil {
		return nil, err
	}

	if raw, err = s.read("personal info", s.commands.PersonalInfo()); err != nil {
		return nil, err
	}
	info, err := decodePersonalInfo(raw)
	if err != nil {
		return nil, err
	}

	if raw, err = s.read("address", s.commands.Address()); err != nil {
		return nil, err
	}
	address := parseAddress(DecodeTIS620(raw))

	if raw, err = s.read("issue/expire", s.commands.CardIssueExpire()); err != nil {
		return nil, err
	}
	issue, expire, err := decodeIssueExpire(raw)
	if err != nil {
		return nil, err
	}

	if raw, err = s.read("issuer", s.commands.CardIssuer()); err != nil {
		return nil, err
	}

	p := &Personal{
		CitizenID:   citizenID,
		ThaiName:    info.thai,
		EnglishName: info.english,
		DateOfBirth: info.birth,
		Sex:         info.sex,
		Address:     address,
		IssueDate:   issue,
		ExpireDate:  expire,
		Issuer:      clean(DecodeTIS620(raw)),
	}

	if s.laserID {
		if p.LaserID, err = s.ReadLaserID(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ReadLaserID reads the laser-engraved number on the back of the card.
func (s *Session) ReadLaserID() (string, error) {
	if err := s.ensureSelected(); err != nil {
		return "", err
	}
	raw, err := s.read("laser id", s.commands.LaserID())
	if err != nil {
		return "", err
	}
	return clean(DecodeTIS620(raw)), nil
}

// ReadPhoto reads every photo block in order and returns the JPEG as a data
// URI. A failed block fails the whole photo.
func (s *Session) ReadPhoto() (string, error) {
	if err := s.ensureSelected(); err != nil {
		return "", err
	}
	var jpeg bytes.Buffer
	for i, cmd := range s.commands.Photo() {
		data, err := s.read(fmt.Sprintf("photo block %d/%d", i+1, PhotoBlocks), cmd)
		if err != nil {
			return "", err
		}
		jpeg.Write(data)
	}
	s.log.WithField("bytes", jpeg.Len()).Debug("photo assembled")
	return EncodePhotoURI(jpeg.Bytes()), nil
}

// Close disconnects the card, leaving it powered, and releases the context.
// Both steps are always attempted and a second Close does nothing.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	s.protocol = pcsc.ProtocolUnset
	return multierr.Combine(s.driver.Disconnect(), s.driver.Release())
}

func (s *Session) State() State { return s.state }
func (s *Session) Reader() string { return s.reader }
func (s *Session) Protocol() pcsc.Protocol { return s.protocol }
func (s *Session) ATR() *iso7816.ATR { return s.atr }
func (s *Session) Variant() Variant { return s.commands.Variant() }

// Selection returns the SELECT exchange of the applet, nil before SelectApplet.
func (s *Session) Selection() *iso7816.SelectResult { return s.selected }
