// Package thaiid reads the identity applet of the Thai national ID card over
// PC/SC.
//
//	r := thaiid.NewReader(thaiid.WithLogger(log))
//	rec, err := r.ReadPersonalPhoto()
//
// Every read opens its own Session and closes it on return, whatever the
// outcome.
package thaiid

import (
	"io"
	"time"

	"github.com/gregLibert/thai-id-card/pkg/pcsc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultSettleDelay is the pause before the first reader enumeration.
const DefaultSettleDelay = 1500 * time.Millisecond

// DriverFactory opens a new PC/SC context.
type DriverFactory func() (pcsc.Driver, error)

type options struct {
	newDriver DriverFactory
	settle    time.Duration
	sleep     func(time.Duration)
	laserID   bool
	log       logrus.FieldLogger
	commands  CommandSet
}

// Option configures a Reader.
type Option func(*options)

// WithDriverFactory replaces the system PC/SC stack.
func WithDriverFactory(f DriverFactory) Option {
	return func(o *options) { o.newDriver = f }
}

// WithSettleDelay sets the pause before the reader is enumerated. Zero skips it.
func WithSettleDelay(d time.Duration) Option {
	return func(o *options) { o.settle = d }
}

// WithSleeper replaces time.Sleep for the settle pause.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithLaserID adds the laser ID to every personal record.
func WithLaserID(enabled bool) Option {
	return func(o *options) { o.laserID = enabled }
}

// WithCommandSet replaces the command set detected from the ATR. When set it
// is used for every card, whatever its ATR; nil restores detection.
func WithCommandSet(cs CommandSet) Option {
	return func(o *options) { o.commands = cs }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// Reader reads Thai ID cards from the first PC/SC reader.
type Reader struct {
	opts options
}

func NewReader(opts ...Option) *Reader {
	o := options{
		newDriver: pcsc.NewSCardDriver,
		settle:    DefaultSettleDelay,
		sleep:     time.Sleep,
		log:       discardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reader{opts: o}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Open connects to the first reader and selects the applet. The caller owns the
// returned Session and must Close it. On error nothing is left open.
func (r *Reader) Open() (*Session, error) {
	driver, err := r.opts.newDriver()
	if err != nil {
		return nil, errors.Wrap(err, "opening PC/SC context")
	}

	s := newSession(driver, r.opts)
	if err := s.open(); err != nil {
		r.close(s)
		return nil, err
	}
	if _, err := s.SelectApplet(); err != nil {
		r.close(s)
		return nil, err
	}
	return s, nil
}

// close never fails: a cleanup error must not hide the read outcome.
func (r *Reader) close(s *Session) {
	if err := s.Close(); err != nil {
		r.opts.log.WithError(err).Debug("closing session")
	}
}

// ReadPersonal reads the identity record without the photo.
func (r *Reader) ReadPersonal() (*Personal, error) {
	s, err := r.Open()
	if err != nil {
		return nil, err
	}
	defer r.close(s)

	return s.ReadPersonal()
}

// ReadPersonalPhoto reads the identity record and the photo.
func (r *Reader) ReadPersonalPhoto() (*PersonalPhoto, error) {
	s, err := r.Open()
	if err != nil {
		return nil, err
	}
	defer r.close(s)

	p, err := s.ReadPersonal()
	if err != nil {
		return nil, err
	}
	photo, err := s.ReadPhoto()
	if err != nil {
		return nil, err
	}
	return &PersonalPhoto{Personal: *p, Photo: photo}, nil
}
