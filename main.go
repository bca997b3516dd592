package main

import (
	"fmt"
	"io"
	"os"

	"github.com/gregLibert/thai-id-card/pkg/thaiid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	log := newLogger(cfg.LogLevel)
	if err := run(cfg, log, os.Stdout); err != nil {
		log.WithError(err).Error("reading card failed")
		os.Exit(1)
	}
}

func newLogger(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(level)
	return l
}

// run reads one card and prints it. Extra options are appended to the ones
// derived from cfg.
func run(cfg *Config, log logrus.FieldLogger, w io.Writer, opts ...thaiid.Option) error {
	r := thaiid.NewReader(append([]thaiid.Option{
		thaiid.WithSettleDelay(cfg.Settle),
		thaiid.WithLaserID(cfg.LaserID),
		thaiid.WithLogger(log),
	}, opts...)...)

	var (
		rec *thaiid.PersonalPhoto
		err error
	)
	switch {
	case cfg.Trace:
		rec, err = readTraced(r, cfg.Photo, log, w)
	case cfg.Photo:
		rec, err = r.ReadPersonalPhoto()
	default:
		var p *thaiid.Personal
		if p, err = r.ReadPersonal(); err == nil {
			rec = &thaiid.PersonalPhoto{Personal: *p}
		}
	}
	if err != nil {
		return err
	}

	if cfg.PhotoOut != "" {
		if err := writePhoto(cfg.PhotoOut, rec.Photo); err != nil {
			return err
		}
		log.WithField("file", cfg.PhotoOut).Info("photo written")
	}

	return render(w, cfg.Format, rec)
}

// readTraced keeps the Session open to print the applet SELECT report before
// reading, which the one-shot Reader methods do not expose.
func readTraced(r *thaiid.Reader, photo bool, log logrus.FieldLogger, w io.Writer) (*thaiid.PersonalPhoto, error) {
	s, err := r.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.WithError(err).Debug("closing session")
		}
	}()

	fmt.Fprintln(w, s.Selection().Describe())
	fmt.Fprintln(w)

	p, err := s.ReadPersonal()
	if err != nil {
		return nil, err
	}
	rec := &thaiid.PersonalPhoto{Personal: *p}
	if photo {
		if rec.Photo, err = s.ReadPhoto(); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func writePhoto(path, uri string) error {
	jpeg, err := thaiid.DecodePhotoURI(uri)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, jpeg, 0o600), "writing photo to %s", path)
}
