package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gregLibert/thai-id-card/pkg/thaiid"
	"github.com/kr/pretty"
	"github.com/pkg/errors"
)

func render(w io.Writer, format string, rec *thaiid.PersonalPhoto) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if rec.Photo == "" {
			return enc.Encode(rec.Personal)
		}
		return enc.Encode(rec)
	case FormatPretty:
		_, err := fmt.Fprintf(w, "%# v\n", pretty.Formatter(rec))
		return err
	case FormatText:
		return renderText(w, rec)
	default:
		return errors.Errorf("unknown format %q", format)
	}
}

func renderText(w io.Writer, rec *thaiid.PersonalPhoto) error {
	p := rec.Personal
	lines := [][2]string{
		{"Citizen ID", p.CitizenID},
		{"Thai name", p.ThaiName.String()},
		{"English name", p.EnglishName.String()},
		{"Date of birth", p.DateOfBirth.String()},
		{"Sex", p.Sex.String()},
		{"Address", p.Address.String()},
		{"Issue date", p.IssueDate.String()},
		{"Expire date", p.ExpireDate.String()},
		{"Issuer", p.Issuer},
	}
	if p.LaserID != "" {
		lines = append(lines, [2]string{"Laser ID", p.LaserID})
	}
	if rec.Photo != "" {
		lines = append(lines, [2]string{"Photo", fmt.Sprintf("%d characters data URI", len(rec.Photo))})
	}

	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-14s %s\n", l[0]+":", l[1]); err != nil {
			return err
		}
	}
	return nil
}
