package thaiid

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Date is a Gregorian calendar date. The zero Date stands for "no date", which
// the card uses for lifetime cards.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	if d.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// Name is one of the two name blocks of the card.
type Name struct {
	Prefix string `json:"prefix"`
	First  string `json:"first"`
	Middle string `json:"middle,omitempty"`
	Last   string `json:"last"`
}

func (n Name) String() string {
	return joinNonEmpty(n.Prefix, n.First, n.Middle, n.Last)
}

// Address holds the columns of the registered address, in the issuing
// authority's order.
type Address struct {
	HouseNo     string `json:"house_no"`
	VillageNo   string `json:"village_no,omitempty"`
	Lane        string `json:"lane,omitempty"`
	Alley       string `json:"alley,omitempty"`
	Road        string `json:"road,omitempty"`
	SubDistrict string `json:"sub_district"`
	District    string `json:"district"`
	Province    string `json:"province"`
}

func (a Address) String() string {
	return joinNonEmpty(a.HouseNo, a.VillageNo, a.Lane, a.Alley, a.Road, a.SubDistrict, a.District, a.Province)
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// Sex is the raw sex code digit.
type Sex string

const (
	SexMale   Sex = "1"
	SexFemale Sex = "2"
)

func (s Sex) String() string {
	switch s {
	case SexMale:
		return "male"
	case SexFemale:
		return "female"
	default:
		return "unknown"
	}
}

// Personal is the decoded identity record.
type Personal struct {
	CitizenID   string  `json:"citizen_id"`
	ThaiName    Name    `json:"thai_name"`
	EnglishName Name    `json:"english_name"`
	DateOfBirth Date    `json:"date_of_birth"`
	Sex         Sex     `json:"sex"`
	Address     Address `json:"address"`
	IssueDate   Date    `json:"issue_date"`
	ExpireDate  Date    `json:"expire_date"`
	Issuer      string  `json:"issuer"`
	LaserID     string  `json:"laser_id,omitempty"`
}

// PersonalPhoto is Personal plus the card photo as a data URI.
type PersonalPhoto struct {
	Personal
	Photo string `json:"photo"`
}

// PhotoURIPrefix starts every photo data URI.
const PhotoURIPrefix = "data:image/jpeg;base64,"

// EncodePhotoURI wraps JPEG bytes in a data URI.
func EncodePhotoURI(jpeg []byte) string {
	return PhotoURIPrefix + base64.StdEncoding.EncodeToString(jpeg)
}

// DecodePhotoURI returns the JPEG bytes of a data URI built by EncodePhotoURI.
func DecodePhotoURI(uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, PhotoURIPrefix) {
		return nil, errors.New("not a JPEG data URI")
	}
	b, err := base64.StdEncoding.DecodeString(uri[len(PhotoURIPrefix):])
	if err != nil {
		return nil, errors.Wrap(err, "photo data URI")
	}
	return b, nil
}
