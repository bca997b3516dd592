package thaiid

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
)

// Field blocks are decoded to text first and then cut at fixed character
// offsets. TIS-620 is single byte, so one card byte is one rune.
const (
	nameLen   = 100
	dateLen   = 8
	sexOffset = 2*nameLen + dateLen

	personalInfoLen = sexOffset + 1
	issueExpireLen  = 2 * dateLen
	citizenIDLen    = 13

	buddhistEraOffset = 543
)

// lifetimeDate marks a card that never expires.
const lifetimeDate = "99999999"

// DecodeTIS620 converts TIS-620 bytes to UTF-8. Windows-874 is a superset of
// TIS-620 and decodes every byte to one rune.
func DecodeTIS620(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	out, err := charmap.Windows874.NewDecoder().Bytes(raw)
	if err != nil {
		// single byte charmaps substitute U+FFFD and never fail
		return string(raw)
	}
	return string(out)
}

func clean(s string) string {
	return strings.Trim(s, " \x00")
}

func decodeCitizenID(raw []byte) (string, error) {
	id := clean(DecodeTIS620(raw))
	if len(id) != citizenIDLen {
		return "", &DecodeError{Field: "citizen id", Value: id, Err: errors.Errorf("want %d digits", citizenIDLen)}
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", &DecodeError{Field: "citizen id", Value: id, Err: errors.New("not numeric")}
		}
	}
	return id, nil
}

// personalInfo is the decoded 80 B0 00 11 block.
type personalInfo struct {
	thai, english Name
	birth         Date
	sex           Sex
}

func decodePersonalInfo(raw []byte) (personalInfo, error) {
	text := []rune(DecodeTIS620(raw))
	if len(text) < personalInfoLen {
		return personalInfo{}, &DecodeError{
			Field: "personal info",
			Value: string(text),
			Err:   errors.Errorf("%d characters, want at least %d", len(text), personalInfoLen),
		}
	}

	birth, err := parseBuddhistDate("date of birth", string(text[2*nameLen:sexOffset]))
	if err != nil {
		return personalInfo{}, err
	}

	return personalInfo{
		thai:    parseName(string(text[:nameLen])),
		english: parseName(string(text[nameLen : 2*nameLen])),
		birth:   birth,
		sex:     Sex(text[sexOffset : sexOffset+1]),
	}, nil
}

func decodeIssueExpire(raw []byte) (issue, expire Date, err error) {
	text := []rune(DecodeTIS620(raw))
	if len(text) < issueExpireLen {
		return Date{}, Date{}, &DecodeError{
			Field: "issue/expire",
			Value: string(text),
			Err:   errors.Errorf("%d characters, want %d", len(text), issueExpireLen),
		}
	}

	if issue, err = parseBuddhistDate("issue date", string(text[:dateLen])); err != nil {
		return Date{}, Date{}, err
	}
	expireText := string(text[dateLen:issueExpireLen])
	if expireText == lifetimeDate {
		return issue, Date{}, nil
	}
	if expire, err = parseBuddhistDate("expire date", expireText); err != nil {
		return Date{}, Date{}, err
	}
	return issue, expire, nil
}

// parseBuddhistDate reads YYYYMMDD with a Buddhist Era year.
func parseBuddhistDate(field, s string) (Date, error) {
	fail := func(err error) (Date, error) {
		return Date{}, &DecodeError{Field: field, Value: s, Err: err}
	}

	if len(s) != dateLen {
		return fail(errors.New("want YYYYMMDD"))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return fail(errors.New("want YYYYMMDD"))
		}
	}

	year, _ := strconv.Atoi(s[0:4])
	month, _ := strconv.Atoi(s[4:6])
	day, _ := strconv.Atoi(s[6:8])

	year -= buddhistEraOffset
	if year <= 0 {
		return fail(errors.Errorf("year %d before the Buddhist Era offset", year+buddhistEraOffset))
	}
	if month < 1 || month > 12 {
		return fail(errors.Errorf("month %d out of range", month))
	}
	if day < 1 || day > daysIn(time.Month(month), year) {
		return fail(errors.Errorf("day %d out of range", day))
	}

	return Date{Year: year, Month: time.Month(month), Day: day}, nil
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// parseName splits prefix#first#middle#last.
func parseName(s string) Name {
	var parts [4]string
	for i, p := range strings.SplitN(s, "#", len(parts)) {
		parts[i] = clean(p)
	}
	return Name{Prefix: parts[0], First: parts[1], Middle: parts[2], Last: parts[3]}
}

// parseAddress splits the eight # separated address columns.
func parseAddress(s string) Address {
	var cols [8]string
	for i, c := range strings.SplitN(clean(s), "#", len(cols)) {
		cols[i] = clean(c)
	}
	return Address{
		HouseNo:     cols[0],
		VillageNo:   cols[1],
		Lane:        cols[2],
		Alley:       cols[3],
		Road:        cols[4],
		SubDistrict: cols[5],
		District:    cols[6],
		Province:    cols[7],
	}
}
