package thaiid

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/thai-id-card/pkg/iso7816"
	"github.com/gregLibert/thai-id-card/pkg/pcsc"
	"github.com/gregLibert/thai-id-card/pkg/tlv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/text/encoding/charmap"
)

var (
	atrType02 = tlv.Hex("3B 68 00 00 00 73 C8 40 12 00 90 00")
	atrType01 = tlv.Hex("3B 67 00 00 73 20 00 6C 68 90 00")
	fci       = tlv.Hex("6F 0A 84 08 A0 00 00 00 54 48 00 01")
)

// fakeDriver answers like the ID applet: every read is acknowledged with
// 61 <len> and the data is handed out by GET RESPONSE.
type fakeDriver struct {
	readers       []string
	protocol      pcsc.Protocol
	atr           []byte
	getResponseP2 byte
	fields        map[uint16][]byte
	failing       map[uint16][]byte
	selectSW      []byte

	connected   bool
	pending     []byte
	transmits   [][]byte
	connects    int
	disconnects int
	releases    int

	disconnectErr error
	releaseErr    error
}

func (d *fakeDriver) ListReaders() ([]string, error) { return d.readers, nil }

func (d *fakeDriver) Connect(reader string, protocols ...pcsc.Protocol) (pcsc.Protocol, error) {
	d.connects++
	d.connected = true
	return d.protocol, nil
}

func (d *fakeDriver) ATR() ([]byte, error) { return d.atr, nil }

func (d *fakeDriver) Disconnect() error {
	d.disconnects++
	d.connected = false
	return d.disconnectErr
}

func (d *fakeDriver) Release() error {
	d.releases++
	return d.releaseErr
}

func (d *fakeDriver) Transmit(cmd []byte) ([]byte, error) {
	d.transmits = append(d.transmits, append([]byte(nil), cmd...))
	if !d.connected {
		return nil, errors.New("not connected")
	}

	switch {
	case cmd[1] == 0xA4:
		if d.selectSW != nil {
			return d.selectSW, nil
		}
		if !bytes.Equal(cmd[5:], moiAID) {
			return []byte{0x6A, 0x82}, nil
		}
		return d.queue(fci), nil

	case cmd[0] == 0x80 && cmd[1] == 0xB0:
		offset := uint16(cmd[2])<<8 | uint16(cmd[3])
		n := int(cmd[5])<<8 | int(cmd[6])
		if sw, ok := d.failing[offset]; ok {
			return sw, nil
		}
		data, ok := d.fields[offset]
		if !ok {
			return []byte{0x6A, 0x82}, nil
		}
		buf := bytes.Repeat([]byte{' '}, n)
		copy(buf, data)
		return d.queue(buf), nil

	case cmd[1] == 0xC0:
		if cmd[3] != d.getResponseP2 {
			return []byte{0x6A, 0x86}, nil
		}
		if len(d.pending) == 0 {
			return []byte{0x69, 0x85}, nil
		}
		le := int(cmd[4])
		if le == 0 {
			le = 256
		}
		if le > len(d.pending) {
			le = len(d.pending)
		}
		out := append([]byte(nil), d.pending[:le]...)
		d.pending = d.pending[le:]
		if len(d.pending) > 0 {
			return append(out, 0x61, byte(len(d.pending))), nil
		}
		return append(out, 0x90, 0x00), nil
	}

	return []byte{0x6D, 0x00}, nil
}

func (d *fakeDriver) queue(data []byte) []byte {
	d.pending = data
	return []byte{0x61, byte(len(data))}
}

func (d *fakeDriver) count(ins byte) int {
	n := 0
	for _, cmd := range d.transmits {
		if cmd[1] == ins {
			n++
		}
	}
	return n
}

func tis620(t *testing.T, s string) []byte {
	t.Helper()
	b, err := charmap.Windows874.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encoding %q: %v", s, err)
	}
	return b
}

func pad(s string, n int) string {
	if r := len([]rune(s)); r < n {
		return s + strings.Repeat(" ", n-r)
	}
	return s
}

func newCard(t *testing.T) *fakeDriver {
	personal := pad("นาย#สมชาย##ใจดี", 100) + pad("Mr.#Somchai##Jaidee", 100) + "25300115" + "1"

	return &fakeDriver{
		readers:  []string{"ACS ACR39U ICC Reader 00 00", "Second Reader"},
		protocol: pcsc.ProtocolT0,
		atr:      atrType02,
		fields: map[uint16][]byte{
			0x0004: []byte("1101700203451"),
			0x0011: tis620(t, personal),
			0x1579: tis620(t, "99/1#หมู่ที่ 5####ตำบลบางรัก#อำเภอเมืองนนทบุรี#จังหวัดนนทบุรี"),
			0x0167: []byte("2560061525680614"),
			0x00F6: tis620(t, "อำเภอเมืองนนทบุรี/นนทบุรี"),
			0x001D: []byte("JT11234567890"),
		},
	}
}

func newTestReader(d *fakeDriver, opts ...Option) *Reader {
	base := []Option{
		WithDriverFactory(func() (pcsc.Driver, error) { return d, nil }),
		WithSleeper(func(time.Duration) {}),
	}
	return NewReader(append(base, opts...)...)
}

func wantPersonal() *Personal {
	return &Personal{
		CitizenID:   "1101700203451",
		ThaiName:    Name{Prefix: "นาย", First: "สมชาย", Last: "ใจดี"},
		EnglishName: Name{Prefix: "Mr.", First: "Somchai", Last: "Jaidee"},
		DateOfBirth: Date{Year: 1987, Month: time.January, Day: 15},
		Sex:         SexMale,
		Address: Address{
			HouseNo:     "99/1",
			VillageNo:   "หมู่ที่ 5",
			SubDistrict: "ตำบลบางรัก",
			District:    "อำเภอเมืองนนทบุรี",
			Province:    "จังหวัดนนทบุรี",
		},
		IssueDate:  Date{Year: 2017, Month: time.June, Day: 15},
		ExpireDate: Date{Year: 2025, Month: time.June, Day: 14},
		Issuer:     "อำเภอเมืองนนทบุรี/นนทบุรี",
	}
}

func TestReader_ReadPersonal(t *testing.T) {
	card := newCard(t)
	var slept []time.Duration
	r := NewReader(
		WithDriverFactory(func() (pcsc.Driver, error) { return card, nil }),
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)

	got, err := r.ReadPersonal()
	if err != nil {
		t.Fatalf("ReadPersonal: %v", err)
	}
	if diff := cmp.Diff(wantPersonal(), got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]time.Duration{DefaultSettleDelay}, slept); diff != "" {
		t.Errorf("settle delay (-want +got):\n%s", diff)
	}

	// SELECT and five field reads, each followed by one GET RESPONSE
	if len(card.transmits) != 12 {
		t.Errorf("got %d transmits, want 12", len(card.transmits))
	}
	wantOrder := [][]byte{
		tlv.Hex("00 A4 04 00 08 A0 00 00 00 54 48 00 01"),
		tlv.Hex("00 C0 00 00 0C"),
		tlv.Hex("80 B0 00 04 02 00 0D"),
		tlv.Hex("00 C0 00 00 0D"),
		tlv.Hex("80 B0 00 11 02 00 D1"),
		tlv.Hex("00 C0 00 00 D1"),
		tlv.Hex("80 B0 15 79 02 00 64"),
		tlv.Hex("00 C0 00 00 64"),
		tlv.Hex("80 B0 01 67 02 00 12"),
		tlv.Hex("00 C0 00 00 12"),
		tlv.Hex("80 B0 00 F6 02 00 64"),
		tlv.Hex("00 C0 00 00 64"),
	}
	if diff := cmp.Diff(wantOrder, card.transmits); diff != "" {
		t.Errorf("command order (-want +got):\n%s", diff)
	}

	if card.disconnects != 1 || card.releases != 1 {
		t.Errorf("disconnect/release = %d/%d, want 1/1", card.disconnects, card.releases)
	}
}

func TestReader_LaserIDIsOptIn(t *testing.T) {
	card := newCard(t)
	p, err := newTestReader(card).ReadPersonal()
	if err != nil {
		t.Fatal(err)
	}
	if p.LaserID != "" {
		t.Errorf("laser id read without opt-in: %q", p.LaserID)
	}

	card = newCard(t)
	p, err = newTestReader(card, WithLaserID(true)).ReadPersonal()
	if err != nil {
		t.Fatal(err)
	}
	if p.LaserID != "JT11234567890" {
		t.Errorf("laser id = %q", p.LaserID)
	}
	if len(card.transmits) != 14 {
		t.Errorf("got %d transmits, want 14", len(card.transmits))
	}
}

func TestReader_NoReaders(t *testing.T) {
	card := newCard(t)
	card.readers = nil

	_, err := newTestReader(card).ReadPersonal()
	if !errors.Is(err, ErrNoReaders) {
		t.Fatalf("got %v, want ErrNoReaders", err)
	}
	if len(card.transmits) != 0 {
		t.Errorf("%d commands sent without a reader", len(card.transmits))
	}
	if card.connects != 0 {
		t.Errorf("connected %d times", card.connects)
	}
	if card.releases != 1 {
		t.Errorf("context released %d times, want 1", card.releases)
	}
}

func TestReader_OpenFailures(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*fakeDriver)
		want   error
	}{
		{"protocol mismatch", func(d *fakeDriver) { d.protocol = pcsc.ProtocolUnset }, ErrProtocolMismatch},
		{"one byte ATR", func(d *fakeDriver) { d.atr = []byte{0x3B} }, ErrInvalidATR},
		{"empty ATR", func(d *fakeDriver) { d.atr = nil }, ErrInvalidATR},
		{"applet refused", func(d *fakeDriver) { d.selectSW = []byte{0x6A, 0x82} }, ErrCardNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := newCard(t)
			tt.modify(card)

			s, err := newTestReader(card).Open()
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if s != nil {
				t.Error("session returned on error")
			}
			if card.disconnects != 1 || card.releases != 1 {
				t.Errorf("disconnect/release = %d/%d, want 1/1", card.disconnects, card.releases)
			}
		})
	}
}

func TestReader_DriverFactoryError(t *testing.T) {
	r := NewReader(
		WithDriverFactory(func() (pcsc.Driver, error) { return nil, errors.New("no service") }),
		WithSettleDelay(0),
	)
	if _, err := r.ReadPersonal(); err == nil || !strings.Contains(err.Error(), "no service") {
		t.Errorf("got %v", err)
	}
}

func TestReader_DecodeFailureClosesOnce(t *testing.T) {
	card := newCard(t)
	card.fields[0x0167] = []byte("2566AB0125680614")

	p, err := newTestReader(card).ReadPersonal()
	if p != nil {
		t.Error("partial record returned")
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want *DecodeError", err)
	}
	if de.Field != "issue date" {
		t.Errorf("field = %q", de.Field)
	}
	if card.disconnects != 1 || card.releases != 1 {
		t.Errorf("disconnect/release = %d/%d, want 1/1", card.disconnects, card.releases)
	}
}

func TestReader_StatusErrorIsFatal(t *testing.T) {
	card := newCard(t)
	card.failing = map[uint16][]byte{0x1579: {0x69, 0x82}}

	_, err := newTestReader(card).ReadPersonal()
	if !iso7816.IsStatus(err, iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT) {
		t.Fatalf("got %v, want 6982", err)
	}
	if !strings.Contains(err.Error(), "reading address") {
		t.Errorf("error lacks field context: %v", err)
	}
	// nothing is read after the failing field
	if n := len(card.transmits); n != 7 {
		t.Errorf("got %d transmits, want 7", n)
	}
}

func TestReader_CloseErrorsAreSwallowed(t *testing.T) {
	card := newCard(t)
	card.disconnectErr = errors.New("reader unplugged")
	card.releaseErr = errors.New("service stopped")

	if _, err := newTestReader(card).ReadPersonal(); err != nil {
		t.Fatalf("close failure leaked: %v", err)
	}
	if card.disconnects != 1 || card.releases != 1 {
		t.Errorf("disconnect/release = %d/%d, want 1/1", card.disconnects, card.releases)
	}
}

func TestReader_ReadPersonalPhoto(t *testing.T) {
	card := newCard(t)
	var want []byte
	for i := 0; i < PhotoBlocks; i++ {
		block := bytes.Repeat([]byte{byte(i + 1)}, photoBlockSize)
		block[0] = 0xA0 ^ byte(i)
		card.fields[uint16(photoOffset+i*photoBlockSize)] = block
		want = append(want, block...)
	}

	rec, err := newTestReader(card).ReadPersonalPhoto()
	if err != nil {
		t.Fatalf("ReadPersonalPhoto: %v", err)
	}
	if diff := cmp.Diff(*wantPersonal(), rec.Personal); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	if !strings.HasPrefix(rec.Photo, "data:image/jpeg;base64,") {
		t.Fatalf("photo = %.40q...", rec.Photo)
	}
	got, err := DecodePhotoURI(rec.Photo)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("photo is %d bytes, want the %d bytes of the blocks in order", len(got), len(want))
	}
	if card.disconnects != 1 || card.releases != 1 {
		t.Errorf("disconnect/release = %d/%d, want 1/1", card.disconnects, card.releases)
	}
}

func TestReader_PartialPhotoFails(t *testing.T) {
	card := newCard(t)
	for i := 0; i < PhotoBlocks; i++ {
		card.fields[uint16(photoOffset+i*photoBlockSize)] = []byte{byte(i)}
	}
	card.failing = map[uint16][]byte{uint16(photoOffset + 7*photoBlockSize): {0x6B, 0x00}}

	rec, err := newTestReader(card).ReadPersonalPhoto()
	if err == nil {
		t.Fatal("expected an error")
	}
	if rec != nil {
		t.Error("partial record returned")
	}
	if !strings.Contains(err.Error(), "photo block 8/20") {
		t.Errorf("error = %v", err)
	}
	if card.releases != 1 {
		t.Errorf("context released %d times", card.releases)
	}
}

func TestReader_Type01UsesItsGetResponse(t *testing.T) {
	card := newCard(t)
	card.atr = atrType01
	card.getResponseP2 = 0x01

	s, err := newTestReader(card).Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.Variant() != Type01 {
		t.Errorf("variant = %s", s.Variant())
	}
	if _, err := s.ReadPersonal(); err != nil {
		t.Fatalf("ReadPersonal: %v", err)
	}
	for _, cmd := range card.transmits {
		if cmd[1] == 0xC0 && cmd[3] != 0x01 {
			t.Errorf("GET RESPONSE % X has P2 %02X", cmd, cmd[3])
		}
	}
}

func TestSession_State(t *testing.T) {
	card := newCard(t)
	s, err := newTestReader(card).Open()
	if err != nil {
		t.Fatal(err)
	}

	if s.State() != StateAppletSelected {
		t.Errorf("state = %s", s.State())
	}
	if s.Reader() != card.readers[0] {
		t.Errorf("reader = %q, want the first one", s.Reader())
	}
	if s.Protocol() != pcsc.ProtocolT0 {
		t.Errorf("protocol = %s", s.Protocol())
	}
	if !bytes.Equal(s.ATR().Raw, atrType02) {
		t.Errorf("ATR = %s", s.ATR())
	}
	if sel := s.Selection(); sel == nil || !bytes.Equal(sel.FCI(), fci) {
		t.Errorf("selection = %+v", sel)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s", s.State())
	}
	if card.disconnects != 1 || card.releases != 1 {
		t.Errorf("disconnect/release = %d/%d, want 1/1", card.disconnects, card.releases)
	}

	if _, err := s.Transmit(tlv.Hex("80 B0 00 04 02 00 0D")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Transmit after Close = %v", err)
	}
}

func TestSession_EnsureConnectedReconnects(t *testing.T) {
	card := newCard(t)
	s, err := newTestReader(card).Open()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.EnsureConnected(); err != nil {
		t.Fatal(err)
	}
	if card.connects != 1 {
		t.Fatalf("connected %d times while the protocol was set", card.connects)
	}

	s.Invalidate()
	card.connected = false

	id, err := s.Transmit(tlv.Hex("80 B0 00 04 02 00 0D"))
	if err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if string(id) != "1101700203451" {
		t.Errorf("data = %q", id)
	}
	if card.connects != 2 {
		t.Errorf("connected %d times, want 2", card.connects)
	}
	if n := card.count(0xA4); n != 1 {
		t.Errorf("applet selected %d times, want 1", n)
	}
}

func TestSession_SelectAIDRefusedIsNotAnError(t *testing.T) {
	card := newCard(t)
	s, err := newTestReader(card).Open()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	res, err := s.SelectAID(tlv.Hex("A0 00 00 00 03 10 10"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Selected() {
		t.Error("unknown AID reported as selected")
	}
}

// relocatedCitizenID reads the citizen ID from another offset.
type relocatedCitizenID struct {
	CommandSet
}

func (relocatedCitizenID) CitizenID() []byte {
	return iso7816.ReadBinary(0x0104, 0x0D)
}

func TestReader_WithCommandSetOverridesATR(t *testing.T) {
	card := newCard(t)
	// a type01 ATR would select GET RESPONSE P2=01, which this card refuses
	card.atr = atrType01
	card.fields[0x0104] = card.fields[0x0004]
	delete(card.fields, 0x0004)

	cs := relocatedCitizenID{CommandSetFor(Type02)}
	s, err := newTestReader(card, WithCommandSet(cs)).Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.Variant() != Type02 {
		t.Errorf("variant = %s, want the injected type02", s.Variant())
	}
	p, err := s.ReadPersonal()
	if err != nil {
		t.Fatalf("ReadPersonal: %v", err)
	}
	if p.CitizenID != "1101700203451" {
		t.Errorf("citizen id = %q", p.CitizenID)
	}

	want := [][]byte{
		tlv.Hex("80 B0 01 04 02 00 0D"),
		tlv.Hex("00 C0 00 00 0D"),
	}
	if diff := cmp.Diff(want, card.transmits[2:4]); diff != "" {
		t.Errorf("citizen id exchange (-want +got):\n%s", diff)
	}
}

func TestReader_WithNilCommandSetDetects(t *testing.T) {
	card := newCard(t)
	card.atr = atrType01
	card.getResponseP2 = 0x01

	s, err := newTestReader(card, WithCommandSet(nil)).Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if s.Variant() != Type01 {
		t.Errorf("variant = %s", s.Variant())
	}
}

func TestSession_LogsEveryExchange(t *testing.T) {
	card := newCard(t)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	if _, err := newTestReader(card, WithLogger(logger)).ReadPersonal(); err != nil {
		t.Fatal(err)
	}

	var apdus []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "apdu" {
			apdus = append(apdus, e)
		}
	}
	if len(apdus) != len(card.transmits) {
		t.Fatalf("logged %d exchanges, want %d", len(apdus), len(card.transmits))
	}

	first := apdus[0]
	if cmd, _ := first.Data["cmd"].(string); !strings.Contains(cmd, "SELECT") {
		t.Errorf("cmd field = %q", cmd)
	}
	if first.Data["sw"] != "61 0C" || first.Data["len"] != 0 {
		t.Errorf("fields = %v", first.Data)
	}
}
