// Package tlv renders byte payloads for reports: hex fixtures, safe ASCII, and
// BER-TLV dumps of the File Control Information some applets return on SELECT.
package tlv

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Dump decodes BER-TLV data and returns one line per object, children indented
// under their constructed parent. Lines carry no trailing newline.
func Dump(data []byte) ([]string, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("bertlv decode failed: %w", err)
	}

	var lines []string
	writePackets(&lines, packets, "    - ")
	return lines, nil
}

func writePackets(lines *[]string, packets []bertlv.TLV, indent string) {
	for _, p := range packets {
		tag := strings.ToUpper(p.Tag)
		if len(p.TLVs) > 0 {
			*lines = append(*lines, fmt.Sprintf("%s%s:", indent, tag))
			writePackets(lines, p.TLVs, "  "+indent)
			continue
		}
		*lines = append(*lines, fmt.Sprintf("%s%s: %X (%q)", indent, tag, p.Value, MakeSafeASCII(p.Value)))
	}
}
