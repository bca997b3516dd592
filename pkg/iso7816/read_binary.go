package iso7816

// READ BINARY (INS 'B0'):
// The standard form addresses the offset in P1-P2 and asks for Le bytes. The
// Thai ID applet instead takes the length as a two-byte payload with the
// proprietary class 80:
//
//	80 B0 <offset hi> <offset lo> 02 <length hi> <length lo>
//
// The card then answers 61 <length> and the data is fetched with GET RESPONSE.

// ProprietaryClass is the CLA byte 80 (proprietary, no secure messaging).
const ProprietaryClass byte = 0x80

// ReadBinary builds the proprietary length-in-payload READ BINARY.
func ReadBinary(offset, length uint16) []byte {
	return []byte{
		ProprietaryClass, byte(INS_READ_BINARY),
		byte(offset >> 8), byte(offset),
		0x02,
		byte(length >> 8), byte(length),
	}
}
