/*
Package iso7816 implements the APDU layer used to talk to contact smart cards
according to ISO/IEC 7816-3 and 7816-4.

It provides Command and Response APDU structures, Status Word (SW) classification,
ATR parsing, builders for the few commands the Thai national ID applet needs, and a
Client that drives one logical exchange to completion.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU: CLA INS P1 P2 [Lc Data] [Le].
 2. The Card processes it and returns a Response APDU: [Data] SW1 SW2.

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but XX more bytes are waiting (00 means 256).
  - 0x6CXX: Wrong length, XX is the Le the card wants.
  - Other: Various error conditions.

The Client resolves 61XX with GET RESPONSE and 6CXX by re-issuing the command, and
records every physical exchange in a Trace.

# Usage Example

	client := iso7816.NewClient(card)

	data, err := client.Transmit(tlv.Hex("80 B0 00 04 02 00 0D"))
	if err != nil {
	    var se *iso7816.StatusError
	    if errors.As(err, &se) {
	        log.Printf("card refused: %s", se.Status.Verbose())
	    }
	    return err
	}
	fmt.Printf("citizen id: %s\n", data)
*/
package iso7816
