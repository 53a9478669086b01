/*
Package iso7816 implements data structures and logic to interact with smart cards according to the ISO/IEC 7816 standard.

This package provides the fundamental building blocks for APDU (Application Protocol Data Unit) communication: Command and Response structures, Class/Instruction decoding, and Status Word (SW) analysis.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - Other: Various error conditions.

# Driving a Card

Client wraps a Transmitter (anything that can exchange raw bytes with a
card, such as *scard.Card) and handles the 61XX/6CXX transport-level
retries automatically, returning a Trace of every Command/Response pair
exchanged to fulfill one logical request.

	client := iso7816.NewClient(card)
	cla, _ := iso7816.NewClass(0x00)

	trace, err := client.Send(iso7816.SelectByAID(cla, aid))
	if err != nil {
	    log.Fatal(err)
	}
	if !trace.IsSuccess() {
	    log.Printf("select failed: %s", trace.Last().Response.Status.Verbose())
	}
*/
package iso7816
