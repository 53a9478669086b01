// Package piv implements the PIV application: the data objects a
// conforming card exposes (CHUID, CCC) and the card handler that
// dispatches inbound APDUs against them, per NIST SP 800-73.
//
// The handler never returns a Go error. Every failure reachable from
// process_apdu is reduced to a status word before it leaves the
// package, so callers only ever see a response APDU.
package piv

// AID is the PIV Application Identifier, bit-exact per spec.md §6.
var AID = []byte{0xA0, 0x00, 0x00, 0x03, 0x08, 0x00, 0x00, 0x10, 0x00}

// ATR is the fixed 24-byte Answer-To-Reset the emulated card reports,
// bit-exact per spec.md §6.
var ATR = []byte{
	0x3B, 0x9F, 0x95, 0x81, 0x31, 0xFE, 0x9F, 0x00,
	0x66, 0x46, 0x53, 0x05, 0x10, 0x00, 0x11, 0x71,
	0xDF, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02,
}

// AppDescription is the human-readable applet label embedded in the
// SELECT response (tag 0x50).
const AppDescription = "PIVert PIV Applet"

// Data-object tags as carried in the 0x5C value of a GET DATA request
// (spec.md §4.5). These are not TLV tags in the pkg/tlv sense: they
// are 1-3 byte big-endian integers decoded from a 0x5C TLV's value.
const (
	TagDiscovery  = 0x7E
	TagCCC        = 0x5FC107
	TagCHUID      = 0x5FC102
	TagCertPIVAuth = 0x5FC105
	TagCertCardAuth = 0x5FC101
	TagCertSign    = 0x5FC10A
)

// validAlternateTagRange bounds spec.md §4.4's "valid alternate data
// tags" range, used by data objects whose defined tag may legally be
// re-hosted at an operator-chosen alternate location.
const (
	alternateTagLow  = 0x005F0000
	alternateTagHigh = 0x005FFFFF

	pivReservedLow  = 0x005FC101
	pivReservedHigh = 0x005FC123

	yubicoReservedLow  = 0x005FFF00
	yubicoReservedHigh = 0x005FFF15
)

// validDataTag reports whether tag is acceptable as the storage
// locator for a data object whose immutable defined tag is
// definedTag, per spec.md §4.4.
func validDataTag(tag, definedTag uint32) bool {
	if tag == definedTag {
		return true
	}
	if tag < alternateTagLow || tag > alternateTagHigh {
		return false
	}
	if tag >= pivReservedLow && tag <= pivReservedHigh {
		return false
	}
	if tag >= yubicoReservedLow && tag <= yubicoReservedHigh {
		return false
	}
	return true
}
