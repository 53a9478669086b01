package piv

import (
	"bytes"

	"github.com/rs/zerolog"

	"github.com/pivert/pivert/pkg/iso7816"
	"github.com/pivert/pivert/pkg/tlv"
)

const (
	selectTag          = 0x61
	selectPIXTag       = 0x4F
	selectCoexistTag   = 0x79
	selectAppLabelTag  = 0x50
	selectCapTag       = 0xAC
	selectAlgIDTag     = 0x80
	selectObjectIDTag  = 0x06
	discoveryTag       = 0x7E
	discoveryAIDTag    = 0x4F
	discoveryPolicyTag = 0x5F2F
	certObjTag         = 0x53
	certValueTag       = 0x70
	certInfoTag        = 0x71
	certLRCTag         = 0xFE
	getDataTag         = 0x5C
	generalAuthTag     = 0x7C
	generalAuthRespTag = 0x82
	generalAuthDataTag = 0x81
	responseWindow     = 255
)

// pendingResponse holds the not-yet-drained tail of a body larger than
// one response APDU can carry, per spec.md §4.5's response chaining.
type pendingResponse struct {
	remaining []byte
}

// Handler is the PIV card handler (C4): it owns all session state for
// one emulated card and dispatches every inbound APDU. A Handler is
// not safe for concurrent use by a single session, matching spec.md
// §5's single-threaded-per-session model; the key material it wraps
// is read-only and may be shared read-only across Handlers.
type Handler struct {
	key    *KeyMaterial
	signer RSASigner
	logger zerolog.Logger

	chuid *CHUID
	ccc   *CCC

	selectResponse  []byte
	discoveryObject []byte
	certObject      []byte

	pendingRequest  []byte
	pendingResponse *pendingResponse
}

// NewHandler constructs a Handler around key, generating a random GUID
// and CardID via rng. rng and signer may be nil, defaulting to
// DefaultRNG and DefaultRSASigner; logger should be zerolog.Nop() if
// no diagnostic output is wanted, not a zero-valued Logger.
func NewHandler(key *KeyMaterial, rng RNG, signer RSASigner, logger zerolog.Logger) (*Handler, error) {
	if rng == nil {
		rng = DefaultRNG
	}
	if signer == nil {
		signer = DefaultRSASigner
	}

	chuid := NewCHUID()
	if err := chuid.SetRandomGuid(rng); err != nil {
		return nil, err
	}
	ccc := NewCCC()
	if err := ccc.SetRandomCardID(rng); err != nil {
		return nil, err
	}

	h := &Handler{key: key, signer: signer, logger: logger, chuid: chuid, ccc: ccc}

	var err error
	if h.selectResponse, err = buildSelectResponse(); err != nil {
		return nil, err
	}
	if h.discoveryObject, err = buildDiscoveryObject(); err != nil {
		return nil, err
	}
	if h.certObject, err = buildCertObject(key.CertDER); err != nil {
		return nil, err
	}

	return h, nil
}

// ATR returns the fixed Answer-To-Reset, a copy so callers cannot
// mutate the shared constant.
func (h *Handler) ATR() []byte {
	out := make([]byte, len(ATR))
	copy(out, ATR)
	return out
}

// Reset clears chaining state and returns the ATR. warm distinguishes
// a warm reset from a cold one; the emulator treats both identically.
func (h *Handler) Reset(warm bool) []byte {
	h.pendingRequest = nil
	h.pendingResponse = nil
	return h.ATR()
}

// ProcessAPDU dispatches one inbound APDU and always returns a
// complete response whose last two bytes are a valid SW1SW2. It never
// panics on ill-formed input.
func (h *Handler) ProcessAPDU(raw []byte) []byte {
	cmd, err := iso7816.ParseCommandAPDU(raw)
	if err != nil {
		h.logger.Debug().Err(err).Msg("malformed APDU")
		return swResponse(iso7816.SW_ERR_INS_INVALID)
	}

	if cmd.Class.Raw != 0x00 && cmd.Class.Raw != 0x10 {
		h.logger.Debug().Uint8("cla", cmd.Class.Raw).Msg("unsupported CLA")
		return swResponse(iso7816.SW_ERR_INS_INVALID)
	}

	// An interleaved non-GET-RESPONSE APDU abandons any response
	// currently being drained (spec.md §9, open question resolution).
	if cmd.Instruction.Raw != iso7816.INS_GET_RESPONSE {
		h.pendingResponse = nil
	}

	switch cmd.Instruction.Raw {
	case iso7816.INS_SELECT:
		if cmd.P1 != 0x04 {
			return swResponse(iso7816.SW_ERR_INS_INVALID)
		}
		return h.handleSelect(cmd)
	case iso7816.INS_VERIFY:
		if cmd.P1 != 0x00 || cmd.P2 != 0x80 {
			return swResponse(iso7816.SW_ERR_INS_INVALID)
		}
		return swResponse(iso7816.SW_NO_ERROR)
	case iso7816.INS_GENERAL_AUTHENTICATE_BER:
		return h.handleGeneralAuthenticate(cmd)
	case iso7816.INS_GET_RESPONSE:
		if cmd.P1 != 0x00 || cmd.P2 != 0x00 {
			return swResponse(iso7816.SW_ERR_INS_INVALID)
		}
		return h.handleGetResponse()
	case iso7816.INS_GET_DATA_BER:
		if cmd.P1 != 0x3F || cmd.P2 != 0xFF {
			return swResponse(iso7816.SW_ERR_INS_INVALID)
		}
		return h.handleGetData(cmd)
	default:
		h.logger.Debug().Uint8("ins", byte(cmd.Instruction.Raw)).Msg("unsupported INS")
		return swResponse(iso7816.SW_ERR_INS_INVALID)
	}
}

func (h *Handler) handleSelect(cmd *iso7816.CommandAPDU) []byte {
	if !bytes.Equal(cmd.Data, AID) {
		h.logger.Info().Msg("select: unknown AID")
		return swResponse(iso7816.SW_ERR_FILE_NOT_FOUND)
	}
	return h.chainResponse(h.selectResponse, iso7816.SW_NO_ERROR)
}

func (h *Handler) handleGetData(cmd *iso7816.CommandAPDU) []byte {
	r := tlv.NewReader(cmd.Data)
	raw, ok := r.TryReadValue(getDataTag)
	if !ok {
		return swResponse(iso7816.SW_ERR_FILE_NOT_FOUND)
	}
	tag := decodeObjectTag(raw)

	body, ok := h.dataObjectBody(tag)
	if !ok {
		h.logger.Info().Uint32("tag", tag).Msg("get data: unknown object")
		return swResponse(iso7816.SW_ERR_FILE_NOT_FOUND)
	}
	return h.chainResponse(body, iso7816.SW_NO_ERROR)
}

func (h *Handler) dataObjectBody(tag uint32) ([]byte, bool) {
	switch tag {
	case TagDiscovery:
		return h.discoveryObject, true
	case TagCCC:
		body, err := h.ccc.Encode()
		if err != nil {
			return nil, false
		}
		return body, true
	case TagCHUID:
		body, err := h.chuid.Encode()
		if err != nil {
			return nil, false
		}
		return body, true
	case TagCertPIVAuth, TagCertCardAuth, TagCertSign:
		return h.certObject, true
	default:
		return nil, false
	}
}

func (h *Handler) handleGeneralAuthenticate(cmd *iso7816.CommandAPDU) []byte {
	if cmd.Class.IsChained {
		h.pendingRequest = append(h.pendingRequest, cmd.Data...)
		return swResponse(iso7816.SW_NO_ERROR)
	}

	payload := append(h.pendingRequest, cmd.Data...)
	h.pendingRequest = nil

	signData, err := parseGeneralAuthenticatePayload(payload)
	if err != nil {
		h.logger.Debug().Err(err).Msg("general authenticate: malformed payload")
		return swResponse(iso7816.SW_ERR_FILE_NOT_FOUND)
	}

	signature, err := h.signer.Sign(h.key, signData)
	if err != nil {
		h.logger.Debug().Err(err).Msg("general authenticate: signing precondition failed")
		return swResponse(iso7816.SW_ERR_INS_INVALID)
	}

	body, err := encodeGeneralAuthenticateResponse(signature)
	if err != nil {
		return swResponse(iso7816.SW_ERR_FILE_NOT_FOUND)
	}
	return h.chainResponse(body, iso7816.SW_NO_ERROR)
}

func (h *Handler) handleGetResponse() []byte {
	if h.pendingResponse == nil {
		return swResponse(iso7816.NewStatusWord(0x61, 0x00))
	}
	remaining := h.pendingResponse.remaining
	if len(remaining) <= responseWindow {
		h.pendingResponse = nil
		return iso7816.NewResponseAPDU(remaining, iso7816.SW_NO_ERROR).Bytes()
	}
	chunk := remaining[:responseWindow]
	h.pendingResponse.remaining = remaining[responseWindow:]
	return iso7816.NewResponseAPDU(chunk, iso7816.NewStatusWord(0x61, moreBytesByte(h.pendingResponse.remaining))).Bytes()
}

// chainResponse returns body in full if it fits one response, or the
// first window plus 61XX and stores the remainder for GET RESPONSE.
func (h *Handler) chainResponse(body []byte, final iso7816.StatusWord) []byte {
	if len(body) <= responseWindow {
		return iso7816.NewResponseAPDU(body, final).Bytes()
	}
	first := body[:responseWindow]
	remaining := body[responseWindow:]
	h.pendingResponse = &pendingResponse{remaining: remaining}
	return iso7816.NewResponseAPDU(first, iso7816.NewStatusWord(0x61, moreBytesByte(remaining))).Bytes()
}

func moreBytesByte(remaining []byte) byte {
	if len(remaining) > 0xFF {
		return 0xFF
	}
	return byte(len(remaining))
}

func swResponse(sw iso7816.StatusWord) []byte {
	return iso7816.NewResponseAPDU(nil, sw).Bytes()
}

// decodeObjectTag interprets raw as a big-endian integer: PIV GET DATA
// object identifiers (spec.md §4.5) are carried as the value of a 0x5C
// TLV, not as TLV tags themselves.
func decodeObjectTag(raw []byte) uint32 {
	var v uint32
	for _, b := range raw {
		v = v<<8 | uint32(b)
	}
	return v
}

func parseGeneralAuthenticatePayload(payload []byte) ([]byte, error) {
	r := tlv.NewReader(payload)
	inner, err := r.ReadNested(generalAuthTag)
	if err != nil {
		return nil, err
	}
	if _, err := inner.ReadValue(generalAuthRespTag); err != nil {
		return nil, err
	}
	return inner.ReadValue(generalAuthDataTag)
}

func encodeGeneralAuthenticateResponse(signature []byte) ([]byte, error) {
	w := tlv.NewWriter()
	err := w.Nested(generalAuthTag, func(inner *tlv.Writer) error {
		return inner.WriteValue(generalAuthRespTag, signature)
	})
	if err != nil {
		return nil, err
	}
	return w.Encode()
}

// buildSelectResponse renders the fixed SELECT APPLICATION response
// body, bit-exact per spec.md §4.5.
func buildSelectResponse() ([]byte, error) {
	w := tlv.NewWriter()
	err := w.Nested(selectTag, func(inner *tlv.Writer) error {
		if err := inner.WriteValue(selectPIXTag, []byte{0x00, 0x00, 0x10, 0x00, 0x01, 0x00}); err != nil {
			return err
		}
		if err := inner.Nested(selectCoexistTag, func(coexist *tlv.Writer) error {
			return coexist.WriteValue(selectPIXTag, AID)
		}); err != nil {
			return err
		}
		if err := inner.WriteString(selectAppLabelTag, AppDescription, tlv.ASCII); err != nil {
			return err
		}
		return inner.Nested(selectCapTag, func(capScope *tlv.Writer) error {
			for _, alg := range []byte{0x03, 0x08, 0x0A, 0x0C, 0x06, 0x07, 0x11, 0x14} {
				if err := capScope.WriteValue(selectAlgIDTag, []byte{alg}); err != nil {
					return err
				}
			}
			return capScope.WriteValue(selectObjectIDTag, nil)
		})
	})
	if err != nil {
		return nil, err
	}
	return w.Encode()
}

// buildDiscoveryObject renders the PIV Discovery Object returned for
// GET DATA tag 0x7E, bit-exact per spec.md §8 scenario 4.
func buildDiscoveryObject() ([]byte, error) {
	w := tlv.NewWriter()
	extendedAID := append(append([]byte{}, AID...), 0x01, 0x00)
	err := w.Nested(discoveryTag, func(inner *tlv.Writer) error {
		if err := inner.WriteValue(discoveryAIDTag, extendedAID); err != nil {
			return err
		}
		return inner.WriteValue(discoveryPolicyTag, []byte{0x40, 0x00})
	})
	if err != nil {
		return nil, err
	}
	return w.Encode()
}

// buildCertObject renders the fixed-shape certificate data object
// (spec.md §4.5) shared by the PIV-Auth, Card-Auth and Sign slots: the
// emulator only ever holds one operator-supplied key pair.
func buildCertObject(certDER []byte) ([]byte, error) {
	w := tlv.NewWriter()
	err := w.Nested(certObjTag, func(inner *tlv.Writer) error {
		if err := inner.WriteValue(certValueTag, certDER); err != nil {
			return err
		}
		if err := inner.WriteByte(certInfoTag, 0x00); err != nil {
			return err
		}
		return inner.WriteValue(certLRCTag, nil)
	})
	if err != nil {
		return nil, err
	}
	return w.Encode()
}
