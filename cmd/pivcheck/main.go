// Command pivcheck is a PC/SC verification client: it drives a live
// reader (physical or the virtual one pivertd registers) through the
// same SELECT / GET DATA / GENERAL AUTHENTICATE exchanges a PIV host
// would, and reports whether the card's answers match what spec.md
// promises. It never ships inside the emulator core — it is the
// collaborator described, not implemented, by spec.md §6.
package main

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"math/big"
	"os"

	"github.com/ebfe/scard"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/pivert/pivert/internal/piv"
	"github.com/pivert/pivert/pkg/iso7816"
	"github.com/pivert/pivert/pkg/tlv"
)

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	if err := run(logger); err != nil {
		logger.Error().Err(err).Msg("verification failed")
		os.Exit(1)
	}
	logger.Info().Msg("all checks passed")
}

func run(logger zerolog.Logger) error {
	ctx, card, err := connectToCard(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			logger.Warn().Err(err).Msg("disconnect")
		}
		if err := ctx.Release(); err != nil {
			logger.Warn().Err(err).Msg("release context")
		}
	}()

	client := iso7816.NewClient(card)
	cla, err := iso7816.NewClass(0x00)
	if err != nil {
		return err
	}

	if err := checkSelect(client, cla, logger); err != nil {
		return err
	}
	if err := checkDiscovery(client, cla, logger); err != nil {
		return err
	}
	if err := checkCHUID(client, cla, logger); err != nil {
		return err
	}
	if err := checkCCC(client, cla, logger); err != nil {
		return err
	}
	if err := checkGeneralAuthenticate(client, cla, logger); err != nil {
		return err
	}
	return nil
}

// connectToCard establishes a PC/SC context and connects to the first
// available reader, matching the teacher's setup in its main demo.
func connectToCard(logger zerolog.Logger) (*scard.Context, *scard.Card, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, nil, fmt.Errorf("establish context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		_ = ctx.Release()
		return nil, nil, fmt.Errorf("no smart card reader found: %w", err)
	}
	logger.Info().Str("reader", readers[0]).Msg("using reader")

	card, err := ctx.Connect(readers[0], scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		_ = ctx.Release()
		return nil, nil, fmt.Errorf("connect to card: %w", err)
	}
	return ctx, card, nil
}

func checkSelect(client *iso7816.Client, cla iso7816.Class, logger zerolog.Logger) error {
	trace, err := client.Send(iso7816.SelectByAID(cla, piv.AID))
	if err != nil {
		return fmt.Errorf("select PIV AID: %w", err)
	}
	if !trace.IsSuccess() {
		return fmt.Errorf("select PIV AID: status %s", trace.Last().Response.Status.Verbose())
	}
	logger.Info().Msg("select PIV application: ok")
	return nil
}

func checkDiscovery(client *iso7816.Client, cla iso7816.Class, logger zerolog.Logger) error {
	body, err := getData(client, cla, piv.TagDiscovery)
	if err != nil {
		return fmt.Errorf("get data (discovery): %w", err)
	}
	r := tlv.NewReader(body)
	inner, err := r.ReadNested(0x7E)
	if err != nil {
		return fmt.Errorf("discovery object did not parse as a 0x7E template: %w", err)
	}
	if _, err := inner.ReadValue(0x4F); err != nil {
		return fmt.Errorf("discovery object missing AID entry: %w", err)
	}
	logger.Debug().Str("dump", tlv.Dump(body)).Msg("discovery object")
	logger.Info().Msg("get data (discovery): ok")
	return nil
}

func checkCHUID(client *iso7816.Client, cla iso7816.Class, logger zerolog.Logger) error {
	body, err := getData(client, cla, piv.TagCHUID)
	if err != nil {
		return fmt.Errorf("get data (CHUID): %w", err)
	}
	chuid := piv.NewCHUID()
	if !chuid.TryDecode(body) {
		return fmt.Errorf("CHUID failed schema validation (FASC-N/expiry/signature/LRC)")
	}
	guid := chuid.Guid()
	if cmp.Equal(guid, [16]byte{}) {
		return fmt.Errorf("CHUID GUID is all zero, expected a random value")
	}
	logger.Debug().Str("dump", tlv.Dump(body)).Msg("CHUID object")
	logger.Info().Str("guid", fmt.Sprintf("%X", guid)).Msg("get data (CHUID): ok")
	return nil
}

func checkCCC(client *iso7816.Client, cla iso7816.Class, logger zerolog.Logger) error {
	body, err := getData(client, cla, piv.TagCCC)
	if err != nil {
		return fmt.Errorf("get data (CCC): %w", err)
	}
	ccc := piv.NewCCC()
	if !ccc.TryDecode(body) {
		return fmt.Errorf("CCC failed schema validation")
	}
	logger.Info().Msg("get data (CCC): ok")
	return nil
}

// getData issues one PIV GET DATA request for objectTag and returns its
// fully reassembled value, following 61XX GET RESPONSE chaining
// automatically via Client.Send.
func getData(client *iso7816.Client, cla iso7816.Class, objectTag uint32) ([]byte, error) {
	w := tlv.NewWriter()
	tagBytes, width := encodeObjectTag(objectTag)
	if err := w.WriteValue(0x5C, tagBytes[len(tagBytes)-width:]); err != nil {
		return nil, err
	}
	data, err := w.Encode()
	if err != nil {
		return nil, err
	}

	ins, err := iso7816.NewInstruction(iso7816.INS_GET_DATA_BER)
	if err != nil {
		return nil, err
	}
	cmd := iso7816.NewCommandAPDU(cla, ins, 0x3F, 0xFF, data, iso7816.MaxShortLe)

	trace, err := client.Send(cmd)
	if err != nil {
		return nil, err
	}
	if !trace.IsSuccess() {
		return nil, fmt.Errorf("status %s", trace.Last().Response.Status.Verbose())
	}

	var body []byte
	for _, tx := range trace {
		body = append(body, tx.Response.Data...)
	}
	return body, nil
}

func encodeObjectTag(tag uint32) ([4]byte, int) {
	var b [4]byte
	b[0], b[1], b[2], b[3] = byte(tag>>24), byte(tag>>16), byte(tag>>8), byte(tag)
	switch {
	case tag > 0xFFFFFF:
		return b, 4
	case tag > 0xFFFF:
		return b, 3
	case tag > 0xFF:
		return b, 2
	default:
		return b, 1
	}
}

// checkGeneralAuthenticate exercises a chained command followed by a
// chained response, then confirms the returned bytes are a raw RSA
// signature of the challenge under the certificate handed back from
// GET DATA for the PIV-Auth slot (spec.md §8 scenario 6).
func checkGeneralAuthenticate(client *iso7816.Client, cla iso7816.Class, logger zerolog.Logger) error {
	certBody, err := getData(client, cla, piv.TagCertPIVAuth)
	if err != nil {
		return fmt.Errorf("get data (cert): %w", err)
	}
	certDER, err := extractCertDER(certBody)
	if err != nil {
		return fmt.Errorf("extract certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parse certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is %T, want *rsa.PublicKey", cert.PublicKey)
	}

	challenge := make([]byte, 256)
	for i := range challenge {
		challenge[i] = byte(i)
	}

	w := tlv.NewWriter()
	err = w.Nested(0x7C, func(inner *tlv.Writer) error {
		if err := inner.WriteValue(0x82, nil); err != nil {
			return err
		}
		return inner.WriteValue(0x81, challenge)
	})
	if err != nil {
		return err
	}
	payload, err := w.Encode()
	if err != nil {
		return err
	}

	ins, err := iso7816.NewInstruction(iso7816.INS_GENERAL_AUTHENTICATE_BER)
	if err != nil {
		return err
	}
	chainedCla, err := iso7816.NewClass(0x10)
	if err != nil {
		return err
	}

	const chunk = 200
	trace := iso7816.Trace{}
	for off := 0; off < len(payload); off += chunk {
		end := off + chunk
		isLast := end >= len(payload)
		if end > len(payload) {
			end = len(payload)
		}
		useCla, ne := chainedCla, 0
		if isLast {
			useCla, ne = cla, iso7816.MaxShortLe
		}
		cmd := iso7816.NewCommandAPDU(useCla, ins, 0x07, 0x9A, payload[off:end], ne)
		sub, err := client.Send(cmd)
		if err != nil {
			return fmt.Errorf("general authenticate: %w", err)
		}
		trace = append(trace, sub...)
		if !isLast && !sub.IsSuccess() {
			return fmt.Errorf("general authenticate (chained fragment): status %s", sub.Last().Response.Status.Verbose())
		}
	}
	if !trace.IsSuccess() {
		return fmt.Errorf("general authenticate: status %s", trace.Last().Response.Status.Verbose())
	}

	var respBody []byte
	for _, tx := range trace {
		respBody = append(respBody, tx.Response.Data...)
	}

	r := tlv.NewReader(respBody)
	inner, err := r.ReadNested(0x7C)
	if err != nil {
		return fmt.Errorf("general authenticate response did not parse as a 0x7C template: %w", err)
	}
	signature, err := inner.ReadValue(0x82)
	if err != nil {
		return fmt.Errorf("general authenticate response missing 0x82 signature value: %w", err)
	}

	sig := new(big.Int).SetBytes(signature)
	e := big.NewInt(int64(pub.E))
	recovered := new(big.Int).Exp(sig, e, pub.N)
	want := new(big.Int).SetBytes(challenge)
	if recovered.Cmp(want) != 0 {
		return fmt.Errorf("raw RSA signature does not verify against the PIV-Auth certificate")
	}

	logger.Info().Msg("general authenticate (chained challenge/response): ok")
	return nil
}

func extractCertDER(certObject []byte) ([]byte, error) {
	r := tlv.NewReader(certObject)
	inner, err := r.ReadNested(0x53)
	if err != nil {
		return nil, err
	}
	return inner.ReadValue(0x70)
}
