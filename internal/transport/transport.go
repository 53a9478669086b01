// Package transport implements the virtual-reader wire protocol
// (spec.md §6): two byte-stream channels, both framed as a 32-bit
// little-endian length prefix followed by that many bytes, carrying
// reset/get-ATR/APDU traffic to an internal/piv.Handler and
// card-inserted/removed notifications back out.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/pivert/pivert/internal/piv"
)

// Data channel commands, host to emulator.
const (
	CmdReset  uint32 = 0x00000000
	CmdGetATR uint32 = 0x00000001
	CmdAPDU   uint32 = 0x00000002
)

// Event channel notifications, emulator to host.
const (
	EventCardRemoved  uint32 = 0
	EventCardInserted uint32 = 1
)

// ReadFrame reads one 32-bit little-endian length prefix followed by
// that many bytes.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read frame body (%d bytes): %w", n, err)
	}
	return buf, nil
}

// WriteFrame writes data as a 32-bit little-endian length prefix
// followed by the bytes themselves.
func WriteFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// writeCommand writes a bare 32-bit little-endian command word, used
// for both the data channel's command prefix and the event channel.
func writeCommand(w io.Writer, cmd uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], cmd)
	_, err := w.Write(buf[:])
	return err
}

func readCommand(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Session binds one Handler to one virtual-reader connection. CardPresent
// reports whether reset/get-ATR should return the ATR or an empty frame;
// the emulator always has exactly one card "inserted" once a credential
// has loaded, but the field exists so a future multi-slot host can flip
// it per session without touching the framing logic.
type Session struct {
	Handler     *piv.Handler
	CardPresent bool
	Logger      zerolog.Logger
}

// NewSession constructs a Session with the card present by default.
func NewSession(h *piv.Handler, logger zerolog.Logger) *Session {
	return &Session{Handler: h, CardPresent: true, Logger: logger}
}

// EmitCardInserted writes the card-inserted notification to the event
// channel.
func (s *Session) EmitCardInserted(events io.Writer) error {
	s.Logger.Info().Msg("card inserted")
	return writeCommand(events, EventCardInserted)
}

// EmitCardRemoved writes the card-removed notification to the event
// channel.
func (s *Session) EmitCardRemoved(events io.Writer) error {
	s.Logger.Info().Msg("card removed")
	return writeCommand(events, EventCardRemoved)
}

// Serve reads data-channel commands from r and writes replies to w
// until r returns an error (including io.EOF, which Serve treats as a
// clean shutdown and reports as nil).
func (s *Session) Serve(r io.Reader, w io.Writer) error {
	for {
		cmd, err := readCommand(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}
		if err := s.handleCommand(cmd, r, w); err != nil {
			return err
		}
	}
}

func (s *Session) handleCommand(cmd uint32, r io.Reader, w io.Writer) error {
	switch cmd {
	case CmdReset:
		s.Logger.Info().Msg("reset")
		atr := s.Handler.Reset(true)
		return s.replyATR(w, atr)

	case CmdGetATR:
		return s.replyATR(w, s.Handler.ATR())

	case CmdAPDU:
		apdu, err := ReadFrame(r)
		if err != nil {
			return fmt.Errorf("read APDU frame: %w", err)
		}
		s.Logger.Debug().Int("len", len(apdu)).Msg("apdu in")
		resp := s.Handler.ProcessAPDU(apdu)
		s.Logger.Debug().Int("len", len(resp)).Msg("apdu out")
		return WriteFrame(w, resp)

	default:
		return fmt.Errorf("unknown data channel command 0x%08X", cmd)
	}
}

func (s *Session) replyATR(w io.Writer, atr []byte) error {
	if !s.CardPresent {
		return WriteFrame(w, nil)
	}
	return WriteFrame(w, atr)
}
