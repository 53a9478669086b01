package transport

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pivert/pivert/internal/piv"
	"github.com/pivert/pivert/pkg/iso7816"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	key := &piv.KeyMaterial{PrivateKey: priv, CertDER: []byte{0xDE, 0xAD, 0xBE, 0xEF}}
	h, err := piv.NewHandler(key, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return NewSession(h, zerolog.Nop())
}

func encodeFrame(data []byte) []byte {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, data); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func encodeCommand(cmd uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], cmd)
	return buf[:]
}

func TestReadWriteFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0x01, 0x02, 0x03}
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadFrame() = % X, want % X", got, payload)
	}
}

func TestReadFrameEmpty(t *testing.T) {
	buf := bytes.NewBuffer(encodeFrame(nil))
	got, err := ReadFrame(buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadFrame() = % X, want empty", got)
	}
}

func TestSessionGetATR(t *testing.T) {
	s := newTestSession(t)

	in := bytes.NewBuffer(encodeCommand(CmdGetATR))
	var out bytes.Buffer
	if err := s.Serve(in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	got, err := ReadFrame(&out)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, s.Handler.ATR()) {
		t.Errorf("ATR = % X, want % X", got, s.Handler.ATR())
	}
}

func TestSessionGetATRNoCard(t *testing.T) {
	s := newTestSession(t)
	s.CardPresent = false

	in := bytes.NewBuffer(encodeCommand(CmdGetATR))
	var out bytes.Buffer
	if err := s.Serve(in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	got, err := ReadFrame(&out)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ATR = % X, want empty with no card present", got)
	}
}

func TestSessionReset(t *testing.T) {
	s := newTestSession(t)

	var in bytes.Buffer
	in.Write(encodeCommand(CmdReset))
	var out bytes.Buffer
	if err := s.Serve(&in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	got, err := ReadFrame(&out)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, s.Handler.ATR()) {
		t.Errorf("ATR after reset = % X, want % X", got, s.Handler.ATR())
	}
}

func TestSessionAPDU(t *testing.T) {
	s := newTestSession(t)

	class, err := iso7816.NewClass(0x00)
	if err != nil {
		t.Fatalf("NewClass: %v", err)
	}
	instruction, err := iso7816.NewInstruction(iso7816.INS_SELECT)
	if err != nil {
		t.Fatalf("NewInstruction: %v", err)
	}
	apdu, err := iso7816.NewCommandAPDU(class, instruction, 0x04, 0x00, piv.AID, 0).Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	var in bytes.Buffer
	in.Write(encodeCommand(CmdAPDU))
	in.Write(encodeFrame(apdu))

	var out bytes.Buffer
	if err := s.Serve(&in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	resp, err := ReadFrame(&out)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(resp) < 2 {
		t.Fatalf("response too short: % X", resp)
	}
	sw1, sw2 := resp[len(resp)-2], resp[len(resp)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		t.Errorf("SW = %02X%02X, want 9000", sw1, sw2)
	}
}

func TestSessionServeEOFIsClean(t *testing.T) {
	s := newTestSession(t)
	if err := s.Serve(bytes.NewReader(nil), io.Discard); err != nil {
		t.Errorf("Serve on empty input: %v", err)
	}
}

func TestSessionServeMultipleCommands(t *testing.T) {
	s := newTestSession(t)

	var in bytes.Buffer
	in.Write(encodeCommand(CmdGetATR))
	in.Write(encodeCommand(CmdGetATR))

	var out bytes.Buffer
	if err := s.Serve(&in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	first, err := ReadFrame(&out)
	if err != nil {
		t.Fatalf("ReadFrame (first): %v", err)
	}
	second, err := ReadFrame(&out)
	if err != nil {
		t.Fatalf("ReadFrame (second): %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("two GET-ATR replies differ: % X vs % X", first, second)
	}
}

func TestSessionUnknownCommand(t *testing.T) {
	s := newTestSession(t)
	in := bytes.NewBuffer(encodeCommand(0xFFFFFFFF))
	if err := s.Serve(in, io.Discard); err == nil {
		t.Fatal("expected an error for an unknown data channel command")
	}
}

func TestSessionEmitEvents(t *testing.T) {
	s := newTestSession(t)

	var inserted bytes.Buffer
	if err := s.EmitCardInserted(&inserted); err != nil {
		t.Fatalf("EmitCardInserted: %v", err)
	}
	if binary.LittleEndian.Uint32(inserted.Bytes()) != EventCardInserted {
		t.Errorf("EmitCardInserted wrote %v, want %d", inserted.Bytes(), EventCardInserted)
	}

	var removed bytes.Buffer
	if err := s.EmitCardRemoved(&removed); err != nil {
		t.Fatalf("EmitCardRemoved: %v", err)
	}
	if binary.LittleEndian.Uint32(removed.Bytes()) != EventCardRemoved {
		t.Errorf("EmitCardRemoved wrote %v, want %d", removed.Bytes(), EventCardRemoved)
	}
}
