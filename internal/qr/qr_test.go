package qr

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestEncodeProducesPNG(t *testing.T) {
	png, err := Encode("https://app.gastopup.example/deeplink?chain=base&amount=5&address=0x1", Options{})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Fatal("output should be a PNG image")
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(strings.Repeat("A", MaxPayloadLen+1), Options{})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestEncodeAcceptsPayloadAtLimit(t *testing.T) {
	// Capacity checking happens before encoding; the limit itself passes
	// validation (the encoder may still pick a dense version).
	if _, err := Encode(strings.Repeat("A", MaxPayloadLen), Options{Level: "low"}); errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("payload at the limit must pass validation, got %v", err)
	}
}

func TestEncodeRejectsEmptyPayload(t *testing.T) {
	if _, err := Encode("", Options{}); err == nil {
		t.Fatal("empty payload should error")
	}
}

func TestEncodeRejectsUnknownLevel(t *testing.T) {
	if _, err := Encode("payload", Options{Level: "extreme"}); err == nil {
		t.Fatal("unknown level should error")
	}
}

func TestRecoveryLevels(t *testing.T) {
	for _, level := range []string{"", "low", "medium", "high", "highest"} {
		if _, err := Encode("payload", Options{Level: level, Size: 64}); err != nil {
			t.Fatalf("level %q should encode: %v", level, err)
		}
	}
}
