// Package qr renders deep links as scannable PNG images.
package qr

import (
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// MaxPayloadLen is the practical capacity of a QR payload for alphanumeric
// content. Longer inputs are rejected before encoding is attempted.
const MaxPayloadLen = 4296

const defaultSize = 256

// ErrPayloadTooLarge indicates the input exceeds QR capacity.
var ErrPayloadTooLarge = errors.New("qr: payload exceeds encoding capacity")

// Options tune QR rendering.
type Options struct {
	// Level is the error correction level: low, medium, high, or highest.
	Level string
	// Size is the output image width and height in pixels.
	Size int
}

// Encode validates the payload and renders it as a PNG.
func Encode(text string, opts Options) ([]byte, error) {
	if text == "" {
		return nil, errors.New("qr: payload is empty")
	}
	if len(text) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d > %d characters", ErrPayloadTooLarge, len(text), MaxPayloadLen)
	}

	level, err := recoveryLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	size := opts.Size
	if size <= 0 {
		size = defaultSize
	}

	png, err := qrcode.Encode(text, level, size)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return png, nil
}

func recoveryLevel(name string) (qrcode.RecoveryLevel, error) {
	switch strings.ToLower(name) {
	case "", "medium":
		return qrcode.Medium, nil
	case "low":
		return qrcode.Low, nil
	case "high":
		return qrcode.High, nil
	case "highest":
		return qrcode.Highest, nil
	default:
		return qrcode.Medium, fmt.Errorf("qr: unknown error correction level %q", name)
	}
}
