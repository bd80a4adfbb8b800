package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// HashContent berechnet den SHA-256 eines Inhalts als Hex-String.
// Leere oder unlesbare Eingaben liefern ErrHashing.
func HashContent(r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: nil reader", ErrHashing)
	}
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashing, err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrHashing)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes ist HashContent für einen Byte-Slice.
func HashBytes(payload []byte) (string, error) {
	return HashContent(bytes.NewReader(payload))
}
