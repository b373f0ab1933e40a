// Package b64url decodes and encodes the unpadded URL-safe base64 variant
// used by embed providers for ciphertext transport (RFC 4648, `+`->`-`,
// `/`->`_`, `=` stripped). Decoding is tolerant: it accepts either alphabet
// and any padding state, since providers are not consistent about them.
package b64url

import (
	"encoding/base64"
	"strings"
)

// Encode encodes bytes as unpadded URL-safe base64.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode decodes URL-safe or standard base64, padded or not.
func Decode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "+", "-")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.TrimRight(s, "=")
	return base64.RawURLEncoding.DecodeString(s)
}
