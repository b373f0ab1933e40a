package main

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Providers return ciphertexts in inconsistent base64 dialects: standard
// alphabet, URL-safe, padded, unpadded, sometimes with whitespace. The
// recovery pipeline must normalize all of them to the same bytes.
func testCiphertextNormalization() {
	cases := []struct {
		name  string
		input string
	}{
		{"url-safe unpadded", "3q2-7w"},
		{"standard alphabet", "3q2+7w"},
		{"padded", "3q2-7w=="},
		{"surrounding space", "  3q2-7w\n"},
	}

	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	for _, tc := range cases {
		got, err := normalizeB64(tc.input)
		switch {
		case err != nil:
			fmt.Printf("   ❌ %s: %v\n", tc.name, err)
		case string(got) != string(want):
			fmt.Printf("   ❌ %s: got % X\n", tc.name, got)
		default:
			fmt.Printf("   ✅ %s normalizes correctly\n", tc.name)
		}
	}
}

func normalizeB64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "+", "-")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.TrimRight(s, "=")
	return base64.RawURLEncoding.DecodeString(s)
}
