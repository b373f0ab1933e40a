package b64url

import (
	"bytes"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "no padding needed",
			input:    []byte{0xFF, 0xFE, 0xFD},
			expected: "__79",
		},
		{
			name:     "padding stripped",
			input:    []byte{0xFB},
			expected: "-w",
		},
		{
			name:     "empty",
			input:    nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.input); got != tt.expected {
				t.Errorf("Encode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []byte
		wantErr  bool
	}{
		{
			name:     "url safe unpadded",
			input:    "__79",
			expected: []byte{0xFF, 0xFE, 0xFD},
		},
		{
			name:     "standard alphabet",
			input:    "//79",
			expected: []byte{0xFF, 0xFE, 0xFD},
		},
		{
			name:     "padded",
			input:    "-w==",
			expected: []byte{0xFB},
		},
		{
			name:     "padded standard",
			input:    "+w==",
			expected: []byte{0xFB},
		},
		{
			name:     "surrounding whitespace",
			input:    "  __79\n",
			expected: []byte{0xFF, 0xFE, 0xFD},
		},
		{
			name:    "garbage",
			input:   "!!!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("Decode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x00},
		{0x01, 0x02, 0x03, 0x04, 0x05},
		bytes.Repeat([]byte{0xAB}, 64),
	}
	for _, in := range inputs {
		out, err := Decode(Encode(in))
		if err != nil {
			t.Fatalf("round trip error for %v: %v", in, err)
		}
		if !bytes.Equal(out, in) {
			t.Errorf("round trip mismatch: %v != %v", out, in)
		}
	}
}
