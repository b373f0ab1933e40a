package types

// PositionMapping maps a plaintext character index to the byte offset it
// occupies in the ciphertext payload (relative to the end of the header).
//
// The mapping is piecewise: indices below Cutover use the explicit Early
// table (sparse offsets interleaved with constant padding), indices at or
// beyond Cutover follow Base + Step*(index-Cutover). Offsets are strictly
// increasing.
type PositionMapping struct {
	Early   []int `json:"early,omitempty"`
	Cutover int   `json:"cutover"`
	Base    int   `json:"base"`
	Step    int   `json:"step"`
}

// Offset returns the payload offset occupied by plaintext index i.
// i must be non-negative.
func (m PositionMapping) Offset(i int) int {
	if i < m.Cutover {
		return m.Early[i]
	}
	return m.Base + m.Step*(i-m.Cutover)
}

// MaxIndex returns how many plaintext indices fit in a payload of the given
// length, i.e. the count of indices whose offset lies inside the payload.
func (m PositionMapping) MaxIndex(payloadLen int) int {
	n := 0
	for m.Offset(n) < payloadLen {
		n++
	}
	return n
}

// Valid reports whether the mapping is internally consistent: a complete
// early table, strictly increasing offsets, and a positive linear step.
func (m PositionMapping) Valid() bool {
	if m.Cutover < 0 || len(m.Early) != m.Cutover || m.Step <= 0 {
		return false
	}
	prev := -1
	for _, off := range m.Early {
		if off <= prev {
			return false
		}
		prev = off
	}
	return m.Base > prev
}

// Structure is the structural model recovered from raw samples: the fixed
// header, the plaintext-independent padding bytes, and the position mapping.
type Structure struct {
	Header  []byte          `json:"header"`
	Padding map[int]byte    `json:"padding,omitempty"`
	Mapping PositionMapping `json:"mapping"`
}

// PayloadLen returns the payload length produced by encoding n characters:
// every offset below where character n would land is populated, either by a
// mapped character or by constant padding.
func (s Structure) PayloadLen(n int) int {
	return s.Mapping.Offset(n)
}

// Equal reports whether two structures describe the same transform layout.
func (s Structure) Equal(other Structure) bool {
	if len(s.Header) != len(other.Header) {
		return false
	}
	for i := range s.Header {
		if s.Header[i] != other.Header[i] {
			return false
		}
	}
	if len(s.Padding) != len(other.Padding) {
		return false
	}
	for off, b := range s.Padding {
		if ob, ok := other.Padding[off]; !ok || ob != b {
			return false
		}
	}
	if s.Mapping.Cutover != other.Mapping.Cutover ||
		s.Mapping.Base != other.Mapping.Base ||
		s.Mapping.Step != other.Mapping.Step {
		return false
	}
	for i, off := range s.Mapping.Early {
		if other.Mapping.Early[i] != off {
			return false
		}
	}
	return true
}
