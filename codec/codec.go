// Package codec is the runtime replacement for the provider's oracle: pure,
// stateless encode/decode over a recovered artifact, no network.
package codec

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/flyxtv/embedcodec/artifact"
	"github.com/flyxtv/embedcodec/errs"
	"github.com/flyxtv/embedcodec/internal/b64url"
	"github.com/flyxtv/embedcodec/types"
)

// fallbackChar is tried first when encoding a character outside a
// position's table. If the position never saw it either, the lowest mapped
// character's byte is emitted instead. Either way the output stays decodable
// but is lossy for that character.
const fallbackChar = '?'

// Codec reproduces a recovered transform. It is immutable after New and
// safe for unsynchronized concurrent use.
type Codec struct {
	provider  string
	mode      types.Mode
	structure types.Structure

	encode map[int]map[byte]byte
	decode map[int]map[byte]byte
	maxPos int

	keystream []byte
	horizon   int
}

// New validates the artifact and precomputes the decrypt tables. Colliding
// cipher bytes decode to the lowest plaintext character that produced them;
// collisions are a property of the transform, not repairable here.
func New(a *artifact.Artifact) (*Codec, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	s, err := a.Structure()
	if err != nil {
		return nil, err
	}

	c := &Codec{provider: a.Provider, mode: a.Mode, structure: s}
	switch a.Mode {
	case types.ModeSubstitution:
		c.encode = make(map[int]map[byte]byte, len(a.Positions))
		c.decode = make(map[int]map[byte]byte, len(a.Positions))
		for _, pt := range a.Positions {
			table, err := pt.Table()
			if err != nil {
				return nil, err
			}
			c.encode[pt.Position] = table
			c.decode[pt.Position] = invert(table)
			if pt.Position >= c.maxPos {
				c.maxPos = pt.Position + 1
			}
		}
	case types.ModeKeystream:
		c.keystream, err = a.KeystreamBytes()
		if err != nil {
			return nil, err
		}
		c.horizon = a.StabilityHorizon
		c.maxPos = c.horizon
	}
	return c, nil
}

// Provider returns the provider the artifact was recovered from.
func (c *Codec) Provider() string { return c.provider }

// Mode returns the transform model.
func (c *Codec) Mode() types.Mode { return c.mode }

// MaxPosition returns the number of plaintext positions the codec can serve.
func (c *Codec) MaxPosition() int { return c.maxPos }

// Encode transforms a plaintext the way the provider's encoder does and
// returns unpadded base64url. Characters outside a position's table are
// replaced by the fallback byte. A position with no table at all, or beyond
// the keystream horizon, is a hard error: the artifact cannot represent it.
func (c *Codec) Encode(plain string) (string, error) {
	payload := make([]byte, c.structure.PayloadLen(len(plain)))
	for off, b := range c.structure.Padding {
		if off < len(payload) {
			payload[off] = b
		}
	}

	for i := 0; i < len(plain); i++ {
		b, err := c.encodeByte(i, plain[i])
		if err != nil {
			return "", err
		}
		payload[c.structure.Mapping.Offset(i)] = b
	}

	out := make([]byte, 0, len(c.structure.Header)+len(payload))
	out = append(out, c.structure.Header...)
	out = append(out, payload...)
	return b64url.Encode(out), nil
}

func (c *Codec) encodeByte(pos int, ch byte) (byte, error) {
	switch c.mode {
	case types.ModeKeystream:
		if pos >= c.horizon {
			return 0, errors.Wrapf(errs.ErrUnstableKeystream,
				"position %d beyond stability horizon %d", pos, c.horizon)
		}
		return ch ^ c.keystream[pos], nil
	default:
		table, ok := c.encode[pos]
		if !ok {
			return 0, errors.Wrapf(errs.ErrUnsupportedCharacter,
				"no table for position %d", pos)
		}
		if b, ok := table[ch]; ok {
			return b, nil
		}
		return fallback(table), nil
	}
}

// Decode reverses Encode. Short or damaged input degrades instead of
// failing: decoding walks positions in order and returns the longest prefix
// it can vouch for, stopping at the first byte with no mapping. Only a
// missing or wrong header, or input shorter than the header, is an error.
func (c *Codec) Decode(cipher string) (string, error) {
	body, err := b64url.Decode(cipher)
	if err != nil {
		return "", errors.Wrapf(errs.ErrTruncatedCiphertext, "ciphertext is not base64url: %v", err)
	}
	headerLen := len(c.structure.Header)
	if len(body) < headerLen {
		return "", errors.Wrapf(errs.ErrTruncatedCiphertext,
			"%d bytes, header alone is %d", len(body), headerLen)
	}
	for i, want := range c.structure.Header {
		if body[i] != want {
			return "", errors.Wrapf(errs.ErrStructuralMismatch, "header mismatch at offset %d", i)
		}
	}

	payload := body[headerLen:]
	n := c.structure.Mapping.MaxIndex(len(payload))
	if c.mode == types.ModeKeystream && n > c.horizon {
		n = c.horizon
	}

	plain := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		b := payload[c.structure.Mapping.Offset(i)]
		if c.mode == types.ModeKeystream {
			plain = append(plain, b^c.keystream[i])
			continue
		}
		table, ok := c.decode[i]
		if !ok {
			break
		}
		ch, ok := table[b]
		if !ok {
			break
		}
		plain = append(plain, ch)
	}
	return string(plain), nil
}

// DecodeStructured decodes and then trims the result to its last complete
// JSON value, discarding any unstable tail. Plaintexts with no complete
// JSON value come back unchanged.
func (c *Codec) DecodeStructured(cipher string) (string, error) {
	plain, err := c.Decode(cipher)
	if err != nil {
		return "", err
	}
	return TrimToValidJSON(plain), nil
}

func invert(table map[byte]byte) map[byte]byte {
	chars := make([]int, 0, len(table))
	for ch := range table {
		chars = append(chars, int(ch))
	}
	sort.Ints(chars)

	out := make(map[byte]byte, len(table))
	for _, ci := range chars {
		ch := byte(ci)
		if _, taken := out[table[ch]]; !taken {
			out[table[ch]] = ch
		}
	}
	return out
}

func fallback(table map[byte]byte) byte {
	if b, ok := table[fallbackChar]; ok {
		return b
	}
	lowest := -1
	for ch := range table {
		if lowest < 0 || int(ch) < lowest {
			lowest = int(ch)
		}
	}
	return table[byte(lowest)]
}
