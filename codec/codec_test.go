package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyxtv/embedcodec/artifact"
	"github.com/flyxtv/embedcodec/errs"
	"github.com/flyxtv/embedcodec/internal/b64url"
	"github.com/flyxtv/embedcodec/tables"
	"github.com/flyxtv/embedcodec/types"
)

const testAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789{}\":,?"

// 21-byte header in the style of the captured providers.
var testHeader = []byte("\x01embed-hdr-0123456789")

var testStructure = types.Structure{
	Header:  testHeader,
	Padding: map[int]byte{1: 0xF2, 2: 0xDF},
	Mapping: types.PositionMapping{Early: []int{0}, Cutover: 1, Base: 3, Step: 1},
}

func testSub(pos int, c byte) byte {
	return c + byte(5*pos) + 3
}

func substitutionCodec(t *testing.T, maxPos int) *Codec {
	t.Helper()
	res := &tables.SubstitutionResult{Encode: make(map[int]map[byte]byte)}
	for p := 0; p < maxPos; p++ {
		table := make(map[byte]byte, len(testAlphabet))
		for i := 0; i < len(testAlphabet); i++ {
			table[testAlphabet[i]] = testSub(p, testAlphabet[i])
		}
		res.Encode[p] = table
	}

	a := artifact.New("flyx", types.ModeSubstitution)
	a.SetStructure(testStructure)
	a.SetSubstitution(res)

	c, err := New(a)
	require.NoError(t, err)
	return c
}

func keystreamCodec(t *testing.T, ks []byte, horizon int) *Codec {
	t.Helper()
	a := artifact.New("flyx", types.ModeKeystream)
	a.SetStructure(testStructure)
	a.SetKeystream(&tables.KeystreamResult{Keystream: ks, Horizon: horizon})

	c, err := New(a)
	require.NoError(t, err)
	return c
}

func TestRoundTrip(t *testing.T) {
	c := substitutionCodec(t, 16)

	for _, s := range []string{"test", "a", "", "abc123", "{\"k\":\"v\"}"} {
		cipher, err := c.Encode(s)
		require.NoError(t, err, "encode %q", s)
		plain, err := c.Decode(cipher)
		require.NoError(t, err, "decode %q", s)
		assert.Equal(t, s, plain)
	}
}

func TestHeaderAndPaddingPlacement(t *testing.T) {
	c := substitutionCodec(t, 8)

	cipher, err := c.Encode("a")
	require.NoError(t, err)
	body, err := b64url.Decode(cipher)
	require.NoError(t, err)

	require.Equal(t, testHeader, body[:len(testHeader)])
	payload := body[len(testHeader):]
	require.Len(t, payload, 3)
	assert.Equal(t, testSub(0, 'a'), payload[0])
	assert.Equal(t, byte(0xF2), payload[1])
	assert.Equal(t, byte(0xDF), payload[2])
}

func TestHeaderInvariance(t *testing.T) {
	c := substitutionCodec(t, 16)

	c1, err := c.Encode("abc")
	require.NoError(t, err)
	c2, err := c.Encode("zz9")
	require.NoError(t, err)
	b1, _ := b64url.Decode(c1)
	b2, _ := b64url.Decode(c2)
	assert.Equal(t, b1[:len(testHeader)], b2[:len(testHeader)])
}

func TestDecodeShortCiphertext(t *testing.T) {
	c := substitutionCodec(t, 8)

	cipher, err := c.Encode("abcd")
	require.NoError(t, err)
	body, err := b64url.Decode(cipher)
	require.NoError(t, err)

	// One byte shorter than expected: the last position falls outside the
	// payload and decoding stops cleanly before it.
	plain, err := c.Decode(b64url.Encode(body[:len(body)-1]))
	require.NoError(t, err)
	assert.Equal(t, "abc", plain)
}

func TestDecodeStopsAtUnmappedByte(t *testing.T) {
	c := substitutionCodec(t, 8)

	cipher, err := c.Encode("abcd")
	require.NoError(t, err)
	body, err := b64url.Decode(cipher)
	require.NoError(t, err)

	// Corrupt the byte carrying position 2 into a value no character maps
	// to: positions 0 and 1 still decode.
	body[len(testHeader)+testStructure.Mapping.Offset(2)] = 0x00
	plain, err := c.Decode(b64url.Encode(body))
	require.NoError(t, err)
	assert.Equal(t, "ab", plain)
}

func TestDecodeHeaderMismatch(t *testing.T) {
	c := substitutionCodec(t, 4)

	cipher, err := c.Encode("ab")
	require.NoError(t, err)
	body, err := b64url.Decode(cipher)
	require.NoError(t, err)
	body[3] ^= 0xFF

	_, err = c.Decode(b64url.Encode(body))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStructuralMismatch)
}

func TestDecodeTruncatedBelowHeader(t *testing.T) {
	c := substitutionCodec(t, 4)

	_, err := c.Decode(b64url.Encode(testHeader[:5]))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrTruncatedCiphertext)

	_, err = c.Decode("!!!not-base64!!!")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrTruncatedCiphertext)
}

func TestEncodeFallbackByte(t *testing.T) {
	c := substitutionCodec(t, 4)

	// '|' is outside the alphabet; '?' is inside, so the fallback byte is
	// the table entry for '?' and the round trip surfaces it as '?'.
	cipher, err := c.Encode("a|c")
	require.NoError(t, err)
	plain, err := c.Decode(cipher)
	require.NoError(t, err)
	assert.Equal(t, "a?c", plain)
}

func TestEncodeBeyondTables(t *testing.T) {
	c := substitutionCodec(t, 2)

	_, err := c.Encode("abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrUnsupportedCharacter)
}

func TestKeystreamRoundTrip(t *testing.T) {
	ks := []byte{0x5A, 0x13, 0xC7, 0x22, 0x81, 0x0F, 0x66, 0x38, 0xAD, 0x90, 0x44, 0x07}
	c := keystreamCodec(t, ks, len(ks))

	cipher, err := c.Encode("hello world!")
	require.NoError(t, err)
	plain, err := c.Decode(cipher)
	require.NoError(t, err)
	assert.Equal(t, "hello world!", plain)
}

func TestKeystreamEncodeBeyondHorizon(t *testing.T) {
	ks := []byte{0x5A, 0x13, 0xC7, 0x22}
	c := keystreamCodec(t, ks, 2)

	_, err := c.Encode("abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrUnstableKeystream)
}

func TestKeystreamDecodeTruncatesAtHorizon(t *testing.T) {
	ks := []byte{0x5A, 0x13, 0xC7, 0x22, 0x81, 0x0F}
	full := keystreamCodec(t, ks, len(ks))
	clamped := keystreamCodec(t, ks, 4)

	cipher, err := full.Encode("abcdef")
	require.NoError(t, err)

	plain, err := clamped.Decode(cipher)
	require.NoError(t, err)
	assert.Equal(t, "abcd", plain)
}

func TestDecodeStructuredTrimsUnstableTail(t *testing.T) {
	ks := make([]byte, 16)
	for i := range ks {
		ks[i] = byte(17*i + 3)
	}
	c := keystreamCodec(t, ks, len(ks))

	// The payload's trustworthy part is the JSON object; the tail bytes
	// are keystream noise a real oracle would have garbled.
	cipher, err := c.Encode(`{"id":42}` + "\x7F\x02x")
	require.NoError(t, err)

	plain, err := c.DecodeStructured(cipher)
	require.NoError(t, err)
	assert.Equal(t, `{"id":42}`, plain)
}

func TestConcurrentUse(t *testing.T) {
	c := substitutionCodec(t, 16)
	done := make(chan struct{})
	for w := 0; w < 8; w++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				cipher, err := c.Encode("abc123")
				if err != nil {
					t.Error(err)
					return
				}
				plain, err := c.Decode(cipher)
				if err != nil || plain != "abc123" {
					t.Errorf("round trip broke: %q %v", plain, err)
					return
				}
			}
		}()
	}
	for w := 0; w < 8; w++ {
		<-done
	}
}

func TestTrimToValidJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		out  string
	}{
		{"clean object", `{"a":1}`, `{"a":1}`},
		{"garbage tail", `{"a":1}x}y`, `{"a":1}`},
		{"nested", `{"a":{"b":[1,2]}}tail`, `{"a":{"b":[1,2]}}`},
		{"braces in strings", `{"a":"}{"}garbage`, `{"a":"}{"}`},
		{"escaped quote", `{"a":"\"}"}junk`, `{"a":"\"}"}`},
		{"incomplete", `{"a":1`, `{"a":1`},
		{"no json", "plain text", "plain text"},
		{"array", `[1,2,3]]]`, `[1,2,3]`},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.out, TrimToValidJSON(tc.in))
		})
	}
}

func TestTrimToValidJSONPrefersLastComplete(t *testing.T) {
	in := `{"a":1}{"b":2}{"c":`
	assert.Equal(t, `{"a":1}{"b":2}`, TrimToValidJSON(in))
	assert.True(t, strings.HasPrefix(in, TrimToValidJSON(in)))
}
