package embedcodec

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyxtv/embedcodec/codec"
	"github.com/flyxtv/embedcodec/internal/b64url"
	"github.com/flyxtv/embedcodec/types"
)

// Fake provider transform shared by the pipeline tests: 4-byte header,
// padding at payload offsets 1 and 2, characters at offsets 0, 3, 4, ...
var (
	fakeHeader  = []byte{0xDE, 0xAD, 0xBE, 0xEF}
	fakePadding = map[int]byte{1: 0xF2, 2: 0xDF}
	fakeMapping = types.PositionMapping{Early: []int{0}, Cutover: 1, Base: 3, Step: 1}
)

// fakeOracle encodes through a configurable per-position byte function.
type fakeOracle struct {
	name  string
	calls int32
	byteF func(call int32, plain string, pos int) byte
}

func (o *fakeOracle) Name() string { return o.name }

func (o *fakeOracle) Encode(_ context.Context, plain string) (string, error) {
	call := atomic.AddInt32(&o.calls, 1)
	payloadLen := fakeMapping.Offset(len(plain))
	payload := make([]byte, payloadLen)
	for off, b := range fakePadding {
		if off < payloadLen {
			payload[off] = b
		}
	}
	for i := 0; i < len(plain); i++ {
		payload[fakeMapping.Offset(i)] = o.byteF(call, plain, i)
	}
	return b64url.Encode(append(append([]byte{}, fakeHeader...), payload...)), nil
}

func (o *fakeOracle) Decode(context.Context, string) (string, error) {
	return "", context.Canceled
}

func substitutionFake() *fakeOracle {
	return &fakeOracle{
		name: "subfake",
		byteF: func(_ int32, plain string, pos int) byte {
			return plain[pos] + byte(3*pos) + 7
		},
	}
}

// keystreamFake mixes the previous character into every byte, so no position
// past the first survives cross-context verification, and adds per-call
// jitter to positions at or beyond stableLimit.
func keystreamFake(stableLimit int) *fakeOracle {
	ks := []byte{0x5A, 0x13, 0xC7, 0x22, 0x81, 0x0F, 0x66, 0x38, 0xAD, 0x90, 0x44, 0x07}
	return &fakeOracle{
		name: "ksfake",
		byteF: func(call int32, plain string, pos int) byte {
			b := plain[pos] ^ ks[pos%len(ks)]
			if pos > 0 {
				b ^= (plain[pos-1] & 0x0F) * 5
			}
			if pos >= stableLimit {
				b ^= byte(call)
			}
			return b
		},
	}
}

func TestRecoverSubstitutionPipeline(t *testing.T) {
	orc := substitutionFake()
	r := New(orc).WithAlphabet("abcd").WithMaxPosition(6).WithConcurrency(4)

	res, err := r.Recover(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Artifact)

	assert.Equal(t, types.ModeSubstitution, res.Artifact.Mode)
	assert.Equal(t, "subfake", res.Artifact.Provider)
	assert.Len(t, res.Artifact.Positions, 6)

	resolved, ctxDep, unresolved := res.Report.Counts()
	assert.Equal(t, 6, resolved)
	assert.Equal(t, 0, ctxDep)
	assert.Equal(t, 0, unresolved)

	// The codec built from the artifact must be byte-exact against the
	// oracle, not just self-consistent.
	c, err := codec.New(res.Artifact)
	require.NoError(t, err)
	for _, s := range []string{"dcba", "a", "abcdab"} {
		fromOracle, err := orc.Encode(context.Background(), s)
		require.NoError(t, err)
		fromCodec, err := c.Encode(s)
		require.NoError(t, err)
		assert.Equal(t, fromOracle, fromCodec, "cipher for %q", s)

		plain, err := c.Decode(fromCodec)
		require.NoError(t, err)
		assert.Equal(t, s, plain)
	}
}

func TestRecoverFallsBackToKeystream(t *testing.T) {
	r := New(keystreamFake(5)).WithAlphabet("abcd").WithMaxPosition(8).WithValidationFetches(3)

	res, err := r.Recover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.ModeKeystream, res.Artifact.Mode)
	assert.Equal(t, 5, res.Artifact.StabilityHorizon)
	assert.Equal(t, 5, res.Report.Horizon)

	// Within the horizon the codec round-trips against itself.
	c, err := codec.New(res.Artifact)
	require.NoError(t, err)
	cipher, err := c.Encode("abcd")
	require.NoError(t, err)
	plain, err := c.Decode(cipher)
	require.NoError(t, err)
	assert.Equal(t, "abcd", plain)
}

func TestRecoverAbortReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Structural probing takes 2*12 sweep probes plus 4 head probes; abort
	// a little into the position sweeps that follow.
	orc := substitutionFake()
	base := orc.byteF
	orc.byteF = func(call int32, plain string, pos int) byte {
		if call > 28+10 {
			cancel()
		}
		return base(call, plain, pos)
	}

	r := New(orc).WithAlphabet("abcd").WithMaxPosition(16).WithConcurrency(1)
	res, err := r.Recover(ctx)
	require.Error(t, err)
	require.NotNil(t, res)

	resolved, _, _ := res.Report.Counts()
	assert.Greater(t, resolved, 0)
	assert.Less(t, resolved, 16)
}

func TestResumeFillsGaps(t *testing.T) {
	orc := substitutionFake()

	first, err := New(orc).WithAlphabet("abcd").WithMaxPosition(3).Recover(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Artifact.Positions, 3)
	callsAfterFirst := atomic.LoadInt32(&orc.calls)

	r := New(orc).WithAlphabet("abcd").WithMaxPosition(6)
	resumed, err := r.Resume(context.Background(), first.Artifact)
	require.NoError(t, err)
	require.Len(t, resumed.Artifact.Positions, 6)

	// Resume must not re-probe positions the previous run already has:
	// three new positions of four characters each, plus verification.
	newCalls := atomic.LoadInt32(&orc.calls) - callsAfterFirst
	assert.Less(t, newCalls, int32(3*4+6*3+1))

	c, err := codec.New(resumed.Artifact)
	require.NoError(t, err)
	cipher, err := c.Encode("dadcba")
	require.NoError(t, err)
	plain, err := c.Decode(cipher)
	require.NoError(t, err)
	assert.Equal(t, "dadcba", plain)
}
