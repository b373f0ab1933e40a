package tables

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/flyxtv/embedcodec/collector"
	"github.com/flyxtv/embedcodec/errs"
	"github.com/flyxtv/embedcodec/internal/logger"
	"github.com/flyxtv/embedcodec/types"
)

// KeystreamResult is the outcome of a keystream build.
type KeystreamResult struct {
	// Keystream holds one byte per plaintext position.
	Keystream []byte
	// Horizon is the longest prefix length on which every validation fetch
	// agreed. Positions at or past it must not be trusted.
	Horizon int
	// Disagreements lists positions where at least one validation fetch
	// produced a different byte.
	Disagreements []int
}

// KeystreamBuilder recovers an XOR keystream from one fully known plaintext
// and validates its stability against independent fetches of the same
// plaintext.
type KeystreamBuilder struct {
	structure   types.Structure
	known       string
	validations int
	log         *logger.ComponentLogger
}

// NewKeystreamBuilder creates a builder. known should be at least as long as
// the deepest position the codec will serve; validations is the number of
// independent confirmation fetches and must be at least one.
func NewKeystreamBuilder(s types.Structure, known string, validations int) *KeystreamBuilder {
	if validations < 1 {
		validations = 1
	}
	return &KeystreamBuilder{
		structure:   s,
		known:       known,
		validations: validations,
		log:         logger.WithComponent(logger.ComponentTables),
	}
}

// Plan returns the reference probe plus the validation fetches. All probes
// carry the same plaintext; the collector issues them as separate calls so
// any time or session dependence in the transform shows up as disagreement.
func (b *KeystreamBuilder) Plan() collector.Plan {
	return collector.EchoPlan(b.known, 1+b.validations)
}

// Build derives the keystream from the reference sample and clamps the
// stability horizon to the shortest agreeing prefix across the validation
// samples.
func (b *KeystreamBuilder) Build(set *types.SampleSet) (*KeystreamResult, error) {
	ref, ok := set.Get(collector.EchoLabel(0))
	if !ok {
		return nil, errors.Wrap(errs.ErrUnstableKeystream, "reference sample missing")
	}
	refStream, err := b.derive(ref)
	if err != nil {
		return nil, err
	}

	res := &KeystreamResult{
		Keystream: refStream,
		Horizon:   len(refStream),
	}
	validated := 0
	for v := 1; v <= b.validations; v++ {
		s, ok := set.Get(collector.EchoLabel(v))
		if !ok {
			continue
		}
		stream, err := b.derive(s)
		if err != nil {
			return nil, err
		}
		validated++
		limit := len(refStream)
		if len(stream) < limit {
			limit = len(stream)
		}
		mismatch := limit
		for i := 0; i < limit; i++ {
			if stream[i] != refStream[i] {
				if mismatch == limit {
					mismatch = i
				}
				res.Disagreements = append(res.Disagreements, i)
			}
		}
		if mismatch < res.Horizon {
			res.Horizon = mismatch
		}
	}
	if validated == 0 {
		return nil, errors.Wrap(errs.ErrUnstableKeystream, "no validation samples survived")
	}

	res.Disagreements = dedupeSorted(res.Disagreements)
	b.log.Info("keystream derived", map[string]interface{}{
		"length":      len(res.Keystream),
		"horizon":     res.Horizon,
		"validations": validated,
	})
	return res, nil
}

func (b *KeystreamBuilder) derive(s types.Sample) ([]byte, error) {
	headerLen := len(b.structure.Header)
	if len(s.Body) < headerLen {
		return nil, errors.Wrapf(errs.ErrStructuralMismatch, "sample %s shorter than header", s.Label)
	}
	for i, want := range b.structure.Header {
		if s.Body[i] != want {
			return nil, errors.Wrapf(errs.ErrStructuralMismatch,
				"sample %s header diverges at offset %d", s.Label, i)
		}
	}
	payload := s.Body[headerLen:]
	stream := make([]byte, len(b.known))
	for i := 0; i < len(b.known); i++ {
		off := b.structure.Mapping.Offset(i)
		if off >= len(payload) {
			return nil, errors.Wrapf(errs.ErrStructuralMismatch,
				"sample %s payload too short for position %d", s.Label, i)
		}
		stream[i] = payload[off] ^ b.known[i]
	}
	return stream, nil
}

func dedupeSorted(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	seen := map[int]bool{}
	var out []int
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
