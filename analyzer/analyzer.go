// Package analyzer infers the structural model of a transform from raw
// samples: the fixed header, the constant padding offsets, and the
// plaintext-index to ciphertext-offset mapping. It fails closed: samples
// that disagree with the assumed model abort the recovery run with
// errs.ErrStructuralMismatch instead of guessing.
package analyzer

import (
	"github.com/pkg/errors"

	"github.com/flyxtv/embedcodec/collector"
	"github.com/flyxtv/embedcodec/errs"
	"github.com/flyxtv/embedcodec/internal/logger"
	"github.com/flyxtv/embedcodec/types"
)

const (
	// minLinearTail is the minimum run of evenly spaced trailing offsets
	// required to trust the linear extrapolation of the position mapping.
	minLinearTail = 3
)

// Params configures the structural probing plan and its analysis.
type Params struct {
	// Filler and AltFiller are two distinct single characters used for the
	// repeated-filler length sweeps.
	Filler    string
	AltFiller string
	// HeadChars are the distinct leading characters used to locate the
	// header boundary. At least two.
	HeadChars string
	// SweepLen is the maximum probe length of the sweeps.
	SweepLen int
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	if len(p.Filler) != 1 || len(p.AltFiller) != 1 || p.Filler == p.AltFiller {
		return errors.New("analyzer: two distinct single-character fillers required")
	}
	if len(p.HeadChars) < 2 {
		return errors.New("analyzer: at least two head characters required")
	}
	if p.SweepLen < minLinearTail+1 {
		return errors.Errorf("analyzer: sweep length %d too short", p.SweepLen)
	}
	return nil
}

// BuildPlan returns the probing plan whose samples Analyze consumes: two
// filler length sweeps plus a fixed-length leading-character sweep.
func BuildPlan(p Params) collector.Plan {
	plan := collector.LengthSweep(p.Filler, p.SweepLen)
	plan.Append(collector.LengthSweep(p.AltFiller, p.SweepLen))
	plan.Append(collector.HeadSweep(p.HeadChars, p.SweepLen, p.Filler))
	return plan
}

// Analyze derives the structural model from a collected sample set.
func Analyze(set *types.SampleSet, p Params) (types.Structure, error) {
	var s types.Structure
	if err := p.Validate(); err != nil {
		return s, err
	}
	log := logger.WithComponent(logger.ComponentAnalyzer)

	header, err := findHeader(set, p)
	if err != nil {
		return s, err
	}
	log.Debug("header located", map[string]interface{}{"len": len(header)})

	offsets, payloadLens, err := mappedOffsets(set, p, len(header))
	if err != nil {
		return s, err
	}

	mapping, err := fitMapping(offsets, payloadLens)
	if err != nil {
		return s, err
	}
	log.Debug("mapping fitted", map[string]interface{}{
		"cutover": mapping.Cutover,
		"base":    mapping.Base,
		"step":    mapping.Step,
	})

	padding, err := findPadding(set, p, len(header), offsets, payloadLens)
	if err != nil {
		return s, err
	}

	s = types.Structure{Header: header, Padding: padding, Mapping: mapping}
	log.Info("structure recovered", map[string]interface{}{
		"header_len": len(header),
		"padding":    len(padding),
	})
	return s, nil
}

// findHeader computes the longest common byte prefix of the fixed-length
// samples that differ only in their leading character, and verifies every
// other sample shares it.
func findHeader(set *types.SampleSet, p Params) ([]byte, error) {
	var bodies [][]byte
	for i := 0; i < len(p.HeadChars); i++ {
		s, ok := set.Get(collector.HeadLabel(p.HeadChars[i]))
		if !ok {
			continue
		}
		bodies = append(bodies, s.Body)
	}
	if len(bodies) < 2 {
		return nil, errors.Wrap(errs.ErrStructuralMismatch, "too few head samples survived collection")
	}

	length := len(bodies[0])
	for _, b := range bodies[1:] {
		if len(b) != length {
			return nil, errors.Wrap(errs.ErrStructuralMismatch, "head samples have ragged lengths")
		}
	}

	header := longestCommonPrefix(bodies)
	if len(header) == length {
		return nil, errors.Wrap(errs.ErrStructuralMismatch, "head samples never diverge")
	}

	// Every sample of the run must carry the same header.
	for _, label := range set.Labels() {
		s, _ := set.Get(label)
		if len(s.Body) < len(header) {
			return nil, errors.Wrapf(errs.ErrStructuralMismatch, "sample %s shorter than header", label)
		}
		for i, b := range header {
			if s.Body[i] != b {
				return nil, errors.Wrapf(errs.ErrStructuralMismatch, "sample %s disagrees with header at offset %d", label, i)
			}
		}
	}
	return header, nil
}

func longestCommonPrefix(bodies [][]byte) []byte {
	prefix := bodies[0]
	for _, b := range bodies[1:] {
		n := 0
		for n < len(prefix) && n < len(b) && prefix[n] == b[n] {
			n++
		}
		prefix = prefix[:n]
	}
	out := make([]byte, len(prefix))
	copy(out, prefix)
	return out
}

// mappedOffsets derives, for each plaintext index, the payload offset it
// occupies, by diffing the two filler sweeps at each length: each extra
// input unit must expose exactly one new variable offset.
func mappedOffsets(set *types.SampleSet, p Params, headerLen int) (offsets []int, payloadLens []int, err error) {
	prev := map[int]bool{}
	payloadLens = make([]int, p.SweepLen+1)
	for n := 1; n <= p.SweepLen; n++ {
		a, okA := set.Get(collector.LengthLabel(p.Filler, n))
		b, okB := set.Get(collector.LengthLabel(p.AltFiller, n))
		if !okA || !okB {
			return nil, nil, errors.Wrapf(errs.ErrStructuralMismatch, "length sweep incomplete at %d", n)
		}
		if len(a.Body) != len(b.Body) {
			return nil, nil, errors.Wrapf(errs.ErrStructuralMismatch, "sweep bodies ragged at length %d", n)
		}
		payloadLens[n] = len(a.Body) - headerLen

		var fresh []int
		for off := 0; off < payloadLens[n]; off++ {
			if a.Body[headerLen+off] != b.Body[headerLen+off] && !prev[off] {
				fresh = append(fresh, off)
			}
		}
		if len(fresh) != 1 {
			return nil, nil, errors.Wrapf(errs.ErrStructuralMismatch, "length %d exposed %d new offsets, want 1", n, len(fresh))
		}
		if len(offsets) > 0 && fresh[0] <= offsets[len(offsets)-1] {
			return nil, nil, errors.Wrapf(errs.ErrStructuralMismatch, "offset for index %d not monotonic", n-1)
		}
		offsets = append(offsets, fresh[0])
		prev[fresh[0]] = true
	}
	return offsets, payloadLens, nil
}

// fitMapping fits the piecewise position mapping: an explicit table for the
// sparse early offsets, a linear tail beyond the cutover. The observed
// payload lengths pin the extrapolation: encoding n characters must produce
// exactly Offset(n) payload bytes.
func fitMapping(offsets []int, payloadLens []int) (types.PositionMapping, error) {
	var m types.PositionMapping
	n := len(offsets)

	step := offsets[n-1] - offsets[n-2]
	if step <= 0 {
		return m, errors.Wrap(errs.ErrStructuralMismatch, "non-increasing tail offsets")
	}
	cut := n - 2
	for cut > 0 && offsets[cut]-offsets[cut-1] == step {
		cut--
	}
	if n-cut < minLinearTail {
		return m, errors.Wrapf(errs.ErrStructuralMismatch, "linear tail too short (%d offsets)", n-cut)
	}

	m = types.PositionMapping{
		Early:   append([]int{}, offsets[:cut]...),
		Cutover: cut,
		Base:    offsets[cut],
		Step:    step,
	}
	if !m.Valid() {
		return m, errors.Wrap(errs.ErrStructuralMismatch, "fitted mapping is inconsistent")
	}

	for i := 1; i < len(payloadLens); i++ {
		if payloadLens[i] != m.Offset(i) {
			return m, errors.Wrapf(errs.ErrStructuralMismatch, "payload length %d at input length %d, model wants %d",
				payloadLens[i], i, m.Offset(i))
		}
	}
	return m, nil
}

// findPadding locates payload offsets whose value never varies with input
// content, and verifies the constant holds for every sample that reaches
// the offset.
func findPadding(set *types.SampleSet, p Params, headerLen int, offsets []int, payloadLens []int) (map[int]byte, error) {
	mapped := map[int]bool{}
	for _, off := range offsets {
		mapped[off] = true
	}

	maxLen := payloadLens[len(payloadLens)-1]
	ref, _ := set.Get(collector.LengthLabel(p.Filler, len(payloadLens)-1))

	padding := map[int]byte{}
	for off := 0; off < maxLen; off++ {
		if mapped[off] {
			continue
		}
		padding[off] = ref.Body[headerLen+off]
	}

	// The constant must hold in every sample long enough to contain it.
	for _, label := range set.Labels() {
		s, _ := set.Get(label)
		for off, want := range padding {
			idx := headerLen + off
			if idx >= len(s.Body) {
				continue
			}
			if s.Body[idx] != want {
				return nil, errors.Wrapf(errs.ErrStructuralMismatch, "padding offset %d varies in sample %s", off, label)
			}
		}
	}
	return padding, nil
}
