// Package tables turns structural findings plus targeted samples into the
// runtime transform tables: per-position substitution tables in the pure
// case, a validated XOR keystream with a stability horizon in the
// context-dependent case.
package tables

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/flyxtv/embedcodec/collector"
	"github.com/flyxtv/embedcodec/errs"
	"github.com/flyxtv/embedcodec/internal/logger"
	"github.com/flyxtv/embedcodec/types"
)

// DefaultAlphabet is the printable set probed per position. Characters the
// providers' endpoints mishandle (quotes, backslash, control bytes) are left
// out; extend per provider when safe.
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 -_.~:/?#[]@!$&()*+,;=%{}"

// verifySampleChars is how many alphabet characters are re-probed under the
// alternate prefix per position when checking context independence.
const verifySampleChars = 3

// Collision records two plaintext characters mapping to the same cipher byte
// at one position. Decoding that byte is lossy: the lowest character wins.
type Collision struct {
	Position int
	Byte     byte
	Chars    []byte
}

// SubstitutionResult is the outcome of a substitution build.
type SubstitutionResult struct {
	// Encode maps position -> plaintext char -> cipher byte.
	Encode map[int]map[byte]byte
	// Decode maps position -> cipher byte -> plaintext char; collisions are
	// resolved toward the lowest character.
	Decode map[int]map[byte]byte
	// Collisions lists lossy positions.
	Collisions []Collision
	// Conflicts lists positions where independent contexts disagreed; they
	// cannot be modeled as pure substitution.
	Conflicts []int
	// Gaps maps position -> characters with no surviving sample.
	Gaps map[int][]byte
	// Unresolved lists positions with no usable samples at all.
	Unresolved []int
}

// SubstitutionBuilder recovers per-position substitution tables.
type SubstitutionBuilder struct {
	structure types.Structure
	alphabet  string
	filler    string
	altFiller string
	log       *logger.ComponentLogger
}

// NewSubstitutionBuilder creates a builder over a recovered structure.
// filler and altFiller must be members of the alphabet so verification
// probes stay inside the supported character set.
func NewSubstitutionBuilder(s types.Structure, alphabet, filler, altFiller string) *SubstitutionBuilder {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	return &SubstitutionBuilder{
		structure: s,
		alphabet:  alphabet,
		filler:    filler,
		altFiller: altFiller,
		log:       logger.WithComponent(logger.ComponentTables),
	}
}

// Plan returns the probing plan covering every alphabet character at every
// position below maxPos.
func (b *SubstitutionBuilder) Plan(maxPos int) collector.Plan {
	var plan collector.Plan
	for p := 0; p < maxPos; p++ {
		plan.Append(collector.PositionSweep(p, b.filler, b.alphabet))
	}
	return plan
}

// Build reads the collected samples into per-position tables. Positions
// with partial coverage are kept with their gaps recorded; positions with no
// samples are unresolved. A sample whose header disagrees with the
// structure invalidates the run.
func (b *SubstitutionBuilder) Build(set *types.SampleSet, maxPos int) (*SubstitutionResult, error) {
	res := &SubstitutionResult{
		Encode: make(map[int]map[byte]byte),
		Decode: make(map[int]map[byte]byte),
		Gaps:   make(map[int][]byte),
	}
	headerLen := len(b.structure.Header)

	for p := 0; p < maxPos; p++ {
		off := b.structure.Mapping.Offset(p)
		table := make(map[byte]byte, len(b.alphabet))
		var gaps []byte

		for i := 0; i < len(b.alphabet); i++ {
			c := b.alphabet[i]
			s, ok := set.Get(collector.PositionLabel(p, c))
			if !ok {
				gaps = append(gaps, c)
				continue
			}
			if err := b.checkHeader(s); err != nil {
				return nil, err
			}
			payload := s.Body[headerLen:]
			if off >= len(payload) {
				return nil, errors.Wrapf(errs.ErrStructuralMismatch,
					"sample %s payload too short for offset %d", s.Label, off)
			}
			table[c] = payload[off]
		}

		if len(table) == 0 {
			res.Unresolved = append(res.Unresolved, p)
			continue
		}
		if len(gaps) > 0 {
			res.Gaps[p] = gaps
		}
		res.Encode[p] = table
		res.Decode[p], res.Collisions = invert(p, table, res.Collisions)
	}

	b.log.Info("substitution tables built", map[string]interface{}{
		"positions":  len(res.Encode),
		"unresolved": len(res.Unresolved),
		"collisions": len(res.Collisions),
	})
	return res, nil
}

// VerifyPlan returns cross-context probes: a small character sample per
// position, prefixed with the alternate filler instead of the one the main
// sweep used.
func (b *SubstitutionBuilder) VerifyPlan(maxPos int) collector.Plan {
	chars := b.sampleChars()
	var plan collector.Plan
	for p := 0; p < maxPos; p++ {
		prefix := strings.Repeat(b.altFiller, p)
		for _, c := range chars {
			plan.Add(collector.VerifyLabel(p, c), prefix+string(c))
		}
	}
	return plan
}

// Verify compares verification samples against the built tables and marks
// positions whose bytes depend on surrounding context. Missing verification
// samples are tolerated; disagreement is what convicts a position.
func (b *SubstitutionBuilder) Verify(res *SubstitutionResult, set *types.SampleSet, maxPos int) {
	headerLen := len(b.structure.Header)
	chars := b.sampleChars()

	for p := 0; p < maxPos; p++ {
		table, ok := res.Encode[p]
		if !ok {
			continue
		}
		off := b.structure.Mapping.Offset(p)
		for _, c := range chars {
			s, ok := set.Get(collector.VerifyLabel(p, c))
			if !ok {
				continue
			}
			payload := s.Body[headerLen:]
			if off >= len(payload) {
				continue
			}
			want, ok := table[c]
			if !ok {
				continue
			}
			if payload[off] != want {
				res.Conflicts = append(res.Conflicts, p)
				b.log.Warn("position is context dependent", map[string]interface{}{
					"position": p,
					"char":     string(c),
				})
				break
			}
		}
	}
	sort.Ints(res.Conflicts)
}

func (b *SubstitutionBuilder) sampleChars() []byte {
	n := len(b.alphabet)
	picks := []int{0, n / 2, n - 1}
	seen := map[byte]bool{}
	var chars []byte
	for _, i := range picks {
		c := b.alphabet[i]
		if !seen[c] {
			seen[c] = true
			chars = append(chars, c)
		}
		if len(chars) == verifySampleChars {
			break
		}
	}
	return chars
}

func (b *SubstitutionBuilder) checkHeader(s types.Sample) error {
	if len(s.Body) < len(b.structure.Header) {
		return errors.Wrapf(errs.ErrStructuralMismatch, "sample %s shorter than header", s.Label)
	}
	for i, want := range b.structure.Header {
		if s.Body[i] != want {
			return errors.Wrapf(errs.ErrStructuralMismatch,
				"sample %s header diverges at offset %d", s.Label, i)
		}
	}
	return nil
}

// invert builds the decode table for one position. Two characters landing on
// the same byte make the byte lossy: the lowest character is kept and the
// collision reported.
func invert(pos int, table map[byte]byte, collisions []Collision) (map[byte]byte, []Collision) {
	chars := make([]int, 0, len(table))
	for c := range table {
		chars = append(chars, int(c))
	}
	sort.Ints(chars)

	decode := make(map[byte]byte, len(table))
	colliding := map[byte][]byte{}
	for _, ci := range chars {
		c := byte(ci)
		b := table[c]
		if _, taken := decode[b]; taken {
			colliding[b] = append(colliding[b], c)
			continue
		}
		decode[b] = c
	}
	bytesHit := make([]int, 0, len(colliding))
	for b := range colliding {
		bytesHit = append(bytesHit, int(b))
	}
	sort.Ints(bytesHit)
	for _, bi := range bytesHit {
		b := byte(bi)
		collisions = append(collisions, Collision{
			Position: pos,
			Byte:     b,
			Chars:    append([]byte{decode[b]}, colliding[b]...),
		})
	}
	return decode, collisions
}
