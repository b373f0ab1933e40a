package collector

import (
	"fmt"
	"strings"
)

// Probe is a single planned oracle call: a label identifying the probe within
// its plan and the exact plaintext to submit.
type Probe struct {
	Label     string
	Plaintext string
}

// Plan is an ordered batch of probes.
type Plan struct {
	Probes []Probe
}

// Add appends a probe to the plan.
func (p *Plan) Add(label, plaintext string) {
	p.Probes = append(p.Probes, Probe{Label: label, Plaintext: plaintext})
}

// Append concatenates another plan.
func (p *Plan) Append(other Plan) {
	p.Probes = append(p.Probes, other.Probes...)
}

// Len returns the number of planned probes.
func (p *Plan) Len() int {
	return len(p.Probes)
}

// Label helpers shared between plan builders and the consumers reading the
// collected samples back out of a SampleSet.

// LengthLabel names a filler-repetition probe of the given length.
func LengthLabel(filler string, n int) string {
	return fmt.Sprintf("len/%s/%d", filler, n)
}

// HeadLabel names a distinct-leading-character probe.
func HeadLabel(c byte) string {
	return fmt.Sprintf("head/%c", c)
}

// PositionLabel names an alphabet probe for one position.
func PositionLabel(pos int, c byte) string {
	return fmt.Sprintf("pos/%d/%c", pos, c)
}

// VerifyLabel names a cross-context verification probe for one position.
func VerifyLabel(pos int, c byte) string {
	return fmt.Sprintf("verify/%d/%c", pos, c)
}

// EchoLabel names the i-th independent fetch of an identical plaintext.
func EchoLabel(i int) string {
	return fmt.Sprintf("echo/%d", i)
}

// LengthSweep plans probes of the filler character repeated at increasing
// lengths, 1..maxLen. Used to expose the position mapping.
func LengthSweep(filler string, maxLen int) Plan {
	var p Plan
	for n := 1; n <= maxLen; n++ {
		p.Add(LengthLabel(filler, n), strings.Repeat(filler, n))
	}
	return p
}

// HeadSweep plans fixed-length probes that differ only in their leading
// character. Used to locate the header boundary.
func HeadSweep(chars string, length int, filler string) Plan {
	var p Plan
	for i := 0; i < len(chars); i++ {
		c := chars[i]
		p.Add(HeadLabel(c), string(c)+strings.Repeat(filler, length-1))
	}
	return p
}

// PositionSweep plans probes of every alphabet character at one position,
// padded to that position with the filler prefix.
func PositionSweep(pos int, filler, alphabet string) Plan {
	var p Plan
	prefix := strings.Repeat(filler, pos)
	for i := 0; i < len(alphabet); i++ {
		c := alphabet[i]
		p.Add(PositionLabel(pos, c), prefix+string(c))
	}
	return p
}

// EchoPlan plans count independent fetches of the identical plaintext. Used
// for keystream validation.
func EchoPlan(plaintext string, count int) Plan {
	var p Plan
	for i := 0; i < count; i++ {
		p.Add(EchoLabel(i), plaintext)
	}
	return p
}
