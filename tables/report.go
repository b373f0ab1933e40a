package tables

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flyxtv/embedcodec/types"
)

// Report summarizes a recovery run for the operator: how far each position
// got, which bytes are lossy, and how many probes never came back.
type Report struct {
	Provider      string
	Mode          types.Mode
	Positions     map[int]types.PositionStatus
	Collisions    []Collision
	Horizon       int
	FailedProbes  int
	MissingProbes int
}

// NewReport builds a report skeleton for a provider.
func NewReport(provider string, mode types.Mode) *Report {
	return &Report{
		Provider:  provider,
		Mode:      mode,
		Positions: make(map[int]types.PositionStatus),
	}
}

// FromSubstitution fills position statuses from a substitution build.
func (r *Report) FromSubstitution(res *SubstitutionResult) {
	for p := range res.Encode {
		r.Positions[p] = types.StatusResolved
	}
	for _, p := range res.Conflicts {
		r.Positions[p] = types.StatusContextDependent
	}
	for _, p := range res.Unresolved {
		r.Positions[p] = types.StatusUnresolved
	}
	r.Collisions = res.Collisions
}

// FromKeystream fills position statuses from a keystream build.
func (r *Report) FromKeystream(res *KeystreamResult) {
	for p := 0; p < len(res.Keystream); p++ {
		if p < res.Horizon {
			r.Positions[p] = types.StatusResolved
		} else {
			r.Positions[p] = types.StatusUnresolved
		}
	}
	r.Horizon = res.Horizon
}

// Counts returns how many positions landed in each status.
func (r *Report) Counts() (resolved, contextDependent, unresolved int) {
	for _, st := range r.Positions {
		switch st {
		case types.StatusResolved:
			resolved++
		case types.StatusContextDependent:
			contextDependent++
		case types.StatusUnresolved:
			unresolved++
		}
	}
	return
}

// Summary renders a short operator-facing text report.
func (r *Report) Summary() string {
	resolved, ctxDep, unresolved := r.Counts()
	var b strings.Builder
	fmt.Fprintf(&b, "provider %s: mode=%s positions=%d resolved=%d context-dependent=%d unresolved=%d\n",
		r.Provider, r.Mode, len(r.Positions), resolved, ctxDep, unresolved)
	if r.Mode == types.ModeKeystream {
		fmt.Fprintf(&b, "stability horizon: %d\n", r.Horizon)
	}
	if len(r.Collisions) > 0 {
		fmt.Fprintf(&b, "lossy bytes: %d\n", len(r.Collisions))
		for _, c := range r.Collisions {
			chars := make([]string, len(c.Chars))
			for i, ch := range c.Chars {
				chars[i] = fmt.Sprintf("%q", ch)
			}
			fmt.Fprintf(&b, "  pos %d byte 0x%02X <- %s (lowest wins)\n", c.Position, c.Byte, strings.Join(chars, " "))
		}
	}
	if r.FailedProbes > 0 || r.MissingProbes > 0 {
		fmt.Fprintf(&b, "probes failed=%d missing=%d\n", r.FailedProbes, r.MissingProbes)
	}
	if statuses := r.problemPositions(); len(statuses) > 0 {
		fmt.Fprintf(&b, "attention: %s\n", strings.Join(statuses, ", "))
	}
	return b.String()
}

func (r *Report) problemPositions() []string {
	var positions []int
	for p, st := range r.Positions {
		if st != types.StatusResolved {
			positions = append(positions, p)
		}
	}
	sort.Ints(positions)
	var out []string
	for _, p := range positions {
		out = append(out, fmt.Sprintf("pos %d %s", p, r.Positions[p]))
	}
	return out
}
