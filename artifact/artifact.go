// Package artifact serializes recovered transforms. An Artifact is the
// stable handoff between a recovery run and the runtime codec: everything
// the codec needs, nothing that requires the network.
package artifact

import (
	"encoding/hex"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/flyxtv/embedcodec/errs"
	"github.com/flyxtv/embedcodec/tables"
	"github.com/flyxtv/embedcodec/types"
)

// Version is the artifact schema version this package writes and accepts.
const Version = 1

// PositionTable is the serialized substitution table for one plaintext
// position: Chars holds the plaintext characters, Bytes the hex-encoded
// cipher byte for each character at the same index.
type PositionTable struct {
	Position int    `json:"position"`
	Chars    string `json:"chars"`
	Bytes    string `json:"bytes"`
}

// Table parses the serialized pairs back into a char to cipher byte map.
func (p PositionTable) Table() (map[byte]byte, error) {
	raw, err := hex.DecodeString(p.Bytes)
	if err != nil {
		return nil, errors.Wrapf(err, "position %d: bad byte hex", p.Position)
	}
	if len(raw) != len(p.Chars) {
		return nil, errors.Errorf("position %d: %d chars but %d bytes", p.Position, len(p.Chars), len(raw))
	}
	m := make(map[byte]byte, len(raw))
	for i := 0; i < len(p.Chars); i++ {
		m[p.Chars[i]] = raw[i]
	}
	return m, nil
}

// Artifact is a recovered transform with its run metadata. Header and
// Keystream are hex encoded so the JSON stays diffable.
type Artifact struct {
	Version   int        `json:"version"`
	RunID     string     `json:"run_id"`
	Provider  string     `json:"provider"`
	CreatedAt time.Time  `json:"created_at"`
	Mode      types.Mode `json:"mode"`

	Header  string                `json:"header"`
	Padding map[int]byte          `json:"padding,omitempty"`
	Mapping types.PositionMapping `json:"mapping"`

	Positions []PositionTable `json:"positions,omitempty"`

	Keystream        string `json:"keystream,omitempty"`
	StabilityHorizon int    `json:"stability_horizon,omitempty"`
}

// New creates an artifact shell with fresh run metadata.
func New(provider string, mode types.Mode) *Artifact {
	return &Artifact{
		Version:   Version,
		RunID:     uuid.NewString(),
		Provider:  provider,
		CreatedAt: time.Now().UTC(),
		Mode:      mode,
	}
}

// SetStructure records the recovered structural model.
func (a *Artifact) SetStructure(s types.Structure) {
	a.Header = hex.EncodeToString(s.Header)
	if len(s.Padding) > 0 {
		a.Padding = make(map[int]byte, len(s.Padding))
		for off, b := range s.Padding {
			a.Padding[off] = b
		}
	}
	a.Mapping = s.Mapping
}

// Structure decodes the structural model back out.
func (a *Artifact) Structure() (types.Structure, error) {
	header, err := hex.DecodeString(a.Header)
	if err != nil {
		return types.Structure{}, errors.Wrap(err, "bad header hex")
	}
	s := types.Structure{Header: header, Mapping: a.Mapping}
	if len(a.Padding) > 0 {
		s.Padding = make(map[int]byte, len(a.Padding))
		for off, b := range a.Padding {
			s.Padding[off] = b
		}
	}
	return s, nil
}

// SetSubstitution stores the per-position tables. Conflicted positions are
// left out: their bytes are not pure substitution and must not be served.
func (a *Artifact) SetSubstitution(res *tables.SubstitutionResult) {
	conflicted := make(map[int]bool, len(res.Conflicts))
	for _, p := range res.Conflicts {
		conflicted[p] = true
	}

	positions := make([]int, 0, len(res.Encode))
	for p := range res.Encode {
		if !conflicted[p] {
			positions = append(positions, p)
		}
	}
	sort.Ints(positions)

	a.Positions = a.Positions[:0]
	for _, p := range positions {
		a.Positions = append(a.Positions, encodeTable(p, res.Encode[p]))
	}
}

// SetKeystream stores the keystream and its validated horizon.
func (a *Artifact) SetKeystream(res *tables.KeystreamResult) {
	a.Keystream = hex.EncodeToString(res.Keystream)
	a.StabilityHorizon = res.Horizon
}

// KeystreamBytes decodes the stored keystream.
func (a *Artifact) KeystreamBytes() ([]byte, error) {
	ks, err := hex.DecodeString(a.Keystream)
	if err != nil {
		return nil, errors.Wrap(err, "bad keystream hex")
	}
	return ks, nil
}

// Validate checks internal consistency before the artifact is served or
// persisted.
func (a *Artifact) Validate() error {
	if a.Version != Version {
		return errors.Errorf("unsupported artifact version %d", a.Version)
	}
	if a.Provider == "" {
		return errors.New("artifact has no provider")
	}
	if _, err := hex.DecodeString(a.Header); err != nil {
		return errors.Wrap(err, "bad header hex")
	}
	if !a.Mapping.Valid() {
		return errors.New("invalid position mapping")
	}
	switch a.Mode {
	case types.ModeSubstitution:
		if len(a.Positions) == 0 {
			return errors.New("substitution artifact has no position tables")
		}
		for _, p := range a.Positions {
			if _, err := p.Table(); err != nil {
				return err
			}
		}
	case types.ModeKeystream:
		ks, err := a.KeystreamBytes()
		if err != nil {
			return err
		}
		if a.StabilityHorizon < 0 || a.StabilityHorizon > len(ks) {
			return errors.Errorf("stability horizon %d outside keystream of %d bytes", a.StabilityHorizon, len(ks))
		}
	default:
		return errors.Errorf("unknown mode %q", a.Mode)
	}
	return nil
}

// Merge folds a newer run into this artifact so a recovery can resume where
// a previous one left off. The structural models must agree. Position
// tables are unioned; a position both runs resolved must carry identical
// entries. Keystreams must agree within the shorter horizon, which becomes
// the merged horizon.
func (a *Artifact) Merge(other *Artifact) error {
	if other == nil {
		return nil
	}
	if a.Mode != other.Mode {
		return errors.Wrapf(errs.ErrStructuralMismatch, "mode %q vs %q", a.Mode, other.Mode)
	}
	mine, err := a.Structure()
	if err != nil {
		return err
	}
	theirs, err := other.Structure()
	if err != nil {
		return err
	}
	if !mine.Equal(theirs) {
		return errors.Wrap(errs.ErrStructuralMismatch, "structural models disagree")
	}

	switch a.Mode {
	case types.ModeSubstitution:
		return a.mergePositions(other)
	case types.ModeKeystream:
		return a.mergeKeystream(other)
	}
	return errors.Errorf("unknown mode %q", a.Mode)
}

func (a *Artifact) mergePositions(other *Artifact) error {
	byPos := make(map[int]map[byte]byte, len(a.Positions))
	for _, pt := range a.Positions {
		table, err := pt.Table()
		if err != nil {
			return err
		}
		byPos[pt.Position] = table
	}
	for _, pt := range other.Positions {
		table, err := pt.Table()
		if err != nil {
			return err
		}
		existing, ok := byPos[pt.Position]
		if !ok {
			byPos[pt.Position] = table
			continue
		}
		for c, b := range table {
			if have, seen := existing[c]; seen && have != b {
				return errors.Wrapf(errs.ErrPositionConflict,
					"position %d char %q: 0x%02X vs 0x%02X", pt.Position, c, have, b)
			}
			existing[c] = b
		}
	}

	positions := make([]int, 0, len(byPos))
	for p := range byPos {
		positions = append(positions, p)
	}
	sort.Ints(positions)
	a.Positions = a.Positions[:0]
	for _, p := range positions {
		a.Positions = append(a.Positions, encodeTable(p, byPos[p]))
	}
	return nil
}

func (a *Artifact) mergeKeystream(other *Artifact) error {
	mine, err := a.KeystreamBytes()
	if err != nil {
		return err
	}
	theirs, err := other.KeystreamBytes()
	if err != nil {
		return err
	}

	horizon := a.StabilityHorizon
	if other.StabilityHorizon < horizon {
		horizon = other.StabilityHorizon
	}
	for i := 0; i < horizon; i++ {
		if mine[i] != theirs[i] {
			return errors.Wrapf(errs.ErrUnstableKeystream,
				"keystreams disagree at position %d", i)
		}
	}
	if len(theirs) > len(mine) {
		a.Keystream = other.Keystream
	}
	a.StabilityHorizon = horizon
	return nil
}

func encodeTable(pos int, table map[byte]byte) PositionTable {
	chars := make([]int, 0, len(table))
	for c := range table {
		chars = append(chars, int(c))
	}
	sort.Ints(chars)

	plain := make([]byte, 0, len(chars))
	cipher := make([]byte, 0, len(chars))
	for _, ci := range chars {
		plain = append(plain, byte(ci))
		cipher = append(cipher, table[byte(ci)])
	}
	return PositionTable{Position: pos, Chars: string(plain), Bytes: hex.EncodeToString(cipher)}
}
