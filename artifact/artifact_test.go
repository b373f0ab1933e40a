package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyxtv/embedcodec/errs"
	"github.com/flyxtv/embedcodec/tables"
	"github.com/flyxtv/embedcodec/types"
)

var testStructure = types.Structure{
	Header:  []byte{0xDE, 0xAD},
	Padding: map[int]byte{1: 0xF2},
	Mapping: types.PositionMapping{Early: []int{0}, Cutover: 1, Base: 2, Step: 1},
}

func substitutionArtifact(t *testing.T) *Artifact {
	t.Helper()
	a := New("flyx", types.ModeSubstitution)
	a.SetStructure(testStructure)
	a.SetSubstitution(&tables.SubstitutionResult{
		Encode: map[int]map[byte]byte{
			0: {'a': 0x41, 'b': 0x42},
			1: {'a': 0x51, 'b': 0x52},
		},
	})
	return a
}

func TestNewMetadata(t *testing.T) {
	a := New("flyx", types.ModeKeystream)
	assert.Equal(t, Version, a.Version)
	assert.Equal(t, "flyx", a.Provider)
	assert.NotEmpty(t, a.RunID)
	assert.False(t, a.CreatedAt.IsZero())

	b := New("flyx", types.ModeKeystream)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestStructureRoundTrip(t *testing.T) {
	a := substitutionArtifact(t)
	s, err := a.Structure()
	require.NoError(t, err)
	assert.True(t, s.Equal(testStructure))
}

func TestSubstitutionSkipsConflicted(t *testing.T) {
	a := New("flyx", types.ModeSubstitution)
	a.SetStructure(testStructure)
	a.SetSubstitution(&tables.SubstitutionResult{
		Encode: map[int]map[byte]byte{
			0: {'a': 0x41},
			1: {'a': 0x51},
		},
		Conflicts: []int{1},
	})
	require.Len(t, a.Positions, 1)
	assert.Equal(t, 0, a.Positions[0].Position)
}

func TestJSONRoundTrip(t *testing.T) {
	a := substitutionArtifact(t)

	data, err := json.Marshal(a)
	require.NoError(t, err)
	var back Artifact
	require.NoError(t, json.Unmarshal(data, &back))
	require.NoError(t, back.Validate())

	assert.Equal(t, a.RunID, back.RunID)
	assert.Equal(t, a.Header, back.Header)
	assert.Equal(t, a.Padding, back.Padding)
	assert.Equal(t, a.Mapping, back.Mapping)
	require.Len(t, back.Positions, 2)
	table, err := back.Positions[0].Table()
	require.NoError(t, err)
	assert.Equal(t, map[byte]byte{'a': 0x41, 'b': 0x42}, table)
}

func TestSaveLoad(t *testing.T) {
	a := substitutionArtifact(t)
	path := filepath.Join(t.TempDir(), "deep", "flyx.json")

	require.NoError(t, Save(a, path))

	// No temp file may survive the rename.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, a.RunID, back.RunID)
	assert.Equal(t, a.Positions, back.Positions)
}

func TestSaveRejectsInvalid(t *testing.T) {
	a := New("flyx", types.ModeSubstitution)
	// No structure, no tables.
	err := Save(a, filepath.Join(t.TempDir(), "bad.json"))
	require.Error(t, err)
}

func TestLoadRejectsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestMergeUnionsPositions(t *testing.T) {
	a := New("flyx", types.ModeSubstitution)
	a.SetStructure(testStructure)
	a.SetSubstitution(&tables.SubstitutionResult{
		Encode: map[int]map[byte]byte{0: {'a': 0x41}},
	})

	b := New("flyx", types.ModeSubstitution)
	b.SetStructure(testStructure)
	b.SetSubstitution(&tables.SubstitutionResult{
		Encode: map[int]map[byte]byte{
			0: {'a': 0x41, 'b': 0x42},
			1: {'a': 0x51},
		},
	})

	require.NoError(t, a.Merge(b))
	require.Len(t, a.Positions, 2)
	table, err := a.Positions[0].Table()
	require.NoError(t, err)
	assert.Equal(t, map[byte]byte{'a': 0x41, 'b': 0x42}, table)
	assert.Equal(t, 1, a.Positions[1].Position)
}

func TestMergeRejectsStructureDrift(t *testing.T) {
	a := substitutionArtifact(t)
	b := substitutionArtifact(t)
	drifted := testStructure
	drifted.Header = []byte{0xDE, 0xAE}
	b.SetStructure(drifted)

	err := a.Merge(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStructuralMismatch)
}

func TestMergeRejectsConflictingTables(t *testing.T) {
	a := substitutionArtifact(t)
	b := New("flyx", types.ModeSubstitution)
	b.SetStructure(testStructure)
	b.SetSubstitution(&tables.SubstitutionResult{
		Encode: map[int]map[byte]byte{0: {'a': 0x99}},
	})

	err := a.Merge(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrPositionConflict)
}

func TestMergeKeystreamTakesMinHorizon(t *testing.T) {
	ks := []byte{0x01, 0x02, 0x03, 0x04}

	a := New("flyx", types.ModeKeystream)
	a.SetStructure(testStructure)
	a.SetKeystream(&tables.KeystreamResult{Keystream: ks, Horizon: 4})

	b := New("flyx", types.ModeKeystream)
	b.SetStructure(testStructure)
	b.SetKeystream(&tables.KeystreamResult{Keystream: append(ks, 0x05, 0x06), Horizon: 3})

	require.NoError(t, a.Merge(b))
	assert.Equal(t, 3, a.StabilityHorizon)
	got, err := a.KeystreamBytes()
	require.NoError(t, err)
	assert.Len(t, got, 6)
}

func TestMergeKeystreamDisagreement(t *testing.T) {
	a := New("flyx", types.ModeKeystream)
	a.SetStructure(testStructure)
	a.SetKeystream(&tables.KeystreamResult{Keystream: []byte{0x01, 0x02}, Horizon: 2})

	b := New("flyx", types.ModeKeystream)
	b.SetStructure(testStructure)
	b.SetKeystream(&tables.KeystreamResult{Keystream: []byte{0x01, 0xFF}, Horizon: 2})

	err := a.Merge(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrUnstableKeystream)
}

func TestValidateRejectsBadHorizon(t *testing.T) {
	a := New("flyx", types.ModeKeystream)
	a.SetStructure(testStructure)
	a.SetKeystream(&tables.KeystreamResult{Keystream: []byte{0x01}, Horizon: 5})
	require.Error(t, a.Validate())
}
