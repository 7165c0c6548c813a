package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/expression-near-mutations/internal/expression"
)

func TestParse(t *testing.T) {
	input := "# experiments\n" +
		"participant_id\tmaf_file\tregional_expression_file\tallele_specific_expression_file\treference\n" +
		"P1\tp1.maf\tp1.regional.txt\t/abs/p1.ase.txt\t\n" +
		"P2\tp2.maf\t\t\tGRCh38\n" +
		"P3\tp3.maf\n"

	m, err := Parse(strings.NewReader(input), "/data")
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"P1", "P2", "P3"}, m.ParticipantIDs())

	p1, ok := m.Lookup("P1")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/data", "p1.maf"), p1.MAFFile)
	assert.Equal(t, filepath.Join("/data", "p1.regional.txt"), p1.InputFile(expression.Regional))
	assert.Equal(t, "/abs/p1.ase.txt", p1.InputFile(expression.AlleleSpecific))
	assert.Empty(t, p1.Reference)
	assert.Nil(t, p1.Mutations)

	p2, ok := m.Lookup("P2")
	require.True(t, ok)
	assert.Empty(t, p2.InputFile(expression.Regional))
	assert.Equal(t, "GRCh38", p2.Reference)

	p3, ok := m.Lookup("P3")
	require.True(t, ok)
	assert.Empty(t, p3.InputFile(expression.AlleleSpecific))

	_, ok = m.Lookup("P4")
	assert.False(t, ok)
}

func TestParse_ColumnOrderAndCase(t *testing.T) {
	input := "MAF_File\tParticipant_ID\r\nx.maf\tP9\r\n"

	m, err := Parse(strings.NewReader(input), "")
	require.NoError(t, err)

	e, ok := m.Lookup("P9")
	require.True(t, ok)
	assert.Equal(t, "x.maf", e.MAFFile)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"empty", "", "no header line found"},
		{"missing maf column", "participant_id\n", "required column 'maf_file'"},
		{"missing participant column", "maf_file\n", "required column 'participant_id'"},
		{"empty participant", "participant_id\tmaf_file\n\tx.maf\n", "line 2: empty participant_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestAdd_ReplacesDuplicate(t *testing.T) {
	m := New()
	m.Add(&Experiment{ParticipantID: "P1", MAFFile: "a.maf"})
	m.Add(&Experiment{ParticipantID: "P1", MAFFile: "b.maf"})

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, []string{"P1"}, m.ParticipantIDs())
	e, _ := m.Lookup("P1")
	assert.Equal(t, "b.maf", e.MAFFile)
}

func TestLoad_ResolvesAgainstManifestDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "experiments.tsv")
	require.NoError(t, os.WriteFile(path, []byte("participant_id\tmaf_file\nP1\tmaf/p1.maf\n"), 0o644))

	m, err := Load(path)
	require.NoError(t, err)

	e, ok := m.Lookup("P1")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "maf", "p1.maf"), e.MAFFile)

	_, err = Load(filepath.Join(dir, "missing.tsv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
