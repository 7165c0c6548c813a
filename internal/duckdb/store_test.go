package duckdb

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/expression-near-mutations/internal/expression"
	"github.com/inodb/expression-near-mutations/internal/genome"
	"github.com/inodb/expression-near-mutations/internal/pipeline"
	"github.com/inodb/expression-near-mutations/internal/region"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testResult(t *testing.T, participantID string) *pipeline.Result {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, participantID+".regional.txt")
	out := filepath.Join(dir, participantID+".gene_expression.txt")
	require.NoError(t, os.WriteFile(input, []byte("input"), 0o644))
	require.NoError(t, os.WriteFile(out, []byte("output"), 0o644))

	kras := region.NewGeneExpression(&genome.Gene{
		ID: "ENSG00000133703", Name: "KRAS", Chrom: "chr12", Start: 1000, End: 2000, Strand: -1, Biotype: "protein_coding",
	})
	kras.MutationCount = 2
	kras.AddRegionalExpression(1500, 2.0, 1.0)
	kras.AddRegionalExpression(1600, 4.0, 3.0)
	kras.AddRegionalExpression(3500, -1.0, 0.5) // bins 2..19

	tp53 := region.NewGeneExpression(&genome.Gene{Name: "TP53", Chrom: "chr17", Start: 5000, End: 6000})

	return &pipeline.Result{
		ParticipantID: participantID,
		Reference:     "hg19",
		InputFile:     input,
		OutputFile:    out,
		Mode:          expression.Regional,
		Genes:         2,
		Records:       3,
		Skipped:       1,
		Elapsed:       1500 * time.Millisecond,
		Expressions:   []*region.GeneExpression{kras, tp53},
	}
}

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	assert.NotNil(t, s.DB())
	assert.Empty(t, s.Path())
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.duckdb")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
	assert.Equal(t, path, s.Path())
}

func TestWriteParticipant(t *testing.T) {
	s := openInMemory(t)
	r := testResult(t, "P1")

	require.NoError(t, s.WriteParticipant(r))

	run, err := s.LookupRun("P1", expression.Regional)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "regional", run.Mode)
	assert.Equal(t, "hg19", run.Reference)
	assert.Equal(t, r.InputFile, run.Input.Path)
	assert.Equal(t, int64(5), run.Input.Size)
	assert.Equal(t, r.OutputFile, run.OutputFile)
	assert.Equal(t, int64(2), run.Genes)
	assert.Equal(t, int64(3), run.Records)
	assert.Equal(t, int64(1), run.Skipped)
	assert.Equal(t, 1500*time.Millisecond, run.Elapsed)

	bins, err := s.GeneBins("P1", expression.Regional, "KRAS")
	require.NoError(t, err)
	require.Len(t, bins, 19) // bin 0 plus bins 2..19

	assert.Equal(t, int64(0), bins[0].Bin)
	assert.Equal(t, int64(0), bins[0].RegionSize)
	assert.Equal(t, int64(2), bins[0].N)
	assert.Equal(t, int64(2), bins[0].MutationCount)
	assert.Equal(t, "chr12", bins[0].Chrom)
	assert.Equal(t, "ENSG00000133703", bins[0].GeneID)
	assert.Equal(t, int8(-1), bins[0].Strand)
	assert.Equal(t, "protein_coding", bins[0].Biotype)
	assert.Equal(t, 3.0, bins[0].Mean)
	assert.Equal(t, 2.0, bins[0].Min)
	assert.Equal(t, 4.0, bins[0].Max)
	assert.Equal(t, 2.0, bins[0].MuMean)
	assert.Equal(t, 1.0, bins[0].MuMin)
	assert.Equal(t, 3.0, bins[0].MuMax)

	assert.Equal(t, int64(2), bins[1].Bin)
	assert.Equal(t, int64(2000), bins[1].RegionSize)
	assert.Equal(t, -1.0, bins[1].Mean)

	// Genes without observations have no rows.
	bins, err = s.GeneBins("P1", expression.Regional, "TP53")
	require.NoError(t, err)
	assert.Empty(t, bins)
}

func TestWriteParticipant_Replaces(t *testing.T) {
	s := openInMemory(t)
	r := testResult(t, "P1")

	require.NoError(t, s.WriteParticipant(r))
	require.NoError(t, s.WriteParticipant(r))

	n, err := s.CountRows("P1", expression.Regional)
	require.NoError(t, err)
	assert.Equal(t, 19, n)

	// Another mode is stored separately.
	r.Mode = expression.AlleleSpecific
	require.NoError(t, s.WriteParticipant(r))
	n, err = s.CountRows("P1", expression.AlleleSpecific)
	require.NoError(t, err)
	assert.Equal(t, 19, n)
	n, err = s.CountRows("P1", expression.Regional)
	require.NoError(t, err)
	assert.Equal(t, 19, n)
}

func TestWriteParticipant_Concurrent(t *testing.T) {
	s := openInMemory(t)

	var results []*pipeline.Result
	for _, id := range []string{"A", "B", "C", "D", "E", "F"} {
		results = append(results, testResult(t, id))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(results))
	for i, r := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.WriteParticipant(r)
		}()
	}
	wg.Wait()

	for i, r := range results {
		require.NoError(t, errs[i])
		n, err := s.CountRows(r.ParticipantID, expression.Regional)
		require.NoError(t, err)
		assert.Equal(t, 19, n, r.ParticipantID)
	}
}

func TestWriteParticipant_MissingInput(t *testing.T) {
	s := openInMemory(t)
	r := testResult(t, "P1")
	r.InputFile = filepath.Join(t.TempDir(), "gone.txt")

	err := s.WriteParticipant(r)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLookupRun_Missing(t *testing.T) {
	s := openInMemory(t)
	run, err := s.LookupRun("nobody", expression.Regional)
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestUpToDate(t *testing.T) {
	s := openInMemory(t)
	r := testResult(t, "P1")

	ok, err := s.UpToDate("P1", expression.Regional)
	require.NoError(t, err)
	assert.False(t, ok, "nothing stored yet")

	require.NoError(t, s.WriteParticipant(r))
	ok, err = s.UpToDate("P1", expression.Regional)
	require.NoError(t, err)
	assert.True(t, ok)

	// Input changed since the stored run.
	require.NoError(t, os.WriteFile(r.InputFile, []byte("changed input"), 0o644))
	ok, err = s.UpToDate("P1", expression.Regional)
	require.NoError(t, err)
	assert.False(t, ok)

	// Output removed.
	require.NoError(t, s.WriteParticipant(r))
	require.NoError(t, os.Remove(r.OutputFile))
	ok, err = s.UpToDate("P1", expression.Regional)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	fp, err := StatFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), fp.Size)
	assert.Equal(t, time.UTC, fp.ModTime.Location())
	assert.True(t, fp.Matches(fp))

	other := fp
	other.Size = 4
	assert.False(t, fp.Matches(other))

	_, err = StatFile(filepath.Join(t.TempDir(), "none"))
	assert.Error(t, err)
}
