package duckdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/expression-near-mutations/internal/genome"
)

const cacheGTF = "chr12\tHAVANA\tgene\t25205246\t25250929\t.\t-\t.\tgene_id \"ENSG00000133703.14\"; gene_type \"protein_coding\"; gene_name \"KRAS\";\n" +
	"chrX\tHAVANA\tgene\t100\t200\t.\t+\t.\tgene_id \"ENSG00000000001.1\"; gene_name \"XGENE\";\n" +
	"chrY\tHAVANA\tgene\t100\t200\t.\t+\t.\tgene_id \"ENSG00000000002.1\"; gene_name \"XGENE\";\n"

func writeGTF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genes.gtf")
	require.NoError(t, os.WriteFile(path, []byte(cacheGTF), 0o644))
	return path
}

func TestGeneIndexCache_WriteRead(t *testing.T) {
	gc := NewGeneIndexCache(filepath.Join(t.TempDir(), "cache"))
	gtf := writeGTF(t)

	idx, err := genome.LoadGTF("hg19", gtf)
	require.NoError(t, err)
	fp, err := StatFile(gtf)
	require.NoError(t, err)
	require.NoError(t, gc.Write("hg19", idx, fp))

	got, err := gc.Read("hg19")
	require.NoError(t, err)
	assert.Equal(t, idx.GeneCount(), got.GeneCount())
	assert.Equal(t, idx.Chromosomes(), got.Chromosomes())

	kras, ok := got.GeneByName("KRAS")
	require.True(t, ok)
	assert.Equal(t, "ENSG00000133703", kras.ID)
	assert.Equal(t, int64(25205246), kras.Start)
	assert.Equal(t, int8(-1), kras.Strand)

	// First-wins name lookup survives the round trip.
	x, ok := got.GeneByName("XGENE")
	require.True(t, ok)
	assert.Equal(t, "chrx", x.Chrom)
}

func TestGeneIndexCache_Validation(t *testing.T) {
	gc := NewGeneIndexCache(t.TempDir())
	now := time.Now()
	fp := FileFingerprint{Path: "genes.gtf", Size: 1000, ModTime: now}

	assert.False(t, gc.Valid("hg19", fp))

	idx := genome.NewIndex()
	idx.AddGene(&genome.Gene{Name: "G", Chrom: "chr1", Start: 1, End: 2})
	require.NoError(t, gc.Write("hg19", idx, fp))
	assert.True(t, gc.Valid("hg19", fp))
	assert.False(t, gc.Valid("hg38", fp))

	changed := fp
	changed.Size = 9999
	assert.False(t, gc.Valid("hg19", changed))

	changed = fp
	changed.ModTime = now.Add(time.Hour)
	assert.False(t, gc.Valid("hg19", changed))

	gc.Clear("hg19")
	assert.False(t, gc.Valid("hg19", fp))
}

func TestGeneIndexCache_Load(t *testing.T) {
	dir := t.TempDir()
	gc := NewGeneIndexCache(dir)
	gtf := writeGTF(t)

	idx, err := gc.Load("hg19", gtf)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.GeneCount())
	_, err = os.Stat(filepath.Join(dir, "hg19.genes.gob"))
	require.NoError(t, err)

	// A second load is served from the cache, even with the GTF unreadable.
	require.NoError(t, os.Chmod(gtf, 0o000))
	t.Cleanup(func() { os.Chmod(gtf, 0o644) })
	idx, err = gc.Load("hg19", gtf)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.GeneCount())

	_, err = gc.Load("hg19", filepath.Join(t.TempDir(), "missing.gtf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
