package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/expression-near-mutations/internal/expression"
	"github.com/inodb/expression-near-mutations/internal/genome"
	"github.com/inodb/expression-near-mutations/internal/region"
)

func TestGeneTableWriter_WriteHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewGeneTableWriter(&buf, expression.Regional)

	require.NoError(t, w.WriteHeader("TCGA-AA-3821"))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ExpressionNearMutations v2.1 TCGA-AA-3821", lines[0])

	cols := strings.Split(lines[1], "\t")
	require.Len(t, cols, 42)
	assert.Equal(t, "Gene name", cols[0])
	assert.Equal(t, "non-silent mutation count", cols[1])
	assert.Equal(t, "0(ase)", cols[2])
	assert.Equal(t, "1000(ase)", cols[3])
	assert.Equal(t, "262144000(ase)", cols[21])
	assert.Equal(t, "0(mu)", cols[22])
	assert.Equal(t, "262144000(mu)", cols[41])
}

func TestGeneTableWriter_AlleleSpecificHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewGeneTableWriter(&buf, expression.AlleleSpecific)

	require.NoError(t, w.WriteHeader("P1"))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Equal(t, "ExpressionNearMutations v2.1 P1 -a", lines[0])
	cols := strings.Split(lines[1], "\t")
	assert.Len(t, cols, 22)
	assert.NotContains(t, lines[1], "(mu)")
}

func TestGeneTableWriter_Write(t *testing.T) {
	g := &genome.Gene{Name: "KRAS", Chrom: "chr12", Start: 1000, End: 2000}
	ge := region.NewGeneExpression(g)
	ge.MutationCount = 2
	ge.AddRegionalExpression(1500, 2.0, 10)
	ge.AddRegionalExpression(1600, 4.0, 20)

	var buf bytes.Buffer
	w := NewGeneTableWriter(&buf, expression.Regional)
	require.NoError(t, w.Write(ge))
	require.NoError(t, w.WriteDone())
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, expression.DoneMarker, lines[1])

	cells := strings.Split(lines[0], "\t")
	require.Len(t, cells, 42)
	assert.Equal(t, "KRAS", cells[0])
	assert.Equal(t, "2", cells[1])
	assert.Equal(t, "3", cells[2])
	for _, c := range cells[3:22] {
		assert.Equal(t, "*", c)
	}
	assert.Equal(t, "15", cells[22])
	assert.Equal(t, "*", cells[23])
}

func TestGeneTableWriter_WriteAlleleSpecific(t *testing.T) {
	g := &genome.Gene{Name: "TP53", Chrom: "chr17", Start: 1000, End: 2000}
	ge := region.NewGeneExpression(g)
	ge.AddRegionalExpression(2500, 0.25, 0)

	var buf bytes.Buffer
	w := NewGeneTableWriter(&buf, expression.AlleleSpecific)
	require.NoError(t, w.Write(ge))
	require.NoError(t, w.Flush())

	cells := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\t")
	require.Len(t, cells, 22)
	assert.Equal(t, "0", cells[1])
	assert.Equal(t, "*", cells[2])
	assert.Equal(t, "0.25", cells[3])
	assert.Equal(t, "0.25", cells[21])
}

func TestFormatMean(t *testing.T) {
	a, b := 0.1, 0.2
	tests := []struct {
		value    float64
		ok       bool
		expected string
	}{
		{0, false, "*"},
		{3, true, "3"},
		{-1.5, true, "-1.5"},
		{a + b, true, "0.30000000000000004"},
		{1.0 / 3.0, true, "0.3333333333333333"},
		{1e21, true, "1000000000000000000000"},
		{0.0000001, true, "0.0000001"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatMean(tt.value, tt.ok))
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		mode     expression.Mode
		expected string
	}{
		{"regional", "/data/p1/abc-123.regional_expression.txt", expression.Regional, "/data/p1/abc-123.gene_expression.txt"},
		{"allele-specific", "/data/p1/abc-123.annotated_selected_variants", expression.AlleleSpecific, "/data/p1/abc-123.allele_specific_gene_expression.txt"},
		{"no extension", "/data/abc", expression.Regional, "/data/abc.gene_expression.txt"},
		{"relative", "runs/abc.txt.gz", expression.Regional, "runs/abc.gene_expression.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OutputPath(tt.input, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestOutputPath_Errors(t *testing.T) {
	for _, input := range []string{"", "/data/.hidden", "/"} {
		_, err := OutputPath(input, expression.Regional)
		assert.Error(t, err, "input %q", input)
	}
}
