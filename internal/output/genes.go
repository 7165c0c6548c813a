// Package output writes per-participant gene expression tables.
package output

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/inodb/expression-near-mutations/internal/expression"
	"github.com/inodb/expression-near-mutations/internal/region"
)

// FormatVersion is written on the first line of every table.
const FormatVersion = "ExpressionNearMutations v2.1"

// Output file extensions, appended to the analysis id of the input file.
const (
	GeneExpressionExtension               = ".gene_expression.txt"
	AlleleSpecificGeneExpressionExtension = ".allele_specific_gene_expression.txt"
)

// emptyCell marks a bin with no observations.
const emptyCell = "*"

// GeneTableWriter writes gene rows in the v2.1 gene expression format.
type GeneTableWriter struct {
	w    *bufio.Writer
	mode expression.Mode
}

// NewGeneTableWriter creates a writer for the given mode. Regional tables
// carry a second block of mean-expression ("mu") columns.
func NewGeneTableWriter(w io.Writer, mode expression.Mode) *GeneTableWriter {
	return &GeneTableWriter{
		w:    bufio.NewWriter(w),
		mode: mode,
	}
}

// Columns returns the column header names.
func (gw *GeneTableWriter) Columns() []string {
	columns := []string{"Gene name", "non-silent mutation count"}
	for _, size := range region.RegionSizes {
		columns = append(columns, strconv.FormatInt(size, 10)+"(ase)")
	}
	if gw.mode == expression.Regional {
		for _, size := range region.RegionSizes {
			columns = append(columns, strconv.FormatInt(size, 10)+"(mu)")
		}
	}
	return columns
}

// WriteHeader writes the version line and the column header line.
func (gw *GeneTableWriter) WriteHeader(participantID string) error {
	title := FormatVersion + " " + participantID
	if gw.mode == expression.AlleleSpecific {
		title += " -a"
	}
	if _, err := gw.w.WriteString(title + "\n"); err != nil {
		return err
	}
	_, err := gw.w.WriteString(strings.Join(gw.Columns(), "\t") + "\n")
	return err
}

// Write writes one gene row.
func (gw *GeneTableWriter) Write(ge *region.GeneExpression) error {
	values := make([]string, 0, 2+2*region.NumRegionSizes)
	values = append(values, ge.Gene.Name, strconv.Itoa(ge.MutationCount))

	for i := range ge.States {
		values = append(values, FormatMean(ge.States[i].Mean()))
	}
	if gw.mode == expression.Regional {
		for i := range ge.States {
			values = append(values, FormatMean(ge.States[i].MuMean()))
		}
	}

	_, err := gw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// WriteDone writes the terminating line.
func (gw *GeneTableWriter) WriteDone() error {
	_, err := gw.w.WriteString(expression.DoneMarker + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (gw *GeneTableWriter) Flush() error {
	return gw.w.Flush()
}

// FormatMean renders a mean, or "*" when ok is false.
func FormatMean(v float64, ok bool) string {
	if !ok {
		return emptyCell
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// AnalysisID returns the base name of path up to its first '.'.
func AnalysisID(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}

// OutputPath derives the table path for an input file: the analysis id of
// the input plus the mode's extension, in the input's directory.
func OutputPath(inputFile string, mode expression.Mode) (string, error) {
	if inputFile == "" {
		return "", fmt.Errorf("empty input path")
	}
	id := AnalysisID(inputFile)
	if id == "" || id == string(filepath.Separator) {
		return "", fmt.Errorf("no analysis id in input path %s", inputFile)
	}

	ext := GeneExpressionExtension
	if mode == expression.AlleleSpecific {
		ext = AlleleSpecificGeneExpressionExtension
	}
	return filepath.Join(filepath.Dir(inputFile), id+ext), nil
}
