// Package maf provides MAF (Mutation Annotation Format) file parsing functionality.
package maf

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/inodb/expression-near-mutations/internal/genome"
)

// Standard MAF column names
const (
	ColHugoSymbol            = "Hugo_Symbol"
	ColVariantClassification = "Variant_Classification"
	ColNCBIBuild             = "NCBI_Build"
	ColTumorSampleBarcode    = "Tumor_Sample_Barcode"
	ColChromosome            = "Chromosome"
	ColStartPosition         = "Start_Position"
)

// SilentClassification is the Variant_Classification of synonymous changes.
const SilentClassification = "Silent"

// ColumnIndices holds the indices of the MAF columns used here. A column
// absent from the header has index -1.
type ColumnIndices struct {
	HugoSymbol            int
	VariantClassification int
	NCBIBuild             int
	TumorSampleBarcode    int
	Chromosome            int
	StartPosition         int
}

// Mutation is one MAF row.
type Mutation struct {
	HugoSymbol            string
	VariantClassification string
	NCBIBuild             string
	TumorSampleBarcode    string
	Chromosome            string
	StartPosition         int64
}

// IsSilent reports whether the mutation leaves the protein unchanged. The
// classification must be exactly "Silent".
func (m *Mutation) IsSilent() bool {
	return m.VariantClassification == SilentClassification
}

// ReferenceClass returns the canonical genome label of the mutation's
// NCBI_Build, e.g. "hg19" for "GRCh37".
func (m *Mutation) ReferenceClass() string {
	return genome.ReferenceClass(m.NCBIBuild)
}

// Parser reads mutations from a MAF file.
type Parser struct {
	name       string
	reader     *bufio.Reader
	file       *os.File
	gzipReader *gzip.Reader
	lineNumber int
	columns    ColumnIndices
	headerLine string
}

// NewParser creates a new MAF parser for the given file.
// Supports both plain MAF and gzipped MAF (.maf.gz) files.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open maf file: %w", err)
	}

	p := &Parser{name: path, file: file}
	br := bufio.NewReader(file)

	// Check for gzip magic number (0x1f, 0x8b)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		p.gzipReader, err = gzip.NewReader(br)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReader(p.gzipReader)
	} else {
		p.reader = br
	}

	if err := p.parseHeader(); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader (e.g., stdin).
func NewParserFromReader(r io.Reader) (*Parser, error) {
	p := &Parser{
		name:   "-",
		reader: bufio.NewReader(r),
	}

	if err := p.parseHeader(); err != nil {
		return nil, err
	}

	return p, nil
}

// parseHeader skips leading comments and blank lines, then reads the column
// header.
func (p *Parser) parseHeader() error {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return p.errorf("no header line found")
			}
			return fmt.Errorf("read header: %w", err)
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p.headerLine = line
		return p.parseColumnIndices(line)
	}
}

// parseColumnIndices parses the header line to find column indices.
func (p *Parser) parseColumnIndices(headerLine string) error {
	p.columns = ColumnIndices{
		HugoSymbol:            -1,
		VariantClassification: -1,
		NCBIBuild:             -1,
		TumorSampleBarcode:    -1,
		Chromosome:            -1,
		StartPosition:         -1,
	}

	for i, col := range strings.Split(headerLine, "\t") {
		switch strings.TrimSpace(col) {
		case ColHugoSymbol:
			p.columns.HugoSymbol = i
		case ColVariantClassification:
			p.columns.VariantClassification = i
		case ColNCBIBuild:
			p.columns.NCBIBuild = i
		case ColTumorSampleBarcode:
			p.columns.TumorSampleBarcode = i
		case ColChromosome:
			p.columns.Chromosome = i
		case ColStartPosition:
			p.columns.StartPosition = i
		}
	}

	if p.columns.HugoSymbol == -1 {
		return p.errorf("required column '" + ColHugoSymbol + "' not found in header")
	}
	if p.columns.VariantClassification == -1 {
		return p.errorf("required column '" + ColVariantClassification + "' not found in header")
	}

	return nil
}

// Next reads the next mutation from the MAF file.
// Returns nil, nil when there are no more mutations.
func (p *Parser) Next() (*Mutation, error) {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("read mutation line: %w", err)
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		return p.parseLine(line)
	}
}

// parseLine parses a single MAF data line.
func (p *Parser) parseLine(line string) (*Mutation, error) {
	fields := strings.Split(line, "\t")

	minCols := max(p.columns.HugoSymbol, p.columns.VariantClassification)
	if len(fields) <= minCols {
		return nil, p.errorf(fmt.Sprintf("expected at least %d columns, found %d", minCols+1, len(fields)))
	}

	m := &Mutation{
		HugoSymbol:            fields[p.columns.HugoSymbol],
		VariantClassification: fields[p.columns.VariantClassification],
		NCBIBuild:             field(fields, p.columns.NCBIBuild),
		TumorSampleBarcode:    field(fields, p.columns.TumorSampleBarcode),
		Chromosome:            field(fields, p.columns.Chromosome),
	}

	if pos := field(fields, p.columns.StartPosition); pos != "" {
		v, err := strconv.ParseInt(pos, 10, 64)
		if err != nil {
			return nil, p.errorf(fmt.Sprintf("invalid position: %s", pos))
		}
		m.StartPosition = v
	}

	return m, nil
}

// field returns fields[i], or "" when the column is absent or the row short.
func field(fields []string, i int) string {
	if i >= 0 && i < len(fields) {
		return fields[i]
	}
	return ""
}

func (p *Parser) errorf(message string) *ParseError {
	return &ParseError{File: p.name, Line: p.lineNumber, Message: message}
}

// Header returns the MAF header line.
func (p *Parser) Header() string {
	return p.headerLine
}

// Columns returns the parsed column indices.
func (p *Parser) Columns() ColumnIndices {
	return p.columns
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// ReadAll parses every mutation in a MAF file.
func ReadAll(path string) ([]*Mutation, error) {
	p, err := NewParser(path)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	var mutations []*Mutation
	for {
		m, err := p.Next()
		if err != nil {
			return nil, err
		}
		if m == nil {
			return mutations, nil
		}
		mutations = append(mutations, m)
	}
}

// ParseError represents an error during MAF parsing with line context.
type ParseError struct {
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("maf parse error in %s at line %d: %s", e.File, e.Line, e.Message)
}
