package expression

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/inodb/expression-near-mutations/internal/genome"
)

const (
	regionalFieldCount       = 13
	alleleSpecificFieldCount = 20
)

// Column positions (0-based) in regional expression data lines.
const (
	regionalColChrom       = 0
	regionalColOffset      = 1
	regionalColExpressed   = 3 // bases expressed with baseline expression
	regionalColUnexpressed = 7 // bases unexpressed with baseline expression
	regionalColZ           = 11
	regionalColMu          = 12
)

// Column positions (0-based) in allele-specific data lines.
const (
	aseColChrom    = 0
	aseColOffset   = 1
	aseColRefDNA   = 12
	aseColVarDNA   = 13
	aseColRefRNA   = 16
	aseColVarRNA   = 17
	minReadsPerSet = 10
)

// ChromosomeIndex reports whether any gene is known on a chromosome.
type ChromosomeIndex interface {
	HasChromosome(chrom string) bool
}

// Reader streams accepted records from one expression file. Lines that are
// well formed but filtered out (no baseline coverage, insufficient depth,
// skewed DNA, chromosome without genes) are counted by Skipped.
type Reader struct {
	mode       Mode
	name       string
	chroms     ChromosomeIndex
	reader     *bufio.Reader
	file       *os.File
	gzipReader *gzip.Reader
	lineNumber int
	seenDone   bool
	skipped    int

	// first allele-specific line when it turned out to be data, not a header
	pending    string
	hasPending bool
}

// Open opens an expression file for reading. Gzipped files are detected by
// their magic bytes. chroms may be nil, in which case no chromosome filter
// is applied.
func Open(path string, mode Mode, chroms ChromosomeIndex) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open expression file: %w", err)
	}

	r, err := newReader(file, path, mode, chroms)
	r.file = file
	if err != nil {
		r.Close()
		return nil, err
	}

	if err := r.readHeader(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// NewReader creates a Reader over an already open stream. name is used in
// error messages.
func NewReader(rd io.Reader, name string, mode Mode, chroms ChromosomeIndex) (*Reader, error) {
	r, err := newReader(rd, name, mode, chroms)
	if err != nil {
		return nil, err
	}
	if err := r.readHeader(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func newReader(rd io.Reader, name string, mode Mode, chroms ChromosomeIndex) (*Reader, error) {
	r := &Reader{
		mode:   mode,
		name:   name,
		chroms: chroms,
	}

	br := bufio.NewReader(rd)

	// Check for gzip magic number (0x1f, 0x8b)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return r, fmt.Errorf("create gzip reader: %w", err)
		}
		r.gzipReader = gz
		r.reader = bufio.NewReader(gz)
	} else {
		r.reader = br
	}

	return r, nil
}

// readLine returns the next line without its terminator. ok is false at
// end of input.
func (r *Reader) readLine() (line string, ok bool, err error) {
	line, err = r.reader.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", false, fmt.Errorf("read %s: %w", r.name, err)
		}
		if line == "" {
			return "", false, nil
		}
	}
	r.lineNumber++
	return strings.TrimRight(line, "\r\n"), true, nil
}

func (r *Reader) readHeader() error {
	header, ok, err := r.readLine()
	if err != nil {
		return err
	}
	if !ok {
		return r.errorf(ErrEmpty, "")
	}

	if r.mode == AlleleSpecific {
		// A first line whose offset column is an integer is data and is
		// validated like any other line; anything else is a column header.
		if header == DoneMarker || r.looksLikeAlleleSpecificData(header) {
			r.pending = header
			r.hasPending = true
			r.lineNumber--
		}
		return nil
	}

	if len(header) < len(RegionalHeaderTag)+1 || header[:len(RegionalHeaderTag)] != RegionalHeaderTag {
		return r.errorf(ErrBadHeader, header)
	}
	if header[len(RegionalHeaderTag)] != RegionalVersion {
		return r.errorf(ErrUnsupportedVersion, header)
	}

	// The contig-count line and the column header line are not used.
	for i := 0; i < 2; i++ {
		_, ok, err := r.readLine()
		if err != nil {
			return err
		}
		if !ok {
			return r.errorf(ErrTruncated, "file ends after header line")
		}
	}
	return nil
}

func (r *Reader) looksLikeAlleleSpecificData(line string) bool {
	fields := strings.Split(line, "\t")
	if len(fields) <= aseColOffset {
		return false
	}
	_, err := parseInt(fields[aseColOffset])
	return err == nil
}

// Next returns the next accepted record. It returns nil, nil once the
// terminating **done** line has been read and the input is exhausted.
func (r *Reader) Next() (*Record, error) {
	for {
		var (
			line string
			ok   bool
			err  error
		)
		if r.hasPending {
			line, ok = r.pending, true
			r.hasPending = false
			r.lineNumber++
		} else {
			line, ok, err = r.readLine()
			if err != nil {
				return nil, err
			}
		}

		if !ok {
			if !r.seenDone {
				return nil, r.errorf(ErrTruncated, "missing "+DoneMarker)
			}
			return nil, nil
		}

		if r.seenDone {
			return nil, r.errorf(ErrDataAfterDone, line)
		}

		if line == DoneMarker {
			r.seenDone = true
			continue
		}

		rec, err := r.parseLine(line)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			r.skipped++
			continue
		}
		return rec, nil
	}
}

// parseLine decodes one data line. It returns nil, nil for a line that is
// well formed but filtered out.
func (r *Reader) parseLine(line string) (*Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != r.mode.FieldCount() {
		return nil, r.errorf(ErrFieldCount, fmt.Sprintf("expected %d fields, found %d: %s", r.mode.FieldCount(), len(fields), line))
	}

	if r.mode == AlleleSpecific {
		return r.parseAlleleSpecific(fields)
	}
	return r.parseRegional(fields)
}

func (r *Reader) parseRegional(fields []string) (*Record, error) {
	chrom := fields[regionalColChrom]

	offset, err := parseInt(fields[regionalColOffset])
	if err != nil {
		return nil, r.numberError(fields, regionalColOffset)
	}
	z, err := parseFloat(fields[regionalColZ])
	if err != nil {
		return nil, r.numberError(fields, regionalColZ)
	}
	mu, err := parseFloat(fields[regionalColMu])
	if err != nil {
		return nil, r.numberError(fields, regionalColMu)
	}
	expressed, err := parseInt(fields[regionalColExpressed])
	if err != nil {
		return nil, r.numberError(fields, regionalColExpressed)
	}
	unexpressed, err := parseInt(fields[regionalColUnexpressed])
	if err != nil {
		return nil, r.numberError(fields, regionalColUnexpressed)
	}

	// No baseline expression for this region, nothing to compare against.
	if expressed == 0 && unexpressed == 0 {
		return nil, nil
	}

	if r.chroms != nil && !r.chroms.HasChromosome(chrom) {
		return nil, nil
	}

	return &Record{Chrom: chrom, Offset: offset, Value: z, Mu: mu}, nil
}

func (r *Reader) parseAlleleSpecific(fields []string) (*Record, error) {
	chrom := strings.ToLower(fields[aseColChrom])

	offset, err := parseInt(fields[aseColOffset])
	if err != nil {
		return nil, r.numberError(fields, aseColOffset)
	}

	var counts [4]int64
	for i, col := range []int{aseColRefDNA, aseColVarDNA, aseColRefRNA, aseColVarRNA} {
		counts[i], err = parseInt(fields[col])
		if err != nil {
			return nil, r.numberError(fields, col)
		}
	}
	refDNA, varDNA, refRNA, varRNA := counts[0], counts[1], counts[2], counts[3]

	if r.chroms != nil && !r.chroms.HasChromosome(chrom) {
		chrom = genome.ToggleChrPrefix(chrom)
		if !r.chroms.HasChromosome(chrom) {
			return nil, nil
		}
	}

	if !AcceptAlleleCounts(refDNA, varDNA, refRNA, varRNA) {
		return nil, nil
	}

	return &Record{
		Chrom:  chrom,
		Offset: offset,
		Value:  AlleleSpecificExpression(refRNA, varRNA),
	}, nil
}

// AcceptAlleleCounts reports whether a site has enough DNA and RNA reads
// and a roughly heterozygous DNA genotype: at least 10 reads of each kind,
// with neither allele above 60% of the DNA reads.
func AcceptAlleleCounts(refDNA, varDNA, refRNA, varRNA int64) bool {
	return refDNA+varDNA >= minReadsPerSet &&
		refRNA+varRNA >= minReadsPerSet &&
		refDNA*3 >= varDNA*2 &&
		varDNA*3 >= refDNA*2
}

// AlleleSpecificExpression converts RNA allele counts to an imbalance in
// [0, 1]: 0 when both alleles are equally expressed, 1 when only one is.
func AlleleSpecificExpression(refRNA, varRNA int64) float64 {
	rnaFraction := float64(varRNA) / float64(refRNA+varRNA)
	return math.Abs(rnaFraction*2.0 - 1.0)
}

func (r *Reader) numberError(fields []string, col int) error {
	return r.errorf(ErrNumber, fmt.Sprintf("field %d %q: %s", col, fields[col], strings.Join(fields, "\t")))
}

func (r *Reader) errorf(err error, message string) *ParseError {
	return &ParseError{
		File:    r.name,
		Line:    r.lineNumber,
		Message: message,
		Err:     err,
	}
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Name returns the file name used in error messages.
func (r *Reader) Name() string {
	return r.name
}

// LineNumber returns the number of the line most recently read.
func (r *Reader) LineNumber() int {
	return r.lineNumber
}

// Skipped returns how many well-formed data lines were filtered out so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Close closes the reader and underlying file.
func (r *Reader) Close() error {
	if r.gzipReader != nil {
		r.gzipReader.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
