// Package expression reads per-position expression files: regional
// expression tables and allele-specific read counts.
package expression

import (
	"errors"
	"fmt"
)

// Mode selects which input format is read and how its signal is derived.
type Mode int

const (
	// Regional reads "RegionalExpression v3" files with z-score and mu columns.
	Regional Mode = iota
	// AlleleSpecific reads annotated selected-variant files with DNA/RNA read
	// counts and derives an allele-specific-expression ratio.
	AlleleSpecific
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Regional:
		return "regional"
	case AlleleSpecific:
		return "allele-specific"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// FieldCount returns the number of tab-separated fields a data line must have.
func (m Mode) FieldCount() int {
	if m == AlleleSpecific {
		return alleleSpecificFieldCount
	}
	return regionalFieldCount
}

// DoneMarker terminates every well-formed input and output file.
const DoneMarker = "**done**"

// Regional expression header: the first 20 characters identify the format
// and the 21st is the version.
const (
	RegionalHeaderTag = "RegionalExpression v"
	RegionalVersion   = '3'
)

// Record is one accepted measurement.
type Record struct {
	Chrom  string
	Offset int64
	Value  float64 // z-score, or allele-specific expression in [0, 1]
	Mu     float64 // mean expression; always 0 in allele-specific mode
}

// Format errors. A ParseError wraps one of these when it has a cause.
var (
	ErrEmpty              = errors.New("empty input file")
	ErrBadHeader          = errors.New("corrupt header line")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrTruncated          = errors.New("truncated input file")
	ErrDataAfterDone      = errors.New("data after " + DoneMarker)
	ErrFieldCount         = errors.New("badly formatted data line")
	ErrNumber             = errors.New("format error parsing data line")
)

// ParseError represents an input format error with file and line context.
type ParseError struct {
	File    string
	Line    int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = e.Err.Error() + ": " + msg
		}
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
