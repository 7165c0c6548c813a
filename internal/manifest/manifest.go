// Package manifest maps participant ids to their experiment files.
//
// A manifest is a tab-separated file with a header line naming its columns.
// participant_id and maf_file are required; regional_expression_file,
// allele_specific_expression_file and reference are optional. Relative
// paths are resolved against the directory holding the manifest.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/inodb/expression-near-mutations/internal/expression"
	"github.com/inodb/expression-near-mutations/internal/maf"
)

// Manifest column names
const (
	ColParticipantID                = "participant_id"
	ColMAFFile                      = "maf_file"
	ColRegionalExpressionFile       = "regional_expression_file"
	ColAlleleSpecificExpressionFile = "allele_specific_expression_file"
	ColReference                    = "reference"
)

// Experiment describes the inputs of one participant.
type Experiment struct {
	ParticipantID                string
	Reference                    string // overrides the MAF NCBI_Build when set
	MAFFile                      string
	RegionalExpressionFile       string
	AlleleSpecificExpressionFile string

	// Mutations are loaded from MAFFile on first use when nil.
	Mutations []*maf.Mutation
}

// InputFile returns the expression file read in the given mode, or "" when
// the experiment has none.
func (e *Experiment) InputFile(mode expression.Mode) string {
	if mode == expression.AlleleSpecific {
		return e.AlleleSpecificExpressionFile
	}
	return e.RegionalExpressionFile
}

// Manifest is a read-only set of experiments keyed by participant id.
type Manifest struct {
	experiments map[string]*Experiment
	order       []string
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{experiments: make(map[string]*Experiment)}
}

// Add registers an experiment. A later experiment for the same participant
// replaces the earlier one.
func (m *Manifest) Add(e *Experiment) {
	if _, ok := m.experiments[e.ParticipantID]; !ok {
		m.order = append(m.order, e.ParticipantID)
	}
	m.experiments[e.ParticipantID] = e
}

// Lookup returns the experiment of a participant.
func (m *Manifest) Lookup(participantID string) (*Experiment, bool) {
	e, ok := m.experiments[participantID]
	return e, ok
}

// ParticipantIDs returns the participants in manifest order.
func (m *Manifest) ParticipantIDs() []string {
	return append([]string(nil), m.order...)
}

// Len returns the number of experiments.
func (m *Manifest) Len() int {
	return len(m.experiments)
}

// Load reads a manifest file.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	m, err := Parse(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse reads a manifest from r. Relative paths are joined to baseDir.
func Parse(r io.Reader, baseDir string) (*Manifest, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	m := New()
	var (
		columns    map[string]int
		lineNumber int
	)

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if columns == nil {
			var err error
			if columns, err = parseHeader(fields); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNumber, err)
			}
			continue
		}

		get := func(col string) string {
			i, ok := columns[col]
			if !ok || i >= len(fields) {
				return ""
			}
			return strings.TrimSpace(fields[i])
		}

		e := &Experiment{
			ParticipantID:                get(ColParticipantID),
			Reference:                    get(ColReference),
			MAFFile:                      resolve(baseDir, get(ColMAFFile)),
			RegionalExpressionFile:       resolve(baseDir, get(ColRegionalExpressionFile)),
			AlleleSpecificExpressionFile: resolve(baseDir, get(ColAlleleSpecificExpressionFile)),
		}
		if e.ParticipantID == "" {
			return nil, fmt.Errorf("line %d: empty %s", lineNumber, ColParticipantID)
		}
		m.Add(e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if columns == nil {
		return nil, fmt.Errorf("no header line found")
	}

	return m, nil
}

func parseHeader(fields []string) (map[string]int, error) {
	columns := make(map[string]int, len(fields))
	for i, f := range fields {
		columns[strings.ToLower(strings.TrimSpace(f))] = i
	}
	for _, required := range []string{ColParticipantID, ColMAFFile} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("required column '%s' not found in header", required)
		}
	}
	return columns, nil
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
