// Package pipeline turns one participant's mutations and expression file
// into a gene expression table, and drains a queue of participants with a
// pool of workers.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/expression-near-mutations/internal/expression"
	"github.com/inodb/expression-near-mutations/internal/genome"
	"github.com/inodb/expression-near-mutations/internal/maf"
	"github.com/inodb/expression-near-mutations/internal/manifest"
	"github.com/inodb/expression-near-mutations/internal/output"
	"github.com/inodb/expression-near-mutations/internal/region"
)

// Reasons a participant is skipped before its input is read.
var (
	ErrNoExperiment     = errors.New("no experiment for participant")
	ErrNoInputFile      = errors.New("participant has no input file yet")
	ErrUnknownReference = errors.New("no gene index for reference")
)

// Experiments resolves a participant id to its experiment.
type Experiments interface {
	Lookup(participantID string) (*manifest.Experiment, bool)
}

// Result summarizes one completed participant.
type Result struct {
	ParticipantID string
	Reference     string
	InputFile     string
	OutputFile    string
	Mode          expression.Mode
	Genes         int // rows written
	Records       int // accepted input records
	Skipped       int // well-formed input lines filtered out
	Elapsed       time.Duration

	// Expressions holds the aggregates behind the written table.
	Expressions []*region.GeneExpression
}

// Processor computes gene expression tables. A Processor holds no
// per-participant state, so one instance may serve many goroutines.
type Processor struct {
	mode        expression.Mode
	experiments Experiments
	indices     genome.Indices
	logger      *zap.Logger
}

// NewProcessor creates a processor for the given mode.
func NewProcessor(mode expression.Mode, experiments Experiments, indices genome.Indices) *Processor {
	return &Processor{
		mode:        mode,
		experiments: experiments,
		indices:     indices,
		logger:      zap.NewNop(),
	}
}

// SetLogger sets the logger for debug messages.
func (p *Processor) SetLogger(l *zap.Logger) {
	p.logger = l
}

// Process builds and writes the table of one participant. Any error means
// no table was written for this participant; other participants are not
// affected.
func (p *Processor) Process(participantID string) (*Result, error) {
	start := time.Now()

	exp, ok := p.experiments.Lookup(participantID)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoExperiment, participantID)
	}

	inputFile := exp.InputFile(p.mode)
	if inputFile == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoInputFile, participantID)
	}

	outputFile, err := output.OutputPath(inputFile, p.mode)
	if err != nil {
		return nil, err
	}

	mutations := exp.Mutations
	if mutations == nil && exp.MAFFile != "" {
		if mutations, err = maf.ReadAll(exp.MAFFile); err != nil {
			return nil, fmt.Errorf("load mutations: %w", err)
		}
	}

	reference := exp.Reference
	if reference == "" && len(mutations) > 0 {
		reference = mutations[0].NCBIBuild
	}
	index, ok := p.indices.Lookup(reference)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownReference, reference)
	}

	expressions := mutatedGenes(mutations, index)

	recs, skipped, err := p.accumulate(inputFile, index, expressions)
	if err != nil {
		return nil, err
	}

	sorted := expressions.Sorted()
	if err := p.writeTable(outputFile, participantID, sorted); err != nil {
		return nil, err
	}

	p.logger.Debug("wrote gene expression table",
		zap.String("participant", participantID),
		zap.String("output", outputFile),
		zap.Int("genes", len(sorted)),
		zap.Int("records", recs),
		zap.Int("skipped", skipped))

	return &Result{
		ParticipantID: participantID,
		Reference:     genome.ReferenceClass(reference),
		InputFile:     inputFile,
		OutputFile:    outputFile,
		Mode:          p.mode,
		Genes:         len(sorted),
		Records:       recs,
		Skipped:       skipped,
		Elapsed:       time.Since(start),
		Expressions:   sorted,
	}, nil
}

// mutatedGenes creates an aggregate for every gene with a non-silent
// mutation. Mutations in genes missing from the index are dropped.
func mutatedGenes(mutations []*maf.Mutation, index *genome.Index) region.Expressions {
	expressions := make(region.Expressions)
	for _, m := range mutations {
		if m.IsSilent() {
			continue
		}
		g, ok := index.GeneByName(m.HugoSymbol)
		if !ok {
			continue
		}
		expressions.Get(g).MutationCount++
	}
	return expressions
}

// accumulate streams the input file and adds every accepted record to
// each gene on its chromosome.
func (p *Processor) accumulate(inputFile string, index *genome.Index, expressions region.Expressions) (records, skipped int, err error) {
	r, err := expression.Open(inputFile, p.mode, index)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()

	for {
		rec, err := r.Next()
		if err != nil {
			return 0, 0, err
		}
		if rec == nil {
			break
		}
		records++
		for _, g := range index.GenesByChromosome(rec.Chrom) {
			expressions.Get(g).AddRegionalExpression(rec.Offset, rec.Value, rec.Mu)
		}
	}
	return records, r.Skipped(), nil
}

// writeTable writes the table next to its final path and renames it into
// place once complete.
func (p *Processor) writeTable(path, participantID string, genes []*region.GeneExpression) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := output.NewGeneTableWriter(tmp, p.mode)
	if err := w.WriteHeader(participantID); err != nil {
		return fmt.Errorf("write output header: %w", err)
	}
	for _, ge := range genes {
		if err := w.Write(ge); err != nil {
			return fmt.Errorf("write gene %s: %w", ge.Gene.Name, err)
		}
	}
	if err := w.WriteDone(); err != nil {
		return fmt.Errorf("write output trailer: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output file: %w", err)
	}
	return nil
}
