package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/expression-near-mutations/internal/expression"
	"github.com/inodb/expression-near-mutations/internal/pipeline"
	"github.com/inodb/expression-near-mutations/internal/region"
)

// Run is the stored summary of one participant run.
type Run struct {
	ParticipantID string
	Mode          string
	Reference     string
	Input         FileFingerprint
	OutputFile    string
	Genes         int64
	Records       int64
	Skipped       int64
	Elapsed       time.Duration
}

// BinStats is one non-empty bin of one gene.
type BinStats struct {
	GeneName      string
	GeneID        string
	Chrom         string
	Strand        int8
	Biotype       string
	MutationCount int64
	Bin           int64
	RegionSize    int64
	N             int64
	Mean          float64
	Min           float64
	Max           float64
	MuMean        float64
	MuMin         float64
	MuMax         float64
}

// WriteParticipant replaces the stored results of a participant and mode
// with r. Only bins with at least one observation are stored. It is safe
// for concurrent use.
func (s *Store) WriteParticipant(r *pipeline.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp, err := StatFile(r.InputFile)
	if err != nil {
		return fmt.Errorf("stat input file: %w", err)
	}

	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	mode := r.Mode.String()
	for _, table := range []string{"participant_runs", "gene_expression"} {
		if _, err := conn.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE participant_id=? AND mode=?", r.ParticipantID, mode); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err := conn.ExecContext(ctx, `INSERT INTO participant_runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ParticipantID, mode, r.Reference,
		fp.Path, fp.Size, fp.ModTime,
		r.OutputFile, int64(r.Genes), int64(r.Records), int64(r.Skipped),
		r.Elapsed.Milliseconds(),
	); err != nil {
		return fmt.Errorf("insert participant run: %w", err)
	}

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "gene_expression")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for _, ge := range r.Expressions {
		for bin := range ge.States {
			st := &ge.States[bin]
			if st.Empty() {
				continue
			}
			mean, _ := st.Mean()
			lo, hi, _ := st.Range()
			muMean, _ := st.MuMean()
			muLo, muHi, _ := st.MuRange()
			if err := appender.AppendRow(
				r.ParticipantID, mode, ge.Gene.Name, ge.Gene.ID, ge.Gene.Chrom, ge.Gene.Strand, ge.Gene.Biotype,
				int64(ge.MutationCount), int64(bin), region.RegionSizes[bin], int64(st.Count),
				mean, lo, hi, muMean, muLo, muHi,
			); err != nil {
				return fmt.Errorf("append gene expression: %w", err)
			}
		}
	}

	return appender.Flush()
}

// LookupRun returns the stored run of a participant, or nil if there is none.
func (s *Store) LookupRun(participantID string, mode expression.Mode) (*Run, error) {
	row := s.db.QueryRow(`SELECT
		participant_id, mode, reference, input_file, input_size, input_mtime,
		output_file, genes, records, skipped, elapsed_ms
		FROM participant_runs
		WHERE participant_id=? AND mode=?`, participantID, mode.String())

	var (
		run       Run
		elapsedMS int64
	)
	err := row.Scan(
		&run.ParticipantID, &run.Mode, &run.Reference,
		&run.Input.Path, &run.Input.Size, &run.Input.ModTime,
		&run.OutputFile, &run.Genes, &run.Records, &run.Skipped, &elapsedMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query participant run: %w", err)
	}
	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return &run, nil
}

// UpToDate reports whether a participant has a stored run whose input file
// is unchanged and whose output table still exists.
func (s *Store) UpToDate(participantID string, mode expression.Mode) (bool, error) {
	run, err := s.LookupRun(participantID, mode)
	if err != nil || run == nil {
		return false, err
	}
	fp, err := StatFile(run.Input.Path)
	if err != nil {
		return false, nil
	}
	if _, err := os.Stat(run.OutputFile); err != nil {
		return false, nil
	}
	return fp.Matches(run.Input), nil
}

// GeneBins returns the stored bins of one gene in bin order.
func (s *Store) GeneBins(participantID string, mode expression.Mode, geneName string) ([]BinStats, error) {
	rows, err := s.db.Query(`SELECT
		gene_name, gene_id, chrom, strand, biotype, mutation_count, bin, region_size, n,
		mean, min_value, max_value, mu_mean, mu_min, mu_max
		FROM gene_expression
		WHERE participant_id=? AND mode=? AND gene_name=?
		ORDER BY bin`, participantID, mode.String(), geneName)
	if err != nil {
		return nil, fmt.Errorf("query gene bins: %w", err)
	}
	defer rows.Close()

	var bins []BinStats
	for rows.Next() {
		var b BinStats
		if err := rows.Scan(
			&b.GeneName, &b.GeneID, &b.Chrom, &b.Strand, &b.Biotype, &b.MutationCount, &b.Bin, &b.RegionSize, &b.N,
			&b.Mean, &b.Min, &b.Max, &b.MuMean, &b.MuMin, &b.MuMax,
		); err != nil {
			return nil, fmt.Errorf("scan gene bin: %w", err)
		}
		bins = append(bins, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gene bins: %w", err)
	}
	return bins, nil
}

// CountRows returns the number of stored bin rows of a participant.
func (s *Store) CountRows(participantID string, mode expression.Mode) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM gene_expression WHERE participant_id=? AND mode=?`,
		participantID, mode.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count gene rows: %w", err)
	}
	return n, nil
}
