// Package duckdb stores gene expression results in DuckDB so that runs over
// many participants can be queried with SQL.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection for participant results.
type Store struct {
	db   *sql.DB
	path string

	// serializes WriteParticipant calls from concurrent workers
	mu sync.Mutex
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database path, "" for in-memory databases.
func (s *Store) Path() string {
	return s.path
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS participant_runs (
		participant_id VARCHAR,
		mode VARCHAR,
		reference VARCHAR,
		input_file VARCHAR,
		input_size BIGINT,
		input_mtime TIMESTAMP,
		output_file VARCHAR,
		genes BIGINT,
		records BIGINT,
		skipped BIGINT,
		elapsed_ms BIGINT,
		PRIMARY KEY (participant_id, mode)
	)`); err != nil {
		return err
	}

	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS gene_expression (
		participant_id VARCHAR,
		mode VARCHAR,
		gene_name VARCHAR,
		gene_id VARCHAR,
		chrom VARCHAR,
		strand TINYINT,
		biotype VARCHAR,
		mutation_count BIGINT,
		bin BIGINT,
		region_size BIGINT,
		n BIGINT,
		mean DOUBLE,
		min_value DOUBLE,
		max_value DOUBLE,
		mu_mean DOUBLE,
		mu_min DOUBLE,
		mu_max DOUBLE
	)`)
	return err
}
