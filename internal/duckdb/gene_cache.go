package duckdb

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/inodb/expression-near-mutations/internal/genome"
)

// GeneIndexCache manages gob-serialized gene indices on disk, one pair of
// files per reference label:
//
//	{dir}/{label}.genes.gob       (serialized genes in load order)
//	{dir}/{label}.genes.gob.meta  (GTF source fingerprint)
type GeneIndexCache struct {
	dir string
}

// NewGeneIndexCache creates a gene index cache rooted at dir.
func NewGeneIndexCache(dir string) *GeneIndexCache {
	return &GeneIndexCache{dir: dir}
}

func (gc *GeneIndexCache) gobPath(label string) string {
	return filepath.Join(gc.dir, label+".genes.gob")
}

func (gc *GeneIndexCache) metaPath(label string) string {
	return gc.gobPath(label) + ".meta"
}

// Valid checks whether the cached index for label was built from gtf.
func (gc *GeneIndexCache) Valid(label string, gtf FileFingerprint) bool {
	meta, err := gc.readMeta(label)
	if err != nil {
		return false
	}

	checks := []struct{ key, val string }{
		{"gtf_path", gtf.Path},
		{"gtf_size", strconv.FormatInt(gtf.Size, 10)},
		{"gtf_modtime", gtf.ModTime.UTC().Format(time.RFC3339Nano)},
	}
	for _, c := range checks {
		if meta[c.key] != c.val {
			return false
		}
	}

	if _, err := os.Stat(gc.gobPath(label)); err != nil {
		return false
	}
	return true
}

// Read decodes the cached index for label.
func (gc *GeneIndexCache) Read(label string) (*genome.Index, error) {
	f, err := os.Open(gc.gobPath(label))
	if err != nil {
		return nil, fmt.Errorf("open gene cache: %w", err)
	}
	defer f.Close()

	var genes []*genome.Gene
	if err := gob.NewDecoder(f).Decode(&genes); err != nil {
		return nil, fmt.Errorf("decode gene cache: %w", err)
	}

	idx := genome.NewIndex()
	for _, g := range genes {
		idx.AddGene(g)
	}
	return idx, nil
}

// Write serializes idx for label and records the GTF fingerprint.
func (gc *GeneIndexCache) Write(label string, idx *genome.Index, gtf FileFingerprint) error {
	if err := os.MkdirAll(gc.dir, 0o755); err != nil {
		return fmt.Errorf("create gene cache directory: %w", err)
	}

	f, err := os.Create(gc.gobPath(label))
	if err != nil {
		return fmt.Errorf("create gene cache: %w", err)
	}

	if err := gob.NewEncoder(f).Encode(idx.Genes()); err != nil {
		f.Close()
		os.Remove(gc.gobPath(label))
		return fmt.Errorf("encode gene cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close gene cache: %w", err)
	}

	return gc.writeMeta(label, gtf)
}

// Load is a genome.LoadFunc: it returns the cached index when it matches
// the GTF at path, and otherwise parses the GTF and refreshes the cache.
func (gc *GeneIndexCache) Load(label, path string) (*genome.Index, error) {
	gtf, err := StatFile(path)
	if err != nil {
		return nil, fmt.Errorf("open GTF file: %w", err)
	}
	if gc.Valid(label, gtf) {
		if idx, err := gc.Read(label); err == nil {
			return idx, nil
		}
	}

	idx, err := genome.LoadGTF(label, path)
	if err != nil {
		return nil, err
	}
	if err := gc.Write(label, idx, gtf); err != nil {
		return nil, err
	}
	return idx, nil
}

// Clear removes the cached files for label.
func (gc *GeneIndexCache) Clear(label string) {
	os.Remove(gc.gobPath(label))
	os.Remove(gc.metaPath(label))
}

func (gc *GeneIndexCache) writeMeta(label string, gtf FileFingerprint) error {
	lines := []string{
		"gtf_path=" + gtf.Path,
		"gtf_size=" + strconv.FormatInt(gtf.Size, 10),
		"gtf_modtime=" + gtf.ModTime.UTC().Format(time.RFC3339Nano),
		"created_at=" + time.Now().UTC().Format(time.RFC3339),
		"",
	}
	return os.WriteFile(gc.metaPath(label), []byte(strings.Join(lines, "\n")), 0o644)
}

func (gc *GeneIndexCache) readMeta(label string) (map[string]string, error) {
	data, err := os.ReadFile(gc.metaPath(label))
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			meta[k] = v
		}
	}
	return meta, nil
}
