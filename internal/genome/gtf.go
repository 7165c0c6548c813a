package genome

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// GTFLoader loads gene intervals from GENCODE/Ensembl GTF files.
type GTFLoader struct {
	path string
}

// NewGTFLoader creates a new GTF loader.
func NewGTFLoader(path string) *GTFLoader {
	return &GTFLoader{path: path}
}

// Load reads every gene feature of the GTF file into a new index.
func (l *GTFLoader) Load() (*Index, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open GTF file: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f

	// Handle gzipped files
	if strings.HasSuffix(l.path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return ParseGTF(reader)
}

// gtfFeature represents a parsed GTF line.
type gtfFeature struct {
	chrom       string
	featureType string
	start       int64
	end         int64
	strand      string
	attributes  map[string]string
}

// ParseGTF parses GTF content and returns an index of its gene features.
// Malformed lines and genes without a gene_name are skipped.
func ParseGTF(reader io.Reader) (*Index, error) {
	scanner := bufio.NewScanner(reader)
	// Increase buffer size for long lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	idx := NewIndex()
	for scanner.Scan() {
		line := scanner.Text()

		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		feat, err := parseLine(line)
		if err != nil {
			continue
		}
		if feat.featureType != "gene" {
			continue
		}

		name := feat.attributes["gene_name"]
		if name == "" {
			continue
		}

		idx.AddGene(&Gene{
			ID:      stripVersion(feat.attributes["gene_id"]),
			Name:    name,
			Chrom:   feat.chrom,
			Start:   feat.start,
			End:     feat.end,
			Strand:  parseStrand(feat.strand),
			Biotype: feat.attributes["gene_type"],
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan GTF: %w", err)
	}

	return idx, nil
}

// parseLine parses a single GTF line.
func parseLine(line string) (*gtfFeature, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 9 {
		return nil, fmt.Errorf("invalid GTF line: expected 9 fields, got %d", len(fields))
	}

	start, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse start: %w", err)
	}

	end, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse end: %w", err)
	}

	return &gtfFeature{
		chrom:       fields[0],
		featureType: fields[2],
		start:       start,
		end:         end,
		strand:      fields[6],
		attributes:  parseAttributes(fields[8]),
	}, nil
}

// parseAttributes parses GTF attribute column.
// Format: key "value"; key "value"; ...
func parseAttributes(attrStr string) map[string]string {
	attrs := make(map[string]string)

	for _, part := range strings.Split(attrStr, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, ok := strings.Cut(part, " ")
		if !ok {
			continue
		}
		attrs[key] = strings.Trim(strings.TrimSpace(value), "\"")
	}

	return attrs
}

// parseStrand converts strand string to int8.
func parseStrand(s string) int8 {
	if s == "-" {
		return -1
	}
	return 1
}

// stripVersion removes the version suffix from an Ensembl ID.
// e.g., "ENSG00000133703.14" -> "ENSG00000133703"
func stripVersion(id string) string {
	if idx := strings.LastIndex(id, "."); idx != -1 {
		return id[:idx]
	}
	return id
}

// ParseGeneSource splits a "label=path" gene source. A source
// without a label is keyed by the reference class "hg19".
func ParseGeneSource(source string) (label, path string) {
	if label, path, ok := strings.Cut(source, "="); ok {
		return ReferenceClass(label), path
	}
	return "hg19", source
}

// LoadFunc loads the gene index for one reference label from path.
type LoadFunc func(label, path string) (*Index, error)

// LoadGTF is the LoadFunc that parses path as a GTF file.
func LoadGTF(label, path string) (*Index, error) {
	return NewGTFLoader(path).Load()
}

// LoadIndices loads one GTF file per reference label concurrently.
func LoadIndices(ctx context.Context, paths map[string]string) (Indices, error) {
	return LoadIndicesWith(ctx, paths, LoadGTF)
}

// LoadIndicesWith is LoadIndices with a custom per-label loader.
func LoadIndicesWith(ctx context.Context, paths map[string]string, load LoadFunc) (Indices, error) {
	labels := make([]string, 0, len(paths))
	for label := range paths {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	loaded := make([]*Index, len(labels))
	g, _ := errgroup.WithContext(ctx)
	for i, label := range labels {
		g.Go(func() error {
			idx, err := load(label, paths[label])
			if err != nil {
				return fmt.Errorf("load genes for %s: %w", label, err)
			}
			loaded[i] = idx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	indices := make(Indices, len(labels))
	for i, label := range labels {
		indices[ReferenceClass(label)] = loaded[i]
	}
	return indices, nil
}
