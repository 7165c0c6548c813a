package genome

import (
	"sort"
	"strings"
)

// Index provides gene lookups by name and by chromosome for one reference
// genome. It is built once and only read afterwards, so it is safe for
// concurrent use once loading has finished.
type Index struct {
	// byName keeps the first gene loaded for each symbol
	byName map[string]*Gene
	// byChrom stores genes indexed by lowercased chromosome
	byChrom map[string][]*Gene
	// genes lists every gene in the order it was added
	genes []*Gene
}

// NewIndex creates a new empty index.
func NewIndex() *Index {
	return &Index{
		byName:  make(map[string]*Gene),
		byChrom: make(map[string][]*Gene),
	}
}

// AddGene adds a gene to the index. A symbol seen on more than one contig
// keeps its first interval for name lookups, but every interval is listed
// under its chromosome.
func (i *Index) AddGene(g *Gene) {
	g.Chrom = strings.ToLower(g.Chrom)
	if _, ok := i.byName[g.Name]; !ok {
		i.byName[g.Name] = g
	}
	i.byChrom[g.Chrom] = append(i.byChrom[g.Chrom], g)
	i.genes = append(i.genes, g)
}

// Genes returns every gene in load order. Adding them to a new index
// rebuilds an identical one.
func (i *Index) Genes() []*Gene {
	return i.genes
}

// GeneByName returns the gene with the exact symbol name.
func (i *Index) GeneByName(name string) (*Gene, bool) {
	g, ok := i.byName[name]
	return g, ok
}

// GenesByChromosome returns all genes on a chromosome. Genes are stored
// under lowercased chromosome names and chrom must match exactly.
func (i *Index) GenesByChromosome(chrom string) []*Gene {
	return i.byChrom[chrom]
}

// HasChromosome returns true if any gene is registered on chrom, compared
// exactly like GenesByChromosome.
func (i *Index) HasChromosome(chrom string) bool {
	_, ok := i.byChrom[chrom]
	return ok
}

// GeneCount returns the number of distinct gene symbols in the index.
func (i *Index) GeneCount() int {
	return len(i.byName)
}

// Chromosomes returns a sorted list of chromosomes in the index.
func (i *Index) Chromosomes() []string {
	chroms := make([]string, 0, len(i.byChrom))
	for chrom := range i.byChrom {
		chroms = append(chroms, chrom)
	}
	sort.Strings(chroms)
	return chroms
}

// Indices maps a reference genome label (e.g. "hg19") to its gene index.
type Indices map[string]*Index

// Lookup returns the index for a reference label. Labels are compared after
// ReferenceClass normalization, so "37", "GRCh37" and "hg19" are equivalent.
func (ix Indices) Lookup(reference string) (*Index, bool) {
	if idx, ok := ix[reference]; ok {
		return idx, true
	}
	idx, ok := ix[ReferenceClass(reference)]
	return idx, ok
}

// ReferenceClass maps an NCBI build or assembly label to the reference
// class used to key Indices.
func ReferenceClass(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "37", "grch37", "hg19", "grch37-lite":
		return "hg19"
	case "38", "grch38", "hg38":
		return "hg38"
	default:
		return strings.ToLower(strings.TrimSpace(label))
	}
}

// ToggleChrPrefix strips a leading "chr" from chrom, or adds one if absent.
func ToggleChrPrefix(chrom string) string {
	if len(chrom) > 3 && strings.HasPrefix(chrom, "chr") {
		return chrom[3:]
	}
	return "chr" + chrom
}
