// Package genome provides gene interval indexes keyed by reference genome.
package genome

// Gene represents the genomic extent of a gene.
type Gene struct {
	ID      string // Gene identifier (e.g., ENSG00000133703)
	Name    string // Gene symbol (e.g., KRAS)
	Chrom   string // Chromosome, lowercased as loaded (e.g., chr12)
	Start   int64  // Gene start position (1-based)
	End     int64  // Gene end position (1-based, inclusive)
	Strand  int8   // +1 (forward) or -1 (reverse)
	Biotype string // Gene biotype (e.g., protein_coding)
}

// Contains returns true if the given position is within the gene boundaries.
func (g *Gene) Contains(pos int64) bool {
	return pos >= g.Start && pos <= g.End
}

// Distance returns the number of bases between pos and the nearest gene
// boundary, or 0 when pos lies inside the gene.
func (g *Gene) Distance(pos int64) int64 {
	switch {
	case g.Contains(pos):
		return 0
	case pos < g.Start:
		return g.Start - pos
	default:
		return pos - g.End
	}
}
