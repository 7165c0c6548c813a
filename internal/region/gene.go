package region

import (
	"sort"
	"strings"

	"github.com/inodb/expression-near-mutations/internal/genome"
)

// GeneExpression aggregates the measurements around one gene for one
// participant. It is not safe for concurrent use.
type GeneExpression struct {
	Gene          *genome.Gene
	MutationCount int
	States        [NumRegionSizes]State

	bins []int // scratch buffer reused by AddRegionalExpression
}

// NewGeneExpression creates an empty aggregate for g.
func NewGeneExpression(g *genome.Gene) *GeneExpression {
	ge := &GeneExpression{
		Gene: g,
		bins: make([]int, 0, NumRegionSizes),
	}
	for i := range ge.States {
		ge.States[i] = NewState()
	}
	return ge
}

// AddRegionalExpression adds one measurement at offset to every bin it
// falls into.
func (ge *GeneExpression) AddRegionalExpression(offset int64, value, mu float64) {
	ge.bins = AppendBins(ge.bins[:0], ge.Gene, offset)
	for _, bin := range ge.bins {
		ge.States[bin].Add(value, mu)
	}
}

// Expressions is a per-participant set of aggregates keyed by gene name.
type Expressions map[string]*GeneExpression

// Get returns the aggregate for g, creating it on first use.
func (e Expressions) Get(g *genome.Gene) *GeneExpression {
	ge, ok := e[g.Name]
	if !ok {
		ge = NewGeneExpression(g)
		e[g.Name] = ge
	}
	return ge
}

// Sorted returns the aggregates ordered by CompareGeneNames.
func (e Expressions) Sorted() []*GeneExpression {
	all := make([]*GeneExpression, 0, len(e))
	for _, ge := range e {
		all = append(all, ge)
	}
	sort.Slice(all, func(i, j int) bool {
		return CompareGeneNames(all[i].Gene.Name, all[j].Gene.Name) < 0
	})
	return all
}

// CompareGeneNames orders names ignoring case, comparing upper-cased bytes
// ordinally. Names that differ only in case fall back to plain ordinal
// order so sorting stays deterministic.
func CompareGeneNames(a, b string) int {
	if c := strings.Compare(strings.ToUpper(a), strings.ToUpper(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
