// Package region accumulates expression measurements into distance bins
// around a gene.
//
// Bin 0 holds measurements inside the gene body. Bin k (k >= 1) holds every
// measurement whose distance from the nearest gene boundary is at most
// RegionSizes[k]. Bins are nested: a measurement 1500 bases away counts
// toward the 2000, 4000, ... bins alike, so bin totals do not partition the
// data.
package region

import "github.com/inodb/expression-near-mutations/internal/genome"

// NumRegionSizes is the number of distance bins. Because bin 0 is the gene
// itself, the largest radius is 2^18 * 1000 bases, which covers any
// chromosome.
const NumRegionSizes = 20

// RegionSizes holds the radius of each bin in bases.
var RegionSizes = func() [NumRegionSizes]int64 {
	var sizes [NumRegionSizes]int64
	sizes[1] = 1000
	for i := 2; i < NumRegionSizes; i++ {
		sizes[i] = sizes[i-1] * 2
	}
	return sizes
}()

// Bins returns the bin indices that a measurement at offset contributes to,
// largest first.
func Bins(g *genome.Gene, offset int64) []int {
	return AppendBins(nil, g, offset)
}

// AppendBins appends the bin indices for offset to dst and returns the
// extended slice.
func AppendBins(dst []int, g *genome.Gene, offset int64) []int {
	distance := g.Distance(offset)
	if distance == 0 {
		return append(dst, 0)
	}

	// Stop at bin 1 so the gene body stays out of the surrounding region.
	for bin := NumRegionSizes - 1; bin > 0; bin-- {
		if RegionSizes[bin] < distance {
			break
		}
		dst = append(dst, bin)
	}
	return dst
}
