// Copyright © 2023 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package batch

import (
	"bufio"
	"fmt"
	"io"
)

// Genome equivalent sources.
const (
	GESourceReport   = "report"
	GESourceFallback = "AND-reads/1e6"
)

// Stats are the mapping diagnostics of a sample. Percentages are relative
// to TotalReads, the number of reads with at least one gene hit.
type Stats struct {
	Sample string

	TotalReads    int
	TaxonomyReads int
	FunctionReads int
	OrReads       int
	AndReads      int
	ECReads       int

	Functions int
	ECs       int

	// UnresolvedTaxa is the number of reads whose taxon kept its original
	// label during lineage relabeling.
	UnresolvedTaxa int

	GE       float64
	GESource string
}

// Percent returns n as a percentage of TotalReads, 0 when there are no
// reads with gene hits.
func (s *Stats) Percent(n int) float64 {
	if s.TotalReads == 0 {
		return 0
	}
	return float64(n) / float64(s.TotalReads) * 100
}

var statsHeader = "sample\ttotalReads\t" +
	"taxaMapped\tpercTaxaMapped\t" +
	"funcMapped\tpercFuncMapped\t" +
	"taxaORfuncMapped\tpercTaxaORfuncMapped\t" +
	"taxaANDfuncMapped\tpercTaxaANDfuncMapped\t" +
	"ECmapped\tpercECmapped\t" +
	"functions\tECs\tgenomeEquivalents\tgeSource\n"

// WriteStats writes a tab-delimited table of sample diagnostics.
func WriteStats(w io.Writer, stats []*Stats) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(statsHeader)
	for _, s := range stats {
		fmt.Fprintf(bw, "%s\t%d\t%d\t%.4f\t%d\t%.4f\t%d\t%.4f\t%d\t%.4f\t%d\t%.4f\t%d\t%d\t%g\t%s\n",
			s.Sample, s.TotalReads,
			s.TaxonomyReads, s.Percent(s.TaxonomyReads),
			s.FunctionReads, s.Percent(s.FunctionReads),
			s.OrReads, s.Percent(s.OrReads),
			s.AndReads, s.Percent(s.AndReads),
			s.ECReads, s.Percent(s.ECReads),
			s.Functions, s.ECs, s.GE, s.GESource)
	}
	return bw.Flush()
}
