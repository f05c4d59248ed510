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

package annot

import "github.com/twotwotwo/sorts/sortutil"

// Join holds the reads of a sample annotated with both a taxon and a
// function, together with the sizes of the two input maps.
type Join struct {
	NumTaxonomy int
	NumFunction int

	// Reads are the reads present in both maps, sorted by read id.
	Reads []string

	// Taxa and Functions are restricted to Reads.
	Taxa      map[string]string
	Functions map[string]string
}

// NumAnd is the number of reads with both annotations.
func (j *Join) NumAnd() int { return len(j.Reads) }

// NumOr is the number of reads with at least one annotation.
func (j *Join) NumOr() int { return j.NumTaxonomy + j.NumFunction - len(j.Reads) }

// JoinAnnotations intersects the taxonomy and function maps of a sample.
// The result does not depend on map iteration order.
func JoinAnnotations(taxa, funcs map[string]string) *Join {
	small, large := taxa, funcs
	if len(funcs) < len(taxa) {
		small, large = funcs, taxa
	}

	reads := make([]string, 0, len(small))
	var ok bool
	for read := range small {
		if _, ok = large[read]; ok {
			reads = append(reads, read)
		}
	}
	sortutil.Strings(reads)

	j := &Join{
		NumTaxonomy: len(taxa),
		NumFunction: len(funcs),
		Reads:       reads,
		Taxa:        make(map[string]string, len(reads)),
		Functions:   make(map[string]string, len(reads)),
	}
	for _, read := range reads {
		j.Taxa[read] = taxa[read]
		j.Functions[read] = funcs[read]
	}
	return j
}
