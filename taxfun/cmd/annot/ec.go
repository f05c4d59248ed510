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

// ECPrefix is prepended to EC ids to form EC labels.
const ECPrefix = "EC:"

// ECLookup returns the candidate EC ids of a gene/target.
type ECLookup interface {
	ECs(gene string) []string
}

// MapEC assigns every read of the function index its most frequent EC
// among the EC candidates of all its gene hits, and groups reads by
// "EC:<id>". Ties go to the lexicographically smallest EC id. Reads with
// no candidate are left out.
func MapEC(funcs Index, hits GeneHits, ecs ECLookup) Index {
	reads := make([]string, 0, funcs.NumReads())
	for _, _reads := range funcs {
		reads = append(reads, _reads...)
	}
	sortutil.Strings(reads)

	counts := make(map[string]int, 8)
	return groupSorted(reads, func(read string) (string, bool) {
		for k := range counts {
			delete(counts, k)
		}
		for _, gene := range hits[read] {
			for _, ec := range ecs.ECs(gene) {
				counts[ec]++
			}
		}
		ec, ok := mostFrequent(counts)
		if !ok {
			return "", false
		}
		return ECPrefix + ec, true
	})
}

// MostFrequentEC returns the most frequent EC in a multiset of EC ids,
// breaking ties by the lexicographically smallest id.
func MostFrequentEC(ecs []string) (string, bool) {
	counts := make(map[string]int, len(ecs))
	for _, ec := range ecs {
		counts[ec]++
	}
	return mostFrequent(counts)
}

func mostFrequent(counts map[string]int) (string, bool) {
	var best string
	var max int
	for ec, n := range counts {
		if n > max || (n == max && ec < best) {
			best, max = ec, n
		}
	}
	return best, max > 0
}
