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

import (
	"strings"

	"github.com/twotwotwo/sorts/sortutil"
)

// StrataSeparator joins a label and a taxon in stratified labels.
const StrataSeparator = "|"

// Unclassified is the taxon of reads missing from the taxonomy map
// during stratification.
const Unclassified = "unclassified"

// Index maps a label to its reads. Read lists are sorted by read id,
// free of duplicates and never empty.
type Index map[string][]string

// Labels returns the labels in lexicographic order.
func (idx Index) Labels() []string {
	labels := make([]string, 0, len(idx))
	for label := range idx {
		labels = append(labels, label)
	}
	sortutil.Strings(labels)
	return labels
}

// NumReads returns the total number of reads over all labels.
func (idx Index) NumReads() int {
	var n int
	for _, reads := range idx {
		n += len(reads)
	}
	return n
}

// Reads returns the reads of a label.
func (idx Index) Reads(label string) []string { return idx[label] }

// Aggregate groups reads by label. Reads are visited in ascending order so
// every read list comes out sorted.
func Aggregate(read2label map[string]string) Index {
	reads := make([]string, 0, len(read2label))
	for read := range read2label {
		reads = append(reads, read)
	}
	sortutil.Strings(reads)

	return groupSorted(reads, func(read string) (string, bool) {
		label, ok := read2label[read]
		return label, ok
	})
}

// Stratify splits every label of idx by the taxon of its reads, producing
// "label|taxon" keys. Read counts of all strata of a label sum up to the
// count of the label.
func Stratify(idx Index, taxa map[string]string) Index {
	strat := make(Index, len(idx))
	var taxon, key string
	var ok bool
	for label, reads := range idx {
		for _, read := range reads {
			if taxon, ok = taxa[read]; !ok || taxon == "" {
				taxon = Unclassified
			}
			key = StratifiedLabel(label, taxon)
			strat[key] = append(strat[key], read)
		}
	}
	return strat
}

// StratifiedLabel builds the key of a label stratified by a taxon.
func StratifiedLabel(label, taxon string) string {
	return label + StrataSeparator + taxon
}

// SplitStratifiedLabel splits a stratified label at the first separator.
func SplitStratifiedLabel(key string) (label, taxon string, ok bool) {
	i := strings.Index(key, StrataSeparator)
	if i < 0 {
		return key, "", false
	}
	return key[:i], key[i+len(StrataSeparator):], true
}

func groupSorted(reads []string, labelOf func(string) (string, bool)) Index {
	idx := make(Index, 1024)
	var label string
	var ok bool
	var prev string
	for i, read := range reads {
		if i > 0 && read == prev {
			continue
		}
		prev = read
		if label, ok = labelOf(read); !ok {
			continue
		}
		idx[label] = append(idx[label], read)
	}
	return idx
}
