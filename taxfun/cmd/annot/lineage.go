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
	"regexp"
	"strconv"
)

// LineageResolver turns a TaxId into a lineage string. It may be backed by
// a local taxonomy dump or a remote service, so callers pass it in rather
// than build one.
type LineageResolver interface {
	Lineage(taxid uint32) (string, bool)
}

var reTaxid = regexp.MustCompile(`\(taxid (\d+)\)`)

// TaxID extracts N from a label embedding "(taxid N)". A bare number is
// also accepted, as kraken2 writes without --use-names.
func TaxID(label string) (uint32, bool) {
	var s string
	if found := reTaxid.FindAllStringSubmatch(label, -1); len(found) > 0 {
		s = found[len(found)-1][1]
	} else {
		s = label
	}
	taxid, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(taxid), true
}

// RelabelTaxa replaces taxon labels with lineages from r. Labels without
// a TaxId or with an unknown TaxId are kept; the number of such reads is
// returned.
func RelabelTaxa(taxa map[string]string, r LineageResolver) (map[string]string, int) {
	relabeled := make(map[string]string, len(taxa))
	cache := make(map[string]string, 1024)
	var missed int
	var lineage string
	var ok bool
	var taxid uint32
	for read, label := range taxa {
		if lineage, ok = cache[label]; !ok {
			lineage = label
			if taxid, ok = TaxID(label); ok {
				if _lineage, found := r.Lineage(taxid); found {
					lineage = _lineage
				}
			}
			cache[label] = lineage
		}
		if lineage == label {
			missed++
		}
		relabeled[read] = lineage
	}
	return relabeled, missed
}

// CountLineages counts reads per lineage of their taxon labels. ids holds
// the smallest TaxId resolved to each lineage. Reads with labels that could
// not be resolved are left out and counted in missed.
func CountLineages(taxa map[string]string, r LineageResolver) (counts map[string]int, ids map[string]uint32, missed int) {
	counts = make(map[string]int, 1024)
	ids = make(map[string]uint32, 1024)

	type resolved struct {
		lineage string
		taxid   uint32
		ok      bool
	}
	cache := make(map[string]resolved, 1024)

	var res resolved
	var ok bool
	var _taxid uint32
	for _, label := range taxa {
		if res, ok = cache[label]; !ok {
			res = resolved{}
			if res.taxid, res.ok = TaxID(label); res.ok {
				res.lineage, res.ok = r.Lineage(res.taxid)
			}
			cache[label] = res
		}
		if !res.ok {
			missed++
			continue
		}
		counts[res.lineage]++
		if _taxid, ok = ids[res.lineage]; !ok || res.taxid < _taxid {
			ids[res.lineage] = res.taxid
		}
	}
	return counts, ids, missed
}
