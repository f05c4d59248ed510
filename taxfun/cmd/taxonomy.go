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

package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shenwei356/bio/taxdump"
	"github.com/shenwei356/util/pathutil"
)

func loadTaxonomy(opt *Options, path string) *taxdump.Taxonomy {
	if opt.Verbose || opt.Log2File {
		log.Infof("loading Taxonomy from: %s", path)
	}
	var t *taxdump.Taxonomy
	var err error

	t, err = taxdump.NewTaxonomyWithRankFromNCBI(filepath.Join(path, "nodes.dmp"))
	if err != nil {
		checkError(fmt.Errorf("err on loading Taxonomy nodes: %s", err))
	}

	if opt.Verbose || opt.Log2File {
		log.Infof("  %d nodes in %d ranks loaded", len(t.Nodes), len(t.Ranks))
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		file := filepath.Join(path, "names.dmp")
		existed, err := pathutil.Exists(file)
		if err != nil {
			checkError(fmt.Errorf("err on checking file names.dmp: %s", err))
		}
		if !existed {
			checkError(fmt.Errorf("names.dmp not found in: %s", path))
		}
		if err = t.LoadNamesFromNCBI(file); err != nil {
			checkError(fmt.Errorf("err on loading Taxonomy names: %s", err))
		}
		if opt.Verbose || opt.Log2File {
			log.Infof("  %d names loaded", len(t.Names))
		}
	}()

	go func() {
		defer wg.Done()
		file := filepath.Join(path, "delnodes.dmp")
		existed, err := pathutil.Exists(file)
		if err != nil {
			checkError(fmt.Errorf("err on checking file delnodes.dmp: %s", err))
		}
		if existed {
			if err = t.LoadDeletedNodesFromNCBI(file); err != nil {
				checkError(fmt.Errorf("err on loading Taxonomy deleted nodes: %s", err))
			}
		}
		if opt.Verbose || opt.Log2File {
			log.Infof("  %d deleted nodes loaded", len(t.DelNodes))
		}
	}()

	go func() {
		defer wg.Done()
		file := filepath.Join(path, "merged.dmp")
		existed, err := pathutil.Exists(file)
		if err != nil {
			checkError(fmt.Errorf("err on checking file merged.dmp: %s", err))
		}
		if existed {
			if err = t.LoadMergedNodesFromNCBI(file); err != nil {
				checkError(fmt.Errorf("err on loading Taxonomy merged nodes: %s", err))
			}
		}
		if opt.Verbose || opt.Log2File {
			log.Infof("  %d merged nodes loaded", len(t.MergeNodes))
		}
	}()

	wg.Wait()

	return t
}

// default ranks of lineages and their prefixes
var lineageRanks = []string{"phylum", "class", "order", "family", "genus", "species"}
var lineageRankPrefixes = []string{"p_", "c_", "o_", "f_", "g_", "s_"}

// taxdumpLineage resolves TaxIds to lineages of fixed ranks with a local
// NCBI taxonomy dump. It is safe for concurrent use.
type taxdumpLineage struct {
	taxdb     *taxdump.Taxonomy
	rankIndex map[string]int
	prefixes  []string
	separator string

	cache sync.Map // uint32 -> string, "" for unknown TaxIds
}

func newTaxdumpLineage(taxdb *taxdump.Taxonomy, ranks []string, prefixes []string, separator string) (*taxdumpLineage, error) {
	if len(ranks) != len(prefixes) {
		return nil, fmt.Errorf("number of ranks (%d) and rank prefixes (%d) do not match", len(ranks), len(prefixes))
	}
	rankIndex := make(map[string]int, len(ranks))
	for i, rank := range ranks {
		rankIndex[strings.ToLower(rank)] = i
	}
	return &taxdumpLineage{
		taxdb:     taxdb,
		rankIndex: rankIndex,
		prefixes:  prefixes,
		separator: separator,
	}, nil
}

// Lineage returns the lineage of a TaxId. TaxId 0 (unclassified) is
// treated as the root.
func (l *taxdumpLineage) Lineage(taxid uint32) (string, bool) {
	if taxid == 0 {
		taxid = 1
	}
	if v, ok := l.cache.Load(taxid); ok {
		s := v.(string)
		return s, s != ""
	}

	var lineage string
	taxids := l.taxdb.LineageTaxIds(taxid)
	if len(taxids) > 0 {
		names := make([]string, len(l.prefixes))
		var i int
		var ok bool
		for _, _taxid := range taxids {
			if i, ok = l.rankIndex[l.taxdb.Rank(_taxid)]; ok {
				names[i] = l.taxdb.Names[_taxid]
			}
		}
		lineage = formatLineage(names, l.prefixes, l.separator)
	}

	l.cache.Store(taxid, lineage)
	return lineage, lineage != ""
}

// lineageNA is the name of a missing rank in a lineage.
const lineageNA = "NA"

// formatLineage joins prefixed names of ranks, e.g., "p__Firmicutes".
func formatLineage(names []string, prefixes []string, separator string) string {
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString(separator)
		}
		if name == "" {
			name = lineageNA
		}
		b.WriteString(prefixes[i])
		b.WriteByte('_')
		b.WriteString(name)
	}
	return b.String()
}
