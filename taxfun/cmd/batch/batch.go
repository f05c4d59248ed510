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
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/exascience/pargo/parallel"
	"github.com/pkg/errors"
	"github.com/shenwei356/go-logging"
	"github.com/shenwei356/taxfun/taxfun/cmd/annot"
	"github.com/shenwei356/taxfun/taxfun/cmd/refdb"
	"github.com/shenwei356/taxfun/taxfun/cmd/rpkg"
)

// Output file suffixes, in the order of Result.Outputs.
const (
	SuffixStratFunc   = "-strat-matrix-RPKM.txt"
	SuffixUnstratFunc = "-unstrat-matrix-RPKM.txt"
	SuffixStratEC     = "-strat-matrix-RPKM-withEC.txt"
	SuffixUnstratEC   = "-unstrat-matrix-RPKM-withEC.txt"

	SuffixStats = "-mapping-stats.txt"
)

// SampleError is a fatal error of one sample. Other samples go on.
type SampleError struct {
	Tag  string
	File string
	Err  error
}

func (e *SampleError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("sample %s: %s", e.Tag, e.Err)
	}
	return fmt.Sprintf("sample %s: %s: %s", e.Tag, e.File, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// Options of Run.
type Options struct {
	// Workers is the number of samples processed at the same time.
	Workers int

	// Threads is the number of threads for parsing a file.
	Threads int

	// GenomeEquivalents per sample. Samples without an entry fall back to
	// refdb.FallbackGenomeEquivalents.
	GenomeEquivalents refdb.GenomeEquivalents

	// Lineage, if not nil, relabels taxa with lineages before
	// stratification.
	Lineage annot.LineageResolver

	Verbose bool
	Log     *logging.Logger

	// Done, if not nil, is called after each sample with its duration.
	Done func(time.Duration)
}

var defaultLog = logging.MustGetLogger("taxfun")

// Output is a batch-wide table with the suffix of its file.
type Output struct {
	Suffix string
	Table  *rpkg.Table
}

// Result holds the accumulated tables of a batch.
type Result struct {
	StratFunc   *rpkg.Table
	UnstratFunc *rpkg.Table
	StratEC     *rpkg.Table
	UnstratEC   *rpkg.Table

	// Stats of successfully processed samples, in manifest order.
	Stats []*Stats

	// Failed samples, in manifest order.
	Failed []*SampleError
}

func newResult() *Result {
	return &Result{
		StratFunc:   rpkg.NewTable("stratified functions"),
		UnstratFunc: rpkg.NewTable("unstratified functions"),
		StratEC:     rpkg.NewTable("stratified ECs"),
		UnstratEC:   rpkg.NewTable("unstratified ECs"),
	}
}

// Outputs returns the four tables with their file suffixes.
func (r *Result) Outputs() []Output {
	return []Output{
		{SuffixStratFunc, r.StratFunc},
		{SuffixUnstratFunc, r.UnstratFunc},
		{SuffixStratEC, r.StratEC},
		{SuffixUnstratEC, r.UnstratEC},
	}
}

func (r *Result) add(s *Sample) error {
	var err error
	if err = r.StratFunc.Add(s.Tag, s.StratFunc); err != nil {
		return err
	}
	if err = r.UnstratFunc.Add(s.Tag, s.UnstratFunc); err != nil {
		return err
	}
	if err = r.StratEC.Add(s.Tag, s.StratEC); err != nil {
		return err
	}
	if err = r.UnstratEC.Add(s.Tag, s.UnstratEC); err != nil {
		return err
	}
	r.Stats = append(r.Stats, s.Stats)
	return nil
}

func (r *Result) addFailed(serr *SampleError) error {
	for _, o := range r.Outputs() {
		if err := o.Table.AddFailed(serr.Tag); err != nil {
			return err
		}
	}
	r.Failed = append(r.Failed, serr)
	return nil
}

// Sample is the output of one sample: its four columns and diagnostics.
type Sample struct {
	Tag string

	StratFunc   rpkg.Column
	UnstratFunc rpkg.Column
	StratEC     rpkg.Column
	UnstratEC   rpkg.Column

	Stats *Stats
}

// Run processes all entries and accumulates their columns in manifest
// order, so the result does not depend on opt.Workers. Failed samples are
// recorded in Result.Failed and do not stop the batch. ctx is checked
// before each sample starts; samples in progress are completed, and the
// partial result is returned with ctx.Err().
func Run(ctx context.Context, entries []Entry, db *refdb.DB, opt Options) (*Result, error) {
	if err := CheckUnique(entries); err != nil {
		return nil, err
	}
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.Threads <= 0 {
		opt.Threads = runtime.NumCPU()
	}
	if opt.Log == nil {
		opt.Log = defaultLog
	}

	type result struct {
		sample *Sample
		err    *SampleError
	}
	results := make([]*result, len(entries))

	var wg sync.WaitGroup
	tokens := make(chan int, opt.Workers)
	var aborted error

LOOP:
	for i, e := range entries {
		select {
		case <-ctx.Done():
			aborted = ctx.Err()
			break LOOP
		case tokens <- 1:
		}
		if ctx.Err() != nil {
			<-tokens
			aborted = ctx.Err()
			break
		}

		wg.Add(1)
		go func(i int, e Entry) {
			defer func() {
				wg.Done()
				<-tokens
			}()

			start := time.Now()
			s, err := ProcessSample(e, db, opt)
			r := &result{sample: s}
			if err != nil {
				var serr *SampleError
				if !errors.As(err, &serr) {
					serr = &SampleError{Tag: e.Tag, Err: err}
				}
				r.err = serr
			}
			results[i] = r

			if opt.Done != nil {
				opt.Done(time.Since(start))
			}
		}(i, e)
	}
	wg.Wait()

	res := newResult()
	for i, r := range results {
		if r == nil { // not started
			continue
		}
		if r.err != nil {
			opt.Log.Errorf("%s", r.err)
			if err := res.addFailed(r.err); err != nil {
				return nil, err
			}
			continue
		}
		if err := res.add(r.sample); err != nil {
			return nil, errors.Wrapf(err, "sample %s", entries[i].Tag)
		}
	}

	if aborted != nil {
		return res, aborted
	}
	return res, nil
}

// ProcessSample runs one sample through parsing, joining, function and EC
// indexing, stratification and normalization.
func ProcessSample(e Entry, db *refdb.DB, opt Options) (*Sample, error) {
	if e.Err != nil {
		return nil, &SampleError{Tag: e.Tag, Err: e.Err}
	}
	log := opt.Log
	if log == nil {
		log = defaultLog
	}
	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if opt.Verbose {
		log.Infof("processing sample %s", e)
	}

	// parse

	var taxa, funcs map[string]string
	var hits annot.GeneHits
	var errTaxa, errFuncs, errHits error
	parallel.Do(
		func() {
			taxa, errTaxa = annot.ParseAnnotation(e.TaxaFile, annot.Taxonomy, e.TaxaFormat, threads)
		},
		func() {
			funcs, errFuncs = annot.ParseAnnotation(e.FuncFile, annot.Function, e.FuncFormat, threads)
		},
		func() {
			hits, errHits = annot.ParseAlignment(e.M8File, threads)
		},
	)
	if errTaxa != nil {
		return nil, &SampleError{Tag: e.Tag, File: e.TaxaFile, Err: withSample(errTaxa, e.Tag, e.TaxaFile)}
	}
	if errFuncs != nil {
		return nil, &SampleError{Tag: e.Tag, File: e.FuncFile, Err: withSample(errFuncs, e.Tag, e.FuncFile)}
	}
	if errHits != nil {
		return nil, &SampleError{Tag: e.Tag, File: e.M8File, Err: errHits}
	}

	stats := &Stats{Sample: e.Tag, TotalReads: len(hits)}

	if opt.Lineage != nil {
		taxa, stats.UnresolvedTaxa = annot.RelabelTaxa(taxa, opt.Lineage)
		if stats.UnresolvedTaxa > 0 {
			log.Warningf("sample %s: lineages of %s reads not resolved, original taxon labels kept",
				e.Tag, humanize.Comma(int64(stats.UnresolvedTaxa)))
		}
	}

	// join

	j := annot.JoinAnnotations(taxa, funcs)
	taxa, funcs = nil, nil

	stats.TaxonomyReads = j.NumTaxonomy
	stats.FunctionReads = j.NumFunction
	stats.OrReads = j.NumOr()
	stats.AndReads = j.NumAnd()

	// aggregate and map to ECs

	funcIdx := annot.Aggregate(j.Functions)
	ecIdx := annot.MapEC(funcIdx, hits, db.ECs)

	stats.Functions = len(funcIdx)
	stats.ECs = len(ecIdx)
	stats.ECReads = ecIdx.NumReads()

	if ge, ok := opt.GenomeEquivalents.Get(e.Tag); ok {
		stats.GE, stats.GESource = ge, GESourceReport
	} else {
		stats.GE, stats.GESource = refdb.FallbackGenomeEquivalents(stats.AndReads), GESourceFallback
		if opt.GenomeEquivalents != nil {
			log.Warningf("sample %s: genome equivalents not found, using %s: %g", e.Tag, GESourceFallback, stats.GE)
		}
	}
	if stats.TotalReads == 0 {
		log.Warningf("sample %s: no reads with gene hits in %s", e.Tag, e.M8File)
	}

	// stratify and normalize

	s := &Sample{Tag: e.Tag, Stats: stats}
	parallel.Do(
		func() {
			s.StratFunc = rpkg.Normalize(annot.Stratify(funcIdx, j.Taxa), hits, db.Lengths, stats.GE)
		},
		func() {
			s.UnstratFunc = rpkg.Normalize(funcIdx, hits, db.Lengths, stats.GE)
		},
		func() {
			s.StratEC = rpkg.Normalize(annot.Stratify(ecIdx, j.Taxa), hits, db.Lengths, stats.GE)
		},
		func() {
			s.UnstratEC = rpkg.Normalize(ecIdx, hits, db.Lengths, stats.GE)
		},
	)

	if opt.Verbose {
		log.Infof("  %s: reads with gene hits: %s, taxa: %s (%.2f%%), functions: %s (%.2f%%), OR: %s (%.2f%%), AND: %s (%.2f%%), EC: %s (%.2f%%)",
			e.Tag, humanize.Comma(int64(stats.TotalReads)),
			humanize.Comma(int64(stats.TaxonomyReads)), stats.Percent(stats.TaxonomyReads),
			humanize.Comma(int64(stats.FunctionReads)), stats.Percent(stats.FunctionReads),
			humanize.Comma(int64(stats.OrReads)), stats.Percent(stats.OrReads),
			humanize.Comma(int64(stats.AndReads)), stats.Percent(stats.AndReads),
			humanize.Comma(int64(stats.ECReads)), stats.Percent(stats.ECReads))
		log.Infof("  %s: %s unique functions, %s ECs, genome equivalents: %g (%s)",
			e.Tag, humanize.Comma(int64(stats.Functions)), humanize.Comma(int64(stats.ECs)),
			stats.GE, stats.GESource)
	}
	return s, nil
}
