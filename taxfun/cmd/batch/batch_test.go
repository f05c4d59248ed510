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
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/diff"
	"github.com/pkg/diff/write"
	"github.com/pkg/errors"
	"github.com/shenwei356/taxfun/taxfun/cmd/annot"
	"github.com/shenwei356/taxfun/taxfun/cmd/refdb"
	"github.com/shenwei356/taxfun/taxfun/cmd/rpkg"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	file := filepath.Join(dir, name)
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", file, err)
	}
	return file
}

func TestParseManifest(t *testing.T) {
	data := "# tag\ttaxa\ttype\tfunc\ttype\tm8\n" +
		"s1\ts1.kraken\tkraken2\ts1.func\tmegan\ts1.m8\n" +
		"\n" +
		"s2\ts2.kraken\tkraken2\ts2.func\n" +
		"s3\ts3.megan\tMEGAN\ts3.cog\tcog\ts3.m8\r\n" +
		"s4\ts4.kraken\tkraken2\ts4.func\tpfam\ts4.m8\n"

	entries, warnings, err := ParseManifest(strings.NewReader(data), "manifest.tsv")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if len(warnings) != 2 {
		t.Fatalf("warnings: got %d, want 2", len(warnings))
	}
	var rerr *ManifestRowError
	if !errors.As(warnings[0], &rerr) || rerr.Line != 1 || !rerr.Commented {
		t.Errorf("unexpected warning: %v", warnings[0])
	}
	if !errors.As(warnings[1], &rerr) || rerr.Line != 4 || rerr.Fields != 4 || rerr.Commented {
		t.Errorf("unexpected warning: %v", warnings[1])
	}

	if len(entries) != 3 {
		t.Fatalf("entries: got %d, want 3", len(entries))
	}
	if e := entries[0]; e.Tag != "s1" || e.TaxaFormat != annot.Kraken2 || e.FuncFormat != annot.Megan || e.M8File != "s1.m8" || e.Line != 2 {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e := entries[1]; e.TaxaFormat != annot.Megan || e.FuncFormat != annot.COG || e.M8File != "s3.m8" || e.Err != nil {
		t.Errorf("unexpected entry: %+v", e)
	}

	e := entries[2]
	if !errors.Is(e.Err, annot.ErrUnknownFormat) {
		t.Fatalf("unknown format not reported: %v", e.Err)
	}
	var cerr *annot.ConfigurationError
	if !errors.As(e.Err, &cerr) || cerr.Sample != "s4" || cerr.File != "s4.func" || cerr.Kind != annot.Function {
		t.Errorf("unexpected configuration error: %+v", cerr)
	}
}

func TestParseManifestCommentedRow(t *testing.T) {
	entries, warnings, err := ParseManifest(strings.NewReader("#s1\ta\tkraken2\tb\tmegan\tc\n"), "manifest.tsv")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries: got %d, want 0", len(entries))
	}
	var rerr *ManifestRowError
	if len(warnings) != 1 || !errors.As(warnings[0], &rerr) || !rerr.Commented || rerr.Fields != ManifestFields {
		t.Errorf("commented row not reported: %v", warnings)
	}
}

func TestParseManifestEmptyPath(t *testing.T) {
	data := "bad\t \tkraken2\tb\tmegan\tc\n" +
		"s1\ta\tkraken2\tb\tmegan\tc\n"
	entries, _, err := ParseManifest(strings.NewReader(data), "manifest.tsv")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	if !errors.Is(entries[0].Err, ErrEmptyPath) || !strings.Contains(entries[0].Err.Error(), "bad") {
		t.Errorf("empty taxonomy file not reported: %v", entries[0].Err)
	}
	if entries[1].Err != nil {
		t.Errorf("unexpected error of s1: %v", entries[1].Err)
	}
}

func TestRunEmptyPath(t *testing.T) {
	entries := testEntries(t)
	good := entries[0]
	entries = []Entry{
		NewEntry("bad1", " ", "kraken2", good.FuncFile, "megan", good.M8File),
		NewEntry("bad2", good.TaxaFile, "kraken2", good.FuncFile, "megan", ""),
		good,
		{Tag: "bad3", TaxaFile: good.TaxaFile, FuncFile: "", M8File: good.M8File,
			TaxaFormat: annot.Kraken2, FuncFormat: annot.Megan},
	}

	res, err := Run(context.Background(), entries, testDB(), Options{
		Workers:           2,
		Threads:           1,
		GenomeEquivalents: refdb.GenomeEquivalents{"s1": 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if len(res.Failed) != 3 {
		t.Fatalf("failed samples: got %d, want 3: %v", len(res.Failed), res.Failed)
	}
	for i, tag := range []string{"bad1", "bad2", "bad3"} {
		if res.Failed[i].Tag != tag || !strings.Contains(res.Failed[i].Error(), tag) {
			t.Errorf("unexpected failed sample: %v", res.Failed[i])
		}
	}
	if !errors.Is(res.Failed[2], annot.ErrEmptyPath) {
		t.Errorf("empty function file not reported: %v", res.Failed[2])
	}

	checkColumn(t, "unstrat", res.UnstratFunc, "s1", map[string]float64{"F1": 4 / 1.5 / 2})
	if got := strings.Join(res.UnstratFunc.Samples(), ","); got != "bad1,bad2,s1,bad3" {
		t.Errorf("samples: got %s", got)
	}
}

func TestParseManifestDuplicate(t *testing.T) {
	data := "s1\ta\tkraken2\tb\tmegan\tc\n" +
		"s2\ta\tkraken2\tb\tmegan\tc\n" +
		"s1\td\tkraken2\te\tmegan\tf\n"
	_, _, err := ParseManifest(strings.NewReader(data), "manifest.tsv")
	if !errors.Is(err, ErrDuplicateSample) {
		t.Errorf("duplicated tag not detected: %v", err)
	}
}

// r5 has a function but no taxon, r6 has a taxon but no function.
const (
	taxaKraken2 = "C\tr1\tA\t150\t0:1\n" +
		"C\tr2\tA\t150\t0:1\n" +
		"C\tr3\tA\t150\t0:1\n" +
		"C\tr4\tB\t150\t0:1\n" +
		"U\tr5\t0\t150\t0:1\n" +
		"C\tr6\tB\t150\t0:1\n"
	funcMegan = "r1\tF1\nr2\tF1\nr3\tF1\nr4\tF1\nr5\tF2\n"
	hitsM8    = "r1\tg1\t99.0\nr2\tg1\t98.0\nr3\tg2\t97.0\nr4\tg2\t96.0\nr5\tg1\t95.0\nr6\tg3\t94.0\n"
)

func testDB() *refdb.DB {
	return &refdb.DB{
		Lengths: refdb.GeneLengths{"g1": 1000, "g2": 2000, "g3": 500},
		ECs:     refdb.ECMap{"g1": {"1.1.1.1"}, "g2": {"2.2.2.2"}},
	}
}

func testEntries(t *testing.T) []Entry {
	dir := t.TempDir()
	taxa := writeFile(t, dir, "s1.kraken", taxaKraken2)
	funcs := writeFile(t, dir, "s1.func", funcMegan)
	m8 := writeFile(t, dir, "s1.m8", hitsM8)
	return []Entry{
		NewEntry("s1", taxa, "kraken2", funcs, "megan", m8),
		NewEntry("s2", taxa, "kraken2", funcs, "megan", filepath.Join(dir, "missing.m8")),
		NewEntry("s3", taxa, "kraken2", funcs, "pfam", m8),
		NewEntry("s4", taxa, "kraken2", funcs, "megan", m8),
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func checkColumn(t *testing.T, name string, tbl *rpkg.Table, sample string, want map[string]float64) {
	t.Helper()
	col := tbl.Column(sample)
	if len(col) != len(want) {
		t.Errorf("%s: got %d labels, want %d: %v", name, len(col), len(want), col)
	}
	for label, w := range want {
		v, ok := col[label]
		if !ok || !v.Defined || !near(v.RPKG, w) {
			t.Errorf("%s: %s: got %v, want %g", name, label, v, w)
		}
	}
}

func TestRun(t *testing.T) {
	entries := testEntries(t)
	ge := refdb.GenomeEquivalents{"s1": 2}

	var done int
	res, err := Run(context.Background(), entries, testDB(), Options{
		Workers:           1,
		Threads:           2,
		GenomeEquivalents: ge,
		Done:              func(_ time.Duration) { done++ },
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if done != len(entries) {
		t.Errorf("callback called %d times, want %d", done, len(entries))
	}

	// F1: 4 reads, average length 1.5 kb; F1|A: 3 reads, 4/3 kb; F1|B: 1 read, 2 kb.
	checkColumn(t, "unstrat", res.UnstratFunc, "s1", map[string]float64{"F1": 4 / 1.5 / 2})
	checkColumn(t, "strat", res.StratFunc, "s1", map[string]float64{"F1|A": 3 / (4.0 / 3) / 2, "F1|B": 1.0 / 2 / 2})
	checkColumn(t, "unstrat EC", res.UnstratEC, "s1", map[string]float64{"EC:1.1.1.1": 1, "EC:2.2.2.2": 0.5})
	checkColumn(t, "strat EC", res.StratEC, "s1", map[string]float64{
		"EC:1.1.1.1|A": 1, "EC:2.2.2.2|A": 0.25, "EC:2.2.2.2|B": 0.25})

	// failed samples keep their columns
	for _, o := range res.Outputs() {
		if got := strings.Join(o.Table.Samples(), ","); got != "s1,s2,s3,s4" {
			t.Errorf("%s: samples: got %s", o.Suffix, got)
		}
		for _, label := range o.Table.Labels() {
			for _, s := range []string{"s2", "s3"} {
				if v, ok := o.Table.Get(label, s); !ok || v.Defined {
					t.Errorf("%s: %s of failed sample %s: got %v", o.Suffix, label, s, v)
				}
			}
		}
	}

	if len(res.Failed) != 2 || res.Failed[0].Tag != "s2" || res.Failed[1].Tag != "s3" {
		t.Fatalf("unexpected failed samples: %v", res.Failed)
	}
	if res.Failed[0].File != entries[1].M8File {
		t.Errorf("failed file: got %s, want %s", res.Failed[0].File, entries[1].M8File)
	}
	if !errors.Is(res.Failed[1], annot.ErrUnknownFormat) {
		t.Errorf("unknown format not reported: %v", res.Failed[1])
	}

	// diagnostics
	if len(res.Stats) != 2 {
		t.Fatalf("stats: got %d, want 2", len(res.Stats))
	}
	s := res.Stats[0]
	if s.TotalReads != 6 || s.TaxonomyReads != 5 || s.FunctionReads != 5 ||
		s.OrReads != 6 || s.AndReads != 4 || s.ECReads != 4 ||
		s.Functions != 1 || s.ECs != 2 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.GE != 2 || s.GESource != GESourceReport {
		t.Errorf("genome equivalents: got %g (%s)", s.GE, s.GESource)
	}
	if s4 := res.Stats[1]; s4.GE != 4e-6 || s4.GESource != GESourceFallback {
		t.Errorf("fallback genome equivalents: got %g (%s)", s4.GE, s4.GESource)
	}

	// same result with more workers
	res2, err := Run(context.Background(), entries, testDB(), Options{Workers: 3, Threads: 1, GenomeEquivalents: ge})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	for i, o := range res.Outputs() {
		var a, b bytes.Buffer
		if err = rpkg.WriteMatrix(&a, o.Table, rpkg.DefaultMatrixOptions); err != nil {
			t.Fatal(err)
		}
		if err = rpkg.WriteMatrix(&b, res2.Outputs()[i].Table, rpkg.DefaultMatrixOptions); err != nil {
			t.Fatal(err)
		}
		if a.String() != b.String() {
			var buf bytes.Buffer
			diff.Text("workers=1", "workers=2", a.String(), b.String(), &buf, write.TerminalColor())
			t.Errorf("%s differs:\n%s", o.Suffix, buf.String())
		}
	}
}

func TestRunMatrix(t *testing.T) {
	entries := testEntries(t)[:3]
	res, err := Run(context.Background(), entries, testDB(), Options{
		Threads:           1,
		GenomeEquivalents: refdb.GenomeEquivalents{"s1": 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var buf bytes.Buffer
	if err = rpkg.WriteMatrix(&buf, res.StratFunc, rpkg.DefaultMatrixOptions); err != nil {
		t.Fatal(err)
	}
	want := "function\ts1\ts2\ts3\n" +
		"F1|A\t1.125000\tNA\tNA\n" +
		"F1|B\t0.250000\tNA\tNA\n"
	if got := buf.String(); got != want {
		var d bytes.Buffer
		diff.Text("got", "want", got, want, &d, write.TerminalColor())
		t.Errorf("unexpected matrix:\n%s", d.String())
	}

	buf.Reset()
	if err = WriteStats(&buf, res.Stats); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "s1\t6\t5\t83.3333\t5\t83.3333\t6\t100.0000\t4\t66.6667\t4\t66.6667\t1\t2\t2\treport") {
		t.Errorf("unexpected stats:\n%s", buf.String())
	}
}

func TestRunDuplicate(t *testing.T) {
	entries := testEntries(t)
	entries[3].Tag = "s1"
	_, err := Run(context.Background(), entries, testDB(), Options{})
	if !errors.Is(err, ErrDuplicateSample) {
		t.Errorf("duplicated tag not detected: %v", err)
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, testEntries(t), testDB(), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want %v", err, context.Canceled)
	}
	if n := len(res.StratFunc.Samples()); n != 0 {
		t.Errorf("no sample should be processed, got %d", n)
	}
}

func TestProcessSampleLineage(t *testing.T) {
	entries := testEntries(t)
	opt := Options{
		Threads: 1,
		Lineage: lineages{},
	}
	s, err := ProcessSample(entries[0], testDB(), opt)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	// taxa without taxids keep their labels
	if s.Stats.UnresolvedTaxa != 5 {
		t.Errorf("unresolved taxa: got %d, want 5", s.Stats.UnresolvedTaxa)
	}
	if _, ok := s.StratFunc["F1|A"]; !ok {
		t.Errorf("original taxon label lost: %v", s.StratFunc)
	}
}

type lineages map[uint32]string

func (l lineages) Lineage(taxid uint32) (string, bool) {
	s, ok := l[taxid]
	return s, ok
}
