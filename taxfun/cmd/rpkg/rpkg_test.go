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

package rpkg

import (
	"bytes"
	"math"
	"testing"

	"github.com/pkg/diff"
	"github.com/pkg/diff/write"
	"github.com/pkg/errors"
	"github.com/shenwei356/taxfun/taxfun/cmd/annot"
)

type lengths map[string]float64

func (l lengths) Length(gene string) (float64, bool) {
	v, ok := l[gene]
	return v, ok
}

func TestNormalize(t *testing.T) {
	lens := lengths{"g1": 1000, "g2": 2000, "g3": 500}
	hits := annot.GeneHits{
		"r1": {"g1", "g2"},
		"r2": {"g3"},
		"r3": {"gX"},
	}
	idx := annot.Index{
		"F1": {"r1", "r2", "r3"},
		"F2": {"r3"},
		"F3": {"r4"},
	}

	got := Normalize(idx, hits, lens, 2)
	if v := got["F1"]; !v.Defined || v.RPKG != 1.5 {
		t.Errorf("unexpected RPKG of F1: got:%v want:1.5", v)
	}
	if v := got["F2"]; v.Defined {
		t.Errorf("expected undefined RPKG for label without gene lengths, got %v", v)
	}
	if v := got["F3"]; v.Defined {
		t.Errorf("expected undefined RPKG for label without hits, got %v", v)
	}
	if len(got) != len(idx) {
		t.Errorf("unexpected number of labels: got:%d want:%d", len(got), len(idx))
	}

	zero := Normalize(idx, hits, lens, 0)
	for label, v := range zero {
		if v.Defined {
			t.Errorf("expected undefined RPKG of %s for zero genome equivalents, got %v", label, v)
		}
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		reads    int
		readLens []float64
		ge       float64
		want     Value
	}{
		{0, nil, 1, Undefined},
		{0, []float64{1000}, 1, Undefined},
		{2, []float64{1000, 3000}, 0.5, Value{RPKG: 2, Defined: true}},
		{1, []float64{0}, 1, Undefined},
		{1, []float64{1000}, math.NaN(), Undefined},
		{4, []float64{500}, 4, Value{RPKG: 2, Defined: true}},
		{3, []float64{1000}, math.Inf(1), Undefined},
		{3, []float64{1000}, -2, Undefined},
	}
	for _, test := range tests {
		got := Compute(test.reads, test.readLens, test.ge)
		if got != test.want {
			t.Errorf("unexpected RPKG for %d reads, lengths %v, GE %v: got:%v want:%v",
				test.reads, test.readLens, test.ge, got, test.want)
		}
	}
}

func TestValueFormat(t *testing.T) {
	tests := []struct {
		v    Value
		prec int
		want string
	}{
		{Undefined, 6, NA},
		{Of(math.NaN()), 6, NA},
		{Of(math.Inf(1)), 6, NA},
		{Of(0), 6, "0"},
		{Of(1.5), 6, "1.500000"},
		{Of(1.5), -1, "1.5"},
		{Of(12), 0, "12"},
		{Of(1e-9), 6, "1e-09"},
		{Of(1.23456789e-7), 6, "1.23457e-07"},
		{Of(0.4), 0, "0.4"},
		{Of(-1e-9), 6, "-1e-09"},
	}
	for _, test := range tests {
		if got := test.v.Format(test.prec); got != test.want {
			t.Errorf("unexpected format of %#v with precision %d: got:%q want:%q", test.v, test.prec, got, test.want)
		}
	}
}

func TestTableDuplicateSample(t *testing.T) {
	tbl := NewTable("test")
	if err := tbl.Add("s1", Column{"F1": Of(1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tbl.Add("s1", Column{"F2": Of(1)}); !errors.Is(err, ErrDuplicateSample) {
		t.Errorf("expected duplicated sample error, got %v", err)
	}
	if err := tbl.AddFailed("s1"); !errors.Is(err, ErrDuplicateSample) {
		t.Errorf("expected duplicated sample error, got %v", err)
	}
}

func TestWriteMatrix(t *testing.T) {
	tbl := NewTable("unstratified")
	if err := tbl.Add("s1", Column{"F2": Of(2.5), "F1": Of(1), "F4": Undefined}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Add("s2", Column{"F3": Of(0.25), "F1": Of(3)}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddFailed("s3"); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Add("s4", Column{}); err != nil {
		t.Fatal(err)
	}

	var got bytes.Buffer
	opt := DefaultMatrixOptions
	opt.Precision = -1
	if err := WriteMatrix(&got, tbl, opt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "function\ts1\ts2\ts3\ts4\n" +
		"F1\t1\t3\tNA\t0\n" +
		"F2\t2.5\t0\tNA\t0\n" +
		"F4\tNA\t0\tNA\t0\n" +
		"F3\t0\t0.25\tNA\t0\n"
	if got.String() != want {
		var buf bytes.Buffer
		err := diff.Text("got", "want", got.String(), want, &buf, write.TerminalColor())
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		t.Errorf("unexpected matrix:\n%s", &buf)
	}
}

func TestWriteMatrixExtraColumn(t *testing.T) {
	tbl := NewTable("lineage")
	if err := tbl.Add("s1", Column{"p__A;s__B": Of(3)}); err != nil {
		t.Fatal(err)
	}
	var got bytes.Buffer
	err := WriteMatrix(&got, tbl, MatrixOptions{
		RowName:   "lineage",
		Samples:   []string{"s0", "s1"},
		ExtraName: "taxid",
		Extra:     map[string]string{"p__A;s__B": "562"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "lineage\ttaxid\ts0\ts1\np__A;s__B\t562\t0\t3\n"
	if got.String() != want {
		t.Errorf("unexpected matrix:\ngot: %q\nwant:%q", got.String(), want)
	}
}
