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

package refdb

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

func writeFile(t *testing.T, file, content string) {
	t.Helper()
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", file, err)
	}
}

func writeGzip(t *testing.T, file, content string) {
	t.Helper()
	f, err := os.Create(file)
	if err != nil {
		t.Fatalf("failed to create %s: %v", file, err)
	}
	defer f.Close()
	w := gzip.NewWriter(f)
	if _, err = w.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write %s: %v", file, err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("failed to close %s: %v", file, err)
	}
}

func TestLoadGeneLengths(t *testing.T) {
	file := filepath.Join(t.TempDir(), "len.tsv")
	writeFile(t, file, "# gene\tlength\ng1\t900\ng2\t1500\r\ng3\t0\ng1\t1200\n")

	got, err := LoadGeneLengths(file, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := GeneLengths{"g1": 1200, "g2": 1500}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected gene lengths:\ngot: %v\nwant:%v", got, want)
	}
	if _, ok := got.Length("g3"); ok {
		t.Error("gene with zero length should be skipped")
	}

	writeFile(t, file, "g1\tlong\n")
	if _, err = LoadGeneLengths(file, 1); err == nil {
		t.Error("expected error for invalid length")
	}
}

func TestLoadECMap(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ec.tsv")
	writeFile(t, file, "g1\t1.1.1.1\ng2\tEC:2.7.7.7,1.1.1.1\ng1\t3.2.1.4; 1.1.1.1\ng3\t\n")

	got, err := LoadECMap(file, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ECMap{
		"g1": {"1.1.1.1", "3.2.1.4", "1.1.1.1"},
		"g2": {"2.7.7.7", "1.1.1.1"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected EC map:\ngot: %v\nwant:%v", got, want)
	}
	if n := got.NumECs(); n != 3 {
		t.Errorf("unexpected number of distinct ECs: got:%d want:3", n)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	writeGzip(t, filepath.Join(dir, DefaultGeneLengthFile), "g1\t900\ng2\t1500\n")
	writeGzip(t, filepath.Join(dir, DefaultECMapFile), "g1\t1.1.1.1\n")

	db, err := Open(dir, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.Info.NumGenes != 2 || db.Info.NumECGenes != 1 || db.Info.NumECs != 1 {
		t.Errorf("unexpected database summary: %+v", db.Info)
	}
	if l, ok := db.Lengths.Length("g2"); !ok || l != 1500 {
		t.Errorf("unexpected length of g2: %v %v", l, ok)
	}

	// custom file names via the info file
	writeFile(t, filepath.Join(dir, "len.tsv"), "g9\t300\n")
	writeFile(t, filepath.Join(dir, "ec.tsv"), "g9\t4.1.1.1\n")
	info := NewInfo(dir)
	info.Alias = "custom"
	info.GeneLengthFile = "len.tsv"
	info.ECMapFile = "ec.tsv"
	if _, err = info.WriteTo(filepath.Join(dir, DBInfoFile)); err != nil {
		t.Fatalf("failed to write info file: %v", err)
	}

	db, err = Open(dir, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.Info.Alias != "custom" {
		t.Errorf("unexpected alias: %q", db.Info.Alias)
	}
	if !reflect.DeepEqual(db.ECs.ECs("g9"), []string{"4.1.1.1"}) {
		t.Errorf("unexpected ECs of g9: %v", db.ECs.ECs("g9"))
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir, 1); err == nil {
		t.Error("expected error for empty database directory")
	}

	writeFile(t, filepath.Join(dir, DBInfoFile), "version: 99\nalias: future\n")
	_, err := Open(dir, 1)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("expected version mismatch, got %v", err)
	}
}

func TestLoadGenomeEquivalents(t *testing.T) {
	dir := t.TempDir()

	report := filepath.Join(dir, "census.tsv")
	writeFile(t, report, "SampleTag\tavg_read_length\taverage_genome_size\tgenome_equivalents\n"+
		"s1\t150\t3500000\t12.5\n"+
		"s2\t150\t3100000\t0.75\n")
	got, err := LoadGenomeEquivalents(report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := GenomeEquivalents{"s1": 12.5, "s2": 0.75}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected genome equivalents:\ngot: %v\nwant:%v", got, want)
	}

	kv := filepath.Join(dir, "ge.tsv")
	writeFile(t, kv, "sample\tge\ns1\t3")
	got, err = LoadGenomeEquivalents(kv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ge, ok := got.Get("s1"); !ok || ge != 3 {
		t.Errorf("unexpected genome equivalents of s1: %v %v", ge, ok)
	}

	bad := filepath.Join(dir, "bad.tsv")
	writeFile(t, bad, "s1\t2\ns2\tmany\n")
	if _, err = LoadGenomeEquivalents(bad); err == nil {
		t.Error("expected error for invalid value")
	}

	for _, value := range []string{"inf", "-2", "NaN"} {
		writeFile(t, bad, "s1\t2\ns2\t"+value+"\n")
		if _, err = LoadGenomeEquivalents(bad); err == nil {
			t.Errorf("expected error for genome equivalents %s", value)
		}
	}
}

func TestFallbackGenomeEquivalents(t *testing.T) {
	if got := FallbackGenomeEquivalents(2500000); got != 2.5 {
		t.Errorf("unexpected fallback: got:%v want:2.5", got)
	}
	if got := FallbackGenomeEquivalents(0); got != 0 {
		t.Errorf("unexpected fallback for no reads: %v", got)
	}
}
