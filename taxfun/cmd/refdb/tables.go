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
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/breader"
	"github.com/shenwei356/util/pathutil"
)

// ChunkSize is the number of lines handled by a parsing thread at a time.
var ChunkSize = 5000

// GeneLengths maps a gene/target id to its length in bases.
type GeneLengths map[string]float64

// Length returns the length of a gene.
func (g GeneLengths) Length(gene string) (float64, bool) {
	l, ok := g[gene]
	return l, ok
}

// ECMap maps a gene/target id to its candidate EC ids.
type ECMap map[string][]string

// ECs returns the candidate EC ids of a gene.
func (m ECMap) ECs(gene string) []string { return m[gene] }

// NumECs returns the number of distinct EC ids.
func (m ECMap) NumECs() int {
	ecs := make(map[string]struct{}, 1024)
	for _, _ecs := range m {
		for _, ec := range _ecs {
			ecs[ec] = struct{}{}
		}
	}
	return len(ecs)
}

// DB is a loaded reference database. It is never modified after Open and
// can be shared by concurrent workers.
type DB struct {
	Info    Info
	Lengths GeneLengths
	ECs     ECMap
}

// Open loads the reference database in dir.
func Open(dir string, threads int) (*DB, error) {
	var info Info
	var err error

	file := filepath.Join(dir, DBInfoFile)
	existed, err := pathutil.Exists(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	if existed {
		info, err = InfoFromFile(file)
		if err != nil {
			return nil, err
		}
	} else {
		info = NewInfo(dir)
	}

	if err = info.Check(); err != nil {
		return nil, err
	}

	db := &DB{Info: info}

	db.Lengths, err = LoadGeneLengths(info.Path(info.GeneLengthFile), threads)
	if err != nil {
		return nil, err
	}

	db.ECs, err = LoadECMap(info.Path(info.ECMapFile), threads)
	if err != nil {
		return nil, err
	}

	db.Info.NumGenes = len(db.Lengths)
	db.Info.NumECGenes = len(db.ECs)
	db.Info.NumECs = db.ECs.NumECs()
	return db, nil
}

type geneLength struct {
	gene   string
	length float64
}

// LoadGeneLengths reads a two-column table: gene id, length in bases.
// Rows with a non-positive length are skipped.
func LoadGeneLengths(file string, threads int) (GeneLengths, error) {
	fn := func(line string) (interface{}, bool, error) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" || line[0] == '#' {
			return nil, false, nil
		}
		items := strings.SplitN(line, "\t", 3)
		if len(items) < 2 {
			return nil, false, fmt.Errorf("invalid gene length line: %s", line)
		}
		length, err := strconv.ParseFloat(strings.TrimSpace(items[1]), 64)
		if err != nil {
			return nil, false, fmt.Errorf("invalid gene length: %s", items[1])
		}
		if length <= 0 {
			return nil, false, nil
		}
		return geneLength{gene: items[0], length: length}, true, nil
	}

	lengths := make(GeneLengths, 1<<16)
	err := readTable(file, threads, fn, func(data interface{}) {
		g := data.(geneLength)
		lengths[g.gene] = g.length
	})
	if err != nil {
		return nil, err
	}
	return lengths, nil
}

type geneECs struct {
	gene string
	ecs  []string
}

// LoadECMap reads a two-column table: gene id, EC ids separated by
// commas, semicolons or spaces. A gene may appear in several rows; its
// candidates are concatenated in file order. A leading "EC:" is removed.
func LoadECMap(file string, threads int) (ECMap, error) {
	fn := func(line string) (interface{}, bool, error) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" || line[0] == '#' {
			return nil, false, nil
		}
		items := strings.SplitN(line, "\t", 3)
		if len(items) < 2 {
			return nil, false, fmt.Errorf("invalid EC map line: %s", line)
		}
		ecs := splitECs(items[1])
		if len(ecs) == 0 {
			return nil, false, nil
		}
		return geneECs{gene: items[0], ecs: ecs}, true, nil
	}

	m := make(ECMap, 1<<16)
	err := readTable(file, threads, fn, func(data interface{}) {
		g := data.(geneECs)
		m[g.gene] = append(m[g.gene], g.ecs...)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func splitECs(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	})
	ecs := fields[:0]
	for _, ec := range fields {
		ec = strings.TrimPrefix(ec, "EC:")
		if ec != "" {
			ecs = append(ecs, ec)
		}
	}
	return ecs
}

func readTable(file string, threads int, fn func(string) (interface{}, bool, error), handle func(interface{})) error {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if _, err := os.Stat(file); err != nil {
		return errors.Wrap(err, file)
	}

	reader, err := breader.NewBufferedReader(file, threads, ChunkSize, fn)
	if err != nil {
		return errors.Wrap(err, file)
	}

	var firstErr error
	var data interface{}
	for chunk := range reader.Ch {
		if chunk.Err != nil {
			if firstErr == nil {
				firstErr = errors.Wrap(chunk.Err, file)
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		for _, data = range chunk.Data {
			handle(data)
		}
	}
	return firstErr
}
