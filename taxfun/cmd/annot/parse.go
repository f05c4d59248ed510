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
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/breader"
)

// ChunkSize is the number of lines handled by a parsing thread at a time.
var ChunkSize = 5000

type pair struct {
	key, value string
}

// ErrEmptyPath means an input file name is empty.
var ErrEmptyPath = errors.New("taxfun/annot: empty file path")

// GeneHits maps a read to the ordered targets it hits in the alignment.
type GeneHits map[string][]string

// ParseAnnotation reads a read-id -> label map from an annotation file.
// For flagged formats (kraken2) only rows flagged "C" are kept.
// Later rows override earlier rows of the same read.
func ParseAnnotation(file string, kind Kind, format Format, threads int) (map[string]string, error) {
	if !format.Accepts(kind) {
		return nil, &ConfigurationError{Kind: kind, Tag: format.String(), File: file}
	}
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	numFields := 2
	if format.Flagged() {
		numFields = 3
	}
	pool := &sync.Pool{New: func() interface{} {
		tmp := make([]string, numFields+1)
		return &tmp
	}}

	flagged := format.Flagged()
	fn := func(line string) (interface{}, bool, error) {
		line = trimNewline(line)
		if line == "" || line[0] == '#' {
			return nil, false, nil
		}

		items := pool.Get().(*[]string)
		defer pool.Put(items)

		stringSplitNByByte(line, '\t', numFields+1, items)
		if len(*items) < numFields {
			return nil, false, fmt.Errorf("invalid %s line: %s", format, line)
		}

		if flagged {
			if (*items)[0] != "C" {
				return nil, false, nil
			}
			return pair{key: (*items)[1], value: (*items)[2]}, true, nil
		}
		return pair{key: (*items)[0], value: (*items)[1]}, true, nil
	}

	m := make(map[string]string, 1024)
	err := readPairs(file, threads, fn, func(p pair) {
		m[p.key] = p.value
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ParseAlignment reads the query and target columns of a BLAST-like
// tabular (m8) file. Hits of a read keep their order in the file.
func ParseAlignment(file string, threads int) (GeneHits, error) {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	pool := &sync.Pool{New: func() interface{} {
		tmp := make([]string, 3)
		return &tmp
	}}

	fn := func(line string) (interface{}, bool, error) {
		line = trimNewline(line)
		if line == "" || line[0] == '#' {
			return nil, false, nil
		}

		items := pool.Get().(*[]string)
		defer pool.Put(items)

		stringSplitNByByte(line, '\t', 3, items)
		if len(*items) < 2 {
			return nil, false, fmt.Errorf("invalid m8 line: %s", line)
		}
		return pair{key: (*items)[0], value: (*items)[1]}, true, nil
	}

	hits := make(GeneHits, 1024)
	err := readPairs(file, threads, fn, func(p pair) {
		hits[p.key] = append(hits[p.key], p.value)
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// readPairs feeds parsed pairs to handle in file order.
// The reader is always drained so its goroutines can exit.
func readPairs(file string, threads int, fn func(string) (interface{}, bool, error), handle func(pair)) error {
	if file == "" {
		return ErrEmptyPath
	}
	if file != "-" { // stdin
		if _, err := os.Stat(file); err != nil {
			return errors.Wrap(err, file)
		}
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
			handle(data.(pair))
		}
	}
	return firstErr
}
