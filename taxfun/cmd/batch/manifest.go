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

// Package batch runs the taxonomy-function RPKG pipeline over all samples
// of a manifest and accumulates the four batch-wide tables.
package batch

import (
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/shenwei356/taxfun/taxfun/cmd/annot"
	"github.com/shenwei356/xopen"
)

// ManifestFields is the number of columns of a manifest row:
// sample tag, taxonomy file, taxonomy format, function file,
// function format, alignment (m8) file.
const ManifestFields = 6

// ErrDuplicateSample means two manifest rows share a sample tag.
var ErrDuplicateSample = errors.New("taxfun/batch: duplicated sample tag")

// ErrEmptyPath means a file column of a manifest row is empty.
var ErrEmptyPath = errors.New("taxfun/batch: empty file path")

// Entry is one sample of a manifest.
type Entry struct {
	Tag        string
	TaxaFile   string
	TaxaFormat annot.Format
	FuncFile   string
	FuncFormat annot.Format
	M8File     string

	// Line is the line number in the manifest, 0 if not from a file.
	Line int

	// Err is set when a format tag of the row is unknown. Such a sample
	// fails without being processed.
	Err error
}

func (e Entry) String() string {
	return fmt.Sprintf("%s: taxonomy: %s (%s), function: %s (%s), alignment: %s",
		e.Tag, e.TaxaFile, e.TaxaFormat, e.FuncFile, e.FuncFormat, e.M8File)
}

// NewEntry builds an Entry, resolving format tags and expanding "~" in
// paths.
func NewEntry(tag, taxaFile, taxaType, funcFile, funcType, m8File string) Entry {
	e := Entry{
		Tag:      tag,
		TaxaFile: expandPath(taxaFile),
		FuncFile: expandPath(funcFile),
		M8File:   expandPath(m8File),
	}

	for _, f := range []struct{ name, file string }{
		{"taxonomy", e.TaxaFile}, {"function", e.FuncFile}, {"alignment", e.M8File},
	} {
		if strings.TrimSpace(f.file) == "" {
			e.Err = errors.Wrapf(ErrEmptyPath, "sample %s: %s file", tag, f.name)
			return e
		}
	}

	var err error
	e.TaxaFormat, err = annot.ParseFormat(annot.Taxonomy, taxaType)
	if err != nil {
		e.Err = withSample(err, tag, e.TaxaFile)
		return e
	}
	e.FuncFormat, err = annot.ParseFormat(annot.Function, funcType)
	if err != nil {
		e.Err = withSample(err, tag, e.FuncFile)
	}
	return e
}

func withSample(err error, tag, file string) error {
	var cerr *annot.ConfigurationError
	if errors.As(err, &cerr) {
		cerr.Sample = tag
		cerr.File = file
	}
	return err
}

func expandPath(file string) string {
	if p, err := homedir.Expand(file); err == nil {
		return p
	}
	return file
}

// ManifestRowError is a manifest row without exactly ManifestFields
// columns, or a row commented out with "#". The row is skipped.
type ManifestRowError struct {
	File      string
	Line      int
	Fields    int
	Commented bool
}

func (e *ManifestRowError) Error() string {
	if e.Commented {
		return fmt.Sprintf("%s: line %d starts with \"#\", skipped", e.File, e.Line)
	}
	return fmt.Sprintf("%s: line %d has %d field(s), %d expected, skipped", e.File, e.Line, e.Fields, ManifestFields)
}

// ReadManifest reads a tab-delimited manifest without header. Malformed
// rows and rows starting with "#" are reported in warnings and skipped;
// duplicated sample tags are fatal.
func ReadManifest(file string) (entries []Entry, warnings []error, err error) {
	fh, err := xopen.Ropen(expandPath(file))
	if err != nil {
		return nil, nil, errors.Wrap(err, file)
	}
	defer fh.Close()

	return ParseManifest(fh, file)
}

// ParseManifest is ReadManifest on a reader; name is used in messages.
func ParseManifest(r io.Reader, name string) (entries []Entry, warnings []error, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, name)
	}

	entries = make([]Entry, 0, 16)
	var items []string
	var e Entry
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		items = strings.Split(line, "\t")
		if line[0] == '#' {
			warnings = append(warnings, &ManifestRowError{File: name, Line: i + 1, Fields: len(items), Commented: true})
			continue
		}
		if len(items) != ManifestFields {
			warnings = append(warnings, &ManifestRowError{File: name, Line: i + 1, Fields: len(items)})
			continue
		}
		for j := range items {
			items[j] = strings.TrimSpace(items[j])
		}
		e = NewEntry(items[0], items[1], items[2], items[3], items[4], items[5])
		e.Line = i + 1
		entries = append(entries, e)
	}

	if err = CheckUnique(entries); err != nil {
		return nil, warnings, errors.Wrap(err, name)
	}
	return entries, warnings, nil
}

// CheckUnique returns ErrDuplicateSample if two entries share a tag.
func CheckUnique(entries []Entry) error {
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		if j, ok := seen[e.Tag]; ok {
			return errors.Wrapf(ErrDuplicateSample, "%s (entries %d and %d)", e.Tag, j+1, i+1)
		}
		seen[e.Tag] = i
	}
	return nil
}
