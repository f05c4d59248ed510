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

// Package annot parses per-read taxonomy and function assignments of a
// sample, joins them, and builds label-to-reads indexes (functions, ECs and
// their taxon-stratified versions).
package annot

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the role of an annotation file in a sample.
type Kind uint8

const (
	// Taxonomy files map reads to taxa.
	Taxonomy Kind = iota + 1
	// Function files map reads to functions (orthologs, gene families, COGs).
	Function
)

func (k Kind) String() string {
	switch k {
	case Taxonomy:
		return "taxonomy"
	case Function:
		return "function"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Format is the source program of an annotation file.
type Format uint8

const (
	// UnknownFormat is the zero value and never parsed.
	UnknownFormat Format = iota
	// Kraken2 is the kraken2 per-read output: flag, read id, label, ...
	Kraken2
	// Megan is a two-column read/label file exported from MEGAN.
	Megan
	// UniRef is a two-column read/UniRef-cluster file.
	UniRef
	// COG is a two-column read/COG file.
	COG
	// RefSeq is a two-column read/RefSeq file.
	RefSeq
)

var formatNames = [...]string{"unknown", "kraken2", "megan", "uniref", "COG", "refseq"}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// Flagged reports whether rows carry a classification flag column.
func (f Format) Flagged() bool { return f == Kraken2 }

var formatsOfKind = map[Kind][]Format{
	Taxonomy: {Kraken2, Megan},
	Function: {Megan, UniRef, COG, RefSeq},
}

// Formats returns the formats accepted for a kind.
func Formats(kind Kind) []Format {
	return formatsOfKind[kind]
}

// Accepts reports whether the format is valid for the kind.
func (f Format) Accepts(kind Kind) bool {
	for _, _f := range formatsOfKind[kind] {
		if _f == f {
			return true
		}
	}
	return false
}

// ErrUnknownFormat means a format tag outside of the supported set.
var ErrUnknownFormat = errors.New("taxfun/annot: unknown format")

// ConfigurationError describes an unusable format tag. Sample and File are
// filled in when the tag comes from a manifest row.
type ConfigurationError struct {
	Kind   Kind
	Tag    string
	Sample string
	File   string
}

func (e *ConfigurationError) Error() string {
	names := make([]string, 0, 4)
	for _, f := range Formats(e.Kind) {
		names = append(names, f.String())
	}
	var where string
	if e.Sample != "" {
		where = fmt.Sprintf(" for sample %s", e.Sample)
	}
	if e.File != "" {
		where += fmt.Sprintf(" (file: %s)", e.File)
	}
	return fmt.Sprintf("unknown %s format %q%s, available: %s",
		e.Kind, e.Tag, where, strings.Join(names, ", "))
}

// Unwrap makes errors.Is(err, ErrUnknownFormat) work.
func (e *ConfigurationError) Unwrap() error { return ErrUnknownFormat }

// ParseFormat resolves a format tag for the given kind.
// Tags are case-insensitive.
func ParseFormat(kind Kind, tag string) (Format, error) {
	t := strings.ToLower(strings.TrimSpace(tag))
	for _, f := range formatsOfKind[kind] {
		if strings.ToLower(f.String()) == t {
			return f, nil
		}
	}
	return UnknownFormat, &ConfigurationError{Kind: kind, Tag: tag}
}
