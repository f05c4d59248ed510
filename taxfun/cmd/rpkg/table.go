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
	"fmt"

	"github.com/pkg/errors"
)

// ErrDuplicateSample means a sample column is added twice to a Table.
var ErrDuplicateSample = errors.New("taxfun/rpkg: duplicated sample")

// Table accumulates label -> sample -> value across a batch. Labels keep
// the order they were first seen in; samples keep the order they were
// added in.
type Table struct {
	Name string

	samples   []string
	sampleSet map[string]struct{}
	failed    map[string]struct{}

	labels []string
	rows   map[string]map[string]Value
}

// NewTable creates an empty Table.
func NewTable(name string) *Table {
	return &Table{
		Name:      name,
		samples:   make([]string, 0, 16),
		sampleSet: make(map[string]struct{}, 16),
		failed:    make(map[string]struct{}),
		labels:    make([]string, 0, 1024),
		rows:      make(map[string]map[string]Value, 1024),
	}
}

func (t *Table) addSample(sample string) error {
	if _, ok := t.sampleSet[sample]; ok {
		return errors.Wrapf(ErrDuplicateSample, "%s: %s", t.Name, sample)
	}
	t.sampleSet[sample] = struct{}{}
	t.samples = append(t.samples, sample)
	return nil
}

// Add records the column of a sample. New labels are appended in
// lexicographic order.
func (t *Table) Add(sample string, col Column) error {
	if err := t.addSample(sample); err != nil {
		return err
	}

	labels := make([]string, 0, len(col))
	for label := range col {
		labels = append(labels, label)
	}
	sortStrings(labels)

	var row map[string]Value
	var ok bool
	for _, label := range labels {
		if row, ok = t.rows[label]; !ok {
			row = make(map[string]Value, len(t.samples))
			t.rows[label] = row
			t.labels = append(t.labels, label)
		}
		row[sample] = col[label]
	}
	return nil
}

// AddFailed records a sample whose values could not be computed at all.
// All of its cells are Undefined.
func (t *Table) AddFailed(sample string) error {
	if err := t.addSample(sample); err != nil {
		return err
	}
	t.failed[sample] = struct{}{}
	return nil
}

// Samples returns the samples in the order they were added.
func (t *Table) Samples() []string { return t.samples }

// Labels returns the labels in the order they were first seen.
func (t *Table) Labels() []string { return t.labels }

// Get returns the value of a label in a sample. ok is false if the label
// was not seen in the sample.
func (t *Table) Get(label, sample string) (v Value, ok bool) {
	if _, failed := t.failed[sample]; failed {
		return Undefined, true
	}
	v, ok = t.rows[label][sample]
	return v, ok
}

// Column returns the values recorded for a sample.
func (t *Table) Column(sample string) Column {
	col := make(Column, 64)
	for _, label := range t.labels {
		if v, ok := t.rows[label][sample]; ok {
			col[label] = v
		}
	}
	return col
}

func (t *Table) String() string {
	return fmt.Sprintf("%s: %d labels x %d samples", t.Name, len(t.labels), len(t.samples))
}
