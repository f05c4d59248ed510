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
	"bufio"
	"io"

	"github.com/twotwotwo/sorts/sortutil"
)

// MatrixOptions controls how a Table is written.
type MatrixOptions struct {
	// RowName is the header of the label column. Default: "function".
	RowName string

	// Samples are the columns to write, in order. Default: Table.Samples().
	Samples []string

	// Precision is the number of digits after the decimal point, -1 for
	// the shortest exact representation.
	Precision int

	// ExtraName and Extra add a column after the label column.
	ExtraName string
	Extra     map[string]string
}

// DefaultMatrixOptions writes RPKG matrices.
var DefaultMatrixOptions = MatrixOptions{RowName: "function", Precision: 6}

// WriteMatrix writes a tab-delimited label x sample matrix. Every label of
// the table gets a row. Labels absent in a sample are written as 0,
// undefined values as NA.
func WriteMatrix(w io.Writer, t *Table, opt MatrixOptions) error {
	if opt.RowName == "" {
		opt.RowName = DefaultMatrixOptions.RowName
	}
	samples := opt.Samples
	if samples == nil {
		samples = t.Samples()
	}
	extra := opt.ExtraName != ""

	bw := bufio.NewWriter(w)

	bw.WriteString(opt.RowName)
	if extra {
		bw.WriteByte('\t')
		bw.WriteString(opt.ExtraName)
	}
	for _, sample := range samples {
		bw.WriteByte('\t')
		bw.WriteString(sample)
	}
	bw.WriteByte('\n')

	var v Value
	var ok bool
	for _, label := range t.Labels() {
		bw.WriteString(label)
		if extra {
			bw.WriteByte('\t')
			bw.WriteString(opt.Extra[label])
		}
		for _, sample := range samples {
			bw.WriteByte('\t')
			if v, ok = t.Get(label, sample); !ok {
				bw.WriteByte('0')
				continue
			}
			bw.WriteString(v.Format(opt.Precision))
		}
		bw.WriteByte('\n')
	}

	return bw.Flush()
}

func sortStrings(s []string) {
	sortutil.Strings(s)
}
