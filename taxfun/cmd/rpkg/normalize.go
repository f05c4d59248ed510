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

// Package rpkg normalizes read counts of labels into reads per kilobase
// per genome equivalent (RPKG) and lays them out as label x sample matrices.
package rpkg

import (
	"math"
	"strconv"
	"strings"

	"github.com/shenwei356/taxfun/taxfun/cmd/annot"
	"gonum.org/v1/gonum/stat"
)

// Value is a normalized abundance. The zero Value is undefined.
type Value struct {
	RPKG    float64
	Defined bool
}

// Undefined is the value of a label whose RPKG can not be computed.
var Undefined = Value{}

// Of wraps a finite RPKG; NaN and infinities give Undefined.
func Of(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined
	}
	return Value{RPKG: v, Defined: true}
}

// NA is written for undefined values.
const NA = "NA"

// Format formats a value with prec digits after the decimal point,
// or the shortest exact representation for a negative prec.
// Nonzero values that would round to zero are written in %g form
// with prec significant digits, so only a true zero reads as "0".
func (v Value) Format(prec int) string {
	if !v.Defined {
		return NA
	}
	if v.RPKG == 0 {
		return "0"
	}
	s := strconv.FormatFloat(v.RPKG, 'f', prec, 64)
	if strings.Trim(s, "-0.") == "" {
		if prec < 1 {
			prec = 1
		}
		return strconv.FormatFloat(v.RPKG, 'g', prec, 64)
	}
	return s
}

func (v Value) String() string { return v.Format(-1) }

// LengthLookup returns the length in bases of a gene/target.
type LengthLookup interface {
	Length(gene string) (float64, bool)
}

// Column holds the values of one sample.
type Column map[string]Value

// Normalize computes RPKG for every label of idx:
//
//	RPKG = reads / (average gene length / 1000) / GE
//
// The average gene length of a label is the mean over its reads of each
// read's mean hit length. Genes without a known length are ignored, as are
// reads with no known gene length. Labels get Undefined when the average
// length or ge is zero.
func Normalize(idx annot.Index, hits annot.GeneHits, lengths LengthLookup, ge float64) Column {
	col := make(Column, len(idx))

	readLens := make([]float64, 0, 1024)
	geneLens := make([]float64, 0, 16)
	var l float64
	var ok bool
	for label, reads := range idx {
		readLens = readLens[:0]
		for _, read := range reads {
			geneLens = geneLens[:0]
			for _, gene := range hits[read] {
				if l, ok = lengths.Length(gene); ok {
					geneLens = append(geneLens, l)
				}
			}
			if len(geneLens) == 0 {
				continue
			}
			readLens = append(readLens, stat.Mean(geneLens, nil))
		}

		col[label] = Compute(len(reads), readLens, ge)
	}
	return col
}

// Compute returns the RPKG of numReads reads whose average gene lengths
// are readLens. It is Undefined unless ge is positive and finite.
func Compute(numReads int, readLens []float64, ge float64) Value {
	if numReads == 0 || len(readLens) == 0 {
		return Undefined
	}
	lengthKb := stat.Mean(readLens, nil) / 1000
	if lengthKb == 0 || !(ge > 0) || math.IsInf(ge, 0) {
		return Undefined
	}
	return Of(float64(numReads) / lengthKb / ge)
}
