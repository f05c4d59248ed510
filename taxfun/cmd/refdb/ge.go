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
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/xopen"
)

// GenomeEquivalents maps a sample tag to its number of genome equivalents,
// as estimated by tools like MicrobeCensus.
type GenomeEquivalents map[string]float64

// Get returns the genome equivalents of a sample.
func (g GenomeEquivalents) Get(sample string) (float64, bool) {
	ge, ok := g[sample]
	return ge, ok
}

// FallbackGenomeEquivalents approximates genome equivalents of a sample by
// its number of reads annotated with both a taxon and a function, in
// millions. It is only used when no estimate is available for a sample.
func FallbackGenomeEquivalents(numAnd int) float64 {
	return float64(numAnd) / 1e6
}

// LoadGenomeEquivalents reads genome equivalents per sample. Two layouts
// are accepted: a summary table with the sample tag in column 1 and the
// genome equivalents in column 4 (header starting with "SampleTag"), or a
// two-column table of sample tag and genome equivalents.
func LoadGenomeEquivalents(file string) (GenomeEquivalents, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	defer fh.Close()

	ges := make(GenomeEquivalents, 64)
	var line, sample string
	var ge float64
	var ok bool
	var lineNum int
	for {
		line, err = fh.ReadString('\n')
		if line != "" {
			lineNum++
			sample, ge, ok, err = parseGenomeEquivalentsLine(line, lineNum)
			if err != nil {
				return nil, errors.Wrap(err, file)
			}
			if ok {
				ges[sample] = ge
			}
			continue
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, file)
		}
	}
	return ges, nil
}

func parseGenomeEquivalentsLine(line string, lineNum int) (string, float64, bool, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || line[0] == '#' {
		return "", 0, false, nil
	}
	items := strings.Split(line, "\t")
	if items[0] == "SampleTag" {
		return "", 0, false, nil
	}

	var col int
	switch {
	case len(items) >= 4:
		col = 3
	case len(items) == 2:
		col = 1
	default:
		return "", 0, false, fmt.Errorf("invalid genome equivalents line %d: %s", lineNum, line)
	}

	ge, err := strconv.ParseFloat(strings.TrimSpace(items[col]), 64)
	if err != nil {
		if lineNum == 1 { // other header
			return "", 0, false, nil
		}
		return "", 0, false, fmt.Errorf("invalid genome equivalents at line %d: %s", lineNum, items[col])
	}
	if ge < 0 || math.IsInf(ge, 0) || math.IsNaN(ge) {
		return "", 0, false, fmt.Errorf("invalid genome equivalents at line %d: %s", lineNum, items[col])
	}
	return items[0], ge, true, nil
}
