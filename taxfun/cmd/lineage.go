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

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/taxfun/taxfun/cmd/annot"
	"github.com/shenwei356/taxfun/taxfun/cmd/rpkg"
	"github.com/shenwei356/util/cliutil"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
)

var lineageCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Count reads of taxonomic lineages from kraken2 results",
	Long: `Count reads of taxonomic lineages from kraken2 results

Classified reads (flagged "C") are assigned to lineages of their TaxIds
(from "(taxid N)" in labels, or bare TaxIds), with names of ranks in --rank
prefixed with --rank-prefix, e.g., "p__Firmicutes;c__Bacilli;...".
Missing ranks are named as "NA", and TaxId 0 is treated as the root.
Reads with TaxIds not found in the taxonomy data are skipped.

Input:
  Kraken2 result files from positional arguments or -i/--infile-list,
  with sample tags from file names, and/or a tab-delimited two-column
  list file (-l/--list) of sample tags and files.

Output:
  A tab-delimited lineage x sample count matrix, with an extra column
  of the smallest TaxId of each lineage.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}

		timeStart := time.Now()
		defer func() {
			if opt.Verbose || opt.Log2File {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		var err error

		listFile := cliutil.GetFlagString(cmd, "list")
		outFile := cliutil.GetFlagString(cmd, "out-file")
		taxaType := cliutil.GetFlagString(cmd, "taxa-type")
		taxdumpDir := checkDir(cliutil.GetFlagString(cmd, "taxdump"), "taxdump")
		ranks := cliutil.GetFlagStringSlice(cmd, "rank")
		rankPrefixes := cliutil.GetFlagStringSlice(cmd, "rank-prefix")
		separator := cliutil.GetFlagString(cmd, "separator")

		format, err := annot.ParseFormat(annot.Taxonomy, taxaType)
		checkError(err)

		// ---------------------------------------------------------------
		// samples

		var samples []sampleFile
		if len(args) > 0 || cliutil.GetFlagString(cmd, "infile-list") != "" {
			for _, file := range getFileListFromArgsAndFile(cmd, args, true, "infile-list", true) {
				if isStdin(file) {
					continue
				}
				samples = append(samples, sampleFile{tag: sampleTagFromFile(file), file: file})
			}
		}
		if listFile != "" {
			_samples, err := readSampleFileList(listFile)
			checkError(err)
			samples = append(samples, _samples...)
		}
		if len(samples) == 0 {
			checkError(fmt.Errorf("no input files given"))
		}
		seen := make(map[string]interface{}, len(samples))
		for _, s := range samples {
			if _, ok := seen[s.tag]; ok {
				checkError(fmt.Errorf("duplicated sample tag: %s", s.tag))
			}
			seen[s.tag] = struct{}{}
		}

		taxdb := loadTaxonomy(opt, taxdumpDir)
		resolver, err := newTaxdumpLineage(taxdb, ranks, rankPrefixes, separator)
		checkError(err)

		// ---------------------------------------------------------------
		// counting

		tbl := rpkg.NewTable("lineages")
		ids := make(map[string]uint32, 1024)
		for _, s := range samples {
			if opt.Verbose || opt.Log2File {
				log.Infof("processing sample %s: %s", s.tag, s.file)
			}
			taxa, err := annot.ParseAnnotation(s.file, annot.Taxonomy, format, opt.NumCPUs)
			checkError(err)

			counts, _ids, missed := annot.CountLineages(taxa, resolver)
			if missed > 0 {
				log.Warningf("  %s: %s of %s reads skipped for TaxIds not found",
					s.tag, humanize.Comma(int64(missed)), humanize.Comma(int64(len(taxa))))
			}
			checkError(tbl.Add(s.tag, lineageColumn(counts)))
			mergeLineageIds(ids, _ids)

			if opt.Verbose || opt.Log2File {
				log.Infof("  %s reads assigned to %s lineages",
					humanize.Comma(int64(len(taxa)-missed)), humanize.Comma(int64(len(counts))))
			}
		}

		// ---------------------------------------------------------------
		// output

		extra := make(map[string]string, len(ids))
		for lineage, taxid := range ids {
			extra[lineage] = strconv.Itoa(int(taxid))
		}

		checkError(writeFile(outFile, opt.CompressionLevel, func(w io.Writer) error {
			return rpkg.WriteMatrix(w, tbl, rpkg.MatrixOptions{
				RowName:   "lineage",
				Precision: 0,
				ExtraName: "ID",
				Extra:     extra,
			})
		}))
		if opt.Verbose || opt.Log2File {
			log.Infof("%s saved to: %s", tbl, outFile)
		}
	},
}

type sampleFile struct {
	tag  string
	file string
}

// sampleTagFromFile uses the file name without extensions as sample tag.
func sampleTagFromFile(file string) string {
	base := filepath.Base(file)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

// readSampleFileList reads a tab-delimited two-column list of sample tags
// and files.
func readSampleFileList(file string) ([]sampleFile, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	defer fh.Close()

	samples := make([]sampleFile, 0, 16)
	var line string
	var items []string
	var lineNum int
	for {
		line, err = fh.ReadString('\n')
		if line != "" {
			lineNum++
			line = strings.TrimRight(line, "\r\n")
			if line == "" || line[0] == '#' {
				continue
			}
			items = strings.Split(line, "\t")
			if len(items) < 2 {
				return nil, fmt.Errorf("%s: two columns expected at line %d: %s", file, lineNum, line)
			}
			samples = append(samples, sampleFile{tag: items[0], file: items[1]})
			continue
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, file)
		}
	}
	return samples, nil
}

func lineageColumn(counts map[string]int) rpkg.Column {
	col := make(rpkg.Column, len(counts))
	for lineage, n := range counts {
		col[lineage] = rpkg.Of(float64(n))
	}
	return col
}

// mergeLineageIds keeps the smallest TaxId of each lineage.
func mergeLineageIds(ids, _ids map[string]uint32) {
	var taxid uint32
	var ok bool
	for lineage, _taxid := range _ids {
		if taxid, ok = ids[lineage]; !ok || _taxid < taxid {
			ids[lineage] = _taxid
		}
	}
}

func init() {
	RootCmd.AddCommand(lineageCmd)

	lineageCmd.Flags().StringP("infile-list", "i", "",
		formatFlagUsage(`File of kraken2 result files (one file per line), sample tags are taken from file names.`))

	lineageCmd.Flags().StringP("list", "l", "",
		formatFlagUsage(`Tab-delimited two-column list file of sample tags and kraken2 result files.`))

	lineageCmd.Flags().StringP("taxa-type", "", "kraken2",
		formatFlagUsage(`Format of input files. Available values: kraken2, megan.`))

	lineageCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports and recommends a ".gz" suffix ("-" for stdout).`))

	lineageCmd.Flags().StringP("taxdump", "X", "",
		formatFlagUsage(`Directory of NCBI taxonomy dump files: names.dmp, nodes.dmp, optional with merged.dmp and delnodes.dmp.`))

	lineageCmd.Flags().StringSliceP("rank", "", lineageRanks,
		formatFlagUsage(`Ranks of lineages.`))

	lineageCmd.Flags().StringSliceP("rank-prefix", "", lineageRankPrefixes,
		formatFlagUsage(`Prefixes of taxon names in the ranks, joined to names with "_".`))

	lineageCmd.Flags().StringP("separator", "S", ";",
		formatFlagUsage(`Separator of taxon names in lineages.`))

	lineageCmd.SetUsageTemplate(usageTemplate("-X <taxdump dir> [-l <list file>] [-o <out file>] [<kraken2 files>...]"))
}
