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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/taxfun/taxfun/cmd/annot"
	"github.com/shenwei356/taxfun/taxfun/cmd/batch"
	"github.com/shenwei356/taxfun/taxfun/cmd/refdb"
	"github.com/shenwei356/taxfun/taxfun/cmd/rpkg"
	"github.com/shenwei356/util/cliutil"
	"github.com/spf13/cobra"
	prettytable "github.com/tatsushid/go-prettytable"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Generate RPKG matrices of functions and ECs from read annotations",
	Long: `Generate RPKG matrices of functions and ECs from read annotations

Input:
  1. A manifest file (-m/--manifest), tab-delimited, no header, one sample
     per row with 6 columns:
       sample tag, taxonomy file, taxonomy format,
       function file, function format, alignment (m8) file.
     Blank lines are ignored. Lines starting with "#" are skipped with
     a warning, and so are rows without exactly 6 columns. Empty file
     columns fail the sample.
     Or a single sample via --sample, --taxa-file, --taxa-type,
     --func-file, --func-type and --m8-file.
  2. A reference database directory (-d/--db-dir) with a gene length
     table and a gene to EC table, see "taxfun db-info".
  3. Optional genome equivalents of samples (-g/--genome-equivalents),
     a MicrobeCensus-like summary table (sample tag in column 1 and
     genome equivalents in column 4) or a two-column table.

Formats:
  taxonomy: kraken2 (only rows flagged "C" are used), megan
  function: megan, uniref, COG, refseq

Methods:
  1. Only reads annotated with both a taxon and a function are used.
  2. A read is assigned the most frequent EC among all the EC numbers of
     its gene hits. Ties are broken by the lexicographically smallest EC.
  3. Stratified features are named as "feature|taxon".
  4. RPKG = reads / (average gene length / 1000) / genome equivalents,
     where the average gene length of a feature is the mean over its reads
     of each read's mean gene-hit length.
  5. Genome equivalents of samples missing in -g/--genome-equivalents
     are approximated by the number of used reads / 1e6.
  6. With -X/--taxdump, taxon labels with "(taxid N)" are replaced by
     lineages of the ranks in --rank.

Output (prefix: -o/--out-prefix):
  <prefix>-strat-matrix-RPKM.txt           stratified functions
  <prefix>-unstrat-matrix-RPKM.txt         unstratified functions
  <prefix>-strat-matrix-RPKM-withEC.txt    stratified ECs
  <prefix>-unstrat-matrix-RPKM-withEC.txt  unstratified ECs
  <prefix>-mapping-stats.txt               mapping statistics of samples

  Undefined values are written as "NA", features absent in a sample as 0.
  Samples failed to process have "NA" in all rows, and the program exits
  with a non-zero status after writing all outputs.

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

		// ---------------------------------------------------------------
		// flags

		manifestFile := cliutil.GetFlagString(cmd, "manifest")
		dbDir := checkDir(cliutil.GetFlagString(cmd, "db-dir"), "db-dir")
		outPrefix := cliutil.GetFlagString(cmd, "out-prefix")
		gzipped := cliutil.GetFlagBool(cmd, "gzip")
		precision := cliutil.GetFlagInt(cmd, "precision")
		geFile := cliutil.GetFlagString(cmd, "genome-equivalents")
		taxdumpDir := cliutil.GetFlagString(cmd, "taxdump")
		ranks := cliutil.GetFlagStringSlice(cmd, "rank")
		rankPrefixes := cliutil.GetFlagStringSlice(cmd, "rank-prefix")
		separator := cliutil.GetFlagString(cmd, "separator")

		if outPrefix == "" {
			checkError(fmt.Errorf("flag -o/--out-prefix should not be empty"))
		}
		if precision < -1 {
			checkError(fmt.Errorf("value of flag --precision should be >= -1"))
		}

		// ---------------------------------------------------------------
		// samples

		var entries []batch.Entry
		if manifestFile != "" {
			var warnings []error
			entries, warnings, err = batch.ReadManifest(manifestFile)
			checkError(err)
			for _, w := range warnings {
				log.Warning(w)
			}
		} else {
			entries = []batch.Entry{singleSampleEntry(cmd)}
		}
		if len(entries) == 0 {
			checkError(fmt.Errorf("no valid samples given"))
		}
		if opt.Verbose || opt.Log2File {
			log.Infof("%d sample(s) to process", len(entries))
		}

		// ---------------------------------------------------------------
		// reference data

		if opt.Verbose || opt.Log2File {
			log.Infof("loading reference database from: %s", dbDir)
		}
		db, err := refdb.Open(dbDir, opt.NumCPUs)
		checkError(err)
		if opt.Verbose || opt.Log2File {
			log.Infof("  %s genes with lengths, %s genes with %s ECs",
				humanize.Comma(int64(db.Info.NumGenes)),
				humanize.Comma(int64(db.Info.NumECGenes)),
				humanize.Comma(int64(db.Info.NumECs)))
		}

		var ges refdb.GenomeEquivalents
		if geFile != "" {
			ges, err = refdb.LoadGenomeEquivalents(geFile)
			checkError(err)
			if opt.Verbose || opt.Log2File {
				log.Infof("genome equivalents of %d sample(s) loaded from: %s", len(ges), geFile)
			}
		}

		var lineage annot.LineageResolver
		if taxdumpDir != "" {
			taxdb := loadTaxonomy(opt, checkDir(taxdumpDir, "taxdump"))
			lineage, err = newTaxdumpLineage(taxdb, ranks, rankPrefixes, separator)
			checkError(err)
		}

		// ---------------------------------------------------------------
		// processing

		workers, threads := splitWorkers(opt.NumCPUs, len(entries))
		showProgress := opt.Verbose && len(entries) > 1

		bopt := batch.Options{
			Workers:           workers,
			Threads:           threads,
			GenomeEquivalents: ges,
			Lineage:           lineage,
			Verbose:           opt.Log2File || (opt.Verbose && !showProgress),
			Log:               log,
		}

		var pbs *mpb.Progress
		var bar *mpb.Bar
		var chDuration chan time.Duration
		var done chan int
		if showProgress {
			pbs = mpb.New(mpb.WithWidth(79))
			bar = pbs.AddBar(int64(len(entries)),
				mpb.BarStyle("[=>-]<+"),
				mpb.PrependDecorators(
					decor.Name("processing sample: ", decor.WC{W: len("processing sample: "), C: decor.DidentRight}),
					decor.Name("", decor.WCSyncSpaceR),
					decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
				),
				mpb.AppendDecorators(
					decor.EwmaETA(decor.ET_STYLE_GO, 60),
				),
			)

			chDuration = make(chan time.Duration, workers)
			done = make(chan int)
			go func() {
				for t := range chDuration {
					bar.Increment()
					bar.DecoratorEwmaUpdate(t)
				}
				done <- 1
			}()
			bopt.Done = func(t time.Duration) { chDuration <- t }
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if opt.Verbose || opt.Log2File {
			log.Infof("processing %d sample(s) with %d worker(s), %d thread(s) each", len(entries), workers, threads)
		}
		res, err := batch.Run(ctx, entries, db, bopt)

		if showProgress {
			close(chDuration)
			<-done
			if err != nil {
				bar.Abort(false)
			}
			pbs.Wait()
		}
		if err != nil {
			checkError(errors.Wrap(err, "processing aborted"))
		}

		// ---------------------------------------------------------------
		// output

		ext := ""
		if gzipped {
			ext = ".gz"
		}

		mopt := rpkg.DefaultMatrixOptions
		mopt.Precision = precision
		for _, o := range res.Outputs() {
			file := outPrefix + o.Suffix + ext
			checkError(writeFile(file, opt.CompressionLevel, func(w io.Writer) error {
				return rpkg.WriteMatrix(w, o.Table, mopt)
			}))
			if opt.Verbose || opt.Log2File {
				log.Infof("%s saved to: %s", o.Table, file)
			}
		}

		file := outPrefix + batch.SuffixStats + ext
		checkError(writeFile(file, opt.CompressionLevel, func(w io.Writer) error {
			return batch.WriteStats(w, res.Stats)
		}))
		if opt.Verbose || opt.Log2File {
			log.Infof("mapping statistics of %d sample(s) saved to: %s", len(res.Stats), file)
		}

		if opt.Verbose && len(res.Stats) > 0 {
			data, err := summaryTable(res.Stats)
			checkError(err)
			os.Stderr.Write(data)
		}

		if len(res.Failed) > 0 {
			tags := make([]string, len(res.Failed))
			for i, f := range res.Failed {
				tags[i] = f.Tag
			}
			log.Errorf("%d of %d sample(s) failed: %s", len(res.Failed), len(entries), strings.Join(tags, ", "))
			if opt.Log2File {
				fhLog.Close()
			}
			os.Exit(1)
		}
	},
}

func singleSampleEntry(cmd *cobra.Command) batch.Entry {
	taxaFile := cliutil.GetFlagString(cmd, "taxa-file")
	funcFile := cliutil.GetFlagString(cmd, "func-file")
	m8File := cliutil.GetFlagString(cmd, "m8-file")
	if taxaFile == "" || funcFile == "" || m8File == "" {
		checkError(fmt.Errorf("flag -m/--manifest, or flags --taxa-file, --func-file and --m8-file needed"))
	}

	e := batch.NewEntry(cliutil.GetFlagString(cmd, "sample"),
		taxaFile, cliutil.GetFlagString(cmd, "taxa-type"),
		funcFile, cliutil.GetFlagString(cmd, "func-type"),
		m8File)
	checkError(e.Err)
	return e
}

// summaryTable formats mapping statistics as a pretty table.
func summaryTable(stats []*batch.Stats) ([]byte, error) {
	tbl, err := prettytable.NewTable([]prettytable.Column{
		{Header: "sample"},
		{Header: "reads", AlignRight: true},
		{Header: "taxa(%)", AlignRight: true},
		{Header: "func(%)", AlignRight: true},
		{Header: "both(%)", AlignRight: true},
		{Header: "EC(%)", AlignRight: true},
		{Header: "functions", AlignRight: true},
		{Header: "ECs", AlignRight: true},
		{Header: "genome-equivalents", AlignRight: true},
	}...)
	if err != nil {
		return nil, err
	}
	tbl.Separator = "  "

	for _, s := range stats {
		tbl.AddRow(
			s.Sample,
			humanize.Comma(int64(s.TotalReads)),
			fmt.Sprintf("%.2f", s.Percent(s.TaxonomyReads)),
			fmt.Sprintf("%.2f", s.Percent(s.FunctionReads)),
			fmt.Sprintf("%.2f", s.Percent(s.AndReads)),
			fmt.Sprintf("%.2f", s.Percent(s.ECReads)),
			humanize.Comma(int64(s.Functions)),
			humanize.Comma(int64(s.ECs)),
			fmt.Sprintf("%g (%s)", s.GE, s.GESource),
		)
	}
	return tbl.Bytes(), nil
}

func init() {
	RootCmd.AddCommand(profileCmd)

	// input
	profileCmd.Flags().StringP("manifest", "m", "",
		formatFlagUsage(`Tab-delimited manifest file with 6 columns: sample tag, taxonomy file, taxonomy format, function file, function format, alignment (m8) file.`))

	profileCmd.Flags().StringP("sample", "", "sample",
		formatFlagUsage(`Sample tag, for a single sample without -m/--manifest.`))

	profileCmd.Flags().StringP("taxa-file", "", "",
		formatFlagUsage(`Taxonomy annotation file of reads, for a single sample.`))

	profileCmd.Flags().StringP("taxa-type", "", "kraken2",
		formatFlagUsage(`Format of --taxa-file. Available values: kraken2, megan.`))

	profileCmd.Flags().StringP("func-file", "", "",
		formatFlagUsage(`Function annotation file of reads, for a single sample.`))

	profileCmd.Flags().StringP("func-type", "", "megan",
		formatFlagUsage(`Format of --func-file. Available values: megan, uniref, COG, refseq.`))

	profileCmd.Flags().StringP("m8-file", "", "",
		formatFlagUsage(`BLAST-like tabular alignment file of reads against genes, for a single sample.`))

	// reference data
	profileCmd.Flags().StringP("db-dir", "d", "",
		formatFlagUsage(`Reference database directory with a gene length table and a gene to EC table.`))

	profileCmd.Flags().StringP("genome-equivalents", "g", "",
		formatFlagUsage(`Genome equivalents of samples, a MicrobeCensus-like summary table or a two-column table.`))

	// taxonomy
	profileCmd.Flags().StringP("taxdump", "X", "",
		formatFlagUsage(`Directory of NCBI taxonomy dump files: names.dmp, nodes.dmp, optional with merged.dmp and delnodes.dmp. If given, taxon labels are replaced by lineages.`))

	profileCmd.Flags().StringSliceP("rank", "", lineageRanks,
		formatFlagUsage(`Ranks of lineages, used with -X/--taxdump.`))

	profileCmd.Flags().StringSliceP("rank-prefix", "", lineageRankPrefixes,
		formatFlagUsage(`Prefixes of taxon names in the ranks, joined to names with "_", used with -X/--taxdump.`))

	profileCmd.Flags().StringP("separator", "S", ";",
		formatFlagUsage(`Separator of taxon names in lineages, used with -X/--taxdump.`))

	// output
	profileCmd.Flags().StringP("out-prefix", "o", "taxfun",
		formatFlagUsage(`Out file prefix.`))

	profileCmd.Flags().BoolP("gzip", "z", false,
		formatFlagUsage(`Gzip output files.`))

	profileCmd.Flags().IntP("precision", "", 6,
		formatFlagUsage(`Number of digits after the decimal point of RPKG values, -1 for the shortest exact representation.`))

	profileCmd.SetUsageTemplate(usageTemplate("-d <db dir> {-m <manifest> | --taxa-file <file> --func-file <file> --m8-file <file>} [-o <out prefix>]"))
}
