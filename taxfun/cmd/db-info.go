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
	"path/filepath"

	humanize "github.com/dustin/go-humanize"
	"github.com/shenwei356/taxfun/taxfun/cmd/refdb"
	"github.com/shenwei356/util/cliutil"
	"github.com/spf13/cobra"
	prettytable "github.com/tatsushid/go-prettytable"
)

var dbInfoCmd = &cobra.Command{
	Use:   "db-info",
	Short: "Information of a reference database directory",
	Long: `Information of a reference database directory

A reference database directory contains:
  1. A gene length table, tab-delimited: gene ID, gene length.
     Genes with non-positive lengths are ignored.
  2. A gene to EC table, tab-delimited: gene ID, EC numbers separated by
     commas, semicolons or spaces. An optional "EC:" prefix is removed.
  3. An optional description file __db.yml, naming the two tables.
     Without it, gene-length.tsv.gz and ec-map.tsv.gz are used.

Use --save to write the resolved description (with counts) to __db.yml.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		dbDir := checkDir(cliutil.GetFlagString(cmd, "db-dir"), "db-dir")
		save := cliutil.GetFlagBool(cmd, "save")

		if opt.Verbose {
			log.Infof("loading reference database from: %s", dbDir)
		}
		db, err := refdb.Open(dbDir, opt.NumCPUs)
		checkError(err)

		outfh, _, _, err := outStream("-", false, opt.CompressionLevel)
		checkError(err)
		defer outfh.Flush()

		tbl, err := prettytable.NewTable([]prettytable.Column{
			{Header: "alias"},
			{Header: "version", AlignRight: true},
			{Header: "genes", AlignRight: true},
			{Header: "genes-with-ECs", AlignRight: true},
			{Header: "ECs", AlignRight: true},
			{Header: "gene-length-file"},
			{Header: "ec-map-file"},
		}...)
		checkError(err)
		tbl.Separator = "  "

		info := db.Info
		tbl.AddRow(
			info.Alias,
			info.Version,
			humanize.Comma(int64(info.NumGenes)),
			humanize.Comma(int64(info.NumECGenes)),
			humanize.Comma(int64(info.NumECs)),
			info.GeneLengthFile,
			info.ECMapFile,
		)
		outfh.Write(tbl.Bytes())

		if save {
			file := filepath.Join(dbDir, refdb.DBInfoFile)
			_, err = info.WriteTo(file)
			checkError(err)
			if opt.Verbose {
				log.Infof("database info saved to: %s", file)
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(dbInfoCmd)

	dbInfoCmd.Flags().StringP("db-dir", "d", "",
		formatFlagUsage(`Reference database directory.`))

	dbInfoCmd.Flags().BoolP("save", "", false,
		formatFlagUsage(`Save the database info to __db.yml in the database directory.`))

	dbInfoCmd.SetUsageTemplate(usageTemplate("-d <db dir> [--save]"))
}
