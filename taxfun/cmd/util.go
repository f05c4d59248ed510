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
	"runtime"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/shenwei356/util/cliutil"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
	"github.com/twotwotwo/sorts"
)

// Options contains the global flags
type Options struct {
	NumCPUs int
	Verbose bool

	LogFile  string
	Log2File bool

	CompressionLevel int
}

func getOptions(cmd *cobra.Command) *Options {
	threads := cliutil.GetFlagNonNegativeInt(cmd, "threads")
	if threads == 0 {
		threads = runtime.NumCPU()
	}

	sorts.MaxProcs = threads
	runtime.GOMAXPROCS(threads)

	logfile := cliutil.GetFlagString(cmd, "log")
	return &Options{
		NumCPUs: threads,
		Verbose: !cliutil.GetFlagBool(cmd, "quiet"),

		LogFile:  logfile,
		Log2File: logfile != "",

		CompressionLevel: -1,
	}
}

// checkDir expands "~" in a directory given by a flag and checks it exists.
func checkDir(dir string, flag string) string {
	if dir == "" {
		checkError(fmt.Errorf("flag --%s needed", flag))
	}
	dir, err := homedir.Expand(dir)
	checkError(errors.Wrap(err, dir))

	existed, err := pathutil.DirExists(dir)
	checkError(errors.Wrap(err, dir))
	if !existed {
		checkError(fmt.Errorf("directory not found: %s", dir))
	}
	return dir
}

// splitWorkers splits threads to workers processing samples in parallel,
// each using the rest threads for parsing files.
func splitWorkers(threads int, samples int) (workers int, threadsPerWorker int) {
	if threads < 1 {
		threads = 1
	}
	workers = threads
	if samples < workers {
		workers = samples
	}
	if workers < 1 {
		workers = 1
	}
	threadsPerWorker = threads / workers
	if threadsPerWorker < 1 {
		threadsPerWorker = 1
	}
	return workers, threadsPerWorker
}
