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

// Package refdb loads the reference data shared by all samples of a run:
// gene lengths, gene-to-EC candidates and genome equivalents.
package refdb

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/shenwei356/util/pathutil"
	"gopkg.in/yaml.v2"
)

// DBInfoFile describes the files of a reference database directory.
const DBInfoFile = "__db.yml"

// Default table names used when a directory has no DBInfoFile.
const (
	DefaultGeneLengthFile = "gene-length.tsv.gz"
	DefaultECMapFile      = "ec-map.tsv.gz"
)

// ErrVersionMismatch indicates mismatched version
var ErrVersionMismatch = errors.New("taxfun/refdb: version mismatch")

// DBVersion is the version of the database layout.
const DBVersion uint8 = 1

// Info is the meta data of a reference database.
type Info struct {
	Version        uint8  `yaml:"version"`
	Alias          string `yaml:"alias"`
	GeneLengthFile string `yaml:"gene-length"`
	ECMapFile      string `yaml:"ec-map"`

	NumGenes   int `yaml:"genes,omitempty"`
	NumECGenes int `yaml:"ec-genes,omitempty"`
	NumECs     int `yaml:"ecs,omitempty"`

	path string
}

func (i Info) String() string {
	return fmt.Sprintf("taxfun database (v%d): %s, gene lengths: %s, EC map: %s",
		i.Version, i.Alias, i.GeneLengthFile, i.ECMapFile)
}

// NewInfo returns the Info of a directory without DBInfoFile.
func NewInfo(dir string) Info {
	return Info{
		Version:        DBVersion,
		Alias:          filepath.Base(filepath.Clean(dir)),
		GeneLengthFile: DefaultGeneLengthFile,
		ECMapFile:      DefaultECMapFile,
		path:           dir,
	}
}

// InfoFromFile reads Info from a DBInfoFile.
func InfoFromFile(file string) (Info, error) {
	info := Info{}

	r, err := os.Open(file)
	if err != nil {
		return info, fmt.Errorf("fail to open taxfun database info file: %s", file)
	}
	defer r.Close()

	data, err := ioutil.ReadAll(r)
	if err != nil {
		return info, fmt.Errorf("fail to read taxfun database info file: %s", file)
	}

	err = yaml.Unmarshal(data, &info)
	if err != nil {
		return info, errors.Wrapf(err, "fail to unmarshal taxfun database info: %s", file)
	}

	if info.Version != DBVersion {
		return info, ErrVersionMismatch
	}

	p, _ := filepath.Abs(file)
	info.path = filepath.Dir(p)
	if info.GeneLengthFile == "" {
		info.GeneLengthFile = DefaultGeneLengthFile
	}
	if info.ECMapFile == "" {
		info.ECMapFile = DefaultECMapFile
	}

	return info, nil
}

// WriteTo dumps Info to file.
func (i Info) WriteTo(file string) (int, error) {
	data, err := yaml.Marshal(i)
	if err != nil {
		return 0, fmt.Errorf("fail to marshal database info")
	}

	dir := filepath.Dir(file)
	dirExisted, err := pathutil.DirExists(dir)
	if err != nil {
		return 0, fmt.Errorf("fail to write taxfun database info file: %s", file)
	}
	if !dirExisted {
		err = os.MkdirAll(dir, 0755)
		if err != nil {
			return 0, fmt.Errorf("fail to write taxfun database info file: %s", file)
		}
	}

	w, err := os.Create(file)
	if err != nil {
		return 0, fmt.Errorf("fail to write taxfun database info file: %s", file)
	}
	defer w.Close()

	n, err := w.Write(data)
	if err != nil {
		return 0, fmt.Errorf("fail to write taxfun database info file: %s", file)
	}
	return n, nil
}

// Path returns the path of a database file.
func (i Info) Path(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(i.path, file)
}

// Dir returns the database directory.
func (i Info) Dir() string { return i.path }

// Check checks if all table files exist.
func (i Info) Check() error {
	for _, file := range []string{i.GeneLengthFile, i.ECMapFile} {
		file = i.Path(file)
		ok, err := pathutil.Exists(file)
		if err != nil {
			return fmt.Errorf("error on checking taxfun database file: %s: %s", file, err)
		}
		if !ok {
			return fmt.Errorf("taxfun database file missing: %s", file)
		}
	}
	return nil
}
