// Copyright 2020 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/thediveo/procov/coverage"
)

// Profile represents Go coverage profile data, as written by "go test
// -coverprofile" or "go tool covdata textfmt".
type Profile struct {
	// Mode of coverage profile: "atomic", "count", or "set".
	Mode string
	// Sources with block coverage data, indexed by source file name.
	Sources map[string]*ProfileSource
}

// NewProfile returns a new and correctly initialized Profile.
func NewProfile() *Profile {
	return &Profile{
		Sources: map[string]*ProfileSource{},
	}
}

// ProfileSource represents the coverage blocks of a single source file.
type ProfileSource struct {
	Blocks []ProfileBlock // coverage blocks per source file.
}

// profileBlockByStart is a type alias for sorting slices of ProfileBlocks.
type profileBlockByStart []ProfileBlock

func (b profileBlockByStart) Len() int      { return len(b) }
func (b profileBlockByStart) Swap(i, j int) { b[i], b[j] = b[j], b[i] }
func (b profileBlockByStart) Less(i, j int) bool {
	bi, bj := b[i], b[j]
	return bi.StartLine < bj.StartLine ||
		(bi.StartLine == bj.StartLine && bi.StartCol < bj.StartCol)
}

// ProfileBlock represents a single block of coverage profiling data.
type ProfileBlock struct {
	StartLine uint32 // line number for block start.
	StartCol  uint16 // column number for block start.
	EndLine   uint32 // line number for block end.
	EndCol    uint16 // column number for block end.
	NumStmts  uint16 // number of statements included in this block.
	Counts    uint32 // number of times this block was executed.
}

// modeRe specifies the format of the first "mode:" text line of a coverage
// profile data file.
var modeRe = regexp.MustCompile(`^mode: ([[:alpha:]]+)$`)

// lineRe specifies the format of the block text lines in coverage profile
// data files.
var lineRe = regexp.MustCompile(`^(.+):([0-9]+).([0-9]+),([0-9]+).([0-9]+) ([0-9]+) ([0-9]+)$`)

// ReadProfileFile reads coverage profile data from the file specified in
// path. A non-existing file yields an empty Profile instead of an error, as
// this is the case of a process that never wrote its coverage profile.
func ReadProfileFile(path string) (*Profile, error) {
	cpf, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewProfile(), nil
		}
		return nil, errors.Wrapf(err, "unable to read coverage profile %q", path)
	}
	defer cpf.Close()
	cp, err := ReadProfile(cpf)
	if err != nil {
		return nil, errors.Wrapf(err, "coverage profile %q", path)
	}
	return cp, nil
}

// ReadProfile reads coverage profile data from r. Empty data yields an
// empty Profile.
func ReadProfile(r io.Reader) (*Profile, error) {
	cp := NewProfile()
	scan := bufio.NewScanner(r)
	if !scan.Scan() {
		return cp, scan.Err()
	}
	// The first line of a coverage profile data file is the mode how
	// coverage data was gathered; either "atomic", "count", or "set".
	line := scan.Text()
	m := modeRe.FindStringSubmatch(line)
	if m == nil {
		return nil, errors.Errorf(
			"line %q doesn't match expected mode: line format", line)
	}
	cp.Mode = m[1]
	// The remaining lines contain coverage profile block data. Go writes the
	// block data for the same source file continuously, but unsorted; and
	// "go tool covdata" may scatter it, so we always look up the source.
	var srcname string
	var source *ProfileSource
	for scan.Scan() {
		line = scan.Text()
		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			return nil, errors.Errorf(
				"line %q doesn't match expected block line format", line)
		}
		if m[1] != srcname {
			srcname = m[1]
			var ok bool
			if source, ok = cp.Sources[srcname]; !ok {
				source = &ProfileSource{}
				cp.Sources[srcname] = source
			}
		}
		block := ProfileBlock{}
		var errs [6]error
		block.StartLine, errs[0] = toUint32(m[2])
		block.StartCol, errs[1] = toUint16(m[3])
		block.EndLine, errs[2] = toUint32(m[4])
		block.EndCol, errs[3] = toUint16(m[5])
		block.NumStmts, errs[4] = toUint16(m[6])
		block.Counts, errs[5] = toUint32(m[7])
		for _, err := range errs {
			if err != nil {
				return nil, errors.Wrapf(err, "line %q", line)
			}
		}
		source.Blocks = append(source.Blocks, block)
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return cp, nil
}

// Merge merges the coverage profile data in cp into this Profile. Both
// profiles must have been gathered using the same mode. In mode "set" the
// block counts get or'ed, otherwise they get summed up.
func (sum *Profile) Merge(cp *Profile) error {
	if cp.Mode == "" {
		return nil
	}
	if sum.Mode == "" {
		sum.Mode = cp.Mode
	} else if cp.Mode != sum.Mode {
		return errors.Errorf("expected mode %q, got mode %q", sum.Mode, cp.Mode)
	}
	setmode := sum.Mode == "set"
	for srcname, source := range cp.Sources {
		sort.Sort(profileBlockByStart(source.Blocks))
		sumsource, ok := sum.Sources[srcname]
		if !ok {
			sumsource = &ProfileSource{}
			sum.Sources[srcname] = sumsource
		}
		sumblkidx := 0
	NextBlock:
		for _, block := range source.Blocks {
			for sumblkidx < len(sumsource.Blocks) {
				sumblock := &sumsource.Blocks[sumblkidx]
				sumblkidx++ // yes, increment anyway, as no block appears twice.
				if sumblock.StartLine == block.StartLine &&
					sumblock.StartCol == block.StartCol &&
					sumblock.EndLine == block.EndLine &&
					sumblock.EndCol == block.EndCol {
					if setmode {
						sumblock.Counts |= block.Counts
					} else {
						sumblock.Counts += block.Counts
					}
					continue NextBlock
				}
			}
			// Profiles of the same snapshot of sources contain the same
			// blocks, so appending keeps the sorting order.
			sumsource.Blocks = append(sumsource.Blocks, block)
		}
	}
	return nil
}

// Write writes the coverage profile data in Go's text format to w, with
// sources as well as blocks sorted. An empty profile writes nothing.
func (cp *Profile) Write(w io.Writer) error {
	if cp.Mode == "" {
		return nil
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "mode: %s\n", cp.Mode)
	srcnames := make([]string, 0, len(cp.Sources))
	for srcname := range cp.Sources {
		srcnames = append(srcnames, srcname)
	}
	sort.Strings(srcnames)
	for _, srcname := range srcnames {
		blocks := cp.Sources[srcname].Blocks
		sort.Sort(profileBlockByStart(blocks))
		for _, b := range blocks {
			fmt.Fprintf(bw, "%s:%d.%d,%d.%d %d %d\n", srcname,
				b.StartLine, b.StartCol, b.EndLine, b.EndCol, b.NumStmts, b.Counts)
		}
	}
	return bw.Flush()
}

// WriteProfileFile writes the coverage profile data to the file specified
// in path, replacing any existing file.
func WriteProfileFile(path string, cp *Profile) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to write coverage profile %q", path)
	}
	if err := cp.Write(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "unable to write coverage profile %q", path)
	}
	return errors.Wrapf(f.Close(), "unable to write coverage profile %q", path)
}

// MergeProfileFiles merges the coverage profile data files in paths into the
// coverage profile data file sum. Missing files don't contribute anything.
func MergeProfileFiles(sum string, paths ...string) error {
	sumcp, err := ReadProfileFile(sum)
	if err != nil {
		return err
	}
	for _, path := range paths {
		cp, err := ReadProfileFile(path)
		if err != nil {
			return err
		}
		if err := sumcp.Merge(cp); err != nil {
			return errors.Wrapf(err, "cannot merge coverage profile %q", path)
		}
	}
	return WriteProfileFile(sum, sumcp)
}

// Data converts this coverage profile into line hit data: all lines spanned
// by executed blocks are executed lines. Profile source names are mapped to
// file paths using resolve; a nil resolve keeps the names as they are.
func (cp *Profile) Data(resolve func(name string) string) *coverage.Data {
	data := coverage.NewData()
	for srcname, source := range cp.Sources {
		file := srcname
		if resolve != nil {
			file = resolve(srcname)
		}
		lines := data.Touch(file)
		for _, block := range source.Blocks {
			if block.Counts == 0 {
				continue
			}
			for line := block.StartLine; line <= block.EndLine; line++ {
				lines.Add(int(line))
			}
		}
	}
	return data
}

// toUint32 converts a textual int value into its binary uint32
// representation.
func toUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

// toUint16 converts a textual int value into its binary uint16
// representation.
func toUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	return uint16(v), err
}
