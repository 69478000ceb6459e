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

package coverage

import (
	"fmt"
	"sort"
	"strings"
)

// Model is the aggregated coverage of a whole test run, indexed by
// normalized source file path.
type Model struct {
	Files map[string]*File
}

// File is the aggregated coverage of a single source file: the union of
// the executed lines over all contributing sessions, and the statement lines
// as determined by static analysis with exclusion rules already applied.
type File struct {
	Executed   LineSet
	Statements LineSet
	Arcs       ArcSet
}

// NewModel returns a new and empty Model.
func NewModel() *Model {
	return &Model{Files: map[string]*File{}}
}

// Empty returns true if the model doesn't contain any source file.
func (m *Model) Empty() bool { return len(m.Files) == 0 }

// Names returns the source file paths of this model in ascending order.
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.Files))
	for name := range m.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FileReport is the derived coverage summary of a single source file.
type FileReport struct {
	Name       string // source file path.
	Statements int    // number of statements.
	Missed     int    // number of statements never executed.
	Missing    []int  // the never executed statement lines, ascending.
	Branches   int    // number of distinct taken branches.
	statements []int
}

// Percent returns the percentage of covered statements. A file without any
// statements counts as fully covered.
func (f *FileReport) Percent() float64 {
	return percent(f.Statements, f.Missed)
}

// Lines returns the statement lines in ascending order.
func (f *FileReport) Lines() []int { return f.statements }

// MissingRanges returns the missing lines as a compact list of ranges, such
// as "3-5, 9". Missing statements separated only by non-statement lines are
// joined into the same range.
func (f *FileReport) MissingRanges() string {
	return Ranges(f.statements, f.Missing)
}

// Report is the derived read-only coverage summary of a Model.
type Report struct {
	Files      []*FileReport // per file, ordered by name.
	Statements int           // total number of statements.
	Missed     int           // total number of missed statements.
}

// Empty returns true if the report doesn't cover any file at all. This is
// different from a report covering files that have no statements.
func (r *Report) Empty() bool { return len(r.Files) == 0 }

// Percent returns the total percentage of covered statements.
func (r *Report) Percent() float64 {
	return percent(r.Statements, r.Missed)
}

// Report derives the coverage report from this model.
func (m *Model) Report() *Report {
	rep := &Report{}
	for _, name := range m.Names() {
		f := m.Files[name]
		fr := &FileReport{
			Name:       name,
			statements: f.Statements.Sorted(),
			Branches:   len(f.Arcs),
		}
		fr.Statements = len(fr.statements)
		for _, line := range fr.statements {
			if !f.Executed.Has(line) {
				fr.Missing = append(fr.Missing, line)
			}
		}
		fr.Missed = len(fr.Missing)
		rep.Files = append(rep.Files, fr)
		rep.Statements += fr.Statements
		rep.Missed += fr.Missed
	}
	return rep
}

func percent(statements, missed int) float64 {
	if statements == 0 {
		return 100
	}
	return float64(statements-missed) / float64(statements) * 100
}

// Ranges formats the missing lines as ranges over the statement lines; both
// slices must be sorted in ascending order.
func Ranges(statements, missing []int) string {
	var parts []string
	start, end := -1, -1
	mi := 0
	flush := func() {
		if start < 0 {
			return
		}
		if start == end {
			parts = append(parts, fmt.Sprintf("%d", start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, end))
		}
		start, end = -1, -1
	}
	for _, line := range statements {
		if mi < len(missing) && missing[mi] == line {
			if start < 0 {
				start = line
			}
			end = line
			mi++
			continue
		}
		flush()
	}
	flush()
	return strings.Join(parts, ", ")
}
