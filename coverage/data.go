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
	"sort"
)

// LineSet is a set of (1-based) line numbers.
type LineSet map[int]struct{}

// NewLineSet returns a new LineSet containing the specified lines.
func NewLineSet(lines ...int) LineSet {
	ls := LineSet{}
	for _, line := range lines {
		ls[line] = struct{}{}
	}
	return ls
}

// Add adds the specified line to this set.
func (ls LineSet) Add(line int) { ls[line] = struct{}{} }

// Has returns true if the specified line is in this set.
func (ls LineSet) Has(line int) bool {
	_, ok := ls[line]
	return ok
}

// Union adds all lines of other to this set.
func (ls LineSet) Union(other LineSet) {
	for line := range other {
		ls[line] = struct{}{}
	}
}

// Sorted returns the lines of this set in ascending order.
func (ls LineSet) Sorted() []int {
	lines := make([]int, 0, len(ls))
	for line := range ls {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// Arc is a branch taken from one line to another line.
type Arc struct {
	From int
	To   int
}

// ArcSet is a set of taken branches.
type ArcSet map[Arc]struct{}

// Sorted returns the arcs of this set ordered by their from and then to
// lines.
func (as ArcSet) Sorted() []Arc {
	arcs := make([]Arc, 0, len(as))
	for arc := range as {
		arcs = append(arcs, arc)
	}
	sort.Slice(arcs, func(i, j int) bool {
		return arcs[i].From < arcs[j].From ||
			(arcs[i].From == arcs[j].From && arcs[i].To < arcs[j].To)
	})
	return arcs
}

// Data is the hit data gathered by a single session, or merged from several
// sessions: the executed lines per source file, and optionally the taken
// branches per source file. A source file that is present with an empty line
// set has been measured, but none of its lines were executed.
type Data struct {
	Lines map[string]LineSet
	Arcs  map[string]ArcSet
}

// NewData returns a new and correctly initialized (empty) Data.
func NewData() *Data {
	return &Data{
		Lines: map[string]LineSet{},
		Arcs:  map[string]ArcSet{},
	}
}

// Touch marks the specified file as measured, without adding any executed
// lines.
func (d *Data) Touch(file string) LineSet {
	ls, ok := d.Lines[file]
	if !ok {
		ls = LineSet{}
		d.Lines[file] = ls
	}
	return ls
}

// Hit records the specified line of a file as executed.
func (d *Data) Hit(file string, line int) {
	d.Touch(file).Add(line)
}

// Arc records a taken branch in the specified file.
func (d *Data) Arc(file string, from, to int) {
	d.Touch(file)
	as, ok := d.Arcs[file]
	if !ok {
		as = ArcSet{}
		d.Arcs[file] = as
	}
	as[Arc{From: from, To: to}] = struct{}{}
}

// Merge unions the other hit data into this hit data. Merging is associative
// and commutative, so the order in which several Data get merged doesn't
// matter.
func (d *Data) Merge(other *Data) {
	if other == nil {
		return
	}
	for file, lines := range other.Lines {
		d.Touch(file).Union(lines)
	}
	for file, arcs := range other.Arcs {
		as, ok := d.Arcs[file]
		if !ok {
			as = ArcSet{}
			d.Arcs[file] = as
		}
		for arc := range arcs {
			as[arc] = struct{}{}
		}
	}
}

// Empty returns true if no lines at all have been executed.
func (d *Data) Empty() bool {
	for _, lines := range d.Lines {
		if len(lines) != 0 {
			return false
		}
	}
	return true
}

// Files returns the measured source files in ascending order.
func (d *Data) Files() []string {
	files := make([]string, 0, len(d.Lines))
	for file := range d.Lines {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}

// Filter returns a copy of this hit data only containing the files for
// which keep returns true.
func (d *Data) Filter(keep func(file string) bool) *Data {
	filtered := NewData()
	for file, lines := range d.Lines {
		if !keep(file) {
			continue
		}
		filtered.Touch(file).Union(lines)
		if arcs, ok := d.Arcs[file]; ok {
			as := ArcSet{}
			for arc := range arcs {
				as[arc] = struct{}{}
			}
			filtered.Arcs[file] = as
		}
	}
	return filtered
}
