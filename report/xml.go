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

package report

import (
	"encoding/xml"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/thediveo/procov/coverage"
)

type xmlCoverage struct {
	XMLName         xml.Name     `xml:"coverage"`
	LineRate        string       `xml:"line-rate,attr"`
	BranchRate      string       `xml:"branch-rate,attr"`
	LinesCovered    int          `xml:"lines-covered,attr"`
	LinesValid      int          `xml:"lines-valid,attr"`
	BranchesCovered int          `xml:"branches-covered,attr"`
	BranchesValid   int          `xml:"branches-valid,attr"`
	Complexity      int          `xml:"complexity,attr"`
	Version         string       `xml:"version,attr"`
	Timestamp       int64        `xml:"timestamp,attr"`
	Sources         []string     `xml:"sources>source"`
	Packages        []xmlPackage `xml:"packages>package"`
}

type xmlPackage struct {
	Name       string     `xml:"name,attr"`
	LineRate   string     `xml:"line-rate,attr"`
	BranchRate string     `xml:"branch-rate,attr"`
	Complexity int        `xml:"complexity,attr"`
	Classes    []xmlClass `xml:"classes>class"`
}

type xmlClass struct {
	Name       string    `xml:"name,attr"`
	Filename   string    `xml:"filename,attr"`
	LineRate   string    `xml:"line-rate,attr"`
	BranchRate string    `xml:"branch-rate,attr"`
	Complexity int       `xml:"complexity,attr"`
	Methods    struct{}  `xml:"methods"`
	Lines      []xmlLine `xml:"lines>line"`
}

type xmlLine struct {
	Number int `xml:"number,attr"`
	Hits   int `xml:"hits,attr"`
}

// writeXML writes the report as a Cobertura-style XML document to path.
func writeXML(path string, rep *coverage.Report, root string) error {
	doc := xmlCoverage{
		LineRate:     rate(rep.Statements, rep.Missed),
		BranchRate:   "0",
		LinesCovered: rep.Statements - rep.Missed,
		LinesValid:   rep.Statements,
		Version:      "procov",
		Timestamp:    time.Now().UnixMilli(),
		Sources:      []string{root},
	}
	packages := map[string]*xmlPackage{}
	stats := map[string][2]int{}
	for _, f := range rep.Files {
		name := displayName(f.Name, root)
		dir := filepath.ToSlash(filepath.Dir(name))
		pkg, ok := packages[dir]
		if !ok {
			pkg = &xmlPackage{Name: dir, BranchRate: "0"}
			packages[dir] = pkg
		}
		class := xmlClass{
			Name:       filepath.Base(name),
			Filename:   filepath.ToSlash(name),
			LineRate:   rate(f.Statements, f.Missed),
			BranchRate: "0",
		}
		missing := coverage.NewLineSet(f.Missing...)
		for _, line := range f.Lines() {
			hits := 1
			if missing.Has(line) {
				hits = 0
			}
			class.Lines = append(class.Lines, xmlLine{Number: line, Hits: hits})
		}
		pkg.Classes = append(pkg.Classes, class)
		s := stats[dir]
		stats[dir] = [2]int{s[0] + f.Statements, s[1] + f.Missed}
	}
	dirs := make([]string, 0, len(packages))
	for dir := range packages {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		pkg := packages[dir]
		pkg.LineRate = rate(stats[dir][0], stats[dir][1])
		doc.Packages = append(doc.Packages, *pkg)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "cannot create XML report directory for %q", path)
	}
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "cannot write XML report")
	}
	defer out.Close()
	if _, err := out.WriteString(xml.Header); err != nil {
		return errors.Wrap(err, "cannot write XML report")
	}
	enc := xml.NewEncoder(out)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "cannot write XML report")
	}
	return errors.Wrap(out.Close(), "cannot write XML report")
}

// rate returns the covered fraction, as a string with up to four decimals.
func rate(statements, missed int) string {
	if statements == 0 {
		return "1"
	}
	r := float64(statements-missed) / float64(statements)
	return strconv.FormatFloat(math.Round(r*10000)/10000, 'f', -1, 64)
}
