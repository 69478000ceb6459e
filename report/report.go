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

// Package report renders the merged coverage model of a coverage run in one
// of several forms: as a terminal table (optionally with the missing line
// ranges), as an HTML page, or as a Cobertura-style XML document.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/thediveo/procov/coverage"
)

// Form of a coverage report.
type Form string

const (
	Term        Form = "term"
	TermMissing Form = "term-missing"
	HTML        Form = "html"
	XML         Form = "xml"
	None        Form = "none"
)

// Forms lists all known report forms.
var Forms = []Form{Term, TermMissing, HTML, XML, None}

// ParseForm returns the report form of the specified name; an empty name is
// the terminal form.
func ParseForm(name string) (Form, error) {
	if name == "" {
		return Term, nil
	}
	for _, form := range Forms {
		if string(form) == name {
			return form, nil
		}
	}
	return "", errors.Errorf("unknown coverage report form %q", name)
}

// EnforcesThreshold returns true if a minimum coverage threshold is to be
// enforced with this report form. For compatibility, the term-missing form
// never enforces thresholds, and the none form has nothing to enforce them
// against.
func (f Form) EnforcesThreshold() bool {
	return f != TermMissing && f != None
}

// Options for rendering a report.
type Options struct {
	Form        Form
	ShowMissing bool   // show missing line ranges also in the term form.
	Dir         string // output directory of the html and xml forms.
	Root        string // file names are shown relative to Root, if inside.
}

// Render renders the coverage model in the form specified in the options to
// w; the html and xml forms additionally write their report files. If there
// are failed workers, only a notice listing them is rendered instead.
func Render(w io.Writer, model *coverage.Model, failedWorkers []string, opts Options) error {
	if len(failedWorkers) > 0 {
		fmt.Fprintln(w, banner("coverage: failed workers"))
		fmt.Fprintln(w, "The following workers failed to return coverage data, ensure that procov is imported in their test binaries.")
		for _, worker := range failedWorkers {
			fmt.Fprintln(w, worker)
		}
		return nil
	}
	if opts.Form == None {
		return nil
	}
	fmt.Fprintln(w, Header())
	rep := model.Report()
	switch opts.Form {
	case "", Term, TermMissing:
		return renderTable(w, rep, opts.Form == TermMissing || opts.ShowMissing, opts.Root)
	case HTML:
		dir := outputDir(opts.Dir, "htmlcov")
		if err := writeHTML(dir, rep, opts.Root); err != nil {
			return err
		}
		fmt.Fprintf(w, "Coverage HTML written to dir %s\n", dir)
	case XML:
		dir := outputDir(opts.Dir, ".")
		path := filepath.Join(dir, "coverage.xml")
		if err := writeXML(path, rep, opts.Root); err != nil {
			return err
		}
		fmt.Fprintf(w, "Coverage XML written to file %s\n", path)
	default:
		return errors.Errorf("unknown coverage report form %q", opts.Form)
	}
	return nil
}

// Header returns the report header line, naming the platform.
func Header() string {
	return banner(fmt.Sprintf("coverage: platform %s/%s, %s",
		runtime.GOOS, runtime.GOARCH, runtime.Version()))
}

func banner(title string) string {
	dashes := strings.Repeat("-", 10)
	return dashes + " " + title + " " + dashes
}

func outputDir(dir, def string) string {
	if dir == "" {
		return def
	}
	return dir
}

// displayName returns the file name relative to root, if inside root.
func displayName(name, root string) string {
	if root == "" {
		return name
	}
	rel, err := filepath.Rel(root, name)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return name
	}
	return rel
}

// displayPercent rounds the percentage to an integer for display, never
// showing 0% for some coverage and never showing 100% for incomplete
// coverage.
func displayPercent(percent float64) string {
	var pc int
	switch {
	case percent > 0 && percent < 1:
		pc = 1
	case percent > 99 && percent < 100:
		pc = 99
	default:
		pc = int(percent + 0.5)
	}
	return fmt.Sprintf("%d%%", pc)
}
