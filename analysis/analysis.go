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

package analysis

import (
	"bufio"
	"bytes"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"regexp"
	"sync"

	"github.com/pkg/errors"

	"github.com/thediveo/procov/coverage"
)

// DefaultExclude is the exclusion rule always in effect: lines carrying a
// "no cover" pragma comment.
const DefaultExclude = `//\s*(pragma|procov):?\s*no\s*cover`

// Analyzer determines the statement lines of Go source files, with
// exclusion rules applied. Analyzer caches its results and is safe for
// concurrent use.
type Analyzer struct {
	exclude []*regexp.Regexp
	mu      sync.Mutex
	cache   map[string]coverage.LineSet
}

// New returns a new Analyzer using the default exclusion rule plus the
// specified exclusion patterns.
func New(patterns ...string) (*Analyzer, error) {
	a := &Analyzer{cache: map[string]coverage.LineSet{}}
	for _, pattern := range append([]string{DefaultExclude}, patterns...) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid exclusion pattern %q", pattern)
		}
		a.exclude = append(a.exclude, re)
	}
	return a, nil
}

// Statements returns the statement lines of the specified Go source file,
// with all excluded lines removed.
func (a *Analyzer) Statements(path string) (coverage.LineSet, error) {
	a.mu.Lock()
	stmts, ok := a.cache[path]
	a.mu.Unlock()
	if ok {
		return stmts, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "no source for %q", path)
	}
	stmts, err = a.statements(path, src)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.cache[path] = stmts
	a.mu.Unlock()
	return stmts, nil
}

// statements parses the source and collects the lines on which statements
// start.
func (a *Analyzer) statements(path string, src []byte) (coverage.LineSet, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot analyze %q", path)
	}
	excluded, err := a.excludedLines(src)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot analyze %q", path)
	}
	stmts := coverage.LineSet{}
	ast.Inspect(f, func(n ast.Node) bool {
		if n == nil {
			return false
		}
		line := fset.Position(n.Pos()).Line
		switch n.(type) {
		case *ast.FuncDecl, *ast.FuncLit:
			// An excluded function signature excludes the whole function.
			return !excluded.Has(line)
		case *ast.BlockStmt, *ast.EmptyStmt, *ast.LabeledStmt:
			return true
		case *ast.CaseClause, *ast.CommClause:
			// Excluding a case excludes its body; the case itself is no
			// statement.
			return !excluded.Has(line)
		case ast.Stmt:
			if excluded.Has(line) {
				return false
			}
			stmts.Add(line)
			return true
		}
		return true
	})
	return stmts, nil
}

// excludedLines returns the set of lines matching any exclusion rule.
func (a *Analyzer) excludedLines(src []byte) (coverage.LineSet, error) {
	excluded := coverage.LineSet{}
	scan := bufio.NewScanner(bytes.NewReader(src))
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scan.Scan() {
		line++
		text := scan.Text()
		for _, re := range a.exclude {
			if re.MatchString(text) {
				excluded.Add(line)
				break
			}
		}
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return excluded, nil
}
