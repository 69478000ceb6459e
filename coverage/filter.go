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
	"path/filepath"
	"regexp"
	"strings"
)

// FileFilter decides which source files are measured: files must be inside
// one of the source roots (if any) and must not match any of the omit
// patterns.
type FileFilter struct {
	roots []string
	omit  []*regexp.Regexp
}

// NewFileFilter returns a filter for the specified source roots and omit
// patterns. Omit patterns are shell-style patterns where "*" also matches
// path separators; patterns not starting with "*" are relative to the
// current working directory.
func NewFileFilter(sources, omit []string) *FileFilter {
	f := &FileFilter{}
	for _, source := range sources {
		if source == "" {
			continue
		}
		f.roots = append(f.roots, AbsPath(source))
	}
	for _, pattern := range omit {
		if pattern == "" {
			continue
		}
		if !strings.HasPrefix(pattern, "*") && !filepath.IsAbs(pattern) {
			pattern = filepath.Join(AbsPath("."), pattern)
		}
		f.omit = append(f.omit, globRegexp(pattern))
	}
	return f
}

// Keep returns true if the specified file is to be measured.
func (f *FileFilter) Keep(file string) bool {
	if f == nil {
		return true
	}
	if len(f.roots) > 0 {
		inside := false
		for _, root := range f.roots {
			if file == root || strings.HasPrefix(file, root+string(filepath.Separator)) {
				inside = true
				break
			}
		}
		if !inside {
			return false
		}
	}
	for _, re := range f.omit {
		if re.MatchString(file) {
			return false
		}
	}
	return true
}

// AbsPath returns the absolute and cleaned form of path.
func AbsPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// globRegexp translates a shell-style pattern into an anchored regular
// expression.
func globRegexp(pattern string) *regexp.Regexp {
	var re strings.Builder
	re.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			re.WriteString(".*")
		case '?':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	re.WriteString("$")
	return regexp.MustCompile(re.String())
}
