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
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/mod/modfile"
)

// ModuleResolver maps the source names found in Go coverage profiles, which
// are of the form "<module path>/<package dir>/<file>.go", to the paths of
// the source files in the file system.
type ModuleResolver struct {
	modules []module // ordered by descending module path length.
}

type module struct {
	path string // module path as declared in go.mod.
	dir  string // absolute module root directory.
}

// NewModuleResolver returns a resolver for the Go modules enclosing the
// specified source roots. Roots not inside any Go module are skipped.
// Without any roots, the module enclosing the working directory is used.
func NewModuleResolver(roots ...string) (*ModuleResolver, error) {
	if len(roots) == 0 {
		roots = []string{"."}
	}
	r := &ModuleResolver{}
	seen := map[string]bool{}
	for _, root := range roots {
		dir, modpath, err := findModule(root)
		if err != nil {
			return nil, err
		}
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		r.modules = append(r.modules, module{path: modpath, dir: dir})
	}
	sort.SliceStable(r.modules, func(i, j int) bool {
		return len(r.modules[i].path) > len(r.modules[j].path)
	})
	return r, nil
}

// Resolve returns the file system path of the specified coverage profile
// source name. Names that already are absolute paths are returned cleaned;
// names of unknown modules are returned unchanged.
func (r *ModuleResolver) Resolve(name string) string {
	// Packages outside any module and GOPATH are named "_/abs/path/file.go".
	if strings.HasPrefix(name, "_/") {
		name = name[1:]
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	for _, mod := range r.modules {
		if rel, ok := strings.CutPrefix(name, mod.path+"/"); ok {
			return filepath.Join(mod.dir, filepath.FromSlash(path.Clean(rel)))
		}
	}
	return name
}

// findModule finds the root directory of the Go module enclosing dir, as
// well as the module's path. If dir isn't inside a Go module, then empty
// strings are returned.
func findModule(dir string) (moduleRoot, modulePath string, err error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	if st, err := os.Stat(abs); err == nil && !st.IsDir() {
		abs = filepath.Dir(abs)
	}
	for {
		gomod := filepath.Join(abs, "go.mod")
		if data, err := os.ReadFile(gomod); err == nil {
			modpath := modfile.ModulePath(data)
			if modpath == "" {
				return "", "", errors.Errorf("no module path in %q", gomod)
			}
			return abs, modpath, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", "", nil
		}
		abs = parent
	}
}
