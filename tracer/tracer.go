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
	"github.com/pkg/errors"

	"github.com/thediveo/procov/coverage"
)

// Tracer records which lines of which source files get executed in the
// current process. Tracers are started and stopped exactly once by their
// owning session.
type Tracer interface {
	// Start activates tracing.
	Start() error
	// Stop deactivates tracing and returns the hit data gathered so far.
	Stop() (*coverage.Data, error)
}

// Names of the available tracers, as used in configurations.
const (
	RecorderName     = "recorder"
	CoverProfileName = "coverprofile"
	CoverDirName     = "coverdir"
)

// Options configure the tracer created by New.
type Options struct {
	Branch   bool     // record taken branches, where supported.
	Sources  []string // source roots, used to resolve profile source names.
	CoverDir string   // per-process dump directory of the coverdir tracer.
}

// New returns a new tracer of the specified name; an empty name defaults to
// the coverprofile tracer.
func New(name string, opts Options) (Tracer, error) {
	switch name {
	case RecorderName:
		return NewRecorder(opts.Branch), nil
	case "", CoverProfileName, CoverDirName:
		resolver, err := NewModuleResolver(opts.Sources...)
		if err != nil {
			return nil, err
		}
		if name != CoverDirName {
			return &CoverProfile{Resolve: resolver.Resolve}, nil
		}
		return &CoverDir{Dir: opts.CoverDir, Resolve: resolver.Resolve}, nil
	}
	return nil, errors.Errorf("unknown tracer %q", name)
}
