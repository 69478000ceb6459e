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
	"sync"

	"github.com/thediveo/procov/coverage"
)

// Recorder is a Tracer for explicitly instrumented code, which reports each
// executed line by calling Hit (and optionally each taken branch by calling
// Arc). Hits reported while the Recorder is inactive are dropped. Recorder
// is safe for concurrent use.
type Recorder struct {
	branch bool
	mu     sync.Mutex
	active bool
	data   *coverage.Data
}

var _ Tracer = (*Recorder)(nil)

// NewRecorder returns a new inactive Recorder; with branch set, it
// additionally records taken branches.
func NewRecorder(branch bool) *Recorder {
	return &Recorder{
		branch: branch,
		data:   coverage.NewData(),
	}
}

// Start activates recording.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
	return nil
}

// Stop deactivates recording and returns a copy of the recorded hits.
func (r *Recorder) Stop() (*coverage.Data, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	data := coverage.NewData()
	data.Merge(r.data)
	return data, nil
}

// Hit records the specified line of the specified source file as executed.
func (r *Recorder) Hit(file string, line int) {
	file = coverage.AbsPath(file)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		r.data.Hit(file, line)
	}
}

// Touch records the specified source file as measured, even if none of its
// lines get executed.
func (r *Recorder) Touch(file string) {
	file = coverage.AbsPath(file)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		r.data.Touch(file)
	}
}

// Arc records a taken branch, if branch recording has been enabled.
func (r *Recorder) Arc(file string, from, to int) {
	if !r.branch {
		return
	}
	file = coverage.AbsPath(file)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		r.data.Arc(file, from, to)
	}
}
