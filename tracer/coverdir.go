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
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	rtcoverage "runtime/coverage"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/thediveo/procov/coverage"
)

// covdataTimeout limits how long converting coverage counters might take.
const covdataTimeout = 30 * time.Second

// CoverDir is a Tracer for binaries built with "go build -cover": when
// stopped, it dumps this process' coverage meta data and counters into its
// own directory and then converts them into line hit data using "go tool
// covdata".
type CoverDir struct {
	// Dir is the base directory in which each process creates its own
	// directory to dump its coverage data into; defaults to os.TempDir().
	Dir string
	// GoBinary is the go command to use; defaults to "go".
	GoBinary string
	// Resolve maps profile source names to file paths; nil keeps names.
	Resolve func(name string) string

	dump string // this process' dump directory.
}

var _ Tracer = (*CoverDir)(nil)

// Start creates this process' dump directory.
func (t *CoverDir) Start() error {
	base := t.Dir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return errors.Wrap(err, "cannot create coverage data directory")
	}
	dump, err := os.MkdirTemp(base, "procov-covdata-")
	if err != nil {
		return errors.Wrap(err, "cannot create coverage data directory")
	}
	t.dump = dump
	return nil
}

// Stop dumps the coverage data and converts it. If this binary wasn't built
// for coverage, the result is empty hit data.
func (t *CoverDir) Stop() (*coverage.Data, error) {
	if t.dump == "" {
		return nil, errors.New("coverage data tracing not started")
	}
	defer os.RemoveAll(t.dump)
	if err := rtcoverage.WriteMetaDir(t.dump); err != nil {
		log.Debug().Err(err).Msg("binary not built for coverage")
		return coverage.NewData(), nil
	}
	if err := rtcoverage.WriteCountersDir(t.dump); err != nil {
		return nil, errors.Wrap(err, "cannot write coverage counters")
	}
	gobin := t.GoBinary
	if gobin == "" {
		gobin = "go"
	}
	profile := filepath.Join(t.dump, "profile.txt")
	ctx, cancel := context.WithTimeout(context.Background(), covdataTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, gobin, "tool", "covdata", "textfmt",
		"-i="+t.dump, "-o="+profile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "cannot convert coverage data: %s",
			bytes.TrimSpace(stderr.Bytes()))
	}
	cp, err := ReadProfileFile(profile)
	if err != nil {
		return nil, err
	}
	return cp.Data(t.Resolve), nil
}
