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
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thediveo/procov/coverage"
)

// CoverProfile is a Tracer picking up the coverage profile written by a Go
// test binary run with "-test.coverprofile". The profile is written only
// when the test binary's testing.M.Run returns, so Stop must not be called
// before.
type CoverProfile struct {
	// Path of the coverage profile file; if empty, the path is taken from
	// the "-test.coverprofile" and "-test.outputdir" arguments in Args.
	Path string
	// Args are the command line arguments to take the coverage profile
	// path from; defaults to os.Args.
	Args []string
	// Resolve maps profile source names to file paths; nil keeps names.
	Resolve func(name string) string
}

var _ Tracer = (*CoverProfile)(nil)

// Start does nothing, as Go's coverage instrumentation is always active in
// binaries built for coverage.
func (t *CoverProfile) Start() error { return nil }

// Stop reads the coverage profile written by this process and converts it
// into line hit data. A missing profile results in empty hit data.
func (t *CoverProfile) Stop() (*coverage.Data, error) {
	path := t.ProfilePath()
	if path == "" {
		log.Debug().Msg("no coverage profile")
		return coverage.NewData(), nil
	}
	cp, err := ReadProfileFile(path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("profile", path).Int("sources", len(cp.Sources)).
		Msg("read coverage profile")
	return cp.Data(t.Resolve), nil
}

// ProfilePath returns the path of the coverage profile file, or "" when
// there is none.
func (t *CoverProfile) ProfilePath() string {
	if t.Path != "" {
		return t.Path
	}
	args := t.Args
	if args == nil {
		args = os.Args
	}
	outputDir, coverProfile := ParseCoverageArgs(args)
	if coverProfile == "" {
		return ""
	}
	return ToOutputDir(outputDir, coverProfile)
}

// ParseCoverageArgs gathers the output directory and cover profile file from
// the CLI arguments of a Go test binary.
func ParseCoverageArgs(args []string) (outputDir, coverProfile string) {
	for idx := 0; idx < len(args); idx++ {
		arg := args[idx]
		if strings.HasPrefix(arg, "-test.outputdir=") {
			outputDir = strings.SplitN(arg, "=", 2)[1]
		} else if strings.HasPrefix(arg, "-test.coverprofile=") {
			coverProfile = strings.SplitN(arg, "=", 2)[1]
		} else if arg == "-args" || arg == "--args" {
			break
		}
	}
	return
}

// ToOutputDir is a variant of testing's toOutputDir: it returns the
// specified filename relocated, if required, to outputDir.
func ToOutputDir(outputDir, path string) string {
	if filepath.IsAbs(path) || outputDir == "" {
		return path
	}
	return filepath.Join(outputDir, path)
}
