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

package testsupport

import (
	"strconv"
	"sync"
)

// TestingEnabled is set to true when we're under testing; gathering coverage
// profile data might be enabled.
var TestingEnabled = false

// CoverageOutputDir is the directory in which to create profile files and the
// like; it corresponds with the "-test.outputdir" CLI argument.
var CoverageOutputDir = ""

// CoverageProfile is the name of a coverage profile data file; if empty, then
// no coverage profile is to be saved. This variable corresponds with the
// "-test.coverprofile" CLI argument.
var CoverageProfile = ""

// CoverageProfiles is a list of coverage profile data filenames created by
// re-executed child processes when under test.
var CoverageProfiles = []string{}

var mu sync.Mutex

// EnableTesting is used by the procov/testing package; it tells the
// procov/reexec package that we're in testing mode, and passes the coverage
// profiling-related test parameters needed to allocate coverage profile data
// files to re-executed children.
func EnableTesting(outputdir, coverprofile string) {
	mu.Lock()
	defer mu.Unlock()
	TestingEnabled = true
	CoverageOutputDir = outputdir
	CoverageProfile = coverprofile
}

// ChildProfiles returns the coverage profile data files allocated to
// re-executed children so far.
func ChildProfiles() []string {
	mu.Lock()
	defer mu.Unlock()
	return append([]string(nil), CoverageProfiles...)
}

// TestingArgs returns additional testing arguments for a re-executed child
// while under test; otherwise it returns an empty slice of arguments. Each
// child gets its own coverage profile data file, if coverage profiling is
// enabled, and runs an empty set of tests, so that it doesn't run the tests
// of its parent again.
func TestingArgs() []string {
	mu.Lock()
	defer mu.Unlock()
	testargs := []string{}
	if !TestingEnabled {
		return testargs
	}
	if CoverageProfile != "" {
		name := CoverageProfile + "_" + strconv.Itoa(len(CoverageProfiles))
		CoverageProfiles = append(CoverageProfiles, name)
		testargs = append(testargs, "-test.coverprofile="+name)
		if CoverageOutputDir != "" {
			testargs = append(testargs, "-test.outputdir="+CoverageOutputDir)
		}
	}
	// Let's suppose for a moment that no sane developer will ever use the
	// following name for one of her/his tests ... except for "THEM" :p
	testargs = append(testargs,
		"-test.run=nadazilchnixdairgendwoimnirvanavonbielefeld")
	return testargs
}

// RunAction is set by procov/reexec to its RunAction, so that procov/testing
// can run actions without importing procov/reexec.
var RunAction = func() bool { return false }
