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

// Package exitcodes defines the exit codes of coverage runs.
package exitcodes

// Exit code constants of coverage runs:
//
// * Success (0): all tests passed and the coverage threshold, if any, is met
// * TestFailure (1): one or more tests failed
// * CoverageBelow (2): all tests passed, but the coverage is below threshold
// * RuntimeErr (3): configuration, store, or other runtime errors
const (
	Success       = 0 // All tests pass
	TestFailure   = 1 // Test failures
	CoverageBelow = 2 // Coverage below threshold
	RuntimeErr    = 3 // Runtime errors
)
