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

package testing

import (
	"context"
	"fmt"
	"io"
	"os"
	gotesting "testing"

	"github.com/rs/zerolog/log"

	"github.com/thediveo/procov"
	"github.com/thediveo/procov/config"
	"github.com/thediveo/procov/exitcodes"
	"github.com/thediveo/procov/internal/conclude"
	"github.com/thediveo/procov/internal/logging"
	"github.com/thediveo/procov/internal/testsupport"
	"github.com/thediveo/procov/metrics"
	"github.com/thediveo/procov/report"
	"github.com/thediveo/procov/tracer"
)

// M is an "enhanced" version of Golang's testing.M which additionally
// initiates and concludes coverage runs, and handles merging coverage profile
// data from re-executions into the main ("parent's") coverage profile file.
type M struct {
	*gotesting.M
	// Config of the coverage run to initiate, unless this test process
	// already is part of a coverage run; nil doesn't initiate any coverage
	// run.
	Config *config.Config
	// Report controls how an initiated coverage run gets concluded.
	Report Options
}

// Options control how M concludes the coverage run it initiated.
type Options struct {
	Form        report.Form // report form; defaults to "term".
	Dir         string      // output directory of html and xml reports.
	FailUnder   float64     // overrides the configured minimum coverage when non-zero.
	NoCovOnFail bool        // skip coverage reporting when tests failed.
	Out         io.Writer   // where to render the report; defaults to stdout.
	MetricsFile string      // optional metrics textfile.
}

// check checks the report form and minimum coverage.
func (o Options) check() error {
	if _, err := report.ParseForm(string(o.Form)); err != nil {
		return &config.Error{Source: "report form", Err: err}
	}
	if err := config.CheckThreshold(o.FailUnder); err != nil {
		return &config.Error{Source: "fail-under", Err: err}
	}
	return nil
}

// Run runs the tests and returns an exit code to pass to os.Exit. For a
// re-executed child it runs the action instead and then saves the child's
// coverage. For the parent it merges the coverage profile data from
// re-executed process copies into this parent process' coverage profile
// data, and concludes the coverage run it initiated.
func (m *M) Run() (exitcode int) {
	exitcode, _ = m.run()
	return
}

// run is the internal implementation of the public Run() method, and
// additionally returns an indication of whether we were running as the parent
// process or a re-executed child process.
func (m *M) run() (exitcode int, reexeced bool) {
	ctx := context.Background()
	// If necessary, run the action first. Please note that we cannot use
	// procov/reexec.RunAction() directly, as this would result in an import
	// cycle. To break this vicious cycle we use testsupport's RunAction
	// instead, which procov/reexec will initialize to point to its real
	// implementation of RunAction.
	var recovered interface{}
	func() {
		// RunAction() panics when it is asked to run a non-registered action.
		// But we still want to save coverage data, so we need to wrap the
		// call to RunAction(), so that we can recover.
		defer func() {
			if recovered = recover(); recovered != nil {
				// RunAction panics only when trying to re-execute, never
				// otherwise.
				reexeced = true
			}
		}()
		reexeced = testsupport.RunAction()
	}()
	outputDir, coverProfile := tracer.ParseCoverageArgs(os.Args)
	if reexeced {
		// Run the empty test set when we're a re-executed child, so that the
		// Go testing package creates a coverage profile data report.
		pritiPratel(func() {
			exitcode = m.M.Run()
		})
		finish(ctx)
		// If RunAction() panicked, we "recover our panic", but this way the
		// coverage data has been saved.
		if recovered != nil {
			fmt.Fprint(os.Stderr, recovered)
		}
		return
	}
	// Refuse invalid report options before any test runs.
	if m.Config != nil {
		if err := m.Report.check(); err != nil {
			fmt.Fprintln(os.Stderr, "procov: "+err.Error())
			return exitcodes.RuntimeErr, false
		}
	}
	// Pass the required test argument settings to the procov/reexec package,
	// so that it can correctly re-execute child processes under test.
	testsupport.EnableTesting(outputDir, coverProfile)
	initiator := false
	if m.Config != nil && procov.Active() == nil {
		level := m.Config.LogLevel
		if level == "" {
			level = "warn"
		}
		if err := logging.Setup(os.Stderr, level); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			return exitcodes.RuntimeErr, false
		}
		if _, err := procov.Activate(ctx, m.Config); err != nil {
			log.Error().Err(err).Msg("cannot initiate coverage run")
			return exitcodes.RuntimeErr, false
		}
		initiator = true
	}
	// testing's M.Run() will write the coverage report even when a test
	// panics; so we finish our coverage session in any case.
	func() {
		defer func() {
			recovered = recover()
		}()
		exitcode = m.M.Run()
	}()
	finish(ctx)
	// Our coverage profile data has been written at the end of m.M.Run(), so
	// we can only now merge the coverage profile data written by the
	// individual re-executed child processes.
	if children := testsupport.ChildProfiles(); coverProfile != "" && len(children) > 0 {
		paths := make([]string, 0, len(children))
		for _, child := range children {
			paths = append(paths, tracer.ToOutputDir(outputDir, child))
		}
		if err := tracer.MergeProfileFiles(
			tracer.ToOutputDir(outputDir, coverProfile), paths...); err != nil {
			log.Error().Err(err).Msg("cannot merge coverage profiles of re-executed children")
		}
		for _, path := range paths {
			_ = os.Remove(path)
		}
	}
	if initiator {
		exitcode = m.conclude(ctx, exitcode)
	}
	if recovered != nil {
		// Recover panic!!!
		panic(recovered)
	}
	return
}

// conclude concludes the coverage run initiated by this test process.
func (m *M) conclude(ctx context.Context, testExitCode int) int {
	cfg := procov.Config()
	settings, err := cfg.Settings()
	if err != nil {
		log.Error().Err(err).Msg("cannot conclude coverage run")
		return exitcodes.RuntimeErr
	}
	failUnder := m.Report.FailUnder
	if failUnder == 0 {
		failUnder = settings.FailUnder
	}
	var mx *metrics.Metrics
	if m.Report.MetricsFile != "" {
		mx = metrics.New()
	}
	code, _ := conclude.Conclude(ctx, conclude.Params{
		Token:        cfg.Run,
		Store:        procov.Active().Store(),
		Settings:     settings,
		Form:         m.Report.Form,
		ReportDir:    m.Report.Dir,
		FailUnder:    failUnder,
		NoCovOnFail:  m.Report.NoCovOnFail,
		TestExitCode: testExitCode,
		Out:          m.Report.Out,
		Metrics:      mx,
		MetricsFile:  m.Report.MetricsFile,
	})
	return code
}

// finish finishes the coverage session of this process, if any.
func finish(ctx context.Context) {
	if err := procov.Finish(ctx); err != nil {
		log.Error().Err(err).Msg("cannot save coverage")
	}
}
