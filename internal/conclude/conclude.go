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

// Package conclude concludes a coverage run after all its tests have run:
// it combines the coverage records of the run, reports the coverage, and
// decides the exit code.
package conclude

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/thediveo/procov/aggregate"
	"github.com/thediveo/procov/analysis"
	"github.com/thediveo/procov/config"
	"github.com/thediveo/procov/coverage"
	"github.com/thediveo/procov/exitcodes"
	"github.com/thediveo/procov/metrics"
	"github.com/thediveo/procov/policy"
	"github.com/thediveo/procov/report"
	"github.com/thediveo/procov/store"
)

// Params of concluding a coverage run.
type Params struct {
	Token        string           // run token of the coverage run.
	Store        store.Store      // store with the coverage records of the run.
	Settings     *config.Settings // effective settings.
	Form         report.Form      // report form.
	ReportDir    string           // output directory of html and xml reports.
	FailUnder    float64          // minimum coverage; 0 disables the check.
	NoCovOnFail  bool             // skip coverage reporting when tests failed.
	TestExitCode int              // exit code of the test run.
	Out          io.Writer        // where to render the report; defaults to stdout.
	Metrics      *metrics.Metrics // optional metrics.
	MetricsFile  string           // optional metrics textfile.
}

// Conclude concludes the coverage run, returning the exit code of the whole
// run. Errors always come with exitcodes.RuntimeErr; the error has then
// already been logged.
func Conclude(ctx context.Context, p Params) (int, error) {
	code, err := conclude(ctx, p)
	if err != nil {
		log.Error().Err(err).Str("run", p.Token).Msg("cannot conclude coverage run")
		return exitcodes.RuntimeErr, err
	}
	return code, nil
}

func conclude(ctx context.Context, p Params) (int, error) {
	testcode := exitcodes.Success
	if p.TestExitCode != 0 {
		testcode = exitcodes.TestFailure
		if p.NoCovOnFail {
			log.Debug().Msg("tests failed, skipping coverage report")
			return testcode, nil
		}
	}
	settings := p.Settings
	if settings == nil {
		settings = &config.Settings{}
	}
	if err := config.CheckThreshold(p.FailUnder); err != nil {
		return 0, &config.Error{Source: "fail-under", Err: err}
	}
	out := p.Out
	if out == nil {
		out = os.Stdout
	}

	analyzer, err := analysis.New(settings.ExcludeLines...)
	if err != nil {
		return 0, &config.Error{Source: "exclude_lines", Err: err}
	}
	agg := aggregate.New(p.Store, analyzer,
		aggregate.WithMetrics(p.Metrics),
		aggregate.WithFilter(coverage.NewFileFilter(nil, settings.ReportOmit)))
	res, err := agg.Combine(ctx, p.Token)
	if err != nil {
		return 0, err
	}
	root, _ := os.Getwd()
	if err := report.Render(out, res.Model, res.FailedWorkers, report.Options{
		Form:        p.Form,
		ShowMissing: settings.ShowMissing,
		Dir:         p.ReportDir,
		Root:        root,
	}); err != nil {
		return 0, errors.Wrap(err, "cannot render coverage report")
	}
	rep := res.Model.Report()
	if !rep.Empty() {
		p.Metrics.SetCoverage(rep.Percent())
	}
	if p.MetricsFile != "" {
		if err := p.Metrics.WriteTextfile(p.MetricsFile); err != nil {
			return 0, err
		}
	}

	// Nothing measured means no percentage to check.
	if testcode != exitcodes.Success || p.FailUnder <= 0 || rep.Empty() ||
		!p.Form.EnforcesThreshold() || len(res.FailedWorkers) > 0 {
		return testcode, nil
	}
	decision := policy.Evaluate(rep, p.FailUnder)
	fmt.Fprintln(out, decision.Message)
	if decision.Outcome == policy.Below {
		return exitcodes.CoverageBelow, nil
	}
	return exitcodes.Success, nil
}
