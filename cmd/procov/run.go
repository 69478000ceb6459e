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

package main

import (
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/thediveo/procov"
	"github.com/thediveo/procov/config"
	"github.com/thediveo/procov/exitcodes"
	"github.com/thediveo/procov/internal/conclude"
	"github.com/thediveo/procov/metrics"
	"github.com/thediveo/procov/report"
	"github.com/thediveo/procov/store"
)

// runCmd runs the command as a new coverage run, and then concludes the
// coverage run.
func runCmd(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("procov: no command to run", exitcodes.RuntimeErr)
	}
	cfg := (&config.Config{
		Run:      procov.NewRunToken(),
		Source:   c.StringSlice(CovFlag.Name),
		Config:   c.String(CovConfigFlag.Name),
		Branch:   c.Bool(CovBranchFlag.Name),
		Store:    c.String(StoreFlag.Name),
		Tracer:   c.String(TracerFlag.Name),
		CoverDir: c.String(CoverDirFlag.Name),
	}).Absolute()
	params, err := concludeParams(c, cfg)
	if err != nil {
		return err
	}
	defer params.Store.Close()

	cmd := exec.CommandContext(c.Context, c.Args().First(), c.Args().Tail()...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = c.App.Writer
	cmd.Stderr = c.App.ErrWriter
	cmd.Env = append(os.Environ(), cfg.Environ()...)
	log.Debug().Str("run", cfg.Run).Strs("command", c.Args().Slice()).
		Msg("starting coverage run")
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return errors.Wrapf(err, "cannot run %q", c.Args().First())
		}
		params.TestExitCode = exitErr.ExitCode()
	}
	return finish(c, params)
}

// combineCmd concludes an already finished coverage run.
func combineCmd(c *cli.Context) error {
	cfg := (&config.Config{
		Run:    c.String(RunFlag.Name),
		Source: c.StringSlice(CovFlag.Name),
		Config: c.String(CovConfigFlag.Name),
		Store:  c.String(StoreFlag.Name),
	}).Absolute()
	params, err := concludeParams(c, cfg)
	if err != nil {
		return err
	}
	defer params.Store.Close()
	return finish(c, params)
}

// concludeParams returns the parameters for concluding the coverage run
// configured in cfg, checking the configuration before anything runs.
func concludeParams(c *cli.Context, cfg *config.Config) (conclude.Params, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return conclude.Params{}, err
	}
	form, err := report.ParseForm(c.String(CovReportFlag.Name))
	if err != nil {
		return conclude.Params{}, &config.Error{Source: "--" + CovReportFlag.Name, Err: err}
	}
	failUnder := settings.FailUnder
	if c.IsSet(CovFailUnderFlag.Name) {
		failUnder = c.Float64(CovFailUnderFlag.Name)
		if err := config.CheckThreshold(failUnder); err != nil {
			return conclude.Params{}, &config.Error{Source: "--" + CovFailUnderFlag.Name, Err: err}
		}
	}
	s, err := store.Open(cfg.Store)
	if err != nil {
		return conclude.Params{}, err
	}
	var mx *metrics.Metrics
	if c.String(MetricsFileFlag.Name) != "" {
		mx = metrics.New()
	}
	return conclude.Params{
		Token:       cfg.Run,
		Store:       s,
		Settings:    settings,
		Form:        form,
		ReportDir:   c.String(CovReportDirFlag.Name),
		FailUnder:   failUnder,
		NoCovOnFail: c.Bool(NoCovOnFailFlag.Name),
		Out:         c.App.Writer,
		Metrics:     mx,
		MetricsFile: c.String(MetricsFileFlag.Name),
	}, nil
}

// finish concludes the coverage run, turning non-zero exit codes into exit
// errors.
func finish(c *cli.Context, params conclude.Params) error {
	code, err := conclude.Conclude(c.Context, params)
	if err != nil {
		return cli.Exit("procov: "+err.Error(), code)
	}
	if code != exitcodes.Success {
		return cli.Exit("", code)
	}
	return nil
}
