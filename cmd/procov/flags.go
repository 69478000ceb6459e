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
	"github.com/urfave/cli/v2"

	"github.com/thediveo/procov/config"
	"github.com/thediveo/procov/report"
	"github.com/thediveo/procov/tracer"
)

var (
	CovFlag = &cli.StringSliceFlag{
		Name:    "cov",
		EnvVars: []string{config.EnvSource},
		Usage:   "Source root to measure coverage for; can be repeated",
	}
	CovReportFlag = &cli.StringFlag{
		Name:  "cov-report",
		Value: string(report.Term),
		Usage: "Coverage report form: term, term-missing, html, xml, or none",
	}
	CovReportDirFlag = &cli.StringFlag{
		Name:  "cov-report-dir",
		Usage: "Output directory of html and xml coverage reports",
	}
	CovConfigFlag = &cli.StringFlag{
		Name:    "cov-config",
		EnvVars: []string{config.EnvConfig},
		Usage:   "Coverage configuration file (default .procovrc, if present)",
	}
	CovFailUnderFlag = &cli.Float64Flag{
		Name:  "cov-fail-under",
		Usage: "Fail if the total coverage is less than this percentage",
	}
	NoCovOnFailFlag = &cli.BoolFlag{
		Name:  "no-cov-on-fail",
		Usage: "Skip coverage reporting if tests failed",
	}
	CovBranchFlag = &cli.BoolFlag{
		Name:    "cov-branch",
		EnvVars: []string{config.EnvBranch},
		Usage:   "Additionally measure taken branches",
	}
	StoreFlag = &cli.StringFlag{
		Name:    "store",
		EnvVars: []string{config.EnvStore},
		Usage:   "Coverage record store: a directory, file:// or redis:// URL",
	}
	TracerFlag = &cli.StringFlag{
		Name:    "tracer",
		Value:   tracer.CoverProfileName,
		EnvVars: []string{config.EnvTracer},
		Usage:   "Tracer: coverprofile (go test -coverprofile), coverdir (GOCOVERDIR), or recorder (explicit hits only)",
	}
	CoverDirFlag = &cli.StringFlag{
		Name:    "cover-dir",
		EnvVars: []string{config.EnvCoverDir},
		Usage:   "Base directory for the coverage data of the coverdir tracer",
	}
	MetricsFileFlag = &cli.StringFlag{
		Name:  "metrics-file",
		Usage: "Write coverage run metrics to this Prometheus textfile",
	}
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Value:   "warn",
		EnvVars: []string{config.EnvLogLevel},
		Usage:   "Log level: trace, debug, info, warn, error; empty disables logging",
	}
	RunFlag = &cli.StringFlag{
		Name:     "run",
		Required: true,
		EnvVars:  []string{config.EnvRun},
		Usage:    "Run token of the coverage run to combine",
	}
)

// reportFlags are the flags common to all commands concluding coverage runs.
var reportFlags = []cli.Flag{
	CovReportFlag,
	CovReportDirFlag,
	CovConfigFlag,
	CovFailUnderFlag,
	StoreFlag,
	MetricsFileFlag,
}

var runFlags = append([]cli.Flag{
	CovFlag,
	NoCovOnFailFlag,
	CovBranchFlag,
	TracerFlag,
	CoverDirFlag,
}, reportFlags...)

var combineFlags = append([]cli.Flag{
	RunFlag,
	CovFlag,
}, reportFlags...)
