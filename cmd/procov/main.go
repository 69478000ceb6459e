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

// procov runs commands, such as "go test", as coverage runs and reports the
// merged coverage of all processes taking part in a coverage run.
//
//	procov run --cov ./... -- go test ./...
//	procov combine --run <token>
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/thediveo/procov/exitcodes"
	"github.com/thediveo/procov/internal/logging"
)

var Version = "v0.1.0"

func main() {
	app := newApp()
	app.ExitErrHandler = func(c *cli.Context, err error) {
		cli.HandleExitCoder(exitError(err))
	}
	if err := app.Run(os.Args); err != nil {
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "procov"
	app.Version = Version
	app.Usage = "Coverage of test runs spanning multiple processes"
	app.Flags = []cli.Flag{LogLevelFlag}
	app.Before = func(c *cli.Context) error {
		return logging.Setup(c.App.ErrWriter, c.String(LogLevelFlag.Name))
	}
	app.Commands = []*cli.Command{
		{
			Name:      "run",
			Usage:     "Run a command as a coverage run and report its coverage",
			ArgsUsage: "-- command [args...]",
			Flags:     runFlags,
			Action:    runCmd,
		},
		{
			Name:   "combine",
			Usage:  "Combine and report the coverage records of a coverage run",
			Flags:  combineFlags,
			Action: combineCmd,
		},
	}
	return app
}

// exitError maps errors to exit coders: errors that aren't exit coders
// already are runtime errors.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return cli.Exit(fmt.Sprintf("procov: %s", err.Error()), exitcodes.RuntimeErr)
}

// exitCode returns the exit code for the specified error.
func exitCode(err error) int {
	if err == nil {
		return exitcodes.Success
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return exitcodes.RuntimeErr
}
