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

package reexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	mobyreexec "github.com/moby/sys/reexec"
	"github.com/rs/zerolog/log"

	"github.com/thediveo/procov"
	"github.com/thediveo/procov/internal/testsupport"
)

// Breaks the vicious cycle of recursive imports which would otherwise raise
// its ugly head: this way, procov/testing can call RunAction while under
// test, without having to import us.
func init() {
	testsupport.RunAction = RunAction
}

// magicEnvVar defines the name of the environment variable which triggers a
// specific registered action to be run when an application using the reexec
// package forks and restarts itself.
const magicEnvVar = "procov_reexec_action"

// gracePeriod is how long a re-executed child gets to terminate on its own
// after its result has been decoded.
const gracePeriod = 1 * time.Second

// reexecEnabled enables fork/restarts only for applications which are
// reexec-aware by calling CheckAction() as early as possible in their
// main()s. Applications (indirectly) using reexec and triggering some
// function that needs fork/re-execution, but which have not called
// CheckAction() will panic instead of forking and re-executing themselves.
// This is a safeguard measure to cause havoc by unexpected clone restarts.
var reexecEnabled = false

// CheckAction checks if an application using reexec has been forked and
// re-executed. If we're in a re-execution, then this function won't return,
// but instead run the scheduled reexec functionality and then exit, saving
// the coverage data of the child.
func CheckAction() {
	if RunAction() {
		osExit(0)
	}
}

// For the sake of code coverage ;)
var osExit = procov.Exit

// RunAction checks if an application using the procov/reexec package has
// been forked and re-executed as a copy of itself. If this is the case, then
// the action specified for re-execution is run, and true returned. If this
// isn't the case, because this is the parent process and not a re-executed
// child, then no action is run, and false returned instead.
func RunAction() (action bool) {
	if err := procov.Status(); err != nil {
		log.Warn().Err(err).Msg("running without coverage")
	}
	if actionname := os.Getenv(magicEnvVar); actionname != "" {
		action, ok := actions[actionname]
		if !ok {
			panic(fmt.Sprintf(
				"unregistered procov/reexec re-execution action %q", actionname))
		}
		action()
		return true
	}
	// Enable fork/re-execution only for the parent process of the application
	// using reexec, but not in the re-executed child.
	reexecEnabled = true
	return
}

// ForkReexec restarts the application using reexec as a new child process and
// then immediately executes only the specified action (actionname). The
// output of the child gets deserialized as JSON into the passed result
// element. The call returns after the child process has terminated.
func ForkReexec(actionname string, result interface{}) (err error) {
	return ForkReexecEnv(actionname, nil, result)
}

// ForkReexecEnv restarts the application using reexec as a new child process
// and then immediately executes only the specified action (actionname),
// passing additional environment variables to the child. The output of the
// child gets deserialized as JSON into the passed result element. The call
// returns after the child process has terminated.
//
// If this process is part of a coverage run, then the child becomes a worker
// of the coverage run.
func ForkReexecEnv(actionname string, envvars []string, result interface{}) (err error) {
	// Safeguard against applications trying to re-execute themselves, but
	// which forgot to enable the required re-execution of themselves by
	// calling CheckAction() very early in their runtime live.
	if !reexecEnabled {
		if actionname := os.Getenv(magicEnvVar); actionname == "" {
			panic("procov/reexec: ForkReexec: application does not support " +
				"forking and restarting, needs to call reexec.CheckAction() " +
				"first")
		}
		panic("procov/reexec: ForkReexec: tried to re-execute in " +
			"already re-executing child process")
	}
	if _, ok := actions[actionname]; !ok {
		panic("procov/reexec: ForkReexec: attempting to re-execute into " +
			"unregistered action \"" + actionname + "\"")
	}
	ctx := context.Background()
	env := os.Environ()
	coord := procov.Coordinator()
	worker := ""
	if coord != nil {
		worker = coord.NextWorkerName()
		if env, err = coord.WorkerStarting(ctx, worker); err != nil {
			return fmt.Errorf("procov/reexec: ForkReexec: %w", err)
		}
		defer func() { coord.WorkerFinished(ctx, worker, err) }()
	}
	// If testing has been enabled, then make sure to pass the necessary
	// parameters on to our child processes, as it will (have to) use a
	// TestMain and our "enhanced" procov/testing.M: the child runs an empty
	// set of tests and writes its own coverage profile data file.
	testargs := testsupport.TestingArgs()
	forkchild := exec.Command(mobyreexec.Self(), testargs...)
	forkchild.Env = append(env, envvars...)
	forkchild.Env = append(forkchild.Env, magicEnvVar+"="+actionname)
	childout, err := forkchild.StdoutPipe()
	if err != nil {
		panic(fmt.Sprintf("procov/reexec: ForkReexec: cannot prepare for restart my fork, %s", err.Error()))
	}
	defer childout.Close()
	var childerr bytes.Buffer
	forkchild.Stderr = &childerr
	decoder := json.NewDecoder(childout)
	if err := forkchild.Start(); err != nil {
		panic(fmt.Sprintf("procov/reexec: ForkReexec: cannot restart a fork of myself, %s", err.Error()))
	}
	// Decode the result as it flows in. Keep any error for later...
	decodererr := decoder.Decode(result)
	// Either wait for the child to automatically terminate within a short
	// grace period after we deserialized its result output, or kill it the
	// hard way if it can't terminate in time.
	done := make(chan error, 1)
	go func() {
		done <- forkchild.Wait()
	}()
	select {
	case err = <-done:
	case <-time.After(gracePeriod):
		_ = forkchild.Process.Kill()
	}
	// Any child stderr output takes precedence over decoder errors, as when
	// the child panics, then that is of more importance than any hiccup the
	// result decoder encounters due to the child's problems.
	if childhiccup := childerr.String(); childhiccup != "" {
		return fmt.Errorf(
			"procov/reexec: ForkReexec: child failed with stderr message: %q",
			childhiccup)
	}
	if decodererr != nil {
		return fmt.Errorf(
			"procov/reexec: ForkReexec: cannot decode child result, %q",
			decodererr.Error())
	}
	return err
}

// Action is a function that is run on demand during re-execution of a forked
// child.
type Action func()

// actions maps re-execution topics (names) to action functions to execute on
// a scheduled re-execution.
var actions = map[string]Action{}

// Register registers a Action function with a name so it can be
// triggered during ForkReexec(name, ...). The registration panics if the same
// Action name is registered more than once, regardless of whether with the
// same Action or different ones.
func Register(name string, action Action) {
	if _, ok := actions[name]; ok {
		panic(fmt.Sprintf(
			"procov/reexec: Register: re-execution action %q already registered",
			name))
	}
	actions[name] = action
}
