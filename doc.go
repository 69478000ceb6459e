// Package procov ("processes [under] coverage") measures code coverage of
// test runs whose code executes in several processes: the initiating test
// process, re-executed copies of a test binary, and arbitrary child programs
// spawned from within tests. Each process records its coverage in a session
// of its own and persists it into a shared store when it exits. After the
// test run the records get merged into one coverage model, which is then
// reported and checked against a coverage threshold.
//
// Code Usage
//
// Import the procov package into your application or test binary, so that
// every process of a coverage run automatically joins the coverage run.
// Go has no exit hooks, so the application then needs to finish its
// coverage session when its main function is done. Wrap the main function
// with Main, which finishes the session and then exits with the exit code
// returned:
//
//   package main
//
//   import "github.com/thediveo/procov"
//
//   func main() {
//       procov.Main(func() int {
//           // ...
//           return 0
//       })
//   }
//
// Alternatively, defer Finish in main, and exit the process through Exit
// instead of os.Exit. A process returning from main without finishing its
// session, or calling os.Exit, doesn't save any coverage and gets reported
// as a failed worker, if it was one.
//
// Test binaries additionally use the "enhanced" testing.M from
// github.com/thediveo/procov/testing in their TestMain, so that the test
// process initiates the coverage run and finally reports the merged
// coverage:
//
//   func TestMain(m *testing.M) {
//       mm := &procovtesting.M{M: m, Config: &config.Config{
//           Source: []string{"."},
//       }}
//       os.Exit(mm.Run())
//   }
//
// Runtime Usage
//
// A process is part of a coverage run when its environment contains a
// PROCOV_RUN variable; its value is the run token that scopes all records of
// the same coverage run in the store. The activation environment is
// inherited by child processes, so that they join the coverage run too:
//
//   PROCOV_RUN=...          # run token; activates coverage.
//   PROCOV_SOURCE=...       # comma-separated source roots.
//   PROCOV_CONFIG=...       # configuration file.
//   PROCOV_BRANCH=true      # measure taken branches.
//   PROCOV_STORE=...        # directory, file:// or redis:// store location.
//   PROCOV_TRACER=...       # coverprofile (default), coverdir, or recorder.
//   PROCOV_COVERDIR=...     # base directory for the coverdir tracer.
//   PROCOV_WORKER=...       # name of the worker this process is.
//   PROCOV_LOG_LEVEL=...    # log level; logging is off by default.
//
// Notes
//
// A process receiving SIGINT, SIGTERM, or SIGHUP saves its coverage first,
// and then the signal gets raised again, so that the process terminates with
// the same exit status as without coverage. Processes handling these
// signals themselves thus see the signal twice. A process killed by SIGKILL
// loses its coverage.
//
// Failing to start the coverage session of a process never aborts the
// process, and never writes to its stdout: use Status to check for
// problems. Processes failing to report any coverage are listed in a failed
// workers notice instead of the coverage report.
//
package procov
