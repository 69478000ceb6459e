// Package subprocess contains code executed in child processes of coverage
// runs: in re-executed copies of a test binary, as well as in child programs
// started through os/exec. Its tests check that procov attributes the
// coverage of this code to the processes executing it.
package subprocess
