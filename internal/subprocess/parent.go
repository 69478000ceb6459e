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


package subprocess

import (
	"os"
	"os/exec"
	"strconv"
)

// EnvChild tells a program which child code to run; its value is either a
// Child index, "serve", or "wait".
const EnvChild = "SUBPROCESS_CHILD"

// Command returns the command for starting this executable again as a child
// process running the specified child code, passing the specified args.
func Command(child string, args ...string) *exec.Cmd {
	cmd := exec.Command(os.Args[0], args...)
	cmd.Env = append(os.Environ(), EnvChild+"="+child)
	return cmd
}

// Parent runs Child with the specified index in a child process and waits
// for the child process to terminate.
func Parent(idx int) (*os.ProcessState, error) {
	cmd := Command(strconv.Itoa(idx))
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	return cmd.ProcessState, err
}
