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
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Serve tells w that it is ready and then waits for SIGTERM, shutting down
// gracefully after the specified cleanup time.
func Serve(w io.Writer, cleanup time.Duration) int {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM)
	fmt.Fprintln(w, "ready")
	<-sigs
	time.Sleep(cleanup)
	fmt.Fprintln(w, "graceful shutdown")
	return 0
}

// Wait tells w that it is ready and then waits forever, leaving any signals
// to their default handling.
func Wait(w io.Writer) {
	fmt.Fprintln(w, "ready")
	for {
		time.Sleep(time.Hour)
	}
}
