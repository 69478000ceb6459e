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

package session

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dlespiau/covertool/pkg/exit"
	"github.com/rs/zerolog/log"
)

// finishTimeout limits how long saving a session on exit might take.
const finishTimeout = 10 * time.Second

// terminatingSignals finish the session before the process terminates.
var terminatingSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// InstallExitHandlers arranges for the session to be finished when the
// process exits through exit.Exit, or receives SIGINT, SIGTERM, or SIGHUP.
// After finishing the session on a signal, the signal gets raised again
// with our handler removed, so that the process then terminates (or not)
// exactly as it would without any coverage session. A process killed by
// SIGKILL loses its session.
//
// Finishing the session removes the signal handler again.
func (c *Controller) InstallExitHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers {
		return
	}
	c.handlers = true
	exit.AtExit(c.finishOnExit)
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	c.unhandle = sync.OnceFunc(func() { close(done) })
	signal.Notify(sigs, terminatingSignals...)
	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			log.Debug().Str("signal", sig.String()).Msg("finishing coverage session")
			c.finishOnExit()
			signal.Stop(sigs)
			_ = syscall.Kill(os.Getpid(), sig.(syscall.Signal))
		case <-done:
		}
	}()
}

// removeSignalHandler stops the signal handler installed by
// InstallExitHandlers, if any.
func (c *Controller) removeSignalHandler() {
	c.mu.Lock()
	unhandle := c.unhandle
	c.mu.Unlock()
	if unhandle != nil {
		unhandle()
	}
}

// finishOnExit finishes the session, logging instead of returning errors.
func (c *Controller) finishOnExit() {
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	if err := c.Finish(ctx); err != nil {
		log.Error().Err(err).Str("session", c.id.String()).
			Msg("cannot finish coverage session")
	}
}
