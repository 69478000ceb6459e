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

// Package dist offers the extension points for work distributors, that is,
// anything spawning worker processes which execute code under coverage.
//
// A distributor names each worker it is going to start, asks the Coordinator
// for the environment of the worker before starting it, and tells the
// Coordinator when the worker has finished. Workers registered this way but
// never contributing any coverage data are later listed in the failed
// workers notice of the coverage report.
package dist

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/thediveo/procov/config"
	"github.com/thediveo/procov/store"
)

// WorkerPrefix prefixes the names handed out by NextWorkerName.
const WorkerPrefix = "gw"

// Coordinator hands out worker names and activation environments for the
// workers of a coverage run. Coordinator is safe for concurrent use.
type Coordinator struct {
	cfg   *config.Config
	store store.Store
	owner string

	mu      sync.Mutex
	counter int
}

// NewCoordinator returns a Coordinator for the coverage run configured in
// cfg, registering workers in the specified store. The owner tells apart the
// workers of different Coordinators of the same coverage run, such as the
// workers of several test binaries; usually, it is the session ID of the
// process distributing work.
func NewCoordinator(cfg *config.Config, s store.Store, owner string) *Coordinator {
	return &Coordinator{cfg: cfg, store: s, owner: owner}
}

// NextWorkerName returns a new worker name unique to this Coordinator, such
// as "<owner>-gw0", "<owner>-gw1", and so on; without an owner, the names
// are "gw0", "gw1", ...
func (c *Coordinator) NextWorkerName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := WorkerPrefix + strconv.Itoa(c.counter)
	c.counter++
	if c.owner != "" {
		name = c.owner + "-" + name
	}
	return name
}

// WorkerStarting registers the named worker and returns the environment the
// worker has to be started with: this process' environment, with the
// activation environment replaced by the one for the named worker.
func (c *Coordinator) WorkerStarting(ctx context.Context, name string) ([]string, error) {
	if err := c.store.RegisterWorker(ctx, c.cfg.Run, name); err != nil {
		return nil, errors.Wrapf(err, "cannot register worker %q", name)
	}
	env := []string{}
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "PROCOV_") {
			env = append(env, kv)
		}
	}
	env = append(env, c.cfg.WithWorker(name).Environ()...)
	log.Debug().Str("worker", name).Msg("worker starting")
	return env, nil
}

// WorkerFinished notes that the named worker has finished, either
// successfully or with the specified error. A failed worker keeps its
// registration, so it shows up in the failed workers notice unless it
// managed to save its coverage data nevertheless.
func (c *Coordinator) WorkerFinished(ctx context.Context, name string, err error) {
	if err != nil {
		log.Warn().Err(err).Str("worker", name).Msg("worker failed")
		return
	}
	log.Debug().Str("worker", name).Msg("worker finished")
}
