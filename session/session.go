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

// Package session controls the coverage-recording session of a single
// process: it starts and stops tracing, and persists the process' hit data
// into the store as a raw data record exactly once.
package session

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/thediveo/procov/coverage"
	"github.com/thediveo/procov/store"
	"github.com/thediveo/procov/tracer"
)

// Options are the settings a session captures when created; a session never
// looks at the environment again, so tests clearing the environment don't
// lose any coverage.
type Options struct {
	Token   string   // run token scoping the records of a coverage run.
	Worker  string   // name of the worker this process is, if any.
	Sources []string // source roots; no roots means all files.
	Omit    []string // patterns of files to omit.
}

type state int

const (
	idle state = iota
	started
	stopped
)

// Controller is the coverage-recording session of this process.
type Controller struct {
	opts   Options
	id     ID
	tracer tracer.Tracer
	store  store.Store
	filter *coverage.FileFilter

	mu               sync.Mutex
	state            state
	started, stopped time.Time
	data             *coverage.Data
	saved            bool
	handlers         bool
	unhandle         func() // stops the signal handler.
}

// New returns a new, not yet started session using the specified tracer and
// store.
func New(opts Options, t tracer.Tracer, s store.Store) *Controller {
	return &Controller{
		opts:   opts,
		id:     NewID(),
		tracer: t,
		store:  s,
		filter: coverage.NewFileFilter(opts.Sources, opts.Omit),
	}
}

// ID returns the session's unique ID.
func (c *Controller) ID() ID { return c.id }

// Token returns the run token of the session.
func (c *Controller) Token() string { return c.opts.Token }

// Worker returns the worker name of the session, if any.
func (c *Controller) Worker() string { return c.opts.Worker }

// Store returns the store the session saves into.
func (c *Controller) Store() store.Store { return c.store }

// Tracer returns the session's tracer.
func (c *Controller) Tracer() tracer.Tracer { return c.tracer }

// Active returns true while the session is tracing.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == started
}

// Data returns the frozen hit data, or nil if the session hasn't stopped
// yet.
func (c *Controller) Data() *coverage.Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Start starts tracing. Starting an already started (or stopped) session
// does nothing.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != idle {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.tracer.Start(); err != nil {
		return errors.Wrap(err, "cannot start tracing")
	}
	c.state = started
	c.started = time.Now()
	log.Debug().Str("session", c.id.String()).Str("worker", c.opts.Worker).
		Msg("coverage session started")
	return nil
}

// Stop stops tracing and freezes the hit data, keeping only the files to be
// measured. Stopping a session that was never started, or has already been
// stopped, does nothing.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != started {
		return nil
	}
	c.state = stopped
	c.stopped = time.Now()
	data, err := c.tracer.Stop()
	if err != nil {
		c.data = coverage.NewData()
		return errors.Wrap(err, "cannot stop tracing")
	}
	c.data = data.Filter(c.filter.Keep)
	log.Debug().Str("session", c.id.String()).Int("files", len(c.data.Lines)).
		Msg("coverage session stopped")
	return nil
}

// Save writes the frozen hit data as a raw data record into the store. Only
// the first successful save writes; saving a session that was never started
// does nothing.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state == idle || c.saved:
		return nil
	case c.state == started:
		return errors.New("cannot save running session")
	}
	host, _ := os.Hostname()
	rec := &coverage.Record{
		ID:      c.id.String(),
		Worker:  c.opts.Worker,
		Host:    host,
		PID:     os.Getpid(),
		Started: c.started,
		Stopped: c.stopped,
		Data:    c.data,
	}
	b, err := rec.Encode()
	if err != nil {
		return errors.Wrap(err, "cannot encode coverage record")
	}
	if err := c.store.Write(ctx, c.opts.Token, rec.ID, b); err != nil {
		return errors.Wrapf(err, "cannot save coverage record %q", rec.ID)
	}
	c.saved = true
	log.Debug().Str("session", rec.ID).Msg("coverage record saved")
	return nil
}

// Finish stops the session and then saves its hit data. A finished session
// doesn't handle any signals anymore.
func (c *Controller) Finish(ctx context.Context) error {
	defer c.removeSignalHandler()
	if err := c.Stop(); err != nil {
		// Still save the (then empty) record.
		if serr := c.Save(ctx); serr != nil {
			log.Error().Err(serr).Msg("cannot save coverage record")
		}
		return err
	}
	return c.Save(ctx)
}
