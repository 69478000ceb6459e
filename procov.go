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

package procov

import (
	"context"
	"os"
	"sync"

	"github.com/dlespiau/covertool/pkg/exit"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thediveo/procov/config"
	"github.com/thediveo/procov/dist"
	"github.com/thediveo/procov/internal/logging"
	"github.com/thediveo/procov/session"
	"github.com/thediveo/procov/store"
	"github.com/thediveo/procov/tracer"
)

// BootstrapError reports an unsuccessful start of the coverage session of a
// process that is part of a coverage run.
type BootstrapError struct {
	Err error
}

// Error returns a description of the failure causing the coverage session to
// not start.
func (e *BootstrapError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "procov: cannot start coverage session: " + e.Err.Error()
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// The coverage session of this process, if any, together with its
// configuration.
var (
	mu          sync.Mutex
	current     *session.Controller
	currentCfg  *config.Config
	coordinator *dist.Coordinator
	status      error
)

// init starts a coverage session as early as possible when this process is
// part of a coverage run, so that even code run during package
// initialization and test setup gets covered.
func init() {
	if os.Getenv(config.EnvRun) == "" {
		return
	}
	if err := logging.Setup(os.Stderr, os.Getenv(config.EnvLogLevel)); err != nil {
		_ = logging.Setup(os.Stderr, "")
	}
	ctx := context.Background()
	cfg, err := config.FromEnv(ctx)
	if err == nil {
		mu.Lock()
		err = start(ctx, cfg)
		mu.Unlock()
	}
	if err != nil {
		status = &BootstrapError{Err: err}
		log.Error().Err(err).Msg("coverage bootstrap failed")
	}
}

// Status returns nil if there were no problems starting the coverage session
// during startup of a process being part of a coverage run; otherwise, it
// returns a BootstrapError with the details. A process that isn't part of a
// coverage run always has a nil Status.
func Status() error {
	mu.Lock()
	defer mu.Unlock()
	return status
}

// Active returns the coverage session of this process, or nil if coverage
// isn't active.
func Active() *session.Controller {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// Config returns a copy of the configuration of the active coverage session,
// or nil if coverage isn't active.
func Config() *config.Config {
	mu.Lock()
	defer mu.Unlock()
	if currentCfg == nil {
		return nil
	}
	return currentCfg.WithWorker(currentCfg.Worker)
}

// Coordinator returns the coordinator for the workers of the coverage run
// this process is part of, or nil if coverage isn't active.
func Coordinator() *dist.Coordinator {
	mu.Lock()
	defer mu.Unlock()
	return coordinator
}

// NewRunToken returns a new random run token.
func NewRunToken() string {
	return uuid.NewString()
}

// Activate makes this process the initiator of a new coverage run as
// configured, unless this process already is part of a coverage run, and
// returns the session. A configuration without a run token gets a new one.
// The configuration then gets exported into this process' environment, so
// that all child processes started from now on join the coverage run.
func Activate(ctx context.Context, cfg *config.Config) (*session.Controller, error) {
	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		return current, nil
	}
	// Children might run in other working directories.
	cfg = cfg.Absolute()
	if cfg.Run == "" {
		cfg.Run = NewRunToken()
	}
	if err := start(ctx, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Export(); err != nil {
		return nil, err
	}
	log.Debug().Str("run", cfg.Run).Msg("coverage run activated")
	return current, nil
}

// Finish finishes the coverage session of this process, if any, saving its
// coverage data. Applications not using Main defer Finish in their main
// function, so that they save their coverage when returning from main.
func Finish(ctx context.Context) error {
	c := Active()
	if c == nil {
		return nil
	}
	return c.Finish(ctx)
}

// Exit finishes the coverage session of this process, if any, and then
// exits this process with the specified code.
func Exit(code int) {
	exit.Exit(code)
}

// Main runs the main function of an application, and then finishes the
// coverage session of this process, if any, and exits with the exit code
// returned by main.
func Main(main func() int) {
	Exit(main())
}

// start sets up and starts the coverage session of this process; the caller
// must hold mu.
func start(ctx context.Context, cfg *config.Config) error {
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	t, err := tracer.New(cfg.Tracer, tracer.Options{
		Branch:   settings.Branch,
		Sources:  settings.Sources,
		CoverDir: cfg.CoverDir,
	})
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	c := session.New(session.Options{
		Token:   cfg.Run,
		Worker:  cfg.Worker,
		Sources: settings.Sources,
		Omit:    settings.Omit,
	}, t, s)
	if err := c.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	c.InstallExitHandlers()
	current = c
	currentCfg = cfg
	coordinator = dist.NewCoordinator(cfg, s, c.ID().String())
	return nil
}
