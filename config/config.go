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

// Package config decodes the coverage settings of a coverage run: the
// activation environment variables which every process of a coverage run
// inherits, as well as the settings from an optional configuration file.
package config

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
)

// Names of the environment variables making up the activation environment.
const (
	EnvRun      = "PROCOV_RUN"
	EnvSource   = "PROCOV_SOURCE"
	EnvConfig   = "PROCOV_CONFIG"
	EnvBranch   = "PROCOV_BRANCH"
	EnvStore    = "PROCOV_STORE"
	EnvTracer   = "PROCOV_TRACER"
	EnvCoverDir = "PROCOV_COVERDIR"
	EnvWorker   = "PROCOV_WORKER"
	EnvLogLevel = "PROCOV_LOG_LEVEL"
)

// DefaultConfigFile is the configuration file used when none is specified
// and it exists in the current working directory.
const DefaultConfigFile = ".procovrc"

// Error is a configuration error, such as a malformed configuration file or
// an invalid threshold.
type Error struct {
	Source string // where the invalid configuration came from.
	Err    error
}

func (e *Error) Error() string {
	return "invalid configuration in " + e.Source + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Config is the activation environment of a coverage run. A process having
// PROCOV_RUN set in its environment is part of the coverage run identified
// by this run token.
type Config struct {
	Run      string   `env:"PROCOV_RUN"`
	Source   []string `env:"PROCOV_SOURCE"`
	Config   string   `env:"PROCOV_CONFIG"`
	Branch   bool     `env:"PROCOV_BRANCH"`
	Store    string   `env:"PROCOV_STORE"`
	Tracer   string   `env:"PROCOV_TRACER, default=coverprofile"`
	CoverDir string   `env:"PROCOV_COVERDIR"`
	Worker   string   `env:"PROCOV_WORKER"`
	LogLevel string   `env:"PROCOV_LOG_LEVEL"`
}

// FromEnv decodes the activation environment of this process.
func FromEnv(ctx context.Context) (*Config, error) {
	return FromLookuper(ctx, envconfig.OsLookuper())
}

// FromLookuper decodes the activation environment from the specified
// lookuper.
func FromLookuper(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var c Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &c,
		Lookuper: l,
	}); err != nil {
		return nil, &Error{Source: "environment", Err: err}
	}
	return &c, nil
}

// Active returns true if the configuration activates coverage.
func (c *Config) Active() bool { return c.Run != "" }

// Environ returns the activation environment in the "key=value" form of
// os.Environ, with empty settings left out.
func (c *Config) Environ() []string {
	env := []string{}
	add := func(key, value string) {
		if value != "" {
			env = append(env, key+"="+value)
		}
	}
	add(EnvRun, c.Run)
	add(EnvSource, strings.Join(c.Source, ","))
	add(EnvConfig, c.Config)
	if c.Branch {
		add(EnvBranch, strconv.FormatBool(c.Branch))
	}
	add(EnvStore, c.Store)
	add(EnvTracer, c.Tracer)
	add(EnvCoverDir, c.CoverDir)
	add(EnvWorker, c.Worker)
	add(EnvLogLevel, c.LogLevel)
	return env
}

// Export sets the activation environment of this process, so that child
// processes inherit it.
func (c *Config) Export() error {
	for _, kv := range c.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		if err := os.Setenv(key, value); err != nil {
			return errors.Wrapf(err, "cannot export %s", key)
		}
	}
	return nil
}

// WithWorker returns a copy of the configuration for the named worker.
func (c *Config) WithWorker(worker string) *Config {
	wc := *c
	wc.Source = append([]string(nil), c.Source...)
	wc.Worker = worker
	return &wc
}

// Absolute returns a copy of the configuration with all paths made
// absolute, so that it can be passed on to processes running in other
// working directories. An unset configuration file becomes the default
// configuration file, if it exists.
func (c *Config) Absolute() *Config {
	ac := c.WithWorker(c.Worker)
	ac.Source = AbsPaths(c.Source)
	if ac.Config == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			ac.Config = DefaultConfigFile
		}
	}
	ac.Config = absPath(ac.Config)
	ac.CoverDir = absPath(ac.CoverDir)
	if !strings.Contains(ac.Store, "://") {
		ac.Store = absPath(ac.Store)
	}
	return ac
}

func absPath(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// File loads the configuration file specified in the activation
// environment, or the default configuration file if present.
func (c *Config) File() (*File, error) {
	path := c.Config
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err != nil {
			return &File{}, nil
		}
		path = DefaultConfigFile
	}
	return Load(path)
}

// Settings are the effective settings of a coverage run, combining the
// activation environment with the configuration file.
type Settings struct {
	Sources      []string // absolute source roots.
	Omit         []string // omit patterns when measuring.
	Branch       bool
	ExcludeLines []string
	ReportOmit   []string // omit patterns when reporting.
	FailUnder    float64
	ShowMissing  bool
}

// Settings returns the effective settings: sources and branch measurement
// from the environment take precedence over the configuration file.
func (c *Config) Settings() (*Settings, error) {
	f, err := c.File()
	if err != nil {
		return nil, err
	}
	s := &Settings{
		Sources:      f.Run.Source,
		Omit:         f.Run.Omit,
		Branch:       c.Branch || f.Run.Branch,
		ExcludeLines: f.Report.ExcludeLines,
		ReportOmit:   f.Report.Omit,
		FailUnder:    f.Report.FailUnder,
		ShowMissing:  f.Report.ShowMissing,
	}
	if len(c.Source) > 0 {
		s.Sources = c.Source
	}
	s.Sources = AbsPaths(s.Sources)
	return s, nil
}

// AbsPaths returns the specified paths in absolute and clean form, without
// duplicates and empty paths, sorted.
func AbsPaths(paths []string) []string {
	seen := map[string]bool{}
	abs := []string{}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if p, err := filepath.Abs(path); err == nil {
			path = p
		}
		if !seen[path] {
			seen[path] = true
			abs = append(abs, path)
		}
	}
	sort.Strings(abs)
	return abs
}

// CheckThreshold returns an error if the threshold percentage isn't within
// 0 to 100.
func CheckThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 100 {
		return errors.Errorf("threshold %v not within 0..100", threshold)
	}
	return nil
}
