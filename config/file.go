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

package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// File are the settings of a configuration file. Configuration files are in
// INI format with Python-style multi-line values, unless their names end in
// ".yaml", ".yml", or ".toml".
type File struct {
	Run    RunSection    `yaml:"run" toml:"run"`
	Report ReportSection `yaml:"report" toml:"report"`
}

// RunSection controls measurement.
type RunSection struct {
	Source []string `yaml:"source" toml:"source"`
	Omit   []string `yaml:"omit" toml:"omit"`
	Branch bool     `yaml:"branch" toml:"branch"`
}

// ReportSection controls reporting.
type ReportSection struct {
	ExcludeLines []string `yaml:"exclude_lines" toml:"exclude_lines"`
	Omit         []string `yaml:"omit" toml:"omit"`
	FailUnder    float64  `yaml:"fail_under" toml:"fail_under"`
	ShowMissing  bool     `yaml:"show_missing" toml:"show_missing"`
}

// Load loads the configuration file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Source: path, Err: err}
	}
	var f *File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err = loadYAML(data)
	case ".toml":
		f, err = loadTOML(data)
	default:
		f, err = loadINI(data)
	}
	if err != nil {
		return nil, &Error{Source: path, Err: err}
	}
	if err := CheckThreshold(f.Report.FailUnder); err != nil {
		return nil, &Error{Source: path, Err: err}
	}
	return f, nil
}

func loadYAML(data []byte) (*File, error) {
	f := &File{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return f, nil
}

func loadTOML(data []byte) (*File, error) {
	f := &File{}
	md, err := toml.Decode(string(data), f)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("unknown setting %q", undecoded[0].String())
	}
	return f, nil
}

func loadINI(data []byte) (*File, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		IgnoreInlineComment:        true,
	}, data)
	if err != nil {
		return nil, err
	}
	f := &File{}
	if run, err := cfg.GetSection("run"); err == nil {
		f.Run.Source = list(run.Key("source").String(), true)
		f.Run.Omit = list(run.Key("omit").String(), true)
		if run.HasKey("branch") {
			if f.Run.Branch, err = run.Key("branch").Bool(); err != nil {
				return nil, errors.Wrap(err, "[run] branch")
			}
		}
	}
	if report, err := cfg.GetSection("report"); err == nil {
		f.Report.ExcludeLines = list(report.Key("exclude_lines").String(), false)
		f.Report.Omit = list(report.Key("omit").String(), true)
		if report.HasKey("fail_under") {
			if f.Report.FailUnder, err = report.Key("fail_under").Float64(); err != nil {
				return nil, errors.Wrap(err, "[report] fail_under")
			}
		}
		if report.HasKey("show_missing") {
			if f.Report.ShowMissing, err = report.Key("show_missing").Bool(); err != nil {
				return nil, errors.Wrap(err, "[report] show_missing")
			}
		}
	}
	return f, nil
}

// list splits a multi-line value into its lines, and optionally also at
// commas, dropping empty items.
func list(value string, commas bool) []string {
	var items []string
	for _, line := range strings.Split(value, "\n") {
		parts := []string{line}
		if commas {
			parts = strings.Split(line, ",")
		}
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	}
	return items
}
