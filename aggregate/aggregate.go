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

// Package aggregate discovers the raw data records of a coverage run in the
// store, merges them into a single coverage model, and cleans up after
// itself.
package aggregate

import (
	"context"
	"runtime"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/thediveo/procov/analysis"
	"github.com/thediveo/procov/coverage"
	"github.com/thediveo/procov/metrics"
	"github.com/thediveo/procov/store"
)

// Aggregator merges the records of coverage runs.
type Aggregator struct {
	store    store.Store
	analyzer *analysis.Analyzer
	filter   *coverage.FileFilter
	metrics  *metrics.Metrics
	parallel int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMetrics sets the metrics to update while aggregating.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithParallelism sets the maximum number of concurrent record reads.
func WithParallelism(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.parallel = n
		}
	}
}

// WithFilter sets the filter for the files to report on.
func WithFilter(f *coverage.FileFilter) Option {
	return func(a *Aggregator) { a.filter = f }
}

// New returns a new Aggregator working on the specified store and
// determining statements using the specified analyzer.
func New(s store.Store, analyzer *analysis.Analyzer, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:    s,
		analyzer: analyzer,
		parallel: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is the outcome of combining the records of a coverage run.
type Result struct {
	Model         *coverage.Model // merged coverage model.
	Consumed      []string        // ids of the records consumed (and deleted).
	Absent        int             // number of records that vanished before reading.
	Corrupt       int             // number of undecodable records.
	FailedWorkers []string        // workers without any coverage data, sorted.
}

// contribution is what a single record contributes to the merged data.
type contribution struct {
	id      string
	record  *coverage.Record // nil for absent and corrupt records.
	absent  bool
	corrupt bool
}

// Combine merges all records of the coverage run identified by token into a
// single coverage model. Records that vanish before they can be read, as
// well as undecodable records, contribute nothing; failing store I/O aborts
// combining. After a complete scan, all consumed records and worker markers
// are deleted.
func (a *Aggregator) Combine(ctx context.Context, token string) (*Result, error) {
	reads := pool.NewWithResults[contribution]().
		WithErrors().
		WithFirstError().
		WithMaxGoroutines(a.parallel).
		WithContext(ctx).
		WithCancelOnError()
	var listErr error
	for id, err := range a.store.Pending(ctx, token) {
		if err != nil {
			listErr = err
			break
		}
		reads.Go(func(ctx context.Context) (contribution, error) {
			return a.read(ctx, token, id)
		})
	}
	contributions, err := reads.Wait()
	if listErr != nil {
		return nil, errors.Wrap(listErr, "cannot scan coverage records")
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot read coverage records")
	}

	res := &Result{}
	data := coverage.NewData()
	contributed := map[string]bool{}
	for _, c := range contributions {
		switch {
		case c.absent:
			res.Absent++
			a.metrics.RecordAbsent()
			continue
		case c.corrupt:
			res.Corrupt++
			a.metrics.RecordCorrupt()
		default:
			data.Merge(c.record.Data)
			a.metrics.RecordMerged()
			if c.record.Worker != "" && !c.record.Data.Empty() {
				contributed[c.record.Worker] = true
			}
		}
		res.Consumed = append(res.Consumed, c.id)
	}
	sort.Strings(res.Consumed)

	workers, err := a.store.Workers(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "cannot list workers")
	}
	for _, worker := range workers {
		if !contributed[worker] {
			res.FailedWorkers = append(res.FailedWorkers, worker)
		}
	}
	sort.Strings(res.FailedWorkers)
	a.metrics.SetFailedWorkers(len(res.FailedWorkers))

	for _, id := range res.Consumed {
		if err := a.store.Delete(ctx, token, id); err != nil {
			return nil, errors.Wrap(err, "cannot clean up coverage records")
		}
	}
	for _, worker := range workers {
		if err := a.store.ForgetWorker(ctx, token, worker); err != nil {
			return nil, errors.Wrap(err, "cannot clean up workers")
		}
	}

	res.Model = a.model(data)
	log.Debug().Str("run", token).
		Int("records", len(res.Consumed)).
		Int("absent", res.Absent).
		Int("corrupt", res.Corrupt).
		Int("files", len(res.Model.Files)).
		Msg("combined coverage records")
	return res, nil
}

// read reads and decodes a single record.
func (a *Aggregator) read(ctx context.Context, token, id string) (contribution, error) {
	b, err := a.store.Read(ctx, token, id)
	if err != nil {
		if errors.Is(err, store.ErrAbsent) {
			log.Debug().Str("record", id).Msg("coverage record vanished")
			return contribution{id: id, absent: true}, nil
		}
		return contribution{}, err
	}
	rec, err := coverage.DecodeRecord(b)
	if err != nil {
		log.Warn().Err(err).Str("record", id).Msg("ignoring corrupt coverage record")
		return contribution{id: id, corrupt: true}, nil
	}
	return contribution{id: id, record: rec}, nil
}

// model builds the coverage model from the merged hit data, determining the
// statements of all measured files. Files without source are skipped.
func (a *Aggregator) model(data *coverage.Data) *coverage.Model {
	m := coverage.NewModel()
	for _, file := range data.Files() {
		if !a.filter.Keep(file) {
			continue
		}
		stmts, err := a.analyzer.Statements(file)
		if err != nil {
			log.Warn().Err(err).Str("file", file).Msg("skipping file")
			continue
		}
		f := &coverage.File{
			Executed:   data.Lines[file],
			Statements: stmts,
			Arcs:       data.Arcs[file],
		}
		if f.Arcs == nil {
			f.Arcs = coverage.ArcSet{}
		}
		m.Files[file] = f
	}
	return m
}
