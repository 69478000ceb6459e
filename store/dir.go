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

package store

import (
	"context"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	recordSuffix = ".rec"
	workerSuffix = ".wrk"
)

// Dir is a Store keeping records as individual files in a (shared)
// directory. Records are named "<token>.<id>.rec" and become visible
// atomically only after they have been completely written. Worker markers
// are empty files named "<token>.<worker>.wrk".
type Dir struct {
	path string
}

var _ Store = (*Dir)(nil)

// NewDir returns a directory store in the specified directory, creating the
// directory if necessary.
func NewDir(path string) (*Dir, error) {
	if path == "" {
		return nil, errors.New("no store directory")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrapf(err, "cannot create store directory %q", path)
	}
	return &Dir{path: path}, nil
}

// Path returns the store's directory.
func (d *Dir) Path() string { return d.path }

func (d *Dir) filename(token, name, suffix string) string {
	return filepath.Join(d.path, token+"."+name+suffix)
}

// Write writes the record into a temporary file first and then links it
// into place, which fails instead of replacing an already existing record.
func (d *Dir) Write(ctx context.Context, token, id string, data []byte) error {
	if err := checkName(token, id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.path, "."+token+"."+id+".*")
	if err != nil {
		return errors.Wrap(err, "cannot create record")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "cannot write record")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "cannot write record")
	}
	if err := os.Link(tmp.Name(), d.filename(token, id, recordSuffix)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return errors.Wrap(err, "cannot store record")
	}
	return nil
}

// Pending lists the records of the specified run, reading the directory in
// batches.
func (d *Dir) Pending(ctx context.Context, token string) iter.Seq2[string, error] {
	return d.list(ctx, token, recordSuffix)
}

func (d *Dir) list(ctx context.Context, token, suffix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := checkToken(token); err != nil {
			yield("", err)
			return
		}
		dir, err := os.Open(d.path)
		if err != nil {
			yield("", errors.Wrapf(err, "cannot list store directory %q", d.path))
			return
		}
		defer dir.Close()
		prefix := token + "."
		for {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			names, err := dir.Readdirnames(64)
			for _, name := range names {
				if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
					continue
				}
				id := name[len(prefix) : len(name)-len(suffix)]
				if id == "" {
					continue
				}
				if !yield(id, nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield("", errors.Wrapf(err, "cannot list store directory %q", d.path))
				return
			}
		}
	}
}

// Read reads the specified record.
func (d *Dir) Read(ctx context.Context, token, id string) ([]byte, error) {
	if err := checkName(token, id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.filename(token, id, recordSuffix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrAbsent
		}
		return nil, errors.Wrap(err, "cannot read record")
	}
	return data, nil
}

// Delete removes the specified record.
func (d *Dir) Delete(ctx context.Context, token, id string) error {
	if err := checkName(token, id); err != nil {
		return err
	}
	return d.remove(d.filename(token, id, recordSuffix))
}

// RegisterWorker creates the worker's marker file.
func (d *Dir) RegisterWorker(ctx context.Context, token, worker string) error {
	if err := checkName(token, worker); err != nil {
		return err
	}
	f, err := os.OpenFile(d.filename(token, worker, workerSuffix),
		os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "cannot register worker")
	}
	return f.Close()
}

// Workers lists the worker marker files of the specified run.
func (d *Dir) Workers(ctx context.Context, token string) ([]string, error) {
	workers := []string{}
	for worker, err := range d.list(ctx, token, workerSuffix) {
		if err != nil {
			return nil, err
		}
		workers = append(workers, worker)
	}
	return workers, nil
}

// ForgetWorker removes the worker's marker file.
func (d *Dir) ForgetWorker(ctx context.Context, token, worker string) error {
	if err := checkName(token, worker); err != nil {
		return err
	}
	return d.remove(d.filename(token, worker, workerSuffix))
}

func (d *Dir) remove(name string) error {
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "cannot delete from store")
	}
	return nil
}

// Close does nothing, as there is nothing to release.
func (d *Dir) Close() error { return nil }
