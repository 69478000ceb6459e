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

// Package store persists raw coverage data records so that they survive the
// processes having written them, until they get picked up and merged.
//
// Records are scoped by the run token of the coverage run which produced
// them, so that multiple runs can share the same store without getting their
// data mixed up. Record names are unique by construction, so any number of
// processes might write blindly and concurrently into the same store.
package store

import (
	"context"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ErrAbsent signals that a record does not exist (anymore).
var ErrAbsent = errors.New("record absent")

// ErrExists signals that a record of the same name has already been written.
var ErrExists = errors.New("record already exists")

// Store is the shared persistence area for raw data records of coverage
// runs, as well as the worker markers of those runs.
type Store interface {
	// Write persists a new record under the specified run token and record
	// id, failing with ErrExists if such a record already exists.
	Write(ctx context.Context, token, id string, data []byte) error
	// Pending returns the sequence of ids of the records persisted under the
	// specified run token. The sequence is lazy and can be iterated
	// repeatedly; a store I/O error is yielded as the final element.
	Pending(ctx context.Context, token string) iter.Seq2[string, error]
	// Read returns the contents of the specified record, failing with
	// ErrAbsent if the record does not exist.
	Read(ctx context.Context, token, id string) ([]byte, error)
	// Delete removes the specified record; absent records are fine.
	Delete(ctx context.Context, token, id string) error
	// RegisterWorker marks the named worker as started in the specified run.
	RegisterWorker(ctx context.Context, token, worker string) error
	// Workers returns the names of the workers registered in the specified
	// run, in no particular order.
	Workers(ctx context.Context, token string) ([]string, error)
	// ForgetWorker removes the marker of the named worker.
	ForgetWorker(ctx context.Context, token, worker string) error
	// Close releases the store's resources.
	Close() error
}

// DefaultDir returns the directory of the default directory store.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "procov")
}

// Open opens the store specified by its location: an empty location opens
// the default directory store, "redis://" and "rediss://" URLs open Redis
// stores, and everything else names a directory, optionally as a "file://"
// URL.
func Open(location string) (Store, error) {
	switch {
	case location == "":
		return NewDir(DefaultDir())
	case strings.HasPrefix(location, "redis://"), strings.HasPrefix(location, "rediss://"):
		return OpenRedis(location)
	case strings.HasPrefix(location, "file://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid store location %q", location)
		}
		return NewDir(u.Path)
	case strings.Contains(location, "://"):
		return nil, errors.Errorf("unsupported store location %q", location)
	}
	return NewDir(location)
}

var (
	tokenRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	nameRe  = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)
)

// checkToken returns an error if the run token is unsuitable for naming
// records.
func checkToken(token string) error {
	if !tokenRe.MatchString(token) {
		return errors.Errorf("invalid run token %q", token)
	}
	return nil
}

// checkName returns an error if either the run token or the record or worker
// name is unsuitable for naming records.
func checkName(token, name string) error {
	if err := checkToken(token); err != nil {
		return err
	}
	if !nameRe.MatchString(name) {
		return errors.Errorf("invalid record or worker name %q", name)
	}
	return nil
}
