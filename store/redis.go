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
	"iter"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// scanBatch is the number of keys asked for per SCAN round trip.
const scanBatch = 100

// Redis is a Store keeping records as Redis string values under the keys
// "procov:<token>:rec:<id>"; the workers of a run are kept in the set
// "procov:<token>:workers".
type Redis struct {
	client redis.UniversalClient
	owned  bool
}

var _ Store = (*Redis)(nil)

// NewRedis returns a Redis store using the specified client. Closing the
// store leaves the client open.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// OpenRedis returns a Redis store connected to the Redis server specified by
// a "redis://" or "rediss://" URL.
func OpenRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "invalid Redis store URL")
	}
	return &Redis{client: redis.NewClient(opts), owned: true}, nil
}

func recordKey(token, id string) string {
	return "procov:" + token + ":rec:" + id
}

func workersKey(token string) string {
	return "procov:" + token + ":workers"
}

// Write sets the record only if it does not exist yet.
func (r *Redis) Write(ctx context.Context, token, id string, data []byte) error {
	if err := checkName(token, id); err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, recordKey(token, id), data, 0).Result()
	if err != nil {
		return errors.Wrap(err, "failed to write record")
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// Pending iterates the record keys of the specified run using SCAN. As SCAN
// might return the same key multiple times, duplicates are filtered.
func (r *Redis) Pending(ctx context.Context, token string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := checkToken(token); err != nil {
			yield("", err)
			return
		}
		prefix := recordKey(token, "")
		seen := map[string]struct{}{}
		var cursor uint64
		for {
			keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
			if err != nil {
				yield("", errors.Wrap(err, "failed to list records"))
				return
			}
			for _, key := range keys {
				id := strings.TrimPrefix(key, prefix)
				if _, ok := seen[id]; ok || id == "" {
					continue
				}
				seen[id] = struct{}{}
				if !yield(id, nil) {
					return
				}
			}
			if next == 0 {
				return
			}
			cursor = next
		}
	}
}

// Read gets the specified record.
func (r *Redis) Read(ctx context.Context, token, id string) ([]byte, error) {
	if err := checkName(token, id); err != nil {
		return nil, err
	}
	data, err := r.client.Get(ctx, recordKey(token, id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrAbsent
		}
		return nil, errors.Wrap(err, "failed to read record")
	}
	return data, nil
}

// Delete deletes the specified record.
func (r *Redis) Delete(ctx context.Context, token, id string) error {
	if err := checkName(token, id); err != nil {
		return err
	}
	if err := r.client.Del(ctx, recordKey(token, id)).Err(); err != nil {
		return errors.Wrap(err, "failed to delete record")
	}
	return nil
}

// RegisterWorker adds the worker to the run's worker set.
func (r *Redis) RegisterWorker(ctx context.Context, token, worker string) error {
	if err := checkName(token, worker); err != nil {
		return err
	}
	if err := r.client.SAdd(ctx, workersKey(token), worker).Err(); err != nil {
		return errors.Wrap(err, "failed to register worker")
	}
	return nil
}

// Workers returns the members of the run's worker set.
func (r *Redis) Workers(ctx context.Context, token string) ([]string, error) {
	if err := checkToken(token); err != nil {
		return nil, err
	}
	workers, err := r.client.SMembers(ctx, workersKey(token)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list workers")
	}
	return workers, nil
}

// ForgetWorker removes the worker from the run's worker set.
func (r *Redis) ForgetWorker(ctx context.Context, token, worker string) error {
	if err := checkName(token, worker); err != nil {
		return err
	}
	if err := r.client.SRem(ctx, workersKey(token), worker).Err(); err != nil {
		return errors.Wrap(err, "failed to forget worker")
	}
	return nil
}

// Close closes the Redis client, if the store has created it.
func (r *Redis) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}
