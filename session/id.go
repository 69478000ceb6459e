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
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ID uniquely identifies a session across all processes and hosts of a
// coverage run. IDs are of the form "<host>-<pid>-<random>", so no two
// sessions ever write records of the same name.
type ID string

// NewID returns a new session ID for this process.
func NewID() ID {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return newID(host, os.Getpid())
}

func newID(host string, pid int) ID {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return ID(fmt.Sprintf("%s-%d-%s", sanitizeHost(host), pid, random))
}

// sanitizeHost replaces all characters that are unsuitable for record names
// with underscores.
func sanitizeHost(host string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, host)
}

// String returns the ID in textual form.
func (id ID) String() string { return string(id) }
