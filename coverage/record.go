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

package coverage

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Record is the persisted form of the hit data of a single session. A Record
// is written exactly once by its owning session and never changes
// afterwards.
type Record struct {
	ID      string    // unique session identifier.
	Worker  string    // name of the worker the session ran in, if any.
	Host    string    // host name of the session's process.
	PID     int       // process ID of the session's process.
	Started time.Time // when the session started.
	Stopped time.Time // when the session stopped and froze its hit data.
	Data    *Data     // the frozen hit data; never nil after decoding.
}

// recordJSON is the wire format of a Record, with lines and arcs as sorted
// arrays so that encoding the same Record always yields the same bytes.
type recordJSON struct {
	ID      string              `json:"id"`
	Worker  string              `json:"worker,omitempty"`
	Host    string              `json:"host"`
	PID     int                 `json:"pid"`
	Started time.Time           `json:"started"`
	Stopped time.Time           `json:"stopped"`
	Lines   map[string][]int    `json:"lines"`
	Arcs    map[string][][2]int `json:"arcs,omitempty"`
}

// Encode returns the JSON serialization of this Record.
func (r *Record) Encode() ([]byte, error) {
	rj := recordJSON{
		ID:      r.ID,
		Worker:  r.Worker,
		Host:    r.Host,
		PID:     r.PID,
		Started: r.Started,
		Stopped: r.Stopped,
		Lines:   map[string][]int{},
	}
	if r.Data != nil {
		for file, lines := range r.Data.Lines {
			rj.Lines[file] = lines.Sorted()
		}
		for file, arcs := range r.Data.Arcs {
			if rj.Arcs == nil {
				rj.Arcs = map[string][][2]int{}
			}
			pairs := [][2]int{}
			for _, arc := range arcs.Sorted() {
				pairs = append(pairs, [2]int{arc.From, arc.To})
			}
			rj.Arcs[file] = pairs
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&rj); err != nil {
		return nil, errors.Wrap(err, "cannot encode coverage record")
	}
	return buf.Bytes(), nil
}

// DecodeRecord decodes a Record from its JSON serialization. Decoding
// rejects unknown fields as well as non-positive line numbers.
func DecodeRecord(b []byte) (*Record, error) {
	var rj recordJSON
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rj); err != nil {
		return nil, errors.Wrap(err, "malformed coverage record")
	}
	if rj.ID == "" {
		return nil, errors.New("malformed coverage record: missing id")
	}
	r := &Record{
		ID:      rj.ID,
		Worker:  rj.Worker,
		Host:    rj.Host,
		PID:     rj.PID,
		Started: rj.Started,
		Stopped: rj.Stopped,
		Data:    NewData(),
	}
	for file, lines := range rj.Lines {
		ls := r.Data.Touch(file)
		for _, line := range lines {
			if line <= 0 {
				return nil, errors.Errorf(
					"malformed coverage record %q: invalid line %d in %q",
					rj.ID, line, file)
			}
			ls.Add(line)
		}
	}
	for file, pairs := range rj.Arcs {
		for _, pair := range pairs {
			r.Data.Arc(file, pair[0], pair[1])
		}
	}
	return r, nil
}
