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

package testing

import (
	"bufio"
	"bytes"
	"io"
	"os"
)

// hide lists the prefixes of the lines of stderr output which a re-executed
// test child must not pass on to its parent.
var hide = [][]byte{
	[]byte("coverage:"),
	[]byte("testing:"),
}

// pritiPratel runs function f and passes only harmless error output destined
// to os.Stderr really on to os.Stderr. All dangerous talk about unwanted
// error truths will be sent into early retirement, such as the testing and
// coverage messages of Go's testing package. Parents of re-executed children
// take any stderr output of a child as its failure, so we don't want Go's
// testing output to interfere here.
func pritiPratel(f func()) {
	realStderr := os.Stderr
	// os.Stderr is an *os.File, so we need a "real" pipe with a file
	// descriptor, and not an in-memory io.Pipe().
	reader, writer, err := os.Pipe()
	if err != nil {
		panic("procov/testing: cannot create filtering pipe: " + err.Error())
	}
	os.Stderr = writer
	defer func() {
		os.Stderr = realStderr
		reader.Close()
		writer.Close()
	}()
	done := make(chan struct{})
	go func() {
		defer close(done)
		filterLines(realStderr, reader)
	}()
	f()
	writer.Close()
	<-done
}

// filterLines copies the lines read from r to w, except for the lines to be
// hidden. Lines of any length are supported and a final line without a
// trailing newline is copied as such.
func filterLines(w io.Writer, r io.Reader) {
	br := bufio.NewReaderSize(r, 1024)
	startOfLine := true
	hiding := false
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			if startOfLine {
				hiding = hidden(chunk)
			}
			if !hiding {
				if _, werr := w.Write(chunk); werr != nil {
					return
				}
			}
			startOfLine = chunk[len(chunk)-1] == '\n'
		}
		if err != nil && err != bufio.ErrBufferFull {
			return
		}
	}
}

// hidden returns true if the line starts with a prefix to hide.
func hidden(line []byte) bool {
	for _, h := range hide {
		if bytes.HasPrefix(line, h) {
			return true
		}
	}
	return false
}
