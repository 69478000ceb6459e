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

package report

import (
	"html/template"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/thediveo/procov/coverage"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Coverage report</title>
</head>
<body>
<h1>Coverage report: {{.Total}}</h1>
<table>
<thead><tr><th>Module</th><th>statements</th><th>missing</th><th>coverage</th><th>missing lines</th></tr></thead>
<tbody>
{{- range .Files}}
<tr><td>{{.Name}}</td><td>{{.Statements}}</td><td>{{.Missed}}</td><td>{{.Cover}}</td><td>{{.Missing}}</td></tr>
{{- end}}
</tbody>
{{- if .Files}}
<tfoot><tr><td>Total</td><td>{{.Statements}}</td><td>{{.Missed}}</td><td>{{.Total}}</td><td></td></tr></tfoot>
{{- end}}
</table>
</body>
</html>
`))

type htmlFile struct {
	Name       string
	Statements int
	Missed     int
	Cover      string
	Missing    string
}

type htmlIndex struct {
	Files      []htmlFile
	Statements int
	Missed     int
	Total      string
}

// writeHTML writes the report as "index.html" into dir.
func writeHTML(dir string, rep *coverage.Report, root string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create HTML report directory %q", dir)
	}
	index := htmlIndex{
		Statements: rep.Statements,
		Missed:     rep.Missed,
	}
	if !rep.Empty() {
		index.Total = displayPercent(rep.Percent())
	}
	for _, f := range rep.Files {
		index.Files = append(index.Files, htmlFile{
			Name:       displayName(f.Name, root),
			Statements: f.Statements,
			Missed:     f.Missed,
			Cover:      displayPercent(f.Percent()),
			Missing:    f.MissingRanges(),
		})
	}
	out, err := os.Create(filepath.Join(dir, "index.html"))
	if err != nil {
		return errors.Wrap(err, "cannot write HTML report")
	}
	defer out.Close()
	if err := indexTemplate.Execute(out, index); err != nil {
		return errors.Wrap(err, "cannot write HTML report")
	}
	return errors.Wrap(out.Close(), "cannot write HTML report")
}
