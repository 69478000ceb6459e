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
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/thediveo/procov/coverage"
)

// plainStyle renders tables without borders, in the style of classic
// coverage reports.
var plainStyle = func() table.Style {
	style := table.StyleDefault
	style.Name = "procov"
	style.Box.PaddingLeft = ""
	style.Box.PaddingRight = "   "
	style.Format.Header = text.FormatDefault
	style.Format.Footer = text.FormatDefault
	style.Options = table.Options{
		DrawBorder:      false,
		SeparateColumns: false,
		SeparateFooter:  true,
		SeparateHeader:  true,
		SeparateRows:    false,
	}
	return style
}()

// renderTable renders the report as a table with one row per file and a
// TOTAL footer. An empty report renders only the header row, so that no
// percentage gets shown at all.
func renderTable(w io.Writer, rep *coverage.Report, missing bool, root string) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(plainStyle)
	headers := table.Row{"Name", "Stmts", "Miss", "Cover"}
	if missing {
		headers = append(headers, "Missing")
	}
	t.AppendHeader(headers)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Stmts", Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Name: "Miss", Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Name: "Cover", Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	for _, f := range rep.Files {
		row := table.Row{displayName(f.Name, root), f.Statements, f.Missed, displayPercent(f.Percent())}
		if missing {
			row = append(row, f.MissingRanges())
		}
		t.AppendRow(row)
	}
	if !rep.Empty() {
		footer := table.Row{"TOTAL", rep.Statements, rep.Missed, displayPercent(rep.Percent())}
		if missing {
			footer = append(footer, "")
		}
		t.AppendFooter(footer)
	}
	t.Render()
	return nil
}
