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

// Package policy evaluates the total coverage of a coverage run against the
// required minimum coverage.
package policy

import (
	"fmt"
	"math"
	"strconv"

	"github.com/thediveo/procov/coverage"
)

// Outcome of evaluating a coverage against a threshold.
type Outcome int

const (
	AtOrAbove Outcome = iota // coverage meets the threshold.
	Below                    // coverage is lower than the threshold.
)

// String returns the name of the outcome.
func (o Outcome) String() string {
	if o == Below {
		return "below"
	}
	return "at-or-above"
}

// Decision is the result of evaluating a coverage report.
type Decision struct {
	Outcome   Outcome
	Percent   float64 // total coverage percentage.
	Threshold float64 // required minimum coverage percentage.
	Message   string  // human-readable verdict.
}

// Evaluate evaluates the total coverage of the report against the specified
// threshold percentage.
func Evaluate(report *coverage.Report, threshold float64) Decision {
	d := Decision{
		Percent:   report.Percent(),
		Threshold: threshold,
	}
	if d.Percent < threshold {
		d.Outcome = Below
		d.Message = fmt.Sprintf("Coverage(%s%%) is lower than the required(%s%%)!",
			FormatPercent(d.Percent), formatFloat(threshold))
	} else {
		d.Message = fmt.Sprintf("Coverage(%s%%) is higher than the required(%s%%).",
			FormatPercent(d.Percent), formatFloat(threshold))
	}
	return d
}

// FormatPercent formats the percentage rounded to two decimals, in the
// shortest form, such as "87.5" or "100".
func FormatPercent(percent float64) string {
	return formatFloat(math.Round(percent*100) / 100)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
