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

package coverage_test

import (
	"github.com/thediveo/procov/coverage"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("coverage model", func() {

	It("derives per-file and total reports", func() {
		m := coverage.NewModel()
		m.Files["/b.go"] = &coverage.File{
			Executed:   coverage.NewLineSet(1, 2, 3, 4, 5, 6, 7),
			Statements: coverage.NewLineSet(1, 2, 3, 4, 5, 6, 7, 8),
		}
		m.Files["/a.go"] = &coverage.File{
			Executed:   coverage.NewLineSet(),
			Statements: coverage.NewLineSet(),
		}
		rep := m.Report()
		Expect(rep.Empty()).To(BeFalse())
		Expect(rep.Files).To(HaveLen(2))
		Expect(rep.Files[0].Name).To(Equal("/a.go"))
		Expect(rep.Files[0].Percent()).To(Equal(100.0))
		Expect(rep.Files[1].Statements).To(Equal(8))
		Expect(rep.Files[1].Missed).To(Equal(1))
		Expect(rep.Files[1].Missing).To(Equal([]int{8}))
		Expect(rep.Statements).To(Equal(8))
		Expect(rep.Missed).To(Equal(1))
		Expect(rep.Percent()).To(Equal(87.5))
	})

	It("ignores executed non-statement lines", func() {
		m := coverage.NewModel()
		m.Files["/a.go"] = &coverage.File{
			Executed:   coverage.NewLineSet(1, 2, 100),
			Statements: coverage.NewLineSet(1, 2, 3),
		}
		rep := m.Report()
		Expect(rep.Missed).To(Equal(1))
		Expect(rep.Files[0].MissingRanges()).To(Equal("3"))
	})

	It("reports empty models", func() {
		rep := coverage.NewModel().Report()
		Expect(rep.Empty()).To(BeTrue())
		Expect(rep.Statements).To(BeZero())
	})

	DescribeTable("formats missing line ranges",
		func(statements, missing []int, expected string) {
			Expect(coverage.Ranges(statements, missing)).To(Equal(expected))
		},
		Entry("nothing missing", []int{1, 2, 3}, nil, ""),
		Entry("single", []int{1, 2, 3}, []int{2}, "2"),
		Entry("run", []int{1, 2, 3, 4}, []int{2, 3, 4}, "2-4"),
		Entry("run across gaps", []int{3, 5, 9, 12}, []int{3, 5, 12}, "3-5, 12"),
		Entry("several", []int{1, 2, 3, 4, 5}, []int{1, 3, 4}, "1, 3-4"),
	)

})
