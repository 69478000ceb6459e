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

package tracer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func mustRead(path string) *Profile {
	GinkgoHelper()
	cp, err := ReadProfileFile(path)
	Expect(err).NotTo(HaveOccurred())
	return cp
}

var _ = Describe("coverage profile data", func() {

	It("rejects invalid coverage profile data files", func() {
		cp, err := ReadProfileFile("testdata/nonexisting.cov")
		Expect(err).NotTo(HaveOccurred())
		Expect(cp.Sources).To(BeEmpty())

		_, err = ReadProfileFile(os.TempDir())
		Expect(err).To(HaveOccurred())

		cp, err = ReadProfileFile("testdata/empty.cov")
		Expect(err).NotTo(HaveOccurred())
		Expect(cp.Mode).To(BeEmpty())
		Expect(cp.Sources).To(BeEmpty())

		for _, broken := range []string{"modeless", "broken1", "broken2", "broken3"} {
			_, err = ReadProfileFile("testdata/" + broken + ".cov")
			Expect(err).To(HaveOccurred(), broken)
		}
	})

	It("reads coverage profile data", func() {
		cp := mustRead("testdata/cov1.cov")
		Expect(cp.Mode).To(Equal("atomic"))
		Expect(cp.Sources).To(HaveLen(2))
		Expect(cp.Sources).To(HaveKey("a/b.go"))
		Expect(cp.Sources).To(HaveKey("a/c.go"))
		Expect(cp.Sources["a/b.go"].Blocks).To(HaveLen(2))
		Expect(cp.Sources["a/b.go"].Blocks[0]).To(Equal(ProfileBlock{
			StartLine: 1,
			StartCol:  0,
			EndLine:   2,
			EndCol:    42,
			NumStmts:  3,
			Counts:    456,
		}))
	})

	It("rejects merging different modes", func() {
		sum := NewProfile()
		Expect(sum.Merge(mustRead("testdata/cov1.cov"))).To(Succeed())
		Expect(sum.Merge(mustRead("testdata/set.cov"))).NotTo(Succeed())
	})

	It("merges mode \"atomic\"", func() {
		sum := NewProfile()
		Expect(sum.Merge(mustRead("testdata/cov1.cov"))).To(Succeed())
		Expect(sum.Merge(mustRead("testdata/cov2.cov"))).To(Succeed())
		Expect(sum.Merge(mustRead("testdata/empty.cov"))).To(Succeed())
		Expect(sum.Sources).To(HaveLen(3))
		Expect(sum.Sources["a/b.go"].Blocks).To(HaveLen(2))
		Expect(sum.Sources["a/c.go"].Blocks).To(HaveLen(1))
		Expect(sum.Sources["a/d.go"].Blocks).To(HaveLen(2))
		Expect(sum.Sources["a/b.go"].Blocks[0].Counts).To(Equal(uint32(4560)))
	})

	It("merges mode \"set\"", func() {
		sum := NewProfile()
		Expect(sum.Merge(mustRead("testdata/set.cov"))).To(Succeed())
		Expect(sum.Merge(mustRead("testdata/set.cov"))).To(Succeed())
		Expect(sum.Sources).To(HaveLen(2))
		Expect(sum.Sources["a/b.go"].Blocks[0].Counts).To(Equal(uint32(1)))
		Expect(sum.Sources["a/c.go"].Blocks[0].Counts).To(BeZero())
	})

	It("converts executed blocks into line hits", func() {
		cp := mustRead("testdata/cov1.cov")
		data := cp.Data(func(name string) string { return "/src/" + name })
		Expect(data.Files()).To(ConsistOf("/src/a/b.go", "/src/a/c.go"))
		Expect(data.Lines["/src/a/b.go"].Sorted()).To(Equal([]int{1, 2}))
		Expect(data.Lines["/src/a/c.go"].Sorted()).To(Equal([]int{3}))

		data = mustRead("testdata/set.cov").Data(nil)
		Expect(data.Lines).To(HaveKey("a/c.go"))
		Expect(data.Lines["a/c.go"]).To(BeEmpty())
	})

	It("reads from readers", func() {
		cp, err := ReadProfile(strings.NewReader("mode: count\nx.go:1.1,1.2 1 3\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cp.Mode).To(Equal("count"))
		Expect(cp.Sources["x.go"].Blocks).To(HaveLen(1))
	})

	It("writes sorted coverage profile data", func() {
		var buff bytes.Buffer
		Expect(NewProfile().Write(&buff)).To(Succeed())
		Expect(buff.String()).To(BeEmpty())

		cp, err := ReadProfile(strings.NewReader(
			"mode: set\nz.go:3.1,4.2 1 0\na.go:5.1,6.2 2 1\na.go:1.1,2.2 1 1\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cp.Write(&buff)).To(Succeed())
		Expect(buff.String()).To(Equal(
			"mode: set\na.go:1.1,2.2 1 1\na.go:5.1,6.2 2 1\nz.go:3.1,4.2 1 0\n"))
	})

	It("merges coverage profile data files", func() {
		sum := filepath.Join(GinkgoT().TempDir(), "sum.cov")
		cov1, err := os.ReadFile("testdata/cov1.cov")
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(sum, cov1, 0o644)).To(Succeed())
		Expect(MergeProfileFiles(sum, "testdata/cov2.cov", "testdata/nonexisting.cov")).To(Succeed())
		cp := mustRead(sum)
		Expect(cp.Sources).To(HaveLen(3))
		Expect(cp.Sources["a/b.go"].Blocks[0].Counts).To(Equal(uint32(4560)))

		Expect(MergeProfileFiles(sum, "testdata/set.cov")).To(
			MatchError(ContainSubstring("cannot merge")))
	})

})
