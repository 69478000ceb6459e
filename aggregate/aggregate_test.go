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

package aggregate

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/thediveo/procov/analysis"
	"github.com/thediveo/procov/coverage"
	"github.com/thediveo/procov/metrics"
	"github.com/thediveo/procov/store"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const token = "run-42"

var (
	central, _ = filepath.Abs("../testdata/central/central.go")
	child, _   = filepath.Abs("../testdata/subprocess/child.go")
	parent, _  = filepath.Abs("../testdata/subprocess/parent.go")
)

// faultyStore fails reading (or pretends absence of) selected records.
type faultyStore struct {
	store.Store
	absent string
	broken string
}

func (s *faultyStore) Read(ctx context.Context, token, id string) ([]byte, error) {
	switch id {
	case s.absent:
		return nil, store.ErrAbsent
	case s.broken:
		return nil, errors.New("disk on fire")
	}
	return s.Store.Read(ctx, token, id)
}

func write(s store.Store, id, worker string, hits map[string][]int) {
	GinkgoHelper()
	data := coverage.NewData()
	for file, lines := range hits {
		data.Touch(file)
		for _, line := range lines {
			data.Hit(file, line)
		}
	}
	rec := &coverage.Record{ID: id, Worker: worker, Host: "h", PID: 1,
		Started: time.Now(), Stopped: time.Now(), Data: data}
	b, err := rec.Encode()
	Expect(err).NotTo(HaveOccurred())
	Expect(s.Write(context.Background(), token, id, b)).To(Succeed())
}

func pending(s store.Store) []string {
	GinkgoHelper()
	ids := []string{}
	for id, err := range s.Pending(context.Background(), token) {
		Expect(err).NotTo(HaveOccurred())
		ids = append(ids, id)
	}
	return ids
}

var _ = Describe("aggregating", func() {

	var s *store.Dir
	var analyzer *analysis.Analyzer
	ctx := context.Background()

	BeforeEach(func() {
		var err error
		s, err = store.NewDir(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		analyzer, err = analysis.New()
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns an empty model without records", func() {
		res, err := New(s, analyzer).Combine(ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Model.Empty()).To(BeTrue())
		Expect(res.Consumed).To(BeEmpty())
		Expect(res.FailedWorkers).To(BeEmpty())
	})

	It("unions the hits of multiple processes and cleans up", func() {
		write(s, "h-1-a", "", map[string][]int{central: {7, 8, 11, 12, 13, 15, 16}})
		write(s, "h-2-b", "", map[string][]int{central: {7, 8, 12}})
		m := metrics.New()
		res, err := New(s, analyzer, WithMetrics(m), WithParallelism(1)).Combine(ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Consumed).To(Equal([]string{"h-1-a", "h-2-b"}))
		rep := res.Model.Report()
		Expect(rep.Statements).To(Equal(8))
		Expect(rep.Missed).To(Equal(1))
		Expect(rep.Percent()).To(Equal(87.5))
		Expect(rep.Files[0].Missing).To(Equal([]int{9}))
		Expect(pending(s)).To(BeEmpty())
	})

	It("attributes subprocess coverage", func() {
		write(s, "h-1-p", "", map[string][]int{parent: {11, 12, 13, 14, 15, 16, 17, 18}, child: {}})
		write(s, "h-2-c", "", map[string][]int{child: {5, 6, 7, 9, 12}})
		write(s, "h-3-c", "", map[string][]int{child: {5, 6, 9, 10, 12}})
		res, err := New(s, analyzer).Combine(ctx, token)
		Expect(err).NotTo(HaveOccurred())
		rep := res.Model.Report()
		Expect(rep.Files).To(HaveLen(2))
		for _, f := range rep.Files {
			switch f.Name {
			case child:
				Expect(f.Statements).To(Equal(6))
			case parent:
				Expect(f.Statements).To(Equal(8))
			}
			Expect(f.Missed).To(BeZero(), f.Name)
		}
		Expect(rep.Percent()).To(Equal(100.0))
	})

	It("treats absent and corrupt records as zero contribution", func() {
		write(s, "h-1-a", "", map[string][]int{central: {7}})
		write(s, "h-2-gone", "", map[string][]int{central: {8}})
		Expect(s.Write(ctx, token, "h-3-bad", []byte("{garbage"))).To(Succeed())
		res, err := New(&faultyStore{Store: s, absent: "h-2-gone"}, analyzer).Combine(ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Absent).To(Equal(1))
		Expect(res.Corrupt).To(Equal(1))
		Expect(res.Consumed).To(ConsistOf("h-1-a", "h-3-bad"))
		Expect(res.Model.Files[central].Executed.Sorted()).To(Equal([]int{7}))
		Expect(pending(s)).To(ConsistOf("h-2-gone"))
	})

	It("fails on store I/O errors without cleaning up", func() {
		write(s, "h-1-a", "", map[string][]int{central: {7}})
		write(s, "h-2-b", "", map[string][]int{central: {8}})
		_, err := New(&faultyStore{Store: s, broken: "h-2-b"}, analyzer).Combine(ctx, token)
		Expect(err).To(MatchError(ContainSubstring("disk on fire")))
		Expect(pending(s)).To(ConsistOf("h-1-a", "h-2-b"))
	})

	It("fails on scan errors", func() {
		_, err := New(s, analyzer).Combine(ctx, "bad.token")
		Expect(err).To(MatchError(ContainSubstring("cannot scan coverage records")))
	})

	It("lists failed workers", func() {
		for _, worker := range []string{"gw0", "gw1", "gw2"} {
			Expect(s.RegisterWorker(ctx, token, worker)).To(Succeed())
		}
		write(s, "h-1-a", "gw0", map[string][]int{central: {7}})
		write(s, "h-2-b", "gw1", map[string][]int{central: {}})
		m := metrics.New()
		res, err := New(s, analyzer, WithMetrics(m)).Combine(ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.FailedWorkers).To(Equal([]string{"gw1", "gw2"}))
		Expect(s.Workers(ctx, token)).To(BeEmpty())
	})

	It("skips files without source and omitted files", func() {
		write(s, "h-1-a", "", map[string][]int{
			"/nonexisting/a.go": {1},
			central:             {7},
			child:               {5},
		})
		res, err := New(s, analyzer, WithFilter(coverage.NewFileFilter(nil, []string{"*/subprocess/*"}))).
			Combine(ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Model.Names()).To(Equal([]string{central}))
	})

})
