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

package procov_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/thediveo/procov"
	"github.com/thediveo/procov/config"
	"github.com/thediveo/procov/coverage"
	"github.com/thediveo/procov/reexec"
	"github.com/thediveo/procov/session"
	"github.com/thediveo/procov/store"
	"github.com/thediveo/procov/tracer"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var (
	centralSource, _ = filepath.Abs("testdata/central/central.go")
	outerRun         = os.Getenv(config.EnvRun)
)

func hit(c *session.Controller, file string, line int) {
	if rec, ok := c.Tracer().(*tracer.Recorder); ok {
		rec.Hit(file, line)
	}
}

// records returns the decoded records of the specified run.
func records(dir, token string) []*coverage.Record {
	GinkgoHelper()
	s, err := store.NewDir(dir)
	Expect(err).NotTo(HaveOccurred())
	ctx := context.Background()
	recs := []*coverage.Record{}
	for id, err := range s.Pending(ctx, token) {
		Expect(err).NotTo(HaveOccurred())
		b, err := s.Read(ctx, token, id)
		Expect(err).NotTo(HaveOccurred())
		rec, err := coverage.DecodeRecord(b)
		Expect(err).NotTo(HaveOccurred())
		recs = append(recs, rec)
	}
	return recs
}

func activation(dir, token string, extra ...string) []string {
	return append([]string{
		config.EnvRun + "=" + token,
		config.EnvStore + "=" + dir,
		config.EnvTracer + "=" + tracer.RecorderName,
		config.EnvSource + "=" + filepath.Dir(centralSource),
	}, extra...)
}

var _ = Describe("procov", func() {

	BeforeEach(func() {
		if outerRun != "" {
			Skip("already part of a coverage run")
		}
	})

	It("stays inactive without activation environment", func() {
		Expect(procov.Active()).To(BeNil())
		Expect(procov.Config()).To(BeNil())
		Expect(procov.Coordinator()).To(BeNil())
		Expect(procov.Status()).To(Succeed())
		Expect(procov.Finish(context.Background())).To(Succeed())
	})

	It("hands out distinct run tokens", func() {
		Expect(procov.NewRunToken()).NotTo(Equal(procov.NewRunToken()))
	})

	It("bootstraps re-executed children into the coverage run", func() {
		dir := GinkgoT().TempDir()
		var st childStatus
		Expect(reexec.ForkReexecEnv("status",
			activation(dir, "boot", config.EnvWorker+"=gw7"), &st)).To(Succeed())
		Expect(st).To(Equal(childStatus{Active: true, Run: "boot", Worker: "gw7"}))
		recs := records(dir, "boot")
		Expect(recs).To(HaveLen(1))
		Expect(recs[0].Worker).To(Equal("gw7"))
	})

	It("saves the coverage of re-executed children", func() {
		dir := GinkgoT().TempDir()
		var s string
		Expect(reexec.ForkReexecEnv("hit", activation(dir, "hits"), &s)).To(Succeed())
		Expect(s).To(Equal("hit"))
		recs := records(dir, "hits")
		Expect(recs).To(HaveLen(1))
		Expect(recs[0].Data.Lines).To(HaveKey(centralSource))
		Expect(recs[0].Data.Lines[centralSource].Sorted()).To(Equal([]int{7}))
	})

	It("reports bootstrap failures without aborting children", func() {
		dir := GinkgoT().TempDir()
		var st childStatus
		Expect(reexec.ForkReexecEnv("status",
			activation(dir, "boot", config.EnvTracer+"=dtrace"), &st)).To(Succeed())
		Expect(st.Active).To(BeFalse())
		Expect(st.Status).To(ContainSubstring("unknown tracer"))
		Expect(records(dir, "boot")).To(BeEmpty())
	})

	When("activating coverage", Ordered, func() {

		var dir string

		BeforeAll(func() {
			dir = GinkgoT().TempDir()
			DeferCleanup(func() {
				Expect(procov.Deactivate(context.Background())).To(Succeed())
				for _, kv := range os.Environ() {
					if key, _, _ := strings.Cut(kv, "="); strings.HasPrefix(key, "PROCOV_") {
						os.Unsetenv(key)
					}
				}
			})
		})

		It("initiates a new coverage run", func() {
			ctx := context.Background()
			c, err := procov.Activate(ctx, &config.Config{
				Store:  dir,
				Tracer: tracer.RecorderName,
				Source: []string{"testdata/central"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(c).NotTo(BeNil())
			Expect(c.Active()).To(BeTrue())
			Expect(procov.Active()).To(BeIdenticalTo(c))

			cfg := procov.Config()
			Expect(cfg.Run).NotTo(BeEmpty())
			Expect(cfg.Source).To(ConsistOf(filepath.Dir(centralSource)))
			Expect(os.Getenv(config.EnvRun)).To(Equal(cfg.Run))
			Expect(os.Getenv(config.EnvStore)).To(Equal(dir))
			Expect(procov.Coordinator()).NotTo(BeNil())

			again, err := procov.Activate(ctx, &config.Config{Run: "other"})
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(BeIdenticalTo(c))
		})

		It("turns re-executed children into workers", func() {
			run := procov.Config().Run
			var st childStatus
			Expect(reexec.ForkReexec("status", &st)).To(Succeed())
			Expect(st.Active).To(BeTrue())
			Expect(st.Run).To(Equal(run))
			Expect(st.Worker).To(Equal(procov.Active().ID().String() + "-gw0"))
		})

		It("finishes the coverage session", func() {
			ctx := context.Background()
			c := procov.Active()
			hit(c, centralSource, 7)
			hit(c, "/elsewhere/foo.go", 1)
			Expect(procov.Finish(ctx)).To(Succeed())
			Expect(c.Active()).To(BeFalse())
			recs := records(dir, procov.Config().Run)
			Expect(recs).To(HaveLen(2))
			for _, rec := range recs {
				Expect(rec.Data.Lines).NotTo(HaveKey("/elsewhere/foo.go"))
			}
		})

	})

})
