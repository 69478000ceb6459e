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

package config

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sethvargo/go-envconfig"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("configuration", func() {

	ctx := context.Background()

	Context("environment", func() {

		It("decodes the activation environment", func() {
			c, err := FromLookuper(ctx, envconfig.MapLookuper(map[string]string{
				EnvRun:      "tok",
				EnvSource:   "/a,/b",
				EnvBranch:   "true",
				EnvStore:    "redis://localhost:6379/0",
				EnvWorker:   "gw0",
				EnvLogLevel: "debug",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Active()).To(BeTrue())
			Expect(c.Source).To(Equal([]string{"/a", "/b"}))
			Expect(c.Branch).To(BeTrue())
			Expect(c.Tracer).To(Equal("coverprofile"))
			Expect(c.Worker).To(Equal("gw0"))
		})

		It("is inactive without run token", func() {
			c, err := FromLookuper(ctx, envconfig.MapLookuper(map[string]string{}))
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Active()).To(BeFalse())
		})

		It("rejects malformed values", func() {
			_, err := FromLookuper(ctx, envconfig.MapLookuper(map[string]string{
				EnvBranch: "perhaps",
			}))
			var cerr *Error
			Expect(errors.As(err, &cerr)).To(BeTrue())
			Expect(cerr.Source).To(Equal("environment"))
		})

		It("round-trips through the environment", func() {
			c := &Config{Run: "tok", Source: []string{"/a", "/b"}, Branch: true, Tracer: "coverprofile"}
			Expect(c.Environ()).To(ConsistOf(
				"PROCOV_RUN=tok", "PROCOV_SOURCE=/a,/b", "PROCOV_BRANCH=true", "PROCOV_TRACER=coverprofile"))
			wc := c.WithWorker("gw1")
			Expect(wc.Worker).To(Equal("gw1"))
			Expect(c.Worker).To(BeEmpty())

			env := map[string]string{}
			for _, kv := range wc.Environ() {
				k, v, _ := strings.Cut(kv, "=")
				env[k] = v
			}
			c2, err := FromLookuper(ctx, envconfig.MapLookuper(env))
			Expect(err).NotTo(HaveOccurred())
			Expect(c2).To(Equal(wc))
		})

		It("exports into the process environment", func() {
			DeferCleanup(os.Unsetenv, EnvRun)
			DeferCleanup(os.Unsetenv, EnvWorker)
			Expect((&Config{Run: "tok-export", Worker: "gw9"}).Export()).To(Succeed())
			c, err := FromEnv(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Run).To(Equal("tok-export"))
			Expect(c.Worker).To(Equal("gw9"))
		})

		It("makes paths absolute for other working directories", func() {
			wd, _ := os.Getwd()
			c := (&Config{
				Run:      "tok",
				Source:   []string{"b", "a", "b"},
				Config:   "testdata/procovrc",
				Store:    "records",
				CoverDir: "/tmp/covdata",
			}).Absolute()
			Expect(c.Source).To(Equal([]string{filepath.Join(wd, "a"), filepath.Join(wd, "b")}))
			Expect(c.Config).To(Equal(filepath.Join(wd, "testdata/procovrc")))
			Expect(c.Store).To(Equal(filepath.Join(wd, "records")))
			Expect(c.CoverDir).To(Equal("/tmp/covdata"))

			c = (&Config{Store: "redis://localhost:6379/0"}).Absolute()
			Expect(c.Store).To(Equal("redis://localhost:6379/0"))
			Expect(c.Config).To(BeEmpty())
		})

	})

	Context("files", func() {

		DescribeTable("loads all formats",
			func(path string) {
				f, err := Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(f.Run.Source).To(Equal([]string{"pkg", "cmd"}))
				Expect(f.Run.Omit).To(Equal([]string{"*/testdata/*", "*/mock_*.go"}))
				Expect(f.Run.Branch).To(BeTrue())
				Expect(f.Report.ExcludeLines).To(Equal([]string{`if debug \{`, `panic\("unreachable"\)`}))
				Expect(f.Report.Omit).To(Equal([]string{"*_gen.go"}))
				Expect(f.Report.FailUnder).To(Equal(87.5))
				Expect(f.Report.ShowMissing).To(BeTrue())
			},
			Entry("INI", "testdata/procovrc"),
			Entry("YAML", "testdata/procov.yaml"),
			Entry("TOML", "testdata/procov.toml"),
		)

		DescribeTable("rejects invalid files",
			func(path string) {
				_, err := Load(path)
				var cerr *Error
				Expect(errors.As(err, &cerr)).To(BeTrue())
				Expect(cerr.Source).To(Equal(path))
				Expect(err.Error()).To(HavePrefix("invalid configuration in " + path))
			},
			Entry("missing", "testdata/nonexisting.ini"),
			Entry("threshold out of range", "testdata/threshold.ini"),
			Entry("threshold not a number", "testdata/nan.ini"),
			Entry("unknown YAML setting", "testdata/unknown.yaml"),
			Entry("unknown TOML setting", "testdata/unknown.toml"),
			Entry("broken INI", "testdata/broken.ini"),
		)

		It("checks thresholds", func() {
			Expect(CheckThreshold(0)).To(Succeed())
			Expect(CheckThreshold(100)).To(Succeed())
			Expect(CheckThreshold(-1)).NotTo(Succeed())
			Expect(CheckThreshold(100.5)).NotTo(Succeed())
			Expect(CheckThreshold(math.NaN())).NotTo(Succeed())
		})

	})

	Context("settings", func() {

		It("prefers the environment", func() {
			c := &Config{Config: "testdata/procov.toml", Source: []string{"/x", "/x/"}}
			s, err := c.Settings()
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Sources).To(Equal([]string{"/x"}))
			Expect(s.Branch).To(BeTrue())
			Expect(s.FailUnder).To(Equal(87.5))
			Expect(s.ExcludeLines).To(HaveLen(2))
		})

		It("makes sources absolute", func() {
			c := &Config{Config: "testdata/procov.yaml"}
			s, err := c.Settings()
			Expect(err).NotTo(HaveOccurred())
			wd, _ := os.Getwd()
			Expect(s.Sources).To(Equal([]string{filepath.Join(wd, "cmd"), filepath.Join(wd, "pkg")}))
		})

		It("works without configuration file", func() {
			s, err := (&Config{}).Settings()
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Sources).To(BeEmpty())
			Expect(s.FailUnder).To(BeZero())
		})

		It("fails on broken configuration files", func() {
			_, err := (&Config{Config: "testdata/broken.ini"}).Settings()
			Expect(err).To(HaveOccurred())
		})

	})

})
