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

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const token = "0123-abcd"

func collect(ctx context.Context, s Store, token string) ([]string, error) {
	ids := []string{}
	for id, err := range s.Pending(ctx, token) {
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// behavesLikeAStore specifies the common behavior of all store backends.
func behavesLikeAStore(newStore func() Store) {

	var s Store
	ctx := context.Background()

	BeforeEach(func() {
		s = newStore()
		DeferCleanup(func() { Expect(s.Close()).To(Succeed()) })
	})

	It("writes, lists, reads, and deletes records", func() {
		Expect(collect(ctx, s, token)).To(BeEmpty())
		Expect(s.Write(ctx, token, "host-1-aa", []byte("one"))).To(Succeed())
		Expect(s.Write(ctx, token, "host-2-bb", []byte("two"))).To(Succeed())
		Expect(s.Write(ctx, "other", "host-3-cc", []byte("three"))).To(Succeed())

		Expect(collect(ctx, s, token)).To(ConsistOf("host-1-aa", "host-2-bb"))
		// restartable
		Expect(collect(ctx, s, token)).To(ConsistOf("host-1-aa", "host-2-bb"))

		Expect(s.Read(ctx, token, "host-2-bb")).To(Equal([]byte("two")))
		Expect(s.Delete(ctx, token, "host-2-bb")).To(Succeed())
		Expect(s.Delete(ctx, token, "host-2-bb")).To(Succeed())
		_, err := s.Read(ctx, token, "host-2-bb")
		Expect(err).To(MatchError(ErrAbsent))
		Expect(collect(ctx, s, token)).To(ConsistOf("host-1-aa"))
		Expect(collect(ctx, s, "other")).To(ConsistOf("host-3-cc"))
	})

	It("never overwrites records", func() {
		Expect(s.Write(ctx, token, "host-1-aa", []byte("one"))).To(Succeed())
		Expect(s.Write(ctx, token, "host-1-aa", []byte("uno"))).To(MatchError(ErrExists))
		Expect(s.Read(ctx, token, "host-1-aa")).To(Equal([]byte("one")))
	})

	It("stops iterating early", func() {
		for i := 0; i < 10; i++ {
			Expect(s.Write(ctx, token, fmt.Sprintf("id-%d", i), []byte{})).To(Succeed())
		}
		n := 0
		for _, err := range s.Pending(ctx, token) {
			Expect(err).NotTo(HaveOccurred())
			n++
			if n == 3 {
				break
			}
		}
		Expect(n).To(Equal(3))
	})

	It("survives concurrent blind writes", func() {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				Expect(s.Write(ctx, token, fmt.Sprintf("id-%d", i), []byte("x"))).To(Succeed())
			}(i)
		}
		wg.Wait()
		Expect(collect(ctx, s, token)).To(HaveLen(20))
	})

	It("tracks workers", func() {
		Expect(s.Workers(ctx, token)).To(BeEmpty())
		Expect(s.RegisterWorker(ctx, token, "gw0")).To(Succeed())
		Expect(s.RegisterWorker(ctx, token, "gw1")).To(Succeed())
		Expect(s.RegisterWorker(ctx, token, "gw1")).To(Succeed())
		Expect(s.Workers(ctx, token)).To(ConsistOf("gw0", "gw1"))
		Expect(collect(ctx, s, token)).To(BeEmpty())
		Expect(s.ForgetWorker(ctx, token, "gw0")).To(Succeed())
		Expect(s.ForgetWorker(ctx, token, "gw0")).To(Succeed())
		Expect(s.Workers(ctx, token)).To(ConsistOf("gw1"))
	})

	It("rejects invalid names", func() {
		Expect(s.Write(ctx, "a.b", "id", nil)).NotTo(Succeed())
		Expect(s.Write(ctx, token, "../id", nil)).NotTo(Succeed())
		Expect(s.RegisterWorker(ctx, token, "")).NotTo(Succeed())
		_, err := collect(ctx, s, "")
		Expect(err).To(HaveOccurred())
	})

}

var _ = Describe("stores", func() {

	Context("directory", func() {
		behavesLikeAStore(func() Store {
			d, err := NewDir(filepath.Join(GinkgoT().TempDir(), "store"))
			Expect(err).NotTo(HaveOccurred())
			return d
		})

		It("leaves no temporary files", func() {
			d, err := NewDir(GinkgoT().TempDir())
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Write(context.Background(), token, "id", []byte("x"))).To(Succeed())
			entries, err := os.ReadDir(d.Path())
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Name()).To(Equal(token + ".id.rec"))
		})

		It("fails on I/O errors", func() {
			d, err := NewDir(filepath.Join(GinkgoT().TempDir(), "gone"))
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Remove(d.Path())).To(Succeed())
			_, err = collect(context.Background(), d, token)
			Expect(err).To(MatchError(ContainSubstring("cannot list store directory")))
		})
	})

	Context("redis", func() {
		var mr *miniredis.Miniredis

		BeforeEach(func() {
			var err error
			mr, err = miniredis.Run()
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(mr.Close)
		})

		behavesLikeAStore(func() Store {
			return NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		})

		It("opens by URL and uses the documented keys", func() {
			s, err := Open("redis://" + mr.Addr())
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()
			ctx := context.Background()
			Expect(s.Write(ctx, token, "id", []byte("x"))).To(Succeed())
			Expect(s.RegisterWorker(ctx, token, "gw0")).To(Succeed())
			Expect(mr.Exists("procov:" + token + ":rec:id")).To(BeTrue())
			Expect(mr.Members("procov:" + token + ":workers")).To(ConsistOf("gw0"))
		})

		It("fails when the server is gone", func() {
			s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
			mr.Close()
			_, err := collect(context.Background(), s, token)
			Expect(err).To(HaveOccurred())
			_, err = s.Read(context.Background(), token, "id")
			Expect(err).NotTo(MatchError(ErrAbsent))
		})
	})

	It("opens stores by location", func() {
		tmp := GinkgoT().TempDir()
		s, err := Open(tmp)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.(*Dir).Path()).To(Equal(tmp))
		s, err = Open("file://" + tmp)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.(*Dir).Path()).To(Equal(tmp))
		_, err = Open("s3://bucket")
		Expect(err).To(HaveOccurred())
		_, err = Open("redis://%zz")
		Expect(err).To(HaveOccurred())
	})

})
