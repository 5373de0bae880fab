package store_test

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/edgecomet/pagestore/internal/common/htmlprocessor"
	"github.com/edgecomet/pagestore/internal/store"
)

var _ = Describe("Page store lifecycle", func() {
	var (
		root  string
		s     *store.Store
		now   time.Time
		clock func() time.Time
	)

	seo := store.SeoMeta{
		SeoTitle:    "Release notes",
		Description: "What changed & why",
		Keywords:    []string{"release", "notes"},
	}
	body := "<!doctype html><html><head><title>draft</title></head><body><h1>Notes</h1></body></html>"

	BeforeEach(func() {
		root = filepath.Join(GinkgoT().TempDir(), "data")
		now = time.Unix(1_710_000_000, 0)
		clock = func() time.Time { return now }
		s = store.New(root, zap.NewNop(), store.WithClock(clock))
	})

	Describe("auto id pages", func() {
		It("loads a page back by its uid with the same seo and identical html", func() {
			_, meta, err := s.CreateAutoID(store.PageMeta{SEO: seo}, body)
			Expect(err).ToNot(HaveOccurred())

			loaded, html, err := s.Load(meta.PageUID)
			Expect(err).ToNot(HaveOccurred())
			Expect(loaded.SEO).To(Equal(seo))
			Expect(html).To(Equal(body))
		})
	})

	Describe("timestamps", func() {
		It("keeps created_at fixed and never moves updated_at backwards", func() {
			created, err := s.Create("notes", store.PageMeta{SEO: seo}, body)
			Expect(err).ToNot(HaveOccurred())

			lastUpdated := created.UpdatedAt
			for i := 0; i < 5; i++ {
				now = now.Add(time.Duration(i-2) * time.Minute)
				updated, err := s.Update("notes", store.PageMeta{SEO: seo, CreatedAt: 1}, body)
				Expect(err).ToNot(HaveOccurred())
				Expect(updated.CreatedAt).To(Equal(created.CreatedAt))
				Expect(updated.UpdatedAt).To(BeNumerically(">=", lastUpdated))
				Expect(updated.UpdatedAt).To(BeNumerically(">=", updated.CreatedAt))
				lastUpdated = updated.UpdatedAt
			}
		})
	})

	Describe("deletion", func() {
		It("removes the page from exists and list", func() {
			_, err := s.Create("temporary", store.PageMeta{SEO: seo}, body)
			Expect(err).ToNot(HaveOccurred())

			Expect(s.Delete("temporary")).To(Succeed())

			exists, err := s.Exists("temporary")
			Expect(err).ToNot(HaveOccurred())
			Expect(exists).To(BeFalse())
			Expect(s.List()).ToNot(ContainElement("temporary"))
			Expect(filepath.Join(root, "temporary")).ToNot(BeADirectory())
		})
	})

	Describe("uid resolution", func() {
		It("resolves known uids whether or not they match the directory id", func() {
			autoID, autoMeta, err := s.CreateAutoID(store.PageMeta{SEO: seo}, body)
			Expect(err).ToNot(HaveOccurred())

			named, err := s.Create("named", store.PageMeta{SEO: seo}, body)
			Expect(err).ToNot(HaveOccurred())
			Expect(named.PageUID).ToNot(Equal("named"))

			id, ok, err := s.ResolveIDByUID(autoMeta.PageUID)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal(autoID))

			id, ok, err = s.ResolveIDByUID(named.PageUID)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal("named"))

			_, ok, err = s.ResolveIDByUID("NoSuchUid0000000")
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("index rebuild", func() {
		It("keeps only pages whose metadata is readable", func() {
			_, err := s.Create("good", store.PageMeta{SEO: seo}, body)
			Expect(err).ToNot(HaveOccurred())

			bad := filepath.Join(root, "bad")
			Expect(os.MkdirAll(bad, 0755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(bad, "meta.json"), []byte("{"), 0644)).To(Succeed())

			idx, err := s.RebuildIndex()
			Expect(err).ToNot(HaveOccurred())
			Expect(idx.IDs()).To(Equal([]string{"good"}))
		})
	})

	Describe("rendering", func() {
		It("injects seo tags into stored html exactly once", func() {
			_, err := s.Create("render", store.PageMeta{SEO: seo}, "<html><head></head><body></body></html>")
			Expect(err).ToNot(HaveOccurred())

			meta, html, err := s.Load("render")
			Expect(err).ToNot(HaveOccurred())

			out := htmlprocessor.InjectSEO(htmlprocessor.InjectSEO(html, meta.SEO.Tags()), meta.SEO.Tags())
			Expect(out).To(ContainSubstring("<title>Release notes</title>"))
			Expect(out).To(ContainSubstring(`content="What changed &amp; why"`))
			Expect(strings.Count(out, "<title>")).To(Equal(1))
			Expect(strings.Count(out, `name="description"`)).To(Equal(1))
			Expect(strings.Count(out, `name="keywords"`)).To(Equal(1))
		})
	})

	Describe("validation", func() {
		DescribeTable("rejected html leaves no page behind",
			func(html string) {
				_, err := s.Create("rejected", store.PageMeta{SEO: seo}, html)
				var vErr *htmlprocessor.ValidationError
				Expect(err).To(BeAssignableToTypeOf(vErr))
				Expect(filepath.Join(root, "rejected")).ToNot(BeADirectory())
			},
			Entry("empty", ""),
			Entry("unclosed", "<p>unclosed"),
			Entry("mismatched", "<div><span></div></span>"),
			Entry("nul byte", "<p>a\x00b</p>"),
		)
	})
})
