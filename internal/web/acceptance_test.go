package web_test

import (
	"net/url"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edgecomet/pagestore/internal/web"
	. "github.com/edgecomet/pagestore/internal/web/webtest"
)

const articleHTML = `<!DOCTYPE html><html><head><title>Draft</title><meta name="description" content="draft"></head><body><article><h1>Hello</h1></article></body></html>`

// pagePath strips the site URL from a tool response URL
func pagePath(pageURL string) string {
	u, err := url.Parse(pageURL)
	Expect(err).NotTo(HaveOccurred())
	Expect(pageURL).To(HavePrefix(acceptanceSiteURL + web.PagesPrefix))
	return u.EscapedPath()
}

var _ = Describe("Page lifecycle through the tool API", Ordered, func() {
	var (
		pageID string
		path   string
		views  int
	)

	It("publishes a page", func() {
		response := testEnv.client.Tool(web.ToolPushPage, web.PushPageRequest{
			SeoTitle:    "Fish & Chips",
			Description: "A guide to \"proper\" chips",
			Keywords:    []string{"food", "uk"},
			HTML:        articleHTML,
		})
		ExpectStatus(response, 200)

		pushed := DecodeJSON[web.PushPageResponse](response)
		Expect(pushed.Success).To(BeTrue())
		Expect(pushed.PageID).To(HaveLen(16))
		Expect(pushed.URL).To(HaveSuffix("+" + pushed.PageID))

		pageID = pushed.PageID
		path = pagePath(pushed.URL)
	})

	It("serves the page with its SEO metadata replacing the original head tags", func() {
		response := testEnv.client.Get(path, nil)
		ExpectStatus(response, 200)
		views++

		Expect(response.Headers.Get("Content-Type")).To(ContainSubstring("text/html"))
		ExpectSEOHead(response, "Fish & Chips", `A guide to "proper" chips`)
		ExpectMetaTag(response, "description", "A guide to &#34;proper&#34; chips")
		ExpectMetaTag(response, "keywords", "food, uk")
		ExpectNotHTMLContent(response, "<title>Draft</title>", `content="draft"`)
		ExpectHTMLContent(response, "<article><h1>Hello</h1></article>")
	})

	It("lists the page on the index and in the sitemap", func() {
		index := testEnv.client.Get("/", nil)
		ExpectStatus(index, 200)
		ExpectHTMLContent(index, "Acceptance", "Fish &amp; Chips")

		sitemap := testEnv.client.Get("/sitemap.xml", map[string]string{"X-Forwarded-Proto": "https"})
		ExpectStatus(sitemap, 200)
		ExpectHTMLContent(sitemap, "<urlset", "<loc>https://", "<lastmod>")
		Expect(strings.Count(sitemap.Body, "<url>")).To(Equal(2))
	})

	It("applies partial updates", func() {
		newTitle := "Fish and Chips"
		response := testEnv.client.Tool(web.ToolUpdatePage, web.UpdatePageRequest{
			PageID:   pageID,
			SeoTitle: &newTitle,
		})
		ExpectStatus(response, 200)
		updated := DecodeJSON[web.UpdatePageResponse](response)
		Expect(updated.Success).To(BeTrue())
		Expect(updated.Meta.SEO.Description).To(Equal(`A guide to "proper" chips`))
		Expect(updated.Meta.PageUID).To(Equal(pageID))

		page := testEnv.client.Get(pagePath(updated.URL), nil)
		ExpectStatus(page, 200)
		views++
		ExpectSEOHead(page, "Fish and Chips", `A guide to "proper" chips`)
	})

	It("rejects an update with invalid HTML and keeps the page", func() {
		broken := "<div><span></div>"
		response := testEnv.client.Tool(web.ToolUpdatePage, web.UpdatePageRequest{
			PageID: pageID,
			HTML:   &broken,
		})
		ExpectStatus(response, 400)
		failed := DecodeJSON[web.UpdatePageResponse](response)
		Expect(failed.Success).To(BeFalse())
		Expect(failed.ErrorKind).To(Equal("validation"))

		page := testEnv.client.Get(path, nil)
		ExpectStatus(page, 200)
		views++
		ExpectHTMLContent(page, "<article><h1>Hello</h1></article>")
	})

	It("counts every concurrent view", func() {
		const readers = 20
		responses := make([]*Response, readers)
		var wg sync.WaitGroup
		for i := range readers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				responses[i] = testEnv.client.Get(path, nil)
			}()
		}
		wg.Wait()

		ExpectMinSuccessRate(responses, 1.0)
		views += CountSuccessfulResponses(responses)

		response := testEnv.client.Tool(web.ToolGetPageByID, web.GetPageByIDRequest{PageID: pageID})
		ExpectStatus(response, 200)
		detail := DecodeJSON[web.GetPageByIDResponse](response)
		Expect(detail.Page.Meta.ViewCount).To(BeNumerically("==", views))
		Expect(detail.Page.HTML).To(Equal(articleHTML))
	})

	It("deletes the page", func() {
		response := testEnv.client.Tool(web.ToolDeletePage, web.DeletePageRequest{PageID: pageID})
		ExpectStatus(response, 200)
		Expect(DecodeJSON[web.DeletePageResponse](response).Success).To(BeTrue())

		ExpectStatus(testEnv.client.Get(path, nil), 404)

		missing := testEnv.client.Tool(web.ToolGetPageByID, web.GetPageByIDRequest{PageID: pageID})
		ExpectStatus(missing, 404)
		Expect(DecodeJSON[web.GetPageByIDResponse](missing).ErrorKind).To(Equal("not_found"))

		all := testEnv.client.Tool(web.ToolGetAllPage, struct{}{})
		ExpectStatus(all, 200)
		Expect(DecodeJSON[web.GetAllPageResponse](all).Pages).To(BeEmpty())
	})
})

var _ = Describe("Routing", func() {
	It("answers unknown paths with the not found page", func() {
		response := testEnv.client.Get("/nowhere", nil)
		ExpectStatus(response, 404)
		ExpectHTMLContent(response, "Page not found")
	})

	It("rejects writes to read-only routes", func() {
		for _, path := range []string{"/", "/sitemap.xml", web.PagesPrefix + "x"} {
			response := testEnv.client.Do("POST", path, "", nil)
			ExpectClientError(response)
			Expect(response.StatusCode).To(Equal(405))
			Expect(response.Headers.Get("Allow")).To(Equal("GET, HEAD"))
		}
	})

	It("serves pages whose titles contain path characters", func() {
		for _, title := range []string{"../etc", "notes/../x", "a/b"} {
			response := testEnv.client.Tool(web.ToolPushPage, web.PushPageRequest{
				SeoTitle: title,
				HTML:     articleHTML,
			})
			ExpectStatus(response, 200)
			pushed := DecodeJSON[web.PushPageResponse](response)
			DeferCleanup(func() {
				ExpectStatus(testEnv.client.Tool(web.ToolDeletePage, web.DeletePageRequest{PageID: pushed.PageID}), 200)
			})

			page := testEnv.client.Get(pagePath(pushed.URL), nil)
			ExpectStatus(page, 200)
			ExpectSEOHead(page, title, "")
		}
	})

	It("echoes request ids", func() {
		response := testEnv.client.Get("/health", map[string]string{"X-Request-ID": "abc"})
		ExpectStatus(response, 200)
		Expect(response.Headers.Get("X-Request-ID")).To(HaveSuffix("abc"))
	})
})
