// Package webtest drives a running page server over HTTP in acceptance
// suites and provides gomega assertions for its responses.
package webtest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/gomega"
	"github.com/valyala/fasthttp"

	"github.com/edgecomet/pagestore/internal/common/htmlprocessor"
	"github.com/edgecomet/pagestore/internal/web"
)

// Response is one HTTP exchange captured by Client
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       string
	Duration   time.Duration
	Error      error
}

// Client sends requests to a page server at BaseURL
type Client struct {
	BaseURL string
	Timeout time.Duration
	client  *fasthttp.Client
}

// NewClient creates a client for the server at baseURL, e.g. "http://127.0.0.1:3000"
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: 5 * time.Second,
		client:  &fasthttp.Client{Name: "pagestore-webtest"},
	}
}

// Get requests path with optional extra headers
func (c *Client) Get(path string, headers map[string]string) *Response {
	return c.Do(fasthttp.MethodGet, path, "", headers)
}

// Tool calls a tool API endpoint with body encoded as JSON
func (c *Client) Tool(name string, body any) *Response {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Response{Error: err}
	}
	return c.Do(fasthttp.MethodPost, web.ToolsPrefix+name, string(payload),
		map[string]string{"Content-Type": "application/json"})
}

// Do sends one request and captures the response
func (c *Client) Do(method, path, body string, headers map[string]string) *Response {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.BaseURL + path)
	// Send page slugs exactly as built, without client-side dot-segment cleanup
	req.URI().DisablePathNormalizing = true
	req.Header.SetMethod(method)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != "" {
		req.SetBodyString(body)
	}

	start := time.Now()
	err := c.client.DoTimeout(req, resp, c.Timeout)
	result := &Response{Duration: time.Since(start), Error: err}
	if err != nil {
		return result
	}

	result.StatusCode = resp.StatusCode()
	result.Body = string(resp.Body())
	result.Headers = make(http.Header)
	resp.Header.VisitAll(func(key, value []byte) {
		result.Headers.Add(string(key), string(value))
	})
	return result
}

// DecodeJSON unmarshals the response body into T
func DecodeJSON[T any](response *Response) T {
	var out T
	ExpectNoError(response)
	Expect(json.Unmarshal([]byte(response.Body), &out)).To(Succeed(),
		"Response body should be JSON: %s", response.Body)
	return out
}

// ExpectNoError checks that the response has no network errors
func ExpectNoError(response *Response) {
	Expect(response).NotTo(BeNil(), "Response should not be nil")
	Expect(response.Error).To(BeNil(), "Request should not have network errors")
}

// ExpectStatus checks the status code of a successful exchange
func ExpectStatus(response *Response, statusCode int) {
	ExpectNoError(response)
	Expect(response.StatusCode).To(Equal(statusCode),
		"Expected status code %d, got %d: %s", statusCode, response.StatusCode, response.Body)
}

// ExpectHTMLContent verifies that response contains expected HTML content
func ExpectHTMLContent(response *Response, expectedContent ...string) {
	Expect(response.Body).NotTo(BeEmpty(), "Response body should not be empty")
	for _, content := range expectedContent {
		Expect(response.Body).To(ContainSubstring(content),
			"Response should contain: %s", content)
	}
}

// ExpectNotHTMLContent verifies that response does not contain specific content
func ExpectNotHTMLContent(response *Response, unexpectedContent ...string) {
	for _, content := range unexpectedContent {
		Expect(response.Body).NotTo(ContainSubstring(content),
			"Response should not contain: %s", content)
	}
}

// ExpectSEOHead parses the page and verifies it declares exactly one title
// and one description with the given decoded text, and stays indexable
func ExpectSEOHead(response *Response, title, description string) {
	head, err := htmlprocessor.InspectHead(response.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(head.Titles).To(Equal([]string{title}), "Page should have exactly one <title>")
	Expect(head.Descriptions).To(Equal([]string{description}), "Page should have exactly one description")
	Expect(head.NoIndex).To(BeFalse(), "Page should not be blocked by robots meta tags")
}

// ExpectMetaTag verifies that a meta tag with specific name and content exists
func ExpectMetaTag(response *Response, name, content string) {
	Expect(response.Body).To(ContainSubstring(`<meta name="`+name+`"`),
		"Should have meta tag: %s", name)
	if content != "" {
		Expect(response.Body).To(ContainSubstring(`content="`+content),
			"Meta tag %s should have content: %s", name, content)
	}
}

// ExpectClientError verifies that a client error occurred
func ExpectClientError(response *Response) {
	ExpectNoError(response)
	Expect(response.StatusCode).To(BeNumerically(">=", 400),
		"Expected client error (4xx), got %d", response.StatusCode)
	Expect(response.StatusCode).To(BeNumerically("<", 500),
		"Expected client error (4xx), got %d", response.StatusCode)
}

// CountSuccessfulResponses counts responses with 200 status code
func CountSuccessfulResponses(responses []*Response) int {
	count := 0
	for _, response := range responses {
		if response != nil && response.Error == nil && response.StatusCode == fasthttp.StatusOK {
			count++
		}
	}
	return count
}

// ExpectMinSuccessRate verifies that at least a certain percentage of requests succeeded
func ExpectMinSuccessRate(responses []*Response, minRate float64) {
	total := len(responses)
	successful := CountSuccessfulResponses(responses)
	actualRate := float64(successful) / float64(total)

	Expect(actualRate).To(BeNumerically(">=", minRate),
		"Expected at least %.0f%% success rate, got %.0f%% (%d/%d)",
		minRate*100, actualRate*100, successful, total)
}
