package htmlprocessor

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var blockingDirectivePattern = regexp.MustCompile(`(?i)\b(noindex|none)\b`)

// HeadReport is what a rendered page declares in its <head>, as seen by a
// full HTML5 parser rather than the tokenizer.
type HeadReport struct {
	Titles       []string // trimmed text of every <title>, in document order
	Descriptions []string // content of every <meta name="description">
	Keywords     []string // content of every <meta name="keywords">
	NoIndex      bool     // robots or googlebot meta blocks indexing
}

// Title returns the first title, or "" when there is none
func (r HeadReport) Title() string {
	if len(r.Titles) == 0 {
		return ""
	}
	return r.Titles[0]
}

// Description returns the first description, or "" when there is none
func (r HeadReport) Description() string {
	if len(r.Descriptions) == 0 {
		return ""
	}
	return r.Descriptions[0]
}

// InspectHead parses src with golang.org/x/net/html and reports its SEO
// head tags. Entities are decoded. The parser recovers from any input, so
// the error is only non-nil on reader failures.
func InspectHead(src string) (HeadReport, error) {
	var report HeadReport
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return report, err
	}

	head := findElement(root, "head")
	if head == nil {
		return report, nil
	}

	for _, title := range findAllElementsInParent(head, "title") {
		report.Titles = append(report.Titles, strings.TrimSpace(getTextContent(title)))
	}
	for _, meta := range findAllElementsInParent(head, "meta") {
		switch strings.ToLower(getAttr(meta, "name")) {
		case "description":
			report.Descriptions = append(report.Descriptions, getAttr(meta, "content"))
		case "keywords":
			report.Keywords = append(report.Keywords, getAttr(meta, "content"))
		}
	}
	report.NoIndex = isBlockedByMeta(head)
	return report, nil
}

// findElement recursively searches for the first element with matching tag name (case-insensitive).
// Returns nil if not found.
func findElement(node *html.Node, tag string) *html.Node {
	if node == nil {
		return nil
	}
	return findElementLower(node, strings.ToLower(tag))
}

func findElementLower(node *html.Node, lowerTag string) *html.Node {
	if node.Type == html.ElementNode && strings.ToLower(node.Data) == lowerTag {
		return node
	}

	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if found := findElementLower(c, lowerTag); found != nil {
			return found
		}
	}
	return nil
}

// findAllElementsInParent returns all matching elements within parent.
func findAllElementsInParent(parent *html.Node, tag string) []*html.Node {
	if parent == nil {
		return nil
	}
	tag = strings.ToLower(tag)
	var results []*html.Node

	var search func(*html.Node)
	search = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.ToLower(n.Data) == tag {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			search(c)
		}
	}

	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		search(c)
	}
	return results
}

// getAttr returns attribute value for given name (case-insensitive comparison).
func getAttr(node *html.Node, name string) string {
	if node == nil {
		return ""
	}
	name = strings.ToLower(name)
	for _, attr := range node.Attr {
		if strings.ToLower(attr.Key) == name {
			return attr.Val
		}
	}
	return ""
}

// getTextContent recursively extracts all text content from node and descendants.
func getTextContent(node *html.Node) string {
	if node == nil {
		return ""
	}

	var sb strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(node)
	return sb.String()
}

// isBlockedByMeta checks if the page is blocked by meta robots tags.
// Googlebot-specific tags take precedence over generic robots tags.
func isBlockedByMeta(head *html.Node) bool {
	var googlebotContents, robotsContents []string
	for _, meta := range findAllElementsInParent(head, "meta") {
		content := getAttr(meta, "content")
		switch strings.ToLower(getAttr(meta, "name")) {
		case "googlebot":
			googlebotContents = append(googlebotContents, content)
		case "robots":
			robotsContents = append(robotsContents, content)
		}
	}

	contentsToCheck := robotsContents
	for _, c := range googlebotContents {
		if strings.TrimSpace(c) != "" {
			contentsToCheck = googlebotContents
			break
		}
	}

	for _, content := range contentsToCheck {
		if blockingDirectivePattern.MatchString(content) {
			return true
		}
	}
	return false
}
