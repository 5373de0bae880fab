package htmlprocessor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parseHTML(t *testing.T, htmlStr string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(htmlStr))
	require.NoError(t, err)
	return doc
}

func TestInspectHead(t *testing.T) {
	tests := []struct {
		name string
		html string
		want HeadReport
	}{
		{
			name: "title and metas",
			html: `<html><head><title> Hello </title><meta name="description" content="Desc"><meta name="keywords" content="a, b"></head><body></body></html>`,
			want: HeadReport{Titles: []string{"Hello"}, Descriptions: []string{"Desc"}, Keywords: []string{"a, b"}},
		},
		{
			name: "entities decoded",
			html: `<html><head><title>Fish &amp; Chips</title><meta name="description" content="&#34;q&#34;"></head></html>`,
			want: HeadReport{Titles: []string{"Fish & Chips"}, Descriptions: []string{`"q"`}},
		},
		{
			name: "duplicates reported",
			html: `<html><head><title>A</title><title>B</title></head></html>`,
			want: HeadReport{Titles: []string{"A", "B"}},
		},
		{
			name: "case insensitive names",
			html: `<HTML><HEAD><META NAME="Description" CONTENT="x"></HEAD></HTML>`,
			want: HeadReport{Descriptions: []string{"x"}},
		},
		{
			name: "robots none",
			html: `<html><head><meta name="ROBOTS" content="None"></head></html>`,
			want: HeadReport{NoIndex: true},
		},
		{
			name: "robots noindex",
			html: `<html><head><meta name="robots" content="noindex, follow"></head></html>`,
			want: HeadReport{NoIndex: true},
		},
		{
			name: "googlebot overrides robots",
			html: `<html><head><meta name="robots" content="noindex"><meta name="googlebot" content="index"></head></html>`,
			want: HeadReport{},
		},
		{
			name: "fragment without head element",
			html: `<p>just text</p>`,
			want: HeadReport{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InspectHead(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInspectHead_AfterInjection(t *testing.T) {
	src := `<html><head><title>Old</title><meta name="description" content="old"></head><body></body></html>`
	tags := SEOTags{Title: `A <b> & "c"`, Description: "New", Keywords: []string{"x"}}

	report, err := InspectHead(InjectSEO(src, tags))
	require.NoError(t, err)
	assert.Equal(t, []string{`A <b> & "c"`}, report.Titles)
	assert.Equal(t, []string{"New"}, report.Descriptions)
	assert.Equal(t, []string{"x"}, report.Keywords)
}

func TestInspectHead_RobotsInBodyIgnored(t *testing.T) {
	report, err := InspectHead(`<html><head><title>T</title></head><body><p>x</p><meta name="robots" content="noindex"></body></html>`)
	require.NoError(t, err)
	assert.False(t, report.NoIndex)
}

func TestHeadReport_Accessors(t *testing.T) {
	assert.Equal(t, "", HeadReport{}.Title())
	assert.Equal(t, "", HeadReport{}.Description())
	r := HeadReport{Titles: []string{"a", "b"}, Descriptions: []string{"d"}}
	assert.Equal(t, "a", r.Title())
	assert.Equal(t, "d", r.Description())
}

func TestFindElement(t *testing.T) {
	doc := parseHTML(t, `<html><head><TITLE>T</TITLE></head><body><div><p id="x">P</p></div></body></html>`)

	assert.Nil(t, findElement(nil, "p"))
	assert.Nil(t, findElement(doc, "table"))

	p := findElement(doc, "P")
	require.NotNil(t, p)
	assert.Equal(t, "x", getAttr(p, "ID"))
	assert.Equal(t, "T", getTextContent(findElement(doc, "title")))
}

func TestFindAllElementsInParent(t *testing.T) {
	doc := parseHTML(t, `<html><body><ul><li>1</li><li>2<ul><li>3</li></ul></li></ul></body></html>`)

	assert.Nil(t, findAllElementsInParent(nil, "li"))
	items := findAllElementsInParent(findElement(doc, "body"), "li")
	assert.Len(t, items, 3)
	assert.Empty(t, findAllElementsInParent(findElement(doc, "body"), "table"))
}

func TestGetTextContent(t *testing.T) {
	doc := parseHTML(t, `<html><body><div>A<span>B<em>C</em>D</span>E</div><p></p></body></html>`)

	assert.Equal(t, "ABCDE", getTextContent(findElement(doc, "div")))
	assert.Equal(t, "", getTextContent(findElement(doc, "p")))
	assert.Equal(t, "", getTextContent(nil))
	assert.Equal(t, "", getAttr(nil, "id"))
}
