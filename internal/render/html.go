// Package render turns timeline items into terminal text.
package render

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	blankLinesRegex = regexp.MustCompile(`\n{3,}`)
)

var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// PlainText converts status HTML to plain text. Line breaks become newlines
// and paragraphs are separated by a blank line. The hidden parts of
// shortened links are dropped.
func PlainText(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	nodes, err := html.ParseFragment(strings.NewReader(content), bodyContext)
	if err != nil {
		return cleanText(whitespaceRegex.ReplaceAllString(content, " "))
	}

	var b strings.Builder
	for _, n := range nodes {
		writeNode(&b, n)
	}
	return cleanText(b.String())
}

func writeNode(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(whitespaceRegex.ReplaceAllString(n.Data, " "))
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.Data {
	case "script", "style":
		return
	case "br":
		b.WriteString("\n")
		return
	case "span":
		if hasClass(n, "invisible") {
			return
		}
	case "li":
		b.WriteString("\n- ")
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNode(b, c)
	}

	if hasClass(n, "ellipsis") {
		b.WriteString("…")
	}

	switch n.Data {
	case "p", "div", "blockquote", "pre", "ul", "ol", "h1", "h2", "h3", "h4", "h5", "h6":
		b.WriteString("\n\n")
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// cleanText trims every line and keeps at most one blank line in a row.
func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRegex.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
