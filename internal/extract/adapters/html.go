package adapters

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var htmlTagPattern = regexp.MustCompile(`(?i)<(?:!doctype|html|head|body|div|p|span|br|a|table|font|b|strong|img)\b`)

// HTMLAdapter extracts visible text from HTML posts and pages
type HTMLAdapter struct {
	BaseAdapter
}

// NewHTMLAdapter creates a new HTML adapter
func NewHTMLAdapter() *HTMLAdapter {
	return &HTMLAdapter{}
}

// Name returns the adapter name
func (a *HTMLAdapter) Name() string {
	return "html"
}

// CanHandle sniffs for HTML markup near the start of the body
func (a *HTMLAdapter) CanHandle(hint Hint, body string) bool {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	return strings.Contains(head, "<") && htmlTagPattern.MatchString(head)
}

// Extract returns visible text with link targets appended, so a lure hidden
// behind innocuous anchor text is still seen by the rules
func (a *HTMLAdapter) Extract(body string) (string, error) {
	doc, err := a.ParseHTML(body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	text := a.VisibleText(doc)

	links := a.FindAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "a" && a.GetAttribute(n, "href") != ""
	})
	seen := make(map[string]bool, len(links))
	var hrefs []string
	for _, link := range links {
		href := strings.TrimSpace(a.GetAttribute(link, "href"))
		if strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") || seen[href] {
			continue
		}
		seen[href] = true
		hrefs = append(hrefs, href)
	}
	if len(hrefs) > 0 {
		text += "\n" + strings.Join(hrefs, "\n")
	}
	return text, nil
}
