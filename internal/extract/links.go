package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var unsubscribeTokens = []string{"unsubscribe", "opt out", "opt-out", "optout", "remove"}

// UnsubscribeLinks collects unsubscribe endpoints from a List-Unsubscribe
// header value and from anchors in an HTML body. Header links come first and
// duplicates are dropped by exact string match.
func UnsubscribeLinks(header, html string) []string {
	var links []string
	seen := make(map[string]struct{})
	add := func(link string) {
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}

	for _, raw := range strings.Split(header, ",") {
		link := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "<>"))
		if link != "" && allowedScheme(link) {
			add(link)
		}
	}

	for _, link := range anchorLinks(html) {
		add(link)
	}
	return links
}

func anchorLinks(html string) []string {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || !allowedScheme(href) || !containsUnsubscribeToken(href) {
			return
		}
		out = append(out, href)
	})
	return out
}

func containsUnsubscribeToken(href string) bool {
	candidates := []string{strings.ToLower(href)}
	if unescaped, err := url.PathUnescape(href); err == nil {
		candidates = append(candidates, strings.ToLower(unescaped))
	}
	for _, c := range candidates {
		for _, token := range unsubscribeTokens {
			if strings.Contains(c, token) {
				return true
			}
		}
	}
	return false
}

func allowedScheme(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "mailto":
		return true
	}
	return false
}

// IsMailto reports whether link is a mail-based unsubscribe endpoint.
func IsMailto(link string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(link)), "mailto:")
}

// IsWeb reports whether link is an http(s) unsubscribe endpoint.
func IsWeb(link string) bool {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
