package faviconcache

import (
	"context"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// iconRels are the <link rel="..."> values that count as a favicon
// declaration, checked case-insensitively.
var iconRels = map[string]bool{
	"icon":             true,
	"shortcut icon":    true,
	"apple-touch-icon": true,
}

// linkIconFromHTML fetches origin's root document and walks it for the
// first <link rel="icon"|"shortcut icon"|"apple-touch-icon"> tag, returning
// its href attribute unresolved (the caller resolves it against origin).
func (c *Cache) linkIconFromHTML(ctx context.Context, origin string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
	if err != nil {
		return "", false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	return findLinkIcon(resp.Body)
}

func findLinkIcon(body io.Reader) (string, bool) {
	tokenizer := html.NewTokenizer(body)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "link" {
				continue
			}
			if href, ok := linkIconHref(token); ok {
				return href, true
			}
		}
	}
}

func linkIconHref(token html.Token) (string, bool) {
	var rel, href string
	for _, attr := range token.Attr {
		switch strings.ToLower(attr.Key) {
		case "rel":
			rel = strings.ToLower(strings.TrimSpace(attr.Val))
		case "href":
			href = attr.Val
		}
	}
	if href == "" || !iconRels[rel] {
		return "", false
	}
	return href, true
}
