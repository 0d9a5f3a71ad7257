package autodetect

import (
	"net/url"
	"strings"
	"unicode"
)

// hostLabelDisplayName synthesizes a human-readable server name from a URL
// when the handshake never got far enough to learn one from the upstream
// itself: split the host on ".", take the second-to-last label, capitalize
// its first rune. "mcp.example.com" -> "Example"; a bare host with no dot
// capitalizes the whole thing. IP hosts get the same treatment: an IPv4
// host yields its second-to-last octet ("192.168.1.1" -> "1"), and an IPv6
// host, which has no dot, comes back whole.
func hostLabelDisplayName(rawURL string) string {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}

	labels := strings.Split(host, ".")
	var label string
	switch {
	case len(labels) >= 2:
		label = labels[len(labels)-2]
	case len(labels) == 1:
		label = labels[0]
	default:
		label = host
	}

	return capitalizeFirst(label)
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// synthesizedVersion is used whenever server info could not be retrieved
// because the handshake never completed (OAuth-blocked or header-auth-blocked).
const synthesizedVersion = "1.0.0"
