package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Canonicalizer normalizes and filters URLs for one crawl session. It is
// pure computation: no I/O, deterministic for a given root domain.
type Canonicalizer struct {
	host string
}

// staticExtensions lists asset suffixes that are never worth a page visit.
var staticExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".webp": {},
	".ico": {}, ".css": {}, ".js": {}, ".mjs": {}, ".json": {}, ".xml": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {}, ".otf": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".rar": {}, ".7z": {},
	".pdf": {}, ".exe": {}, ".dmg": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".webm": {}, ".wav": {},
}

// excludedKeywords reject account/commerce flows that never carry content.
var excludedKeywords = []string{
	"login", "signin", "signup", "register", "logout",
	"cart", "checkout", "wishlist", "account",
}

// socialHosts are off-site by definition but rejected explicitly so that a
// crawl rooted on a social domain does not wander its feed.
var socialHosts = []string{
	"facebook.com", "twitter.com", "x.com", "instagram.com",
	"linkedin.com", "youtube.com", "tiktok.com", "pinterest.com",
}

// trackingParams are query keys stripped during normalization.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {},
	"utm_term": {}, "utm_content": {},
	"gclid": {}, "fbclid": {}, "msclkid": {}, "ref": {},
}

// NewCanonicalizer builds a Canonicalizer rooted on the start URL's host.
func NewCanonicalizer(startURL string) (*Canonicalizer, error) {
	u, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("start url %q has no host", startURL)
	}
	return &Canonicalizer{host: host}, nil
}

// Host returns the crawl's root domain.
func (c *Canonicalizer) Host() string { return c.host }

// Canonicalize resolves raw against base and normalizes the result. The
// second return value is false when the URL is rejected: off-domain, a
// static asset, an excluded keyword path, a social host, or a non-http(s)
// scheme. Rejection is exclusion, not an error.
func (c *Canonicalizer) Canonicalize(raw, base string) (string, bool) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	u := baseURL.ResolveReference(ref)

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.User = nil

	// Remove default ports.
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	host := u.Hostname()
	if host != c.host {
		return "", false
	}
	for _, social := range socialHosts {
		if host == social || strings.HasSuffix(host, "."+social) {
			return "", false
		}
	}

	lowerPath := strings.ToLower(u.Path)
	if _, ok := staticExtensions[strings.ToLower(path.Ext(lowerPath))]; ok {
		return "", false
	}
	for _, kw := range excludedKeywords {
		if strings.Contains(lowerPath, kw) {
			return "", false
		}
	}

	// Strip tracking noise and sort what remains.
	q := u.Query()
	for key := range q {
		if _, tracked := trackingParams[strings.ToLower(key)]; tracked {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	// Trailing-slash variants collapse to one canonical entry.
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), true
}

// GeneralizePattern collapses a URL's path into its structural shape:
// numeric and long slug segments become "*" so that structurally similar
// pages share one statistics bucket.
func GeneralizePattern(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}
	segments := strings.Split(u.Path, "/")
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if isNumeric(seg) || len(seg) > 30 {
			parts = append(parts, "*")
			continue
		}
		parts = append(parts, strings.ToLower(seg))
	}
	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
