// Package embed decides whether a line of message text is a URL that should be
// rendered as an embedded media block rather than as text.
package embed

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPatterns cover the oEmbed providers viewers see most in live blogs.
var DefaultPatterns = []string{
	"http*://*youtube.com/watch*",
	"http*://*youtube.com/shorts/*",
	"http*://youtu.be/*",
	"http*://*twitter.com/*/status/*",
	"http*://x.com/*/status/*",
	"http*://*vimeo.com/*",
	"http*://*instagram.com/p/*",
	"http*://*instagram.com/reel/*",
	"http*://soundcloud.com/*",
	"http*://open.spotify.com/*",
	"http*://*tiktok.com/@*/video/*",
	"http*://*flickr.com/photos/*",
}

// Matcher is the isEmbed predicate over a fixed set of provider patterns.
type Matcher struct {
	globs []glob.Glob
}

func NewMatcher(patterns []string) (*Matcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	m := &Matcher{globs: make([]glob.Glob, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile embed pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// MustDefault returns a matcher over DefaultPatterns.
func MustDefault() *Matcher {
	m, err := NewMatcher(nil)
	if err != nil {
		panic(err)
	}
	return m
}

// IsEmbed reports whether text, taken as a whole, is an embeddable URL.
func (m *Matcher) IsEmbed(text string) bool {
	if text == "" || strings.ContainsAny(text, " \t\r\n") {
		return false
	}
	u, err := url.Parse(text)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	for _, g := range m.globs {
		if g.Match(text) {
			return true
		}
	}
	return false
}
