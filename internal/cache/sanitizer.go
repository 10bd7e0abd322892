package cache

import (
	"encoding/hex"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/crypto/blake2b"
)

// Sanitizer strips article body HTML down to user-generated-content markup:
// no scripts, no event handlers, links get rel=nofollow and external ones open
// in a new tab.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	// code highlighting classes on <pre>/<code>
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("pre", "code", "span")
	return &Sanitizer{policy: p}
}

func (s *Sanitizer) Sanitize(html string) string {
	return s.policy.Sanitize(html)
}

// Alters reports whether sanitizing changes html
func (s *Sanitizer) Alters(html string) bool {
	return s.Sanitize(html) != html
}

// ContentKey returns the hex blake2b-256 digest of content
func ContentKey(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
