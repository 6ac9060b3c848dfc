package extract

import (
	"fmt"
	"strings"

	"github.com/hyperifyio/pagebridge/internal/dom"
)

// Extractor turns a DOM element into a Snapshot.
// Implementations must never fail: problems degrade to an emptier snapshot.
type Extractor interface {
	Extract(el dom.Element) Snapshot
}

var _ Extractor = (*ElementExtractor)(nil)

// Policy selects how much markup survives in Snapshot.HTML.
type Policy string

const (
	// PolicyScripts removes script-bearing nodes and attributes only.
	PolicyScripts Policy = "scripts"
	// PolicyUGC additionally runs the markup through a user-generated-content
	// allowlist.
	PolicyUGC Policy = "ugc"
)

// Options configures an ElementExtractor.
type Options struct {
	Policy Policy
}

// ParsePolicy validates a policy name; empty means PolicyScripts.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyScripts:
		return PolicyScripts, nil
	case PolicyUGC:
		return p, nil
	default:
		return "", fmt.Errorf("unknown sanitize policy %q", s)
	}
}
