package patch

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
)

var (
	placeholderRe = regexp.MustCompile(`(NODE|LINK)_(\d+)`)
	linkPrefixRe  = regexp.MustCompile(`^L+(\d+)`)
)

// Resolver assigns concrete ids to NODE_<n> and LINK_<n> placeholders.
// Counters start one past the highest id in the workflow; each distinct token
// gets the next id the first time it is seen and keeps it afterwards.
type Resolver struct {
	nextNode int
	nextLink int
	ids      map[string]int
	order    []string
}

// NewResolver seeds counters from w.
func NewResolver(w *bridgezip.Workflow) *Resolver {
	return &Resolver{
		nextNode: w.MaxNodeID() + 1,
		nextLink: w.MaxLinkID() + 1,
		ids:      make(map[string]int),
	}
}

// Resolve replaces every placeholder in text.
func (r *Resolver) Resolve(text string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(token string) string {
		return strconv.Itoa(r.ID(token))
	})
}

// ID returns the id for token, assigning one if token is new.
func (r *Resolver) ID(token string) int {
	if id, ok := r.ids[token]; ok {
		return id
	}
	var id int
	if strings.HasPrefix(token, "LINK_") {
		id = r.nextLink
		r.nextLink++
	} else {
		id = r.nextNode
		r.nextNode++
	}
	r.ids[token] = id
	r.order = append(r.order, token)
	return id
}

// Assigned returns a copy of every token resolved so far.
func (r *Resolver) Assigned() map[string]int {
	out := make(map[string]int, len(r.ids))
	for k, v := range r.ids {
		out[k] = v
	}
	return out
}

// Tokens returns resolved tokens in first-seen order.
func (r *Resolver) Tokens() []string {
	return append([]string(nil), r.order...)
}

// NormalizeLinkPrefixes collapses a run of leading 'L' characters before a
// link id to one, so "LL12:..." reads as "L12:...". Lines are trimmed first.
func NormalizeLinkPrefixes(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = linkPrefixRe.ReplaceAllString(strings.TrimSpace(line), "L$1")
	}
	return strings.Join(lines, "\n")
}
