package bridgezip

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	selectorSplitRe = regexp.MustCompile(`[,+\s]+`)
	nodeHeadRe      = regexp.MustCompile(`^N(\d+):([^|]+)`)
	linkEndsRe      = regexp.MustCompile(`^L\d+\s*:\s*(\d+)\.\d+\s*->\s*(\d+)\.\d+`)
)

// Selector picks nodes by id or by case-insensitive type name.
type Selector struct {
	IDs   map[int]bool
	Types map[string]bool
}

// ParseSelector splits s on commas, plus signs and whitespace. All-digit
// parts are node ids; everything else is a type name.
func ParseSelector(s string) Selector {
	sel := Selector{IDs: map[int]bool{}, Types: map[string]bool{}}
	for _, part := range selectorSplitRe.Split(strings.TrimSpace(s), -1) {
		if part == "" {
			continue
		}
		if isDigits(part) {
			if id, err := strconv.Atoi(part); err == nil {
				sel.IDs[id] = true
				continue
			}
		}
		sel.Types[strings.ToLower(part)] = true
	}
	return sel
}

// Empty reports whether the selector names nothing.
func (s Selector) Empty() bool { return len(s.IDs) == 0 && len(s.Types) == 0 }

// Matches reports whether a node with the given id and type is selected.
func (s Selector) Matches(id int, typ string) bool {
	return s.IDs[id] || s.Types[strings.ToLower(typ)]
}

// Extract narrows a compressed document to the nodes named by selector, the
// links touching them, and the header and metadata lines. An empty selector
// returns doc unchanged.
func Extract(doc, selector string) (string, error) {
	if !strings.HasPrefix(doc, headerPrefix) {
		return "", ErrNotCompressed
	}
	sel := ParseSelector(selector)
	if sel.Empty() {
		return doc, nil
	}

	lines := strings.Split(strings.TrimSpace(doc), "\n")
	kept := make(map[int]bool)
	for _, line := range lines {
		m := nodeHeadRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err == nil && sel.Matches(id, m[2]) {
			kept[id] = true
		}
	}
	if len(kept) == 0 {
		return "", ErrNoMatch
	}

	var out []string
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		switch classify(line) {
		case lineHeader, lineMeta:
			out = append(out, line)
		case lineNode:
			if m := nodeHeadRe.FindStringSubmatch(line); m != nil {
				if id, err := strconv.Atoi(m[1]); err == nil && kept[id] {
					out = append(out, line)
				}
			}
		case lineLink:
			if m := linkEndsRe.FindStringSubmatch(line); m != nil {
				src, _ := strconv.Atoi(m[1])
				dst, _ := strconv.Atoi(m[2])
				if kept[src] || kept[dst] {
					out = append(out, line)
				}
			}
		}
	}
	return strings.Join(out, "\n"), nil
}
