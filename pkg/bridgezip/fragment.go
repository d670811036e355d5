package bridgezip

// Fragment is a bare set of node and link records, as carried by a patch.
type Fragment struct {
	Nodes []*Node
	Links []Link
}

// Empty reports whether the fragment carries no records.
func (f Fragment) Empty() bool { return len(f.Nodes) == 0 && len(f.Links) == 0 }

// ParseFragment reads node and link lines from text. Headers, metadata,
// section markers and unparseable lines are ignored, and port caches are left
// as written; Repair reconciles them once the fragment is merged.
func ParseFragment(text string) Fragment {
	var f Fragment
	for _, line := range splitLines(text) {
		switch classify(line) {
		case lineNode:
			if n, ok := ParseNodeLine(line); ok {
				f.Nodes = append(f.Nodes, n)
			}
		case lineLink:
			if l, ok := ParseLinkLine(line); ok {
				f.Links = append(f.Links, l)
			}
		}
	}
	return f
}
