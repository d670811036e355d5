package bridgezip

import (
	"bytes"
	"encoding/json"
	"strings"
)

// slot addresses one port of one node.
type slot struct {
	node  int
	index int
}

// Decompress rebuilds a workflow from its compressed form.
//
// Malformed node and link lines are dropped. Port link caches are then
// overwritten from the link records by slot index, so the link lines are
// authoritative over whatever the node lines carried.
func Decompress(text string) (*Workflow, error) {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, ErrEmptyData
	}

	w := &Workflow{
		Groups: []json.RawMessage{},
		Config: json.RawMessage("{}"),
		Extra:  json.RawMessage("{}"),
	}
	for i, line := range lines {
		switch classify(line) {
		case lineHeader:
			if i != 0 {
				continue
			}
			if h, ok := parseHeader(line); ok {
				w.ID = h.ID
				if w.ID == noWorkflowID {
					w.ID = ""
				}
				w.Revision = h.Revision
				w.LastNodeID = h.LastNodeID
				w.LastLinkID = h.LastLinkID
			}
		case lineMeta:
			applyMeta(w, line[len(metaPrefix):])
		case lineNode:
			if n, ok := ParseNodeLine(line); ok {
				w.Nodes = append(w.Nodes, n)
			}
		case lineLink:
			if l, ok := ParseLinkLine(line); ok {
				w.Links = append(w.Links, l)
			}
		}
	}
	w.Version = FormatVersion

	targets := make(map[slot]int, len(w.Links))
	sources := make(map[slot][]int, len(w.Links))
	for _, l := range w.Links {
		targets[slot{l.TargetNode, l.TargetSlot}] = l.ID
		src := slot{l.SourceNode, l.SourceSlot}
		sources[src] = append(sources[src], l.ID)
	}
	for _, n := range w.Nodes {
		for i, in := range n.Inputs {
			if id, ok := targets[slot{n.ID, i}]; ok {
				in.Link = linkRef(id)
			}
		}
		for i, out := range n.Outputs {
			if ids, ok := sources[slot{n.ID, i}]; ok {
				out.Links = append([]int(nil), ids...)
			}
		}
	}
	return w, nil
}

// DecompressJSON decompresses text and returns the workflow as indented JSON.
func DecompressJSON(text string) (string, error) {
	w, err := Decompress(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(w); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// splitLines returns the trimmed, non-blank lines of text.
func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
