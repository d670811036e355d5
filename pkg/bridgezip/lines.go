package bridgezip

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Line prefixes and section markers of the compressed form.
const (
	headerPrefix  = "W:"
	metaPrefix    = "M:"
	nodesMarker   = "NODES:"
	linksMarker   = "LINKS:"
	formatTag     = "1.0.0"
	noLinkToken   = "None"
	noWorkflowID  = "none"
	colorTag      = "C:"
	propertiesTag = "P:"
)

// metaKeys are always written to the metadata line.
var metaKeys = map[string]bool{"groups": true, "config": true, "extra": true}

var (
	nodeLineRe = regexp.MustCompile(`^N(\d+):([^|]*)\|([^|]*)\|I:([^|]*)\|O:([^|]*)\|W:([^|]*)(.*)$`)
	linkLineRe = regexp.MustCompile(`^L(\d+)\s*:\s*(\d+)\.(\d+)\s*->\s*(\d+)\.(\d+)\s*:\s*(.+)$`)
)

// lineKind classifies one trimmed line of a compressed document.
type lineKind int

const (
	lineUnknown lineKind = iota
	lineSection
	lineHeader
	lineMeta
	lineNode
	lineLink
)

func classify(line string) lineKind {
	switch {
	case line == nodesMarker || line == linksMarker:
		return lineSection
	case strings.HasPrefix(line, headerPrefix):
		return lineHeader
	case strings.HasPrefix(line, metaPrefix):
		return lineMeta
	case strings.HasPrefix(line, "N"):
		return lineNode
	case strings.HasPrefix(line, "L"):
		return lineLink
	}
	return lineUnknown
}

// ─── node lines ──────────────────────────────────────────────────────────────

// ParseNodeLine parses one node record. ok is false when the line does not
// have the N<id>:<type>|geo|I:..|O:..|W:.. shape.
func ParseNodeLine(line string) (n *Node, ok bool) {
	m := nodeLineRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}
	n = newNode(id, m[2])
	n.Pos, n.Size = parseGeometry(m[3])

	for _, tag := range strings.Split(m[7], "|") {
		switch {
		case strings.HasPrefix(tag, colorTag):
			color, bg, _ := strings.Cut(tag[len(colorTag):], ",")
			n.Color, n.BgColor = color, bg
		case strings.HasPrefix(tag, propertiesTag):
			n.Properties = DecodeProperties(tag[len(propertiesTag):])
		}
	}

	if m[6] != "" {
		for _, tok := range strings.Split(m[6], ";") {
			n.WidgetsValues = append(n.WidgetsValues, Unescape(tok))
		}
	}

	if m[4] != "" {
		for _, part := range strings.Split(m[4], ",") {
			if part == "" {
				continue
			}
			f := strings.Split(part, ":")
			in := &InputPort{Name: f[0], Type: portType(f)}
			if len(f) > 2 && isDigits(f[2]) {
				if lid, err := strconv.Atoi(f[2]); err == nil {
					in.Link = linkRef(lid)
				}
			}
			n.Inputs = append(n.Inputs, in)
		}
	}

	if m[5] != "" {
		for _, part := range strings.Split(m[5], ";") {
			if part == "" {
				continue
			}
			f := strings.Split(part, ":")
			out := &OutputPort{Name: f[0], Type: portType(f), Links: []int{}, SlotIndex: len(n.Outputs)}
			if len(f) > 2 {
				for _, tok := range strings.Split(f[2], ",") {
					if !isDigits(tok) {
						continue
					}
					if lid, err := strconv.Atoi(tok); err == nil {
						out.Links = append(out.Links, lid)
					}
				}
			}
			n.Outputs = append(n.Outputs, out)
		}
	}
	return n, true
}

func portType(fields []string) string {
	if len(fields) < 2 {
		return WildcardType
	}
	return CanonicalOf(fields[1])
}

// parseGeometry reads "x,y,w,h". Fewer than four integer tokens yields the
// default geometry rather than failing the node.
func parseGeometry(s string) (pos, size Vec2) {
	var g []int
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if !isDigits(strings.TrimPrefix(tok, "-")) {
			continue
		}
		if v, err := strconv.Atoi(tok); err == nil {
			g = append(g, v)
		}
	}
	if len(g) < 4 {
		return Vec2{0, 0}, Vec2{DefaultWidth, DefaultHeight}
	}
	return Vec2{g[0], g[1]}, Vec2{g[2], g[3]}
}

// FormatNodeLine renders one node record. Nil ports are skipped; Compress
// rejects them before formatting.
func FormatNodeLine(n *Node) string {
	var sb strings.Builder
	sb.WriteString("N")
	sb.WriteString(itoa(n.ID))
	sb.WriteString(":")
	sb.WriteString(n.Type)
	sb.WriteString("|")
	sb.WriteString(strings.Join([]string{itoa(n.Pos[0]), itoa(n.Pos[1]), itoa(n.Size[0]), itoa(n.Size[1])}, ","))

	ins := make([]string, 0, len(n.Inputs))
	for _, in := range n.Inputs {
		if in == nil {
			continue
		}
		link := noLinkToken
		if in.Link != nil {
			link = itoa(*in.Link)
		}
		ins = append(ins, in.Name+":"+ShorthandOf(in.Type)+":"+link)
	}
	sb.WriteString("|I:")
	sb.WriteString(strings.Join(ins, ","))

	outs := make([]string, 0, len(n.Outputs))
	for _, out := range n.Outputs {
		if out == nil {
			continue
		}
		ids := make([]string, 0, len(out.Links))
		for _, lid := range out.Links {
			ids = append(ids, itoa(lid))
		}
		outs = append(outs, out.Name+":"+ShorthandOf(out.Type)+":"+strings.Join(ids, ","))
	}
	sb.WriteString("|O:")
	sb.WriteString(strings.Join(outs, ";"))

	wids := make([]string, 0, len(n.WidgetsValues))
	for _, v := range n.WidgetsValues {
		wids = append(wids, Escape(v))
	}
	sb.WriteString("|W:")
	sb.WriteString(strings.Join(wids, ";"))

	if n.Color != "" {
		sb.WriteString("|" + colorTag + n.Color + "," + n.BgColor)
	}
	if len(n.Properties) > 0 {
		sb.WriteString("|" + propertiesTag + EncodeProperties(n.Properties))
	}
	return sb.String()
}

// ─── link lines ──────────────────────────────────────────────────────────────

// ParseLinkLine parses L<id>:<src>.<slot>-><dst>.<slot>:<type>, tolerating
// whitespace around ':' and '->'.
func ParseLinkLine(line string) (Link, bool) {
	m := linkLineRe.FindStringSubmatch(line)
	if m == nil {
		return Link{}, false
	}
	var ints [5]int
	for i := range ints {
		v, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Link{}, false
		}
		ints[i] = v
	}
	return Link{
		ID:         ints[0],
		SourceNode: ints[1],
		SourceSlot: ints[2],
		TargetNode: ints[3],
		TargetSlot: ints[4],
		Type:       CanonicalOf(strings.TrimSpace(m[6])),
	}, true
}

// FormatLinkLine renders one link record.
func FormatLinkLine(l Link) string {
	return "L" + itoa(l.ID) + ":" + itoa(l.SourceNode) + "." + itoa(l.SourceSlot) +
		"->" + itoa(l.TargetNode) + "." + itoa(l.TargetSlot) + ":" + ShorthandOf(l.Type)
}

// ─── header and metadata ─────────────────────────────────────────────────────

// header is the decoded first line.
type header struct {
	ID         string
	Revision   int
	LastNodeID int
	LastLinkID int
}

// parseHeader decodes W:<id>|r:..|ln:..|ll:..|v:... Any malformed tag makes
// the whole header fall back to defaults.
func parseHeader(line string) (header, bool) {
	tags := make(map[string]string)
	for _, part := range strings.Split(line, "|") {
		k, v, found := strings.Cut(part, ":")
		if !found {
			return header{}, false
		}
		tags[k] = v
	}
	var h header
	h.ID = tags["W"]
	for key, dst := range map[string]*int{"r": &h.Revision, "ln": &h.LastNodeID, "ll": &h.LastLinkID} {
		raw, ok := tags[key]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return header{}, false
		}
		*dst = v
	}
	return h, true
}

func formatHeader(w *Workflow) string {
	id := w.ID
	if id == "" {
		id = noWorkflowID
	}
	return headerPrefix + id +
		"|r:" + itoa(w.Revision) +
		"|ln:" + itoa(w.LastNodeID) +
		"|ll:" + itoa(w.LastLinkID) +
		"|v:" + formatTag
}

// applyMeta shallow-merges the metadata JSON object into w. Structural keys
// are ignored; a malformed line is ignored.
func applyMeta(w *Workflow, payload string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return
	}
	for k, v := range fields {
		switch {
		case k == "groups":
			var groups []json.RawMessage
			if err := json.Unmarshal(v, &groups); err == nil {
				w.Groups = groups
			}
		case k == "config":
			w.Config = v
		case k == "extra":
			w.Extra = v
		case structuralKeys[k]:
		default:
			if w.Extras == nil {
				w.Extras = make(map[string]json.RawMessage)
			}
			w.Extras[k] = v
		}
	}
}

func formatMeta(w *Workflow) (string, error) {
	meta := make(map[string]json.RawMessage, 3+len(w.Extras))
	for k, v := range w.Extras {
		if !structuralKeys[k] && !metaKeys[k] {
			meta[k] = orNull(v)
		}
	}
	groups, err := json.Marshal(nonNilGroups(w.Groups))
	if err != nil {
		return "", err
	}
	meta["groups"] = groups
	meta["config"] = orEmptyObject(w.Config)
	meta["extra"] = orEmptyObject(w.Extra)
	data, err := marshalNoEscape(meta)
	if err != nil {
		return "", err
	}
	return metaPrefix + string(data), nil
}

func nonNilGroups(g []json.RawMessage) []json.RawMessage {
	if g == nil {
		return []json.RawMessage{}
	}
	return g
}
