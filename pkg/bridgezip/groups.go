package bridgezip

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Group is one entry of a workflow's groups list with the nodes it encloses.
type Group struct {
	ID    string
	Title string
	// Bounding is x, y, width, height. HasBounds is false when the group
	// carried fewer than four numbers; such a group encloses nothing.
	Bounding  [4]float64
	HasBounds bool
	// Nodes are the ids of nodes whose position lies inside Bounding,
	// edges included, in ascending order.
	Nodes []int
}

// Contains reports whether pos lies inside the group's box, edges included.
func (g Group) Contains(pos Vec2) bool {
	if !g.HasBounds {
		return false
	}
	x, y := float64(pos[0]), float64(pos[1])
	b := g.Bounding
	return b[0] <= x && x <= b[0]+b[2] && b[1] <= y && y <= b[1]+b[3]
}

func parseGroup(raw json.RawMessage) Group {
	g := Group{Title: "Untitled", ID: "?"}
	r := gjson.ParseBytes(raw)
	if t := r.Get("title"); t.Exists() {
		g.Title = t.String()
	}
	if id := r.Get("id"); id.Exists() {
		g.ID = id.String()
	}
	if b := r.Get("bounding").Array(); len(b) >= 4 {
		for i := range g.Bounding {
			g.Bounding[i] = b[i].Float()
		}
		g.HasBounds = true
	}
	return g
}

// Groups lists w's groups in document order, each with the nodes it encloses.
func Groups(w *Workflow) []Group {
	if w == nil {
		return nil
	}
	groups := make([]Group, 0, len(w.Groups))
	for _, raw := range w.Groups {
		g := parseGroup(raw)
		for _, n := range w.Nodes {
			if g.Contains(n.Pos) {
				g.Nodes = append(g.Nodes, n.ID)
			}
		}
		slices.Sort(g.Nodes)
		groups = append(groups, g)
	}
	return groups
}

// GroupMembers returns the sorted, deduplicated ids of nodes inside the
// groups titled titles (case-insensitive, first group per title wins).
func GroupMembers(w *Workflow, titles ...string) ([]int, error) {
	groups := Groups(w)
	var ids []int
	for _, title := range titles {
		i := slices.IndexFunc(groups, func(g Group) bool { return strings.EqualFold(g.Title, title) })
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrGroupNotFound, title)
		}
		ids = append(ids, groups[i].Nodes...)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// ExtractGroups narrows doc to the nodes inside the named groups, in the
// same shape as Extract.
func ExtractGroups(doc string, titles ...string) (string, error) {
	if !strings.HasPrefix(doc, headerPrefix) {
		return "", ErrNotCompressed
	}
	w, err := Decompress(doc)
	if err != nil {
		return "", err
	}
	ids, err := GroupMembers(w, titles...)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", ErrNoMatch
	}
	return Extract(doc, JoinIDs(ids))
}

// JoinIDs renders ids as a comma-separated selector.
func JoinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
