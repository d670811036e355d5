package planner

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
	"github.com/ravi-parthasarathy/bridgezip/pkg/catalog"
	"github.com/ravi-parthasarathy/bridgezip/pkg/patch"
)

// DefaultGroupColor is used for brief groups without a color.
const DefaultGroupColor = "#3f789e"

const (
	newNodePrefix      = "NODE_"
	existingNodePrefix = "EXISTING_"
)

// Brief is a structured change request. Unlike an envelope it names node
// types and connections by port name; Compile turns it into a fragment using
// the catalog's port layout.
type Brief struct {
	PlanSummary   string       `json:"plan_summary"`
	NodesToAdd    []BriefNode  `json:"nodes_to_add"`
	NodesToDelete []int        `json:"nodes_to_delete"`
	GroupsToAdd   []BriefGroup `json:"groups_to_add"`
	NodesToUpdate []NodeUpdate `json:"nodes_to_update,omitempty"`
}

// BriefNode is a node to create. Placeholder is NODE_<n>.
type BriefNode struct {
	Placeholder string             `json:"placeholder_id"`
	Type        string             `json:"type"`
	Position    []int              `json:"position"`
	Size        []int              `json:"size,omitempty"`
	Widgets     []bridgezip.Value  `json:"widgets"`
	Inputs      []InputConnection  `json:"inputs,omitempty"`
	Outputs     []OutputConnection `json:"outputs,omitempty"`
	Color       string             `json:"color,omitempty"`
}

// Endpoint names a slot on a new (NODE_n) or existing (EXISTING_n) node.
type Endpoint struct {
	Node string `json:"node"`
	Slot int    `json:"slot"`
}

// InputConnection feeds the named input from an upstream output.
type InputConnection struct {
	InputName string   `json:"input_name"`
	From      Endpoint `json:"from"`
}

// OutputConnection fans the named output out to downstream inputs.
type OutputConnection struct {
	OutputName string     `json:"output_name"`
	To         []Endpoint `json:"to"`
}

// BriefGroup is a group to add.
type BriefGroup struct {
	Title    string `json:"title"`
	Bounding []int  `json:"bounding"`
	Color    string `json:"color,omitempty"`
}

// NodeUpdate replaces the widget values (and optionally the type) of an
// existing node, keeping its wiring.
type NodeUpdate struct {
	Target  string            `json:"target"`
	Type    string            `json:"type,omitempty"`
	Widgets []bridgezip.Value `json:"widgets"`
}

// ParseBrief validates data against defs and decodes it.
func ParseBrief(data []byte, defs *catalog.Document) (*Brief, error) {
	if err := ValidateBrief(data, defs); err != nil {
		return nil, err
	}
	var b Brief
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode brief: %w", err)
	}
	return &b, nil
}

// ValidateBrief checks the brief's structure and that every node type it
// names exists in defs. It reports the first problem found.
func ValidateBrief(data []byte, defs *catalog.Document) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("brief is not valid json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return fmt.Errorf("brief must be a json object")
	}
	for _, key := range []string{"plan_summary", "nodes_to_add", "nodes_to_delete", "groups_to_add"} {
		if !root.Get(key).Exists() {
			return fmt.Errorf("missing required field %q", key)
		}
	}
	if root.Get("plan_summary").Type != gjson.String {
		return fmt.Errorf("plan_summary must be a string")
	}
	for _, key := range []string{"nodes_to_add", "nodes_to_delete", "groups_to_add"} {
		if !root.Get(key).IsArray() {
			return fmt.Errorf("%s must be an array", key)
		}
	}

	for i, id := range root.Get("nodes_to_delete").Array() {
		if !isInt(id) {
			return fmt.Errorf("nodes_to_delete[%d] must be an integer node id", i)
		}
	}

	knownType := func(t string) bool {
		if defs == nil {
			return true
		}
		_, ok := defs.Node(t)
		return ok
	}

	for i, node := range root.Get("nodes_to_add").Array() {
		at := fmt.Sprintf("nodes_to_add[%d]", i)
		if !node.IsObject() {
			return fmt.Errorf("%s must be an object", at)
		}
		for _, field := range []string{"placeholder_id", "type", "position", "widgets"} {
			if !node.Get(field).Exists() {
				return fmt.Errorf("%s missing required field %q", at, field)
			}
		}
		if p := node.Get("placeholder_id"); p.Type != gjson.String || !strings.HasPrefix(p.Str, newNodePrefix) {
			return fmt.Errorf("%s.placeholder_id must be like 'NODE_1'", at)
		}
		typ := node.Get("type")
		if typ.Type != gjson.String {
			return fmt.Errorf("%s.type must be a string", at)
		}
		if !knownType(typ.Str) {
			return fmt.Errorf("%s.type %q not found in node definitions", at, typ.Str)
		}
		if !isIntArray(node.Get("position"), 2) {
			return fmt.Errorf("%s.position must be [x, y] integers", at)
		}
		if size := node.Get("size"); size.Exists() && !isIntArray(size, -1) {
			return fmt.Errorf("%s.size must be [w, h] integers", at)
		}
		if !node.Get("widgets").IsArray() {
			return fmt.Errorf("%s.widgets must be an array", at)
		}
		for _, key := range []string{"inputs", "outputs"} {
			if v := node.Get(key); v.Exists() && !v.IsArray() {
				return fmt.Errorf("%s.%s must be an array if present", at, key)
			}
		}
		for j, in := range node.Get("inputs").Array() {
			if err := validateEndpoint(in.Get("from"), fmt.Sprintf("%s.inputs[%d].from", at, j)); err != nil {
				return err
			}
		}
		for j, out := range node.Get("outputs").Array() {
			for k, to := range out.Get("to").Array() {
				if err := validateEndpoint(to, fmt.Sprintf("%s.outputs[%d].to[%d]", at, j, k)); err != nil {
					return err
				}
			}
		}
	}

	for i, g := range root.Get("groups_to_add").Array() {
		at := fmt.Sprintf("groups_to_add[%d]", i)
		if !g.IsObject() {
			return fmt.Errorf("%s must be an object", at)
		}
		if !g.Get("title").Exists() || !g.Get("bounding").Exists() {
			return fmt.Errorf("%s must have 'title' and 'bounding'", at)
		}
		if g.Get("title").Type != gjson.String {
			return fmt.Errorf("%s.title must be a string", at)
		}
		if !isIntArray(g.Get("bounding"), 4) {
			return fmt.Errorf("%s.bounding must be [x, y, w, h] integers", at)
		}
	}

	updates := root.Get("nodes_to_update")
	if updates.Exists() && updates.Type != gjson.Null && !updates.IsArray() {
		return fmt.Errorf("nodes_to_update must be an array if present")
	}
	for i, u := range updates.Array() {
		at := fmt.Sprintf("nodes_to_update[%d]", i)
		if !u.IsObject() {
			return fmt.Errorf("%s must be an object", at)
		}
		if !u.Get("target").Exists() || !u.Get("widgets").Exists() {
			return fmt.Errorf("%s must have 'target' and 'widgets' fields", at)
		}
		if tg := u.Get("target"); tg.Type != gjson.String || !strings.HasPrefix(tg.Str, existingNodePrefix) {
			return fmt.Errorf("%s.target must be like 'EXISTING_6'", at)
		}
		if typ := u.Get("type"); typ.Exists() && typ.Type != gjson.Null {
			if typ.Type != gjson.String {
				return fmt.Errorf("%s.type must be a string if present", at)
			}
			if !knownType(typ.Str) {
				return fmt.Errorf("%s.type %q not found in node definitions", at, typ.Str)
			}
		}
		if !u.Get("widgets").IsArray() {
			return fmt.Errorf("%s.widgets must be an array", at)
		}
	}
	return nil
}

func validateEndpoint(e gjson.Result, at string) error {
	if !e.IsObject() {
		return fmt.Errorf("%s must be an object", at)
	}
	node := e.Get("node")
	if node.Type != gjson.String ||
		!(strings.HasPrefix(node.Str, newNodePrefix) || strings.HasPrefix(node.Str, existingNodePrefix)) {
		return fmt.Errorf("%s.node must be like 'NODE_1' or 'EXISTING_6'", at)
	}
	if slot := e.Get("slot"); slot.Exists() && !isInt(slot) {
		return fmt.Errorf("%s.slot must be an integer", at)
	}
	return nil
}

func isInt(v gjson.Result) bool {
	return v.Type == gjson.Number && v.Num == float64(int64(v.Num)) && !strings.ContainsAny(v.Raw, ".eE")
}

// isIntArray reports whether v is an array of integers of length n, or of
// any length when n < 0.
func isIntArray(v gjson.Result, n int) bool {
	if !v.IsArray() {
		return false
	}
	arr := v.Array()
	if n >= 0 && len(arr) != n {
		return false
	}
	for _, x := range arr {
		if !isInt(x) {
			return false
		}
	}
	return true
}

// ─── Compilation ─────────────────────────────────────────────────────────────

// linkKey is one generated connection, by endpoint label ("NODE_1.0", "7.2").
type linkKey struct{ src, dst string }

type linkTable struct {
	order []linkKey
	ids   map[linkKey]string
}

func (t *linkTable) token(src, dst string) string {
	k := linkKey{src, dst}
	if id, ok := t.ids[k]; ok {
		return id
	}
	if t.ids == nil {
		t.ids = map[linkKey]string{}
	}
	id := "LINK_" + strconv.Itoa(len(t.order)+1)
	t.ids[k] = id
	t.order = append(t.order, k)
	return id
}

// nodeLabel maps EXISTING_<n> to n and leaves placeholders alone.
func nodeLabel(ref string) string {
	if rest, ok := strings.CutPrefix(ref, existingNodePrefix); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			return strconv.Itoa(n)
		}
	}
	return ref
}

// Compile renders the brief as an envelope against the current document
// doc. New nodes get their port layout from defs; connections become
// LINK_<n> placeholders. Updates rewrite existing node lines with new
// widgets; targets missing from doc are skipped.
func (b *Brief) Compile(defs *catalog.Document, doc string) (*patch.Envelope, error) {
	var lines []string
	var links linkTable

	if len(b.NodesToAdd) > 0 && defs == nil {
		return nil, fmt.Errorf("node definitions are required to add nodes")
	}
	for i, n := range b.NodesToAdd {
		if len(n.Position) != 2 {
			return nil, fmt.Errorf("nodes_to_add[%d].position must be [x, y] integers", i)
		}
		def, ok := defs.Node(n.Type)
		if !ok {
			return nil, fmt.Errorf("node type %q not found in node definitions", n.Type)
		}
		lines = append(lines, compileNode(n, def, &links))
	}

	if len(b.NodesToUpdate) > 0 {
		current, err := bridgezip.Decompress(doc)
		if err != nil {
			return nil, fmt.Errorf("current workflow: %w", err)
		}
		for _, u := range b.NodesToUpdate {
			id, err := strconv.Atoi(nodeLabel(u.Target))
			if err != nil {
				continue
			}
			existing := current.NodeByID(id)
			if existing == nil {
				continue
			}
			updated := *existing
			updated.WidgetsValues = u.Widgets
			if u.Type != "" {
				updated.Type = u.Type
			}
			lines = append(lines, bridgezip.FormatNodeLine(&updated))
		}
	}

	for _, k := range links.order {
		lines = append(lines, "L"+links.ids[k]+":"+k.src+"->"+k.dst+":"+bridgezip.WildcardType)
	}

	env := &patch.Envelope{
		PlanSummary: b.PlanSummary,
		DeleteIDs:   b.NodesToDelete,
		AddNodes:    strings.Join(lines, "\n"),
	}
	if env.DeleteIDs == nil {
		env.DeleteIDs = []int{}
	}
	for _, g := range b.GroupsToAdd {
		if g.Color == "" {
			g.Color = DefaultGroupColor
		}
		raw, err := json.Marshal(g)
		if err != nil {
			return nil, err
		}
		env.AddGroups = append(env.AddGroups, raw)
	}
	return env, nil
}

func compileNode(n BriefNode, def catalog.NodeDef, links *linkTable) string {
	x, y := n.Position[0], n.Position[1]
	w, h := bridgezip.DefaultWidth, bridgezip.DefaultHeight
	if len(n.Size) > 0 {
		w = n.Size[0]
	}
	if len(n.Size) > 1 {
		h = n.Size[1]
	}
	self := nodeLabel(n.Placeholder)

	var ins []string
	for idx, port := range def.Inputs() {
		link := "None"
		for _, c := range n.Inputs {
			if c.InputName == port.Name {
				link = links.token(nodeLabel(c.From.Node)+"."+strconv.Itoa(c.From.Slot), self+"."+strconv.Itoa(idx))
				break
			}
		}
		ins = append(ins, port.Name+":"+bridgezip.ShorthandOf(port.Type)+":"+link)
	}

	var outs []string
	for idx, port := range def.Outputs() {
		var ids []string
		for _, c := range n.Outputs {
			if c.OutputName != port.Name && c.OutputName != "OUT_"+strconv.Itoa(idx) {
				continue
			}
			for _, to := range c.To {
				ids = append(ids, links.token(self+"."+strconv.Itoa(idx), nodeLabel(to.Node)+"."+strconv.Itoa(to.Slot)))
			}
		}
		outs = append(outs, port.Name+":"+bridgezip.ShorthandOf(port.Type)+":"+strings.Join(ids, ","))
	}

	wids := make([]string, 0, len(n.Widgets))
	for _, v := range n.Widgets {
		wids = append(wids, bridgezip.Escape(v))
	}

	line := fmt.Sprintf("N%s:%s|%d,%d,%d,%d|I:%s|O:%s|W:%s",
		n.Placeholder, n.Type, x, y, w, h,
		strings.Join(ins, ","), strings.Join(outs, ";"), strings.Join(wids, ";"))
	if n.Color != "" {
		line += "|C:" + n.Color + ","
	}
	return line
}
