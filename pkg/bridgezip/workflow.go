package bridgezip

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// FormatVersion is stamped on every decompressed workflow regardless of what
// the input claims.
const FormatVersion = 0.4

// Default node geometry used when a node line carries no usable geometry.
const (
	DefaultWidth  = 300
	DefaultHeight = 100
)

// PropertyNodeName is the fallback property every decoded node carries.
const PropertyNodeName = "Node name for S&R"

// Workflow is the decompressed, in-memory form of a document.
type Workflow struct {
	ID         string
	Revision   int
	LastNodeID int
	LastLinkID int
	Version    float64
	Nodes      []*Node
	Links      []Link
	Groups     []json.RawMessage
	Config     json.RawMessage
	Extra      json.RawMessage

	// Extras holds top-level keys the codec does not model. They travel in
	// the metadata line next to groups, config and extra.
	Extras map[string]json.RawMessage
}

// Node is one vertex of the workflow graph.
type Node struct {
	ID            int             `json:"id"`
	Type          string          `json:"type"`
	Pos           Vec2            `json:"pos"`
	Size          Vec2            `json:"size"`
	Flags         json.RawMessage `json:"flags"`
	Order         int             `json:"order"`
	Mode          int             `json:"mode"`
	Inputs        []*InputPort    `json:"inputs"`
	Outputs       []*OutputPort   `json:"outputs"`
	Properties    map[string]any  `json:"properties"`
	WidgetsValues []Value         `json:"widgets_values"`
	Color         string          `json:"color,omitempty"`
	BgColor       string          `json:"bgcolor,omitempty"`
}

// InputPort accepts at most one link.
type InputPort struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Link *int   `json:"link"`
}

// OutputPort may fan out to many links.
type OutputPort struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Links     []int  `json:"links"`
	SlotIndex int    `json:"slot_index"`
}

// Link connects SourceNode.outputs[SourceSlot] to TargetNode.inputs[TargetSlot].
type Link struct {
	ID         int
	SourceNode int
	SourceSlot int
	TargetNode int
	TargetSlot int
	Type       string
}

// Vec2 is an integer pair used for position and size.
type Vec2 [2]int

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id int) *Node {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// LinkByID returns the link with the given id.
func (w *Workflow) LinkByID(id int) (Link, bool) {
	for _, l := range w.Links {
		if l.ID == id {
			return l, true
		}
	}
	return Link{}, false
}

// MaxNodeID returns the highest node id present, or 0.
func (w *Workflow) MaxNodeID() int {
	maxID := 0
	for _, n := range w.Nodes {
		if n != nil && n.ID > maxID {
			maxID = n.ID
		}
	}
	return maxID
}

// MaxLinkID returns the highest link id present, or 0.
func (w *Workflow) MaxLinkID() int {
	maxID := 0
	for _, l := range w.Links {
		if l.ID > maxID {
			maxID = l.ID
		}
	}
	return maxID
}

// linkRef returns a pointer to a copy of id, for InputPort.Link.
func linkRef(id int) *int { return &id }

// newNode returns a node carrying the bookkeeping defaults a decoded node has.
func newNode(id int, typ string) *Node {
	return &Node{
		ID:            id,
		Type:          typ,
		Size:          Vec2{DefaultWidth, DefaultHeight},
		Flags:         json.RawMessage("{}"),
		Order:         id,
		Properties:    map[string]any{PropertyNodeName: typ},
		Inputs:        []*InputPort{},
		Outputs:       []*OutputPort{},
		WidgetsValues: []Value{},
	}
}

// ─── JSON ────────────────────────────────────────────────────────────────────

// structural keys are modelled by Workflow fields and never land in Extras.
var structuralKeys = map[string]bool{
	"id": true, "revision": true, "last_node_id": true, "last_link_id": true,
	"nodes": true, "links": true, "version": true,
}

type workflowJSON struct {
	ID         json.RawMessage   `json:"id,omitempty"`
	Revision   int               `json:"revision"`
	LastNodeID int               `json:"last_node_id"`
	LastLinkID int               `json:"last_link_id"`
	Nodes      []*Node           `json:"nodes"`
	Links      []Link            `json:"links"`
	Groups     []json.RawMessage `json:"groups"`
	Config     json.RawMessage   `json:"config"`
	Extra      json.RawMessage   `json:"extra"`
	Version    float64           `json:"version"`
}

// MarshalJSON writes the workflow in its document shape; Extras follow the
// modelled keys in sorted order.
func (w *Workflow) MarshalJSON() ([]byte, error) {
	aux := workflowJSON{
		Revision:   w.Revision,
		LastNodeID: w.LastNodeID,
		LastLinkID: w.LastLinkID,
		Nodes:      w.Nodes,
		Links:      w.Links,
		Groups:     w.Groups,
		Config:     orEmptyObject(w.Config),
		Extra:      orEmptyObject(w.Extra),
		Version:    w.Version,
	}
	if w.ID != "" {
		id, err := json.Marshal(w.ID)
		if err != nil {
			return nil, err
		}
		aux.ID = id
	}
	if aux.Nodes == nil {
		aux.Nodes = []*Node{}
	}
	if aux.Links == nil {
		aux.Links = []Link{}
	}
	if aux.Groups == nil {
		aux.Groups = []json.RawMessage{}
	}
	data, err := marshalNoEscape(aux)
	if err != nil {
		return nil, err
	}
	if len(w.Extras) == 0 {
		return data, nil
	}

	keys := make([]string, 0, len(w.Extras))
	for k := range w.Extras {
		if !structuralKeys[k] && !metaKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, k := range keys {
		kb, _ := json.Marshal(k)
		buf.WriteByte(',')
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(orNull(w.Extras[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a workflow document. Unknown top-level keys are kept
// in Extras.
func (w *Workflow) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("workflow: document is null")
	}
	var aux workflowJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	*w = Workflow{
		Revision:   aux.Revision,
		LastNodeID: aux.LastNodeID,
		LastLinkID: aux.LastLinkID,
		Version:    aux.Version,
		Nodes:      aux.Nodes,
		Links:      aux.Links,
		Groups:     aux.Groups,
		Config:     aux.Config,
		Extra:      aux.Extra,
	}
	if len(aux.ID) > 0 {
		w.ID = scalarText(aux.ID)
	}
	for k, v := range fields {
		if structuralKeys[k] || metaKeys[k] {
			continue
		}
		if w.Extras == nil {
			w.Extras = make(map[string]json.RawMessage)
		}
		w.Extras[k] = v
	}
	for i, n := range w.Nodes {
		if n == nil {
			return fmt.Errorf("workflow: nodes[%d] is null", i)
		}
	}
	return nil
}

type nodeAlias Node

// UnmarshalJSON applies the defaults a bare node object implies: size
// 300x100 and empty flags.
func (n *Node) UnmarshalJSON(data []byte) error {
	aux := nodeAlias{Size: Vec2{DefaultWidth, DefaultHeight}}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	*n = Node(aux)
	if len(n.Flags) == 0 || bytes.Equal(n.Flags, []byte("null")) {
		n.Flags = json.RawMessage("{}")
	}
	for i, in := range n.Inputs {
		if in == nil {
			return fmt.Errorf("node %d: inputs[%d] is null", n.ID, i)
		}
	}
	for i, out := range n.Outputs {
		if out == nil {
			return fmt.Errorf("node %d: outputs[%d] is null", n.ID, i)
		}
	}
	return nil
}

// MarshalJSON keeps empty collections as [] and {} rather than null.
func (n *Node) MarshalJSON() ([]byte, error) {
	aux := nodeAlias(*n)
	if aux.Inputs == nil {
		aux.Inputs = []*InputPort{}
	}
	if aux.Outputs == nil {
		aux.Outputs = []*OutputPort{}
	}
	if aux.WidgetsValues == nil {
		aux.WidgetsValues = []Value{}
	}
	if aux.Properties == nil {
		aux.Properties = map[string]any{}
	}
	aux.Flags = orEmptyObject(aux.Flags)
	return marshalNoEscape(aux)
}

type outputAlias OutputPort

// MarshalJSON writes an empty link list as [] rather than null.
func (o *OutputPort) MarshalJSON() ([]byte, error) {
	aux := outputAlias(*o)
	if aux.Links == nil {
		aux.Links = []int{}
	}
	return json.Marshal(aux)
}

// UnmarshalJSON accepts [x, y] and the legacy {"0": x, "1": y} shape.
// Fractional values are truncated toward zero.
func (v *Vec2) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var nums []float64
	if len(data) > 0 && data[0] == '{' {
		var m map[string]float64
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("vec2: %w", err)
		}
		x, okX := m["0"]
		y, okY := m["1"]
		if okX {
			v[0] = truncate(x)
		}
		if okY {
			v[1] = truncate(y)
		}
		return nil
	}
	if err := json.Unmarshal(data, &nums); err != nil {
		return fmt.Errorf("vec2: %w", err)
	}
	if len(nums) < 2 {
		return fmt.Errorf("vec2: want 2 values, got %d", len(nums))
	}
	v[0], v[1] = truncate(nums[0]), truncate(nums[1])
	return nil
}

func truncate(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

// MarshalJSON writes the link as its 6-element tuple.
func (l Link) MarshalJSON() ([]byte, error) {
	return marshalNoEscape([]any{l.ID, l.SourceNode, l.SourceSlot, l.TargetNode, l.TargetSlot, l.Type})
}

type linkObject struct {
	ID         int             `json:"id"`
	OriginID   int             `json:"origin_id"`
	OriginSlot int             `json:"origin_slot"`
	TargetID   int             `json:"target_id"`
	TargetSlot int             `json:"target_slot"`
	Type       json.RawMessage `json:"type"`
}

// UnmarshalJSON reads the tuple form and the object form with
// origin_id/origin_slot/target_id/target_slot keys.
func (l *Link) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj linkObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("link: %w", err)
		}
		*l = Link{obj.ID, obj.OriginID, obj.OriginSlot, obj.TargetID, obj.TargetSlot, linkType(obj.Type)}
		return nil
	}
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if len(tuple) < 5 {
		return fmt.Errorf("link: want 6 elements, got %d", len(tuple))
	}
	var ints [5]int
	for i := range ints {
		if err := json.Unmarshal(tuple[i], &ints[i]); err != nil {
			return fmt.Errorf("link element %d: %w", i, err)
		}
	}
	typ := WildcardType
	if len(tuple) > 5 {
		typ = linkType(tuple[5])
	}
	*l = Link{ints[0], ints[1], ints[2], ints[3], ints[4], typ}
	return nil
}

func linkType(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return WildcardType
	}
	return scalarText(raw)
}

// scalarText returns a JSON string's contents, or the compact JSON text of
// any other value.
func scalarText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ""
	}
	return string(compactJSON(raw))
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return json.RawMessage("{}")
	}
	return raw
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// itoa is strconv.Itoa; kept short for the line formatters.
func itoa(i int) string { return strconv.Itoa(i) }
