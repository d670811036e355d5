// Package catalog reads node-definition catalogs (the object_info document a
// graph server publishes) and answers category, model and node queries.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
)

// ErrInvalidDocument is returned for catalogs that are not a JSON object.
var ErrInvalidDocument = errors.New("catalog: document is not a json object")

// definitionsKey wraps node definitions in exported catalog files.
const definitionsKey = "node_definitions"

// Document is a parsed catalog.
type Document struct {
	raw  []byte
	defs gjson.Result
}

// Parse validates data and wraps it as a Document.
func Parse(data []byte) (*Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidDocument
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, ErrInvalidDocument
	}
	defs := root
	if inner := root.Get(definitionsKey); inner.IsObject() {
		defs = inner
	}
	return &Document{raw: data, defs: defs}, nil
}

// Raw returns the bytes the document was parsed from.
func (d *Document) Raw() []byte { return d.raw }

// Names returns every node name in document order.
func (d *Document) Names() []string {
	var names []string
	d.defs.ForEach(func(k, v gjson.Result) bool {
		if v.IsObject() {
			names = append(names, k.String())
		}
		return true
	})
	return names
}

// Len is the number of node definitions.
func (d *Document) Len() int { return len(d.Names()) }

// Categories returns the distinct root categories, sorted case-insensitively.
// Categories starting with an underscore are internal and skipped.
func (d *Document) Categories() []string {
	seen := map[string]bool{}
	d.defs.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		root, _, _ := strings.Cut(categoryOf(v), "/")
		if !strings.HasPrefix(root, "_") {
			seen[root] = true
		}
		return true
	})
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sortFold(out)
	return out
}

func categoryOf(def gjson.Result) string {
	c := def.Get("category")
	switch {
	case !c.Exists():
		return "Unknown"
	case c.IsArray():
		if arr := c.Array(); len(arr) > 0 {
			return arr[0].String()
		}
		return "Unknown"
	}
	return c.String()
}

// ModelKinds are the model families Models reports, in display order.
var ModelKinds = []string{"CHECKPOINTS", "LORAS", "VAES", "UNETS", "CLIPS"}

// ModelFolder groups model files sharing a folder prefix.
type ModelFolder struct {
	Folder string
	Models []string
}

// ModelGroup is every folder of one model kind.
type ModelGroup struct {
	Kind    string
	Folders []ModelFolder
}

// Count returns the number of models in the group.
func (g ModelGroup) Count() int {
	n := 0
	for _, f := range g.Folders {
		n += len(f.Models)
	}
	return n
}

var modelInputs = map[string]string{
	"ckpt_name": "CHECKPOINTS",
	"lora_name": "LORAS",
	"vae_name":  "VAES",
	"unet_name": "UNETS",
}

// Models collects model files offered by loader inputs, grouped by kind and
// by the folder before the first path separator ("Other" when there is none).
func (d *Document) Models() []ModelGroup {
	byKind := map[string]map[string]map[string]bool{}
	add := func(kind, model string) {
		if strings.TrimSpace(model) == "" || model == "None" {
			return
		}
		folder := "Other"
		if i := strings.IndexAny(model, `\/`); i >= 0 {
			folder = model[:i]
		}
		if byKind[kind] == nil {
			byKind[kind] = map[string]map[string]bool{}
		}
		if byKind[kind][folder] == nil {
			byKind[kind][folder] = map[string]bool{}
		}
		byKind[kind][folder][model] = true
	}

	d.defs.ForEach(func(_, def gjson.Result) bool {
		def.Get("input.required").ForEach(func(name, decl gjson.Result) bool {
			kind, ok := modelInputs[name.String()]
			if !ok && strings.Contains(name.String(), "clip_name") {
				kind, ok = "CLIPS", true
			}
			if !ok {
				return true
			}
			if choices := decl.Get("0"); choices.IsArray() {
				for _, c := range choices.Array() {
					add(kind, c.String())
				}
			}
			return true
		})
		return true
	})

	out := make([]ModelGroup, 0, len(ModelKinds))
	for _, kind := range ModelKinds {
		g := ModelGroup{Kind: kind}
		folders := make([]string, 0, len(byKind[kind]))
		for f := range byKind[kind] {
			folders = append(folders, f)
		}
		sortFold(folders)
		for _, f := range folders {
			models := make([]string, 0, len(byKind[kind][f]))
			for m := range byKind[kind][f] {
				models = append(models, m)
			}
			sortFold(models)
			g.Folders = append(g.Folders, ModelFolder{Folder: f, Models: models})
		}
		out = append(out, g)
	}
	return out
}

// ─── Node definitions ────────────────────────────────────────────────────────

// NodeDef is one node definition.
type NodeDef struct {
	Name string
	def  gjson.Result
}

// Port is an input or output declared by a node definition.
type Port struct {
	Name string
	Type string
}

// Node returns the definition named exactly name.
func (d *Document) Node(name string) (NodeDef, bool) {
	def := d.defs.Get(gjson.Escape(name))
	if !def.IsObject() {
		return NodeDef{}, false
	}
	return NodeDef{Name: name, def: def}, true
}

var termSplitRe = regexp.MustCompile(`[,+\s]+`)

// Lookup finds definitions for each term of query (split on commas, plus
// signs and whitespace). Per term an exact name wins, then the first
// case-insensitive match, then every name containing the term. Results are
// deduplicated and keep first-found order. An empty query returns everything.
func (d *Document) Lookup(query string) []NodeDef {
	names := d.Names()
	var found []string
	seen := map[string]bool{}
	keep := func(n string) {
		if !seen[n] {
			seen[n] = true
			found = append(found, n)
		}
	}

	terms := termSplitRe.Split(strings.TrimSpace(query), -1)
	if strings.TrimSpace(query) == "" {
		terms = nil
		for _, n := range names {
			keep(n)
		}
	}
	for _, term := range terms {
		if term == "" {
			continue
		}
		if _, ok := d.Node(term); ok {
			keep(term)
			continue
		}
		lower := strings.ToLower(term)
		matched := false
		for _, n := range names {
			if strings.ToLower(n) == lower {
				keep(n)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		for _, n := range names {
			if strings.Contains(strings.ToLower(n), lower) {
				keep(n)
			}
		}
	}

	out := make([]NodeDef, 0, len(found))
	for _, n := range found {
		if def, ok := d.Node(n); ok {
			out = append(out, def)
		}
	}
	return out
}

// Category is the definition's full category path.
func (n NodeDef) Category() string { return categoryOf(n.def) }

// Raw returns the definition's JSON.
func (n NodeDef) Raw() json.RawMessage { return json.RawMessage(n.def.Raw) }

// Inputs lists required then optional inputs in declaration order. Combo
// inputs (a list of choices) are typed LIST.
func (n NodeDef) Inputs() []Port {
	var ports []Port
	for _, section := range []string{"required", "optional"} {
		n.def.Get("input." + section).ForEach(func(name, decl gjson.Result) bool {
			if !decl.IsArray() || len(decl.Array()) == 0 {
				return true
			}
			typ := decl.Get("0")
			t := typ.String()
			if typ.IsArray() {
				t = "LIST"
			}
			ports = append(ports, Port{Name: name.String(), Type: t})
			return true
		})
	}
	return ports
}

// Outputs lists declared outputs. Names come from output_name when present,
// otherwise OUT_<index>.
func (n NodeDef) Outputs() []Port {
	names := n.def.Get("output_name").Array()
	var ports []Port
	for i, out := range n.def.Get("output").Array() {
		t := out.String()
		if out.IsArray() {
			t = bridgezip.WildcardType
			if arr := out.Array(); len(arr) > 0 {
				t = arr[0].String()
			}
		}
		name := fmt.Sprintf("OUT_%d", i)
		if i < len(names) && names[i].String() != "" {
			name = names[i].String()
		}
		ports = append(ports, Port{Name: name, Type: t})
	}
	return ports
}

// WidgetDefaults synthesises the widget values a freshly placed node would
// carry: the declared default of every combo or primitive input, in input
// order.
func (n NodeDef) WidgetDefaults() []bridgezip.Value {
	var vals []bridgezip.Value
	for _, section := range []string{"required", "optional"} {
		n.def.Get("input." + section).ForEach(func(_, decl gjson.Result) bool {
			typ := decl.Get("0")
			def := decl.Get("1.default")
			switch {
			case typ.IsArray():
				if def.Exists() {
					vals = append(vals, valueOf(def))
				} else if choices := typ.Array(); len(choices) > 0 {
					vals = append(vals, valueOf(choices[0]))
				} else {
					vals = append(vals, bridgezip.String(""))
				}
			case typ.String() == "INT":
				vals = append(vals, orDefault(def, bridgezip.Int(0)))
			case typ.String() == "FLOAT":
				vals = append(vals, orDefault(def, bridgezip.Float(0)))
			case typ.String() == "STRING":
				vals = append(vals, orDefault(def, bridgezip.String("")))
			case typ.String() == "BOOLEAN":
				vals = append(vals, orDefault(def, bridgezip.Bool(false)))
			}
			return true
		})
	}
	return vals
}

func orDefault(r gjson.Result, fallback bridgezip.Value) bridgezip.Value {
	if !r.Exists() {
		return fallback
	}
	return valueOf(r)
}

func valueOf(r gjson.Result) bridgezip.Value {
	var v bridgezip.Value
	if err := json.Unmarshal([]byte(r.Raw), &v); err != nil {
		return bridgezip.String(r.String())
	}
	return v
}

func sortFold(s []string) {
	sort.SliceStable(s, func(i, j int) bool {
		li, lj := strings.ToLower(s[i]), strings.ToLower(s[j])
		if li != lj {
			return li < lj
		}
		return s[i] < s[j]
	})
}
