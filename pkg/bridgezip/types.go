// Package bridgezip converts node-graph workflow documents to and from a
// compact line-oriented text form.
//
// A compressed document looks like:
//
//	W:<id>|r:<revision>|ln:<last_node_id>|ll:<last_link_id>|v:1.0.0
//	NODES:
//	N<id>:<type>|<x>,<y>,<w>,<h>|I:<inputs>|O:<outputs>|W:<widgets>[|C:..][|P:..]
//	LINKS:
//	L<id>:<src>.<slot>-><dst>.<slot>:<type>
//	M:<compact json of groups, config, extra>
//
// The link list is the single source of truth for connectivity; port-level
// link references are caches that Repair rebuilds from it.
package bridgezip

import "fmt"

// WildcardType is the port type used when a port declares none.
const WildcardType = "*"

// shorthands maps canonical port types to their compressed codes.
var shorthands = map[string]string{
	"MODEL":              "M",
	"IMAGE":              "G",
	"CONDITIONING":       "C",
	"LATENT":             "A",
	"VAE":                "V",
	"CLIP":               "P",
	"STRING":             "S",
	"INT":                "I",
	"FLOAT":              "F",
	"BOOLEAN":            "B",
	"MASK":               "K",
	"CONTROL_NET":        "T",
	"LIST":               "L",
	"CLIP_VISION":        "CV",
	"CLIP_VISION_OUTPUT": "CO",
	"VOXEL":              "VX",
	"MESH":               "MS",
	WildcardType:         WildcardType,
}

var canonicals = invertShorthands(shorthands)

func invertShorthands(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for canonical, short := range m {
		if prev, dup := out[short]; dup {
			panic(fmt.Sprintf("bridgezip: shorthand %q used by both %q and %q", short, prev, canonical))
		}
		out[short] = canonical
	}
	return out
}

// ShorthandOf returns the compressed code for a canonical port type.
// Types without a code are returned unchanged; an empty type is the wildcard.
func ShorthandOf(canonical string) string {
	if canonical == "" {
		return WildcardType
	}
	if s, ok := shorthands[canonical]; ok {
		return s
	}
	return canonical
}

// CanonicalOf is the inverse of ShorthandOf. Unknown codes are returned
// unchanged so custom types survive a round trip.
func CanonicalOf(shorthand string) string {
	if shorthand == "" {
		return WildcardType
	}
	if c, ok := canonicals[shorthand]; ok {
		return c
	}
	return shorthand
}

// KnownTypes returns the canonical types that have a shorthand, excluding the
// wildcard.
func KnownTypes() []string {
	out := make([]string, 0, len(shorthands))
	for canonical := range shorthands {
		if canonical != WildcardType {
			out = append(out, canonical)
		}
	}
	return out
}
