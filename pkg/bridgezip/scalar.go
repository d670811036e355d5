package bridgezip

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/url"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindFloat
	// KindNull and KindRaw only arrive from JSON documents; Unescape never
	// produces them.
	KindNull
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindNull:
		return "null"
	case KindRaw:
		return "raw"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is one widget value: a boolean, integer, float or string.
//
// Integers outside the int64 range keep their decimal digits in s so seeds
// up to 2^64-1 and beyond survive a round trip unchanged.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  json.RawMessage
}

// String, Bool, Int and Float construct values of the matching kind.
func String(s string) Value { return Value{kind: KindString, s: s} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// BigInt parses a base-10 integer of any size. Values that fit in int64 are
// the same as Int; larger ones keep their canonical digits.
func BigInt(digits string) (Value, bool) {
	var n big.Int
	if _, ok := n.SetString(digits, 10); !ok {
		return Value{}, false
	}
	if n.IsInt64() {
		return Int(n.Int64()), true
	}
	return Value{kind: KindInt, s: n.String()}, true
}

// Null is the value of a JSON null widget.
func Null() Value { return Value{kind: KindNull} }

// Raw holds a nested JSON array or object verbatim.
func Raw(r []byte) Value { return Value{kind: KindRaw, raw: append(json.RawMessage(nil), r...)} }

func (v Value) Kind() Kind { return v.kind }

// AsBool, AsInt and AsFloat return the payload for the matching kind and the
// zero value otherwise. AsInt is 0 for integers outside the int64 range; use
// String for their digits.
func (v Value) AsBool() bool     { return v.b }
func (v Value) AsInt() int64     { return v.i }
func (v Value) AsFloat() float64 { return v.f }

// String returns the string payload; for other kinds it returns the textual
// form used by the compressed encoding, before escaping.
func (v Value) String() string {
	if v.kind == KindString {
		return v.s
	}
	return v.text()
}

// Equal reports whether two values hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i && v.s == o.s
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindRaw:
		return bytes.Equal(compactJSON(v.raw), compactJSON(o.raw))
	}
	return true
}

func (v Value) text() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindInt:
		if v.s != "" {
			return v.s
		}
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindNull:
		return "None"
	case KindRaw:
		return string(compactJSON(v.raw))
	}
	return v.s
}

// formatFloat renders f so that it always parses back as a float: integral
// values keep a trailing ".0" and extreme magnitudes use an exponent.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func compactJSON(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

var (
	widgetEscaper = strings.NewReplacer("%", "%25")
	// applied after widgetEscaper so the escapes themselves are not re-escaped
	widgetDelimEscaper = strings.NewReplacer(";", "%3B", "\n", "%0A", "\r", "", "|", "%7C")
)

// Escape renders v as a single-line token that contains none of the
// widget-list delimiters.
func Escape(v Value) string {
	return widgetDelimEscaper.Replace(widgetEscaper.Replace(v.text()))
}

// Unescape reverses Escape and recovers the value's type in order:
// boolean literal, all-digit integer, float, string.
//
// A string widget holding "42" comes back as Int(42); the format cannot tell
// them apart.
func Unescape(token string) Value {
	s := strings.ReplaceAll(token, "%7C", "|")
	s = strings.ReplaceAll(s, "%3B", ";")
	s = strings.ReplaceAll(s, "%0A", "\n")
	s = strings.ReplaceAll(s, "%25", "%")

	switch {
	case s == "True":
		return Bool(true)
	case s == "False":
		return Bool(false)
	case isDigits(s):
		if v, ok := BigInt(s); ok {
			return v
		}
	}
	if f, ok := parseFloat(s); ok {
		return Float(f)
	}
	return String(s)
}

// parseFloat accepts what a lenient float literal parser would: surrounding
// whitespace, decimal and exponent forms, nan and inf.
func parseFloat(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" || strings.ContainsAny(t, "_xXpP") {
		return 0, false
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the value as its natural JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return []byte(v.text()), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			// JSON has no literal for these; the compressed form still reads
			// the string back as the same float.
			return marshalNoEscape(formatFloat(v.f))
		}
		return []byte(formatFloat(v.f)), nil
	case KindNull:
		return []byte("null"), nil
	case KindRaw:
		return compactJSON(v.raw), nil
	}
	return marshalNoEscape(v.s)
}

// UnmarshalJSON decodes a JSON scalar; arrays and objects are kept verbatim.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("bridgezip: empty widget value")
	}
	switch data[0] {
	case 'n':
		*v = Null()
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case '[', '{':
		*v = Raw(data)
	default:
		n := json.Number(data)
		if !bytes.ContainsAny(data, ".eE") {
			if i, err := n.Int64(); err == nil {
				*v = Int(i)
				return nil
			}
			if wide, ok := BigInt(n.String()); ok {
				*v = wide
				return nil
			}
		}
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("bridgezip: widget value %s: %w", data, err)
		}
		*v = Float(f)
	}
	return nil
}

func marshalNoEscape(x any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(x); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// EncodeProperties serialises a property bag as compact JSON and
// percent-encodes it for a single line. It returns "" on any failure.
func EncodeProperties(props map[string]any) string {
	data, err := marshalNoEscape(props)
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(url.QueryEscape(string(data)), "+", "%20")
}

// DecodeProperties reverses EncodeProperties. It never fails: undecodable
// input yields an empty, non-nil map.
func DecodeProperties(s string) map[string]any {
	raw, err := url.PathUnescape(s)
	if err != nil {
		return map[string]any{}
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var props map[string]any
	if err := dec.Decode(&props); err != nil || props == nil {
		return map[string]any{}
	}
	return props
}
