package bridgezip_test

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		name string
		in   bridgezip.Value
		want string
	}{
		{"true", bridgezip.Bool(true), "True"},
		{"false", bridgezip.Bool(false), "False"},
		{"int", bridgezip.Int(42), "42"},
		{"negative int", bridgezip.Int(-7), "-7"},
		{"integral float", bridgezip.Float(8), "8.0"},
		{"fraction", bridgezip.Float(0.5), "0.5"},
		{"tiny float", bridgezip.Float(0.00001), "1e-05"},
		{"plain string", bridgezip.String("euler"), "euler"},
		{"reserved characters", bridgezip.String("a;b|c\nd%e\r"), "a%3Bb%7Cc%0Ad%25e"},
		{"null", bridgezip.Null(), "None"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bridgezip.Escape(tt.in); got != tt.want {
				t.Errorf("Escape = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnescape_TypeRecovery(t *testing.T) {
	tests := []struct {
		token string
		want  bridgezip.Value
	}{
		{"True", bridgezip.Bool(true)},
		{"False", bridgezip.Bool(false)},
		{"true", bridgezip.String("true")},
		{"42", bridgezip.Int(42)},
		{"007", bridgezip.Int(7)},
		{"-3", bridgezip.Float(-3)},
		{"7.5", bridgezip.Float(7.5)},
		{"1e-05", bridgezip.Float(0.00001)},
		{"euler", bridgezip.String("euler")},
		{"", bridgezip.String("")},
		{"%253B", bridgezip.String("%3B")},
		{"a%7Cb%3Bc%0Ad", bridgezip.String("a|b;c\nd")},
	}
	for _, tt := range tests {
		got := bridgezip.Unescape(tt.token)
		if !got.Equal(tt.want) {
			t.Errorf("Unescape(%q) = %v (%s), want %v (%s)", tt.token, got, got.Kind(), tt.want, tt.want.Kind())
		}
	}
}

func TestBigInt_KeepsDigits(t *testing.T) {
	const maxUint64 = "18446744073709551615"

	got := bridgezip.Unescape(maxUint64)
	require.Equal(t, bridgezip.KindInt, got.Kind())
	assert.Equal(t, maxUint64, got.String())
	assert.Equal(t, maxUint64, bridgezip.Escape(got))

	padded := bridgezip.Unescape("000" + maxUint64)
	assert.True(t, padded.Equal(got), "leading zeros are dropped like any int")

	small, ok := bridgezip.BigInt("42")
	require.True(t, ok)
	assert.True(t, small.Equal(bridgezip.Int(42)))

	other, ok := bridgezip.BigInt("18446744073709551614")
	require.True(t, ok)
	assert.False(t, other.Equal(got))

	_, ok = bridgezip.BigInt("12a")
	assert.False(t, ok)
}

func TestBigInt_JSON(t *testing.T) {
	var vals []bridgezip.Value
	require.NoError(t, json.Unmarshal([]byte(`[18446744073709551615, -99999999999999999999, 9223372036854775807]`), &vals))
	require.Len(t, vals, 3)
	for _, v := range vals {
		assert.Equal(t, bridgezip.KindInt, v.Kind())
	}
	assert.Equal(t, int64(math.MaxInt64), vals[2].AsInt())

	out, err := json.Marshal(vals)
	require.NoError(t, err)
	assert.Equal(t, `[18446744073709551615,-99999999999999999999,9223372036854775807]`, string(out))
}

func TestUnescape_TrueIsNotOne(t *testing.T) {
	got := bridgezip.Unescape(bridgezip.Escape(bridgezip.Bool(true)))
	require.Equal(t, bridgezip.KindBool, got.Kind())
	assert.True(t, got.AsBool())
}

// A numeric string cannot be told apart from an integer once compressed.
func TestUnescape_NumericStringBecomesInt(t *testing.T) {
	got := bridgezip.Unescape(bridgezip.Escape(bridgezip.String("42")))
	require.Equal(t, bridgezip.KindInt, got.Kind())
	assert.Equal(t, int64(42), got.AsInt())
}

func TestEscape_NoDelimitersSurvive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")
		out := bridgezip.Escape(bridgezip.String(s))
		if strings.ContainsAny(out, ";|\n\r") {
			t.Fatalf("Escape(%q) = %q contains a delimiter", s, out)
		}
	})
}

func TestEscape_StringRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// The leading letter keeps the value out of the bool/int/float forms.
		s := "x" + rapid.StringMatching(`[a-zA-Z0-9;|%\n .]{0,24}`).Draw(t, "s")
		got := bridgezip.Unescape(bridgezip.Escape(bridgezip.String(s)))
		if got.Kind() != bridgezip.KindString || got.String() != s {
			t.Fatalf("round trip of %q gave %q (%s)", s, got.String(), got.Kind())
		}
	})
}

func TestEscape_NumberRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		i := rapid.Int64Range(0, math.MaxInt64).Draw(t, "i")
		if got := bridgezip.Unescape(bridgezip.Escape(bridgezip.Int(i))); !got.Equal(bridgezip.Int(i)) {
			t.Fatalf("int %d came back as %v (%s)", i, got, got.Kind())
		}
		f := rapid.Float64Range(-1e300, 1e300).Draw(t, "f")
		if got := bridgezip.Unescape(bridgezip.Escape(bridgezip.Float(f))); !got.Equal(bridgezip.Float(f)) {
			t.Fatalf("float %v came back as %v (%s)", f, got, got.Kind())
		}
	})
}

func TestProperties_RoundTrip(t *testing.T) {
	props := map[string]any{
		bridgezip.PropertyNodeName: "KSampler",
		"note":                     "a|b;c\nd & e",
	}
	enc := bridgezip.EncodeProperties(props)
	require.NotEmpty(t, enc)
	assert.NotContains(t, enc, "|")
	assert.NotContains(t, enc, ";")
	assert.NotContains(t, enc, " ")
	assert.Equal(t, props, bridgezip.DecodeProperties(enc))
}

func TestEncodeProperties_FailureIsEmpty(t *testing.T) {
	got := bridgezip.EncodeProperties(map[string]any{"ch": make(chan int)})
	assert.Equal(t, "", got)
}

func TestDecodeProperties_FailureIsEmptyMap(t *testing.T) {
	for _, in := range []string{"%zz", "not json", "", "%5B1%2C2%5D"} {
		got := bridgezip.DecodeProperties(in)
		if got == nil || len(got) != 0 {
			t.Errorf("DecodeProperties(%q) = %#v, want empty map", in, got)
		}
	}
}

func TestValue_JSON(t *testing.T) {
	var vals []bridgezip.Value
	require.NoError(t, json.Unmarshal([]byte(`[true, 3, 2.5, 1e3, "x", null, [1, 2]]`), &vals))
	kinds := []bridgezip.Kind{
		bridgezip.KindBool, bridgezip.KindInt, bridgezip.KindFloat, bridgezip.KindFloat,
		bridgezip.KindString, bridgezip.KindNull, bridgezip.KindRaw,
	}
	require.Len(t, vals, len(kinds))
	for i, k := range kinds {
		assert.Equal(t, k, vals[i].Kind(), "index %d", i)
	}

	out, err := json.Marshal(vals)
	require.NoError(t, err)
	assert.Equal(t, `[true,3,2.5,1000.0,"x",null,[1,2]]`, string(out))
}

func TestValue_NonFiniteFloatMarshalsAsString(t *testing.T) {
	out, err := json.Marshal(bridgezip.Float(math.Inf(1)))
	require.NoError(t, err)
	assert.Equal(t, `"inf"`, string(out))
}
