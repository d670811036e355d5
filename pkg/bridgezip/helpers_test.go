package bridgezip_test

import (
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
)

// randomWorkflow builds a workflow from an integer source so the same
// generator serves math/rand, gopter seeds and rapid draws.
func randomWorkflow(intn func(n int) int) *bridgezip.Workflow {
	types := bridgezip.KnownTypes()
	sort.Strings(types)
	types = append(types, "CUSTOM_TYPE", bridgezip.WildcardType)
	pick := func() string { return types[intn(len(types))] }

	w := &bridgezip.Workflow{ID: "wf", Revision: intn(5)}
	nNodes := 1 + intn(6)
	for id := 1; id <= nNodes; id++ {
		typ := fmt.Sprintf("Type%c", 'A'+intn(26))
		n := &bridgezip.Node{
			ID:         id,
			Type:       typ,
			Pos:        bridgezip.Vec2{intn(2000) - 1000, intn(2000)},
			Size:       bridgezip.Vec2{100 + intn(300), 50 + intn(300)},
			Properties: map[string]any{},
		}
		if intn(2) == 0 {
			n.Properties[bridgezip.PropertyNodeName] = typ
		}
		if intn(4) == 0 {
			n.Color, n.BgColor = "#223", "#335"
		}
		for i, k := 0, intn(4); i < k; i++ {
			n.Inputs = append(n.Inputs, &bridgezip.InputPort{Name: fmt.Sprintf("in%d", i), Type: pick()})
		}
		for i, k := 0, intn(3); i < k; i++ {
			n.Outputs = append(n.Outputs, &bridgezip.OutputPort{Name: fmt.Sprintf("out%d", i), Type: pick(), SlotIndex: i})
		}
		for i, k := 0, intn(5); i < k; i++ {
			n.WidgetsValues = append(n.WidgetsValues, randomValue(intn))
		}
		w.Nodes = append(w.Nodes, n)
	}

	nLinks := intn(8)
	for id := 1; id <= nLinks; id++ {
		w.Links = append(w.Links, bridgezip.Link{
			ID:         id,
			SourceNode: 1 + intn(nNodes),
			SourceSlot: intn(3),
			TargetNode: 1 + intn(nNodes),
			TargetSlot: intn(4),
			Type:       pick(),
		})
	}
	w.LastNodeID, w.LastLinkID = w.MaxNodeID(), w.MaxLinkID()
	return w
}

func randomValue(intn func(n int) int) bridgezip.Value {
	switch intn(4) {
	case 0:
		return bridgezip.Int(int64(intn(100000)))
	case 1:
		return bridgezip.Float(float64(intn(10000)) / 8)
	case 2:
		return bridgezip.Bool(intn(2) == 0)
	}
	const alphabet = "abcxyz;|%\n _-."
	s := []byte{'w'}
	for i, k := 0, intn(12); i < k; i++ {
		s = append(s, alphabet[intn(len(alphabet))])
	}
	return bridgezip.String(string(s))
}

// fataler is the part of testing.TB that *rapid.T also provides.
type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

func mustJSON(t fataler, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func mustDecompress(t testing.TB, text string) *bridgezip.Workflow {
	t.Helper()
	w, err := bridgezip.Decompress(text)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	return w
}
