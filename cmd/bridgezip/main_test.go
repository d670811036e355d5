package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
	"github.com/ravi-parthasarathy/bridgezip/pkg/llm"
)

// run executes the CLI with a missing config file so only defaults apply.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return runWithConfig(t, filepath.Join(t.TempDir(), "absent.yaml"), stdin, args...)
}

func runWithConfig(t *testing.T, configPath, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func compressFixture(t *testing.T) string {
	t.Helper()
	doc, err := run(t, "", "compress", "testdata/workflow.json")
	require.NoError(t, err)
	return doc
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ─── TestInitLogger ───────────────────────────────────────────────────────────

func TestInitLogger_ValidLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "DEBUG", "INFO"} {
		if err := initLogger(lvl, "text", io.Discard); err != nil {
			t.Errorf("initLogger(%q, text): unexpected error: %v", lvl, err)
		}
	}
}

func TestInitLogger_ValidFormats(t *testing.T) {
	for _, f := range []string{"text", "json", "TEXT", "JSON"} {
		if err := initLogger("info", f, io.Discard); err != nil {
			t.Errorf("initLogger(info, %q): unexpected error: %v", f, err)
		}
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	if err := initLogger("verbose", "text", io.Discard); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestInitLogger_InvalidFormat(t *testing.T) {
	if err := initLogger("info", "xml", io.Discard); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestRoot_BadLogFlag(t *testing.T) {
	_, err := run(t, "", "--log-level", "loud", "compress", "testdata/workflow.json")
	assert.Error(t, err)
}

// ─── codec ───────────────────────────────────────────────────────────────────

func TestCompressDecompress_RoundTrip(t *testing.T) {
	doc := compressFixture(t)
	assert.True(t, strings.HasPrefix(doc, "W:none|"), doc)
	assert.Contains(t, doc, "N1:CheckpointLoaderSimple|")
	assert.Contains(t, doc, "N2:KSampler|")
	assert.Contains(t, doc, "L1:1.0->2.0:M")

	js, err := run(t, doc, "decompress", "-")
	require.NoError(t, err)
	var w bridgezip.Workflow
	require.NoError(t, json.Unmarshal([]byte(js), &w))
	assert.Len(t, w.Nodes, 2)
	assert.Len(t, w.Links, 1)
	assert.NoError(t, bridgezip.LintErr(&w))

	second, err := run(t, js, "compress", "-")
	require.NoError(t, err)
	js, err = run(t, second, "decompress", "-")
	require.NoError(t, err)
	third, err := run(t, js, "compress", "-")
	require.NoError(t, err)
	assert.Equal(t, second, third)
}

func TestCompress_OutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "doc.bz")
	stdout, err := run(t, "", "compress", "testdata/workflow.json", "-o", out)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, compressFixture(t), string(data))
}

func TestCompress_Errors(t *testing.T) {
	_, err := run(t, "", "compress", "testdata/missing.json")
	assert.ErrorContains(t, err, "read input")

	_, err = run(t, "not json", "compress", "-")
	assert.Error(t, err)

	_, err = run(t, "", "decompress", "-")
	assert.ErrorIs(t, err, bridgezip.ErrEmptyData)
}

// ─── patch ───────────────────────────────────────────────────────────────────

func TestPatch_Delete(t *testing.T) {
	doc := compressFixture(t)
	out, err := run(t, doc, "patch", "-", "--delete", "2")
	require.NoError(t, err)

	w, err := bridgezip.Decompress(out)
	require.NoError(t, err)
	require.Len(t, w.Nodes, 1)
	assert.Equal(t, 1, w.Nodes[0].ID)
	assert.Empty(t, w.Links)
	assert.Empty(t, w.Nodes[0].Outputs[0].Links)
}

func TestPatch_Fragment(t *testing.T) {
	doc := writeTemp(t, "doc.bz", compressFixture(t))
	frag := writeTemp(t, "frag.txt", strings.Join([]string{
		"NNODE_1:VAEDecode|800,0,300,100|I:samples:A:LINK_1|O:IMAGE:G:|W:",
		"LLINK_1:2.0->NODE_1.0:A",
	}, "\n"))

	out, err := run(t, "", "patch", doc, "--fragment", frag)
	require.NoError(t, err)

	w, err := bridgezip.Decompress(out)
	require.NoError(t, err)
	n := w.NodeByID(3)
	require.NotNil(t, n)
	assert.Equal(t, "VAEDecode", n.Type)
	assert.Equal(t, 2, *n.Inputs[0].Link)
	assert.Equal(t, []int{2}, w.NodeByID(2).Outputs[0].Links)
	assert.NoError(t, bridgezip.LintErr(w))
}

func TestPatch_StdinReadOnce(t *testing.T) {
	doc := compressFixture(t)
	_, err := run(t, doc, "patch", "-", "--fragment", "-")
	assert.ErrorContains(t, err, "stdin (-) can only be read once")

	_, err = run(t, doc, "patch", "-", "--envelope", "-")
	assert.ErrorContains(t, err, "stdin (-) can only be read once")

	frag := writeTemp(t, "frag.txt", "NNODE_1:VAEDecode|800,0,300,100|I:samples:A:None|O:IMAGE:G:|W:")
	out, err := run(t, doc, "patch", "-", "--fragment", frag)
	require.NoError(t, err)
	assert.Contains(t, out, "N3:VAEDecode|")

	_, err = run(t, doc, "brief", "-", "-")
	assert.ErrorContains(t, err, "stdin (-) can only be read once")
}

func TestFormatPlaceholders_FirstSeenOrder(t *testing.T) {
	ids := map[string]int{"NODE_1": 4, "LINK_1": 9, "NODE_2": 3}
	assert.Equal(t, "NODE_2=3 NODE_1=4 LINK_1=9",
		formatPlaceholders(ids, []string{"NODE_2", "NODE_1", "LINK_1"}))
	assert.Empty(t, formatPlaceholders(ids, nil))
}

func TestPatch_Envelope(t *testing.T) {
	doc := writeTemp(t, "doc.bz", compressFixture(t))
	env := writeTemp(t, "env.json", `{"plan_summary":"drop sampler","delete_node_ids":[2],"add_nodes_str":"","add_groups":[{"title":"Loaders","bounding":[0,0,400,200]}]}`)

	out, err := run(t, "", "patch", doc, "--envelope", env)
	require.NoError(t, err)
	w, err := bridgezip.Decompress(out)
	require.NoError(t, err)
	assert.Nil(t, w.NodeByID(2))
	assert.Len(t, w.Groups, 1)

	_, err = run(t, "", "patch", doc, "--envelope", env, "--delete", "1")
	assert.ErrorContains(t, err, "cannot be combined")
}

// ─── lint / extract / graph ──────────────────────────────────────────────────

func TestLint(t *testing.T) {
	out, err := run(t, "", "lint", "testdata/workflow.json")
	require.NoError(t, err)
	assert.Equal(t, "OK: 2 nodes, 1 links\n", out)

	out, err = run(t, compressFixture(t), "lint", "-")
	require.NoError(t, err)
	assert.Equal(t, "OK: 2 nodes, 1 links\n", out)

	dangling := `{"last_node_id":1,"last_link_id":5,"nodes":[{"id":1,"type":"A","inputs":[],"outputs":[]}],"links":[[5,1,0,9,0,"MODEL"]]}`
	_, err = run(t, dangling, "lint", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target node 9")
}

func TestExtract(t *testing.T) {
	doc := compressFixture(t)
	out, err := run(t, doc, "extract", "-", "ksampler")
	require.NoError(t, err)
	assert.Contains(t, out, "N2:KSampler|")
	assert.NotContains(t, out, "N1:")

	out, err = run(t, doc, "extract", "-", "1,2")
	require.NoError(t, err)
	assert.Contains(t, out, "L1:1.0->2.0:M")

	_, err = run(t, doc, "extract", "-", "VAEDecode")
	assert.ErrorIs(t, err, bridgezip.ErrNoMatch)
	assert.True(t, bridgezip.IsErrorText(bridgezip.ErrorText(err)))
}

// groupedDoc compresses the fixture with a box around each node.
func groupedDoc(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("testdata/workflow.json")
	require.NoError(t, err)
	grouped := strings.Replace(string(data), `"groups": []`,
		`"groups": [{"id": 1, "title": "Loaders", "bounding": [-10, -10, 200, 200]},`+
			`{"id": 2, "title": "Sampling", "bounding": [390, -10, 400, 300]}]`, 1)
	doc, err := run(t, grouped, "compress", "-")
	require.NoError(t, err)
	return doc
}

func TestExtract_Group(t *testing.T) {
	doc := groupedDoc(t)

	out, err := run(t, doc, "extract", "-", "--group", "sampling")
	require.NoError(t, err)
	assert.Contains(t, out, "N2:KSampler|")
	assert.NotContains(t, out, "N1:")
	assert.Contains(t, out, "L1:1.0->2.0:M")

	out, err = run(t, doc, "extract", "-", "--group", "Loaders", "KSampler")
	require.NoError(t, err)
	assert.Contains(t, out, "N1:CheckpointLoaderSimple|")
	assert.Contains(t, out, "N2:KSampler|")

	_, err = run(t, doc, "extract", "-", "--group", "Upscale")
	assert.ErrorIs(t, err, bridgezip.ErrGroupNotFound)

	_, err = run(t, doc, "extract", "-")
	assert.ErrorContains(t, err, "--group")
}

func TestGroupsCommand(t *testing.T) {
	out, err := run(t, groupedDoc(t), "groups", "-")
	require.NoError(t, err)
	assert.Equal(t, "Loaders  (id 1)  1 nodes: 1\nSampling  (id 2)  1 nodes: 2\n", out)
}

func TestGraph_Text(t *testing.T) {
	out, err := run(t, "", "graph", "testdata/workflow.json")
	require.NoError(t, err)
	assert.Contains(t, out, "Workflow: none  (2 nodes, 1 links)")
	assert.Contains(t, out, "CheckpointLoaderSimple")
	assert.Contains(t, out, "1.0  →  2.0  [MODEL]")
}

func TestGraph_DOT(t *testing.T) {
	out, err := run(t, compressFixture(t), "graph", "-", "--format", "dot")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph workflow")
	assert.Contains(t, out, "n1->n2")
	assert.Contains(t, out, `"1: CheckpointLoaderSimple"`)
	assert.Contains(t, out, "taillabel=MODEL")
	assert.Contains(t, out, "headlabel=model")

	_, err = run(t, "", "graph", "testdata/workflow.json", "--format", "svg")
	assert.ErrorContains(t, err, "unknown format")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abcd", 2))
}

// ─── catalog ─────────────────────────────────────────────────────────────────

func TestCatalog_File(t *testing.T) {
	out, err := run(t, "", "catalog", "categories", "--file", "testdata/object_info.json")
	require.NoError(t, err)
	assert.Equal(t, "latent\nloaders\nsampling\n", out)

	out, err = run(t, "", "catalog", "models", "--file", "testdata/object_info.json")
	require.NoError(t, err)
	assert.Contains(t, out, "CHECKPOINTS (2)")

	out, err = run(t, "", "catalog", "node", "KSampler", "--file", "testdata/object_info.json")
	require.NoError(t, err)
	assert.Contains(t, out, "KSampler  [sampling]")
	assert.Contains(t, out, "out  LATENT")
	assert.Contains(t, out, "widgets 0;20;8.0;euler")

	out, err = run(t, "", "catalog", "node", "vaedecode", "--json", "--file", "testdata/object_info.json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(strings.TrimSpace(out))), out)

	_, err = run(t, "", "catalog", "node", "Upscaler", "--file", "testdata/object_info.json")
	assert.ErrorIs(t, err, bridgezip.ErrNoMatch)
}

func TestCatalog_HTTPWithRedisCache(t *testing.T) {
	body, err := os.ReadFile("testdata/object_info.json")
	require.NoError(t, err)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/object_info", r.URL.Path)
		_, _ = w.Write(body)
	}))
	defer srv.Close()
	mr := miniredis.RunT(t)

	cfg := writeTemp(t, "bridgezip.yaml", "catalog:\n  url: "+srv.URL+"\n  redis_addr: "+mr.Addr()+"\n")
	for range 2 {
		out, err := runWithConfig(t, cfg, "", "catalog", "categories")
		require.NoError(t, err)
		assert.Equal(t, "latent\nloaders\nsampling\n", out)
	}
	assert.Equal(t, int32(1), hits.Load(), "second run is served from redis")
	assert.True(t, mr.Exists("bridgezip:object_info"))
}

// ─── brief / plan ────────────────────────────────────────────────────────────

func TestBrief_Envelope(t *testing.T) {
	doc := writeTemp(t, "doc.bz", compressFixture(t))
	out, err := run(t, "", "brief", doc, "testdata/brief.json", "--catalog-file", "testdata/object_info.json")
	require.NoError(t, err)

	var env struct {
		PlanSummary string `json:"plan_summary"`
		DeleteIDs   []int  `json:"delete_node_ids"`
		AddNodes    string `json:"add_nodes_str"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, "decode the latent", env.PlanSummary)
	assert.Equal(t, []int{}, env.DeleteIDs)
	assert.Contains(t, env.AddNodes, "NNODE_1:VAEDecode|800,0,300,100|I:samples:A:LINK_1,vae:V:None|O:IMAGE:G:|W:")
	assert.Contains(t, env.AddNodes, "LLINK_1:2.0->NODE_1.0:*")
}

func TestBrief_Apply(t *testing.T) {
	doc := writeTemp(t, "doc.bz", compressFixture(t))
	out, err := run(t, "", "brief", doc, "testdata/brief.json", "--catalog-file", "testdata/object_info.json", "--apply")
	require.NoError(t, err)

	w, err := bridgezip.Decompress(out)
	require.NoError(t, err)
	n := w.NodeByID(3)
	require.NotNil(t, n)
	assert.Equal(t, "VAEDecode", n.Type)
	assert.Equal(t, 2, *n.Inputs[0].Link)
	assert.Equal(t, 2, w.LastLinkID)
}

func TestBrief_UnknownType(t *testing.T) {
	doc := writeTemp(t, "doc.bz", compressFixture(t))
	brief := writeTemp(t, "brief.json", `{"plan_summary":"","nodes_to_add":[{"placeholder_id":"NODE_1","type":"Nope","position":[0,0],"widgets":[]}],"nodes_to_delete":[],"groups_to_add":[]}`)
	_, err := run(t, "", "brief", doc, brief, "--catalog-file", "testdata/object_info.json")
	assert.ErrorContains(t, err, `"Nope" not found`)
}

// scriptedClient replies with a fixed envelope.
type scriptedClient struct{ reply string }

func (c scriptedClient) Complete(context.Context, llm.GenerateRequest) (llm.GenerateResponse, error) {
	return llm.GenerateResponse{Text: c.reply, StopReason: llm.StopReasonEndTurn}, nil
}

func (c scriptedClient) Stream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.StreamEvent, error) {
	return llm.StreamFromComplete(ctx, c, req), nil
}

func TestPlan_ScriptedProvider(t *testing.T) {
	llm.RegisterProvider("scripted", func(string) (llm.Client, error) {
		return scriptedClient{reply: "```json\n" +
			`{"plan_summary":"add preview","delete_node_ids":[],"add_nodes_str":"NNODE_1:PreviewImage|900,0,300,100|I:|O:|W:","add_groups":[]}` +
			"\n```"}, nil
	})
	doc := writeTemp(t, "doc.bz", compressFixture(t))

	out, err := run(t, "", "plan", doc, "add a preview", "--model", "scripted:any", "--no-catalog")
	require.NoError(t, err)
	assert.Contains(t, out, `"plan_summary": "add preview"`)

	out, err = run(t, "", "plan", doc, "add a preview", "--model", "scripted:any", "--no-catalog", "--apply")
	require.NoError(t, err)
	w, err := bridgezip.Decompress(out)
	require.NoError(t, err)
	assert.Equal(t, "PreviewImage", w.NodeByID(3).Type)
}

func TestPlan_UnknownProvider(t *testing.T) {
	doc := writeTemp(t, "doc.bz", compressFixture(t))
	_, err := run(t, "", "plan", doc, "r", "--model", "nobody:x", "--no-catalog")
	assert.ErrorContains(t, err, "no provider registered")
}
