package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
)

// envelopeWrapper is the optional outer key around an envelope.
const envelopeWrapper = "TASK_ENVELOPE"

// Envelope is a change set as produced by a planner.
type Envelope struct {
	PlanSummary string            `json:"plan_summary,omitempty"`
	DeleteIDs   []int             `json:"delete_node_ids"`
	AddNodes    string            `json:"add_nodes_str"`
	AddGroups   []json.RawMessage `json:"add_groups"`
}

// ParseEnvelope decodes an envelope, unwrapping a TASK_ENVELOPE key if
// present. delete_node_ids must be an array; entries that are neither
// integers nor all-digit strings are dropped.
func ParseEnvelope(data []byte) (*Envelope, error) {
	data = bytes.TrimSpace(data)
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid envelope json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("envelope must be a json object")
	}
	if inner := root.Get(envelopeWrapper); inner.IsObject() {
		root = inner
	}

	env := &Envelope{
		PlanSummary: root.Get("plan_summary").String(),
		AddNodes:    root.Get("add_nodes_str").String(),
	}

	if del := root.Get("delete_node_ids"); del.Exists() {
		if !del.IsArray() {
			return nil, fmt.Errorf("delete_node_ids must be an array")
		}
		for _, v := range del.Array() {
			if id, ok := envelopeID(v); ok {
				env.DeleteIDs = append(env.DeleteIDs, id)
			}
		}
	}

	if groups := root.Get("add_groups"); groups.Exists() {
		if !groups.IsArray() {
			return nil, fmt.Errorf("add_groups must be an array")
		}
		for _, g := range groups.Array() {
			if g.IsObject() {
				env.AddGroups = append(env.AddGroups, json.RawMessage(g.Raw))
			}
		}
	}
	return env, nil
}

func envelopeID(v gjson.Result) (int, bool) {
	switch v.Type {
	case gjson.Number:
		if v.Num < 0 || v.Num != float64(int(v.Num)) {
			return 0, false
		}
		return int(v.Num), true
	case gjson.String:
		s := v.String()
		if s == "" {
			return 0, false
		}
		for i := 0; i < len(s); i++ {
			if s[i] < '0' || s[i] > '9' {
				return 0, false
			}
		}
		id, err := strconv.Atoi(s)
		return id, err == nil
	}
	return 0, false
}

// Apply runs the envelope against doc: deletions and additions through Run,
// then new groups whose title is not already present.
func (e *Envelope) Apply(doc string) (string, error) {
	res, err := Run(doc, Request{Fragment: e.AddNodes, DeleteIDs: e.DeleteIDs})
	if err != nil {
		return "", err
	}
	if len(e.AddGroups) == 0 {
		return res.Document, nil
	}
	if MergeGroups(res.Workflow, e.AddGroups) == 0 {
		return res.Document, nil
	}
	out, err := bridgezip.Compress(res.Workflow)
	if err != nil {
		return "", &StageError{Stage: StageRecompressed, Err: err}
	}
	return out, nil
}

// MergeGroups appends groups whose title is not yet used in w and returns how
// many were added.
func MergeGroups(w *bridgezip.Workflow, groups []json.RawMessage) int {
	titles := make(map[string]bool, len(w.Groups))
	for _, g := range w.Groups {
		titles[gjson.GetBytes(g, "title").String()] = true
	}
	added := 0
	for _, g := range groups {
		title := gjson.GetBytes(g, "title").String()
		if titles[title] {
			continue
		}
		titles[title] = true
		w.Groups = append(w.Groups, g)
		added++
	}
	return added
}
