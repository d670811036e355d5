package bridgezip

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Compress renders w in the compressed line form. Nodes and links are written
// in document order, one line each.
func Compress(w *Workflow) (string, error) {
	if w == nil {
		return "", ErrNilWorkflow
	}
	lines := make([]string, 0, len(w.Nodes)+len(w.Links)+4)
	lines = append(lines, formatHeader(w), nodesMarker)
	for i, n := range w.Nodes {
		if n == nil {
			return "", fmt.Errorf("nodes[%d] is null", i)
		}
		if err := checkPorts(n); err != nil {
			return "", err
		}
		if err := checkWidgets(n); err != nil {
			return "", err
		}
		lines = append(lines, FormatNodeLine(n))
	}
	lines = append(lines, linksMarker)
	for _, l := range w.Links {
		lines = append(lines, FormatLinkLine(l))
	}
	meta, err := formatMeta(w)
	if err != nil {
		return "", fmt.Errorf("metadata: %w", err)
	}
	lines = append(lines, meta)
	return strings.Join(lines, "\n"), nil
}

// CompressJSON parses a workflow document and compresses it.
func CompressJSON(data []byte) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", ErrEmptyData
	}
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return "", fmt.Errorf("invalid workflow json: %w", err)
	}
	return Compress(&w)
}

// checkPorts rejects nil port entries, which JSON decoding never produces but
// a workflow built in code can.
func checkPorts(n *Node) error {
	for i, in := range n.Inputs {
		if in == nil {
			return fmt.Errorf("node %d: inputs[%d] is nil", n.ID, i)
		}
	}
	for i, out := range n.Outputs {
		if out == nil {
			return fmt.Errorf("node %d: outputs[%d] is nil", n.ID, i)
		}
	}
	return nil
}

// checkWidgets rejects widget values the line form cannot carry. Object
// values would be flattened into text that never parses back.
func checkWidgets(n *Node) error {
	for i, v := range n.WidgetsValues {
		if v.Kind() != KindRaw {
			continue
		}
		if raw := bytes.TrimSpace(v.raw); len(raw) > 0 && raw[0] == '{' {
			return fmt.Errorf("node %d: widget %d: object values cannot be compressed", n.ID, i)
		}
	}
	return nil
}
