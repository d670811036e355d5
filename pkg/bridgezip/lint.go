package bridgezip

import (
	"fmt"
	"strings"
)

// LintError describes a structural problem in a workflow. NodeID or LinkID is
// zero when the problem is not tied to one record.
type LintError struct {
	NodeID  int
	LinkID  int
	Message string
}

func (e LintError) Error() string {
	switch {
	case e.LinkID != 0:
		return fmt.Sprintf("link %d: %s", e.LinkID, e.Message)
	case e.NodeID != 0:
		return fmt.Sprintf("node %d: %s", e.NodeID, e.Message)
	}
	return e.Message
}

// Lint checks w for problems that Repair tolerates but that leave the graph
// inconsistent. It returns every problem found, in document order.
func Lint(w *Workflow) []LintError {
	if w == nil {
		return []LintError{{Message: "workflow is nil"}}
	}
	var errs []LintError

	nodes := make(map[int]*Node, len(w.Nodes))
	for i, n := range w.Nodes {
		if n == nil {
			errs = append(errs, LintError{Message: fmt.Sprintf("nodes[%d] is nil", i)})
			continue
		}
		if _, dup := nodes[n.ID]; dup {
			errs = append(errs, LintError{NodeID: n.ID, Message: "duplicate node id"})
			continue
		}
		nodes[n.ID] = n
	}

	seen := make(map[int]bool, len(w.Links))
	targets := make(map[slot]int, len(w.Links))
	for _, l := range w.Links {
		if seen[l.ID] {
			errs = append(errs, LintError{LinkID: l.ID, Message: "duplicate link id"})
			continue
		}
		seen[l.ID] = true

		src, dst := nodes[l.SourceNode], nodes[l.TargetNode]
		switch {
		case src == nil:
			errs = append(errs, LintError{LinkID: l.ID, Message: fmt.Sprintf("references unknown source node %d", l.SourceNode)})
		case l.SourceSlot < 0 || l.SourceSlot >= len(src.Outputs):
			errs = append(errs, LintError{LinkID: l.ID, Message: fmt.Sprintf("source slot %d out of range (node %d has %d outputs)", l.SourceSlot, l.SourceNode, len(src.Outputs))})
		}
		switch {
		case dst == nil:
			errs = append(errs, LintError{LinkID: l.ID, Message: fmt.Sprintf("references unknown target node %d", l.TargetNode)})
		case l.TargetSlot < 0 || l.TargetSlot >= len(dst.Inputs):
			errs = append(errs, LintError{LinkID: l.ID, Message: fmt.Sprintf("target slot %d out of range (node %d has %d inputs)", l.TargetSlot, l.TargetNode, len(dst.Inputs))})
		}

		t := slot{l.TargetNode, l.TargetSlot}
		if prev, taken := targets[t]; taken {
			errs = append(errs, LintError{LinkID: l.ID, Message: fmt.Sprintf("input %d.%d already fed by link %d", t.node, t.index, prev)})
		}
		targets[t] = l.ID
	}

	// Input caches must agree with the link list.
	for _, n := range w.Nodes {
		if n == nil {
			continue
		}
		for i, in := range n.Inputs {
			if in == nil {
				errs = append(errs, LintError{NodeID: n.ID, Message: fmt.Sprintf("inputs[%d] is nil", i)})
				continue
			}
			want, linked := targets[slot{n.ID, i}]
			switch {
			case linked && (in.Link == nil || *in.Link != want):
				errs = append(errs, LintError{NodeID: n.ID, Message: fmt.Sprintf("input %q does not reference link %d", in.Name, want)})
			case !linked && in.Link != nil:
				errs = append(errs, LintError{NodeID: n.ID, Message: fmt.Sprintf("input %q references link %d, which does not target it", in.Name, *in.Link)})
			}
		}
	}

	if maxID := w.MaxNodeID(); w.LastNodeID < maxID {
		errs = append(errs, LintError{Message: fmt.Sprintf("last_node_id %d is below highest node id %d", w.LastNodeID, maxID)})
	}
	if maxID := w.MaxLinkID(); w.LastLinkID < maxID {
		errs = append(errs, LintError{Message: fmt.Sprintf("last_link_id %d is below highest link id %d", w.LastLinkID, maxID)})
	}
	return errs
}

// LintErr calls Lint and returns nil if there are no problems, or a combined
// error listing all of them.
func LintErr(w *Workflow) error {
	errs := Lint(w)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("workflow lint failed:\n  %s", strings.Join(msgs, "\n  "))
}
