// Package patch applies change sets to compressed workflow documents.
//
// A patch deletes nodes by id, adds or replaces nodes and links from a
// fragment that may use NODE_<n>/LINK_<n> placeholders, then rebuilds port
// caches and id counters before recompressing.
package patch

import (
	"fmt"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
)

// Stage names one step of a patch.
type Stage string

const (
	StageDecompressed         Stage = "decompress"
	StageDeleted              Stage = "delete"
	StagePlaceholdersResolved Stage = "resolve placeholders"
	StageMerged               Stage = "merge"
	StageRepaired             Stage = "repair"
	StageRecompressed         Stage = "recompress"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageDecompressed,
	StageDeleted,
	StagePlaceholdersResolved,
	StageMerged,
	StageRepaired,
	StageRecompressed,
}

// StageError reports the stage a patch failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Request is one change set.
type Request struct {
	// Fragment holds node and link lines to add or replace. Empty means no
	// additions.
	Fragment string
	// DeleteIDs are node ids to remove together with every link touching them.
	DeleteIDs []int
}

// Result carries the patched document and how placeholders were resolved.
type Result struct {
	Document     string
	Workflow     *bridgezip.Workflow
	Placeholders map[string]int
	// Order lists the keys of Placeholders in the order they first appear
	// in the fragment.
	Order []string
}

// Apply patches a compressed document and returns the recompressed result.
func Apply(doc, fragment string, deleteIDs []int) (string, error) {
	res, err := Run(doc, Request{Fragment: fragment, DeleteIDs: deleteIDs})
	if err != nil {
		return "", err
	}
	return res.Document, nil
}

// ApplyText is Apply flattened to a single string: the document, or
// "Error: ..." on failure.
func ApplyText(doc, fragment string, deleteIDs []int) string {
	return bridgezip.Text(Apply(doc, fragment, deleteIDs))
}

// Run executes every stage of a patch. A failing or panicking stage stops the
// run with a *StageError naming it.
func Run(doc string, req Request) (*Result, error) {
	p := &patcher{doc: doc, req: req}
	steps := []struct {
		stage Stage
		fn    func() error
	}{
		{StageDecompressed, p.decompress},
		{StageDeleted, p.delete},
		{StagePlaceholdersResolved, p.resolve},
		{StageMerged, p.merge},
		{StageRepaired, p.repair},
		{StageRecompressed, p.recompress},
	}
	for _, s := range steps {
		if err := runStage(s.stage, s.fn); err != nil {
			return nil, err
		}
	}
	return &Result{Document: p.out, Workflow: p.wf, Placeholders: p.ids, Order: p.order}, nil
}

func runStage(stage Stage, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// patcher holds the working state of one Run.
type patcher struct {
	doc string
	req Request

	wf       *bridgezip.Workflow
	fragment string
	ids      map[string]int
	order    []string
	out      string
}

func (p *patcher) decompress() error {
	wf, err := bridgezip.Decompress(p.doc)
	if err != nil {
		return err
	}
	p.wf = wf
	return nil
}

func (p *patcher) delete() error {
	DeleteNodes(p.wf, p.req.DeleteIDs)
	return nil
}

func (p *patcher) resolve() error {
	if p.req.Fragment == "" {
		return nil
	}
	r := NewResolver(p.wf)
	p.fragment = NormalizeLinkPrefixes(r.Resolve(p.req.Fragment))
	p.ids = r.Assigned()
	p.order = r.Tokens()
	return nil
}

func (p *patcher) merge() error {
	if p.fragment == "" {
		return nil
	}
	Merge(p.wf, bridgezip.ParseFragment(p.fragment))
	return nil
}

func (p *patcher) repair() error {
	bridgezip.Repair(p.wf)
	p.wf.LastNodeID = p.wf.MaxNodeID()
	p.wf.LastLinkID = p.wf.MaxLinkID()
	return nil
}

func (p *patcher) recompress() error {
	out, err := bridgezip.Compress(p.wf)
	if err != nil {
		return err
	}
	p.out = out
	return nil
}

// DeleteNodes removes the given nodes and every link whose source or target
// is one of them.
func DeleteNodes(w *bridgezip.Workflow, ids []int) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	nodes := w.Nodes[:0]
	for _, n := range w.Nodes {
		if !drop[n.ID] {
			nodes = append(nodes, n)
		}
	}
	w.Nodes = nodes
	links := w.Links[:0]
	for _, l := range w.Links {
		if !drop[l.SourceNode] && !drop[l.TargetNode] {
			links = append(links, l)
		}
	}
	w.Links = links
}

// Merge adds the fragment's records to w. A record whose id is already
// present replaces it: the old one is removed and the new one appended.
func Merge(w *bridgezip.Workflow, f bridgezip.Fragment) {
	for _, n := range f.Nodes {
		kept := w.Nodes[:0]
		for _, existing := range w.Nodes {
			if existing.ID != n.ID {
				kept = append(kept, existing)
			}
		}
		w.Nodes = append(kept, n)
	}
	for _, l := range f.Links {
		kept := w.Links[:0]
		for _, existing := range w.Links {
			if existing.ID != l.ID {
				kept = append(kept, existing)
			}
		}
		w.Links = append(kept, l)
	}
}
