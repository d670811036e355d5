package bridgezip

// Repair rebuilds every port link cache in w from w.Links.
//
// Inputs take the id of the link targeting their slot; an input that points
// at a link id no longer present is cleared. Output link lists are rebuilt in
// link order. Links whose source node is missing or whose source slot is out
// of range are left in w.Links but feed no port. Repair is idempotent.
func Repair(w *Workflow) {
	if w == nil {
		return
	}
	targets := make(map[slot]int, len(w.Links))
	exists := make(map[int]bool, len(w.Links))
	for _, l := range w.Links {
		targets[slot{l.TargetNode, l.TargetSlot}] = l.ID
		exists[l.ID] = true
	}

	byID := make(map[int]*Node, len(w.Nodes))
	for _, n := range w.Nodes {
		if n == nil {
			continue
		}
		byID[n.ID] = n
		for i, in := range n.Inputs {
			if in == nil {
				continue
			}
			if id, ok := targets[slot{n.ID, i}]; ok {
				in.Link = linkRef(id)
			} else if in.Link != nil && !exists[*in.Link] {
				in.Link = nil
			}
		}
		for _, out := range n.Outputs {
			if out != nil {
				out.Links = []int{}
			}
		}
	}

	for _, l := range w.Links {
		src := byID[l.SourceNode]
		if src == nil || l.SourceSlot < 0 || l.SourceSlot >= len(src.Outputs) {
			continue
		}
		if out := src.Outputs[l.SourceSlot]; out != nil {
			out.Links = append(out.Links, l.ID)
		}
	}
}
