package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"
	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
)

// loadWorkflow accepts either workflow JSON or a compressed document.
func loadWorkflow(data []byte) (*bridgezip.Workflow, error) {
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		var w bridgezip.Workflow
		if err := json.Unmarshal([]byte(text), &w); err != nil {
			return nil, fmt.Errorf("parse workflow json: %w", err)
		}
		return &w, nil
	}
	return bridgezip.Decompress(text)
}

func lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <workflow.json|doc.bz|->",
		Short: "Check a workflow for dangling links and stale caches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			w, err := loadWorkflow(data)
			if err != nil {
				return err
			}
			if err := bridgezip.LintErr(w); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d nodes, %d links\n", len(w.Nodes), len(w.Links))
			return nil
		},
	}
}

func extractCmd() *cobra.Command {
	var (
		out    string
		groups []string
	)
	cmd := &cobra.Command{
		Use:   "extract <doc.bz|-> [selector]",
		Short: "Print the node lines matching ids, types or groups, plus their links",
		Long: `extract keeps the node lines whose id or type (case-insensitive) appears in
the selector, and the link lines touching a kept node. Selector parts are
separated by commas, plus signs or spaces: "3,KSampler". --group adds every node
positioned inside the named group's box (title is case-insensitive).`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var selector string
			if len(args) == 2 {
				selector = args[1]
			}
			if selector == "" && len(groups) == 0 {
				return fmt.Errorf("give a selector or at least one --group")
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			doc := string(data)

			var text string
			switch {
			case len(groups) == 0:
				text, err = bridgezip.Extract(doc, selector)
			case selector == "":
				text, err = bridgezip.ExtractGroups(doc, groups...)
			default:
				text, err = extractUnion(doc, selector, groups)
			}
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, text)
		},
	}
	cmd.Flags().StringSliceVar(&groups, "group", nil, "group title to extract (repeatable)")
	addOutputFlag(cmd, &out)
	return cmd
}

// extractUnion keeps nodes matched by either the selector or the groups.
func extractUnion(doc, selector string, groups []string) (string, error) {
	if !strings.HasPrefix(doc, "W:") {
		return "", bridgezip.ErrNotCompressed
	}
	w, err := bridgezip.Decompress(doc)
	if err != nil {
		return "", err
	}
	ids, err := bridgezip.GroupMembers(w, groups...)
	if err != nil {
		return "", err
	}
	return bridgezip.Extract(doc, bridgezip.JoinIDs(ids)+" "+selector)
}

func groupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups <workflow.json|doc.bz|->",
		Short: "List groups with the nodes positioned inside each",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			w, err := loadWorkflow(data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, g := range bridgezip.Groups(w) {
				if !g.HasBounds {
					fmt.Fprintf(out, "%s  (id %s)  invalid bounding\n", g.Title, g.ID)
					continue
				}
				fmt.Fprintf(out, "%s  (id %s)  %d nodes: %s\n", g.Title, g.ID, len(g.Nodes), bridgezip.JoinIDs(g.Nodes))
			}
			return nil
		},
	}
}

func graphCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph <workflow.json|doc.bz|->",
		Short: "Print a summary of a workflow's nodes and links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			w, err := loadWorkflow(data)
			if err != nil {
				return err
			}
			switch strings.ToLower(format) {
			case "dot":
				s, err := renderDOT(w)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), s)
			case "text", "":
				fmt.Fprint(cmd.OutOrStdout(), renderText(w))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// renderText lists nodes in document order with their wiring.
func renderText(w *bridgezip.Workflow) string {
	var sb strings.Builder
	id := w.ID
	if id == "" {
		id = "none"
	}
	fmt.Fprintf(&sb, "Workflow: %s  (%d nodes, %d links)\n", id, len(w.Nodes), len(w.Links))

	maxType := 4
	for _, n := range w.Nodes {
		if len(n.Type) > maxType {
			maxType = len(n.Type)
		}
	}

	fmt.Fprintf(&sb, "\nNodes:\n")
	for _, n := range w.Nodes {
		var widgets []string
		for _, v := range n.WidgetsValues {
			widgets = append(widgets, truncate(v.String(), 24))
		}
		fmt.Fprintf(&sb, "  %4d  %-*s  in=%d out=%d  %s\n",
			n.ID, maxType, n.Type, len(n.Inputs), len(n.Outputs), strings.Join(widgets, " "))
	}

	fmt.Fprintf(&sb, "\nLinks:\n")
	for _, l := range w.Links {
		fmt.Fprintf(&sb, "  %4d  %d.%d  →  %d.%d  [%s]\n",
			l.ID, l.SourceNode, l.SourceSlot, l.TargetNode, l.TargetSlot, l.Type)
	}
	return sb.String()
}

// truncate shortens s to maxLen runes, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// renderDOT builds a digraph with one box per node and one edge per link,
// labelled with the link type and annotated with the port names.
func renderDOT(w *bridgezip.Workflow) (string, error) {
	g := gographviz.NewEscape()
	if err := g.SetName("workflow"); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	name := func(id int) string { return "n" + strconv.Itoa(id) }
	for _, n := range w.Nodes {
		attrs := map[string]string{
			"label": fmt.Sprintf("%d: %s", n.ID, n.Type),
			"shape": "box",
		}
		if err := g.AddNode("workflow", name(n.ID), attrs); err != nil {
			return "", fmt.Errorf("dot node %d: %w", n.ID, err)
		}
	}

	for _, l := range w.Links {
		// Dangling links have no endpoint to draw.
		src, dst := w.NodeByID(l.SourceNode), w.NodeByID(l.TargetNode)
		if src == nil || dst == nil {
			continue
		}
		attrs := map[string]string{"label": l.Type}
		if l.SourceSlot >= 0 && l.SourceSlot < len(src.Outputs) {
			attrs["taillabel"] = src.Outputs[l.SourceSlot].Name
		}
		if l.TargetSlot >= 0 && l.TargetSlot < len(dst.Inputs) {
			attrs["headlabel"] = dst.Inputs[l.TargetSlot].Name
		}
		if err := g.AddEdge(name(l.SourceNode), name(l.TargetNode), true, attrs); err != nil {
			return "", fmt.Errorf("dot link %d: %w", l.ID, err)
		}
	}
	return g.String(), nil
}
