package planner

import "strings"

const grammarPrompt = `You edit node-graph workflows stored in a compressed line format.

Format:
  W:<id|none>|r:<revision>|ln:<last node id>|ll:<last link id>|v:1.0.0
  N<id>:<type>|x,y,w,h|I:name:TYPE:link|None,...|O:name:TYPE:l1,l2;...|W:v1;v2|C:color,bg|P:props
  L<id>:<src>.<slot>-><dst>.<slot>:TYPE
  M:<json metadata>
Lines starting NODES: or LINKS: are section markers.
Widget values: "None", "True", "False", numbers, otherwise text with '%' as %25, ';' as %3B,
'|' as %7C and newlines as %0A.

Answer with exactly one JSON object and nothing else:
  {"plan_summary": "...", "delete_node_ids": [ids], "add_nodes_str": "<node and link lines>", "add_groups": [{"title": "...", "bounding": [x,y,w,h], "color": "#rrggbb"}]}
In add_nodes_str, give new nodes ids NODE_1, NODE_2, ... and new links LINK_1, LINK_2, ...
(so a node line starts NNODE_1: and a link line starts LLINK_1:). Existing ids may be
referenced directly. A node line with an existing id replaces that node.`

const briefPrompt = `

Alternatively answer with a brief, and port layouts will be filled in for you:
  {"plan_summary": "...", "nodes_to_delete": [ids], "groups_to_add": [{"title": "...", "bounding": [x,y,w,h]}],
   "nodes_to_add": [{"placeholder_id": "NODE_1", "type": "<node type>", "position": [x,y], "widgets": [...],
     "inputs": [{"input_name": "...", "from": {"node": "EXISTING_4", "slot": 0}}],
     "outputs": [{"output_name": "...", "to": [{"node": "NODE_2", "slot": 1}]}]}],
   "nodes_to_update": [{"target": "EXISTING_6", "widgets": [...]}]}`

func (p *LLMPlanner) systemPrompt() string {
	if p.catalog != nil {
		return grammarPrompt + briefPrompt
	}
	return grammarPrompt
}

func userPrompt(doc, request string) string {
	var sb strings.Builder
	sb.WriteString("CURRENT WORKFLOW:\n")
	sb.WriteString(strings.TrimSpace(doc))
	sb.WriteString("\n\nREQUEST:\n")
	sb.WriteString(strings.TrimSpace(request))
	return sb.String()
}
