package diagram

import (
	"fmt"

	"github.com/rendis/unitconsole/internal/i18n"
	"github.com/rendis/unitconsole/internal/journey"
)

const (
	startID = "__start__"
	endID   = "__end__"
)

// Build constructs a DiagramModel from a journey view. Stages appear in pipeline
// order between virtual start and end nodes; the stage of the selected event is
// marked.
func Build(view journey.ViewState, cat i18n.Catalog) *DiagramModel {
	nodes := make([]*Node, 0, len(view.Stages)+2)
	nodes = append(nodes, &Node{ID: startID, Label: "Start", Kind: NodeKindStart})

	for _, sv := range view.Stages {
		nodes = append(nodes, &Node{
			ID:    string(sv.Stage),
			Label: sv.Label,
			Kind:  NodeKindStage,
			Status: &StatusOverlay{
				Status:        sv.Status,
				Text:          cat.T("status." + string(sv.Status)),
				TargetPercent: sv.TargetPercent,
				Selected:      view.SelectedEvent != nil && view.SelectedEvent.Stage == sv.Stage,
			},
		})
	}
	nodes = append(nodes, &Node{ID: endID, Label: "End", Kind: NodeKindEnd})

	edges := make([]Edge, 0, len(nodes)-1)
	levels := make([][]string, 0, len(nodes))
	for i, n := range nodes {
		levels = append(levels, []string{n.ID})
		if i > 0 {
			edges = append(edges, Edge{From: nodes[i-1].ID, To: n.ID})
		}
	}

	return &DiagramModel{
		Title:    titleFromView(view, cat),
		Subtitle: fmt.Sprintf("%s: %d%%", cat.T("communication.progress"), view.ProgressPercent),
		Nodes:    nodes,
		Edges:    edges,
		Levels:   levels,
	}
}

func titleFromView(view journey.ViewState, cat i18n.Catalog) string {
	if view.InstanceID == "" {
		return cat.T("communication.title")
	}
	return fmt.Sprintf("%s %s", cat.T("communication.instance"), view.InstanceID)
}
