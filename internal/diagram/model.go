// Package diagram draws the stage pipeline of a journey view as ASCII, Mermaid
// or PNG, colored by stage status.
package diagram

import "github.com/rendis/unitconsole/pkg/schema"

// NodeKind classifies a diagram node.
type NodeKind string

const (
	NodeKindStage NodeKind = "stage"
	NodeKindStart NodeKind = "start"
	NodeKindEnd   NodeKind = "end"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title    string
	Subtitle string
	Nodes    []*Node
	Edges    []Edge
	Levels   [][]string
}

// Node is one box of the pipeline.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries the derived state of a stage.
type StatusOverlay struct {
	Status schema.StageStatus
	// Text is the translated status name.
	Text          string
	TargetPercent int
	Selected      bool
}

// Edge connects two consecutive nodes.
type Edge struct {
	From  string
	To    string
	Label string
}
