package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/unitconsole/pkg/schema"
)

// statusTag returns a short ASCII indicator for a stage status.
func statusTag(status schema.StageStatus) string {
	switch status {
	case schema.StageDone:
		return "[OK]"
	case schema.StageFailed:
		return "[FAIL]"
	case schema.StageRunning:
		return "[RUN]"
	case schema.StagePending:
		return "[PEND]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// It uses a level-based layout with box-drawing characters.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n", model.Title))
	}
	if model.Subtitle != "" {
		b.WriteString(model.Subtitle + "\n")
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := findNode(model.Nodes, nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node. Widths count runes so translated
// labels line up.
func makeBox(node *Node) asciiBox {
	contentLines := []string{node.Label}

	if st := node.Status; st != nil {
		line := statusTag(st.Status)
		if st.Text != "" {
			line += " " + st.Text
		}
		if st.Selected {
			line += " *"
		}
		contentLines = append(contentLines, strings.TrimSpace(line))
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := runeLen(line); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	var lines []string
	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	lines = append(lines, top)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-runeLen(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

func runeLen(s string) int { return len([]rune(s)) }

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
