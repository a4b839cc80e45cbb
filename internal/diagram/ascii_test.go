package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/unitconsole/internal/i18n"
	"github.com/rendis/unitconsole/pkg/schema"
)

func TestRenderASCII(t *testing.T) {
	output := RenderASCII(Build(sampleView(t), i18n.New("en")))

	assert.Contains(t, output, "=== Instance inst-1 ===")
	assert.Contains(t, output, "Progress: 40%")

	for _, ch := range []string{"┌", "┐", "└", "┘", "│", "─", "▼"} {
		assert.Contains(t, output, ch)
	}

	assert.Contains(t, output, "01 Sensing")
	assert.Contains(t, output, "07 Continuous optimization")
	assert.Contains(t, output, "[OK] Done")
	assert.Contains(t, output, "[RUN] Running")
	assert.Contains(t, output, "[FAIL] Failed *")
	assert.Contains(t, output, "[PEND] Pending")
}

func TestRenderASCII_BoxesAlignWithTranslations(t *testing.T) {
	output := RenderASCII(Build(sampleView(t), i18n.New("hr")))
	assert.Contains(t, output, "Završeno")

	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "│") {
			continue
		}
		assert.True(t, strings.HasSuffix(line, "│"), "box line %q is not closed", line)
	}
}

func TestRenderASCII_Minimal(t *testing.T) {
	model := &DiagramModel{
		Nodes: []*Node{
			{ID: "a", Label: "A", Kind: NodeKindStage, Status: &StatusOverlay{Status: schema.StageRunning}},
		},
		Levels: [][]string{{"a"}, {"missing"}},
	}
	output := RenderASCII(model)
	assert.Contains(t, output, "[RUN]")
	assert.NotContains(t, output, "===")
}

func TestStatusTag(t *testing.T) {
	assert.Equal(t, "[OK]", statusTag(schema.StageDone))
	assert.Equal(t, "[FAIL]", statusTag(schema.StageFailed))
	assert.Equal(t, "[RUN]", statusTag(schema.StageRunning))
	assert.Equal(t, "[PEND]", statusTag(schema.StagePending))
	assert.Equal(t, "", statusTag("OTHER"))
}
