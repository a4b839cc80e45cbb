package schema

import "fmt"

// Stage identifies one step of the fixed orchestration pipeline.
type Stage string

const (
	StageSensing      Stage = "SENSING"
	StageReasoning    Stage = "REASONING"
	StageDeciding     Stage = "DECIDING"
	StageActing       Stage = "ACTING"
	StageEnablement   Stage = "ENABLEMENT"
	StageReporting    Stage = "REPORTING"
	StageOptimization Stage = "OPTIMIZATION"
)

type stageInfo struct {
	label   string
	percent int
}

// pipeline is the canonical stage order. Target percents increase monotonically.
var pipeline = []Stage{
	StageSensing,
	StageReasoning,
	StageDeciding,
	StageActing,
	StageEnablement,
	StageReporting,
	StageOptimization,
}

var stageTable = map[Stage]stageInfo{
	StageSensing:      {label: "01 Sensing", percent: 14},
	StageReasoning:    {label: "02 Reasoning", percent: 28},
	StageDeciding:     {label: "03 Deciding", percent: 42},
	StageActing:       {label: "04 Acting", percent: 57},
	StageEnablement:   {label: "05 Tech enablement", percent: 71},
	StageReporting:    {label: "06 Reporting", percent: 85},
	StageOptimization: {label: "07 Continuous optimization", percent: 100},
}

// Stages returns the pipeline stages in order. The returned slice is a copy.
func Stages() []Stage {
	out := make([]Stage, len(pipeline))
	copy(out, pipeline)
	return out
}

// ParseStage reports whether s names a pipeline stage.
func ParseStage(s string) (Stage, bool) {
	st := Stage(s)
	_, ok := stageTable[st]
	return st, ok
}

// Valid reports whether the stage belongs to the pipeline.
func (s Stage) Valid() bool {
	_, ok := stageTable[s]
	return ok
}

// Label returns the display label for the stage.
// Panics on a stage outside the pipeline.
func (s Stage) Label() string {
	return s.mustInfo().label
}

// TargetPercent is the overall progress reached when s is the latest completed stage.
// Panics on a stage outside the pipeline.
func (s Stage) TargetPercent() int {
	return s.mustInfo().percent
}

// Index returns the zero-based pipeline position of the stage.
// Panics on a stage outside the pipeline.
func (s Stage) Index() int {
	for i, st := range pipeline {
		if st == s {
			return i
		}
	}
	panic(fmt.Sprintf("schema: unknown stage %q", string(s)))
}

func (s Stage) mustInfo() stageInfo {
	info, ok := stageTable[s]
	if !ok {
		panic(fmt.Sprintf("schema: unknown stage %q", string(s)))
	}
	return info
}
