package journey

import (
	"github.com/rendis/unitconsole/pkg/schema"
)

// StageView is the derived state of one pipeline stage.
type StageView struct {
	Stage         schema.Stage       `json:"stage"`
	Label         string             `json:"label"`
	TargetPercent int                `json:"target_percent"`
	Status        schema.StageStatus `json:"status"`
}

// ViewState is the derived, immutable picture of one journey instance.
// Callers get a fresh value after every change and must not mutate its slices.
type ViewState struct {
	InstanceID      string                 `json:"instance_id"`
	UnitID          string                 `json:"unit_id,omitempty"`
	Events          []schema.JourneyEvent  `json:"events"`
	SelectedEvent   *schema.JourneyEvent   `json:"selected_event"`
	UserSelected    bool                   `json:"user_selected"`
	ProgressPercent int                    `json:"progress_percent"`
	Stages          []StageView            `json:"stages"`
	Connection      schema.ConnectionState `json:"connection"`
	Warning         string                 `json:"warning,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

// StatusOf returns the derived status of stage. Panics on a stage outside the pipeline.
func (v ViewState) StatusOf(stage schema.Stage) schema.StageStatus {
	idx := stage.Index()
	if idx < len(v.Stages) {
		return v.Stages[idx].Status
	}
	return schema.StagePending
}

// PerStageStatus returns the stage status mapping.
func (v ViewState) PerStageStatus() map[schema.Stage]schema.StageStatus {
	out := make(map[schema.Stage]schema.StageStatus, len(v.Stages))
	for _, sv := range v.Stages {
		out[sv.Stage] = sv.Status
	}
	return out
}

// Complete reports whether every stage has reached a terminal status or any stage failed.
func (v ViewState) Complete() bool {
	if len(v.Stages) == 0 {
		return false
	}
	for _, sv := range v.Stages {
		if sv.Status == schema.StageFailed {
			return true
		}
		if sv.Status != schema.StageDone {
			return false
		}
	}
	return true
}

// WithSelection returns a copy of v whose selected event is ev. A nil ev restores
// the default selection (the last ingested event).
func (v ViewState) WithSelection(ev *schema.JourneyEvent) ViewState {
	if ev == nil {
		v.UserSelected = false
		v.SelectedEvent = nil
		if n := len(v.Events); n > 0 {
			last := v.Events[n-1]
			v.SelectedEvent = &last
		}
		return v
	}
	sel := *ev
	v.SelectedEvent = &sel
	v.UserSelected = true
	return v
}

// Derive computes the view of a log.
//
// For each stage the latest terminal event wins; without one, any RUNNING event
// marks the stage RUNNING; otherwise it is PENDING. Progress and the default
// selection follow the last event by position, not the furthest stage.
func Derive(log Log) ViewState {
	view := ViewState{
		InstanceID: log.instanceID,
		Events:     log.Events(),
		Connection: schema.ConnectionDisconnected,
	}

	stages := schema.Stages()
	view.Stages = make([]StageView, 0, len(stages))
	for _, st := range stages {
		view.Stages = append(view.Stages, StageView{
			Stage:         st,
			Label:         st.Label(),
			TargetPercent: st.TargetPercent(),
			Status:        stageStatus(log.events, st),
		})
	}

	if last, ok := log.Last(); ok {
		view.ProgressPercent = last.Percent
		view.SelectedEvent = &last
	}
	return view
}

func stageStatus(events []schema.JourneyEvent, stage schema.Stage) schema.StageStatus {
	running := false
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Stage != stage {
			continue
		}
		switch e.State {
		case schema.EventDone:
			return schema.StageDone
		case schema.EventFailed:
			return schema.StageFailed
		case schema.EventRunning:
			running = true
		}
	}
	if running {
		return schema.StageRunning
	}
	return schema.StagePending
}
