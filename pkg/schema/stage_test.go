package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStages_Order(t *testing.T) {
	assert.Equal(t, []Stage{
		StageSensing, StageReasoning, StageDeciding, StageActing,
		StageEnablement, StageReporting, StageOptimization,
	}, Stages())
}

func TestStages_ReturnsCopy(t *testing.T) {
	s := Stages()
	s[0] = "MUTATED"
	assert.Equal(t, StageSensing, Stages()[0])
}

func TestStage_TargetPercentMonotonic(t *testing.T) {
	want := []int{14, 28, 42, 57, 71, 85, 100}
	prev := 0
	for i, st := range Stages() {
		assert.Equal(t, want[i], st.TargetPercent(), st)
		assert.Greater(t, st.TargetPercent(), prev)
		assert.Equal(t, i, st.Index())
		prev = st.TargetPercent()
	}
}

func TestStage_Labels(t *testing.T) {
	assert.Equal(t, "01 Sensing", StageSensing.Label())
	assert.Equal(t, "05 Tech enablement", StageEnablement.Label())
	assert.Equal(t, "07 Continuous optimization", StageOptimization.Label())
}

func TestStage_UnknownPanics(t *testing.T) {
	bogus := Stage("DREAMING")
	assert.False(t, bogus.Valid())
	assert.Panics(t, func() { _ = bogus.Label() })
	assert.Panics(t, func() { _ = bogus.TargetPercent() })
	assert.Panics(t, func() { _ = bogus.Index() })
}

func TestParseStage(t *testing.T) {
	st, ok := ParseStage("ACTING")
	require.True(t, ok)
	assert.Equal(t, StageActing, st)

	_, ok = ParseStage("acting")
	assert.False(t, ok, "stage ids are case sensitive")
}

func TestEventState_Terminal(t *testing.T) {
	assert.False(t, EventRunning.Terminal())
	assert.True(t, EventDone.Terminal())
	assert.True(t, EventFailed.Terminal())
}

func TestConsoleError_Format(t *testing.T) {
	err := NewError(ErrCodeCrossInstance, "event belongs to another run").WithInstance("i-1")
	assert.Equal(t, "[CROSS_INSTANCE] instance i-1: event belongs to another run", err.Error())

	plain := NewErrorf(ErrCodeValidation, "bad %s", "input")
	assert.Equal(t, "[VALIDATION_ERROR] bad input", plain.Error())
}

func TestConsoleError_IsAndCode(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewError(ErrCodeTransport, "negotiate failed").WithCause(cause)
	wrapped := fmt.Errorf("open live channel: %w", err)

	assert.True(t, errors.Is(wrapped, &ConsoleError{Code: ErrCodeTransport}))
	assert.False(t, errors.Is(wrapped, &ConsoleError{Code: ErrCodeSnapshot}))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, ErrCodeTransport, Code(wrapped))
	assert.Equal(t, "", Code(cause))
	assert.True(t, err.IsRetryable())
	assert.False(t, NewError(ErrCodeMalformedPayload, "x").IsRetryable())
}

func TestFlowInstance_Times(t *testing.T) {
	f := FlowInstance{CreatedTime: "2025-03-01T10:00:00Z", LastUpdatedTime: "garbage"}
	assert.Equal(t, 2025, f.Created().Year())
	assert.True(t, f.LastUpdated().IsZero())
}
