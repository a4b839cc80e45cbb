package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/unitconsole/pkg/schema"
)

func record() map[string]any {
	return map[string]any{
		"instanceId":      "i-1",
		"status":          "Failed",
		"telemetry":       "pressure drop on line 3",
		"unitId":          "u-7",
		"createdTime":     "2026-03-01T10:00:00Z",
		"lastUpdatedTime": "2026-03-01T10:05:00Z",
		"output":          map[string]any{"SENSING": map[string]any{}},
	}
}

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_Filters(t *testing.T) {
	e := NewExprEngine()

	tests := []struct {
		expression string
		want       any
	}{
		{`status == "Failed"`, true},
		{`telemetry contains "pressure" && unitId == "u-7"`, true},
		{`status in ["Running", "Pending"]`, false},
		{`"SENSING" in output`, true},
		{`createdTime > "2026-02-28"`, true},
		{`name ?? "unnamed"`, "unnamed"},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			out, err := e.Evaluate(context.Background(), tt.expression, record())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestExpr_UndefinedNameIsNil(t *testing.T) {
	e := NewExprEngine()
	out, err := e.Evaluate(context.Background(), "unknownField", record())
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestExpr_Errors(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "", nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.Code(err))

	_, err = e.Evaluate(context.Background(), "status ==", nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.Code(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Evaluate(ctx, "true", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpr_SameProgramAcrossRecords(t *testing.T) {
	e := NewExprEngine()
	for _, status := range []string{"Running", "Completed"} {
		out, err := e.Evaluate(context.Background(), `status == "Completed"`, map[string]any{"status": status})
		require.NoError(t, err)
		assert.Equal(t, status == "Completed", out)
	}
	assert.Equal(t, 1, e.cache.len())
}
