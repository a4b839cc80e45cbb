package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/unitconsole/pkg/schema"
)

func TestRegistry_Resolve(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	tests := []struct {
		expression string
		engine     string
		body       string
	}{
		{`status == "Failed"`, "expr", `status == "Failed"`},
		{`expr: status == "Failed"`, "expr", `status == "Failed"`},
		{`jq:.status == "Failed"`, "jq", `.status == "Failed"`},
		{` cel: status == "Failed"`, "cel", `status == "Failed"`},
		{`telemetry contains "a:b"`, "expr", `telemetry contains "a:b"`},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			e, body, err := r.Resolve(tt.expression)
			require.NoError(t, err)
			assert.Equal(t, tt.engine, e.Name())
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestRegistry_Match(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		expression string
		want       bool
	}{
		{`status == "Failed"`, true},
		{`cel: status == "Running"`, false},
		{`jq: .status == "Failed"`, true},
		{`jq: .name`, false},
		{`jq: .telemetry`, true},
		{`jq: .output | keys[] | . == "SENSING"`, true},
		{`jq: empty`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got, err := r.Match(ctx, tt.expression, record())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_MatchError(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	_, err = r.Match(context.Background(), "jq: .[", record())
	assert.Equal(t, schema.ErrCodeValidation, schema.Code(err))
}

func TestRegistry_NoFallback(t *testing.T) {
	r := NewRegistryWith(nil, NewGoJQEngine())

	_, _, err := r.Resolve("status == 1")
	assert.Equal(t, schema.ErrCodeValidation, schema.Code(err))
	assert.Equal(t, "engines=jq default=", r.String())
}
