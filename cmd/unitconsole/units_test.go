package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/unitconsole/internal/i18n"
	"github.com/rendis/unitconsole/pkg/schema"
)

func TestPrintUnits_Table(t *testing.T) {
	var buf bytes.Buffer
	units := []schema.Unit{
		{ID: 1, Name: "Pump A", Status: schema.UnitOnline},
		{ID: 12, Name: "Pump B", Status: schema.UnitOffline},
	}
	require.NoError(t, printUnits(&buf, units, false, i18n.New("en")))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ID", "Unit", "Status"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "Pump", "A", "Online"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"12", "Pump", "B", "Offline"}, strings.Fields(lines[2]))
}

func TestPrintUnits_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUnits(&buf, []schema.Unit{{ID: 3, Status: schema.UnitOnline}}, true, i18n.Catalog{}))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 3.0, got[0]["id"])
}

func TestUnitsCmd_RejectsBadInput(t *testing.T) {
	gf := &globalFlags{}
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"bad id", []string{"get", "zero"}, "unit id"},
		{"set without changes", []string{"set", "4"}, "nothing to update"},
		{"delete without confirm", []string{"delete", "4"}, "--yes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := unitsCmd(gf)
			cmd.SetArgs(tc.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
