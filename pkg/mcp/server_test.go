package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConsoleServer(t *testing.T) {
	s, _, _ := newTestServer(t)
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.notifier)
}

func TestToolRegistration(t *testing.T) {
	s, _, _ := newTestServer(t)

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 7)

	expectedTools := []string{
		"journey.start",
		"journey.open",
		"journey.status",
		"journey.select",
		"journey.close",
		"journey.diagram",
		"unit.flows",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"start", "journey.start", "Start an AI journey for unit telemetry and follow it live"},
		{"open", "journey.open", "Open an existing journey instance from its status snapshot and live updates"},
		{"status", "journey.status", "Get the reconciled stage view of a journey session"},
		{"select", "journey.select", "Pin the selected event to a stage, or clear the selection"},
		{"close", "journey.close", "Close a journey session and its live channel"},
		{"flows", "unit.flows", "List the journey history of a unit, newest first"},
	}

	s, _, _ := newTestServer(t)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
