package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/unitconsole/internal/streaming"
)

// ClientNotifier pushes notifications to connected MCP clients.
type ClientNotifier interface {
	Notify(ctx context.Context, clientID string, payload map[string]any) error
}

// MCPNotifier implements ClientNotifier using MCP server push.
type MCPNotifier struct {
	mcpServer *server.MCPServer
}

// NewMCPNotifier creates a notifier that pushes through mcpServer.
func NewMCPNotifier(mcpServer *server.MCPServer) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer}
}

// Notify sends a notification to the client's session.
// Best-effort: returns nil if the client is gone or not yet initialized.
func (n *MCPNotifier) Notify(_ context.Context, clientID string, payload map[string]any) error {
	err := n.mcpServer.SendNotificationToSpecificClient(clientID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) || errors.Is(err, server.ErrSessionNotInitialized) {
		return nil
	}
	return err
}

// forwardViews relays view updates of journeyID to its owning client until the
// session closes or ctx ends.
func forwardViews(ctx context.Context, hub streaming.EventHub, n ClientNotifier, sessions *SessionRegistry,
	journeyID string, logger *slog.Logger) {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{SessionID: journeyID})
	if err != nil {
		logger.Warn("view forwarding unavailable", slog.String("session_id", journeyID), slog.String("error", err.Error()))
		return
	}
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				clientID, owned := sessions.OwnerOf(journeyID)
				if !owned {
					return
				}
				payload := map[string]any{
					"level":  "info",
					"logger": "unitconsole",
					"data": map[string]any{
						"event":       ev.EventType,
						"session_id":  ev.SessionID,
						"instance_id": ev.InstanceID,
						"view":        ev.Payload,
					},
				}
				if err := n.Notify(ctx, clientID, payload); err != nil {
					logger.Debug("view notification failed", slog.String("session_id", journeyID), slog.String("error", err.Error()))
				}
				if ev.EventType == streaming.EventSessionClosed {
					return
				}
			}
		}
	}()
}
