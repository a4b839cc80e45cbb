// Package signalr is a receive-only client for the SignalR JSON hub protocol over
// WebSocket. It implements live.Dialer for journey and unit channels.
package signalr

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// recordSeparator terminates every JSON hub protocol record.
const recordSeparator = 0x1e

// Hub message types used by the console.
const (
	typeInvocation       = 1
	typeStreamItem       = 2
	typeCompletion       = 3
	typeStreamInvocation = 4
	typeCancelInvocation = 5
	typePing             = 6
	typeClose            = 7
)

type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// hubMessage covers the fields of every message type the client reads.
type hubMessage struct {
	Type           int               `json:"type"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

var (
	handshakeFrame = encodeRecord(handshakeRequest{Protocol: "json", Version: 1})
	pingFrame      = encodeRecord(map[string]int{"type": typePing})
)

func encodeRecord(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("signalr: encode record: %v", err))
	}
	return append(b, recordSeparator)
}

// splitRecords returns the records in a frame, dropping the separators.
// A frame may carry several records; a trailing partial record is an error.
func splitRecords(frame []byte) ([][]byte, error) {
	if len(frame) == 0 {
		return nil, nil
	}
	if frame[len(frame)-1] != recordSeparator {
		return nil, fmt.Errorf("incomplete record in frame of %d bytes", len(frame))
	}
	parts := bytes.Split(frame[:len(frame)-1], []byte{recordSeparator})
	out := parts[:0]
	for _, p := range parts {
		if len(bytes.TrimSpace(p)) > 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// parseHandshake reads the server's handshake reply. Messages that arrived in the
// same frame are returned for normal processing.
func parseHandshake(frame []byte) ([][]byte, error) {
	records, err := splitRecords(frame)
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("handshake: empty response")
	}
	var resp handshakeResponse
	if err := json.Unmarshal(records[0], &resp); err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("handshake rejected: %s", resp.Error)
	}
	return records[1:], nil
}
