package serve

import (
	"github.com/go-json-experiment/json/jsontext"
	"github.com/praetorian-inc/scanrt/pkg/scanner"
)

// Request represents an incoming NDJSON request
type Request struct {
	// "scan" | "scan_batch" | "stream_open" | "stream_write" |
	// "stream_close" | "streams" | "close"
	Type    string         `json:"type"`
	Payload jsontext.Value `json:"payload,omitzero"`
}

// ScanPayload is the payload for "scan" requests. Data, base64 in JSON,
// takes precedence over Content for binary input.
type ScanPayload struct {
	Content    string `json:"content"`
	Data       []byte `json:"data,omitzero"`
	Source     string `json:"source"`
	MaxMatches int    `json:"max_matches,omitempty"`
}

// ScanBatchPayload is the payload for "scan_batch" requests
type ScanBatchPayload struct {
	Items []scanner.ContentItem `json:"items"`
}

// StreamOpenPayload is the payload for "stream_open" requests
type StreamOpenPayload struct {
	Source string `json:"source"`
}

// StreamWritePayload is the payload for "stream_write" requests
type StreamWritePayload struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	Data       []byte `json:"data,omitzero"`
	MaxMatches int    `json:"max_matches,omitempty"`
}

// StreamClosePayload is the payload for "stream_close" requests
type StreamClosePayload struct {
	ID string `json:"id"`
}

// StreamOpened is the data of a "stream_open" response
type StreamOpened struct {
	ID string `json:"id"`
}

// Response represents an outgoing NDJSON response
type Response struct {
	Success bool           `json:"success"`
	Type    string         `json:"type"`
	Data    jsontext.Value `json:"data,omitzero"`
	Error   string         `json:"error,omitempty"`
	Kind    string         `json:"kind,omitempty"` // scan error kind, when known
}

// ReadyData is the data field for "ready" responses
type ReadyData struct {
	Version  string `json:"version"`
	Backend  string `json:"backend"`
	Patterns int    `json:"patterns"`
}

func content(text string, data []byte) []byte {
	if data != nil {
		return data
	}
	return []byte(text)
}
