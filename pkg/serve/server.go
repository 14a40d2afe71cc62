package serve

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/praetorian-inc/scanrt/pkg/scanner"
)

// Version is the server protocol version
const Version = "2.0.0"

// Server answers NDJSON scan requests read from in, one response per
// request, in order.
type Server struct {
	core    *scanner.Core
	logger  *slog.Logger
	info    ReadyData
	encoder *jsontext.Encoder
	decoder *jsontext.Decoder
}

// NewServer creates a new streaming server. It logs to the core's logger.
func NewServer(core *scanner.Core, in io.Reader, out io.Writer) *Server {
	return &Server{
		core:    core,
		logger:  core.Logger(),
		info:    ReadyData{Version: Version, Backend: core.Backend(), Patterns: core.PatternCount()},
		encoder: jsontext.NewEncoder(out),
		decoder: jsontext.NewDecoder(bufio.NewReader(in)),
	}
}

// Run starts the server main loop
func (s *Server) Run(ctx context.Context) error {
	// Send ready signal
	ready, err := s.marshal("ready", s.info)
	if err != nil {
		return err
	}
	s.send(Response{Success: true, Type: "ready", Data: ready})

	// Use buffered channels for incoming requests
	reqChan := make(chan Request, 1)
	errChan := make(chan error, 1)

	go func() {
		for {
			var req Request
			if err := json.UnmarshalDecode(s.decoder, &req); err != nil {
				errChan <- err
				return
			}
			select {
			case reqChan <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Process requests until stdin closes or context cancels
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			// Drain any pending requests before handling EOF
			for {
				select {
				case req := <-reqChan:
					if s.processRequest(req) {
						return nil
					}
				default:
					// No more pending requests
					if errors.Is(err, io.EOF) {
						return nil
					}
					s.sendError("decode", err)
					return nil
				}
			}
		case req := <-reqChan:
			if s.processRequest(req) {
				return nil
			}
		}
	}
}

// processRequest handles a single request and returns true if the server should exit
func (s *Server) processRequest(req Request) bool {
	switch req.Type {
	case "scan":
		var p ScanPayload
		s.handle(req, &p, func() (any, error) {
			return s.core.Scan(content(p.Content, p.Data), p.Source, p.MaxMatches)
		})
	case "scan_batch":
		var p ScanBatchPayload
		s.handle(req, &p, func() (any, error) {
			return s.core.ScanBatch(p.Items)
		})
	case "stream_open":
		var p StreamOpenPayload
		s.handle(req, &p, func() (any, error) {
			id, err := s.core.OpenStream(p.Source)
			return StreamOpened{ID: id}, err
		})
	case "stream_write":
		var p StreamWritePayload
		s.handle(req, &p, func() (any, error) {
			return s.core.WriteStream(p.ID, content(p.Content, p.Data), p.MaxMatches)
		})
	case "stream_close":
		var p StreamClosePayload
		s.handle(req, &p, func() (any, error) {
			return s.core.CloseStream(p.ID)
		})
	case "streams":
		s.handle(req, nil, func() (any, error) {
			return s.core.Streams(), nil
		})
	case "close":
		return true
	default:
		s.sendError("unknown", errors.New("unknown request type: "+req.Type))
	}
	return false
}

// handle decodes the payload into p, when p is not nil, runs fn and sends
// its result or error.
func (s *Server) handle(req Request, p any, fn func() (any, error)) {
	if p != nil {
		payload := req.Payload
		if len(payload) == 0 {
			payload = jsontext.Value("{}")
		}
		if err := json.Unmarshal(payload, p); err != nil {
			s.sendError(req.Type, err)
			return
		}
	}
	result, err := fn()
	if err != nil {
		s.sendError(req.Type, err)
		return
	}
	data, err := s.marshal(req.Type, result)
	if err != nil {
		s.sendError(req.Type, err)
		return
	}
	s.send(Response{Success: true, Type: req.Type, Data: data})
}

func (s *Server) marshal(reqType string, v any) (jsontext.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal response", "type", reqType, "error", err)
		return nil, fmt.Errorf("marshaling %s response: %w", reqType, err)
	}
	return data, nil
}

func (s *Server) send(resp Response) {
	if err := json.MarshalEncode(s.encoder, resp); err != nil {
		s.logger.Error("failed to write response", "type", resp.Type, "error", err)
	}
}

func (s *Server) sendError(reqType string, err error) {
	resp := Response{Success: false, Type: reqType, Error: err.Error()}
	var serr *scan.Error
	if errors.As(err, &serr) {
		resp.Kind = serr.Kind.String()
	}
	s.send(resp)
}
