package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// StdioServer drives the Router over newline-delimited JSON-RPC messages on
// stdin/stdout, matching how a CLI-invoked editor process is expected to be
// driven by its parent.
type StdioServer struct {
	router *Router

	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex

	debugLog func(format string, args ...any)
}

// NewStdioServer builds a StdioServer bound to router. When debug is true,
// every inbound/outbound message is logged to stderr.
func NewStdioServer(router *Router, debug bool) *StdioServer {
	s := &StdioServer{
		router: router,
		reader: bufio.NewReader(os.Stdin),
		writer: bufio.NewWriter(os.Stdout),
	}
	if debug {
		s.debugLog = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "[stdio] "+format+"\n", args...)
		}
	} else {
		s.debugLog = func(format string, args ...any) {}
	}
	return s
}

// Serve decodes one JSON value per line from stdin, dispatches requests and
// notifications through the router, and writes request responses back to
// stdout. It returns nil on a clean EOF.
func (s *StdioServer) Serve(ctx context.Context) error {
	decoder := json.NewDecoder(s.reader)

	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				s.debugLog("EOF received, shutting down")
				return nil
			}
			s.debugLog("decode error: %v", err)
			s.send(ErrorResponse(nil, ParseError, err.Error()))
			decoder = json.NewDecoder(s.reader)
			continue
		}

		var envelope struct {
			ID     *json.RawMessage `json:"id"`
			Method string           `json:"method"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			s.debugLog("envelope parse error: %v", err)
			s.send(ErrorResponse(nil, ParseError, "invalid JSON-RPC message"))
			continue
		}

		if envelope.ID == nil {
			var note Notification
			if err := json.Unmarshal(raw, &note); err != nil {
				s.debugLog("notification parse error: %v", err)
				continue
			}
			if err := s.router.DispatchNotification(ctx, note); err != nil {
				s.debugLog("notification dispatch error: %v", err)
			}
			continue
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			s.debugLog("request parse error: %v", err)
			s.send(ErrorResponse(nil, ParseError, "invalid JSON-RPC request"))
			continue
		}
		resp := s.router.DispatchRequest(ctx, req)
		s.send(resp)
	}
}

func (s *StdioServer) send(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.debugLog("marshal error: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Write(data)
	s.writer.WriteByte('\n')
	s.writer.Flush()
}
