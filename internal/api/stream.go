// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// MaxFrameSize is the maximum allowed size for a single SSE frame (64KB).
const MaxFrameSize = 64 * 1024

// EventCallback is the function type called for each parsed stream event.
type EventCallback func(event StreamEvent)

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReader(r),
	}
}

// ReadData reads the next data payload from the stream. Lines that are not
// data fields (comments, ids, retry hints) are skipped. Returns io.EOF
// when the stream ends.
func (s *SSEReader) ReadData() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// If we have data, return it before EOF
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		if len(line) > MaxFrameSize {
			return nil, fmt.Errorf("frame too large: %d bytes", len(line))
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// Ignore other fields (event:, id:, retry:, comments starting with :)
	}
}

// =============================================================================
// STREAMING QUERY
// =============================================================================

// QueryStream runs a retrieval-augmented query against the streaming
// endpoint. The callback is invoked for each parsed event, in arrival
// order, on the calling goroutine. Malformed frames are logged and
// skipped. The call returns nil after the done event, ctx.Err() when the
// context is cancelled, and an error wrapping ErrStreamFailed when the
// server pushes an error frame.
func (c *Client) QueryStream(ctx context.Context, req QueryRequest, callback EventCallback) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/query/stream", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	// Streaming client has no timeout; lifetime is controlled by ctx.
	resp, err := c.streamer.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return c.handleErrorResponse(resp.StatusCode, body)
	}

	return c.processStream(ctx, resp.Body, callback)
}

// processStream reads and dispatches the SSE stream.
func (c *Client) processStream(ctx context.Context, body io.Reader, callback EventCallback) error {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := reader.ReadData()
		if err != nil {
			if err == io.EOF {
				// The server must terminate with a done frame; a bare EOF
				// means the stream was cut off.
				return fmt.Errorf("%w: stream ended without done frame", ErrStreamFailed)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrStreamFailed, err)
		}

		event, err := decodeFrame(data)
		if err != nil {
			// Tolerate framing noise: drop the frame, keep the stream.
			c.logger.Warn("dropping unparseable stream frame", zap.Error(err))
			continue
		}

		callback(event)

		switch ev := event.(type) {
		case ErrorEvent:
			return fmt.Errorf("%w: %s", ErrStreamFailed, ev.Message)
		case DoneEvent:
			return nil
		}
	}
}
