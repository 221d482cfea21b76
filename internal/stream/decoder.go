// Package stream transcodes the upstream Vertex SSE stream into the
// widget-facing SSE protocol.
package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/sitechat/relay/internal/logging"
)

// scanBufferSize caps a single SSE line; upstream chunks stay well under it.
const scanBufferSize = 1024 * 1024

// UpstreamEvent is one decoded Vertex stream chunk.
type UpstreamEvent struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
}

// Candidate is one model candidate inside a chunk.
type Candidate struct {
	Content struct {
		Parts []UpstreamPart `json:"parts"`
		Role  string         `json:"role"`
	} `json:"content"`
	FinishReason string `json:"finishReason,omitempty"`
}

// UpstreamPart is a text or function-call fragment.
type UpstreamPart struct {
	Text         string        `json:"text,omitempty"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}

// FunctionCall is a model-requested widget action.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// UsageMetadata carries upstream token accounting.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// Decoder reads data-prefixed SSE lines off the upstream body. Lines that
// are blank, non-data, terminal markers, or malformed JSON are skipped;
// malformed payloads are logged and never abort the stream.
type Decoder struct {
	scanner *bufio.Scanner
	log     *logging.Logger
}

// NewDecoder wraps the upstream body.
func NewDecoder(r io.Reader, log *logging.Logger) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
	return &Decoder{scanner: s, log: log.Sub("decoder")}
}

// Next returns the next decoded event, io.EOF at a clean end of stream, or
// the transport error that interrupted it.
func (d *Decoder) Next() (*UpstreamEvent, error) {
	for d.scanner.Scan() {
		line := d.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" || strings.TrimSpace(payload) == "" {
			continue
		}

		var ev UpstreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			d.log.Warn().Err(err).Msg("skipping malformed upstream chunk")
			continue
		}
		return &ev, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
