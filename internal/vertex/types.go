// Package vertex talks to the Vertex AI streaming endpoint: request
// construction, service-account token exchange, and the bounded retry loop
// around the SSE stream call.
package vertex

import (
	"encoding/json"

	"github.com/sitechat/relay/internal/domain"
)

// GenerateRequest is the streamGenerateContent request body. Tools is an
// opaque passthrough of the tenant's function-calling schema.
type GenerateRequest struct {
	SystemInstruction *SystemInstruction `json:"system_instruction,omitempty"`
	Contents          []Content          `json:"contents"`
	Tools             json.RawMessage    `json:"tools,omitempty"`
	ToolConfig        *ToolConfig        `json:"toolConfig,omitempty"`
}

// SystemInstruction carries the system prompt.
type SystemInstruction struct {
	Parts []Part `json:"parts"`
}

// Content is one conversation turn in upstream form.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a single text part.
type Part struct {
	Text string `json:"text"`
}

// ToolConfig selects the function-calling mode.
type ToolConfig struct {
	FunctionCallingConfig FunctionCallingConfig `json:"functionCallingConfig"`
}

// FunctionCallingConfig holds the mode string.
type FunctionCallingConfig struct {
	Mode string `json:"mode"`
}

// BuildRequest assembles the upstream body from the validated chat request.
// When the widget replays history the contents are the mapped history turns;
// otherwise a single user turn carries the current message.
func BuildRequest(systemPrompt string, req *domain.ChatRequest, tools json.RawMessage) *GenerateRequest {
	var contents []Content
	if len(req.History) > 0 {
		contents = make([]Content, 0, len(req.History))
		for _, turn := range req.History {
			contents = append(contents, Content{
				Role:  domain.UpstreamRole(turn.Role),
				Parts: []Part{{Text: turn.Content}},
			})
		}
	} else {
		contents = []Content{{Role: "user", Parts: []Part{{Text: req.Message}}}}
	}

	out := &GenerateRequest{
		SystemInstruction: &SystemInstruction{Parts: []Part{{Text: systemPrompt}}},
		Contents:          contents,
	}
	if len(tools) > 0 && string(tools) != "null" {
		out.Tools = tools
		out.ToolConfig = &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{Mode: "AUTO"}}
	}
	return out
}
