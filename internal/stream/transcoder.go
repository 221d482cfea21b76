package stream

import (
	"io"
	"strings"

	"github.com/sitechat/relay/internal/logging"
)

// actionSuffix marks replies that carried widget actions in the audit log.
const actionSuffix = "\n[Sent widget action]"

// interruptedMsg is what the widget sees when the upstream stream dies.
const interruptedMsg = "Stream interrupted"

// Result summarizes one transcoded stream for the audit recorder.
type Result struct {
	// Reply is the full assistant text, with a marker appended when widget
	// actions were sent. Never streamed to the client in this form.
	Reply       string
	Actions     []FunctionCall
	Interrupted bool
}

// Transcoder pumps upstream events to the widget. Text parts stream through
// immediately; function calls are buffered and emitted after the text so the
// widget never acts before the reply is complete.
type Transcoder struct {
	log *logging.Logger
}

// NewTranscoder returns a transcoder logging through the given logger.
func NewTranscoder(log *logging.Logger) *Transcoder {
	return &Transcoder{log: log.Sub("stream")}
}

// Run consumes the upstream body until it ends, writing widget events to
// out. A transport error mid-stream yields an error event and a terminal
// marker; buffered actions are discarded in that case. Run always
// terminates the downstream stream.
func (t *Transcoder) Run(body io.Reader, out *EventWriter, hasTools bool) *Result {
	dec := NewDecoder(body, t.log)
	var full strings.Builder
	var actions []FunctionCall

	for {
		ev, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.log.Warn().Err(err).Msg("upstream stream interrupted")
			out.SendError(interruptedMsg)
			out.Done()
			return &Result{Reply: full.String(), Interrupted: true}
		}

		if ev.UsageMetadata != nil {
			t.log.Debug().
				Int("promptTokens", ev.UsageMetadata.PromptTokenCount).
				Int("candidateTokens", ev.UsageMetadata.CandidatesTokenCount).
				Msg("usage metadata")
		}

		for _, cand := range ev.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					full.WriteString(part.Text)
					out.SendText(part.Text)
				}
				if hasTools && part.FunctionCall != nil {
					actions = append(actions, *part.FunctionCall)
				}
			}
		}
	}

	for _, fc := range actions {
		out.SendAction(fc.Name, fc.Args)
	}
	out.Done()

	res := &Result{Reply: full.String(), Actions: actions}
	if len(actions) > 0 {
		res.Reply += actionSuffix
	}
	return res
}
