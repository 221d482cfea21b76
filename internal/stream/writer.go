package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EventWriter emits the widget-facing SSE protocol. Every event is a single
// "data:" line followed by a blank line, flushed immediately so the widget
// renders text as it arrives.
type EventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewEventWriter sets the SSE response headers and returns a writer.
func NewEventWriter(w http.ResponseWriter) *EventWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	return &EventWriter{w: w, flusher: flusher}
}

func (e *EventWriter) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}
	e.flush()
	return nil
}

// SendText emits a text fragment.
func (e *EventWriter) SendText(text string) error {
	return e.send(map[string]string{"text": text})
}

// SendAction emits a widget action. The call arguments are flattened into
// the action object next to its type.
func (e *EventWriter) SendAction(name string, args map[string]any) error {
	action := make(map[string]any, len(args)+1)
	action["type"] = name
	for k, v := range args {
		action[k] = v
	}
	return e.send(map[string]any{"action": action})
}

// SendError emits a caller-visible stream error.
func (e *EventWriter) SendError(msg string) error {
	return e.send(map[string]string{"error": msg})
}

// Done emits the terminal marker.
func (e *EventWriter) Done() error {
	if _, err := fmt.Fprint(e.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	e.flush()
	return nil
}

func (e *EventWriter) flush() {
	if e.flusher != nil {
		e.flusher.Flush()
	}
}
