package stream

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitechat/relay/internal/logging"
)

func testLog() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

// brokenReader yields its payload and then a transport error.
type brokenReader struct {
	r    io.Reader
	err  error
	done bool
}

func (b *brokenReader) Read(p []byte) (int, error) {
	if !b.done {
		n, err := b.r.Read(p)
		if err == io.EOF {
			b.done = true
			if n == 0 {
				return 0, b.err
			}
			return n, nil
		}
		return n, err
	}
	return 0, b.err
}

// chunkReader delivers its payload in preset pieces, one per Read call.
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n == len(c.chunks[0]) {
		c.chunks = c.chunks[1:]
	} else {
		c.chunks[0] = c.chunks[0][n:]
	}
	return n, nil
}

func TestDecoderText(t *testing.T) {
	body := strings.NewReader(
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n" +
			"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo!\"}]}}]}\n\n" +
			"data: [DONE]\n\n")
	dec := NewDecoder(body, testLog())

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "Hel", ev.Candidates[0].Content.Parts[0].Text)

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "lo!", ev.Candidates[0].Content.Parts[0].Text)

	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecoderSplitChunkBoundaries(t *testing.T) {
	payload := "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hello!\"}]}}]}\n\n" +
		"data: [DONE]\n\n"

	want, err := NewDecoder(strings.NewReader(payload), testLog()).Next()
	require.NoError(t, err)

	// One event split across two reads must decode identically for every
	// possible boundary.
	for cut := 1; cut < len(payload); cut++ {
		dec := NewDecoder(&chunkReader{chunks: [][]byte{
			[]byte(payload[:cut]),
			[]byte(payload[cut:]),
		}}, testLog())

		ev, err := dec.Next()
		require.NoError(t, err, "split at %d", cut)
		assert.Equal(t, want, ev, "split at %d", cut)

		_, err = dec.Next()
		assert.Equal(t, io.EOF, err, "split at %d", cut)
	}
}

func TestDecoderUnterminatedFinalLine(t *testing.T) {
	body := strings.NewReader("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"tail\"}]}}]}")
	dec := NewDecoder(body, testLog())

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "tail", ev.Candidates[0].Content.Parts[0].Text)

	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecoderSkipsNoise(t *testing.T) {
	body := strings.NewReader(
		": comment line\n" +
			"event: ping\n" +
			"\n" +
			"data: not json at all\n\n" +
			"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ok\"}]}}]}\n\n" +
			"data: [DONE]\n\n")
	dec := NewDecoder(body, testLog())

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", ev.Candidates[0].Content.Parts[0].Text)

	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecoderTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	dec := NewDecoder(&brokenReader{r: strings.NewReader("data: {\"candidates\":[]}\n"), err: boom}, testLog())

	_, err := dec.Next()
	require.NoError(t, err)

	_, err = dec.Next()
	assert.ErrorIs(t, err, boom)
}

func TestEventWriterProtocol(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewEventWriter(rec)

	require.NoError(t, w.SendText("hi"))
	require.NoError(t, w.SendAction("open_link", map[string]any{"url": "https://x.test"}))
	require.NoError(t, w.SendError("Stream interrupted"))
	require.NoError(t, w.Done())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t,
		"data: {\"text\":\"hi\"}\n\n"+
			"data: {\"action\":{\"type\":\"open_link\",\"url\":\"https://x.test\"}}\n\n"+
			"data: {\"error\":\"Stream interrupted\"}\n\n"+
			"data: [DONE]\n\n",
		rec.Body.String())
}

func TestTranscoderStreamsText(t *testing.T) {
	body := strings.NewReader(
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n" +
			"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo!\"}]}}]}\n\n" +
			"data: [DONE]\n\n")
	rec := httptest.NewRecorder()

	res := NewTranscoder(testLog()).Run(body, NewEventWriter(rec), false)

	assert.Equal(t, "Hello!", res.Reply)
	assert.False(t, res.Interrupted)
	assert.Empty(t, res.Actions)
	assert.Equal(t,
		"data: {\"text\":\"Hel\"}\n\ndata: {\"text\":\"lo!\"}\n\ndata: [DONE]\n\n",
		rec.Body.String())
}

func TestTranscoderBuffersActionsAfterText(t *testing.T) {
	body := strings.NewReader(
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"functionCall\":{\"name\":\"book_appointment\",\"args\":{\"service\":\"cleaning\"}}}]}}]}\n\n" +
			"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Booking now.\"}]}}]}\n\n" +
			"data: [DONE]\n\n")
	rec := httptest.NewRecorder()

	res := NewTranscoder(testLog()).Run(body, NewEventWriter(rec), true)

	require.Len(t, res.Actions, 1)
	assert.Equal(t, "book_appointment", res.Actions[0].Name)
	assert.Equal(t, "Booking now.\n[Sent widget action]", res.Reply)

	// The action event follows all text even though it arrived first.
	assert.Equal(t,
		"data: {\"text\":\"Booking now.\"}\n\n"+
			"data: {\"action\":{\"service\":\"cleaning\",\"type\":\"book_appointment\"}}\n\n"+
			"data: [DONE]\n\n",
		rec.Body.String())
}

func TestTranscoderIgnoresActionsWithoutTools(t *testing.T) {
	body := strings.NewReader(
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hi\"},{\"functionCall\":{\"name\":\"noop\",\"args\":{}}}]}}]}\n\n" +
			"data: [DONE]\n\n")
	rec := httptest.NewRecorder()

	res := NewTranscoder(testLog()).Run(body, NewEventWriter(rec), false)

	assert.Empty(t, res.Actions)
	assert.Equal(t, "Hi", res.Reply)
	assert.NotContains(t, rec.Body.String(), "action")
}

func TestTranscoderInterrupted(t *testing.T) {
	broken := &brokenReader{
		r:   strings.NewReader("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"partial\"}]}}]}\n"),
		err: errors.New("connection reset"),
	}
	rec := httptest.NewRecorder()

	res := NewTranscoder(testLog()).Run(broken, NewEventWriter(rec), true)

	assert.True(t, res.Interrupted)
	assert.Equal(t, "partial", res.Reply)
	assert.Contains(t, rec.Body.String(), "data: {\"text\":\"partial\"}\n\n")
	assert.Contains(t, rec.Body.String(), "data: {\"error\":\"Stream interrupted\"}\n\n")
	assert.True(t, strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n"))
}

func TestTranscoderMalformedChunkSkipped(t *testing.T) {
	body := strings.NewReader(
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"a\"}]}}]}\n\n" +
			"data: {broken json\n\n" +
			"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"b\"}]}}]}\n\n" +
			"data: [DONE]\n\n")
	rec := httptest.NewRecorder()

	res := NewTranscoder(testLog()).Run(body, NewEventWriter(rec), false)

	assert.Equal(t, "ab", res.Reply)
	assert.False(t, res.Interrupted)
}
