// Package audit persists conversation turns and call metrics off the
// request path. Writes are fire-and-forget: a failed write is logged, never
// surfaced to the widget.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/sitechat/relay/internal/domain"
	"github.com/sitechat/relay/internal/logging"
)

// writeTimeout bounds each detached store write.
const writeTimeout = 10 * time.Second

// Recorder schedules audit writes on background goroutines, detached from
// the request context so a closed client connection cannot cancel them.
type Recorder struct {
	logs    logStore
	metrics metricsStore
	log     *logging.Logger
	wg      sync.WaitGroup
}

type logStore interface {
	InsertTurns(ctx context.Context, rows []domain.ConversationRow) error
}

type metricsStore interface {
	Insert(ctx context.Context, rec domain.MetricsRecord) error
}

// New builds a recorder over the given stores.
func New(logs logStore, metrics metricsStore, log *logging.Logger) *Recorder {
	return &Recorder{logs: logs, metrics: metrics, log: log.Sub("audit")}
}

// RecordConversation persists the user message and assistant reply as two
// rows of one exchange.
func (r *Recorder) RecordConversation(req *domain.ChatRequest, origin, reply string) {
	rows := []domain.ConversationRow{
		{
			ClientID:  req.ClientID,
			SessionID: req.SessionID,
			WidgetID:  req.WidgetID,
			Role:      "user",
			Message:   req.Message,
			Origin:    origin,
		},
		{
			ClientID:  req.ClientID,
			SessionID: req.SessionID,
			WidgetID:  req.WidgetID,
			Role:      "assistant",
			Message:   reply,
			Origin:    origin,
		},
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := r.logs.InsertTurns(ctx, rows); err != nil {
			r.log.Error().Err(err).Str("clientId", req.ClientID).Msg("conversation write failed")
		}
	}()
}

// RecordMetrics persists the per-request call record.
func (r *Recorder) RecordMetrics(rec domain.MetricsRecord) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := r.metrics.Insert(ctx, rec); err != nil {
			r.log.Error().Err(err).Str("clientId", rec.ClientID).Msg("metrics write failed")
		}
	}()
}

// Wait blocks until all scheduled writes have finished. Used on shutdown
// and in tests.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
