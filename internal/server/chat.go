package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sitechat/relay/internal/domain"
	"github.com/sitechat/relay/internal/prompt"
	"github.com/sitechat/relay/internal/store"
	"github.com/sitechat/relay/internal/stream"
	"github.com/sitechat/relay/internal/vertex"
)

// handleChat runs the full relay pipeline: validate, authorize, admit,
// build the prompt, call the model, and transcode the stream. Once SSE
// headers have been written, failures surface as stream events, never as
// HTTP statuses.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}
	start := time.Now()
	ctx := r.Context()

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.reject(w, domain.Errf(domain.KindValidation, err, "Invalid JSON body"), start)
		return
	}
	if relErr := validateRequest(&req); relErr != nil {
		s.reject(w, relErr, start)
		return
	}

	tenant, err := s.stores.Tenants.Lookup(ctx, req.ClientID)
	if err != nil || !tenant.Active {
		if err != nil && err != store.ErrTenantNotFound {
			s.log.Error().Err(err).Str("clientId", req.ClientID).Msg("tenant lookup failed")
		}
		s.reject(w, domain.Errf(domain.KindNotFound, err, "Client not found or inactive"), start)
		return
	}

	origin := r.Header.Get("Origin")
	if !tenant.OriginAllowed(origin) {
		s.log.Warn().Str("clientId", req.ClientID).Str("origin", origin).Msg("origin rejected")
		s.reject(w, domain.Errf(domain.KindOriginForbidden, nil, "Origin not allowed"), start)
		return
	}

	if err := s.limiter.Admit(ctx, req.ClientID, clientIP(r)); err != nil {
		s.metrics.ObserveChat("rate_limited", 0, time.Since(start))
		writeError(w, err)
		return
	}

	systemPrompt := prompt.ForTenant(tenant.SiteData, req.Persona, req.UserTime, req.UserTimezone)
	systemPrompt += s.menus.Section(ctx, tenant.SiteData.MenuURL)

	token, err := s.creds.Token()
	if err != nil {
		s.recordFailure(&req, time.Since(start), domain.RetryOutcome{}, err)
		s.metrics.ObserveChat("auth_error", 0, time.Since(start))
		writeError(w, err)
		return
	}

	greq := vertex.BuildRequest(systemPrompt, &req, tenant.SiteData.Tools)
	body, outcome, err := s.caller.Open(ctx, token, greq)
	if err != nil {
		s.recordFailure(&req, time.Since(start), outcome, err)
		s.metrics.ObserveChat("upstream_error", outcome.Attempts, time.Since(start))
		writeError(w, err)
		return
	}
	defer body.Close()

	out := stream.NewEventWriter(w)
	res := s.transcoder.Run(body, out, tenant.SiteData.HasTools())
	elapsed := time.Since(start)

	s.recorder.RecordConversation(&req, origin, res.Reply)

	rec := domain.MetricsRecord{
		ClientID:       req.ClientID,
		SessionID:      req.SessionID,
		WidgetID:       req.WidgetID,
		ResponseTimeMs: elapsed.Milliseconds(),
		VertexAttempts: outcome.Attempts,
		VertexStatus:   outcome.FinalStatus,
		Success:        !res.Interrupted,
	}
	label := "success"
	if res.Interrupted {
		rec.ErrorType = "stream_error"
		rec.ErrorDetails = "upstream stream interrupted"
		label = "stream_error"
	}
	s.recorder.RecordMetrics(rec)
	s.metrics.ObserveChat(label, outcome.Attempts, elapsed)
}

// reject answers a pre-stream failure. These never produce an audit row.
func (s *Server) reject(w http.ResponseWriter, relErr *domain.RelayError, start time.Time) {
	s.metrics.ObserveChat("rejected", 0, time.Since(start))
	writeError(w, relErr)
}

// recordFailure persists the call record for a request that died before or
// while opening the upstream stream.
func (s *Server) recordFailure(req *domain.ChatRequest, elapsed time.Duration, outcome domain.RetryOutcome, err error) {
	rec := domain.MetricsRecord{
		ClientID:       req.ClientID,
		SessionID:      req.SessionID,
		WidgetID:       req.WidgetID,
		ResponseTimeMs: elapsed.Milliseconds(),
		VertexAttempts: outcome.Attempts,
		VertexStatus:   outcome.FinalStatus,
		Success:        false,
		ErrorType:      vertex.ErrorType(err, outcome),
		ErrorDetails:   err.Error(),
	}
	s.recorder.RecordMetrics(rec)
}

func validateRequest(req *domain.ChatRequest) *domain.RelayError {
	if req.ClientID == "" || req.Message == "" || req.SessionID == "" {
		return &domain.RelayError{
			Kind:    domain.KindValidation,
			Message: "Missing required fields: clientId, message, sessionId",
		}
	}
	if utf8.RuneCountInString(req.Message) > domain.MaxMessageLength {
		return &domain.RelayError{
			Kind:    domain.KindPayloadTooLarge,
			Message: "Message too long (max 2000 characters)",
		}
	}
	return nil
}

// clientIP keys the rate limiter: first X-Forwarded-For hop, or "unknown"
// when no proxy header is present.
func clientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return "unknown"
	}
	if i := strings.Index(xff, ","); i >= 0 {
		xff = xff[:i]
	}
	return strings.TrimSpace(xff)
}
