package store

import (
	"context"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/sitechat/relay/internal/domain"
	"github.com/sitechat/relay/internal/logging"
)

// Supabase is the production store backend, talking to the same tables the
// hosted deployment uses: clients, rate_limits, chat_logs, chat_metrics.
type Supabase struct {
	client *supabase.Client
	log    *logging.Logger
}

// NewSupabase creates a Supabase-backed store using the service-role key.
func NewSupabase(url, serviceKey string, log *logging.Logger) (*Supabase, error) {
	if url == "" || serviceKey == "" {
		return nil, fmt.Errorf("supabase url and service key are required")
	}
	client, err := supabase.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &Supabase{client: client, log: log.Sub("supabase")}, nil
}

// Stores returns the Supabase-backed collaborator interfaces.
func (s *Supabase) Stores() Stores {
	return Stores{
		Tenants:    supabaseTenants{s},
		RateLimits: supabaseRateLimits{s},
		Logs:       supabaseLogs{s},
		Metrics:    supabaseMetrics{s},
	}
}

// clientRow mirrors the clients table.
type clientRow struct {
	ID             string          `json:"id"`
	Active         bool            `json:"active"`
	AllowedOrigins []string        `json:"allowed_origins"`
	SiteData       domain.SiteData `json:"site_data"`
}

type supabaseTenants struct{ s *Supabase }

func (t supabaseTenants) Lookup(_ context.Context, clientID string) (*domain.TenantConfig, error) {
	var rows []clientRow
	_, err := t.s.client.From("clients").
		Select("id, active, allowed_origins, site_data", "", false).
		Eq("id", clientID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("looking up tenant: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrTenantNotFound
	}
	row := rows[0]
	return &domain.TenantConfig{
		ID:             row.ID,
		Active:         row.Active,
		AllowedOrigins: row.AllowedOrigins,
		SiteData:       row.SiteData,
	}, nil
}

type rateLimitRow struct {
	ClientID  string `json:"client_id"`
	IPAddress string `json:"ip_address"`
}

type supabaseRateLimits struct{ s *Supabase }

func (r supabaseRateLimits) CountSince(_ context.Context, clientID, ip string, since time.Time) (int, error) {
	_, count, err := r.s.client.From("rate_limits").
		Select("id", "exact", true).
		Eq("client_id", clientID).
		Eq("ip_address", ip).
		Gte("created_at", since.UTC().Format(time.RFC3339)).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("counting rate limit rows: %w", err)
	}
	return int(count), nil
}

func (r supabaseRateLimits) Insert(_ context.Context, clientID, ip string) error {
	_, _, err := r.s.client.From("rate_limits").
		Insert(rateLimitRow{ClientID: clientID, IPAddress: ip}, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("inserting rate limit row: %w", err)
	}
	return nil
}

type chatLogRow struct {
	ClientID  string `json:"client_id"`
	SessionID string `json:"session_id"`
	WidgetID  string `json:"widget_id,omitempty"`
	Role      string `json:"role"`
	Message   string `json:"message"`
	Origin    string `json:"origin,omitempty"`
}

type supabaseLogs struct{ s *Supabase }

func (l supabaseLogs) InsertTurns(_ context.Context, rows []domain.ConversationRow) error {
	out := make([]chatLogRow, len(rows))
	for i, r := range rows {
		out[i] = chatLogRow{
			ClientID:  r.ClientID,
			SessionID: r.SessionID,
			WidgetID:  r.WidgetID,
			Role:      r.Role,
			Message:   r.Message,
			Origin:    r.Origin,
		}
	}
	_, _, err := l.s.client.From("chat_logs").Insert(out, false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting chat log rows: %w", err)
	}
	return nil
}

type chatMetricsRow struct {
	ClientID       string `json:"client_id"`
	SessionID      string `json:"session_id"`
	WidgetID       string `json:"widget_id,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	VertexAttempts int    `json:"vertex_attempts"`
	VertexStatus   *int   `json:"vertex_status,omitempty"`
	Success        bool   `json:"success"`
	ErrorType      string `json:"error_type,omitempty"`
	ErrorDetails   string `json:"error_details,omitempty"`
}

type supabaseMetrics struct{ s *Supabase }

func (m supabaseMetrics) Insert(_ context.Context, rec domain.MetricsRecord) error {
	row := chatMetricsRow{
		ClientID:       rec.ClientID,
		SessionID:      rec.SessionID,
		WidgetID:       rec.WidgetID,
		ResponseTimeMs: rec.ResponseTimeMs,
		VertexAttempts: rec.VertexAttempts,
		Success:        rec.Success,
		ErrorType:      rec.ErrorType,
		ErrorDetails:   rec.ErrorDetails,
	}
	if rec.VertexStatus != 0 {
		row.VertexStatus = &rec.VertexStatus
	}
	_, _, err := m.s.client.From("chat_metrics").Insert(row, false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting chat metrics row: %w", err)
	}
	return nil
}
