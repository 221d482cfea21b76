package server

import (
	"net/http"

	"github.com/sitechat/relay/internal/domain"
	"github.com/sitechat/relay/internal/store"
)

// handleWidgetConfig serves the widget presentation config the embed script
// loads before opening the chat bubble. Unknown widget IDs fall back to the
// tenant's "default" entry.
func (s *Server) handleWidgetConfig(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		writeError(w, &domain.RelayError{Kind: domain.KindValidation, Message: "Missing required parameter: clientId"})
		return
	}

	tenant, err := s.stores.Tenants.Lookup(r.Context(), clientID)
	if err != nil {
		if err != store.ErrTenantNotFound {
			s.log.Error().Err(err).Str("clientId", clientID).Msg("tenant lookup failed")
		}
		writeError(w, domain.Errf(domain.KindNotFound, err, "Client not found"))
		return
	}
	if !tenant.Active {
		writeError(w, &domain.RelayError{Kind: domain.KindOriginForbidden, Message: "Client is inactive"})
		return
	}
	if !tenant.OriginAllowed(r.Header.Get("Origin")) {
		writeError(w, &domain.RelayError{Kind: domain.KindOriginForbidden, Message: "Origin not allowed"})
		return
	}

	widgetID := r.URL.Query().Get("widgetId")
	if widgetID == "" {
		widgetID = "default"
	}
	cfg, ok := tenant.SiteData.WidgetConfig[widgetID]
	if !ok {
		cfg = tenant.SiteData.WidgetConfig["default"]
	}

	writeJSON(w, http.StatusOK, cfg)
}
