package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sitechat/relay/internal/logging"
)

// menuTimeout bounds the menu fetch so a slow upstream cannot stall the
// chat request it decorates.
const menuTimeout = 5 * time.Second

// MenuItem is one entry of a tenant's live menu feed.
type MenuItem struct {
	Name         string `json:"name"`
	Availability string `json:"availability,omitempty"`
}

// MenuFetcher retrieves a tenant's live menu and renders it as a prompt
// section. Failures are silent: the chat proceeds without menu data.
type MenuFetcher struct {
	client *http.Client
	log    *logging.Logger
}

// NewMenuFetcher returns a fetcher using the given client, or a default
// one when nil.
func NewMenuFetcher(client *http.Client, log *logging.Logger) *MenuFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &MenuFetcher{client: client, log: log.Sub("menu")}
}

// Section fetches the menu at url and formats it for inclusion in the
// system prompt. It returns "" when url is empty or the fetch fails.
func (m *MenuFetcher) Section(ctx context.Context, url string) string {
	if url == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, menuTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		m.log.Warn().Str("url", url).Err(err).Msg("invalid menu url")
		return ""
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Warn().Str("url", url).Err(err).Msg("menu fetch failed")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.log.Warn().Str("url", url).Int("status", resp.StatusCode).Msg("menu fetch failed")
		return ""
	}

	var items []MenuItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		m.log.Warn().Str("url", url).Err(err).Msg("menu decode failed")
		return ""
	}
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\nCURRENTLY AVAILABLE ITEMS:\n")
	for _, it := range items {
		if it.Availability != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", it.Name, it.Availability)
		} else {
			fmt.Fprintf(&b, "- %s\n", it.Name)
		}
	}
	return b.String()
}
