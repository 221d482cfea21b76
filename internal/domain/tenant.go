package domain

import "encoding/json"

// TenantConfig is the per-client configuration loaded from the tenant store.
// It is read-only to the relay pipeline.
type TenantConfig struct {
	ID             string   `json:"id"`
	Active         bool     `json:"active"`
	AllowedOrigins []string `json:"allowedOrigins"`
	SiteData       SiteData `json:"siteData"`
}

// OriginAllowed reports whether the given caller origin may use this tenant.
// An empty origin is always allowed: same-origin and non-browser callers do
// not send one.
func (t *TenantConfig) OriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range t.AllowedOrigins {
		if a == origin {
			return true
		}
	}
	return false
}

// SiteData is the tenant's business profile used to build the system prompt.
type SiteData struct {
	Business        Business                `json:"business"`
	Pages           map[string]string       `json:"pages,omitempty"`
	Services        []Service               `json:"services,omitempty"`
	Staff           []StaffMember           `json:"staff,omitempty"`
	FAQs            []FAQ                   `json:"faqs,omitempty"`
	AppointmentInfo *AppointmentInfo        `json:"appointmentInfo,omitempty"`
	CallToAction    *CallToAction           `json:"callToAction,omitempty"`
	Emergency       *EmergencyAction        `json:"emergencyAction,omitempty"`
	WidgetConfig    map[string]WidgetConfig `json:"widgetConfig,omitempty"`
	MenuURL         string                  `json:"menuUrl,omitempty"`
	Tools           json.RawMessage         `json:"tools,omitempty"`
	SystemPrompt    string                  `json:"systemPrompt,omitempty"`
}

// HasTools reports whether the tenant has a function-calling schema configured.
func (s *SiteData) HasTools() bool {
	return len(s.Tools) > 0 && string(s.Tools) != "null"
}

// Business is the tenant's contact block.
type Business struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Hours       string `json:"hours"`
	ServiceArea string `json:"serviceArea"`
}

// Service is one offered service.
type Service struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// StaffMember is one listed staff entry.
type StaffMember struct {
	Name        string `json:"name"`
	Credentials string `json:"credentials"`
	Role        string `json:"role,omitempty"`
	Specialties string `json:"specialties,omitempty"`
}

// FAQ is one question/answer pair.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AppointmentInfo describes scheduling details.
type AppointmentInfo struct {
	Scheduling string `json:"scheduling"`
	Windows    string `json:"windows"`
	Deposit    string `json:"deposit"`
	Emergency  string `json:"emergency"`
}

// CallToAction is the closing suggestion shown at natural conversation ends.
type CallToAction struct {
	Text    string `json:"text"`
	URL     string `json:"url"`
	Context string `json:"context,omitempty"`
}

// WidgetConfig is the widget presentation config served by the config
// endpoint. Keys mirror what the widget script consumes.
type WidgetConfig struct {
	BubbleImage      string `json:"bubbleImage,omitempty"`
	BrandColor       string `json:"brandColor,omitempty"`
	Greeting         string `json:"greeting,omitempty"`
	Persona          string `json:"persona,omitempty"`
	Position         string `json:"position,omitempty"`
	BottomOffset     int    `json:"bottomOffset,omitempty"`
	HorizontalMargin int    `json:"horizontalMargin,omitempty"`
}
