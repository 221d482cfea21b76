package domain

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamRole(t *testing.T) {
	assert.Equal(t, "model", UpstreamRole("assistant"))
	assert.Equal(t, "user", UpstreamRole("user"))
	assert.Equal(t, "user", UpstreamRole("system"))
	assert.Equal(t, "user", UpstreamRole(""))
}

func TestOriginAllowed(t *testing.T) {
	tenant := &TenantConfig{AllowedOrigins: []string{"https://a.example", "https://b.example"}}

	assert.True(t, tenant.OriginAllowed(""), "empty origin is same-origin or non-browser")
	assert.True(t, tenant.OriginAllowed("https://a.example"))
	assert.False(t, tenant.OriginAllowed("https://evil.example"))

	none := &TenantConfig{}
	assert.True(t, none.OriginAllowed(""))
	assert.False(t, none.OriginAllowed("https://a.example"))
}

func TestEmergencyAction_StructuredSelection(t *testing.T) {
	raw := `{
		"triageGuidance": "Assess severity first.",
		"severityLevels": {
			"critical": {"description": "life threatening", "examples": ["collapse"], "instruction": "go now"},
			"moderate": {"description": "urgent", "examples": ["limping"], "instruction": "call us"},
			"minor": {"description": "routine", "examples": ["mild itch"], "instruction": "book a visit"}
		},
		"emergencyFacilities": [
			{"name": "City ER", "location": "Downtown", "phone": "555-1000", "address": "1 Main St", "hours": "24/7"}
		]
	}`

	var ea EmergencyAction
	require.NoError(t, json.Unmarshal([]byte(raw), &ea))
	assert.Equal(t, EmergencyStructured, ea.Kind)
	require.NotNil(t, ea.Structured)
	assert.Nil(t, ea.Legacy)
	assert.Equal(t, "life threatening", ea.Structured.SeverityLevels.Critical.Description)
	require.Len(t, ea.Structured.Facilities, 1)
	assert.Equal(t, "City ER", ea.Structured.Facilities[0].Name)
}

func TestEmergencyAction_LegacySelection(t *testing.T) {
	raw := `{"triggers": "bleeding, seizures", "referral": "City ER 555-1000", "message": "Call the ER now."}`

	var ea EmergencyAction
	require.NoError(t, json.Unmarshal([]byte(raw), &ea))
	assert.Equal(t, EmergencyLegacy, ea.Kind)
	require.NotNil(t, ea.Legacy)
	assert.Nil(t, ea.Structured)
	assert.Equal(t, "bleeding, seizures", ea.Legacy.Triggers)
}

func TestEmergencyAction_SeverityWithoutFacilitiesFallsBackToLegacy(t *testing.T) {
	// severityLevels alone does not select the structured variant
	raw := `{
		"triggers": "bleeding",
		"severityLevels": {
			"critical": {"description": "bad", "examples": [], "instruction": "go"},
			"moderate": {"description": "ok", "examples": [], "instruction": "call"},
			"minor": {"description": "meh", "examples": [], "instruction": "wait"}
		}
	}`

	var ea EmergencyAction
	require.NoError(t, json.Unmarshal([]byte(raw), &ea))
	assert.Equal(t, EmergencyLegacy, ea.Kind)
}

func TestEmergencyAction_EmptyIsNone(t *testing.T) {
	var ea EmergencyAction
	require.NoError(t, json.Unmarshal([]byte(`{}`), &ea))
	assert.Equal(t, EmergencyNone, ea.Kind)
	assert.Nil(t, ea.Legacy)
	assert.Nil(t, ea.Structured)
}

func TestEmergencyAction_MarshalRoundTrip(t *testing.T) {
	raw := `{"triggers":"bleeding","referral":"call 555","message":"stay calm"}`

	var ea EmergencyAction
	require.NoError(t, json.Unmarshal([]byte(raw), &ea))

	out, err := json.Marshal(ea)
	require.NoError(t, err)

	var again EmergencyAction
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, ea, again)
}

func TestSiteData_HasTools(t *testing.T) {
	var sd SiteData
	assert.False(t, sd.HasTools())

	require.NoError(t, json.Unmarshal([]byte(`{"tools": null}`), &sd))
	assert.False(t, sd.HasTools())

	require.NoError(t, json.Unmarshal([]byte(`{"tools": [{"functionDeclarations": []}]}`), &sd))
	assert.True(t, sd.HasTools())
}

func TestRelayError_HTTPStatus(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindPayloadTooLarge, http.StatusBadRequest},
		{KindOriginForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindAuth, http.StatusBadGateway},
		{KindUpstreamNonRetryable, http.StatusBadGateway},
		{KindUpstreamExhausted, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		e := &RelayError{Kind: tc.kind, Message: "x"}
		assert.Equal(t, tc.status, e.HTTPStatus(), string(tc.kind))
	}
}
