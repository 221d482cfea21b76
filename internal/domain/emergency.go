package domain

import "encoding/json"

// EmergencyKind selects which emergency-action variant a tenant uses.
type EmergencyKind string

const (
	// EmergencyNone means the section is present but carries no usable
	// variant; the prompt builder emits nothing for it.
	EmergencyNone EmergencyKind = "none"
	// EmergencyLegacy is the flat triggers/referral/message form.
	EmergencyLegacy EmergencyKind = "legacy"
	// EmergencyStructured is the triage form with severity tiers and a
	// facility allow-list.
	EmergencyStructured EmergencyKind = "structured"
)

// EmergencyAction is a tagged union decoded once at tenant-load time.
// The structured variant is selected when both severityLevels and
// emergencyFacilities are present; otherwise the legacy variant is used
// when triggers is present.
type EmergencyAction struct {
	Kind       EmergencyKind
	Legacy     *LegacyEmergency
	Structured *StructuredEmergency
}

// LegacyEmergency is the original flat emergency form.
type LegacyEmergency struct {
	Triggers string `json:"triggers"`
	Referral string `json:"referral,omitempty"`
	Message  string `json:"message,omitempty"`
}

// StructuredEmergency is the triage form.
type StructuredEmergency struct {
	TriageGuidance string              `json:"triageGuidance,omitempty"`
	SeverityLevels SeverityLevels      `json:"severityLevels"`
	Facilities     []EmergencyFacility `json:"emergencyFacilities"`
}

// SeverityLevels holds the three fixed triage tiers.
type SeverityLevels struct {
	Critical SeverityLevel `json:"critical"`
	Moderate SeverityLevel `json:"moderate"`
	Minor    SeverityLevel `json:"minor"`
}

// SeverityLevel describes one triage tier.
type SeverityLevel struct {
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
	Instruction string   `json:"instruction"`
}

// EmergencyFacility is one entry of the facility allow-list. The prompt
// instructs the model to use only these, never invented data.
type EmergencyFacility struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Hours    string `json:"hours"`
}

// emergencyWire is the loose on-disk shape both variants share.
type emergencyWire struct {
	Triggers string `json:"triggers,omitempty"`
	Referral string `json:"referral,omitempty"`
	Message  string `json:"message,omitempty"`

	TriageGuidance string              `json:"triageGuidance,omitempty"`
	SeverityLevels *SeverityLevels     `json:"severityLevels,omitempty"`
	Facilities     []EmergencyFacility `json:"emergencyFacilities,omitempty"`
}

// UnmarshalJSON selects the variant by field presence.
func (e *EmergencyAction) UnmarshalJSON(data []byte) error {
	var w emergencyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch {
	case w.SeverityLevels != nil && len(w.Facilities) > 0:
		e.Kind = EmergencyStructured
		e.Structured = &StructuredEmergency{
			TriageGuidance: w.TriageGuidance,
			SeverityLevels: *w.SeverityLevels,
			Facilities:     w.Facilities,
		}
		e.Legacy = nil
	case w.Triggers != "":
		e.Kind = EmergencyLegacy
		e.Legacy = &LegacyEmergency{
			Triggers: w.Triggers,
			Referral: w.Referral,
			Message:  w.Message,
		}
		e.Structured = nil
	default:
		e.Kind = EmergencyNone
		e.Legacy = nil
		e.Structured = nil
	}
	return nil
}

// MarshalJSON writes back the active variant in its wire form.
func (e EmergencyAction) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EmergencyStructured:
		if e.Structured == nil {
			break
		}
		return json.Marshal(emergencyWire{
			TriageGuidance: e.Structured.TriageGuidance,
			SeverityLevels: &e.Structured.SeverityLevels,
			Facilities:     e.Structured.Facilities,
		})
	case EmergencyLegacy:
		if e.Legacy == nil {
			break
		}
		return json.Marshal(emergencyWire{
			Triggers: e.Legacy.Triggers,
			Referral: e.Legacy.Referral,
			Message:  e.Legacy.Message,
		})
	}
	return []byte("{}"), nil
}
