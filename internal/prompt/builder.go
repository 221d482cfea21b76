// Package prompt builds the tenant-specific system instruction sent to the
// upstream model. Build is referentially transparent: identical inputs
// produce byte-identical output.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sitechat/relay/internal/domain"
)

// timePlaceholder is substituted in precomputed prompt templates.
const timePlaceholder = "{{CURRENT_TIME}}"

// FormatCurrentTime renders the caller-supplied local time for the prompt.
func FormatCurrentTime(userTime, userTimezone string) string {
	if userTime == "" {
		userTime = "Unknown"
	}
	if userTimezone == "" {
		userTimezone = "Unknown timezone"
	}
	return fmt.Sprintf("%s (%s)", userTime, userTimezone)
}

// ApplyTemplate substitutes the current-time placeholder into a precomputed
// prompt template.
func ApplyTemplate(template, userTime, userTimezone string) string {
	return strings.Replace(template, timePlaceholder, FormatCurrentTime(userTime, userTimezone), 1)
}

// ForTenant produces the full system instruction for one request: the
// precomputed template when the tenant has one, a generated prompt
// otherwise, with an optional persona prepended.
func ForTenant(site domain.SiteData, persona, userTime, userTimezone string) string {
	var p string
	if site.SystemPrompt != "" {
		p = ApplyTemplate(site.SystemPrompt, userTime, userTimezone)
	} else {
		p = Build(site, userTime, userTimezone)
	}
	if persona != "" {
		p = persona + "\n\n" + p
	}
	return p
}

// Build generates the system instruction from structured site data. Section
// order is fixed; optional sections are emitted only when they have content,
// except the pages and services headers which are always present.
func Build(site domain.SiteData, userTime, userTimezone string) string {
	var b strings.Builder
	biz := site.Business

	fmt.Fprintf(&b, "You are a friendly, casual assistant for %s. %s\n\n", biz.Name, biz.Description)
	fmt.Fprintf(&b, "CURRENT TIME: %s\n\n", FormatCurrentTime(userTime, userTimezone))

	b.WriteString(`TONE & STYLE:
- Be conversational and warm, like texting with a helpful friend
- Keep responses SHORT - 1-2 sentences max unless they ask for details
- Don't use em dashes (—) - use commas, periods, or just break into separate sentences
- Use casual language ("Yeah!", "Sure thing!", "Happy to help!")
- Include a relevant link when it makes sense, always using Markdown format: [Link Text](URL)
- Keep the conversation going - ask follow-up questions, show interest
- When sharing a link, invite them to come back and chat more afterward

`)

	fmt.Fprintf(&b, "BUSINESS INFO:\n- Phone: %s\n- Email: %s\n- Hours: %s\n- Service Area: %s\n\n",
		biz.Phone, biz.Email, biz.Hours, biz.ServiceArea)

	b.WriteString("WEBSITE PAGES:\n")
	for _, name := range sortedKeys(site.Pages) {
		fmt.Fprintf(&b, "- %s: %s\n", name, site.Pages[name])
	}

	b.WriteString("\nSERVICES:\n")
	for _, s := range site.Services {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
	}

	if len(site.Staff) > 0 {
		b.WriteString("\nSTAFF:\n")
		for _, s := range site.Staff {
			specialties := ""
			if s.Specialties != "" {
				specialties = "Specializes in: " + s.Specialties
			}
			fmt.Fprintf(&b, "- %s (%s): %s %s\n", s.Name, s.Credentials, s.Role, specialties)
		}
	}

	if ai := site.AppointmentInfo; ai != nil {
		fmt.Fprintf(&b, "\nAPPOINTMENT INFO:\n- %s\n- %s\n- %s\n- Emergency: %s\n",
			ai.Scheduling, ai.Windows, ai.Deposit, ai.Emergency)
	}

	if len(site.FAQs) > 0 {
		b.WriteString("\nCOMMON QUESTIONS:\n")
		for _, f := range site.FAQs {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", f.Question, f.Answer)
		}
	}

	if ea := site.Emergency; ea != nil {
		switch ea.Kind {
		case domain.EmergencyStructured:
			writeStructuredEmergency(&b, ea.Structured)
		case domain.EmergencyLegacy:
			writeLegacyEmergency(&b, ea.Legacy)
		}
	}

	if cta := site.CallToAction; cta != nil {
		fmt.Fprintf(&b, `
CALL TO ACTION (for non-emergencies):
When the conversation naturally concludes, the user seems satisfied, says goodbye, or their question has been fully answered, gently suggest they %s: %s
%s
- Don't force it into every response
- Make it feel like a natural next step, not a sales pitch
- Only mention it once per conversation when appropriate
- After sharing the link, invite them to come back if they have more questions
`, cta.Text, cta.URL, cta.Context)
	}

	return b.String()
}

func writeStructuredEmergency(b *strings.Builder, se *domain.StructuredEmergency) {
	guidance := se.TriageGuidance
	if guidance == "" {
		guidance = "Use your knowledge to assess the severity of the situation."
	}

	fmt.Fprintf(b, "\nEMERGENCY TRIAGE (HIGHEST PRIORITY):\n%s\n\nSEVERITY LEVELS:\n", guidance)
	writeSeverity(b, "CRITICAL", se.SeverityLevels.Critical)
	writeSeverity(b, "MODERATE", se.SeverityLevels.Moderate)
	writeSeverity(b, "MINOR", se.SeverityLevels.Minor)

	b.WriteString("\nEMERGENCY FACILITIES (USE ONLY THESE - DO NOT MAKE UP ADDRESSES OR PHONE NUMBERS):\n")
	for _, f := range se.Facilities {
		fmt.Fprintf(b, "- %s (%s): %s, %s, Hours: %s\n", f.Name, f.Location, f.Phone, f.Address, f.Hours)
	}

	b.WriteString(`
IMPORTANT:
- You MUST use ONLY the exact names, phone numbers, and addresses listed above. Never invent or guess facility information.
- Check the CURRENT TIME above and recommend facilities that are OPEN NOW. If a facility is closed, mention that and suggest an open alternative (prefer 24/7 facilities for after-hours emergencies).
- If asked about a location not covered, say you don't have specific facility information for that area.
- Take emergencies seriously but stay calm and reassuring.
- After directing them to emergency care, invite them to chat again once the situation is stable.
`)
}

func writeSeverity(b *strings.Builder, label string, s domain.SeverityLevel) {
	fmt.Fprintf(b, "- %s: %s. Examples: %s. Action: %s\n",
		label, s.Description, strings.Join(s.Examples, ", "), s.Instruction)
}

func writeLegacyEmergency(b *strings.Builder, le *domain.LegacyEmergency) {
	fmt.Fprintf(b, `
EMERGENCY TRIAGE (HIGHEST PRIORITY):
%s
If you detect an emergency: %s
Referral: %s
- Take emergencies seriously but stay calm and reassuring
- After directing them to emergency care, invite them to chat again once the situation is stable
`, le.Triggers, le.Message, le.Referral)
}

// sortedKeys gives the pages section a stable order; the source map has no
// inherent one.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
