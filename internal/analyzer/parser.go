package analyzer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/scrutor/internal/models"
)

// sessionMarkerRegex matches the "=== SESSION: <id> ===" section headers
// the prompt demands.
var sessionMarkerRegex = regexp.MustCompile(`(?m)^===\s*SESSION:\s*(.+?)\s*===\s*$`)

// ParseBatchResponse parses one batch response into per-session facts.
// Parsing is strict: every expected session needs a section carrying an
// INTENT and a valid OUTCOME, and any omission fails the whole batch.
// Facts are extracted jointly per batch, so there is no partial credit
// for a half-usable response. Sections for sessions that were not asked
// about are ignored.
func ParseBatchResponse(response string, sessionIDs []string) (map[string]models.SessionFacts, error) {
	content := stripFences(response)

	matches := sessionMarkerRegex.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("response contains no session sections")
	}

	sections := make(map[string]string, len(matches))
	for i, m := range matches {
		id := strings.TrimSpace(content[m[2]:m[3]])
		bodyEnd := len(content)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		// First section wins when the model repeats itself
		if _, exists := sections[id]; !exists {
			sections[id] = content[m[1]:bodyEnd]
		}
	}

	facts := make(map[string]models.SessionFacts, len(sessionIDs))
	for _, id := range sessionIDs {
		body, ok := sections[id]
		if !ok {
			return nil, fmt.Errorf("response missing section for session %s", id)
		}
		f, err := parseSection(body)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", id, err)
		}
		facts[id] = f
	}

	return facts, nil
}

// parseSection reads the "FIELD: value" lines of one session section.
func parseSection(body string) (models.SessionFacts, error) {
	var facts models.SessionFacts

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "INTENT":
			facts.Intent = value
		case "OUTCOME":
			facts.Outcome = value
		case "TRANSFER_REASON":
			facts.TransferReason = normalizeNone(value)
		case "DROP_OFF":
			facts.DropOffLocation = normalizeNone(value)
		case "NOTES":
			facts.Notes = value
		}
	}

	if facts.Intent == "" {
		return facts, fmt.Errorf("missing INTENT field")
	}

	switch strings.ToLower(facts.Outcome) {
	case "transfer":
		facts.Outcome = models.OutcomeTransfer
	case "contained":
		facts.Outcome = models.OutcomeContained
	case "":
		return facts, fmt.Errorf("missing OUTCOME field")
	default:
		return facts, fmt.Errorf("invalid OUTCOME %q", facts.Outcome)
	}

	return facts, nil
}

// normalizeNone maps the prompt's "none" placeholder to an empty field.
func normalizeNone(value string) string {
	if strings.EqualFold(value, "none") || value == "-" {
		return ""
	}
	return value
}

// stripFences removes markdown code fences the model may wrap its output
// in.
func stripFences(response string) string {
	if strings.Contains(response, "```") {
		start := strings.Index(response, "```")
		// Skip the opening fence line entirely, it may carry a language tag
		if nl := strings.IndexByte(response[start:], '\n'); nl >= 0 {
			inner := response[start+nl+1:]
			if end := strings.LastIndex(inner, "```"); end >= 0 {
				return inner[:end]
			}
			return inner
		}
	}
	return response
}
