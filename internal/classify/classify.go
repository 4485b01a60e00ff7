// Package classify maps a raw provider response onto the canonical outcome
// using only the backend's explicit stop code.
package classify

import (
	"fmt"
	"strings"

	"shotlate/internal/domain"
)

// Table is one backend's stop-code lookup. Codes are compared case-sensitively
// because backends document them that way.
type Table struct {
	Success []string
	Blocked []string
}

// Lookup returns the status for code and whether the code is known.
func (t Table) Lookup(code string) (domain.Status, bool) {
	for _, c := range t.Success {
		if c == code {
			return domain.StatusSuccess, true
		}
	}
	for _, c := range t.Blocked {
		if c == code {
			return domain.StatusSafetyBlocked, true
		}
	}
	return domain.StatusError, false
}

// Raw is what an adapter extracted from the backend response.
type Raw struct {
	Provider string
	StopCode string
	Text     string
	// Missing lists required fields absent from the response.
	Missing []string
}

// Outcome is the classified result for one item.
type Outcome struct {
	Status   domain.Status
	Text     string
	Detail   string
	StopCode string
}

// Classify derives the outcome from raw.StopCode via table. The completion
// text is carried along but never inspected.
func Classify(raw Raw, table Table) Outcome {
	out := Outcome{StopCode: raw.StopCode}
	if len(raw.Missing) > 0 {
		out.Status = domain.StatusError
		out.Detail = fmt.Sprintf("%s response missing %s", providerLabel(raw.Provider), strings.Join(raw.Missing, ", "))
		return out
	}
	if raw.StopCode == "" {
		out.Status = domain.StatusError
		out.Detail = fmt.Sprintf("%s response has no stop code", providerLabel(raw.Provider))
		return out
	}

	status, known := table.Lookup(raw.StopCode)
	switch {
	case !known:
		out.Status = domain.StatusError
		out.Detail = fmt.Sprintf("%s stopped with %s", providerLabel(raw.Provider), raw.StopCode)
	case status == domain.StatusSuccess:
		out.Status = domain.StatusSuccess
		out.Text = strings.TrimSpace(raw.Text)
	default:
		out.Status = domain.StatusSafetyBlocked
		out.Text = strings.TrimSpace(raw.Text)
	}
	return out
}

func providerLabel(provider string) string {
	if provider == "" {
		return "provider"
	}
	return provider
}
