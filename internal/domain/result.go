package domain

// Status is the canonical per-item outcome.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusSafetyBlocked Status = "safety_blocked"
	StatusError         Status = "error"
)

// TranslationResult is the outcome for one processed item. Text is set for
// successes and, best-effort, for blocked items. Detail is set for errors only.
type TranslationResult struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Status   Status    `json:"status"`
	State    ItemState `json:"state"`
	Text     string    `json:"text,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	StopCode string    `json:"stop_code,omitempty"`
	Provider string    `json:"provider,omitempty"`
}

// ItemState maps the outcome onto the terminal lifecycle state of the item.
func (r TranslationResult) ItemState() ItemState {
	switch r.Status {
	case StatusSuccess:
		return ItemCompleted
	case StatusSafetyBlocked:
		return ItemFiltered
	default:
		return ItemFailed
	}
}
