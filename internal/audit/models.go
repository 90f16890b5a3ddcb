package audit

// Outcomes recorded for console actions.
const (
	OutcomeOK           = "ok"
	OutcomeFailed       = "failed"
	OutcomeUnauthorized = "unauthorized"
	OutcomeRejected     = "rejected" // refused before any backend call
)

// Entry is one console action: who did what to which target and how it ended.
type Entry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Session   string `json:"session"`
	Action    string `json:"action"` // key.create, model.delete, chat.send, ...
	Target    string `json:"target,omitempty"`
	Outcome   string `json:"outcome"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// ActionStat counts entries per action and outcome.
type ActionStat struct {
	Action string `json:"action"`
	Total  int    `json:"total"`
	Failed int    `json:"failed"`
	LastAt string `json:"last_at"`
}

// QueryOpts holds filters for action log queries.
type QueryOpts struct {
	Action  string
	Outcome string
	Session string
	Since   string // RFC3339
	Limit   int
}
