package harness

// TraceEvent records what one scenario step did.
type TraceEvent struct {
	Step               int      `json:"step"`
	Input              string   `json:"input"`
	Route              string   `json:"route,omitempty"`
	ActionClass        string   `json:"action_class,omitempty"`
	RequiresResolution bool     `json:"requires_resolution"`
	Committed          bool     `json:"committed"`
	TurnNumber         int      `json:"turn_number"`
	Stages             []string `json:"stages"`
	// Events lists the kinds of the records the turn appended, implied
	// events included.
	Events    []string `json:"events"`
	Text      string   `json:"text,omitempty"`
	BatchHash string   `json:"batch_hash,omitempty"`
	// Error is the stage the turn failed in.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass       bool         `json:"pass"`
	CampaignID string       `json:"campaign_id"`
	Trace      []TraceEvent `json:"trace"`
	Errors     []string     `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
