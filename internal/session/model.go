package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/uatflow/internal/scenario"
)

// Status is the lifecycle status of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Mode selects how enhanced tool calls should behave.
type Mode string

const (
	ModeProduction Mode = "production"
	ModeDebug      Mode = "debug"
)

// StepStatus is the per-step progress state.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// Session is the unit of orchestration state for one UAT run. Exactly one
// active Session may exist per host-session id; it is created by the intent
// detector's initialization decision and removed only by the finalizer.
type Session struct {
	HostSessionID string    `json:"host_session_id"`
	Token         string    `json:"token"`
	Scenario      string    `json:"scenario"`
	Status        Status    `json:"status"`
	Mode          Mode      `json:"mode"`
	BaseURL       string    `json:"base_url,omitempty"`
	ScreenshotDir string    `json:"screenshot_dir,omitempty"`
	ReportDir     string    `json:"report_dir,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	LastActivity  time.Time `json:"last_activity"`

	// CurrentStep is 1-based; while the session is active exactly one step
	// is in_progress, everything before it is completed or failed, and
	// everything after it is pending.
	CurrentStep int `json:"current_step"`
	TotalSteps  int `json:"total_steps"`

	Steps       []StepRecord         `json:"steps"`
	ToolCalls   []ToolCallRecord     `json:"tool_calls"`
	Screenshots []ScreenshotRecord   `json:"screenshots"`
	Validations []ValidationRecord   `json:"validations"`
	Errors      []ErrorRecord        `json:"errors"`
	Performance PerformanceAggregate `json:"performance"`
}

// StepRecord is the session's mutable copy of one scenario step.
type StepRecord struct {
	Number      int        `json:"number"` // 1-based, contiguous
	Action      string     `json:"action"`
	Description string     `json:"description,omitempty"`
	AdvanceOn   string     `json:"advance_on,omitempty"`
	Status      StepStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`
}

// ToolCallRecord is an append-only log entry. Never mutated after append.
type ToolCallRecord struct {
	Tool       string         `json:"tool"`
	Params     map[string]any `json:"params,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Success    bool           `json:"success"`
	Timestamp  time.Time      `json:"timestamp"`
	Step       int            `json:"step"` // step active at call time
}

// ScreenshotRecord captures enough metadata to replay into a report
// without re-reading the filesystem.
type ScreenshotRecord struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Exists    bool      `json:"exists"`
	SizeBytes int64     `json:"size_bytes"`
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// ValidationRecord describes a validation-framework check detected in a
// tool result.
type ValidationRecord struct {
	Type      string    `json:"type"`
	Passed    bool      `json:"passed"`
	Detail    string    `json:"detail,omitempty"`
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorRecord captures a tool-reported error.
type ErrorRecord struct {
	Message   string    `json:"message"`
	Source    string    `json:"source"` // tool name
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// PerformanceAggregate is derived state: always a pure function of the
// ToolCalls list. Recompute it with RecomputeAggregate, never patch fields.
type PerformanceAggregate struct {
	CallCount       int     `json:"call_count"`
	TotalDurationMs int64   `json:"total_duration_ms"`
	MeanDurationMs  float64 `json:"mean_duration_ms"`
	FastestTool     string  `json:"fastest_tool,omitempty"`
	FastestMs       int64   `json:"fastest_ms"`
	SlowestTool     string  `json:"slowest_tool,omitempty"`
	SlowestMs       int64   `json:"slowest_ms"`
	ErrorCount      int     `json:"error_count"`
	SuccessRate     float64 `json:"success_rate"`
}

// New creates an active session for a loaded scenario, with step 1 already
// in progress.
func New(hostSessionID string, sc *scenario.Scenario, mode Mode, baseURL, screenshotDir, reportDir string) *Session {
	now := time.Now().UTC()

	steps := make([]StepRecord, len(sc.Steps))
	for i, step := range sc.Steps {
		steps[i] = StepRecord{
			Number:      i + 1,
			Action:      step.Action,
			Description: step.Description,
			AdvanceOn:   step.AdvanceOn,
			Status:      StepPending,
		}
	}
	steps[0].Status = StepInProgress
	steps[0].StartedAt = &now

	return &Session{
		HostSessionID: hostSessionID,
		Token:         uuid.New().String(),
		Scenario:      sc.Name,
		Status:        StatusActive,
		Mode:          mode,
		BaseURL:       baseURL,
		ScreenshotDir: screenshotDir,
		ReportDir:     reportDir,
		StartedAt:     now,
		LastActivity:  now,
		CurrentStep:   1,
		TotalSteps:    len(sc.Steps),
		Steps:         steps,
	}
}

// Step returns the record for a 1-based step number, or nil if out of range.
func (s *Session) Step(number int) *StepRecord {
	if number < 1 || number > len(s.Steps) {
		return nil
	}
	return &s.Steps[number-1]
}

// CompletedSteps counts steps whose status is completed.
func (s *Session) CompletedSteps() int {
	n := 0
	for _, step := range s.Steps {
		if step.Status == StepCompleted {
			n++
		}
	}
	return n
}

// FailedSteps counts steps whose status is failed.
func (s *Session) FailedSteps() int {
	n := 0
	for _, step := range s.Steps {
		if step.Status == StepFailed {
			n++
		}
	}
	return n
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch() {
	s.LastActivity = time.Now().UTC()
}

// RecomputeAggregate derives a PerformanceAggregate from a tool-call list.
// It is the only way an aggregate should be produced, so the aggregate can
// never drift from the underlying records.
func RecomputeAggregate(calls []ToolCallRecord) PerformanceAggregate {
	agg := PerformanceAggregate{CallCount: len(calls)}
	if len(calls) == 0 {
		return agg
	}

	agg.FastestMs = calls[0].DurationMs
	agg.SlowestMs = calls[0].DurationMs
	agg.FastestTool = calls[0].Tool
	agg.SlowestTool = calls[0].Tool

	successes := 0
	for _, call := range calls {
		agg.TotalDurationMs += call.DurationMs
		if call.DurationMs < agg.FastestMs {
			agg.FastestMs = call.DurationMs
			agg.FastestTool = call.Tool
		}
		if call.DurationMs > agg.SlowestMs {
			agg.SlowestMs = call.DurationMs
			agg.SlowestTool = call.Tool
		}
		if call.Success {
			successes++
		} else {
			agg.ErrorCount++
		}
	}

	agg.MeanDurationMs = float64(agg.TotalDurationMs) / float64(len(calls))
	agg.SuccessRate = float64(successes) / float64(len(calls))
	return agg
}
