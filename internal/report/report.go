package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/uatflow/internal/session"
)

// TerminalStatus is the classification computed once, at finalize time.
type TerminalStatus string

const (
	TerminalCompleted  TerminalStatus = "completed"
	TerminalFailed     TerminalStatus = "failed"
	TerminalIncomplete TerminalStatus = "incomplete"
)

// Report is the immutable fold of a session's final state. Generated once
// per session; never rewritten.
type Report struct {
	Metadata    Metadata                     `json:"metadata"`
	Session     SessionSummary               `json:"session"`
	Execution   ExecutionSummary             `json:"execution"`
	Performance session.PerformanceAggregate `json:"performance"`
	Validation  ValidationSummary            `json:"validation"`
	Screenshots ScreenshotSummary            `json:"screenshots"`

	Errors          []session.ErrorRecord    `json:"errors"`
	ToolCalls       []session.ToolCallRecord `json:"tool_calls"`
	Recommendations []string                 `json:"recommendations"`
}

type Metadata struct {
	ReportID    string    `json:"report_id"`
	GeneratedAt time.Time `json:"generated_at"`
}

type SessionSummary struct {
	HostSessionID     string       `json:"host_session_id"`
	Token             string       `json:"token"`
	Scenario          string       `json:"scenario"`
	Mode              session.Mode `json:"mode"`
	StartedAt         time.Time    `json:"started_at"`
	EndedAt           time.Time    `json:"ended_at"`
	DurationMs        int64        `json:"duration_ms"`
	TerminationReason string       `json:"termination_reason"`
}

type ExecutionSummary struct {
	TotalSteps     int            `json:"total_steps"`
	CompletedSteps int            `json:"completed_steps"`
	FailedSteps    int            `json:"failed_steps"`
	CompletionRate float64        `json:"completion_rate"`
	TerminalStatus TerminalStatus `json:"terminal_status"`
}

type ValidationSummary struct {
	Total       int                        `json:"total"`
	Passed      int                        `json:"passed"`
	SuccessRate float64                    `json:"success_rate"`
	Checks      []session.ValidationRecord `json:"checks,omitempty"`
}

type ScreenshotSummary struct {
	Total   int                        `json:"total"`
	Missing int                        `json:"missing"` // reported taken but absent on disk
	Items   []session.ScreenshotRecord `json:"items,omitempty"`
}

// DeriveTerminalStatus classifies a finished session: completed when every
// step completed, failed when any error was recorded, incomplete otherwise.
func DeriveTerminalStatus(sess *session.Session) TerminalStatus {
	if sess.CompletedSteps() == sess.TotalSteps && sess.TotalSteps > 0 {
		return TerminalCompleted
	}
	if len(sess.Errors) > 0 {
		return TerminalFailed
	}
	return TerminalIncomplete
}

// Build folds a session's final state into the report schema.
func Build(sess *session.Session, terminationReason string, now time.Time) *Report {
	completed := sess.CompletedSteps()
	completionRate := 0.0
	if sess.TotalSteps > 0 {
		completionRate = float64(completed) / float64(sess.TotalSteps)
	}

	validationPassed := 0
	for _, v := range sess.Validations {
		if v.Passed {
			validationPassed++
		}
	}
	validationRate := 1.0
	if len(sess.Validations) > 0 {
		validationRate = float64(validationPassed) / float64(len(sess.Validations))
	}

	missingShots := 0
	for _, shot := range sess.Screenshots {
		if !shot.Exists {
			missingShots++
		}
	}

	rep := &Report{
		Metadata: Metadata{
			ReportID:    uuid.New().String(),
			GeneratedAt: now,
		},
		Session: SessionSummary{
			HostSessionID:     sess.HostSessionID,
			Token:             sess.Token,
			Scenario:          sess.Scenario,
			Mode:              sess.Mode,
			StartedAt:         sess.StartedAt,
			EndedAt:           now,
			DurationMs:        now.Sub(sess.StartedAt).Milliseconds(),
			TerminationReason: terminationReason,
		},
		Execution: ExecutionSummary{
			TotalSteps:     sess.TotalSteps,
			CompletedSteps: completed,
			FailedSteps:    sess.FailedSteps(),
			CompletionRate: completionRate,
			TerminalStatus: DeriveTerminalStatus(sess),
		},
		Performance: sess.Performance,
		Validation: ValidationSummary{
			Total:       len(sess.Validations),
			Passed:      validationPassed,
			SuccessRate: validationRate,
			Checks:      sess.Validations,
		},
		Screenshots: ScreenshotSummary{
			Total:   len(sess.Screenshots),
			Missing: missingShots,
			Items:   sess.Screenshots,
		},
		Errors:    sess.Errors,
		ToolCalls: sess.ToolCalls,
	}

	rep.Recommendations = recommend(rep)
	return rep
}

// recommend applies the fixed rule set over the assembled summaries.
func recommend(rep *Report) []string {
	var recs []string
	if rep.Execution.CompletionRate < 1.0 {
		recs = append(recs, "Scenario did not complete all steps; re-run the UAT scenario.")
	}
	if len(rep.Errors) > 0 {
		recs = append(recs, "Errors were recorded during the run; review the error log before release.")
	}
	if rep.Validation.Total > 0 && rep.Validation.SuccessRate < 0.8 {
		recs = append(recs, "Validation success rate is below 80%; investigate failing validations.")
	}
	if rep.Screenshots.Missing > 0 {
		recs = append(recs, "Some screenshots were reported taken but are missing on disk; check the capture path.")
	}
	if rep.Screenshots.Total == 0 {
		recs = append(recs, "No screenshots were captured; add visual checkpoints to the scenario.")
	}
	if len(recs) == 0 {
		recs = append(recs, "All steps completed cleanly; no follow-up required.")
	}
	return recs
}
