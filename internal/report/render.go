package report

import (
	"fmt"
	"strings"
)

// Markdown renders the report as a human-readable document suitable for
// archiving next to the JSON form.
func (r *Report) Markdown() string {
	var sb strings.Builder

	sb.WriteString("# UAT Session Report\n\n")
	sb.WriteString(fmt.Sprintf("**Report**: %s  \n", r.Metadata.ReportID))
	sb.WriteString(fmt.Sprintf("**Generated**: %s\n\n", r.Metadata.GeneratedAt.Format("2006-01-02 15:04:05 MST")))

	sb.WriteString("## Session\n\n")
	sb.WriteString(fmt.Sprintf("- Scenario: `%s`\n", r.Session.Scenario))
	sb.WriteString(fmt.Sprintf("- Host session: `%s` (token `%s`)\n", r.Session.HostSessionID, r.Session.Token))
	sb.WriteString(fmt.Sprintf("- Mode: %s\n", r.Session.Mode))
	sb.WriteString(fmt.Sprintf("- Duration: %.1fs\n", float64(r.Session.DurationMs)/1000))
	sb.WriteString(fmt.Sprintf("- Termination: %s\n\n", r.Session.TerminationReason))

	sb.WriteString("## Execution\n\n")
	sb.WriteString(fmt.Sprintf("- Status: **%s**\n", r.Execution.TerminalStatus))
	sb.WriteString(fmt.Sprintf("- Steps: %d/%d completed (%.0f%%), %d failed\n\n",
		r.Execution.CompletedSteps, r.Execution.TotalSteps,
		r.Execution.CompletionRate*100, r.Execution.FailedSteps))

	sb.WriteString("## Performance\n\n")
	sb.WriteString(fmt.Sprintf("- Tool calls: %d (%d errors, %.0f%% success)\n",
		r.Performance.CallCount, r.Performance.ErrorCount, r.Performance.SuccessRate*100))
	if r.Performance.CallCount > 0 {
		sb.WriteString(fmt.Sprintf("- Mean call duration: %.0fms\n", r.Performance.MeanDurationMs))
		sb.WriteString(fmt.Sprintf("- Fastest: %s (%dms), slowest: %s (%dms)\n",
			r.Performance.FastestTool, r.Performance.FastestMs,
			r.Performance.SlowestTool, r.Performance.SlowestMs))
	}
	sb.WriteString("\n")

	if r.Validation.Total > 0 {
		sb.WriteString("## Validations\n\n")
		sb.WriteString(fmt.Sprintf("- %d checks, %d passed (%.0f%%)\n\n",
			r.Validation.Total, r.Validation.Passed, r.Validation.SuccessRate*100))
		for _, v := range r.Validation.Checks {
			mark := "✅"
			if !v.Passed {
				mark = "❌"
			}
			sb.WriteString(fmt.Sprintf("- %s step %d: %s: %s\n", mark, v.Step, v.Type, v.Detail))
		}
		sb.WriteString("\n")
	}

	if r.Screenshots.Total > 0 {
		sb.WriteString("## Screenshots\n\n")
		for _, shot := range r.Screenshots.Items {
			status := "missing"
			if shot.Exists {
				status = fmt.Sprintf("%d bytes", shot.SizeBytes)
			}
			sb.WriteString(fmt.Sprintf("- step %d: `%s` (%s)\n", shot.Step, shot.Name, status))
		}
		sb.WriteString("\n")
	}

	if len(r.Errors) > 0 {
		sb.WriteString("## Errors\n\n")
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("- step %d [%s]: %s\n", e.Step, e.Source, e.Message))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Recommendations\n\n")
	for _, rec := range r.Recommendations {
		sb.WriteString(fmt.Sprintf("- %s\n", rec))
	}

	return sb.String()
}
