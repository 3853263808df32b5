package report

import (
	"strings"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/uatflow/internal/scenario"
	"github.com/ChamsBouzaiene/uatflow/internal/session"
)

func finishedSession() *session.Session {
	sc := &scenario.Scenario{
		Name: "login-flow",
		Steps: []scenario.Step{
			{Action: "navigate"},
			{Action: "click"},
		},
	}
	sess := session.New("host-1", sc, session.ModeProduction, "https://example.test", "", "")
	sess.Steps[0].Status = session.StepCompleted
	sess.Steps[1].Status = session.StepCompleted
	sess.CurrentStep = 2
	sess.Status = session.StatusCompleted
	sess.ToolCalls = []session.ToolCallRecord{
		{Tool: "browser_navigate", DurationMs: 200, Success: true, Step: 1},
		{Tool: "browser_click", DurationMs: 100, Success: true, Step: 2},
	}
	sess.Performance = session.RecomputeAggregate(sess.ToolCalls)
	return sess
}

func TestBuildCompleted(t *testing.T) {
	sess := finishedSession()
	rep := Build(sess, "session_end", time.Now().UTC())

	if rep.Metadata.ReportID == "" {
		t.Errorf("expected report id")
	}
	if rep.Execution.TerminalStatus != TerminalCompleted {
		t.Errorf("expected completed, got %s", rep.Execution.TerminalStatus)
	}
	if rep.Execution.CompletionRate != 1.0 {
		t.Errorf("expected completion rate 1.0, got %f", rep.Execution.CompletionRate)
	}
	if rep.Session.Scenario != "login-flow" || rep.Session.TerminationReason != "session_end" {
		t.Errorf("unexpected session summary %+v", rep.Session)
	}
	if len(rep.ToolCalls) != 2 {
		t.Errorf("expected raw tool calls carried over, got %d", len(rep.ToolCalls))
	}

	// A clean run still gets the no-screenshot nudge, nothing else negative.
	for _, rec := range rep.Recommendations {
		if strings.Contains(rec, "re-run") || strings.Contains(rec, "error log") {
			t.Errorf("unexpected recommendation on clean run: %s", rec)
		}
	}
}

func TestDeriveTerminalStatus(t *testing.T) {
	sess := finishedSession()
	if got := DeriveTerminalStatus(sess); got != TerminalCompleted {
		t.Errorf("expected completed, got %s", got)
	}

	sess.Steps[1].Status = session.StepFailed
	sess.Errors = append(sess.Errors, session.ErrorRecord{Message: "boom"})
	if got := DeriveTerminalStatus(sess); got != TerminalFailed {
		t.Errorf("expected failed, got %s", got)
	}

	sess.Errors = nil
	if got := DeriveTerminalStatus(sess); got != TerminalIncomplete {
		t.Errorf("expected incomplete, got %s", got)
	}
}

func TestRecommendations(t *testing.T) {
	sess := finishedSession()
	sess.Steps[1].Status = session.StepFailed
	sess.Errors = append(sess.Errors, session.ErrorRecord{Message: "timeout", Source: "browser_click"})
	sess.Validations = []session.ValidationRecord{
		{Type: "title-check", Passed: false},
		{Type: "url-check", Passed: true},
	}

	rep := Build(sess, "tool_failure", time.Now().UTC())

	joined := strings.Join(rep.Recommendations, "\n")
	for _, want := range []string{"re-run", "error log", "80%"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected recommendation mentioning %q, got:\n%s", want, joined)
		}
	}
	if rep.Validation.SuccessRate != 0.5 {
		t.Errorf("expected validation rate 0.5, got %f", rep.Validation.SuccessRate)
	}
}

func TestMarkdownRender(t *testing.T) {
	sess := finishedSession()
	sess.Screenshots = []session.ScreenshotRecord{
		{Name: "s1-login-flow-step2-dashboard-143005", Exists: true, SizeBytes: 1234, Step: 2},
	}
	rep := Build(sess, "session_end", time.Now().UTC())

	md := rep.Markdown()
	for _, want := range []string{
		"# UAT Session Report",
		"login-flow",
		"## Execution",
		"## Performance",
		"## Screenshots",
		"## Recommendations",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}
