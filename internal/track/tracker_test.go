package track

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/uatflow/internal/scenario"
	"github.com/ChamsBouzaiene/uatflow/internal/session"
)

func testSession() *session.Session {
	sc := &scenario.Scenario{
		Name: "login-flow",
		Steps: []scenario.Step{
			{Action: "navigate", Description: "Open the login page"},
			{Action: "click", Description: "Submit the login form"},
			{Action: "screenshot", Description: "Capture the dashboard"},
		},
	}
	return session.New("host-1", sc, session.ModeProduction, "https://example.test", "", "")
}

func TestRecordAppendsCallRecord(t *testing.T) {
	sess := testSession()

	Record("browser_navigate", map[string]any{"url": "/auth/login"},
		map[string]any{"success": true, "url": "https://example.test/auth/login"},
		250*time.Millisecond, sess)

	if len(sess.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(sess.ToolCalls))
	}
	call := sess.ToolCalls[0]
	if call.Tool != "browser_navigate" || !call.Success || call.DurationMs != 250 {
		t.Errorf("unexpected call record %+v", call)
	}
	if call.Step != 1 {
		t.Errorf("expected call recorded against step 1, got %d", call.Step)
	}
	if sess.Performance.CallCount != 1 {
		t.Errorf("aggregate not recomputed: %+v", sess.Performance)
	}
}

func TestStepAdvanceOnSuccess(t *testing.T) {
	sess := testSession()

	Record("browser_navigate", nil, map[string]any{"success": true}, time.Millisecond, sess)

	if sess.CurrentStep != 2 {
		t.Fatalf("expected step 2, got %d", sess.CurrentStep)
	}
	if sess.Steps[0].Status != session.StepCompleted {
		t.Errorf("expected step 1 completed, got %s", sess.Steps[0].Status)
	}
	if sess.Steps[1].Status != session.StepInProgress {
		t.Errorf("expected step 2 in_progress, got %s", sess.Steps[1].Status)
	}
	if sess.Steps[1].StartedAt == nil {
		t.Errorf("expected fresh start timestamp on step 2")
	}
}

func TestFailedCallDoesNotAdvance(t *testing.T) {
	sess := testSession()
	sess.CurrentStep = 2
	sess.Steps[0].Status = session.StepCompleted
	sess.Steps[1].Status = session.StepInProgress

	Record("browser_click", nil, map[string]any{"success": false, "error": "element not found"}, time.Millisecond, sess)

	if sess.CurrentStep != 2 {
		t.Errorf("failed call must not advance, got step %d", sess.CurrentStep)
	}
	if sess.Steps[1].Status != session.StepFailed {
		t.Errorf("expected step 2 failed, got %s", sess.Steps[1].Status)
	}
	if len(sess.Errors) != 1 || sess.Errors[0].Message != "element not found" {
		t.Errorf("expected error record, got %+v", sess.Errors)
	}
	if sess.Status != session.StatusActive {
		t.Errorf("session must stay active on tool failure, got %s", sess.Status)
	}

	// A subsequent successful click on the same step advances exactly once.
	Record("browser_click", nil, map[string]any{"success": true}, time.Millisecond, sess)

	if sess.CurrentStep != 3 {
		t.Errorf("expected retry to advance to step 3, got %d", sess.CurrentStep)
	}
	if sess.Steps[1].Status != session.StepCompleted {
		t.Errorf("expected retried step completed, got %s", sess.Steps[1].Status)
	}
}

func TestPassiveActionsDoNotAdvance(t *testing.T) {
	sess := testSession()

	Record("browser_take_screenshot", map[string]any{"name": "x"}, map[string]any{"success": true}, time.Millisecond, sess)
	Record("browser_evaluate", nil, map[string]any{"success": true, "result": "42"}, time.Millisecond, sess)

	if sess.CurrentStep != 1 {
		t.Errorf("passive actions must not advance, got step %d", sess.CurrentStep)
	}
	if sess.Steps[0].Status != session.StepInProgress {
		t.Errorf("expected step 1 still in_progress, got %s", sess.Steps[0].Status)
	}
}

func TestAdvanceOnOverride(t *testing.T) {
	sc := &scenario.Scenario{
		Name: "visual-check",
		Steps: []scenario.Step{
			{Action: "screenshot", Description: "Baseline capture", AdvanceOn: "screenshot"},
			{Action: "navigate"},
		},
	}
	sess := session.New("host-1", sc, session.ModeProduction, "", "", "")

	// With the override, a screenshot counts toward advancement.
	Record("browser_take_screenshot", map[string]any{"name": "x"}, map[string]any{"success": true}, time.Millisecond, sess)

	if sess.CurrentStep != 2 {
		t.Errorf("expected advance_on override to advance, got step %d", sess.CurrentStep)
	}
}

func TestCompletingLastStepCompletesSession(t *testing.T) {
	sc := &scenario.Scenario{
		Name:  "one-step",
		Steps: []scenario.Step{{Action: "navigate"}},
	}
	sess := session.New("host-1", sc, session.ModeProduction, "", "", "")

	Record("browser_navigate", nil, map[string]any{"success": true}, time.Millisecond, sess)

	if sess.Status != session.StatusCompleted {
		t.Errorf("expected session completed, got %s", sess.Status)
	}
	if sess.CurrentStep != 1 {
		t.Errorf("step must never advance past totalSteps, got %d", sess.CurrentStep)
	}

	// Further calls are recorded but no longer move the state machine.
	Record("browser_navigate", nil, map[string]any{"success": true}, time.Millisecond, sess)
	if sess.CurrentStep != 1 || len(sess.ToolCalls) != 2 {
		t.Errorf("post-completion call mishandled: step=%d calls=%d", sess.CurrentStep, len(sess.ToolCalls))
	}
}

func TestScreenshotRecordChecksFilesystem(t *testing.T) {
	sess := testSession()
	dir := t.TempDir()

	real := filepath.Join(dir, "real.png")
	if err := os.WriteFile(real, []byte("png-bytes"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Tool reports success and the file exists.
	Record("browser_take_screenshot", map[string]any{"name": "real", "path": real},
		map[string]any{"success": true}, time.Millisecond, sess)

	// Tool reports success but the file is absent; the divergence must be
	// observable in the record, not hidden behind the success flag.
	Record("browser_take_screenshot", map[string]any{"name": "ghost", "path": filepath.Join(dir, "ghost.png")},
		map[string]any{"success": true}, time.Millisecond, sess)

	if len(sess.Screenshots) != 2 {
		t.Fatalf("expected 2 screenshot records, got %d", len(sess.Screenshots))
	}
	if !sess.Screenshots[0].Exists || sess.Screenshots[0].SizeBytes != int64(len("png-bytes")) {
		t.Errorf("expected first screenshot to exist with size, got %+v", sess.Screenshots[0])
	}
	if sess.Screenshots[1].Exists {
		t.Errorf("expected missing file to be recorded as absent, got %+v", sess.Screenshots[1])
	}
}

func TestValidationDetection(t *testing.T) {
	sess := testSession()

	raw := `{"uat_validation":true,"type":"title-check","passed":true,"detail":"Dashboard"}`
	Record("browser_evaluate", nil, map[string]any{"success": true, "result": raw}, time.Millisecond, sess)

	if len(sess.Validations) != 1 {
		t.Fatalf("expected 1 validation record, got %d", len(sess.Validations))
	}
	v := sess.Validations[0]
	if v.Type != "title-check" || !v.Passed || v.Detail != "Dashboard" {
		t.Errorf("unexpected validation record %+v", v)
	}

	// Plain evaluate results produce no validation record.
	Record("browser_evaluate", nil, map[string]any{"success": true, "result": "plain"}, time.Millisecond, sess)
	if len(sess.Validations) != 1 {
		t.Errorf("unmarked result must not add a validation record")
	}
}

func TestAggregateTracksErrors(t *testing.T) {
	sess := testSession()

	Record("browser_navigate", nil, map[string]any{"success": true}, 100*time.Millisecond, sess)
	Record("browser_click", nil, map[string]any{"error": "timeout"}, 300*time.Millisecond, sess)

	agg := sess.Performance
	if agg.CallCount != 2 || agg.ErrorCount != 1 {
		t.Errorf("unexpected aggregate %+v", agg)
	}
	if agg.SuccessRate != 0.5 {
		t.Errorf("expected success rate 0.5, got %f", agg.SuccessRate)
	}

	// The aggregate is always a pure function of the call list.
	if got := session.RecomputeAggregate(sess.ToolCalls); got != agg {
		t.Errorf("aggregate drifted: stored %+v, recomputed %+v", agg, got)
	}
}
