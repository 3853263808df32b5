package track

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/uatflow/internal/enhance"
	"github.com/ChamsBouzaiene/uatflow/internal/session"
)

// Record folds one executed tool call into the session: appends the call
// record, extracts screenshot/validation/error artifacts, recomputes the
// performance aggregate, and advances the step state machine. The session
// is mutated in place; the caller persists it.
func Record(toolName string, toolParams, toolResult map[string]any, duration time.Duration, sess *session.Session) {
	now := time.Now().UTC()
	step := sess.CurrentStep
	errMsg := resultError(toolResult)
	success := resultSuccess(toolResult) && errMsg == ""

	// The call record is appended regardless of outcome, never mutated after.
	sess.ToolCalls = append(sess.ToolCalls, session.ToolCallRecord{
		Tool:       toolName,
		Params:     toolParams,
		Result:     toolResult,
		DurationMs: duration.Milliseconds(),
		Success:    success,
		Timestamp:  now,
		Step:       step,
	})

	kind := enhance.Classify(toolName)

	if kind == enhance.KindScreenshot {
		sess.Screenshots = append(sess.Screenshots, screenshotRecord(toolParams, step, now))
	}

	if kind == enhance.KindEvaluate || kind == enhance.KindNavigate {
		if v, ok := parseValidation(toolResult); ok {
			v.Step = step
			v.Timestamp = now
			sess.Validations = append(sess.Validations, v)
		}
	}

	if errMsg != "" {
		sess.Errors = append(sess.Errors, session.ErrorRecord{
			Message:   errMsg,
			Source:    toolName,
			Step:      step,
			Timestamp: now,
		})
	}

	sess.Performance = session.RecomputeAggregate(sess.ToolCalls)
	Advance(sess, toolName, success, now)
	sess.Touch()
}

// Advance is the single step-transition function: (current state, outcome)
// to next state. Only a successful state-changing action completes the
// current step; a failure marks it failed and stays put so the caller can
// retry or abandon explicitly. Completing the last step completes the
// session. The current step number is non-decreasing and never exceeds the
// total step count.
func Advance(sess *session.Session, toolName string, success bool, now time.Time) {
	if sess.Status != session.StatusActive {
		return
	}
	step := sess.Step(sess.CurrentStep)
	if step == nil {
		return
	}

	if !success {
		if countsForAdvance(step, toolName) {
			step.Status = session.StepFailed
			ended := now
			step.EndedAt = &ended
			if step.StartedAt != nil {
				step.DurationMs = now.Sub(*step.StartedAt).Milliseconds()
			}
		}
		return
	}

	if !countsForAdvance(step, toolName) {
		return
	}

	step.Status = session.StepCompleted
	ended := now
	step.EndedAt = &ended
	if step.StartedAt != nil {
		step.DurationMs = now.Sub(*step.StartedAt).Milliseconds()
	}

	if sess.CurrentStep >= sess.TotalSteps {
		sess.Status = session.StatusCompleted
		return
	}

	sess.CurrentStep++
	next := sess.Step(sess.CurrentStep)
	next.Status = session.StepInProgress
	started := now
	next.StartedAt = &started
}

// countsForAdvance decides whether a tool call counts toward completing the
// step. A step may pin the action explicitly via advance_on; otherwise the
// default rule applies: state-changing actions (navigate, click, fill)
// count, passive inspection (screenshot, evaluate) does not.
func countsForAdvance(step *session.StepRecord, toolName string) bool {
	kind := enhance.Classify(toolName)
	if step.AdvanceOn != "" {
		return kind == enhance.Classify(step.AdvanceOn) || strings.EqualFold(step.AdvanceOn, toolName)
	}
	switch kind {
	case enhance.KindNavigate, enhance.KindClick, enhance.KindFill:
		return true
	default:
		return false
	}
}

// screenshotRecord checks the filesystem directly: a tool can report
// success while the file is absent, and that divergence must stay visible
// in the record.
func screenshotRecord(params map[string]any, step int, now time.Time) session.ScreenshotRecord {
	rec := session.ScreenshotRecord{Step: step, Timestamp: now}
	rec.Name, _ = params["name"].(string)
	rec.Path, _ = params["path"].(string)

	if rec.Path != "" {
		if info, err := os.Stat(rec.Path); err == nil && !info.IsDir() {
			rec.Exists = true
			rec.SizeBytes = info.Size()
		}
	}
	return rec
}

// parseValidation picks a tagged validation outcome out of a tool result.
// The enhancer wraps evaluate scripts to return a JSON object carrying the
// marker; navigation results may carry it verbatim.
func parseValidation(result map[string]any) (session.ValidationRecord, bool) {
	raw, _ := result["result"].(string)
	if raw == "" || !strings.Contains(raw, enhance.ValidationMarker) {
		return session.ValidationRecord{}, false
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return session.ValidationRecord{}, false
	}

	var payload struct {
		Marker bool   `json:"uat_validation"`
		Type   string `json:"type"`
		Passed bool   `json:"passed"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil || !payload.Marker {
		return session.ValidationRecord{}, false
	}

	checkType := payload.Type
	if checkType == "" {
		checkType = "page-check"
	}
	return session.ValidationRecord{
		Type:   checkType,
		Passed: payload.Passed,
		Detail: payload.Detail,
	}, true
}

func resultSuccess(result map[string]any) bool {
	if v, ok := result["success"].(bool); ok {
		return v
	}
	return true
}

func resultError(result map[string]any) string {
	if v, ok := result["error"].(string); ok {
		return v
	}
	return ""
}
