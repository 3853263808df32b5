package enhance

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/uatflow/internal/session"
)

// Action-specific timeouts in milliseconds. Navigation waits are longer
// than click waits, which are longer than the generic default.
const (
	NavigateTimeoutMs = 10000
	ClickTimeoutMs    = 5000
	FillTimeoutMs     = 5000
	DefaultTimeoutMs  = 3000
)

// Wait conditions attached per action kind.
const (
	NavigateWaitUntil = "networkidle"
	DefaultWaitUntil  = "load"
)

// Kind is the tool category the enhancer dispatches on.
type Kind string

const (
	KindNavigate   Kind = "navigate"
	KindScreenshot Kind = "screenshot"
	KindClick      Kind = "click"
	KindFill       Kind = "fill"
	KindEvaluate   Kind = "evaluate"
	KindOther      Kind = "other"
)

// Classify maps a tool name onto its category.
func Classify(toolName string) Kind {
	name := strings.ToLower(toolName)
	switch {
	case strings.Contains(name, "navigate") || strings.Contains(name, "goto"):
		return KindNavigate
	case strings.Contains(name, "screenshot"):
		return KindScreenshot
	case strings.Contains(name, "click"):
		return KindClick
	case strings.Contains(name, "fill") || strings.Contains(name, "type"):
		return KindFill
	case strings.Contains(name, "evaluate") || strings.Contains(name, "snapshot"):
		return KindEvaluate
	default:
		return KindOther
	}
}

// Enhance rewrites a tool call's arguments from session context. It performs
// no I/O against the external tool; the caller applies the returned
// parameters before invocation. The input map is not mutated.
//
// Every call, matched or not, gets a uniform metadata stamp for downstream
// correlation. The one filesystem side effect is idempotent creation of the
// screenshot directory, which must exist before the call proceeds.
func Enhance(toolName string, toolParams map[string]any, sess *session.Session, now time.Time) (map[string]any, error) {
	params := make(map[string]any, len(toolParams)+4)
	for k, v := range toolParams {
		params[k] = v
	}

	switch Classify(toolName) {
	case KindNavigate:
		if raw, ok := params["url"].(string); ok {
			params["url"] = ResolveURL(sess.BaseURL, raw)
		}
		params["timeout"] = NavigateTimeoutMs
		params["waitUntil"] = NavigateWaitUntil
		params["headless"] = sess.Mode != session.ModeDebug

	case KindScreenshot:
		label, _ := params["name"].(string)
		name := ScreenshotName(sess.HostSessionID, sess.Scenario, sess.CurrentStep, label, now)
		params["name"] = name
		if sess.ScreenshotDir != "" {
			// The directory must exist before the capture runs.
			if err := os.MkdirAll(sess.ScreenshotDir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
			}
			params["path"] = filepath.Join(sess.ScreenshotDir, name+".png")
		}

	case KindClick:
		params["timeout"] = ClickTimeoutMs
		params["waitUntil"] = DefaultWaitUntil

	case KindFill:
		params["timeout"] = FillTimeoutMs
		params["waitUntil"] = DefaultWaitUntil

	case KindEvaluate:
		if script, ok := params["script"].(string); ok && script != "" {
			params["script"] = WrapValidationScript(script, checkTypeFor(sess))
		}

	case KindOther:
		// Pass through unchanged apart from the metadata stamp.
	}

	params["_uat"] = map[string]any{
		"tool":      toolName,
		"session":   sess.Token,
		"scenario":  sess.Scenario,
		"step":      sess.CurrentStep,
		"timestamp": now.UTC().Format(time.RFC3339),
	}

	return params, nil
}

// ValidationMarker tags script results so the progress tracker can pick
// validation outcomes out of raw tool results.
const ValidationMarker = "uat_validation"

// WrapValidationScript wraps a caller-supplied page script so its result
// comes back as a tagged validation outcome instead of a bare value.
func WrapValidationScript(script, checkType string) string {
	if strings.Contains(script, ValidationMarker) {
		return script // already wrapped
	}
	return fmt.Sprintf(
		"(() => { const __r = (%s); return JSON.stringify({%s: true, type: %q, passed: Boolean(__r), detail: String(__r)}); })()",
		script, ValidationMarker, checkType)
}

func checkTypeFor(sess *session.Session) string {
	if step := sess.Step(sess.CurrentStep); step != nil && step.Description != "" {
		return sanitizeLabel(step.Description)
	}
	return "page-check"
}

// ResolveURL resolves a navigation target against the session base URL.
// Absolute URLs pass through verbatim; a leading separator concatenates to
// the base; bare relative paths are joined with an inserted separator. An
// empty base leaves the target untouched.
func ResolveURL(baseURL, target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if baseURL == "" {
		return target
	}
	base := strings.TrimRight(baseURL, "/")
	if strings.HasPrefix(target, "/") {
		return base + target
	}
	return base + "/" + target
}

// ScreenshotName synthesizes a filesystem-safe, collision-resistant,
// sortable artifact name: <session>-<scenario>-step<N>-<label>-<HHMMSS>.
func ScreenshotName(sessionID, scenarioName string, step int, label string, now time.Time) string {
	if label == "" {
		label = "capture"
	}
	return fmt.Sprintf("%s-%s-step%d-%s-%s",
		sanitizeLabel(sessionID),
		sanitizeLabel(scenarioName),
		step,
		sanitizeLabel(label),
		now.Format("150405"))
}

// sanitizeLabel reduces caller-supplied text to [a-z0-9-], collapsing runs.
func sanitizeLabel(label string) string {
	var sb strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(label) {
		switch {
		case 'a' <= r && r <= 'z', '0' <= r && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && sb.Len() > 0 {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(sb.String(), "-")
}
