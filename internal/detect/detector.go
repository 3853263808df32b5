package detect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/uatflow/internal/scenario"
)

// Decision classifies whether and how to engage UAT orchestration for a
// pending tool call.
type Decision string

const (
	// DecisionEnhance means an active session exists; the call should be
	// routed to the parameter enhancer without re-scoring.
	DecisionEnhance Decision = "enhance"
	// DecisionAutoInitialize means high confidence with a valid scenario.
	DecisionAutoInitialize Decision = "auto_initialize"
	// DecisionConfirmInitialize means medium confidence; ask before starting.
	DecisionConfirmInitialize Decision = "confirm_initialize"
	// DecisionSuggestOnly means low confidence; mention the option, do nothing.
	DecisionSuggestOnly Decision = "suggest_only"
	// DecisionAllowNormal means the call is unrelated to UAT automation.
	DecisionAllowNormal Decision = "allow_normal"
	// DecisionError means a scenario was implied but failed to load; the
	// calling tool invocation must be blocked, never silently downgraded.
	DecisionError Decision = "error"
)

// Result is the detector's classification plus its score breakdown.
type Result struct {
	Decision     Decision `json:"decision"`
	Confidence   int      `json:"confidence"`
	Scenario     string   `json:"scenario,omitempty"`
	MessageScore int      `json:"message_score"`
	ToolScore    int      `json:"tool_score"`
	ContextScore int      `json:"context_score"`
	Reason       string   `json:"reason"`
}

// ScenarioSource resolves scenario names. Satisfied by *scenario.Loader
// and *scenario.Cache.
type ScenarioSource interface {
	Load(name string) (*scenario.Scenario, error)
	List() ([]string, error)
}

// Detector computes intent decisions. Detection itself is stateless: for a
// fixed scenario set, identical inputs always yield an identical Result.
type Detector struct {
	src ScenarioSource
}

// New creates a detector over a scenario source.
func New(src ScenarioSource) *Detector {
	return &Detector{src: src}
}

// Detect classifies a pending tool call. An active session always wins over
// new-intent detection, which keeps exactly one session in play and avoids
// re-scoring mid-flow.
func (d *Detector) Detect(userMessage, toolName string, toolParams map[string]any, hasActiveSession bool) Result {
	if hasActiveSession {
		return Result{
			Decision: DecisionEnhance,
			Reason:   "active session; routing to parameter enhancement",
		}
	}

	target := navigationTarget(toolParams)
	name, explicit := extractScenarioName(userMessage)

	var sc *scenario.Scenario
	if explicit {
		loaded, err := d.src.Load(name)
		if err != nil {
			return Result{
				Decision: DecisionError,
				Scenario: name,
				Reason:   fmt.Sprintf("scenario %q was requested but failed to load: %v", name, err),
			}
		}
		sc = loaded
	} else {
		sc = d.bestKeywordMatch(userMessage)
		if sc != nil {
			name = sc.Name
		} else {
			name = ""
		}
	}

	msgScore := messageBandScore(userMessage, sc)
	toolScore := toolBandScore(toolName, target)
	ctxScore := contextBandScore(userMessage, target)
	total := msgScore + toolScore + ctxScore

	res := Result{
		Confidence:   total,
		Scenario:     name,
		MessageScore: msgScore,
		ToolScore:    toolScore,
		ContextScore: ctxScore,
	}

	switch {
	case total >= autoInitializeThreshold && sc != nil:
		res.Decision = DecisionAutoInitialize
		res.Reason = fmt.Sprintf("high confidence (%d) with scenario %q", total, name)
	case total >= confirmInitializeThreshold:
		res.Decision = DecisionConfirmInitialize
		res.Reason = fmt.Sprintf("medium confidence (%d); confirmation needed", total)
	case total >= suggestOnlyThreshold:
		res.Decision = DecisionSuggestOnly
		res.Reason = fmt.Sprintf("low confidence (%d); suggesting UAT mode only", total)
	default:
		res.Decision = DecisionAllowNormal
		res.Reason = fmt.Sprintf("confidence %d below all thresholds", total)
	}
	return res
}

// extractScenarioName pulls an explicitly named scenario out of the message.
// Multi-word names are normalized to the kebab-case used by definition files.
func extractScenarioName(message string) (string, bool) {
	for _, pattern := range triggerPatterns {
		m := pattern.FindStringSubmatch(message)
		if len(m) < 2 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(m[1]))
		name = strings.Join(strings.Fields(name), "-")
		name = strings.ReplaceAll(name, "_", "-")
		if name != "" {
			return name, true
		}
	}
	return "", false
}

// bestKeywordMatch scores message-token overlap against every loadable
// scenario and returns the best match above the minimum threshold.
func (d *Detector) bestKeywordMatch(message string) *scenario.Scenario {
	names, err := d.src.List()
	if err != nil || len(names) == 0 {
		return nil
	}
	sort.Strings(names) // stable tie-breaking regardless of source order

	msgTokens := tokenSet(message)

	var best *scenario.Scenario
	bestOverlap := 0
	for _, name := range names {
		sc, err := d.src.Load(name)
		if err != nil {
			continue
		}
		overlap := 0
		for _, kw := range sc.Keywords() {
			if msgTokens[kw] {
				overlap++
			}
		}
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = sc
		}
	}

	if bestOverlap < minKeywordOverlap {
		return nil
	}
	return best
}

func messageBandScore(message string, sc *scenario.Scenario) int {
	score := 0
	for _, pattern := range triggerPatterns {
		if pattern.MatchString(message) {
			score += triggerWeight
			break
		}
	}
	for _, rule := range messageRules {
		if rule.pattern.MatchString(message) {
			score += rule.weight
		}
	}
	if sc != nil {
		msgTokens := tokenSet(message)
		for _, kw := range sc.Keywords() {
			if msgTokens[kw] {
				score += 2
			}
		}
	}
	return capScore(score, messageBandMax)
}

func toolBandScore(toolName, target string) int {
	score := 0
	for _, rule := range toolNameRules {
		if rule.pattern.MatchString(toolName) {
			score += rule.weight
		}
	}
	if target != "" {
		for _, rule := range toolTargetRules {
			if rule.pattern.MatchString(target) {
				score += rule.weight
			}
		}
	}
	return capScore(score, toolBandMax)
}

// contextBandScore grants a correlation bonus when the message's apparent
// subject shows up in the tool's navigation target.
func contextBandScore(message, target string) int {
	if target == "" {
		return 0
	}
	lowTarget := strings.ToLower(target)
	score := 0
	for token := range tokenSet(message) {
		if len(token) < 4 {
			continue
		}
		if strings.Contains(lowTarget, token) {
			score += 10
		}
	}
	return capScore(score, contextBandMax)
}

// navigationTarget extracts the URL-ish parameter from a tool call.
func navigationTarget(params map[string]any) string {
	for _, key := range []string{"url", "target", "href"} {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	for _, f := range fields {
		if len(f) >= 3 {
			set[f] = true
		}
	}
	return set
}

func capScore(score, max int) int {
	if score > max {
		return max
	}
	return score
}
