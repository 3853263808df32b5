package detect

import "regexp"

// Confidence is scored in three additive bands. Each band is an explicit
// table of (pattern, weight) rules, capped at the band maximum, so weights
// stay independently verifiable instead of hiding in conditionals.
const (
	messageBandMax = 50
	toolBandMax    = 30
	contextBandMax = 20
)

// Decision thresholds over the summed confidence (0-100).
const (
	autoInitializeThreshold    = 80
	confirmInitializeThreshold = 50
	suggestOnlyThreshold       = 30

	// Minimum keyword overlap required to accept a scenario by fallback
	// matching when no explicit name appears in the message.
	minKeywordOverlap = 2
)

type scoreRule struct {
	pattern *regexp.Regexp
	weight  int
}

// triggerPatterns extract an explicit scenario name from the message. They
// double as the strongest message-band signal.
var triggerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btest\s+(?:the\s+)?([a-z0-9][a-z0-9 _-]*?)\s+scenario\b`),
	regexp.MustCompile(`(?i)\brun\s+(?:the\s+)?([a-z0-9][a-z0-9 _-]*?)\s+uat\b`),
	regexp.MustCompile(`(?i)\buat\s+scenario\s+([a-z0-9][a-z0-9_-]*)\b`),
}

const triggerWeight = 40

// messageRules score generic test-intent vocabulary in the user message.
var messageRules = []scoreRule{
	{regexp.MustCompile(`(?i)\b(verify|validate|check|test)\b`), 10},                  // verification verb
	{regexp.MustCompile(`(?i)\buat\b|\bacceptance\b|\bend.to.end\b|\be2e\b`), 10},     // uat mention
	{regexp.MustCompile(`(?i)\b(scenario|flow|walkthrough|journey)\b`), 5},            // flow vocabulary
}

// toolNameRules score the tool about to run.
var toolNameRules = []scoreRule{
	{regexp.MustCompile(`(?i)^(browser|playwright|puppeteer)[_.]`), 15}, // browser automation tool
	{regexp.MustCompile(`(?i)(click|fill|type|press|select)`), 10},      // interactive action
}

// toolTargetRules score the navigation target, when one is present.
var toolTargetRules = []scoreRule{
	{regexp.MustCompile(`(?i)/(auth|login|signin|sign-in|logout|register)`), 15}, // auth-looking path
	{regexp.MustCompile(`(?i)/(app|dashboard|admin|account|settings)`), 10},      // app-looking path
}
