package hook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ChamsBouzaiene/uatflow/internal/config"
	"github.com/ChamsBouzaiene/uatflow/internal/detect"
	"github.com/ChamsBouzaiene/uatflow/internal/enhance"
	"github.com/ChamsBouzaiene/uatflow/internal/finalize"
	"github.com/ChamsBouzaiene/uatflow/internal/scenario"
	"github.com/ChamsBouzaiene/uatflow/internal/session"
	"github.com/ChamsBouzaiene/uatflow/internal/stats"
	"github.com/ChamsBouzaiene/uatflow/internal/track"
)

// Handler serves the three hook boundaries over shared stores. One Handler
// per process invocation; all cross-invocation state lives on disk.
type Handler struct {
	cfg       *config.Config
	sessions  *session.Store
	scenarios detect.ScenarioSource
	detector  *detect.Detector
	finalizer *finalize.Finalizer
}

// NewHandler wires a handler from loaded configuration.
func NewHandler(cfg *config.Config) *Handler {
	sessions := session.NewStore(cfg.SessionsRoot())
	// The cache spares re-parsing the definition between detection and
	// initialization within one invocation. No watcher; hooks are one-shot.
	scenarios := scenario.NewCache(scenario.NewLoader(cfg.ScenarioDir))
	return &Handler{
		cfg:       cfg,
		sessions:  sessions,
		scenarios: scenarios,
		detector:  detect.New(scenarios),
		finalizer: finalize.New(cfg, sessions, stats.NewStore(cfg.SessionsRoot())),
	}
}

// PreTool handles the pre-tool-use boundary: route to enhancement when a
// session is active, otherwise run intent detection and possibly initialize
// a session. All validation and detection happens before any state is
// written, so a rejected call leaves no trace.
func (h *Handler) PreTool(ctx context.Context, req *Request) *Response {
	sess, err := h.sessions.Read(req.HostSessionID)
	active := err == nil
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return Errorf("failed to read session state: %v", err)
	}
	if active && sess.Status != session.StatusActive {
		// A terminal session awaiting finalization neither captures new calls
		// nor gets overwritten by a fresh initialization.
		return &Response{
			Action:  ActionApprove,
			Message: fmt.Sprintf("session for %q already %s; awaiting finalization", sess.Scenario, sess.Status),
		}
	}

	result := h.detector.Detect(req.Message, req.Tool, req.Params, active)

	switch result.Decision {
	case detect.DecisionEnhance:
		return h.enhanceCall(ctx, req, sess)

	case detect.DecisionError:
		h.appendLog(req.HostSessionID, "blocked %s: %s", req.Tool, result.Reason)
		return &Response{
			Action:  ActionBlock,
			Message: result.Reason,
			Data:    detectionData(result),
		}

	case detect.DecisionAutoInitialize:
		return h.initialize(ctx, req, result)

	case detect.DecisionConfirmInitialize:
		return &Response{
			Action: ActionApprove,
			Message: fmt.Sprintf(
				"This looks like a UAT run for %q (confidence %d). Say \"test %s scenario\" to start a tracked session.",
				result.Scenario, result.Confidence, result.Scenario),
			Data: detectionData(result),
		}

	case detect.DecisionSuggestOnly:
		return &Response{
			Action:  ActionApprove,
			Message: fmt.Sprintf("UAT mode is available for this kind of flow (confidence %d).", result.Confidence),
			Data:    detectionData(result),
		}

	default:
		return &Response{Action: ActionApprove, Message: "no UAT intent detected"}
	}
}

// initialize creates a session for a high-confidence detection, then
// enhances the triggering call against it.
func (h *Handler) initialize(ctx context.Context, req *Request, result detect.Result) *Response {
	sc, err := h.scenarios.Load(result.Scenario)
	if err != nil {
		return &Response{
			Action:  ActionBlock,
			Message: fmt.Sprintf("scenario %q failed to load: %v", result.Scenario, err),
		}
	}

	mode := session.ModeProduction
	if h.cfg.Mode == string(session.ModeDebug) {
		mode = session.ModeDebug
	}
	sess := session.New(req.HostSessionID, sc, mode, h.cfg.BaseURL, h.cfg.ScreenshotsDir(), h.cfg.ReportsDir())

	if err := ctx.Err(); err != nil {
		return Errorf("deadline exceeded before session initialization: %v", err)
	}
	if err := h.sessions.Write(req.HostSessionID, sess); err != nil {
		return Errorf("failed to persist new session: %v", err)
	}

	h.appendLog(req.HostSessionID, "session %s started for scenario %s (%d steps, confidence %d)",
		sess.Token, sess.Scenario, sess.TotalSteps, result.Confidence)

	resp := h.enhanceCall(ctx, req, sess)
	resp.Message = fmt.Sprintf("UAT session started for scenario %q (%d steps). %s",
		sess.Scenario, sess.TotalSteps, resp.Message)
	if resp.Data == nil {
		resp.Data = map[string]any{}
	}
	resp.Data["session_token"] = sess.Token
	resp.Data["scenario"] = sess.Scenario
	resp.Data["confidence"] = result.Confidence
	return resp
}

// enhanceCall computes enriched parameters for a call under an active
// session. Enhancement failures fall back to approving the original call;
// an enhancement problem must never block the underlying tool.
func (h *Handler) enhanceCall(ctx context.Context, req *Request, sess *session.Session) *Response {
	enhanced, err := enhance.Enhance(req.Tool, req.Params, sess, time.Now().UTC())
	if err != nil {
		log.Printf("enhancement failed for %s: %v", req.Tool, err)
		return &Response{
			Action:  ActionApprove,
			Message: fmt.Sprintf("enhancement unavailable (%v); call approved unmodified", err),
		}
	}

	sess.Touch()
	if err := ctx.Err(); err != nil {
		return Errorf("deadline exceeded before session update: %v", err)
	}
	if err := h.sessions.Write(req.HostSessionID, sess); err != nil {
		return Errorf("failed to persist session: %v", err)
	}

	h.appendLog(req.HostSessionID, "enhanced %s at step %d/%d", req.Tool, sess.CurrentStep, sess.TotalSteps)
	return &Response{
		Action:     ActionModify,
		Message:    fmt.Sprintf("parameters enriched for step %d/%d of %s", sess.CurrentStep, sess.TotalSteps, sess.Scenario),
		Parameters: enhanced,
		Data: map[string]any{
			"step":        sess.CurrentStep,
			"total_steps": sess.TotalSteps,
		},
	}
}

// PostTool folds an executed call into the active session. Without a
// session this is a success no-op: post-tool observation never fails the
// calling environment.
func (h *Handler) PostTool(ctx context.Context, req *Request) *Response {
	sess, err := h.sessions.Read(req.HostSessionID)
	if errors.Is(err, session.ErrNotFound) {
		return &Response{Action: ActionSuccess, Message: "no active session; nothing to record"}
	}
	if err != nil {
		return Errorf("failed to read session state: %v", err)
	}

	track.Record(req.Tool, req.Params, req.Result, time.Duration(req.DurationMs)*time.Millisecond, sess)

	if err := ctx.Err(); err != nil {
		return Errorf("deadline exceeded before session update: %v", err)
	}
	if err := h.sessions.Write(req.HostSessionID, sess); err != nil {
		return Errorf("failed to persist session: %v", err)
	}

	h.appendLog(req.HostSessionID, "recorded %s (%dms) -> step %d/%d status %s",
		req.Tool, req.DurationMs, sess.CurrentStep, sess.TotalSteps, sess.Status)

	return &Response{
		Action:  ActionSuccess,
		Message: fmt.Sprintf("recorded %s; step %d/%d", req.Tool, sess.CurrentStep, sess.TotalSteps),
		Data: map[string]any{
			"step":            sess.CurrentStep,
			"total_steps":     sess.TotalSteps,
			"completed_steps": sess.CompletedSteps(),
			"session_status":  string(sess.Status),
			"success_rate":    sess.Performance.SuccessRate,
		},
	}
}

// SessionEnd drives finalization. Idempotent: a second call for the same
// host-session id is a success no-op.
func (h *Handler) SessionEnd(ctx context.Context, req *Request) *Response {
	reason := req.Reason
	if reason == "" {
		reason = "session_end"
	}

	h.appendLog(req.HostSessionID, "finalizing (reason: %s)", reason)

	res, err := h.finalizer.Finalize(ctx, req.HostSessionID, reason)
	if err != nil {
		return Errorf("finalization failed: %v", err)
	}

	if !res.SessionFound {
		return &Response{Action: ActionSuccess, Message: "no session to finalize"}
	}

	data := map[string]any{
		"terminal_status": string(res.TerminalStatus),
		"report_path":     res.ReportPath,
		"archive_path":    res.ArchivePath,
	}
	if len(res.StepErrors) > 0 {
		data["step_errors"] = res.StepErrors
	}
	return &Response{
		Action:  ActionSuccess,
		Message: fmt.Sprintf("session finalized as %s", res.TerminalStatus),
		Data:    data,
	}
}

// appendLog writes a timestamped line to the per-session log file. The log
// is an operator convenience and is archived at finalization; failures are
// reported to stderr, never to the caller.
func (h *Handler) appendLog(hostSessionID, format string, args ...any) {
	dir := h.cfg.LogsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("failed to create log dir: %v", err)
		return
	}

	path := filepath.Join(dir, session.Key(hostSessionID)+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open session log: %v", err)
		return
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	if _, err := f.WriteString(line); err != nil {
		log.Printf("failed to append session log: %v", err)
	}
}

func detectionData(result detect.Result) map[string]any {
	data := map[string]any{
		"decision":      string(result.Decision),
		"confidence":    result.Confidence,
		"message_score": result.MessageScore,
		"tool_score":    result.ToolScore,
		"context_score": result.ContextScore,
	}
	if result.Scenario != "" {
		data["scenario"] = result.Scenario
	}
	return data
}
