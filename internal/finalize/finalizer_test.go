package finalize

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/uatflow/internal/config"
	"github.com/ChamsBouzaiene/uatflow/internal/report"
	"github.com/ChamsBouzaiene/uatflow/internal/scenario"
	"github.com/ChamsBouzaiene/uatflow/internal/session"
	"github.com/ChamsBouzaiene/uatflow/internal/stats"
)

func testFinalizer(t *testing.T) (*Finalizer, *session.Store, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{StateDir: dir, ScenarioDir: filepath.Join(dir, "scenarios"), Mode: "production"}
	store := session.NewStore(cfg.SessionsRoot())
	return New(cfg, store, stats.NewStore(cfg.SessionsRoot())), store, cfg
}

func activeSession(t *testing.T, store *session.Store, hostID string) *session.Session {
	t.Helper()
	sc := &scenario.Scenario{
		Name: "login-flow",
		Steps: []scenario.Step{
			{Action: "navigate"},
			{Action: "click"},
		},
	}
	sess := session.New(hostID, sc, session.ModeProduction, "https://example.test", "", "")
	if err := store.Write(hostID, sess); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	return sess
}

func TestFinalizeNoSessionIsNoOp(t *testing.T) {
	f, _, _ := testFinalizer(t)

	res, err := f.Finalize(context.Background(), "ghost", "session_end")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if res.SessionFound {
		t.Errorf("expected no session found")
	}
	if res.ReportPath != "" || res.ArchivePath != "" {
		t.Errorf("expected zero artifacts, got %+v", res)
	}
}

func TestFinalizeHappyPath(t *testing.T) {
	f, store, cfg := testFinalizer(t)
	sess := activeSession(t, store, "host-1")

	// Complete both steps so the terminal status is completed.
	sess.Steps[0].Status = session.StepCompleted
	sess.Steps[1].Status = session.StepCompleted
	sess.CurrentStep = 2
	sess.ToolCalls = []session.ToolCallRecord{{Tool: "browser_navigate", DurationMs: 100, Success: true, Step: 1}}
	sess.Performance = session.RecomputeAggregate(sess.ToolCalls)
	if err := store.Write("host-1", sess); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	res, err := f.Finalize(context.Background(), "host-1", "session_end")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if !res.SessionFound {
		t.Fatalf("expected session found")
	}
	if res.TerminalStatus != report.TerminalCompleted {
		t.Errorf("expected completed, got %s", res.TerminalStatus)
	}
	if len(res.StepErrors) != 0 {
		t.Errorf("expected no sub-step errors, got %v", res.StepErrors)
	}

	// Report written.
	if _, err := os.Stat(res.ReportPath); err != nil {
		t.Errorf("expected report at %s: %v", res.ReportPath, err)
	}
	if !strings.Contains(res.ReportPath, "report-login-flow-") {
		t.Errorf("unexpected report name %s", res.ReportPath)
	}

	// Archive bundled under the month bucket with state + metadata.
	wantBucket := filepath.Join(cfg.ArchiveRoot(), time.Now().UTC().Format("2006-01"), sess.Token)
	if res.ArchivePath != wantBucket {
		t.Errorf("expected archive at %s, got %s", wantBucket, res.ArchivePath)
	}
	for _, name := range []string{"session.json", "archive.json"} {
		if _, err := os.Stat(filepath.Join(res.ArchivePath, name)); err != nil {
			t.Errorf("expected archived %s: %v", name, err)
		}
	}

	// Transient session removed.
	if store.Exists("host-1") {
		t.Errorf("expected session file removed after finalize")
	}

	// Stats updated.
	st, err := stats.NewStore(cfg.SessionsRoot()).Scenario("login-flow")
	if err != nil {
		t.Fatalf("stats read failed: %v", err)
	}
	if st.TotalRuns != 1 || st.SuccessfulRuns != 1 {
		t.Errorf("unexpected scenario stats %+v", st)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f, store, _ := testFinalizer(t)
	activeSession(t, store, "host-1")

	if _, err := f.Finalize(context.Background(), "host-1", "session_end"); err != nil {
		t.Fatalf("first Finalize failed: %v", err)
	}

	res, err := f.Finalize(context.Background(), "host-1", "session_end")
	if err != nil {
		t.Fatalf("second Finalize failed: %v", err)
	}
	if res.SessionFound {
		t.Errorf("second finalize should find nothing")
	}
}

func TestFinalizeArchivesScreenshotsAndLog(t *testing.T) {
	f, store, cfg := testFinalizer(t)
	sess := activeSession(t, store, "host-1")

	shotDir := t.TempDir()
	shotPath := filepath.Join(shotDir, "step1.png")
	if err := os.WriteFile(shotPath, []byte("png"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	sess.Screenshots = []session.ScreenshotRecord{
		{Name: "step1", Path: shotPath, Exists: true, SizeBytes: 3, Step: 1},
		{Name: "ghost", Path: filepath.Join(shotDir, "ghost.png"), Exists: false, Step: 1},
	}
	if err := store.Write("host-1", sess); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if err := os.MkdirAll(cfg.LogsDir(), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	logPath := filepath.Join(cfg.LogsDir(), session.Key("host-1")+".log")
	if err := os.WriteFile(logPath, []byte("hook log line\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	res, err := f.Finalize(context.Background(), "host-1", "session_end")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(res.ArchivePath, "screenshots", "step1.png")); err != nil {
		t.Errorf("expected archived screenshot: %v", err)
	}
	if _, err := os.Stat(filepath.Join(res.ArchivePath, "screenshots", "ghost.png")); err == nil {
		t.Errorf("missing screenshots must not be archived")
	}
	if _, err := os.Stat(filepath.Join(res.ArchivePath, "session.log")); err != nil {
		t.Errorf("expected archived session log: %v", err)
	}
}

func TestFinalizeCleansUpDespiteSubStepFailure(t *testing.T) {
	f, store, cfg := testFinalizer(t)
	activeSession(t, store, "host-1")

	// Make the report directory unusable by putting a file in its place.
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(cfg.ReportsDir(), []byte("in the way"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	res, err := f.Finalize(context.Background(), "host-1", "session_end")
	if err != nil {
		t.Fatalf("Finalize should survive sub-step failure: %v", err)
	}
	if len(res.StepErrors) == 0 {
		t.Errorf("expected recorded sub-step errors")
	}
	if store.Exists("host-1") {
		t.Errorf("cleanup must run despite earlier failures")
	}
}
