package finalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ChamsBouzaiene/uatflow/internal/config"
	"github.com/ChamsBouzaiene/uatflow/internal/history"
	"github.com/ChamsBouzaiene/uatflow/internal/report"
	"github.com/ChamsBouzaiene/uatflow/internal/search"
	"github.com/ChamsBouzaiene/uatflow/internal/session"
	"github.com/ChamsBouzaiene/uatflow/internal/stats"
)

// Result summarizes one finalize call. Sub-step failures are counted, not
// fatal; the call as a whole fails only if cleanup is impossible.
type Result struct {
	SessionFound   bool                  `json:"session_found"`
	TerminalStatus report.TerminalStatus `json:"terminal_status,omitempty"`
	ReportPath     string                `json:"report_path,omitempty"`
	ArchivePath    string                `json:"archive_path,omitempty"`
	StepErrors     []string              `json:"step_errors,omitempty"`
}

// archiveMeta is the retention metadata written into every archive bundle.
type archiveMeta struct {
	Token       string    `json:"token"`
	Scenario    string    `json:"scenario"`
	ArchivedAt  time.Time `json:"archived_at"`
	RetainUntil time.Time `json:"retain_until"`
}

// retentionPeriod is how long archive bundles are expected to be kept.
const retentionPeriod = 90 * 24 * time.Hour

// Finalizer drives the session end-of-life state machine:
// active -> {completed, failed, incomplete} -> archived -> removed.
type Finalizer struct {
	cfg      *config.Config
	sessions *session.Store
	stats    *stats.Store
}

// New creates a finalizer over the shared stores.
func New(cfg *config.Config, sessions *session.Store, statsStore *stats.Store) *Finalizer {
	return &Finalizer{cfg: cfg, sessions: sessions, stats: statsStore}
}

// Finalize ends the session for a host-session id. It is idempotent: when
// no session exists (never started, or already finalized) it is a no-op
// success. Report, archive, stats, catalog, and index updates are
// independent best-effort sub-steps; cleanup always runs last so a
// partially failed finalize never leaves an active-looking session behind.
func (f *Finalizer) Finalize(ctx context.Context, hostSessionID, terminationReason string) (*Result, error) {
	res := &Result{}

	sess, err := f.sessions.Read(hostSessionID)
	if errors.Is(err, session.ErrNotFound) {
		f.sessions.CleanupStale(hostSessionID)
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.SessionFound = true

	now := time.Now().UTC()
	rep := report.Build(sess, terminationReason, now)
	res.TerminalStatus = rep.Execution.TerminalStatus

	stepErr := func(step string, err error) {
		msg := fmt.Sprintf("%s: %v", step, err)
		log.Printf("finalize %s failed for %s: %v", step, hostSessionID, err)
		res.StepErrors = append(res.StepErrors, msg)
	}

	reportPath, err := f.writeReport(rep)
	if err != nil {
		stepErr("report", err)
	} else {
		res.ReportPath = reportPath
	}

	archivePath, err := f.archive(sess, rep, now)
	if err != nil {
		stepErr("archive", err)
	} else {
		res.ArchivePath = archivePath
	}

	entry := stats.Entry{
		Token:          sess.Token,
		Scenario:       sess.Scenario,
		Status:         rep.Execution.TerminalStatus,
		CompletionRate: rep.Execution.CompletionRate,
		DurationMs:     rep.Session.DurationMs,
		FinishedAt:     now,
	}
	if err := f.stats.RecordRun(entry); err != nil {
		stepErr("stats", err)
	}

	if err := f.catalog(ctx, sess, rep, res, now); err != nil {
		stepErr("catalog", err)
	}

	if err := f.indexReport(rep); err != nil {
		stepErr("index", err)
	}

	// Cleanup runs last, regardless of what failed above.
	if err := f.sessions.Delete(hostSessionID); err != nil {
		return res, fmt.Errorf("failed to remove session state: %w", err)
	}
	f.sessions.CleanupStale(hostSessionID)

	return res, nil
}

// writeReport renders the report to uniquely named JSON and markdown files.
func (f *Finalizer) writeReport(rep *report.Report) (string, error) {
	dir := f.cfg.ReportsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	base := fmt.Sprintf("report-%s-%s", rep.Session.Scenario, rep.Metadata.ReportID[:8])
	jsonPath := filepath.Join(dir, base+".json")

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	// The markdown rendering is a courtesy copy; its failure does not void
	// the JSON report.
	mdPath := filepath.Join(dir, base+".md")
	if err := os.WriteFile(mdPath, []byte(rep.Markdown()), 0644); err != nil {
		log.Printf("failed to write markdown report: %v", err)
	}

	return jsonPath, nil
}

// archive copies the session's final state, its screenshots, and its log
// into a month-bucketed retention directory.
func (f *Finalizer) archive(sess *session.Session, rep *report.Report, now time.Time) (string, error) {
	dir := filepath.Join(f.cfg.ArchiveRoot(), now.Format("2006-01"), sess.Token)
	if err := os.MkdirAll(filepath.Join(dir, "screenshots"), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	state, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal session state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session.json"), state, 0644); err != nil {
		return "", fmt.Errorf("failed to archive session state: %w", err)
	}

	meta := archiveMeta{
		Token:       sess.Token,
		Scenario:    sess.Scenario,
		ArchivedAt:  now,
		RetainUntil: now.Add(retentionPeriod),
	}
	if data, err := json.MarshalIndent(meta, "", "  "); err == nil {
		if err := os.WriteFile(filepath.Join(dir, "archive.json"), data, 0644); err != nil {
			log.Printf("failed to write archive metadata: %v", err)
		}
	}

	for _, shot := range sess.Screenshots {
		if !shot.Exists || shot.Path == "" {
			continue
		}
		dst := filepath.Join(dir, "screenshots", filepath.Base(shot.Path))
		if err := copyFile(shot.Path, dst); err != nil {
			log.Printf("failed to archive screenshot %s: %v", shot.Path, err)
		}
	}

	logPath := filepath.Join(f.cfg.LogsDir(), session.Key(sess.HostSessionID)+".log")
	if _, err := os.Stat(logPath); err == nil {
		if err := copyFile(logPath, filepath.Join(dir, "session.log")); err != nil {
			log.Printf("failed to archive session log: %v", err)
		}
	}

	return dir, nil
}

func (f *Finalizer) catalog(ctx context.Context, sess *session.Session, rep *report.Report, res *Result, now time.Time) error {
	cat, err := history.Open(ctx, f.cfg.HistoryDBPath())
	if err != nil {
		return err
	}
	defer cat.Close()

	return cat.Insert(ctx, history.Row{
		Token:          sess.Token,
		HostSessionID:  sess.HostSessionID,
		Scenario:       sess.Scenario,
		Status:         rep.Execution.TerminalStatus,
		CompletionRate: rep.Execution.CompletionRate,
		DurationMs:     rep.Session.DurationMs,
		ReportPath:     res.ReportPath,
		ArchivePath:    res.ArchivePath,
		FinishedAt:     now,
	})
}

func (f *Finalizer) indexReport(rep *report.Report) error {
	idx, err := search.Open(f.cfg.SearchIndexPath())
	if err != nil {
		return err
	}
	defer idx.Close()
	return idx.Add(rep)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
