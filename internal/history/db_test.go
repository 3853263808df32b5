package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/uatflow/internal/report"
)

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	cat, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cat.Close()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []Row{
		{Token: "t1", HostSessionID: "h1", Scenario: "login-flow", Status: report.TerminalCompleted, CompletionRate: 1.0, DurationMs: 5000, FinishedAt: base},
		{Token: "t2", HostSessionID: "h2", Scenario: "checkout", Status: report.TerminalFailed, CompletionRate: 0.5, DurationMs: 3000, FinishedAt: base.Add(time.Hour)},
		{Token: "t3", HostSessionID: "h3", Scenario: "login-flow", Status: report.TerminalIncomplete, CompletionRate: 0.25, DurationMs: 2000, FinishedAt: base.Add(2 * time.Hour)},
	}
	for _, r := range rows {
		if err := cat.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	recent, err := cat.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(recent))
	}
	if recent[0].Token != "t3" || recent[2].Token != "t1" {
		t.Errorf("expected newest-first ordering, got %s..%s", recent[0].Token, recent[2].Token)
	}

	byScenario, err := cat.Recent(ctx, "login-flow", 10)
	if err != nil {
		t.Fatalf("Recent(login-flow) failed: %v", err)
	}
	if len(byScenario) != 2 {
		t.Errorf("expected 2 login-flow rows, got %d", len(byScenario))
	}
}

func TestOpenEnablesWALAndBusyTimeout(t *testing.T) {
	ctx := context.Background()
	cat, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cat.Close()

	var mode string
	if err := cat.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode failed: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected journal_mode wal, got %q", mode)
	}

	var timeout int
	if err := cat.db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("PRAGMA busy_timeout failed: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("expected busy_timeout 5000, got %d", timeout)
	}
}

func TestInsertIsIdempotentPerToken(t *testing.T) {
	ctx := context.Background()
	cat, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cat.Close()

	row := Row{Token: "t1", HostSessionID: "h1", Scenario: "login-flow",
		Status: report.TerminalIncomplete, CompletionRate: 0.5, FinishedAt: time.Now().UTC()}
	if err := cat.Insert(ctx, row); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	row.Status = report.TerminalCompleted
	row.CompletionRate = 1.0
	if err := cat.Insert(ctx, row); err != nil {
		t.Fatalf("re-Insert failed: %v", err)
	}

	recent, err := cat.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 row after re-insert, got %d", len(recent))
	}
	if recent[0].Status != report.TerminalCompleted || recent[0].CompletionRate != 1.0 {
		t.Errorf("expected updated row, got %+v", recent[0])
	}
}
