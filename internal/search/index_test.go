package search

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/uatflow/internal/report"
	"github.com/ChamsBouzaiene/uatflow/internal/scenario"
	"github.com/ChamsBouzaiene/uatflow/internal/session"
)

func buildReport(scenarioName, errMsg string) *report.Report {
	sc := &scenario.Scenario{
		Name:  scenarioName,
		Steps: []scenario.Step{{Action: "navigate"}},
	}
	sess := session.New("h1", sc, session.ModeProduction, "", "", "")
	if errMsg != "" {
		sess.Errors = append(sess.Errors, session.ErrorRecord{Message: errMsg, Source: "browser_click"})
	}
	return report.Build(sess, "session_end", time.Now().UTC())
}

func TestIndexAndSearch(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "reports.bleve"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer idx.Close()

	withErr := buildReport("login-flow", "selector timeout waiting for #submit")
	clean := buildReport("checkout", "")

	if err := idx.Add(withErr); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := idx.Add(clean); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	hits, err := idx.Search("selector timeout", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected at least one hit")
	}
	if hits[0].ReportID != withErr.Metadata.ReportID {
		t.Errorf("expected the failing report first, got %s", hits[0].ReportID)
	}
	if hits[0].Scenario != "login-flow" {
		t.Errorf("expected stored scenario field, got %q", hits[0].Scenario)
	}
}

func TestOpenExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.bleve")

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	rep := buildReport("login-flow", "")
	if err := idx.Add(rep); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	idx.Close()

	// Re-opening finds the previously indexed report.
	idx, err = Open(path)
	if err != nil {
		t.Fatalf("re-Open failed: %v", err)
	}
	defer idx.Close()

	hits, err := idx.Search("login", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected 1 hit after reopen, got %d", len(hits))
	}
}
