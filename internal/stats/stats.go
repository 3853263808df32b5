package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/uatflow/internal/report"
)

// RollingWindow is how many finished sessions the global summary retains.
const RollingWindow = 50

// Entry is one finished session in the rolling global summary.
type Entry struct {
	Token          string                `json:"token"`
	Scenario       string                `json:"scenario"`
	Status         report.TerminalStatus `json:"status"`
	CompletionRate float64               `json:"completion_rate"`
	DurationMs     int64                 `json:"duration_ms"`
	FinishedAt     time.Time             `json:"finished_at"`
}

// Summary is the global rolling document (last RollingWindow sessions).
type Summary struct {
	UpdatedAt time.Time `json:"updated_at"`
	Sessions  []Entry   `json:"sessions"`
}

// ScenarioStats is the per-scenario running statistic.
type ScenarioStats struct {
	Scenario          string    `json:"scenario"`
	TotalRuns         int       `json:"total_runs"`
	SuccessfulRuns    int       `json:"successful_runs"`
	AvgCompletionRate float64   `json:"avg_completion_rate"` // running average
	LastRunAt         time.Time `json:"last_run_at"`
}

// Store persists the two longer-lived aggregate documents with the same
// stage-then-rename discipline as the session store. These files are shared
// across invocations; whole-document read-modify-write keeps the last
// writer consistent.
type Store struct {
	dir string
}

// NewStore creates a stats store rooted at statePath.
func NewStore(statePath string) *Store {
	return &Store{dir: filepath.Join(statePath, "stats")}
}

func (s *Store) summaryPath() string {
	return filepath.Join(s.dir, "summary.json")
}

func (s *Store) scenarioPath(name string) string {
	return filepath.Join(s.dir, fmt.Sprintf("scenario-%s.json", name))
}

// RecordRun folds one finished session into both documents.
func (s *Store) RecordRun(entry Entry) error {
	if err := s.updateSummary(entry); err != nil {
		return err
	}
	return s.updateScenario(entry)
}

// Summary loads the rolling global summary; missing file yields an empty one.
func (s *Store) Summary() (*Summary, error) {
	var sum Summary
	if err := readJSON(s.summaryPath(), &sum); err != nil {
		if os.IsNotExist(err) {
			return &Summary{}, nil
		}
		return nil, err
	}
	return &sum, nil
}

// Scenario loads the running statistic for a scenario name; missing file
// yields a zeroed record.
func (s *Store) Scenario(name string) (*ScenarioStats, error) {
	var st ScenarioStats
	if err := readJSON(s.scenarioPath(name), &st); err != nil {
		if os.IsNotExist(err) {
			return &ScenarioStats{Scenario: name}, nil
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) updateSummary(entry Entry) error {
	sum, err := s.Summary()
	if err != nil {
		// A corrupt summary is rebuilt rather than failing finalization.
		sum = &Summary{}
	}

	sum.Sessions = append(sum.Sessions, entry)
	if len(sum.Sessions) > RollingWindow {
		sum.Sessions = sum.Sessions[len(sum.Sessions)-RollingWindow:]
	}
	sum.UpdatedAt = time.Now().UTC()

	return s.writeJSON(s.summaryPath(), sum)
}

func (s *Store) updateScenario(entry Entry) error {
	st, err := s.Scenario(entry.Scenario)
	if err != nil {
		st = &ScenarioStats{Scenario: entry.Scenario}
	}

	// Running average over the previous total before bumping the count.
	st.AvgCompletionRate = (st.AvgCompletionRate*float64(st.TotalRuns) + entry.CompletionRate) / float64(st.TotalRuns+1)
	st.TotalRuns++
	if entry.Status == report.TerminalCompleted {
		st.SuccessfulRuns++
	}
	st.LastRunAt = entry.FinishedAt

	return s.writeJSON(s.scenarioPath(entry.Scenario), st)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Store) writeJSON(path string, v any) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create stats directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tmp := path + ".tmp-" + uuid.New().String()
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to stage stats file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace stats file: %w", err)
	}
	return nil
}
