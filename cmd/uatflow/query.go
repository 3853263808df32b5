package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/uatflow/internal/history"
	"github.com/ChamsBouzaiene/uatflow/internal/scenario"
	"github.com/ChamsBouzaiene/uatflow/internal/search"
	"github.com/ChamsBouzaiene/uatflow/internal/stats"
)

const queryTimeout = 15 * time.Second

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List available scenario definitions with their run statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			loader := scenario.NewLoader(cfg.ScenarioDir)
			names, err := loader.List()
			if err != nil {
				return fmt.Errorf("failed to list scenarios: %w", err)
			}

			statsStore := stats.NewStore(cfg.SessionsRoot())

			type entry struct {
				Name        string  `json:"name"`
				Description string  `json:"description,omitempty"`
				Steps       int     `json:"steps"`
				TotalRuns   int     `json:"total_runs"`
				SuccessRate float64 `json:"success_rate"`
			}
			out := make([]entry, 0, len(names))
			for _, name := range names {
				sc, err := loader.Load(name)
				if err != nil {
					continue
				}
				e := entry{Name: sc.Name, Description: sc.Description, Steps: len(sc.Steps)}
				if st, err := statsStore.Scenario(name); err == nil && st.TotalRuns > 0 {
					e.TotalRuns = st.TotalRuns
					e.SuccessRate = float64(st.SuccessfulRuns) / float64(st.TotalRuns)
				}
				out = append(out, e)
			}
			return writeJSON(out)
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var scenarioFilter string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finalized sessions from the run catalog, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
			defer cancel()

			catalog, err := history.Open(ctx, cfg.HistoryDBPath())
			if err != nil {
				return fmt.Errorf("failed to open run catalog: %w", err)
			}
			defer catalog.Close()

			rows, err := catalog.Recent(ctx, scenarioFilter, limit)
			if err != nil {
				return fmt.Errorf("failed to query run catalog: %w", err)
			}

			type entry struct {
				Token          string  `json:"token"`
				Scenario       string  `json:"scenario"`
				Status         string  `json:"status"`
				CompletionRate float64 `json:"completion_rate"`
				DurationMs     int64   `json:"duration_ms"`
				FinishedAt     string  `json:"finished_at"`
				ReportPath     string  `json:"report_path,omitempty"`
				ArchivePath    string  `json:"archive_path,omitempty"`
			}
			out := make([]entry, 0, len(rows))
			for _, row := range rows {
				out = append(out, entry{
					Token:          row.Token,
					Scenario:       row.Scenario,
					Status:         string(row.Status),
					CompletionRate: row.CompletionRate,
					DurationMs:     row.DurationMs,
					FinishedAt:     row.FinishedAt.UTC().Format(time.RFC3339),
					ReportPath:     row.ReportPath,
					ArchivePath:    row.ArchivePath,
				})
			}
			return writeJSON(out)
		},
	}

	cmd.Flags().StringVar(&scenarioFilter, "scenario", "", "Only show runs of this scenario")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over finalized run reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			idx, err := search.Open(cfg.SearchIndexPath())
			if err != nil {
				return fmt.Errorf("failed to open report index: %w", err)
			}
			defer idx.Close()

			hits, err := idx.Search(args[0], limit)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			type entry struct {
				ReportID string  `json:"report_id"`
				Scenario string  `json:"scenario"`
				Status   string  `json:"status"`
				Score    float64 `json:"score"`
			}
			out := make([]entry, 0, len(hits))
			for _, hit := range hits {
				out = append(out, entry{
					ReportID: hit.ReportID,
					Scenario: hit.Scenario,
					Status:   hit.Status,
					Score:    hit.Score,
				})
			}
			return writeJSON(out)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of hits to show")
	return cmd
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
