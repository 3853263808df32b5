package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/uatflow/internal/hook"
)

// Per-hook deadlines. Pre-tool sits on the critical path of every tool call
// and must stay snappy; session-end does archive and index I/O and gets the
// most room.
const (
	preToolTimeout    = 10 * time.Second
	postToolTimeout   = 30 * time.Second
	sessionEndTimeout = 60 * time.Second
)

func newPreToolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pre-tool",
		Short: "Classify and possibly enrich a pending tool call (stdin JSON in, stdout JSON out)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(hook.TypePreTool, preToolTimeout, func(ctx context.Context, h *hook.Handler, req *hook.Request) *hook.Response {
				return h.PreTool(ctx, req)
			})
		},
	}
}

func newPostToolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post-tool",
		Short: "Record an executed tool call against the active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(hook.TypePostTool, postToolTimeout, func(ctx context.Context, h *hook.Handler, req *hook.Request) *hook.Response {
				return h.PostTool(ctx, req)
			})
		},
	}
}

func newSessionEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-end",
		Short: "Finalize the session: report, archive, stats, catalog, cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(hook.TypeSessionEnd, sessionEndTimeout, func(ctx context.Context, h *hook.Handler, req *hook.Request) *hook.Response {
				return h.SessionEnd(ctx, req)
			})
		},
	}
}

// runHook is the shared request/response plumbing: read one JSON request
// from stdin, dispatch under the hook's deadline, write one JSON response to
// stdout. Every failure mode still produces a well-formed response so the
// calling environment never has to parse a partial document.
func runHook(hookType hook.Type, timeout time.Duration, dispatch func(context.Context, *hook.Handler, *hook.Request) *hook.Response) error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return writeResponse(hook.Errorf("failed to read request: %v", err))
	}

	req, err := hook.Decode(hookType, raw)
	if err != nil {
		log.Printf("%s: rejected request: %v", hookType, err)
		return writeResponse(hook.Errorf("invalid request: %v", err))
	}

	cfg, err := loadConfig()
	if err != nil {
		return writeResponse(hook.Errorf("failed to load configuration: %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp := dispatch(ctx, hook.NewHandler(cfg), req)
	return writeResponse(resp)
}

func writeResponse(resp *hook.Response) error {
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
