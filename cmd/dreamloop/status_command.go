package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dreamloop/internal/daemon"
	"dreamloop/internal/fileutil"
	"dreamloop/internal/journal"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the ingest daemon is running and what is waiting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Ingest", colorize) {
				fmt.Fprintln(out, line)
			}
			held, lockErr := daemon.LockHeld(cfg.LockPath())
			pid, pidErr := daemon.ReadPID(cfg.PIDPath())
			switch {
			case lockErr != nil:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, lockErr.Error(), colorize))
			case held && pidErr == nil:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", pid), colorize))
			case held:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("running (pid unknown: %v)", pidErr), colorize))
			case pidErr == nil:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("stale pid file (pid %d)", pid), colorize))
			case errors.Is(pidErr, os.ErrNotExist):
				fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, "not running", colorize))
			default:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running; "+pidErr.Error(), colorize))
			}
			if held && strings.TrimSpace(cfg.Metrics.Bind) != "" {
				renderLiveIngest(cmd.Context(), out, cfg.Metrics.Bind, colorize)
			}

			pending, err := fileutil.ListMatching(cfg.Paths.InputDir, cfg.Ingest.ImageMarker)
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Input", statusError, err.Error(), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Input", statusInfo, fmt.Sprintf("%d waiting in %s", len(pending), cfg.Paths.InputDir), colorize))
			}
			frames, err := fileutil.ListMatching(cfg.Paths.OutputDir, cfg.Ingest.ImageMarker)
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Output", statusError, err.Error(), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Output", statusInfo, fmt.Sprintf("%d frames in %s", len(frames), cfg.Paths.OutputDir), colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Journal", statusInfo, yesNo(cfg.Journal.Enabled), colorize))

			if !cfg.Journal.Enabled {
				return nil
			}
			store, err := journal.Open(cfg.JournalPath())
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("History", statusWarn, err.Error(), colorize))
				return nil
			}
			defer store.Close()
			summary, err := store.Summary(cmd.Context())
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("History", statusWarn, err.Error(), colorize))
				return nil
			}
			kind := statusOK
			if summary.Failed > 0 {
				kind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("History", kind,
				fmt.Sprintf("%d processed, %d failed", summary.Processed, summary.Failed), colorize))
			return nil
		},
	}
}

// renderLiveIngest reports the running daemon's counters from its metrics
// listener. Unreachable listeners are reported, not fatal.
func renderLiveIngest(ctx context.Context, out io.Writer, bind string, colorize bool) {
	status, err := fetchLiveStatus(ctx, bind)
	if err != nil {
		fmt.Fprintln(out, renderStatusLine("Live", statusWarn, err.Error(), colorize))
		return
	}
	kind := statusOK
	if status.Ingest.Failed > 0 {
		kind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Live", kind,
		fmt.Sprintf("%d processed, %d failed this run", status.Ingest.Processed, status.Ingest.Failed), colorize))
	last := "none yet"
	if !status.Ingest.LastProcessedAt.IsZero() {
		last = fmt.Sprintf("%s at %s", status.Ingest.LastItem, status.Ingest.LastProcessedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(out, renderStatusLine("Last item", statusInfo, last, colorize))
	if status.Ingest.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, status.Ingest.LastError, colorize))
	}
}

func fetchLiveStatus(ctx context.Context, bind string) (daemon.Status, error) {
	var status daemon.Status
	host := bind
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+host+"/status", nil)
	if err != nil {
		return status, fmt.Errorf("build status request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status, fmt.Errorf("query %s: %w", host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("query %s: %s", host, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode status from %s: %w", host, err)
	}
	return status, nil
}
