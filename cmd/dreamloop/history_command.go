package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dreamloop/internal/journal"
)

const historyTimeLayout = "2006-01-02 15:04:05"

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent ingest outcomes from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Journal disabled (journal.enabled = false)")
				return nil
			}
			store, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			outcomes, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}
			summary, err := store.Summary(cmd.Context())
			if err != nil {
				return fmt.Errorf("summarize journal: %w", err)
			}
			out := cmd.OutOrStdout()
			renderHistory(out, outcomes, summary, shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of outcomes to show")
	return cmd
}

func renderHistory(out io.Writer, outcomes []journal.Outcome, summary journal.Summary, colorize bool) {
	if len(outcomes) == 0 {
		fmt.Fprintln(out, "No outcomes recorded yet")
	} else {
		title := cases.Title(language.English)
		rows := make([][]string, 0, len(outcomes))
		for _, o := range outcomes {
			kind := statusOK
			if o.Status == journal.StatusFailed {
				kind = statusError
			}
			detail := o.Error
			if o.ErrorKind != "" {
				detail = o.ErrorKind + ": " + detail
			}
			rows = append(rows, []string{
				o.RecordedAt.Local().Format(historyTimeLayout),
				o.Name,
				paint(title.String(string(o.Status)), kind, colorize),
				formatSeconds(o.Duration),
				truncate(detail, 120),
			})
		}
		fmt.Fprintln(out, renderTable(historyColumns, rows, colorize))
	}

	for _, line := range renderSectionHeader("Summary", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Processed", statusOK, strconv.Itoa(summary.Processed), colorize))
	failedKind := statusInfo
	if summary.Failed > 0 {
		failedKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Failed", failedKind, strconv.Itoa(summary.Failed), colorize))
	fmt.Fprintln(out, renderStatusLine("Average", statusInfo, fmt.Sprintf("%.2fs", summary.AverageSeconds), colorize))
	fmt.Fprintln(out, renderStatusLine("Runs", statusInfo, strconv.Itoa(summary.Runs), colorize))
}

func formatSeconds(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
