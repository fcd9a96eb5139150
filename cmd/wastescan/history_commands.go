package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"wastescan/internal/gate"
	"wastescan/internal/prediction"
	"wastescan/internal/services"
	"wastescan/internal/view"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and maintain the local scan history",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryStatsCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))
	historyCmd.AddCommand(newHistorySyncCommand(ctx))
	historyCmd.AddCommand(newHistoryExportCommand(ctx))
	historyCmd.AddCommand(newHistoryImageCommand(ctx))

	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var search, category, sortKey string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scans with optional search, filter, and sort",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := view.ParseSortKey(sortKey)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app) error {
				res := view.Apply(a.history.Snapshot(), view.Query{Search: search, Category: category, Sort: key})
				if ctx.jsonOutput() {
					return writeJSON(cmd, res.Items)
				}
				out := cmd.OutOrStdout()
				if len(res.Items) == 0 {
					if a.history.Len() == 0 {
						fmt.Fprintln(out, "No scans yet")
					} else {
						fmt.Fprintln(out, "No scans match the current search or filter")
					}
					return nil
				}
				fmt.Fprintln(out, renderHistoryTable(res.Items, a.history.Len()))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "Case-insensitive substring match on the class label")
	cmd.Flags().StringVarP(&category, "filter", "f", view.CategoryAll, "Only show one class (organik, anorganik, campuran, or all)")
	cmd.Flags().StringVar(&sortKey, "sort", string(view.SortRecency), "Sort by recency, confidence, or label")
	return cmd
}

func renderHistoryTable(items []prediction.Record, total int) string {
	rows := make([][]string, 0, len(items))
	for i, rec := range items {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			rec.Timestamp.Local().Format("2006-01-02 15:04"),
			prediction.DisplayLabel(rec.Label),
			gate.FormatPercent(rec.Confidence) + "%",
			rec.Filename,
		})
	}
	return renderTable(tableSpec{
		headers: []string{"#", "Scanned", "Class", "Confidence", "File"},
		rows:    rows,
		aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
		footer:  []string{"", fmt.Sprintf("%d of %d", len(items), total)},
	})
}

func newHistoryStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics over the history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				stats := view.Compute(a.history.Snapshot())
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				printStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
}

func printStats(w io.Writer, stats view.Stats) {
	if stats.Total == 0 {
		fmt.Fprintln(w, "No scans yet")
		return
	}
	fmt.Fprintf(w, "Total scans:         %d\n", stats.Total)
	fmt.Fprintf(w, "Average confidence:  %s%%\n", gate.FormatPercent(stats.AverageConfidence))
	fmt.Fprintf(w, "Most common class:   %s\n", prediction.DisplayLabel(stats.MostCommonLabel))
	fmt.Fprintf(w, "Distinct classes:    %d\n", len(stats.CountsByLabel))

	labels := make([]string, 0, len(stats.CountsByLabel))
	for label := range stats.CountsByLabel {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	rows := make([][]string, 0, len(labels))
	for _, label := range labels {
		rows = append(rows, []string{prediction.DisplayLabel(label), strconv.Itoa(stats.CountsByLabel[label])})
	}
	fmt.Fprintln(w, renderTable(tableSpec{
		headers: []string{"Class", "Scans"},
		rows:    rows,
		aligns:  []columnAlignment{alignLeft, alignRight},
	}))
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every scan from the local history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				if remote {
					if err := a.client.ClearHistory(cmd.Context()); err != nil {
						return services.Wrap(services.ErrReconciliation, "history", "clear remote", "", err)
					}
				}
				removed := a.history.Len()
				if err := a.history.Clear(); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"removed": removed, "remote": remote})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d scans\n", removed)
				if remote {
					fmt.Fprintln(cmd.OutOrStdout(), "Backend history cleared")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Also delete the backend's history")
	return cmd
}

func newHistorySyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replace the local history with the backend's records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				res := a.reconciler.Run(cmd.Context())
				if ctx.jsonOutput() {
					payload := map[string]any{"applied": res.Applied, "received": res.Received, "stored": res.Stored}
					if res.Err != nil {
						payload["error"] = res.Err.Error()
					}
					return writeJSON(cmd, payload)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				if !res.Applied {
					fmt.Fprintln(out, renderStatusLine("Sync", statusWarn, "Backend unavailable; local history kept", colorize))
					return nil
				}
				fmt.Fprintln(out, renderStatusLine("Sync", statusOK,
					fmt.Sprintf("%d received, %d kept", res.Received, res.Stored), colorize))
				return nil
			})
		},
	}
}

// exportRecord is the portable form of a scan; images are omitted unless
// requested.
type exportRecord struct {
	ID            *int64             `json:"id,omitempty" yaml:"id,omitempty"`
	Label         string             `json:"class" yaml:"class"`
	Confidence    float64            `json:"confidence" yaml:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty" yaml:"probabilities,omitempty"`
	Filename      string             `json:"filename,omitempty" yaml:"filename,omitempty"`
	ContentType   string             `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Image         string             `json:"image,omitempty" yaml:"image,omitempty"`
	Timestamp     string             `json:"timestamp" yaml:"timestamp"`
}

func newHistoryExportCommand(ctx *commandContext) *cobra.Command {
	var format string
	var withImages bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the history as JSON or YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			format = trimmedLower(format)
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported export format %q (want json or yaml)", format)
			}
			return ctx.withApp(cmd, func(a *app) error {
				records := a.history.Snapshot()
				out := make([]exportRecord, 0, len(records))
				for _, rec := range records {
					entry := exportRecord{
						ID:            rec.ID,
						Label:         rec.Label,
						Confidence:    rec.Confidence,
						Probabilities: rec.Probabilities,
						Filename:      rec.Filename,
						ContentType:   rec.ContentType,
						Timestamp:     rec.Timestamp.UTC().Format(time.RFC3339),
					}
					if withImages {
						entry.Image = rec.Image
					}
					out = append(out, entry)
				}
				if format == "json" {
					return writeJSON(cmd, out)
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(out); err != nil {
					return fmt.Errorf("encode yaml: %w", err)
				}
				return enc.Close()
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	cmd.Flags().BoolVar(&withImages, "with-images", false, "Include image data URLs")
	return cmd
}
