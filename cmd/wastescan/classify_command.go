package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"wastescan/internal/gate"
	"wastescan/internal/ingest"
	"wastescan/internal/prediction"
	"wastescan/internal/services"
	"wastescan/internal/session"
)

type classifyResult struct {
	File          string             `json:"file"`
	Label         string             `json:"label,omitempty"`
	Confidence    float64            `json:"confidence,omitempty"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Celebrate     bool               `json:"celebrate"`
	Announcement  string             `json:"announcement,omitempty"`
	Error         string             `json:"error,omitempty"`
}

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var noSync bool

	cmd := &cobra.Command{
		Use:   "classify <image>...",
		Short: "Classify one or more images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				runCtx := services.WithSource(cmd.Context(), "cli")
				a.syncOnStart(runCtx, noSync)

				pipeline := ingest.NewPipeline(a.logger)
				defer pipeline.Close()

				results := make([]classifyResult, 0, len(args))
				var failures int
				for _, path := range args {
					res := classifyPath(cmd, a, pipeline, path)
					if res.Error != "" {
						failures++
					}
					results = append(results, res)
				}

				if ctx.jsonOutput() {
					if err := writeJSON(cmd, results); err != nil {
						return err
					}
				} else {
					printClassifyResults(cmd.OutOrStdout(), results, a.gate.Threshold(), shouldColorize(cmd.OutOrStdout()))
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d images could not be classified", failures, len(args))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Skip synchronizing history with the backend first")
	return cmd
}

func classifyPath(cmd *cobra.Command, a *app, pipeline *ingest.Pipeline, path string) classifyResult {
	res := classifyResult{File: path}

	file, err := ingest.FileFromPath(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	preview, err := pipeline.Select(file)
	if err != nil {
		var ierr *ingest.Error
		if errors.As(err, &ierr) {
			res.Error = ierr.Message()
		} else {
			res.Error = err.Error()
		}
		return res
	}
	defer pipeline.Remove()

	runCtx := services.WithSource(cmd.Context(), "cli")
	out, err := a.session.Submit(runCtx, preview)
	if err != nil {
		if errors.Is(err, services.ErrClassification) {
			res.Error = session.FailureMessage
		} else {
			res.Error = err.Error()
		}
		return res
	}

	res.Label = out.Record.Label
	res.Confidence = out.Record.Confidence
	res.Probabilities = out.Record.Probabilities
	res.Celebrate = out.Decision.Celebrate
	res.Announcement = out.Decision.Announcement
	return res
}

func printClassifyResults(w io.Writer, results []classifyResult, threshold float64, colorize bool) {
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "File:        %s\n", res.File)
		if res.Error != "" {
			fmt.Fprintln(w, renderStatusLine("Result", statusError, res.Error, colorize))
			continue
		}
		fmt.Fprintf(w, "Result:      %s\n", prediction.DisplayLabel(res.Label))
		fmt.Fprintf(w, "Confidence:  %s%% (%s, threshold %s%%)\n",
			gate.FormatPercent(res.Confidence),
			celebrateMarker(res.Celebrate, colorize),
			gate.FormatPercent(threshold))

		if len(res.Probabilities) == 0 {
			continue
		}
		labels := slices.Sorted(maps.Keys(res.Probabilities))
		slices.SortStableFunc(labels, func(a, b string) int {
			switch pa, pb := res.Probabilities[a], res.Probabilities[b]; {
			case pa > pb:
				return -1
			case pa < pb:
				return 1
			default:
				return 0
			}
		})
		rows := make([][]string, 0, len(labels))
		for _, label := range labels {
			rows = append(rows, []string{prediction.DisplayLabel(label), gate.FormatPercent(res.Probabilities[label]) + "%"})
		}
		fmt.Fprintln(w, renderTable(tableSpec{
			headers: []string{"Class", "Probability"},
			rows:    rows,
			aligns:  []columnAlignment{alignLeft, alignRight},
		}))
	}
}

func trimmedLower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
