package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"wastescan/internal/gate"
	"wastescan/internal/settings"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the confidence threshold and history limit",
	}

	settingsCmd.AddCommand(newSettingsShowCommand(ctx))
	settingsCmd.AddCommand(newSettingsThresholdCommand(ctx))
	settingsCmd.AddCommand(newSettingsLimitCommand(ctx))

	return settingsCmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				return printSettings(cmd, ctx, a.prefs, a.history.Len())
			})
		},
	}
}

func newSettingsThresholdCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "threshold <value>",
		Short: "Set the celebration threshold (0-1, or a percentage like 85%)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseThreshold(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app) error {
				next, err := a.settings.SetThreshold(value)
				if err != nil {
					return err
				}
				a.gate.SetThreshold(next.ConfidenceThreshold)
				return printSettings(cmd, ctx, next, a.history.Len())
			})
		},
	}
}

func newSettingsLimitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "limit <n>",
		Short: "Set how many scans are kept (1-50)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("history limit must be a whole number: %w", err)
			}
			return ctx.withApp(cmd, func(a *app) error {
				next, err := a.settings.ApplyHistoryLimit(n, a.history)
				if err != nil {
					return err
				}
				return printSettings(cmd, ctx, next, a.history.Len())
			})
		},
	}
}

// parseThreshold accepts 0.85, 85%, or 85 (values above 1 are read as
// percentages).
func parseThreshold(raw string) (float64, error) {
	value := strings.TrimSpace(raw)
	percent := strings.HasSuffix(value, "%")
	value = strings.TrimSuffix(value, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("threshold must be a number: %w", err)
	}
	if percent || v > 1 {
		v /= 100
	}
	return v, nil
}

func printSettings(cmd *cobra.Command, ctx *commandContext, s settings.Settings, historyLen int) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, s)
	}
	writeSettings(cmd.OutOrStdout(), s, historyLen)
	return nil
}

func writeSettings(w io.Writer, s settings.Settings, historyLen int) {
	fmt.Fprintf(w, "Confidence threshold:  %s%%\n", gate.FormatPercent(s.ConfidenceThreshold))
	fmt.Fprintf(w, "History limit:         %d (%d stored)\n", s.HistoryLimit, historyLen)
}
