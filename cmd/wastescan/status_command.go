package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const statusProbeTimeout = 3 * time.Second

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend reachability and local store state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				probeCtx, cancel := context.WithTimeout(cmd.Context(), statusProbeTimeout)
				defer cancel()
				_, probeErr := a.client.FetchHistory(probeCtx, 1)

				if ctx.jsonOutput() {
					payload := map[string]any{
						"backend_url":       a.cfg.API.BaseURL,
						"backend_reachable": probeErr == nil,
						"store_backend":     a.cfg.History.Backend,
						"store_path":        a.cfg.StorePath(),
						"history_size":      a.history.Len(),
						"history_limit":     a.history.Capacity(),
						"threshold":         a.gate.Threshold(),
						"sync_on_start":     a.cfg.History.SyncOnStart,
						"notifications":     a.notifier.Enabled(),
					}
					if probeErr != nil {
						payload["backend_error"] = probeErr.Error()
					}
					return writeJSON(cmd, payload)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("wastescan", colorize) {
					fmt.Fprintln(out, line)
				}
				if probeErr != nil {
					fmt.Fprintln(out, renderStatusLine("Backend", statusError, fmt.Sprintf("%s unreachable", a.cfg.API.BaseURL), colorize))
				} else {
					fmt.Fprintln(out, renderStatusLine("Backend", statusOK, a.cfg.API.BaseURL, colorize))
				}
				fmt.Fprintln(out, renderStatusLine("Store", statusInfo, fmt.Sprintf("%s at %s", a.cfg.History.Backend, a.cfg.StorePath()), colorize))
				fmt.Fprintln(out, renderStatusLine("History", statusInfo, fmt.Sprintf("%d of %d", a.history.Len(), a.history.Capacity()), colorize))
				fmt.Fprintln(out, renderStatusLine("Startup sync", statusInfo, yesNo(a.cfg.History.SyncOnStart), colorize))
				fmt.Fprintln(out, renderStatusLine("Notifications", statusInfo, yesNo(a.notifier.Enabled()), colorize))
				return nil
			})
		},
	}
}
