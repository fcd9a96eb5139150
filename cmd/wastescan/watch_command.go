package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wastescan/internal/config"
	"wastescan/internal/ingest"
	"wastescan/internal/services"
	"wastescan/internal/session"
	"wastescan/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var debounce time.Duration
	var noSync bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Classify images as they are dropped into a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app) error {
				runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				runCtx = services.WithSource(runCtx, "watch")

				a.syncOnStart(runCtx, noSync)

				pipeline := ingest.NewPipeline(a.logger)
				defer pipeline.Close()

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				var outMu sync.Mutex
				handler := func(hctx context.Context, path string, preview ingest.Preview) error {
					res, err := a.session.Submit(hctx, preview)
					outMu.Lock()
					defer outMu.Unlock()
					if ctx.jsonOutput() {
						entry := classifyResult{File: path}
						if err != nil {
							entry.Error = session.FailureMessage
						} else {
							entry.Label = res.Record.Label
							entry.Confidence = res.Record.Confidence
							entry.Probabilities = res.Record.Probabilities
							entry.Celebrate = res.Decision.Celebrate
							entry.Announcement = res.Decision.Announcement
						}
						return errors.Join(err, writeJSON(cmd, entry))
					}
					if err != nil {
						fmt.Fprintln(out, renderStatusLine(preview.Name, statusError, session.FailureMessage, colorize))
						return err
					}
					printClassifyResults(out, []classifyResult{{
						File:          path,
						Label:         res.Record.Label,
						Confidence:    res.Record.Confidence,
						Probabilities: res.Record.Probabilities,
						Celebrate:     res.Decision.Celebrate,
					}}, a.gate.Threshold(), colorize)
					fmt.Fprintln(out)
					return nil
				}

				w, err := watch.New(dir, pipeline, handler, a.logger, watch.WithDebounce(debounce))
				if err != nil {
					return err
				}
				if !ctx.jsonOutput() {
					fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", w.Dir())
				}
				if err := w.Run(runCtx); err != nil {
					return err
				}
				if !ctx.jsonOutput() {
					st := w.Stats()
					fmt.Fprintf(out, "Stopped: %d accepted, %d rejected, %d errors\n", st.Accepted, st.Rejected, st.Errors)
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before a dropped file is processed")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Skip synchronizing history with the backend first")
	return cmd
}
