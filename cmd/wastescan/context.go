package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"wastescan/internal/apiclient"
	"wastescan/internal/config"
	"wastescan/internal/gate"
	"wastescan/internal/history"
	"wastescan/internal/kvstore"
	"wastescan/internal/logging"
	"wastescan/internal/notifications"
	"wastescan/internal/reconcile"
	"wastescan/internal/session"
	"wastescan/internal/settings"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// app is the wired set of components one command invocation works with.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	kv         kvstore.Backend
	settings   *settings.Store
	prefs      settings.Settings
	history    *history.Store
	client     *apiclient.Client
	gate       *gate.Gate
	notifier   notifications.Service
	reconciler *reconcile.Service
	session    *session.Session
}

func (c *commandContext) openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	kv, err := kvstore.Open(cfg.History.Backend, cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	prefsStore := settings.NewStore(kv, settings.Defaults(cfg), logger)
	prefs := prefsStore.Load()

	historyStore := history.New(kv, prefs.HistoryLimit, logger)
	client := apiclient.New(cfg.API.BaseURL, apiclient.WithTimeout(time.Duration(cfg.API.TimeoutSeconds)*time.Second))
	g := gate.New(prefs.ConfidenceThreshold)
	notifier := notifications.NewService(cfg)
	reconciler := reconcile.NewService(client, historyStore, logger)
	sess := session.New(client, historyStore, g, logger,
		session.WithAnnouncer(announcers{newWriterAnnouncer(cmd.ErrOrStderr()), notifier}),
		session.WithFailureNotifier(notifier),
		session.WithReconciler(reconciler))

	return &app{
		cfg:        cfg,
		logger:     logger,
		kv:         kv,
		settings:   prefsStore,
		prefs:      prefs,
		history:    historyStore,
		client:     client,
		gate:       g,
		notifier:   notifier,
		reconciler: reconciler,
		session:    sess,
	}, nil
}

func (a *app) Close() error {
	if a == nil || a.kv == nil {
		return nil
	}
	return a.kv.Close()
}

// syncOnStart runs the startup reconciliation when enabled. Failures are
// logged by the reconciler and otherwise ignored.
func (a *app) syncOnStart(ctx context.Context, skip bool) reconcile.Result {
	if skip || !a.cfg.History.SyncOnStart {
		return reconcile.Result{}
	}
	return a.session.Start(ctx)
}

func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app) error) error {
	a, err := c.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// writerAnnouncer prints accessibility announcements as terminal notices.
type writerAnnouncer struct {
	mu sync.Mutex
	w  io.Writer
}

func newWriterAnnouncer(w io.Writer) *writerAnnouncer {
	return &writerAnnouncer{w: w}
}

func (a *writerAnnouncer) Announce(_ context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintf(a.w, "* %s\n", text)
	return err
}

// announcers fans an announcement out to every target and joins the failures.
type announcers []gate.Announcer

func (a announcers) Announce(ctx context.Context, text string) error {
	var errs []error
	for _, target := range a {
		if target == nil {
			continue
		}
		if err := target.Announce(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
