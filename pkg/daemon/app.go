// Package daemon assembles the full pipeline: persistence, calibration,
// the viewer session, a sample feed, the generation client and the
// operator web surface.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ubicomp-capstone/gazepatch/internal/config"
	"github.com/ubicomp-capstone/gazepatch/internal/log"
	"github.com/ubicomp-capstone/gazepatch/internal/store"
	"github.com/ubicomp-capstone/gazepatch/pkg/blink"
	"github.com/ubicomp-capstone/gazepatch/pkg/calib"
	"github.com/ubicomp-capstone/gazepatch/pkg/feed"
	"github.com/ubicomp-capstone/gazepatch/pkg/genart"
	"github.com/ubicomp-capstone/gazepatch/pkg/hub"
	"github.com/ubicomp-capstone/gazepatch/pkg/session"
	"github.com/ubicomp-capstone/gazepatch/pkg/swap"
	"github.com/ubicomp-capstone/gazepatch/pkg/web"
)

// App is the daemon orchestrator. It owns all components and their
// lifecycle.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	store     *store.Store
	display   *swap.DisplayState
	generator genart.Generator
	session   *session.Session
	source    feed.Source
	stream    *hub.Hub
	web       *web.Server
}

// New validates configuration and creates the (uninitialized) app.
func New(cfg config.Config) (*App, error) {
	cfg.LoadEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	log.Init(level)

	return &App{cfg: cfg, logger: log.Component("daemon")}, nil
}

// Init opens persistence, loads the base image and wires the pipeline.
func (a *App) Init(ctx context.Context) error {
	st, err := store.Open(a.cfg.DBPath, log.L())
	if err != nil {
		return err
	}
	a.store = st

	a.display = swap.NewDisplayState(a.loadBaseImage())

	gen, err := genart.NewClient(
		genart.WithBaseURL(a.cfg.GenServiceURL),
		genart.WithLogger(log.L()),
	)
	if err != nil {
		return err
	}
	a.generator = gen

	healthCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := gen.Health(healthCtx); err != nil {
		a.logger.Warn("generation service unreachable, swaps will fail until it is up",
			"url", a.cfg.GenServiceURL, "error", err)
	}

	a.stream = hub.New("stream", a.cfg.TelemetryHistory, log.L())

	calibrator := calib.NewCalibrator(st, calib.WithLogger(log.Component("calib")))

	sessCfg := session.Config{
		Blink: blink.Config{
			CloseBelow: a.cfg.BlinkCloseBelow,
			OpenAbove:  a.cfg.BlinkOpenAbove,
			Hold:       a.cfg.BlinkHold,
			EMAAlpha:   blink.DefaultConfig().EMAAlpha,
		},
		FixationDwell:       a.cfg.FixationDwell,
		ConfidenceThreshold: a.cfg.ConfidenceThreshold,
	}
	sess, err := session.New(ctx, sessCfg, calibrator, a.generator, a.display,
		session.WithLogger(log.Component("session")),
		session.WithEventSink(st),
		session.WithTelemetry(func(snap session.Snapshot) {
			a.stream.BroadcastJSON(snap)
		}),
	)
	if err != nil {
		return err
	}
	a.session = sess

	a.source, err = a.buildSource()
	if err != nil {
		return err
	}

	a.web = web.NewServer(a.cfg.HTTPPort, sess, st, a.stream, log.L())
	return nil
}

// loadBaseImage reads the initial stimulus. A missing image is not
// fatal; the operator can still calibrate and the display endpoint
// reports 404 until an image exists.
func (a *App) loadBaseImage() []byte {
	if a.cfg.BaseImagePath == "" {
		a.logger.Warn("no base image configured")
		return nil
	}
	data, err := os.ReadFile(a.cfg.BaseImagePath)
	if err != nil {
		a.logger.Warn("base image not loaded", "path", a.cfg.BaseImagePath, "error", err)
		return nil
	}
	a.logger.Info("base image loaded", "path", a.cfg.BaseImagePath, "bytes", len(data))
	return data
}

// buildSource constructs the configured sample feed.
func (a *App) buildSource() (feed.Source, error) {
	switch a.cfg.Feed {
	case "sim":
		return feed.NewSimulated(feed.SimConfig{
			Hz:            a.cfg.SimHz,
			BlinkInterval: a.cfg.SimBlinkInterval,
		}, log.L()), nil
	case "mqtt":
		return feed.NewMQTTSource(a.cfg.MQTTBroker, a.cfg.MQTTTopic, log.L()), nil
	case "ws":
		return feed.NewWSSource(a.cfg.WSURL, log.L()), nil
	default:
		return nil, fmt.Errorf("daemon: unknown feed %q", a.cfg.Feed)
	}
}

// Run starts the web server and pumps the feed until ctx is done.
func (a *App) Run(ctx context.Context) error {
	webErr := make(chan error, 1)
	go func() {
		webErr <- a.web.Start(ctx)
	}()

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- a.source.Run(ctx, a.session)
	}()

	a.logger.Info("running",
		"feed", a.cfg.Feed,
		"http_port", a.cfg.HTTPPort,
		"gen_service", a.cfg.GenServiceURL,
	)

	select {
	case <-ctx.Done():
		return nil
	case err := <-feedErr:
		if err != nil {
			return fmt.Errorf("daemon: feed failed: %w", err)
		}
		return nil
	case err := <-webErr:
		if err != nil {
			return fmt.Errorf("daemon: web server failed: %w", err)
		}
		return nil
	}
}

// Shutdown releases everything in reverse order of Init.
func (a *App) Shutdown() {
	if a.web != nil {
		a.web.Shutdown()
	}
	if a.session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		a.session.Wait(ctx)
		cancel()
	}
	if a.source != nil {
		a.source.Close()
	}
	if a.generator != nil {
		a.generator.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	a.logger.Info("shutdown complete")
}
