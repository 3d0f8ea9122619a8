// gazepatchd drives a gaze-contingent change-blindness experiment:
// it classifies blinks, tracks sector fixations, requests peripheral
// image modifications and swaps them in only while the viewer's eyes
// are closed and pointed elsewhere.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/ubicomp-capstone/gazepatch/internal/config"
	"github.com/ubicomp-capstone/gazepatch/pkg/daemon"
)

func main() {
	cfg := parseFlags()

	app, err := daemon.New(cfg)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		log.Fatalf("initialization failed: %v", err)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

// parseFlags parses command line flags and returns configuration.
func parseFlags() config.Config {
	cfg := config.DefaultConfig()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	port := flag.String("port", cfg.HTTPPort, "HTTP port for the operator API")
	feedKind := flag.String("feed", cfg.Feed, "Sample source: sim, mqtt, ws")
	broker := flag.String("mqtt-broker", cfg.MQTTBroker, "MQTT broker URL")
	topic := flag.String("mqtt-topic", cfg.MQTTTopic, "MQTT sample topic")
	wsURL := flag.String("ws-url", cfg.WSURL, "Websocket relay URL for the ws feed")
	genURL := flag.String("gen-url", cfg.GenServiceURL, "Image generation service base URL")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	baseImage := flag.String("base-image", cfg.BaseImagePath, "Initial stimulus image")
	dwell := flag.Duration("dwell", cfg.FixationDwell, "Fixation dwell before a trigger")

	flag.Parse()

	cfg.Debug = *debug
	cfg.HTTPPort = *port
	cfg.Feed = *feedKind
	cfg.MQTTBroker = *broker
	cfg.MQTTTopic = *topic
	cfg.WSURL = *wsURL
	cfg.GenServiceURL = *genURL
	cfg.DBPath = *dbPath
	cfg.BaseImagePath = *baseImage
	cfg.FixationDwell = *dwell
	return cfg
}
