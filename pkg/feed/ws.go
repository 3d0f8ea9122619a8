package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReconnectMin = time.Second
	wsReconnectMax = 30 * time.Second
)

// WSSource reads the sample envelope from a websocket relay, one JSON
// text message per sample. Tracker bridges that cannot speak MQTT
// expose this instead.
type WSSource struct {
	url    string
	logger *slog.Logger
}

// NewWSSource creates a source dialing url.
func NewWSSource(url string, logger *slog.Logger) *WSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSSource{url: url, logger: logger.With("component", "wsfeed")}
}

// Run dials the relay and pushes samples until ctx is done. Lost
// connections are redialed with exponential backoff; the feed only
// stops when ctx is canceled.
func (w *WSSource) Run(ctx context.Context, sink Sink) error {
	backoff := wsReconnectMin
	for {
		if err := w.readLoop(ctx, sink); err != nil {
			w.logger.Warn("websocket feed dropped", "error", err, "retry_in", backoff)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wsReconnectMax {
			backoff = wsReconnectMax
		}
	}
}

// readLoop runs one connection until it fails or ctx is done.
func (w *WSSource) readLoop(ctx context.Context, sink Sink) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	w.logger.Info("websocket feed connected", "url", w.url)

	// Unblock ReadMessage on cancellation.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var sample Sample
		if err := json.Unmarshal(payload, &sample); err != nil {
			w.logger.Warn("sample dropped", "error", err)
			continue
		}
		sink.HandleSample(sample)
	}
}

// Close releases nothing; connections are owned by Run.
func (w *WSSource) Close() error {
	return nil
}
