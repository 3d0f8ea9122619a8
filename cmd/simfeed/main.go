// simfeed publishes a synthetic gaze/blink stream to an MQTT broker so
// the daemon's mqtt feed can be exercised without a tracker attached.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ubicomp-capstone/gazepatch/pkg/feed"
)

func main() {
	broker := flag.String("broker", "tcp://127.0.0.1:1883", "MQTT broker URL")
	topic := flag.String("topic", "gazepatch/stream", "MQTT sample topic")
	hz := flag.Float64("hz", 120, "Sample rate")
	blinkEvery := flag.Duration("blink-every", 2*time.Second, "Synthetic blink interval")
	flag.Parse()

	opts := mqtt.NewClientOptions().
		AddBroker(*broker).
		SetClientID("simfeed-" + uuid.NewString()[:8])

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect error: %v", token.Error())
	}
	defer client.Disconnect(250)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src := feed.NewSimulated(feed.SimConfig{
		Hz:            *hz,
		BlinkInterval: *blinkEvery,
	}, nil)

	log.Printf("publishing simulated samples to %s on %s", *topic, *broker)
	err := src.Run(ctx, feed.SinkFunc(func(s feed.Sample) {
		payload, err := json.Marshal(s)
		if err != nil {
			log.Printf("sample not encoded: %v", err)
			return
		}
		client.Publish(*topic, 0, false, payload)
	}))
	if err != nil {
		log.Fatalf("feed error: %v", err)
	}
}
