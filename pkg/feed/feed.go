// Package feed delivers eye-tracker samples to the pipeline.
//
// Sources differ in transport (simulated, MQTT, websocket) and in shape:
// some deliver combined gaze+blink records, others send independent gaze
// and blink messages. The Sample type carries optional parts so either
// shape flows through the same Sink.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Gaze is a normalized gaze position with the tracker's confidence.
type Gaze struct {
	X          float64 `json:"x_norm"`
	Y          float64 `json:"y_norm"`
	Confidence float64 `json:"confidence"`
	Valid      bool    `json:"valid"`
}

// BlinkSignal is the blink part of a sample. Raw-signal sources set Raw,
// normalized so higher means more open. Sources that classify blinks
// themselves set State ("open", "closing", "closed") and optionally a
// Confidence; such messages bypass the detector and drive the pipeline
// as pre-classified edges.
type BlinkSignal struct {
	Raw        float64 `json:"raw,omitempty"`
	State      string  `json:"state,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Sample is one message from a source. Gaze and Blink are each optional;
// a combined source sets both, split sources set one.
type Sample struct {
	At    time.Time    `json:"-"`
	Gaze  *Gaze        `json:"gaze,omitempty"`
	Blink *BlinkSignal `json:"blink,omitempty"`
}

// wireSample is the JSON envelope used on MQTT and websocket transports.
type wireSample struct {
	TS    float64      `json:"ts"`
	Gaze  *Gaze        `json:"gaze,omitempty"`
	Blink *BlinkSignal `json:"blink,omitempty"`
}

// MarshalJSON encodes the sample with a unix-seconds timestamp.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireSample{
		TS:    float64(s.At.UnixNano()) / float64(time.Second),
		Gaze:  s.Gaze,
		Blink: s.Blink,
	})
}

// UnmarshalJSON decodes the wire envelope.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var w wireSample
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("feed: decode sample: %w", err)
	}
	s.At = time.Unix(0, int64(w.TS*float64(time.Second)))
	s.Gaze = w.Gaze
	s.Blink = w.Blink
	return nil
}

// Sink consumes samples. The session implements it.
type Sink interface {
	HandleSample(Sample)
}

// Source produces samples until the context is done.
type Source interface {
	// Run blocks, pushing samples into sink. It returns nil when ctx is
	// canceled and an error when the transport fails unrecoverably.
	Run(ctx context.Context, sink Sink) error

	// Close releases transport resources.
	Close() error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Sample)

// HandleSample calls f.
func (f SinkFunc) HandleSample(s Sample) {
	f(s)
}
