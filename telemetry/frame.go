// Package telemetry streams board state to dashboards over WebSocket and MQTT.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"balance-board/board"
)

var log = logrus.WithField("component", "telemetry")

// Frame is the JSON document sent to every consumer.
type Frame struct {
	board.Snapshot
	TS int64 `json:"ts"` // unix millis
}

// NewFrame stamps a snapshot with the current time.
func NewFrame(s board.Snapshot) Frame {
	return Frame{Snapshot: s, TS: time.Now().UnixMilli()}
}

// Marshal encodes the frame as JSON.
func (f Frame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}
